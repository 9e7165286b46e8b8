package graph

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/computegraph/internal/device"
	"github.com/born-ml/computegraph/internal/device/cpu"
	"github.com/born-ml/computegraph/internal/kernel"
	"github.com/born-ml/computegraph/internal/tensor"
)

func newTestGraph(t *testing.T, cfg Config) *ComputeGraph {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return New(cfg, kernel.Default(), WithLogger(logger))
}

// fakeDevice allocates host buffers and records dispatches without running
// them.
type fakeDevice struct {
	mem        *cpu.Device
	limits     device.Limits
	dispatches []*device.Dispatch
	fail       error
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{mem: cpu.New(), limits: device.DefaultLimits()}
}

func (f *fakeDevice) Name() string { return "fake" }

func (f *fakeDevice) Limits() device.Limits { return f.limits }

func (f *fakeDevice) Allocate(size int) (device.Buffer, error) { return f.mem.Allocate(size) }

func (f *fakeDevice) Dispatch(_ context.Context, d *device.Dispatch) error {
	if f.fail != nil {
		return f.fail
	}
	f.dispatches = append(f.dispatches, d)
	return nil
}

func (f *fakeDevice) kernels() []string {
	names := make([]string, len(f.dispatches))
	for i, d := range f.dispatches {
		names[i] = d.Kernel.Name
	}
	return names
}

func TestAddTensor(t *testing.T) {
	g := newTestGraph(t, DefaultConfig())

	ref, err := g.AddTensor(tensor.Shape{2, 3, 5}, tensor.Int8x4, tensor.Buffer, tensor.PackedInt8x4C)
	require.NoError(t, err)
	assert.Equal(t, ValueRef(0), ref)
	assert.True(t, g.IsTensor(ref))
	assert.Equal(t, tensor.Int8x4, g.DTypeOf(ref))
	assert.Equal(t, 3, g.DimOf(ref))
	assert.Equal(t, tensor.Shape{2, 3, 5}, g.SizesOf(ref))
	assert.Equal(t, 30, g.NumelOf(ref))
	assert.Equal(t, 60, g.PaddedNumelOf(ref))
	assert.Equal(t, 60, g.CapacityOf(ref))
	assert.Equal(t, tensor.PackedInt8x4C.Hash(), g.HashedLayoutOf(ref))
	assert.Equal(t, tensor.Buffer, g.StorageTypeOf(ref))

	_, err = g.AddTensor(tensor.Shape{2, 0}, tensor.Float32, tensor.Buffer, tensor.Contiguous)
	assert.Error(t, err)

	_, err = g.AddTensor(tensor.Shape{4}, tensor.Int8x4, tensor.Buffer, tensor.Contiguous)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, "add_tensor", verr.Op)

	_, err = g.AddTensorWithCapacity(tensor.Shape{4, 4}, tensor.Shape{2, 4}, tensor.Float32, tensor.Buffer, tensor.Contiguous)
	assert.True(t, errors.Is(err, ErrCapacityExceeded))

	assert.Equal(t, 1, g.NumValues())
}

func TestSizesOfReturnsCopy(t *testing.T) {
	g := newTestGraph(t, DefaultConfig())
	ref, err := g.AddTensor(tensor.Shape{2, 3}, tensor.Float32, tensor.Buffer, tensor.Contiguous)
	require.NoError(t, err)

	s := g.SizesOf(ref)
	s[0] = 100
	assert.Equal(t, tensor.Shape{2, 3}, g.SizesOf(ref))
}

func TestAddStagingAndConstant(t *testing.T) {
	g := newTestGraph(t, DefaultConfig())

	s, err := g.AddStaging(tensor.Int8, 10)
	require.NoError(t, err)
	assert.True(t, g.IsStaging(s))
	assert.Equal(t, 10, g.NumelOf(s))

	_, err = g.AddStaging(tensor.Int8, 0)
	assert.Error(t, err)
	_, err = g.AddStaging(tensor.Int8x4, 4)
	assert.Error(t, err)

	data := []byte{1, 2, 3, 4, 5, 6}
	c, err := g.AddConstant(tensor.Shape{2, 3}, tensor.Int8, data)
	require.NoError(t, err)
	data[0] = 42
	assert.True(t, g.IsConstant(c))
	assert.Equal(t, byte(1), g.values[c].data[0])

	_, err = g.AddConstant(tensor.Shape{2, 3}, tensor.Int8, data[:5])
	assert.Error(t, err)
}

func TestCheckRef(t *testing.T) {
	g := newTestGraph(t, DefaultConfig())
	assert.True(t, errors.Is(g.CheckRef(0), ErrInvalidValue))
	assert.True(t, errors.Is(g.CheckRef(NoValue), ErrInvalidValue))
}

func TestVirtualResize(t *testing.T) {
	g := newTestGraph(t, DefaultConfig())
	ref, err := g.AddTensorWithCapacity(tensor.Shape{1, 1}, tensor.Shape{4, 6}, tensor.Float32, tensor.Buffer, tensor.Contiguous)
	require.NoError(t, err)

	require.NoError(t, g.VirtualResize(ref, tensor.Shape{2, 3}))
	assert.Equal(t, tensor.Shape{2, 3}, g.SizesOf(ref))
	require.NoError(t, g.VirtualResize(ref, tensor.Shape{24}))

	err = g.VirtualResize(ref, tensor.Shape{5, 5})
	assert.True(t, errors.Is(err, ErrCapacityExceeded))
	assert.Equal(t, tensor.Shape{24}, g.SizesOf(ref), "failed resize leaves shape unchanged")

	packed, err := g.AddTensor(tensor.Shape{2, 3, 5}, tensor.Int8x4, tensor.Buffer, tensor.PackedInt8x4C)
	require.NoError(t, err)
	// 6 channels pad to 8: 5*3*8 texel lanes exceed the 60 allocated.
	err = g.VirtualResize(packed, tensor.Shape{6, 3, 5})
	assert.True(t, errors.Is(err, ErrCapacityExceeded))
	require.NoError(t, g.VirtualResize(packed, tensor.Shape{4, 3, 5}))

	c, err := g.AddConstant(tensor.Shape{2}, tensor.Int8, []byte{1, 2})
	require.NoError(t, err)
	assert.Error(t, g.VirtualResize(c, tensor.Shape{1}))

	s, err := g.AddStaging(tensor.Int8, 8)
	require.NoError(t, err)
	assert.Error(t, g.VirtualResize(s, tensor.Shape{2, 2}))
	require.NoError(t, g.VirtualResize(s, tensor.Shape{6}))
}

func TestMetaParamsFollowResize(t *testing.T) {
	g := newTestGraph(t, DefaultConfig())
	ref, err := g.AddTensorWithCapacity(tensor.Shape{1}, tensor.Shape{2, 3}, tensor.Float32, tensor.Buffer, tensor.Contiguous)
	require.NoError(t, err)
	p := g.MetaParams(ref)
	assert.Equal(t, ref, p.Ref())

	require.NoError(t, g.VirtualResize(ref, tensor.Shape{2, 3}))
	m, err := device.DecodeMeta(g.encodeParams(p))
	require.NoError(t, err)
	assert.Equal(t, uint32(2), m.NDim)
	assert.Equal(t, uint32(6), m.Numel)
	assert.Equal(t, []int{3, 2, 1}, m.SizesInt(3))
	assert.Equal(t, []int{1, 3, 6}, m.StridesInt(3))
}

func TestBufferMetaParamsUseTexelStrides(t *testing.T) {
	g := newTestGraph(t, DefaultConfig())
	ref, err := g.AddTensor(tensor.Shape{2, 3, 5}, tensor.Int8x4, tensor.Buffer, tensor.PackedInt8x4C)
	require.NoError(t, err)

	m, err := device.DecodeMeta(g.encodeParams(g.BufferMetaParams(ref)))
	require.NoError(t, err)
	assert.Equal(t, uint32(30), m.Numel)
	assert.Equal(t, uint32(60), m.PaddedNumel)
	assert.Equal(t, []int{1, 5, 15, 15}, m.StridesInt(4))

	m, err = device.DecodeMeta(g.encodeParams(g.MetaParams(ref)))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 5, 15, 30}, m.StridesInt(4))
}
