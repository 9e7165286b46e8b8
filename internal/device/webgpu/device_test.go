//go:build windows

package webgpu

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/computegraph/internal/device"
	"github.com/born-ml/computegraph/internal/graph"
	"github.com/born-ml/computegraph/internal/ops"
	"github.com/born-ml/computegraph/internal/tensor"
)

func openDevice(t *testing.T) *Device {
	t.Helper()
	dev, err := New(nil)
	if err != nil {
		t.Logf("WebGPU not available: %v", err)
		t.Skip("WebGPU not available on this system")
	}
	t.Cleanup(dev.Release)
	return dev
}

func TestIsAvailable(t *testing.T) {
	t.Logf("WebGPU available: %v", IsAvailable())
}

func TestDeviceName(t *testing.T) {
	dev := openDevice(t)
	assert.True(t, IsAvailable())
	assert.True(t, strings.HasPrefix(dev.Name(), "webgpu"), "got %q", dev.Name())
	assert.Equal(t, device.DefaultLimits(), dev.Limits())
}

func TestDeviceInterface(t *testing.T) {
	var _ device.Device = (*Device)(nil)
	var _ device.Buffer = (*Buffer)(nil)
}

func TestBufferWriteRead(t *testing.T) {
	dev := openDevice(t)

	buf, err := dev.Allocate(10)
	require.NoError(t, err)
	assert.Equal(t, 12, buf.Size())

	zeros, err := buf.Read(12)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 12), zeros)

	require.NoError(t, buf.Write([]byte{1, 2, 3, 4, 5, 6}))
	got, err := buf.Read(6)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, got)

	buf.Release()
	_, err = buf.Read(4)
	assert.Error(t, err)
}

func TestBufferPoolReuse(t *testing.T) {
	dev := openDevice(t)

	a, err := dev.Allocate(64)
	require.NoError(t, err)
	a.Release()
	_, err = dev.Allocate(64)
	require.NoError(t, err)

	hits, _ := dev.pool.stats()
	assert.Equal(t, uint64(1), hits)
}

func TestInt8x4RoundTrip(t *testing.T) {
	dev := openDevice(t)
	ctx := context.Background()

	g := graph.New(graph.DefaultConfig(), nil)
	shape := tensor.Shape{2, 3, 5}
	numel := shape.NumElements()

	packed, err := g.AddTensor(shape, tensor.Int8x4, tensor.Buffer, tensor.PackedInt8x4C)
	require.NoError(t, err)
	in, err := g.AddStaging(tensor.Int8, numel)
	require.NoError(t, err)
	out, err := g.AddStaging(tensor.Int8, numel)
	require.NoError(t, err)

	_, err = ops.AddStagingToInt8x4BufferNode(g, in, packed)
	require.NoError(t, err)
	_, err = ops.AddInt8x4BufferToStagingNode(g, packed, out)
	require.NoError(t, err)

	require.NoError(t, g.Prepare(ctx, dev))
	defer g.Release()

	data := make([]byte, numel)
	for i := range data {
		data[i] = byte(i*7 + 1)
	}
	require.NoError(t, g.WriteValue(in, data))
	require.NoError(t, g.Execute(ctx))

	got, err := g.ReadValue(out)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}
