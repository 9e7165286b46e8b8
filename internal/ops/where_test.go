package ops

import (
	"context"
	"encoding/binary"
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/computegraph/internal/device"
	"github.com/born-ml/computegraph/internal/device/cpu"
	"github.com/born-ml/computegraph/internal/graph"
	"github.com/born-ml/computegraph/internal/kernel"
	"github.com/born-ml/computegraph/internal/tensor"
)

func float32Bytes(vals ...float32) []byte {
	out := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func boolBytes(vals ...bool) []byte {
	out := make([]byte, 4*len(vals))
	for i, v := range vals {
		if v {
			binary.LittleEndian.PutUint32(out[i*4:], 1)
		}
	}
	return out
}

type whereValues struct {
	cond, self, other, out graph.ValueRef
}

func addWhereValues(t *testing.T, g *graph.ComputeGraph, cond, self, other, out, outCapacity tensor.Shape) whereValues {
	t.Helper()
	var v whereValues
	var err error
	v.cond, err = g.AddTensor(cond, tensor.Bool, tensor.Buffer, tensor.Contiguous)
	require.NoError(t, err)
	v.self, err = g.AddTensor(self, tensor.Float32, tensor.Buffer, tensor.Contiguous)
	require.NoError(t, err)
	v.other, err = g.AddTensor(other, tensor.Float32, tensor.Buffer, tensor.Contiguous)
	require.NoError(t, err)
	v.out, err = g.AddTensorWithCapacity(out, outCapacity, tensor.Float32, tensor.Buffer, tensor.Contiguous)
	require.NoError(t, err)
	return v
}

func TestWhereNode(t *testing.T) {
	g, _ := newTestGraph(t)
	v := addWhereValues(t, g, tensor.Shape{2, 3}, tensor.Shape{2, 3}, tensor.Shape{2, 3}, tensor.Shape{2, 3}, tensor.Shape{2, 3})

	node, err := AddWhereNode(g, v.cond, v.self, v.other, v.out)
	require.NoError(t, err)
	assert.Equal(t, kernel.WhereBufferFloat, node.Kernel().Name)
	assert.Equal(t, []graph.ArgGroup{
		graph.Arg(device.Write, v.out),
		graph.Arg(device.Read, v.cond, v.self, v.other),
	}, node.Args())
	refs := make([]graph.ValueRef, 0, 4)
	for _, p := range node.Params() {
		refs = append(refs, p.Ref())
	}
	assert.Equal(t, []graph.ValueRef{v.out, v.cond, v.self, v.other}, refs)
	assert.Equal(t, "from(1, 1)", node.ResizePolicy().String())
	assert.Equal(t, device.Ext(6, 1, 1), node.GlobalWGSize(g))
	assert.Len(t, g.ExecuteNodes(), 1)
}

func TestWhereOutputFollowsSelf(t *testing.T) {
	g, _ := newTestGraph(t)
	v := addWhereValues(t, g, tensor.Shape{2, 3}, tensor.Shape{2, 3}, tensor.Shape{2, 3}, tensor.Shape{1, 1}, tensor.Shape{2, 3})

	node, err := AddWhereNode(g, v.cond, v.self, v.other, v.out)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 1}, g.SizesOf(v.out))

	require.NoError(t, node.TriggerResize(g))
	assert.Equal(t, tensor.Shape{2, 3}, g.SizesOf(v.out))
	assert.Equal(t, device.Ext(6, 1, 1), node.GlobalWGSize(g))
}

func TestWhereExecute(t *testing.T) {
	g, _ := newTestGraph(t)
	v := addWhereValues(t, g, tensor.Shape{3}, tensor.Shape{2, 3}, tensor.Shape{1}, tensor.Shape{1, 1}, tensor.Shape{2, 3})
	_, err := AddWhereNode(g, v.cond, v.self, v.other, v.out)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, g.Prepare(ctx, cpu.New()))
	defer g.Release()
	require.NoError(t, g.WriteValue(v.cond, boolBytes(true, false, true)))
	require.NoError(t, g.WriteValue(v.self, float32Bytes(1, 2, 3, 4, 5, 6)))
	require.NoError(t, g.WriteValue(v.other, float32Bytes(-0.5)))

	require.NoError(t, g.Execute(ctx))
	assert.Equal(t, tensor.Shape{2, 3}, g.SizesOf(v.out))
	got, err := g.ReadValue(v.out)
	require.NoError(t, err)
	assert.Equal(t, float32Bytes(1, -0.5, 3, 4, -0.5, 6), got)

	// Resizing the input between iterations shrinks the output with it.
	require.NoError(t, g.VirtualResize(v.self, tensor.Shape{1, 3}))
	require.NoError(t, g.Execute(ctx))
	assert.Equal(t, tensor.Shape{1, 3}, g.SizesOf(v.out))
	got, err = g.ReadValue(v.out)
	require.NoError(t, err)
	assert.Equal(t, float32Bytes(1, -0.5, 3), got)
}

func TestWhereInt32(t *testing.T) {
	g, _ := newTestGraph(t)
	cond, err := g.AddTensor(tensor.Shape{4}, tensor.Bool, tensor.Buffer, tensor.Contiguous)
	require.NoError(t, err)
	self, err := g.AddTensor(tensor.Shape{4}, tensor.Int32, tensor.Buffer, tensor.Contiguous)
	require.NoError(t, err)
	other, err := g.AddTensor(tensor.Shape{4}, tensor.Int32, tensor.Buffer, tensor.Contiguous)
	require.NoError(t, err)
	out, err := g.AddTensor(tensor.Shape{4}, tensor.Int32, tensor.Buffer, tensor.Contiguous)
	require.NoError(t, err)

	node, err := AddWhereNode(g, cond, self, other, out)
	require.NoError(t, err)
	assert.Equal(t, kernel.WhereBufferInt32, node.Kernel().Name)
}

func TestWhereTextureUnknownKernel(t *testing.T) {
	g, _ := newTestGraph(t)
	var refs [4]graph.ValueRef
	dtypes := [4]tensor.DataType{tensor.Bool, tensor.Float32, tensor.Float32, tensor.Float32}
	for i := range refs {
		var err error
		refs[i], err = g.AddTensor(tensor.Shape{2, 3}, dtypes[i], tensor.Texture3D, tensor.Contiguous)
		require.NoError(t, err)
	}

	_, err := AddWhereNode(g, refs[0], refs[1], refs[2], refs[3])
	require.Error(t, err)
	assert.True(t, errors.Is(err, graph.ErrUnknownKernel))
	assert.Contains(t, err.Error(), "where_texture3d_float")
	assert.Empty(t, g.ExecuteNodes())
}

func TestWhereValidation(t *testing.T) {
	g, _ := newTestGraph(t)
	v := addWhereValues(t, g, tensor.Shape{2, 3}, tensor.Shape{2, 3}, tensor.Shape{2, 3}, tensor.Shape{2, 3}, tensor.Shape{2, 3})
	add := func(shape tensor.Shape, dt tensor.DataType, st tensor.StorageType) graph.ValueRef {
		ref, err := g.AddTensor(shape, dt, st, tensor.Contiguous)
		require.NoError(t, err)
		return ref
	}
	floatCond := add(tensor.Shape{2, 3}, tensor.Float32, tensor.Buffer)
	intSelf := add(tensor.Shape{2, 3}, tensor.Int32, tensor.Buffer)
	textureOther := add(tensor.Shape{2, 3}, tensor.Float32, tensor.Texture3D)
	wideOther := add(tensor.Shape{2, 4}, tensor.Float32, tensor.Buffer)
	tallCond := add(tensor.Shape{3, 2, 3}, tensor.Bool, tensor.Buffer)
	deep := add(tensor.Shape{1, 1, 1, 1, 1, 1, 1, 1, 2}, tensor.Float32, tensor.Buffer)
	packed, err := g.AddTensor(tensor.Shape{2, 4}, tensor.Int8x4, tensor.Buffer, tensor.PackedInt8x4W)
	require.NoError(t, err)
	staging, err := g.AddStaging(tensor.Float32, 6)
	require.NoError(t, err)

	tests := []struct {
		name                   string
		cond, self, other, out graph.ValueRef
		constraint             string
	}{
		{"float cond", floatCond, v.self, v.other, v.out, "cond dtype == bool"},
		{"self dtype", v.cond, intSelf, v.other, v.out, "dtype == out dtype"},
		{"mixed storage", v.cond, v.self, textureOther, v.out, "storage == out storage"},
		{"other does not broadcast", v.cond, v.self, wideOther, v.out, "broadcasts to self"},
		{"cond widens self", tallCond, v.self, v.other, v.out, "broadcasts to self"},
		{"too many dims", v.cond, v.self, v.other, deep, "dim <= 8"},
		{"packed operand", v.cond, packed, v.other, v.out, "layout is unpacked"},
		{"staging operand", v.cond, v.self, staging, v.out, "is tensor"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := AddWhereNode(g, tt.cond, tt.self, tt.other, tt.out)
			var verr *graph.ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, "where", verr.Op)
			assert.Equal(t, tt.constraint, verr.Constraint)
		})
	}

	_, err = AddWhereNode(g, v.cond, v.self, v.other, 1000)
	assert.True(t, errors.Is(err, graph.ErrInvalidValue))
	assert.Empty(t, g.ExecuteNodes())
}
