// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package graph_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/computegraph/backend/cpu"
	"github.com/born-ml/computegraph/graph"
)

func TestStagingRoundTrip(t *testing.T) {
	g := graph.New(graph.DefaultConfig())
	shape := graph.Shape{2, 3, 5}

	in, err := g.AddStaging(graph.Int8, shape.NumElements())
	require.NoError(t, err)
	packed, err := g.AddTensor(shape, graph.Int8x4, graph.Buffer, graph.PackedInt8x4C)
	require.NoError(t, err)
	out, err := g.AddStaging(graph.Int8, shape.NumElements())
	require.NoError(t, err)

	ops := graph.NewOpRegistry()
	require.NoError(t, ops.Apply(g, "int8x4.from_staging", in, packed))
	require.NoError(t, ops.Apply(g, "int8x4.to_staging", packed, out))

	ctx := context.Background()
	require.NoError(t, g.Prepare(ctx, cpu.New()))
	defer g.Release()

	data := make([]byte, shape.NumElements())
	for i := range data {
		data[i] = byte(100 + i)
	}
	require.NoError(t, g.WriteValue(in, data))
	require.NoError(t, g.Execute(ctx))

	got, err := g.ReadValue(out)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestWhereResizesOutput(t *testing.T) {
	g := graph.New(graph.DefaultConfig())
	cond, err := g.AddTensor(graph.Shape{2, 3}, graph.Bool, graph.Buffer, graph.Contiguous)
	require.NoError(t, err)
	self, err := g.AddTensor(graph.Shape{2, 3}, graph.Float32, graph.Buffer, graph.Contiguous)
	require.NoError(t, err)
	other, err := g.AddTensor(graph.Shape{2, 3}, graph.Float32, graph.Buffer, graph.Contiguous)
	require.NoError(t, err)
	out, err := g.AddTensorWithCapacity(graph.Shape{1, 1}, graph.Shape{2, 3}, graph.Float32, graph.Buffer, graph.Contiguous)
	require.NoError(t, err)

	_, err = graph.AddWhereNode(g, cond, self, other, out)
	require.NoError(t, err)
	require.NoError(t, g.PropagateResize())
	assert.Equal(t, graph.Shape{2, 3}, g.SizesOf(out))

	err = g.ResizeInput(self, graph.Shape{3, 3})
	assert.True(t, errors.Is(err, graph.ErrCapacityExceeded))
}

func TestUnsupportedOp(t *testing.T) {
	g := graph.New(graph.DefaultConfig())
	err := graph.NewOpRegistry().Apply(g, "aten.add.Tensor")
	assert.True(t, errors.Is(err, graph.ErrUnsupportedOp))
}
