// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package graph builds and runs compute graphs of device dispatches.
//
// # Overview
//
// A ComputeGraph owns tensor metadata, device buffers and two node queues:
//   - the prepack queue, drained once to load constant data into packed
//     device layouts
//   - the execute queue, run on every iteration, whose nodes recompute their
//     output shapes and workgroup extents before each dispatch
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/computegraph/backend/cpu"
//	    "github.com/born-ml/computegraph/graph"
//	)
//
//	func main() {
//	    g := graph.New(graph.DefaultConfig())
//	    self, _ := g.AddTensor(graph.Shape{2, 3}, graph.Float32, graph.Buffer, graph.Contiguous)
//	    other, _ := g.AddTensor(graph.Shape{2, 3}, graph.Float32, graph.Buffer, graph.Contiguous)
//	    cond, _ := g.AddTensor(graph.Shape{2, 3}, graph.Bool, graph.Buffer, graph.Contiguous)
//	    out, _ := g.AddTensor(graph.Shape{2, 3}, graph.Float32, graph.Buffer, graph.Contiguous)
//	    if _, err := graph.AddWhereNode(g, cond, self, other, out); err != nil {
//	        log.Fatal(err)
//	    }
//
//	    ctx := context.Background()
//	    if err := g.Prepare(ctx, cpu.New()); err != nil {
//	        log.Fatal(err)
//	    }
//	    defer g.Release()
//	    // write inputs with g.WriteValue ...
//	    if err := g.Execute(ctx); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//
// # Packed Layouts
//
// Int8x4 tensors store four int8 elements per 32-bit texel, packed along
// the W, H or C dim. The packed dim is padded to a multiple of four; use
// AddStagingToInt8x4BufferNode and AddInt8x4BufferToStagingNode to convert
// between NCHW int8 staging buffers and packed tensors.
//
// # Resizing
//
// Tensors can be virtually resized within their allocated capacity.
// ResizeInput changes a graph input and re-derives downstream shapes; the
// next Execute dispatches with the new extents.
package graph
