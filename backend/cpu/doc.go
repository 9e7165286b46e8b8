// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the software compute device.
//
// # Overview
//
// The device runs every built-in kernel as a Go function:
//   - Pure Go implementation (no CGO)
//   - Workgroups spread over goroutines
//   - Bounds-checked buffer access, so kernel addressing bugs surface as errors
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
//	    // add values and operators ...
//	    if err := g.Prepare(ctx, cpu.New()); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//
// For GPU execution, see the webgpu package.
package cpu
