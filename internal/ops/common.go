// Package ops builds compute graph nodes for tensor operators.
//
// Each Add*Node function validates its operands, selects a kernel, assembles
// bindings and parameter blocks and appends one node to the graph. Validation
// failures are returned before anything is appended.
package ops

import (
	"fmt"

	"github.com/born-ml/computegraph/internal/graph"
	"github.com/born-ml/computegraph/internal/tensor"
)

// AddStorageTypeSuffix appends the storage variant to a kernel name.
func AddStorageTypeSuffix(name string, st tensor.StorageType) string {
	return name + "_" + st.KernelSuffix()
}

// AddDTypeSuffix appends the dtype variant to a kernel name.
func AddDTypeSuffix(name string, dt tensor.DataType) string {
	return name + "_" + dt.KernelSuffix()
}

// checkCond returns a ValidationError built from the remaining arguments when
// cond is false.
func checkCond(g *graph.ComputeGraph, cond bool, op string, ref graph.ValueRef, constraint, format string, args ...any) error {
	if cond {
		return nil
	}
	err := &graph.ValidationError{
		Op:         op,
		Value:      ref,
		Constraint: constraint,
		Details:    fmt.Sprintf(format, args...),
	}
	g.Logger().WithError(err).Warn("operator rejected")
	return err
}
