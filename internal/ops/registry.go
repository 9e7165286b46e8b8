package ops

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/born-ml/computegraph/internal/graph"
)

// Operator names understood by the default registry.
const (
	WhereSelf             = "aten.where.self"
	PrepackInt8x4         = "int8x4.prepack"
	StagingToInt8x4Buffer = "int8x4.from_staging"
	Int8x4BufferToStaging = "int8x4.to_staging"
)

// ErrUnsupportedOp is returned for operator names with no registered builder.
var ErrUnsupportedOp = errors.New("unsupported operator")

// OpFunc adds the nodes of one operator to g. args are the operator's values
// in schema order, outputs last.
type OpFunc func(g *graph.ComputeGraph, args []graph.ValueRef) error

// Registry maps operator names to node builders.
type Registry struct {
	handlers map[string]OpFunc
}

// NewRegistry creates a registry holding every supported operator.
func NewRegistry() *Registry {
	r := &Registry{
		handlers: make(map[string]OpFunc),
	}
	r.Register(WhereSelf, arity(4, func(g *graph.ComputeGraph, a []graph.ValueRef) error {
		_, err := AddWhereNode(g, a[0], a[1], a[2], a[3])
		return err
	}))
	r.Register(PrepackInt8x4, arity(2, func(g *graph.ComputeGraph, a []graph.ValueRef) error {
		_, err := AddPrepackInt8x4BufferNode(g, a[0], a[1])
		return err
	}))
	r.Register(StagingToInt8x4Buffer, arity(2, func(g *graph.ComputeGraph, a []graph.ValueRef) error {
		_, err := AddStagingToInt8x4BufferNode(g, a[0], a[1])
		return err
	}))
	r.Register(Int8x4BufferToStaging, arity(2, func(g *graph.ComputeGraph, a []graph.ValueRef) error {
		_, err := AddInt8x4BufferToStagingNode(g, a[0], a[1])
		return err
	}))
	return r
}

func arity(n int, f OpFunc) OpFunc {
	return func(g *graph.ComputeGraph, args []graph.ValueRef) error {
		if len(args) != n {
			return errors.Errorf("expected %d arguments, got %d", n, len(args))
		}
		return f(g, args)
	}
}

// Register adds or replaces the builder for name.
func (r *Registry) Register(name string, fn OpFunc) {
	r.handlers[name] = fn
}

// Get returns the builder for name.
func (r *Registry) Get(name string) (OpFunc, bool) {
	fn, ok := r.handlers[name]
	return fn, ok
}

// Apply adds the operator name to g.
func (r *Registry) Apply(g *graph.ComputeGraph, name string, args ...graph.ValueRef) error {
	fn, ok := r.handlers[name]
	if !ok {
		return errors.Wrapf(ErrUnsupportedOp, "%q", name)
	}
	return errors.Wrapf(fn(g, args), "%s", name)
}

// SupportedOps returns the registered operator names, sorted.
func (r *Registry) SupportedOps() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
