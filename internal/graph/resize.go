package graph

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/born-ml/computegraph/internal/tensor"
)

// VirtualResize changes the logical shape of a value without touching its
// storage. It fails with ErrCapacityExceeded when the new shape needs more
// (padded) elements than were allocated.
func (g *ComputeGraph) VirtualResize(ref ValueRef, shape tensor.Shape) error {
	if err := g.CheckRef(ref); err != nil {
		return err
	}
	if err := shape.Validate(); err != nil {
		return errors.Wrapf(err, "virtual resize of value %d", ref)
	}
	v := g.values[ref]
	if v.kind == kindConstant {
		return errors.Errorf("virtual resize of value %d: constants cannot be resized", ref)
	}
	if v.kind == kindStaging && len(shape) != 1 {
		return errors.Errorf("virtual resize of value %d: staging buffers are 1-D, got %v", ref, shape)
	}
	need := v.layout.Packing().PaddedNumel(shape)
	if need > v.capacity {
		return errors.Wrapf(ErrCapacityExceeded, "value %d: shape %v needs %d elements, capacity %d",
			ref, shape, need, v.capacity)
	}
	if !v.shape.Equal(shape) {
		g.log.WithFields(logrus.Fields{
			"value": int(ref),
			"from":  v.shape,
			"to":    shape,
		}).Debug("virtual resize")
	}
	v.shape = shape.Clone()
	return nil
}

// ResizePolicy decides how a dynamic node re-derives its output shape.
// Implementations are NoResize, ResizeFrom and CustomResize.
type ResizePolicy interface {
	// Resize updates output shapes from current input shapes.
	Resize(g *ComputeGraph, args []ArgGroup, resizeArgs []ValueRef) error
	// validate checks the policy against the node's arguments at build time.
	validate(args []ArgGroup) error
	fmt.Stringer
}

// NoResize is the policy of nodes whose output shape never changes.
type NoResize struct{}

// Resize does nothing.
func (NoResize) Resize(*ComputeGraph, []ArgGroup, []ValueRef) error { return nil }

func (NoResize) validate([]ArgGroup) error { return nil }

func (NoResize) String() string { return "none" }

// ResizeFrom sets the node's first output (args[0].Refs[0]) to the shape of
// the operand at args[Group].Refs[Index].
type ResizeFrom struct {
	Group int
	Index int
}

// Resize virtually resizes the output to the source operand's shape.
func (r ResizeFrom) Resize(g *ComputeGraph, args []ArgGroup, _ []ValueRef) error {
	out := args[0].Refs[0]
	src := args[r.Group].Refs[r.Index]
	return g.VirtualResize(out, g.SizesOf(src))
}

func (r ResizeFrom) validate(args []ArgGroup) error {
	if len(args) == 0 || len(args[0].Refs) == 0 {
		return errors.New("resize from operand: node has no output")
	}
	if r.Group < 0 || r.Group >= len(args) || r.Index < 0 || r.Index >= len(args[r.Group].Refs) {
		return errors.Errorf("resize from operand (%d, %d): no such argument", r.Group, r.Index)
	}
	return nil
}

func (r ResizeFrom) String() string {
	return fmt.Sprintf("from(%d, %d)", r.Group, r.Index)
}

// CustomResize runs arbitrary resize logic. It must depend only on current
// value metadata so it can be re-run on every iteration.
type CustomResize func(g *ComputeGraph, args []ArgGroup, resizeArgs []ValueRef) error

// Resize calls the function.
func (f CustomResize) Resize(g *ComputeGraph, args []ArgGroup, resizeArgs []ValueRef) error {
	return f(g, args, resizeArgs)
}

func (f CustomResize) validate([]ArgGroup) error {
	if f == nil {
		return errors.New("custom resize: nil function")
	}
	return nil
}

func (CustomResize) String() string { return "custom" }

// PropagateResize runs the resize policy of every execute node, in order.
func (g *ComputeGraph) PropagateResize() error {
	for i, n := range g.executeNodes {
		r, ok := n.(Resizer)
		if !ok {
			continue
		}
		if err := r.TriggerResize(g); err != nil {
			return errors.Wrapf(err, "execute node %d (%s)", i, n.Kernel().Name)
		}
	}
	return nil
}

// ResizeInput virtually resizes a graph input and propagates the new shape
// through the execute queue.
func (g *ComputeGraph) ResizeInput(ref ValueRef, shape tensor.Shape) error {
	if err := g.VirtualResize(ref, shape); err != nil {
		return err
	}
	return g.PropagateResize()
}
