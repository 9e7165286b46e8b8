package ops

import (
	"github.com/born-ml/computegraph/internal/device"
	"github.com/born-ml/computegraph/internal/graph"
	"github.com/born-ml/computegraph/internal/tensor"
)

// whereResize makes the output follow the shape of self (args[1].Refs[1]).
var whereResize = graph.ResizeFrom{Group: 1, Index: 1}

// AddWhereNode selects self where cond is true and other elsewhere,
// broadcasting cond and other into the shape of self. The output takes the
// shape of self on every iteration, whatever its previous shape was.
func AddWhereNode(g *graph.ComputeGraph, cond, self, other, out graph.ValueRef) (*graph.DynamicDispatchNode, error) {
	const op = "where"
	for _, ref := range []graph.ValueRef{cond, self, other, out} {
		if err := g.CheckRef(ref); err != nil {
			return nil, err
		}
		if err := checkCond(g, g.IsTensor(ref), op, ref, "is tensor",
			"operands must be device tensors"); err != nil {
			return nil, err
		}
		if err := checkCond(g, !g.LayoutOf(ref).IsPacked(), op, ref, "layout is unpacked",
			"got %s", g.LayoutOf(ref)); err != nil {
			return nil, err
		}
		if err := checkCond(g, g.DimOf(ref) <= device.MetaDims, op, ref, "dim <= 8",
			"got %d dims", g.DimOf(ref)); err != nil {
			return nil, err
		}
	}

	if err := checkCond(g, g.DTypeOf(cond) == tensor.Bool, op, cond, "cond dtype == bool",
		"got %s", g.DTypeOf(cond)); err != nil {
		return nil, err
	}
	dtype := g.DTypeOf(out)
	for _, ref := range []graph.ValueRef{self, other} {
		if err := checkCond(g, g.DTypeOf(ref) == dtype, op, ref, "dtype == out dtype",
			"got %s, out is %s", g.DTypeOf(ref), dtype); err != nil {
			return nil, err
		}
	}
	storage := g.StorageTypeOf(out)
	for _, ref := range []graph.ValueRef{cond, self, other} {
		if err := checkCond(g, g.StorageTypeOf(ref) == storage, op, ref, "storage == out storage",
			"got %s, out is %s", g.StorageTypeOf(ref), storage); err != nil {
			return nil, err
		}
	}

	selfShape := g.SizesOf(self)
	for _, ref := range []graph.ValueRef{cond, other} {
		shape, _, berr := tensor.BroadcastShapes(selfShape, g.SizesOf(ref))
		if err := checkCond(g, berr == nil && shape.Equal(selfShape), op, ref, "broadcasts to self",
			"shape %v does not broadcast to %v", g.SizesOf(ref), selfShape); err != nil {
			return nil, err
		}
	}

	node, err := graph.NewDynamicDispatchNode(g, graph.DispatchConfig{
		Kernel: AddDTypeSuffix(AddStorageTypeSuffix("where", storage), dtype),
		Sizing: graph.DefaultSizing(),
		Args: []graph.ArgGroup{
			graph.Arg(device.Write, out),
			graph.Arg(device.Read, cond, self, other),
		},
		Params: []graph.ParamsBuffer{
			g.MetaParams(out),
			g.MetaParams(cond),
			g.MetaParams(self),
			g.MetaParams(other),
		},
		Resize: whereResize,
	})
	if err != nil {
		return nil, err
	}
	g.AppendExecuteNode(node)
	return node, nil
}
