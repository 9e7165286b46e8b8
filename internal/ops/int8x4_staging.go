package ops

import (
	"github.com/pkg/errors"

	"github.com/born-ml/computegraph/internal/device"
	"github.com/born-ml/computegraph/internal/graph"
	"github.com/born-ml/computegraph/internal/kernel"
	"github.com/born-ml/computegraph/internal/tensor"
)

// checkInt8x4Tensor validates the packed tensor of the staging family.
func checkInt8x4Tensor(g *graph.ComputeGraph, op string, ref graph.ValueRef) error {
	if err := g.CheckRef(ref); err != nil {
		return err
	}
	if err := checkCond(g, g.IsTensor(ref), op, ref, "is tensor",
		"value is not a device tensor"); err != nil {
		return err
	}
	if err := checkCond(g, g.DTypeOf(ref) == tensor.Int8x4, op, ref, "dtype == int8x4",
		"got %s", g.DTypeOf(ref)); err != nil {
		return err
	}
	// TODO: lift once the staging kernels address more than 4 dims.
	if err := checkCond(g, g.DimOf(ref) <= tensor.MaxPackedDim, op, ref, "dim <= 4",
		"got %d dims (shape %v)", g.DimOf(ref), g.SizesOf(ref)); err != nil {
		return err
	}
	return checkCond(g, g.StorageTypeOf(ref) == tensor.Buffer, op, ref, "storage == buffer",
		"got %s", g.StorageTypeOf(ref))
}

// checkInt8Staging validates the unpacked side of a staging conversion: it
// must hold one byte per element and at least numel elements.
func checkInt8Staging(g *graph.ComputeGraph, op string, ref graph.ValueRef, numel int) error {
	if err := g.CheckRef(ref); err != nil {
		return err
	}
	if err := checkCond(g, !g.IsTensor(ref), op, ref, "is staging",
		"value is a device tensor"); err != nil {
		return err
	}
	dt := g.DTypeOf(ref)
	if err := checkCond(g, dt == tensor.Int8 || dt == tensor.Uint8, op, ref, "dtype is 8-bit",
		"got %s", dt); err != nil {
		return err
	}
	return checkCond(g, g.CapacityOf(ref) >= numel, op, ref, "capacity >= tensor numel",
		"holds %d elements, tensor has %d", g.CapacityOf(ref), numel)
}

// stagingCapacity re-checks, before every dispatch, that the staging value
// still holds the packed tensor after virtual resizes of either side.
func stagingCapacity(op string, t, staging graph.ValueRef) graph.CustomResize {
	return func(g *graph.ComputeGraph, _ []graph.ArgGroup, _ []graph.ValueRef) error {
		if c, n := g.CapacityOf(staging), g.NumelOf(t); c < n {
			return errors.Wrapf(graph.ErrCapacityExceeded, "%s: staging value %d holds %d elements, tensor %d has %d",
				op, staging, c, t, n)
		}
		return nil
	}
}

// int8x4TexelCount is the number of texels of a packed tensor.
func int8x4TexelCount(g *graph.ComputeGraph, ref graph.ValueRef) uint32 {
	return uint32(g.PaddedNumelOf(ref) / tensor.PackFactor)
}

// AddPrepackInt8x4BufferNode loads constant int8 data, in NCHW order, into an
// int8x4 tensor before the first iteration. One invocation per texel.
func AddPrepackInt8x4BufferNode(g *graph.ComputeGraph, tensorData, t graph.ValueRef) (*graph.PrepackNode, error) {
	const op = "prepack_int8x4_buffer"
	if err := checkInt8x4Tensor(g, op, t); err != nil {
		return nil, err
	}
	if err := g.CheckRef(tensorData); err != nil {
		return nil, err
	}
	if err := checkCond(g, g.IsConstant(tensorData), op, tensorData, "is constant",
		"tensor data must be a constant"); err != nil {
		return nil, err
	}
	if err := checkCond(g, g.SizesOf(tensorData).Equal(g.SizesOf(t)), op, tensorData, "shape == tensor shape",
		"data shape %v, tensor shape %v", g.SizesOf(tensorData), g.SizesOf(t)); err != nil {
		return nil, err
	}
	if err := checkInt8Staging(g, op, tensorData, g.NumelOf(t)); err != nil {
		return nil, err
	}

	global := device.Ext(int8x4TexelCount(g, t), 1, 1)
	node, err := graph.NewPrepackNode(g, graph.PrepackConfig{
		Kernel:        kernel.NCHWToInt8x4Buffer,
		Global:        global,
		Local:         g.CreateLocalWGSize(global),
		TensorData:    tensorData,
		Tensor:        t,
		Params:        []graph.ParamsBuffer{g.BufferMetaParams(t)},
		SpecConstants: []device.SpecVar{device.IntSpec(g.HashedLayoutOf(t))},
	})
	if err != nil {
		return nil, err
	}
	g.AppendPrepackNode(node)
	return node, nil
}

// StagingToInt8x4BufferGlobalWGSize returns one invocation per texel of the
// output tensor.
func StagingToInt8x4BufferGlobalWGSize(g *graph.ComputeGraph, _ *kernel.Info, args []graph.ArgGroup, _ []graph.ValueRef) device.Extent {
	out := args[0].Refs[0]
	return device.Ext(int8x4TexelCount(g, out), 1, 1)
}

// AddStagingToInt8x4BufferNode packs an NCHW int8 staging buffer into an
// int8x4 tensor on every iteration.
func AddStagingToInt8x4BufferNode(g *graph.ComputeGraph, inStaging, t graph.ValueRef) (*graph.DynamicDispatchNode, error) {
	const op = "staging_to_int8x4_buffer"
	if err := checkInt8x4Tensor(g, op, t); err != nil {
		return nil, err
	}
	if err := checkInt8Staging(g, op, inStaging, g.NumelOf(t)); err != nil {
		return nil, err
	}

	node, err := graph.NewDynamicDispatchNode(g, graph.DispatchConfig{
		Kernel: kernel.NCHWToInt8x4Buffer,
		Sizing: graph.Sizing{
			Global: StagingToInt8x4BufferGlobalWGSize,
			Local:  graph.DefaultLocalWGSize,
		},
		Args: []graph.ArgGroup{
			graph.Arg(device.Write, t),
			graph.Arg(device.Read, inStaging),
		},
		Params:        []graph.ParamsBuffer{g.BufferMetaParams(t)},
		SpecConstants: []device.SpecVar{device.IntSpec(g.HashedLayoutOf(t))},
		Resize:        stagingCapacity(op, t, inStaging),
	})
	if err != nil {
		return nil, err
	}
	g.AppendExecuteNode(node)
	return node, nil
}

// Int8x4BufferToStagingGlobalWGSize returns one invocation per int32 of the
// NCHW staging output: ceil(numel / 4) of the input tensor. The staging side
// is sized by the logical element count, not the padded one.
func Int8x4BufferToStagingGlobalWGSize(g *graph.ComputeGraph, _ *kernel.Info, args []graph.ArgGroup, _ []graph.ValueRef) device.Extent {
	in := args[1].Refs[0]
	numel := g.NumelOf(in)
	return device.Ext(uint32((numel+3)/4), 1, 1)
}

// AddInt8x4BufferToStagingNode unpacks an int8x4 tensor into an NCHW int8
// staging buffer on every iteration.
func AddInt8x4BufferToStagingNode(g *graph.ComputeGraph, t, staging graph.ValueRef) (*graph.DynamicDispatchNode, error) {
	const op = "int8x4_buffer_to_staging"
	if err := checkInt8x4Tensor(g, op, t); err != nil {
		return nil, err
	}
	if err := checkInt8Staging(g, op, staging, g.NumelOf(t)); err != nil {
		return nil, err
	}
	if err := checkCond(g, g.IsStaging(staging), op, staging, "is staging",
		"output must be a staging buffer"); err != nil {
		return nil, err
	}

	node, err := graph.NewDynamicDispatchNode(g, graph.DispatchConfig{
		Kernel: kernel.Int8x4BufferToNCHW,
		Sizing: graph.Sizing{
			Global: Int8x4BufferToStagingGlobalWGSize,
			Local:  graph.DefaultLocalWGSize,
		},
		Args: []graph.ArgGroup{
			graph.Arg(device.Write, staging),
			graph.Arg(device.Read, t),
		},
		Params:        []graph.ParamsBuffer{g.BufferMetaParams(t)},
		SpecConstants: []device.SpecVar{device.IntSpec(g.HashedLayoutOf(t))},
		Resize:        stagingCapacity(op, t, staging),
	})
	if err != nil {
		return nil, err
	}
	g.AppendExecuteNode(node)
	return node, nil
}
