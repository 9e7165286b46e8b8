package graph

import (
	"github.com/born-ml/computegraph/internal/device"
	"github.com/born-ml/computegraph/internal/kernel"
	"github.com/born-ml/computegraph/internal/tensor"
)

// WorkgroupSizer computes the workgroup extents of a dynamic node. Both
// methods must be pure functions of current value metadata; they are called
// on every dispatch, after the node's resize policy.
type WorkgroupSizer interface {
	GlobalExtent(g *ComputeGraph, k *kernel.Info, args []ArgGroup, resizeArgs []ValueRef) device.Extent
	LocalExtent(g *ComputeGraph, k *kernel.Info, global device.Extent, args []ArgGroup, resizeArgs []ValueRef) device.Extent
}

// GlobalFunc computes a global workgroup extent.
type GlobalFunc func(g *ComputeGraph, k *kernel.Info, args []ArgGroup, resizeArgs []ValueRef) device.Extent

// LocalFunc computes a local workgroup extent from the global one.
type LocalFunc func(g *ComputeGraph, k *kernel.Info, global device.Extent, args []ArgGroup, resizeArgs []ValueRef) device.Extent

// Sizing combines a global and a local function into a WorkgroupSizer.
// Nil fields fall back to DefaultGlobalWGSize and DefaultLocalWGSize.
type Sizing struct {
	Global GlobalFunc
	Local  LocalFunc
}

// DefaultSizing sizes by output volume.
func DefaultSizing() Sizing {
	return Sizing{Global: DefaultGlobalWGSize, Local: DefaultLocalWGSize}
}

// GlobalExtent implements WorkgroupSizer.
func (s Sizing) GlobalExtent(g *ComputeGraph, k *kernel.Info, args []ArgGroup, resizeArgs []ValueRef) device.Extent {
	if s.Global == nil {
		return DefaultGlobalWGSize(g, k, args, resizeArgs)
	}
	return s.Global(g, k, args, resizeArgs)
}

// LocalExtent implements WorkgroupSizer.
func (s Sizing) LocalExtent(g *ComputeGraph, k *kernel.Info, global device.Extent, args []ArgGroup, resizeArgs []ValueRef) device.Extent {
	if s.Local == nil {
		return DefaultLocalWGSize(g, k, global, args, resizeArgs)
	}
	return s.Local(g, k, global, args, resizeArgs)
}

// FixedSizing always returns the same extents. Prepack nodes are sized with
// it when they are built.
type FixedSizing struct {
	Global device.Extent
	Local  device.Extent
}

// GlobalExtent implements WorkgroupSizer.
func (s FixedSizing) GlobalExtent(*ComputeGraph, *kernel.Info, []ArgGroup, []ValueRef) device.Extent {
	return s.Global
}

// LocalExtent implements WorkgroupSizer.
func (s FixedSizing) LocalExtent(*ComputeGraph, *kernel.Info, device.Extent, []ArgGroup, []ValueRef) device.Extent {
	return s.Local
}

// DefaultGlobalWGSize returns one invocation per element of the node's first
// output for buffer storage, and the texel extents for texture storage.
func DefaultGlobalWGSize(g *ComputeGraph, _ *kernel.Info, args []ArgGroup, _ []ValueRef) device.Extent {
	out := args[0].Refs[0]
	if g.IsStaging(out) || g.StorageTypeOf(out) == tensor.Buffer {
		return device.Ext(uint32(g.NumelOf(out)), 1, 1)
	}
	return g.LogicalLimits(out)
}

// DefaultLocalWGSize derives the local extent from the global one.
func DefaultLocalWGSize(g *ComputeGraph, _ *kernel.Info, global device.Extent, _ []ArgGroup, _ []ValueRef) device.Extent {
	return g.CreateLocalWGSize(global)
}

// LogicalLimits returns the texel extents of a texture-backed value:
// width, height and channel texels times batch.
func (g *ComputeGraph) LogicalLimits(ref ValueRef) device.Extent {
	whcn := g.get(ref).shape.WHCN(tensor.MaxPackedDim)
	channelTexels := (whcn[tensor.DimC] + tensor.PackFactor - 1) / tensor.PackFactor
	return device.Ext(
		uint32(whcn[tensor.DimW]),
		uint32(whcn[tensor.DimH]),
		uint32(channelTexels*whcn[tensor.DimN]),
	)
}

// CreateLocalWGSize picks a local extent for global, honouring the configured
// override and the graph's device limits.
func (g *ComputeGraph) CreateLocalWGSize(global device.Extent) device.Extent {
	if g.cfg.EnableLocalWGSizeOverride {
		return g.cfg.LocalWGSizeOverride
	}

	local := device.Ext(4, 4, 4)
	if global.Z == 1 {
		switch {
		case global.Y <= 1:
			local = device.Ext(64, 1, 1)
		case global.Y < 8:
			local = device.Ext(16, global.Y, 1)
		default:
			local = device.Ext(8, 8, 1)
		}
	}
	return clampLocal(local, g.cfg.Limits)
}

// clampLocal shrinks local until it fits the limits, halving the largest axis
// first.
func clampLocal(local device.Extent, limits device.Limits) device.Extent {
	axes := [3]uint32{local.X, local.Y, local.Z}
	maxAxes := [3]uint32{limits.MaxWorkgroupSize.X, limits.MaxWorkgroupSize.Y, limits.MaxWorkgroupSize.Z}
	for i := range axes {
		if axes[i] == 0 {
			axes[i] = 1
		}
		if maxAxes[i] > 0 && axes[i] > maxAxes[i] {
			axes[i] = maxAxes[i]
		}
	}
	if limit := uint64(limits.MaxInvocationsPerWorkgroup); limit > 0 {
		for uint64(axes[0])*uint64(axes[1])*uint64(axes[2]) > limit {
			largest := 0
			for i := 1; i < 3; i++ {
				if axes[i] > axes[largest] {
					largest = i
				}
			}
			axes[largest] = max(axes[largest]/2, 1)
		}
	}
	return device.Ext(axes[0], axes[1], axes[2])
}
