package graph

import (
	"github.com/pkg/errors"

	"github.com/born-ml/computegraph/internal/device"
	"github.com/born-ml/computegraph/internal/kernel"
)

// ArgGroup binds one or more values with a shared access mode.
type ArgGroup struct {
	Refs   []ValueRef
	Access device.AccessMode
}

// Arg builds an ArgGroup.
func Arg(access device.AccessMode, refs ...ValueRef) ArgGroup {
	return ArgGroup{Refs: refs, Access: access}
}

func cloneArgs(args []ArgGroup) []ArgGroup {
	out := make([]ArgGroup, len(args))
	for i, a := range args {
		out[i] = ArgGroup{Refs: append([]ValueRef(nil), a.Refs...), Access: a.Access}
	}
	return out
}

// Node is a unit of device work held in one of the graph's queues.
type Node interface {
	// Kernel returns the kernel the node dispatches.
	Kernel() *kernel.Info
	// Args returns the node's bindings in binding order.
	Args() []ArgGroup
	// Encode resolves the node into a dispatch against the graph's current
	// metadata and buffers.
	Encode(g *ComputeGraph) (*device.Dispatch, error)
}

// Resizer is implemented by nodes that re-derive output shapes before each
// dispatch.
type Resizer interface {
	TriggerResize(g *ComputeGraph) error
}

// DispatchConfig holds everything a dynamic dispatch node is built from.
type DispatchConfig struct {
	Kernel string
	// Sizing computes the workgroup extents. Nil means DefaultSizing.
	Sizing WorkgroupSizer
	// Args lists bindings in binding order; args[0] holds the outputs.
	Args          []ArgGroup
	Params        []ParamsBuffer
	PushConstants []ParamsBuffer
	SpecConstants []device.SpecVar
	// ResizeArgs are extra values the resize policy reads.
	ResizeArgs []ValueRef
	// Resize is the resize policy. Nil means NoResize.
	Resize ResizePolicy
}

// DynamicDispatchNode is an execute-queue node whose output shape and
// workgroup extents are recomputed on every dispatch.
type DynamicDispatchNode struct {
	kernel        *kernel.Info
	sizing        WorkgroupSizer
	args          []ArgGroup
	params        []ParamsBuffer
	pushConstants []ParamsBuffer
	specConstants []device.SpecVar
	resizeArgs    []ValueRef
	resize        ResizePolicy
}

// NewDynamicDispatchNode validates cfg against g and builds a node. The node
// is not added to any queue.
func NewDynamicDispatchNode(g *ComputeGraph, cfg DispatchConfig) (*DynamicDispatchNode, error) {
	k, err := g.LookupKernel(cfg.Kernel)
	if err != nil {
		return nil, err
	}
	if len(cfg.Args) == 0 || len(cfg.Args[0].Refs) == 0 {
		return nil, errors.Errorf("dispatch node %q: no output binding", cfg.Kernel)
	}
	if err := g.checkArgs(cfg.Args); err != nil {
		return nil, errors.Wrapf(err, "dispatch node %q", cfg.Kernel)
	}
	if err := g.checkParams(cfg.Params); err != nil {
		return nil, errors.Wrapf(err, "dispatch node %q: params", cfg.Kernel)
	}
	if err := g.checkParams(cfg.PushConstants); err != nil {
		return nil, errors.Wrapf(err, "dispatch node %q: push constants", cfg.Kernel)
	}
	for _, ref := range cfg.ResizeArgs {
		if err := g.CheckRef(ref); err != nil {
			return nil, errors.Wrapf(err, "dispatch node %q: resize args", cfg.Kernel)
		}
	}

	sizing := cfg.Sizing
	if sizing == nil {
		sizing = DefaultSizing()
	}
	resize := cfg.Resize
	if resize == nil {
		resize = NoResize{}
	}
	if err := resize.validate(cfg.Args); err != nil {
		return nil, errors.Wrapf(err, "dispatch node %q", cfg.Kernel)
	}

	return &DynamicDispatchNode{
		kernel:        k,
		sizing:        sizing,
		args:          cloneArgs(cfg.Args),
		params:        append([]ParamsBuffer(nil), cfg.Params...),
		pushConstants: append([]ParamsBuffer(nil), cfg.PushConstants...),
		specConstants: append([]device.SpecVar(nil), cfg.SpecConstants...),
		resizeArgs:    append([]ValueRef(nil), cfg.ResizeArgs...),
		resize:        resize,
	}, nil
}

// Kernel implements Node.
func (n *DynamicDispatchNode) Kernel() *kernel.Info {
	return n.kernel
}

// Args implements Node.
func (n *DynamicDispatchNode) Args() []ArgGroup {
	return n.args
}

// ResizePolicy returns the node's resize policy.
func (n *DynamicDispatchNode) ResizePolicy() ResizePolicy {
	return n.resize
}

// SpecConstants returns the node's specialization constants.
func (n *DynamicDispatchNode) SpecConstants() []device.SpecVar {
	return n.specConstants
}

// Params returns the node's parameter buffers.
func (n *DynamicDispatchNode) Params() []ParamsBuffer {
	return n.params
}

// TriggerResize runs the node's resize policy.
func (n *DynamicDispatchNode) TriggerResize(g *ComputeGraph) error {
	return n.resize.Resize(g, n.args, n.resizeArgs)
}

// GlobalWGSize returns the global extent for the current metadata.
func (n *DynamicDispatchNode) GlobalWGSize(g *ComputeGraph) device.Extent {
	return n.sizing.GlobalExtent(g, n.kernel, n.args, n.resizeArgs)
}

// Encode implements Node. Extents are recomputed from current metadata.
func (n *DynamicDispatchNode) Encode(g *ComputeGraph) (*device.Dispatch, error) {
	global := n.sizing.GlobalExtent(g, n.kernel, n.args, n.resizeArgs)
	local := n.sizing.LocalExtent(g, n.kernel, global, n.args, n.resizeArgs)
	return g.encodeDispatch(n.kernel, global, local, n.args, n.params, n.pushConstants, n.specConstants)
}

// PrepackNode loads constant data into a device tensor once, before the
// first iteration. Its extents are fixed when it is built.
type PrepackNode struct {
	kernel        *kernel.Info
	sizing        FixedSizing
	tensorData    ValueRef
	tensor        ValueRef
	params        []ParamsBuffer
	specConstants []device.SpecVar
}

// PrepackConfig holds everything a prepack node is built from.
type PrepackConfig struct {
	Kernel        string
	Global        device.Extent
	Local         device.Extent
	TensorData    ValueRef // constant or staging value read by the kernel
	Tensor        ValueRef // tensor written by the kernel
	Params        []ParamsBuffer
	SpecConstants []device.SpecVar
}

// NewPrepackNode validates cfg against g and builds a node. The node is not
// added to any queue.
func NewPrepackNode(g *ComputeGraph, cfg PrepackConfig) (*PrepackNode, error) {
	k, err := g.LookupKernel(cfg.Kernel)
	if err != nil {
		return nil, err
	}
	if err := g.CheckRef(cfg.TensorData); err != nil {
		return nil, errors.Wrapf(err, "prepack node %q: tensor data", cfg.Kernel)
	}
	if err := g.CheckRef(cfg.Tensor); err != nil {
		return nil, errors.Wrapf(err, "prepack node %q: tensor", cfg.Kernel)
	}
	if g.IsTensor(cfg.TensorData) {
		return nil, errors.Errorf("prepack node %q: tensor data %d must be a constant or staging value",
			cfg.Kernel, cfg.TensorData)
	}
	if err := g.checkParams(cfg.Params); err != nil {
		return nil, errors.Wrapf(err, "prepack node %q: params", cfg.Kernel)
	}
	return &PrepackNode{
		kernel:        k,
		sizing:        FixedSizing{Global: cfg.Global, Local: cfg.Local},
		tensorData:    cfg.TensorData,
		tensor:        cfg.Tensor,
		params:        append([]ParamsBuffer(nil), cfg.Params...),
		specConstants: append([]device.SpecVar(nil), cfg.SpecConstants...),
	}, nil
}

// Kernel implements Node.
func (n *PrepackNode) Kernel() *kernel.Info {
	return n.kernel
}

// Args implements Node: the tensor is written, the tensor data read.
func (n *PrepackNode) Args() []ArgGroup {
	return []ArgGroup{
		Arg(device.Write, n.tensor),
		Arg(device.Read, n.tensorData),
	}
}

// GlobalWGSize returns the fixed global extent.
func (n *PrepackNode) GlobalWGSize() device.Extent {
	return n.sizing.Global
}

// LocalWGSize returns the fixed local extent.
func (n *PrepackNode) LocalWGSize() device.Extent {
	return n.sizing.Local
}

// SpecConstants returns the node's specialization constants.
func (n *PrepackNode) SpecConstants() []device.SpecVar {
	return n.specConstants
}

// Encode implements Node.
func (n *PrepackNode) Encode(g *ComputeGraph) (*device.Dispatch, error) {
	args := n.Args()
	global := n.sizing.GlobalExtent(g, n.kernel, args, nil)
	local := n.sizing.LocalExtent(g, n.kernel, global, args, nil)
	return g.encodeDispatch(n.kernel, global, local, args, n.params, nil, n.specConstants)
}

// checkArgs validates the references of every binding.
func (g *ComputeGraph) checkArgs(args []ArgGroup) error {
	for i, a := range args {
		if len(a.Refs) == 0 {
			return errors.Errorf("binding group %d is empty", i)
		}
		for _, ref := range a.Refs {
			if err := g.CheckRef(ref); err != nil {
				return errors.Wrapf(err, "binding group %d", i)
			}
			if g.IsConstant(ref) {
				return errors.Errorf("binding group %d: constant %d can only be read by prepack nodes", i, ref)
			}
		}
	}
	return nil
}

// encodeDispatch resolves bindings to buffers and encodes parameter blocks.
func (g *ComputeGraph) encodeDispatch(k *kernel.Info, global, local device.Extent, args []ArgGroup,
	params, push []ParamsBuffer, spec []device.SpecVar) (*device.Dispatch, error) {
	if g.dev == nil {
		return nil, ErrNotPrepared
	}
	d := &device.Dispatch{
		Kernel:        k,
		Global:        global,
		Local:         local,
		SpecConstants: spec,
	}
	for _, a := range args {
		for _, ref := range a.Refs {
			buf := g.values[ref].buffer
			if buf == nil {
				return nil, errors.Errorf("value %d has no device buffer", ref)
			}
			d.Bindings = append(d.Bindings, device.Binding{Value: int(ref), Buffer: buf, Access: a.Access})
		}
	}
	for _, p := range params {
		d.Params = append(d.Params, g.encodeParams(p))
	}
	for _, p := range push {
		d.PushConstants = append(d.PushConstants, g.encodeParams(p)...)
	}
	return d, nil
}
