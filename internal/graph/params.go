package graph

import (
	"github.com/born-ml/computegraph/internal/device"
	"github.com/born-ml/computegraph/internal/tensor"
)

type paramsKind int

const (
	paramsMeta paramsKind = iota
	paramsBufferMeta
)

// ParamsBuffer is a uniform parameter block bound to a dispatch.
//
// Meta blocks are views on a value: their bytes are encoded from the value's
// metadata each time the node is dispatched, so virtual resizes are visible to
// the kernel.
type ParamsBuffer struct {
	kind paramsKind
	ref  ValueRef
}

// MetaParams returns the metadata block of ref with element strides.
func (g *ComputeGraph) MetaParams(ref ValueRef) ParamsBuffer {
	return ParamsBuffer{kind: paramsMeta, ref: ref}
}

// BufferMetaParams returns the metadata block of ref with strides of its
// buffer layout: texel strides for packed layouts, element strides otherwise.
func (g *ComputeGraph) BufferMetaParams(ref ValueRef) ParamsBuffer {
	return ParamsBuffer{kind: paramsBufferMeta, ref: ref}
}

// Ref returns the value the block describes.
func (p ParamsBuffer) Ref() ValueRef {
	return p.ref
}

func (g *ComputeGraph) encodeParams(p ParamsBuffer) []byte {
	return g.meta(p.ref, p.kind == paramsBufferMeta).Encode()
}

// meta builds the device metadata of ref from its current shape.
func (g *ComputeGraph) meta(ref ValueRef, bufferStrides bool) device.Meta {
	v := g.get(ref)
	var m device.Meta

	sizes := v.shape.WHCN(device.MetaDims)
	var strides []int
	packing := v.layout.Packing()
	if bufferStrides && packing.Block > 1 {
		strides = packing.TexelStrides(v.shape.WHCN(tensor.MaxPackedDim))
	} else {
		strides = tensor.ContiguousStrides(sizes)
	}

	for i := range m.Sizes {
		m.Sizes[i] = uint32(sizes[i])
		if i < len(strides) {
			m.Strides[i] = uint32(strides[i])
		}
	}
	m.NDim = uint32(len(v.shape))
	m.Numel = uint32(v.shape.NumElements())
	m.PaddedNumel = uint32(packing.PaddedNumel(v.shape))
	return m
}

func (g *ComputeGraph) checkParams(params []ParamsBuffer) error {
	for _, p := range params {
		if err := g.CheckRef(p.ref); err != nil {
			return err
		}
	}
	return nil
}
