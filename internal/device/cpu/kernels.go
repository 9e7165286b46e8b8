package cpu

import (
	"github.com/pkg/errors"

	"github.com/born-ml/computegraph/internal/device"
	"github.com/born-ml/computegraph/internal/kernel"
	"github.com/born-ml/computegraph/internal/tensor"
)

// Kernel prepares a dispatch and returns the function run for each global
// invocation id. Preparation decodes parameter buffers once per dispatch.
type Kernel func(d *device.Dispatch) (Invocation, error)

// Invocation runs one global invocation. Invocations of a dispatch may run
// concurrently and must write disjoint output locations.
type Invocation func(x, y, z uint32) error

func builtinKernels() map[string]Kernel {
	return map[string]Kernel{
		kernel.NCHWToInt8x4Buffer: nchwToInt8x4Buffer,
		kernel.Int8x4BufferToNCHW: int8x4BufferToNCHW,
		kernel.WhereBufferFloat:   where,
		kernel.WhereBufferInt32:   where,
	}
}

func bufferAt(d *device.Dispatch, i int) (*Buffer, error) {
	if i >= len(d.Bindings) {
		return nil, errors.Wrapf(ErrInvalidDispatch, "missing binding %d", i)
	}
	buf, ok := d.Bindings[i].Buffer.(*Buffer)
	if !ok {
		return nil, errors.Wrapf(ErrForeignBuffer, "binding %d", i)
	}
	return buf, nil
}

func metaAt(d *device.Dispatch, i int) (device.Meta, error) {
	if i >= len(d.Params) {
		return device.Meta{}, errors.Wrapf(ErrInvalidDispatch, "missing param buffer %d", i)
	}
	return device.DecodeMeta(d.Params[i])
}

func packingOf(d *device.Dispatch) (tensor.Packing, error) {
	if len(d.SpecConstants) == 0 {
		return tensor.Packing{}, errors.Wrap(ErrInvalidDispatch, "missing layout spec constant")
	}
	p := tensor.DecodeLayoutHash(d.SpecConstants[0].Int())
	if p.Block != tensor.PackFactor || p.Dim >= tensor.MaxPackedDim {
		return tensor.Packing{}, errors.Wrapf(ErrInvalidDispatch, "layout hash %#x is not an int8x4 layout",
			d.SpecConstants[0].Value)
	}
	return p, nil
}

// nchwToInt8x4Buffer packs NCHW bytes into texels, one invocation per texel.
// Bindings: 0 packed tensor (write), 1 staging (read).
func nchwToInt8x4Buffer(d *device.Dispatch) (Invocation, error) {
	out, err := bufferAt(d, 0)
	if err != nil {
		return nil, err
	}
	in, err := bufferAt(d, 1)
	if err != nil {
		return nil, err
	}
	meta, err := metaAt(d, 0)
	if err != nil {
		return nil, err
	}
	p, err := packingOf(d)
	if err != nil {
		return nil, err
	}

	sizes := meta.SizesInt(tensor.MaxPackedDim)
	texelSizes := p.TexelSizes(sizes)
	nchwStrides := tensor.ContiguousStrides(sizes)
	numTexels := int(meta.PaddedNumel) / tensor.PackFactor

	return func(x, _, _ uint32) error {
		texel := int(x)
		if texel >= numTexels {
			return nil
		}
		tc := tensor.Unravel(texel, texelSizes)
		ec := make([]int, len(tc))
		var word uint32
		for lane := 0; lane < p.Block; lane++ {
			copy(ec, tc)
			ec[p.Dim] = tc[p.Dim]*p.Block + lane
			if ec[p.Dim] >= sizes[p.Dim] {
				continue
			}
			idx := 0
			for dim, c := range ec {
				idx += c * nchwStrides[dim]
			}
			b, err := in.byteAt(idx)
			if err != nil {
				return err
			}
			word |= uint32(b) << (8 * lane)
		}
		return out.store32(texel, word)
	}, nil
}

// int8x4BufferToNCHW unpacks texels into NCHW bytes, one invocation per
// output int32 of the staging buffer.
// Bindings: 0 staging (write), 1 packed tensor (read).
func int8x4BufferToNCHW(d *device.Dispatch) (Invocation, error) {
	out, err := bufferAt(d, 0)
	if err != nil {
		return nil, err
	}
	in, err := bufferAt(d, 1)
	if err != nil {
		return nil, err
	}
	meta, err := metaAt(d, 0)
	if err != nil {
		return nil, err
	}
	p, err := packingOf(d)
	if err != nil {
		return nil, err
	}

	sizes := meta.SizesInt(tensor.MaxPackedDim)
	texelStrides := meta.StridesInt(tensor.MaxPackedDim)
	numel := int(meta.Numel)
	numWords := (numel + 3) / 4

	return func(x, _, _ uint32) error {
		w := int(x)
		if w >= numWords {
			return nil
		}
		var word uint32
		for lane := 0; lane < 4; lane++ {
			idx := w*4 + lane
			if idx >= numel {
				break
			}
			texel, srcLane := p.Locate(tensor.Unravel(idx, sizes), texelStrides)
			v, err := in.load32(texel)
			if err != nil {
				return err
			}
			word |= (v >> (8 * srcLane) & 0xff) << (8 * lane)
		}
		return out.store32(w, word)
	}, nil
}

// where selects self or other per element by cond, broadcasting inputs along
// dims of size 1. Elements are 32-bit words of any dtype.
// Bindings: 0 out (write), 1 cond, 2 self, 3 other (read).
// Params: out, cond, self, other meta.
func where(d *device.Dispatch) (Invocation, error) {
	var bufs [4]*Buffer
	var metas [4]device.Meta
	for i := range bufs {
		var err error
		if bufs[i], err = bufferAt(d, i); err != nil {
			return nil, err
		}
		if metas[i], err = metaAt(d, i); err != nil {
			return nil, err
		}
	}
	outSizes := metas[0].SizesInt(device.MetaDims)
	numel := int(metas[0].Numel)

	broadcastIndex := func(m device.Meta, coord []int) int {
		idx := 0
		for dim, c := range coord {
			if m.Sizes[dim] > 1 {
				idx += c * int(m.Strides[dim])
			}
		}
		return idx
	}

	return func(x, _, _ uint32) error {
		i := int(x)
		if i >= numel {
			return nil
		}
		coord := tensor.Unravel(i, outSizes)
		cond, err := bufs[1].load32(broadcastIndex(metas[1], coord))
		if err != nil {
			return err
		}
		src := 3
		if cond != 0 {
			src = 2
		}
		v, err := bufs[src].load32(broadcastIndex(metas[src], coord))
		if err != nil {
			return err
		}
		return bufs[0].store32(i, v)
	}, nil
}
