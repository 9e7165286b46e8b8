package device

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// MetaDims is the number of dims a Meta block can describe.
const MetaDims = 8

// MetaSize is the encoded size of a Meta block (16-byte aligned).
const MetaSize = 4 * (2*MetaDims + 4)

// Meta is the per-tensor metadata uniform kernels use for addressing.
//
// Sizes and strides are in WHCN order (innermost first); unused dims have size
// 1. For packed layouts Strides are measured in texels.
type Meta struct {
	Sizes       [MetaDims]uint32
	Strides     [MetaDims]uint32
	NDim        uint32
	Numel       uint32
	PaddedNumel uint32
}

// Encode serializes m into its little-endian uniform layout.
func (m Meta) Encode() []byte {
	buf := make([]byte, MetaSize)
	off := 0
	put := func(v uint32) {
		binary.LittleEndian.PutUint32(buf[off:], v)
		off += 4
	}
	for _, v := range m.Sizes {
		put(v)
	}
	for _, v := range m.Strides {
		put(v)
	}
	put(m.NDim)
	put(m.Numel)
	put(m.PaddedNumel)
	put(0)
	return buf
}

// DecodeMeta parses a buffer written by Meta.Encode.
func DecodeMeta(buf []byte) (Meta, error) {
	var m Meta
	if len(buf) < MetaSize {
		return m, errors.Errorf("meta buffer too small: %d bytes, want %d", len(buf), MetaSize)
	}
	off := 0
	get := func() uint32 {
		v := binary.LittleEndian.Uint32(buf[off:])
		off += 4
		return v
	}
	for i := range m.Sizes {
		m.Sizes[i] = get()
	}
	for i := range m.Strides {
		m.Strides[i] = get()
	}
	m.NDim = get()
	m.Numel = get()
	m.PaddedNumel = get()
	return m, nil
}

// SizesInt returns the first n sizes as ints.
func (m Meta) SizesInt(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = int(m.Sizes[i])
	}
	return out
}

// StridesInt returns the first n strides as ints.
func (m Meta) StridesInt(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = int(m.Strides[i])
	}
	return out
}
