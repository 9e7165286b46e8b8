package tensor

import "fmt"

// PackFactor is the number of narrow elements stored in one 32-bit texel.
const PackFactor = 4

// MaxPackedDim is the highest dimensionality supported by packed layouts.
const MaxPackedDim = 4

// WHCN dimension indices, innermost first.
const (
	DimW = iota
	DimH
	DimC
	DimN
)

// StorageType selects how a tensor is backed on the device.
type StorageType int

// Supported storage types.
const (
	Buffer StorageType = iota
	Texture3D
)

// String returns a human-readable name for the storage type.
func (st StorageType) String() string {
	switch st {
	case Buffer:
		return "buffer"
	case Texture3D:
		return "texture3d"
	default:
		return "unknown"
	}
}

// KernelSuffix returns the suffix kernels use to name their storage variant.
func (st StorageType) KernelSuffix() string {
	return st.String()
}

// ParseStorageType parses the names produced by StorageType.String.
func ParseStorageType(name string) (StorageType, error) {
	switch name {
	case "buffer", "":
		return Buffer, nil
	case "texture3d":
		return Texture3D, nil
	default:
		return Buffer, fmt.Errorf("unknown storage type %q", name)
	}
}

// MemoryLayout describes how elements are arranged in device memory.
type MemoryLayout int

// Supported memory layouts.
const (
	// Contiguous is the plain row-major layout, one element per slot.
	Contiguous MemoryLayout = iota
	// PackedInt8x4W packs four consecutive width elements into one texel.
	PackedInt8x4W
	// PackedInt8x4H packs four consecutive height elements into one texel.
	PackedInt8x4H
	// PackedInt8x4C packs four consecutive channels into one texel.
	PackedInt8x4C
)

// String returns a human-readable name for the layout.
func (l MemoryLayout) String() string {
	switch l {
	case Contiguous:
		return "contiguous"
	case PackedInt8x4W:
		return "packed_int8x4_w"
	case PackedInt8x4H:
		return "packed_int8x4_h"
	case PackedInt8x4C:
		return "packed_int8x4_c"
	default:
		return "unknown"
	}
}

// ParseMemoryLayout accepts either the full layout name or the packed dim
// letter ("w", "h", "c").
func ParseMemoryLayout(name string) (MemoryLayout, error) {
	switch name {
	case "contiguous", "":
		return Contiguous, nil
	case "packed_int8x4_w", "w":
		return PackedInt8x4W, nil
	case "packed_int8x4_h", "h":
		return PackedInt8x4H, nil
	case "packed_int8x4_c", "c":
		return PackedInt8x4C, nil
	default:
		return Contiguous, fmt.Errorf("unknown memory layout %q", name)
	}
}

// Packing returns the packed dimension and block size of the layout.
func (l MemoryLayout) Packing() Packing {
	switch l {
	case PackedInt8x4W:
		return Packing{Dim: DimW, Block: PackFactor}
	case PackedInt8x4H:
		return Packing{Dim: DimH, Block: PackFactor}
	case PackedInt8x4C:
		return Packing{Dim: DimC, Block: PackFactor}
	default:
		return Packing{Dim: DimW, Block: 1}
	}
}

// IsPacked reports whether the layout packs several elements per texel.
func (l MemoryLayout) IsPacked() bool {
	return l.Packing().Block > 1
}

// Hash returns the layout hash passed to kernels as a specialization constant.
//
// Bits 0-15 hold the WHCN dim order (one nibble per dim), bits 16-19 the
// packed dim and bits 20-23 the block size.
func (l MemoryLayout) Hash() int32 {
	p := l.Packing()
	const dimOrder = 0x3210
	return int32(dimOrder | p.Dim<<16 | p.Block<<20)
}

// DecodeLayoutHash recovers the packing of a layout hash.
func DecodeLayoutHash(h int32) Packing {
	return Packing{
		Dim:   int(h>>16) & 0xf,
		Block: int(h>>20) & 0xf,
	}
}

// Packing is the packed dimension (WHCN index) and the number of elements of
// that dimension sharing one texel.
type Packing struct {
	Dim   int
	Block int
}

// PaddedSizes returns WHCN sizes with the packed dim rounded up to a multiple
// of the block size.
func (p Packing) PaddedSizes(whcn []int) []int {
	out := make([]int, len(whcn))
	copy(out, whcn)
	if p.Block > 1 && p.Dim < len(out) {
		out[p.Dim] = alignUp(out[p.Dim], p.Block)
	}
	return out
}

// PaddedNumel returns the element count of the padded sizes.
func (p Packing) PaddedNumel(s Shape) int {
	if p.Block <= 1 {
		return s.NumElements()
	}
	n := 1
	for _, d := range p.PaddedSizes(s.WHCN(MaxPackedDim)) {
		n *= d
	}
	return n
}

// TexelSizes returns the WHCN extents measured in texels.
func (p Packing) TexelSizes(whcn []int) []int {
	out := p.PaddedSizes(whcn)
	if p.Block > 1 && p.Dim < len(out) {
		out[p.Dim] /= p.Block
	}
	return out
}

// TexelStrides returns WHCN strides in texels for a packed buffer.
func (p Packing) TexelStrides(whcn []int) []int {
	return contiguousStrides(p.TexelSizes(whcn))
}

// Locate maps a WHCN element coordinate to its texel index and lane.
func (p Packing) Locate(coord, texelStrides []int) (texel, lane int) {
	for d, c := range coord {
		if d == p.Dim && p.Block > 1 {
			lane = c % p.Block
			c /= p.Block
		}
		texel += c * texelStrides[d]
	}
	return texel, lane
}

// ContiguousStrides returns WHCN strides of a dense buffer (W fastest).
func ContiguousStrides(whcn []int) []int {
	return contiguousStrides(whcn)
}

// Unravel converts a linear WHCN-contiguous index into a WHCN coordinate.
func Unravel(index int, whcn []int) []int {
	coord := make([]int, len(whcn))
	for d, size := range whcn {
		if size <= 0 {
			continue
		}
		coord[d] = index % size
		index /= size
	}
	return coord
}

func contiguousStrides(whcn []int) []int {
	strides := make([]int, len(whcn))
	acc := 1
	for d, size := range whcn {
		strides[d] = acc
		acc *= size
	}
	return strides
}

func alignUp(n, a int) int {
	return (n + a - 1) / a * a
}
