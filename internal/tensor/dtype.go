// Package tensor provides the tensor metadata types shared by the compute graph,
// the kernel registry and the devices: data types, shapes, storage kinds and
// packed memory layouts.
package tensor

// DataType represents runtime type information for tensors.
type DataType int

// Supported data types for tensors.
const (
	Float32 DataType = iota
	Int32
	Int8
	Uint8
	Bool
	// Int8x4 stores four 8-bit lanes bit-packed into one 32-bit texel.
	Int8x4
)

// Size returns the host byte size of one element of the data type.
func (dt DataType) Size() int {
	switch dt {
	case Float32, Int32:
		return 4
	case Int8, Uint8, Bool, Int8x4:
		return 1
	default:
		panic("unknown data type")
	}
}

// DeviceSize returns the byte size of one element in device storage.
// Bools are widened to 32-bit words since WGSL storage cannot hold bool.
func (dt DataType) DeviceSize() int {
	if dt == Bool {
		return 4
	}
	return dt.Size()
}

// IsPacked reports whether elements of dt share a 32-bit texel.
func (dt DataType) IsPacked() bool {
	return dt == Int8x4
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Int32:
		return "int32"
	case Int8:
		return "int8"
	case Uint8:
		return "uint8"
	case Bool:
		return "bool"
	case Int8x4:
		return "int8x4"
	default:
		return "unknown"
	}
}

// KernelSuffix returns the suffix kernels use to name their dtype variant.
func (dt DataType) KernelSuffix() string {
	switch dt {
	case Float32:
		return "float"
	case Int32:
		return "int32"
	case Int8:
		return "int8"
	case Uint8:
		return "uint8"
	case Bool:
		return "bool"
	case Int8x4:
		return "int8x4"
	default:
		return "unknown"
	}
}
