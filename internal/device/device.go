// Package device defines the contract between the compute graph and the
// devices that execute its dispatches.
//
// A Device allocates buffers and runs Dispatch descriptors. The graph never
// talks to GPU APIs directly; internal/device/cpu provides a software device
// and internal/device/webgpu a WebGPU one.
package device

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/born-ml/computegraph/internal/kernel"
)

// Extent is a 3-D workgroup extent.
type Extent struct {
	X, Y, Z uint32
}

// Ext builds an Extent.
func Ext(x, y, z uint32) Extent {
	return Extent{X: x, Y: y, Z: z}
}

// Volume returns X*Y*Z.
func (e Extent) Volume() uint64 {
	return uint64(e.X) * uint64(e.Y) * uint64(e.Z)
}

// At returns the extent along axis i (0, 1 or 2).
func (e Extent) At(i int) uint32 {
	switch i {
	case 0:
		return e.X
	case 1:
		return e.Y
	default:
		return e.Z
	}
}

// Groups returns the number of workgroups needed to cover e with local.
func (e Extent) Groups(local Extent) Extent {
	return Extent{
		X: divUp(e.X, local.X),
		Y: divUp(e.Y, local.Y),
		Z: divUp(e.Z, local.Z),
	}
}

func (e Extent) String() string {
	return fmt.Sprintf("(%d, %d, %d)", e.X, e.Y, e.Z)
}

func divUp(n, d uint32) uint32 {
	if d == 0 {
		return 0
	}
	return (n + d - 1) / d
}

// AccessMode declares how a dispatch uses a bound buffer.
type AccessMode int

// Access modes.
const (
	Read AccessMode = iota
	Write
	ReadWrite
)

func (m AccessMode) String() string {
	switch m {
	case Read:
		return "read"
	case Write:
		return "write"
	case ReadWrite:
		return "read_write"
	default:
		return "unknown"
	}
}

// Buffer is device memory owned by a Device.
type Buffer interface {
	// Size returns the allocated size in bytes.
	Size() int
	// Write copies data into the start of the buffer.
	Write(data []byte) error
	// Read returns a copy of the first n bytes.
	Read(n int) ([]byte, error)
	// Release frees the buffer. Further use is invalid.
	Release()
}

// Binding is one storage buffer bound to a dispatch, in binding order.
type Binding struct {
	Value  int // graph value index, for tracing
	Buffer Buffer
	Access AccessMode
}

// SpecVar is a specialization constant. Only 32-bit values are supported.
type SpecVar struct {
	Kind  SpecKind
	Value uint32
}

// SpecKind is the scalar type of a SpecVar.
type SpecKind int

// Specialization constant kinds.
const (
	SpecInt SpecKind = iota
	SpecUint
	SpecFloat
	SpecBool
)

// IntSpec returns an int32 specialization constant.
func IntSpec(v int32) SpecVar {
	return SpecVar{Kind: SpecInt, Value: uint32(v)}
}

// UintSpec returns a uint32 specialization constant.
func UintSpec(v uint32) SpecVar {
	return SpecVar{Kind: SpecUint, Value: v}
}

// Int returns the constant reinterpreted as int32.
func (s SpecVar) Int() int32 {
	return int32(s.Value)
}

// Dispatch is a fully resolved unit of device work.
type Dispatch struct {
	Kernel        *kernel.Info
	Global        Extent
	Local         Extent
	Bindings      []Binding
	Params        [][]byte
	PushConstants []byte
	SpecConstants []SpecVar
}

// Limits are the device limits relevant to workgroup sizing.
type Limits struct {
	MaxInvocationsPerWorkgroup uint32 `yaml:"max_invocations_per_workgroup"`
	MaxWorkgroupSize           Extent `yaml:"max_workgroup_size"`
}

// DefaultLimits returns the WebGPU baseline limits.
func DefaultLimits() Limits {
	return Limits{
		MaxInvocationsPerWorkgroup: 256,
		MaxWorkgroupSize:           Extent{X: 256, Y: 256, Z: 64},
	}
}

// Device executes dispatches.
type Device interface {
	// Name identifies the device in logs and traces.
	Name() string
	// Limits returns workgroup limits.
	Limits() Limits
	// Allocate returns a zeroed buffer of at least size bytes.
	Allocate(size int) (Buffer, error)
	// Dispatch runs d. Dispatches complete in submission order.
	Dispatch(ctx context.Context, d *Dispatch) error
}

// EncodeSpecConstants packs spec constants into a 16-byte aligned uniform
// block, for devices without native specialization support.
func EncodeSpecConstants(spec []SpecVar) []byte {
	size := (len(spec)*4 + 15) &^ 15
	buf := make([]byte, size)
	for i, s := range spec {
		binary.LittleEndian.PutUint32(buf[i*4:], s.Value)
	}
	return buf
}
