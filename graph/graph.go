// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package graph

import (
	"github.com/sirupsen/logrus"

	"github.com/born-ml/computegraph/internal/device"
	internalgraph "github.com/born-ml/computegraph/internal/graph"
	"github.com/born-ml/computegraph/internal/kernel"
	"github.com/born-ml/computegraph/internal/ops"
	"github.com/born-ml/computegraph/internal/tensor"
)

// Graph types.
type (
	ComputeGraph        = internalgraph.ComputeGraph
	ValueRef            = internalgraph.ValueRef
	Config              = internalgraph.Config
	Option              = internalgraph.Option
	Node                = internalgraph.Node
	PrepackNode         = internalgraph.PrepackNode
	DynamicDispatchNode = internalgraph.DynamicDispatchNode
	DispatchConfig      = internalgraph.DispatchConfig
	PrepackConfig       = internalgraph.PrepackConfig
	ArgGroup            = internalgraph.ArgGroup
	ParamsBuffer        = internalgraph.ParamsBuffer
	ValidationError     = internalgraph.ValidationError
)

// Workgroup sizing and resize policies.
type (
	WorkgroupSizer = internalgraph.WorkgroupSizer
	Sizing         = internalgraph.Sizing
	FixedSizing    = internalgraph.FixedSizing
	ResizePolicy   = internalgraph.ResizePolicy
	NoResize       = internalgraph.NoResize
	ResizeFrom     = internalgraph.ResizeFrom
	CustomResize   = internalgraph.CustomResize
)

// Device and tensor types.
type (
	Device       = device.Device
	Extent       = device.Extent
	AccessMode   = device.AccessMode
	Shape        = tensor.Shape
	DataType     = tensor.DataType
	StorageType  = tensor.StorageType
	MemoryLayout = tensor.MemoryLayout
	OpRegistry   = ops.Registry
)

// NoValue is the reference used where no value applies.
const NoValue = internalgraph.NoValue

// Data types.
const (
	Float32 = tensor.Float32
	Int32   = tensor.Int32
	Int8    = tensor.Int8
	Uint8   = tensor.Uint8
	Bool    = tensor.Bool
	Int8x4  = tensor.Int8x4
)

// Storage types and memory layouts.
const (
	Buffer        = tensor.Buffer
	Texture3D     = tensor.Texture3D
	Contiguous    = tensor.Contiguous
	PackedInt8x4W = tensor.PackedInt8x4W
	PackedInt8x4H = tensor.PackedInt8x4H
	PackedInt8x4C = tensor.PackedInt8x4C
)

// Access modes.
const (
	Read      = device.Read
	Write     = device.Write
	ReadWrite = device.ReadWrite
)

// Errors.
var (
	ErrValidation       = internalgraph.ErrValidation
	ErrUnknownKernel    = internalgraph.ErrUnknownKernel
	ErrInvalidValue     = internalgraph.ErrInvalidValue
	ErrCapacityExceeded = internalgraph.ErrCapacityExceeded
	ErrNotPrepared      = internalgraph.ErrNotPrepared
	ErrUnsupportedOp    = ops.ErrUnsupportedOp
)

// Operator builders.
var (
	AddWhereNode                 = ops.AddWhereNode
	AddPrepackInt8x4BufferNode   = ops.AddPrepackInt8x4BufferNode
	AddStagingToInt8x4BufferNode = ops.AddStagingToInt8x4BufferNode
	AddInt8x4BufferToStagingNode = ops.AddInt8x4BufferToStagingNode
	NewDynamicDispatchNode       = internalgraph.NewDynamicDispatchNode
	NewPrepackNode               = internalgraph.NewPrepackNode
	Arg                          = internalgraph.Arg
)

// New creates an empty graph using the built-in kernels.
func New(cfg Config, opts ...Option) *ComputeGraph {
	return internalgraph.New(cfg, kernel.Default(), opts...)
}

// NewOpRegistry returns the registry of supported operators, keyed by name
// (e.g. "aten.where.self").
func NewOpRegistry() *OpRegistry {
	return ops.NewRegistry()
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return internalgraph.DefaultConfig()
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (Config, error) {
	return internalgraph.LoadConfig(path)
}

// WithLogger sets the graph's logger.
func WithLogger(l *logrus.Logger) Option {
	return internalgraph.WithLogger(l)
}
