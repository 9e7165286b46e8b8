// Package graph implements the compute graph that owns tensor metadata,
// device buffers and the two node queues (prepack and execute).
//
// Operators are added by building nodes against the graph and appending them
// to one of the queues. The graph then runs in three phases:
//
//	g := graph.New(graph.DefaultConfig(), kernel.Default())
//	// add values and operators ...
//	err := g.Prepare(ctx, dev) // allocate buffers, upload constants
//	err = g.Prepack(ctx)       // drain the prepack queue once
//	err = g.Execute(ctx)       // one iteration of the execute queue
package graph

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/born-ml/computegraph/internal/device"
	"github.com/born-ml/computegraph/internal/kernel"
	"github.com/born-ml/computegraph/internal/tensor"
)

// ValueRef is a non-owning reference into a graph's value table.
type ValueRef int

// NoValue is the zero reference used where no value applies.
const NoValue ValueRef = -1

type valueKind int

const (
	kindTensor valueKind = iota
	kindStaging
	kindConstant
)

func (k valueKind) String() string {
	switch k {
	case kindTensor:
		return "tensor"
	case kindStaging:
		return "staging"
	case kindConstant:
		return "constant"
	default:
		return "unknown"
	}
}

// value is one entry of the value table.
type value struct {
	kind    valueKind
	dtype   tensor.DataType
	shape   tensor.Shape
	storage tensor.StorageType
	layout  tensor.MemoryLayout

	// capacity is the number of (padded) elements the storage holds.
	capacity int
	// data is host data of a constant, uploaded by Prepare.
	data   []byte
	buffer device.Buffer
}

// ComputeGraph owns values, queues and device buffers.
// It is not safe for concurrent use.
type ComputeGraph struct {
	cfg     Config
	kernels *kernel.Registry
	log     *logrus.Entry

	values       []*value
	prepackNodes []Node
	executeNodes []Node

	dev        device.Device
	prepacked  bool
	iterations int
}

// Option configures a ComputeGraph.
type Option func(*ComputeGraph)

// WithLogger sets the logger.
func WithLogger(l *logrus.Logger) Option {
	return func(g *ComputeGraph) { g.log = l.WithField("component", "graph") }
}

// New creates an empty graph.
func New(cfg Config, kernels *kernel.Registry, opts ...Option) *ComputeGraph {
	if kernels == nil {
		kernels = kernel.Default()
	}
	g := &ComputeGraph{
		cfg:     cfg,
		kernels: kernels,
		log:     logrus.WithField("component", "graph"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Config returns the graph configuration.
func (g *ComputeGraph) Config() Config {
	return g.cfg
}

// Logger returns the graph's log entry.
func (g *ComputeGraph) Logger() *logrus.Entry {
	return g.log
}

// AddTensor adds a tensor whose storage is sized for shape.
func (g *ComputeGraph) AddTensor(shape tensor.Shape, dtype tensor.DataType,
	storage tensor.StorageType, layout tensor.MemoryLayout) (ValueRef, error) {
	return g.AddTensorWithCapacity(shape, shape, dtype, storage, layout)
}

// AddTensorWithCapacity adds a tensor of the given shape whose storage is
// sized for maxShape, so it can later be virtually resized up to maxShape.
func (g *ComputeGraph) AddTensorWithCapacity(shape, maxShape tensor.Shape, dtype tensor.DataType,
	storage tensor.StorageType, layout tensor.MemoryLayout) (ValueRef, error) {
	if err := shape.Validate(); err != nil {
		return NoValue, errors.Wrap(err, "add tensor")
	}
	if err := maxShape.Validate(); err != nil {
		return NoValue, errors.Wrap(err, "add tensor: capacity")
	}
	if dtype.IsPacked() != layout.IsPacked() {
		return NoValue, &ValidationError{
			Op:         "add_tensor",
			Value:      NoValue,
			Constraint: "packed dtype requires packed layout",
			Details:    dtype.String() + " with " + layout.String(),
		}
	}
	capacity := layout.Packing().PaddedNumel(maxShape)
	if need := layout.Packing().PaddedNumel(shape); need > capacity {
		return NoValue, errors.Wrapf(ErrCapacityExceeded, "add tensor: shape %v needs %d elements, capacity %d",
			shape, need, capacity)
	}
	return g.addValue(&value{
		kind:     kindTensor,
		dtype:    dtype,
		shape:    shape.Clone(),
		storage:  storage,
		layout:   layout,
		capacity: capacity,
	}), nil
}

// AddStaging adds a host-visible, unpacked buffer of numel elements.
func (g *ComputeGraph) AddStaging(dtype tensor.DataType, numel int) (ValueRef, error) {
	if numel <= 0 {
		return NoValue, errors.Errorf("add staging: invalid element count %d", numel)
	}
	if dtype.IsPacked() {
		return NoValue, errors.Errorf("add staging: staging buffers are unpacked, got %s", dtype)
	}
	return g.addValue(&value{
		kind:     kindStaging,
		dtype:    dtype,
		shape:    tensor.Shape{numel},
		capacity: numel,
	}), nil
}

// AddConstant adds CPU-resident tensor data (e.g. weights) to be loaded into
// device memory by a prepack node. data is copied.
func (g *ComputeGraph) AddConstant(shape tensor.Shape, dtype tensor.DataType, data []byte) (ValueRef, error) {
	if err := shape.Validate(); err != nil {
		return NoValue, errors.Wrap(err, "add constant")
	}
	if want := shape.NumElements() * dtype.Size(); len(data) != want {
		return NoValue, errors.Errorf("add constant: %d bytes of data for shape %v (%s), want %d",
			len(data), shape, dtype, want)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return g.addValue(&value{
		kind:     kindConstant,
		dtype:    dtype,
		shape:    shape.Clone(),
		capacity: shape.NumElements(),
		data:     buf,
	}), nil
}

func (g *ComputeGraph) addValue(v *value) ValueRef {
	g.values = append(g.values, v)
	ref := ValueRef(len(g.values) - 1)
	g.log.WithFields(logrus.Fields{
		"value": int(ref),
		"kind":  v.kind.String(),
		"dtype": v.dtype.String(),
		"shape": v.shape,
	}).Debug("value added")
	return ref
}

// NumValues returns the number of values in the graph.
func (g *ComputeGraph) NumValues() int {
	return len(g.values)
}

// CheckRef returns ErrInvalidValue if ref does not name a value.
func (g *ComputeGraph) CheckRef(ref ValueRef) error {
	if ref < 0 || int(ref) >= len(g.values) {
		return errors.Wrapf(ErrInvalidValue, "value %d (graph has %d)", ref, len(g.values))
	}
	return nil
}

// get panics on an invalid reference; refs are validated when nodes are built.
func (g *ComputeGraph) get(ref ValueRef) *value {
	if err := g.CheckRef(ref); err != nil {
		panic("graph: " + err.Error())
	}
	return g.values[ref]
}

// DTypeOf returns the scalar dtype of a value.
func (g *ComputeGraph) DTypeOf(ref ValueRef) tensor.DataType {
	return g.get(ref).dtype
}

// DimOf returns the dimensionality of a value.
func (g *ComputeGraph) DimOf(ref ValueRef) int {
	return len(g.get(ref).shape)
}

// SizesOf returns a copy of the logical shape of a value.
func (g *ComputeGraph) SizesOf(ref ValueRef) tensor.Shape {
	return g.get(ref).shape.Clone()
}

// NumelOf returns the logical element count of a value.
func (g *ComputeGraph) NumelOf(ref ValueRef) int {
	return g.get(ref).shape.NumElements()
}

// PaddedNumelOf returns the element count after rounding the packed dim up
// to the pack factor. It equals NumelOf for unpacked layouts.
func (g *ComputeGraph) PaddedNumelOf(ref ValueRef) int {
	v := g.get(ref)
	return v.layout.Packing().PaddedNumel(v.shape)
}

// CapacityOf returns the number of (padded) elements the value's storage holds.
func (g *ComputeGraph) CapacityOf(ref ValueRef) int {
	return g.get(ref).capacity
}

// StorageTypeOf returns how a value is backed on the device.
func (g *ComputeGraph) StorageTypeOf(ref ValueRef) tensor.StorageType {
	return g.get(ref).storage
}

// LayoutOf returns the memory layout of a value.
func (g *ComputeGraph) LayoutOf(ref ValueRef) tensor.MemoryLayout {
	return g.get(ref).layout
}

// HashedLayoutOf returns the layout hash kernels specialize on.
func (g *ComputeGraph) HashedLayoutOf(ref ValueRef) int32 {
	return g.get(ref).layout.Hash()
}

// IsStaging reports whether ref names a staging buffer.
func (g *ComputeGraph) IsStaging(ref ValueRef) bool {
	return g.get(ref).kind == kindStaging
}

// IsConstant reports whether ref names constant tensor data.
func (g *ComputeGraph) IsConstant(ref ValueRef) bool {
	return g.get(ref).kind == kindConstant
}

// IsTensor reports whether ref names a device tensor.
func (g *ComputeGraph) IsTensor(ref ValueRef) bool {
	return g.get(ref).kind == kindTensor
}

// LookupKernel resolves a kernel name. Unknown names are build-time errors.
func (g *ComputeGraph) LookupKernel(name string) (*kernel.Info, error) {
	return g.kernels.Lookup(name)
}

// Kernels returns the kernel registry.
func (g *ComputeGraph) Kernels() *kernel.Registry {
	return g.kernels
}

// AppendPrepackNode adds n to the one-time prepack queue.
func (g *ComputeGraph) AppendPrepackNode(n Node) {
	g.prepackNodes = append(g.prepackNodes, n)
	g.log.WithFields(logrus.Fields{
		"kernel": n.Kernel().Name,
		"index":  len(g.prepackNodes) - 1,
	}).Debug("prepack node added")
}

// AppendExecuteNode adds n to the per-iteration execute queue.
func (g *ComputeGraph) AppendExecuteNode(n Node) {
	g.executeNodes = append(g.executeNodes, n)
	g.log.WithFields(logrus.Fields{
		"kernel": n.Kernel().Name,
		"index":  len(g.executeNodes) - 1,
	}).Debug("execute node added")
}

// PrepackNodes returns the prepack queue.
func (g *ComputeGraph) PrepackNodes() []Node {
	return g.prepackNodes
}

// ExecuteNodes returns the execute queue.
func (g *ComputeGraph) ExecuteNodes() []Node {
	return g.executeNodes
}

// Iterations returns the number of completed Execute calls.
func (g *ComputeGraph) Iterations() int {
	return g.iterations
}
