// Package kernel holds the compute kernels known to the graph.
//
// Kernels are looked up by name when an operator is added to a graph; a name
// that is not registered is a build-time error. Each kernel carries its WGSL
// source, which devices compile on demand (WebGPU) or ignore in favour of a
// native implementation (CPU).
package kernel

import (
	"sort"
	"sync"

	"github.com/gogpu/naga"
	"github.com/pkg/errors"
)

// ErrUnknownKernel is returned when a kernel name is not registered.
var ErrUnknownKernel = errors.New("unknown kernel")

// Info describes a compute kernel.
type Info struct {
	Name string
	// Source is the WGSL source of the kernel.
	Source string
	// LocalSize is the workgroup size declared by the shader.
	LocalSize [3]uint32
	// Bindings is the number of storage buffers the kernel binds.
	Bindings int
	// Params is the number of uniform parameter buffers the kernel binds.
	Params int
	// SpecConstants is the number of specialization constants the kernel reads.
	SpecConstants int
}

// Registry maps kernel names to kernel info.
type Registry struct {
	kernels map[string]*Info
	spirv   map[string][]uint32
	mu      sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		kernels: make(map[string]*Info),
		spirv:   make(map[string][]uint32),
	}
}

// Default returns a registry holding the built-in kernels.
func Default() *Registry {
	r := NewRegistry()
	for _, info := range builtins() {
		if err := r.Register(info); err != nil {
			panic(err) // builtin names are unique
		}
	}
	return r
}

// Register adds a kernel. Registering a name twice is an error.
func (r *Registry) Register(info *Info) error {
	if info == nil || info.Name == "" {
		return errors.New("kernel: register: missing name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.kernels[info.Name]; exists {
		return errors.Errorf("kernel: %q already registered", info.Name)
	}
	r.kernels[info.Name] = info
	return nil
}

// Lookup returns the kernel registered under name.
func (r *Registry) Lookup(name string) (*Info, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.kernels[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownKernel, "kernel %q", name)
	}
	return info, nil
}

// Names returns all registered kernel names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.kernels))
	for name := range r.kernels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Compile returns the SPIR-V words of the named kernel.
// Results are cached in the registry.
func (r *Registry) Compile(name string) ([]uint32, error) {
	r.mu.RLock()
	if words, ok := r.spirv[name]; ok {
		r.mu.RUnlock()
		return words, nil
	}
	info, ok := r.kernels[name]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrUnknownKernel, "kernel %q", name)
	}

	words, err := CompileWGSL(info.Source)
	if err != nil {
		return nil, errors.Wrapf(err, "kernel %q", name)
	}

	r.mu.Lock()
	r.spirv[name] = words
	r.mu.Unlock()
	return words, nil
}

// CompileWGSL compiles WGSL source to SPIR-V words.
func CompileWGSL(source string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, errors.Wrap(err, "failed to compile shader")
	}
	if len(spirvBytes)%4 != 0 {
		return nil, errors.Errorf("spir-v length %d is not a multiple of 4", len(spirvBytes))
	}

	// SPIR-V is little-endian 32-bit words
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return words, nil
}

// CompileAll compiles the named kernels, or every registered kernel when no
// names are given. It stops at the first failure.
func (r *Registry) CompileAll(names ...string) (map[string][]uint32, error) {
	if len(names) == 0 {
		names = r.Names()
	}
	out := make(map[string][]uint32, len(names))
	for _, name := range names {
		words, err := r.Compile(name)
		if err != nil {
			return nil, err
		}
		out[name] = words
	}
	return out, nil
}
