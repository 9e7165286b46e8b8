// Package webgpu implements a device that runs graph dispatches as WebGPU
// compute passes.
//
// Uses go-webgpu (github.com/go-webgpu/webgpu) for zero-CGO WebGPU bindings.
// Kernels are created from their WGSL source; storage bindings come first,
// followed by one uniform per parameter block and, for kernels that read
// specialization constants, a final uniform holding them.
package webgpu
