//go:build windows

// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides the WebGPU compute device.
//
// Example:
//
//	import (
//	    "github.com/born-ml/computegraph/backend/cpu"
//	    "github.com/born-ml/computegraph/backend/webgpu"
//	)
//
//	var dev graph.Device = cpu.New()
//	if webgpu.IsAvailable() {
//	    gpu, err := webgpu.New(nil)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer gpu.Release()
//	    dev = gpu
//	}
package webgpu

import (
	"github.com/sirupsen/logrus"

	"github.com/born-ml/computegraph/internal/device"
	internalwebgpu "github.com/born-ml/computegraph/internal/device/webgpu"
)

// Device runs dispatches as WebGPU compute passes.
type Device = internalwebgpu.Device

// Compile-time check that Device implements device.Device.
var _ device.Device = (*Device)(nil)

// New opens the default high-performance adapter. Call Release when done.
//
// Returns an error if WebGPU initialization fails (e.g., no compatible GPU).
func New(log *logrus.Logger) (*Device, error) {
	return internalwebgpu.New(log)
}

// IsAvailable checks if WebGPU is available on the current system.
func IsAvailable() bool {
	return internalwebgpu.IsAvailable()
}
