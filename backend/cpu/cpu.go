// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu

import (
	"github.com/born-ml/computegraph/internal/device"
	internalcpu "github.com/born-ml/computegraph/internal/device/cpu"
)

// Device is the software compute device.
type Device = internalcpu.Device

// Option configures a Device.
type Option = internalcpu.Option

// Compile-time check that Device implements device.Device.
var _ device.Device = (*Device)(nil)

// Device options.
var (
	WithParallel = internalcpu.WithParallel
	WithLimits   = internalcpu.WithLimits
	WithLogger   = internalcpu.WithLogger
	WithKernel   = internalcpu.WithKernel
)

// New creates a software device with the built-in kernels.
func New(opts ...Option) *Device {
	return internalcpu.New(opts...)
}
