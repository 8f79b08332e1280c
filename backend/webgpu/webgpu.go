// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides the WebGPU device for GPU convolution operators.
//
// WebGPU is a cross-platform graphics and compute API; the device runs the
// convolution programs as WGSL compute shaders. It is available on Windows.
// Elsewhere New returns ErrNotSupported. Operators built without a device
// run the same programs on the host.
//
// Example:
//
//	import (
//	    "github.com/born-ml/convcore/backend/webgpu"
//	    "github.com/born-ml/convcore/conv"
//	)
//
//	func main() {
//	    gpu, err := webgpu.New()
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer gpu.Release()
//
//	    op, err := conv.New(def, ws, conv.WithDevice(gpu))
//	}
package webgpu

import (
	internalwebgpu "github.com/born-ml/convcore/internal/backend/webgpu"
)

// Device runs GPU convolution programs through WebGPU.
type Device = internalwebgpu.Device

// ErrNotSupported is returned by New on platforms without WebGPU support.
var ErrNotSupported = internalwebgpu.ErrNotSupported

// New creates a WebGPU device. Call Release() when done to free GPU resources.
//
// Returns an error if WebGPU initialization fails (e.g., no compatible GPU).
func New() (*Device, error) {
	return internalwebgpu.New()
}

// IsAvailable checks if WebGPU is available on the current system.
//
// This function attempts to initialize a device to verify that a
// compatible GPU and drivers are present. It's useful for graceful
// fallback to the host device when a GPU is not available.
func IsAvailable() bool {
	dev, err := internalwebgpu.New()
	if err != nil {
		return false
	}
	dev.Release()
	return true
}
