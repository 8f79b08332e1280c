// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"math/rand"

	"github.com/born-ml/convcore/internal/tensor"
)

// Type aliases for public API

// DataType is the element type of a tensor.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32 DataType = tensor.Float32
	Int32   DataType = tensor.Int32
	Uint8   DataType = tensor.Uint8
)

// Device is where an operator runs and its tensors live.
type Device = tensor.Device

// Device constants.
const (
	CPU Device = tensor.CPU
	GPU Device = tensor.GPU
)

// Shape represents the dimensions of a tensor.
// Example: Shape{1, 224, 224, 3} is one 224×224 RGB image in NHWC order.
type Shape = tensor.Shape

// QuantParams is the affine quantization of a uint8 tensor:
// real = Scale * (q - ZeroPoint).
type QuantParams = tensor.QuantParams

// Tensor is a shaped, typed array with a storage format.
type Tensor = tensor.Tensor

// New allocates a zero-filled host tensor.
func New(shape Shape, dtype DataType, device Device) (*Tensor, error) {
	return tensor.New(shape, dtype, device)
}

// Empty creates a tensor with no shape, to be resized by the operator that
// writes it.
func Empty(dtype DataType, device Device) *Tensor {
	return tensor.Empty(dtype, device)
}

// FromFloat32 wraps data in a host tensor. Panics if len(data) does not
// match shape.
func FromFloat32(shape Shape, data []float32) *Tensor {
	return tensor.FromFloat32(shape, data)
}

// FromInt32 wraps data in a host tensor.
func FromInt32(shape Shape, data []int32) *Tensor {
	return tensor.FromInt32(shape, data)
}

// FromUint8 wraps data in a host tensor.
func FromUint8(shape Shape, data []uint8) *Tensor {
	return tensor.FromUint8(shape, data)
}

// Zeros creates a zero-filled host tensor.
func Zeros(shape Shape, dtype DataType) *Tensor {
	return tensor.Zeros(shape, dtype)
}

// RandomFloat32 fills a tensor with quarter steps in [-1, 1], which keeps
// convolution results exact regardless of summation order.
func RandomFloat32(shape Shape, rng *rand.Rand) *Tensor {
	return tensor.RandomFloat32(shape, rng)
}

// UniformFloat32 fills a tensor with continuous values in [-1, 1).
func UniformFloat32(shape Shape, rng *rand.Rand) *Tensor {
	return tensor.UniformFloat32(shape, rng)
}

// RandomUint8 fills a tensor with uniform bytes.
func RandomUint8(shape Shape, rng *rand.Rand) *Tensor {
	return tensor.RandomUint8(shape, rng)
}

// ParseDataType converts "float32", "int32" or "uint8" to a DataType.
func ParseDataType(name string) (DataType, error) {
	return tensor.ParseDataType(name)
}

// ParseDevice converts "cpu" or "gpu" to a Device.
func ParseDevice(name string) (Device, error) {
	return tensor.ParseDevice(name)
}
