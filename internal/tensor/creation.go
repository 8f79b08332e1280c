package tensor

import (
	"fmt"
	"math/rand"
)

// FromFloat32 creates a float32 CPU tensor holding a copy of data.
//
// Example:
//
//	in := tensor.FromFloat32(tensor.Shape{1, 4, 4, 3}, values)
func FromFloat32(shape Shape, data []float32) *Tensor {
	t := mustNew(shape, Float32, len(data))
	copy(t.AsFloat32(), data)
	return t
}

// FromInt32 creates an int32 CPU tensor holding a copy of data.
func FromInt32(shape Shape, data []int32) *Tensor {
	t := mustNew(shape, Int32, len(data))
	copy(t.AsInt32(), data)
	return t
}

// FromUint8 creates a uint8 CPU tensor holding a copy of data.
func FromUint8(shape Shape, data []uint8) *Tensor {
	t := mustNew(shape, Uint8, len(data))
	copy(t.AsUint8(), data)
	return t
}

// Zeros creates a zero-filled CPU tensor.
func Zeros(shape Shape, dtype DataType) *Tensor {
	return mustNew(shape, dtype, shape.NumElements())
}

// RandomFloat32 fills a tensor with values from {-1, -0.75, ..., 1}.
// Quarter steps keep every product and sum of a convolution exactly
// representable, so different summation orders agree bit for bit.
// Note: Uses math/rand (not crypto/rand) - appropriate for test data.
func RandomFloat32(shape Shape, rng *rand.Rand) *Tensor {
	t := Zeros(shape, Float32)
	data := t.AsFloat32()
	for i := range data {
		//nolint:gosec // G404: math/rand is fine for synthetic tensors
		data[i] = float32(rng.Intn(9)-4) / 4
	}
	return t
}

// UniformFloat32 fills a tensor with continuous values drawn uniformly from
// [-1, 1).
func UniformFloat32(shape Shape, rng *rand.Rand) *Tensor {
	t := Zeros(shape, Float32)
	data := t.AsFloat32()
	for i := range data {
		//nolint:gosec // G404: math/rand is fine for synthetic tensors
		data[i] = rng.Float32()*2 - 1
	}
	return t
}

// RandomUint8 fills a tensor with uniform values in [0, 255].
func RandomUint8(shape Shape, rng *rand.Rand) *Tensor {
	t := Zeros(shape, Uint8)
	data := t.AsUint8()
	for i := range data {
		//nolint:gosec // G404: math/rand is fine for synthetic tensors
		data[i] = uint8(rng.Intn(256))
	}
	return t
}

func mustNew(shape Shape, dtype DataType, n int) *Tensor {
	if shape.NumElements() != n {
		panic(fmt.Sprintf("data length %d does not match shape %v (%d elements)", n, shape, shape.NumElements()))
	}
	t, err := New(shape, dtype, CPU)
	if err != nil {
		panic(err) // Shape validation should prevent this
	}
	return t
}
