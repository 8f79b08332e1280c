// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the tensors convolution operators read and write.
//
// # Overview
//
// A Tensor is a dense NHWC (activations) or OHWI (filters) array of
// float32, int32 or uint8 elements. Alongside its logical shape it carries:
//   - a Format: the memory kind (host, buffer, image) and content type
//     (activations, filter, depthwise filter, winograd filter, argument)
//   - optional affine quantization (scale, zero point) for uint8 data
//   - a weight flag marking immutable model weights
//
// Host tensors use the plain row-major layout. Device formats are produced
// by the accelerator transform and are opaque to CPU code.
//
// # Basic Usage
//
//	import "github.com/born-ml/convcore/tensor"
//
//	func main() {
//	    x := tensor.FromFloat32(tensor.Shape{1, 4, 4, 2}, data)
//	    out := tensor.Empty(tensor.Float32, tensor.CPU)
//	}
//
// # Memory Management
//
// Output tensors are resized by the operator that writes them. Storage is
// obtained from the tensor's Allocator; a failed allocation surfaces as an
// error wrapping ErrAllocation.
package tensor
