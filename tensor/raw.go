// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/convcore/internal/backend/accel"
	"github.com/born-ml/convcore/internal/tensor"
)

// MemoryType is the storage kind a tensor lives in.
type MemoryType = tensor.MemoryType

// Memory types.
const (
	MemoryHost   MemoryType = tensor.MemoryHost
	MemoryBuffer MemoryType = tensor.MemoryBuffer
	MemoryImage  MemoryType = tensor.MemoryImage
)

// ContentType describes what a device tensor holds.
type ContentType = tensor.ContentType

// Content types.
const (
	ContentInOut          ContentType = tensor.ContentInOut
	ContentConv2DFilter   ContentType = tensor.ContentConv2DFilter
	ContentDWConv2DFilter ContentType = tensor.ContentDWConv2DFilter
	ContentWinogradFilter ContentType = tensor.ContentWinogradFilter
	ContentArgument       ContentType = tensor.ContentArgument
)

// Format is the physical layout of a tensor. The zero value is the host layout.
type Format = tensor.Format

// HostFormat is the plain row-major layout.
var HostFormat = tensor.HostFormat

// Allocator hands out zeroed storage for tensors.
type Allocator = tensor.Allocator

// HeapAllocator allocates from the Go heap. A positive Limit caps a single
// allocation, which is useful to exercise allocation failures.
type HeapAllocator = tensor.HeapAllocator

// ErrAllocation is wrapped by every error caused by failed tensor storage.
var ErrAllocation = tensor.ErrAllocation

// WithAllocator creates an empty tensor whose storage comes from alloc.
func WithAllocator(alloc Allocator, dtype DataType, device Device) *Tensor {
	return tensor.WithAllocator(alloc, dtype, device)
}

// ParseMemoryType converts "host", "buffer" or "image" to a MemoryType.
func ParseMemoryType(name string) (MemoryType, error) {
	return tensor.ParseMemoryType(name)
}

// Transform converts t to the target format, returning a new tensor.
// Converting to a device format pads channels as the layout requires.
func Transform(t *Tensor, target Format) (*Tensor, error) {
	return accel.Transform(t, target)
}

// ToHost converts a device tensor back to the host layout.
func ToHost(t *Tensor) (*Tensor, error) {
	return accel.ToHost(t)
}
