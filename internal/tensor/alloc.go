package tensor

import "errors"

// ErrAllocation is returned when tensor storage cannot be obtained.
var ErrAllocation = errors.New("tensor allocation failed")

// Allocator hands out zeroed storage for tensors.
// Buffer lifetime belongs to the allocator's owner, not to the convolution core.
type Allocator interface {
	Allocate(nbytes int) ([]byte, error)
}

// HeapAllocator allocates from the Go heap.
// A positive Limit caps the size of a single allocation.
type HeapAllocator struct {
	Limit int
}

// Allocate returns nbytes of zeroed memory.
func (h HeapAllocator) Allocate(nbytes int) ([]byte, error) {
	if nbytes < 0 || (h.Limit > 0 && nbytes > h.Limit) {
		return nil, ErrAllocation
	}
	return make([]byte, nbytes), nil
}

// DefaultAllocator is used by tensors created without an explicit allocator.
var DefaultAllocator Allocator = HeapAllocator{}
