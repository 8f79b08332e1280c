package tensor

import (
	"fmt"
	"math"
)

// QuantParams holds affine quantization parameters: real = Scale * (q - ZeroPoint).
type QuantParams struct {
	Scale     float32
	ZeroPoint int32
}

// Tensor is an NHWC (activations) or OHWI (filters) tensor as seen by the
// convolution core. Storage is borrowed from an Allocator; the core resizes
// outputs but never frees anything.
type Tensor struct {
	name   string
	data   []byte
	shape  Shape
	dtype  DataType
	device Device
	quant  QuantParams
	format Format
	weight bool
	alloc  Allocator
}

// New creates a zero-filled tensor with the given shape on the heap allocator.
func New(shape Shape, dtype DataType, device Device) (*Tensor, error) {
	t := Empty(dtype, device)
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if err := t.Resize(shape); err != nil {
		return nil, err
	}
	return t, nil
}

// Empty creates a tensor with no shape and no storage. Strategies resize it
// once the output geometry is known.
func Empty(dtype DataType, device Device) *Tensor {
	return &Tensor{dtype: dtype, device: device, alloc: DefaultAllocator}
}

// WithAllocator creates an empty tensor that obtains storage from alloc.
func WithAllocator(alloc Allocator, dtype DataType, device Device) *Tensor {
	t := Empty(dtype, device)
	if alloc != nil {
		t.alloc = alloc
	}
	return t
}

// Name returns the workspace name of the tensor, if any.
func (t *Tensor) Name() string { return t.name }

// SetName sets the workspace name.
func (t *Tensor) SetName(name string) { t.name = name }

// Shape returns the tensor's logical shape.
func (t *Tensor) Shape() Shape { return t.shape }

// Dim returns the size of dimension i.
func (t *Tensor) Dim(i int) int { return t.shape[i] }

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int { return len(t.shape) }

// DType returns the tensor's data type.
func (t *Tensor) DType() DataType { return t.dtype }

// Device returns the tensor's memory location.
func (t *Tensor) Device() Device { return t.device }

// Format returns the memory-format tag.
func (t *Tensor) Format() Format { return t.format }

// SetFormat retags the tensor. It does not move data; use a transform for that.
func (t *Tensor) SetFormat(f Format) { t.format = f }

// IsWeight reports whether the tensor is an immutable model weight.
func (t *Tensor) IsWeight() bool { return t.weight }

// MarkWeight flags the tensor as an immutable weight.
func (t *Tensor) MarkWeight() { t.weight = true }

// Allocator returns the allocator backing the tensor.
func (t *Tensor) Allocator() Allocator { return t.alloc }

// NumElements returns the number of logical elements.
func (t *Tensor) NumElements() int {
	if t.shape == nil {
		return 0
	}
	return t.shape.NumElements()
}

// ByteSize returns the size of the physical storage in bytes.
func (t *Tensor) ByteSize() int { return len(t.data) }

// Scale returns the quantization scale.
func (t *Tensor) Scale() float32 { return t.quant.Scale }

// ZeroPoint returns the quantization zero point.
func (t *Tensor) ZeroPoint() int32 { return t.quant.ZeroPoint }

// Quant returns the quantization parameters.
func (t *Tensor) Quant() QuantParams { return t.quant }

// SetQuantization sets the affine quantization parameters.
// The scale must be positive and finite and the zero point must fit in [0, 255].
func (t *Tensor) SetQuantization(scale float32, zeroPoint int32) error {
	if !(scale > 0) || math.IsInf(float64(scale), 0) {
		return fmt.Errorf("tensor %q: invalid quantization scale %v", t.name, scale)
	}
	if zeroPoint < 0 || zeroPoint > 255 {
		return fmt.Errorf("tensor %q: zero point %d outside [0, 255]", t.name, zeroPoint)
	}
	t.quant = QuantParams{Scale: scale, ZeroPoint: zeroPoint}
	return nil
}

// Resize gives the tensor a new logical shape, allocating storage for the
// current format. Existing storage is reused when large enough; the visible
// bytes are always zeroed.
func (t *Tensor) Resize(shape Shape) error {
	nbytes := t.format.PhysicalElements(shape) * t.dtype.Size()
	if cap(t.data) >= nbytes && t.data != nil {
		t.data = t.data[:nbytes]
		clear(t.data)
	} else {
		alloc := t.alloc
		if alloc == nil {
			alloc = DefaultAllocator
		}
		buf, err := alloc.Allocate(nbytes)
		if err != nil {
			return fmt.Errorf("tensor %q: resize to %v (%d bytes): %w", t.name, shape, nbytes, ErrAllocation)
		}
		t.data = buf
	}
	t.shape = shape.Clone()
	return nil
}

// ResizeFormat retags the tensor with f and resizes it to shape.
func (t *Tensor) ResizeFormat(shape Shape, f Format) error {
	t.format = f
	return t.Resize(shape)
}

// Clone creates a deep copy sharing no storage with t.
func (t *Tensor) Clone() *Tensor {
	c := *t
	c.shape = t.shape.Clone()
	c.data = append([]byte(nil), t.data...)
	return &c
}

// String returns a short description used in logs and panics.
func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(%q, %v, %s, %s, %s)", t.name, []int(t.shape), t.dtype, t.device, t.format)
}
