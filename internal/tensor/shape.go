package tensor

import (
	"fmt"
	"slices"
)

// Shape lists tensor extents. Activations are NHWC, dense filters OHWI and
// depthwise filters (C_out, KH, KW, 1).
type Shape []int

// NumElements is the product of the extents. A rank-0 shape holds one value.
func (s Shape) NumElements() int {
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

// Validate rejects zero and negative extents.
func (s Shape) Validate() error {
	if i := slices.IndexFunc(s, func(d int) bool { return d <= 0 }); i >= 0 {
		return fmt.Errorf("extent %d of %v is %d, want > 0", i, s, s[i])
	}
	return nil
}

// Equal reports whether both shapes have the same rank and extents.
func (s Shape) Equal(other Shape) bool { return slices.Equal(s, other) }

// Clone returns an independent copy. Cloning nil yields an empty shape.
func (s Shape) Clone() Shape {
	return append(Shape{}, s...)
}
