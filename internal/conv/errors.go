package conv

import (
	"errors"
	"fmt"
)

// ErrShape is the sentinel matched by every ShapeError.
var ErrShape = errors.New("shape mismatch")

// ShapeError reports inconsistent convolution shapes.
type ShapeError struct {
	Op     string
	Input  []int
	Filter []int
	Reason string
}

// Error implements the error interface.
func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: %s (input %v, filter %v)", e.Op, e.Reason, e.Input, e.Filter)
}

// Unwrap makes errors.Is(err, ErrShape) hold.
func (e *ShapeError) Unwrap() error {
	return ErrShape
}
