// Package accel implements the accelerator-resident convolution strategy:
// device memory-format negotiation, winograd filter preparation and
// delegation of the arithmetic to a Device.
package accel

import (
	"context"
	"fmt"

	"github.com/born-ml/convcore/internal/activation"
	"github.com/born-ml/convcore/internal/conv"
	"github.com/born-ml/convcore/internal/tensor"
)

// ProgramKind selects the device program.
type ProgramKind int

// Program kinds.
const (
	Conv2DProgram ProgramKind = iota
	WinogradProgram
	DepthwiseProgram
)

// String returns the program name.
func (k ProgramKind) String() string {
	switch k {
	case Conv2DProgram:
		return "conv2d"
	case WinogradProgram:
		return "winograd_conv2d"
	case DepthwiseProgram:
		return "depthwise_conv2d"
	default:
		return fmt.Sprintf("ProgramKind(%d)", int(k))
	}
}

// Program is one fused convolution + bias + activation dispatch. All tensors
// are already in the kernel's memory type; Output has been resized.
type Program struct {
	Kind       ProgramKind
	Memory     tensor.MemoryType
	Input      *tensor.Tensor
	Filter     *tensor.Tensor
	Bias       *tensor.Tensor // nil when absent
	Output     *tensor.Tensor
	Geometry   conv.Geometry
	Activation activation.Params
	BlockSize  int // winograd output block, WinogradProgram only
}

// Device is the accelerator command queue. Run must return only after the
// output is complete; its error is handed to the caller unchanged.
type Device interface {
	Name() string
	Run(ctx context.Context, prog *Program) error
}
