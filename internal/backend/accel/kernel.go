package accel

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/born-ml/convcore/internal/activation"
	"github.com/born-ml/convcore/internal/conv"
	"github.com/born-ml/convcore/internal/tensor"
	"github.com/born-ml/convcore/internal/winograd"
)

// Kernel is the accelerator convolution for one memory type. The concrete
// kernel is chosen once per operator from its configured memory type.
type Kernel interface {
	// Memory returns the memory type every operand must use.
	Memory() tensor.MemoryType
	// CheckUseWinograd reports whether a filter can be pre-transformed for
	// block-transform convolution. It may lower *blockSize to a block the
	// kernel supports.
	CheckUseWinograd(filterShape tensor.Shape, strides, dilations [2]int, blockSize *int) bool
	// Compute runs a dense convolution with fused bias and activation.
	// blockSize > 0 means the filter is winograd-transformed with that block.
	Compute(ctx context.Context, in, filter, bias *tensor.Tensor, p conv.Params, act activation.Params, blockSize int, out *tensor.Tensor) error
	// ComputeDepthwise runs a depthwise convolution with fused bias and activation.
	ComputeDepthwise(ctx context.Context, in, filter, bias *tensor.Tensor, p conv.Params, act activation.Params, out *tensor.Tensor) error
}

// NewKernel returns the buffer or image kernel for mem.
func NewKernel(mem tensor.MemoryType, dev Device) (Kernel, error) {
	if dev == nil {
		return nil, errors.New("accel: nil device")
	}
	switch mem {
	case tensor.MemoryBuffer:
		return &bufferKernel{kernel{mem: mem, dev: dev}}, nil
	case tensor.MemoryImage:
		return &imageKernel{kernel{mem: mem, dev: dev}}, nil
	default:
		return nil, errors.Errorf("accel: no kernel for memory type %s", mem)
	}
}

// kernel holds what both memory types share.
type kernel struct {
	mem tensor.MemoryType
	dev Device
}

func (k *kernel) Memory() tensor.MemoryType { return k.mem }

func (k *kernel) winogradShape(filterShape tensor.Shape, strides, dilations [2]int) bool {
	return len(filterShape) == 4 && filterShape[1] == 3 && filterShape[2] == 3 &&
		strides == [2]int{1, 1} && dilations == [2]int{1, 1}
}

func (k *kernel) Compute(ctx context.Context, in, filter, bias *tensor.Tensor, p conv.Params, act activation.Params, blockSize int, out *tensor.Tensor) error {
	const op = "accel conv2d"
	if in == nil || filter == nil || out == nil {
		panic(op + ": missing input, filter or output tensor")
	}
	kind := Conv2DProgram
	filterFormat := tensor.Format{Memory: k.mem, Content: tensor.ContentConv2DFilter}
	if blockSize > 0 {
		if !winograd.Supported(blockSize) {
			panic(fmt.Sprintf("%s: unsupported winograd block size %d", op, blockSize))
		}
		kind = WinogradProgram
		filterFormat = tensor.Format{Memory: k.mem, Content: tensor.ContentWinogradFilter, BlockSize: blockSize}
	}
	g := k.resolve(op, in, filter, bias, filterFormat, p, false)
	if kind == WinogradProgram && (g.KH != 3 || g.KW != 3 || g.StrideH != 1 || g.StrideW != 1 || g.DilH != 1 || g.DilW != 1) {
		panic(fmt.Sprintf("%s: winograd filter used with %v", op, g.Signature()))
	}
	return k.dispatch(ctx, kind, in, filter, bias, out, g, act, blockSize)
}

func (k *kernel) ComputeDepthwise(ctx context.Context, in, filter, bias *tensor.Tensor, p conv.Params, act activation.Params, out *tensor.Tensor) error {
	const op = "accel depthwise_conv2d"
	if in == nil || filter == nil || out == nil {
		panic(op + ": missing input, filter or output tensor")
	}
	filterFormat := tensor.Format{Memory: k.mem, Content: tensor.ContentDWConv2DFilter}
	g := k.resolve(op, in, filter, bias, filterFormat, p, true)
	return k.dispatch(ctx, DepthwiseProgram, in, filter, bias, out, g, act, 0)
}

// resolve checks every operand format and computes the geometry.
func (k *kernel) resolve(op string, in, filter, bias *tensor.Tensor, filterFormat tensor.Format, p conv.Params, depthwise bool) conv.Geometry {
	if in.DType() != tensor.Float32 || filter.DType() != tensor.Float32 {
		panic(fmt.Sprintf("%s: only float32 tensors run on the accelerator, got %s and %s", op, in.DType(), filter.DType()))
	}
	expectFormat(op, in, tensor.Format{Memory: k.mem, Content: tensor.ContentInOut})
	expectFormat(op, filter, filterFormat)
	if bias != nil {
		expectFormat(op, bias, tensor.Format{Memory: k.mem, Content: tensor.ContentArgument})
	}
	return conv.MustResolve(in.Shape(), filter.Shape(), p, depthwise)
}

func (k *kernel) dispatch(ctx context.Context, kind ProgramKind, in, filter, bias, out *tensor.Tensor, g conv.Geometry, act activation.Params, blockSize int) error {
	if err := conv.CheckOutputBatch(in.Shape(), out.Shape()); err != nil {
		panic(err)
	}
	if err := out.ResizeFormat(g.OutputShape(), tensor.Format{Memory: k.mem, Content: tensor.ContentInOut}); err != nil {
		return errors.Wrapf(err, "accel %s", kind)
	}
	return k.dev.Run(ctx, &Program{
		Kind:       kind,
		Memory:     k.mem,
		Input:      in,
		Filter:     filter,
		Bias:       bias,
		Output:     out,
		Geometry:   g,
		Activation: act,
		BlockSize:  blockSize,
	})
}

// bufferKernel runs on linear buffers. Its winograd program only has a
// 2×2 output block; a request for 4 is lowered to 2.
type bufferKernel struct {
	kernel
}

func (k *bufferKernel) CheckUseWinograd(filterShape tensor.Shape, strides, dilations [2]int, blockSize *int) bool {
	if blockSize == nil || *blockSize == 0 {
		return false
	}
	if *blockSize == 4 {
		*blockSize = 2
	}
	return *blockSize == 2 && k.winogradShape(filterShape, strides, dilations)
}

// imageKernel runs on RGBA images with 2×2 and 4×4 winograd blocks.
type imageKernel struct {
	kernel
}

func (k *imageKernel) CheckUseWinograd(filterShape tensor.Shape, strides, dilations [2]int, blockSize *int) bool {
	if blockSize == nil {
		return false
	}
	return winograd.Supported(*blockSize) && k.winogradShape(filterShape, strides, dilations)
}
