package cpu

import (
	"context"
	"fmt"

	"github.com/born-ml/convcore/internal/activation"
	"github.com/born-ml/convcore/internal/parallel"
	"github.com/born-ml/convcore/internal/tensor"
)

// Activation applies a fused activation elementwise to a float tensor.
type Activation struct {
	params activation.Params
	pool   *parallel.Pool
}

// Compute applies the activation from in to out (possibly the same tensor).
func (a *Activation) Compute(_ context.Context, in, out *tensor.Tensor) error {
	if in == nil || out == nil {
		panic("activation: missing input or output tensor")
	}
	if in.DType() != tensor.Float32 {
		panic(fmt.Sprintf("activation: unsupported dtype %s", in.DType()))
	}
	if err := sameShapeOutput("activation", in, out); err != nil {
		return err
	}
	if a.params.IsNoOp() {
		return nil
	}
	data := out.AsFloat32()
	a.pool.For(len(data), func(start, end int) {
		a.params.ApplySlice(data[start:end])
	})
	return nil
}

// QuantizedActivation applies an activation to a uint8 tensor by
// dequantizing with the input parameters, applying the function and
// requantizing with the output parameters.
type QuantizedActivation struct {
	params activation.Params
	pool   *parallel.Pool
}

// Compute applies the activation from in to out (possibly the same tensor).
func (a *QuantizedActivation) Compute(_ context.Context, in, out *tensor.Tensor) error {
	if in == nil || out == nil {
		panic("quantized activation: missing input or output tensor")
	}
	if in.DType() != tensor.Uint8 {
		panic(fmt.Sprintf("quantized activation: unsupported dtype %s", in.DType()))
	}
	if a.params.IsNoOp() {
		return sameShapeOutput("quantized activation", in, out)
	}
	qIn := in.Quant()
	if in != out {
		if out.Scale() <= 0 {
			if err := out.SetQuantization(qIn.Scale, qIn.ZeroPoint); err != nil {
				panic(fmt.Sprintf("quantized activation: %v", err))
			}
		}
		if out.DType() != tensor.Uint8 {
			panic(fmt.Sprintf("quantized activation: output dtype %s", out.DType()))
		}
		if err := out.Resize(in.Shape()); err != nil {
			return fmt.Errorf("quantized activation: %w", err)
		}
	}
	qOut := out.Quant()
	src, dst := in.AsUint8(), out.AsUint8()

	a.pool.For(len(src), func(start, end int) {
		buf := make([]float32, end-start)
		Dequantize(buf, src[start:end], qIn)
		a.params.ApplySlice(buf)
		Quantize(dst[start:end], buf, qOut)
	})
	return nil
}
