package main

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/born-ml/convcore/internal/backend/accel"
	"github.com/born-ml/convcore/internal/backend/cpu"
	"github.com/born-ml/convcore/internal/config"
	"github.com/born-ml/convcore/internal/ops"
	"github.com/born-ml/convcore/internal/parallel"
	"github.com/born-ml/convcore/internal/tensor"
)

// operands are the host copies of an operator's inputs.
type operands struct {
	in, filter, bias *tensor.Tensor
}

// synthesize creates random operands from the shapes and quantization
// listed in def. The bias shape defaults to the filter's output channels.
func synthesize(def *config.OpDef, rng *rand.Rand) (operands, error) {
	dtype, err := def.DataType()
	if err != nil {
		return operands{}, err
	}
	shapeOf := func(name string) (tensor.Shape, error) {
		s, ok := def.Shapes[name]
		if !ok {
			return nil, fmt.Errorf("operator %q: no shape for %q", def.Name, name)
		}
		return tensor.Shape(s), nil
	}
	create := func(name string, shape tensor.Shape) (*tensor.Tensor, error) {
		var t *tensor.Tensor
		switch dtype {
		case tensor.Uint8:
			q, ok := def.Quantization[name]
			if !ok {
				return nil, fmt.Errorf("operator %q: no quantization for %q", def.Name, name)
			}
			t = tensor.RandomUint8(shape, rng)
			if err := t.SetQuantization(q.Scale, q.ZeroPoint); err != nil {
				return nil, fmt.Errorf("operator %q: %q: %w", def.Name, name, err)
			}
		default:
			t = tensor.UniformFloat32(shape, rng)
		}
		if def.IsWeight(name) {
			t.MarkWeight()
		}
		return t, nil
	}

	var o operands
	inShape, err := shapeOf(def.Inputs[0])
	if err != nil {
		return o, err
	}
	filterShape, err := shapeOf(def.Inputs[1])
	if err != nil {
		return o, err
	}
	if o.in, err = create(def.Inputs[0], inShape); err != nil {
		return o, err
	}
	if o.filter, err = create(def.Inputs[1], filterShape); err != nil {
		return o, err
	}
	if def.HasBias() {
		name := def.Inputs[2]
		shape, err := shapeOf(name)
		if err != nil {
			shape = tensor.Shape{filterShape[0]}
		}
		// Bias is float in both pipelines; the quantized one folds it into
		// requantization.
		o.bias = tensor.RandomFloat32(shape, rng)
		if def.IsWeight(name) {
			o.bias.MarkWeight()
		}
	}
	return o, nil
}

// stage stores the operands in ws. GPU runtime tensors are converted to
// device formats here; weights are left to the operator's negotiation.
func stage(ws *ops.Workspace, def *config.OpDef, o operands) error {
	device, err := def.DeviceType()
	if err != nil {
		return err
	}
	mem, err := def.Memory()
	if err != nil {
		return err
	}
	filterContent := tensor.ContentConv2DFilter
	if def.IsDepthwise() {
		filterContent = tensor.ContentDWConv2DFilter
	}

	put := func(name string, t *tensor.Tensor, content tensor.ContentType) error {
		if device != tensor.GPU || t.IsWeight() {
			ws.Put(name, t)
			return nil
		}
		dt, err := accel.Transform(t, tensor.Format{Memory: mem, Content: content})
		if err != nil {
			return fmt.Errorf("stage %q: %w", name, err)
		}
		ws.Put(name, dt)
		return nil
	}

	if err := put(def.Inputs[0], o.in, tensor.ContentInOut); err != nil {
		return err
	}
	if err := put(def.Inputs[1], o.filter, filterContent); err != nil {
		return err
	}
	if o.bias != nil {
		return put(def.Inputs[2], o.bias, tensor.ContentArgument)
	}
	return nil
}

// reference computes the expected output in real (dequantized) values with
// the CPU reference convolution.
func reference(ctx context.Context, op *ops.Operator, def *config.OpDef, o operands) ([]float32, error) {
	backend := cpu.New(parallel.WithWorkers(1))
	in, filter := dequantized(o.in), dequantized(o.filter)

	out := tensor.Empty(tensor.Float32, tensor.CPU)
	var err error
	if def.IsDepthwise() {
		err = backend.DepthwiseReference(op.Params()).Compute(ctx, in, filter, nil, out)
	} else {
		err = backend.Reference(op.Params()).Compute(ctx, in, filter, nil, out)
	}
	if err != nil {
		return nil, err
	}
	if err := backend.BiasAdd().Compute(ctx, out, o.bias, out); err != nil {
		return nil, err
	}
	if err := backend.Activation(op.Activation()).Compute(ctx, out, out); err != nil {
		return nil, err
	}
	return out.AsFloat32(), nil
}

// actual returns the operator output as real host values.
func actual(out *tensor.Tensor) ([]float32, error) {
	if !out.Format().IsHost() {
		host, err := accel.ToHost(out)
		if err != nil {
			return nil, err
		}
		out = host
	}
	return dequantized(out).AsFloat32(), nil
}

func dequantized(t *tensor.Tensor) *tensor.Tensor {
	if t.DType() != tensor.Uint8 {
		return t
	}
	f := tensor.Zeros(t.Shape(), tensor.Float32)
	cpu.Dequantize(f.AsFloat32(), t.AsUint8(), t.Quant())
	return f
}
