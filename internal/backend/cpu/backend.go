// Package cpu implements the CPU convolution strategies: the dense float
// family, depthwise variants, the quantized uint8 pipeline and the bias and
// activation post stages.
package cpu

import (
	"fmt"

	"github.com/born-ml/convcore/internal/activation"
	"github.com/born-ml/convcore/internal/conv"
	"github.com/born-ml/convcore/internal/parallel"
	"github.com/born-ml/convcore/internal/tensor"
)

// CPUBackend builds CPU strategies bound to one worker pool.
type CPUBackend struct {
	device tensor.Device
	pool   *parallel.Pool
}

// New creates a CPU backend. A nil pool means the process-wide default pool.
func New(pool *parallel.Pool) *CPUBackend {
	if pool == nil {
		pool = parallel.Default()
	}
	return &CPUBackend{
		device: tensor.CPU,
		pool:   pool,
	}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}

// Pool returns the worker pool strategies run on.
func (cpu *CPUBackend) Pool() *parallel.Pool {
	return cpu.pool
}

// Reference returns the generic float convolution.
func (cpu *CPUBackend) Reference(p conv.Params) *Reference {
	return &Reference{params: p, pool: cpu.pool}
}

// Direct returns a fixed-size float convolution for kh×kw filters at stride sh×sw.
func (cpu *CPUBackend) Direct(kh, kw, sh, sw int, p conv.Params) *Direct {
	return &Direct{kh: kh, kw: kw, sh: sh, sw: sw, params: p, pool: cpu.pool}
}

// Conv1x1 returns the pointwise float convolution.
func (cpu *CPUBackend) Conv1x1(p conv.Params) *Conv1x1 {
	return &Conv1x1{params: p, pool: cpu.pool}
}

// Winograd3x3 returns the F(2×2, 3×3) transform-domain convolution.
func (cpu *CPUBackend) Winograd3x3(p conv.Params) *Winograd3x3 {
	return newWinograd3x3(p, cpu.pool)
}

// DepthwiseReference returns the generic float depthwise convolution.
func (cpu *CPUBackend) DepthwiseReference(p conv.Params) *DepthwiseReference {
	return &DepthwiseReference{params: p, pool: cpu.pool}
}

// Depthwise3x3 returns the 3×3 float depthwise convolution at the given stride.
func (cpu *CPUBackend) Depthwise3x3(stride int, p conv.Params) *Depthwise3x3 {
	return &Depthwise3x3{stride: stride, params: p, pool: cpu.pool}
}

// QuantizedConv returns the uint8 im2col + integer GEMM convolution.
func (cpu *CPUBackend) QuantizedConv(p conv.Params) *QuantizedConv {
	return &QuantizedConv{params: p, pool: cpu.pool}
}

// QuantizedDepthwise returns the uint8 depthwise convolution.
func (cpu *CPUBackend) QuantizedDepthwise(p conv.Params) *QuantizedDepthwise {
	return &QuantizedDepthwise{params: p, pool: cpu.pool}
}

// BiasAdd returns the float bias stage.
func (cpu *CPUBackend) BiasAdd() *BiasAdd {
	return &BiasAdd{pool: cpu.pool}
}

// Activation returns the float activation stage.
func (cpu *CPUBackend) Activation(p activation.Params) *Activation {
	return &Activation{params: p, pool: cpu.pool}
}

// QuantizedActivation returns the uint8 activation stage.
func (cpu *CPUBackend) QuantizedActivation(p activation.Params) *QuantizedActivation {
	return &QuantizedActivation{params: p, pool: cpu.pool}
}

// checkOperands enforces the strategy contract: present, host resident
// tensors of the expected type. Violations are programming errors.
func checkOperands(op string, dtype tensor.DataType, in, filter, out *tensor.Tensor) {
	if in == nil || filter == nil || out == nil {
		panic(fmt.Sprintf("%s: missing input, filter or output tensor", op))
	}
	for _, t := range []*tensor.Tensor{in, filter, out} {
		if t.DType() != dtype {
			panic(fmt.Sprintf("%s: %s has dtype %s, want %s", op, t, t.DType(), dtype))
		}
		if !t.Format().IsHost() {
			panic(fmt.Sprintf("%s: %s is not in host layout", op, t))
		}
	}
}

// prepare validates operands, resolves the geometry and sizes the output.
func prepare(op string, dtype tensor.DataType, in, filter, out *tensor.Tensor, p conv.Params, depthwise bool) (conv.Geometry, error) {
	checkOperands(op, dtype, in, filter, out)
	g := conv.MustResolve(in.Shape(), filter.Shape(), p, depthwise)
	return g, sizeOutput(op, in, out, g)
}

// sizeOutput resizes out to the geometry's output shape. An output that
// already has a shape must carry the input's batch.
func sizeOutput(op string, in, out *tensor.Tensor, g conv.Geometry) error {
	if err := conv.CheckOutputBatch(in.Shape(), out.Shape()); err != nil {
		panic(err)
	}
	if err := out.Resize(g.OutputShape()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
