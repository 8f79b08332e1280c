// Package ops is the operator layer: it selects a convolution strategy once
// per operator, runs it and applies the bias and activation stages.
package ops

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/born-ml/convcore/internal/activation"
	"github.com/born-ml/convcore/internal/backend/accel"
	"github.com/born-ml/convcore/internal/backend/cpu"
	"github.com/born-ml/convcore/internal/config"
	"github.com/born-ml/convcore/internal/conv"
	"github.com/born-ml/convcore/internal/logger"
	"github.com/born-ml/convcore/internal/parallel"
	"github.com/born-ml/convcore/internal/tensor"
)

// Option configures an Operator.
type Option func(*options)

type options struct {
	pool     *parallel.Pool
	registry *Registry
	selector Selector
	caps     *Capabilities
	device   accel.Device
	log      logger.Logger
}

// WithPool runs CPU strategies and the host device on pool.
func WithPool(pool *parallel.Pool) Option { return func(o *options) { o.pool = pool } }

// WithRegistry replaces the built-in strategy registry.
func WithRegistry(r *Registry) Option { return func(o *options) { o.registry = r } }

// WithSelector replaces DefaultSelector.
func WithSelector(s Selector) Option { return func(o *options) { o.selector = s } }

// WithCapabilities overrides the detected CPU capabilities.
func WithCapabilities(c Capabilities) Option { return func(o *options) { o.caps = &c } }

// WithDevice sets the accelerator GPU operators dispatch to. The default is
// a HostDevice on the operator's pool.
func WithDevice(d accel.Device) Option { return func(o *options) { o.device = d } }

// WithLogger sets the operator logger.
func WithLogger(l logger.Logger) Option { return func(o *options) { o.log = l } }

// Operator is one convolution or depthwise convolution node.
type Operator struct {
	id     uuid.UUID
	def    *config.OpDef
	kind   Kind
	target Target
	env    Env

	registry *Registry
	selector Selector
	caps     Capabilities
	log      logger.Logger

	bias       BiasAdder
	activation Activator

	once     sync.Once
	impl     Impl
	strategy Strategy
	failure  any // panic value of a failed selection
}

// New builds an operator from its definition. GPU operators negotiate the
// device format of their weight tensors here, replacing them in ws.
func New(def *config.OpDef, ws *Workspace, opts ...Option) (*Operator, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = NewRegistry()
	}
	if o.selector == nil {
		o.selector = DefaultSelector
	}
	if o.log == nil {
		o.log = logger.Discard()
	}
	caps := DetectCapabilities()
	if o.caps != nil {
		caps = *o.caps
	}

	params, err := def.ConvParams()
	if err != nil {
		return nil, err
	}
	act, err := def.ActivationParams()
	if err != nil {
		return nil, err
	}
	device, _ := def.DeviceType()
	dtype, _ := def.DataType()

	op := &Operator{
		id:       uuid.New(),
		def:      def,
		target:   Target{Device: device, DType: dtype},
		registry: o.registry,
		selector: o.selector,
		caps:     caps,
		env: Env{
			CPU:        cpu.New(o.pool),
			Params:     params,
			Activation: act,
		},
	}
	if def.IsDepthwise() {
		op.kind = DepthwiseConv2D
	}
	op.log = o.log.With("op", def.Name, "id", op.id.String())

	if device == tensor.GPU {
		if err := op.negotiate(ws, def, o.device, o.pool); err != nil {
			return nil, err
		}
	}

	stages, ok := op.registry.Stages(StageKey{device, dtype})
	if !ok {
		return nil, errors.Errorf("operator %q: no post stages for %s/%s", def.Name, device, dtype)
	}
	op.bias, op.activation = stages(&op.env)
	return op, nil
}

// negotiate builds the accelerator kernel and converts weight tensors to
// the layouts it expects. Runtime tensors keep the format their producer chose.
func (op *Operator) negotiate(ws *Workspace, def *config.OpDef, dev accel.Device, pool *parallel.Pool) error {
	if op.target.DType != tensor.Float32 {
		return errors.Errorf("operator %q: GPU operators run float32, got %s", def.Name, op.target.DType)
	}
	mem, err := def.Memory()
	if err != nil {
		return errors.Wrapf(err, "operator %q", def.Name)
	}
	if dev == nil {
		dev = accel.NewHostDevice(pool)
	}
	kernel, err := accel.NewKernel(mem, dev)
	if err != nil {
		return errors.Wrapf(err, "operator %q", def.Name)
	}
	op.env.Kernel = kernel

	weight := func(i int) (*tensor.Tensor, bool) {
		if i >= len(def.Inputs) || def.Inputs[i] == "" {
			return nil, false
		}
		t, ok := ws.Get(def.Inputs[i])
		if !ok || !(t.IsWeight() || def.IsWeight(def.Inputs[i])) {
			return nil, false
		}
		return t, true
	}
	replace := func(i int, t *tensor.Tensor, f tensor.Format) error {
		dt, err := accel.Transform(t, f)
		if err != nil {
			return errors.Wrapf(err, "operator %q", def.Name)
		}
		dt.MarkWeight()
		ws.Put(def.Inputs[i], dt)
		op.log.Debug("weight transformed", "tensor", def.Inputs[i], "format", f.String())
		return nil
	}

	if in, ok := weight(0); ok {
		if err := replace(0, in, tensor.Format{Memory: mem, Content: tensor.ContentInOut}); err != nil {
			return err
		}
	}

	// Winograd needs the filter transformed ahead of time, so a filter
	// produced at runtime always uses the direct layout.
	block := 0
	if filter, ok := weight(1); ok {
		f := tensor.Format{Memory: mem, Content: tensor.ContentConv2DFilter}
		if op.kind == DepthwiseConv2D {
			f.Content = tensor.ContentDWConv2DFilter
		} else if b := def.WinoBlockSize(); b > 0 &&
			kernel.CheckUseWinograd(filter.Shape(), op.env.Params.Strides, op.env.Params.Dilations, &b) {
			block = b
			f = tensor.Format{Memory: mem, Content: tensor.ContentWinogradFilter, BlockSize: b}
		}
		if err := replace(1, filter, f); err != nil {
			return err
		}
	}
	op.env.BlockSize = block

	if bias, ok := weight(2); ok {
		if err := replace(2, bias, tensor.Format{Memory: mem, Content: tensor.ContentArgument}); err != nil {
			return err
		}
	}
	op.log.Debug("layouts negotiated", "memory", mem.String(), "device", dev.Name(), "wino_block_size", block)
	return nil
}

// ID returns the operator instance id used in log records.
func (op *Operator) ID() uuid.UUID { return op.id }

// Name returns the operator name.
func (op *Operator) Name() string { return op.def.Name }

// Impl returns the selected strategy, or Ref before the first Compute.
func (op *Operator) Impl() Impl { return op.impl }

// BlockSize returns the negotiated winograd block of a GPU operator.
func (op *Operator) BlockSize() int { return op.env.BlockSize }

// Params returns the convolution parameters.
func (op *Operator) Params() conv.Params { return op.env.Params }

// Activation returns the fused activation.
func (op *Operator) Activation() activation.Params { return op.env.Activation }

// Run reads the operands from ws by name and writes the output back into it.
func (op *Operator) Run(ctx context.Context, ws *Workspace) error {
	in, ok := ws.Get(op.def.Inputs[0])
	if !ok {
		panic("operator " + op.def.Name + ": missing input " + op.def.Inputs[0])
	}
	filter, ok := ws.Get(op.def.Inputs[1])
	if !ok {
		panic("operator " + op.def.Name + ": missing filter " + op.def.Inputs[1])
	}
	var bias *tensor.Tensor
	if op.def.HasBias() {
		bias, _ = ws.Get(op.def.Inputs[2])
	}
	out := ws.GetOrCreate(op.def.Output, op.target.DType, op.target.Device)
	if q, ok := op.def.Quantization[op.def.Output]; ok && out.Scale() == 0 {
		if err := out.SetQuantization(q.Scale, q.ZeroPoint); err != nil {
			return errors.Wrapf(err, "operator %q: output quantization", op.def.Name)
		}
	}
	return op.Compute(ctx, in, filter, bias, out)
}

// Compute runs strategy, bias add and activation in that order. The
// strategy is selected on the first call and reused for the operator's
// lifetime without re-checking later shapes.
func (op *Operator) Compute(ctx context.Context, in, filter, bias, out *tensor.Tensor) error {
	op.once.Do(func() {
		defer func() {
			if r := recover(); r != nil {
				op.failure = r
				panic(r)
			}
		}()
		op.impl, op.strategy = op.resolve(in, filter)
	})
	if op.strategy == nil {
		panic(op.failure)
	}

	if err := op.strategy.Compute(ctx, in, filter, bias, out); err != nil {
		return err
	}
	if err := op.bias.Compute(ctx, out, bias, out); err != nil {
		return err
	}
	return op.activation.Compute(ctx, out, out)
}

// resolve selects the strategy. It panics when neither the selected
// implementation nor Ref is registered.
func (op *Operator) resolve(in, filter *tensor.Tensor) (Impl, Strategy) {
	sig := conv.SignatureOf(in.Shape(), filter.Shape(), op.env.Params, op.kind == DepthwiseConv2D)
	impl := op.selector.Select(sig, op.target, op.caps)
	key := Key{Kind: op.kind, Device: op.target.Device, DType: op.target.DType, Impl: impl}
	factory, ok := op.registry.Strategy(key)
	if !ok && impl != Ref {
		op.log.Warn("strategy not registered, using reference", "key", key.String())
		impl, key.Impl = Ref, Ref
		factory, ok = op.registry.Strategy(key)
	}
	if !ok {
		panic("operator " + op.def.Name + ": no strategy registered for " + key.String())
	}
	strategy := factory(&op.env)
	op.log.Debug("strategy selected", "impl", impl.String(), "signature", sig.String())
	return impl, strategy
}
