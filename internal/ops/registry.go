package ops

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/born-ml/convcore/internal/activation"
	"github.com/born-ml/convcore/internal/backend/accel"
	"github.com/born-ml/convcore/internal/backend/cpu"
	"github.com/born-ml/convcore/internal/conv"
	"github.com/born-ml/convcore/internal/tensor"
)

// Strategy is one convolution routine. The bias operand may be nil.
type Strategy interface {
	Compute(ctx context.Context, in, filter, bias, out *tensor.Tensor) error
}

// BiasAdder adds a per-channel bias in place. A nil bias is a no-op.
type BiasAdder interface {
	Compute(ctx context.Context, in, bias, out *tensor.Tensor) error
}

// Activator applies the fused activation in place.
type Activator interface {
	Compute(ctx context.Context, in, out *tensor.Tensor) error
}

// Kind is the operator type.
type Kind int

// Operator kinds.
const (
	Conv2D Kind = iota
	DepthwiseConv2D
)

func (k Kind) String() string {
	if k == DepthwiseConv2D {
		return "DepthwiseConv2D"
	}
	return "Conv2D"
}

// Key selects a strategy factory.
type Key struct {
	Kind   Kind
	Device tensor.Device
	DType  tensor.DataType
	Impl   Impl
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", k.Kind, k.Device, k.DType, k.Impl)
}

// StageKey selects the post stages of a device and element type.
type StageKey struct {
	Device tensor.Device
	DType  tensor.DataType
}

// Env is what factories build strategies from.
type Env struct {
	CPU        *cpu.CPUBackend
	Kernel     accel.Kernel // GPU operators only
	Params     conv.Params
	Activation activation.Params
	BlockSize  int // negotiated winograd block, GPU only
}

// StrategyFactory builds a strategy for one operator.
type StrategyFactory func(env *Env) Strategy

// StageFactory builds the post stages for one operator.
type StageFactory func(env *Env) (BiasAdder, Activator)

// Registry maps keys to strategy and post-stage factories.
type Registry struct {
	mu         sync.RWMutex
	strategies map[Key]StrategyFactory
	stages     map[StageKey]StageFactory
}

// NewRegistry creates a registry holding every built-in strategy.
func NewRegistry() *Registry {
	r := &Registry{
		strategies: make(map[Key]StrategyFactory),
		stages:     make(map[StageKey]StageFactory),
	}
	r.registerCPUFloat()
	r.registerCPUQuantized()
	r.registerGPU()
	return r
}

// Register adds or replaces a strategy factory.
func (r *Registry) Register(k Key, f StrategyFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[k] = f
}

// RegisterStages adds or replaces the post-stage factory of k.
func (r *Registry) RegisterStages(k StageKey, f StageFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages[k] = f
}

// Strategy returns the factory for k.
func (r *Registry) Strategy(k Key) (StrategyFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.strategies[k]
	return f, ok
}

// Stages returns the post-stage factory for k.
func (r *Registry) Stages(k StageKey) (StageFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.stages[k]
	return f, ok
}

func (r *Registry) registerCPUFloat() {
	key := func(kind Kind, impl Impl) Key {
		return Key{Kind: kind, Device: tensor.CPU, DType: tensor.Float32, Impl: impl}
	}
	direct := func(kh, kw, sh, sw int) StrategyFactory {
		return func(env *Env) Strategy { return env.CPU.Direct(kh, kw, sh, sw, env.Params) }
	}

	r.Register(key(Conv2D, Ref), func(env *Env) Strategy { return env.CPU.Reference(env.Params) })
	r.Register(key(Conv2D, K1x1), func(env *Env) Strategy { return env.CPU.Conv1x1(env.Params) })
	r.Register(key(Conv2D, K3x3Winograd), func(env *Env) Strategy { return env.CPU.Winograd3x3(env.Params) })
	r.Register(key(Conv2D, K3x3S1), direct(3, 3, 1, 1))
	for s, impl := range directTable {
		if impl != K1x1 {
			r.Register(key(Conv2D, impl), direct(s.kh, s.kw, s.sh, s.sw))
		}
	}

	r.Register(key(DepthwiseConv2D, Ref), func(env *Env) Strategy { return env.CPU.DepthwiseReference(env.Params) })
	r.Register(key(DepthwiseConv2D, DW3x3S1), func(env *Env) Strategy { return env.CPU.Depthwise3x3(1, env.Params) })
	r.Register(key(DepthwiseConv2D, DW3x3S2), func(env *Env) Strategy { return env.CPU.Depthwise3x3(2, env.Params) })

	r.RegisterStages(StageKey{tensor.CPU, tensor.Float32}, func(env *Env) (BiasAdder, Activator) {
		return env.CPU.BiasAdd(), env.CPU.Activation(env.Activation)
	})
}

func (r *Registry) registerCPUQuantized() {
	r.Register(Key{Conv2D, tensor.CPU, tensor.Uint8, Ref}, func(env *Env) Strategy {
		return env.CPU.QuantizedConv(env.Params)
	})
	r.Register(Key{DepthwiseConv2D, tensor.CPU, tensor.Uint8, Ref}, func(env *Env) Strategy {
		return env.CPU.QuantizedDepthwise(env.Params)
	})
	// Bias is folded into requantization.
	r.RegisterStages(StageKey{tensor.CPU, tensor.Uint8}, func(env *Env) (BiasAdder, Activator) {
		return noopBias{}, env.CPU.QuantizedActivation(env.Activation)
	})
}

func (r *Registry) registerGPU() {
	r.Register(Key{Conv2D, tensor.GPU, tensor.Float32, Ref}, func(env *Env) Strategy {
		return &gpuStrategy{kernel: env.Kernel, params: env.Params, act: env.Activation, blockSize: env.BlockSize}
	})
	r.Register(Key{DepthwiseConv2D, tensor.GPU, tensor.Float32, Ref}, func(env *Env) Strategy {
		return &gpuStrategy{kernel: env.Kernel, params: env.Params, act: env.Activation, depthwise: true}
	})
	// Bias and activation run inside the device program.
	r.RegisterStages(StageKey{tensor.GPU, tensor.Float32}, func(*Env) (BiasAdder, Activator) {
		return noopBias{}, noopActivation{}
	})
}

// gpuStrategy runs the accelerator kernel with fused bias and activation.
type gpuStrategy struct {
	kernel    accel.Kernel
	params    conv.Params
	act       activation.Params
	blockSize int
	depthwise bool
}

func (s *gpuStrategy) Compute(ctx context.Context, in, filter, bias, out *tensor.Tensor) error {
	// A bias produced at runtime arrives in host layout and is staged per call.
	if bias != nil && bias.Format().IsHost() {
		staged, err := accel.Transform(bias, tensor.Format{Memory: s.kernel.Memory(), Content: tensor.ContentArgument})
		if err != nil {
			return errors.Wrap(err, "stage bias")
		}
		bias = staged
	}
	if s.depthwise {
		return s.kernel.ComputeDepthwise(ctx, in, filter, bias, s.params, s.act, out)
	}
	return s.kernel.Compute(ctx, in, filter, bias, s.params, s.act, s.blockSize, out)
}

type noopBias struct{}

func (noopBias) Compute(context.Context, *tensor.Tensor, *tensor.Tensor, *tensor.Tensor) error {
	return nil
}

type noopActivation struct{}

func (noopActivation) Compute(context.Context, *tensor.Tensor, *tensor.Tensor) error { return nil }
