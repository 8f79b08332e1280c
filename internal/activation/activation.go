// Package activation defines the fused activations applied after a convolution.
package activation

import (
	"fmt"
	"math"
	"strings"
)

// Type identifies an activation function.
type Type int

// Supported activations.
const (
	NoOp Type = iota
	ReLU
	ReLUX
	LeakyReLU
	PReLU
	HardSigmoid
	Tanh
	Sigmoid
)

var names = map[Type]string{
	NoOp:        "NOOP",
	ReLU:        "RELU",
	ReLUX:       "RELUX",
	LeakyReLU:   "LEAKYRELU",
	PReLU:       "PRELU",
	HardSigmoid: "HARDSIGMOID",
	Tanh:        "TANH",
	Sigmoid:     "SIGMOID",
}

// String returns the configuration name of the activation.
func (t Type) String() string {
	if n, ok := names[t]; ok {
		return n
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// Parse converts a configuration name to a Type. The empty string is NOOP.
func Parse(name string) (Type, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	if upper == "" {
		return NoOp, nil
	}
	for t, n := range names {
		if n == upper {
			return t, nil
		}
	}
	return NoOp, fmt.Errorf("unknown activation type %q", name)
}

// Params fully describe one activation.
type Params struct {
	Type             Type
	Limit            float32 // RELUX upper bound
	Coefficient      float32 // LEAKYRELU / PRELU negative slope
	HardSigmoidAlpha float32
	HardSigmoidBeta  float32
}

// IsNoOp reports whether applying the activation leaves values unchanged.
func (p Params) IsNoOp() bool {
	return p.Type == NoOp
}

// Apply evaluates the activation at x.
func (p Params) Apply(x float32) float32 {
	switch p.Type {
	case NoOp:
		return x
	case ReLU:
		return max(x, 0)
	case ReLUX:
		return min(max(x, 0), p.Limit)
	case LeakyReLU, PReLU:
		if x < 0 {
			return x * p.Coefficient
		}
		return x
	case HardSigmoid:
		return min(max(p.HardSigmoidAlpha*x+p.HardSigmoidBeta, 0), 1)
	case Tanh:
		return float32(math.Tanh(float64(x)))
	case Sigmoid:
		return float32(1 / (1 + math.Exp(-float64(x))))
	default:
		panic(fmt.Sprintf("activation: unsupported type %v", p.Type))
	}
}

// ApplySlice evaluates the activation in place over data.
func (p Params) ApplySlice(data []float32) {
	switch p.Type {
	case NoOp:
	case ReLU:
		for i, v := range data {
			if v < 0 {
				data[i] = 0
			}
		}
	default:
		for i, v := range data {
			data[i] = p.Apply(v)
		}
	}
}

func (p Params) String() string {
	switch p.Type {
	case ReLUX:
		return fmt.Sprintf("RELUX(%g)", p.Limit)
	case LeakyReLU, PReLU:
		return fmt.Sprintf("%s(%g)", p.Type, p.Coefficient)
	case HardSigmoid:
		return fmt.Sprintf("HARDSIGMOID(%g, %g)", p.HardSigmoidAlpha, p.HardSigmoidBeta)
	default:
		return p.Type.String()
	}
}
