// Package conv holds convolution parameters, padding policies and the
// output-geometry resolver shared by every convolution strategy.
package conv

import (
	"fmt"
	"strings"
)

// PaddingType is a named padding policy.
type PaddingType int

// Padding policies. Explicit means the totals in Params.PaddingValues are used.
const (
	Explicit PaddingType = iota
	Valid
	Same
	Full
)

// String returns the configuration name of the policy.
func (p PaddingType) String() string {
	switch p {
	case Explicit:
		return "EXPLICIT"
	case Valid:
		return "VALID"
	case Same:
		return "SAME"
	case Full:
		return "FULL"
	default:
		return "UNKNOWN"
	}
}

// ParsePaddingType converts "VALID", "SAME" or "FULL" to a PaddingType.
func ParsePaddingType(name string) (PaddingType, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "VALID":
		return Valid, nil
	case "SAME":
		return Same, nil
	case "FULL":
		return Full, nil
	default:
		return Explicit, fmt.Errorf("unknown padding type %q", name)
	}
}

// RoundType selects floor or ceil for the explicit output-size formula.
type RoundType int

// Rounding modes.
const (
	Floor RoundType = iota
	Ceil
)

// Params are the convolution parameters read at operator construction.
// Exactly one of Padding (a policy) or PaddingValues (explicit totals) is set.
type Params struct {
	Strides       [2]int
	Dilations     [2]int
	Padding       PaddingType
	PaddingValues []int // vertical total, horizontal total
	Round         RoundType
}

// DefaultParams returns stride 1, dilation 1, VALID padding.
func DefaultParams() Params {
	return Params{
		Strides:   [2]int{1, 1},
		Dilations: [2]int{1, 1},
		Padding:   Valid,
	}
}

// Validate checks strides, dilations and that exactly one padding form is set.
func (p Params) Validate() error {
	for i := 0; i < 2; i++ {
		if p.Strides[i] <= 0 {
			return fmt.Errorf("stride %v must be positive", p.Strides)
		}
		if p.Dilations[i] <= 0 {
			return fmt.Errorf("dilation %v must be positive", p.Dilations)
		}
	}
	if p.Padding == Explicit {
		if len(p.PaddingValues) != 2 {
			return fmt.Errorf("explicit padding needs 2 values, got %d", len(p.PaddingValues))
		}
		if p.PaddingValues[0] < 0 || p.PaddingValues[1] < 0 {
			return fmt.Errorf("explicit padding %v must be non-negative", p.PaddingValues)
		}
		return nil
	}
	if len(p.PaddingValues) != 0 {
		return fmt.Errorf("padding policy %s and explicit values %v are both set", p.Padding, p.PaddingValues)
	}
	return nil
}

// String formats the parameters for logs.
func (p Params) String() string {
	pad := p.Padding.String()
	if p.Padding == Explicit {
		pad = fmt.Sprint(p.PaddingValues)
	}
	return fmt.Sprintf("strides=%v dilations=%v padding=%s", p.Strides, p.Dilations, pad)
}
