package conv

import (
	"fmt"

	"github.com/born-ml/convcore/internal/tensor"
)

// ComputeOutputSize resolves the NHWC output shape and the total vertical and
// horizontal paddings for an NHWC input and an OHWI filter. Depthwise filters
// are (C_out, KH, KW, 1) with C_out a multiple of C_in.
func ComputeOutputSize(input, filter tensor.Shape, p Params, depthwise bool) (tensor.Shape, [2]int, error) {
	op := "conv2d"
	if depthwise {
		op = "depthwise_conv2d"
	}
	fail := func(format string, args ...any) (tensor.Shape, [2]int, error) {
		return nil, [2]int{}, &ShapeError{Op: op, Input: input, Filter: filter, Reason: fmt.Sprintf(format, args...)}
	}

	if len(input) != 4 || len(filter) != 4 {
		return fail("input and filter must be 4D")
	}
	if err := input.Validate(); err != nil {
		return fail("input: %v", err)
	}
	if err := filter.Validate(); err != nil {
		return fail("filter: %v", err)
	}
	if err := p.Validate(); err != nil {
		return fail("%v", err)
	}

	inC := input[3]
	outC := filter[0]
	if depthwise {
		if filter[3] != 1 {
			return fail("depthwise filter must have a trailing dimension of 1, got %d", filter[3])
		}
		if outC%inC != 0 {
			return fail("output channels %d not divisible by input channels %d", outC, inC)
		}
	} else if filter[3] != inC {
		return fail("filter input channels %d != input channels %d", filter[3], inC)
	}

	var outHW [2]int
	var paddings [2]int
	for axis := 0; axis < 2; axis++ {
		in := input[1+axis]
		k := filter[1+axis]
		s := p.Strides[axis]
		kEff := (k-1)*p.Dilations[axis] + 1

		var out int
		switch p.Padding {
		case Explicit:
			num := in + p.PaddingValues[axis] - kEff
			if num < 0 {
				return fail("axis %d: extent %d plus padding %d is smaller than the dilated filter %d", axis, in, p.PaddingValues[axis], kEff)
			}
			if p.Round == Ceil {
				out = (num+s-1)/s + 1
			} else {
				out = num/s + 1
			}
			paddings[axis] = p.PaddingValues[axis]
		case Valid:
			if in < kEff {
				return fail("axis %d: extent %d smaller than the dilated filter %d", axis, in, kEff)
			}
			out = (in-kEff)/s + 1
		case Same:
			out = (in-1)/s + 1
		case Full:
			out = (in+kEff-2)/s + 1
		default:
			return fail("unknown padding type %d", p.Padding)
		}
		if out <= 0 {
			return fail("axis %d: non-positive output extent %d", axis, out)
		}
		if p.Padding != Explicit {
			paddings[axis] = max(0, (out-1)*s+kEff-in)
		}
		outHW[axis] = out
	}

	return tensor.Shape{input[0], outHW[0], outHW[1], outC}, paddings, nil
}

// CheckOutputBatch verifies a caller-provided output agrees with the input batch.
func CheckOutputBatch(input, output tensor.Shape) error {
	if len(output) == 0 {
		return nil
	}
	if len(input) == 0 || input[0] != output[0] {
		return &ShapeError{Op: "conv2d", Input: input, Reason: fmt.Sprintf("output batch %v does not match input batch", output)}
	}
	return nil
}
