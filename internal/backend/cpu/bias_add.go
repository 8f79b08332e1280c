package cpu

import (
	"context"
	"fmt"

	"github.com/born-ml/convcore/internal/parallel"
	"github.com/born-ml/convcore/internal/tensor"
)

// BiasAdd adds a per-channel bias to an NHWC float tensor:
// out[..., c] = in[..., c] + bias[c]. A nil bias copies in to out.
// When in and out are the same tensor the stage runs in place.
type BiasAdd struct {
	pool *parallel.Pool
}

// Compute applies the bias.
func (s *BiasAdd) Compute(_ context.Context, in, bias, out *tensor.Tensor) error {
	if in == nil || out == nil {
		panic("bias_add: missing input or output tensor")
	}
	if err := sameShapeOutput("bias_add", in, out); err != nil {
		return err
	}
	if bias == nil {
		return nil
	}
	channels := in.Dim(in.Rank() - 1)
	if bias.NumElements() != channels {
		panic(fmt.Sprintf("bias_add: bias has %d elements, want %d", bias.NumElements(), channels))
	}
	b := bias.AsFloat32()[:channels]
	src, dst := in.AsFloat32(), out.AsFloat32()
	pixels := in.NumElements() / channels

	s.pool.For(pixels, func(start, end int) {
		for p := start; p < end; p++ {
			x := src[p*channels:][:channels]
			y := dst[p*channels:][:channels]
			for c, v := range x {
				y[c] = v + b[c]
			}
		}
	})
	return nil
}

// sameShapeOutput makes out a copy of in unless they are the same tensor.
func sameShapeOutput(op string, in, out *tensor.Tensor) error {
	if in == out {
		return nil
	}
	if out.DType() != in.DType() {
		panic(fmt.Sprintf("%s: output dtype %s != input dtype %s", op, out.DType(), in.DType()))
	}
	if err := out.Resize(in.Shape()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	copy(out.Data(), in.Data())
	return nil
}
