package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/convcore/internal/tensor"
)

// requantizer maps int32 accumulators at scale s_in·s_f to uint8 at the
// output scale: q = clamp(round(acc · s_in·s_f/s_out) + zp_out, 0, 255).
type requantizer struct {
	multiplier float64
	zeroPoint  int32
}

func newRequantizer(in, filter, out *tensor.Tensor) requantizer {
	if out.Scale() <= 0 {
		panic(fmt.Sprintf("quantized conv2d: output %s has no quantization scale", out))
	}
	return requantizer{
		multiplier: float64(in.Scale()) * float64(filter.Scale()) / float64(out.Scale()),
		zeroPoint:  out.ZeroPoint(),
	}
}

// apply rounds half away from zero, matching math.Round.
func (r requantizer) apply(acc int32) uint8 {
	return saturateUint8(int64(math.Round(float64(acc)*r.multiplier)) + int64(r.zeroPoint))
}

func saturateUint8(v int64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// quantizedBias converts a bias tensor to int32 at the accumulator scale
// s_in·s_f. Int32 bias is taken as already at that scale; float32 bias is
// divided by it; uint8 bias is dequantized with its own parameters first.
// A nil bias yields nil.
func quantizedBias(bias *tensor.Tensor, inScale, filterScale float32, channels int) []int32 {
	if bias == nil {
		return nil
	}
	if bias.NumElements() != channels {
		panic(fmt.Sprintf("quantized conv2d: bias has %d elements, want %d", bias.NumElements(), channels))
	}
	accScale := float64(inScale) * float64(filterScale)
	out := make([]int32, channels)
	switch bias.DType() {
	case tensor.Int32:
		copy(out, bias.AsInt32()[:channels])
	case tensor.Float32:
		for i, b := range bias.AsFloat32()[:channels] {
			out[i] = int32(math.Round(float64(b) / accScale))
		}
	case tensor.Uint8:
		s, zp := float64(bias.Scale()), bias.ZeroPoint()
		for i, q := range bias.AsUint8()[:channels] {
			out[i] = int32(math.Round(s * float64(int32(q)-zp) / accScale))
		}
	default:
		panic(fmt.Sprintf("quantized conv2d: unsupported bias dtype %s", bias.DType()))
	}
	return out
}

// Quantize converts real values to uint8 with the given parameters.
func Quantize(dst []uint8, src []float32, q tensor.QuantParams) {
	inv := 1 / float64(q.Scale)
	for i, v := range src {
		dst[i] = saturateUint8(int64(math.Round(float64(v)*inv)) + int64(q.ZeroPoint))
	}
}

// Dequantize converts uint8 values back to reals.
func Dequantize(dst []float32, src []uint8, q tensor.QuantParams) {
	for i, v := range src {
		dst[i] = q.Scale * float32(int32(v)-q.ZeroPoint)
	}
}
