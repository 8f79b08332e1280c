package cpu

import (
	"context"
	"fmt"

	"github.com/born-ml/convcore/internal/conv"
	"github.com/born-ml/convcore/internal/parallel"
	"github.com/born-ml/convcore/internal/tensor"
)

// DepthwiseReference is the generic float depthwise convolution.
// The filter is (C_out, KH, KW, 1); output channel m reads input channel
// m / multiplier.
type DepthwiseReference struct {
	params conv.Params
	pool   *parallel.Pool
}

// Compute runs the convolution. The bias operand is ignored; BiasAdd applies it.
func (d *DepthwiseReference) Compute(_ context.Context, in, filter, _, out *tensor.Tensor) error {
	g, err := prepare("depthwise_conv2d", tensor.Float32, in, filter, out, d.params, true)
	if err != nil {
		return err
	}
	src, w, dst := in.AsFloat32(), filter.AsFloat32(), out.AsFloat32()

	d.pool.Compute2D(func(bs, hs parallel.Range) {
		for b := bs.Start; b < bs.End; b++ {
			for oh := hs.Start; oh < hs.End; oh++ {
				for ow := 0; ow < g.OutW; ow++ {
					o := ((b*g.OutH+oh)*g.OutW + ow) * g.OutC
					for m := 0; m < g.OutC; m++ {
						c := m / g.Multiplier
						var sum float32
						for kh := 0; kh < g.KH; kh++ {
							ih := oh*g.StrideH + kh*g.DilH - g.PadTop
							if ih < 0 || ih >= g.InH {
								continue
							}
							for kw := 0; kw < g.KW; kw++ {
								iw := ow*g.StrideW + kw*g.DilW - g.PadLeft
								if iw < 0 || iw >= g.InW {
									continue
								}
								sum += src[((b*g.InH+ih)*g.InW+iw)*g.InC+c] * w[(m*g.KH+kh)*g.KW+kw]
							}
						}
						dst[o+m] = sum
					}
				}
			}
		}
	}, parallel.Span(0, g.Batch), parallel.Span(0, g.OutH), 0, 0)
	return nil
}

// Depthwise3x3 is the 3×3 float depthwise convolution at a fixed stride.
// The valid tap window is computed once per output position.
type Depthwise3x3 struct {
	stride int
	params conv.Params
	pool   *parallel.Pool
}

// Compute runs the convolution. The bias operand is ignored; BiasAdd applies it.
func (d *Depthwise3x3) Compute(_ context.Context, in, filter, _, out *tensor.Tensor) error {
	g, err := prepare("depthwise_conv2d", tensor.Float32, in, filter, out, d.params, true)
	if err != nil {
		return err
	}
	if g.KH != 3 || g.KW != 3 || g.StrideH != d.stride || g.StrideW != d.stride || g.DilH != 1 || g.DilW != 1 {
		panic(fmt.Sprintf("depthwise_conv2d: 3x3 stride %d strategy got %v", d.stride, g.Signature()))
	}
	src, w, dst := in.AsFloat32(), filter.AsFloat32(), out.AsFloat32()
	s := d.stride

	d.pool.Compute2D(func(bs, hs parallel.Range) {
		for b := bs.Start; b < bs.End; b++ {
			for oh := hs.Start; oh < hs.End; oh++ {
				ih0 := oh*s - g.PadTop
				khStart, khEnd := max(0, -ih0), min(3, g.InH-ih0)
				for ow := 0; ow < g.OutW; ow++ {
					iw0 := ow*s - g.PadLeft
					kwStart, kwEnd := max(0, -iw0), min(3, g.InW-iw0)
					o := ((b*g.OutH+oh)*g.OutW + ow) * g.OutC
					for m := 0; m < g.OutC; m++ {
						c := m / g.Multiplier
						wm := w[m*9:][:9]
						var sum float32
						for i := khStart; i < khEnd; i++ {
							row := ((b*g.InH+ih0+i)*g.InW + iw0) * g.InC
							for j := kwStart; j < kwEnd; j++ {
								sum += src[row+j*g.InC+c] * wm[i*3+j]
							}
						}
						dst[o+m] = sum
					}
				}
			}
		}
	}, parallel.Span(0, g.Batch), parallel.Span(0, g.OutH), 0, 0)
	return nil
}
