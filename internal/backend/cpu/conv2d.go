package cpu

import (
	"context"

	"github.com/born-ml/convcore/internal/conv"
	"github.com/born-ml/convcore/internal/parallel"
	"github.com/born-ml/convcore/internal/tensor"
)

// Reference is the generic float convolution. It handles any filter size,
// stride, dilation and padding and defines the result every specialized
// strategy must reproduce.
//
// Input: NHWC. Filter: OHWI. Output: NHWC, resized by Compute.
//
//	out[b,h,w,co] = Σ in[b, h·sh + kh·dh − pt, w·sw + kw·dw − pl, ci] · f[co,kh,kw,ci]
//
// Taps that fall outside the input contribute nothing. The sum runs over
// kh, then kw, then ci.
type Reference struct {
	params conv.Params
	pool   *parallel.Pool
}

// Compute runs the convolution. The bias operand is ignored; BiasAdd applies it.
func (r *Reference) Compute(_ context.Context, in, filter, _, out *tensor.Tensor) error {
	g, err := prepare("conv2d", tensor.Float32, in, filter, out, r.params, false)
	if err != nil {
		return err
	}
	src, w, dst := in.AsFloat32(), filter.AsFloat32(), out.AsFloat32()

	r.pool.Compute2D(func(bs, hs parallel.Range) {
		for b := bs.Start; b < bs.End; b++ {
			for oh := hs.Start; oh < hs.End; oh++ {
				referenceRow(&g, src, w, dst, b, oh)
			}
		}
	}, parallel.Span(0, g.Batch), parallel.Span(0, g.OutH), 0, 0)
	return nil
}

func referenceRow(g *conv.Geometry, src, w, dst []float32, b, oh int) {
	for ow := 0; ow < g.OutW; ow++ {
		o := ((b*g.OutH+oh)*g.OutW + ow) * g.OutC
		for co := 0; co < g.OutC; co++ {
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
					x := ((b*g.InH+ih)*g.InW + iw) * g.InC
					f := ((co*g.KH+kh)*g.KW + kw) * g.InC
					for ci := 0; ci < g.InC; ci++ {
						sum += src[x+ci] * w[f+ci]
					}
				}
			}
			dst[o+co] = sum
		}
	}
}
