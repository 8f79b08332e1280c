package cpu

import (
	"context"
	"fmt"

	"github.com/born-ml/convcore/internal/conv"
	"github.com/born-ml/convcore/internal/parallel"
	"github.com/born-ml/convcore/internal/tensor"
)

// Direct is a fixed-size float convolution for one (kh, kw, sh, sw) entry of
// the selector catalog. For each output position it computes the window of
// taps that land inside the input once, then produces four output channels
// per pass over that window. Per-channel summation order matches Reference,
// so results are bit-identical.
type Direct struct {
	kh, kw int
	sh, sw int
	params conv.Params
	pool   *parallel.Pool
}

// Name returns e.g. "direct3x3s1".
func (d *Direct) Name() string {
	if d.sh == d.sw {
		return fmt.Sprintf("direct%dx%ds%d", d.kh, d.kw, d.sh)
	}
	return fmt.Sprintf("direct%dx%ds%dx%d", d.kh, d.kw, d.sh, d.sw)
}

// Compute runs the convolution. The bias operand is ignored; BiasAdd applies it.
func (d *Direct) Compute(_ context.Context, in, filter, _, out *tensor.Tensor) error {
	g, err := prepare("conv2d", tensor.Float32, in, filter, out, d.params, false)
	if err != nil {
		return err
	}
	if g.KH != d.kh || g.KW != d.kw || g.StrideH != d.sh || g.StrideW != d.sw {
		panic(fmt.Sprintf("conv2d: %s got %dx%d filter at stride %dx%d", d.Name(), g.KH, g.KW, g.StrideH, g.StrideW))
	}
	if g.DilH != 1 || g.DilW != 1 {
		panic(fmt.Sprintf("conv2d: %s does not support dilation %dx%d", d.Name(), g.DilH, g.DilW))
	}
	src, w, dst := in.AsFloat32(), filter.AsFloat32(), out.AsFloat32()

	d.pool.Compute2D(func(bs, hs parallel.Range) {
		for b := bs.Start; b < bs.End; b++ {
			for oh := hs.Start; oh < hs.End; oh++ {
				d.row(&g, src, w, dst, b, oh)
			}
		}
	}, parallel.Span(0, g.Batch), parallel.Span(0, g.OutH), 0, 0)
	return nil
}

func (d *Direct) row(g *conv.Geometry, src, w, dst []float32, b, oh int) {
	kh, kw, inC := d.kh, d.kw, g.InC
	fStride := kh * kw * inC

	ih0 := oh*d.sh - g.PadTop
	khStart, khEnd := max(0, -ih0), min(kh, g.InH-ih0)

	for ow := 0; ow < g.OutW; ow++ {
		iw0 := ow*d.sw - g.PadLeft
		kwStart, kwEnd := max(0, -iw0), min(kw, g.InW-iw0)
		o := ((b*g.OutH+oh)*g.OutW + ow) * g.OutC

		co := 0
		for ; co+4 <= g.OutC; co += 4 {
			var s0, s1, s2, s3 float32
			for i := khStart; i < khEnd; i++ {
				for j := kwStart; j < kwEnd; j++ {
					x := src[((b*g.InH+ih0+i)*g.InW+iw0+j)*inC:][:inC]
					f0 := ((co*kh+i)*kw + j) * inC
					w0 := w[f0:][:inC]
					w1 := w[f0+fStride:][:inC]
					w2 := w[f0+2*fStride:][:inC]
					w3 := w[f0+3*fStride:][:inC]
					for ci, v := range x {
						s0 += v * w0[ci]
						s1 += v * w1[ci]
						s2 += v * w2[ci]
						s3 += v * w3[ci]
					}
				}
			}
			dst[o+co] = s0
			dst[o+co+1] = s1
			dst[o+co+2] = s2
			dst[o+co+3] = s3
		}
		for ; co < g.OutC; co++ {
			var s float32
			for i := khStart; i < khEnd; i++ {
				for j := kwStart; j < kwEnd; j++ {
					x := src[((b*g.InH+ih0+i)*g.InW+iw0+j)*inC:][:inC]
					wc := w[((co*kh+i)*kw+j)*inC:][:inC]
					for ci, v := range x {
						s += v * wc[ci]
					}
				}
			}
			dst[o+co] = s
		}
	}
}
