package cpu

import (
	"context"
	"fmt"

	"github.com/born-ml/convcore/internal/conv"
	"github.com/born-ml/convcore/internal/parallel"
	"github.com/born-ml/convcore/internal/tensor"
)

// QuantizedDepthwise is the uint8 depthwise convolution. Every output
// channel accumulates (x − zi)(f − zf) over its valid taps; padded taps
// equal the input zero point and contribute nothing. Dilation is allowed.
type QuantizedDepthwise struct {
	params conv.Params
	pool   *parallel.Pool
}

// Compute runs the convolution, applying bias during requantization.
func (q *QuantizedDepthwise) Compute(_ context.Context, in, filter, bias, out *tensor.Tensor) error {
	g, err := prepare("quantized depthwise_conv2d", tensor.Uint8, in, filter, out, q.params, true)
	if err != nil {
		return err
	}
	src, w, dst := in.AsUint8(), filter.AsUint8(), out.AsUint8()
	zpIn, zpFilter := in.ZeroPoint(), filter.ZeroPoint()
	biasData := quantizedBias(bias, in.Scale(), filter.Scale(), g.OutC)
	rq := newRequantizer(in, filter, out)
	if len(w) < g.OutC*g.KH*g.KW {
		panic(fmt.Sprintf("quantized depthwise_conv2d: filter %s too small", filter))
	}

	q.pool.Compute2D(func(bs, hs parallel.Range) {
		for b := bs.Start; b < bs.End; b++ {
			for oh := hs.Start; oh < hs.End; oh++ {
				for ow := 0; ow < g.OutW; ow++ {
					o := ((b*g.OutH+oh)*g.OutW + ow) * g.OutC
					for m := 0; m < g.OutC; m++ {
						c := m / g.Multiplier
						var sum int32
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
								x := int32(src[((b*g.InH+ih)*g.InW+iw)*g.InC+c]) - zpIn
								f := int32(w[(m*g.KH+kh)*g.KW+kw]) - zpFilter
								sum += x * f
							}
						}
						if biasData != nil {
							sum += biasData[m]
						}
						dst[o+m] = rq.apply(sum)
					}
				}
			}
		}
	}, parallel.Span(0, g.Batch), parallel.Span(0, g.OutH), 0, 0)
	return nil
}
