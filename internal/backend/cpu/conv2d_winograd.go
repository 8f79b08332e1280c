package cpu

import (
	"context"
	"fmt"
	"sync"

	"github.com/born-ml/convcore/internal/conv"
	"github.com/born-ml/convcore/internal/parallel"
	"github.com/born-ml/convcore/internal/tensor"
	"github.com/born-ml/convcore/internal/winograd"
)

// Winograd3x3 computes 3×3 stride-1 convolutions with F(2×2, 3×3):
// every 2×2 output block costs 16 multiplies per channel pair instead of 36.
// The transformed filter of a weight tensor is computed once and cached.
type Winograd3x3 struct {
	params conv.Params
	pool   *parallel.Pool
	wm     winograd.Matrices

	mu     sync.Mutex
	cached *tensor.Tensor
	u      []float32
}

func newWinograd3x3(p conv.Params, pool *parallel.Pool) *Winograd3x3 {
	return &Winograd3x3{params: p, pool: pool, wm: winograd.For(2)}
}

// transformedFilter returns U for filter, reusing the cached copy for weights.
func (c *Winograd3x3) transformedFilter(filter *tensor.Tensor, out, in int) []float32 {
	if !filter.IsWeight() {
		return c.wm.TransformFilter(filter.AsFloat32(), out, in)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cached != filter {
		c.u = c.wm.TransformFilter(filter.AsFloat32(), out, in)
		c.cached = filter
	}
	return c.u
}

// Compute runs the convolution. The bias operand is ignored; BiasAdd applies it.
func (c *Winograd3x3) Compute(_ context.Context, in, filter, _, out *tensor.Tensor) error {
	g, err := prepare("conv2d", tensor.Float32, in, filter, out, c.params, false)
	if err != nil {
		return err
	}
	if g.KH != 3 || g.KW != 3 || g.StrideH != 1 || g.StrideW != 1 || g.DilH != 1 || g.DilW != 1 {
		panic(fmt.Sprintf("conv2d: winograd strategy needs a 3x3 stride 1 undilated filter, got %v", g.Signature()))
	}
	u := c.transformedFilter(filter, g.OutC, g.InC)
	src, dst := in.AsFloat32(), out.AsFloat32()

	const block, tile = 2, 4
	tilesH := (g.OutH + block - 1) / block
	tilesW := (g.OutW + block - 1) / block

	c.pool.Compute2D(func(bs, ts parallel.Range) {
		d := make([]float32, tile*tile)
		v := make([]float32, tile*tile*g.InC) // [p][ci]
		m := make([]float32, tile*tile)
		y := make([]float32, block*block)
		scratch := make([]float32, tile*tile)

		for b := bs.Start; b < bs.End; b++ {
			for th := ts.Start; th < ts.End; th++ {
				oh0 := th * block
				for tw := 0; tw < tilesW; tw++ {
					ow0 := tw * block
					ih0, iw0 := oh0-g.PadTop, ow0-g.PadLeft

					for ci := 0; ci < g.InC; ci++ {
						for i := 0; i < tile; i++ {
							ih := ih0 + i
							for j := 0; j < tile; j++ {
								iw := iw0 + j
								if ih < 0 || ih >= g.InH || iw < 0 || iw >= g.InW {
									d[i*tile+j] = 0
								} else {
									d[i*tile+j] = src[((b*g.InH+ih)*g.InW+iw)*g.InC+ci]
								}
							}
						}
						c.wm.TransformInput(d, m, scratch)
						for p := 0; p < tile*tile; p++ {
							v[p*g.InC+ci] = m[p]
						}
					}

					for co := 0; co < g.OutC; co++ {
						for p := 0; p < tile*tile; p++ {
							up := u[(p*g.OutC+co)*g.InC:][:g.InC]
							vp := v[p*g.InC:][:g.InC]
							// Channel sums accumulate in float64.
							var s float64
							for ci, x := range vp {
								s += float64(up[ci]) * float64(x)
							}
							m[p] = float32(s)
						}
						c.wm.TransformOutput(m, y, scratch[:block*tile])
						for i := 0; i < block && oh0+i < g.OutH; i++ {
							for j := 0; j < block && ow0+j < g.OutW; j++ {
								dst[((b*g.OutH+oh0+i)*g.OutW+ow0+j)*g.OutC+co] = y[i*block+j]
							}
						}
					}
				}
			}
		}
	}, parallel.Span(0, g.Batch), parallel.Span(0, tilesH), 0, 0)
	return nil
}
