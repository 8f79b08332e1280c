package cpu

import (
	"context"
	"fmt"

	"github.com/born-ml/convcore/internal/conv"
	"github.com/born-ml/convcore/internal/parallel"
	"github.com/born-ml/convcore/internal/tensor"
)

// Conv1x1 is the pointwise convolution at stride 1. Each output row is a
// matrix product of the overlapping input pixels against the filter bank;
// pixels that only see padding are zero.
type Conv1x1 struct {
	params conv.Params
	pool   *parallel.Pool
}

// Compute runs the convolution. The bias operand is ignored; BiasAdd applies it.
func (c *Conv1x1) Compute(_ context.Context, in, filter, _, out *tensor.Tensor) error {
	g, err := prepare("conv2d", tensor.Float32, in, filter, out, c.params, false)
	if err != nil {
		return err
	}
	if g.KH != 1 || g.KW != 1 || g.StrideH != 1 || g.StrideW != 1 {
		panic(fmt.Sprintf("conv2d: 1x1 strategy got %dx%d filter at stride %dx%d", g.KH, g.KW, g.StrideH, g.StrideW))
	}
	src, w, dst := in.AsFloat32(), filter.AsFloat32(), out.AsFloat32()

	// Output columns [owStart, owEnd) read input columns shifted by PadLeft.
	owStart := min(g.PadLeft, g.OutW)
	owEnd := min(g.InW+g.PadLeft, g.OutW)

	c.pool.Compute2D(func(bs, hs parallel.Range) {
		for b := bs.Start; b < bs.End; b++ {
			for oh := hs.Start; oh < hs.End; oh++ {
				row := dst[(b*g.OutH+oh)*g.OutW*g.OutC:][:g.OutW*g.OutC]
				ih := oh - g.PadTop
				if ih < 0 || ih >= g.InH || owEnd <= owStart {
					clear(row)
					continue
				}
				clear(row[:owStart*g.OutC])
				clear(row[owEnd*g.OutC:])
				pixels := src[((b*g.InH+ih)*g.InW+owStart-g.PadLeft)*g.InC:]
				matmulTransBFloat32(row[owStart*g.OutC:], pixels, w, owEnd-owStart, g.InC, g.OutC)
			}
		}
	}, parallel.Span(0, g.Batch), parallel.Span(0, g.OutH), 0, 0)
	return nil
}
