package cpu

import (
	"context"
	"fmt"

	"github.com/born-ml/convcore/internal/conv"
	"github.com/born-ml/convcore/internal/parallel"
	"github.com/born-ml/convcore/internal/tensor"
)

// QuantizedConv is the uint8 convolution: im2col, integer GEMM with
// zero-point offsets, then requantization. Bias is folded into the
// accumulator before requantization.
//
// For a patch p and filter row f of depth D:
//
//	Σ (f − zf)(p − zi) = Σ f·p − zi·Σf − zf·Σp + D·zf·zi
type QuantizedConv struct {
	params conv.Params
	pool   *parallel.Pool

	forceIm2col bool // tests: materialize patches even when a 1x1 stride-1 filter would not need them
}

// Compute runs the convolution, applying bias during requantization.
func (q *QuantizedConv) Compute(_ context.Context, in, filter, bias, out *tensor.Tensor) error {
	checkOperands("quantized conv2d", tensor.Uint8, in, filter, out)
	if q.params.Dilations != [2]int{1, 1} {
		panic(fmt.Sprintf("quantized conv2d: dilation %v is not supported", q.params.Dilations))
	}
	g := conv.MustResolve(in.Shape(), filter.Shape(), q.params, false)
	if err := sizeOutput("quantized conv2d", in, out, g); err != nil {
		return err
	}

	depth := g.KH * g.KW * g.InC
	columns := g.Batch * g.OutH * g.OutW
	zpIn, zpFilter := in.ZeroPoint(), filter.ZeroPoint()

	patches := in.AsUint8()
	if q.forceIm2col || !g.IsPointwise() {
		scratch := tensor.WithAllocator(out.Allocator(), tensor.Uint8, tensor.CPU)
		scratch.SetName(out.Name() + "/im2col")
		if err := scratch.Resize(tensor.Shape{columns, depth}); err != nil {
			return fmt.Errorf("quantized conv2d: %w", err)
		}
		patches = scratch.AsUint8()
		im2col(q.pool, &g, in.AsUint8(), patches, uint8(zpIn))
	}

	w := filter.AsUint8()
	filterSums := rowSumsUint8(w, g.OutC, depth)
	biasData := quantizedBias(bias, in.Scale(), filter.Scale(), g.OutC)
	rq := newRequantizer(in, filter, out)
	dst := out.AsUint8()
	constant := int32(depth) * zpIn * zpFilter

	q.pool.Compute1D(func(r parallel.Range) {
		n := r.End - r.Start
		acc := make([]int32, n*g.OutC)
		block := patches[r.Start*depth:][:n*depth]
		matmulTransBUint8(acc, block, w, n, depth, g.OutC)
		patchSums := rowSumsUint8(block, n, depth)
		for i := 0; i < n; i++ {
			row := acc[i*g.OutC:][:g.OutC]
			o := dst[(r.Start+i)*g.OutC:][:g.OutC]
			for co, v := range row {
				v += constant - zpIn*filterSums[co] - zpFilter*patchSums[i]
				if biasData != nil {
					v += biasData[co]
				}
				o[co] = rq.apply(v)
			}
		}
	}, parallel.Span(0, columns), 0)
	return nil
}

// im2col copies the receptive field of every output position into one
// contiguous patch row laid out (kh, kw, ci). Taps outside the input take the
// input zero point so that they dequantize to zero. Top, bottom, left and
// right padding bands are filled per position; the input is never padded.
func im2col(pool *parallel.Pool, g *conv.Geometry, src, dst []uint8, zeroPoint uint8) {
	inC := g.InC
	patchRow := g.KW * inC
	depth := g.KH * patchRow
	inputRow := g.InW * inC

	pool.Compute3D(func(bs, hs, ws parallel.Range) {
		for b := bs.Start; b < bs.End; b++ {
			for h := hs.Start; h < hs.End; h++ {
				for w := ws.Start; w < ws.End; w++ {
					col := dst[((b*g.OutH+h)*g.OutW+w)*depth:][:depth]

					ihBegin := h*g.StrideH - g.PadTop
					iwBegin := w*g.StrideW - g.PadLeft
					padTop := min(max(0, -ihBegin), g.KH)
					padBottom := min(max(0, ihBegin+g.KH-g.InH), g.KH-padTop)
					padLeft := min(max(0, -iwBegin), g.KW)
					padRight := min(max(0, iwBegin+g.KW-g.InW), g.KW-padLeft)
					valid := (g.KW - padLeft - padRight) * inC

					fill(col[:padTop*patchRow], zeroPoint)
					fill(col[depth-padBottom*patchRow:], zeroPoint)

					in := ((b*g.InH+ihBegin+padTop)*g.InW + iwBegin + padLeft) * inC
					for kh := padTop; kh < g.KH-padBottom; kh++ {
						row := col[kh*patchRow:][:patchRow]
						fill(row[:padLeft*inC], zeroPoint)
						if valid > 0 {
							copy(row[padLeft*inC:][:valid], src[in:in+valid])
						}
						fill(row[padLeft*inC+valid:], zeroPoint)
						in += inputRow
					}
				}
			}
		}
	}, parallel.Span(0, g.Batch), parallel.Span(0, g.OutH), parallel.Span(0, g.OutW), 0, 0, 0)
}

func fill(b []uint8, v uint8) {
	for i := range b {
		b[i] = v
	}
}
