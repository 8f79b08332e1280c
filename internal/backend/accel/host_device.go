package accel

import (
	"context"
	"fmt"

	"github.com/born-ml/convcore/internal/conv"
	"github.com/born-ml/convcore/internal/parallel"
	"github.com/born-ml/convcore/internal/tensor"
	"github.com/born-ml/convcore/internal/winograd"
)

// HostDevice executes accelerator programs on the CPU worker pool, reading
// and writing the device layouts directly. It stands in for a GPU when none
// is present and serves as the reference for real devices.
type HostDevice struct {
	pool *parallel.Pool
}

// NewHostDevice creates a host device. A nil pool means the default pool.
func NewHostDevice(pool *parallel.Pool) *HostDevice {
	if pool == nil {
		pool = parallel.Default()
	}
	return &HostDevice{pool: pool}
}

// Name returns "host".
func (d *HostDevice) Name() string { return "host" }

// Run executes prog synchronously.
func (d *HostDevice) Run(_ context.Context, prog *Program) error {
	switch prog.Kind {
	case Conv2DProgram:
		d.runConv2D(prog)
	case WinogradProgram:
		d.runWinograd(prog)
	case DepthwiseProgram:
		d.runDepthwise(prog)
	default:
		return fmt.Errorf("host device: unknown program %s", prog.Kind)
	}
	return nil
}

// epilogue adds bias and applies the activation to one output value.
func epilogue(prog *Program, bias []float32, co int, v float32) float32 {
	if bias != nil {
		v += bias[co]
	}
	return prog.Activation.Apply(v)
}

func biasData(prog *Program) []float32 {
	if prog.Bias == nil {
		return nil
	}
	return prog.Bias.AsFloat32()
}

func (d *HostDevice) runConv2D(prog *Program) {
	g, mem := &prog.Geometry, prog.Memory
	inShape, fShape, outShape := prog.Input.Shape(), prog.Filter.Shape(), prog.Output.Shape()
	src, w, dst := prog.Input.AsFloat32(), prog.Filter.AsFloat32(), prog.Output.AsFloat32()
	bias := biasData(prog)

	d.pool.Compute2D(func(bs, hs parallel.Range) {
		for b := bs.Start; b < bs.End; b++ {
			for oh := hs.Start; oh < hs.End; oh++ {
				for ow := 0; ow < g.OutW; ow++ {
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
								for ci := 0; ci < g.InC; ci++ {
									sum += src[InOutIndex(mem, inShape, b, ih, iw, ci)] *
										w[ConvFilterIndex(mem, fShape, co, kh, kw, ci)]
								}
							}
						}
						dst[InOutIndex(mem, outShape, b, oh, ow, co)] = epilogue(prog, bias, co, sum)
					}
				}
			}
		}
	}, parallel.Span(0, g.Batch), parallel.Span(0, g.OutH), 0, 0)
}

func (d *HostDevice) runDepthwise(prog *Program) {
	g, mem := &prog.Geometry, prog.Memory
	inShape, fShape, outShape := prog.Input.Shape(), prog.Filter.Shape(), prog.Output.Shape()
	src, w, dst := prog.Input.AsFloat32(), prog.Filter.AsFloat32(), prog.Output.AsFloat32()
	bias := biasData(prog)

	d.pool.Compute2D(func(bs, hs parallel.Range) {
		for b := bs.Start; b < bs.End; b++ {
			for oh := hs.Start; oh < hs.End; oh++ {
				for ow := 0; ow < g.OutW; ow++ {
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
								sum += src[InOutIndex(mem, inShape, b, ih, iw, c)] *
									w[DWFilterIndex(mem, fShape, m, kh, kw)]
							}
						}
						dst[InOutIndex(mem, outShape, b, oh, ow, m)] = epilogue(prog, bias, m, sum)
					}
				}
			}
		}
	}, parallel.Span(0, g.Batch), parallel.Span(0, g.OutH), 0, 0)
}

func (d *HostDevice) runWinograd(prog *Program) {
	g, mem := &prog.Geometry, prog.Memory
	wm := winograd.For(prog.BlockSize)
	blk, tile := wm.Block, wm.Tile
	inShape, outShape := prog.Input.Shape(), prog.Output.Shape()
	src, u, dst := prog.Input.AsFloat32(), prog.Filter.AsFloat32(), prog.Output.AsFloat32()
	bias := biasData(prog)
	tilesH := (g.OutH + blk - 1) / blk
	tilesW := (g.OutW + blk - 1) / blk

	d.pool.Compute2D(func(bs, ts parallel.Range) {
		tt := tile * tile
		dtile := make([]float32, tt)
		v := make([]float32, tt*g.InC)
		m := make([]float32, tt)
		y := make([]float32, blk*blk)
		scratch := make([]float32, tt)

		for b := bs.Start; b < bs.End; b++ {
			for th := ts.Start; th < ts.End; th++ {
				for tw := 0; tw < tilesW; tw++ {
					oh0, ow0 := th*blk, tw*blk
					loadTransformedTile(&wm, g, mem, inShape, src, b, oh0-g.PadTop, ow0-g.PadLeft, dtile, v, m, scratch)
					for co := 0; co < g.OutC; co++ {
						for p := 0; p < tt; p++ {
							var s float32
							for ci := 0; ci < g.InC; ci++ {
								s += u[WinogradFilterIndex(mem, g.OutC, g.InC, p, co, ci)] * v[p*g.InC+ci]
							}
							m[p] = s
						}
						wm.TransformOutput(m, y, scratch[:blk*tile])
						for i := 0; i < blk && oh0+i < g.OutH; i++ {
							for j := 0; j < blk && ow0+j < g.OutW; j++ {
								dst[InOutIndex(mem, outShape, b, oh0+i, ow0+j, co)] = epilogue(prog, bias, co, y[i*blk+j])
							}
						}
					}
				}
			}
		}
	}, parallel.Span(0, g.Batch), parallel.Span(0, tilesH), 0, 0)
}

// loadTransformedTile fills v[p·InC + ci] with the input transform of the
// tile whose top-left input pixel is (ih0, iw0).
func loadTransformedTile(wm *winograd.Matrices, g *conv.Geometry, mem tensor.MemoryType, shape tensor.Shape, src []float32, b, ih0, iw0 int, d, v, tmp, scratch []float32) {
	tile := wm.Tile
	for ci := 0; ci < g.InC; ci++ {
		for i := 0; i < tile; i++ {
			ih := ih0 + i
			for j := 0; j < tile; j++ {
				iw := iw0 + j
				if ih < 0 || ih >= g.InH || iw < 0 || iw >= g.InW {
					d[i*tile+j] = 0
				} else {
					d[i*tile+j] = src[InOutIndex(mem, shape, b, ih, iw, ci)]
				}
			}
		}
		wm.TransformInput(d, tmp, scratch)
		for p := 0; p < tile*tile; p++ {
			v[p*g.InC+ci] = tmp[p]
		}
	}
}
