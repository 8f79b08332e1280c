// Package winograd implements the F(m×m, 3×3) block transforms used by the
// transform-domain convolution strategies (Lavin & Gray, "Fast Algorithms
// for Convolutional Neural Networks").
package winograd

import "fmt"

// Matrices holds the transforms for output block size m and tile size t = m+2.
//
//	Y = AT · [(G · g · Gᵀ) ⊙ (BT · d · B)] · A
type Matrices struct {
	Block int
	Tile  int
	BT    [][]float32 // t × t
	G     [][]float32 // t × 3
	AT    [][]float32 // m × t
}

var f2 = Matrices{
	Block: 2,
	Tile:  4,
	BT: [][]float32{
		{1, 0, -1, 0},
		{0, 1, 1, 0},
		{0, -1, 1, 0},
		{0, 1, 0, -1},
	},
	G: [][]float32{
		{1, 0, 0},
		{0.5, 0.5, 0.5},
		{0.5, -0.5, 0.5},
		{0, 0, 1},
	},
	AT: [][]float32{
		{1, 1, 1, 0},
		{0, 1, -1, -1},
	},
}

var f4 = Matrices{
	Block: 4,
	Tile:  6,
	BT: [][]float32{
		{4, 0, -5, 0, 1, 0},
		{0, -4, -4, 1, 1, 0},
		{0, 4, -4, -1, 1, 0},
		{0, -2, -1, 2, 1, 0},
		{0, 2, -1, -2, 1, 0},
		{0, 4, 0, -5, 0, 1},
	},
	G: [][]float32{
		{1.0 / 4, 0, 0},
		{-1.0 / 6, -1.0 / 6, -1.0 / 6},
		{-1.0 / 6, 1.0 / 6, -1.0 / 6},
		{1.0 / 24, 1.0 / 12, 1.0 / 6},
		{1.0 / 24, -1.0 / 12, 1.0 / 6},
		{0, 0, 1},
	},
	AT: [][]float32{
		{1, 1, 1, 1, 1, 0},
		{0, 1, -1, 2, -2, 0},
		{0, 1, 1, 4, 4, 0},
		{0, 1, -1, 8, -8, 1},
	},
}

// Supported reports whether an output block size has transforms.
func Supported(block int) bool {
	return block == 2 || block == 4
}

// For returns the transforms for block size 2 or 4.
func For(block int) Matrices {
	switch block {
	case 2:
		return f2
	case 4:
		return f4
	default:
		panic(fmt.Sprintf("winograd: unsupported block size %d", block))
	}
}

// Flat returns m (rows × cols) as a row-major slice.
func Flat(m [][]float32) []float32 {
	out := make([]float32, 0, len(m)*len(m[0]))
	for _, row := range m {
		out = append(out, row...)
	}
	return out
}

// TransformedFilterElements returns the element count of a transformed
// filter bank of out × in 3×3 filters.
func (w Matrices) TransformedFilterElements(out, in int) int {
	return w.Tile * w.Tile * out * in
}

// TransformFilter converts an OHWI 3×3 filter bank into the transform domain.
// The result is laid out as [t·t][out][in]: element (p, o, ci) lives at
// (p·out + o)·in + ci.
func (w Matrices) TransformFilter(filter []float32, out, in int) []float32 {
	if len(filter) != out*9*in {
		panic(fmt.Sprintf("winograd: filter has %d elements, want %d", len(filter), out*9*in))
	}
	t := w.Tile
	res := make([]float32, w.TransformedFilterElements(out, in))
	tmp := make([]float32, t*3)
	for o := 0; o < out; o++ {
		for ci := 0; ci < in; ci++ {
			g := func(kh, kw int) float32 { return filter[((o*3+kh)*3+kw)*in+ci] }
			// tmp = G · g
			for i := 0; i < t; i++ {
				for kw := 0; kw < 3; kw++ {
					tmp[i*3+kw] = w.G[i][0]*g(0, kw) + w.G[i][1]*g(1, kw) + w.G[i][2]*g(2, kw)
				}
			}
			// U = tmp · Gᵀ
			for i := 0; i < t; i++ {
				for j := 0; j < t; j++ {
					u := tmp[i*3]*w.G[j][0] + tmp[i*3+1]*w.G[j][1] + tmp[i*3+2]*w.G[j][2]
					res[((i*t+j)*out+o)*in+ci] = u
				}
			}
		}
	}
	return res
}

// TransformInput computes V = BT · d · B for one t×t input tile. scratch
// must hold t·t elements.
func (w Matrices) TransformInput(d, v, scratch []float32) {
	t := w.Tile
	for i := 0; i < t; i++ {
		for j := 0; j < t; j++ {
			var s float32
			for k := 0; k < t; k++ {
				s += w.BT[i][k] * d[k*t+j]
			}
			scratch[i*t+j] = s
		}
	}
	for i := 0; i < t; i++ {
		for j := 0; j < t; j++ {
			var s float32
			for k := 0; k < t; k++ {
				s += scratch[i*t+k] * w.BT[j][k]
			}
			v[i*t+j] = s
		}
	}
}

// TransformOutput computes Y = AT · m · A for one tile, writing m×m values.
// scratch must hold block·t elements.
func (w Matrices) TransformOutput(m, y, scratch []float32) {
	t, b := w.Tile, w.Block
	for i := 0; i < b; i++ {
		for j := 0; j < t; j++ {
			var s float32
			for k := 0; k < t; k++ {
				s += w.AT[i][k] * m[k*t+j]
			}
			scratch[i*t+j] = s
		}
	}
	for i := 0; i < b; i++ {
		for j := 0; j < b; j++ {
			var s float32
			for k := 0; k < t; k++ {
				s += scratch[i*t+k] * w.AT[j][k]
			}
			y[i*b+j] = s
		}
	}
}
