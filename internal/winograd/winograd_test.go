package winograd

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

// direct computes the valid 3×3 correlation of a t×t tile.
func direct(d []float32, g [9]float32, t, b int) []float32 {
	y := make([]float32, b*b)
	for i := 0; i < b; i++ {
		for j := 0; j < b; j++ {
			var s float32
			for kh := 0; kh < 3; kh++ {
				for kw := 0; kw < 3; kw++ {
					s += d[(i+kh)*t+j+kw] * g[kh*3+kw]
				}
			}
			y[i*b+j] = s
		}
	}
	return y
}

func TestTileRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, block := range []int{2, 4} {
		w := For(block)
		tile := w.Tile

		var g [9]float32
		for i := range g {
			g[i] = float32(rng.Intn(9)-4) / 4
		}
		d := make([]float32, tile*tile)
		for i := range d {
			d[i] = float32(rng.Intn(9)-4) / 4
		}

		u := w.TransformFilter(g[:], 1, 1)
		v := make([]float32, tile*tile)
		w.TransformInput(d, v, make([]float32, tile*tile))
		m := make([]float32, tile*tile)
		for p := range m {
			m[p] = u[p] * v[p]
		}
		y := make([]float32, block*block)
		w.TransformOutput(m, y, make([]float32, block*tile))

		want := direct(d, g, tile, block)
		tol := 1e-5
		if block == 4 {
			tol = 1e-3
		}
		assert.InDeltaSlice(t, want, y, tol, "block %d", block)
	}
}

func TestTransformFilterLayout(t *testing.T) {
	w := For(2)
	out, in := 2, 3
	filter := make([]float32, out*9*in)
	// Only filter (o=1, ci=2) is non-zero: a centre tap of 1.
	filter[((1*3+1)*3+1)*in+2] = 1

	u := w.TransformFilter(filter, out, in)
	assert.Len(t, u, 16*out*in)
	for p := 0; p < 16; p++ {
		for o := 0; o < out; o++ {
			for ci := 0; ci < in; ci++ {
				v := u[(p*out+o)*in+ci]
				if o != 1 || ci != 2 {
					assert.Zero(t, v)
				}
			}
		}
	}
	// G·e_centre = (0, .5, -.5, 0), so U(1,1) = 0.25.
	assert.Equal(t, float32(0.25), u[(5*out+1)*in+2])
}

func TestUnsupportedBlockPanics(t *testing.T) {
	assert.False(t, Supported(3))
	assert.Panics(t, func() { For(3) })
}
