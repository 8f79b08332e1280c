package conv

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/convcore/internal/tensor"
)

func explicit(strides, dilations [2]int, pads ...int) Params {
	return Params{Strides: strides, Dilations: dilations, Padding: Explicit, PaddingValues: pads}
}

func policy(strides, dilations [2]int, pt PaddingType) Params {
	return Params{Strides: strides, Dilations: dilations, Padding: pt}
}

func TestComputeOutputSize_ExplicitFormula(t *testing.T) {
	// in 10, filter 3, stride 1, dilation 1, padding [2, 2] => floor((10+2-2-1)/1)+1 = 10
	out, pads, err := ComputeOutputSize(
		tensor.Shape{1, 10, 10, 3}, tensor.Shape{4, 3, 3, 3},
		explicit([2]int{1, 1}, [2]int{1, 1}, 2, 2), false)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 10, 10, 4}, out)
	assert.Equal(t, [2]int{2, 2}, pads)
}

func TestComputeOutputSize_ExplicitStrideDilation(t *testing.T) {
	// in 11, k 3, d 2 (k_eff 5), pad 1, s 2: floor((11+1-5)/2)+1 = 4
	out, _, err := ComputeOutputSize(
		tensor.Shape{2, 11, 9, 3}, tensor.Shape{8, 3, 3, 3},
		explicit([2]int{2, 2}, [2]int{2, 2}, 1, 0), false)
	require.NoError(t, err)
	// width: floor((9+0-5)/2)+1 = 3
	assert.Equal(t, tensor.Shape{2, 4, 3, 8}, out)
}

func TestComputeOutputSize_CeilRounding(t *testing.T) {
	p := explicit([2]int{2, 2}, [2]int{1, 1}, 0, 0)
	p.Round = Ceil
	out, _, err := ComputeOutputSize(tensor.Shape{1, 8, 8, 1}, tensor.Shape{1, 3, 3, 1}, p, false)
	require.NoError(t, err)
	// ceil((8-3)/2)+1 = 4 vs floor 3
	assert.Equal(t, 4, out[1])
}

func TestComputeOutputSize_Policies(t *testing.T) {
	tests := []struct {
		name    string
		pt      PaddingType
		in, k   int
		s, d    int
		wantOut int
		wantPad int
	}{
		{"valid", Valid, 7, 3, 1, 1, 5, 0},
		{"valid stride", Valid, 7, 3, 2, 1, 3, 0},
		{"same", Same, 7, 3, 1, 1, 7, 2},
		{"same stride 2", Same, 7, 3, 2, 1, 4, 2},
		{"same even", Same, 8, 3, 2, 1, 4, 1},
		{"same dilated", Same, 9, 3, 1, 2, 9, 4},
		{"full", Full, 5, 3, 1, 1, 7, 4},
		{"full stride", Full, 5, 3, 2, 1, 4, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, pads, err := ComputeOutputSize(
				tensor.Shape{1, tt.in, tt.in, 2}, tensor.Shape{3, tt.k, tt.k, 2},
				policy([2]int{tt.s, tt.s}, [2]int{tt.d, tt.d}, tt.pt), false)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOut, out[1])
			assert.Equal(t, tt.wantOut, out[2])
			assert.Equal(t, [2]int{tt.wantPad, tt.wantPad}, pads)
		})
	}
}

func TestComputeOutputSize_Depthwise(t *testing.T) {
	out, _, err := ComputeOutputSize(
		tensor.Shape{1, 6, 6, 3}, tensor.Shape{6, 3, 3, 1},
		policy([2]int{1, 1}, [2]int{1, 1}, Same), true)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 6, 6, 6}, out)

	_, _, err = ComputeOutputSize(
		tensor.Shape{1, 6, 6, 4}, tensor.Shape{6, 3, 3, 1},
		policy([2]int{1, 1}, [2]int{1, 1}, Same), true)
	assert.True(t, errors.Is(err, ErrShape), "divisibility violation should be a ShapeError")
}

func TestComputeOutputSize_Errors(t *testing.T) {
	cases := map[string]struct {
		in, f tensor.Shape
		p     Params
	}{
		"channel mismatch": {tensor.Shape{1, 5, 5, 3}, tensor.Shape{2, 3, 3, 4}, DefaultParams()},
		"rank":             {tensor.Shape{5, 5, 3}, tensor.Shape{2, 3, 3, 3}, DefaultParams()},
		"too small valid":  {tensor.Shape{1, 2, 2, 3}, tensor.Shape{2, 3, 3, 3}, DefaultParams()},
		"padding count":    {tensor.Shape{1, 5, 5, 3}, tensor.Shape{2, 3, 3, 3}, explicit([2]int{1, 1}, [2]int{1, 1}, 1)},
		"both forms": {tensor.Shape{1, 5, 5, 3}, tensor.Shape{2, 3, 3, 3},
			Params{Strides: [2]int{1, 1}, Dilations: [2]int{1, 1}, Padding: Same, PaddingValues: []int{1, 1}}},
		"zero stride": {tensor.Shape{1, 5, 5, 3}, tensor.Shape{2, 3, 3, 3}, policy([2]int{0, 1}, [2]int{1, 1}, Valid)},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := ComputeOutputSize(c.in, c.f, c.p, false)
			require.Error(t, err)
			var se *ShapeError
			assert.True(t, errors.As(err, &se))
			assert.ErrorIs(t, err, ErrShape)
		})
	}
}

func TestNewGeometry_PaddingSplit(t *testing.T) {
	g, err := Resolve(tensor.Shape{1, 8, 8, 2}, tensor.Shape{4, 3, 3, 2}, explicit([2]int{1, 1}, [2]int{1, 1}, 3, 1), false)
	require.NoError(t, err)
	assert.Equal(t, 1, g.PadTop)
	assert.Equal(t, 2, g.PadBottom)
	assert.Equal(t, 0, g.PadLeft)
	assert.Equal(t, 1, g.PadRight)
	assert.Equal(t, tensor.Shape{1, 9, 7, 4}, g.OutputShape())
}

func TestGeometry_DepthwiseMultiplier(t *testing.T) {
	g, err := Resolve(tensor.Shape{1, 4, 4, 2}, tensor.Shape{6, 3, 3, 1}, policy([2]int{1, 1}, [2]int{1, 1}, Valid), true)
	require.NoError(t, err)
	assert.Equal(t, 3, g.Multiplier)
	assert.True(t, g.Signature().Depthwise)
}

func TestMustResolvePanics(t *testing.T) {
	assert.Panics(t, func() {
		MustResolve(tensor.Shape{1, 5, 5, 3}, tensor.Shape{2, 3, 3, 4}, DefaultParams(), false)
	})
}

func TestCheckOutputBatch(t *testing.T) {
	assert.NoError(t, CheckOutputBatch(tensor.Shape{2, 4, 4, 1}, nil))
	assert.NoError(t, CheckOutputBatch(tensor.Shape{2, 4, 4, 1}, tensor.Shape{2, 3, 3, 1}))
	assert.ErrorIs(t, CheckOutputBatch(tensor.Shape{2, 4, 4, 1}, tensor.Shape{1, 3, 3, 1}), ErrShape)
}

func TestParsePaddingType(t *testing.T) {
	pt, err := ParsePaddingType("same")
	require.NoError(t, err)
	assert.Equal(t, Same, pt)
	_, err = ParsePaddingType("reflect")
	assert.Error(t, err)
}

func TestSignatureOf(t *testing.T) {
	s := SignatureOf(tensor.Shape{1, 8, 8, 16}, tensor.Shape{32, 3, 3, 16}, DefaultParams(), false)
	assert.True(t, s.Is(3, 3, 1, 1))
	assert.True(t, s.Undilated())
	assert.Equal(t, 16, s.InC)
	assert.Equal(t, 32, s.OutC)
}
