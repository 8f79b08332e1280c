package cpu

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/convcore/internal/activation"
	"github.com/born-ml/convcore/internal/tensor"
)

func TestBiasAdd_InPlace(t *testing.T) {
	backend := newTestBackend(2)
	x := tensor.FromFloat32(tensor.Shape{1, 2, 1, 3}, []float32{1, 2, 3, 4, 5, 6})
	bias := tensor.FromFloat32(tensor.Shape{3}, []float32{10, 20, 30})

	require.NoError(t, backend.BiasAdd().Compute(context.Background(), x, bias, x))
	assert.Equal(t, []float32{11, 22, 33, 14, 25, 36}, x.AsFloat32())
}

func TestBiasAdd_NilBiasCopies(t *testing.T) {
	backend := newTestBackend(1)
	x := tensor.FromFloat32(tensor.Shape{1, 1, 1, 2}, []float32{1, 2})
	out := tensor.Empty(tensor.Float32, tensor.CPU)

	require.NoError(t, backend.BiasAdd().Compute(context.Background(), x, nil, out))
	assert.Equal(t, []float32{1, 2}, out.AsFloat32())
}

func TestBiasAdd_WrongLengthPanics(t *testing.T) {
	backend := newTestBackend(1)
	x := tensor.FromFloat32(tensor.Shape{1, 1, 1, 2}, []float32{1, 2})
	bias := tensor.FromFloat32(tensor.Shape{3}, []float32{1, 2, 3})
	assert.Panics(t, func() {
		_ = backend.BiasAdd().Compute(context.Background(), x, bias, x)
	})
}

func TestActivation_ReLUX(t *testing.T) {
	backend := newTestBackend(3)
	data := make([]float32, 200)
	for i := range data {
		data[i] = float32(i-100) / 10
	}
	x := tensor.FromFloat32(tensor.Shape{1, 10, 10, 2}, data)

	act := backend.Activation(activation.Params{Type: activation.ReLUX, Limit: 6})
	require.NoError(t, act.Compute(context.Background(), x, x))

	for i, v := range x.AsFloat32() {
		want := min(max(data[i], 0), 6)
		if v != want {
			t.Fatalf("element %d: want %v, got %v", i, want, v)
		}
	}
}

func TestActivation_NoOpCopiesToOutput(t *testing.T) {
	backend := newTestBackend(1)
	x := tensor.FromFloat32(tensor.Shape{1, 1, 1, 2}, []float32{-1, 2})
	out := tensor.Empty(tensor.Float32, tensor.CPU)
	require.NoError(t, backend.Activation(activation.Params{}).Compute(context.Background(), x, out))
	assert.Equal(t, []float32{-1, 2}, out.AsFloat32())
}

func TestQuantizedActivation_ReLU(t *testing.T) {
	backend := newTestBackend(1)
	x := tensor.FromUint8(tensor.Shape{1, 1, 2, 2}, []uint8{100, 128, 140, 255})
	require.NoError(t, x.SetQuantization(0.5, 128))

	act := backend.QuantizedActivation(activation.Params{Type: activation.ReLU})
	require.NoError(t, act.Compute(context.Background(), x, x))

	// Negative reals clamp to 0, which requantizes to the zero point.
	assert.Equal(t, []uint8{128, 128, 140, 255}, x.AsUint8())
}

func TestQuantizedActivation_HardSigmoidToNewScale(t *testing.T) {
	backend := newTestBackend(1)
	x := tensor.FromUint8(tensor.Shape{4}, []uint8{0, 128, 132, 255})
	require.NoError(t, x.SetQuantization(0.25, 128))
	out := tensor.Empty(tensor.Uint8, tensor.CPU)
	require.NoError(t, out.SetQuantization(1.0/256, 0))

	act := backend.QuantizedActivation(activation.Params{Type: activation.HardSigmoid, HardSigmoidAlpha: 0.5, HardSigmoidBeta: 0.5})
	require.NoError(t, act.Compute(context.Background(), x, out))

	// reals: -32, 0, 1, 31.75 -> 0, 0.5, 1, 1; 1.0 saturates at 255
	assert.Equal(t, []uint8{0, 128, 255, 255}, out.AsUint8())
}
