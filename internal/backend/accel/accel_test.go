package accel

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/convcore/internal/activation"
	"github.com/born-ml/convcore/internal/backend/cpu"
	"github.com/born-ml/convcore/internal/conv"
	"github.com/born-ml/convcore/internal/parallel"
	"github.com/born-ml/convcore/internal/tensor"
)

var memories = []tensor.MemoryType{tensor.MemoryBuffer, tensor.MemoryImage}

func mustTransform(t *testing.T, src *tensor.Tensor, f tensor.Format) *tensor.Tensor {
	t.Helper()
	dst, err := Transform(src, f)
	require.NoError(t, err)
	return dst
}

// hostReference computes conv + bias + activation with the CPU reference.
func hostReference(t *testing.T, in, filter, bias *tensor.Tensor, p conv.Params, act activation.Params, depthwise bool) []float32 {
	t.Helper()
	backend := cpu.New(parallel.WithWorkers(1))
	out := tensor.Empty(tensor.Float32, tensor.CPU)
	ctx := context.Background()
	if depthwise {
		require.NoError(t, backend.DepthwiseReference(p).Compute(ctx, in, filter, nil, out))
	} else {
		require.NoError(t, backend.Reference(p).Compute(ctx, in, filter, nil, out))
	}
	if bias != nil {
		require.NoError(t, backend.BiasAdd().Compute(ctx, out, bias, out))
	}
	require.NoError(t, backend.Activation(act).Compute(ctx, out, out))
	return out.AsFloat32()
}

func TestKernel_ConvMatchesHostReference(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	in := tensor.RandomFloat32(tensor.Shape{2, 7, 6, 5}, rng)
	filter := tensor.RandomFloat32(tensor.Shape{6, 3, 2, 5}, rng)
	bias := tensor.RandomFloat32(tensor.Shape{6}, rng)
	p := conv.Params{Strides: [2]int{2, 1}, Dilations: [2]int{1, 2}, Padding: conv.Same}
	act := activation.Params{Type: activation.ReLU}

	want := hostReference(t, in, filter, bias, p, act, false)

	for _, mem := range memories {
		t.Run(mem.String(), func(t *testing.T) {
			k, err := NewKernel(mem, NewHostDevice(parallel.WithWorkers(3)))
			require.NoError(t, err)
			din := mustTransform(t, in, tensor.Format{Memory: mem, Content: tensor.ContentInOut})
			dfilter := mustTransform(t, filter, tensor.Format{Memory: mem, Content: tensor.ContentConv2DFilter})
			dbias := mustTransform(t, bias, tensor.Format{Memory: mem, Content: tensor.ContentArgument})
			out := tensor.Empty(tensor.Float32, tensor.GPU)

			require.NoError(t, k.Compute(context.Background(), din, dfilter, dbias, p, act, 0, out))
			assert.Equal(t, tensor.Format{Memory: mem, Content: tensor.ContentInOut}, out.Format())

			host, err := ToHost(out)
			require.NoError(t, err)
			assert.InDeltaSlice(t, want, host.AsFloat32(), 1e-5)
		})
	}
}

func TestKernel_DepthwiseMatchesHostReference(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	in := tensor.RandomFloat32(tensor.Shape{1, 6, 6, 3}, rng)
	filter := tensor.RandomFloat32(tensor.Shape{6, 3, 3, 1}, rng)
	bias := tensor.RandomFloat32(tensor.Shape{6}, rng)
	p := conv.Params{Strides: [2]int{1, 1}, Dilations: [2]int{1, 1}, PaddingValues: []int{2, 2}}
	act := activation.Params{Type: activation.ReLUX, Limit: 1.5}

	want := hostReference(t, in, filter, bias, p, act, true)

	for _, mem := range memories {
		t.Run(mem.String(), func(t *testing.T) {
			k, err := NewKernel(mem, NewHostDevice(nil))
			require.NoError(t, err)
			din := mustTransform(t, in, tensor.Format{Memory: mem, Content: tensor.ContentInOut})
			dfilter := mustTransform(t, filter, tensor.Format{Memory: mem, Content: tensor.ContentDWConv2DFilter})
			dbias := mustTransform(t, bias, tensor.Format{Memory: mem, Content: tensor.ContentArgument})
			out := tensor.Empty(tensor.Float32, tensor.GPU)

			require.NoError(t, k.ComputeDepthwise(context.Background(), din, dfilter, dbias, p, act, out))

			host, err := ToHost(out)
			require.NoError(t, err)
			assert.InDeltaSlice(t, want, host.AsFloat32(), 1e-5)
		})
	}
}

func TestKernel_Winograd(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	in := tensor.RandomFloat32(tensor.Shape{1, 9, 7, 4}, rng)
	filter := tensor.RandomFloat32(tensor.Shape{5, 3, 3, 4}, rng)
	p := conv.Params{Strides: [2]int{1, 1}, Dilations: [2]int{1, 1}, Padding: conv.Same}
	act := activation.Params{}
	want := hostReference(t, in, filter, nil, p, act, false)

	tests := []struct {
		mem   tensor.MemoryType
		block int
		delta float64
	}{
		{tensor.MemoryBuffer, 2, 1e-4},
		{tensor.MemoryImage, 2, 1e-4},
		{tensor.MemoryImage, 4, 1e-3},
	}
	for _, tt := range tests {
		t.Run(tt.mem.String(), func(t *testing.T) {
			k, err := NewKernel(tt.mem, NewHostDevice(parallel.WithWorkers(2)))
			require.NoError(t, err)
			block := tt.block
			require.True(t, k.CheckUseWinograd(filter.Shape(), p.Strides, p.Dilations, &block))
			require.Equal(t, tt.block, block)

			din := mustTransform(t, in, tensor.Format{Memory: tt.mem, Content: tensor.ContentInOut})
			dfilter := mustTransform(t, filter, tensor.Format{Memory: tt.mem, Content: tensor.ContentWinogradFilter, BlockSize: block})
			out := tensor.Empty(tensor.Float32, tensor.GPU)

			require.NoError(t, k.Compute(context.Background(), din, dfilter, nil, p, act, block, out))

			host, err := ToHost(out)
			require.NoError(t, err)
			assert.InDeltaSlice(t, want, host.AsFloat32(), tt.delta)
		})
	}
}

func TestKernel_CheckUseWinograd(t *testing.T) {
	dev := NewHostDevice(nil)
	buffer, err := NewKernel(tensor.MemoryBuffer, dev)
	require.NoError(t, err)
	image, err := NewKernel(tensor.MemoryImage, dev)
	require.NoError(t, err)

	k3 := tensor.Shape{8, 3, 3, 8}
	unit := [2]int{1, 1}

	block := 4
	assert.True(t, buffer.CheckUseWinograd(k3, unit, unit, &block))
	assert.Equal(t, 2, block, "buffer lowers 4 to 2")

	block = 4
	assert.True(t, image.CheckUseWinograd(k3, unit, unit, &block))
	assert.Equal(t, 4, block)

	block = 2
	assert.False(t, image.CheckUseWinograd(tensor.Shape{8, 5, 5, 8}, unit, unit, &block))
	assert.False(t, image.CheckUseWinograd(k3, [2]int{2, 2}, unit, &block))
	assert.False(t, buffer.CheckUseWinograd(k3, unit, [2]int{2, 2}, &block))

	block = 0
	assert.False(t, buffer.CheckUseWinograd(k3, unit, unit, &block))
	assert.False(t, image.CheckUseWinograd(k3, unit, unit, &block))
	block = 3
	assert.False(t, image.CheckUseWinograd(k3, unit, unit, &block))
}

func TestKernel_FormatMismatchPanics(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	in := tensor.RandomFloat32(tensor.Shape{1, 4, 4, 2}, rng)
	in.SetName("x")
	filter := tensor.RandomFloat32(tensor.Shape{2, 3, 3, 2}, rng)

	k, err := NewKernel(tensor.MemoryImage, NewHostDevice(nil))
	require.NoError(t, err)
	// Input still in buffer layout.
	din := mustTransform(t, in, tensor.Format{Memory: tensor.MemoryBuffer, Content: tensor.ContentInOut})
	dfilter := mustTransform(t, filter, tensor.Format{Memory: tensor.MemoryImage, Content: tensor.ContentConv2DFilter})

	defer func() {
		r := recover()
		require.NotNil(t, r)
		fe, ok := r.(*FormatError)
		require.True(t, ok, "expected *FormatError, got %T", r)
		assert.Equal(t, "x", fe.Tensor)
		assert.Equal(t, tensor.MemoryBuffer, fe.Got.Memory)
		assert.Equal(t, tensor.MemoryImage, fe.Want.Memory)
	}()
	_ = k.Compute(context.Background(), din, dfilter, nil, conv.DefaultParams(), activation.Params{}, 0, tensor.Empty(tensor.Float32, tensor.GPU))
}

func TestKernel_OutputBatchMismatchPanics(t *testing.T) {
	dev := &failingDevice{}
	k, err := NewKernel(tensor.MemoryBuffer, dev)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(4))
	din := mustTransform(t, tensor.RandomFloat32(tensor.Shape{2, 4, 4, 2}, rng), tensor.Format{Memory: tensor.MemoryBuffer})
	dfilter := mustTransform(t, tensor.RandomFloat32(tensor.Shape{3, 3, 3, 2}, rng),
		tensor.Format{Memory: tensor.MemoryBuffer, Content: tensor.ContentConv2DFilter})
	out := tensor.Empty(tensor.Float32, tensor.GPU)
	require.NoError(t, out.Resize(tensor.Shape{1, 2, 2, 3}))

	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok, "expected an error, got %T", r)
		assert.ErrorIs(t, err, conv.ErrShape)
		assert.Zero(t, dev.calls)
	}()
	_ = k.Compute(context.Background(), din, dfilter, nil, conv.DefaultParams(), activation.Params{}, 0, out)
}

type failingDevice struct {
	err   error
	calls int
}

func (d *failingDevice) Name() string { return "failing" }

func (d *failingDevice) Run(context.Context, *Program) error {
	d.calls++
	return d.err
}

func TestKernel_DeviceErrorReturnedVerbatim(t *testing.T) {
	deviceErr := errors.New("queue lost")
	dev := &failingDevice{err: deviceErr}
	k, err := NewKernel(tensor.MemoryBuffer, dev)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(2))
	din := mustTransform(t, tensor.RandomFloat32(tensor.Shape{1, 4, 4, 2}, rng), tensor.Format{Memory: tensor.MemoryBuffer})
	dfilter := mustTransform(t, tensor.RandomFloat32(tensor.Shape{3, 3, 3, 2}, rng),
		tensor.Format{Memory: tensor.MemoryBuffer, Content: tensor.ContentConv2DFilter})

	err = k.Compute(context.Background(), din, dfilter, nil, conv.DefaultParams(), activation.Params{}, 0, tensor.Empty(tensor.Float32, tensor.GPU))
	assert.Same(t, deviceErr, err)
	assert.Equal(t, 1, dev.calls)
}

func TestKernel_OutputAllocationFailure(t *testing.T) {
	dev := &failingDevice{}
	k, err := NewKernel(tensor.MemoryImage, dev)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(2))
	din := mustTransform(t, tensor.RandomFloat32(tensor.Shape{1, 8, 8, 4}, rng), tensor.Format{Memory: tensor.MemoryImage})
	dfilter := mustTransform(t, tensor.RandomFloat32(tensor.Shape{4, 3, 3, 4}, rng),
		tensor.Format{Memory: tensor.MemoryImage, Content: tensor.ContentConv2DFilter})
	out := tensor.WithAllocator(tensor.HeapAllocator{Limit: 16}, tensor.Float32, tensor.GPU)

	err = k.Compute(context.Background(), din, dfilter, nil, conv.DefaultParams(), activation.Params{}, 0, out)
	require.Error(t, err)
	assert.ErrorIs(t, err, tensor.ErrAllocation)
	assert.Zero(t, dev.calls)
}

func TestNewKernel_Errors(t *testing.T) {
	_, err := NewKernel(tensor.MemoryHost, NewHostDevice(nil))
	assert.Error(t, err)
	_, err = NewKernel(tensor.MemoryBuffer, nil)
	assert.Error(t, err)
}

func TestTransform_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	act := tensor.RandomFloat32(tensor.Shape{2, 3, 5, 6}, rng)
	filter := tensor.RandomFloat32(tensor.Shape{3, 2, 2, 5}, rng)
	dw := tensor.RandomFloat32(tensor.Shape{7, 3, 3, 1}, rng)
	bias := tensor.RandomFloat32(tensor.Shape{7}, rng)

	cases := []struct {
		name    string
		src     *tensor.Tensor
		content tensor.ContentType
	}{
		{"inout", act, tensor.ContentInOut},
		{"conv_filter", filter, tensor.ContentConv2DFilter},
		{"dw_filter", dw, tensor.ContentDWConv2DFilter},
		{"argument", bias, tensor.ContentArgument},
	}
	for _, mem := range memories {
		for _, tc := range cases {
			t.Run(mem.String()+"/"+tc.name, func(t *testing.T) {
				f := tensor.Format{Memory: mem, Content: tc.content}
				dev := mustTransform(t, tc.src, f)
				assert.Equal(t, f, dev.Format())
				assert.Equal(t, tensor.GPU, dev.Device())
				assert.Equal(t, f.PhysicalElements(tc.src.Shape()), len(dev.AsFloat32()))

				back, err := ToHost(dev)
				require.NoError(t, err)
				assert.True(t, back.Format().IsHost())
				assert.Equal(t, tc.src.AsFloat32(), back.AsFloat32())
			})
		}
	}
}

func TestTransform_ImagePadsChannels(t *testing.T) {
	// One pixel, five channels: two RGBA pixels, the last three lanes zero.
	src := tensor.FromFloat32(tensor.Shape{1, 1, 1, 5}, []float32{1, 2, 3, 4, 5})
	img := mustTransform(t, src, tensor.Format{Memory: tensor.MemoryImage, Content: tensor.ContentInOut})
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 0, 0, 0}, img.AsFloat32())

	w, h := ImageExtent(src.Shape())
	assert.Equal(t, 2, w)
	assert.Equal(t, 1, h)
}

func TestTransform_Errors(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	filter := tensor.RandomFloat32(tensor.Shape{2, 3, 3, 2}, rng)
	wf := mustTransform(t, filter, tensor.Format{Memory: tensor.MemoryBuffer, Content: tensor.ContentWinogradFilter, BlockSize: 2})

	_, err := ToHost(wf)
	assert.Error(t, err, "winograd filters cannot be reversed")

	_, err = Transform(tensor.RandomFloat32(tensor.Shape{2, 5, 5, 2}, rng),
		tensor.Format{Memory: tensor.MemoryImage, Content: tensor.ContentWinogradFilter, BlockSize: 2})
	assert.Error(t, err)

	_, err = Transform(tensor.RandomUint8(tensor.Shape{1, 2, 2, 1}, rng), tensor.Format{Memory: tensor.MemoryBuffer})
	assert.Error(t, err)
}

func TestTransform_KeepsWeightFlag(t *testing.T) {
	filter := tensor.FromFloat32(tensor.Shape{1, 1, 1, 1}, []float32{2})
	filter.SetName("w")
	filter.MarkWeight()
	dev := mustTransform(t, filter, tensor.Format{Memory: tensor.MemoryImage, Content: tensor.ContentConv2DFilter})
	assert.True(t, dev.IsWeight())
	assert.Equal(t, "w", dev.Name())
}
