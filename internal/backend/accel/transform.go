package accel

import (
	"github.com/pkg/errors"

	"github.com/born-ml/convcore/internal/tensor"
	"github.com/born-ml/convcore/internal/winograd"
)

// Transform returns a copy of t converted to the target format. The logical
// shape is unchanged; only the physical arrangement differs. t must be a
// float32 tensor in host layout or in a layout ToHost can reverse.
func Transform(t *tensor.Tensor, target tensor.Format) (*tensor.Tensor, error) {
	if t.DType() != tensor.Float32 {
		return nil, errors.Errorf("transform %q: unsupported dtype %s", t.Name(), t.DType())
	}
	src := t
	if !t.Format().IsHost() {
		host, err := ToHost(t)
		if err != nil {
			return nil, err
		}
		src = host
	}

	device := tensor.GPU
	if target.IsHost() {
		device = tensor.CPU
	}
	dst := tensor.WithAllocator(t.Allocator(), tensor.Float32, device)
	dst.SetName(t.Name())
	if t.IsWeight() {
		dst.MarkWeight()
	}
	shape := src.Shape()
	if err := dst.ResizeFormat(shape, target); err != nil {
		return nil, errors.Wrapf(err, "transform %q to %s", t.Name(), target)
	}

	in, out := src.AsFloat32(), dst.AsFloat32()
	mem := target.Memory
	switch {
	case target.IsHost():
		copy(out, in)
	case target.Content == tensor.ContentInOut:
		if len(shape) != 4 {
			return nil, errors.Errorf("transform %q: activation must be 4D, got %v", t.Name(), shape)
		}
		forEach4(shape, func(n, h, w, c, i int) {
			out[InOutIndex(mem, shape, n, h, w, c)] = in[i]
		})
	case target.Content == tensor.ContentConv2DFilter:
		if len(shape) != 4 {
			return nil, errors.Errorf("transform %q: filter must be 4D, got %v", t.Name(), shape)
		}
		forEach4(shape, func(o, kh, kw, ci, i int) {
			out[ConvFilterIndex(mem, shape, o, kh, kw, ci)] = in[i]
		})
	case target.Content == tensor.ContentWinogradFilter:
		if len(shape) != 4 || shape[1] != 3 || shape[2] != 3 || !winograd.Supported(target.BlockSize) {
			return nil, errors.Errorf("transform %q: cannot build winograd(%d) filter from %v", t.Name(), target.BlockSize, shape)
		}
		wm := winograd.For(target.BlockSize)
		O, I := shape[0], shape[3]
		u := wm.TransformFilter(in, O, I)
		for p := 0; p < wm.Tile*wm.Tile; p++ {
			for o := 0; o < O; o++ {
				for ci := 0; ci < I; ci++ {
					out[WinogradFilterIndex(mem, O, I, p, o, ci)] = u[(p*O+o)*I+ci]
				}
			}
		}
	case target.Content == tensor.ContentDWConv2DFilter:
		if len(shape) != 4 || shape[3] != 1 {
			return nil, errors.Errorf("transform %q: depthwise filter must be (C_out, KH, KW, 1), got %v", t.Name(), shape)
		}
		forEach4(shape, func(co, kh, kw, _, i int) {
			out[DWFilterIndex(mem, shape, co, kh, kw)] = in[i]
		})
	case target.Content == tensor.ContentArgument:
		copy(out, in)
	default:
		return nil, errors.Errorf("transform %q: unknown target %s", t.Name(), target)
	}
	return dst, nil
}

// ToHost converts a device tensor back to host layout. Winograd filters are
// not invertible and are rejected.
func ToHost(t *tensor.Tensor) (*tensor.Tensor, error) {
	f := t.Format()
	if t.DType() != tensor.Float32 {
		return nil, errors.Errorf("to host %q: unsupported dtype %s", t.Name(), t.DType())
	}
	dst := tensor.WithAllocator(t.Allocator(), tensor.Float32, tensor.CPU)
	dst.SetName(t.Name())
	if t.IsWeight() {
		dst.MarkWeight()
	}
	shape := t.Shape()
	if err := dst.Resize(shape); err != nil {
		return nil, errors.Wrapf(err, "to host %q", t.Name())
	}
	in, out := t.AsFloat32(), dst.AsFloat32()
	mem := f.Memory
	switch {
	case f.IsHost() || f.Content == tensor.ContentArgument:
		copy(out, in)
	case f.Content == tensor.ContentInOut:
		forEach4(shape, func(n, h, w, c, i int) {
			out[i] = in[InOutIndex(mem, shape, n, h, w, c)]
		})
	case f.Content == tensor.ContentConv2DFilter:
		forEach4(shape, func(o, kh, kw, ci, i int) {
			out[i] = in[ConvFilterIndex(mem, shape, o, kh, kw, ci)]
		})
	case f.Content == tensor.ContentDWConv2DFilter:
		forEach4(shape, func(co, kh, kw, _, i int) {
			out[i] = in[DWFilterIndex(mem, shape, co, kh, kw)]
		})
	default:
		return nil, errors.Errorf("to host %q: format %s cannot be converted back", t.Name(), f)
	}
	return dst, nil
}

// forEach4 walks a 4D row-major shape, passing coordinates and flat index.
func forEach4(shape tensor.Shape, fn func(a, b, c, d, i int)) {
	i := 0
	for a := 0; a < shape[0]; a++ {
		for b := 0; b < shape[1]; b++ {
			for c := 0; c < shape[2]; c++ {
				for d := 0; d < shape[3]; d++ {
					fn(a, b, c, d, i)
					i++
				}
			}
		}
	}
}
