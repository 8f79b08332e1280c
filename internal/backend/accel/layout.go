package accel

import "github.com/born-ml/convcore/internal/tensor"

// Device layouts. Buffers keep the host layouts except for winograd
// filters. Images are grids of RGBA pixels: four consecutive channels share
// one pixel and channel counts are padded to a multiple of four.
//
// Activations (N, H, W, C) as an image are (N·H) rows of ceil(C/4)·W pixels:
// channel block c/4 of pixel (n, h, w) sits at row n·H + h, column
// (c/4)·W + w.

// InOutIndex returns the element offset of activation (n, h, w, c).
func InOutIndex(mem tensor.MemoryType, shape tensor.Shape, n, h, w, c int) int {
	H, W, C := shape[1], shape[2], shape[3]
	if mem != tensor.MemoryImage {
		return ((n*H+h)*W+w)*C + c
	}
	width := (tensor.RoundUp4(C) / 4) * W
	y := n*H + h
	x := (c/4)*W + w
	return (y*width+x)*4 + c%4
}

// ImageExtent returns the pixel width and height of an activation image.
func ImageExtent(shape tensor.Shape) (width, height int) {
	return (tensor.RoundUp4(shape[3]) / 4) * shape[2], shape[0] * shape[1]
}

// ConvFilterIndex returns the offset of OHWI filter element (o, kh, kw, ci).
// Images pad the input channels to a multiple of four.
func ConvFilterIndex(mem tensor.MemoryType, shape tensor.Shape, o, kh, kw, ci int) int {
	KH, KW, I := shape[1], shape[2], shape[3]
	if mem == tensor.MemoryImage {
		I = tensor.RoundUp4(I)
	}
	return ((o*KH+kh)*KW+kw)*I + ci
}

// WinogradFilterIndex returns the offset of transform position p of the
// filter connecting input channel ci to output channel o, for a bank of
// out × in filters.
func WinogradFilterIndex(mem tensor.MemoryType, out, in, p, o, ci int) int {
	if mem == tensor.MemoryImage {
		in = tensor.RoundUp4(in)
	}
	return (p*out+o)*in + ci
}

// DWFilterIndex returns the offset of depthwise filter element (co, kh, kw)
// of a (C_out, KH, KW, 1) filter. Images store one pixel row per tap.
func DWFilterIndex(mem tensor.MemoryType, shape tensor.Shape, co, kh, kw int) int {
	O, KH, KW := shape[0], shape[1], shape[2]
	if mem != tensor.MemoryImage {
		return (co*KH+kh)*KW + kw
	}
	return (kh*KW+kw)*tensor.RoundUp4(O) + co
}
