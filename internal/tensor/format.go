package tensor

import (
	"fmt"
	"strings"
)

// MemoryType is the storage kind a tensor lives in.
type MemoryType int

// Memory types. MemoryHost is the plain row-major layout used by CPU strategies.
const (
	MemoryHost MemoryType = iota
	MemoryBuffer
	MemoryImage
)

// String returns the configuration name of the memory type.
func (m MemoryType) String() string {
	switch m {
	case MemoryHost:
		return "host"
	case MemoryBuffer:
		return "buffer"
	case MemoryImage:
		return "image"
	default:
		return "unknown"
	}
}

// ParseMemoryType converts "buffer" or "image" to a MemoryType.
func ParseMemoryType(name string) (MemoryType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "host":
		return MemoryHost, nil
	case "buffer", "gpu_buffer":
		return MemoryBuffer, nil
	case "image", "gpu_image":
		return MemoryImage, nil
	default:
		return MemoryHost, fmt.Errorf("unknown memory type %q", name)
	}
}

// ContentType describes what a device-resident tensor holds, which decides its layout.
type ContentType int

// Content types.
const (
	ContentInOut ContentType = iota // activations, NHWC
	ContentConv2DFilter             // convolution filter, OHWI
	ContentDWConv2DFilter           // depthwise filter, (C_out, KH, KW, 1)
	ContentWinogradFilter           // block-transformed 3x3 filter
	ContentArgument                 // per-channel vector (bias)
)

// String returns a human-readable content name.
func (c ContentType) String() string {
	switch c {
	case ContentInOut:
		return "in_out_channel"
	case ContentConv2DFilter:
		return "conv2d_filter"
	case ContentDWConv2DFilter:
		return "dw_conv2d_filter"
	case ContentWinogradFilter:
		return "winograd_filter"
	case ContentArgument:
		return "argument"
	default:
		return "unknown"
	}
}

// Format is the memory-format tag carried by every tensor.
// The zero value is the host layout: NHWC activations, OHWI filters.
type Format struct {
	Memory    MemoryType
	Content   ContentType
	BlockSize int // winograd output block, only with ContentWinogradFilter
}

// HostFormat is the layout CPU strategies read and write.
var HostFormat = Format{}

// IsHost reports whether the tensor uses the plain host layout.
func (f Format) IsHost() bool {
	return f.Memory == MemoryHost
}

// String returns a compact description such as "image/winograd_filter(4)".
func (f Format) String() string {
	if f.Content == ContentWinogradFilter {
		return fmt.Sprintf("%s/%s(%d)", f.Memory, f.Content, f.BlockSize)
	}
	return fmt.Sprintf("%s/%s", f.Memory, f.Content)
}

// RoundUp4 rounds n up to a multiple of four (one RGBA pixel).
func RoundUp4(n int) int {
	return (n + 3) &^ 3
}

// PhysicalElements returns how many elements a tensor of the given logical
// shape occupies in this format. Image formats pad channels to whole RGBA
// pixels; winograd filters hold (b+2)^2 transform positions per filter pair.
func (f Format) PhysicalElements(shape Shape) int {
	if f.Memory == MemoryHost || len(shape) == 0 {
		return shape.NumElements()
	}
	image := f.Memory == MemoryImage
	switch f.Content {
	case ContentInOut:
		if len(shape) != 4 || !image {
			return shape.NumElements()
		}
		return shape[0] * shape[1] * shape[2] * RoundUp4(shape[3])
	case ContentConv2DFilter:
		if len(shape) != 4 || !image {
			return shape.NumElements()
		}
		return shape[0] * shape[1] * shape[2] * RoundUp4(shape[3])
	case ContentWinogradFilter:
		t := f.BlockSize + 2
		if len(shape) != 4 {
			return shape.NumElements()
		}
		in := shape[3]
		if image {
			in = RoundUp4(in)
		}
		return t * t * shape[0] * in
	case ContentDWConv2DFilter:
		if len(shape) != 4 || !image {
			return shape.NumElements()
		}
		return shape[1] * shape[2] * RoundUp4(shape[0])
	case ContentArgument:
		if image {
			return RoundUp4(shape.NumElements())
		}
		return shape.NumElements()
	default:
		return shape.NumElements()
	}
}
