package ops

import (
	"fmt"

	"golang.org/x/sys/cpu"

	"github.com/born-ml/convcore/internal/conv"
	"github.com/born-ml/convcore/internal/tensor"
)

// Impl identifies one strategy of the closed catalog.
type Impl int

// Strategy catalog. Ref is always valid.
const (
	Ref Impl = iota
	K1x1
	K3x3S1
	K3x3S2
	K3x3Winograd
	K5x5S1
	K7x7S1
	K7x7S2
	K7x7S3
	K1x7S1
	K7x1S1
	K1x15S1
	K15x1S1
	DW3x3S1
	DW3x3S2
)

var implNames = [...]string{
	Ref:          "Ref",
	K1x1:         "K1x1",
	K3x3S1:       "K3x3S1",
	K3x3S2:       "K3x3S2",
	K3x3Winograd: "K3x3Winograd",
	K5x5S1:       "K5x5S1",
	K7x7S1:       "K7x7S1",
	K7x7S2:       "K7x7S2",
	K7x7S3:       "K7x7S3",
	K1x7S1:       "K1x7S1",
	K7x1S1:       "K7x1S1",
	K1x15S1:      "K1x15S1",
	K15x1S1:      "K15x1S1",
	DW3x3S1:      "DW3x3S1",
	DW3x3S2:      "DW3x3S2",
}

func (i Impl) String() string {
	if i >= 0 && int(i) < len(implNames) {
		return implNames[i]
	}
	return fmt.Sprintf("Impl(%d)", int(i))
}

// shape is the exact (kh, kw, sh, sw) key of a fixed-size strategy.
type shape struct{ kh, kw, sh, sw int }

// directTable lists the dense fixed-size strategies. 3×3 s1 is handled
// separately because of the winograd preference.
var directTable = map[shape]Impl{
	{1, 1, 1, 1}:  K1x1,
	{3, 3, 2, 2}:  K3x3S2,
	{5, 5, 1, 1}:  K5x5S1,
	{7, 7, 1, 1}:  K7x7S1,
	{7, 7, 2, 2}:  K7x7S2,
	{7, 7, 3, 3}:  K7x7S3,
	{1, 7, 1, 1}:  K1x7S1,
	{7, 1, 1, 1}:  K7x1S1,
	{1, 15, 1, 1}: K1x15S1,
	{15, 1, 1, 1}: K15x1S1,
}

// WinogradMinChannels is the channel count from which 3×3/s1 convolutions
// use the block transform.
const WinogradMinChannels = 8

// Capabilities describes the SIMD support specialized strategies need.
type Capabilities struct {
	SIMD bool
}

// DetectCapabilities queries the running CPU.
func DetectCapabilities() Capabilities {
	return Capabilities{SIMD: cpu.X86.HasAVX2 || cpu.ARM64.HasASIMD}
}

// Target is the device and element type an operator runs with.
type Target struct {
	Device tensor.Device
	DType  tensor.DataType
}

// Selector maps a kernel signature to one catalog entry.
type Selector interface {
	Select(sig conv.Signature, target Target, caps Capabilities) Impl
}

// SelectorFunc adapts a function to Selector.
type SelectorFunc func(sig conv.Signature, target Target, caps Capabilities) Impl

// Select calls f.
func (f SelectorFunc) Select(sig conv.Signature, target Target, caps Capabilities) Impl {
	return f(sig, target, caps)
}

// DefaultSelector implements the static shape rules.
var DefaultSelector Selector = SelectorFunc(selectImpl)

func selectImpl(sig conv.Signature, target Target, caps Capabilities) Impl {
	if target.Device != tensor.CPU || target.DType != tensor.Float32 {
		return Ref
	}
	if !caps.SIMD || !sig.Undilated() {
		return Ref
	}
	if sig.Depthwise {
		switch {
		case sig.Is(3, 3, 1, 1):
			return DW3x3S1
		case sig.Is(3, 3, 2, 2):
			return DW3x3S2
		default:
			return Ref
		}
	}
	if sig.Is(3, 3, 1, 1) {
		if sig.InC >= WinogradMinChannels && sig.OutC >= WinogradMinChannels {
			return K3x3Winograd
		}
		return K3x3S1
	}
	if impl, ok := directTable[shape{sig.KH, sig.KW, sig.StrideH, sig.StrideW}]; ok {
		return impl
	}
	return Ref
}
