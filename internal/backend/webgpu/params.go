package webgpu

import (
	"encoding/binary"
	"math"

	"github.com/born-ml/convcore/internal/backend/accel"
	"github.com/born-ml/convcore/internal/tensor"
	"github.com/born-ml/convcore/internal/winograd"
)

// paramsSize is the byte size of the Params uniform: 24 four-byte fields.
const paramsSize = 96

// encodeParams packs the program geometry into the Params uniform block.
//
//nolint:gosec // G115: geometry values are small non-negative ints
func encodeParams(prog *accel.Program) []byte {
	g := &prog.Geometry
	buf := make([]byte, paramsSize)
	put := func(i int, v uint32) { binary.LittleEndian.PutUint32(buf[i*4:], v) }

	multiplier := g.Multiplier
	if multiplier == 0 {
		multiplier = 1
	}
	var image, hasBias uint32
	if prog.Memory == tensor.MemoryImage {
		image = 1
	}
	if prog.Bias != nil {
		hasBias = 1
	}
	act := prog.Activation

	fields := []uint32{
		uint32(g.Batch), uint32(g.InH), uint32(g.InW), uint32(g.InC),
		uint32(g.OutH), uint32(g.OutW), uint32(g.OutC), uint32(g.KH),
		uint32(g.KW), uint32(g.StrideH), uint32(g.StrideW), uint32(g.DilH),
		uint32(g.DilW), uint32(int32(g.PadTop)), uint32(int32(g.PadLeft)), uint32(multiplier),
		image, hasBias, uint32(act.Type), uint32(prog.BlockSize),
		math.Float32bits(act.Limit), math.Float32bits(act.Coefficient),
		math.Float32bits(act.HardSigmoidAlpha), math.Float32bits(act.HardSigmoidBeta),
	}
	for i, v := range fields {
		put(i, v)
	}
	return buf
}

// shaderFor returns the cache key and WGSL source of a program kind.
func shaderFor(kind accel.ProgramKind) (name, code string) {
	switch kind {
	case accel.WinogradProgram:
		return "winograd_conv2d", winogradShader
	case accel.DepthwiseProgram:
		return "depthwise_conv2d", depthwiseShader
	default:
		return "conv2d", conv2dShader
	}
}

// workgroups returns the dispatch size for prog.
//
//nolint:gosec // G115: workgroup counts are non-negative
func workgroups(prog *accel.Program) (x, y, z uint32) {
	g := &prog.Geometry
	w, h := g.OutW, g.OutH
	if prog.Kind == accel.WinogradProgram {
		w = (w + prog.BlockSize - 1) / prog.BlockSize
		h = (h + prog.BlockSize - 1) / prog.BlockSize
	}
	return uint32((w + workgroupSize - 1) / workgroupSize),
		uint32((h + workgroupSize - 1) / workgroupSize),
		uint32(g.Batch * g.OutC)
}

// winogradMatrices flattens BT followed by AT for the shader.
func winogradMatrices(block int) []float32 {
	wm := winograd.For(block)
	return append(winograd.Flat(wm.BT), winograd.Flat(wm.AT)...)
}

func float32Bytes(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
