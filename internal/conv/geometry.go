package conv

import "github.com/born-ml/convcore/internal/tensor"

// Geometry flattens a resolved convolution into the loop bounds every
// strategy iterates over.
type Geometry struct {
	Batch            int
	InH, InW, InC    int
	OutH, OutW, OutC int
	KH, KW           int
	StrideH, StrideW int
	DilH, DilW       int
	PadTop, PadLeft  int
	PadBottom        int
	PadRight         int
	Multiplier       int // depthwise channel multiplier, 1 for dense
	Depthwise        bool
}

// NewGeometry builds a Geometry from resolved shapes and total paddings.
// Paddings split as floor on top/left and ceil on bottom/right.
func NewGeometry(input, filter, output tensor.Shape, p Params, paddings [2]int, depthwise bool) Geometry {
	g := Geometry{
		Batch:      input[0],
		InH:        input[1],
		InW:        input[2],
		InC:        input[3],
		OutH:       output[1],
		OutW:       output[2],
		OutC:       output[3],
		KH:         filter[1],
		KW:         filter[2],
		StrideH:    p.Strides[0],
		StrideW:    p.Strides[1],
		DilH:       p.Dilations[0],
		DilW:       p.Dilations[1],
		PadTop:     paddings[0] >> 1,
		PadLeft:    paddings[1] >> 1,
		PadBottom:  paddings[0] - paddings[0]>>1,
		PadRight:   paddings[1] - paddings[1]>>1,
		Multiplier: 1,
		Depthwise:  depthwise,
	}
	if depthwise {
		g.Multiplier = g.OutC / g.InC
	}
	return g
}

// Resolve runs ComputeOutputSize and returns the geometry.
func Resolve(input, filter tensor.Shape, p Params, depthwise bool) (Geometry, error) {
	out, paddings, err := ComputeOutputSize(input, filter, p, depthwise)
	if err != nil {
		return Geometry{}, err
	}
	return NewGeometry(input, filter, out, p, paddings, depthwise), nil
}

// MustResolve is Resolve for strategies, where a shape mismatch is a
// contract violation.
func MustResolve(input, filter tensor.Shape, p Params, depthwise bool) Geometry {
	g, err := Resolve(input, filter, p, depthwise)
	if err != nil {
		panic(err)
	}
	return g
}

// OutputShape returns the NHWC output shape.
func (g Geometry) OutputShape() tensor.Shape {
	return tensor.Shape{g.Batch, g.OutH, g.OutW, g.OutC}
}

// IsPointwise reports whether every output position reads exactly one
// input pixel at the same coordinates: a 1×1 filter, stride 1, no padding.
func (g Geometry) IsPointwise() bool {
	return g.KH == 1 && g.KW == 1 && g.StrideH == 1 && g.StrideW == 1 &&
		g.PadTop == 0 && g.PadLeft == 0 && g.PadBottom == 0 && g.PadRight == 0
}

// Signature returns the selection key for this geometry.
func (g Geometry) Signature() Signature {
	return Signature{
		KH: g.KH, KW: g.KW,
		StrideH: g.StrideH, StrideW: g.StrideW,
		DilH: g.DilH, DilW: g.DilW,
		InC: g.InC, OutC: g.OutC,
		Depthwise: g.Depthwise,
	}
}
