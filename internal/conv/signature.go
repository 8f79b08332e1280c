package conv

import (
	"fmt"

	"github.com/born-ml/convcore/internal/tensor"
)

// Signature is the key the strategy selector matches on.
type Signature struct {
	KH, KW           int
	StrideH, StrideW int
	DilH, DilW       int
	InC, OutC        int
	Depthwise        bool
}

// SignatureOf builds a Signature from an NHWC input, an OHWI filter and params.
func SignatureOf(input, filter tensor.Shape, p Params, depthwise bool) Signature {
	s := Signature{
		KH:        filter[1],
		KW:        filter[2],
		StrideH:   p.Strides[0],
		StrideW:   p.Strides[1],
		DilH:      p.Dilations[0],
		DilW:      p.Dilations[1],
		OutC:      filter[0],
		Depthwise: depthwise,
	}
	if len(input) == 4 {
		s.InC = input[3]
	} else {
		s.InC = filter[3]
	}
	return s
}

// Undilated reports whether both dilations are 1.
func (s Signature) Undilated() bool {
	return s.DilH == 1 && s.DilW == 1
}

// Is reports whether the filter and stride match exactly.
func (s Signature) Is(kh, kw, sh, sw int) bool {
	return s.KH == kh && s.KW == kw && s.StrideH == sh && s.StrideW == sw
}

func (s Signature) String() string {
	kind := "conv"
	if s.Depthwise {
		kind = "dwconv"
	}
	return fmt.Sprintf("%s %dx%d s%dx%d d%dx%d %d->%d", kind, s.KH, s.KW, s.StrideH, s.StrideW, s.DilH, s.DilW, s.InC, s.OutC)
}
