// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package conv

import (
	"github.com/born-ml/convcore/internal/activation"
	"github.com/born-ml/convcore/internal/config"
	"github.com/born-ml/convcore/internal/conv"
	"github.com/born-ml/convcore/internal/logger"
	"github.com/born-ml/convcore/internal/ops"
	"github.com/born-ml/convcore/internal/parallel"
	"github.com/born-ml/convcore/tensor"
)

// OpDef describes one convolution operator.
type OpDef = config.OpDef

// Quant is the quantization of one named tensor in an OpDef.
type Quant = config.Quant

// Operator types.
const (
	TypeConv2D          = config.TypeConv2D
	TypeDepthwiseConv2D = config.TypeDepthwiseConv2D
)

// Load reads an operator definition from a .yaml, .yml or .json file.
func Load(path string) (*OpDef, error) {
	return config.Load(path)
}

// Params holds strides, dilations and padding.
type Params = conv.Params

// PaddingType is the padding policy.
type PaddingType = conv.PaddingType

// Padding policies. Explicit uses Params.PaddingValues.
const (
	Explicit PaddingType = conv.Explicit
	Valid    PaddingType = conv.Valid
	Same     PaddingType = conv.Same
	Full     PaddingType = conv.Full
)

// Geometry is a resolved convolution: sizes, paddings and channel counts.
type Geometry = conv.Geometry

// Resolve computes the geometry of a convolution, or an error when the
// operands do not fit together.
func Resolve(input, filter tensor.Shape, p Params, depthwise bool) (Geometry, error) {
	return conv.Resolve(input, filter, p, depthwise)
}

// Activation is a fused activation and its parameters.
type Activation = activation.Params

// Operator is one convolution node.
type Operator = ops.Operator

// Workspace holds named tensors.
type Workspace = ops.Workspace

// NewWorkspace creates an empty workspace.
func NewWorkspace() *Workspace {
	return ops.NewWorkspace()
}

// Option configures an Operator.
type Option = ops.Option

// Impl identifies the strategy an operator selected.
type Impl = ops.Impl

// New builds an operator. GPU operators convert their weight tensors in ws
// to device layouts.
func New(def *OpDef, ws *Workspace, opts ...Option) (*Operator, error) {
	return ops.New(def, ws, opts...)
}

// WithWorkers runs the operator on a dedicated pool of n workers.
func WithWorkers(n int) Option {
	return ops.WithPool(parallel.WithWorkers(n))
}

// Logger receives the operator's structured debug records.
type Logger = logger.Logger

// Capabilities describes the CPU features specialized strategies need.
type Capabilities = ops.Capabilities

// WithLogger, WithDevice and WithCapabilities re-export the operator options.
var (
	WithLogger       = ops.WithLogger
	WithDevice       = ops.WithDevice
	WithCapabilities = ops.WithCapabilities
)

// JSONLogger and PrettyLogger build loggers for WithLogger.
var (
	JSONLogger   = logger.JSON
	PrettyLogger = logger.Pretty
)
