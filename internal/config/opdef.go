// Package config reads operator definitions: which convolution to build,
// where it runs and with which arguments.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/born-ml/convcore/internal/activation"
	"github.com/born-ml/convcore/internal/conv"
	"github.com/born-ml/convcore/internal/tensor"
)

// Operator types.
const (
	TypeConv2D          = "Conv2D"
	TypeDepthwiseConv2D = "DepthwiseConv2D"
)

// Argument names read by the operator facade.
const (
	ArgStrides         = "strides"
	ArgDilations       = "dilations"
	ArgPadding         = "padding"
	ArgPaddingValues   = "padding_values"
	ArgRoundType       = "round_type"
	ArgActivation      = "activation"
	ArgMaxLimit        = "max_limit"
	ArgActivationCoeff = "activation_coefficient"
	ArgHardSigmoidA    = "hardsigmoid_alpha"
	ArgHardSigmoidB    = "hardsigmoid_beta"
	ArgWinoBlockSize   = "wino_block_size"
)

// Quant is the affine quantization of one named tensor.
type Quant struct {
	Scale     float32 `yaml:"scale" json:"scale"`
	ZeroPoint int32   `yaml:"zero_point" json:"zero_point"`
}

// OpDef describes one convolution operator. Inputs are workspace names in
// the order input, filter and (optionally) bias.
type OpDef struct {
	Name       string         `yaml:"name" json:"name"`
	Type       string         `yaml:"type" json:"type"`
	Device     string         `yaml:"device,omitempty" json:"device,omitempty"`
	DType      string         `yaml:"dtype,omitempty" json:"dtype,omitempty"`
	MemoryType string         `yaml:"memory_type,omitempty" json:"memory_type,omitempty"`
	Inputs     []string       `yaml:"inputs" json:"inputs"`
	Output     string         `yaml:"output" json:"output"`
	Args       map[string]any `yaml:"args,omitempty" json:"args,omitempty"`

	// Shapes and Quantization describe the tensors for standalone runs.
	Shapes       map[string][]int `yaml:"shapes,omitempty" json:"shapes,omitempty"`
	Quantization map[string]Quant `yaml:"quantization,omitempty" json:"quantization,omitempty"`
	// Weights lists the inputs that are immutable model weights.
	Weights []string `yaml:"weights,omitempty" json:"weights,omitempty"`
}

// Format is an operator definition encoding.
type Format int

// Encodings.
const (
	YAML Format = iota
	JSON
)

// FormatFor picks the encoding from a file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAML, nil
	case ".json":
		return JSON, nil
	default:
		return YAML, errors.Errorf("unsupported operator definition extension %q", filepath.Ext(path))
	}
}

// Load reads and validates an operator definition file.
func Load(path string) (*OpDef, error) {
	f, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read operator definition")
	}
	def, err := Parse(data, f)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	return def, nil
}

// Parse decodes and validates an operator definition.
func Parse(data []byte, f Format) (*OpDef, error) {
	def := &OpDef{}
	var err error
	switch f {
	case JSON:
		err = json.Unmarshal(data, def)
	default:
		err = yaml.Unmarshal(data, def)
	}
	if err != nil {
		return nil, errors.Wrap(err, "decode operator definition")
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

// Marshal encodes the definition.
func (d *OpDef) Marshal(f Format) ([]byte, error) {
	if f == JSON {
		return json.MarshalIndent(d, "", "  ")
	}
	return yaml.Marshal(d)
}

// Save writes the definition to path in the encoding its extension names.
func (d *OpDef) Save(path string) error {
	f, err := FormatFor(path)
	if err != nil {
		return err
	}
	data, err := d.Marshal(f)
	if err != nil {
		return errors.Wrap(err, "encode operator definition")
	}
	return errors.Wrap(os.WriteFile(path, data, 0o644), "write operator definition")
}

// Validate checks the fields every operator needs.
func (d *OpDef) Validate() error {
	if d.Type != TypeConv2D && d.Type != TypeDepthwiseConv2D {
		return errors.Errorf("operator %q: unsupported type %q", d.Name, d.Type)
	}
	if len(d.Inputs) < 2 || len(d.Inputs) > 3 {
		return errors.Errorf("operator %q: needs input, filter and optional bias, got %d inputs", d.Name, len(d.Inputs))
	}
	if d.Output == "" {
		return errors.Errorf("operator %q: missing output name", d.Name)
	}
	if _, err := d.DeviceType(); err != nil {
		return errors.Wrapf(err, "operator %q", d.Name)
	}
	if _, err := d.DataType(); err != nil {
		return errors.Wrapf(err, "operator %q", d.Name)
	}
	if _, err := d.Memory(); err != nil {
		return errors.Wrapf(err, "operator %q", d.Name)
	}
	return nil
}

// IsDepthwise reports whether the operator is a depthwise convolution.
func (d *OpDef) IsDepthwise() bool { return d.Type == TypeDepthwiseConv2D }

// DeviceType parses the device field; empty means CPU.
func (d *OpDef) DeviceType() (tensor.Device, error) {
	return tensor.ParseDevice(strings.ToLower(d.Device))
}

// DataType parses the dtype field; empty means float32.
func (d *OpDef) DataType() (tensor.DataType, error) {
	return tensor.ParseDataType(d.DType)
}

// Memory parses the memory_type field. GPU operators default to image memory.
func (d *OpDef) Memory() (tensor.MemoryType, error) {
	mem, err := tensor.ParseMemoryType(d.MemoryType)
	if err != nil {
		return mem, err
	}
	if mem == tensor.MemoryHost && strings.EqualFold(d.Device, "gpu") {
		return tensor.MemoryImage, nil
	}
	return mem, nil
}

// HasBias reports whether a bias input is named.
func (d *OpDef) HasBias() bool { return len(d.Inputs) == 3 && d.Inputs[2] != "" }

// IsWeight reports whether the named input is listed as a weight.
func (d *OpDef) IsWeight(name string) bool {
	for _, w := range d.Weights {
		if w == name {
			return true
		}
	}
	return false
}

// ArgInt returns an integer argument or def when absent.
func (d *OpDef) ArgInt(name string, def int) int {
	v, ok := d.Args[name]
	if !ok {
		return def
	}
	if n, ok := toInt(v); ok {
		return n
	}
	return def
}

// ArgInts returns an integer list argument, or nil when absent or malformed.
func (d *OpDef) ArgInts(name string) []int {
	v, ok := d.Args[name]
	if !ok {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		if ints, ok := v.([]int); ok {
			return ints
		}
		return nil
	}
	out := make([]int, len(list))
	for i, e := range list {
		n, ok := toInt(e)
		if !ok {
			return nil
		}
		out[i] = n
	}
	return out
}

// ArgFloat returns a float argument or def when absent.
func (d *OpDef) ArgFloat(name string, def float32) float32 {
	switch v := d.Args[name].(type) {
	case float64:
		return float32(v)
	case float32:
		return v
	case int:
		return float32(v)
	case int64:
		return float32(v)
	case uint64:
		return float32(v)
	default:
		return def
	}
}

// ArgString returns a string argument or def when absent.
func (d *OpDef) ArgString(name, def string) string {
	if s, ok := d.Args[name].(string); ok {
		return s
	}
	return def
}

// SetArg sets an argument, creating the map if needed.
func (d *OpDef) SetArg(name string, v any) {
	if d.Args == nil {
		d.Args = make(map[string]any)
	}
	d.Args[name] = v
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true //nolint:gosec // argument values are small
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}

// ConvParams reads strides, dilations and padding. With neither a padding
// policy nor explicit values the policy is SAME.
func (d *OpDef) ConvParams() (conv.Params, error) {
	p := conv.Params{Strides: [2]int{1, 1}, Dilations: [2]int{1, 1}, Padding: conv.Same}
	if err := pair(d, ArgStrides, &p.Strides); err != nil {
		return p, err
	}
	if err := pair(d, ArgDilations, &p.Dilations); err != nil {
		return p, err
	}

	policy, hasPolicy := d.Args[ArgPadding].(string)
	values := d.ArgInts(ArgPaddingValues)
	switch {
	case hasPolicy && values != nil:
		return p, errors.Errorf("operator %q: both %s and %s are set", d.Name, ArgPadding, ArgPaddingValues)
	case hasPolicy:
		pt, err := conv.ParsePaddingType(policy)
		if err != nil {
			return p, errors.Wrapf(err, "operator %q", d.Name)
		}
		p.Padding = pt
	case values != nil:
		p.Padding = conv.Explicit
		p.PaddingValues = values
	}

	switch strings.ToUpper(d.ArgString(ArgRoundType, "FLOOR")) {
	case "FLOOR":
		p.Round = conv.Floor
	case "CEIL":
		p.Round = conv.Ceil
	default:
		return p, errors.Errorf("operator %q: unknown round type %q", d.Name, d.ArgString(ArgRoundType, ""))
	}

	if err := p.Validate(); err != nil {
		return p, errors.Wrapf(err, "operator %q", d.Name)
	}
	return p, nil
}

func pair(d *OpDef, name string, dst *[2]int) error {
	if _, ok := d.Args[name]; !ok {
		return nil
	}
	v := d.ArgInts(name)
	if len(v) != 2 {
		return errors.Errorf("operator %q: %s must hold 2 integers, got %v", d.Name, name, d.Args[name])
	}
	dst[0], dst[1] = v[0], v[1]
	return nil
}

// ActivationParams reads the fused activation. Absent parameters are 0.
func (d *OpDef) ActivationParams() (activation.Params, error) {
	typ, err := activation.Parse(d.ArgString(ArgActivation, ""))
	if err != nil {
		return activation.Params{}, errors.Wrapf(err, "operator %q", d.Name)
	}
	return activation.Params{
		Type:             typ,
		Limit:            d.ArgFloat(ArgMaxLimit, 0),
		Coefficient:      d.ArgFloat(ArgActivationCoeff, 0),
		HardSigmoidAlpha: d.ArgFloat(ArgHardSigmoidA, 0),
		HardSigmoidBeta:  d.ArgFloat(ArgHardSigmoidB, 0),
	}, nil
}

// WinoBlockSize returns the preferred winograd block; 0 disables it.
func (d *OpDef) WinoBlockSize() int {
	return d.ArgInt(ArgWinoBlockSize, 0)
}

// String returns "name(type)".
func (d *OpDef) String() string {
	return fmt.Sprintf("%s(%s)", d.Name, d.Type)
}
