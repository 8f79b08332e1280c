// Package tensor provides the tensor data model shared by every convolution strategy.
package tensor

import (
	"fmt"
	"strings"
)

// DataType represents runtime type information for tensors.
type DataType int

// Supported data types for tensors.
const (
	Float32 DataType = iota
	Int32
	Uint8
)

// Size returns the byte size of the data type.
func (dt DataType) Size() int {
	switch dt {
	case Float32, Int32:
		return 4
	case Uint8:
		return 1
	default:
		panic("unknown data type")
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Int32:
		return "int32"
	case Uint8:
		return "uint8"
	default:
		return "unknown"
	}
}

// ParseDataType converts a configuration name ("float32", "uint8", "int32") to a DataType.
func ParseDataType(name string) (DataType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "float32", "float", "dt_float":
		return Float32, nil
	case "uint8", "dt_uint8", "quantized":
		return Uint8, nil
	case "int32", "dt_int32":
		return Int32, nil
	default:
		return Float32, fmt.Errorf("unknown data type %q", name)
	}
}
