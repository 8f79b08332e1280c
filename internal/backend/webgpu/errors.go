package webgpu

import "github.com/pkg/errors"

// ErrNotSupported is returned by New on platforms without a WebGPU runtime.
var ErrNotSupported = errors.New("webgpu: not supported on this platform")
