//go:build !windows

package webgpu

import (
	"context"

	"github.com/born-ml/convcore/internal/backend/accel"
)

// Device is unavailable on this platform.
type Device struct{}

// New always fails with ErrNotSupported.
func New() (*Device, error) {
	return nil, ErrNotSupported
}

// Name returns "webgpu".
func (d *Device) Name() string { return "webgpu" }

// Run always fails with ErrNotSupported.
func (d *Device) Run(context.Context, *accel.Program) error {
	return ErrNotSupported
}

// Release is a no-op.
func (d *Device) Release() {}
