// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor_test

import (
	"errors"
	"testing"

	"github.com/born-ml/convcore/tensor"
)

// TestTensorAPI verifies the Tensor alias exposes the expected API.
func TestTensorAPI(t *testing.T) {
	x, err := tensor.New(tensor.Shape{1, 2, 3, 4}, tensor.Float32, tensor.CPU)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if !x.Shape().Equal(tensor.Shape{1, 2, 3, 4}) {
		t.Errorf("Shape() = %v, want [1 2 3 4]", x.Shape())
	}
	if x.DType() != tensor.Float32 {
		t.Errorf("DType() = %v, want Float32", x.DType())
	}
	if x.Device() != tensor.CPU {
		t.Errorf("Device() = %v, want CPU", x.Device())
	}
	if x.Format() != tensor.HostFormat {
		t.Errorf("Format() = %v, want host", x.Format())
	}
	if got := len(x.AsFloat32()); got != 24 {
		t.Errorf("len(AsFloat32()) = %d, want 24", got)
	}
}

func TestTransformRoundTrip(t *testing.T) {
	data := []float32{1, 2, 3, 4, 5, 6}
	x := tensor.FromFloat32(tensor.Shape{1, 1, 2, 3}, data)

	img, err := tensor.Transform(x, tensor.Format{Memory: tensor.MemoryImage, Content: tensor.ContentInOut})
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	if img.Format().IsHost() {
		t.Fatal("Transform kept the host format")
	}

	back, err := tensor.ToHost(img)
	if err != nil {
		t.Fatalf("ToHost failed: %v", err)
	}
	got := back.AsFloat32()
	for i, want := range data {
		if got[i] != want {
			t.Errorf("element %d = %v, want %v", i, got[i], want)
		}
	}
}

func TestAllocationLimit(t *testing.T) {
	x := tensor.WithAllocator(tensor.HeapAllocator{Limit: 8}, tensor.Float32, tensor.CPU)
	err := x.Resize(tensor.Shape{4})
	if !errors.Is(err, tensor.ErrAllocation) {
		t.Errorf("Resize error = %v, want ErrAllocation", err)
	}
}

func TestParse(t *testing.T) {
	if dt, err := tensor.ParseDataType("uint8"); err != nil || dt != tensor.Uint8 {
		t.Errorf("ParseDataType(uint8) = %v, %v", dt, err)
	}
	if d, err := tensor.ParseDevice("gpu"); err != nil || d != tensor.GPU {
		t.Errorf("ParseDevice(gpu) = %v, %v", d, err)
	}
	if m, err := tensor.ParseMemoryType("buffer"); err != nil || m != tensor.MemoryBuffer {
		t.Errorf("ParseMemoryType(buffer) = %v, %v", m, err)
	}
}
