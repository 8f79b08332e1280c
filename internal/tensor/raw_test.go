package tensor

import (
	"errors"
	"math/rand"
	"testing"
)

func TestTensorAsFloat32(t *testing.T) {
	tt, err := New(Shape{3, 2}, Float32, CPU)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	data := tt.AsFloat32()

	if len(data) != 6 {
		t.Errorf("AsFloat32 length = %d, want 6", len(data))
	}

	// Modify and verify zero-copy
	data[0] = 42
	if tt.AsFloat32()[0] != 42 {
		t.Error("AsFloat32 should return zero-copy slice")
	}
}

func TestTensorAsUint8(t *testing.T) {
	tt, _ := New(Shape{4, 4}, Uint8, CPU)
	data := tt.AsUint8()

	if len(data) != 16 {
		t.Errorf("AsUint8 length = %d, want 16", len(data))
	}

	data[0] = 255
	if tt.AsUint8()[0] != 255 {
		t.Error("AsUint8 should return zero-copy slice")
	}
}

func TestTensorAsWrongType(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("AsInt32 on a float32 tensor should panic")
		}
	}()
	tt, _ := New(Shape{2}, Float32, CPU)
	_ = tt.AsInt32()
}

func TestTensorResizeReusesStorage(t *testing.T) {
	tt := Empty(Float32, CPU)
	if err := tt.Resize(Shape{1, 4, 4, 2}); err != nil {
		t.Fatalf("Resize failed: %v", err)
	}
	tt.AsFloat32()[3] = 7
	first := &tt.Data()[0]

	if err := tt.Resize(Shape{1, 2, 2, 2}); err != nil {
		t.Fatalf("Resize failed: %v", err)
	}
	if &tt.Data()[0] != first {
		t.Error("shrinking Resize should reuse storage")
	}
	if len(tt.AsFloat32()) != 8 {
		t.Errorf("len = %d, want 8", len(tt.AsFloat32()))
	}
	if tt.AsFloat32()[3] != 0 {
		t.Error("Resize should zero the visible storage")
	}
}

func TestTensorResizeAllocationFailure(t *testing.T) {
	tt := WithAllocator(HeapAllocator{Limit: 16}, Float32, CPU)
	if err := tt.Resize(Shape{2, 2}); err != nil {
		t.Fatalf("small Resize failed: %v", err)
	}
	err := tt.Resize(Shape{4, 4})
	if !errors.Is(err, ErrAllocation) {
		t.Errorf("Resize error = %v, want ErrAllocation", err)
	}
}

func TestTensorResizeImageFormat(t *testing.T) {
	tt := Empty(Float32, GPU)
	if err := tt.ResizeFormat(Shape{1, 3, 5, 6}, Format{Memory: MemoryImage}); err != nil {
		t.Fatalf("ResizeFormat failed: %v", err)
	}
	// 6 channels pad to 8.
	if got := len(tt.AsFloat32()); got != 1*3*5*8 {
		t.Errorf("physical elements = %d, want %d", got, 1*3*5*8)
	}
	if tt.NumElements() != 90 {
		t.Errorf("NumElements = %d, want 90", tt.NumElements())
	}
}

func TestSetQuantization(t *testing.T) {
	tt := Empty(Uint8, CPU)
	if err := tt.SetQuantization(0.5, 128); err != nil {
		t.Fatalf("SetQuantization failed: %v", err)
	}
	if tt.Scale() != 0.5 || tt.ZeroPoint() != 128 {
		t.Errorf("quant = %+v", tt.Quant())
	}
	if err := tt.SetQuantization(0, 10); err == nil {
		t.Error("zero scale should be rejected")
	}
	if err := tt.SetQuantization(1, 256); err == nil {
		t.Error("zero point 256 should be rejected")
	}
	if err := tt.SetQuantization(1, -1); err == nil {
		t.Error("negative zero point should be rejected")
	}
}

func TestFromFloat32LengthMismatch(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("FromFloat32 with wrong length should panic")
		}
	}()
	_ = FromFloat32(Shape{2, 2}, []float32{1, 2, 3})
}

func TestRandomFloat32Range(t *testing.T) {
	tt := RandomFloat32(Shape{64}, rand.New(rand.NewSource(1)))
	for i, v := range tt.AsFloat32() {
		if v < -1 || v > 1 || v*4 != float32(int(v*4)) {
			t.Fatalf("value %d = %v is not a quarter step in [-1, 1]", i, v)
		}
	}
}

func TestUniformFloat32Range(t *testing.T) {
	tt := UniformFloat32(Shape{256}, rand.New(rand.NewSource(1)))
	offGrid := 0
	for i, v := range tt.AsFloat32() {
		if v < -1 || v >= 1 {
			t.Fatalf("value %d = %v is outside [-1, 1)", i, v)
		}
		if v*4 != float32(int(v*4)) {
			offGrid++
		}
	}
	if offGrid == 0 {
		t.Error("UniformFloat32 should not be restricted to quarter steps")
	}
}

func TestShape(t *testing.T) {
	s := Shape{2, 3, 4, 5}
	if got := s.NumElements(); got != 120 {
		t.Errorf("NumElements = %d, want 120", got)
	}
	if got := (Shape{}).NumElements(); got != 1 {
		t.Errorf("scalar NumElements = %d, want 1", got)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("Validate(%v) = %v", s, err)
	}
	if err := (Shape{1, 0, 3}).Validate(); err == nil {
		t.Error("Validate should reject a zero extent")
	}
	if _, err := New(Shape{1, -2}, Float32, CPU); err == nil {
		t.Error("New should reject a negative extent")
	}

	c := s.Clone()
	c[0] = 7
	if s[0] != 2 {
		t.Error("Clone should not share storage")
	}
	if !s.Equal(Shape{2, 3, 4, 5}) || s.Equal(c) || s.Equal(Shape{2, 3, 4}) {
		t.Error("Equal compares rank and extents")
	}
}

func TestCloneIsDeep(t *testing.T) {
	a := FromFloat32(Shape{2}, []float32{1, 2})
	b := a.Clone()
	b.AsFloat32()[0] = 9
	if a.AsFloat32()[0] != 1 {
		t.Error("Clone should not share storage")
	}
}
