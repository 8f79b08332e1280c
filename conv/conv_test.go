// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package conv_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/born-ml/convcore/conv"
	"github.com/born-ml/convcore/tensor"
)

const opYAML = `
name: blur
type: Conv2D
inputs: [x, w]
output: y
args:
  padding: VALID
`

func TestLoadAndRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blur.yaml")
	if err := os.WriteFile(path, []byte(opYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	def, err := conv.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// 3×3 box filter over a 4×4 ramp.
	x := make([]float32, 16)
	for i := range x {
		x[i] = float32(i)
	}
	w := make([]float32, 9)
	for i := range w {
		w[i] = 1
	}
	ws := conv.NewWorkspace()
	ws.Put("x", tensor.FromFloat32(tensor.Shape{1, 4, 4, 1}, x))
	ws.Put("w", tensor.FromFloat32(tensor.Shape{1, 3, 3, 1}, w))

	op, err := conv.New(def, ws, conv.WithWorkers(2))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := op.Run(context.Background(), ws); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	y, ok := ws.Get("y")
	if !ok {
		t.Fatal("output not stored")
	}
	if !y.Shape().Equal(tensor.Shape{1, 2, 2, 1}) {
		t.Fatalf("output shape = %v, want [1 2 2 1]", y.Shape())
	}
	want := []float32{45, 54, 81, 90}
	for i, v := range y.AsFloat32() {
		if v != want[i] {
			t.Errorf("y[%d] = %v, want %v", i, v, want[i])
		}
	}
}

func TestResolve(t *testing.T) {
	p := conv.Params{Strides: [2]int{2, 2}, Dilations: [2]int{1, 1}, Padding: conv.Same}
	g, err := conv.Resolve(tensor.Shape{1, 7, 7, 3}, tensor.Shape{8, 3, 3, 3}, p, false)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if g.OutH != 4 || g.OutW != 4 || g.OutC != 8 {
		t.Errorf("output = %dx%dx%d, want 4x4x8", g.OutH, g.OutW, g.OutC)
	}

	if _, err := conv.Resolve(tensor.Shape{1, 7, 7, 3}, tensor.Shape{8, 3, 3, 4}, p, false); err == nil {
		t.Error("channel mismatch resolved")
	}
}
