// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package conv runs 2-D convolution and depthwise convolution operators.
//
// # Overview
//
// An Operator is built from an OpDef, the declarative description of one
// node: its type, device, element type, workspace tensor names and
// arguments (strides, dilations, padding, fused activation). On the first
// Compute the operator inspects the kernel signature and picks one strategy
// from a fixed catalog:
//   - CPU float32: reference, 1×1, fixed-size direct kernels, winograd
//     3×3, depthwise 3×3
//   - CPU uint8: the quantized im2col pipeline
//   - GPU: the accelerator kernel with fused bias and activation
//
// The choice is kept for the operator's lifetime.
//
// # Basic Usage
//
//	def, err := conv.Load("conv1.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ws := conv.NewWorkspace()
//	ws.Put("input", x)
//	ws.Put("filter", w)
//
//	op, err := conv.New(def, ws)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := op.Run(ctx, ws); err != nil {
//	    log.Fatal(err)
//	}
//	y, _ := ws.Get("output")
//
// # Errors
//
// Shape or format contract violations panic. Resource failures (tensor
// allocation, device errors) are returned.
package conv
