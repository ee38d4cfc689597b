// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides caller-owned tensors for binding to a graph.
//
// # Overview
//
// A Tensor owns one contiguous row-major buffer tagged with an element type.
// The buffer always holds exactly product(shape) elements; Reshape and
// Realloc allocate a new buffer rather than reinterpreting the old one.
//
// # Basic Usage
//
//	x, err := tensor.New(tensor.Float32, 2, 10)
//	if err != nil {
//	    return err
//	}
//	defer x.Release()
//
//	// Fill batch row 1 along dimension 1.
//	err = tensor.SetVector(x, 1, 1, []float32{0, 2, 4, 6, 8, 10, 12, 14, 16, 18})
//
//	// Direct pointer into the buffer.
//	p, err := tensor.Ptr[float32](x, 1, 3)
//	*p = 7
//
// # Empty Tensors
//
// Empty returns a tensor with no element type and no buffer. Bound as a
// graph output it acquires type and shape from the first evaluation.
//
// # Supported Data Types
//
//   - float32, float64
//   - int32, int64
//   - uint8
//   - bool
//
// Every typed access checks that the Go type matches the element type tag.
//
// # Memory Management
//
// Release frees the buffer. It is safe to call more than once; afterwards
// the tensor is empty. A Tensor is not safe for concurrent use.
package tensor
