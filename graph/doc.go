// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package graph binds caller-owned tensors to a loaded model and evaluates it.
//
// # Overview
//
// A Graph holds one loaded model and two ordered binding tables, one per
// direction. Each binding (a GraphIO) pairs a model endpoint name with a
// tensor.Tensor the caller owns. Eval copies every bound input into the
// runtime, runs the model once and copies results back into the bound
// outputs.
//
// # Basic Usage
//
//	g, err := graph.New("models/simplegraph")
//	if err != nil {
//	    return err
//	}
//	defer g.Close()
//
//	x, _ := tensor.New(tensor.Float32, 2, 10)
//	scale := tensor.Scalar(float32(1))
//	y := tensor.Empty()
//
//	g.DefineInput(x, "input")
//	g.DefineInput(scale, "scale")
//	g.DefineOutput(y, "output")
//
//	tensor.SetVector(x, 1, 0, []float32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9})
//	if err := g.Eval(); err != nil {
//	    return err
//	}
//	v, _ := tensor.At[float32](y, 0)
//
// # Bindings
//
// Names are unique per direction and a tensor is bound at most once per
// direction. Shapes are checked when Eval runs, so the batch size may change
// between calls. Outputs are reshaped to whatever the model produces; an
// output tensor may start out empty.
//
// # Lifecycle
//
// A Graph is empty or loaded. Init loads a model into an empty Graph and
// rejects a loaded one; Reset (or Close) releases the model and drops all
// bindings. The Graph never releases bound tensors.
//
// # Errors
//
// Every failure is a typed error (LoadError, DuplicateBindingError,
// BindingNotFoundError, EndpointNotFoundError, ShapeOrTypeMismatchError,
// EvaluationError) matching a sentinel with errors.Is. On error the binding
// table is unchanged.
package graph
