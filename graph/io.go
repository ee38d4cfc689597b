// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package graph

import (
	"fmt"

	"github.com/born-ml/dnn/internal/onnx"
	"github.com/born-ml/dnn/tensor"
)

// Direction says whether a binding feeds the model or receives from it.
type Direction int

// Binding directions.
const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

// Endpoint is a value the model declares: its name, element type and
// dimensions, with -1 for dynamic ones.
type Endpoint = onnx.Endpoint

// GraphIO binds a caller-owned Tensor to a named model endpoint. It is
// created by Graph.DefineInput or Graph.DefineOutput and never changes. The
// Graph references the Tensor but never releases it.
type GraphIO struct {
	name     string
	dir      Direction
	tensor   *tensor.Tensor
	endpoint Endpoint
}

// Name returns the endpoint name.
func (io *GraphIO) Name() string { return io.name }

// Direction returns whether this is an input or output binding.
func (io *GraphIO) Direction() Direction { return io.dir }

// Tensor returns the bound tensor.
func (io *GraphIO) Tensor() *tensor.Tensor { return io.tensor }

// Endpoint returns the model declaration the binding was checked against.
func (io *GraphIO) Endpoint() Endpoint { return io.endpoint }

func (io *GraphIO) String() string {
	return fmt.Sprintf("%s %s (%s)", io.dir, io.name, io.endpoint)
}

// matches reports whether io binds exactly t under name.
func (io *GraphIO) matches(t *tensor.Tensor, name string) bool {
	return io.tensor == t && io.name == name
}
