// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package graph

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/born-ml/dnn/internal/onnx"
	itensor "github.com/born-ml/dnn/internal/tensor"
	"github.com/born-ml/dnn/tensor"
)

// Graph is a loaded model plus an ordered table of input and output
// bindings.
//
// A Graph is not safe for concurrent use. Callers that share one must
// serialize every call, including writes to bound tensors, against Eval.
type Graph struct {
	id      string
	log     logr.Logger
	opts    options
	path    string
	session *onnx.Session
	inputs  []*GraphIO
	outputs []*GraphIO
}

// NewEmpty returns a Graph with no model loaded.
func NewEmpty(opts ...Option) *Graph {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	id := uuid.NewString()
	return &Graph{
		id:   id,
		log:  o.logger.WithValues("graph", id),
		opts: o,
	}
}

// New loads the model at path, a model directory or a single .onnx file.
func New(path string, opts ...Option) (*Graph, error) {
	g := NewEmpty(opts...)
	if err := g.Init(path); err != nil {
		return nil, err
	}
	return g, nil
}

// ID returns the identifier this Graph logs under.
func (g *Graph) ID() string {
	return g.id
}

// Init loads a model into an empty Graph. A loaded Graph is rejected with
// ErrAlreadyLoaded and left untouched; call Reset first.
func (g *Graph) Init(path string) error {
	if g.session != nil {
		return &LoadError{Path: path, Err: ErrAlreadyLoaded}
	}
	session, err := onnx.Open(path, onnx.LoadOptions{Strict: g.opts.strict})
	if err != nil {
		return &LoadError{Path: path, Err: err}
	}
	g.session = session
	g.path = path
	g.log.V(1).Info("Loaded model", "path", path,
		"inputs", len(session.Inputs()), "outputs", len(session.Outputs()), "opset", session.OpsetVersion())
	return nil
}

// Reset releases the model and drops every binding. Bound tensors are not
// touched. Reset on an empty Graph does nothing.
func (g *Graph) Reset() {
	if g.session == nil {
		return
	}
	g.session.Close()
	g.log.V(1).Info("Released model", "path", g.path, "inputs", len(g.inputs), "outputs", len(g.outputs))
	g.session = nil
	g.path = ""
	g.inputs = nil
	g.outputs = nil
}

// Close is Reset for use with defer.
func (g *Graph) Close() error {
	g.Reset()
	return nil
}

// Empty reports whether no model is loaded.
func (g *Graph) Empty() bool {
	return g.session == nil
}

// Path returns the location the model was loaded from.
func (g *Graph) Path() string {
	return g.path
}

// Endpoints returns the model's declared inputs or outputs.
func (g *Graph) Endpoints(dir Direction) []Endpoint {
	if g.session == nil {
		return nil
	}
	if dir == Output {
		return g.session.Outputs()
	}
	return g.session.Inputs()
}

// Metadata returns the model metadata, or nil for an empty Graph.
func (g *Graph) Metadata() map[string]string {
	if g.session == nil {
		return nil
	}
	return g.session.Metadata()
}

// OpsetVersion returns the default-domain operator set the model targets,
// or 0 for an empty Graph.
func (g *Graph) OpsetVersion() int64 {
	if g.session == nil {
		return 0
	}
	return g.session.OpsetVersion()
}

// DefineInput binds t to the model input name.
func (g *Graph) DefineInput(t *tensor.Tensor, name string) (*GraphIO, error) {
	return g.define(Input, t, name)
}

// DefineOutput binds t to name, a declared output or any value the model
// computes. t may be empty; it takes its type and shape from Eval.
func (g *Graph) DefineOutput(t *tensor.Tensor, name string) (*GraphIO, error) {
	return g.define(Output, t, name)
}

func (g *Graph) define(dir Direction, t *tensor.Tensor, name string) (*GraphIO, error) {
	if g.session == nil {
		return nil, ErrEmptyGraph
	}
	if t == nil {
		return nil, errors.Wrapf(ErrNilTensor, "%s %q", dir, name)
	}
	for _, io := range *g.table(dir) {
		if io.name == name || io.tensor == t {
			return nil, &DuplicateBindingError{Direction: dir, Name: name, Existing: io}
		}
	}

	var (
		e  Endpoint
		ok bool
	)
	if dir == Input {
		e, ok = g.session.Input(name)
	} else {
		e, ok = g.session.Value(name)
	}
	if !ok {
		return nil, &EndpointNotFoundError{Direction: dir, Name: name}
	}

	io := &GraphIO{name: name, dir: dir, tensor: t, endpoint: e}
	table := g.table(dir)
	*table = append(*table, io)
	g.log.V(1).Info("Defined binding", "direction", dir, "name", name, "endpoint", e.String(), "tensor", t.String())
	return io, nil
}

// RemoveInput drops the binding of t under name.
func (g *Graph) RemoveInput(t *tensor.Tensor, name string) error {
	return g.remove(Input, name, func(io *GraphIO) bool { return io.matches(t, name) })
}

// RemoveInputIO drops the binding io.
func (g *Graph) RemoveInputIO(io *GraphIO) error {
	return g.removeIO(Input, io)
}

// RemoveOutput drops the binding of t under name.
func (g *Graph) RemoveOutput(t *tensor.Tensor, name string) error {
	return g.remove(Output, name, func(io *GraphIO) bool { return io.matches(t, name) })
}

// RemoveOutputIO drops the binding io.
func (g *Graph) RemoveOutputIO(io *GraphIO) error {
	return g.removeIO(Output, io)
}

func (g *Graph) removeIO(dir Direction, target *GraphIO) error {
	name := ""
	if target != nil {
		name = target.name
	}
	return g.remove(dir, name, func(io *GraphIO) bool { return io == target })
}

func (g *Graph) remove(dir Direction, name string, match func(*GraphIO) bool) error {
	table := g.table(dir)
	for i, io := range *table {
		if match(io) {
			*table = append((*table)[:i:i], (*table)[i+1:]...)
			g.log.V(1).Info("Removed binding", "direction", dir, "name", name)
			return nil
		}
	}
	return &BindingNotFoundError{Direction: dir, Name: name}
}

// HasInput reports whether t is bound as input name.
func (g *Graph) HasInput(t *tensor.Tensor, name string) bool {
	return g.find(Input, func(io *GraphIO) bool { return io.matches(t, name) })
}

// HasInputIO reports whether io is a current input binding.
func (g *Graph) HasInputIO(io *GraphIO) bool {
	return g.find(Input, func(b *GraphIO) bool { return b == io })
}

// HasOutput reports whether t is bound as output name.
func (g *Graph) HasOutput(t *tensor.Tensor, name string) bool {
	return g.find(Output, func(io *GraphIO) bool { return io.matches(t, name) })
}

// HasOutputIO reports whether io is a current output binding.
func (g *Graph) HasOutputIO(io *GraphIO) bool {
	return g.find(Output, func(b *GraphIO) bool { return b == io })
}

func (g *Graph) find(dir Direction, match func(*GraphIO) bool) bool {
	for _, io := range *g.table(dir) {
		if match(io) {
			return true
		}
	}
	return false
}

// NInputs returns the number of input bindings.
func (g *Graph) NInputs() int { return len(g.inputs) }

// NOutputs returns the number of output bindings.
func (g *Graph) NOutputs() int { return len(g.outputs) }

// Inputs returns the input bindings in registration order.
func (g *Graph) Inputs() []*GraphIO { return append([]*GraphIO(nil), g.inputs...) }

// Outputs returns the output bindings in registration order.
func (g *Graph) Outputs() []*GraphIO { return append([]*GraphIO(nil), g.outputs...) }

func (g *Graph) table(dir Direction) *[]*GraphIO {
	if dir == Output {
		return &g.outputs
	}
	return &g.inputs
}

// Eval runs the model once. See EvalContext.
func (g *Graph) Eval() error {
	return g.EvalContext(context.Background())
}

// EvalContext copies every input tensor into the runtime, runs the model
// once and copies each produced value into its output tensor, reshaping it
// when the shape differs. Input tensors must match their endpoint's type,
// rank and fixed dimensions. An output tensor whose element type is set
// must match the produced type.
//
// ctx is checked before the run starts; a run in progress is not
// interrupted. Each call starts from the model weights alone.
func (g *Graph) EvalContext(ctx context.Context) error {
	if g.session == nil {
		return &EvaluationError{Err: ErrEmptyGraph}
	}
	if err := ctx.Err(); err != nil {
		return &EvaluationError{Err: err}
	}
	start := time.Now()

	for _, e := range g.session.Inputs() {
		if !g.find(Input, func(io *GraphIO) bool { return io.name == e.Name }) {
			return &EvaluationError{Err: errors.Wrapf(ErrUnboundInput, "%q", e.Name)}
		}
	}

	feeds := make(map[string]*itensor.RawTensor, len(g.inputs))
	defer func() {
		for _, raw := range feeds {
			raw.Release()
		}
	}()
	for _, io := range g.inputs {
		raw, err := nativeCopy(io)
		if err != nil {
			return err
		}
		feeds[io.name] = raw
	}

	fetches := make([]string, len(g.outputs))
	for i, io := range g.outputs {
		fetches[i] = io.name
	}
	results, err := g.session.Run(feeds, fetches)
	if err != nil {
		return &EvaluationError{Err: err}
	}
	defer func() {
		for _, h := range results {
			h.Release()
		}
	}()

	// Check every output before writing any so a mismatch leaves all output
	// tensors as they were.
	for _, io := range g.outputs {
		got := results[io.name].Tensor()
		if dt := io.tensor.DType(); dt != tensor.Undefined && dt != got.DType() {
			return &ShapeOrTypeMismatchError{
				Direction: Output, Name: io.name,
				Want: got.DType().String(), Got: io.tensor.String(),
			}
		}
	}
	for _, io := range g.outputs {
		got := results[io.name].Tensor()
		if err := io.tensor.Realloc(got.DType(), got.Shape()...); err != nil {
			return &EvaluationError{Err: errors.Wrapf(err, "output %q", io.name)}
		}
		copy(io.tensor.Bytes(), got.Data())
	}

	g.log.V(2).Info("Evaluated", "inputs", len(g.inputs), "outputs", len(g.outputs), "duration", time.Since(start))
	return nil
}

// nativeCopy checks an input binding against its endpoint and copies the
// tensor into a runtime buffer the caller must release.
func nativeCopy(io *GraphIO) (*itensor.RawTensor, error) {
	t := io.tensor
	if t.IsEmpty() {
		return nil, &ShapeOrTypeMismatchError{Direction: Input, Name: io.name, Want: io.endpoint.String(), Got: t.String()}
	}
	if err := io.endpoint.Check(t.DType(), t.Shape()); err != nil {
		return nil, &ShapeOrTypeMismatchError{
			Direction: Input, Name: io.name, Want: io.endpoint.String(), Got: t.String(), Err: err,
		}
	}
	raw, err := itensor.NewRaw(t.Shape(), t.DType())
	if err != nil {
		return nil, &EvaluationError{Err: errors.Wrapf(err, "input %q", io.name)}
	}
	copy(raw.Data(), t.Bytes())
	return raw, nil
}
