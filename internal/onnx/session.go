package onnx

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/born-ml/dnn/internal/onnx/operators"
	"github.com/born-ml/dnn/internal/parallel"
	"github.com/born-ml/dnn/internal/tensor"
)

var (
	// ErrSessionClosed is returned by Run after Close.
	ErrSessionClosed = errors.New("session closed")
	// ErrMissingInput is returned when a declared input is not fed.
	ErrMissingInput = errors.New("missing input")
	// ErrUnknownValue is returned for feeds or fetches the graph does not declare.
	ErrUnknownValue = errors.New("unknown value")
)

// Session is a compiled model ready for inference.
//
// The session owns its weights and the tensors held by node attributes; both
// are released exactly once by Close. Each Run owns its intermediates and
// releases every one it does not hand back to the caller.
type Session struct {
	proto    *ModelProto
	registry *operators.Registry
	opCtx    *operators.Context
	weights  map[string]*tensor.RawTensor
	nodes    []*operators.Node
	inputs   []Endpoint
	outputs  []Endpoint
	values   map[string]Endpoint
	metadata map[string]string

	closeOnce sync.Once
	closed    bool
}

// Inputs returns the graph inputs that must be fed, in declaration order.
func (s *Session) Inputs() []Endpoint {
	return append([]Endpoint(nil), s.inputs...)
}

// Outputs returns the declared graph outputs, in declaration order.
func (s *Session) Outputs() []Endpoint {
	return append([]Endpoint(nil), s.outputs...)
}

// Input looks up a graph input by name.
func (s *Session) Input(name string) (Endpoint, bool) {
	for _, e := range s.inputs {
		if e.Name == name {
			return e, true
		}
	}
	return Endpoint{}, false
}

// Value looks up anything Run can fetch: declared outputs, intermediate
// values produced by nodes, inputs and weights.
func (s *Session) Value(name string) (Endpoint, bool) {
	e, ok := s.values[name]
	return e, ok
}

// OpsetVersion returns the default-domain opset the model targets.
func (s *Session) OpsetVersion() int64 {
	return s.opCtx.Opset
}

// NodeCount returns the number of operator nodes.
func (s *Session) NodeCount() int {
	return len(s.nodes)
}

// WeightCount returns the number of initializers.
func (s *Session) WeightCount() int {
	return len(s.weights)
}

// Proto returns the decoded model.
func (s *Session) Proto() *ModelProto {
	return s.proto
}

// Metadata returns model metadata as key-value pairs.
func (s *Session) Metadata() map[string]string {
	meta := make(map[string]string, len(s.metadata))
	for k, v := range s.metadata {
		meta[k] = v
	}
	return meta
}

// Run feeds the named inputs, executes every node once and returns the
// requested values. Feeds stay owned by the caller.
//
// Each result is tagged with its ownership: computed values are Owned and
// must be released by the caller, while fetched weights and feeds are
// Borrowed. On error nothing is returned and every intermediate is released.
func (s *Session) Run(feeds map[string]*tensor.RawTensor, fetches []string) (map[string]tensor.Handle, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	for name, t := range feeds {
		e, ok := s.Input(name)
		if !ok {
			return nil, errors.Wrapf(ErrUnknownValue, "feed %q", name)
		}
		if err := e.Check(t.DType(), t.Shape()); err != nil {
			return nil, errors.Wrapf(err, "feed %q", name)
		}
	}
	for _, e := range s.inputs {
		if _, ok := feeds[e.Name]; !ok {
			return nil, errors.Wrapf(ErrMissingInput, "%q", e.Name)
		}
	}
	for _, name := range fetches {
		if _, ok := s.values[name]; !ok {
			return nil, errors.Wrapf(ErrUnknownValue, "fetch %q", name)
		}
	}

	borrowed := make(map[string]*tensor.RawTensor, len(s.weights)+len(feeds))
	for name, t := range s.weights {
		borrowed[name] = t
	}
	for name, t := range feeds {
		borrowed[name] = t
	}
	owned := make(map[string]*tensor.RawTensor)
	releaseOwned := func() {
		for _, t := range owned {
			t.Release()
		}
	}

	lookup := func(name string) (*tensor.RawTensor, bool) {
		if t, ok := owned[name]; ok {
			return t, true
		}
		t, ok := borrowed[name]
		return t, ok
	}

	for _, node := range s.nodes {
		inputs := make([]*tensor.RawTensor, len(node.Inputs))
		for i, name := range node.Inputs {
			if name == "" {
				continue
			}
			t, ok := lookup(name)
			if !ok {
				releaseOwned()
				return nil, fmt.Errorf("node %s: missing input %s", node.Name, name)
			}
			inputs[i] = t
		}

		outputs, err := s.registry.Execute(s.opCtx, node, inputs)
		if err != nil {
			releaseOwned()
			return nil, fmt.Errorf("node %s (%s): %w", node.Name, node.OpType, err)
		}
		for i, t := range outputs {
			if i >= len(node.Outputs) || node.Outputs[i] == "" {
				t.Release()
				continue
			}
			name := node.Outputs[i]
			if prev, ok := owned[name]; ok {
				prev.Release()
			}
			owned[name] = t
		}
	}

	results := make(map[string]tensor.Handle, len(fetches))
	for _, name := range fetches {
		if _, done := results[name]; done {
			continue
		}
		if t, ok := owned[name]; ok {
			results[name] = tensor.OwnedHandle(t)
			delete(owned, name)
			continue
		}
		if t, ok := borrowed[name]; ok {
			results[name] = tensor.BorrowedHandle(t)
			continue
		}
		releaseOwned()
		for _, h := range results {
			h.Release()
		}
		return nil, fmt.Errorf("value %s was not produced", name)
	}
	releaseOwned()
	return results, nil
}

// Close releases the weights and attribute tensors. It is safe to call more
// than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed = true
		for _, t := range s.weights {
			t.Release()
		}
		for _, node := range s.nodes {
			node.Release()
		}
	})
}

// compile turns the decoded graph into executable nodes and typed endpoints.
func (s *Session) compile() error {
	graph := s.proto.Graph
	if graph == nil {
		return errors.New("model has no graph")
	}
	s.opCtx = &operators.Context{Opset: s.proto.Opset(), Parallel: parallel.DefaultConfig()}

	s.weights = make(map[string]*tensor.RawTensor, len(graph.Initializers))
	s.values = make(map[string]Endpoint)
	for i := range graph.Initializers {
		init := &graph.Initializers[i]
		t, err := tensorFromProto(init)
		if err != nil {
			return errors.Wrap(err, "load initializer")
		}
		s.weights[init.Name] = t
		s.values[init.Name] = Endpoint{Name: init.Name, DType: t.DType(), Dims: append([]int(nil), t.Shape()...)}
	}

	// Inputs shadowed by an initializer are weights with overridable defaults;
	// they are not required feeds.
	for i := range graph.Inputs {
		e := endpointFromValueInfo(&graph.Inputs[i])
		if _, ok := s.weights[e.Name]; ok {
			continue
		}
		s.inputs = append(s.inputs, e)
		s.values[e.Name] = e
	}
	for i := range graph.ValueInfo {
		e := endpointFromValueInfo(&graph.ValueInfo[i])
		s.values[e.Name] = e
	}

	sorted, err := topologicalSort(graph.Nodes)
	if err != nil {
		return err
	}
	for i := range sorted {
		node, err := operatorNode(&sorted[i])
		if err != nil {
			return err
		}
		s.nodes = append(s.nodes, node)
		for _, out := range node.Outputs {
			if _, ok := s.values[out]; !ok && out != "" {
				s.values[out] = Endpoint{Name: out}
			}
		}
	}

	for i := range graph.Outputs {
		e := endpointFromValueInfo(&graph.Outputs[i])
		if _, ok := s.values[e.Name]; !ok {
			return errors.Errorf("output %q is not produced by the graph", e.Name)
		}
		s.outputs = append(s.outputs, e)
		s.values[e.Name] = e
	}

	s.metadata = make(map[string]string)
	for _, prop := range s.proto.MetadataProps {
		s.metadata[prop.Key] = prop.Value
	}
	s.metadata["producer_name"] = s.proto.ProducerName
	s.metadata["producer_version"] = s.proto.ProducerVersion
	s.metadata["domain"] = s.proto.Domain
	return nil
}

// release frees whatever compile managed to build before failing.
func (s *Session) release() {
	for _, t := range s.weights {
		t.Release()
	}
	for _, node := range s.nodes {
		node.Release()
	}
	s.weights, s.nodes = nil, nil
}

// operatorNode converts a decoded node, materializing tensor attributes.
func operatorNode(p *NodeProto) (*operators.Node, error) {
	node := &operators.Node{
		Name:       p.Name,
		OpType:     p.OpType,
		Inputs:     p.Inputs,
		Outputs:    p.Outputs,
		Domain:     p.Domain,
		Attributes: make([]operators.Attribute, len(p.Attributes)),
	}
	for i := range p.Attributes {
		a := &p.Attributes[i]
		node.Attributes[i] = operators.Attribute{
			Name:    a.Name,
			Type:    a.Type,
			F:       a.F,
			I:       a.I,
			S:       a.S,
			Floats:  a.Floats,
			Ints:    a.Ints,
			Strings: a.Strings,
		}
		if a.T == nil {
			continue
		}
		t, err := tensorFromProto(a.T)
		if err != nil {
			node.Release()
			return nil, errors.Wrapf(err, "node %s attribute %s", p.Name, a.Name)
		}
		node.Attributes[i].T = t
	}
	return node, nil
}

// topologicalSort orders nodes so producers run before consumers. Values
// without a producer (inputs, weights) impose no order. Cycles are an error.
func topologicalSort(nodes []NodeProto) ([]NodeProto, error) {
	producer := make(map[string]int)
	for i := range nodes {
		for _, out := range nodes[i].Outputs {
			producer[out] = i
		}
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make([]int, len(nodes))
	result := make([]NodeProto, 0, len(nodes))

	var visit func(i int) error
	visit = func(i int) error {
		switch state[i] {
		case done:
			return nil
		case visiting:
			return errors.Errorf("graph has a cycle through node %q", nodes[i].Name)
		}
		state[i] = visiting
		for _, in := range nodes[i].Inputs {
			if dep, ok := producer[in]; ok && dep != i {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		state[i] = done
		result = append(result, nodes[i])
		return nil
	}

	for i := range nodes {
		if err := visit(i); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// ValueNames returns every fetchable value name, sorted.
func (s *Session) ValueNames() []string {
	names := make([]string, 0, len(s.values))
	for name := range s.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
