package main

import (
	"slices"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/born-ml/dnn/graph"
	"github.com/born-ml/dnn/tensor"
)

// namedTensor is one input parsed from the inputs document.
type namedTensor struct {
	name   string
	tensor *tensor.Tensor
}

// parseInputs reads a JSON object mapping input names to numbers, booleans
// or nested arrays of them. Nesting gives the shape; a bare value is a
// scalar. Element types come from the model's endpoints, float32 when the
// name is not declared. Tensors are returned in document order.
func parseInputs(data []byte, endpoints []graph.Endpoint) ([]namedTensor, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("inputs are not valid JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, errors.New("inputs must be a JSON object")
	}

	var (
		out []namedTensor
		err error
	)
	root.ForEach(func(key, value gjson.Result) bool {
		var t *tensor.Tensor
		t, err = parseTensor(value, dtypeOf(key.String(), endpoints))
		if err != nil {
			err = errors.Wrapf(err, "input %q", key.String())
			return false
		}
		out = append(out, namedTensor{name: key.String(), tensor: t})
		return true
	})
	if err != nil {
		releaseAll(out)
		return nil, err
	}
	return out, nil
}

func releaseAll(ts []namedTensor) {
	for _, nt := range ts {
		nt.tensor.Release()
	}
}

func dtypeOf(name string, endpoints []graph.Endpoint) tensor.DataType {
	for _, e := range endpoints {
		if e.Name == name && e.DType != tensor.Undefined {
			return e.DType
		}
	}
	return tensor.Float32
}

func parseTensor(value gjson.Result, dtype tensor.DataType) (*tensor.Tensor, error) {
	shape, leaves, err := shapeOf(value)
	if err != nil {
		return nil, err
	}
	t, err := tensor.New(dtype, shape...)
	if err != nil {
		return nil, err
	}
	if err := fillTensor(t, leaves); err != nil {
		t.Release()
		return nil, err
	}
	return t, nil
}

// shapeOf walks nested arrays, returning their extents and the leaf values
// in row-major order.
func shapeOf(v gjson.Result) ([]int, []gjson.Result, error) {
	if !v.IsArray() {
		return nil, []gjson.Result{v}, nil
	}
	elems := v.Array()
	if len(elems) == 0 {
		return []int{0}, nil, nil
	}
	var (
		inner  []int
		leaves []gjson.Result
	)
	for i, e := range elems {
		s, l, err := shapeOf(e)
		if err != nil {
			return nil, nil, err
		}
		if i == 0 {
			inner = s
		} else if !slices.Equal(s, inner) {
			return nil, nil, errors.Errorf("ragged array: element %d has shape %v, want %v", i, s, inner)
		}
		leaves = append(leaves, l...)
	}
	return append([]int{len(elems)}, inner...), leaves, nil
}

func fillTensor(t *tensor.Tensor, leaves []gjson.Result) error {
	switch t.DType() {
	case tensor.Float32:
		return fill(t, leaves, gjson.Number, func(r gjson.Result) float32 { return float32(r.Float()) })
	case tensor.Float64:
		return fill(t, leaves, gjson.Number, gjson.Result.Float)
	case tensor.Int32:
		return fill(t, leaves, gjson.Number, func(r gjson.Result) int32 { return int32(r.Int()) })
	case tensor.Int64:
		return fill(t, leaves, gjson.Number, gjson.Result.Int)
	case tensor.Uint8:
		return fill(t, leaves, gjson.Number, func(r gjson.Result) uint8 { return uint8(r.Uint()) })
	case tensor.Bool:
		return fill(t, leaves, gjson.True, gjson.Result.Bool)
	default:
		return errors.Errorf("unsupported element type %s", t.DType())
	}
}

// fill converts leaves into t. A want of gjson.True accepts both booleans.
func fill[T tensor.Element](t *tensor.Tensor, leaves []gjson.Result, want gjson.Type, conv func(gjson.Result) T) error {
	values, err := tensor.Values[T](t)
	if err != nil {
		return err
	}
	for i, leaf := range leaves {
		ok := leaf.Type == want || (want == gjson.True && leaf.Type == gjson.False)
		if !ok {
			return errors.Errorf("element %d is %s, want %s", i, leaf.Type, t.DType())
		}
		values[i] = conv(leaf)
	}
	return nil
}
