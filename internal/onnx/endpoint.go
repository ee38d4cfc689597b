package onnx

import (
	"fmt"
	"strings"

	"github.com/born-ml/dnn/internal/onnx/operators"
	"github.com/born-ml/dnn/internal/tensor"
)

// Endpoint is a value declared by the model: a graph input, a graph output
// or an intermediate value the graph computes.
type Endpoint struct {
	Name  string
	DType tensor.DataType
	// Dims holds the declared extents; -1 marks a dynamic dimension.
	// A nil Dims means the rank is unknown.
	Dims []int
}

// String formats the endpoint type, e.g. "float32[-1 10]".
func (e Endpoint) String() string {
	if e.Dims == nil {
		return e.DType.String() + "[?]"
	}
	parts := make([]string, len(e.Dims))
	for i, d := range e.Dims {
		parts[i] = fmt.Sprint(d)
	}
	return e.DType.String() + "[" + strings.Join(parts, " ") + "]"
}

// Check reports whether a tensor of the given type and shape may be fed to or
// produced at the endpoint. Unknown types and ranks accept anything.
func (e Endpoint) Check(dtype tensor.DataType, shape tensor.Shape) error {
	if e.DType != tensor.Undefined && dtype != e.DType {
		return fmt.Errorf("element type %s, want %s", dtype, e.DType)
	}
	if e.Dims == nil {
		return nil
	}
	if len(shape) != len(e.Dims) {
		return fmt.Errorf("rank %d, want %d", len(shape), len(e.Dims))
	}
	for i, d := range e.Dims {
		if d >= 0 && shape[i] != d {
			return fmt.Errorf("dimension %d is %d, want %d", i, shape[i], d)
		}
	}
	return nil
}

func endpointFromValueInfo(vi *ValueInfoProto) Endpoint {
	e := Endpoint{Name: vi.Name}
	if vi.Type == nil || vi.Type.TensorType == nil {
		return e
	}
	tt := vi.Type.TensorType
	if dt, ok := operators.DataTypeFromProto(tt.ElemType); ok {
		e.DType = dt
	}
	if tt.Shape == nil {
		return e
	}
	e.Dims = make([]int, len(tt.Shape.Dims))
	for i, d := range tt.Shape.Dims {
		e.Dims[i] = -1
		if d.DimParam == "" && d.DimValue > 0 {
			e.Dims[i] = int(d.DimValue)
		}
	}
	return e
}
