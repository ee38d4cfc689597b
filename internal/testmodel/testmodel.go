// Package testmodel builds small ONNX models for tests and examples.
package testmodel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/born-ml/dnn/internal/onnx"
	"github.com/born-ml/dnn/internal/tensor"
)

// Names and sizes of the simplegraph endpoints.
const (
	InputName  = "input"
	ScaleName  = "scale"
	OutputName = "output"
	// HiddenName is the intermediate MatMul result.
	HiddenName = "h"
	Features   = 10
	Opset      = 17
)

// Dim declares one dimension of a value: an int for a fixed extent or a
// string for a symbolic one.
type Dim any

// ValueInfo declares a typed value. With no dims the value is a scalar.
func ValueInfo(name string, elemType int32, dims ...Dim) onnx.ValueInfoProto {
	shape := &onnx.TensorShapeProto{Dims: make([]onnx.DimensionProto, len(dims))}
	for i, d := range dims {
		switch v := d.(type) {
		case int:
			shape.Dims[i].DimValue = int64(v)
		case string:
			shape.Dims[i].DimParam = v
		}
	}
	return onnx.ValueInfoProto{
		Name: name,
		Type: &onnx.TypeProto{TensorType: &onnx.TensorTypeProto{ElemType: elemType, Shape: shape}},
	}
}

// Node builds an operator node.
func Node(opType string, inputs []string, outputs ...string) onnx.NodeProto {
	return onnx.NodeProto{Name: opType + "_" + outputs[0], OpType: opType, Inputs: inputs, Outputs: outputs}
}

// Float32Initializer builds a weight tensor.
func Float32Initializer(name string, values []float32, dims ...int) onnx.TensorProto {
	t, err := tensor.FromSlice(values, tensor.Shape(dims))
	if err != nil {
		panic(err)
	}
	defer t.Release()
	return onnx.TensorToProto(name, t)
}

// Model wraps a graph with the default opset.
func Model(graph *onnx.GraphProto) *onnx.ModelProto {
	return &onnx.ModelProto{
		IRVersion:    8,
		ProducerName: "testmodel",
		OpsetImport:  []onnx.OperatorSetID{{Version: Opset}},
		Graph:        graph,
	}
}

// SimpleGraph computes output = (input x W + B) * scale with W a [10,1]
// column of ones and B = [1]. input is float32 [batch, 10], scale is a
// float32 scalar and output is float32 [batch, 1].
func SimpleGraph() *onnx.ModelProto {
	ones := make([]float32, Features)
	for i := range ones {
		ones[i] = 1
	}
	m := Model(&onnx.GraphProto{
		Name: "simplegraph",
		Nodes: []onnx.NodeProto{
			Node("MatMul", []string{InputName, "W"}, HiddenName),
			Node("Add", []string{HiddenName, "B"}, "z"),
			Node("Mul", []string{"z", ScaleName}, OutputName),
		},
		Initializers: []onnx.TensorProto{
			Float32Initializer("W", ones, Features, 1),
			Float32Initializer("B", []float32{1}, 1),
		},
		Inputs: []onnx.ValueInfoProto{
			ValueInfo(InputName, onnx.TensorProtoFloat, "batch", Features),
			ValueInfo(ScaleName, onnx.TensorProtoFloat),
		},
		Outputs: []onnx.ValueInfoProto{
			ValueInfo(OutputName, onnx.TensorProtoFloat, "batch", 1),
		},
	})
	m.MetadataProps = []onnx.StringStringEntry{{Key: "name", Value: "simplegraph"}}
	return m
}

// WriteSimpleGraph stores the simplegraph model directory at dir.
func WriteSimpleGraph(dir string) error {
	return onnx.SaveDir(dir, SimpleGraph(), onnx.Manifest{
		Metadata: map[string]string{"description": "linear reduction with scale"},
	})
}

// SimpleGraphDir writes the simplegraph model into a temporary directory.
func SimpleGraphDir(tb testing.TB) string {
	tb.Helper()
	dir := tb.TempDir()
	require.NoError(tb, WriteSimpleGraph(dir))
	return dir
}
