package onnx

import (
	"encoding/binary"
	"testing"

	bfloat16 "github.com/d4l3k/go-bfloat16"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"

	"github.com/born-ml/dnn/internal/tensor"
)

func TestTensorFromProto(t *testing.T) {
	tests := []struct {
		name  string
		proto TensorProto
		check func(t *testing.T, r *tensor.RawTensor)
	}{
		{
			name:  "float data",
			proto: TensorProto{Name: "w", DataType: TensorProtoFloat, Dims: []int64{2, 2}, FloatData: []float32{1, 2, 3, 4}},
			check: func(t *testing.T, r *tensor.RawTensor) {
				assert.Equal(t, tensor.Shape{2, 2}, r.Shape())
				assert.Equal(t, []float32{1, 2, 3, 4}, r.AsFloat32())
			},
		},
		{
			name:  "int64 data",
			proto: TensorProto{DataType: TensorProtoInt64, Dims: []int64{3}, Int64Data: []int64{-1, 0, 7}},
			check: func(t *testing.T, r *tensor.RawTensor) {
				assert.Equal(t, []int64{-1, 0, 7}, r.AsInt64())
			},
		},
		{
			name:  "double data",
			proto: TensorProto{DataType: TensorProtoDouble, Dims: []int64{1}, DoubleData: []float64{0.25}},
			check: func(t *testing.T, r *tensor.RawTensor) {
				assert.Equal(t, []float64{0.25}, r.AsFloat64())
			},
		},
		{
			name: "float16 int32 payload",
			proto: TensorProto{DataType: TensorProtoFloat16, Dims: []int64{2}, Int32Data: []int32{
				int32(float16.Fromfloat32(1.5).Bits()),
				int32(float16.Fromfloat32(-2).Bits()),
			}},
			check: func(t *testing.T, r *tensor.RawTensor) {
				assert.Equal(t, tensor.Float32, r.DType())
				assert.Equal(t, []float32{1.5, -2}, r.AsFloat32())
			},
		},
		{
			name: "float16 raw payload",
			proto: TensorProto{DataType: TensorProtoFloat16, Dims: []int64{1}, RawData: binary.LittleEndian.AppendUint16(nil,
				float16.Fromfloat32(0.5).Bits())},
			check: func(t *testing.T, r *tensor.RawTensor) {
				assert.Equal(t, []float32{0.5}, r.AsFloat32())
			},
		},
		{
			name:  "bfloat16 raw payload",
			proto: TensorProto{DataType: TensorProtoBfloat16, Dims: []int64{2}, RawData: bfloat16.EncodeFloat32([]float32{2, -0.5})},
			check: func(t *testing.T, r *tensor.RawTensor) {
				assert.Equal(t, []float32{2, -0.5}, r.AsFloat32())
			},
		},
		{
			name:  "scalar",
			proto: TensorProto{DataType: TensorProtoFloat, FloatData: []float32{3}},
			check: func(t *testing.T, r *tensor.RawTensor) {
				assert.Empty(t, r.Shape())
				assert.Equal(t, []float32{3}, r.AsFloat32())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := tensorFromProto(&tt.proto)
			require.NoError(t, err)
			defer r.Release()
			tt.check(t, r)
		})
	}
}

func TestTensorFromProtoErrors(t *testing.T) {
	tests := []struct {
		name  string
		proto TensorProto
	}{
		{"unsupported type", TensorProto{DataType: 8, Dims: []int64{1}}},
		{"short raw payload", TensorProto{DataType: TensorProtoFloat, Dims: []int64{2}, RawData: []byte{0, 0, 0, 0}}},
		{"wrong element count", TensorProto{DataType: TensorProtoFloat, Dims: []int64{3}, FloatData: []float32{1}}},
		{"no payload", TensorProto{DataType: TensorProtoInt32, Dims: []int64{2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tensorFromProto(&tt.proto)
			assert.Error(t, err)
		})
	}
}

func TestTensorToProto(t *testing.T) {
	r, err := tensor.FromSlice([]int32{5, 6}, tensor.Shape{2, 1})
	require.NoError(t, err)
	defer r.Release()

	p := TensorToProto("k", r)
	assert.Equal(t, []int64{2, 1}, p.Dims)
	assert.Equal(t, int32(TensorProtoInt32), p.DataType)

	back, err := tensorFromProto(&p)
	require.NoError(t, err)
	defer back.Release()
	assert.Equal(t, []int32{5, 6}, back.AsInt32())
}

func TestTopologicalSort(t *testing.T) {
	// A -> B -> C
	//      B -> D
	nodes := []NodeProto{
		{Name: "C", Inputs: []string{"b_out"}, Outputs: []string{"c_out"}},
		{Name: "A", Inputs: []string{"input"}, Outputs: []string{"a_out"}},
		{Name: "D", Inputs: []string{"b_out"}, Outputs: []string{"d_out"}},
		{Name: "B", Inputs: []string{"a_out"}, Outputs: []string{"b_out"}},
	}

	sorted, err := topologicalSort(nodes)
	require.NoError(t, err)
	require.Len(t, sorted, 4)

	positions := make(map[string]int)
	for i, node := range sorted {
		positions[node.Name] = i
	}
	assert.Less(t, positions["A"], positions["B"])
	assert.Less(t, positions["B"], positions["C"])
	assert.Less(t, positions["B"], positions["D"])
}

func TestTopologicalSortCycle(t *testing.T) {
	nodes := []NodeProto{
		{Name: "X", Inputs: []string{"y"}, Outputs: []string{"x"}},
		{Name: "Y", Inputs: []string{"x"}, Outputs: []string{"y"}},
	}
	_, err := topologicalSort(nodes)
	assert.ErrorContains(t, err, "cycle")
}

func TestEndpointCheck(t *testing.T) {
	e := Endpoint{Name: "input", DType: tensor.Float32, Dims: []int{-1, 10}}

	assert.NoError(t, e.Check(tensor.Float32, tensor.Shape{3, 10}))
	assert.Error(t, e.Check(tensor.Float64, tensor.Shape{3, 10}))
	assert.Error(t, e.Check(tensor.Float32, tensor.Shape{3, 9}))
	assert.Error(t, e.Check(tensor.Float32, tensor.Shape{30}))
	assert.Equal(t, "float32[-1 10]", e.String())

	unknown := Endpoint{Name: "h"}
	assert.NoError(t, unknown.Check(tensor.Int64, tensor.Shape{1, 2, 3}))
}
