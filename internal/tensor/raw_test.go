package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRaw(t *testing.T) {
	tests := []struct {
		name    string
		shape   Shape
		dtype   DataType
		bytes   int
		wantErr bool
	}{
		{name: "scalar", shape: Shape{}, dtype: Float32, bytes: 4},
		{name: "matrix", shape: Shape{2, 10}, dtype: Float32, bytes: 80},
		{name: "int64 vector", shape: Shape{3}, dtype: Int64, bytes: 24},
		{name: "bool cube", shape: Shape{2, 2, 2}, dtype: Bool, bytes: 8},
		{name: "zero dim", shape: Shape{2, 0}, dtype: Float32, wantErr: true},
		{name: "negative dim", shape: Shape{-1}, dtype: Float32, wantErr: true},
		{name: "undefined type", shape: Shape{1}, dtype: Undefined, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := NewRaw(tt.shape, tt.dtype)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer raw.Release()

			assert.Equal(t, tt.bytes, raw.ByteSize())
			assert.Len(t, raw.Data(), tt.bytes)
			assert.Equal(t, tt.shape.NumElements(), raw.NumElements())
		})
	}
}

func TestRawTensorZeroCopy(t *testing.T) {
	raw, err := NewRaw(Shape{3, 2}, Int64)
	require.NoError(t, err)

	data := raw.AsInt64()
	data[0] = 42
	assert.Equal(t, int64(42), raw.AsInt64()[0])
}

func TestAsTypeMismatchPanics(t *testing.T) {
	raw, err := NewRaw(Shape{2}, Float32)
	require.NoError(t, err)

	assert.Panics(t, func() { As[float64](raw) })
}

func TestFromSlice(t *testing.T) {
	raw, err := FromSlice([]float32{1, 2, 3, 4, 5, 6}, Shape{2, 3})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, raw.AsFloat32())
	assert.Equal(t, []int{3, 1}, raw.Strides())

	_, err = FromSlice([]float32{1, 2}, Shape{3})
	assert.Error(t, err)
}

func TestCloneSharesBuffer(t *testing.T) {
	raw, err := FromSlice([]float32{1, 2}, Shape{2})
	require.NoError(t, err)

	clone := raw.Clone()
	assert.Equal(t, 2, raw.RefCount())
	assert.False(t, raw.IsUnique())

	clone.AsFloat32()[0] = 7
	assert.Equal(t, float32(7), raw.AsFloat32()[0])

	clone.Release()
	assert.True(t, raw.IsUnique())
	assert.False(t, raw.Released())

	raw.Release()
	assert.True(t, raw.Released())
}

func TestCopyIsIndependent(t *testing.T) {
	raw, err := FromSlice([]int32{1, 2, 3}, Shape{3})
	require.NoError(t, err)
	defer raw.Release()

	cp := raw.Copy()
	defer cp.Release()

	cp.AsInt32()[0] = 9
	assert.Equal(t, int32(1), raw.AsInt32()[0])
	assert.True(t, raw.IsUnique())
}

func TestReshaped(t *testing.T) {
	raw, err := FromSlice([]float64{1, 2, 3, 4, 5, 6}, Shape{6})
	require.NoError(t, err)

	view, err := raw.Reshaped(Shape{3, 2})
	require.NoError(t, err)
	assert.Equal(t, Shape{3, 2}, view.Shape())
	assert.Equal(t, 2, raw.RefCount())
	view.Release()

	_, err = raw.Reshaped(Shape{4})
	assert.Error(t, err)
	raw.Release()
}

func TestDoubleReleasePanics(t *testing.T) {
	raw, err := NewRaw(Shape{2, 2}, Float32)
	require.NoError(t, err)

	raw.Release()
	assert.Panics(t, raw.Release)
	assert.Panics(t, func() { raw.AsFloat32() })
}

func TestHandleOwnership(t *testing.T) {
	raw, err := NewRaw(Shape{1}, Float32)
	require.NoError(t, err)

	borrowed := BorrowedHandle(raw)
	assert.False(t, borrowed.Owned())
	borrowed.Release()
	assert.False(t, raw.Released())

	owned := OwnedHandle(raw)
	assert.True(t, owned.Owned())
	assert.Equal(t, "owned", owned.Ownership().String())
	owned.Release()
	assert.True(t, raw.Released())
}
