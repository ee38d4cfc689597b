// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/dnn/tensor"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name  string
		dtype tensor.DataType
		dims  []int
		bytes int
	}{
		{"matrix float32", tensor.Float32, []int{2, 10}, 80},
		{"vector float64", tensor.Float64, []int{3}, 24},
		{"batch int64", tensor.Int64, []int{4, 2, 3}, 192},
		{"scalar", tensor.Float32, nil, 4},
		{"bool mask", tensor.Bool, []int{5}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, err := tensor.New(tt.dtype, tt.dims...)
			require.NoError(t, err)
			defer x.Release()

			assert.Equal(t, tt.dtype, x.DType())
			assert.Equal(t, len(tt.dims), x.Rank())
			assert.Len(t, x.Bytes(), tt.bytes)
			assert.Equal(t, tt.bytes/tt.dtype.Size(), x.Len())
			assert.False(t, x.IsEmpty())
		})
	}
}

func TestNewInvalid(t *testing.T) {
	_, err := tensor.New(tensor.Float32, 2, -1)
	assert.True(t, errors.Is(err, tensor.ErrInvalidShape))

	_, err = tensor.New(tensor.Undefined, 2)
	assert.Error(t, err)
}

func TestEmpty(t *testing.T) {
	x := tensor.Empty()
	assert.True(t, x.IsEmpty())
	assert.Equal(t, tensor.Undefined, x.DType())
	assert.Nil(t, x.Shape())
	assert.Equal(t, 0, x.Len())
	assert.Equal(t, "empty", x.String())

	_, err := tensor.Ptr[float32](x)
	assert.True(t, errors.Is(err, tensor.ErrEmpty))
	assert.True(t, errors.Is(x.Reshape(2), tensor.ErrEmpty))

	require.NoError(t, x.Realloc(tensor.Int32, 2, 1))
	assert.Equal(t, "int32[2 1]", x.String())
	x.Release()
}

func TestReleaseIdempotent(t *testing.T) {
	x, err := tensor.New(tensor.Float32, 4)
	require.NoError(t, err)
	x.Release()
	x.Release()
	assert.True(t, x.IsEmpty())
}

func TestPtr(t *testing.T) {
	x, err := tensor.FromSlice([]float32{0, 1, 2, 3, 4, 5}, 2, 3)
	require.NoError(t, err)
	defer x.Release()

	p, err := tensor.Ptr[float32](x, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, float32(5), *p)

	*p = 50
	v, err := tensor.At[float32](x, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, float32(50), v)

	// Fewer indices address the start of the sub-block.
	row, err := tensor.Ptr[float32](x, 1)
	require.NoError(t, err)
	assert.Equal(t, float32(3), *row)

	first, err := tensor.Ptr[float32](x)
	require.NoError(t, err)
	assert.Equal(t, float32(0), *first)

	flat, err := tensor.PtrAt[float32](x, 4)
	require.NoError(t, err)
	assert.Equal(t, float32(4), *flat)
}

func TestPtrErrors(t *testing.T) {
	x, err := tensor.New(tensor.Int32, 2, 3)
	require.NoError(t, err)
	defer x.Release()

	_, err = tensor.Ptr[int32](x, 2, 0)
	assert.True(t, errors.Is(err, tensor.ErrIndexOutOfRange))
	_, err = tensor.Ptr[int32](x, 0, -1)
	assert.True(t, errors.Is(err, tensor.ErrIndexOutOfRange))
	_, err = tensor.Ptr[int32](x, 0, 0, 0)
	assert.True(t, errors.Is(err, tensor.ErrIndexOutOfRange))
	_, err = tensor.Ptr[float32](x, 0, 0)
	assert.True(t, errors.Is(err, tensor.ErrTypeMismatch))
	_, err = tensor.Ptr[int64](x, 0, 0)
	assert.True(t, errors.Is(err, tensor.ErrTypeMismatch))
	_, err = tensor.PtrAt[int32](x, 6)
	assert.True(t, errors.Is(err, tensor.ErrIndexOutOfRange))
	assert.True(t, errors.Is(tensor.Set[int32](x, 1, 5, 5), tensor.ErrIndexOutOfRange))
}

func TestSetVectorRoundTrip(t *testing.T) {
	for batch := 1; batch <= 4; batch++ {
		x, err := tensor.New(tensor.Float32, batch, 10)
		require.NoError(t, err)

		for b := 0; b < batch; b++ {
			values := make([]float32, 10)
			for i := range values {
				values[i] = float32(b*100 + i)
			}
			require.NoError(t, tensor.SetVector(x, 1, b, values))

			for i, want := range values {
				p, err := tensor.Ptr[float32](x, b, i)
				require.NoError(t, err)
				assert.Equal(t, want, *p)
			}
			got, err := tensor.GetVector[float32](x, 1, b)
			require.NoError(t, err)
			assert.Equal(t, values, got)
		}
		x.Release()
	}
}

func TestSetVectorAxis(t *testing.T) {
	x, err := tensor.New(tensor.Int64, 2, 3, 4)
	require.NoError(t, err)
	defer x.Release()

	// Vary dimension 2 with batch 1 and dimension 1 at 0.
	require.NoError(t, tensor.SetVector(x, 2, 1, []int64{1, 2, 3, 4}))
	v, err := tensor.At[int64](x, 1, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(4), v)

	// Vary dimension 1 with batch 0 and dimension 2 at 0.
	require.NoError(t, tensor.SetVector(x, 1, 0, []int64{7, 8, 9}))
	v, err = tensor.At[int64](x, 0, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(9), v)

	// Axis 0 ignores the batch index.
	require.NoError(t, tensor.SetVector(x, 0, 99, []int64{5, 6}))
	got, err := tensor.GetVector[int64](x, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 6}, got)
}

func TestSetVectorRank1(t *testing.T) {
	x, err := tensor.New(tensor.Float64, 3)
	require.NoError(t, err)
	defer x.Release()

	require.NoError(t, tensor.SetVector(x, 0, 7, []float64{1, 2, 3}))
	values, err := tensor.Values[float64](x)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, values)
}

func TestSetVectorErrors(t *testing.T) {
	x, err := tensor.New(tensor.Float32, 2, 3)
	require.NoError(t, err)
	defer x.Release()

	err = tensor.SetVector(x, 1, 0, []float32{1, 2})
	assert.True(t, errors.Is(err, tensor.ErrLengthMismatch))
	err = tensor.SetVector(x, 1, 2, []float32{1, 2, 3})
	assert.True(t, errors.Is(err, tensor.ErrIndexOutOfRange))
	err = tensor.SetVector(x, 2, 0, []float32{1, 2, 3})
	assert.True(t, errors.Is(err, tensor.ErrIndexOutOfRange))
	err = tensor.SetVector(x, 1, 0, []float64{1, 2, 3})
	assert.True(t, errors.Is(err, tensor.ErrTypeMismatch))

	s := tensor.Scalar(float32(1))
	defer s.Release()
	err = tensor.SetVector(s, 0, 0, []float32{1})
	assert.True(t, errors.Is(err, tensor.ErrIndexOutOfRange))
}

func TestScalar(t *testing.T) {
	s := tensor.Scalar(2.5)
	defer s.Release()

	assert.Equal(t, tensor.Float64, s.DType())
	assert.Equal(t, 0, s.Rank())
	v, err := tensor.At[float64](s)
	require.NoError(t, err)
	assert.Equal(t, 2.5, v)
}

func TestFromSlice(t *testing.T) {
	x, err := tensor.FromSlice([]uint8{1, 2, 3})
	require.NoError(t, err)
	defer x.Release()
	assert.Equal(t, tensor.Shape{3}, x.Shape())

	_, err = tensor.FromSlice([]int32{1, 2, 3}, 2, 2)
	assert.True(t, errors.Is(err, tensor.ErrLengthMismatch))
}

func TestReshapeReallocates(t *testing.T) {
	x, err := tensor.FromSlice([]float32{1, 2, 3, 4}, 2, 2)
	require.NoError(t, err)
	defer x.Release()

	require.NoError(t, x.Reshape(2, 2))
	values, err := tensor.Values[float32](x)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4}, values, "same shape keeps the buffer")

	require.NoError(t, x.Reshape(3, 1))
	values, err = tensor.Values[float32](x)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 0}, values)
	assert.Len(t, x.Bytes(), 12)

	shape := x.Shape()
	shape[0] = 100
	assert.Equal(t, tensor.Shape{3, 1}, x.Shape(), "Shape returns a copy")
}
