// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/pkg/errors"

	"github.com/born-ml/dnn/internal/tensor"
)

// Element is the constraint for supported Go element types.
// Supported types: float32, float64, int32, int64, uint8, bool.
type Element = tensor.DType

// DataType is the element type tag of a tensor.
type DataType = tensor.DataType

// Data type constants.
const (
	Undefined DataType = tensor.Undefined
	Float32   DataType = tensor.Float32
	Float64   DataType = tensor.Float64
	Int32     DataType = tensor.Int32
	Int64     DataType = tensor.Int64
	Uint8     DataType = tensor.Uint8
	Bool      DataType = tensor.Bool
)

// Shape represents the dimensions of a tensor. Dimension 0 is the batch
// dimension by convention; an empty Shape is a scalar.
type Shape = tensor.Shape

// Errors returned by tensor operations.
var (
	ErrEmpty           = errors.New("tensor is empty")
	ErrInvalidShape    = errors.New("invalid shape")
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrTypeMismatch    = errors.New("element type mismatch")
	ErrLengthMismatch  = errors.New("length mismatch")
)

// Tensor is a caller-owned buffer with an element type and shape.
type Tensor struct {
	raw *tensor.RawTensor
}

// New allocates a zeroed tensor. With no dims the tensor is a scalar
// holding one element.
func New(dtype DataType, dims ...int) (*Tensor, error) {
	t := &Tensor{}
	if err := t.Realloc(dtype, dims...); err != nil {
		return nil, err
	}
	return t, nil
}

// Empty returns an unshaped placeholder with no buffer.
func Empty() *Tensor {
	return &Tensor{}
}

// FromSlice builds a tensor holding a copy of values. With no dims the
// tensor is one-dimensional.
func FromSlice[T Element](values []T, dims ...int) (*Tensor, error) {
	if len(dims) == 0 {
		dims = []int{len(values)}
	}
	t, err := New(tensor.TypeOf[T](), dims...)
	if err != nil {
		return nil, err
	}
	if len(values) != t.Len() {
		t.Release()
		return nil, errors.Wrapf(ErrLengthMismatch, "%d values for shape %v", len(values), dims)
	}
	copy(tensor.As[T](t.raw), values)
	return t, nil
}

// Scalar builds a rank-0 tensor holding v.
func Scalar[T Element](v T) *Tensor {
	raw, err := tensor.FromSlice([]T{v}, nil)
	if err != nil {
		panic(err)
	}
	return &Tensor{raw: raw}
}

// IsEmpty reports whether the tensor has no buffer.
func (t *Tensor) IsEmpty() bool {
	return t.raw == nil
}

// DType returns the element type, or Undefined for an empty tensor.
func (t *Tensor) DType() DataType {
	if t.raw == nil {
		return Undefined
	}
	return t.raw.DType()
}

// Shape returns a copy of the shape; nil for an empty tensor.
func (t *Tensor) Shape() Shape {
	if t.raw == nil {
		return nil
	}
	return t.raw.Shape().Clone()
}

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int {
	if t.raw == nil {
		return 0
	}
	return len(t.raw.Shape())
}

// Len returns the number of elements; 0 for an empty tensor.
func (t *Tensor) Len() int {
	if t.raw == nil {
		return 0
	}
	return t.raw.NumElements()
}

// Bytes returns the buffer as raw bytes. Writes go straight to the tensor.
func (t *Tensor) Bytes() []byte {
	if t.raw == nil {
		return nil
	}
	return t.raw.Data()
}

// Reshape replaces the buffer with a zeroed one of the given shape and the
// current element type.
func (t *Tensor) Reshape(dims ...int) error {
	if t.raw == nil {
		return ErrEmpty
	}
	return t.Realloc(t.raw.DType(), dims...)
}

// Realloc gives the tensor a zeroed buffer of the given type and shape. A
// tensor that already has exactly that type and shape keeps its buffer and
// contents.
func (t *Tensor) Realloc(dtype DataType, dims ...int) error {
	shape := Shape(dims)
	if t.raw != nil && t.raw.DType() == dtype && t.raw.Shape().Equal(shape) {
		return nil
	}
	if !dtype.Valid() {
		return errors.Wrapf(ErrTypeMismatch, "cannot allocate %s elements", dtype)
	}
	raw, err := tensor.NewRaw(shape, dtype)
	if err != nil {
		return errors.Wrapf(ErrInvalidShape, "%v: %v", dims, err)
	}
	t.Release()
	t.raw = raw
	return nil
}

// Release frees the buffer and leaves the tensor empty. Later calls do nothing.
func (t *Tensor) Release() {
	if t.raw != nil {
		t.raw.Release()
		t.raw = nil
	}
}

// String formats the type and shape, e.g. "float32[2 10]".
func (t *Tensor) String() string {
	if t.raw == nil {
		return "empty"
	}
	return t.raw.DType().String() + formatShape(t.raw.Shape())
}
