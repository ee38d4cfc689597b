// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/born-ml/dnn/internal/tensor"
)

// Values returns the whole buffer as a typed slice. Writes go straight to
// the tensor.
func Values[T Element](t *Tensor) ([]T, error) {
	if err := checkType[T](t); err != nil {
		return nil, err
	}
	return tensor.As[T](t.raw), nil
}

// Ptr returns a pointer to the element at indices. Fewer indices than the
// rank address the first element of that sub-block.
func Ptr[T Element](t *Tensor, indices ...int) (*T, error) {
	if err := checkType[T](t); err != nil {
		return nil, err
	}
	shape := t.raw.Shape()
	if len(indices) > len(shape) {
		return nil, errors.Wrapf(ErrIndexOutOfRange, "%d indices for rank %d", len(indices), len(shape))
	}
	strides := t.raw.Strides()
	offset := 0
	for i, idx := range indices {
		if idx < 0 || idx >= shape[i] {
			return nil, errors.Wrapf(ErrIndexOutOfRange, "index %d is %d, dimension is %d", i, idx, shape[i])
		}
		offset += idx * strides[i]
	}
	return &tensor.As[T](t.raw)[offset], nil
}

// PtrAt returns a pointer to the element at a flattened index.
func PtrAt[T Element](t *Tensor, flat int) (*T, error) {
	if err := checkType[T](t); err != nil {
		return nil, err
	}
	if flat < 0 || flat >= t.raw.NumElements() {
		return nil, errors.Wrapf(ErrIndexOutOfRange, "flat index %d, length %d", flat, t.raw.NumElements())
	}
	return &tensor.As[T](t.raw)[flat], nil
}

// At returns the element at indices.
func At[T Element](t *Tensor, indices ...int) (T, error) {
	p, err := Ptr[T](t, indices...)
	if err != nil {
		var zero T
		return zero, err
	}
	return *p, nil
}

// Set stores v at indices.
func Set[T Element](t *Tensor, v T, indices ...int) error {
	p, err := Ptr[T](t, indices...)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// SetVector copies values into the row that varies dimension axis with
// dimension 0 fixed at batch and every other dimension at 0. When axis is
// 0 the batch index is ignored.
func SetVector[T Element](t *Tensor, axis, batch int, values []T) error {
	dst, step, err := row[T](t, axis, batch)
	if err != nil {
		return err
	}
	if len(values) != t.raw.Shape()[axis] {
		return errors.Wrapf(ErrLengthMismatch, "%d values for dimension %d of size %d", len(values), axis, t.raw.Shape()[axis])
	}
	for i, v := range values {
		dst[i*step] = v
	}
	return nil
}

// GetVector returns a copy of the row SetVector writes.
func GetVector[T Element](t *Tensor, axis, batch int) ([]T, error) {
	src, step, err := row[T](t, axis, batch)
	if err != nil {
		return nil, err
	}
	out := make([]T, t.raw.Shape()[axis])
	for i := range out {
		out[i] = src[i*step]
	}
	return out, nil
}

// row returns the buffer starting at the first element of the row and the
// element stride along axis.
func row[T Element](t *Tensor, axis, batch int) ([]T, int, error) {
	if err := checkType[T](t); err != nil {
		return nil, 0, err
	}
	shape := t.raw.Shape()
	if axis < 0 || axis >= len(shape) {
		return nil, 0, errors.Wrapf(ErrIndexOutOfRange, "axis %d for rank %d", axis, len(shape))
	}
	strides := t.raw.Strides()
	offset := 0
	if axis != 0 {
		if batch < 0 || batch >= shape[0] {
			return nil, 0, errors.Wrapf(ErrIndexOutOfRange, "batch %d, batch dimension is %d", batch, shape[0])
		}
		offset = batch * strides[0]
	}
	return tensor.As[T](t.raw)[offset:], strides[axis], nil
}

func checkType[T Element](t *Tensor) error {
	if t == nil || t.raw == nil {
		return ErrEmpty
	}
	if want := tensor.TypeOf[T](); want != t.raw.DType() {
		return errors.Wrapf(ErrTypeMismatch, "accessed as %s, holds %s", want, t.raw.DType())
	}
	return nil
}

func formatShape(s Shape) string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = fmt.Sprint(d)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
