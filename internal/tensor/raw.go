package tensor

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// tensorBuffer is a reference-counted byte buffer shared by clones.
type tensorBuffer struct {
	data     []byte
	refCount atomic.Int32
}

// newTensorBuffer creates a new buffer with refCount = 1.
func newTensorBuffer(size int) *tensorBuffer {
	buf := &tensorBuffer{
		data: make([]byte, size),
	}
	buf.refCount.Store(1)
	return buf
}

func (tb *tensorBuffer) addRef() {
	if tb.refCount.Add(1) <= 1 {
		panic("tensor: reference added to a released buffer")
	}
}

// release drops one reference and frees the memory on the last one.
// Releasing more often than referenced is a double free and panics.
func (tb *tensorBuffer) release() {
	n := tb.refCount.Add(-1)
	switch {
	case n == 0:
		tb.data = nil
	case n < 0:
		panic("tensor: buffer released twice")
	}
}

// RawTensor is a contiguous row-major buffer with a shape and element type.
type RawTensor struct {
	buffer *tensorBuffer
	shape  Shape
	stride []int
	dtype  DataType
}

// NewRaw allocates a zeroed tensor of the given shape and type.
func NewRaw(shape Shape, dtype DataType) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if !dtype.Valid() {
		return nil, fmt.Errorf("invalid data type: %s", dtype)
	}

	return &RawTensor{
		buffer: newTensorBuffer(shape.NumElements() * dtype.Size()),
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  dtype,
	}, nil
}

// FromSlice allocates a tensor of the given shape and copies values into it.
func FromSlice[T DType](values []T, shape Shape) (*RawTensor, error) {
	r, err := NewRaw(shape, TypeOf[T]())
	if err != nil {
		return nil, err
	}
	if len(values) != r.NumElements() {
		r.Release()
		return nil, fmt.Errorf("got %d values for shape %v (%d elements)", len(values), shape, r.NumElements())
	}
	copy(As[T](r), values)
	return r, nil
}

// Shape returns the tensor's shape.
func (r *RawTensor) Shape() Shape {
	return r.shape
}

// Strides returns the row-major strides in elements.
func (r *RawTensor) Strides() []int {
	return r.stride
}

// DType returns the tensor's data type.
func (r *RawTensor) DType() DataType {
	return r.dtype
}

// NumElements returns the total number of elements.
func (r *RawTensor) NumElements() int {
	return r.shape.NumElements()
}

// ByteSize returns the total memory size in bytes.
func (r *RawTensor) ByteSize() int {
	return r.NumElements() * r.dtype.Size()
}

// Data returns the raw byte slice. It is nil once the buffer is freed.
func (r *RawTensor) Data() []byte {
	return r.buffer.data
}

// Released reports whether the underlying buffer has been freed.
func (r *RawTensor) Released() bool {
	return r.buffer.data == nil
}

// RefCount returns the number of live references to the buffer.
func (r *RawTensor) RefCount() int {
	return int(r.buffer.refCount.Load())
}

// As interprets the buffer as []T. It panics if T does not match the tag
// or the buffer has been released.
func As[T DType](r *RawTensor) []T {
	if want := TypeOf[T](); r.dtype != want {
		panic(fmt.Sprintf("tensor dtype is %s, not %s", r.dtype, want))
	}
	data := r.buffer.data
	if data == nil {
		panic("tensor: access to a released buffer")
	}
	//nolint:gosec // unsafe.Slice for zero-copy access, length bounded by NumElements()
	return unsafe.Slice((*T)(unsafe.Pointer(&data[0])), r.NumElements())
}

// AsFloat32 interprets the data as []float32.
func (r *RawTensor) AsFloat32() []float32 { return As[float32](r) }

// AsFloat64 interprets the data as []float64.
func (r *RawTensor) AsFloat64() []float64 { return As[float64](r) }

// AsInt32 interprets the data as []int32.
func (r *RawTensor) AsInt32() []int32 { return As[int32](r) }

// AsInt64 interprets the data as []int64.
func (r *RawTensor) AsInt64() []int64 { return As[int64](r) }

// Clone returns a view sharing the same buffer; the reference count goes up
// by one and the clone must be released independently.
func (r *RawTensor) Clone() *RawTensor {
	r.buffer.addRef()
	return &RawTensor{
		buffer: r.buffer,
		shape:  r.shape.Clone(),
		stride: append([]int(nil), r.stride...),
		dtype:  r.dtype,
	}
}

// Copy returns a deep copy with its own buffer.
func (r *RawTensor) Copy() *RawTensor {
	out := &RawTensor{
		buffer: newTensorBuffer(r.ByteSize()),
		shape:  r.shape.Clone(),
		stride: append([]int(nil), r.stride...),
		dtype:  r.dtype,
	}
	copy(out.buffer.data, r.buffer.data)
	return out
}

// Reshaped returns a view of the same buffer with a different shape of the
// same element count. Like Clone, it takes a reference.
func (r *RawTensor) Reshaped(shape Shape) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if shape.NumElements() != r.NumElements() {
		return nil, fmt.Errorf("cannot reshape %v (%d elements) to %v (%d elements)",
			r.shape, r.NumElements(), shape, shape.NumElements())
	}
	out := r.Clone()
	out.shape = shape.Clone()
	out.stride = shape.ComputeStrides()
	return out, nil
}

// Release drops this tensor's reference to the buffer.
func (r *RawTensor) Release() {
	r.buffer.release()
}

// IsUnique reports whether this tensor is the only reference to its buffer.
func (r *RawTensor) IsUnique() bool {
	return r.buffer.refCount.Load() == 1
}
