// Package tensor provides the native buffers used by the graph runtime.
//
// A RawTensor is a contiguous row-major buffer with a shape and an element
// type tag. Buffers are reference counted: Clone shares a buffer, Release
// drops one reference and the memory is freed when the last one goes.
package tensor

// DType is a constraint for supported element types.
type DType interface {
	float32 | float64 | int32 | int64 | uint8 | bool
}

// DataType is the runtime element type tag of a buffer.
type DataType int

// Supported data types.
const (
	Undefined DataType = iota
	Float32
	Float64
	Int32
	Int64
	Uint8
	Bool
)

// Size returns the byte size of one element.
func (dt DataType) Size() int {
	switch dt {
	case Float32, Int32:
		return 4
	case Float64, Int64:
		return 8
	case Uint8, Bool:
		return 1
	default:
		return 0
	}
}

// Valid reports whether dt names a concrete element type.
func (dt DataType) Valid() bool {
	return dt.Size() > 0
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Uint8:
		return "uint8"
	case Bool:
		return "bool"
	default:
		return "undefined"
	}
}

// ParseDataType maps a name produced by String back to a DataType.
func ParseDataType(name string) (DataType, bool) {
	for dt := Float32; dt <= Bool; dt++ {
		if dt.String() == name {
			return dt, true
		}
	}
	return Undefined, false
}

// TypeOf returns the DataType matching the Go type T.
func TypeOf[T DType]() DataType {
	var zero T
	switch any(zero).(type) {
	case float32:
		return Float32
	case float64:
		return Float64
	case int32:
		return Int32
	case int64:
		return Int64
	case uint8:
		return Uint8
	case bool:
		return Bool
	default:
		return Undefined
	}
}
