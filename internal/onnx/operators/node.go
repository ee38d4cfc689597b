package operators

import "github.com/born-ml/dnn/internal/tensor"

// ONNX data types (TensorProto.DataType).
const (
	TensorProtoUndefined = 0
	TensorProtoFloat     = 1  // float32
	TensorProtoUint8     = 2  // uint8
	TensorProtoInt8      = 3  // int8
	TensorProtoUint16    = 4  // uint16
	TensorProtoInt16     = 5  // int16
	TensorProtoInt32     = 6  // int32
	TensorProtoInt64     = 7  // int64
	TensorProtoString    = 8  // string
	TensorProtoBool      = 9  // bool
	TensorProtoFloat16   = 10 // float16
	TensorProtoDouble    = 11 // float64
	TensorProtoUint32    = 12 // uint32
	TensorProtoUint64    = 13 // uint64
	TensorProtoBfloat16  = 16 // bfloat16
)

// DataTypeFromProto maps an ONNX element type to the native element type.
// Half-precision types map to Float32, which is how their data is stored.
func DataTypeFromProto(onnxType int32) (tensor.DataType, bool) {
	switch onnxType {
	case TensorProtoFloat, TensorProtoFloat16, TensorProtoBfloat16:
		return tensor.Float32, true
	case TensorProtoDouble:
		return tensor.Float64, true
	case TensorProtoInt32:
		return tensor.Int32, true
	case TensorProtoInt64:
		return tensor.Int64, true
	case TensorProtoUint8:
		return tensor.Uint8, true
	case TensorProtoBool:
		return tensor.Bool, true
	default:
		return tensor.Undefined, false
	}
}

// DataTypeToProto maps a native element type to its ONNX element type.
func DataTypeToProto(dt tensor.DataType) int32 {
	switch dt {
	case tensor.Float32:
		return TensorProtoFloat
	case tensor.Float64:
		return TensorProtoDouble
	case tensor.Int32:
		return TensorProtoInt32
	case tensor.Int64:
		return TensorProtoInt64
	case tensor.Uint8:
		return TensorProtoUint8
	case tensor.Bool:
		return TensorProtoBool
	default:
		return TensorProtoUndefined
	}
}

// Node is an ONNX operation node. It mirrors the relevant fields of
// onnx.NodeProto to avoid an import cycle between onnx and operators.
type Node struct {
	Name       string
	OpType     string
	Inputs     []string
	Outputs    []string
	Attributes []Attribute
	Domain     string
}

// Attribute represents a node attribute.
type Attribute struct {
	Name    string
	Type    int32
	F       float32
	I       int64
	S       []byte
	T       *tensor.RawTensor // TENSOR value, owned by the node
	Floats  []float32
	Ints    []int64
	Strings [][]byte
}

// Release frees tensors held by the node's attributes.
func (n *Node) Release() {
	for i := range n.Attributes {
		if t := n.Attributes[i].T; t != nil {
			t.Release()
			n.Attributes[i].T = nil
		}
	}
}

func (n *Node) attr(name string) *Attribute {
	for i := range n.Attributes {
		if n.Attributes[i].Name == name {
			return &n.Attributes[i]
		}
	}
	return nil
}

// GetAttrInt returns an integer attribute or default value.
func GetAttrInt(node *Node, name string, defaultVal int64) int64 {
	if a := node.attr(name); a != nil {
		return a.I
	}
	return defaultVal
}

// GetAttrInts returns an integer array attribute.
func GetAttrInts(node *Node, name string) []int64 {
	if a := node.attr(name); a != nil {
		return a.Ints
	}
	return nil
}

// GetAttrFloat returns a float attribute or default value.
func GetAttrFloat(node *Node, name string, defaultVal float32) float32 {
	if a := node.attr(name); a != nil {
		return a.F
	}
	return defaultVal
}

// GetAttrTensor returns a tensor attribute or nil.
func GetAttrTensor(node *Node, name string) *tensor.RawTensor {
	if a := node.attr(name); a != nil {
		return a.T
	}
	return nil
}
