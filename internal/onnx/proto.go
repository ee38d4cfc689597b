package onnx

import "github.com/born-ml/dnn/internal/onnx/operators"

// In-memory forms of the ONNX protobuf messages the runtime reads and writes.
// Only the fields the runtime understands are kept; everything else is
// skipped on decode and never written on encode.

// ModelProto is the top-level ONNX model.
type ModelProto struct {
	IRVersion       int64
	OpsetImport     []OperatorSetID
	ProducerName    string
	ProducerVersion string
	Domain          string
	ModelVersion    int64
	DocString       string
	Graph           *GraphProto
	MetadataProps   []StringStringEntry
}

// GraphProto is the computation graph of a model.
type GraphProto struct {
	Name         string
	Nodes        []NodeProto
	Initializers []TensorProto
	DocString    string
	Inputs       []ValueInfoProto
	Outputs      []ValueInfoProto
	ValueInfo    []ValueInfoProto
}

// NodeProto is a single operator application.
type NodeProto struct {
	Inputs     []string
	Outputs    []string
	Name       string
	OpType     string
	Attributes []AttributeProto
	DocString  string
	Domain     string
}

// TensorProto is a serialized tensor (initializers and attribute values).
type TensorProto struct {
	Dims      []int64
	DataType  int32
	FloatData []float32
	Int32Data []int32
	Int64Data []int64
	Name      string
	RawData   []byte
	// DoubleData holds legacy float64 payloads.
	DoubleData []float64
	DocString  string
}

// ValueInfoProto names a value and declares its type.
type ValueInfoProto struct {
	Name      string
	Type      *TypeProto
	DocString string
}

// TypeProto carries the tensor type of a value; other type kinds are skipped.
type TypeProto struct {
	TensorType *TensorTypeProto
}

// TensorTypeProto is an element type plus an optional shape.
type TensorTypeProto struct {
	ElemType int32
	Shape    *TensorShapeProto
}

// TensorShapeProto lists the dimensions of a tensor type.
type TensorShapeProto struct {
	Dims []DimensionProto
}

// DimensionProto is either a fixed extent or a symbolic name.
type DimensionProto struct {
	DimValue int64
	DimParam string
}

// AttributeProto is a node attribute. Graph-valued attributes are not supported.
type AttributeProto struct {
	Name      string
	F         float32
	I         int64
	S         []byte
	T         *TensorProto
	Floats    []float32
	Ints      []int64
	Strings   [][]byte
	DocString string
	Type      int32
}

// OperatorSetID pins the version of an operator domain.
type OperatorSetID struct {
	Domain  string
	Version int64
}

// StringStringEntry is a metadata key/value pair.
type StringStringEntry struct {
	Key   string
	Value string
}

// Element types, shared with the operator package.
const (
	TensorProtoUndefined = operators.TensorProtoUndefined
	TensorProtoFloat     = operators.TensorProtoFloat
	TensorProtoUint8     = operators.TensorProtoUint8
	TensorProtoInt32     = operators.TensorProtoInt32
	TensorProtoInt64     = operators.TensorProtoInt64
	TensorProtoBool      = operators.TensorProtoBool
	TensorProtoFloat16   = operators.TensorProtoFloat16
	TensorProtoDouble    = operators.TensorProtoDouble
	TensorProtoBfloat16  = operators.TensorProtoBfloat16
)

// Attribute kinds (AttributeProto.Type).
const (
	AttributeProtoUndefined = 0
	AttributeProtoFloat     = 1
	AttributeProtoInt       = 2
	AttributeProtoString    = 3
	AttributeProtoTensor    = 4
	AttributeProtoGraph     = 5
	AttributeProtoFloats    = 6
	AttributeProtoInts      = 7
	AttributeProtoStrings   = 8
)

// DefaultDomain is the operator domain of the standard ONNX operators.
const DefaultDomain = "ai.onnx"

// Opset returns the version of the default operator domain, or 0 if absent.
func (m *ModelProto) Opset() int64 {
	for _, id := range m.OpsetImport {
		if id.Domain == "" || id.Domain == DefaultDomain {
			return id.Version
		}
	}
	return 0
}
