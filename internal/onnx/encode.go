package onnx

import (
	"math"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// Marshal encodes a model in the ONNX protobuf format. Zero-valued scalar
// fields are omitted.
func Marshal(m *ModelProto) ([]byte, error) {
	if m == nil || m.Graph == nil {
		return nil, errors.New("model has no graph")
	}
	return appendModel(nil, m), nil
}

func appendVarintField(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v)) //nolint:gosec // G115: two's complement int64 on the wire.
}

func appendStringField(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendMessage(b []byte, num protowire.Number, encode func([]byte) []byte) []byte {
	return appendBytesField(b, num, encode(nil))
}

func appendPackedVarints(b []byte, num protowire.Number, vs []int64) []byte {
	if len(vs) == 0 {
		return b
	}
	var packed []byte
	for _, v := range vs {
		packed = protowire.AppendVarint(packed, uint64(v)) //nolint:gosec // G115: two's complement int64 on the wire.
	}
	return appendBytesField(b, num, packed)
}

func appendPackedFloats(b []byte, num protowire.Number, vs []float32) []byte {
	if len(vs) == 0 {
		return b
	}
	packed := make([]byte, 0, 4*len(vs))
	for _, v := range vs {
		packed = protowire.AppendFixed32(packed, math.Float32bits(v))
	}
	return appendBytesField(b, num, packed)
}

func appendPackedDoubles(b []byte, num protowire.Number, vs []float64) []byte {
	if len(vs) == 0 {
		return b
	}
	packed := make([]byte, 0, 8*len(vs))
	for _, v := range vs {
		packed = protowire.AppendFixed64(packed, math.Float64bits(v))
	}
	return appendBytesField(b, num, packed)
}

func appendModel(b []byte, m *ModelProto) []byte {
	b = appendVarintField(b, 1, m.IRVersion)
	b = appendStringField(b, 2, m.ProducerName)
	b = appendStringField(b, 3, m.ProducerVersion)
	b = appendStringField(b, 4, m.Domain)
	b = appendVarintField(b, 5, m.ModelVersion)
	b = appendStringField(b, 6, m.DocString)
	b = appendMessage(b, 7, func(b []byte) []byte { return appendGraph(b, m.Graph) })
	for _, id := range m.OpsetImport {
		b = appendMessage(b, 8, func(b []byte) []byte {
			b = appendStringField(b, 1, id.Domain)
			return appendVarintField(b, 2, id.Version)
		})
	}
	for _, e := range m.MetadataProps {
		b = appendMessage(b, 14, func(b []byte) []byte {
			b = appendStringField(b, 1, e.Key)
			return appendStringField(b, 2, e.Value)
		})
	}
	return b
}

func appendGraph(b []byte, g *GraphProto) []byte {
	for i := range g.Nodes {
		b = appendMessage(b, 1, func(b []byte) []byte { return appendNode(b, &g.Nodes[i]) })
	}
	b = appendStringField(b, 2, g.Name)
	for i := range g.Initializers {
		b = appendMessage(b, 5, func(b []byte) []byte { return appendTensor(b, &g.Initializers[i]) })
	}
	b = appendStringField(b, 10, g.DocString)
	b = appendValueInfos(b, 11, g.Inputs)
	b = appendValueInfos(b, 12, g.Outputs)
	return appendValueInfos(b, 13, g.ValueInfo)
}

func appendValueInfos(b []byte, num protowire.Number, infos []ValueInfoProto) []byte {
	for i := range infos {
		b = appendMessage(b, num, func(b []byte) []byte { return appendValueInfo(b, &infos[i]) })
	}
	return b
}

func appendNode(b []byte, n *NodeProto) []byte {
	for _, in := range n.Inputs {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, in)
	}
	for _, out := range n.Outputs {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, out)
	}
	b = appendStringField(b, 3, n.Name)
	b = appendStringField(b, 4, n.OpType)
	for i := range n.Attributes {
		b = appendMessage(b, 5, func(b []byte) []byte { return appendAttribute(b, &n.Attributes[i]) })
	}
	b = appendStringField(b, 6, n.DocString)
	return appendStringField(b, 7, n.Domain)
}

func appendAttribute(b []byte, a *AttributeProto) []byte {
	b = appendStringField(b, 1, a.Name)
	switch a.Type {
	case AttributeProtoFloat:
		b = protowire.AppendTag(b, 2, protowire.Fixed32Type)
		b = protowire.AppendFixed32(b, math.Float32bits(a.F))
	case AttributeProtoInt:
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(a.I)) //nolint:gosec // G115: two's complement int64 on the wire.
	case AttributeProtoString:
		b = appendBytesField(b, 4, a.S)
	case AttributeProtoTensor:
		if a.T != nil {
			b = appendMessage(b, 5, func(b []byte) []byte { return appendTensor(b, a.T) })
		}
	case AttributeProtoFloats:
		b = appendPackedFloats(b, 7, a.Floats)
	case AttributeProtoInts:
		b = appendPackedVarints(b, 8, a.Ints)
	case AttributeProtoStrings:
		for _, s := range a.Strings {
			b = appendBytesField(b, 9, s)
		}
	}
	b = appendStringField(b, 13, a.DocString)
	return appendVarintField(b, 20, int64(a.Type))
}

func appendTensor(b []byte, t *TensorProto) []byte {
	b = appendPackedVarints(b, 1, t.Dims)
	b = appendVarintField(b, 2, int64(t.DataType))
	b = appendPackedFloats(b, 4, t.FloatData)
	if len(t.Int32Data) > 0 {
		vs := make([]int64, len(t.Int32Data))
		for i, v := range t.Int32Data {
			vs[i] = int64(v)
		}
		b = appendPackedVarints(b, 5, vs)
	}
	b = appendPackedVarints(b, 7, t.Int64Data)
	b = appendStringField(b, 8, t.Name)
	if len(t.RawData) > 0 {
		b = appendBytesField(b, 9, t.RawData)
	}
	b = appendPackedDoubles(b, 10, t.DoubleData)
	return appendStringField(b, 12, t.DocString)
}

func appendValueInfo(b []byte, vi *ValueInfoProto) []byte {
	b = appendStringField(b, 1, vi.Name)
	if vi.Type != nil && vi.Type.TensorType != nil {
		tt := vi.Type.TensorType
		b = appendMessage(b, 2, func(b []byte) []byte {
			return appendMessage(b, 1, func(b []byte) []byte {
				b = appendVarintField(b, 1, int64(tt.ElemType))
				if tt.Shape == nil {
					return b
				}
				return appendMessage(b, 2, func(b []byte) []byte {
					for _, d := range tt.Shape.Dims {
						b = appendMessage(b, 1, func(b []byte) []byte {
							if d.DimParam != "" {
								return appendStringField(b, 2, d.DimParam)
							}
							b = protowire.AppendTag(b, 1, protowire.VarintType)
							return protowire.AppendVarint(b, uint64(d.DimValue)) //nolint:gosec // G115: dims are non-negative.
						})
					}
					return b
				})
			})
		})
	}
	return appendStringField(b, 3, vi.DocString)
}
