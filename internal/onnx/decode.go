package onnx

import (
	"math"
	"os"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// ParseFile decodes an ONNX model file.
func ParseFile(path string) (*ModelProto, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read model")
	}
	return Parse(data)
}

// Parse decodes an ONNX model from its protobuf encoding.
func Parse(data []byte) (*ModelProto, error) {
	if len(data) == 0 {
		return nil, errors.New("empty model data")
	}
	m := &ModelProto{}
	if err := decodeModel(data, m); err != nil {
		return nil, errors.Wrap(err, "decode model")
	}
	if m.Graph == nil {
		return nil, errors.New("model has no graph")
	}
	return m, nil
}

// fieldFunc consumes the value of one field and reports how many bytes it
// used. Returning 0 skips the field as unknown.
type fieldFunc func(num protowire.Number, typ protowire.Type, b []byte) (int, error)

func walk(b []byte, fn fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		m, err := fn(num, typ, b)
		if err != nil {
			return errors.Wrapf(err, "field %d", num)
		}
		if m == 0 {
			m = protowire.ConsumeFieldValue(num, typ, b)
		}
		if m < 0 {
			return errors.Wrapf(protowire.ParseError(m), "field %d", num)
		}
		b = b[m:]
	}
	return nil
}

// message decodes a length-delimited submessage with decode.
func message(typ protowire.Type, b []byte, decode func([]byte) error) (int, error) {
	if typ != protowire.BytesType {
		return 0, nil
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return n, nil
	}
	return n, decode(v)
}

func str(typ protowire.Type, b []byte, dst *string) int {
	if typ != protowire.BytesType {
		return 0
	}
	v, n := protowire.ConsumeBytes(b)
	if n >= 0 {
		*dst = string(v)
	}
	return n
}

func raw(typ protowire.Type, b []byte, dst *[]byte) int {
	if typ != protowire.BytesType {
		return 0
	}
	v, n := protowire.ConsumeBytes(b)
	if n >= 0 {
		*dst = append([]byte(nil), v...)
	}
	return n
}

func varint(typ protowire.Type, b []byte, dst *int64) int {
	if typ != protowire.VarintType {
		return 0
	}
	v, n := protowire.ConsumeVarint(b)
	if n >= 0 {
		*dst = int64(v) //nolint:gosec // G115: two's complement int64 on the wire.
	}
	return n
}

// varints reads a repeated int64 field in packed or unpacked form.
func varints(typ protowire.Type, b []byte, dst *[]int64) int {
	switch typ {
	case protowire.VarintType:
		var v int64
		n := varint(typ, b, &v)
		if n >= 0 {
			*dst = append(*dst, v)
		}
		return n
	case protowire.BytesType:
		packed, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return n
		}
		for len(packed) > 0 {
			v, m := protowire.ConsumeVarint(packed)
			if m < 0 {
				return m
			}
			*dst = append(*dst, int64(v)) //nolint:gosec // G115: two's complement int64 on the wire.
			packed = packed[m:]
		}
		return n
	default:
		return 0
	}
}

// floats reads a repeated float field in packed or unpacked form.
func floats(typ protowire.Type, b []byte, dst *[]float32) int {
	switch typ {
	case protowire.Fixed32Type:
		v, n := protowire.ConsumeFixed32(b)
		if n >= 0 {
			*dst = append(*dst, math.Float32frombits(v))
		}
		return n
	case protowire.BytesType:
		packed, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return n
		}
		for len(packed) > 0 {
			v, m := protowire.ConsumeFixed32(packed)
			if m < 0 {
				return m
			}
			*dst = append(*dst, math.Float32frombits(v))
			packed = packed[m:]
		}
		return n
	default:
		return 0
	}
}

// doubles reads a repeated double field in packed or unpacked form.
func doubles(typ protowire.Type, b []byte, dst *[]float64) int {
	switch typ {
	case protowire.Fixed64Type:
		v, n := protowire.ConsumeFixed64(b)
		if n >= 0 {
			*dst = append(*dst, math.Float64frombits(v))
		}
		return n
	case protowire.BytesType:
		packed, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return n
		}
		for len(packed) > 0 {
			v, m := protowire.ConsumeFixed64(packed)
			if m < 0 {
				return m
			}
			*dst = append(*dst, math.Float64frombits(v))
			packed = packed[m:]
		}
		return n
	default:
		return 0
	}
}

func decodeModel(b []byte, m *ModelProto) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return varint(typ, b, &m.IRVersion), nil
		case 2:
			return str(typ, b, &m.ProducerName), nil
		case 3:
			return str(typ, b, &m.ProducerVersion), nil
		case 4:
			return str(typ, b, &m.Domain), nil
		case 5:
			return varint(typ, b, &m.ModelVersion), nil
		case 6:
			return str(typ, b, &m.DocString), nil
		case 7:
			m.Graph = &GraphProto{}
			return message(typ, b, func(v []byte) error { return decodeGraph(v, m.Graph) })
		case 8:
			var id OperatorSetID
			n, err := message(typ, b, func(v []byte) error { return decodeOpset(v, &id) })
			m.OpsetImport = append(m.OpsetImport, id)
			return n, err
		case 14:
			var e StringStringEntry
			n, err := message(typ, b, func(v []byte) error { return decodeEntry(v, &e) })
			m.MetadataProps = append(m.MetadataProps, e)
			return n, err
		}
		return 0, nil
	})
}

func decodeOpset(b []byte, id *OperatorSetID) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return str(typ, b, &id.Domain), nil
		case 2:
			return varint(typ, b, &id.Version), nil
		}
		return 0, nil
	})
}

func decodeEntry(b []byte, e *StringStringEntry) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return str(typ, b, &e.Key), nil
		case 2:
			return str(typ, b, &e.Value), nil
		}
		return 0, nil
	})
}

func decodeGraph(b []byte, g *GraphProto) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			var node NodeProto
			n, err := message(typ, b, func(v []byte) error { return decodeNode(v, &node) })
			g.Nodes = append(g.Nodes, node)
			return n, err
		case 2:
			return str(typ, b, &g.Name), nil
		case 5:
			var t TensorProto
			n, err := message(typ, b, func(v []byte) error { return decodeTensor(v, &t) })
			g.Initializers = append(g.Initializers, t)
			return n, err
		case 10:
			return str(typ, b, &g.DocString), nil
		case 11, 12, 13:
			var vi ValueInfoProto
			n, err := message(typ, b, func(v []byte) error { return decodeValueInfo(v, &vi) })
			switch num {
			case 11:
				g.Inputs = append(g.Inputs, vi)
			case 12:
				g.Outputs = append(g.Outputs, vi)
			default:
				g.ValueInfo = append(g.ValueInfo, vi)
			}
			return n, err
		}
		return 0, nil
	})
}

func decodeNode(b []byte, node *NodeProto) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		var s string
		switch num {
		case 1:
			n := str(typ, b, &s)
			if n > 0 {
				node.Inputs = append(node.Inputs, s)
			}
			return n, nil
		case 2:
			n := str(typ, b, &s)
			if n > 0 {
				node.Outputs = append(node.Outputs, s)
			}
			return n, nil
		case 3:
			return str(typ, b, &node.Name), nil
		case 4:
			return str(typ, b, &node.OpType), nil
		case 5:
			var a AttributeProto
			n, err := message(typ, b, func(v []byte) error { return decodeAttribute(v, &a) })
			node.Attributes = append(node.Attributes, a)
			return n, err
		case 6:
			return str(typ, b, &node.DocString), nil
		case 7:
			return str(typ, b, &node.Domain), nil
		}
		return 0, nil
	})
}

func decodeAttribute(b []byte, a *AttributeProto) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return str(typ, b, &a.Name), nil
		case 2:
			if typ != protowire.Fixed32Type {
				return 0, nil
			}
			v, n := protowire.ConsumeFixed32(b)
			a.F = math.Float32frombits(v)
			return n, nil
		case 3:
			return varint(typ, b, &a.I), nil
		case 4:
			return raw(typ, b, &a.S), nil
		case 5:
			a.T = &TensorProto{}
			return message(typ, b, func(v []byte) error { return decodeTensor(v, a.T) })
		case 7:
			return floats(typ, b, &a.Floats), nil
		case 8:
			return varints(typ, b, &a.Ints), nil
		case 9:
			var s []byte
			n := raw(typ, b, &s)
			if n > 0 {
				a.Strings = append(a.Strings, s)
			}
			return n, nil
		case 13:
			return str(typ, b, &a.DocString), nil
		case 20:
			var t int64
			n := varint(typ, b, &t)
			a.Type = int32(t) //nolint:gosec // G115: attribute kinds are small enums.
			return n, nil
		}
		return 0, nil
	})
}

func decodeTensor(b []byte, t *TensorProto) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return varints(typ, b, &t.Dims), nil
		case 2:
			var dt int64
			n := varint(typ, b, &dt)
			t.DataType = int32(dt) //nolint:gosec // G115: element types are small enums.
			return n, nil
		case 4:
			return floats(typ, b, &t.FloatData), nil
		case 5:
			var vs []int64
			n := varints(typ, b, &vs)
			for _, v := range vs {
				t.Int32Data = append(t.Int32Data, int32(v)) //nolint:gosec // G115: int32_data holds int32 values.
			}
			return n, nil
		case 7:
			return varints(typ, b, &t.Int64Data), nil
		case 8:
			return str(typ, b, &t.Name), nil
		case 9:
			return raw(typ, b, &t.RawData), nil
		case 10:
			return doubles(typ, b, &t.DoubleData), nil
		case 12:
			return str(typ, b, &t.DocString), nil
		case 14:
			var location int64
			n := varint(typ, b, &location)
			if location != 0 {
				return n, errors.New("external tensor data is not supported")
			}
			return n, nil
		}
		return 0, nil
	})
}

func decodeValueInfo(b []byte, vi *ValueInfoProto) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return str(typ, b, &vi.Name), nil
		case 2:
			vi.Type = &TypeProto{}
			return message(typ, b, func(v []byte) error { return decodeType(v, vi.Type) })
		case 3:
			return str(typ, b, &vi.DocString), nil
		}
		return 0, nil
	})
}

func decodeType(b []byte, tp *TypeProto) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != 1 {
			return 0, nil
		}
		tp.TensorType = &TensorTypeProto{}
		return message(typ, b, func(v []byte) error { return decodeTensorType(v, tp.TensorType) })
	})
}

func decodeTensorType(b []byte, tt *TensorTypeProto) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			var et int64
			n := varint(typ, b, &et)
			tt.ElemType = int32(et) //nolint:gosec // G115: element types are small enums.
			return n, nil
		case 2:
			tt.Shape = &TensorShapeProto{}
			return message(typ, b, func(v []byte) error {
				return walk(v, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
					if num != 1 {
						return 0, nil
					}
					var d DimensionProto
					n, err := message(typ, b, func(v []byte) error { return decodeDim(v, &d) })
					tt.Shape.Dims = append(tt.Shape.Dims, d)
					return n, err
				})
			})
		}
		return 0, nil
	})
}

func decodeDim(b []byte, d *DimensionProto) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return varint(typ, b, &d.DimValue), nil
		case 2:
			return str(typ, b, &d.DimParam), nil
		}
		return 0, nil
	})
}
