package onnx

import (
	"encoding/binary"

	bfloat16 "github.com/d4l3k/go-bfloat16"
	"github.com/pkg/errors"
	"github.com/x448/float16"

	"github.com/born-ml/dnn/internal/onnx/operators"
	"github.com/born-ml/dnn/internal/tensor"
)

// tensorFromProto materializes a serialized tensor. Half-precision data is
// widened to float32.
func tensorFromProto(p *TensorProto) (*tensor.RawTensor, error) {
	shape := make(tensor.Shape, len(p.Dims))
	for i, d := range p.Dims {
		shape[i] = int(d)
	}
	dtype, ok := operators.DataTypeFromProto(p.DataType)
	if !ok {
		return nil, errors.Errorf("tensor %q: unsupported element type %d", p.Name, p.DataType)
	}
	t, err := tensor.NewRaw(shape, dtype)
	if err != nil {
		return nil, errors.Wrapf(err, "tensor %q", p.Name)
	}

	n := t.NumElements()
	switch {
	case p.DataType == TensorProtoFloat16:
		err = decodeHalf(p, t.AsFloat32(), func(bits uint16) float32 {
			return float16.Frombits(bits).Float32()
		})
	case p.DataType == TensorProtoBfloat16:
		if len(p.RawData) > 0 {
			if len(p.RawData) != 2*n {
				err = errors.Errorf("bfloat16 payload has %d bytes, want %d", len(p.RawData), 2*n)
				break
			}
			copy(t.AsFloat32(), bfloat16.DecodeFloat32(p.RawData))
			break
		}
		err = decodeHalf(p, t.AsFloat32(), func(bits uint16) float32 {
			var b [2]byte
			binary.LittleEndian.PutUint16(b[:], bits)
			return bfloat16.DecodeFloat32(b[:])[0]
		})
	case len(p.RawData) > 0:
		if len(p.RawData) != t.ByteSize() {
			err = errors.Errorf("raw payload has %d bytes, want %d", len(p.RawData), t.ByteSize())
			break
		}
		copy(t.Data(), p.RawData)
	case len(p.FloatData) > 0 && dtype == tensor.Float32:
		err = fill(t.AsFloat32(), p.FloatData)
	case len(p.DoubleData) > 0 && dtype == tensor.Float64:
		err = fill(t.AsFloat64(), p.DoubleData)
	case len(p.Int64Data) > 0 && dtype == tensor.Int64:
		err = fill(t.AsInt64(), p.Int64Data)
	case len(p.Int32Data) > 0 && dtype == tensor.Int32:
		err = fill(t.AsInt32(), p.Int32Data)
	case len(p.Int32Data) > 0 && dtype == tensor.Uint8:
		err = fillFromInt32(tensor.As[uint8](t), p.Int32Data, func(v int32) uint8 { return uint8(v) }) //nolint:gosec // G115: uint8 payloads travel as int32.
	case len(p.Int32Data) > 0 && dtype == tensor.Bool:
		err = fillFromInt32(tensor.As[bool](t), p.Int32Data, func(v int32) bool { return v != 0 })
	case n > 0:
		err = errors.New("no payload")
	}
	if err != nil {
		t.Release()
		return nil, errors.Wrapf(err, "tensor %q", p.Name)
	}
	return t, nil
}

func fill[T tensor.DType](dst, src []T) error {
	if len(src) != len(dst) {
		return errors.Errorf("payload has %d elements, want %d", len(src), len(dst))
	}
	copy(dst, src)
	return nil
}

func fillFromInt32[T tensor.DType](dst []T, src []int32, conv func(int32) T) error {
	if len(src) != len(dst) {
		return errors.Errorf("payload has %d elements, want %d", len(src), len(dst))
	}
	for i, v := range src {
		dst[i] = conv(v)
	}
	return nil
}

// decodeHalf widens 16-bit payloads stored either as raw little-endian bytes
// or one value per int32_data entry.
func decodeHalf(p *TensorProto, dst []float32, widen func(uint16) float32) error {
	if len(p.RawData) > 0 {
		if len(p.RawData) != 2*len(dst) {
			return errors.Errorf("half payload has %d bytes, want %d", len(p.RawData), 2*len(dst))
		}
		for i := range dst {
			dst[i] = widen(binary.LittleEndian.Uint16(p.RawData[2*i:]))
		}
		return nil
	}
	if len(p.Int32Data) != len(dst) {
		return errors.Errorf("half payload has %d elements, want %d", len(p.Int32Data), len(dst))
	}
	for i, v := range p.Int32Data {
		dst[i] = widen(uint16(v)) //nolint:gosec // G115: half bits are stored in the low 16 bits.
	}
	return nil
}

// TensorToProto serializes t as a named tensor with a raw payload.
func TensorToProto(name string, t *tensor.RawTensor) TensorProto {
	dims := make([]int64, len(t.Shape()))
	for i, d := range t.Shape() {
		dims[i] = int64(d)
	}
	return TensorProto{
		Name:     name,
		Dims:     dims,
		DataType: operators.DataTypeToProto(t.DType()),
		RawData:  append([]byte(nil), t.Data()...),
	}
}
