package operators

import (
	"fmt"

	"github.com/born-ml/dnn/internal/tensor"
)

// registerUtilityOps adds constants, casts and reductions to the registry.
func (r *Registry) registerUtilityOps() {
	r.Register("Constant", handleConstant)
	r.Register("Cast", handleCast)
	r.Register("ReduceSum", reduceHandler("ReduceSum", false))
	r.Register("ReduceMean", reduceHandler("ReduceMean", true))
}

func handleConstant(_ *Context, node *Node, _ []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if t := GetAttrTensor(node, "value"); t != nil {
		return []*tensor.RawTensor{t.Clone()}, nil
	}
	if a := node.attr("value_float"); a != nil {
		return single(tensor.FromSlice([]float32{a.F}, tensor.Shape{}))
	}
	if a := node.attr("value_floats"); a != nil {
		return single(tensor.FromSlice(a.Floats, tensor.Shape{len(a.Floats)}))
	}
	if a := node.attr("value_int"); a != nil {
		return single(tensor.FromSlice([]int64{a.I}, tensor.Shape{}))
	}
	if a := node.attr("value_ints"); a != nil {
		return single(tensor.FromSlice(a.Ints, tensor.Shape{len(a.Ints)}))
	}
	return nil, fmt.Errorf("constant %q has no supported value attribute", node.Name)
}

func handleCast(_ *Context, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := expectInputs("Cast", inputs, 1); err != nil {
		return nil, err
	}
	to := int32(GetAttrInt(node, "to", TensorProtoUndefined)) //nolint:gosec // G115: ONNX type ids fit in int32.
	dt, ok := DataTypeFromProto(to)
	if !ok {
		return nil, fmt.Errorf("Cast: unsupported target type %d", to)
	}
	return single(Convert(inputs[0], dt))
}

// Convert returns a copy of x with elements converted to dt.
func Convert(x *tensor.RawTensor, dt tensor.DataType) (*tensor.RawTensor, error) {
	if x.DType() == dt {
		return x.Copy(), nil
	}
	out, err := tensor.NewRaw(x.Shape(), dt)
	if err != nil {
		return nil, err
	}
	src := toFloat64(x)
	if src == nil {
		out.Release()
		return nil, fmt.Errorf("cannot convert from %s", x.DType())
	}
	switch dt {
	case tensor.Float32:
		fromFloat64(src, out.AsFloat32())
	case tensor.Float64:
		copy(out.AsFloat64(), src)
	case tensor.Int32:
		fromFloat64(src, out.AsInt32())
	case tensor.Int64:
		fromFloat64(src, out.AsInt64())
	case tensor.Uint8:
		fromFloat64(src, tensor.As[uint8](out))
	case tensor.Bool:
		dst := tensor.As[bool](out)
		for i, v := range src {
			dst[i] = v != 0
		}
	default:
		out.Release()
		return nil, fmt.Errorf("cannot convert to %s", dt)
	}
	return out, nil
}

func toFloat64(x *tensor.RawTensor) []float64 {
	out := make([]float64, x.NumElements())
	switch x.DType() {
	case tensor.Float32:
		widen(x.AsFloat32(), out)
	case tensor.Float64:
		copy(out, x.AsFloat64())
	case tensor.Int32:
		widen(x.AsInt32(), out)
	case tensor.Int64:
		widen(x.AsInt64(), out)
	case tensor.Uint8:
		widen(tensor.As[uint8](x), out)
	case tensor.Bool:
		for i, v := range tensor.As[bool](x) {
			if v {
				out[i] = 1
			}
		}
	default:
		return nil
	}
	return out
}

func widen[T number | ~uint8](src []T, dst []float64) {
	for i, v := range src {
		dst[i] = float64(v)
	}
}

func fromFloat64[T number | ~uint8](src []float64, dst []T) {
	for i, v := range src {
		dst[i] = T(v)
	}
}

// reduceHandler builds ReduceSum/ReduceMean. Axes come from the second input
// when present, otherwise from the "axes" attribute; no axes reduces all.
func reduceHandler(op string, mean bool) OpHandler {
	return func(_ *Context, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
		if len(inputs) < 1 || inputs[0] == nil {
			return nil, fmt.Errorf("%s requires a data input", op)
		}
		x := inputs[0]
		rank := len(x.Shape())

		axes := GetAttrInts(node, "axes")
		if len(inputs) >= 2 && inputs[1] != nil {
			if inputs[1].DType() != tensor.Int64 {
				return nil, fmt.Errorf("%s: axes input must be int64", op)
			}
			axes = inputs[1].AsInt64()
		}
		keepDims := GetAttrInt(node, "keepdims", 1) != 0

		reduced := make([]bool, rank)
		if len(axes) == 0 {
			for i := range reduced {
				reduced[i] = true
			}
		}
		for _, a := range axes {
			axis, err := normalizeAxis(int(a), rank)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			reduced[axis] = true
		}

		var outShape, keptShape tensor.Shape
		count := 1
		for d, dim := range x.Shape() {
			if reduced[d] {
				count *= dim
				keptShape = append(keptShape, 1)
				if keepDims {
					outShape = append(outShape, 1)
				}
				continue
			}
			keptShape = append(keptShape, dim)
			outShape = append(outShape, dim)
		}

		out, err := tensor.NewRaw(outShape, x.DType())
		if err != nil {
			return nil, err
		}
		switch x.DType() {
		case tensor.Float32:
			reduce[float32](x, out, keptShape, count, mean)
		case tensor.Float64:
			reduce[float64](x, out, keptShape, count, mean)
		default:
			out.Release()
			return nil, fmt.Errorf("%s: unsupported element type %s", op, x.DType())
		}
		return []*tensor.RawTensor{out}, nil
	}
}

// reduce accumulates every element of x into the output position obtained by
// collapsing reduced dimensions to 1 (kept has rank(x) with 1 at reduced axes).
func reduce[T float](x, out *tensor.RawTensor, kept tensor.Shape, count int, mean bool) {
	xv, ov := tensor.As[T](x), tensor.As[T](out)
	shape := x.Shape()
	keptStrides := kept.ComputeStrides()
	acc := make([]float64, len(ov))
	for i, v := range xv {
		rem, idx := i, 0
		for d := len(shape) - 1; d >= 0; d-- {
			coord := rem % shape[d]
			rem /= shape[d]
			if kept[d] != 1 {
				idx += coord * keptStrides[d]
			}
		}
		acc[idx] += float64(v)
	}
	for i, v := range acc {
		if mean {
			v /= float64(count)
		}
		ov[i] = T(v)
	}
}
