package operators

import (
	"fmt"

	"github.com/born-ml/dnn/internal/tensor"
)

// registerShapeOps adds shape manipulation operators to the registry.
func (r *Registry) registerShapeOps() {
	r.Register("Identity", handleIdentity)
	r.Register("Dropout", handleIdentity)
	r.Register("Reshape", handleReshape)
	r.Register("Flatten", handleFlatten)
	r.Register("Transpose", handleTranspose)
}

// handleIdentity returns a new reference to its input (Dropout is identity at inference).
func handleIdentity(_ *Context, _ *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if len(inputs) < 1 || inputs[0] == nil {
		return nil, fmt.Errorf("identity requires 1 input, got %d", len(inputs))
	}
	return []*tensor.RawTensor{inputs[0].Clone()}, nil
}

func handleReshape(ctx *Context, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if len(inputs) < 1 || inputs[0] == nil {
		return nil, fmt.Errorf("reshape requires a data input")
	}
	x := inputs[0]

	var spec []int64
	switch {
	case len(inputs) >= 2 && inputs[1] != nil:
		if inputs[1].DType() != tensor.Int64 {
			return nil, fmt.Errorf("reshape: shape input must be int64, got %s", inputs[1].DType())
		}
		spec = inputs[1].AsInt64()
	case ctx != nil && ctx.Opset > 0 && ctx.Opset < 5:
		spec = GetAttrInts(node, "shape")
	default:
		return nil, fmt.Errorf("reshape requires 2 inputs (data, shape), got %d", len(inputs))
	}

	shape, err := resolveShape(x.Shape(), spec)
	if err != nil {
		return nil, fmt.Errorf("reshape: %w", err)
	}
	return single(x.Reshaped(shape))
}

// resolveShape expands the ONNX reshape conventions: 0 copies the input
// dimension at that position, -1 is inferred from the element count.
func resolveShape(in tensor.Shape, spec []int64) (tensor.Shape, error) {
	out := make(tensor.Shape, len(spec))
	infer := -1
	known := 1
	for i, v := range spec {
		switch {
		case v == 0:
			if i >= len(in) {
				return nil, fmt.Errorf("dimension %d copies a missing input dimension", i)
			}
			out[i] = in[i]
		case v == -1:
			if infer >= 0 {
				return nil, fmt.Errorf("more than one inferred dimension in %v", spec)
			}
			infer = i
			continue
		case v < 0:
			return nil, fmt.Errorf("invalid dimension %d", v)
		default:
			out[i] = int(v)
		}
		known *= out[i]
	}
	if infer >= 0 {
		if known == 0 || in.NumElements()%known != 0 {
			return nil, fmt.Errorf("cannot infer dimension of %v from %v", spec, in)
		}
		out[infer] = in.NumElements() / known
	}
	return out, nil
}

func handleFlatten(_ *Context, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := expectInputs("Flatten", inputs, 1); err != nil {
		return nil, err
	}
	x := inputs[0]
	rank := len(x.Shape())
	axis := int(GetAttrInt(node, "axis", 1))
	if axis < 0 {
		axis += rank
	}
	if axis < 0 || axis > rank {
		return nil, fmt.Errorf("Flatten: axis %d out of range for rank %d", axis, rank)
	}
	outer := x.Shape()[:axis].NumElements()
	return single(x.Reshaped(tensor.Shape{outer, x.NumElements() / outer}))
}

func handleTranspose(_ *Context, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := expectInputs("Transpose", inputs, 1); err != nil {
		return nil, err
	}
	x := inputs[0]
	rank := len(x.Shape())

	perm := make([]int, rank)
	if attr := GetAttrInts(node, "perm"); len(attr) > 0 {
		if len(attr) != rank {
			return nil, fmt.Errorf("Transpose: perm %v does not match rank %d", attr, rank)
		}
		seen := make([]bool, rank)
		for i, p := range attr {
			if p < 0 || int(p) >= rank || seen[p] {
				return nil, fmt.Errorf("Transpose: invalid perm %v", attr)
			}
			seen[p] = true
			perm[i] = int(p)
		}
	} else {
		for i := range perm {
			perm[i] = rank - 1 - i
		}
	}

	outShape := make(tensor.Shape, rank)
	for i, p := range perm {
		outShape[i] = x.Shape()[p]
	}
	out, err := tensor.NewRaw(outShape, x.DType())
	if err != nil {
		return nil, err
	}

	size := x.DType().Size()
	src, dst := x.Data(), out.Data()
	inStrides := x.Strides()
	for i := 0; i < out.NumElements(); i++ {
		rem, srcIdx := i, 0
		for d := rank - 1; d >= 0; d-- {
			coord := rem % outShape[d]
			rem /= outShape[d]
			srcIdx += coord * inStrides[perm[d]]
		}
		copy(dst[i*size:(i+1)*size], src[srcIdx*size:(srcIdx+1)*size])
	}
	return []*tensor.RawTensor{out}, nil
}
