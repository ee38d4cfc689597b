package operators

import (
	"fmt"
	"math"

	"github.com/born-ml/dnn/internal/parallel"
	"github.com/born-ml/dnn/internal/tensor"
)

// registerActivations adds element-wise unary operators to the registry.
func (r *Registry) registerActivations() {
	r.Register("Relu", unaryHandler("Relu", func(x float64) float64 { return math.Max(x, 0) }))
	r.Register("Sigmoid", unaryHandler("Sigmoid", func(x float64) float64 { return 1 / (1 + math.Exp(-x)) }))
	r.Register("Tanh", unaryHandler("Tanh", math.Tanh))
	r.Register("Exp", unaryHandler("Exp", math.Exp))
	r.Register("Log", unaryHandler("Log", math.Log))
	r.Register("Sqrt", unaryHandler("Sqrt", math.Sqrt))
	r.Register("Neg", unaryHandler("Neg", func(x float64) float64 { return -x }))
	r.Register("Abs", unaryHandler("Abs", math.Abs))
	r.Register("LeakyRelu", handleLeakyRelu)
	r.Register("Softmax", handleSoftmax)
}

type float interface {
	float32 | float64
}

func unaryHandler(op string, fn func(float64) float64) OpHandler {
	return func(ctx *Context, _ *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
		if err := expectInputs(op, inputs, 1); err != nil {
			return nil, err
		}
		return single(unary(ctx.parallelism(), op, inputs[0], fn))
	}
}

func unary(cfg parallel.Config, op string, x *tensor.RawTensor, fn func(float64) float64) (*tensor.RawTensor, error) {
	out, err := tensor.NewRaw(x.Shape(), x.DType())
	if err != nil {
		return nil, err
	}
	switch x.DType() {
	case tensor.Float32:
		mapFloat[float32](cfg, x, out, fn)
	case tensor.Float64:
		mapFloat[float64](cfg, x, out, fn)
	default:
		out.Release()
		return nil, fmt.Errorf("%s: unsupported element type %s", op, x.DType())
	}
	return out, nil
}

func mapFloat[T float](cfg parallel.Config, x, out *tensor.RawTensor, fn func(float64) float64) {
	xv, ov := tensor.As[T](x), tensor.As[T](out)
	parallel.For(cfg, len(xv), func(start, end int) {
		for i := start; i < end; i++ {
			ov[i] = T(fn(float64(xv[i])))
		}
	})
}

func handleLeakyRelu(ctx *Context, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := expectInputs("LeakyRelu", inputs, 1); err != nil {
		return nil, err
	}
	alpha := float64(GetAttrFloat(node, "alpha", 0.01))
	return single(unary(ctx.parallelism(), "LeakyRelu", inputs[0], func(x float64) float64 {
		if x < 0 {
			return alpha * x
		}
		return x
	}))
}

// handleSoftmax normalizes along axis (default -1). Before opset 13 the input
// is coerced to 2D at axis (default 1) and normalized over the trailing block.
func handleSoftmax(ctx *Context, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := expectInputs("Softmax", inputs, 1); err != nil {
		return nil, err
	}
	x := inputs[0]
	legacy := ctx != nil && ctx.Opset > 0 && ctx.Opset < 13
	defaultAxis := int64(-1)
	if legacy {
		defaultAxis = 1
	}
	axis, err := normalizeAxis(int(GetAttrInt(node, "axis", defaultAxis)), len(x.Shape()))
	if err != nil {
		return nil, fmt.Errorf("Softmax: %w", err)
	}

	shape := x.Shape()
	n, inner := shape[axis], 1
	for _, d := range shape[axis+1:] {
		inner *= d
	}
	if legacy {
		n, inner = n*inner, 1
	}

	out, err := tensor.NewRaw(x.Shape(), x.DType())
	if err != nil {
		return nil, err
	}
	switch x.DType() {
	case tensor.Float32:
		softmax[float32](x, out, n, inner)
	case tensor.Float64:
		softmax[float64](x, out, n, inner)
	default:
		out.Release()
		return nil, fmt.Errorf("Softmax: unsupported element type %s", x.DType())
	}
	return []*tensor.RawTensor{out}, nil
}

// softmax normalizes groups of n elements spaced inner apart.
func softmax[T float](x, out *tensor.RawTensor, n, inner int) {
	outer := x.NumElements() / (n * inner)

	xv, ov := tensor.As[T](x), tensor.As[T](out)
	for o := 0; o < outer; o++ {
		for in := 0; in < inner; in++ {
			base := o*n*inner + in
			maxV := math.Inf(-1)
			for j := 0; j < n; j++ {
				maxV = math.Max(maxV, float64(xv[base+j*inner]))
			}
			sum := 0.0
			for j := 0; j < n; j++ {
				e := math.Exp(float64(xv[base+j*inner]) - maxV)
				ov[base+j*inner] = T(e)
				sum += e
			}
			for j := 0; j < n; j++ {
				ov[base+j*inner] = T(float64(ov[base+j*inner]) / sum)
			}
		}
	}
}

func normalizeAxis(axis, rank int) (int, error) {
	if axis < 0 {
		axis += rank
	}
	if axis < 0 || axis >= rank {
		return 0, fmt.Errorf("axis %d out of range for rank %d", axis, rank)
	}
	return axis, nil
}
