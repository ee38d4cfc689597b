package operators

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/blas/blas64"

	"github.com/born-ml/dnn/internal/parallel"
	"github.com/born-ml/dnn/internal/tensor"
)

// registerMathOps adds math operators to the registry.
func (r *Registry) registerMathOps() {
	r.Register("Add", binaryHandler("Add"))
	r.Register("Sub", binaryHandler("Sub"))
	r.Register("Mul", binaryHandler("Mul"))
	r.Register("Div", binaryHandler("Div"))
	r.Register("Sum", handleSum)
	r.Register("MatMul", handleMatMul)
	r.Register("Gemm", handleGemm)
}

type number interface {
	float32 | float64 | int32 | int64
}

func binaryFunc[T number](op string) func(x, y T) T {
	switch op {
	case "Add":
		return func(x, y T) T { return x + y }
	case "Sub":
		return func(x, y T) T { return x - y }
	case "Mul":
		return func(x, y T) T { return x * y }
	case "Div":
		return func(x, y T) T { return x / y }
	default:
		return nil
	}
}

func binaryHandler(op string) OpHandler {
	return func(ctx *Context, _ *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
		if err := expectInputs(op, inputs, 2); err != nil {
			return nil, err
		}
		return single(binary(ctx.parallelism(), op, inputs[0], inputs[1]))
	}
}

// binary applies op element-wise with NumPy broadcasting.
func binary(cfg parallel.Config, op string, a, b *tensor.RawTensor) (*tensor.RawTensor, error) {
	if a.DType() != b.DType() {
		return nil, fmt.Errorf("%s: mismatched element types %s and %s", op, a.DType(), b.DType())
	}
	switch a.DType() {
	case tensor.Float32:
		return broadcastBinary(cfg, a, b, binaryFunc[float32](op))
	case tensor.Float64:
		return broadcastBinary(cfg, a, b, binaryFunc[float64](op))
	case tensor.Int32:
		if op == "Div" && hasZero(tensor.As[int32](b)) {
			return nil, fmt.Errorf("%s: integer division by zero", op)
		}
		return broadcastBinary(cfg, a, b, binaryFunc[int32](op))
	case tensor.Int64:
		if op == "Div" && hasZero(tensor.As[int64](b)) {
			return nil, fmt.Errorf("%s: integer division by zero", op)
		}
		return broadcastBinary(cfg, a, b, binaryFunc[int64](op))
	default:
		return nil, fmt.Errorf("%s: unsupported element type %s", op, a.DType())
	}
}

func hasZero[T number](values []T) bool {
	for _, v := range values {
		if v == 0 {
			return true
		}
	}
	return false
}

func broadcastBinary[T number](cfg parallel.Config, a, b *tensor.RawTensor, fn func(x, y T) T) (*tensor.RawTensor, error) {
	shape, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		return nil, err
	}
	out, err := tensor.NewRaw(shape, a.DType())
	if err != nil {
		return nil, err
	}

	av, bv, ov := tensor.As[T](a), tensor.As[T](b), tensor.As[T](out)
	if a.Shape().Equal(shape) && b.Shape().Equal(shape) {
		parallel.For(cfg, len(ov), func(start, end int) {
			for i := start; i < end; i++ {
				ov[i] = fn(av[i], bv[i])
			}
		})
		return out, nil
	}

	aStrides, bStrides := a.Strides(), b.Strides()
	parallel.For(cfg, len(ov), func(start, end int) {
		for i := start; i < end; i++ {
			ai := tensor.BroadcastIndex(i, shape, a.Shape(), aStrides)
			bi := tensor.BroadcastIndex(i, shape, b.Shape(), bStrides)
			ov[i] = fn(av[ai], bv[bi])
		}
	})
	return out, nil
}

func handleSum(ctx *Context, _ *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("sum requires at least 1 input")
	}
	if len(inputs) == 1 {
		return []*tensor.RawTensor{inputs[0].Clone()}, nil
	}

	cfg := ctx.parallelism()
	acc, err := binary(cfg, "Add", inputs[0], inputs[1])
	if err != nil {
		return nil, err
	}
	for _, in := range inputs[2:] {
		next, err := binary(cfg, "Add", acc, in)
		acc.Release()
		if err != nil {
			return nil, err
		}
		acc = next
	}
	return []*tensor.RawTensor{acc}, nil
}

// handleMatMul multiplies [..., M, K] by [K, N]. Leading dimensions of the
// left operand are folded into M.
func handleMatMul(_ *Context, _ *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := expectInputs("MatMul", inputs, 2); err != nil {
		return nil, err
	}
	a, b := inputs[0], inputs[1]
	if a.DType() != b.DType() {
		return nil, fmt.Errorf("MatMul: mismatched element types %s and %s", a.DType(), b.DType())
	}

	as, bs := a.Shape(), b.Shape()
	if len(as) < 2 || len(bs) != 2 {
		return nil, fmt.Errorf("MatMul: unsupported shapes %v x %v", as, bs)
	}
	k := as[len(as)-1]
	if bs[0] != k {
		return nil, fmt.Errorf("MatMul: inner dimensions differ: %v x %v", as, bs)
	}
	m, n := a.NumElements()/k, bs[1]

	outShape := as.Clone()
	outShape[len(outShape)-1] = n
	out, err := tensor.NewRaw(outShape, a.DType())
	if err != nil {
		return nil, err
	}
	if err := gemm(false, false, 1, a, m, k, b, k, n, 0, out); err != nil {
		out.Release()
		return nil, fmt.Errorf("MatMul: %w", err)
	}
	return []*tensor.RawTensor{out}, nil
}

// handleGemm implements General Matrix Multiplication: Y = alpha*A'*B' + beta*C.
func handleGemm(_ *Context, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if len(inputs) < 2 || inputs[0] == nil || inputs[1] == nil {
		return nil, fmt.Errorf("Gemm requires at least 2 inputs, got %d", len(inputs))
	}
	a, b := inputs[0], inputs[1]
	if a.DType() != b.DType() {
		return nil, fmt.Errorf("Gemm: mismatched element types %s and %s", a.DType(), b.DType())
	}
	if len(a.Shape()) != 2 || len(b.Shape()) != 2 {
		return nil, fmt.Errorf("Gemm: operands must be matrices, got %v and %v", a.Shape(), b.Shape())
	}

	alpha := GetAttrFloat(node, "alpha", 1.0)
	beta := GetAttrFloat(node, "beta", 1.0)
	transA := GetAttrInt(node, "transA", 0) != 0
	transB := GetAttrInt(node, "transB", 0) != 0

	m, k := a.Shape()[0], a.Shape()[1]
	if transA {
		m, k = k, m
	}
	kb, n := b.Shape()[0], b.Shape()[1]
	if transB {
		kb, n = n, kb
	}
	if k != kb {
		return nil, fmt.Errorf("Gemm: inner dimensions differ: %v x %v", a.Shape(), b.Shape())
	}

	out, err := tensor.NewRaw(tensor.Shape{m, n}, a.DType())
	if err != nil {
		return nil, err
	}

	var c *tensor.RawTensor
	if len(inputs) >= 3 {
		c = inputs[2]
	}
	if c == nil || beta == 0 {
		beta = 0
	} else if err := fillBroadcast(out, c); err != nil {
		out.Release()
		return nil, fmt.Errorf("Gemm: bias: %w", err)
	}

	if err := gemm(transA, transB, alpha, a, a.Shape()[0], a.Shape()[1], b, b.Shape()[0], b.Shape()[1], beta, out); err != nil {
		out.Release()
		return nil, fmt.Errorf("Gemm: %w", err)
	}
	return []*tensor.RawTensor{out}, nil
}

// gemm computes out = alpha*op(a)*op(b) + beta*out with gonum BLAS. The
// row/column counts describe a and b as stored.
func gemm(transA, transB bool, alpha float32, a *tensor.RawTensor, ar, ac int,
	b *tensor.RawTensor, br, bc int, beta float32, out *tensor.RawTensor,
) error {
	ta, tb := blas.NoTrans, blas.NoTrans
	if transA {
		ta = blas.Trans
	}
	if transB {
		tb = blas.Trans
	}
	rows, cols := out.NumElements()/out.Shape()[len(out.Shape())-1], out.Shape()[len(out.Shape())-1]

	switch a.DType() {
	case tensor.Float32:
		blas32.Gemm(ta, tb, alpha,
			blas32.General{Rows: ar, Cols: ac, Stride: ac, Data: a.AsFloat32()},
			blas32.General{Rows: br, Cols: bc, Stride: bc, Data: b.AsFloat32()},
			beta,
			blas32.General{Rows: rows, Cols: cols, Stride: cols, Data: out.AsFloat32()})
	case tensor.Float64:
		blas64.Gemm(ta, tb, float64(alpha),
			blas64.General{Rows: ar, Cols: ac, Stride: ac, Data: a.AsFloat64()},
			blas64.General{Rows: br, Cols: bc, Stride: bc, Data: b.AsFloat64()},
			float64(beta),
			blas64.General{Rows: rows, Cols: cols, Stride: cols, Data: out.AsFloat64()})
	default:
		return fmt.Errorf("unsupported element type %s", a.DType())
	}
	return nil
}

// fillBroadcast writes src broadcast to dst's shape into dst.
func fillBroadcast(dst, src *tensor.RawTensor) error {
	if dst.DType() != src.DType() {
		return fmt.Errorf("mismatched element types %s and %s", dst.DType(), src.DType())
	}
	shape, err := tensor.BroadcastShapes(dst.Shape(), src.Shape())
	if err != nil {
		return err
	}
	if !shape.Equal(dst.Shape()) {
		return fmt.Errorf("cannot broadcast %v to %v", src.Shape(), dst.Shape())
	}
	switch dst.DType() {
	case tensor.Float32:
		fillBroadcastTyped[float32](dst, src)
	case tensor.Float64:
		fillBroadcastTyped[float64](dst, src)
	default:
		return fmt.Errorf("unsupported element type %s", dst.DType())
	}
	return nil
}

func fillBroadcastTyped[T number](dst, src *tensor.RawTensor) {
	dv, sv := tensor.As[T](dst), tensor.As[T](src)
	for i := range dv {
		dv[i] = sv[tensor.BroadcastIndex(i, dst.Shape(), src.Shape(), src.Strides())]
	}
}
