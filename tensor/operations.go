package tensor

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

func checkFloat64(op string, tensors ...*Tensor) error {
	for i, t := range tensors {
		if t == nil {
			return fmt.Errorf("%s: input %d is nil", op, i)
		}
		if t.DType != Float64 {
			return fmt.Errorf("%s: input %d has dtype %s, expected Float64", op, i, t.DType)
		}
	}
	return nil
}

// broadcastKind classifies how b is combined with a in an element-wise op.
type broadcastKind int

const (
	broadcastNone broadcastKind = iota // identical shapes
	broadcastScalar                    // b has a single element
	broadcastRow                       // a is [m, n], b is [n] or [1, n]
)

func checkShapesCompatible(op string, a, b *Tensor) (broadcastKind, error) {
	if ShapesEqual(a.Shape, b.Shape) {
		return broadcastNone, nil
	}
	if b.NumElems == 1 {
		return broadcastScalar, nil
	}
	if len(a.Shape) == 2 {
		n := a.Shape[1]
		if (len(b.Shape) == 1 && b.Shape[0] == n) || (len(b.Shape) == 2 && b.Shape[0] == 1 && b.Shape[1] == n) {
			return broadcastRow, nil
		}
	}
	return 0, newShapeError(op, "rhs", a.Shape, b.Shape)
}

// elementwise applies fn over a and a broadcast view of b.
func elementwise(op string, a, b *Tensor, fn func(x, y float64) float64) (*Tensor, error) {
	if err := checkFloat64(op, a, b); err != nil {
		return nil, err
	}
	kind, err := checkShapesCompatible(op, a, b)
	if err != nil {
		return nil, err
	}

	ad, bd := a.Float64s(), b.Float64s()
	out := make([]float64, a.NumElems)
	switch kind {
	case broadcastNone:
		for i := range out {
			out[i] = fn(ad[i], bd[i])
		}
	case broadcastScalar:
		s := bd[0]
		for i := range out {
			out[i] = fn(ad[i], s)
		}
	case broadcastRow:
		n := len(bd)
		for i := range out {
			out[i] = fn(ad[i], bd[i%n])
		}
	}
	return NewTensor(a.Shape, Float64, out)
}

// Add computes a + b; b may be a scalar or a row vector broadcast over a's rows.
func Add(a, b *Tensor) (*Tensor, error) {
	return elementwise("Add", a, b, func(x, y float64) float64 { return x + y })
}

func Sub(a, b *Tensor) (*Tensor, error) {
	return elementwise("Sub", a, b, func(x, y float64) float64 { return x - y })
}

func Mul(a, b *Tensor) (*Tensor, error) {
	return elementwise("Mul", a, b, func(x, y float64) float64 { return x * y })
}

func Scale(a *Tensor, s float64) (*Tensor, error) {
	if err := checkFloat64("Scale", a); err != nil {
		return nil, err
	}
	out := append([]float64(nil), a.Float64s()...)
	floats.Scale(s, out)
	return NewTensor(a.Shape, Float64, out)
}

func mapFloat64(op string, a *Tensor, fn func(float64) float64) (*Tensor, error) {
	if err := checkFloat64(op, a); err != nil {
		return nil, err
	}
	in := a.Float64s()
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = fn(v)
	}
	return NewTensor(a.Shape, Float64, out)
}

func ReLU(a *Tensor) (*Tensor, error) {
	return mapFloat64("ReLU", a, func(v float64) float64 {
		if v > 0 {
			return v
		}
		return 0
	})
}

func Tanh(a *Tensor) (*Tensor, error) {
	return mapFloat64("Tanh", a, math.Tanh)
}

func Sigmoid(a *Tensor) (*Tensor, error) {
	return mapFloat64("Sigmoid", a, func(v float64) float64 {
		return 1.0 / (1.0 + math.Exp(-v))
	})
}

func Exp(a *Tensor) (*Tensor, error) {
	return mapFloat64("Exp", a, math.Exp)
}

func check2D(op string, a *Tensor) error {
	if len(a.Shape) != 2 {
		return newShapeError(op, "rank", []int{2}, []int{len(a.Shape)})
	}
	return nil
}

// LogSoftmax normalizes each row of a [batch, classes] tensor into
// log-probabilities using the max-shifted log-sum-exp.
func LogSoftmax(a *Tensor) (*Tensor, error) {
	if err := checkFloat64("LogSoftmax", a); err != nil {
		return nil, err
	}
	if err := check2D("LogSoftmax", a); err != nil {
		return nil, err
	}
	rows, cols := a.Shape[0], a.Shape[1]
	in := a.Float64s()
	out := make([]float64, len(in))
	for i := 0; i < rows; i++ {
		row := in[i*cols : (i+1)*cols]
		lse := floats.LogSumExp(row)
		for j, v := range row {
			out[i*cols+j] = v - lse
		}
	}
	return NewTensor(a.Shape, Float64, out)
}

// Softmax returns row-wise probabilities. Losses never consume its output.
func Softmax(a *Tensor) (*Tensor, error) {
	logp, err := LogSoftmax(a)
	if err != nil {
		return nil, err
	}
	return Exp(logp)
}

// Sum reduces every element into a [1] tensor.
func Sum(a *Tensor) (*Tensor, error) {
	if err := checkFloat64("Sum", a); err != nil {
		return nil, err
	}
	return FromScalar(floats.Sum(a.Float64s())), nil
}

func Mean(a *Tensor) (*Tensor, error) {
	if err := checkFloat64("Mean", a); err != nil {
		return nil, err
	}
	return FromScalar(floats.Sum(a.Float64s()) / float64(a.NumElems)), nil
}

// SumRows sums a [m, n] tensor over its first dimension into [n].
func SumRows(a *Tensor) (*Tensor, error) {
	if err := checkFloat64("SumRows", a); err != nil {
		return nil, err
	}
	if err := check2D("SumRows", a); err != nil {
		return nil, err
	}
	rows, cols := a.Shape[0], a.Shape[1]
	in := a.Float64s()
	out := make([]float64, cols)
	for i := 0; i < rows; i++ {
		floats.Add(out, in[i*cols:(i+1)*cols])
	}
	return NewTensor([]int{cols}, Float64, out)
}

// ArgMax returns the index of the largest value of every row.
func ArgMax(a *Tensor) ([]int, error) {
	if err := checkFloat64("ArgMax", a); err != nil {
		return nil, err
	}
	if err := check2D("ArgMax", a); err != nil {
		return nil, err
	}
	rows, cols := a.Shape[0], a.Shape[1]
	in := a.Float64s()
	out := make([]int, rows)
	for i := 0; i < rows; i++ {
		out[i] = floats.MaxIdx(in[i*cols : (i+1)*cols])
	}
	return out, nil
}

// checkTargets validates class indices against a [batch, classes] input.
func checkTargets(op string, input, target *Tensor) ([]int32, error) {
	if target == nil || target.DType != Int32 {
		return nil, fmt.Errorf("%s: target must be an Int32 tensor of class indices", op)
	}
	if len(target.Shape) != 1 || target.Shape[0] != input.Shape[0] {
		return nil, newShapeError(op, "target", []int{input.Shape[0]}, target.Shape)
	}
	classes := input.Shape[1]
	labels := target.Data.([]int32)
	for i, l := range labels {
		if l < 0 || int(l) >= classes {
			return nil, fmt.Errorf("%s: target %d at index %d out of range [0, %d)", op, l, i, classes)
		}
	}
	return labels, nil
}

func reductionScale(reduction string, n int) (float64, error) {
	switch reduction {
	case "", "mean":
		return 1.0 / float64(n), nil
	case "sum":
		return 1.0, nil
	default:
		return 0, fmt.Errorf("unsupported reduction %q", reduction)
	}
}
