package tensor

import (
	"gonum.org/v1/gonum/mat"
)

// asDense views a 2-D Float64 tensor as a gonum matrix without copying.
func asDense(t *Tensor) *mat.Dense {
	return mat.NewDense(t.Shape[0], t.Shape[1], t.Float64s())
}

// MatMul multiplies [m, k] by [k, n].
func MatMul(a, b *Tensor) (*Tensor, error) {
	if err := checkFloat64("MatMul", a, b); err != nil {
		return nil, err
	}
	if err := check2D("MatMul", a); err != nil {
		return nil, err
	}
	if err := check2D("MatMul", b); err != nil {
		return nil, err
	}
	if a.Shape[1] != b.Shape[0] {
		return nil, newShapeError("MatMul", "rhs rows", []int{a.Shape[1], b.Shape[1]}, b.Shape)
	}

	m, n := a.Shape[0], b.Shape[1]
	out := make([]float64, m*n)
	mat.NewDense(m, n, out).Mul(asDense(a), asDense(b))
	return NewTensor([]int{m, n}, Float64, out)
}

// Transpose swaps the two dimensions of a 2-D tensor.
func Transpose(a *Tensor) (*Tensor, error) {
	if err := checkFloat64("Transpose", a); err != nil {
		return nil, err
	}
	if err := check2D("Transpose", a); err != nil {
		return nil, err
	}
	rows, cols := a.Shape[0], a.Shape[1]
	out := make([]float64, rows*cols)
	mat.NewDense(cols, rows, out).Copy(asDense(a).T())
	return NewTensor([]int{cols, rows}, Float64, out)
}
