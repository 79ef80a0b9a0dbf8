package tensor

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// reduceGradientToShape sums a broadcast gradient back to the shape of the
// input that was broadcast in the forward pass.
func reduceGradientToShape(grad *Tensor, targetShape []int) (*Tensor, error) {
	if ShapesEqual(grad.Shape, targetShape) {
		return grad, nil
	}

	if calculateNumElements(targetShape) == 1 {
		sum := floats.Sum(grad.Float64s())
		return NewTensor(targetShape, Float64, []float64{sum})
	}

	if len(grad.Shape) == 2 {
		rowSum, err := SumRows(grad)
		if err != nil {
			return nil, fmt.Errorf("failed to sum over broadcast rows: %v", err)
		}
		if calculateNumElements(targetShape) == rowSum.NumElems {
			return rowSum.Reshape(targetShape)
		}
	}

	return nil, newShapeError("reduceGradient", "gradient", targetShape, grad.Shape)
}

// record attaches op as the creator of result when graph recording is on and
// at least one input requires gradients.
func record(op Operation, result *Tensor, inputs ...*Tensor) *Tensor {
	if !IsGradEnabled() {
		return result
	}
	for _, in := range inputs {
		if in.requiresGrad {
			result.requiresGrad = true
			result.creator = op
			break
		}
	}
	return result
}

func expectInputs(op string, inputs []*Tensor, n int) error {
	if len(inputs) != n {
		return fmt.Errorf("%s requires exactly %d inputs, got %d", op, n, len(inputs))
	}
	return nil
}

// AddOp implements the Operation interface for tensor addition
type AddOp struct {
	inputs []*Tensor
}

func (op *AddOp) Inputs() []*Tensor { return op.inputs }

func (op *AddOp) Forward(inputs ...*Tensor) (*Tensor, error) {
	if err := expectInputs("AddOp", inputs, 2); err != nil {
		return nil, err
	}
	op.inputs = inputs
	result, err := Add(inputs[0], inputs[1])
	if err != nil {
		return nil, err
	}
	return record(op, result, inputs...), nil
}

func (op *AddOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	gradA, err := reduceGradientToShape(gradOut, op.inputs[0].Shape)
	if err != nil {
		return nil, fmt.Errorf("failed to reduce gradient for input A: %v", err)
	}
	gradB, err := reduceGradientToShape(gradOut, op.inputs[1].Shape)
	if err != nil {
		return nil, fmt.Errorf("failed to reduce gradient for input B: %v", err)
	}
	return []*Tensor{gradA, gradB}, nil
}

// SubOp implements the Operation interface for tensor subtraction
type SubOp struct {
	inputs []*Tensor
}

func (op *SubOp) Inputs() []*Tensor { return op.inputs }

func (op *SubOp) Forward(inputs ...*Tensor) (*Tensor, error) {
	if err := expectInputs("SubOp", inputs, 2); err != nil {
		return nil, err
	}
	op.inputs = inputs
	result, err := Sub(inputs[0], inputs[1])
	if err != nil {
		return nil, err
	}
	return record(op, result, inputs...), nil
}

func (op *SubOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	gradA, err := reduceGradientToShape(gradOut, op.inputs[0].Shape)
	if err != nil {
		return nil, fmt.Errorf("failed to reduce gradient for input A: %v", err)
	}
	negated, err := Scale(gradOut, -1)
	if err != nil {
		return nil, err
	}
	gradB, err := reduceGradientToShape(negated, op.inputs[1].Shape)
	if err != nil {
		return nil, fmt.Errorf("failed to reduce gradient for input B: %v", err)
	}
	return []*Tensor{gradA, gradB}, nil
}

// MulOp implements the Operation interface for element-wise multiplication
type MulOp struct {
	inputs []*Tensor
}

func (op *MulOp) Inputs() []*Tensor { return op.inputs }

func (op *MulOp) Forward(inputs ...*Tensor) (*Tensor, error) {
	if err := expectInputs("MulOp", inputs, 2); err != nil {
		return nil, err
	}
	op.inputs = inputs
	result, err := Mul(inputs[0], inputs[1])
	if err != nil {
		return nil, err
	}
	return record(op, result, inputs...), nil
}

func (op *MulOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	a, b := op.inputs[0], op.inputs[1]
	grads := make([]*Tensor, 2)

	// d(a*b)/da = b, d(a*b)/db = a
	if a.requiresGrad {
		g, err := Mul(gradOut, b)
		if err != nil {
			return nil, err
		}
		grads[0] = g
	}
	if b.requiresGrad {
		g, err := Mul(gradOut, a)
		if err != nil {
			return nil, err
		}
		if grads[1], err = reduceGradientToShape(g, b.Shape); err != nil {
			return nil, fmt.Errorf("failed to reduce gradient for input B: %v", err)
		}
	}
	return grads, nil
}

// ScaleOp multiplies its input by a constant.
type ScaleOp struct {
	inputs []*Tensor
	factor float64
}

func (op *ScaleOp) Inputs() []*Tensor { return op.inputs }

func (op *ScaleOp) Forward(inputs ...*Tensor) (*Tensor, error) {
	if err := expectInputs("ScaleOp", inputs, 1); err != nil {
		return nil, err
	}
	op.inputs = inputs
	result, err := Scale(inputs[0], op.factor)
	if err != nil {
		return nil, err
	}
	return record(op, result, inputs...), nil
}

func (op *ScaleOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	g, err := Scale(gradOut, op.factor)
	if err != nil {
		return nil, err
	}
	return []*Tensor{g}, nil
}

// MatMulOp implements the Operation interface for matrix multiplication
type MatMulOp struct {
	inputs []*Tensor
}

func (op *MatMulOp) Inputs() []*Tensor { return op.inputs }

func (op *MatMulOp) Forward(inputs ...*Tensor) (*Tensor, error) {
	if err := expectInputs("MatMulOp", inputs, 2); err != nil {
		return nil, err
	}
	op.inputs = inputs
	result, err := MatMul(inputs[0], inputs[1])
	if err != nil {
		return nil, err
	}
	return record(op, result, inputs...), nil
}

func (op *MatMulOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	a, b := op.inputs[0], op.inputs[1]
	grads := make([]*Tensor, 2)

	// C = A @ B: dA = dC @ B^T, dB = A^T @ dC
	if a.requiresGrad {
		bT, err := Transpose(b)
		if err != nil {
			return nil, err
		}
		if grads[0], err = MatMul(gradOut, bT); err != nil {
			return nil, fmt.Errorf("failed to compute gradient for A: %v", err)
		}
	}
	if b.requiresGrad {
		aT, err := Transpose(a)
		if err != nil {
			return nil, err
		}
		if grads[1], err = MatMul(aT, gradOut); err != nil {
			return nil, fmt.Errorf("failed to compute gradient for B: %v", err)
		}
	}
	return grads, nil
}

// ReLUOp implements the Operation interface for ReLU activation
type ReLUOp struct {
	inputs []*Tensor
}

func (op *ReLUOp) Inputs() []*Tensor { return op.inputs }

func (op *ReLUOp) Forward(inputs ...*Tensor) (*Tensor, error) {
	if err := expectInputs("ReLUOp", inputs, 1); err != nil {
		return nil, err
	}
	op.inputs = inputs
	result, err := ReLU(inputs[0])
	if err != nil {
		return nil, err
	}
	return record(op, result, inputs...), nil
}

func (op *ReLUOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	in := op.inputs[0].Float64s()
	g := gradOut.Float64s()
	out := make([]float64, len(in))
	for i, v := range in {
		if v > 0 {
			out[i] = g[i]
		}
	}
	grad, err := NewTensor(gradOut.Shape, Float64, out)
	if err != nil {
		return nil, err
	}
	return []*Tensor{grad}, nil
}

// TanhOp implements the Operation interface for tanh activation
type TanhOp struct {
	inputs []*Tensor
	output *Tensor
}

func (op *TanhOp) Inputs() []*Tensor { return op.inputs }

func (op *TanhOp) Forward(inputs ...*Tensor) (*Tensor, error) {
	if err := expectInputs("TanhOp", inputs, 1); err != nil {
		return nil, err
	}
	op.inputs = inputs
	result, err := Tanh(inputs[0])
	if err != nil {
		return nil, err
	}
	op.output = result
	return record(op, result, inputs...), nil
}

func (op *TanhOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	// d tanh(x)/dx = 1 - tanh(x)^2
	y := op.output.Float64s()
	g := gradOut.Float64s()
	out := make([]float64, len(y))
	for i, v := range y {
		out[i] = g[i] * (1 - v*v)
	}
	grad, err := NewTensor(gradOut.Shape, Float64, out)
	if err != nil {
		return nil, err
	}
	return []*Tensor{grad}, nil
}

// SigmoidOp implements the Operation interface for sigmoid activation
type SigmoidOp struct {
	inputs []*Tensor
	output *Tensor
}

func (op *SigmoidOp) Inputs() []*Tensor { return op.inputs }

func (op *SigmoidOp) Forward(inputs ...*Tensor) (*Tensor, error) {
	if err := expectInputs("SigmoidOp", inputs, 1); err != nil {
		return nil, err
	}
	op.inputs = inputs
	result, err := Sigmoid(inputs[0])
	if err != nil {
		return nil, err
	}
	op.output = result
	return record(op, result, inputs...), nil
}

func (op *SigmoidOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	// d sigmoid(x)/dx = sigmoid(x) * (1 - sigmoid(x))
	y := op.output.Float64s()
	g := gradOut.Float64s()
	out := make([]float64, len(y))
	for i, v := range y {
		out[i] = g[i] * v * (1 - v)
	}
	grad, err := NewTensor(gradOut.Shape, Float64, out)
	if err != nil {
		return nil, err
	}
	return []*Tensor{grad}, nil
}

// LogSoftmaxOp normalizes rows into log-probabilities.
type LogSoftmaxOp struct {
	inputs []*Tensor
	output *Tensor
}

func (op *LogSoftmaxOp) Inputs() []*Tensor { return op.inputs }

func (op *LogSoftmaxOp) Forward(inputs ...*Tensor) (*Tensor, error) {
	if err := expectInputs("LogSoftmaxOp", inputs, 1); err != nil {
		return nil, err
	}
	op.inputs = inputs
	result, err := LogSoftmax(inputs[0])
	if err != nil {
		return nil, err
	}
	op.output = result
	return record(op, result, inputs...), nil
}

func (op *LogSoftmaxOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	// dx_j = g_j - softmax_j * sum_k g_k, per row
	rows, cols := op.output.Shape[0], op.output.Shape[1]
	y := op.output.Float64s()
	g := gradOut.Float64s()
	out := make([]float64, len(y))
	for i := 0; i < rows; i++ {
		gRow := g[i*cols : (i+1)*cols]
		total := floats.Sum(gRow)
		for j := 0; j < cols; j++ {
			idx := i*cols + j
			out[idx] = gRow[j] - math.Exp(y[idx])*total
		}
	}
	grad, err := NewTensor(gradOut.Shape, Float64, out)
	if err != nil {
		return nil, err
	}
	return []*Tensor{grad}, nil
}

// SumOp reduces all elements to a scalar.
type SumOp struct {
	inputs []*Tensor
}

func (op *SumOp) Inputs() []*Tensor { return op.inputs }

func (op *SumOp) Forward(inputs ...*Tensor) (*Tensor, error) {
	if err := expectInputs("SumOp", inputs, 1); err != nil {
		return nil, err
	}
	op.inputs = inputs
	result, err := Sum(inputs[0])
	if err != nil {
		return nil, err
	}
	return record(op, result, inputs...), nil
}

func (op *SumOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	grad, err := NewTensor(op.inputs[0].Shape, Float64, gradOut.Float64s()[0])
	if err != nil {
		return nil, err
	}
	return []*Tensor{grad}, nil
}

// MeanOp averages all elements into a scalar.
type MeanOp struct {
	inputs []*Tensor
}

func (op *MeanOp) Inputs() []*Tensor { return op.inputs }

func (op *MeanOp) Forward(inputs ...*Tensor) (*Tensor, error) {
	if err := expectInputs("MeanOp", inputs, 1); err != nil {
		return nil, err
	}
	op.inputs = inputs
	result, err := Mean(inputs[0])
	if err != nil {
		return nil, err
	}
	return record(op, result, inputs...), nil
}

func (op *MeanOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	in := op.inputs[0]
	grad, err := NewTensor(in.Shape, Float64, gradOut.Float64s()[0]/float64(in.NumElems))
	if err != nil {
		return nil, err
	}
	return []*Tensor{grad}, nil
}

// High-level autograd functions that create and execute operations

// AddAutograd performs addition with automatic differentiation
func AddAutograd(a, b *Tensor) (*Tensor, error) {
	op := &AddOp{}
	return op.Forward(a, b)
}

// SubAutograd performs subtraction with automatic differentiation
func SubAutograd(a, b *Tensor) (*Tensor, error) {
	op := &SubOp{}
	return op.Forward(a, b)
}

// MulAutograd performs element-wise multiplication with automatic differentiation
func MulAutograd(a, b *Tensor) (*Tensor, error) {
	op := &MulOp{}
	return op.Forward(a, b)
}

// ScaleAutograd multiplies by a constant with automatic differentiation
func ScaleAutograd(a *Tensor, factor float64) (*Tensor, error) {
	op := &ScaleOp{factor: factor}
	return op.Forward(a)
}

// MatMulAutograd performs matrix multiplication with automatic differentiation
func MatMulAutograd(a, b *Tensor) (*Tensor, error) {
	op := &MatMulOp{}
	return op.Forward(a, b)
}

// ReLUAutograd performs ReLU activation with automatic differentiation
func ReLUAutograd(a *Tensor) (*Tensor, error) {
	op := &ReLUOp{}
	return op.Forward(a)
}

// TanhAutograd performs tanh activation with automatic differentiation
func TanhAutograd(a *Tensor) (*Tensor, error) {
	op := &TanhOp{}
	return op.Forward(a)
}

// SigmoidAutograd performs Sigmoid activation with automatic differentiation
func SigmoidAutograd(a *Tensor) (*Tensor, error) {
	op := &SigmoidOp{}
	return op.Forward(a)
}

// LogSoftmaxAutograd performs row-wise log-softmax with automatic differentiation
func LogSoftmaxAutograd(a *Tensor) (*Tensor, error) {
	op := &LogSoftmaxOp{}
	return op.Forward(a)
}

// SumAutograd sums all elements with automatic differentiation
func SumAutograd(a *Tensor) (*Tensor, error) {
	op := &SumOp{}
	return op.Forward(a)
}

// MeanAutograd averages all elements with automatic differentiation
func MeanAutograd(a *Tensor) (*Tensor, error) {
	op := &MeanOp{}
	return op.Forward(a)
}
