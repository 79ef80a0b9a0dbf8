package tensor

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// NLLLossOp consumes log-probabilities [batch, classes] and Int32 class
// indices [batch]. The target never receives a gradient.
type NLLLossOp struct {
	inputs    []*Tensor
	reduction string
	labels    []int32
	scale     float64
}

func (op *NLLLossOp) Inputs() []*Tensor { return op.inputs[:1] }

func (op *NLLLossOp) Forward(inputs ...*Tensor) (*Tensor, error) {
	if err := expectInputs("NLLLossOp", inputs, 2); err != nil {
		return nil, err
	}
	logProbs, target := inputs[0], inputs[1]
	if err := checkFloat64("NLLLoss", logProbs); err != nil {
		return nil, err
	}
	if err := check2D("NLLLoss", logProbs); err != nil {
		return nil, err
	}
	labels, err := checkTargets("NLLLoss", logProbs, target)
	if err != nil {
		return nil, err
	}
	scale, err := reductionScale(op.reduction, logProbs.Shape[0])
	if err != nil {
		return nil, err
	}
	op.inputs = inputs
	op.labels = labels
	op.scale = scale

	cols := logProbs.Shape[1]
	data := logProbs.Float64s()
	loss := 0.0
	for i, l := range labels {
		loss -= data[i*cols+int(l)]
	}
	return record(op, FromScalar(loss*scale), logProbs), nil
}

func (op *NLLLossOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	logProbs := op.inputs[0]
	cols := logProbs.Shape[1]
	g := gradOut.Float64s()[0]
	out := make([]float64, logProbs.NumElems)
	for i, l := range op.labels {
		out[i*cols+int(l)] = -g * op.scale
	}
	grad, err := NewTensor(logProbs.Shape, Float64, out)
	if err != nil {
		return nil, err
	}
	return []*Tensor{grad}, nil
}

// CrossEntropyOp fuses log-softmax and negative log-likelihood over raw
// logits [batch, classes]. The fused form stays finite for large logits.
type CrossEntropyOp struct {
	inputs    []*Tensor
	reduction string
	labels    []int32
	scale     float64
	probs     []float64
}

func (op *CrossEntropyOp) Inputs() []*Tensor { return op.inputs[:1] }

func (op *CrossEntropyOp) Forward(inputs ...*Tensor) (*Tensor, error) {
	if err := expectInputs("CrossEntropyOp", inputs, 2); err != nil {
		return nil, err
	}
	logits, target := inputs[0], inputs[1]
	if err := checkFloat64("CrossEntropyLoss", logits); err != nil {
		return nil, err
	}
	if err := check2D("CrossEntropyLoss", logits); err != nil {
		return nil, err
	}
	labels, err := checkTargets("CrossEntropyLoss", logits, target)
	if err != nil {
		return nil, err
	}
	scale, err := reductionScale(op.reduction, logits.Shape[0])
	if err != nil {
		return nil, err
	}
	op.inputs = inputs
	op.labels = labels
	op.scale = scale

	rows, cols := logits.Shape[0], logits.Shape[1]
	data := logits.Float64s()
	op.probs = make([]float64, len(data))
	loss := 0.0
	for i := 0; i < rows; i++ {
		row := data[i*cols : (i+1)*cols]
		lse := floats.LogSumExp(row)
		loss += lse - row[labels[i]]
		for j, v := range row {
			op.probs[i*cols+j] = math.Exp(v - lse)
		}
	}
	return record(op, FromScalar(loss*scale), logits), nil
}

func (op *CrossEntropyOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	logits := op.inputs[0]
	cols := logits.Shape[1]
	g := gradOut.Float64s()[0] * op.scale

	// d/dlogits = softmax - onehot(target)
	out := make([]float64, len(op.probs))
	copy(out, op.probs)
	for i, l := range op.labels {
		out[i*cols+int(l)] -= 1
	}
	floats.Scale(g, out)
	grad, err := NewTensor(logits.Shape, Float64, out)
	if err != nil {
		return nil, err
	}
	return []*Tensor{grad}, nil
}

// MSELossOp averages squared differences between prediction and a Float64
// target of the same shape.
type MSELossOp struct {
	inputs    []*Tensor
	reduction string
	diff      []float64
	scale     float64
}

func (op *MSELossOp) Inputs() []*Tensor { return op.inputs }

func (op *MSELossOp) Forward(inputs ...*Tensor) (*Tensor, error) {
	if err := expectInputs("MSELossOp", inputs, 2); err != nil {
		return nil, err
	}
	pred, target := inputs[0], inputs[1]
	if err := checkFloat64("MSELoss", pred, target); err != nil {
		return nil, err
	}
	if !ShapesEqual(pred.Shape, target.Shape) {
		return nil, newShapeError("MSELoss", "target", pred.Shape, target.Shape)
	}
	scale, err := reductionScale(op.reduction, pred.NumElems)
	if err != nil {
		return nil, err
	}
	op.inputs = inputs
	op.scale = scale

	op.diff = make([]float64, pred.NumElems)
	floats.SubTo(op.diff, pred.Float64s(), target.Float64s())
	loss := floats.Dot(op.diff, op.diff) * scale
	return record(op, FromScalar(loss), inputs...), nil
}

func (op *MSELossOp) Backward(gradOut *Tensor) ([]*Tensor, error) {
	pred, target := op.inputs[0], op.inputs[1]
	g := gradOut.Float64s()[0]
	grads := make([]*Tensor, 2)

	out := make([]float64, len(op.diff))
	floats.ScaleTo(out, 2*op.scale*g, op.diff)
	gp, err := NewTensor(pred.Shape, Float64, out)
	if err != nil {
		return nil, err
	}
	grads[0] = gp

	if target.requiresGrad {
		neg, err := Scale(gp, -1)
		if err != nil {
			return nil, err
		}
		grads[1] = neg
	}
	return grads, nil
}

// NLLLossAutograd computes the negative log-likelihood of class indices.
func NLLLossAutograd(logProbs, target *Tensor, reduction string) (*Tensor, error) {
	op := &NLLLossOp{reduction: reduction}
	return op.Forward(logProbs, target)
}

// CrossEntropyAutograd computes cross entropy directly from logits.
func CrossEntropyAutograd(logits, target *Tensor, reduction string) (*Tensor, error) {
	op := &CrossEntropyOp{reduction: reduction}
	return op.Forward(logits, target)
}

// MSELossAutograd computes the squared error between pred and target.
func MSELossAutograd(pred, target *Tensor, reduction string) (*Tensor, error) {
	op := &MSELossOp{reduction: reduction}
	return op.Forward(pred, target)
}

// LossValue extracts the scalar value of a loss tensor.
func LossValue(loss *Tensor) (float64, error) {
	v, err := loss.Item()
	if err != nil {
		return 0, fmt.Errorf("loss is not a scalar: %v", err)
	}
	return v, nil
}
