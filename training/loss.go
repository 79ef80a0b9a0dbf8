package training

import (
	"fmt"

	"github.com/PotapenkoOleg/PyTorch/layers"
	"github.com/PotapenkoOleg/PyTorch/tensor"
)

// Loss interface defines methods that all loss functions must implement.
// Forward returns a [1] tensor connected to predicted's graph.
type Loss interface {
	Forward(predicted, target *tensor.Tensor) (*tensor.Tensor, error)
	Name() string
}

// MSELoss implements Mean Squared Error loss function
type MSELoss struct {
	reduction string // "mean" or "sum"
}

// NewMSELoss creates a new Mean Squared Error loss function
func NewMSELoss(reduction string) *MSELoss {
	if reduction == "" {
		reduction = "mean"
	}
	return &MSELoss{reduction: reduction}
}

// Forward computes the MSE loss: L = (1/N) * sum((y_pred - y_true)^2)
func (mse *MSELoss) Forward(predicted, target *tensor.Tensor) (*tensor.Tensor, error) {
	return tensor.MSELossAutograd(predicted, target, mse.reduction)
}

func (mse *MSELoss) Name() string { return "MSELoss" }

// CrossEntropyLoss consumes raw logits and applies log-softmax and negative
// log-likelihood as one fused step.
type CrossEntropyLoss struct {
	reduction string
}

// NewCrossEntropyLoss creates a new cross-entropy loss over logits
func NewCrossEntropyLoss(reduction string) *CrossEntropyLoss {
	if reduction == "" {
		reduction = "mean"
	}
	return &CrossEntropyLoss{reduction: reduction}
}

// Forward computes -log softmax(logits)[target] reduced over the batch.
// target holds Int32 class indices.
func (ce *CrossEntropyLoss) Forward(predicted, target *tensor.Tensor) (*tensor.Tensor, error) {
	return tensor.CrossEntropyAutograd(predicted, target, ce.reduction)
}

func (ce *CrossEntropyLoss) Name() string { return "CrossEntropyLoss" }

// NLLLoss consumes log-probabilities, typically from a final LogSoftmax.
type NLLLoss struct {
	reduction string
}

// NewNLLLoss creates a new negative log-likelihood loss
func NewNLLLoss(reduction string) *NLLLoss {
	if reduction == "" {
		reduction = "mean"
	}
	return &NLLLoss{reduction: reduction}
}

// Forward computes -logProbs[target] reduced over the batch.
func (nll *NLLLoss) Forward(predicted, target *tensor.Tensor) (*tensor.Tensor, error) {
	return tensor.NLLLossAutograd(predicted, target, nll.reduction)
}

func (nll *NLLLoss) Name() string { return "NLLLoss" }

// LossForOutput returns the classification loss matching what the model
// emits: CrossEntropyLoss for logits, NLLLoss for log-probabilities.
func LossForOutput(mode layers.OutputMode) (Loss, error) {
	switch mode {
	case layers.OutputLogits:
		return NewCrossEntropyLoss("mean"), nil
	case layers.OutputLogProbs:
		return NewNLLLoss("mean"), nil
	default:
		return nil, fmt.Errorf("unknown output mode %d", mode)
	}
}

// CheckLossPairing rejects losses that would normalize the scores twice or
// not at all. MSELoss is left to the caller.
func CheckLossPairing(mode layers.OutputMode, loss Loss) error {
	switch loss.(type) {
	case *CrossEntropyLoss:
		if mode != layers.OutputLogits {
			return fmt.Errorf("CrossEntropyLoss expects logits but the model emits %s; use NLLLoss", mode)
		}
	case *NLLLoss:
		if mode != layers.OutputLogProbs {
			return fmt.Errorf("NLLLoss expects log-probabilities but the model emits %s; use CrossEntropyLoss", mode)
		}
	case nil:
		return fmt.Errorf("loss is nil")
	}
	return nil
}
