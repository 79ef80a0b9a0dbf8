package training

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/PotapenkoOleg/PyTorch/layers"
	"github.com/PotapenkoOleg/PyTorch/tensor"
)

// Module interface defines methods that all neural network layers must implement
type Module interface {
	Forward(input *tensor.Tensor) (*tensor.Tensor, error)
	Parameters() []*tensor.Tensor // Returns trainable parameters (tensors with requiresGrad=true)
	Train()                       // Sets module to training mode
	Eval()                        // Sets module to evaluation mode
	IsTraining() bool             // Returns true if in training mode
}

// Linear implements a fully connected (dense) layer: y = xW + b
type Linear struct {
	weight   *tensor.Tensor
	bias     *tensor.Tensor
	training bool
}

// NewLinear creates a new Linear layer with Xavier-uniform weights drawn from
// rng and a zero bias.
func NewLinear(inputSize, outputSize int, rng *rand.Rand) (*Linear, error) {
	if inputSize <= 0 || outputSize <= 0 {
		return nil, fmt.Errorf("linear layer sizes must be positive, got %dx%d", inputSize, outputSize)
	}

	// W ~ U(-sqrt(6/(fan_in + fan_out)), sqrt(6/(fan_in + fan_out)))
	bound := math.Sqrt(6.0 / float64(inputSize+outputSize))
	weight, err := tensor.RandUniform([]int{inputSize, outputSize}, -bound, bound, rng)
	if err != nil {
		return nil, fmt.Errorf("failed to create weight tensor: %v", err)
	}
	weight.SetRequiresGrad(true)

	bias, err := tensor.Zeros([]int{outputSize}, tensor.Float64)
	if err != nil {
		return nil, fmt.Errorf("failed to create bias tensor: %v", err)
	}
	bias.SetRequiresGrad(true)

	return &Linear{
		weight:   weight,
		bias:     bias,
		training: true,
	}, nil
}

// Forward performs the forward pass: y = xW + b
func (l *Linear) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if len(input.Shape) != 2 || input.Shape[1] != l.weight.Shape[0] {
		return nil, &tensor.ShapeError{
			Op:       "Linear",
			Field:    "input",
			Expected: []int{-1, l.weight.Shape[0]},
			Actual:   append([]int(nil), input.Shape...),
		}
	}

	output, err := tensor.MatMulAutograd(input, l.weight)
	if err != nil {
		return nil, err
	}
	output, err = tensor.AddAutograd(output, l.bias)
	if err != nil {
		return nil, fmt.Errorf("bias addition failed: %v", err)
	}
	return output, nil
}

// Parameters returns the trainable parameters
func (l *Linear) Parameters() []*tensor.Tensor {
	return []*tensor.Tensor{l.weight, l.bias}
}

// Weight returns the [in, out] weight matrix.
func (l *Linear) Weight() *tensor.Tensor { return l.weight }

// Bias returns the [out] bias vector.
func (l *Linear) Bias() *tensor.Tensor { return l.bias }

// InputSize returns the number of input features.
func (l *Linear) InputSize() int { return l.weight.Shape[0] }

// OutputSize returns the number of output features.
func (l *Linear) OutputSize() int { return l.weight.Shape[1] }

// Train sets the module to training mode
func (l *Linear) Train() {
	l.training = true
}

// Eval sets the module to evaluation mode
func (l *Linear) Eval() {
	l.training = false
}

// IsTraining returns true if in training mode
func (l *Linear) IsTraining() bool {
	return l.training
}

// activationModule holds the mode flag shared by the parameterless modules.
type activationModule struct {
	training bool
}

func (a *activationModule) Parameters() []*tensor.Tensor { return nil }
func (a *activationModule) Train()                       { a.training = true }
func (a *activationModule) Eval()                        { a.training = false }
func (a *activationModule) IsTraining() bool             { return a.training }

// ReLU implements ReLU activation function module
type ReLU struct {
	activationModule
}

// NewReLU creates a new ReLU activation module
func NewReLU() *ReLU {
	return &ReLU{activationModule{training: true}}
}

// Forward performs ReLU activation
func (r *ReLU) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	return tensor.ReLUAutograd(input)
}

// Tanh implements the hyperbolic tangent activation module
type Tanh struct {
	activationModule
}

func NewTanh() *Tanh {
	return &Tanh{activationModule{training: true}}
}

func (t *Tanh) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	return tensor.TanhAutograd(input)
}

// Sigmoid implements the logistic activation module
type Sigmoid struct {
	activationModule
}

func NewSigmoid() *Sigmoid {
	return &Sigmoid{activationModule{training: true}}
}

func (s *Sigmoid) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	return tensor.SigmoidAutograd(input)
}

// LogSoftmax normalizes each row of raw scores into log-probabilities
type LogSoftmax struct {
	activationModule
}

func NewLogSoftmax() *LogSoftmax {
	return &LogSoftmax{activationModule{training: true}}
}

func (l *LogSoftmax) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	return tensor.LogSoftmaxAutograd(input)
}

// NewActivation returns the module for a hidden activation.
func NewActivation(act layers.Activation) (Module, error) {
	switch act {
	case layers.ActivationReLU:
		return NewReLU(), nil
	case layers.ActivationTanh:
		return NewTanh(), nil
	case layers.ActivationSigmoid:
		return NewSigmoid(), nil
	default:
		return nil, fmt.Errorf("unsupported activation %s", act)
	}
}

// Sequential allows chaining multiple modules together
type Sequential struct {
	modules  []Module
	training bool
}

// NewSequential creates a new Sequential container
func NewSequential(modules ...Module) *Sequential {
	return &Sequential{
		modules:  modules,
		training: true,
	}
}

// Forward passes input through all modules in sequence
func (s *Sequential) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	output := input
	var err error

	for i, module := range s.modules {
		output, err = module.Forward(output)
		if err != nil {
			return nil, fmt.Errorf("module %d forward failed: %w", i, err)
		}
	}

	return output, nil
}

// Parameters returns all trainable parameters from all modules
func (s *Sequential) Parameters() []*tensor.Tensor {
	var allParams []*tensor.Tensor
	for _, module := range s.modules {
		allParams = append(allParams, module.Parameters()...)
	}
	return allParams
}

// Train sets all modules to training mode
func (s *Sequential) Train() {
	s.training = true
	for _, module := range s.modules {
		module.Train()
	}
}

// Eval sets all modules to evaluation mode
func (s *Sequential) Eval() {
	s.training = false
	for _, module := range s.modules {
		module.Eval()
	}
}

// IsTraining returns true if in training mode
func (s *Sequential) IsTraining() bool {
	return s.training
}

// Add appends a module to the sequential container
func (s *Sequential) Add(module Module) {
	s.modules = append(s.modules, module)
}

// Modules returns the contained modules in order.
func (s *Sequential) Modules() []Module {
	return s.modules
}
