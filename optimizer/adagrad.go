package optimizer

import (
	"fmt"
	"math"
	"sync"

	"github.com/PotapenkoOleg/PyTorch/tensor"
)

// AdaGradOptimizerState adapts each parameter's step to the sum of its past
// squared gradients.
type AdaGradOptimizerState struct {
	// Configuration
	config AdaGradConfig

	params []*tensor.Tensor

	// Accumulated squared gradients
	squaredGradAvgBuffers [][]float64

	// Step tracking
	currentStep uint64

	mu sync.Mutex
}

// AdaGradConfig holds configuration for AdaGrad optimizer
type AdaGradConfig struct {
	LearningRate float64 // Learning rate
	Epsilon      float64 // Small constant for numerical stability
	WeightDecay  float64 // L2 regularization strength
}

// DefaultAdaGradConfig returns default AdaGrad optimizer configuration
func DefaultAdaGradConfig() AdaGradConfig {
	return AdaGradConfig{
		LearningRate: 0.01,
		Epsilon:      1e-10,
		WeightDecay:  0.0,
	}
}

// NewAdaGradOptimizer creates a new AdaGrad optimizer over params
func NewAdaGradOptimizer(config AdaGradConfig, params []*tensor.Tensor) (*AdaGradOptimizerState, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}
	if config.LearningRate <= 0 {
		return nil, fmt.Errorf("learning rate must be positive: %f", config.LearningRate)
	}
	if config.Epsilon <= 0 {
		return nil, fmt.Errorf("epsilon must be positive: %f", config.Epsilon)
	}
	if config.WeightDecay < 0 {
		return nil, fmt.Errorf("weight decay cannot be negative: %f", config.WeightDecay)
	}

	return &AdaGradOptimizerState{
		config:                config,
		params:                params,
		squaredGradAvgBuffers: allocateBuffers(params),
	}, nil
}

// ZeroGrad resets all parameter gradients
func (adagrad *AdaGradOptimizerState) ZeroGrad() {
	tensor.ZeroGrad(adagrad.params)
}

// Step performs a single AdaGrad optimization step
func (adagrad *AdaGradOptimizerState) Step() error {
	adagrad.mu.Lock()
	defer adagrad.mu.Unlock()

	for i, p := range adagrad.params {
		grad := gradData(p)
		if grad == nil {
			continue
		}
		weights := p.Float64s()
		sum := adagrad.squaredGradAvgBuffers[i]

		for j, g := range grad {
			if adagrad.config.WeightDecay != 0 {
				g += adagrad.config.WeightDecay * weights[j]
			}
			sum[j] += g * g
			weights[j] -= adagrad.config.LearningRate * g / (math.Sqrt(sum[j]) + adagrad.config.Epsilon)
		}
	}

	adagrad.currentStep++
	return nil
}

func (adagrad *AdaGradOptimizerState) GetLR() float64 {
	adagrad.mu.Lock()
	defer adagrad.mu.Unlock()
	return adagrad.config.LearningRate
}

// SetLR updates the learning rate
func (adagrad *AdaGradOptimizerState) SetLR(lr float64) {
	adagrad.mu.Lock()
	defer adagrad.mu.Unlock()
	adagrad.config.LearningRate = lr
}

// GetStepCount returns the current step count
func (adagrad *AdaGradOptimizerState) GetStepCount() uint64 {
	return adagrad.currentStep
}

func (adagrad *AdaGradOptimizerState) Name() string {
	return "AdaGrad"
}

// GetState extracts optimizer state for checkpointing
func (adagrad *AdaGradOptimizerState) GetState() (*OptimizerState, error) {
	adagrad.mu.Lock()
	defer adagrad.mu.Unlock()

	return &OptimizerState{
		Type: "AdaGrad",
		Parameters: map[string]float64{
			"learning_rate": adagrad.config.LearningRate,
			"epsilon":       adagrad.config.Epsilon,
			"weight_decay":  adagrad.config.WeightDecay,
			"step_count":    float64(adagrad.currentStep),
		},
		StateData: collectBuffers(adagrad.params, adagrad.squaredGradAvgBuffers, "squared_grad_avg", "squared_grad_avg"),
	}, nil
}

// LoadState restores optimizer state from checkpoint
func (adagrad *AdaGradOptimizerState) LoadState(state *OptimizerState) error {
	if err := validateStateType("AdaGrad", state); err != nil {
		return err
	}

	adagrad.mu.Lock()
	defer adagrad.mu.Unlock()

	squared := allocateBuffers(adagrad.params)
	if err := restoreBuffers(state, adagrad.params, squared, "squared_grad_avg"); err != nil {
		return err
	}

	adagrad.config.LearningRate = extractFloat64Param(state.Parameters, "learning_rate", adagrad.config.LearningRate)
	adagrad.config.Epsilon = extractFloat64Param(state.Parameters, "epsilon", adagrad.config.Epsilon)
	adagrad.config.WeightDecay = extractFloat64Param(state.Parameters, "weight_decay", adagrad.config.WeightDecay)
	adagrad.currentStep = extractUint64Param(state.Parameters, "step_count", adagrad.currentStep)
	adagrad.squaredGradAvgBuffers = squared

	return nil
}
