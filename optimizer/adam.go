package optimizer

import (
	"fmt"
	"math"
	"sync"

	"github.com/PotapenkoOleg/PyTorch/tensor"
	"gonum.org/v1/gonum/floats"
)

// AdamOptimizerState implements Adam with bias-corrected moment estimates
type AdamOptimizerState struct {
	// Hyperparameters
	LearningRate float64
	Beta1        float64 // Momentum decay (typically 0.9)
	Beta2        float64 // Variance decay (typically 0.999)
	Epsilon      float64 // Small constant to prevent division by zero (typically 1e-8)
	WeightDecay  float64 // L2 regularization coefficient

	params []*tensor.Tensor

	MomentumBuffers [][]float64 // First moment for each parameter
	VarianceBuffers [][]float64 // Second moment for each parameter

	// Step tracking for bias correction
	StepCount uint64

	mu sync.Mutex
}

// AdamConfig holds configuration for Adam optimizer
type AdamConfig struct {
	LearningRate float64
	Beta1        float64
	Beta2        float64
	Epsilon      float64
	WeightDecay  float64
}

// DefaultAdamConfig returns default Adam optimizer configuration
func DefaultAdamConfig() AdamConfig {
	return AdamConfig{
		LearningRate: 0.001,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-8,
		WeightDecay:  0.0,
	}
}

// NewAdamOptimizer creates a new Adam optimizer over params
func NewAdamOptimizer(config AdamConfig, params []*tensor.Tensor) (*AdamOptimizerState, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}
	if config.LearningRate <= 0 {
		return nil, fmt.Errorf("learning rate must be positive: %f", config.LearningRate)
	}
	if config.Beta1 < 0 || config.Beta1 >= 1 {
		return nil, fmt.Errorf("beta1 must be in [0, 1): %f", config.Beta1)
	}
	if config.Beta2 < 0 || config.Beta2 >= 1 {
		return nil, fmt.Errorf("beta2 must be in [0, 1): %f", config.Beta2)
	}
	if config.Epsilon <= 0 {
		return nil, fmt.Errorf("epsilon must be positive: %f", config.Epsilon)
	}
	if config.WeightDecay < 0 {
		return nil, fmt.Errorf("weight decay cannot be negative: %f", config.WeightDecay)
	}

	return &AdamOptimizerState{
		LearningRate:    config.LearningRate,
		Beta1:           config.Beta1,
		Beta2:           config.Beta2,
		Epsilon:         config.Epsilon,
		WeightDecay:     config.WeightDecay,
		params:          params,
		MomentumBuffers: allocateBuffers(params),
		VarianceBuffers: allocateBuffers(params),
	}, nil
}

// ZeroGrad resets all parameter gradients
func (adam *AdamOptimizerState) ZeroGrad() {
	tensor.ZeroGrad(adam.params)
}

// Step performs a single Adam optimization step
func (adam *AdamOptimizerState) Step() error {
	adam.mu.Lock()
	defer adam.mu.Unlock()

	adam.StepCount++
	t := float64(adam.StepCount)
	biasCorrection1 := 1 - math.Pow(adam.Beta1, t)
	biasCorrection2 := 1 - math.Pow(adam.Beta2, t)
	stepSize := adam.LearningRate / biasCorrection1

	for i, p := range adam.params {
		grad := gradData(p)
		if grad == nil {
			continue
		}
		weights := p.Float64s()
		m := adam.MomentumBuffers[i]
		v := adam.VarianceBuffers[i]

		for j, g := range grad {
			if adam.WeightDecay != 0 {
				g += adam.WeightDecay * weights[j]
			}
			m[j] = adam.Beta1*m[j] + (1-adam.Beta1)*g
			v[j] = adam.Beta2*v[j] + (1-adam.Beta2)*g*g
			denom := math.Sqrt(v[j]/biasCorrection2) + adam.Epsilon
			weights[j] -= stepSize * m[j] / denom
		}
	}

	return nil
}

func (adam *AdamOptimizerState) GetLR() float64 {
	adam.mu.Lock()
	defer adam.mu.Unlock()
	return adam.LearningRate
}

// SetLR updates the learning rate
func (adam *AdamOptimizerState) SetLR(lr float64) {
	adam.mu.Lock()
	defer adam.mu.Unlock()
	adam.LearningRate = lr
}

// GetStepCount returns the current step count
func (adam *AdamOptimizerState) GetStepCount() uint64 {
	return adam.StepCount
}

func (adam *AdamOptimizerState) Name() string {
	return "Adam"
}

// GetStats returns the L2 norms of the moment buffers, useful for debugging
// divergence.
func (adam *AdamOptimizerState) GetStats() map[string]float64 {
	adam.mu.Lock()
	defer adam.mu.Unlock()

	var mNorm, vNorm float64
	for i := range adam.params {
		mNorm += floats.Dot(adam.MomentumBuffers[i], adam.MomentumBuffers[i])
		vNorm += floats.Dot(adam.VarianceBuffers[i], adam.VarianceBuffers[i])
	}
	return map[string]float64{
		"step_count":    float64(adam.StepCount),
		"momentum_norm": math.Sqrt(mNorm),
		"variance_norm": math.Sqrt(vNorm),
	}
}

// GetState extracts optimizer state for checkpointing
func (adam *AdamOptimizerState) GetState() (*OptimizerState, error) {
	adam.mu.Lock()
	defer adam.mu.Unlock()

	stateData := collectBuffers(adam.params, adam.MomentumBuffers, "momentum", "m")
	stateData = append(stateData, collectBuffers(adam.params, adam.VarianceBuffers, "variance", "v")...)

	return &OptimizerState{
		Type: "Adam",
		Parameters: map[string]float64{
			"learning_rate": adam.LearningRate,
			"beta1":         adam.Beta1,
			"beta2":         adam.Beta2,
			"epsilon":       adam.Epsilon,
			"weight_decay":  adam.WeightDecay,
			"step_count":    float64(adam.StepCount),
		},
		StateData: stateData,
	}, nil
}

// LoadState restores optimizer state from checkpoint
func (adam *AdamOptimizerState) LoadState(state *OptimizerState) error {
	if err := validateStateType("Adam", state); err != nil {
		return err
	}

	adam.mu.Lock()
	defer adam.mu.Unlock()

	momentum := allocateBuffers(adam.params)
	variance := allocateBuffers(adam.params)
	if err := restoreBuffers(state, adam.params, momentum, "m"); err != nil {
		return err
	}
	if err := restoreBuffers(state, adam.params, variance, "v"); err != nil {
		return err
	}

	adam.LearningRate = extractFloat64Param(state.Parameters, "learning_rate", adam.LearningRate)
	adam.Beta1 = extractFloat64Param(state.Parameters, "beta1", adam.Beta1)
	adam.Beta2 = extractFloat64Param(state.Parameters, "beta2", adam.Beta2)
	adam.Epsilon = extractFloat64Param(state.Parameters, "epsilon", adam.Epsilon)
	adam.WeightDecay = extractFloat64Param(state.Parameters, "weight_decay", adam.WeightDecay)
	adam.StepCount = extractUint64Param(state.Parameters, "step_count", adam.StepCount)
	adam.MomentumBuffers = momentum
	adam.VarianceBuffers = variance

	return nil
}
