package optimizer

import (
	"fmt"
	"math"
	"sync"

	"github.com/PotapenkoOleg/PyTorch/tensor"
)

// RMSPropOptimizerState scales each update by a running average of squared
// gradients.
type RMSPropOptimizerState struct {
	// Hyperparameters
	LearningRate float64
	Alpha        float64 // Smoothing constant (typically 0.99)
	Epsilon      float64 // Small constant to prevent division by zero (typically 1e-8)
	WeightDecay  float64 // L2 regularization coefficient
	Momentum     float64 // Momentum coefficient (0.0 for no momentum)
	Centered     bool    // Whether to use centered RMSProp (subtract mean of gradients)

	params []*tensor.Tensor

	SquaredGradAvgBuffers [][]float64 // Running average of squared gradients
	MomentumBuffers       [][]float64 // Only when Momentum > 0
	GradientAvgBuffers    [][]float64 // Only when Centered

	// Step tracking
	StepCount uint64

	mu sync.Mutex
}

// RMSPropConfig holds configuration for RMSProp optimizer
type RMSPropConfig struct {
	LearningRate float64
	Alpha        float64
	Epsilon      float64
	WeightDecay  float64
	Momentum     float64
	Centered     bool
}

// DefaultRMSPropConfig returns default RMSProp optimizer configuration
func DefaultRMSPropConfig() RMSPropConfig {
	return RMSPropConfig{
		LearningRate: 0.01,
		Alpha:        0.99,
		Epsilon:      1e-8,
		WeightDecay:  0.0,
		Momentum:     0.0,
		Centered:     false,
	}
}

// NewRMSPropOptimizer creates a new RMSProp optimizer over params
func NewRMSPropOptimizer(config RMSPropConfig, params []*tensor.Tensor) (*RMSPropOptimizerState, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}
	if config.LearningRate <= 0 {
		return nil, fmt.Errorf("learning rate must be positive: %f", config.LearningRate)
	}
	if config.Alpha <= 0 || config.Alpha >= 1 {
		return nil, fmt.Errorf("alpha must be in (0, 1): %f", config.Alpha)
	}
	if config.Epsilon <= 0 {
		return nil, fmt.Errorf("epsilon must be positive: %f", config.Epsilon)
	}
	if config.WeightDecay < 0 {
		return nil, fmt.Errorf("weight decay cannot be negative: %f", config.WeightDecay)
	}
	if config.Momentum < 0 || config.Momentum >= 1 {
		return nil, fmt.Errorf("momentum must be in [0, 1): %f", config.Momentum)
	}

	rmsprop := &RMSPropOptimizerState{
		LearningRate:          config.LearningRate,
		Alpha:                 config.Alpha,
		Epsilon:               config.Epsilon,
		WeightDecay:           config.WeightDecay,
		Momentum:              config.Momentum,
		Centered:              config.Centered,
		params:                params,
		SquaredGradAvgBuffers: allocateBuffers(params),
	}
	if config.Momentum > 0 {
		rmsprop.MomentumBuffers = allocateBuffers(params)
	}
	if config.Centered {
		rmsprop.GradientAvgBuffers = allocateBuffers(params)
	}
	return rmsprop, nil
}

// ZeroGrad resets all parameter gradients
func (rmsprop *RMSPropOptimizerState) ZeroGrad() {
	tensor.ZeroGrad(rmsprop.params)
}

// Step performs a single RMSProp optimization step
func (rmsprop *RMSPropOptimizerState) Step() error {
	rmsprop.mu.Lock()
	defer rmsprop.mu.Unlock()

	for i, p := range rmsprop.params {
		grad := gradData(p)
		if grad == nil {
			continue
		}
		weights := p.Float64s()
		sq := rmsprop.SquaredGradAvgBuffers[i]

		for j, g := range grad {
			if rmsprop.WeightDecay != 0 {
				g += rmsprop.WeightDecay * weights[j]
			}
			sq[j] = rmsprop.Alpha*sq[j] + (1-rmsprop.Alpha)*g*g

			variance := sq[j]
			if rmsprop.Centered {
				avg := rmsprop.GradientAvgBuffers[i]
				avg[j] = rmsprop.Alpha*avg[j] + (1-rmsprop.Alpha)*g
				variance -= avg[j] * avg[j]
			}
			denom := math.Sqrt(math.Max(variance, 0)) + rmsprop.Epsilon

			if rmsprop.Momentum > 0 {
				buf := rmsprop.MomentumBuffers[i]
				buf[j] = rmsprop.Momentum*buf[j] + g/denom
				weights[j] -= rmsprop.LearningRate * buf[j]
			} else {
				weights[j] -= rmsprop.LearningRate * g / denom
			}
		}
	}

	rmsprop.StepCount++
	return nil
}

func (rmsprop *RMSPropOptimizerState) GetLR() float64 {
	rmsprop.mu.Lock()
	defer rmsprop.mu.Unlock()
	return rmsprop.LearningRate
}

// SetLR updates the learning rate
func (rmsprop *RMSPropOptimizerState) SetLR(lr float64) {
	rmsprop.mu.Lock()
	defer rmsprop.mu.Unlock()
	rmsprop.LearningRate = lr
}

// GetStepCount returns the current step count
func (rmsprop *RMSPropOptimizerState) GetStepCount() uint64 {
	return rmsprop.StepCount
}

func (rmsprop *RMSPropOptimizerState) Name() string {
	return "RMSProp"
}

// GetState extracts optimizer state for checkpointing
func (rmsprop *RMSPropOptimizerState) GetState() (*OptimizerState, error) {
	rmsprop.mu.Lock()
	defer rmsprop.mu.Unlock()

	stateData := collectBuffers(rmsprop.params, rmsprop.SquaredGradAvgBuffers, "squared_grad_avg", "squared_grad_avg")
	if rmsprop.Momentum > 0 {
		stateData = append(stateData, collectBuffers(rmsprop.params, rmsprop.MomentumBuffers, "momentum", "momentum")...)
	}
	if rmsprop.Centered {
		stateData = append(stateData, collectBuffers(rmsprop.params, rmsprop.GradientAvgBuffers, "gradient_avg", "gradient_avg")...)
	}

	return &OptimizerState{
		Type: "RMSProp",
		Parameters: map[string]float64{
			"learning_rate": rmsprop.LearningRate,
			"alpha":         rmsprop.Alpha,
			"epsilon":       rmsprop.Epsilon,
			"weight_decay":  rmsprop.WeightDecay,
			"momentum":      rmsprop.Momentum,
			"centered":      boolParam(rmsprop.Centered),
			"step_count":    float64(rmsprop.StepCount),
		},
		StateData: stateData,
	}, nil
}

// LoadState restores optimizer state from checkpoint
func (rmsprop *RMSPropOptimizerState) LoadState(state *OptimizerState) error {
	if err := validateStateType("RMSProp", state); err != nil {
		return err
	}

	rmsprop.mu.Lock()
	defer rmsprop.mu.Unlock()

	momentum := extractFloat64Param(state.Parameters, "momentum", rmsprop.Momentum)
	centered := extractBoolParam(state.Parameters, "centered", rmsprop.Centered)

	squared := allocateBuffers(rmsprop.params)
	if err := restoreBuffers(state, rmsprop.params, squared, "squared_grad_avg"); err != nil {
		return err
	}
	var momentumBuffers, gradientAvg [][]float64
	if momentum > 0 {
		momentumBuffers = allocateBuffers(rmsprop.params)
		if err := restoreBuffers(state, rmsprop.params, momentumBuffers, "momentum"); err != nil {
			return err
		}
	}
	if centered {
		gradientAvg = allocateBuffers(rmsprop.params)
		if err := restoreBuffers(state, rmsprop.params, gradientAvg, "gradient_avg"); err != nil {
			return err
		}
	}

	rmsprop.LearningRate = extractFloat64Param(state.Parameters, "learning_rate", rmsprop.LearningRate)
	rmsprop.Alpha = extractFloat64Param(state.Parameters, "alpha", rmsprop.Alpha)
	rmsprop.Epsilon = extractFloat64Param(state.Parameters, "epsilon", rmsprop.Epsilon)
	rmsprop.WeightDecay = extractFloat64Param(state.Parameters, "weight_decay", rmsprop.WeightDecay)
	rmsprop.Momentum = momentum
	rmsprop.Centered = centered
	rmsprop.StepCount = extractUint64Param(state.Parameters, "step_count", rmsprop.StepCount)
	rmsprop.SquaredGradAvgBuffers = squared
	rmsprop.MomentumBuffers = momentumBuffers
	rmsprop.GradientAvgBuffers = gradientAvg

	return nil
}
