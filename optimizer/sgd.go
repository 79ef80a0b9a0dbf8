package optimizer

import (
	"fmt"
	"sync"

	"github.com/PotapenkoOleg/PyTorch/checkpoints"
	"github.com/PotapenkoOleg/PyTorch/tensor"
	"gonum.org/v1/gonum/floats"
)

// SGDOptimizerState implements stochastic gradient descent with optional
// momentum, dampening, Nesterov momentum and L2 weight decay.
type SGDOptimizerState struct {
	// Hyperparameters
	LearningRate float64
	Momentum     float64 // Momentum coefficient (0 for vanilla SGD)
	Dampening    float64 // Dampening applied to the momentum update
	WeightDecay  float64 // L2 regularization coefficient
	Nesterov     bool    // Whether to use Nesterov momentum

	params []*tensor.Tensor

	// Momentum buffers, allocated on the first step that sees a gradient
	MomentumBuffers [][]float64

	// Step tracking
	StepCount uint64

	mu      sync.Mutex
	scratch []float64
}

// SGDConfig holds configuration for SGD optimizer
type SGDConfig struct {
	LearningRate float64
	Momentum     float64
	Dampening    float64
	WeightDecay  float64
	Nesterov     bool
}

// DefaultSGDConfig returns default SGD optimizer configuration
func DefaultSGDConfig() SGDConfig {
	return SGDConfig{
		LearningRate: 0.01,
		Momentum:     0.0,
		Dampening:    0.0,
		WeightDecay:  0.0,
		Nesterov:     false,
	}
}

// NewSGDOptimizer creates a new SGD optimizer over params
func NewSGDOptimizer(config SGDConfig, params []*tensor.Tensor) (*SGDOptimizerState, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}

	// Validate configuration parameters
	if config.LearningRate <= 0 {
		return nil, fmt.Errorf("learning rate must be positive: %f", config.LearningRate)
	}
	if config.Momentum < 0 {
		return nil, fmt.Errorf("momentum cannot be negative: %f", config.Momentum)
	}
	if config.Momentum > 1.0 {
		return nil, fmt.Errorf("momentum cannot be greater than 1.0: %f", config.Momentum)
	}
	if config.Dampening < 0 || config.Dampening > 1.0 {
		return nil, fmt.Errorf("dampening must be in [0, 1]: %f", config.Dampening)
	}
	if config.WeightDecay < 0 {
		return nil, fmt.Errorf("weight decay cannot be negative: %f", config.WeightDecay)
	}
	if config.Nesterov && (config.Momentum == 0 || config.Dampening != 0) {
		return nil, fmt.Errorf("nesterov momentum requires a momentum and zero dampening")
	}

	return &SGDOptimizerState{
		LearningRate:    config.LearningRate,
		Momentum:        config.Momentum,
		Dampening:       config.Dampening,
		WeightDecay:     config.WeightDecay,
		Nesterov:        config.Nesterov,
		params:          params,
		MomentumBuffers: make([][]float64, len(params)),
	}, nil
}

// ZeroGrad resets all parameter gradients
func (sgd *SGDOptimizerState) ZeroGrad() {
	tensor.ZeroGrad(sgd.params)
}

// Step performs a single SGD optimization step
func (sgd *SGDOptimizerState) Step() error {
	sgd.mu.Lock()
	defer sgd.mu.Unlock()

	for i, p := range sgd.params {
		grad := gradData(p)
		if grad == nil {
			continue
		}
		weights := p.Float64s()

		// d_p = g + wd * w
		if cap(sgd.scratch) < len(grad) {
			sgd.scratch = make([]float64, len(grad))
		}
		dp := sgd.scratch[:len(grad)]
		copy(dp, grad)
		if sgd.WeightDecay != 0 {
			floats.AddScaled(dp, sgd.WeightDecay, weights)
		}

		if sgd.Momentum != 0 {
			buf := sgd.MomentumBuffers[i]
			if buf == nil {
				buf = append([]float64(nil), dp...)
				sgd.MomentumBuffers[i] = buf
			} else {
				// buf = momentum * buf + (1 - dampening) * d_p
				floats.Scale(sgd.Momentum, buf)
				floats.AddScaled(buf, 1-sgd.Dampening, dp)
			}
			if sgd.Nesterov {
				floats.AddScaled(dp, sgd.Momentum, buf)
			} else {
				copy(dp, buf)
			}
		}

		floats.AddScaled(weights, -sgd.LearningRate, dp)
	}

	sgd.StepCount++
	return nil
}

func (sgd *SGDOptimizerState) GetLR() float64 {
	sgd.mu.Lock()
	defer sgd.mu.Unlock()
	return sgd.LearningRate
}

// SetLR updates the learning rate
func (sgd *SGDOptimizerState) SetLR(lr float64) {
	sgd.mu.Lock()
	defer sgd.mu.Unlock()
	sgd.LearningRate = lr
}

// GetStepCount returns the current step count
func (sgd *SGDOptimizerState) GetStepCount() uint64 {
	return sgd.StepCount
}

func (sgd *SGDOptimizerState) Name() string {
	return "SGD"
}

// GetState extracts optimizer state for checkpointing
func (sgd *SGDOptimizerState) GetState() (*OptimizerState, error) {
	sgd.mu.Lock()
	defer sgd.mu.Unlock()

	var stateData []checkpoints.OptimizerTensor
	if sgd.Momentum > 0 {
		stateData = collectBuffers(sgd.params, sgd.MomentumBuffers, "momentum", "momentum")
	}

	return &OptimizerState{
		Type: "SGD",
		Parameters: map[string]float64{
			"learning_rate": sgd.LearningRate,
			"momentum":      sgd.Momentum,
			"dampening":     sgd.Dampening,
			"weight_decay":  sgd.WeightDecay,
			"nesterov":      boolParam(sgd.Nesterov),
			"step_count":    float64(sgd.StepCount),
		},
		StateData: stateData,
	}, nil
}

// LoadState restores optimizer state from checkpoint
func (sgd *SGDOptimizerState) LoadState(state *OptimizerState) error {
	// Validate state type
	if err := validateStateType("SGD", state); err != nil {
		return err
	}

	sgd.mu.Lock()
	defer sgd.mu.Unlock()

	// Restore momentum buffers first so a bad tensor leaves hyperparameters intact
	restored := make([][]float64, len(sgd.params))
	if err := restoreBuffers(state, sgd.params, restored, "momentum"); err != nil {
		return err
	}

	// Restore hyperparameters
	sgd.LearningRate = extractFloat64Param(state.Parameters, "learning_rate", sgd.LearningRate)
	sgd.Momentum = extractFloat64Param(state.Parameters, "momentum", sgd.Momentum)
	sgd.Dampening = extractFloat64Param(state.Parameters, "dampening", sgd.Dampening)
	sgd.WeightDecay = extractFloat64Param(state.Parameters, "weight_decay", sgd.WeightDecay)
	sgd.Nesterov = extractBoolParam(state.Parameters, "nesterov", sgd.Nesterov)
	sgd.StepCount = extractUint64Param(state.Parameters, "step_count", sgd.StepCount)
	sgd.MomentumBuffers = restored

	return nil
}
