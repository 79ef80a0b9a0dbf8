package optimizer

import (
	"fmt"

	"github.com/PotapenkoOleg/PyTorch/checkpoints"
	"github.com/PotapenkoOleg/PyTorch/tensor"
)

// Optimizer defines the common interface for all optimizers.
// Gradients are never cleared implicitly: callers invoke ZeroGrad before each
// backward pass, Step applies the accumulated gradients in place.
type Optimizer interface {
	// ZeroGrad resets the gradient of every managed parameter. Idempotent.
	ZeroGrad()

	// Step performs a single optimization step using the current gradients.
	// Parameters without a gradient are left untouched.
	Step() error

	// GetState extracts optimizer state for checkpointing
	GetState() (*OptimizerState, error)

	// LoadState restores optimizer state from checkpoint
	LoadState(state *OptimizerState) error

	// GetStepCount returns the current optimization step number
	GetStepCount() uint64

	GetLR() float64

	// SetLR updates the learning rate (used by schedulers)
	SetLR(lr float64)

	// Name returns the optimizer type as recorded in checkpoints
	Name() string
}

// OptimizerState is the serializable optimizer state stored in checkpoints.
type OptimizerState = checkpoints.OptimizerState

// validateParams checks that every parameter is a Float64 leaf requiring
// gradients.
func validateParams(params []*tensor.Tensor) error {
	if len(params) == 0 {
		return fmt.Errorf("no parameters provided")
	}
	for i, p := range params {
		if p == nil {
			return fmt.Errorf("parameter %d is nil", i)
		}
		if p.DType != tensor.Float64 {
			return fmt.Errorf("parameter %d has dtype %s, expected Float64", i, p.DType)
		}
		if !p.RequiresGrad() {
			return fmt.Errorf("parameter %d does not require gradients", i)
		}
		if !p.IsLeaf() {
			return fmt.Errorf("parameter %d is not a leaf tensor", i)
		}
	}
	return nil
}

// gradData returns the gradient slice of p, or nil when p has no gradient yet.
func gradData(p *tensor.Tensor) []float64 {
	g := p.Grad()
	if g == nil {
		return nil
	}
	return g.Float64s()
}

// allocateBuffers creates one zeroed buffer per parameter.
func allocateBuffers(params []*tensor.Tensor) [][]float64 {
	buffers := make([][]float64, len(params))
	for i, p := range params {
		buffers[i] = make([]float64, p.NumElems)
	}
	return buffers
}

// Common helper functions for state extraction

// extractBufferIndex extracts the buffer index from state tensor names like "momentum_0", "variance_1", "squared_grad_avg_0"
func extractBufferIndex(name string) int {
	var idx int
	// Find the last underscore in the name
	lastUnderscoreIdx := -1
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '_' {
			lastUnderscoreIdx = i
			break
		}
	}

	if lastUnderscoreIdx == -1 {
		return -1
	}

	// Try to parse the number after the last underscore
	if n, err := fmt.Sscanf(name[lastUnderscoreIdx+1:], "%d", &idx); n == 1 && err == nil {
		return idx
	}
	return -1
}

// validateStateType ensures the state type matches the optimizer
func validateStateType(optimizerType string, state *OptimizerState) error {
	if state == nil {
		return fmt.Errorf("optimizer state is nil")
	}
	if state.Type != optimizerType {
		return fmt.Errorf("state type mismatch: expected %s, got %s", optimizerType, state.Type)
	}
	return nil
}
