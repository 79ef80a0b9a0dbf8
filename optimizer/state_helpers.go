package optimizer

import (
	"fmt"

	"github.com/PotapenkoOleg/PyTorch/checkpoints"
	"github.com/PotapenkoOleg/PyTorch/tensor"
)

// Common helper functions for optimizer state management

// extractBufferState copies a single state buffer for checkpointing. Buffers
// that were never allocated produce nil.
func extractBufferState(buffer []float64, shape []int, name string, stateType string) *checkpoints.OptimizerTensor {
	if buffer == nil {
		return nil
	}

	return &checkpoints.OptimizerTensor{
		Name:      name,
		Shape:     append([]int(nil), shape...),
		Data:      append([]float64(nil), buffer...),
		StateType: stateType,
	}
}

// restoreBufferState copies checkpoint data into a state buffer
func restoreBufferState(buffer []float64, data []float64, name string) error {
	if buffer == nil {
		return fmt.Errorf("%s buffer is nil", name)
	}

	if len(data) != len(buffer) {
		return fmt.Errorf("data size mismatch for %s: expected %d elements, got %d",
			name, len(buffer), len(data))
	}

	copy(buffer, data)
	return nil
}

// collectBuffers exports a family of per-parameter buffers named
// "<prefix>_<index>".
func collectBuffers(params []*tensor.Tensor, buffers [][]float64, prefix, stateType string) []checkpoints.OptimizerTensor {
	var out []checkpoints.OptimizerTensor
	for i, buf := range buffers {
		if t := extractBufferState(buf, params[i].Shape, fmt.Sprintf("%s_%d", prefix, i), stateType); t != nil {
			out = append(out, *t)
		}
	}
	return out
}

// restoreBuffers loads every state tensor of stateType into buffers, allocating
// a buffer on demand when the optimizer had not created it yet.
func restoreBuffers(state *OptimizerState, params []*tensor.Tensor, buffers [][]float64, stateType string) error {
	for _, t := range state.StateData {
		if t.StateType != stateType {
			continue
		}
		idx := extractBufferIndex(t.Name)
		if idx < 0 || idx >= len(buffers) {
			return fmt.Errorf("invalid buffer index in tensor name: %s", t.Name)
		}
		if buffers[idx] == nil {
			buffers[idx] = make([]float64, params[idx].NumElems)
		}
		if err := restoreBufferState(buffers[idx], t.Data, t.Name); err != nil {
			return err
		}
	}
	return nil
}

// extractFloat64Param safely extracts a float64 parameter from the state map
func extractFloat64Param(params map[string]float64, key string, defaultValue float64) float64 {
	if val, ok := params[key]; ok {
		return val
	}
	return defaultValue
}

// extractBoolParam reads a flag stored as 0 or 1
func extractBoolParam(params map[string]float64, key string, defaultValue bool) bool {
	if val, ok := params[key]; ok {
		return val != 0
	}
	return defaultValue
}

// extractUint64Param safely extracts a uint64 parameter from the state map
func extractUint64Param(params map[string]float64, key string, defaultValue uint64) uint64 {
	if val, ok := params[key]; ok && val >= 0 {
		return uint64(val)
	}
	return defaultValue
}

func boolParam(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
