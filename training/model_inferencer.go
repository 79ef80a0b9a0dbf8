package training

import (
	"fmt"

	"github.com/PotapenkoOleg/PyTorch/checkpoints"
	"github.com/PotapenkoOleg/PyTorch/layers"
	"github.com/PotapenkoOleg/PyTorch/tensor"
)

// ModelInferencer runs forward passes only, in fixed-size chunks and without
// recording a graph.
type ModelInferencer struct {
	model  *Model
	config InferencerConfig
}

// InferencerConfig holds configuration for inference-only operations
type InferencerConfig struct {
	BatchSize int `json:"batch_size"` // Rows per forward pass
}

// DefaultInferencerConfig returns the default inference configuration
func DefaultInferencerConfig() InferencerConfig {
	return InferencerConfig{BatchSize: 32}
}

func validateInferencerConfig(config InferencerConfig) error {
	if config.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", config.BatchSize)
	}
	return nil
}

// NewModelInferencer wraps an existing model for inference
func NewModelInferencer(model *Model, config InferencerConfig) (*ModelInferencer, error) {
	if err := validateInferencerConfig(config); err != nil {
		return nil, fmt.Errorf("invalid inferencer configuration: %v", err)
	}
	if model == nil {
		return nil, fmt.Errorf("model is nil")
	}
	return &ModelInferencer{model: model, config: config}, nil
}

// LoadModelInferencer reads a checkpoint from path and rebuilds its model
func LoadModelInferencer(path string, config InferencerConfig) (*ModelInferencer, error) {
	ckpt, err := checkpoints.Load(path)
	if err != nil {
		return nil, err
	}
	model, err := NewModelFromCheckpoint(ckpt)
	if err != nil {
		return nil, err
	}
	return NewModelInferencer(model, config)
}

// LoadWeights replaces the model's parameters with checkpoint weights. Nothing
// is changed unless every tensor matches.
func (mi *ModelInferencer) LoadWeights(weights []checkpoints.WeightTensor) error {
	return checkpoints.LoadWeights(weights, mi.model.NamedParameters())
}

// Forward returns the raw model output for rows, chunked by BatchSize
func (mi *ModelInferencer) Forward(rows [][]float64) ([][]float64, error) {
	out := make([][]float64, 0, len(rows))
	err := tensor.NoGrad(func() error {
		for start := 0; start < len(rows); start += mi.config.BatchSize {
			end := start + mi.config.BatchSize
			if end > len(rows) {
				end = len(rows)
			}
			input, err := tensor.FromRows(rows[start:end])
			if err != nil {
				return err
			}
			output, err := mi.model.Forward(input)
			if err != nil {
				return err
			}
			width := output.Shape[1]
			data := output.Float64s()
			for i := 0; i < end-start; i++ {
				out = append(out, append([]float64(nil), data[i*width:(i+1)*width]...))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Predict returns the arg-max class of every row
func (mi *ModelInferencer) Predict(rows [][]float64) ([]int, error) {
	scores, err := mi.Forward(rows)
	if err != nil {
		return nil, err
	}
	if len(scores) == 0 {
		return []int{}, nil
	}
	output, err := tensor.FromRows(scores)
	if err != nil {
		return nil, err
	}
	return tensor.ArgMax(output)
}

// PredictProba returns class probabilities for every row, whatever the
// model's output mode.
func (mi *ModelInferencer) PredictProba(rows [][]float64) ([][]float64, error) {
	scores, err := mi.Forward(rows)
	if err != nil || len(scores) == 0 {
		return scores, err
	}
	t, err := tensor.FromRows(scores)
	if err != nil {
		return nil, err
	}
	var probs *tensor.Tensor
	if mi.model.Spec().OutputMode == layers.OutputLogProbs {
		probs, err = tensor.Exp(t)
	} else {
		probs, err = tensor.Softmax(t)
	}
	if err != nil {
		return nil, err
	}
	width := probs.Shape[1]
	data := probs.Float64s()
	out := make([][]float64, len(scores))
	for i := range out {
		out[i] = data[i*width : (i+1)*width]
	}
	return out, nil
}

// GetModelSpec returns the architecture of the wrapped model
func (mi *ModelInferencer) GetModelSpec() *layers.ModelSpec {
	return mi.model.Spec()
}

// Model returns the wrapped model
func (mi *ModelInferencer) Model() *Model {
	return mi.model
}
