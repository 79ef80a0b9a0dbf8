package checkpoints

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PotapenkoOleg/PyTorch/layers"
	"github.com/PotapenkoOleg/PyTorch/tensor"
	"github.com/pkg/errors"
)

const (
	// FormatVersion is written into every checkpoint's metadata.
	FormatVersion = "1.0.0"
	// FrameworkName identifies checkpoints written by this module.
	FrameworkName = "pytorch-go"
)

// CheckpointFormat defines the serialization format
type CheckpointFormat int

const (
	FormatJSON CheckpointFormat = iota
	FormatBinary
)

func (cf CheckpointFormat) String() string {
	switch cf {
	case FormatJSON:
		return "JSON"
	case FormatBinary:
		return "Binary"
	default:
		return "Unknown"
	}
}

// FormatFromPath picks JSON for ".json" files and the binary format otherwise.
func FormatFromPath(path string) CheckpointFormat {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatBinary
}

// Architecture records the widths needed to rebuild a matching model.
type Architecture struct {
	InputSize   int    `json:"input_size"`
	OutputSize  int    `json:"output_size"`
	HiddenSizes []int  `json:"hidden_sizes"`
	Activation  string `json:"activation"`
	OutputMode  string `json:"output_mode"`
}

// ArchitectureFromSpec captures the descriptor returned at model construction.
func ArchitectureFromSpec(spec *layers.ModelSpec) Architecture {
	return Architecture{
		InputSize:   spec.InputSize,
		OutputSize:  spec.OutputSize,
		HiddenSizes: append([]int{}, spec.HiddenSizes...),
		Activation:  spec.Activation.String(),
		OutputMode:  spec.OutputMode.String(),
	}
}

// ModelSpec compiles the recorded architecture back into a layer descriptor.
func (a Architecture) ModelSpec() (*layers.ModelSpec, error) {
	act, err := layers.ParseActivation(a.Activation)
	if err != nil {
		return nil, errors.Wrap(err, "architecture")
	}
	mode, err := layers.ParseOutputMode(a.OutputMode)
	if err != nil {
		return nil, errors.Wrap(err, "architecture")
	}
	spec, err := layers.NewMLPSpec(a.InputSize, a.HiddenSizes, a.OutputSize, act, mode)
	if err != nil {
		return nil, errors.Wrap(err, "architecture")
	}
	return spec, nil
}

// Checkpoint represents a complete model state including weights, optimizer state, and training metadata
type Checkpoint struct {
	// Model architecture and weights
	Architecture Architecture   `json:"architecture"`
	Weights      []WeightTensor `json:"weights"`

	// Training state
	TrainingState TrainingState `json:"training_state"`

	// Optimizer state (if available)
	OptimizerState *OptimizerState `json:"optimizer_state,omitempty"`

	// Metadata
	Metadata CheckpointMetadata `json:"metadata"`
}

// WeightTensor represents a model parameter tensor with its data
type WeightTensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
	Layer int       `json:"layer"`
	Type  string    `json:"type"` // "weight" or "bias"
}

// TrainingState captures the current training progress
type TrainingState struct {
	Epoch        int     `json:"epoch"`
	Step         int     `json:"step"`
	LearningRate float64 `json:"learning_rate"`
	BestLoss     float64 `json:"best_loss"`
	BestAccuracy float64 `json:"best_accuracy"`
	TotalSteps   int     `json:"total_steps"`
}

// OptimizerState captures optimizer-specific state (momentum, variance, etc.)
type OptimizerState struct {
	Type       string             `json:"type"` // "SGD", "Adam", etc.
	Parameters map[string]float64 `json:"parameters"`
	StateData  []OptimizerTensor  `json:"state_data"`
}

// OptimizerTensor represents optimizer state tensors (momentum, variance, etc.)
type OptimizerTensor struct {
	Name      string    `json:"name"`
	Shape     []int     `json:"shape"`
	Data      []float64 `json:"data"`
	StateType string    `json:"state_type"` // "momentum", "m", "v", etc.
}

// CheckpointMetadata contains checkpoint metadata
type CheckpointMetadata struct {
	Version     string    `json:"version"`
	Framework   string    `json:"framework"`
	CreatedAt   time.Time `json:"created_at"`
	RunID       string    `json:"run_id,omitempty"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
}

// Validate checks that every field needed to rebuild a model is present and
// that each weight's data agrees with its declared shape.
func (c *Checkpoint) Validate() error {
	if c == nil {
		return &MissingFieldError{Field: "checkpoint"}
	}
	a := c.Architecture
	if a.InputSize <= 0 {
		return &MissingFieldError{Field: "architecture.input_size"}
	}
	if a.OutputSize <= 0 {
		return &MissingFieldError{Field: "architecture.output_size"}
	}
	for i, h := range a.HiddenSizes {
		if h <= 0 {
			return errors.Errorf("architecture.hidden_sizes[%d]: width must be positive, got %d", i, h)
		}
	}
	if a.Activation == "" {
		return &MissingFieldError{Field: "architecture.activation"}
	}
	if a.OutputMode == "" {
		return &MissingFieldError{Field: "architecture.output_mode"}
	}
	if len(c.Weights) == 0 {
		return &MissingFieldError{Field: "weights"}
	}
	for i, w := range c.Weights {
		if w.Name == "" {
			return &MissingFieldError{Field: fmt.Sprintf("weights[%d].name", i)}
		}
		if len(w.Shape) == 0 {
			return &MissingFieldError{Field: fmt.Sprintf("weights[%d].shape", i)}
		}
		if n := numElements(w.Shape); n != len(w.Data) {
			return errors.Errorf("weight %s: shape %v holds %d values, data has %d", w.Name, w.Shape, n, len(w.Data))
		}
	}
	return nil
}

func numElements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// CheckpointSaver handles saving model checkpoints in various formats
type CheckpointSaver struct {
	format CheckpointFormat
}

// NewCheckpointSaver creates a new checkpoint saver for the specified format
func NewCheckpointSaver(format CheckpointFormat) *CheckpointSaver {
	return &CheckpointSaver{
		format: format,
	}
}

// Format returns the format this saver writes.
func (cs *CheckpointSaver) Format() CheckpointFormat {
	return cs.format
}

// SaveCheckpoint saves a complete model checkpoint
func (cs *CheckpointSaver) SaveCheckpoint(checkpoint *Checkpoint, path string) error {
	// Ensure metadata is set
	if checkpoint.Metadata.Framework == "" {
		checkpoint.Metadata.Framework = FrameworkName
		checkpoint.Metadata.Version = FormatVersion
		checkpoint.Metadata.CreatedAt = time.Now().UTC()
	}

	switch cs.format {
	case FormatJSON:
		return cs.saveJSON(checkpoint, path)
	case FormatBinary:
		return cs.saveBinary(checkpoint, path)
	default:
		return fmt.Errorf("unsupported checkpoint format: %s", cs.format.String())
	}
}

// LoadCheckpoint loads a model checkpoint and validates it
func (cs *CheckpointSaver) LoadCheckpoint(path string) (*Checkpoint, error) {
	var (
		checkpoint *Checkpoint
		err        error
	)
	switch cs.format {
	case FormatJSON:
		checkpoint, err = cs.loadJSON(path)
	case FormatBinary:
		checkpoint, err = cs.loadBinary(path)
	default:
		return nil, fmt.Errorf("unsupported checkpoint format: %s", cs.format.String())
	}
	if err != nil {
		return nil, err
	}
	if err := checkpoint.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid checkpoint %s", path)
	}
	return checkpoint, nil
}

// Save writes checkpoint to path in the format implied by its extension.
func Save(checkpoint *Checkpoint, path string) error {
	return NewCheckpointSaver(FormatFromPath(path)).SaveCheckpoint(checkpoint, path)
}

// Load reads a checkpoint in the format implied by the extension of path.
func Load(path string) (*Checkpoint, error) {
	return NewCheckpointSaver(FormatFromPath(path)).LoadCheckpoint(path)
}

// saveJSON saves checkpoint in JSON format
func (cs *CheckpointSaver) saveJSON(checkpoint *Checkpoint, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file: %v", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ") // Pretty print JSON

	if err := encoder.Encode(checkpoint); err != nil {
		return fmt.Errorf("failed to encode checkpoint: %v", err)
	}

	return nil
}

// loadJSON loads checkpoint from JSON format
func (cs *CheckpointSaver) loadJSON(path string) (*Checkpoint, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint file: %v", err)
	}
	defer file.Close()

	var checkpoint Checkpoint
	decoder := json.NewDecoder(file)

	if err := decoder.Decode(&checkpoint); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %v", err)
	}

	return &checkpoint, nil
}

// ExtractWeights copies the current value of every named parameter.
func ExtractWeights(params []layers.ParameterRef) ([]WeightTensor, error) {
	weights := make([]WeightTensor, 0, len(params))
	for _, p := range params {
		if p.Tensor == nil {
			return nil, fmt.Errorf("parameter %s has no tensor", p.Name)
		}
		data, err := p.Tensor.GetFloat64Data()
		if err != nil {
			return nil, fmt.Errorf("failed to read parameter %s: %v", p.Name, err)
		}
		weights = append(weights, WeightTensor{
			Name:  p.Name,
			Shape: append([]int(nil), p.Tensor.Shape...),
			Data:  append([]float64(nil), data...),
			Layer: p.Layer,
			Type:  string(p.Role),
		})
	}
	return weights, nil
}

// CheckWeights compares checkpoint weights with the parameters a model
// expects. Every missing, duplicated, unexpected or differently shaped tensor
// is reported in one *StructuralMismatchError.
func CheckWeights(weights []WeightTensor, expected []layers.ParameterInfo) error {
	var mismatches []TensorMismatch
	byName := make(map[string]WeightTensor, len(weights))
	for _, w := range weights {
		if _, dup := byName[w.Name]; dup {
			mismatches = append(mismatches, TensorMismatch{
				Name:   w.Name,
				Actual: w.Shape,
				Reason: "duplicate in checkpoint",
			})
			continue
		}
		byName[w.Name] = w
	}

	known := make(map[string]bool, len(expected))
	for _, p := range expected {
		known[p.Name] = true
		w, ok := byName[p.Name]
		if !ok {
			mismatches = append(mismatches, TensorMismatch{
				Name:     p.Name,
				Expected: p.Shape,
				Reason:   "missing from checkpoint",
			})
			continue
		}
		if !tensor.ShapesEqual(p.Shape, w.Shape) {
			mismatches = append(mismatches, TensorMismatch{
				Name:     p.Name,
				Expected: p.Shape,
				Actual:   w.Shape,
				Reason:   "shape differs",
			})
			continue
		}
		if len(w.Data) != numElements(p.Shape) {
			mismatches = append(mismatches, TensorMismatch{
				Name:     p.Name,
				Expected: p.Shape,
				Actual:   []int{len(w.Data)},
				Reason:   "data length differs",
			})
		}
	}
	reported := make(map[string]bool)
	for _, w := range weights {
		if !known[w.Name] && !reported[w.Name] {
			reported[w.Name] = true
			mismatches = append(mismatches, TensorMismatch{
				Name:   w.Name,
				Actual: w.Shape,
				Reason: "not present in model",
			})
		}
	}

	if len(mismatches) > 0 {
		return &StructuralMismatchError{Mismatches: mismatches}
	}
	return nil
}

// LoadWeights copies checkpoint weights into params by name. The structure is
// checked with CheckWeights first and no parameter is modified unless it
// passes.
func LoadWeights(weights []WeightTensor, params []layers.ParameterRef) error {
	expected := make([]layers.ParameterInfo, len(params))
	for i, p := range params {
		expected[i] = layers.ParameterInfo{Name: p.Name, Layer: p.Layer, Role: p.Role, Shape: p.Tensor.Shape}
	}
	if err := CheckWeights(weights, expected); err != nil {
		return err
	}

	byName := make(map[string]WeightTensor, len(weights))
	for _, w := range weights {
		byName[w.Name] = w
	}

	for _, p := range params {
		if err := p.Tensor.CopyFrom(byName[p.Name].Data); err != nil {
			return fmt.Errorf("failed to copy weight data for %s: %v", p.Name, err)
		}
	}
	return nil
}
