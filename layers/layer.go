package layers

import (
	"fmt"
	"strings"

	"github.com/PotapenkoOleg/PyTorch/tensor"
)

// LayerType represents the type of neural network layer
type LayerType int

const (
	Dense LayerType = iota
	ReLU
	Tanh
	Sigmoid
	LogSoftmax
)

func (lt LayerType) String() string {
	switch lt {
	case Dense:
		return "Dense"
	case ReLU:
		return "ReLU"
	case Tanh:
		return "Tanh"
	case Sigmoid:
		return "Sigmoid"
	case LogSoftmax:
		return "LogSoftmax"
	default:
		return "Unknown"
	}
}

// IsActivation reports whether the layer is a hidden nonlinearity.
func (lt LayerType) IsActivation() bool {
	return lt == ReLU || lt == Tanh || lt == Sigmoid
}

// Activation selects the nonlinearity placed between consecutive dense layers.
type Activation int

const (
	ActivationReLU Activation = iota
	ActivationTanh
	ActivationSigmoid
)

func (a Activation) String() string {
	switch a {
	case ActivationReLU:
		return "relu"
	case ActivationTanh:
		return "tanh"
	case ActivationSigmoid:
		return "sigmoid"
	default:
		return "unknown"
	}
}

// LayerType returns the layer kind implementing this activation.
func (a Activation) LayerType() LayerType {
	switch a {
	case ActivationTanh:
		return Tanh
	case ActivationSigmoid:
		return Sigmoid
	default:
		return ReLU
	}
}

func (a Activation) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Activation) UnmarshalText(text []byte) error {
	parsed, err := ParseActivation(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseActivation accepts "relu", "tanh" or "sigmoid" (case-insensitive).
// The empty string selects ReLU.
func ParseActivation(s string) (Activation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "relu":
		return ActivationReLU, nil
	case "tanh":
		return ActivationTanh, nil
	case "sigmoid":
		return ActivationSigmoid, nil
	default:
		return 0, fmt.Errorf("unknown activation %q", s)
	}
}

func activationFor(lt LayerType) (Activation, bool) {
	switch lt {
	case ReLU:
		return ActivationReLU, true
	case Tanh:
		return ActivationTanh, true
	case Sigmoid:
		return ActivationSigmoid, true
	default:
		return 0, false
	}
}

// OutputMode states what the final layer emits and therefore which loss
// consumes it.
type OutputMode int

const (
	// OutputLogits emits raw scores; paired with cross entropy.
	OutputLogits OutputMode = iota
	// OutputLogProbs ends with LogSoftmax; paired with negative log-likelihood.
	OutputLogProbs
)

func (m OutputMode) String() string {
	switch m {
	case OutputLogits:
		return "logits"
	case OutputLogProbs:
		return "log_probs"
	default:
		return "unknown"
	}
}

func (m OutputMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *OutputMode) UnmarshalText(text []byte) error {
	parsed, err := ParseOutputMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseOutputMode accepts "logits" or "log_probs". The empty string selects logits.
func ParseOutputMode(s string) (OutputMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "logits":
		return OutputLogits, nil
	case "log_probs", "logprobs", "log-probs":
		return OutputLogProbs, nil
	default:
		return 0, fmt.Errorf("unknown output mode %q", s)
	}
}

// LayerSpec defines one layer of the model.
// This is pure configuration - no execution logic
type LayerSpec struct {
	Type LayerType `json:"type"`
	Name string    `json:"name"`

	// Widths (computed during model compilation for non-dense layers)
	InputSize  int `json:"input_size"`
	OutputSize int `json:"output_size"`

	// Parameter metadata (computed during model compilation)
	ParameterShapes [][]int `json:"parameter_shapes,omitempty"`
	ParameterCount  int64   `json:"parameter_count,omitempty"`
}

// ModelSpec describes a complete feed-forward classifier. It is returned
// together with the model it built, so nothing has to be recovered from the
// model's internals when writing a checkpoint.
type ModelSpec struct {
	InputSize   int        `json:"input_size"`
	OutputSize  int        `json:"output_size"`
	HiddenSizes []int      `json:"hidden_sizes"`
	Activation  Activation `json:"activation"`
	OutputMode  OutputMode `json:"output_mode"`

	Layers []LayerSpec `json:"layers"`

	// Compiled model information
	TotalParameters int64   `json:"total_parameters"`
	ParameterShapes [][]int `json:"parameter_shapes"`
	Compiled        bool    `json:"compiled"`
}

// ModelBuilder assembles a ModelSpec layer by layer.
type ModelBuilder struct {
	layers    []LayerSpec
	inputSize int
	compiled  bool
}

// NewModelBuilder creates a builder for a model taking inputSize features.
func NewModelBuilder(inputSize int) *ModelBuilder {
	return &ModelBuilder{
		layers:    make([]LayerSpec, 0),
		inputSize: inputSize,
	}
}

// AddLayer adds a layer specification to the model
func (mb *ModelBuilder) AddLayer(layer LayerSpec) *ModelBuilder {
	mb.layers = append(mb.layers, layer)
	return mb
}

// AddDense adds a fully connected layer with outputSize units.
func (mb *ModelBuilder) AddDense(outputSize int, name string) *ModelBuilder {
	return mb.AddLayer(LayerSpec{Type: Dense, Name: name, OutputSize: outputSize})
}

// AddActivation adds a hidden nonlinearity.
func (mb *ModelBuilder) AddActivation(act Activation, name string) *ModelBuilder {
	return mb.AddLayer(LayerSpec{Type: act.LayerType(), Name: name})
}

// AddLogSoftmax terminates the model with a row-wise LogSoftmax.
func (mb *ModelBuilder) AddLogSoftmax(name string) *ModelBuilder {
	return mb.AddLayer(LayerSpec{Type: LogSoftmax, Name: name})
}

// Compile checks that the layers form Dense (Activation Dense)* [LogSoftmax]
// with matching widths, and fills in shapes and parameter counts.
func (mb *ModelBuilder) Compile() (*ModelSpec, error) {
	if len(mb.layers) == 0 {
		return nil, fmt.Errorf("cannot compile empty model")
	}
	if mb.inputSize <= 0 {
		return nil, fmt.Errorf("input size must be positive, got %d", mb.inputSize)
	}

	model := &ModelSpec{
		InputSize:   mb.inputSize,
		Layers:      make([]LayerSpec, len(mb.layers)),
		HiddenSizes: []int{},
	}
	copy(model.Layers, mb.layers)

	currentWidth := mb.inputSize
	var (
		allParameterShapes [][]int
		totalParams        int64
		activation         Activation
		seenActivation     bool
		lastWasDense       bool
		denseCount         int
	)

	for i := range model.Layers {
		layer := &model.Layers[i]
		layer.InputSize = currentWidth

		switch {
		case layer.Type == Dense:
			if i > 0 && lastWasDense {
				return nil, fmt.Errorf("layer %d (%s): dense layers must be separated by an activation", i, layer.Name)
			}
			if layer.OutputSize <= 0 {
				return nil, fmt.Errorf("layer %d (%s): output size must be positive, got %d", i, layer.Name, layer.OutputSize)
			}
			layer.ParameterShapes = [][]int{
				{currentWidth, layer.OutputSize},
				{layer.OutputSize},
			}
			layer.ParameterCount = int64(currentWidth*layer.OutputSize + layer.OutputSize)
			allParameterShapes = append(allParameterShapes, layer.ParameterShapes...)
			totalParams += layer.ParameterCount
			currentWidth = layer.OutputSize
			lastWasDense = true
			denseCount++

		case layer.Type.IsActivation():
			if !lastWasDense {
				return nil, fmt.Errorf("layer %d (%s): activation must follow a dense layer", i, layer.Name)
			}
			act, _ := activationFor(layer.Type)
			if seenActivation && act != activation {
				return nil, fmt.Errorf("layer %d (%s): mixed hidden activations %s and %s", i, layer.Name, activation, act)
			}
			activation, seenActivation = act, true
			model.HiddenSizes = append(model.HiddenSizes, currentWidth)
			layer.OutputSize = currentWidth
			lastWasDense = false

		case layer.Type == LogSoftmax:
			if i != len(model.Layers)-1 || !lastWasDense {
				return nil, fmt.Errorf("layer %d (%s): LogSoftmax must directly follow the last dense layer", i, layer.Name)
			}
			layer.OutputSize = currentWidth
			model.OutputMode = OutputLogProbs

		default:
			return nil, fmt.Errorf("layer %d (%s): unsupported layer type %s", i, layer.Name, layer.Type)
		}
	}

	if model.Layers[0].Type != Dense {
		return nil, fmt.Errorf("first layer must be dense, got %s", model.Layers[0].Type)
	}
	if last := model.Layers[len(model.Layers)-1].Type; last.IsActivation() {
		return nil, fmt.Errorf("model cannot end with activation %s", last)
	}

	model.OutputSize = currentWidth
	model.Activation = activation
	model.ParameterShapes = allParameterShapes
	model.TotalParameters = totalParams
	model.Compiled = true
	mb.compiled = true

	return model, nil
}

// NewMLPSpec compiles the canonical multilayer perceptron: one dense layer per
// entry of hiddenSizes followed by act, a final dense layer of outputSize
// units, and a LogSoftmax when mode is OutputLogProbs.
func NewMLPSpec(inputSize int, hiddenSizes []int, outputSize int, act Activation, mode OutputMode) (*ModelSpec, error) {
	builder := NewModelBuilder(inputSize)
	for i, h := range hiddenSizes {
		builder.AddDense(h, fmt.Sprintf("dense%d", i+1)).
			AddActivation(act, fmt.Sprintf("%s%d", act, i+1))
	}
	builder.AddDense(outputSize, fmt.Sprintf("dense%d", len(hiddenSizes)+1))

	switch mode {
	case OutputLogits:
	case OutputLogProbs:
		builder.AddLogSoftmax("log_softmax")
	default:
		return nil, fmt.Errorf("unknown output mode %d", mode)
	}

	spec, err := builder.Compile()
	if err != nil {
		return nil, err
	}
	// a model without hidden layers still records the requested activation
	spec.Activation = act
	return spec, nil
}

// DenseLayers returns the dense layers in order.
func (ms *ModelSpec) DenseLayers() []LayerSpec {
	var dense []LayerSpec
	for _, l := range ms.Layers {
		if l.Type == Dense {
			dense = append(dense, l)
		}
	}
	return dense
}

// Widths returns input, hidden and output widths as one chain.
func (ms *ModelSpec) Widths() []int {
	widths := append([]int{ms.InputSize}, ms.HiddenSizes...)
	return append(widths, ms.OutputSize)
}

// ExpectedParameters lists every parameter the model owns, in order, with the
// shape a checkpoint must supply for it.
func (ms *ModelSpec) ExpectedParameters() []ParameterInfo {
	var params []ParameterInfo
	for i, l := range ms.DenseLayers() {
		params = append(params,
			ParameterInfo{Name: ParameterName(i, RoleWeight), Layer: i, Role: RoleWeight, Shape: []int{l.InputSize, l.OutputSize}},
			ParameterInfo{Name: ParameterName(i, RoleBias), Layer: i, Role: RoleBias, Shape: []int{l.OutputSize}},
		)
	}
	return params
}

// Summary returns a printable description of the compiled model.
func (ms *ModelSpec) Summary() string {
	if !ms.Compiled {
		return "Model not compiled"
	}

	var sb strings.Builder
	sb.WriteString("Model Summary:\n")
	sb.WriteString(fmt.Sprintf("Widths: %v\n", ms.Widths()))
	sb.WriteString(fmt.Sprintf("Activation: %s  Output: %s\n", ms.Activation, ms.OutputMode))
	sb.WriteString(fmt.Sprintf("Total Parameters: %d\n", ms.TotalParameters))
	sb.WriteString(fmt.Sprintf("Layers: %d\n\n", len(ms.Layers)))

	for i, layer := range ms.Layers {
		sb.WriteString(fmt.Sprintf("Layer %d: %s (%s)\n", i+1, layer.Name, layer.Type))
		sb.WriteString(fmt.Sprintf("  Input:  %d\n", layer.InputSize))
		sb.WriteString(fmt.Sprintf("  Output: %d\n", layer.OutputSize))
		if layer.ParameterCount > 0 {
			sb.WriteString(fmt.Sprintf("  Params: %d %v\n", layer.ParameterCount, layer.ParameterShapes))
		}
	}

	return sb.String()
}

// Role distinguishes the two parameters of a dense layer.
type Role string

const (
	RoleWeight Role = "weight"
	RoleBias   Role = "bias"
)

// ParameterName returns the stable name of a dense-layer parameter, e.g.
// "layers.0.weight".
func ParameterName(layer int, role Role) string {
	return fmt.Sprintf("layers.%d.%s", layer, role)
}

// ParameterInfo is the expected identity and shape of a parameter.
type ParameterInfo struct {
	Name  string
	Layer int
	Role  Role
	Shape []int
}

// ParameterRef binds a live parameter tensor to its stable name.
type ParameterRef struct {
	Name   string
	Layer  int
	Role   Role
	Tensor *tensor.Tensor
}
