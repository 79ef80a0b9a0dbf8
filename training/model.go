package training

import (
	"fmt"
	"math/rand"

	"github.com/PotapenkoOleg/PyTorch/layers"
	"github.com/PotapenkoOleg/PyTorch/tensor"
)

// Model is a feed-forward classifier built from a compiled ModelSpec. The
// spec travels with the model so checkpoints never have to inspect modules.
type Model struct {
	spec   *layers.ModelSpec
	net    *Sequential
	linear []*Linear
}

// NewModel builds the modules described by spec. Weights are drawn from rng.
func NewModel(spec *layers.ModelSpec, rng *rand.Rand) (*Model, error) {
	if spec == nil || !spec.Compiled {
		return nil, fmt.Errorf("model spec must be compiled")
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	model := &Model{spec: spec, net: NewSequential()}
	for i, layer := range spec.Layers {
		switch {
		case layer.Type == layers.Dense:
			linear, err := NewLinear(layer.InputSize, layer.OutputSize, rng)
			if err != nil {
				return nil, fmt.Errorf("layer %d (%s): %v", i, layer.Name, err)
			}
			model.linear = append(model.linear, linear)
			model.net.Add(linear)
		case layer.Type.IsActivation():
			act, err := layers.ParseActivation(layer.Type.String())
			if err != nil {
				return nil, err
			}
			module, err := NewActivation(act)
			if err != nil {
				return nil, err
			}
			model.net.Add(module)
		case layer.Type == layers.LogSoftmax:
			model.net.Add(NewLogSoftmax())
		default:
			return nil, fmt.Errorf("layer %d (%s): unsupported layer type %s", i, layer.Name, layer.Type)
		}
	}
	return model, nil
}

// NewMLP is shorthand for compiling an MLP spec and building it.
func NewMLP(inputSize int, hiddenSizes []int, outputSize int, act layers.Activation, mode layers.OutputMode, rng *rand.Rand) (*Model, error) {
	spec, err := layers.NewMLPSpec(inputSize, hiddenSizes, outputSize, act, mode)
	if err != nil {
		return nil, err
	}
	return NewModel(spec, rng)
}

// Forward maps a [batch, input_size] tensor to [batch, output_size] scores.
func (m *Model) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if input == nil {
		return nil, fmt.Errorf("input tensor is nil")
	}
	if len(input.Shape) != 2 || input.Shape[1] != m.spec.InputSize {
		return nil, &tensor.ShapeError{
			Op:       "Model.Forward",
			Field:    "input",
			Expected: []int{-1, m.spec.InputSize},
			Actual:   append([]int(nil), input.Shape...),
		}
	}
	return m.net.Forward(input)
}

// Predict returns the arg-max class of every row without recording a graph.
func (m *Model) Predict(input *tensor.Tensor) ([]int, error) {
	var classes []int
	err := tensor.NoGrad(func() error {
		out, err := m.Forward(input)
		if err != nil {
			return err
		}
		classes, err = tensor.ArgMax(out)
		return err
	})
	return classes, err
}

// Parameters returns weight and bias of every dense layer in order.
func (m *Model) Parameters() []*tensor.Tensor {
	return m.net.Parameters()
}

// NamedParameters returns the parameters with their stable checkpoint names.
func (m *Model) NamedParameters() []layers.ParameterRef {
	refs := make([]layers.ParameterRef, 0, 2*len(m.linear))
	for i, l := range m.linear {
		refs = append(refs,
			layers.ParameterRef{Name: layers.ParameterName(i, layers.RoleWeight), Layer: i, Role: layers.RoleWeight, Tensor: l.Weight()},
			layers.ParameterRef{Name: layers.ParameterName(i, layers.RoleBias), Layer: i, Role: layers.RoleBias, Tensor: l.Bias()},
		)
	}
	return refs
}

// Spec returns the architecture the model was built from.
func (m *Model) Spec() *layers.ModelSpec {
	return m.spec
}

// Layers returns the dense layers in order.
func (m *Model) Layers() []*Linear {
	return m.linear
}

func (m *Model) Train()           { m.net.Train() }
func (m *Model) Eval()            { m.net.Eval() }
func (m *Model) IsTraining() bool { return m.net.IsTraining() }

// ZeroGrad clears every parameter gradient.
func (m *Model) ZeroGrad() {
	tensor.ZeroGrad(m.Parameters())
}
