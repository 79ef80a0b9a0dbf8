package tensor

import (
	"fmt"
)

type DType int

const (
	Float64 DType = iota
	Int32
)

func (d DType) String() string {
	switch d {
	case Float64:
		return "Float64"
	case Int32:
		return "Int32"
	default:
		return "Unknown"
	}
}

// Operation is a recorded node of the computation graph. Forward computes the
// result and remembers whatever Backward needs; Backward maps the gradient of
// the result to one gradient per input (nil for inputs that need none).
type Operation interface {
	Forward(inputs ...*Tensor) (*Tensor, error)
	Backward(gradOut *Tensor) ([]*Tensor, error)
	Inputs() []*Tensor
}

type Tensor struct {
	Shape        []int
	Strides      []int
	DType        DType
	Data         interface{}
	NumElems     int
	requiresGrad bool
	grad         *Tensor
	creator      Operation
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(shape=%v, dtype=%s, elements=%d, requires_grad=%t)",
		t.Shape, t.DType, t.NumElems, t.requiresGrad)
}

func (t *Tensor) RequiresGrad() bool {
	return t.requiresGrad
}

func (t *Tensor) SetRequiresGrad(requires bool) {
	t.requiresGrad = requires
}

// Grad returns the accumulated gradient, or nil before the first backward pass.
func (t *Tensor) Grad() *Tensor {
	return t.grad
}

// IsLeaf reports whether t was created by the user rather than by an operation.
func (t *Tensor) IsLeaf() bool {
	return t.creator == nil
}

// Creator returns the operation that produced t, nil for leaves.
func (t *Tensor) Creator() Operation {
	return t.creator
}

func calculateStrides(shape []int) []int {
	if len(shape) == 0 {
		return []int{}
	}

	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

func calculateNumElements(shape []int) int {
	if len(shape) == 0 {
		return 0
	}

	elements := 1
	for _, dim := range shape {
		elements *= dim
	}
	return elements
}

func validateShape(shape []int) error {
	if len(shape) == 0 {
		return fmt.Errorf("invalid shape: at least one dimension is required")
	}
	for i, dim := range shape {
		if dim <= 0 {
			return fmt.Errorf("invalid shape: dimension %d has size %d, must be positive", i, dim)
		}
	}
	return nil
}

// ShapesEqual reports whether two shapes have identical dimensions.
func ShapesEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
