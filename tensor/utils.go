package tensor

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// Reshape returns a tensor sharing t's data under a new shape. One dimension
// may be -1 and is inferred. The result is detached from the graph.
func (t *Tensor) Reshape(newShape []int) (*Tensor, error) {
	shape := append([]int(nil), newShape...)
	newNumElems := 1
	negOneIdx := -1

	for i, dim := range shape {
		switch {
		case dim == -1:
			if negOneIdx >= 0 {
				return nil, fmt.Errorf("only one dimension can be -1")
			}
			negOneIdx = i
		case dim <= 0:
			return nil, fmt.Errorf("dimension %d has invalid size %d", i, dim)
		default:
			newNumElems *= dim
		}
	}

	if negOneIdx >= 0 {
		if t.NumElems%newNumElems != 0 {
			return nil, fmt.Errorf("cannot reshape tensor of size %d into shape with -1: size must be divisible by %d", t.NumElems, newNumElems)
		}
		shape[negOneIdx] = t.NumElems / newNumElems
		newNumElems = t.NumElems
	}

	if newNumElems != t.NumElems {
		return nil, newShapeError("Reshape", "element count", []int{t.NumElems}, []int{newNumElems})
	}

	return &Tensor{
		Shape:        shape,
		Strides:      calculateStrides(shape),
		DType:        t.DType,
		Data:         t.Data,
		NumElems:     t.NumElems,
		requiresGrad: t.requiresGrad && t.creator == nil,
	}, nil
}

func (t *Tensor) Clone() (*Tensor, error) {
	clone := &Tensor{
		Shape:        append([]int(nil), t.Shape...),
		Strides:      append([]int(nil), t.Strides...),
		DType:        t.DType,
		NumElems:     t.NumElems,
		requiresGrad: t.requiresGrad,
	}

	switch t.DType {
	case Float64:
		data, ok := t.Data.([]float64)
		if !ok {
			return nil, fmt.Errorf("tensor has no Float64 data")
		}
		clone.Data = append([]float64(nil), data...)
	case Int32:
		data, ok := t.Data.([]int32)
		if !ok {
			return nil, fmt.Errorf("tensor has no Int32 data")
		}
		clone.Data = append([]int32(nil), data...)
	default:
		return nil, fmt.Errorf("unsupported dtype for Clone: %s", t.DType)
	}

	return clone, nil
}

// Detach returns a leaf sharing t's data that does not require gradients.
func (t *Tensor) Detach() *Tensor {
	return &Tensor{
		Shape:    t.Shape,
		Strides:  t.Strides,
		DType:    t.DType,
		Data:     t.Data,
		NumElems: t.NumElems,
	}
}

func (t *Tensor) GetFloat64Data() ([]float64, error) {
	if t.DType != Float64 {
		return nil, fmt.Errorf("tensor dtype is %s, not Float64", t.DType)
	}
	return t.Data.([]float64), nil
}

func (t *Tensor) GetInt32Data() ([]int32, error) {
	if t.DType != Int32 {
		return nil, fmt.Errorf("tensor dtype is %s, not Int32", t.DType)
	}
	return t.Data.([]int32), nil
}

// Float64s returns the backing slice of a Float64 tensor and panics otherwise.
// Kernels call it after validating dtypes.
func (t *Tensor) Float64s() []float64 {
	return t.Data.([]float64)
}

// Item returns the value of a single-element Float64 tensor.
func (t *Tensor) Item() (float64, error) {
	if t.NumElems != 1 {
		return 0, fmt.Errorf("item() can only be called on tensors with exactly one element, got %d", t.NumElems)
	}
	switch t.DType {
	case Float64:
		return t.Data.([]float64)[0], nil
	case Int32:
		return float64(t.Data.([]int32)[0]), nil
	default:
		return 0, fmt.Errorf("unsupported dtype for Item: %s", t.DType)
	}
}

func (t *Tensor) At(indices ...int) (float64, error) {
	if len(indices) != len(t.Shape) {
		return 0, fmt.Errorf("expected %d indices, got %d", len(t.Shape), len(indices))
	}

	linear := 0
	for i, idx := range indices {
		if idx < 0 || idx >= t.Shape[i] {
			return 0, fmt.Errorf("index %d out of bounds for dimension %d (size %d)", idx, i, t.Shape[i])
		}
		linear += idx * t.Strides[i]
	}

	switch t.DType {
	case Float64:
		return t.Data.([]float64)[linear], nil
	case Int32:
		return float64(t.Data.([]int32)[linear]), nil
	default:
		return 0, fmt.Errorf("unsupported dtype for At: %s", t.DType)
	}
}

// CopyFrom overwrites t's values in place; the length must match exactly.
func (t *Tensor) CopyFrom(values []float64) error {
	if t.DType != Float64 {
		return fmt.Errorf("CopyFrom requires a Float64 tensor, got %s", t.DType)
	}
	if len(values) != t.NumElems {
		return newShapeError("CopyFrom", "values", []int{t.NumElems}, []int{len(values)})
	}
	copy(t.Data.([]float64), values)
	return nil
}

// ZeroGrad resets the gradient slot of t to zeros, keeping its allocation.
func (t *Tensor) ZeroGrad() {
	if t.grad == nil {
		return
	}
	if data, ok := t.grad.Data.([]float64); ok {
		for i := range data {
			data[i] = 0
		}
	}
}

// ZeroGrad resets the gradient slots of every tensor that requires gradients.
func ZeroGrad(tensors []*Tensor) {
	for _, t := range tensors {
		if t.requiresGrad {
			t.ZeroGrad()
		}
	}
}

// accumulateGrad adds g into t's gradient slot, allocating it on first use.
func (t *Tensor) accumulateGrad(g *Tensor) error {
	if !ShapesEqual(t.Shape, g.Shape) {
		return newShapeError("Backward", "gradient", t.Shape, g.Shape)
	}
	if t.grad == nil {
		t.grad = ZerosLike(t)
	}
	floats.Add(t.grad.Float64s(), g.Float64s())
	return nil
}

func (t *Tensor) PrintData(maxElements int) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Tensor(shape=%v, dtype=%s)\n", t.Shape, t.DType))

	if maxElements <= 0 {
		maxElements = 20
	}

	elementsToShow := t.NumElems
	if elementsToShow > maxElements {
		elementsToShow = maxElements
	}

	sb.WriteString("[")
	for i := 0; i < elementsToShow; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		switch t.DType {
		case Float64:
			sb.WriteString(fmt.Sprintf("%.4f", t.Data.([]float64)[i]))
		case Int32:
			sb.WriteString(fmt.Sprintf("%d", t.Data.([]int32)[i]))
		}
	}
	if t.NumElems > maxElements {
		sb.WriteString(fmt.Sprintf(", ... (%d more elements)", t.NumElems-maxElements))
	}
	sb.WriteString("]")

	return sb.String()
}
