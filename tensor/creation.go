package tensor

import (
	"fmt"
	"math/rand"
)

func NewTensor(shape []int, dtype DType, data interface{}) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}

	numElems := calculateNumElements(shape)
	strides := calculateStrides(shape)

	tensor := &Tensor{
		Shape:    append([]int(nil), shape...),
		Strides:  strides,
		DType:    dtype,
		NumElems: numElems,
	}

	if data != nil {
		if err := tensor.setData(data); err != nil {
			return nil, err
		}
	}

	return tensor, nil
}

func (t *Tensor) setData(data interface{}) error {
	switch t.DType {
	case Float64:
		switch d := data.(type) {
		case []float64:
			if len(d) != t.NumElems {
				return fmt.Errorf("data length %d does not match tensor size %d", len(d), t.NumElems)
			}
			t.Data = d
		case float64:
			slice := make([]float64, t.NumElems)
			for i := range slice {
				slice[i] = d
			}
			t.Data = slice
		default:
			return fmt.Errorf("unsupported data type for Float64 tensor: %T", data)
		}
	case Int32:
		switch d := data.(type) {
		case []int32:
			if len(d) != t.NumElems {
				return fmt.Errorf("data length %d does not match tensor size %d", len(d), t.NumElems)
			}
			t.Data = d
		case int32:
			slice := make([]int32, t.NumElems)
			for i := range slice {
				slice[i] = d
			}
			t.Data = slice
		default:
			return fmt.Errorf("unsupported data type for Int32 tensor: %T", data)
		}
	default:
		return fmt.Errorf("unsupported dtype: %s", t.DType)
	}
	return nil
}

func Zeros(shape []int, dtype DType) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}

	numElems := calculateNumElements(shape)

	var data interface{}
	switch dtype {
	case Float64:
		data = make([]float64, numElems)
	case Int32:
		data = make([]int32, numElems)
	default:
		return nil, fmt.Errorf("unsupported dtype for Zeros: %s", dtype)
	}

	return NewTensor(shape, dtype, data)
}

func Ones(shape []int, dtype DType) (*Tensor, error) {
	switch dtype {
	case Float64:
		return NewTensor(shape, dtype, float64(1))
	case Int32:
		return NewTensor(shape, dtype, int32(1))
	default:
		return nil, fmt.Errorf("unsupported dtype for Ones: %s", dtype)
	}
}

// ZerosLike returns a Float64 zero tensor with t's shape.
func ZerosLike(t *Tensor) *Tensor {
	return &Tensor{
		Shape:    append([]int(nil), t.Shape...),
		Strides:  calculateStrides(t.Shape),
		DType:    Float64,
		Data:     make([]float64, t.NumElems),
		NumElems: t.NumElems,
	}
}

// RandUniform fills a Float64 tensor with samples from U(low, high) drawn
// from rng, so that initialization is reproducible for a fixed seed.
func RandUniform(shape []int, low, high float64, rng *rand.Rand) (*Tensor, error) {
	if rng == nil {
		return nil, fmt.Errorf("random source cannot be nil")
	}
	if high < low {
		return nil, fmt.Errorf("invalid range: low %f > high %f", low, high)
	}
	if err := validateShape(shape); err != nil {
		return nil, err
	}
	data := make([]float64, calculateNumElements(shape))
	for i := range data {
		data[i] = low + rng.Float64()*(high-low)
	}
	return NewTensor(shape, Float64, data)
}

// FromScalar creates a single-element tensor of shape [1].
func FromScalar(value float64) *Tensor {
	t, _ := NewTensor([]int{1}, Float64, []float64{value})
	return t
}

// FromRows builds a [len(rows), width] Float64 tensor; every row must have the
// same width.
func FromRows(rows [][]float64) (*Tensor, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("no rows provided")
	}
	width := len(rows[0])
	data := make([]float64, 0, len(rows)*width)
	for i, row := range rows {
		if len(row) != width {
			return nil, newShapeError("FromRows", fmt.Sprintf("row %d", i), []int{width}, []int{len(row)})
		}
		data = append(data, row...)
	}
	return NewTensor([]int{len(rows), width}, Float64, data)
}

// FromLabels builds a 1-D Int32 tensor of class indices.
func FromLabels(labels []int) (*Tensor, error) {
	data := make([]int32, len(labels))
	for i, l := range labels {
		data[i] = int32(l)
	}
	return NewTensor([]int{len(labels)}, Int32, data)
}
