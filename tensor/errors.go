package tensor

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrShapeMismatch is the sentinel wrapped by every ShapeError.
var ErrShapeMismatch = errors.New("shape mismatch")

// ShapeError reports a tensor whose dimensions disagree with what the
// consuming operation expects.
type ShapeError struct {
	Op       string
	Field    string
	Expected []int
	Actual   []int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: %s: %s: expected %v, got %v", e.Op, ErrShapeMismatch, e.Field, e.Expected, e.Actual)
}

func (e *ShapeError) Unwrap() error {
	return ErrShapeMismatch
}

func newShapeError(op, field string, expected, actual []int) *ShapeError {
	return &ShapeError{
		Op:       op,
		Field:    field,
		Expected: append([]int(nil), expected...),
		Actual:   append([]int(nil), actual...),
	}
}
