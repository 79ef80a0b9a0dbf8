package checkpoints

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrStructuralMismatch is wrapped by StructuralMismatchError.
	ErrStructuralMismatch = errors.New("checkpoint does not match model structure")
	// ErrMissingField is wrapped by MissingFieldError.
	ErrMissingField = errors.New("checkpoint field missing")
)

// TensorMismatch describes one parameter that cannot be loaded.
type TensorMismatch struct {
	Name     string
	Expected []int // nil when the checkpoint has a tensor the model lacks
	Actual   []int // nil when the model expects a tensor the checkpoint lacks
	Reason   string
}

func (m TensorMismatch) String() string {
	return fmt.Sprintf("%s: %s (expected %v, got %v)", m.Name, m.Reason, m.Expected, m.Actual)
}

// StructuralMismatchError lists every tensor whose presence or shape differs
// between a checkpoint and the model it is loaded into.
type StructuralMismatchError struct {
	Mismatches []TensorMismatch
}

func (e *StructuralMismatchError) Error() string {
	parts := make([]string, len(e.Mismatches))
	for i, m := range e.Mismatches {
		parts[i] = m.String()
	}
	return fmt.Sprintf("%s: %d tensor(s): %s", ErrStructuralMismatch, len(e.Mismatches), strings.Join(parts, "; "))
}

func (e *StructuralMismatchError) Unwrap() error {
	return ErrStructuralMismatch
}

// Names returns the names of every mismatched tensor.
func (e *StructuralMismatchError) Names() []string {
	names := make([]string, len(e.Mismatches))
	for i, m := range e.Mismatches {
		names[i] = m.Name
	}
	return names
}

// MissingFieldError reports a required checkpoint field that is absent or empty.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingField, e.Field)
}

func (e *MissingFieldError) Unwrap() error {
	return ErrMissingField
}
