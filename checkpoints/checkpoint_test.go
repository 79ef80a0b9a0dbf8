package checkpoints

import (
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/PotapenkoOleg/PyTorch/layers"
	"github.com/PotapenkoOleg/PyTorch/tensor"
	"github.com/pkg/errors"
)

func testParams(t *testing.T, widths ...int) []layers.ParameterRef {
	t.Helper()
	var params []layers.ParameterRef
	for i := 0; i+1 < len(widths); i++ {
		in, out := widths[i], widths[i+1]
		w := make([]float64, in*out)
		for j := range w {
			w[j] = float64(i*100+j) * 0.01
		}
		b := make([]float64, out)
		for j := range b {
			b[j] = -float64(j)
		}
		wt, err := tensor.NewTensor([]int{in, out}, tensor.Float64, w)
		if err != nil {
			t.Fatalf("NewTensor failed: %v", err)
		}
		bt, _ := tensor.NewTensor([]int{out}, tensor.Float64, b)
		params = append(params,
			layers.ParameterRef{Name: layers.ParameterName(i, layers.RoleWeight), Layer: i, Role: layers.RoleWeight, Tensor: wt},
			layers.ParameterRef{Name: layers.ParameterName(i, layers.RoleBias), Layer: i, Role: layers.RoleBias, Tensor: bt},
		)
	}
	return params
}

func testCheckpoint(t *testing.T) *Checkpoint {
	t.Helper()
	weights, err := ExtractWeights(testParams(t, 4, 5, 3))
	if err != nil {
		t.Fatalf("ExtractWeights failed: %v", err)
	}
	return &Checkpoint{
		Architecture: Architecture{
			InputSize:   4,
			OutputSize:  3,
			HiddenSizes: []int{5},
			Activation:  "relu",
			OutputMode:  "logits",
		},
		Weights: weights,
		TrainingState: TrainingState{
			Epoch:        10,
			Step:         150,
			LearningRate: 0.05,
			BestLoss:     0.125,
			BestAccuracy: 0.95,
			TotalSteps:   150,
		},
		OptimizerState: &OptimizerState{
			Type:       "SGD",
			Parameters: map[string]float64{"learning_rate": 0.05, "momentum": 0.9, "nesterov": 0, "step_count": 150},
			StateData: []OptimizerTensor{
				{Name: "momentum_0", Shape: []int{4, 5}, Data: make([]float64, 20), StateType: "momentum"},
			},
		},
		Metadata: CheckpointMetadata{
			Version:     FormatVersion,
			Framework:   FrameworkName,
			CreatedAt:   time.Date(2026, 3, 14, 15, 9, 26, 535000000, time.UTC),
			RunID:       "7d1f3c1e-6a8e-4d4b-9f57-1d2f0f3b9a11",
			Description: "test checkpoint",
			Tags:        []string{"iris", "mlp"},
		},
	}
}

func assertCheckpointsEqual(t *testing.T, want, got *Checkpoint) {
	t.Helper()
	if !reflect.DeepEqual(want.Architecture, got.Architecture) {
		t.Errorf("Architecture mismatch: %+v vs %+v", want.Architecture, got.Architecture)
	}
	if !reflect.DeepEqual(want.Weights, got.Weights) {
		t.Errorf("Weights mismatch")
	}
	if want.TrainingState != got.TrainingState {
		t.Errorf("TrainingState mismatch: %+v vs %+v", want.TrainingState, got.TrainingState)
	}
	if !reflect.DeepEqual(want.OptimizerState, got.OptimizerState) {
		t.Errorf("OptimizerState mismatch: %+v vs %+v", want.OptimizerState, got.OptimizerState)
	}
	if !want.Metadata.CreatedAt.Equal(got.Metadata.CreatedAt) {
		t.Errorf("CreatedAt mismatch: %v vs %v", want.Metadata.CreatedAt, got.Metadata.CreatedAt)
	}
	if want.Metadata.RunID != got.Metadata.RunID || want.Metadata.Description != got.Metadata.Description {
		t.Errorf("Metadata mismatch: %+v vs %+v", want.Metadata, got.Metadata)
	}
	if !reflect.DeepEqual(want.Metadata.Tags, got.Metadata.Tags) {
		t.Errorf("Tags mismatch: %v vs %v", want.Metadata.Tags, got.Metadata.Tags)
	}
}

func TestCheckpointSaveLoad(t *testing.T) {
	for _, name := range []string{"model.json", "model.ckpt"} {
		t.Run(name, func(t *testing.T) {
			original := testCheckpoint(t)
			path := filepath.Join(t.TempDir(), name)

			if err := Save(original, path); err != nil {
				t.Fatalf("Failed to save checkpoint: %v", err)
			}
			if _, err := os.Stat(path); err != nil {
				t.Fatalf("Checkpoint file was not created: %v", err)
			}

			loaded, err := Load(path)
			if err != nil {
				t.Fatalf("Failed to load checkpoint: %v", err)
			}
			assertCheckpointsEqual(t, original, loaded)
		})
	}
}

func TestSaveFillsMetadata(t *testing.T) {
	ckpt := testCheckpoint(t)
	ckpt.Metadata = CheckpointMetadata{}
	path := filepath.Join(t.TempDir(), "meta.bin")

	if err := Save(ckpt, path); err != nil {
		t.Fatalf("Failed to save checkpoint: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load checkpoint: %v", err)
	}
	if loaded.Metadata.Framework != FrameworkName || loaded.Metadata.Version != FormatVersion {
		t.Errorf("Expected default metadata, got %+v", loaded.Metadata)
	}
	if loaded.Metadata.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set on save")
	}
}

func TestFormatFromPath(t *testing.T) {
	tests := map[string]CheckpointFormat{
		"a.json":        FormatJSON,
		"dir/b.JSON":    FormatJSON,
		"c.ckpt":        FormatBinary,
		"d":             FormatBinary,
		"e.json.backup": FormatBinary,
	}
	for path, want := range tests {
		if got := FormatFromPath(path); got != want {
			t.Errorf("FormatFromPath(%q) = %s, want %s", path, got, want)
		}
	}
}

func TestValidateMissingFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Checkpoint)
		field  string
	}{
		{"input size", func(c *Checkpoint) { c.Architecture.InputSize = 0 }, "architecture.input_size"},
		{"output size", func(c *Checkpoint) { c.Architecture.OutputSize = 0 }, "architecture.output_size"},
		{"activation", func(c *Checkpoint) { c.Architecture.Activation = "" }, "architecture.activation"},
		{"output mode", func(c *Checkpoint) { c.Architecture.OutputMode = "" }, "architecture.output_mode"},
		{"weights", func(c *Checkpoint) { c.Weights = nil }, "weights"},
		{"weight name", func(c *Checkpoint) { c.Weights[1].Name = "" }, "weights[1].name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ckpt := testCheckpoint(t)
			tt.mutate(ckpt)
			err := ckpt.Validate()
			var missing *MissingFieldError
			if !errors.As(err, &missing) {
				t.Fatalf("Expected MissingFieldError, got %v", err)
			}
			if missing.Field != tt.field {
				t.Errorf("Expected field %s, got %s", tt.field, missing.Field)
			}
			if !errors.Is(err, ErrMissingField) {
				t.Error("MissingFieldError should match ErrMissingField")
			}
		})
	}

	t.Run("data length", func(t *testing.T) {
		ckpt := testCheckpoint(t)
		ckpt.Weights[0].Data = ckpt.Weights[0].Data[:3]
		if err := ckpt.Validate(); err == nil {
			t.Error("Expected error for truncated weight data")
		}
	})
}

func TestLoadRejectsMissingFields(t *testing.T) {
	ckpt := testCheckpoint(t)
	ckpt.Weights = nil
	path := filepath.Join(t.TempDir(), "empty.json")
	if err := Save(ckpt, path); err != nil {
		t.Fatalf("Failed to save checkpoint: %v", err)
	}
	if _, err := Load(path); !errors.Is(err, ErrMissingField) {
		t.Errorf("Expected ErrMissingField, got %v", err)
	}
}

func TestArchitectureModelSpec(t *testing.T) {
	arch := testCheckpoint(t).Architecture
	spec, err := arch.ModelSpec()
	if err != nil {
		t.Fatalf("ModelSpec failed: %v", err)
	}
	if !reflect.DeepEqual(spec.Widths(), []int{4, 5, 3}) {
		t.Errorf("Expected widths [4 5 3], got %v", spec.Widths())
	}
	if back := ArchitectureFromSpec(spec); !reflect.DeepEqual(back, arch) {
		t.Errorf("Architecture round trip mismatch: %+v vs %+v", back, arch)
	}

	arch.Activation = "swish"
	if _, err := arch.ModelSpec(); err == nil {
		t.Error("Expected error for unknown activation")
	}
}

func TestLoadWeights(t *testing.T) {
	t.Run("Matching structure", func(t *testing.T) {
		src := testParams(t, 4, 5, 3)
		weights, _ := ExtractWeights(src)

		dst := testParams(t, 4, 5, 3)
		for _, p := range dst {
			for i := range p.Tensor.Float64s() {
				p.Tensor.Float64s()[i] = 0
			}
		}
		if err := LoadWeights(weights, dst); err != nil {
			t.Fatalf("LoadWeights failed: %v", err)
		}
		for i := range src {
			if !reflect.DeepEqual(src[i].Tensor.Float64s(), dst[i].Tensor.Float64s()) {
				t.Errorf("Parameter %s not restored", dst[i].Name)
			}
		}
	})

	t.Run("Mismatched hidden width", func(t *testing.T) {
		weights, _ := ExtractWeights(testParams(t, 4, 5, 3))
		dst := testParams(t, 4, 6, 3)
		before := make([][]float64, len(dst))
		for i, p := range dst {
			before[i] = append([]float64(nil), p.Tensor.Float64s()...)
		}

		err := LoadWeights(weights, dst)
		var mismatch *StructuralMismatchError
		if !errors.As(err, &mismatch) {
			t.Fatalf("Expected StructuralMismatchError, got %v", err)
		}
		if !errors.Is(err, ErrStructuralMismatch) {
			t.Error("Error should match ErrStructuralMismatch")
		}

		names := mismatch.Names()
		sort.Strings(names)
		want := []string{"layers.0.bias", "layers.0.weight", "layers.1.weight"}
		if !reflect.DeepEqual(names, want) {
			t.Errorf("Expected mismatches %v, got %v", want, names)
		}
		for _, m := range mismatch.Mismatches {
			if m.Name == "layers.0.weight" {
				if !reflect.DeepEqual(m.Expected, []int{4, 6}) || !reflect.DeepEqual(m.Actual, []int{4, 5}) {
					t.Errorf("Unexpected shapes for %s: %v vs %v", m.Name, m.Expected, m.Actual)
				}
			}
		}
		if !strings.Contains(err.Error(), "layers.1.weight") {
			t.Errorf("Error message should name every tensor: %v", err)
		}

		for i, p := range dst {
			if !reflect.DeepEqual(before[i], p.Tensor.Float64s()) {
				t.Errorf("Parameter %s modified by failed load", p.Name)
			}
		}
	})

	t.Run("Missing and unexpected tensors", func(t *testing.T) {
		weights, _ := ExtractWeights(testParams(t, 4, 5, 3))
		dst := testParams(t, 4, 5)
		err := LoadWeights(weights[:1], dst)
		var mismatch *StructuralMismatchError
		if !errors.As(err, &mismatch) {
			t.Fatalf("Expected StructuralMismatchError, got %v", err)
		}
		if len(mismatch.Mismatches) != 1 || mismatch.Mismatches[0].Name != "layers.0.bias" {
			t.Errorf("Expected missing layers.0.bias, got %v", mismatch.Mismatches)
		}

		err = LoadWeights(weights, dst)
		if !errors.As(err, &mismatch) {
			t.Fatalf("Expected StructuralMismatchError, got %v", err)
		}
		if len(mismatch.Mismatches) != 2 {
			t.Errorf("Expected 2 unexpected tensors, got %v", mismatch.Mismatches)
		}
	})
}

func TestDecodeBinaryErrors(t *testing.T) {
	if _, err := DecodeBinary([]byte("not a checkpoint")); err == nil {
		t.Error("Expected error for bad magic")
	}

	raw := EncodeBinary(testCheckpoint(t))
	if _, err := DecodeBinary(raw[:len(raw)-5]); err == nil {
		t.Error("Expected error for truncated checkpoint")
	}

	path := filepath.Join(t.TempDir(), "garbage.bin")
	if err := os.WriteFile(path, []byte{0x01, 0x02}, 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Expected error loading garbage file")
	}
}

func TestLoadWeightsRejectsDuplicateNames(t *testing.T) {
	weights, _ := ExtractWeights(testParams(t, 4, 5, 3))
	dup := weights[0]
	dup.Data = make([]float64, len(dup.Data))
	weights = append(weights, dup)

	dst := testParams(t, 4, 5, 3)
	before := append([]float64(nil), dst[0].Tensor.Float64s()...)

	err := LoadWeights(weights, dst)
	var mismatch *StructuralMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("Expected StructuralMismatchError, got %v", err)
	}
	if len(mismatch.Mismatches) != 1 {
		t.Fatalf("Expected exactly one mismatch, got %v", mismatch.Mismatches)
	}
	m := mismatch.Mismatches[0]
	if m.Name != "layers.0.weight" || m.Reason != "duplicate in checkpoint" {
		t.Errorf("Unexpected mismatch %v", m)
	}
	if !reflect.DeepEqual(before, dst[0].Tensor.Float64s()) {
		t.Error("Parameter modified by failed load")
	}
}

func TestCheckWeightsAgainstSpec(t *testing.T) {
	spec, err := layers.NewMLPSpec(4, []int{5}, 3, layers.ActivationReLU, layers.OutputLogits)
	if err != nil {
		t.Fatalf("NewMLPSpec failed: %v", err)
	}
	weights, _ := ExtractWeights(testParams(t, 4, 5, 3))
	if err := CheckWeights(weights, spec.ExpectedParameters()); err != nil {
		t.Errorf("Matching weights rejected: %v", err)
	}

	wider, _ := layers.NewMLPSpec(4, []int{7}, 3, layers.ActivationReLU, layers.OutputLogits)
	err = CheckWeights(weights, wider.ExpectedParameters())
	var mismatch *StructuralMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("Expected StructuralMismatchError, got %v", err)
	}
	names := mismatch.Names()
	sort.Strings(names)
	want := []string{"layers.0.bias", "layers.0.weight", "layers.1.weight"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("Expected mismatches %v, got %v", want, names)
	}
}
