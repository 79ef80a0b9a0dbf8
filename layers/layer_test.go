package layers_test

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/PotapenkoOleg/PyTorch/layers"
)

func TestNewMLPSpec(t *testing.T) {
	spec, err := layers.NewMLPSpec(4, []int{16, 8}, 3, layers.ActivationTanh, layers.OutputLogits)
	if err != nil {
		t.Fatalf("Failed to compile model: %v", err)
	}

	if !spec.Compiled {
		t.Error("Spec should be compiled")
	}
	if !reflect.DeepEqual(spec.Widths(), []int{4, 16, 8, 3}) {
		t.Errorf("Expected widths [4 16 8 3], got %v", spec.Widths())
	}
	if spec.Activation != layers.ActivationTanh {
		t.Errorf("Expected tanh activation, got %s", spec.Activation)
	}
	if spec.OutputMode != layers.OutputLogits {
		t.Errorf("Expected logits output, got %s", spec.OutputMode)
	}

	wantParams := int64(4*16 + 16 + 16*8 + 8 + 8*3 + 3)
	if spec.TotalParameters != wantParams {
		t.Errorf("Expected %d parameters, got %d", wantParams, spec.TotalParameters)
	}

	expected := spec.ExpectedParameters()
	if len(expected) != 6 {
		t.Fatalf("Expected 6 parameters, got %d", len(expected))
	}
	if expected[2].Name != "layers.1.weight" || !reflect.DeepEqual(expected[2].Shape, []int{16, 8}) {
		t.Errorf("Unexpected parameter %+v", expected[2])
	}
	if expected[5].Name != "layers.2.bias" || !reflect.DeepEqual(expected[5].Shape, []int{3}) {
		t.Errorf("Unexpected parameter %+v", expected[5])
	}
}

func TestLogProbsSpec(t *testing.T) {
	spec, err := layers.NewMLPSpec(4, []int{16}, 3, layers.ActivationReLU, layers.OutputLogProbs)
	if err != nil {
		t.Fatalf("Failed to compile model: %v", err)
	}
	last := spec.Layers[len(spec.Layers)-1]
	if last.Type != layers.LogSoftmax {
		t.Errorf("Expected final LogSoftmax layer, got %s", last.Type)
	}
	if spec.OutputMode != layers.OutputLogProbs {
		t.Errorf("Expected log_probs output, got %s", spec.OutputMode)
	}
	if spec.OutputSize != 3 {
		t.Errorf("Expected output size 3, got %d", spec.OutputSize)
	}
}

func TestNoHiddenLayers(t *testing.T) {
	spec, err := layers.NewMLPSpec(5, nil, 2, layers.ActivationSigmoid, layers.OutputLogits)
	if err != nil {
		t.Fatalf("Failed to compile model: %v", err)
	}
	if len(spec.HiddenSizes) != 0 {
		t.Errorf("Expected no hidden layers, got %v", spec.HiddenSizes)
	}
	if spec.Activation != layers.ActivationSigmoid {
		t.Errorf("Requested activation should be recorded, got %s", spec.Activation)
	}
}

func TestCompileRejectsInvalidModels(t *testing.T) {
	tests := []struct {
		name  string
		build func() *layers.ModelBuilder
	}{
		{"empty", func() *layers.ModelBuilder { return layers.NewModelBuilder(4) }},
		{"zero input", func() *layers.ModelBuilder { return layers.NewModelBuilder(0).AddDense(3, "fc") }},
		{"zero width", func() *layers.ModelBuilder { return layers.NewModelBuilder(4).AddDense(0, "fc") }},
		{"activation first", func() *layers.ModelBuilder {
			return layers.NewModelBuilder(4).AddActivation(layers.ActivationReLU, "relu").AddDense(3, "fc")
		}},
		{"adjacent dense", func() *layers.ModelBuilder {
			return layers.NewModelBuilder(4).AddDense(8, "fc1").AddDense(3, "fc2")
		}},
		{"trailing activation", func() *layers.ModelBuilder {
			return layers.NewModelBuilder(4).AddDense(3, "fc").AddActivation(layers.ActivationReLU, "relu")
		}},
		{"mixed activations", func() *layers.ModelBuilder {
			return layers.NewModelBuilder(4).
				AddDense(8, "fc1").AddActivation(layers.ActivationReLU, "relu").
				AddDense(8, "fc2").AddActivation(layers.ActivationTanh, "tanh").
				AddDense(3, "fc3")
		}},
		{"log softmax in the middle", func() *layers.ModelBuilder {
			return layers.NewModelBuilder(4).AddDense(8, "fc1").AddLogSoftmax("ls").AddDense(3, "fc2")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.build().Compile(); err == nil {
				t.Errorf("Expected compile error for %s", tt.name)
			}
		})
	}
}

func TestParseEnums(t *testing.T) {
	for in, want := range map[string]layers.Activation{"": layers.ActivationReLU, "ReLU": layers.ActivationReLU, "tanh": layers.ActivationTanh, "sigmoid": layers.ActivationSigmoid} {
		got, err := layers.ParseActivation(in)
		if err != nil || got != want {
			t.Errorf("ParseActivation(%q) = %s, %v; want %s", in, got, err, want)
		}
	}
	if _, err := layers.ParseActivation("gelu"); err == nil {
		t.Error("Expected error for unknown activation")
	}

	for in, want := range map[string]layers.OutputMode{"": layers.OutputLogits, "logits": layers.OutputLogits, "log_probs": layers.OutputLogProbs} {
		got, err := layers.ParseOutputMode(in)
		if err != nil || got != want {
			t.Errorf("ParseOutputMode(%q) = %s, %v; want %s", in, got, err, want)
		}
	}
	if _, err := layers.ParseOutputMode("probs"); err == nil {
		t.Error("Expected error for unknown output mode")
	}
}

func TestSpecJSONUsesNames(t *testing.T) {
	spec, err := layers.NewMLPSpec(4, []int{8}, 3, layers.ActivationTanh, layers.OutputLogProbs)
	if err != nil {
		t.Fatalf("Failed to compile model: %v", err)
	}
	raw, err := json.Marshal(spec)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(raw), `"activation":"tanh"`) || !strings.Contains(string(raw), `"output_mode":"log_probs"`) {
		t.Errorf("Expected named enums in JSON, got %s", raw)
	}

	var decoded layers.ModelSpec
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded.Activation != layers.ActivationTanh || decoded.OutputMode != layers.OutputLogProbs {
		t.Errorf("Enums did not survive JSON: %s %s", decoded.Activation, decoded.OutputMode)
	}
}

func TestSummary(t *testing.T) {
	spec, _ := layers.NewMLPSpec(4, []int{16}, 3, layers.ActivationReLU, layers.OutputLogits)
	summary := spec.Summary()
	for _, part := range []string{"Widths: [4 16 3]", "Total Parameters: 131", "dense1"} {
		if !strings.Contains(summary, part) {
			t.Errorf("Summary missing %q:\n%s", part, summary)
		}
	}
	if (&layers.ModelSpec{}).Summary() != "Model not compiled" {
		t.Error("Uncompiled spec should say so")
	}
}
