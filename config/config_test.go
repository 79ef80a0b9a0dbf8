package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PotapenkoOleg/PyTorch/checkpoints"
	"github.com/PotapenkoOleg/PyTorch/layers"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	spec, err := cfg.ModelSpec()
	if err != nil {
		t.Fatal(err)
	}
	widths := spec.Widths()
	if len(widths) != 3 || widths[0] != 4 || widths[1] != 16 || widths[2] != 3 {
		t.Errorf("unexpected default widths %v", widths)
	}
	if spec.OutputMode != layers.OutputLogits {
		t.Errorf("default output mode should be logits, got %s", spec.OutputMode)
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	doc := `
model:
  hidden_sizes: [32, 8]
  activation: tanh
  output_mode: log_probs
training:
  epochs: 25
  optimizer:
    name: adam
    learning_rate: 0.005
  scheduler:
    name: step
    step_size: 10
    gamma: 0.5
checkpoint:
  format: json
`
	path := filepath.Join(t.TempDir(), "run.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Training.Epochs != 25 || cfg.Training.BatchSize != 8 {
		t.Errorf("epochs/batch_size: got %d/%d", cfg.Training.Epochs, cfg.Training.BatchSize)
	}
	if cfg.Training.Optimizer.Name != "adam" || cfg.Training.Optimizer.LearningRate != 0.005 {
		t.Errorf("optimizer: got %+v", cfg.Training.Optimizer)
	}
	if cfg.Training.Scheduler.StepSize != 10 {
		t.Errorf("scheduler: got %+v", cfg.Training.Scheduler)
	}
	if cfg.Data.TrainSamples != 120 {
		t.Errorf("data section should keep its defaults, got %+v", cfg.Data)
	}

	spec, err := cfg.ModelSpec()
	if err != nil {
		t.Fatal(err)
	}
	if spec.Activation != layers.ActivationTanh || spec.OutputMode != layers.OutputLogProbs {
		t.Errorf("unexpected spec activation %s, mode %s", spec.Activation, spec.OutputMode)
	}
	if len(spec.HiddenSizes) != 2 || spec.HiddenSizes[0] != 32 {
		t.Errorf("unexpected hidden sizes %v", spec.HiddenSizes)
	}

	format, _ := cfg.CheckpointFormat()
	if format != checkpoints.FormatJSON {
		t.Errorf("expected JSON format, got %s", format)
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse(strings.NewReader("training:\n  epochz: 3\n"))
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestParseEmptyDocument(t *testing.T) {
	cfg, err := Parse(strings.NewReader(""))
	if err != nil {
		t.Fatalf("empty document should give defaults: %v", err)
	}
	if cfg.Training.Epochs != Default().Training.Epochs {
		t.Errorf("expected default epochs, got %d", cfg.Training.Epochs)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg := Default()
	cfg.ApplyOverrides(Overrides{
		HiddenSizes:   []int{8},
		Epochs:        3,
		LearningRate:  0.2,
		Optimizer:     "rmsprop",
		CheckpointDir: "/tmp/ckpt",
	})

	if cfg.Model.HiddenSizes[0] != 8 || cfg.Training.Epochs != 3 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.Training.Optimizer.LearningRate != 0.2 || cfg.Training.Optimizer.Name != "rmsprop" {
		t.Errorf("optimizer overrides not applied: %+v", cfg.Training.Optimizer)
	}
	if cfg.Training.BatchSize != 8 {
		t.Errorf("zero override should keep batch size, got %d", cfg.Training.BatchSize)
	}

	ckpt, err := cfg.TrainingCheckpoints("run-1")
	if err != nil {
		t.Fatal(err)
	}
	if ckpt.SaveDirectory != "/tmp/ckpt" || ckpt.RunID != "run-1" || ckpt.MaxCheckpoints != 3 {
		t.Errorf("unexpected checkpoint config %+v", ckpt)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no_epochs", func(c *Config) { c.Training.Epochs = 0 }},
		{"no_batch", func(c *Config) { c.Training.BatchSize = -1 }},
		{"bad_activation", func(c *Config) { c.Model.Activation = "gelu" }},
		{"bad_output_mode", func(c *Config) { c.Model.OutputMode = "probs" }},
		{"zero_width", func(c *Config) { c.Model.HiddenSizes = []int{0} }},
		{"bad_optimizer", func(c *Config) { c.Training.Optimizer.Name = "lion" }},
		{"bad_scheduler", func(c *Config) { c.Training.Scheduler.Name = "warmup" }},
		{"no_samples", func(c *Config) { c.Data.TrainSamples = 0 }},
		{"bad_format", func(c *Config) { c.Checkpoint.Format = "xml" }},
		{"early_stop_no_patience", func(c *Config) { c.Training.EarlyStopping = true; c.Training.Patience = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	var nilCfg *Config
	if err := nilCfg.Validate(); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestWriteRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Model.HiddenSizes = []int{12, 6}

	var buf bytes.Buffer
	if err := cfg.Write(&buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "hidden_sizes:") {
		t.Errorf("unexpected YAML:\n%s", buf.String())
	}

	back, err := Parse(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(back.Model.HiddenSizes) != 2 || back.Model.HiddenSizes[1] != 6 {
		t.Errorf("hidden sizes lost: %v", back.Model.HiddenSizes)
	}
}
