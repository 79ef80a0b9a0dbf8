// Package config holds the YAML run configuration shared by the example
// programs.
package config

import (
	"bytes"
	"io"
	"os"
	"strings"

	"github.com/PotapenkoOleg/PyTorch/checkpoints"
	"github.com/PotapenkoOleg/PyTorch/layers"
	"github.com/PotapenkoOleg/PyTorch/optimizer"
	"github.com/PotapenkoOleg/PyTorch/training"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config captures the runtime knobs for a training run.
type Config struct {
	Model      ModelConfig      `yaml:"model"`
	Training   TrainingConfig   `yaml:"training"`
	Data       DataConfig       `yaml:"data"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
}

// ModelConfig describes the network architecture.
type ModelConfig struct {
	InputSize   int    `yaml:"input_size"`
	HiddenSizes []int  `yaml:"hidden_sizes"`
	OutputSize  int    `yaml:"output_size"`
	Activation  string `yaml:"activation"`  // relu, tanh or sigmoid
	OutputMode  string `yaml:"output_mode"` // logits or log_probs
}

// TrainingConfig describes the optimization loop.
type TrainingConfig struct {
	Epochs        int                      `yaml:"epochs"`
	BatchSize     int                      `yaml:"batch_size"`
	Shuffle       bool                     `yaml:"shuffle"`
	Seed          int64                    `yaml:"seed"`
	LogEvery      int                      `yaml:"log_every"`
	EarlyStopping bool                     `yaml:"early_stopping"`
	Patience      int                      `yaml:"patience"`
	Optimizer     optimizer.Config         `yaml:"optimizer"`
	Scheduler     training.SchedulerConfig `yaml:"scheduler"`
}

// DataConfig describes the synthetic Gaussian-cluster data.
type DataConfig struct {
	TrainSamples int     `yaml:"train_samples"`
	TestSamples  int     `yaml:"test_samples"`
	Spread       float64 `yaml:"spread"`
	Seed         int64   `yaml:"seed"`
}

// CheckpointConfig describes where and how often checkpoints are written.
type CheckpointConfig struct {
	Directory string `yaml:"directory"`
	Format    string `yaml:"format"`     // binary or json
	SaveEvery int    `yaml:"save_every"` // epochs, 0 disables periodic saves
	Keep      int    `yaml:"keep"`       // periodic files kept, 0 keeps all
	SaveBest  bool   `yaml:"save_best"`
}

// Overrides captures CLI supplied values. Zero values leave the config alone.
type Overrides struct {
	HiddenSizes   []int
	OutputMode    string
	Epochs        int
	BatchSize     int
	LearningRate  float64
	Optimizer     string
	Seed          int64
	LogEvery      int
	TrainSamples  int
	CheckpointDir string
}

// Default returns the 4→16→3 Iris configuration.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			InputSize:   4,
			HiddenSizes: []int{16},
			OutputSize:  3,
			Activation:  "relu",
			OutputMode:  "logits",
		},
		Training: TrainingConfig{
			Epochs:    10,
			BatchSize: 8,
			Shuffle:   true,
			Seed:      42,
			Patience:  3,
			Optimizer: optimizer.Config{Name: "sgd", LearningRate: 0.1},
			Scheduler: training.SchedulerConfig{Name: "constant"},
		},
		Data: DataConfig{
			TrainSamples: 120,
			TestSamples:  60,
			Spread:       0.35,
			Seed:         7,
		},
		Checkpoint: CheckpointConfig{
			Directory: "./checkpoints",
			Format:    "binary",
			SaveEvery: 5,
			Keep:      3,
			SaveBest:  true,
		},
	}
}

// Load reads a YAML file over Default and validates the result.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "open config")
	}

	cfg, err := Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over Default. Keys missing from the document keep their
// default; unknown keys are an error.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return cfg, nil
}

// Write encodes cfg as YAML.
func (c *Config) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}

// ApplyOverrides updates cfg using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if len(o.HiddenSizes) > 0 {
		c.Model.HiddenSizes = append([]int(nil), o.HiddenSizes...)
	}
	if o.OutputMode != "" {
		c.Model.OutputMode = o.OutputMode
	}
	if o.Epochs > 0 {
		c.Training.Epochs = o.Epochs
	}
	if o.BatchSize > 0 {
		c.Training.BatchSize = o.BatchSize
	}
	if o.LearningRate > 0 {
		c.Training.Optimizer.LearningRate = o.LearningRate
	}
	if o.Optimizer != "" {
		c.Training.Optimizer.Name = o.Optimizer
	}
	if o.Seed != 0 {
		c.Training.Seed = o.Seed
	}
	if o.LogEvery > 0 {
		c.Training.LogEvery = o.LogEvery
	}
	if o.TrainSamples > 0 {
		c.Data.TrainSamples = o.TrainSamples
	}
	if o.CheckpointDir != "" {
		c.Checkpoint.Directory = o.CheckpointDir
	}
}

// Validate verifies the config is runnable.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if _, err := c.ModelSpec(); err != nil {
		return errors.Wrap(err, "model")
	}
	if c.Training.Epochs <= 0 {
		return errors.Errorf("training.epochs must be > 0 (got %d)", c.Training.Epochs)
	}
	if c.Training.BatchSize <= 0 {
		return errors.Errorf("training.batch_size must be > 0 (got %d)", c.Training.BatchSize)
	}
	if c.Training.LogEvery < 0 {
		return errors.Errorf("training.log_every must be >= 0 (got %d)", c.Training.LogEvery)
	}
	if c.Training.EarlyStopping && c.Training.Patience <= 0 {
		return errors.Errorf("training.patience must be > 0 with early stopping (got %d)", c.Training.Patience)
	}
	if !knownOptimizer(c.Training.Optimizer.Name) {
		return errors.Errorf("training.optimizer.name %q is not one of %s", c.Training.Optimizer.Name, strings.Join(optimizer.Names, ", "))
	}
	if c.Training.Optimizer.LearningRate < 0 {
		return errors.Errorf("training.optimizer.learning_rate must be >= 0 (got %g)", c.Training.Optimizer.LearningRate)
	}
	if _, err := training.NewScheduler(c.Training.Scheduler); err != nil {
		return errors.Wrap(err, "training.scheduler")
	}
	if c.Data.TrainSamples <= 0 || c.Data.TestSamples <= 0 {
		return errors.Errorf("data: train_samples and test_samples must be > 0 (got %d, %d)", c.Data.TrainSamples, c.Data.TestSamples)
	}
	if c.Data.Spread <= 0 {
		return errors.Errorf("data.spread must be > 0 (got %g)", c.Data.Spread)
	}
	if _, err := c.CheckpointFormat(); err != nil {
		return err
	}
	if c.Checkpoint.SaveEvery < 0 || c.Checkpoint.Keep < 0 {
		return errors.Errorf("checkpoint: save_every and keep must be >= 0")
	}
	return nil
}

func knownOptimizer(name string) bool {
	if name == "" {
		return true
	}
	for _, n := range optimizer.Names {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}

// ModelSpec compiles the model section.
func (c *Config) ModelSpec() (*layers.ModelSpec, error) {
	act, err := layers.ParseActivation(c.Model.Activation)
	if err != nil {
		return nil, err
	}
	mode, err := layers.ParseOutputMode(c.Model.OutputMode)
	if err != nil {
		return nil, err
	}
	return layers.NewMLPSpec(c.Model.InputSize, c.Model.HiddenSizes, c.Model.OutputSize, act, mode)
}

// CheckpointFormat parses checkpoint.format.
func (c *Config) CheckpointFormat() (checkpoints.CheckpointFormat, error) {
	switch strings.ToLower(c.Checkpoint.Format) {
	case "", "binary", "ckpt":
		return checkpoints.FormatBinary, nil
	case "json":
		return checkpoints.FormatJSON, nil
	default:
		return 0, errors.Errorf("checkpoint.format %q must be binary or json", c.Checkpoint.Format)
	}
}

// TrainingCheckpoints converts the checkpoint section for a CheckpointManager.
func (c *Config) TrainingCheckpoints(runID string) (training.CheckpointConfig, error) {
	format, err := c.CheckpointFormat()
	if err != nil {
		return training.CheckpointConfig{}, err
	}
	out := training.DefaultCheckpointConfig()
	out.SaveDirectory = c.Checkpoint.Directory
	out.SaveFrequency = c.Checkpoint.SaveEvery
	out.MaxCheckpoints = c.Checkpoint.Keep
	out.SaveBest = c.Checkpoint.SaveBest
	out.Format = format
	out.RunID = runID
	return out, nil
}
