package optimizer

import (
	"fmt"
	"strings"

	"github.com/PotapenkoOleg/PyTorch/tensor"
)

// Config selects an optimizer by name and carries the union of all
// hyperparameters. Zero values fall back to the optimizer's defaults, except
// for flags and coefficients where zero is meaningful (momentum, weight decay).
type Config struct {
	Name         string  `yaml:"name"`
	LearningRate float64 `yaml:"learning_rate"`
	Momentum     float64 `yaml:"momentum"`
	Dampening    float64 `yaml:"dampening"`
	Beta1        float64 `yaml:"beta1"`
	Beta2        float64 `yaml:"beta2"`
	Epsilon      float64 `yaml:"epsilon"`
	Alpha        float64 `yaml:"alpha"`
	WeightDecay  float64 `yaml:"weight_decay"`
	Nesterov     bool    `yaml:"nesterov"`
	Centered     bool    `yaml:"centered"`
}

// Names lists the optimizers New understands.
var Names = []string{"sgd", "adam", "rmsprop", "adagrad"}

// New constructs the optimizer named by cfg.Name over params.
func New(cfg Config, params []*tensor.Tensor) (Optimizer, error) {
	switch strings.ToLower(cfg.Name) {
	case "", "sgd":
		c := DefaultSGDConfig()
		setIfPositive(&c.LearningRate, cfg.LearningRate)
		c.Momentum = cfg.Momentum
		c.Dampening = cfg.Dampening
		c.WeightDecay = cfg.WeightDecay
		c.Nesterov = cfg.Nesterov
		return NewSGDOptimizer(c, params)
	case "adam":
		c := DefaultAdamConfig()
		setIfPositive(&c.LearningRate, cfg.LearningRate)
		setIfPositive(&c.Beta1, cfg.Beta1)
		setIfPositive(&c.Beta2, cfg.Beta2)
		setIfPositive(&c.Epsilon, cfg.Epsilon)
		c.WeightDecay = cfg.WeightDecay
		return NewAdamOptimizer(c, params)
	case "rmsprop":
		c := DefaultRMSPropConfig()
		setIfPositive(&c.LearningRate, cfg.LearningRate)
		setIfPositive(&c.Alpha, cfg.Alpha)
		setIfPositive(&c.Epsilon, cfg.Epsilon)
		c.Momentum = cfg.Momentum
		c.WeightDecay = cfg.WeightDecay
		c.Centered = cfg.Centered
		return NewRMSPropOptimizer(c, params)
	case "adagrad":
		c := DefaultAdaGradConfig()
		setIfPositive(&c.LearningRate, cfg.LearningRate)
		setIfPositive(&c.Epsilon, cfg.Epsilon)
		c.WeightDecay = cfg.WeightDecay
		return NewAdaGradOptimizer(c, params)
	default:
		return nil, fmt.Errorf("unknown optimizer %q (supported: %s)", cfg.Name, strings.Join(Names, ", "))
	}
}

func setIfPositive(dst *float64, v float64) {
	if v > 0 {
		*dst = v
	}
}
