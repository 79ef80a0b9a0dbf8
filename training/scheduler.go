package training

import (
	"fmt"
	"math"
	"strings"
)

// LRScheduler maps an epoch (0-based) to a learning rate. Implementations
// other than ReduceLROnPlateauScheduler are stateless, so a run resumed from
// a checkpoint recomputes the same rate.
type LRScheduler interface {
	GetLR(epoch int, step int, baseLR float64) float64
	GetName() string
}

// MetricScheduler is an LRScheduler driven by the evaluation loss instead of
// the epoch counter. The trainer calls Step once per epoch.
type MetricScheduler interface {
	LRScheduler
	Step(metric float64, currentLR float64) float64
}

// StepLRScheduler multiplies the rate by Gamma every StepSize epochs.
type StepLRScheduler struct {
	StepSize int
	Gamma    float64
}

func NewStepLRScheduler(stepSize int, gamma float64) *StepLRScheduler {
	s := &StepLRScheduler{StepSize: 30, Gamma: 0.1}
	if stepSize > 0 {
		s.StepSize = stepSize
	}
	if validDecay(gamma) {
		s.Gamma = gamma
	}
	return s
}

func (s *StepLRScheduler) GetLR(epoch int, _ int, baseLR float64) float64 {
	return decay(baseLR, s.Gamma, epoch/s.StepSize)
}

func (s *StepLRScheduler) GetName() string { return "StepLR" }

// ExponentialLRScheduler multiplies the rate by Gamma every epoch.
type ExponentialLRScheduler struct {
	Gamma float64
}

func NewExponentialLRScheduler(gamma float64) *ExponentialLRScheduler {
	if !validDecay(gamma) {
		gamma = 0.95
	}
	return &ExponentialLRScheduler{Gamma: gamma}
}

func (s *ExponentialLRScheduler) GetLR(epoch int, _ int, baseLR float64) float64 {
	return decay(baseLR, s.Gamma, epoch)
}

func (s *ExponentialLRScheduler) GetName() string { return "ExponentialLR" }

// CosineAnnealingLRScheduler follows half a cosine from baseLR down to EtaMin
// over TMax epochs and stays at EtaMin afterwards.
type CosineAnnealingLRScheduler struct {
	TMax   int
	EtaMin float64
}

func NewCosineAnnealingLRScheduler(tMax int, etaMin float64) *CosineAnnealingLRScheduler {
	s := &CosineAnnealingLRScheduler{TMax: 100}
	if tMax > 0 {
		s.TMax = tMax
	}
	if etaMin > 0 {
		s.EtaMin = etaMin
	}
	return s
}

func (s *CosineAnnealingLRScheduler) GetLR(epoch int, _ int, baseLR float64) float64 {
	if epoch >= s.TMax {
		return s.EtaMin
	}
	progress := float64(epoch) / float64(s.TMax)
	return s.EtaMin + 0.5*(baseLR-s.EtaMin)*(1+math.Cos(math.Pi*progress))
}

func (s *CosineAnnealingLRScheduler) GetName() string { return "CosineAnnealingLR" }

// ReduceLROnPlateauScheduler cuts the rate by Factor once the watched metric
// has failed to improve by more than Threshold for Patience epochs in a row.
type ReduceLROnPlateauScheduler struct {
	Factor    float64
	Patience  int
	Threshold float64
	Mode      string // "min" or "max"

	best   float64
	stale  int
	lr     float64
	primed bool
}

func NewReduceLROnPlateauScheduler(factor float64, patience int, threshold float64, mode string) *ReduceLROnPlateauScheduler {
	s := &ReduceLROnPlateauScheduler{Factor: 0.1, Patience: 10, Threshold: 1e-4, Mode: "min"}
	if validDecay(factor) {
		s.Factor = factor
	}
	if patience > 0 {
		s.Patience = patience
	}
	if threshold >= 0 {
		s.Threshold = threshold
	}
	if mode == "max" {
		s.Mode = mode
	}
	return s
}

// Step records this epoch's metric and returns the rate for the next one.
// The first call only establishes the baseline.
func (s *ReduceLROnPlateauScheduler) Step(metric float64, currentLR float64) float64 {
	if !s.primed {
		s.best, s.lr, s.primed = metric, currentLR, true
		return currentLR
	}

	if s.better(metric) {
		s.best = metric
		s.stale = 0
		return s.lr
	}

	s.stale++
	if s.stale >= s.Patience {
		s.lr *= s.Factor
		s.stale = 0
	}
	return s.lr
}

func (s *ReduceLROnPlateauScheduler) better(metric float64) bool {
	if s.Mode == "max" {
		return metric > s.best+s.Threshold
	}
	return metric < s.best-s.Threshold
}

func (s *ReduceLROnPlateauScheduler) GetLR(_ int, _ int, baseLR float64) float64 {
	if !s.primed {
		return baseLR
	}
	return s.lr
}

func (s *ReduceLROnPlateauScheduler) GetName() string { return "ReduceLROnPlateau" }

// NoOpScheduler keeps the optimizer's rate.
type NoOpScheduler struct{}

func (NoOpScheduler) GetLR(_ int, _ int, baseLR float64) float64 { return baseLR }

func (NoOpScheduler) GetName() string { return "ConstantLR" }

func validDecay(gamma float64) bool { return gamma > 0 && gamma < 1 }

func decay(baseLR, gamma float64, times int) float64 {
	return baseLR * math.Pow(gamma, float64(times))
}

// SchedulerConfig selects a scheduler by name.
type SchedulerConfig struct {
	Name     string  `yaml:"name"`
	StepSize int     `yaml:"step_size"`
	Gamma    float64 `yaml:"gamma"`
	TMax     int     `yaml:"t_max"`
	EtaMin   float64 `yaml:"eta_min"`
	Patience int     `yaml:"patience"`
}

// NewScheduler builds the scheduler named by cfg.Name. The empty name and
// "constant" give a NoOpScheduler.
func NewScheduler(cfg SchedulerConfig) (LRScheduler, error) {
	switch strings.ToLower(cfg.Name) {
	case "", "constant", "none":
		return NoOpScheduler{}, nil
	case "step":
		return NewStepLRScheduler(cfg.StepSize, cfg.Gamma), nil
	case "exponential":
		return NewExponentialLRScheduler(cfg.Gamma), nil
	case "cosine":
		return NewCosineAnnealingLRScheduler(cfg.TMax, cfg.EtaMin), nil
	case "plateau":
		return NewReduceLROnPlateauScheduler(cfg.Gamma, cfg.Patience, 1e-4, "min"), nil
	default:
		return nil, fmt.Errorf("unknown scheduler %q", cfg.Name)
	}
}
