package optimizer

import (
	"math"
	"strings"
	"testing"

	"github.com/PotapenkoOleg/PyTorch/tensor"
)

func newParam(t *testing.T, values ...float64) *tensor.Tensor {
	t.Helper()
	p, err := tensor.NewTensor([]int{len(values)}, tensor.Float64, values)
	if err != nil {
		t.Fatalf("NewTensor failed: %v", err)
	}
	p.SetRequiresGrad(true)
	return p
}

// setGrad runs a backward pass of sum(p * g) so p.Grad() == g.
func setGrad(t *testing.T, p *tensor.Tensor, g ...float64) {
	t.Helper()
	gt, err := tensor.NewTensor([]int{len(g)}, tensor.Float64, g)
	if err != nil {
		t.Fatalf("NewTensor failed: %v", err)
	}
	prod, err := tensor.MulAutograd(p, gt)
	if err != nil {
		t.Fatalf("MulAutograd failed: %v", err)
	}
	s, err := tensor.SumAutograd(prod)
	if err != nil {
		t.Fatalf("SumAutograd failed: %v", err)
	}
	if err := s.Backward(); err != nil {
		t.Fatalf("Backward failed: %v", err)
	}
}

func assertValues(t *testing.T, name string, got, want []float64, tol float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: expected %d values, got %d", name, len(want), len(got))
	}
	for i := range got {
		if math.Abs(got[i]-want[i]) > tol {
			t.Errorf("%s[%d]: expected %.10f, got %.10f", name, i, want[i], got[i])
		}
	}
}

func TestDefaultSGDConfig(t *testing.T) {
	config := DefaultSGDConfig()
	if config.LearningRate != 0.01 {
		t.Errorf("Expected LearningRate 0.01, got %f", config.LearningRate)
	}
	if config.Momentum != 0 || config.WeightDecay != 0 || config.Nesterov {
		t.Errorf("Expected vanilla SGD defaults, got %+v", config)
	}
}

func TestSGDConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *SGDConfig)
	}{
		{"zero_lr", func(c *SGDConfig) { c.LearningRate = 0 }},
		{"negative_momentum", func(c *SGDConfig) { c.Momentum = -0.1 }},
		{"momentum_above_one", func(c *SGDConfig) { c.Momentum = 1.5 }},
		{"negative_weight_decay", func(c *SGDConfig) { c.WeightDecay = -1 }},
		{"nesterov_without_momentum", func(c *SGDConfig) { c.Nesterov = true }},
		{"nesterov_with_dampening", func(c *SGDConfig) { c.Nesterov = true; c.Momentum = 0.9; c.Dampening = 0.1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultSGDConfig()
			tt.mutate(&config)
			if _, err := NewSGDOptimizer(config, []*tensor.Tensor{newParam(t, 1)}); err == nil {
				t.Errorf("expected validation error for %+v", config)
			}
		})
	}
}

func TestOptimizerRejectsBadParameters(t *testing.T) {
	if _, err := NewSGDOptimizer(DefaultSGDConfig(), nil); err == nil {
		t.Error("expected error for empty parameter list")
	}
	frozen, _ := tensor.NewTensor([]int{1}, tensor.Float64, []float64{1})
	if _, err := NewAdamOptimizer(DefaultAdamConfig(), []*tensor.Tensor{frozen}); err == nil {
		t.Error("expected error for parameter without requires_grad")
	}
}

func TestSGDStep(t *testing.T) {
	t.Run("vanilla", func(t *testing.T) {
		p := newParam(t, 1.0, -2.0)
		opt, err := NewSGDOptimizer(SGDConfig{LearningRate: 0.1}, []*tensor.Tensor{p})
		if err != nil {
			t.Fatalf("NewSGDOptimizer failed: %v", err)
		}
		setGrad(t, p, 0.5, -1.0)
		if err := opt.Step(); err != nil {
			t.Fatalf("Step failed: %v", err)
		}
		assertValues(t, "weights", p.Float64s(), []float64{0.95, -1.9}, 1e-12)
		if opt.GetStepCount() != 1 {
			t.Errorf("expected step count 1, got %d", opt.GetStepCount())
		}
	})

	t.Run("weight_decay", func(t *testing.T) {
		p := newParam(t, 2.0)
		opt, err := NewSGDOptimizer(SGDConfig{LearningRate: 0.1, WeightDecay: 0.5}, []*tensor.Tensor{p})
		if err != nil {
			t.Fatalf("NewSGDOptimizer failed: %v", err)
		}
		setGrad(t, p, 1.0)
		if err := opt.Step(); err != nil {
			t.Fatalf("Step failed: %v", err)
		}
		// d_p = 1 + 0.5*2 = 2
		assertValues(t, "weights", p.Float64s(), []float64{1.8}, 1e-12)
	})

	t.Run("momentum", func(t *testing.T) {
		p := newParam(t, 0.0)
		opt, err := NewSGDOptimizer(SGDConfig{LearningRate: 0.1, Momentum: 0.9}, []*tensor.Tensor{p})
		if err != nil {
			t.Fatalf("NewSGDOptimizer failed: %v", err)
		}
		for i := 0; i < 2; i++ {
			opt.ZeroGrad()
			setGrad(t, p, 1.0)
			if err := opt.Step(); err != nil {
				t.Fatalf("Step failed: %v", err)
			}
		}
		// buf1 = 1, w = -0.1; buf2 = 0.9 + 1 = 1.9, w = -0.29
		assertValues(t, "weights", p.Float64s(), []float64{-0.29}, 1e-12)
	})

	t.Run("nesterov", func(t *testing.T) {
		p := newParam(t, 0.0)
		opt, err := NewSGDOptimizer(SGDConfig{LearningRate: 0.1, Momentum: 0.9, Nesterov: true}, []*tensor.Tensor{p})
		if err != nil {
			t.Fatalf("NewSGDOptimizer failed: %v", err)
		}
		setGrad(t, p, 1.0)
		if err := opt.Step(); err != nil {
			t.Fatalf("Step failed: %v", err)
		}
		// buf = 1, d_p = 1 + 0.9*1 = 1.9
		assertValues(t, "weights", p.Float64s(), []float64{-0.19}, 1e-12)
	})
}

func TestStepSkipsParametersWithoutGradient(t *testing.T) {
	used := newParam(t, 1.0)
	unused := newParam(t, 5.0)
	opt, err := NewAdamOptimizer(DefaultAdamConfig(), []*tensor.Tensor{used, unused})
	if err != nil {
		t.Fatalf("NewAdamOptimizer failed: %v", err)
	}
	setGrad(t, used, 1.0)
	if err := opt.Step(); err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if unused.Float64s()[0] != 5.0 {
		t.Errorf("parameter without gradient changed to %f", unused.Float64s()[0])
	}
	if used.Float64s()[0] == 1.0 {
		t.Error("parameter with gradient was not updated")
	}
}

func TestZeroGradIsIdempotent(t *testing.T) {
	p := newParam(t, 1.0, 2.0)
	opt, err := NewSGDOptimizer(DefaultSGDConfig(), []*tensor.Tensor{p})
	if err != nil {
		t.Fatalf("NewSGDOptimizer failed: %v", err)
	}
	opt.ZeroGrad()
	setGrad(t, p, 3.0, 4.0)
	opt.ZeroGrad()
	opt.ZeroGrad()
	assertValues(t, "grad", p.Grad().Float64s(), []float64{0, 0}, 0)

	if err := opt.Step(); err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	assertValues(t, "weights", p.Float64s(), []float64{1.0, 2.0}, 0)
}

func TestAdamFirstStep(t *testing.T) {
	p := newParam(t, 1.0, 1.0)
	opt, err := NewAdamOptimizer(AdamConfig{LearningRate: 0.01, Beta1: 0.9, Beta2: 0.999, Epsilon: 1e-8}, []*tensor.Tensor{p})
	if err != nil {
		t.Fatalf("NewAdamOptimizer failed: %v", err)
	}
	setGrad(t, p, 3.0, -0.2)
	if err := opt.Step(); err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	// With bias correction the first update is lr * sign(g).
	assertValues(t, "weights", p.Float64s(), []float64{0.99, 1.01}, 1e-6)

	stats := opt.GetStats()
	if stats["step_count"] != 1 {
		t.Errorf("expected step_count 1, got %f", stats["step_count"])
	}
}

func TestRMSPropStep(t *testing.T) {
	p := newParam(t, 1.0)
	opt, err := NewRMSPropOptimizer(RMSPropConfig{LearningRate: 0.01, Alpha: 0.99, Epsilon: 1e-8}, []*tensor.Tensor{p})
	if err != nil {
		t.Fatalf("NewRMSPropOptimizer failed: %v", err)
	}
	setGrad(t, p, 2.0)
	if err := opt.Step(); err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	// sq = 0.01*4 = 0.04, update = 0.01 * 2 / 0.2 = 0.1
	assertValues(t, "weights", p.Float64s(), []float64{0.9}, 1e-6)
}

func TestAdaGradStep(t *testing.T) {
	p := newParam(t, 1.0)
	opt, err := NewAdaGradOptimizer(AdaGradConfig{LearningRate: 0.5, Epsilon: 1e-10}, []*tensor.Tensor{p})
	if err != nil {
		t.Fatalf("NewAdaGradOptimizer failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		opt.ZeroGrad()
		setGrad(t, p, 2.0)
		if err := opt.Step(); err != nil {
			t.Fatalf("Step failed: %v", err)
		}
	}
	// step1: 0.5*2/2 = 0.5; step2: 0.5*2/sqrt(8)
	want := 1.0 - 0.5 - 1.0/math.Sqrt(8)
	assertValues(t, "weights", p.Float64s(), []float64{want}, 1e-9)
}

func TestStateRoundTrip(t *testing.T) {
	configs := []Config{
		{Name: "sgd", LearningRate: 0.1, Momentum: 0.9},
		{Name: "adam", LearningRate: 0.01},
		{Name: "rmsprop", Momentum: 0.5, Centered: true},
		{Name: "adagrad"},
	}
	for _, cfg := range configs {
		t.Run(cfg.Name, func(t *testing.T) {
			p := newParam(t, 1.0, -1.0)
			opt, err := New(cfg, []*tensor.Tensor{p})
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			setGrad(t, p, 0.3, 0.7)
			if err := opt.Step(); err != nil {
				t.Fatalf("Step failed: %v", err)
			}
			state, err := opt.GetState()
			if err != nil {
				t.Fatalf("GetState failed: %v", err)
			}
			if state.Type != opt.Name() {
				t.Errorf("expected state type %s, got %s", opt.Name(), state.Type)
			}

			// Continue both copies with the same gradient and compare.
			clone := newParam(t, p.Float64s()...)
			restored, err := New(cfg, []*tensor.Tensor{clone})
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			if err := restored.LoadState(state); err != nil {
				t.Fatalf("LoadState failed: %v", err)
			}
			if restored.GetStepCount() != opt.GetStepCount() {
				t.Errorf("step count %d, expected %d", restored.GetStepCount(), opt.GetStepCount())
			}

			opt.ZeroGrad()
			setGrad(t, p, 0.3, 0.7)
			setGrad(t, clone, 0.3, 0.7)
			if err := opt.Step(); err != nil {
				t.Fatalf("Step failed: %v", err)
			}
			if err := restored.Step(); err != nil {
				t.Fatalf("Step failed: %v", err)
			}
			assertValues(t, "weights", clone.Float64s(), p.Float64s(), 1e-12)
		})
	}
}

func TestLoadStateRejectsWrongType(t *testing.T) {
	p := newParam(t, 1.0)
	sgd, _ := NewSGDOptimizer(DefaultSGDConfig(), []*tensor.Tensor{p})
	adam, _ := NewAdamOptimizer(DefaultAdamConfig(), []*tensor.Tensor{p})
	state, err := adam.GetState()
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if err := sgd.LoadState(state); err == nil {
		t.Error("expected type mismatch error")
	}
	if err := sgd.LoadState(nil); err == nil {
		t.Error("expected error for nil state")
	}
}

func TestSetLR(t *testing.T) {
	p := newParam(t, 1.0)
	opt, err := New(Config{Name: "Adam"}, []*tensor.Tensor{p})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	opt.SetLR(0.5)
	if opt.GetLR() != 0.5 {
		t.Errorf("expected lr 0.5, got %f", opt.GetLR())
	}
}

func TestFactory(t *testing.T) {
	p := newParam(t, 1.0)
	for _, name := range Names {
		opt, err := New(Config{Name: name}, []*tensor.Tensor{p})
		if err != nil {
			t.Fatalf("New(%s) failed: %v", name, err)
		}
		if !strings.EqualFold(opt.Name(), name) {
			t.Errorf("New(%s) built %s", name, opt.Name())
		}
	}
	if _, err := New(Config{Name: "lbfgs"}, []*tensor.Tensor{p}); err == nil {
		t.Error("expected error for unknown optimizer")
	}
}

func TestExtractBufferIndex(t *testing.T) {
	tests := map[string]int{
		"momentum_0":          0,
		"squared_grad_avg_12": 12,
		"variance":            -1,
		"m_x":                 -1,
	}
	for name, want := range tests {
		if got := extractBufferIndex(name); got != want {
			t.Errorf("extractBufferIndex(%q) = %d, expected %d", name, got, want)
		}
	}
}
