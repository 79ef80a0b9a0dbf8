package tensor

import "sync/atomic"

// noGradDepth counts active NoGrad scopes; recording is on while it is zero.
// The counter is process-wide, not per goroutine: a NoGrad scope on one
// goroutine also stops recording for every other goroutine until it exits.
var noGradDepth atomic.Int32

// IsGradEnabled reports whether operations currently record the graph.
func IsGradEnabled() bool {
	return noGradDepth.Load() == 0
}

// NoGrad runs fn with graph recording disabled. Results produced inside fn
// have no creator and never require gradients, so inference passes allocate
// no backward state. Scopes nest. The switch is global, so do not run NoGrad
// concurrently with a training step.
func NoGrad(fn func() error) error {
	noGradDepth.Add(1)
	defer noGradDepth.Add(-1)
	return fn()
}
