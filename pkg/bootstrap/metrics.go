package bootstrap

import "time"

// Scope and outcome label values reported to Metrics.
const (
	ScopeInstance = "instance"
	ScopeTenant   = "tenant"

	OutcomeBootstrapped        = "bootstrapped"
	OutcomeAlreadyBootstrapped = "already_bootstrapped"
	OutcomeFailed              = "failed"
)

// Metrics provides observability for bootstrap runs. Optional: pass nil to
// disable collection at zero overhead.
//
// Example implementations:
//   - Prometheus metrics (pkg/metrics/prometheus)
//   - In-memory counters for testing
type Metrics interface {
	// ObserveRun records one bootstrap run with its scope, outcome and
	// duration.
	ObserveRun(scope, outcome string, duration time.Duration)
}

// observeRun reports a run when m is non-nil.
func observeRun(m Metrics, scope, outcome string, start time.Time) {
	if m != nil {
		m.ObserveRun(scope, outcome, time.Since(start))
	}
}
