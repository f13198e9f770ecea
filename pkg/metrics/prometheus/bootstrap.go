// Package prometheus holds the Prometheus-backed implementations of the
// metrics interfaces defined by the instrumented packages. Every
// constructor returns nil until metrics.InitRegistry has been called, and
// every method is safe on a nil receiver, so disabled metrics cost nothing.
package prometheus

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/groundplane/groundplane/pkg/bootstrap"
	"github.com/groundplane/groundplane/pkg/metrics"
)

// bootstrapMetrics is the Prometheus implementation of bootstrap.Metrics.
type bootstrapMetrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var (
	bootstrapOnce sync.Once
	bootstrapInst *bootstrapMetrics
)

// NewBootstrapMetrics returns the Prometheus-backed bootstrap.Metrics
// instance. Collectors register once; every caller shares the same
// instance, so the instance and tenant bootstrappers can both call this.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewBootstrapMetrics() bootstrap.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	bootstrapOnce.Do(func() {
		bootstrapInst = newBootstrapMetrics(metrics.GetRegistry())
	})
	return bootstrapInst
}

func newBootstrapMetrics(reg *prometheus.Registry) *bootstrapMetrics {
	return &bootstrapMetrics{
		runs: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "groundplane_bootstrap_runs_total",
				Help: "Total number of bootstrap runs by scope and outcome",
			},
			[]string{"scope", "outcome"}, // scope: "instance", "tenant"
		),
		duration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "groundplane_bootstrap_duration_seconds",
				Help: "Duration of bootstrap runs in seconds",
				Buckets: []float64{
					0.01, // marker-only checks
					0.05,
					0.1,
					0.5,
					1,
					5,
					15,
					60, // large templates over slow stores
				},
			},
			[]string{"scope"},
		),
	}
}

// ObserveRun records one bootstrap run with its scope, outcome and duration.
func (m *bootstrapMetrics) ObserveRun(scope, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(scope, outcome).Inc()
	m.duration.WithLabelValues(scope).Observe(duration.Seconds())
}
