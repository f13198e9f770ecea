package prometheus

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/groundplane/groundplane/pkg/changelog"
	"github.com/groundplane/groundplane/pkg/metrics"
	"github.com/groundplane/groundplane/pkg/provision"
)

// triggerMetrics is the Prometheus implementation of
// provision.TriggerMetrics.
type triggerMetrics struct {
	published *prometheus.CounterVec
	failures  *prometheus.CounterVec
}

var (
	triggerOnce sync.Once
	triggerInst *triggerMetrics
)

// NewTriggerMetrics returns the Prometheus-backed provision.TriggerMetrics
// instance. Collectors register once; every caller shares the same
// instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewTriggerMetrics() provision.TriggerMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	triggerOnce.Do(func() {
		triggerInst = newTriggerMetrics(metrics.GetRegistry())
	})
	return triggerInst
}

func newTriggerMetrics(reg *prometheus.Registry) *triggerMetrics {
	return &triggerMetrics{
		published: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "groundplane_changelog_published_total",
				Help: "Total number of change events published by operation",
			},
			[]string{"op"}, // "create", "update", "delete"
		),
		failures: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "groundplane_changelog_publish_failures_total",
				Help: "Total number of change events lost because the append failed after a committed mutation",
			},
			[]string{"op"},
		),
	}
}

// RecordPublish records one successfully published change event.
func (m *triggerMetrics) RecordPublish(op changelog.Op) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(string(op)).Inc()
}

// RecordPublishFailure records one lost change event.
func (m *triggerMetrics) RecordPublishFailure(op changelog.Op) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(string(op)).Inc()
}

// consumerMetrics is the Prometheus implementation of
// provision.ConsumerMetrics.
type consumerMetrics struct {
	events          *prometheus.CounterVec
	provisioning    *prometheus.CounterVec
	duration        prometheus.Histogram
	committedOffset prometheus.Gauge
}

var (
	consumerOnce sync.Once
	consumerInst *consumerMetrics
)

// NewConsumerMetrics returns the Prometheus-backed
// provision.ConsumerMetrics instance. Collectors register once; every
// caller shares the same instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewConsumerMetrics() provision.ConsumerMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	consumerOnce.Do(func() {
		consumerInst = newConsumerMetrics(metrics.GetRegistry())
	})
	return consumerInst
}

func newConsumerMetrics(reg *prometheus.Registry) *consumerMetrics {
	return &consumerMetrics{
		events: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "groundplane_consumer_events_total",
				Help: "Total number of change events consumed by operation",
			},
			[]string{"op"},
		),
		provisioning: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "groundplane_consumer_provisioning_total",
				Help: "Total number of tenant provisioning runs by outcome",
			},
			[]string{"outcome"}, // "provisioned", "already_provisioned", "failed"
		),
		duration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "groundplane_consumer_provisioning_duration_seconds",
				Help:    "Duration of tenant provisioning runs in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
			},
		),
		committedOffset: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "groundplane_consumer_committed_offset",
				Help: "Last change log offset committed by the consumer group",
			},
		),
	}
}

// RecordEvent records one consumed change event.
func (m *consumerMetrics) RecordEvent(op changelog.Op) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(string(op)).Inc()
}

// RecordProvisioning records one provisioning run.
func (m *consumerMetrics) RecordProvisioning(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.provisioning.WithLabelValues(outcome).Inc()
	m.duration.Observe(duration.Seconds())
}

// SetCommittedOffset records the group's committed log position.
func (m *consumerMetrics) SetCommittedOffset(offset uint64) {
	if m == nil {
		return
	}
	m.committedOffset.Set(float64(offset))
}
