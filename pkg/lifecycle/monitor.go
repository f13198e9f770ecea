package lifecycle

import (
	"log/slog"
	"time"
)

// Monitor observes step execution for one startup or shutdown invocation.
// It carries the invocation-scoped logger through the step-execution chain
// so steps never reach for a process-wide logger. Progress notifications
// are pass-through only and have no effect on control flow.
//
// A Monitor is scoped to a single invocation; composite execution is
// strictly sequential, so it is never used concurrently. All methods are
// safe on a nil receiver.
type Monitor struct {
	log    *slog.Logger
	starts map[string]time.Time
}

// NewMonitor creates a Monitor that reports progress to log.
func NewMonitor(log *slog.Logger) *Monitor {
	return &Monitor{
		log:    log,
		starts: make(map[string]time.Time),
	}
}

// Logger returns the logger carried by the monitor. It never returns nil:
// a nil monitor yields a logger that discards everything.
func (m *Monitor) Logger() *slog.Logger {
	if m == nil || m.log == nil {
		return slog.New(slog.DiscardHandler)
	}
	return m.log
}

func (m *Monitor) stepStarted(s Step) {
	if m == nil {
		return
	}
	if m.starts == nil {
		m.starts = make(map[string]time.Time)
	}
	m.starts[s.name] = time.Now()
	if m.log != nil {
		m.log.Debug("step started", "step", s.name, "required", s.required)
	}
}

func (m *Monitor) stepSucceeded(s Step) {
	if m == nil {
		return
	}
	if m.log != nil {
		m.log.Info("step completed",
			"step", s.name,
			"duration_ms", m.durationMs(s.name),
		)
	}
}

func (m *Monitor) stepFailed(s Step, err error) {
	if m == nil {
		return
	}
	if m.log == nil {
		return
	}
	if s.required {
		m.log.Error("step failed",
			"step", s.name,
			"duration_ms", m.durationMs(s.name),
			"error", err,
		)
		return
	}
	m.log.Warn("optional step failed, continuing",
		"step", s.name,
		"duration_ms", m.durationMs(s.name),
		"error", err,
	)
}

func (m *Monitor) durationMs(step string) float64 {
	start, ok := m.starts[step]
	if !ok {
		return 0
	}
	return float64(time.Since(start).Microseconds()) / 1000.0
}
