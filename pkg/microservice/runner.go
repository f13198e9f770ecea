package microservice

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/groundplane/groundplane/internal/logger"
	"github.com/groundplane/groundplane/pkg/lifecycle"
)

// DefaultShutdownTimeout bounds the reverse-order stop pass when no
// timeout is configured.
const DefaultShutdownTimeout = 30 * time.Second

// Runner executes a set of microservices as one process.
//
// Run initializes and starts each service in declared order (a service
// starts only after every service before it is fully up), then blocks
// until the context is cancelled or a service's background work fails.
// Shutdown stops the services in reverse declared order under the
// configured timeout.
type Runner struct {
	services        []Microservice
	shutdownTimeout time.Duration
	logger          *slog.Logger

	runOnce sync.Once
	ready   atomic.Bool
}

// NewRunner creates a runner over the given services in their run order. A
// non-positive shutdownTimeout falls back to DefaultShutdownTimeout.
func NewRunner(shutdownTimeout time.Duration, services ...Microservice) *Runner {
	if shutdownTimeout <= 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}
	return &Runner{
		services:        services,
		shutdownTimeout: shutdownTimeout,
		logger:          logger.With("component", "runner"),
	}
}

// Ready reports whether every service has completed its start phase and
// the runner has not begun shutting down.
func (r *Runner) Ready() bool {
	return r.ready.Load()
}

// Run executes the services and blocks until shutdown completes. It
// returns nil on a clean context cancellation; a phase failure or a fatal
// background failure is returned after the already-running services have
// been stopped. Run executes at most once.
func (r *Runner) Run(ctx context.Context) error {
	var err error
	r.runOnce.Do(func() {
		err = r.run(ctx)
	})
	return err
}

func (r *Runner) run(ctx context.Context) error {
	var up []Microservice
	for _, svc := range r.services {
		mon := lifecycle.NewMonitor(r.logger.With("service", svc.Name()))

		r.logger.Info("Initializing service", "service", svc.Name())
		if err := svc.Initialize(ctx, mon); err != nil {
			// The failing service may be partially built; include it in
			// the stop pass.
			r.shutdown(append(up, svc))
			return fmt.Errorf("service %s initialize failed: %w", svc.Name(), err)
		}

		r.logger.Info("Starting service", "service", svc.Name())
		if err := svc.Start(ctx, mon); err != nil {
			r.shutdown(append(up, svc))
			return fmt.Errorf("service %s start failed: %w", svc.Name(), err)
		}
		up = append(up, svc)
	}

	r.ready.Store(true)
	r.logger.Info("All services running", "count", len(up))

	failures, stopWatch := r.watch()
	defer close(stopWatch)

	var runErr error
	select {
	case <-ctx.Done():
		r.logger.Info("Shutdown signal received", "reason", ctx.Err())
	case err := <-failures:
		r.logger.Error("Service failed, shutting down", "error", err)
		runErr = err
	}

	r.ready.Store(false)
	r.shutdown(up)
	return runErr
}

// watch fans the services' background failure channels into one. The first
// failure wins; the rest are dropped. Closing stopWatch releases the
// watcher goroutines.
func (r *Runner) watch() (<-chan error, chan struct{}) {
	failures := make(chan error, 1)
	stopWatch := make(chan struct{})

	for _, svc := range r.services {
		bg, ok := svc.(Background)
		if !ok {
			continue
		}
		go func(name string, done <-chan error) {
			select {
			case err := <-done:
				select {
				case failures <- fmt.Errorf("service %s: %w", name, err):
				default:
				}
			case <-stopWatch:
			}
		}(svc.Name(), bg.Done())
	}
	return failures, stopWatch
}

// shutdown stops services in reverse order. Stop errors are logged, never
// propagated: one stuck service must not keep the rest from shutting down.
func (r *Runner) shutdown(services []Microservice) {
	ctx, cancel := context.WithTimeout(context.Background(), r.shutdownTimeout)
	defer cancel()

	for i := len(services) - 1; i >= 0; i-- {
		svc := services[i]
		mon := lifecycle.NewMonitor(r.logger.With("service", svc.Name()))

		r.logger.Info("Stopping service", "service", svc.Name())
		if err := svc.Stop(ctx, mon); err != nil {
			r.logger.Warn("Service stop reported errors", "service", svc.Name(), "error", err)
		}
	}
}
