package microservice

import (
	"context"
	"fmt"

	"github.com/groundplane/groundplane/pkg/bootstrap"
	"github.com/groundplane/groundplane/pkg/coordination"
	"github.com/groundplane/groundplane/pkg/lifecycle"
	"github.com/groundplane/groundplane/pkg/metrics/prometheus"
	"github.com/groundplane/groundplane/pkg/template"
)

// InstanceManagement owns instance-wide configuration: it registers the
// instance node and applies the configured template under /instance exactly
// once across the fleet.
//
// The service holds no connections of its own (the coordination store is
// shared infrastructure owned by the caller), so its stop phase is empty.
type InstanceManagement struct {
	store        coordination.Store
	templates    *template.Manager
	bootstrapper *bootstrap.Bootstrapper
}

var _ Microservice = (*InstanceManagement)(nil)

// NewInstanceManagement creates the instance-management service over shared
// infrastructure. templateID names the instance configuration template; the
// registry must hold a loader for every subsystem that template's
// initializers name.
func NewInstanceManagement(store coordination.Store, source template.Source, registry *template.Registry, templateID string) *InstanceManagement {
	templates := template.NewManager(source)
	return &InstanceManagement{
		store:        store,
		templates:    templates,
		bootstrapper: bootstrap.New(store, templates, registry, templateID, prometheus.NewBootstrapMetrics()),
	}
}

// Name returns ServiceInstanceManagement.
func (s *InstanceManagement) Name() string { return ServiceInstanceManagement }

// Initialize probes the coordination backend so an unreachable store fails
// startup here, under a named step, instead of halfway into the bootstrap
// sequence.
func (s *InstanceManagement) Initialize(ctx context.Context, mon *lifecycle.Monitor) error {
	return lifecycle.NewComposite(s.Name()+".initialize",
		lifecycle.NewStep("check-coordination-store", s.checkStore),
	).Execute(ctx, mon)
}

// Start runs the instance bootstrap sequence: verify the instance node,
// load the templates, then verify or bootstrap the configuration. Template
// loading sits between the bootstrap steps because the configuration step
// resolves the template by id.
func (s *InstanceManagement) Start(ctx context.Context, mon *lifecycle.Monitor) error {
	return lifecycle.NewComposite(s.Name()+".start",
		s.bootstrapper.VerifyInstanceNodeStep(),
		lifecycle.NewStep("load-templates", s.templates.Load),
		s.bootstrapper.BootstrapConfigurationStep(),
	).Execute(ctx, mon)
}

// Stop has nothing to shut down.
func (s *InstanceManagement) Stop(ctx context.Context, mon *lifecycle.Monitor) error {
	return lifecycle.NewComposite(s.Name() + ".stop").Execute(ctx, mon)
}

// Bootstrapper returns the instance bootstrapper, whose Bootstrapped check
// backs readiness probes.
func (s *InstanceManagement) Bootstrapper() *bootstrap.Bootstrapper {
	return s.bootstrapper
}

func (s *InstanceManagement) checkStore(ctx context.Context) error {
	if _, err := s.store.Exists(ctx, coordination.InstancePath); err != nil {
		return fmt.Errorf("coordination store unavailable: %w", err)
	}
	return nil
}
