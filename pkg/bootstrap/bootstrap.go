// Package bootstrap performs the one-time initialization of instance-wide
// and per-tenant configuration from a template.
//
// Whether a bootstrap has ever run is recorded as a presence-only marker in
// the coordination store. Marker absence is the only authorization to run
// bootstrap side effects, and the marker is created strictly after every
// other side effect: a crash mid-sequence leaves it absent, so the whole
// sequence re-runs on the next attempt. Every side effect is therefore safe
// to repeat: the template copy overwrites, and subsystem script loads are
// idempotent by the Loader contract.
//
// No distributed lease protects the sequence as a whole. Two racing
// processes can both observe marker absence and both run the copy and the
// script loads before either creates the marker; the idempotence above makes
// that window harmless, and the atomic create-if-absent on the marker keeps
// it a single logical bootstrap.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/groundplane/groundplane/internal/logger"
	"github.com/groundplane/groundplane/internal/telemetry"
	"github.com/groundplane/groundplane/pkg/coordination"
	"github.com/groundplane/groundplane/pkg/lifecycle"
	"github.com/groundplane/groundplane/pkg/template"
)

// Bootstrapper performs instance-scoped bootstrap: registers the instance
// node and applies the configured template to /instance exactly once across
// the fleet.
type Bootstrapper struct {
	store      coordination.Store
	templates  *template.Manager
	registry   *template.Registry
	templateID string
	metrics    Metrics
	logger     *slog.Logger
}

// New creates a Bootstrapper for the configured instance template. metrics
// may be nil.
//
// The template manager must have loaded its templates before
// VerifyOrBootstrapConfiguration runs; the registry must hold a loader for
// every subsystem the template's initializers name.
func New(store coordination.Store, templates *template.Manager, registry *template.Registry, templateID string, metrics Metrics) *Bootstrapper {
	return &Bootstrapper{
		store:      store,
		templates:  templates,
		registry:   registry,
		templateID: templateID,
		metrics:    metrics,
		logger:     logger.With("component", "bootstrapper"),
	}
}

// VerifyOrCreateInstanceNode ensures the instance registration node exists.
// Losing the creation race to another instance is success: the node exists
// either way.
func (b *Bootstrapper) VerifyOrCreateInstanceNode(ctx context.Context) error {
	created, err := b.store.CreateIfAbsent(ctx, coordination.InstancePath, nil)
	if err != nil {
		return fmt.Errorf("failed to verify instance node: %w", err)
	}

	if created {
		b.logger.Info("Registered instance", "path", coordination.InstancePath)
	} else {
		b.logger.Debug("Instance node already present", "path", coordination.InstancePath)
	}
	return nil
}

// VerifyOrBootstrapConfiguration bootstraps the instance configuration if it
// has never been bootstrapped.
//
// If the marker exists the call performs zero side effects. Otherwise it
// copies the configured template's content tree under /instance, runs the
// template's initializer scripts against the registered subsystems, and only
// after both succeed creates the marker. Any failure leaves the marker
// absent and is fatal to the caller's startup; recovery is a restart, which
// re-runs the sequence.
func (b *Bootstrapper) VerifyOrBootstrapConfiguration(ctx context.Context) error {
	ctx, span := telemetry.StartBootstrapSpan(ctx, ScopeInstance,
		telemetry.TemplateID(b.templateID))
	defer span.End()

	start := time.Now()

	bootstrapped, err := b.store.Exists(ctx, coordination.InstanceBootstrappedPath)
	if err != nil {
		observeRun(b.metrics, ScopeInstance, OutcomeFailed, start)
		telemetry.RecordError(ctx, err)
		return fmt.Errorf("failed to check instance bootstrap marker: %w", err)
	}
	if bootstrapped {
		observeRun(b.metrics, ScopeInstance, OutcomeAlreadyBootstrapped, start)
		b.logger.Info("Instance configuration already bootstrapped",
			"template_id", b.templateID,
		)
		return nil
	}

	b.logger.Info("Bootstrapping instance configuration",
		"template_id", b.templateID,
	)

	if err := applyTemplate(ctx, b.store, b.templates, b.registry, b.templateID, coordination.InstancePath); err != nil {
		observeRun(b.metrics, ScopeInstance, OutcomeFailed, start)
		telemetry.RecordError(ctx, err)
		return fmt.Errorf("instance bootstrap failed: %w", err)
	}

	// Marker creation comes strictly last. Losing the create race means
	// another instance completed the same idempotent sequence first.
	created, err := b.store.CreateIfAbsent(ctx, coordination.InstanceBootstrappedPath, nil)
	if err != nil {
		observeRun(b.metrics, ScopeInstance, OutcomeFailed, start)
		telemetry.RecordError(ctx, err)
		return fmt.Errorf("failed to create instance bootstrap marker: %w", err)
	}

	observeRun(b.metrics, ScopeInstance, OutcomeBootstrapped, start)
	if !created {
		b.logger.Info("Instance bootstrapped concurrently by another process")
		return nil
	}

	b.logger.Info("Instance configuration bootstrapped",
		"template_id", b.templateID,
	)
	return nil
}

// Bootstrapped reports whether the instance bootstrap marker exists.
func (b *Bootstrapper) Bootstrapped(ctx context.Context) (bool, error) {
	return b.store.Exists(ctx, coordination.InstanceBootstrappedPath)
}

// VerifyInstanceNodeStep returns the lifecycle step wrapping
// VerifyOrCreateInstanceNode.
func (b *Bootstrapper) VerifyInstanceNodeStep() lifecycle.Step {
	return lifecycle.NewStep("verify-instance-node", b.VerifyOrCreateInstanceNode)
}

// BootstrapConfigurationStep returns the lifecycle step wrapping
// VerifyOrBootstrapConfiguration.
func (b *Bootstrapper) BootstrapConfigurationStep() lifecycle.Step {
	return lifecycle.NewStep("verify-or-bootstrap-configuration", b.VerifyOrBootstrapConfiguration)
}

// Steps returns the bootstrap steps for a service start composite, in
// execution order. The owning service inserts its own steps between them
// where needed; template loading, in particular, must have happened before
// the configuration step runs.
func (b *Bootstrapper) Steps() []lifecycle.Step {
	return []lifecycle.Step{
		b.VerifyInstanceNodeStep(),
		b.BootstrapConfigurationStep(),
	}
}

// applyTemplate runs the shared copy-then-initialize sequence used by both
// the instance and the tenant bootstrap. Scripts are loaded from the copied
// tree in the coordination store, not from the template source.
func applyTemplate(ctx context.Context, store coordination.Store, templates *template.Manager, registry *template.Registry, templateID, destPath string) error {
	if err := templates.CopyContents(ctx, store, templateID, destPath); err != nil {
		return err
	}
	return templates.Initialize(ctx, store, templateID, destPath, registry)
}
