package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/groundplane/groundplane/internal/logger"
	"github.com/groundplane/groundplane/internal/telemetry"
	"github.com/groundplane/groundplane/pkg/coordination"
	"github.com/groundplane/groundplane/pkg/template"
	"github.com/groundplane/groundplane/pkg/tenant"
)

// TenantBootstrapper performs the per-tenant analogue of the instance
// bootstrap: each tenant gets its own subtree under /tenant/<tenantId> and
// its own marker, and the template comes from the tenant record rather than
// from process configuration.
//
// It is driven by the provisioning consumer, which may redeliver the same
// create event; the marker check makes redelivery a no-op.
type TenantBootstrapper struct {
	store     coordination.Store
	templates *template.Manager
	registry  *template.Registry
	metrics   Metrics
	logger    *slog.Logger
}

// NewTenantBootstrapper creates a TenantBootstrapper over the given store,
// template manager, and subsystem registry. metrics may be nil.
func NewTenantBootstrapper(store coordination.Store, templates *template.Manager, registry *template.Registry, metrics Metrics) *TenantBootstrapper {
	return &TenantBootstrapper{
		store:     store,
		templates: templates,
		registry:  registry,
		metrics:   metrics,
		logger:    logger.With("component", "tenant_bootstrapper"),
	}
}

// Bootstrap initializes the tenant's configuration subtree from the tenant's
// template. If the tenant's marker exists the call performs zero side
// effects; otherwise it copies the template tree under /tenant/<tenantId>,
// runs the initializer scripts, and creates the marker last. The sequence
// follows the same crash-recovery contract as the instance bootstrap.
func (b *TenantBootstrapper) Bootstrap(ctx context.Context, t *tenant.Tenant) error {
	ctx, span := telemetry.StartBootstrapSpan(ctx, ScopeTenant,
		telemetry.TenantID(t.ID),
		telemetry.TemplateID(t.TemplateID))
	defer span.End()

	start := time.Now()
	markerPath := coordination.TenantBootstrappedPath(t.ID)

	bootstrapped, err := b.store.Exists(ctx, markerPath)
	if err != nil {
		observeRun(b.metrics, ScopeTenant, OutcomeFailed, start)
		telemetry.RecordError(ctx, err)
		return fmt.Errorf("failed to check tenant bootstrap marker: %w", err)
	}
	if bootstrapped {
		observeRun(b.metrics, ScopeTenant, OutcomeAlreadyBootstrapped, start)
		b.logger.Debug("Tenant already bootstrapped",
			"tenant_id", t.ID,
			"template_id", t.TemplateID,
		)
		return nil
	}

	b.logger.Info("Bootstrapping tenant",
		"tenant_id", t.ID,
		"template_id", t.TemplateID,
	)

	destPath := coordination.TenantPath(t.ID)
	if err := applyTemplate(ctx, b.store, b.templates, b.registry, t.TemplateID, destPath); err != nil {
		observeRun(b.metrics, ScopeTenant, OutcomeFailed, start)
		telemetry.RecordError(ctx, err)
		return fmt.Errorf("tenant %s bootstrap failed: %w", t.ID, err)
	}

	created, err := b.store.CreateIfAbsent(ctx, markerPath, nil)
	if err != nil {
		observeRun(b.metrics, ScopeTenant, OutcomeFailed, start)
		telemetry.RecordError(ctx, err)
		return fmt.Errorf("failed to create tenant bootstrap marker: %w", err)
	}

	observeRun(b.metrics, ScopeTenant, OutcomeBootstrapped, start)
	if !created {
		b.logger.Info("Tenant bootstrapped concurrently", "tenant_id", t.ID)
		return nil
	}

	b.logger.Info("Tenant bootstrapped",
		"tenant_id", t.ID,
		"template_id", t.TemplateID,
	)
	return nil
}

// Bootstrapped reports whether the tenant's bootstrap marker exists.
func (b *TenantBootstrapper) Bootstrapped(ctx context.Context, tenantID string) (bool, error) {
	return b.store.Exists(ctx, coordination.TenantBootstrappedPath(tenantID))
}
