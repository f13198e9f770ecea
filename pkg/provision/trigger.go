// Package provision connects tenant persistence to per-tenant bootstrap.
//
// The Trigger side decorates the tenant store: every successful management
// mutation publishes one change event to the log. The Consumer side drains
// the log and drives each tenant's bootstrap as a small state machine. The
// two run in separate processes and share no memory; the log is the only
// channel between them.
package provision

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/groundplane/groundplane/internal/logger"
	"github.com/groundplane/groundplane/internal/telemetry"
	"github.com/groundplane/groundplane/pkg/changelog"
	"github.com/groundplane/groundplane/pkg/tenant"
	"github.com/groundplane/groundplane/pkg/tenant/store"
)

// Trigger decorates a tenant store with change-event publication.
//
// Each mutating call runs the underlying persistence first and publishes
// only after it succeeds; a persistence failure publishes nothing and
// propagates unchanged. If persistence succeeds but the publish fails, the
// mutation stands and the event is lost: the gap is logged and counted, not
// compensated, and not surfaced to the caller. Closing it would take a
// transactional outbox, which ties the log to the store's transaction, a
// trade this layer deliberately does not make on its own.
//
// Status updates pass through without publishing: they are provisioning
// progress written by the consumer, and publishing them would feed the
// consumer its own writes. Reads pass through untouched.
type Trigger struct {
	store   store.Store
	log     changelog.Log
	metrics TriggerMetrics
	logger  *slog.Logger
}

var _ store.Store = (*Trigger)(nil)

// NewTrigger wraps s so that successful mutations publish change events to
// log. metrics may be nil.
func NewTrigger(s store.Store, log changelog.Log, metrics TriggerMetrics) *Trigger {
	return &Trigger{
		store:   s,
		log:     log,
		metrics: metrics,
		logger:  logger.With("component", "change_trigger"),
	}
}

// CreateTenant persists the tenant and publishes a create event carrying
// the persisted record.
func (t *Trigger) CreateTenant(ctx context.Context, rec *tenant.Tenant) (string, error) {
	id, err := t.store.CreateTenant(ctx, rec)
	if err != nil {
		return "", err
	}
	t.publish(ctx, changelog.OpCreate, id, rec)
	return id, nil
}

// GetTenant passes through to the underlying store.
func (t *Trigger) GetTenant(ctx context.Context, id string) (*tenant.Tenant, error) {
	return t.store.GetTenant(ctx, id)
}

// ListTenants passes through to the underlying store.
func (t *Trigger) ListTenants(ctx context.Context) ([]*tenant.Tenant, error) {
	return t.store.ListTenants(ctx)
}

// UpdateTenant persists the update and publishes an update event carrying
// the updated record.
func (t *Trigger) UpdateTenant(ctx context.Context, rec *tenant.Tenant) error {
	if err := t.store.UpdateTenant(ctx, rec); err != nil {
		return err
	}
	t.publish(ctx, changelog.OpUpdate, rec.ID, rec)
	return nil
}

// UpdateTenantStatus passes through without publishing.
func (t *Trigger) UpdateTenantStatus(ctx context.Context, id string, status tenant.Status) error {
	return t.store.UpdateTenantStatus(ctx, id, status)
}

// DeleteTenant removes the tenant and publishes a delete event with no
// payload.
func (t *Trigger) DeleteTenant(ctx context.Context, id string) error {
	if err := t.store.DeleteTenant(ctx, id); err != nil {
		return err
	}
	t.publish(ctx, changelog.OpDelete, id, nil)
	return nil
}

// Healthcheck passes through to the underlying store.
func (t *Trigger) Healthcheck(ctx context.Context) error {
	return t.store.Healthcheck(ctx)
}

// Close closes the underlying store. The change log is owned by the caller
// and stays open.
func (t *Trigger) Close() error {
	return t.store.Close()
}

// publish appends one event to the change log. Failures are logged and
// counted, never returned: the persistence outcome already stands.
func (t *Trigger) publish(ctx context.Context, op changelog.Op, tenantID string, rec *tenant.Tenant) {
	ctx, span := telemetry.StartLogSpan(ctx, "append",
		telemetry.LogOp(string(op)),
		telemetry.LogKey(tenantID))
	defer span.End()

	var payload []byte
	if rec != nil {
		data, err := json.Marshal(rec)
		if err != nil {
			t.recordFailure(op)
			telemetry.RecordError(ctx, err)
			t.logger.Error("Failed to encode change event; mutation stands, event lost",
				"tenant_id", tenantID,
				"op", op,
				"error", err,
			)
			return
		}
		payload = data
	}

	offset, err := t.log.Append(ctx, changelog.Event{
		TenantID: tenantID,
		Op:       op,
		Payload:  payload,
	})
	if err != nil {
		t.recordFailure(op)
		telemetry.RecordError(ctx, err)
		t.logger.Error("Failed to publish change event; mutation stands, event lost",
			"tenant_id", tenantID,
			"op", op,
			"error", err,
		)
		return
	}

	if t.metrics != nil {
		t.metrics.RecordPublish(op)
	}
	t.logger.Debug("Published change event",
		"tenant_id", tenantID,
		"op", op,
		"offset", offset,
	)
}

func (t *Trigger) recordFailure(op changelog.Op) {
	if t.metrics != nil {
		t.metrics.RecordPublishFailure(op)
	}
}
