package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/groundplane/groundplane/internal/telemetry"
	"github.com/groundplane/groundplane/pkg/tenant"
)

func (s *GORMStore) CreateTenant(ctx context.Context, t *tenant.Tenant) (string, error) {
	ctx, span := telemetry.StartTenantSpan(ctx, "create", t.ID,
		telemetry.TenantName(t.Name),
		telemetry.TenantTemplate(t.TemplateID))
	defer span.End()

	if t.Name == "" {
		return "", fmt.Errorf("%w: name is required", tenant.ErrInvalidTenant)
	}
	if t.TemplateID == "" {
		return "", fmt.Errorf("%w: template id is required", tenant.ErrInvalidTenant)
	}
	if t.Status == "" {
		t.Status = tenant.StatusCreated
	}
	if !t.Status.IsValid() {
		return "", fmt.Errorf("%w: unknown status %q", tenant.ErrInvalidTenant, t.Status)
	}

	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now

	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		if isUniqueConstraintError(err) {
			return "", tenant.ErrDuplicateTenant
		}
		telemetry.RecordError(ctx, err)
		return "", err
	}
	return t.ID, nil
}

func (s *GORMStore) GetTenant(ctx context.Context, id string) (*tenant.Tenant, error) {
	ctx, span := telemetry.StartTenantSpan(ctx, "get", id)
	defer span.End()

	var t tenant.Tenant
	err := s.db.WithContext(ctx).
		Where("id = ?", id).
		First(&t).Error
	if err != nil {
		return nil, convertNotFoundError(err, tenant.ErrTenantNotFound)
	}
	return &t, nil
}

func (s *GORMStore) ListTenants(ctx context.Context) ([]*tenant.Tenant, error) {
	ctx, span := telemetry.StartTenantSpan(ctx, "list", "")
	defer span.End()

	var tenants []*tenant.Tenant
	if err := s.db.WithContext(ctx).
		Order("name").
		Find(&tenants).Error; err != nil {
		telemetry.RecordError(ctx, err)
		return nil, err
	}
	return tenants, nil
}

func (s *GORMStore) UpdateTenant(ctx context.Context, t *tenant.Tenant) error {
	ctx, span := telemetry.StartTenantSpan(ctx, "update", t.ID,
		telemetry.TenantName(t.Name),
		telemetry.TenantTemplate(t.TemplateID))
	defer span.End()

	t.UpdatedAt = time.Now()

	// Status changes go through UpdateTenantStatus; this updates the
	// operator-facing fields only.
	result := s.db.WithContext(ctx).
		Model(&tenant.Tenant{}).
		Where("id = ?", t.ID).
		Updates(map[string]any{
			"name":        t.Name,
			"template_id": t.TemplateID,
			"updated_at":  t.UpdatedAt,
		})

	if result.Error != nil {
		if isUniqueConstraintError(result.Error) {
			return tenant.ErrDuplicateTenant
		}
		telemetry.RecordError(ctx, result.Error)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return tenant.ErrTenantNotFound
	}
	return nil
}

func (s *GORMStore) UpdateTenantStatus(ctx context.Context, id string, status tenant.Status) error {
	ctx, span := telemetry.StartTenantSpan(ctx, "update_status", id,
		telemetry.TenantStatus(string(status)))
	defer span.End()

	if !status.IsValid() {
		return fmt.Errorf("%w: unknown status %q", tenant.ErrInvalidTenant, status)
	}

	result := s.db.WithContext(ctx).
		Model(&tenant.Tenant{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     status,
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		telemetry.RecordError(ctx, result.Error)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return tenant.ErrTenantNotFound
	}
	return nil
}

func (s *GORMStore) DeleteTenant(ctx context.Context, id string) error {
	ctx, span := telemetry.StartTenantSpan(ctx, "delete", id)
	defer span.End()

	result := s.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&tenant.Tenant{})

	if result.Error != nil {
		telemetry.RecordError(ctx, result.Error)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return tenant.ErrTenantNotFound
	}
	return nil
}
