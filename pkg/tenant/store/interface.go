// Package store persists tenants in a relational database. The management
// API writes through it (wrapped by the change trigger), the bootstrap
// consumer updates provisioning status through it directly.
package store

import (
	"context"

	"github.com/groundplane/groundplane/pkg/tenant"
)

// Store is the tenant persistence contract.
type Store interface {
	// CreateTenant persists a new tenant, assigning an id when empty.
	// Returns tenant.ErrDuplicateTenant when the name is taken.
	CreateTenant(ctx context.Context, t *tenant.Tenant) (string, error)

	// GetTenant returns the tenant with the given id.
	// Returns tenant.ErrTenantNotFound when absent.
	GetTenant(ctx context.Context, id string) (*tenant.Tenant, error)

	// ListTenants returns all tenants ordered by name.
	ListTenants(ctx context.Context) ([]*tenant.Tenant, error)

	// UpdateTenant updates the tenant's mutable fields (name, template id).
	// Returns tenant.ErrTenantNotFound when absent.
	UpdateTenant(ctx context.Context, t *tenant.Tenant) error

	// UpdateTenantStatus sets only the tenant's provisioning status.
	// Returns tenant.ErrTenantNotFound when absent.
	UpdateTenantStatus(ctx context.Context, id string, status tenant.Status) error

	// DeleteTenant removes the tenant record.
	// Returns tenant.ErrTenantNotFound when absent.
	DeleteTenant(ctx context.Context, id string) error

	// Healthcheck verifies the database connection is healthy.
	Healthcheck(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
