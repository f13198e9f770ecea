// Package tenant defines the tenant domain model shared by the management
// API, the change trigger and the bootstrap consumer.
package tenant

import (
	"errors"
	"time"
)

// Status is a tenant's provisioning state.
type Status string

const (
	// StatusCreated: persisted by the management API, not yet observed by
	// the bootstrap consumer.
	StatusCreated Status = "created"

	// StatusBootstrapping: the consumer is running the tenant's bootstrap
	// sequence.
	StatusBootstrapping Status = "bootstrapping"

	// StatusActive: bootstrap completed, tenant is serving.
	StatusActive Status = "active"

	// StatusFailed: bootstrap failed; surfaced for operator retry.
	StatusFailed Status = "failed"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusCreated, StatusBootstrapping, StatusActive, StatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next follows the
// provisioning state machine. Active is terminal; failed tenants may be
// re-bootstrapped.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusCreated:
		return next == StatusBootstrapping
	case StatusBootstrapping:
		return next == StatusActive || next == StatusFailed
	case StatusFailed:
		return next == StatusBootstrapping
	}
	return false
}

// Common errors for tenant operations.
var (
	ErrTenantNotFound  = errors.New("tenant not found")
	ErrDuplicateTenant = errors.New("tenant already exists")
	ErrInvalidTenant   = errors.New("invalid tenant")
)

// Tenant is one isolated customer environment on the platform.
type Tenant struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	Name       string    `gorm:"uniqueIndex;not null;size:255" json:"name"`
	TemplateID string    `gorm:"not null;size:255" json:"template_id"`
	Status     Status    `gorm:"not null;size:32;default:created" json:"status"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for Tenant.
func (Tenant) TableName() string {
	return "tenants"
}

// AllModels returns all GORM models for auto-migration.
func AllModels() []any {
	return []any{
		&Tenant{},
	}
}
