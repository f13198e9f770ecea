package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for control-plane operations.
// These follow OpenTelemetry semantic conventions where applicable.
// Component-specific keys use their component's prefix.
const (
	// ========================================================================
	// Client attributes
	// ========================================================================
	AttrClientIP   = "client.ip"
	AttrClientAddr = "client.address"

	// ========================================================================
	// Tenant attributes
	// ========================================================================
	AttrTenantID       = "tenant.id"
	AttrTenantName     = "tenant.name"
	AttrTenantStatus   = "tenant.status"
	AttrTenantTemplate = "tenant.template"

	// ========================================================================
	// Bootstrap attributes
	// ========================================================================
	AttrBootstrapScope   = "bootstrap.scope"   // instance, tenant
	AttrBootstrapOutcome = "bootstrap.outcome" // bootstrapped, already_bootstrapped, failed

	// ========================================================================
	// Template attributes
	// ========================================================================
	AttrTemplateID     = "template.id"
	AttrTemplateScript = "template.script"

	// ========================================================================
	// Coordination store attributes
	// ========================================================================
	AttrNodePath = "coordination.path"

	// ========================================================================
	// Change log attributes
	// ========================================================================
	AttrLogOp     = "changelog.op"
	AttrLogKey    = "changelog.key"
	AttrLogOffset = "changelog.offset"
	AttrLogGroup  = "changelog.group"

	// ========================================================================
	// Lifecycle attributes
	// ========================================================================
	AttrStepName     = "lifecycle.step"
	AttrStepRequired = "lifecycle.required"

	// ========================================================================
	// User/Auth attributes
	// ========================================================================
	AttrUsername = "user.name"
	AttrAuth     = "auth.method"
)

// Span names for operations.
// Format: <component>.<operation>
const (
	// ========================================================================
	// Tenant management spans
	// ========================================================================
	SpanTenantCreate       = "tenant.create"
	SpanTenantGet          = "tenant.get"
	SpanTenantList         = "tenant.list"
	SpanTenantUpdate       = "tenant.update"
	SpanTenantUpdateStatus = "tenant.update_status"
	SpanTenantDelete       = "tenant.delete"

	// ========================================================================
	// Bootstrap spans
	// ========================================================================
	SpanBootstrapInstance = "bootstrap.instance"
	SpanBootstrapTenant   = "bootstrap.tenant"

	// ========================================================================
	// Template engine spans
	// ========================================================================
	SpanTemplateCopy       = "template.copy"
	SpanTemplateInitialize = "template.initialize"

	// ========================================================================
	// Change log spans
	// ========================================================================
	SpanLogAppend = "changelog.append"
	SpanLogFetch  = "changelog.fetch"
	SpanLogCommit = "changelog.commit"

	// ========================================================================
	// Consumer spans
	// ========================================================================
	SpanConsumerBatch     = "consumer.batch"
	SpanConsumerProvision = "consumer.provision"
)

// ClientIP returns an attribute for client IP address
func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

// ClientAddr returns an attribute for full client address
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// TenantID returns an attribute for tenant identifier
func TenantID(id string) attribute.KeyValue {
	return attribute.String(AttrTenantID, id)
}

// TenantName returns an attribute for tenant display name
func TenantName(name string) attribute.KeyValue {
	return attribute.String(AttrTenantName, name)
}

// TenantStatus returns an attribute for tenant provisioning status
func TenantStatus(status string) attribute.KeyValue {
	return attribute.String(AttrTenantStatus, status)
}

// TenantTemplate returns an attribute for the template a tenant was created from
func TenantTemplate(id string) attribute.KeyValue {
	return attribute.String(AttrTenantTemplate, id)
}

// BootstrapScope returns an attribute for bootstrap scope
func BootstrapScope(scope string) attribute.KeyValue {
	return attribute.String(AttrBootstrapScope, scope)
}

// BootstrapOutcome returns an attribute for bootstrap outcome
func BootstrapOutcome(outcome string) attribute.KeyValue {
	return attribute.String(AttrBootstrapOutcome, outcome)
}

// TemplateID returns an attribute for template identifier
func TemplateID(id string) attribute.KeyValue {
	return attribute.String(AttrTemplateID, id)
}

// TemplateScript returns an attribute for an initializer script path
func TemplateScript(path string) attribute.KeyValue {
	return attribute.String(AttrTemplateScript, path)
}

// NodePath returns an attribute for a coordination store path
func NodePath(path string) attribute.KeyValue {
	return attribute.String(AttrNodePath, path)
}

// LogOp returns an attribute for a change log operation kind
func LogOp(op string) attribute.KeyValue {
	return attribute.String(AttrLogOp, op)
}

// LogKey returns an attribute for a change log event key
func LogKey(key string) attribute.KeyValue {
	return attribute.String(AttrLogKey, key)
}

// LogOffset returns an attribute for a change log offset
func LogOffset(offset uint64) attribute.KeyValue {
	return attribute.Int64(AttrLogOffset, int64(offset))
}

// LogGroup returns an attribute for a consumer group name
func LogGroup(group string) attribute.KeyValue {
	return attribute.String(AttrLogGroup, group)
}

// StepName returns an attribute for a lifecycle step name
func StepName(name string) attribute.KeyValue {
	return attribute.String(AttrStepName, name)
}

// StepRequired returns an attribute for whether a lifecycle step is required
func StepRequired(required bool) attribute.KeyValue {
	return attribute.Bool(AttrStepRequired, required)
}

// Username returns an attribute for username
func Username(name string) attribute.KeyValue {
	return attribute.String(AttrUsername, name)
}

// AuthMethod returns an attribute for authentication method
func AuthMethod(method string) attribute.KeyValue {
	return attribute.String(AttrAuth, method)
}

// StartTenantSpan starts a span for a tenant management operation.
// This is a convenience function that sets common attributes.
func StartTenantSpan(ctx context.Context, operation, tenantID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{}
	if tenantID != "" {
		allAttrs = append(allAttrs, TenantID(tenantID))
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, "tenant."+operation, trace.WithAttributes(allAttrs...))
}

// StartBootstrapSpan starts a span for a bootstrap run at the given scope.
func StartBootstrapSpan(ctx context.Context, scope string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		BootstrapScope(scope),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, "bootstrap."+scope, trace.WithAttributes(allAttrs...))
}

// StartTemplateSpan starts a span for a template engine operation.
func StartTemplateSpan(ctx context.Context, operation, templateID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		TemplateID(templateID),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, "template."+operation, trace.WithAttributes(allAttrs...))
}

// StartLogSpan starts a span for a change log operation.
func StartLogSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, "changelog."+operation, trace.WithAttributes(attrs...))
}

// StartStepSpan starts a span for a lifecycle step execution.
func StartStepSpan(ctx context.Context, name string, required bool, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		StepName(name),
		StepRequired(required),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, "step."+name, trace.WithAttributes(allAttrs...))
}
