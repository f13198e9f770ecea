package logger

// Standard field keys for structured logging. Use these consistently across
// all log statements so aggregated logs can be queried by key.
const (
	// Distributed tracing
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// Service topology
	KeyService   = "service"   // Microservice name: instance-management, tenant-management
	KeyComponent = "component" // Component within a service: bootstrap, consumer, api

	// Lifecycle
	KeyStep     = "step"     // Lifecycle step name
	KeyRequired = "required" // Whether the step is required
	KeyPhase    = "phase"    // Lifecycle phase: initialize, start, stop

	// Tenancy
	KeyTenantID     = "tenant_id"     // Tenant identifier (event partition key)
	KeyTenantStatus = "tenant_status" // Tenant provisioning status

	// Templates
	KeyTemplateID = "template_id" // Instance template identifier
	KeySubsystem  = "subsystem"   // Initializer target subsystem
	KeyScript     = "script"      // Initializer script path

	// Coordination store
	KeyNodePath = "node_path" // Coordination store path
	KeyBackend  = "backend"   // Store backend: memory, badger, postgres

	// Change log
	KeyOffset = "offset" // Change log offset
	KeyGroup  = "group"  // Consumer group
	KeyOp     = "op"     // Change operation: create, update, delete

	// HTTP API
	KeyMethod     = "method"     // HTTP method
	KeyRoute      = "route"      // Matched route pattern
	KeyStatusCode = "status"     // HTTP status code
	KeyClientIP   = "client_ip"  // Client IP address
	KeyRequestID  = "request_id" // Request correlation ID

	// Operation metadata
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyAttempt    = "attempt"     // Bootstrap attempt ordinal (across restarts)
)
