package config

import (
	"path/filepath"
	"strings"

	"github.com/groundplane/groundplane/pkg/microservice"
	"github.com/groundplane/groundplane/pkg/tenant/store"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyServicesDefaults(&cfg.Services)
	applyShutdownTimeoutDefaults(cfg)
	applyCoordinationDefaults(&cfg.Coordination)
	applyChangelogDefaults(&cfg.Changelog)
	applyDatabaseDefaults(&cfg.Database)
	applyTemplatesDefaults(&cfg.Templates)
	applyAPIDefaults(cfg)
	applyConsumerDefaults(cfg)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	// Enabled defaults to false (opt-in for telemetry)

	// Default endpoint is localhost:4317 (standard OTLP gRPC port)
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}

	// Default sample rate is 1.0 (sample all traces)
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope profiling defaults.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	// Default endpoint is localhost:4040 (standard Pyroscope port)
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}

	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

// applyServicesDefaults enables both services, instance bootstrap first.
func applyServicesDefaults(cfg *ServicesConfig) {
	if len(cfg.Enabled) == 0 {
		cfg.Enabled = []string{
			microservice.ServiceInstanceManagement,
			microservice.ServiceTenantManagement,
		}
	}
}

// applyShutdownTimeoutDefaults sets shutdown timeout defaults.
func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = microservice.DefaultShutdownTimeout
	}
}

// applyCoordinationDefaults sets coordination store defaults.
func applyCoordinationDefaults(cfg *CoordinationConfig) {
	if cfg.Backend == "" {
		cfg.Backend = "badger"
	}
	if cfg.Backend == "badger" && cfg.Path == "" {
		cfg.Path = filepath.Join(getConfigDir(), "coordination")
	}
}

// applyChangelogDefaults sets change log defaults.
func applyChangelogDefaults(cfg *ChangelogConfig) {
	if cfg.Backend == "" {
		cfg.Backend = "badger"
	}
	if cfg.Backend == "badger" && cfg.Path == "" {
		cfg.Path = filepath.Join(getConfigDir(), "changelog")
	}
	if cfg.Backend == "postgres" {
		cfg.Postgres.ApplyDefaults()
	}
}

// applyDatabaseDefaults sets tenant database defaults.
func applyDatabaseDefaults(cfg *store.Config) {
	cfg.ApplyDefaults()
}

// applyTemplatesDefaults sets template source defaults.
func applyTemplatesDefaults(cfg *TemplatesConfig) {
	if cfg.Source == "" {
		cfg.Source = "dir"
	}
	if cfg.Source == "dir" && cfg.Dir == "" {
		cfg.Dir = filepath.Join(getConfigDir(), "templates")
	}
	if cfg.InstanceTemplateID == "" {
		cfg.InstanceTemplateID = "default"
	}
}

// applyAPIDefaults sets management API server defaults.
// The API is always enabled (it is the only way to manage tenants).
func applyAPIDefaults(cfg *Config) {
	cfg.API.ApplyDefaults()
}

// applyConsumerDefaults sets bootstrap consumer defaults.
func applyConsumerDefaults(cfg *Config) {
	cfg.Consumer.ApplyDefaults()
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Logging: LoggingConfig{},
		Database: store.Config{
			Type: store.DatabaseTypeSQLite, // Default to SQLite for single-node
		},
		Coordination: CoordinationConfig{
			Backend: "badger",
		},
		Changelog: ChangelogConfig{
			Backend: "badger",
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
