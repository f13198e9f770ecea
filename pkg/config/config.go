package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	clpostgres "github.com/groundplane/groundplane/pkg/changelog/postgres"
	"github.com/groundplane/groundplane/pkg/provision"
	"github.com/groundplane/groundplane/pkg/template"
	"github.com/groundplane/groundplane/pkg/tenant/api"
	"github.com/groundplane/groundplane/pkg/tenant/store"
)

// Config represents the Groundplane configuration.
//
// This structure captures the static configuration of a Groundplane process:
//   - Logging configuration
//   - Telemetry/tracing configuration
//   - Which services the process runs and the shutdown timeout
//   - Coordination store and change log backends
//   - Tenant database connection (SQLite or PostgreSQL)
//   - Template source (local directory or S3) and the instance template
//   - Management API settings
//   - Bootstrap consumer settings
//
// Dynamic state (tenants, bootstrap markers, committed offsets) lives in the
// coordination store, the tenant database and the change log, not here.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (GROUNDPLANE_*)
//  2. Configuration file (YAML)
//  3. Default values
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Metrics controls Prometheus metrics collection
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Services selects which services this process runs, in start order.
	Services ServicesConfig `mapstructure:"services" yaml:"services"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Coordination configures the coordination store backend holding
	// bootstrap markers and instance state.
	Coordination CoordinationConfig `mapstructure:"coordination" yaml:"coordination"`

	// Changelog configures the change log backend carrying tenant lifecycle
	// events from the API to the bootstrap consumer.
	Changelog ChangelogConfig `mapstructure:"changelog" yaml:"changelog"`

	// Database configures the tenant database (SQLite or PostgreSQL).
	Database store.Config `mapstructure:"database" yaml:"database"`

	// Templates configures where configuration templates are read from and
	// which template bootstraps the instance.
	Templates TemplatesConfig `mapstructure:"templates" yaml:"templates"`

	// API contains management API server configuration
	API api.Config `mapstructure:"api" yaml:"api"`

	// Consumer contains bootstrap consumer configuration
	Consumer provision.ConsumerConfig `mapstructure:"consumer" yaml:"consumer"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// When enabled, trace data is exported to an OTLP-compatible collector
// (e.g., Jaeger, Tempo, or any OTLP receiver).
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false (opt-in for telemetry)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317" (standard OTLP gRPC port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use insecure (non-TLS) connection
	// Default: true (for local development)
	// Set to false in production with a TLS-enabled collector
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// 1.0 = sample all traces, 0.5 = sample 50%, 0.0 = no sampling
	// Default: 1.0 (sample all)
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
// When enabled, CPU and memory profiles are continuously sent to a Pyroscope
// server for flame graph visualization and performance analysis.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled
	// Default: false (opt-in for profiling)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL)
	// Default: "http://localhost:4040" (standard Pyroscope port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect
	// Valid values: cpu, alloc_objects, alloc_space, inuse_objects, inuse_space,
	//               goroutines, mutex_count, mutex_duration, block_count, block_duration
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig controls Prometheus metrics collection.
// When Enabled is false, no metrics are collected (zero overhead). The
// metrics are served on the management API's /metrics endpoint; there is no
// separate metrics listener.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is enabled
	// Default: false (opt-in for metrics)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// ServicesConfig selects the services a process runs.
//
// A single process can run both services (the default) or each service can
// run in its own process against shared backends. Services start in the
// order they are listed; when both run in one process, instance-management
// must come first so the instance is bootstrapped before tenant-management
// begins serving.
type ServicesConfig struct {
	// Enabled lists the services to run, in start order.
	// Valid values: instance-management, tenant-management
	Enabled []string `mapstructure:"enabled" validate:"required,min=1,unique,dive,oneof=instance-management tenant-management" yaml:"enabled"`
}

// CoordinationConfig configures the coordination store backend.
type CoordinationConfig struct {
	// Backend selects the coordination store implementation.
	// Valid values: memory, badger
	// Default: badger (memory loses markers on restart; tests only)
	Backend string `mapstructure:"backend" validate:"required,oneof=memory badger" yaml:"backend"`

	// Path is the Badger database directory. Required for the badger backend.
	Path string `mapstructure:"path" yaml:"path,omitempty"`
}

// ChangelogConfig configures the change log backend.
type ChangelogConfig struct {
	// Backend selects the change log implementation.
	// Valid values: memory, badger, postgres
	// Default: badger (memory loses events on restart; tests only)
	Backend string `mapstructure:"backend" validate:"required,oneof=memory badger postgres" yaml:"backend"`

	// Path is the Badger database directory. Required for the badger backend.
	Path string `mapstructure:"path" yaml:"path,omitempty"`

	// Postgres holds the connection settings for the postgres backend.
	Postgres clpostgres.Config `mapstructure:"postgres" validate:"-" yaml:"postgres,omitempty"`
}

// TemplatesConfig configures the template source.
type TemplatesConfig struct {
	// Source selects where templates are read from.
	// Valid values: dir, s3
	Source string `mapstructure:"source" validate:"required,oneof=dir s3" yaml:"source"`

	// Dir is the template root directory. Required for the dir source.
	Dir string `mapstructure:"dir" yaml:"dir,omitempty"`

	// S3 holds the bucket settings for the s3 source.
	S3 template.S3Config `mapstructure:"s3" validate:"-" yaml:"s3,omitempty"`

	// InstanceTemplateID names the template that bootstraps the instance.
	// Default: "default"
	InstanceTemplateID string `mapstructure:"instance_template_id" yaml:"instance_template_id"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (GROUNDPLANE_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	// If no config file was found, use defaults
	if !configFileFound {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages.
// It checks if the config file exists and provides user-friendly instructions if not.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  groundplane init\n\n"+
				"Or specify a custom config file:\n"+
				"  groundplane <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  groundplane init --config %s",
				configPath, configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path.
// The configuration is saved in YAML format using proper yaml tags.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Restricted permissions: the file may hold the JWT signing secret and
	// the operator credential hash.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the GROUNDPLANE_ prefix and underscores.
	// Example: GROUNDPLANE_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("GROUNDPLANE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/groundplane/config.yaml
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		// Also check for os.PathError when an explicit config file doesn't exist
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		stringSliceDecodeHook(),
	)
}

// durationDecodeHook returns a mapstructure decode hook that converts strings
// to time.Duration. This enables config files to use human-readable durations
// like "30s", "5m", "1h".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Assume nanoseconds for raw integers
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// stringSliceDecodeHook converts comma-separated strings to []string so the
// services list can be set from a single environment variable:
// GROUNDPLANE_SERVICES_ENABLED=instance-management,tenant-management
func stringSliceDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf([]string(nil)) {
			return data, nil
		}

		s, _ := data.(string)
		if s == "" {
			return []string{}, nil
		}
		parts := strings.Split(s, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "groundplane")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "groundplane")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	path := GetDefaultConfigPath()
	_, err := os.Stat(path)
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
