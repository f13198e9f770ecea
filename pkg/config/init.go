package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// InitConfig writes a sample configuration file to the default location.
//
// Returns the path of the created file. Fails when a config file already
// exists unless force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a sample configuration file to the given path,
// creating parent directories as needed.
func InitConfigToPath(path string, force bool) error {
	return InitConfigWithAdmin(path, force, "admin", "")
}

// InitConfigWithAdmin writes a sample configuration file with the operator
// identity filled in. The init command collects the operator password,
// hashes it and passes the hash here; an empty hash leaves the credential
// for the operator to set later.
func InitConfigWithAdmin(path string, force bool, username, passwordHash string) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	secret, err := generateSecret()
	if err != nil {
		return fmt.Errorf("failed to generate JWT secret: %w", err)
	}

	sample := sampleConfig(secret, username, passwordHash)

	// 0600: the sample embeds the generated JWT secret.
	if err := os.WriteFile(path, []byte(sample), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// generateSecret returns 32 bytes of entropy hex-encoded, suitable as an
// HMAC signing key for development use.
func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// sampleConfig renders the commented sample configuration.
//
// Durations are shown as commented examples: the sample must stay parseable
// by plain YAML decoders, which cannot read "30s" into a duration field.
// Unset durations fall back to the documented defaults at load time.
func sampleConfig(secret, adminUser, adminHash string) string {
	dir := filepath.ToSlash(getConfigDir())

	return `# Groundplane Configuration File
#
# Configuration precedence: environment variables (GROUNDPLANE_*) override
# this file, which overrides built-in defaults.
# Example: GROUNDPLANE_LOGGING_LEVEL=DEBUG

logging:
  # Minimum log level: DEBUG, INFO, WARN, ERROR
  level: "INFO"
  # Output format: text, json
  format: "text"
  # Where logs go: stdout, stderr, or a file path
  output: "stdout"

# OpenTelemetry tracing and Pyroscope profiling (both opt-in).
telemetry:
  enabled: false
  endpoint: "localhost:4317"
  insecure: true
  sample_rate: 1.0
  profiling:
    enabled: false
    endpoint: "http://localhost:4040"

# Prometheus metrics, served on the management API's /metrics endpoint.
metrics:
  enabled: false

# Services this process runs, in start order. Run both in one process
# (default) or split them across processes sharing the same backends.
services:
  enabled:
    - instance-management
    - tenant-management

# Maximum time to wait for services to stop on shutdown. Default: 30s
# shutdown_timeout: 30s

# Coordination store holding instance state and bootstrap markers.
# Backends: badger (persistent, default), memory (tests only).
coordination:
  backend: badger
  path: "` + dir + `/coordination"

# Change log carrying tenant lifecycle events to the bootstrap consumer.
# Backends: badger (single node, default), postgres (HA), memory (tests only).
changelog:
  backend: badger
  path: "` + dir + `/changelog"
  # postgres:
  #   host: localhost
  #   port: 5432
  #   database: groundplane
  #   user: groundplane
  #   password: secret
  #   ssl_mode: prefer
  #   auto_migrate: true

# Tenant database.
database:
  type: sqlite
  sqlite:
    path: "` + dir + `/tenants.db"
  # type: postgres
  # postgres:
  #   host: localhost
  #   port: 5432
  #   database: groundplane
  #   user: groundplane
  #   password: secret
  #   ssl_mode: require

# Configuration templates: where they are read from and which template
# bootstraps the instance.
templates:
  source: dir
  dir: "` + dir + `/templates"
  instance_template_id: "default"
  # source: s3
  # s3:
  #   bucket: groundplane-templates
  #   prefix: templates
  #   region: eu-west-1

# Management API.
api:
  port: 8080
  default_template_id: "default"
  # read_timeout: 10s
  # write_timeout: 10s
  # idle_timeout: 60s
  jwt:
    # Generated for development use. For production set the secret via the
    # GROUNDPLANE_API_SECRET environment variable instead.
    secret: "` + secret + `"
    # access_token_duration: 15m
    # refresh_token_duration: 168h
  admin:
    username: "` + adminUser + `"
    # bcrypt hash of the operator password; groundplane init fills this in.
    password_hash: "` + adminHash + `"

# Bootstrap consumer draining the change log.
consumer:
  group: "provisioner"
  fetch_batch: 64
  # poll_interval: 500ms
`
}
