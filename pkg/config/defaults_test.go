package config

import (
	"testing"
	"time"

	"github.com/groundplane/groundplane/pkg/microservice"
)

func TestApplyDefaults_Logging(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default log format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default log output 'stdout', got %q", cfg.Logging.Output)
	}
}

func TestApplyDefaults_ShutdownTimeout(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown timeout 30s, got %v", cfg.ShutdownTimeout)
	}
}

func TestApplyDefaults_Services(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if len(cfg.Services.Enabled) != 2 {
		t.Fatalf("Expected both services enabled by default, got %v", cfg.Services.Enabled)
	}
	if cfg.Services.Enabled[0] != microservice.ServiceInstanceManagement {
		t.Errorf("Expected %s first, got %q", microservice.ServiceInstanceManagement, cfg.Services.Enabled[0])
	}
	if cfg.Services.Enabled[1] != microservice.ServiceTenantManagement {
		t.Errorf("Expected %s second, got %q", microservice.ServiceTenantManagement, cfg.Services.Enabled[1])
	}
}

func TestApplyDefaults_Backends(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Coordination.Backend != "badger" {
		t.Errorf("Expected default coordination backend 'badger', got %q", cfg.Coordination.Backend)
	}
	if cfg.Coordination.Path == "" {
		t.Error("Expected a default coordination path for the badger backend")
	}
	if cfg.Changelog.Backend != "badger" {
		t.Errorf("Expected default changelog backend 'badger', got %q", cfg.Changelog.Backend)
	}
	if cfg.Changelog.Path == "" {
		t.Error("Expected a default changelog path for the badger backend")
	}
}

func TestApplyDefaults_Templates(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Templates.Source != "dir" {
		t.Errorf("Expected default template source 'dir', got %q", cfg.Templates.Source)
	}
	if cfg.Templates.Dir == "" {
		t.Error("Expected a default template directory for the dir source")
	}
	if cfg.Templates.InstanceTemplateID != "default" {
		t.Errorf("Expected default instance template id 'default', got %q", cfg.Templates.InstanceTemplateID)
	}
}

func TestApplyDefaults_API(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.API.Port != 8080 {
		t.Errorf("Expected default API port 8080, got %d", cfg.API.Port)
	}
	if cfg.API.ReadTimeout != 10*time.Second {
		t.Errorf("Expected default read timeout 10s, got %v", cfg.API.ReadTimeout)
	}
	if cfg.API.WriteTimeout != 10*time.Second {
		t.Errorf("Expected default write timeout 10s, got %v", cfg.API.WriteTimeout)
	}
	if cfg.API.IdleTimeout != 60*time.Second {
		t.Errorf("Expected default idle timeout 60s, got %v", cfg.API.IdleTimeout)
	}
	if cfg.API.Admin.Username != "admin" {
		t.Errorf("Expected default admin username 'admin', got %q", cfg.API.Admin.Username)
	}
}

func TestApplyDefaults_Consumer(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Consumer.Group != "provisioner" {
		t.Errorf("Expected default consumer group 'provisioner', got %q", cfg.Consumer.Group)
	}
	if cfg.Consumer.PollInterval != 500*time.Millisecond {
		t.Errorf("Expected default poll interval 500ms, got %v", cfg.Consumer.PollInterval)
	}
	if cfg.Consumer.FetchBatch != 64 {
		t.Errorf("Expected default fetch batch 64, got %d", cfg.Consumer.FetchBatch)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{
			Level:  "DEBUG",
			Format: "json",
			Output: "/var/log/groundplane.log",
		},
		ShutdownTimeout: 60 * time.Second,
		Services: ServicesConfig{
			Enabled: []string{microservice.ServiceTenantManagement},
		},
		Coordination: CoordinationConfig{
			Backend: "memory",
		},
	}

	ApplyDefaults(cfg)

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected explicit level 'DEBUG' to be preserved, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected explicit format 'json' to be preserved, got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "/var/log/groundplane.log" {
		t.Errorf("Expected explicit output to be preserved, got %q", cfg.Logging.Output)
	}
	if cfg.ShutdownTimeout != 60*time.Second {
		t.Errorf("Expected explicit timeout 60s to be preserved, got %v", cfg.ShutdownTimeout)
	}
	if len(cfg.Services.Enabled) != 1 || cfg.Services.Enabled[0] != microservice.ServiceTenantManagement {
		t.Errorf("Expected explicit services list to be preserved, got %v", cfg.Services.Enabled)
	}
	if cfg.Coordination.Backend != "memory" {
		t.Errorf("Expected explicit coordination backend to be preserved, got %q", cfg.Coordination.Backend)
	}
	// The memory backend needs no path; the default must not invent one.
	if cfg.Coordination.Path != "" {
		t.Errorf("Expected no coordination path for the memory backend, got %q", cfg.Coordination.Path)
	}
}

func TestApplyDefaults_NormalizesLogLevel(t *testing.T) {
	cfg := &Config{Logging: LoggingConfig{Level: "info"}}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected ApplyDefaults to normalize 'info' to 'INFO', got %q", cfg.Logging.Level)
	}
}

func TestGetDefaultConfig_IsValid(t *testing.T) {
	cfg := GetDefaultConfig()

	err := Validate(cfg)
	if err != nil {
		t.Errorf("Default config should be valid, got error: %v", err)
	}
}

func TestGetDefaultConfig_HasRequiredFields(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Logging.Level == "" {
		t.Error("Default config missing logging level")
	}
	if cfg.API.Port == 0 {
		t.Error("Default config missing API port")
	}
	if cfg.API.Admin.Username == "" {
		t.Error("Default config missing admin username")
	}
	if cfg.Database.SQLite.Path == "" {
		t.Error("Default config missing tenant database path")
	}
	if cfg.Templates.Dir == "" {
		t.Error("Default config missing template directory")
	}
}
