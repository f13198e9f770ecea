package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/groundplane/groundplane/pkg/microservice"
)

// validate is the shared validator instance. Struct tags carry the per-field
// rules; cross-field and backend-conditional rules live in Validate below.
var validate = validator.New()

// Validate checks the configuration for invalid or inconsistent values.
//
// ApplyDefaults should run first: validation expects defaults to be filled
// in and does not normalize anything itself.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return err
	}

	// The telemetry section has no tag-level requirements because it is
	// optional as a whole; once enabled, an endpoint must be set.
	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry is enabled but no endpoint is configured")
	}
	if cfg.Telemetry.Profiling.Enabled && cfg.Telemetry.Profiling.Endpoint == "" {
		return fmt.Errorf("profiling is enabled but no endpoint is configured")
	}

	if err := validateServices(&cfg.Services); err != nil {
		return err
	}

	if cfg.Coordination.Backend == "badger" && cfg.Coordination.Path == "" {
		return fmt.Errorf("coordination: path is required for the badger backend")
	}

	switch cfg.Changelog.Backend {
	case "badger":
		if cfg.Changelog.Path == "" {
			return fmt.Errorf("changelog: path is required for the badger backend")
		}
	case "postgres":
		if err := cfg.Changelog.Postgres.Validate(); err != nil {
			return fmt.Errorf("changelog postgres: %w", err)
		}
	}

	if err := cfg.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	switch cfg.Templates.Source {
	case "dir":
		if cfg.Templates.Dir == "" {
			return fmt.Errorf("templates: dir is required for the dir source")
		}
	case "s3":
		if cfg.Templates.S3.Bucket == "" {
			return fmt.Errorf("templates: s3 bucket is required for the s3 source")
		}
	}

	return nil
}

// validateServices enforces the start-order contract: when both services run
// in one process, instance-management must precede tenant-management so the
// instance bootstrap happens before tenants are served.
func validateServices(cfg *ServicesConfig) error {
	instanceAt, tenantAt := -1, -1
	for i, name := range cfg.Enabled {
		switch name {
		case microservice.ServiceInstanceManagement:
			instanceAt = i
		case microservice.ServiceTenantManagement:
			tenantAt = i
		}
	}
	if instanceAt >= 0 && tenantAt >= 0 && tenantAt < instanceAt {
		return fmt.Errorf("services: %s must be listed before %s",
			microservice.ServiceInstanceManagement, microservice.ServiceTenantManagement)
	}
	return nil
}
