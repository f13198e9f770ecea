package config

import (
	"context"
	"fmt"

	"github.com/groundplane/groundplane/internal/logger"
	"github.com/groundplane/groundplane/pkg/changelog"
	clbadger "github.com/groundplane/groundplane/pkg/changelog/badger"
	clmemory "github.com/groundplane/groundplane/pkg/changelog/memory"
	clpostgres "github.com/groundplane/groundplane/pkg/changelog/postgres"
	"github.com/groundplane/groundplane/pkg/coordination"
	coordbadger "github.com/groundplane/groundplane/pkg/coordination/badger"
	coordmemory "github.com/groundplane/groundplane/pkg/coordination/memory"
	"github.com/groundplane/groundplane/pkg/template"
)

// OpenCoordinationStore opens the configured coordination store backend.
//
// The caller owns the returned store and must Close it. Both services of a
// process share one store: Badger takes an exclusive directory lock, so the
// same directory cannot be opened twice.
func OpenCoordinationStore(cfg *Config) (coordination.Store, error) {
	switch cfg.Coordination.Backend {
	case "memory":
		logger.Warn("Using in-memory coordination store; markers are lost on restart")
		return coordmemory.New(), nil
	case "badger":
		logger.Debug("Opening coordination store", "backend", "badger", "path", cfg.Coordination.Path)
		store, err := coordbadger.New(cfg.Coordination.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open coordination store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported coordination backend: %s", cfg.Coordination.Backend)
	}
}

// OpenChangelog opens the configured change log backend.
//
// The caller owns the returned log and must Close it.
func OpenChangelog(ctx context.Context, cfg *Config) (changelog.Log, error) {
	switch cfg.Changelog.Backend {
	case "memory":
		logger.Warn("Using in-memory change log; events are lost on restart")
		return clmemory.New(), nil
	case "badger":
		logger.Debug("Opening change log", "backend", "badger", "path", cfg.Changelog.Path)
		log, err := clbadger.New(cfg.Changelog.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open change log: %w", err)
		}
		return log, nil
	case "postgres":
		logger.Debug("Opening change log", "backend", "postgres",
			"host", cfg.Changelog.Postgres.Host, "database", cfg.Changelog.Postgres.Database)
		log, err := clpostgres.New(ctx, &cfg.Changelog.Postgres)
		if err != nil {
			return nil, fmt.Errorf("failed to open change log: %w", err)
		}
		return log, nil
	default:
		return nil, fmt.Errorf("unsupported changelog backend: %s", cfg.Changelog.Backend)
	}
}

// OpenTemplateSource opens the configured template source.
func OpenTemplateSource(ctx context.Context, cfg *Config) (template.Source, error) {
	switch cfg.Templates.Source {
	case "dir":
		logger.Debug("Using template source", "source", "dir", "dir", cfg.Templates.Dir)
		return template.NewDirSource(cfg.Templates.Dir), nil
	case "s3":
		logger.Debug("Using template source", "source", "s3",
			"bucket", cfg.Templates.S3.Bucket, "prefix", cfg.Templates.S3.Prefix)
		source, err := template.NewS3Source(ctx, cfg.Templates.S3)
		if err != nil {
			return nil, fmt.Errorf("failed to open template source: %w", err)
		}
		return source, nil
	default:
		return nil, fmt.Errorf("unsupported template source: %s", cfg.Templates.Source)
	}
}
