//go:build integration

package postgres_test

import (
	"context"
	"testing"

	"github.com/groundplane/groundplane/pkg/changelog"
	"github.com/groundplane/groundplane/pkg/changelog/logtest"
	"github.com/groundplane/groundplane/pkg/changelog/postgres"
)

func TestConformance(t *testing.T) {
	logtest.RunConformanceSuite(t, func(t *testing.T) changelog.Log {
		log, err := postgres.New(context.Background(), newTestConfig(t))
		if err != nil {
			t.Fatalf("postgres.New() failed: %v", err)
		}
		t.Cleanup(func() {
			if err := log.Close(); err != nil {
				t.Errorf("Close() failed: %v", err)
			}
		})
		return log
	})
}

func TestHealthcheck(t *testing.T) {
	log, err := postgres.New(context.Background(), newTestConfig(t))
	if err != nil {
		t.Fatalf("postgres.New() failed: %v", err)
	}
	defer log.Close()

	if err := log.Healthcheck(context.Background()); err != nil {
		t.Fatalf("Healthcheck() failed: %v", err)
	}
}
