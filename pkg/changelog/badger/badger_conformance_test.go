//go:build integration

package badger_test

import (
	"path/filepath"
	"testing"

	"github.com/groundplane/groundplane/pkg/changelog"
	"github.com/groundplane/groundplane/pkg/changelog/badger"
	"github.com/groundplane/groundplane/pkg/changelog/logtest"
)

func TestConformance(t *testing.T) {
	logtest.RunConformanceSuite(t, func(t *testing.T) changelog.Log {
		log, err := badger.New(filepath.Join(t.TempDir(), "changelog.db"))
		if err != nil {
			t.Fatalf("badger.New() failed: %v", err)
		}
		t.Cleanup(func() {
			if err := log.Close(); err != nil {
				t.Errorf("Close() failed: %v", err)
			}
		})
		return log
	})
}
