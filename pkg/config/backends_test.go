package config

import (
	"context"
	"strings"
	"testing"
)

// Badger-backed stores are covered by the conformance suites in their own
// packages; these tests exercise the factory switch itself.

func TestOpenCoordinationStore_Memory(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Coordination.Backend = "memory"

	store, err := OpenCoordinationStore(cfg)
	if err != nil {
		t.Fatalf("OpenCoordinationStore failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	created, err := store.CreateIfAbsent(ctx, "/probe", nil)
	if err != nil {
		t.Fatalf("CreateIfAbsent failed: %v", err)
	}
	if !created {
		t.Error("Expected marker to be created")
	}
}

func TestOpenCoordinationStore_Unsupported(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Coordination.Backend = "etcd"

	_, err := OpenCoordinationStore(cfg)
	if err == nil {
		t.Fatal("Expected error for unsupported backend")
	}
	if !strings.Contains(err.Error(), "etcd") {
		t.Errorf("Expected the backend name in the error, got: %v", err)
	}
}

func TestOpenChangelog_Memory(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Changelog.Backend = "memory"

	log, err := OpenChangelog(context.Background(), cfg)
	if err != nil {
		t.Fatalf("OpenChangelog failed: %v", err)
	}
	if err := log.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func TestOpenChangelog_Unsupported(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Changelog.Backend = "kafka"

	_, err := OpenChangelog(context.Background(), cfg)
	if err == nil {
		t.Fatal("Expected error for unsupported backend")
	}
}

func TestOpenTemplateSource_Dir(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Templates.Source = "dir"
	cfg.Templates.Dir = t.TempDir()

	source, err := OpenTemplateSource(context.Background(), cfg)
	if err != nil {
		t.Fatalf("OpenTemplateSource failed: %v", err)
	}
	if source == nil {
		t.Fatal("Expected a template source")
	}
}

func TestOpenTemplateSource_Unsupported(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Templates.Source = "git"

	_, err := OpenTemplateSource(context.Background(), cfg)
	if err == nil {
		t.Fatal("Expected error for unsupported source")
	}
}
