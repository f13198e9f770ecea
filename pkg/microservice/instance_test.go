package microservice_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/groundplane/groundplane/pkg/coordination"
	coordmemory "github.com/groundplane/groundplane/pkg/coordination/memory"
	"github.com/groundplane/groundplane/pkg/lifecycle"
	"github.com/groundplane/groundplane/pkg/microservice"
	"github.com/groundplane/groundplane/pkg/template"
)

const instanceDescriptor = `
id: default
name: Default Instance Configuration
initializers:
  - subsystem: user-management
    scripts:
      - scripts/seed-users.json
`

// countLoader records loaded script names.
type countLoader struct {
	mu  sync.Mutex
	seq []string
}

func (l *countLoader) LoadScript(ctx context.Context, name string, content []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq = append(l.seq, name)
	return nil
}

func (l *countLoader) loads() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seq)
}

func writeTemplate(t *testing.T, root, id string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		full := filepath.Join(root, id, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("failed to create %s: %v", filepath.Dir(full), err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", full, err)
		}
	}
}

// newInstanceFixture builds a directory source holding the "default"
// instance template and a registry routing user-management to the returned
// loader.
func newInstanceFixture(t *testing.T) (template.Source, *template.Registry, *countLoader) {
	t.Helper()

	root := t.TempDir()
	writeTemplate(t, root, "default", map[string]string{
		"template.yaml":           instanceDescriptor,
		"scripts/seed-users.json": `{"users":[]}`,
	})

	loader := &countLoader{}
	registry := template.NewRegistry()
	registry.Register("user-management", loader)
	return template.NewDirSource(root), registry, loader
}

func TestInstanceManagementStartBootstrapsInstance(t *testing.T) {
	source, registry, loader := newInstanceFixture(t)
	store := coordmemory.New()
	defer store.Close()
	ctx := context.Background()

	svc := microservice.NewInstanceManagement(store, source, registry, "default")
	if svc.Name() != microservice.ServiceInstanceManagement {
		t.Errorf("unexpected service name %q", svc.Name())
	}

	if err := svc.Initialize(ctx, nil); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
	if err := svc.Start(ctx, nil); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	bootstrapped, err := svc.Bootstrapper().Bootstrapped(ctx)
	if err != nil {
		t.Fatalf("Bootstrapped() failed: %v", err)
	}
	if !bootstrapped {
		t.Fatal("expected instance bootstrap marker after start")
	}

	data, err := store.Read(ctx, coordination.InstanceTemplateFilePath("default", "scripts/seed-users.json"))
	if err != nil {
		t.Fatalf("Read() of copied template file failed: %v", err)
	}
	if string(data) != `{"users":[]}` {
		t.Errorf("unexpected copied content: %s", data)
	}
	if n := loader.loads(); n != 1 {
		t.Errorf("expected 1 script load, got %d", n)
	}

	if err := svc.Stop(ctx, nil); err != nil {
		t.Errorf("Stop() failed: %v", err)
	}
}

func TestInstanceManagementRestartHasNoSideEffects(t *testing.T) {
	source, registry, loader := newInstanceFixture(t)
	store := coordmemory.New()
	defer store.Close()
	ctx := context.Background()

	svc := microservice.NewInstanceManagement(store, source, registry, "default")
	if err := svc.Start(ctx, nil); err != nil {
		t.Fatalf("first Start() failed: %v", err)
	}
	first := loader.loads()

	// A fresh process over the same store sees the marker and bootstraps
	// nothing.
	again := microservice.NewInstanceManagement(store, source, registry, "default")
	if err := again.Start(ctx, nil); err != nil {
		t.Fatalf("second Start() failed: %v", err)
	}
	if n := loader.loads(); n != first {
		t.Errorf("expected zero loads on restart, got %d more", n-first)
	}
}

func TestInstanceManagementUnknownTemplateFailsStart(t *testing.T) {
	source, registry, loader := newInstanceFixture(t)
	store := coordmemory.New()
	defer store.Close()
	ctx := context.Background()

	svc := microservice.NewInstanceManagement(store, source, registry, "absent")

	err := svc.Start(ctx, nil)
	if !errors.Is(err, template.ErrTemplateNotFound) {
		t.Fatalf("expected ErrTemplateNotFound, got %v", err)
	}
	var stepErr *lifecycle.StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("expected a step error, got %T", err)
	}
	if stepErr.Step != "verify-or-bootstrap-configuration" {
		t.Errorf("expected the configuration step to fail, got %q", stepErr.Step)
	}

	if n := loader.loads(); n != 0 {
		t.Errorf("expected zero loads, got %d", n)
	}
	if bootstrapped, _ := svc.Bootstrapper().Bootstrapped(ctx); bootstrapped {
		t.Error("marker must stay absent after a failed start")
	}
}

// downStore fails every call, standing in for an unreachable backend.
type downStore struct {
	err error
}

func (s downStore) Exists(ctx context.Context, path string) (bool, error) { return false, s.err }
func (s downStore) CreateIfAbsent(ctx context.Context, path string, data []byte) (bool, error) {
	return false, s.err
}
func (s downStore) Read(ctx context.Context, path string) ([]byte, error)  { return nil, s.err }
func (s downStore) Write(ctx context.Context, path string, data []byte) error { return s.err }
func (s downStore) List(ctx context.Context, prefix string) ([]string, error) { return nil, s.err }
func (s downStore) Delete(ctx context.Context, path string) error             { return s.err }
func (s downStore) Close() error                                              { return nil }

func TestInstanceManagementInitializeFailsWhenStoreUnavailable(t *testing.T) {
	source, registry, _ := newInstanceFixture(t)
	boom := errors.New("connection refused")

	svc := microservice.NewInstanceManagement(downStore{err: boom}, source, registry, "default")

	err := svc.Initialize(context.Background(), nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected the backend error, got %v", err)
	}
	var stepErr *lifecycle.StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("expected a step error, got %T", err)
	}
	if stepErr.Step != "check-coordination-store" {
		t.Errorf("expected the store check to fail, got %q", stepErr.Step)
	}
}
