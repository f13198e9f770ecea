package template_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/groundplane/groundplane/pkg/coordination"
	"github.com/groundplane/groundplane/pkg/coordination/memory"
	"github.com/groundplane/groundplane/pkg/template"
)

const defaultDescriptor = `
id: default
name: Default Tenant Template
initializers:
  - subsystem: device-management
    scripts:
      - scripts/devices.json
  - subsystem: event-management
    scripts:
      - scripts/events.json
      - scripts/alerts.json
`

// newTestManager builds a loaded manager over a directory source holding the
// "default" template.
func newTestManager(t *testing.T) *template.Manager {
	t.Helper()

	root := t.TempDir()
	writeTestTemplate(t, root, "default", map[string]string{
		"template.yaml":        defaultDescriptor,
		"scripts/devices.json": `{"devices":["gateway"]}`,
		"scripts/events.json":  `{"events":[]}`,
		"scripts/alerts.json":  `{"alerts":[]}`,
		"assets/readme.md":     "resources only",
	})

	m := template.NewManager(template.NewDirSource(root))
	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	return m
}

// recordingLoader appends every load to a shared sequence so cross-subsystem
// ordering can be asserted.
type recordingLoader struct {
	subsystem string
	seq       *[]string
	contents  map[string][]byte
	fail      error
}

func (l *recordingLoader) LoadScript(ctx context.Context, name string, content []byte) error {
	if l.fail != nil {
		return l.fail
	}
	*l.seq = append(*l.seq, l.subsystem+":"+name)
	if l.contents != nil {
		l.contents[name] = content
	}
	return nil
}

func newRecordingRegistry(seq *[]string, contents map[string][]byte) *template.Registry {
	registry := template.NewRegistry()
	registry.Register("device-management", &recordingLoader{subsystem: "device-management", seq: seq, contents: contents})
	registry.Register("event-management", &recordingLoader{subsystem: "event-management", seq: seq, contents: contents})
	return registry
}

func TestManagerLoadAndLookup(t *testing.T) {
	m := newTestManager(t)

	tmpl, err := m.Template("default")
	if err != nil {
		t.Fatalf("Template() failed: %v", err)
	}
	if tmpl.Name != "Default Tenant Template" {
		t.Errorf("expected template name 'Default Tenant Template', got %q", tmpl.Name)
	}
	if len(tmpl.Files) != 5 {
		t.Errorf("expected 5 files, got %d: %v", len(tmpl.Files), tmpl.Files)
	}
	if tmpl.ScriptCount() != 3 {
		t.Errorf("expected 3 scripts, got %d", tmpl.ScriptCount())
	}

	if _, err := m.Template("absent"); !errors.Is(err, template.ErrTemplateNotFound) {
		t.Errorf("expected ErrTemplateNotFound for unknown id, got %v", err)
	}

	all := m.Templates()
	if len(all) != 1 || all[0].ID != "default" {
		t.Errorf("unexpected Templates() result: %+v", all)
	}
}

func TestManagerLoadRejectsMissingScript(t *testing.T) {
	root := t.TempDir()
	writeTestTemplate(t, root, "broken", map[string]string{
		"template.yaml": "id: broken\nname: Broken\ninitializers:\n  - subsystem: device-management\n    scripts: [scripts/absent.json]\n",
	})

	err := template.NewManager(template.NewDirSource(root)).Load(context.Background())
	if !errors.Is(err, template.ErrInvalidDescriptor) {
		t.Fatalf("expected ErrInvalidDescriptor for missing script, got %v", err)
	}
}

func TestManagerLoadRejectsIDMismatch(t *testing.T) {
	root := t.TempDir()
	writeTestTemplate(t, root, "dirname", map[string]string{
		"template.yaml": "id: othername\nname: Mismatch\n",
	})

	err := template.NewManager(template.NewDirSource(root)).Load(context.Background())
	if !errors.Is(err, template.ErrInvalidDescriptor) {
		t.Fatalf("expected ErrInvalidDescriptor for id mismatch, got %v", err)
	}
}

func TestManagerLoadRejectsMissingDescriptor(t *testing.T) {
	root := t.TempDir()
	writeTestTemplate(t, root, "nodesc", map[string]string{
		"scripts/devices.json": "{}",
	})

	err := template.NewManager(template.NewDirSource(root)).Load(context.Background())
	if !errors.Is(err, template.ErrInvalidDescriptor) {
		t.Fatalf("expected ErrInvalidDescriptor for missing descriptor, got %v", err)
	}
}

func TestCopyContentsWritesTree(t *testing.T) {
	m := newTestManager(t)
	store := memory.New()
	defer store.Close()
	ctx := context.Background()

	if err := m.CopyContents(ctx, store, "default", coordination.InstancePath); err != nil {
		t.Fatalf("CopyContents() failed: %v", err)
	}

	paths, err := store.List(ctx, coordination.InstanceTemplatePath("default"))
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(paths) != 5 {
		t.Fatalf("expected 5 copied nodes, got %d: %v", len(paths), paths)
	}

	data, err := store.Read(ctx, coordination.InstanceTemplateFilePath("default", "scripts/devices.json"))
	if err != nil {
		t.Fatalf("Read() of copied script failed: %v", err)
	}
	if string(data) != `{"devices":["gateway"]}` {
		t.Errorf("unexpected copied content: %s", data)
	}
}

func TestCopyContentsIsRepeatable(t *testing.T) {
	m := newTestManager(t)
	store := memory.New()
	defer store.Close()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := m.CopyContents(ctx, store, "default", coordination.InstancePath); err != nil {
			t.Fatalf("CopyContents() run %d failed: %v", i+1, err)
		}
	}

	paths, err := store.List(ctx, coordination.InstanceTemplatePath("default"))
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(paths) != 5 {
		t.Errorf("expected 5 nodes after repeat copy, got %d", len(paths))
	}
}

func TestCopyContentsUnknownTemplate(t *testing.T) {
	m := newTestManager(t)
	store := memory.New()
	defer store.Close()

	err := m.CopyContents(context.Background(), store, "absent", coordination.InstancePath)
	if !errors.Is(err, template.ErrTemplateNotFound) {
		t.Fatalf("expected ErrTemplateNotFound, got %v", err)
	}
}

func TestInitializeLoadsScriptsInDeclaredOrder(t *testing.T) {
	m := newTestManager(t)
	store := memory.New()
	defer store.Close()
	ctx := context.Background()

	if err := m.CopyContents(ctx, store, "default", coordination.InstancePath); err != nil {
		t.Fatalf("CopyContents() failed: %v", err)
	}

	var seq []string
	registry := newRecordingRegistry(&seq, nil)

	if err := m.Initialize(ctx, store, "default", coordination.InstancePath, registry); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}

	want := []string{
		"device-management:scripts/devices.json",
		"event-management:scripts/events.json",
		"event-management:scripts/alerts.json",
	}
	if len(seq) != len(want) {
		t.Fatalf("expected %d loads, got %d: %v", len(want), len(seq), seq)
	}
	for i := range want {
		if seq[i] != want[i] {
			t.Errorf("load %d: expected %s, got %s", i, want[i], seq[i])
		}
	}
}

func TestInitializeReadsFromCopiedStore(t *testing.T) {
	m := newTestManager(t)
	store := memory.New()
	defer store.Close()
	ctx := context.Background()

	if err := m.CopyContents(ctx, store, "default", coordination.InstancePath); err != nil {
		t.Fatalf("CopyContents() failed: %v", err)
	}

	// Mutate the copied node: initializers must see the store bytes, not
	// the source bytes.
	mutated := []byte(`{"devices":["mutated"]}`)
	nodePath := coordination.InstanceTemplateFilePath("default", "scripts/devices.json")
	if err := store.Write(ctx, nodePath, mutated); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}

	var seq []string
	contents := make(map[string][]byte)
	registry := newRecordingRegistry(&seq, contents)

	if err := m.Initialize(ctx, store, "default", coordination.InstancePath, registry); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}

	if string(contents["scripts/devices.json"]) != string(mutated) {
		t.Errorf("expected loader to receive store bytes %s, got %s",
			mutated, contents["scripts/devices.json"])
	}
}

func TestInitializeUnknownSubsystemHasNoSideEffects(t *testing.T) {
	m := newTestManager(t)
	store := memory.New()
	defer store.Close()
	ctx := context.Background()

	if err := m.CopyContents(ctx, store, "default", coordination.InstancePath); err != nil {
		t.Fatalf("CopyContents() failed: %v", err)
	}

	var seq []string
	registry := template.NewRegistry()
	registry.Register("device-management", &recordingLoader{subsystem: "device-management", seq: &seq})
	// event-management deliberately not registered.

	err := m.Initialize(ctx, store, "default", coordination.InstancePath, registry)
	if !errors.Is(err, template.ErrUnknownSubsystem) {
		t.Fatalf("expected ErrUnknownSubsystem, got %v", err)
	}
	if len(seq) != 0 {
		t.Errorf("expected no loads before failing, got %v", seq)
	}
}

func TestInitializeWithoutCopyFails(t *testing.T) {
	m := newTestManager(t)
	store := memory.New()
	defer store.Close()

	var seq []string
	registry := newRecordingRegistry(&seq, nil)

	err := m.Initialize(context.Background(), store, "default", coordination.InstancePath, registry)
	if !errors.Is(err, coordination.ErrNodeNotFound) {
		t.Fatalf("expected ErrNodeNotFound when tree was never copied, got %v", err)
	}
}

func TestInitializeLoaderFailureNamesSubsystem(t *testing.T) {
	m := newTestManager(t)
	store := memory.New()
	defer store.Close()
	ctx := context.Background()

	if err := m.CopyContents(ctx, store, "default", coordination.InstancePath); err != nil {
		t.Fatalf("CopyContents() failed: %v", err)
	}

	var seq []string
	boom := errors.New("schema rejected")
	registry := template.NewRegistry()
	registry.Register("device-management", &recordingLoader{subsystem: "device-management", seq: &seq})
	registry.Register("event-management", &recordingLoader{subsystem: "event-management", seq: &seq, fail: boom})

	err := m.Initialize(ctx, store, "default", coordination.InstancePath, registry)
	if !errors.Is(err, boom) {
		t.Fatalf("expected loader error to propagate, got %v", err)
	}
	// The first subsystem completed before the failure.
	if len(seq) != 1 || seq[0] != "device-management:scripts/devices.json" {
		t.Errorf("unexpected load sequence before failure: %v", seq)
	}
}

func writeTestTemplate(t *testing.T, root, id string, files map[string]string) {
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
