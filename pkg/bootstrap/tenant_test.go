package bootstrap_test

import (
	"context"
	"errors"
	"testing"

	"github.com/groundplane/groundplane/pkg/bootstrap"
	"github.com/groundplane/groundplane/pkg/coordination"
	"github.com/groundplane/groundplane/pkg/coordination/memory"
	"github.com/groundplane/groundplane/pkg/template"
	"github.com/groundplane/groundplane/pkg/tenant"
)

func TestTenantBootstrapColdStart(t *testing.T) {
	m, registry, loader := newTestFixture(t)
	store := memory.New()
	defer store.Close()
	ctx := context.Background()

	b := bootstrap.NewTenantBootstrapper(store, m, registry, nil)
	rec := &tenant.Tenant{ID: "t1", Name: "Acme", TemplateID: "default"}

	bootstrapped, err := b.Bootstrapped(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Bootstrapped() failed: %v", err)
	}
	if bootstrapped {
		t.Fatal("expected no marker before bootstrap")
	}

	if err := b.Bootstrap(ctx, rec); err != nil {
		t.Fatalf("Bootstrap() failed: %v", err)
	}

	if n := len(loader.loads()); n != 3 {
		t.Errorf("expected 3 script loads, got %d", n)
	}

	// The tree lands in the tenant's own subtree.
	data, err := store.Read(ctx, coordination.TenantTemplatePath(rec.ID, "default")+"/scripts/devices.json")
	if err != nil {
		t.Fatalf("Read() of copied script failed: %v", err)
	}
	if string(data) != `{"devices":[]}` {
		t.Errorf("unexpected copied content: %s", data)
	}

	bootstrapped, err = b.Bootstrapped(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Bootstrapped() failed: %v", err)
	}
	if !bootstrapped {
		t.Error("expected marker after bootstrap")
	}
}

func TestTenantBootstrapIsIdempotent(t *testing.T) {
	m, registry, loader := newTestFixture(t)
	store := memory.New()
	defer store.Close()
	ctx := context.Background()

	b := bootstrap.NewTenantBootstrapper(store, m, registry, nil)
	rec := &tenant.Tenant{ID: "t1", Name: "Acme", TemplateID: "default"}

	for i := 0; i < 2; i++ {
		if err := b.Bootstrap(ctx, rec); err != nil {
			t.Fatalf("Bootstrap() run %d failed: %v", i+1, err)
		}
	}
	if n := len(loader.loads()); n != 3 {
		t.Errorf("expected the duplicate run to load nothing, got %d total loads", n)
	}
}

func TestTenantBootstrapKeepsTenantsSeparate(t *testing.T) {
	m, registry, loader := newTestFixture(t)
	store := memory.New()
	defer store.Close()
	ctx := context.Background()

	b := bootstrap.NewTenantBootstrapper(store, m, registry, nil)

	if err := b.Bootstrap(ctx, &tenant.Tenant{ID: "t1", TemplateID: "default"}); err != nil {
		t.Fatalf("Bootstrap(t1) failed: %v", err)
	}
	if err := b.Bootstrap(ctx, &tenant.Tenant{ID: "t2", TemplateID: "default"}); err != nil {
		t.Fatalf("Bootstrap(t2) failed: %v", err)
	}

	for _, id := range []string{"t1", "t2"} {
		if bootstrapped, _ := b.Bootstrapped(ctx, id); !bootstrapped {
			t.Errorf("expected marker for tenant %s", id)
		}
		paths, err := store.List(ctx, coordination.TenantTemplatePath(id, "default"))
		if err != nil {
			t.Fatalf("List(%s) failed: %v", id, err)
		}
		if len(paths) != 4 {
			t.Errorf("tenant %s: expected 4 copied nodes, got %d: %v", id, len(paths), paths)
		}
	}
	if n := len(loader.loads()); n != 6 {
		t.Errorf("expected 6 loads across two tenants, got %d", n)
	}
}

func TestTenantBootstrapFailureLeavesMarkerAbsent(t *testing.T) {
	m, registry, loader := newTestFixture(t)
	store := memory.New()
	defer store.Close()
	ctx := context.Background()

	b := bootstrap.NewTenantBootstrapper(store, m, registry, nil)
	rec := &tenant.Tenant{ID: "t1", TemplateID: "default"}

	boom := errors.New("subsystem rejected script")
	loader.setFail(boom)

	if err := b.Bootstrap(ctx, rec); !errors.Is(err, boom) {
		t.Fatalf("expected loader failure to propagate, got %v", err)
	}
	if bootstrapped, _ := b.Bootstrapped(ctx, rec.ID); bootstrapped {
		t.Fatal("marker must stay absent after a failed tenant bootstrap")
	}

	loader.setFail(nil)
	if err := b.Bootstrap(ctx, rec); err != nil {
		t.Fatalf("re-run after failure failed: %v", err)
	}
	if bootstrapped, _ := b.Bootstrapped(ctx, rec.ID); !bootstrapped {
		t.Error("expected marker after successful re-run")
	}
}

func TestTenantBootstrapUnknownTemplate(t *testing.T) {
	m, registry, _ := newTestFixture(t)
	store := memory.New()
	defer store.Close()

	b := bootstrap.NewTenantBootstrapper(store, m, registry, nil)
	err := b.Bootstrap(context.Background(), &tenant.Tenant{ID: "t1", TemplateID: "absent"})
	if !errors.Is(err, template.ErrTemplateNotFound) {
		t.Fatalf("expected ErrTemplateNotFound, got %v", err)
	}
}
