// Package storetest provides a conformance test suite for coordination
// store implementations.
//
// All backends (memory, badger) should pass these tests. The suite verifies
// the Store behavioral contract, most importantly that concurrent
// CreateIfAbsent calls on one path produce exactly one creation and no
// errors, which the bootstrap coordinator depends on.
//
// Usage:
//
//	func TestConformance(t *testing.T) {
//	    storetest.RunConformanceSuite(t, func(t *testing.T) coordination.Store {
//	        return memory.New()
//	    })
//	}
package storetest

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/groundplane/groundplane/pkg/coordination"
)

// StoreFactory creates a fresh Store instance for each test. The factory
// receives *testing.T so it can use t.TempDir() for stores that need
// filesystem paths and t.Cleanup() for teardown.
type StoreFactory func(t *testing.T) coordination.Store

// RunConformanceSuite runs the full conformance test suite against the
// provided store factory. Each test gets a fresh store for isolation.
func RunConformanceSuite(t *testing.T, factory StoreFactory) {
	t.Helper()

	t.Run("ExistsOnMissingNode", func(t *testing.T) { testExistsMissing(t, factory) })
	t.Run("CreateIfAbsent", func(t *testing.T) { testCreateIfAbsent(t, factory) })
	t.Run("CreateIfAbsentKeepsExisting", func(t *testing.T) { testCreateKeepsExisting(t, factory) })
	t.Run("ReadMissingNode", func(t *testing.T) { testReadMissing(t, factory) })
	t.Run("WriteOverwrites", func(t *testing.T) { testWriteOverwrites(t, factory) })
	t.Run("ListSubtree", func(t *testing.T) { testListSubtree(t, factory) })
	t.Run("DeleteSubtree", func(t *testing.T) { testDeleteSubtree(t, factory) })
	t.Run("InvalidPaths", func(t *testing.T) { testInvalidPaths(t, factory) })
	t.Run("ConcurrentCreateIfAbsent", func(t *testing.T) { testConcurrentCreate(t, factory) })
}

func testExistsMissing(t *testing.T, factory StoreFactory) {
	store := factory(t)
	ctx := t.Context()

	found, err := store.Exists(ctx, "/instance/bootstrapped")
	if err != nil {
		t.Fatalf("Exists() failed: %v", err)
	}
	if found {
		t.Error("Exists() = true for a node that was never created")
	}
}

func testCreateIfAbsent(t *testing.T, factory StoreFactory) {
	store := factory(t)
	ctx := t.Context()

	created, err := store.CreateIfAbsent(ctx, "/instance", []byte("payload"))
	if err != nil {
		t.Fatalf("CreateIfAbsent() failed: %v", err)
	}
	if !created {
		t.Error("CreateIfAbsent() created = false on first creation")
	}

	found, err := store.Exists(ctx, "/instance")
	if err != nil {
		t.Fatalf("Exists() failed: %v", err)
	}
	if !found {
		t.Error("Exists() = false after creation")
	}

	data, err := store.Read(ctx, "/instance")
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	if !bytes.Equal(data, []byte("payload")) {
		t.Errorf("Read() = %q, want %q", data, "payload")
	}
}

func testCreateKeepsExisting(t *testing.T, factory StoreFactory) {
	store := factory(t)
	ctx := t.Context()

	if _, err := store.CreateIfAbsent(ctx, "/instance", []byte("first")); err != nil {
		t.Fatalf("CreateIfAbsent() failed: %v", err)
	}

	created, err := store.CreateIfAbsent(ctx, "/instance", []byte("second"))
	if err != nil {
		t.Fatalf("second CreateIfAbsent() failed: %v", err)
	}
	if created {
		t.Error("second CreateIfAbsent() created = true, want false")
	}

	data, err := store.Read(ctx, "/instance")
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	if !bytes.Equal(data, []byte("first")) {
		t.Errorf("Read() = %q, existing payload must not be overwritten", data)
	}
}

func testReadMissing(t *testing.T, factory StoreFactory) {
	store := factory(t)

	_, err := store.Read(t.Context(), "/instance/missing")
	if !errors.Is(err, coordination.ErrNodeNotFound) {
		t.Errorf("Read() error = %v, want ErrNodeNotFound", err)
	}
}

func testWriteOverwrites(t *testing.T, factory StoreFactory) {
	store := factory(t)
	ctx := t.Context()

	if err := store.Write(ctx, "/instance/default/scripts/seed.json", []byte("v1")); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	if err := store.Write(ctx, "/instance/default/scripts/seed.json", []byte("v2")); err != nil {
		t.Fatalf("second Write() failed: %v", err)
	}

	data, err := store.Read(ctx, "/instance/default/scripts/seed.json")
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	if !bytes.Equal(data, []byte("v2")) {
		t.Errorf("Read() = %q, want last write to win", data)
	}
}

func testListSubtree(t *testing.T, factory StoreFactory) {
	store := factory(t)
	ctx := t.Context()

	paths := []string{
		"/instance/default/a.json",
		"/instance/default/scripts/seed.json",
		"/instance/default/scripts/users.json",
		"/tenant/acme/bootstrapped",
	}
	for _, p := range paths {
		if err := store.Write(ctx, p, []byte("x")); err != nil {
			t.Fatalf("Write(%q) failed: %v", p, err)
		}
	}

	got, err := store.List(ctx, "/instance/default")
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}

	want := []string{
		"/instance/default/a.json",
		"/instance/default/scripts/seed.json",
		"/instance/default/scripts/users.json",
	}
	if len(got) != len(want) {
		t.Fatalf("List() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("List()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	empty, err := store.List(ctx, "/nothing/here")
	if err != nil {
		t.Fatalf("List() on missing prefix failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("List() on missing prefix = %v, want empty", empty)
	}
}

func testDeleteSubtree(t *testing.T, factory StoreFactory) {
	store := factory(t)
	ctx := t.Context()

	for _, p := range []string{
		"/tenant/acme",
		"/tenant/acme/bootstrapped",
		"/tenant/acme/default/seed.json",
		"/tenant/beta/bootstrapped",
	} {
		if err := store.Write(ctx, p, []byte("x")); err != nil {
			t.Fatalf("Write(%q) failed: %v", p, err)
		}
	}

	if err := store.Delete(ctx, "/tenant/acme"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}

	for _, p := range []string{"/tenant/acme", "/tenant/acme/bootstrapped", "/tenant/acme/default/seed.json"} {
		found, err := store.Exists(ctx, p)
		if err != nil {
			t.Fatalf("Exists(%q) failed: %v", p, err)
		}
		if found {
			t.Errorf("Exists(%q) = true after subtree delete", p)
		}
	}

	found, err := store.Exists(ctx, "/tenant/beta/bootstrapped")
	if err != nil {
		t.Fatalf("Exists() failed: %v", err)
	}
	if !found {
		t.Error("Delete() removed a sibling subtree")
	}

	if err := store.Delete(ctx, "/tenant/missing"); err != nil {
		t.Errorf("Delete() on missing path = %v, want nil", err)
	}
}

func testInvalidPaths(t *testing.T, factory StoreFactory) {
	store := factory(t)
	ctx := t.Context()

	for _, p := range []string{"", "relative/path", "//double", "/instance/../etc", "/"} {
		if _, err := store.Exists(ctx, p); !errors.Is(err, coordination.ErrInvalidPath) {
			t.Errorf("Exists(%q) error = %v, want ErrInvalidPath", p, err)
		}
		if _, err := store.CreateIfAbsent(ctx, p, nil); !errors.Is(err, coordination.ErrInvalidPath) {
			t.Errorf("CreateIfAbsent(%q) error = %v, want ErrInvalidPath", p, err)
		}
	}
}

// testConcurrentCreate races many creators on one path: exactly one must
// observe created=true and none may fail.
func testConcurrentCreate(t *testing.T, factory StoreFactory) {
	store := factory(t)
	ctx := t.Context()

	const racers = 16

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		creates int
	)

	start := make(chan struct{})
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start

			created, err := store.CreateIfAbsent(ctx, "/instance", nil)
			if err != nil {
				t.Errorf("CreateIfAbsent() failed: %v", err)
				return
			}
			if created {
				mu.Lock()
				creates++
				mu.Unlock()
			}
		}()
	}

	close(start)
	wg.Wait()

	if creates != 1 {
		t.Errorf("%d racers created the node %d times, want exactly 1", racers, creates)
	}
}
