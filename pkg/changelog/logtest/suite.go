// Package logtest provides a conformance test suite for change log
// implementations.
//
// All backends (memory, badger, postgres) should pass these tests. The
// suite verifies the Log behavioral contract: monotonic offsets, per-key
// order, at-least-once redelivery of uncommitted events, and
// forward-only commits.
package logtest

import (
	"errors"
	"testing"

	"github.com/groundplane/groundplane/pkg/changelog"
)

// LogFactory creates a fresh Log instance for each test. The factory
// receives *testing.T so it can use t.TempDir() for logs that need
// filesystem paths and t.Cleanup() for teardown.
type LogFactory func(t *testing.T) changelog.Log

// RunConformanceSuite runs the full conformance test suite against the
// provided log factory. Each test gets a fresh log for isolation.
func RunConformanceSuite(t *testing.T, factory LogFactory) {
	t.Helper()

	t.Run("AppendAssignsIncreasingOffsets", func(t *testing.T) { testAppendOffsets(t, factory) })
	t.Run("AppendValidatesEvents", func(t *testing.T) { testAppendValidates(t, factory) })
	t.Run("FetchPreservesPerTenantOrder", func(t *testing.T) { testPerTenantOrder(t, factory) })
	t.Run("FetchRespectsMax", func(t *testing.T) { testFetchMax(t, factory) })
	t.Run("UncommittedEventsRedelivered", func(t *testing.T) { testRedelivery(t, factory) })
	t.Run("CommitExcludesProcessed", func(t *testing.T) { testCommitExcludes(t, factory) })
	t.Run("CommitIsForwardOnly", func(t *testing.T) { testCommitForwardOnly(t, factory) })
	t.Run("GroupsAreIndependent", func(t *testing.T) { testIndependentGroups(t, factory) })
	t.Run("EmptyGroupNameRejected", func(t *testing.T) { testEmptyGroup(t, factory) })
}

// appendEvent is a helper that appends one event and returns its offset.
func appendEvent(t *testing.T, log changelog.Log, tenantID string, op changelog.Op) uint64 {
	t.Helper()

	offset, err := log.Append(t.Context(), changelog.Event{
		TenantID: tenantID,
		Op:       op,
		Payload:  []byte(`{"id":"` + tenantID + `"}`),
	})
	if err != nil {
		t.Fatalf("Append(%s, %s) failed: %v", tenantID, op, err)
	}
	return offset
}

func testAppendOffsets(t *testing.T, factory LogFactory) {
	log := factory(t)

	var last uint64
	for i := 0; i < 5; i++ {
		offset := appendEvent(t, log, "acme", changelog.OpUpdate)
		if offset <= last {
			t.Fatalf("Append() offset = %d after %d, want strictly increasing", offset, last)
		}
		last = offset
	}

	events, err := log.Fetch(t.Context(), "workers", 10)
	if err != nil {
		t.Fatalf("Fetch() failed: %v", err)
	}
	if len(events) != 5 {
		t.Fatalf("Fetch() returned %d events, want 5", len(events))
	}
	for _, e := range events {
		if e.Time.IsZero() {
			t.Error("Fetch() returned event with zero Time; the log must assign it")
		}
	}
}

func testAppendValidates(t *testing.T, factory LogFactory) {
	log := factory(t)
	ctx := t.Context()

	_, err := log.Append(ctx, changelog.Event{Op: changelog.OpCreate})
	if !errors.Is(err, changelog.ErrInvalidEvent) {
		t.Errorf("Append() without tenant id error = %v, want ErrInvalidEvent", err)
	}

	_, err = log.Append(ctx, changelog.Event{TenantID: "acme", Op: "upsert"})
	if !errors.Is(err, changelog.ErrInvalidEvent) {
		t.Errorf("Append() with unknown op error = %v, want ErrInvalidEvent", err)
	}
}

func testPerTenantOrder(t *testing.T, factory LogFactory) {
	log := factory(t)

	// Interleave two tenants.
	appendEvent(t, log, "acme", changelog.OpCreate)
	appendEvent(t, log, "beta", changelog.OpCreate)
	appendEvent(t, log, "acme", changelog.OpUpdate)
	appendEvent(t, log, "beta", changelog.OpDelete)
	appendEvent(t, log, "acme", changelog.OpDelete)

	events, err := log.Fetch(t.Context(), "workers", 10)
	if err != nil {
		t.Fatalf("Fetch() failed: %v", err)
	}

	var acmeOps []changelog.Op
	var lastOffset uint64
	for _, e := range events {
		if e.Offset <= lastOffset {
			t.Fatalf("Fetch() returned offsets out of order: %d after %d", e.Offset, lastOffset)
		}
		lastOffset = e.Offset
		if e.TenantID == "acme" {
			acmeOps = append(acmeOps, e.Op)
		}
	}

	want := []changelog.Op{changelog.OpCreate, changelog.OpUpdate, changelog.OpDelete}
	if len(acmeOps) != len(want) {
		t.Fatalf("acme ops = %v, want %v", acmeOps, want)
	}
	for i := range want {
		if acmeOps[i] != want[i] {
			t.Errorf("acme op[%d] = %s, want %s", i, acmeOps[i], want[i])
		}
	}
}

func testFetchMax(t *testing.T, factory LogFactory) {
	log := factory(t)

	for i := 0; i < 5; i++ {
		appendEvent(t, log, "acme", changelog.OpUpdate)
	}

	events, err := log.Fetch(t.Context(), "workers", 2)
	if err != nil {
		t.Fatalf("Fetch() failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Fetch(max=2) returned %d events", len(events))
	}
}

func testRedelivery(t *testing.T, factory LogFactory) {
	log := factory(t)
	ctx := t.Context()

	appendEvent(t, log, "acme", changelog.OpCreate)

	first, err := log.Fetch(ctx, "workers", 10)
	if err != nil {
		t.Fatalf("Fetch() failed: %v", err)
	}
	second, err := log.Fetch(ctx, "workers", 10)
	if err != nil {
		t.Fatalf("second Fetch() failed: %v", err)
	}

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("fetches returned %d and %d events, want 1 and 1", len(first), len(second))
	}
	if first[0].Offset != second[0].Offset {
		t.Error("uncommitted event was not redelivered with the same offset")
	}
}

func testCommitExcludes(t *testing.T, factory LogFactory) {
	log := factory(t)
	ctx := t.Context()

	appendEvent(t, log, "acme", changelog.OpCreate)
	second := appendEvent(t, log, "acme", changelog.OpUpdate)

	events, err := log.Fetch(ctx, "workers", 1)
	if err != nil {
		t.Fatalf("Fetch() failed: %v", err)
	}
	if err := log.Commit(ctx, "workers", events[0].Offset); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}

	remaining, err := log.Fetch(ctx, "workers", 10)
	if err != nil {
		t.Fatalf("Fetch() after commit failed: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Offset != second {
		t.Fatalf("Fetch() after commit = %+v, want only offset %d", remaining, second)
	}

	if err := log.Commit(ctx, "workers", second); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
	caughtUp, err := log.Fetch(ctx, "workers", 10)
	if err != nil {
		t.Fatalf("Fetch() failed: %v", err)
	}
	if len(caughtUp) != 0 {
		t.Errorf("Fetch() when caught up returned %d events, want 0", len(caughtUp))
	}
}

func testCommitForwardOnly(t *testing.T, factory LogFactory) {
	log := factory(t)
	ctx := t.Context()

	appendEvent(t, log, "acme", changelog.OpCreate)
	last := appendEvent(t, log, "acme", changelog.OpUpdate)

	if err := log.Commit(ctx, "workers", last); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
	// A late commit of an older offset must not resurrect events.
	if err := log.Commit(ctx, "workers", last-1); err != nil {
		t.Fatalf("Commit() of older offset failed: %v", err)
	}

	events, err := log.Fetch(ctx, "workers", 10)
	if err != nil {
		t.Fatalf("Fetch() failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("Fetch() after backwards commit returned %d events, want 0", len(events))
	}
}

func testIndependentGroups(t *testing.T, factory LogFactory) {
	log := factory(t)
	ctx := t.Context()

	offset := appendEvent(t, log, "acme", changelog.OpCreate)

	if err := log.Commit(ctx, "workers", offset); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}

	events, err := log.Fetch(ctx, "auditors", 10)
	if err != nil {
		t.Fatalf("Fetch() failed: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("another group's commit leaked: Fetch() = %d events, want 1", len(events))
	}
}

func testEmptyGroup(t *testing.T, factory LogFactory) {
	log := factory(t)
	ctx := t.Context()

	if _, err := log.Fetch(ctx, "", 10); !errors.Is(err, changelog.ErrInvalidGroup) {
		t.Errorf("Fetch(\"\") error = %v, want ErrInvalidGroup", err)
	}
	if err := log.Commit(ctx, "", 1); !errors.Is(err, changelog.ErrInvalidGroup) {
		t.Errorf("Commit(\"\") error = %v, want ErrInvalidGroup", err)
	}
}
