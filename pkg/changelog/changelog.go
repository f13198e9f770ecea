// Package changelog defines the append-only, key-partitioned event stream
// that carries tenant lifecycle changes from the management surface to the
// provisioning consumers.
//
// The log assigns every appended event a monotonically increasing offset.
// Events for one tenant id are totally ordered by offset; delivery to
// consumer groups is at-least-once, so a group that fetches without
// committing sees the same events again. Consumers must therefore be
// idempotent. The log is the only channel between the change trigger and
// the bootstrap consumer: they share no memory.
package changelog

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Op is the kind of tenant mutation an event describes.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// IsValid reports whether op is a known operation.
func (o Op) IsValid() bool {
	switch o {
	case OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

// Sentinel errors returned by Log implementations.
var (
	// ErrInvalidEvent is returned by Append for events without a tenant id
	// or with an unknown operation.
	ErrInvalidEvent = errors.New("invalid change event")

	// ErrInvalidGroup is returned for empty consumer group names.
	ErrInvalidGroup = errors.New("invalid consumer group")

	// ErrLogClosed is returned by operations on a closed log.
	ErrLogClosed = errors.New("change log closed")
)

// Event is one tenant lifecycle change. Immutable once appended; Offset
// and, if unset, Time are assigned by the log on append.
type Event struct {
	// TenantID is the partition key. Events sharing a TenantID are
	// delivered in offset order.
	TenantID string `json:"tenant_id"`

	// Op is the mutation kind.
	Op Op `json:"op"`

	// Payload carries the tenant record as JSON. May be empty for
	// deletes.
	Payload []byte `json:"payload,omitempty"`

	// Offset is the log-assigned position, starting at 1.
	Offset uint64 `json:"offset"`

	// Time is when the event was appended.
	Time time.Time `json:"time"`
}

// Validate checks the fields a caller must supply before Append.
func (e Event) Validate() error {
	if e.TenantID == "" {
		return fmt.Errorf("%w: tenant id is required", ErrInvalidEvent)
	}
	if !e.Op.IsValid() {
		return fmt.Errorf("%w: unknown operation %q", ErrInvalidEvent, e.Op)
	}
	return nil
}

// Log is an append-only change event stream with durable per-group
// consumer offsets.
type Log interface {
	// Append validates the event, assigns it the next offset and persists
	// it. Returns the assigned offset.
	Append(ctx context.Context, event Event) (uint64, error)

	// Fetch returns up to max events with offsets greater than the
	// group's committed offset, in ascending offset order. A group that
	// never committed reads from the beginning. An empty slice means the
	// group is caught up. Fetching does not advance the committed offset:
	// uncommitted events are redelivered on the next Fetch.
	Fetch(ctx context.Context, group string, max int) ([]Event, error)

	// Commit durably records that the group has processed every event up
	// to and including offset. Commits never move backwards: committing
	// an offset lower than the current one is a no-op.
	Commit(ctx context.Context, group string, offset uint64) error

	// Close releases backend resources.
	Close() error
}
