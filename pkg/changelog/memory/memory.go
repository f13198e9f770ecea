// Package memory provides an in-memory change log.
//
// This implementation is suitable for tests and single-process development
// runs. Offsets are dense, starting at 1.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/groundplane/groundplane/pkg/changelog"
)

// Log implements changelog.Log with a mutex-protected slice.
//
// Thread Safety: all operations are protected by a read-write mutex, making
// the log safe for concurrent producers and consumers.
type Log struct {
	mu      sync.RWMutex
	events  []changelog.Event
	offsets map[string]uint64
	closed  bool
}

var _ changelog.Log = (*Log)(nil)

// New creates an empty in-memory change log.
func New() *Log {
	return &Log{
		offsets: make(map[string]uint64),
	}
}

// Append assigns the next offset and stores the event.
func (l *Log) Append(ctx context.Context, event changelog.Event) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := event.Validate(); err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, changelog.ErrLogClosed
	}

	event.Offset = uint64(len(l.events)) + 1
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}
	l.events = append(l.events, event)
	return event.Offset, nil
}

// Fetch returns up to max events past the group's committed offset.
func (l *Log) Fetch(ctx context.Context, group string, max int) ([]changelog.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if group == "" {
		return nil, changelog.ErrInvalidGroup
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return nil, changelog.ErrLogClosed
	}

	committed := l.offsets[group]
	events := make([]changelog.Event, 0, max)
	for _, e := range l.events {
		if e.Offset <= committed {
			continue
		}
		events = append(events, e)
		if len(events) == max {
			break
		}
	}
	return events, nil
}

// Commit advances the group's offset. Backwards commits are no-ops.
func (l *Log) Commit(ctx context.Context, group string, offset uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if group == "" {
		return changelog.ErrInvalidGroup
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return changelog.ErrLogClosed
	}

	if offset > l.offsets[group] {
		l.offsets[group] = offset
	}
	return nil
}

// Close marks the log closed. Further operations fail with ErrLogClosed.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}
