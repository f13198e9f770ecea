// Package coordination defines the hierarchical coordination store used for
// distributed flags and small configuration blobs: bootstrap markers,
// instance registration, and copied template trees.
//
// The store is the only shared mutable resource between independently
// starting control-plane processes. Its atomic create-if-absent is what
// makes one-time actions safe across a fleet: racing creators both succeed,
// exactly one of them having created the node.
package coordination

import (
	"context"
	"errors"
)

// Sentinel errors returned by Store implementations.
var (
	// ErrNodeNotFound is returned by Read when the path does not exist.
	ErrNodeNotFound = errors.New("coordination node not found")

	// ErrInvalidPath is returned for paths that are empty, relative, or
	// contain empty segments.
	ErrInvalidPath = errors.New("invalid coordination path")

	// ErrStoreClosed is returned by operations on a closed store.
	ErrStoreClosed = errors.New("coordination store closed")
)

// Store is a hierarchical, strongly consistent key-value store.
//
// Paths are slash-separated and absolute ("/instance/bootstrapped"). A node
// may hold a payload and have children at the same time; intermediate nodes
// do not need to be created explicitly.
//
// Store unavailability surfaces as a wrapped backend error from the failing
// call. Implementations never retry in-process; callers treat such errors
// as fatal to the current startup attempt and rely on restart for recovery.
type Store interface {
	// Exists reports whether a node exists at path.
	Exists(ctx context.Context, path string) (bool, error)

	// CreateIfAbsent atomically creates a node at path with the given
	// payload if no node exists there. It returns created=true when this
	// call created the node and created=false with a nil error when the
	// node already existed: losing a creation race is success, not
	// failure.
	CreateIfAbsent(ctx context.Context, path string, data []byte) (created bool, err error)

	// Read returns the payload of the node at path.
	// Returns ErrNodeNotFound if the node does not exist.
	Read(ctx context.Context, path string) ([]byte, error)

	// Write creates or overwrites the node at path with the given payload
	// (last-writer-wins). Used by the template copy, which is
	// overwrite-idempotent by construction.
	Write(ctx context.Context, path string, data []byte) error

	// List returns the paths of all nodes at or under prefix, in
	// lexicographic order. A missing prefix yields an empty slice, not an
	// error.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the node at path and every node beneath it. Deleting
	// a missing path is a no-op.
	Delete(ctx context.Context, path string) error

	// Close releases backend resources. The store is unusable afterwards.
	Close() error
}
