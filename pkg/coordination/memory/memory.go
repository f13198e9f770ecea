// Package memory provides an in-memory coordination store.
//
// This implementation is suitable for tests and single-process development
// runs; it offers the same atomicity guarantees as the durable backends but
// no persistence and no cross-process visibility.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/groundplane/groundplane/pkg/coordination"
)

// Store implements coordination.Store with a mutex-protected map.
//
// Thread Safety: all operations are protected by a read-write mutex, making
// the store safe for concurrent use from multiple goroutines.
type Store struct {
	mu     sync.RWMutex
	nodes  map[string][]byte
	closed bool
}

var _ coordination.Store = (*Store)(nil)

// New creates an empty in-memory coordination store.
func New() *Store {
	return &Store{
		nodes: make(map[string][]byte),
	}
}

// Exists reports whether a node exists at path.
func (s *Store) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	path, err := coordination.CleanPath(path)
	if err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, coordination.ErrStoreClosed
	}

	_, ok := s.nodes[path]
	return ok, nil
}

// CreateIfAbsent atomically creates the node if it does not exist.
func (s *Store) CreateIfAbsent(ctx context.Context, path string, data []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	path, err := coordination.CleanPath(path)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, coordination.ErrStoreClosed
	}

	if _, ok := s.nodes[path]; ok {
		return false, nil
	}
	s.nodes[path] = clone(data)
	return true, nil
}

// Read returns the payload of the node at path.
func (s *Store) Read(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := coordination.CleanPath(path)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, coordination.ErrStoreClosed
	}

	data, ok := s.nodes[path]
	if !ok {
		return nil, coordination.ErrNodeNotFound
	}
	return clone(data), nil
}

// Write creates or overwrites the node at path.
func (s *Store) Write(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := coordination.CleanPath(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return coordination.ErrStoreClosed
	}

	s.nodes[path] = clone(data)
	return nil
}

// List returns the paths of all nodes at or under prefix, sorted.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix, err := coordination.CleanPath(prefix)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, coordination.ErrStoreClosed
	}

	var paths []string
	for p := range s.nodes {
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// Delete removes the node at path and its whole subtree.
func (s *Store) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := coordination.CleanPath(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return coordination.ErrStoreClosed
	}

	for p := range s.nodes {
		if p == path || strings.HasPrefix(p, path+"/") {
			delete(s.nodes, p)
		}
	}
	return nil
}

// Close marks the store closed. Further operations fail with
// ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.nodes = nil
	return nil
}

// clone copies a payload so stored bytes cannot be mutated by callers.
func clone(data []byte) []byte {
	if data == nil {
		return nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out
}
