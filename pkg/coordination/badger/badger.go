// Package badger provides a BadgerDB-backed coordination store for
// single-node durable deployments.
//
// Every node lives under a "n:" key prefix so the key space stays
// self-documenting and range scans over a subtree stay cheap. Payloads are
// stored verbatim.
//
// Key Namespace:
//
//	Data Type   Prefix   Key Format   Value
//	========================================
//	Nodes       "n:"     n:<path>     payload bytes
package badger

import (
	"context"
	"fmt"
	"strings"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/groundplane/groundplane/pkg/coordination"
)

const nodePrefix = "n:"

// Store implements coordination.Store on top of BadgerDB.
//
// Thread Safety: safe for concurrent use. Atomicity of CreateIfAbsent
// comes from Badger's serializable read-write transactions; commit
// conflicts between racing creators are retried internally, so callers
// only ever observe created=true or created=false.
type Store struct {
	db *badgerdb.DB
}

var _ coordination.Store = (*Store)(nil)

// New opens (creating if needed) a Badger-backed store at dir.
func New(dir string) (*Store, error) {
	opts := badgerdb.DefaultOptions(dir).WithLogger(nil)
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open coordination database at %q: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// NewWithDB wraps an already-open Badger database. The caller keeps
// ownership of db only until Close is called on the returned store.
func NewWithDB(db *badgerdb.DB) *Store {
	return &Store{db: db}
}

// keyNode generates the key for a node payload: "n:<path>"
func keyNode(path string) []byte {
	return []byte(nodePrefix + path)
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

	var found bool
	err = s.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get(keyNode(path))
		if err == badgerdb.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to check node %q: %w", path, err)
	}
	return found, nil
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

	var created bool
	err = s.update(func(txn *badgerdb.Txn) error {
		created = false
		_, err := txn.Get(keyNode(path))
		if err == nil {
			return nil // already exists, success without creating
		}
		if err != badgerdb.ErrKeyNotFound {
			return err
		}
		if err := txn.Set(keyNode(path), data); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to create node %q: %w", path, err)
	}
	return created, nil
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

	var data []byte
	err = s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(keyNode(path))
		if err == badgerdb.ErrKeyNotFound {
			return coordination.ErrNodeNotFound
		}
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if err == coordination.ErrNodeNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to read node %q: %w", path, err)
	}
	return data, nil
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

	err = s.update(func(txn *badgerdb.Txn) error {
		return txn.Set(keyNode(path), data)
	})
	if err != nil {
		return fmt.Errorf("failed to write node %q: %w", path, err)
	}
	return nil
}

// List returns the paths of all nodes at or under prefix, sorted. Badger
// iterates keys in byte order, so no extra sort is needed.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix, err := coordination.CleanPath(prefix)
	if err != nil {
		return nil, err
	}

	var paths []string
	err = s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = keyNode(prefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			p := strings.TrimPrefix(string(it.Item().Key()), nodePrefix)
			// Prefix iteration also matches sibling paths that merely
			// share the byte prefix ("/instance" vs "/instance-old").
			if p == prefix || strings.HasPrefix(p, prefix+"/") {
				paths = append(paths, p)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes under %q: %w", prefix, err)
	}
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

	err = s.update(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = keyNode(path)

		it := txn.NewIterator(opts)
		defer it.Close()

		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			p := strings.TrimPrefix(string(it.Item().Key()), nodePrefix)
			if p == path || strings.HasPrefix(p, path+"/") {
				keys = append(keys, it.Item().KeyCopy(nil))
			}
		}

		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete subtree %q: %w", path, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// update runs fn in a read-write transaction, retrying on commit conflicts.
// Conflicts are a storage artifact of racing transactions, not an operation
// failure, and are invisible to callers.
func (s *Store) update(fn func(txn *badgerdb.Txn) error) error {
	for {
		err := s.db.Update(fn)
		if err == badgerdb.ErrConflict {
			continue
		}
		return err
	}
}
