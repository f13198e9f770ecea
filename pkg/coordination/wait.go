package coordination

import (
	"context"
	"time"
)

// DefaultWaitInterval is the default poll interval for WaitForNode.
const DefaultWaitInterval = 5 * time.Second

// WaitForNode blocks until a node exists at path, polling the store at the
// given interval. Dependent processes use it to block on the instance
// bootstrap marker before starting components that need the shared
// configuration.
//
// The first check happens immediately. Returns nil once the node exists,
// the store error if a check fails, or ctx.Err() when the context ends
// first. If interval is not positive, DefaultWaitInterval is used.
func WaitForNode(ctx context.Context, store Store, path string, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultWaitInterval
	}

	found, err := store.Exists(ctx, path)
	if err != nil {
		return err
	}
	if found {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			found, err := store.Exists(ctx, path)
			if err != nil {
				return err
			}
			if found {
				return nil
			}
		}
	}
}
