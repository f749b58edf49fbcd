package entitystore

import (
	"context"
	"sync"

	"grantdesk/api/internal/sheetdb"
)

// Gateway is the slice of the tabular gateway the stores need. The
// concrete implementation is sheetdb.Gateway; tests substitute fakes.
type Gateway interface {
	ReadSheet(ctx context.Context, sheetName, readRange string) (sheetdb.Table, error)
	AppendRow(ctx context.Context, sheetName string, record map[string]string) error
	UpdateRow(ctx context.Context, sheetName, idColumn, idValue string, patch map[string]string) error
	DeleteRow(ctx context.Context, sheetName, idColumn, idValue string) error
}

// collection is the shared state of every store: the cached items, the
// last mutation error, and a lock covering both.
type collection[T any] struct {
	mu      sync.Mutex
	items   []T
	lastErr error
}

// Items returns a copy of the cached slice.
func (c *collection[T]) Items() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

// Err returns the error left by the most recent mutation, or nil if it
// succeeded. A successful mutation clears any earlier error.
func (c *collection[T]) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *collection[T]) replace(items []T) {
	c.mu.Lock()
	c.items = items
	c.lastErr = nil
	c.mu.Unlock()
}

// mutate is the one optimistic-mutation path every store write goes
// through. It snapshots the collection, applies the local change, then
// runs the remote call; on failure the snapshot is restored verbatim and
// the error is both recorded and returned.
func mutate[T any](c *collection[T], apply func([]T) []T, remote func() error) error {
	c.mu.Lock()
	snapshot := make([]T, len(c.items))
	copy(snapshot, c.items)
	working := make([]T, len(c.items))
	copy(working, c.items)
	c.items = apply(working)
	c.mu.Unlock()

	if err := remote(); err != nil {
		c.mu.Lock()
		c.items = snapshot
		c.lastErr = err
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.lastErr = nil
	c.mu.Unlock()
	return nil
}
