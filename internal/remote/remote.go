// Package remote is the client for the remote document store: documents
// addressed by hierarchical path, merge-upsert writes, and plain reads.
// The store may be unreachable; errors carry a transient/permanent
// classification the sync engine branches on.
package remote

import (
	"context"
	"errors"
)

// Store is the consumed remote document store interface.
type Store interface {
	// Get fetches a document's fields. Returns ErrDocNotFound on absence.
	Get(ctx context.Context, path string) (map[string]any, error)

	// SetWithMerge upserts the given fields into the document. Merge
	// semantics make replayed writes idempotent, which is what lets a
	// timed-out attempt be retried safely.
	SetWithMerge(ctx context.Context, path string, fields map[string]any) error
}

// ErrDocNotFound signals absence on Get; it is not a write failure.
var ErrDocNotFound = errors.New("remote document not found")
