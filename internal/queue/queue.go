// Package queue provides the durable log of pending remote-write intents.
// Entries survive process restarts and are drained FIFO per target document
// so offline edits reach the remote store in the order they were made.
package queue

import (
	"time"

	"github.com/MonteBryce/fieldsync/internal/models"
)

// Queue manages pending sync operations.
type Queue interface {
	// Enqueue durably appends an entry and returns its identity.
	Enqueue(entry *models.QueueEntry) (string, error)

	// DequeueReady returns entries eligible for an attempt at now, in
	// enqueue order. An entry whose earlier sibling for the same document
	// is still pending is withheld to preserve write ordering.
	DequeueReady(now time.Time) ([]*models.QueueEntry, error)

	// MarkSucceeded durably removes the entry.
	MarkSucceeded(id string) error

	// MarkFailed increments the retry count and records the error. The
	// entry stays queued for a later attempt.
	MarkFailed(id string, attemptErr error) error

	// MarkRejected records a permanent failure. The entry is retained
	// for inspection but never retried.
	MarkRejected(id string, attemptErr error) error

	// Entries returns every queued entry, oldest first.
	Entries() ([]*models.QueueEntry, error)

	// PurgeRejected removes non-retryable entries and reports how many
	// were purged. Only an explicit operator action removes failed work.
	PurgeRejected() (int, error)

	// Close releases resources.
	Close() error
}

// Backoff is the retry window configuration shared by queue
// implementations.
type Backoff struct {
	Base time.Duration
	Cap  time.Duration
}

// DefaultBackoff mirrors the sync config defaults.
func DefaultBackoff() Backoff {
	return Backoff{Base: 5 * time.Second, Cap: 5 * time.Minute}
}

// filterReady keeps entries eligible at now, withholding any entry whose
// earlier same-document sibling is not ready. Input must be in enqueue
// order.
func filterReady(entries []*models.QueueEntry, now time.Time, b Backoff) []*models.QueueEntry {
	var ready []*models.QueueEntry
	blocked := make(map[string]bool)

	for _, e := range entries {
		key := e.RemotePath()
		if blocked[key] {
			continue
		}
		if !e.Ready(now, b.Base, b.Cap) {
			blocked[key] = true
			continue
		}
		ready = append(ready, e)
	}

	return ready
}
