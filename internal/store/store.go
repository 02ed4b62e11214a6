// Package store provides typed, durable local storage for application
// records. It is a plain persistence primitive: it knows nothing about the
// sync queue, and enqueueing on unsynced writes is the caller's job.
package store

import (
	"time"

	"github.com/MonteBryce/fieldsync/internal/models"
)

// Store manages local record persistence.
type Store interface {
	// Put persists a record, overwriting any existing record with the
	// same identity.
	Put(record *models.Record) error

	// Get returns the record or models.ErrRecordNotFound.
	Get(id string) (*models.Record, error)

	// Scan returns records matching the filter, ordered by creation time
	// descending.
	Scan(filter Filter) ([]*models.Record, error)

	// Delete removes a record. Deleting a nonexistent record is a no-op.
	Delete(id string) error

	// MarkSynced confirms a successful remote write for the record.
	MarkSynced(id string, at time.Time) error

	// MarkSyncFailed stores the latest sync failure on the record.
	MarkSyncFailed(id string, syncErr error) error

	// Close releases resources.
	Close() error
}

// Filter selects records during a scan. Zero-value fields match everything.
type Filter struct {
	ProjectID    string
	Kind         models.RecordKind
	Status       models.RecordStatus
	UnsyncedOnly bool
	Limit        int
}
