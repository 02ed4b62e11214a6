package queue

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/MonteBryce/fieldsync/internal/events"
	"github.com/MonteBryce/fieldsync/internal/models"
)

// SQLiteQueue implements a durable SQLite-backed sync queue.
type SQLiteQueue struct {
	db      *sql.DB
	backoff Backoff
	logger  *events.Logger
}

// NewSQLiteQueue creates a SQLite sync queue.
func NewSQLiteQueue(dbPath string, backoff Backoff, logger *events.Logger) (*SQLiteQueue, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	q := &SQLiteQueue{
		db:      db,
		backoff: backoff,
		logger:  logger.WithField("component", "sync_queue"),
	}

	if err := q.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	return q, nil
}

// initialize creates tables and indexes. The seq column preserves enqueue
// order even when two entries share a creation timestamp.
func (q *SQLiteQueue) initialize() error {
	schema := `
    CREATE TABLE IF NOT EXISTS queue_entries (
        seq INTEGER PRIMARY KEY AUTOINCREMENT,
        id TEXT NOT NULL UNIQUE,
        op TEXT NOT NULL,
        project_id TEXT NOT NULL,
        log_id TEXT NOT NULL DEFAULT '',
        collection TEXT NOT NULL,
        doc_id TEXT NOT NULL,
        payload TEXT,
        created_at TIMESTAMP NOT NULL,
        retry_count INTEGER NOT NULL DEFAULT 0,
        last_error TEXT NOT NULL DEFAULT '',
        last_attempt TIMESTAMP,
        rejected INTEGER NOT NULL DEFAULT 0
    );

    CREATE INDEX IF NOT EXISTS idx_queue_doc ON queue_entries(project_id, doc_id);
    CREATE INDEX IF NOT EXISTS idx_queue_rejected ON queue_entries(rejected);
    `

	if _, err := q.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	return nil
}

// Enqueue durably appends an entry. The insert commits before returning;
// there is no fire-and-forget path.
func (q *SQLiteQueue) Enqueue(entry *models.QueueEntry) (string, error) {
	if err := entry.Validate(); err != nil {
		return "", err
	}

	var payload any
	if entry.Payload != nil {
		data, err := json.Marshal(entry.Payload)
		if err != nil {
			return "", &models.LocalIOError{Op: "enqueue", Key: entry.ID,
				Err: fmt.Errorf("encode payload: %w", err)}
		}
		payload = string(data)
	}

	_, err := q.db.Exec(`
        INSERT INTO queue_entries
            (id, op, project_id, log_id, collection, doc_id, payload, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    `, entry.ID, entry.Op, entry.ProjectID, entry.LogID, entry.Collection,
		entry.DocID, payload, entry.CreatedAt.UTC())

	if err != nil {
		return "", &models.LocalIOError{Op: "enqueue", Key: entry.ID, Err: err}
	}

	q.logger.WithFields(map[string]interface{}{
		"entry_id": entry.ID,
		"op":       entry.Op,
		"doc_id":   entry.DocID,
	}).Debug("Enqueued sync entry")

	return entry.ID, nil
}

// DequeueReady returns eligible entries in enqueue order.
func (q *SQLiteQueue) DequeueReady(now time.Time) ([]*models.QueueEntry, error) {
	entries, err := q.list("WHERE rejected = 0")
	if err != nil {
		return nil, err
	}
	return filterReady(entries, now, q.backoff), nil
}

// MarkSucceeded removes the entry after a confirmed remote write.
func (q *SQLiteQueue) MarkSucceeded(id string) error {
	res, err := q.db.Exec("DELETE FROM queue_entries WHERE id = ?", id)
	if err != nil {
		return &models.LocalIOError{Op: "mark succeeded", Key: id, Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrEntryNotFound
	}
	return nil
}

// MarkFailed records a transient failure and keeps the entry queued.
func (q *SQLiteQueue) MarkFailed(id string, attemptErr error) error {
	return q.recordFailure(id, attemptErr, false)
}

// MarkRejected records a permanent failure; the entry is kept but excluded
// from future drains.
func (q *SQLiteQueue) MarkRejected(id string, attemptErr error) error {
	return q.recordFailure(id, attemptErr, true)
}

func (q *SQLiteQueue) recordFailure(id string, attemptErr error, rejected bool) error {
	msg := ""
	if attemptErr != nil {
		msg = attemptErr.Error()
	}

	res, err := q.db.Exec(`
        UPDATE queue_entries
        SET retry_count = retry_count + 1,
            last_error = ?,
            last_attempt = ?,
            rejected = ?
        WHERE id = ?
    `, msg, time.Now().UTC(), boolToInt(rejected), id)
	if err != nil {
		return &models.LocalIOError{Op: "mark failed", Key: id, Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrEntryNotFound
	}

	if rejected {
		q.logger.WithFields(map[string]interface{}{
			"entry_id": id,
			"error":    msg,
		}).Warn("Entry rejected by remote, needs manual remediation")
	}

	return nil
}

// Entries returns every queued entry, oldest first.
func (q *SQLiteQueue) Entries() ([]*models.QueueEntry, error) {
	return q.list("")
}

// PurgeRejected removes non-retryable entries.
func (q *SQLiteQueue) PurgeRejected() (int, error) {
	res, err := q.db.Exec("DELETE FROM queue_entries WHERE rejected = 1")
	if err != nil {
		return 0, &models.LocalIOError{Op: "purge rejected", Err: err}
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Close releases the database handle.
func (q *SQLiteQueue) Close() error {
	return q.db.Close()
}

func (q *SQLiteQueue) list(where string) ([]*models.QueueEntry, error) {
	rows, err := q.db.Query(`
        SELECT id, op, project_id, log_id, collection, doc_id, payload,
               created_at, retry_count, last_error, last_attempt, rejected
        FROM queue_entries ` + where + ` ORDER BY seq ASC`)
	if err != nil {
		return nil, &models.LocalIOError{Op: "list queue", Err: err}
	}
	defer rows.Close()

	var entries []*models.QueueEntry
	for rows.Next() {
		var (
			entry       models.QueueEntry
			payload     sql.NullString
			createdAt   time.Time
			lastAttempt sql.NullTime
			rejected    int
		)

		err := rows.Scan(&entry.ID, &entry.Op, &entry.ProjectID, &entry.LogID,
			&entry.Collection, &entry.DocID, &payload, &createdAt,
			&entry.RetryCount, &entry.LastError, &lastAttempt, &rejected)
		if err != nil {
			return nil, &models.LocalIOError{Op: "list queue", Err: err}
		}

		if payload.Valid {
			if err := json.Unmarshal([]byte(payload.String), &entry.Payload); err != nil {
				return nil, &models.LocalIOError{Op: "list queue", Key: entry.ID,
					Err: fmt.Errorf("decode payload: %w", err)}
			}
		}
		entry.CreatedAt = createdAt.UTC()
		if lastAttempt.Valid {
			t := lastAttempt.Time.UTC()
			entry.LastAttempt = &t
		}
		entry.Rejected = rejected != 0

		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, &models.LocalIOError{Op: "list queue", Err: err}
	}

	return entries, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
