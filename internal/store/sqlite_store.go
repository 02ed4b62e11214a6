package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/MonteBryce/fieldsync/internal/events"
	"github.com/MonteBryce/fieldsync/internal/models"
)

// SQLiteStore implements SQLite-based record storage.
type SQLiteStore struct {
	db     *sql.DB
	logger *events.Logger
}

// NewSQLiteStore creates a SQLite record store.
func NewSQLiteStore(dbPath string, logger *events.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger.WithField("component", "record_store"),
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	return s, nil
}

// initialize creates tables and indexes.
func (s *SQLiteStore) initialize() error {
	schema := `
    CREATE TABLE IF NOT EXISTS records (
        id TEXT PRIMARY KEY,
        project_id TEXT NOT NULL,
        log_id TEXT NOT NULL DEFAULT '',
        kind TEXT NOT NULL,
        payload TEXT NOT NULL,
        status TEXT NOT NULL,
        author TEXT NOT NULL DEFAULT '',
        created_at TIMESTAMP NOT NULL,
        updated_at TIMESTAMP NOT NULL,
        synced INTEGER NOT NULL DEFAULT 0,
        sync_error TEXT NOT NULL DEFAULT '',
        synced_at TIMESTAMP
    );

    CREATE INDEX IF NOT EXISTS idx_records_project_synced ON records(project_id, synced);
    CREATE INDEX IF NOT EXISTS idx_records_kind ON records(kind);
    CREATE INDEX IF NOT EXISTS idx_records_created ON records(created_at);
    `

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	return nil
}

// Put persists a record, overwriting any existing row with the same ID.
func (s *SQLiteStore) Put(record *models.Record) error {
	if err := record.Validate(); err != nil {
		return err
	}

	payload, err := json.Marshal(record.Payload)
	if err != nil {
		return &models.LocalIOError{Op: "put", Key: record.ID,
			Err: fmt.Errorf("encode payload: %w", err)}
	}

	var syncedAt any
	if record.SyncedAt != nil {
		syncedAt = record.SyncedAt.UTC()
	}

	_, err = s.db.Exec(`
        INSERT INTO records
            (id, project_id, log_id, kind, payload, status, author,
             created_at, updated_at, synced, sync_error, synced_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            project_id = excluded.project_id,
            log_id     = excluded.log_id,
            kind       = excluded.kind,
            payload    = excluded.payload,
            status     = excluded.status,
            author     = excluded.author,
            updated_at = excluded.updated_at,
            synced     = excluded.synced,
            sync_error = excluded.sync_error,
            synced_at  = excluded.synced_at
    `, record.ID, record.ProjectID, record.LogID, record.Kind, string(payload),
		record.Status, record.Author, record.CreatedAt.UTC(), record.UpdatedAt.UTC(),
		boolToInt(record.Synced), record.SyncError, syncedAt)

	if err != nil {
		return &models.LocalIOError{Op: "put", Key: record.ID, Err: err}
	}

	s.logger.WithFields(map[string]interface{}{
		"record_id": record.ID,
		"kind":      record.Kind,
		"synced":    record.Synced,
	}).Debug("Stored record")

	return nil
}

// Get returns a record by identity.
func (s *SQLiteStore) Get(id string) (*models.Record, error) {
	row := s.db.QueryRow(`
        SELECT id, project_id, log_id, kind, payload, status, author,
               created_at, updated_at, synced, sync_error, synced_at
        FROM records WHERE id = ?
    `, id)

	record, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, models.ErrRecordNotFound
	}
	if err != nil {
		return nil, &models.LocalIOError{Op: "get", Key: id, Err: err}
	}
	return record, nil
}

// Scan returns records matching the filter, newest first.
func (s *SQLiteStore) Scan(filter Filter) ([]*models.Record, error) {
	query := `
        SELECT id, project_id, log_id, kind, payload, status, author,
               created_at, updated_at, synced, sync_error, synced_at
        FROM records WHERE 1=1`
	var args []any

	if filter.ProjectID != "" {
		query += " AND project_id = ?"
		args = append(args, filter.ProjectID)
	}
	if filter.Kind != "" {
		query += " AND kind = ?"
		args = append(args, filter.Kind)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	if filter.UnsyncedOnly {
		query += " AND synced = 0"
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, &models.LocalIOError{Op: "scan", Err: err}
	}
	defer rows.Close()

	var records []*models.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, &models.LocalIOError{Op: "scan", Err: err}
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, &models.LocalIOError{Op: "scan", Err: err}
	}

	return records, nil
}

// Delete removes a record. Absence is not an error.
func (s *SQLiteStore) Delete(id string) error {
	if _, err := s.db.Exec("DELETE FROM records WHERE id = ?", id); err != nil {
		return &models.LocalIOError{Op: "delete", Key: id, Err: err}
	}
	return nil
}

// MarkSynced flips the synced flag and records the confirmation time.
func (s *SQLiteStore) MarkSynced(id string, at time.Time) error {
	res, err := s.db.Exec(`
        UPDATE records SET synced = 1, sync_error = '', synced_at = ?
        WHERE id = ?
    `, at.UTC(), id)
	if err != nil {
		return &models.LocalIOError{Op: "mark synced", Key: id, Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrRecordNotFound
	}
	return nil
}

// MarkSyncFailed stores the latest sync failure without touching domain
// fields.
func (s *SQLiteStore) MarkSyncFailed(id string, syncErr error) error {
	msg := ""
	if syncErr != nil {
		msg = syncErr.Error()
	}
	res, err := s.db.Exec(`
        UPDATE records SET synced = 0, sync_error = ? WHERE id = ?
    `, msg, id)
	if err != nil {
		return &models.LocalIOError{Op: "mark sync failed", Key: id, Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrRecordNotFound
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.Record, error) {
	var (
		record    models.Record
		payload   string
		synced    int
		syncedAt  sql.NullTime
		createdAt time.Time
		updatedAt time.Time
	)

	err := row.Scan(&record.ID, &record.ProjectID, &record.LogID, &record.Kind,
		&payload, &record.Status, &record.Author, &createdAt, &updatedAt,
		&synced, &record.SyncError, &syncedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(payload), &record.Payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	record.CreatedAt = createdAt.UTC()
	record.UpdatedAt = updatedAt.UTC()
	record.Synced = synced != 0
	if syncedAt.Valid {
		t := syncedAt.Time.UTC()
		record.SyncedAt = &t
	}

	return &record, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
