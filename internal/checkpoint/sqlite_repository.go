package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/MonteBryce/fieldsync/internal/events"
	"github.com/MonteBryce/fieldsync/internal/models"
)

// SQLiteRepository implements SQLite-based checkpoint storage.
type SQLiteRepository struct {
	db     *sql.DB
	logger *events.Logger
}

// NewSQLiteRepository creates a SQLite checkpoint repository.
func NewSQLiteRepository(dbPath string, logger *events.Logger) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	r := &SQLiteRepository{
		db:     db,
		logger: logger.WithField("component", "checkpoint_repository"),
	}

	if err := r.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	return r, nil
}

// initialize creates the checkpoints table. Batch, failure, and context
// lists are stored as JSON blobs; they are read and written whole.
func (r *SQLiteRepository) initialize() error {
	schema := `
    CREATE TABLE IF NOT EXISTS checkpoints (
        id TEXT PRIMARY KEY,
        job_kind TEXT NOT NULL,
        start_time TIMESTAMP NOT NULL,
        total_records INTEGER NOT NULL,
        processed_records INTEGER NOT NULL DEFAULT 0,
        current_batch INTEGER NOT NULL DEFAULT 0,
        processed_batches TEXT NOT NULL DEFAULT '[]',
        failed_records TEXT NOT NULL DEFAULT '[]',
        context TEXT NOT NULL DEFAULT '{}',
        completed INTEGER NOT NULL DEFAULT 0,
        completed_at TIMESTAMP,
        last_error TEXT NOT NULL DEFAULT ''
    );

    CREATE INDEX IF NOT EXISTS idx_checkpoints_start ON checkpoints(start_time);
    CREATE INDEX IF NOT EXISTS idx_checkpoints_completed ON checkpoints(completed);
    `

	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	return nil
}

// Save upserts the checkpoint.
func (r *SQLiteRepository) Save(ctx context.Context, cp *models.Checkpoint) error {
	if err := cp.Validate(); err != nil {
		return err
	}

	batches, err := json.Marshal(cp.ProcessedBatches)
	if err != nil {
		return fmt.Errorf("encode batches: %w", err)
	}
	failed, err := json.Marshal(cp.FailedRecords)
	if err != nil {
		return fmt.Errorf("encode failed records: %w", err)
	}
	jobCtx, err := json.Marshal(cp.Context)
	if err != nil {
		return fmt.Errorf("encode context: %w", err)
	}

	var completedAt any
	if cp.CompletedAt != nil {
		completedAt = cp.CompletedAt.UTC()
	}

	_, err = r.db.ExecContext(ctx, `
        INSERT INTO checkpoints
            (id, job_kind, start_time, total_records, processed_records,
             current_batch, processed_batches, failed_records, context,
             completed, completed_at, last_error)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            processed_records = excluded.processed_records,
            current_batch     = excluded.current_batch,
            processed_batches = excluded.processed_batches,
            failed_records    = excluded.failed_records,
            context           = excluded.context,
            completed         = excluded.completed,
            completed_at      = excluded.completed_at,
            last_error        = excluded.last_error
    `, cp.ID, cp.JobKind, cp.StartTime.UTC(), cp.TotalRecords, cp.ProcessedRecords,
		cp.CurrentBatch, string(batches), string(failed), string(jobCtx),
		boolToInt(cp.Completed), completedAt, cp.LastError)

	if err != nil {
		return &models.LocalIOError{Op: "save checkpoint", Key: cp.ID, Err: err}
	}

	return nil
}

// Load returns a checkpoint by ID.
func (r *SQLiteRepository) Load(ctx context.Context, id string) (*models.Checkpoint, error) {
	row := r.db.QueryRowContext(ctx, `
        SELECT id, job_kind, start_time, total_records, processed_records,
               current_batch, processed_batches, failed_records, context,
               completed, completed_at, last_error
        FROM checkpoints WHERE id = ?
    `, id)

	cp, err := scanCheckpoint(row)
	if err == sql.ErrNoRows {
		return nil, models.ErrCheckpointNotFound
	}
	if err != nil {
		return nil, &models.LocalIOError{Op: "load checkpoint", Key: id, Err: err}
	}
	return cp, nil
}

// List returns all checkpoints, newest first.
func (r *SQLiteRepository) List(ctx context.Context) ([]*models.Checkpoint, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT id, job_kind, start_time, total_records, processed_records,
               current_batch, processed_batches, failed_records, context,
               completed, completed_at, last_error
        FROM checkpoints ORDER BY start_time DESC
    `)
	if err != nil {
		return nil, &models.LocalIOError{Op: "list checkpoints", Err: err}
	}
	defer rows.Close()

	var out []*models.Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, &models.LocalIOError{Op: "list checkpoints", Err: err}
		}
		out = append(out, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, &models.LocalIOError{Op: "list checkpoints", Err: err}
	}

	return out, nil
}

// Delete removes a checkpoint; absence is a no-op.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM checkpoints WHERE id = ?", id); err != nil {
		return &models.LocalIOError{Op: "delete checkpoint", Key: id, Err: err}
	}
	return nil
}

// Close releases the database handle.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row rowScanner) (*models.Checkpoint, error) {
	var (
		cp          models.Checkpoint
		startTime   time.Time
		batches     string
		failed      string
		jobCtx      string
		completed   int
		completedAt sql.NullTime
	)

	err := row.Scan(&cp.ID, &cp.JobKind, &startTime, &cp.TotalRecords,
		&cp.ProcessedRecords, &cp.CurrentBatch, &batches, &failed, &jobCtx,
		&completed, &completedAt, &cp.LastError)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(batches), &cp.ProcessedBatches); err != nil {
		return nil, fmt.Errorf("decode batches: %w", err)
	}
	if err := json.Unmarshal([]byte(failed), &cp.FailedRecords); err != nil {
		return nil, fmt.Errorf("decode failed records: %w", err)
	}
	if err := json.Unmarshal([]byte(jobCtx), &cp.Context); err != nil {
		return nil, fmt.Errorf("decode context: %w", err)
	}

	cp.StartTime = startTime.UTC()
	cp.Completed = completed != 0
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		cp.CompletedAt = &t
	}

	return &cp, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
