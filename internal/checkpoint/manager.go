package checkpoint

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MonteBryce/fieldsync/internal/events"
	"github.com/MonteBryce/fieldsync/internal/models"
)

// Delta describes one batch worth of progress. BatchID makes updates
// idempotent: a retried batch reporting the same ID is counted once.
type Delta struct {
	BatchID   string
	Processed int
	Failed    []string
	LastError string
}

// Manager owns checkpoint lifecycle and enforces the progress invariants
// the repositories do not: monotonic completion, clamped counts, and
// idempotent batch accounting. Accounting is serialized per manager so
// ProcessedRecords stays monotonically correct under concurrent workers.
type Manager struct {
	repo   Repository
	maxAge time.Duration
	logger *events.Logger

	mu sync.Mutex
}

// NewManager creates a checkpoint manager around an injected repository.
func NewManager(repo Repository, maxAge time.Duration, logger *events.Logger) *Manager {
	if maxAge <= 0 {
		maxAge = models.DefaultCheckpointMaxAge
	}
	return &Manager{
		repo:   repo,
		maxAge: maxAge,
		logger: logger.WithField("component", "checkpoint_manager"),
	}
}

// MaxAge returns the staleness threshold the manager was built with.
func (m *Manager) MaxAge() time.Duration {
	return m.maxAge
}

// Create allocates a new active checkpoint and persists it.
func (m *Manager) Create(ctx context.Context, jobKind string, totalRecords int, jobContext map[string]string) (*models.Checkpoint, error) {
	cp := models.NewCheckpoint(jobKind, totalRecords, jobContext)

	if err := m.repo.Save(ctx, cp); err != nil {
		return nil, fmt.Errorf("create checkpoint: %w", err)
	}

	m.logger.WithFields(map[string]interface{}{
		"checkpoint_id": cp.ID,
		"job_kind":      jobKind,
		"total":         totalRecords,
	}).Info("Created checkpoint")

	return cp.Clone(), nil
}

// Update advances processed count, batch number, and the failed-record
// list. Calling it twice with the same batch ID counts the progress once.
// Updates against a completed checkpoint are no-ops, logged, not errors.
func (m *Manager) Update(ctx context.Context, id string, delta Delta) (*models.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp, err := m.repo.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	if cp.Completed {
		m.logger.WithField("checkpoint_id", id).Warn("Update on completed checkpoint ignored")
		return cp, nil
	}

	if delta.BatchID != "" && cp.HasBatch(delta.BatchID) {
		m.logger.WithFields(map[string]interface{}{
			"checkpoint_id": id,
			"batch_id":      delta.BatchID,
		}).Debug("Batch already accounted, skipping")
		return cp, nil
	}

	cp.ProcessedRecords += delta.Processed
	if cp.ProcessedRecords > cp.TotalRecords {
		cp.ProcessedRecords = cp.TotalRecords
	}
	if delta.BatchID != "" {
		cp.ProcessedBatches = append(cp.ProcessedBatches, delta.BatchID)
		cp.CurrentBatch++
	}
	cp.FailedRecords = append(cp.FailedRecords, delta.Failed...)
	if delta.LastError != "" {
		cp.LastError = delta.LastError
	}

	if err := m.repo.Save(ctx, cp); err != nil {
		return nil, fmt.Errorf("update checkpoint: %w", err)
	}

	return cp.Clone(), nil
}

// Complete marks the checkpoint done. The transition happens exactly once;
// repeated calls are no-ops.
func (m *Manager) Complete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp, err := m.repo.Load(ctx, id)
	if err != nil {
		return err
	}

	if cp.Completed {
		return nil
	}

	now := time.Now().UTC()
	cp.Completed = true
	cp.CompletedAt = &now

	if err := m.repo.Save(ctx, cp); err != nil {
		return fmt.Errorf("complete checkpoint: %w", err)
	}

	m.logger.WithFields(map[string]interface{}{
		"checkpoint_id": id,
		"processed":     cp.ProcessedRecords,
		"failed":        len(cp.FailedRecords),
	}).Info("Completed checkpoint")

	return nil
}

// SetError records a job-level error without completing the checkpoint.
func (m *Manager) SetError(ctx context.Context, id string, jobErr error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp, err := m.repo.Load(ctx, id)
	if err != nil {
		return err
	}
	if cp.Completed {
		return nil
	}

	if jobErr != nil {
		cp.LastError = jobErr.Error()
	}
	return m.repo.Save(ctx, cp)
}

// Get returns a checkpoint by ID.
func (m *Manager) Get(ctx context.Context, id string) (*models.Checkpoint, error) {
	return m.repo.Load(ctx, id)
}

// ListActive returns incomplete checkpoints, newest first.
func (m *Manager) ListActive(ctx context.Context) ([]*models.Checkpoint, error) {
	all, err := m.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	var out []*models.Checkpoint
	for _, cp := range all {
		if !cp.Completed {
			out = append(out, cp)
		}
	}
	return out, nil
}

// ListStale returns incomplete checkpoints older than maxAge. A zero
// maxAge uses the manager's configured threshold.
func (m *Manager) ListStale(ctx context.Context, maxAge time.Duration) ([]*models.Checkpoint, error) {
	if maxAge <= 0 {
		maxAge = m.maxAge
	}

	all, err := m.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	var out []*models.Checkpoint
	for _, cp := range all {
		if cp.IsStale(maxAge) {
			out = append(out, cp)
		}
	}
	return out, nil
}

// Cleanup purges checkpoints older than the retention window regardless of
// completion state, and reports how many were removed.
func (m *Manager) Cleanup(ctx context.Context, retention time.Duration) (int, error) {
	if retention <= 0 {
		retention = models.DefaultCheckpointRetention
	}

	all, err := m.repo.List(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-retention)
	removed := 0
	for _, cp := range all {
		if cp.StartTime.After(cutoff) {
			continue
		}
		if err := m.repo.Delete(ctx, cp.ID); err != nil {
			return removed, fmt.Errorf("cleanup checkpoint %s: %w", cp.ID, err)
		}
		removed++
	}

	if removed > 0 {
		m.logger.WithField("removed", removed).Info("Cleaned up old checkpoints")
	}

	return removed, nil
}
