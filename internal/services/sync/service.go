// Package sync contains the sync engine and the caller-facing service.
// The service owns the caller's write path (local put + durable enqueue as
// a unit) and the bulk job lifecycle; the engine owns queue draining.
package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MonteBryce/fieldsync/internal/checkpoint"
	"github.com/MonteBryce/fieldsync/internal/events"
	"github.com/MonteBryce/fieldsync/internal/models"
	"github.com/MonteBryce/fieldsync/internal/queue"
	"github.com/MonteBryce/fieldsync/internal/recovery"
	"github.com/MonteBryce/fieldsync/internal/remote"
	"github.com/MonteBryce/fieldsync/internal/store"
)

// Service is the caller-facing surface of the sync core.
type Service struct {
	records     store.Store
	queue       queue.Queue
	remote      remote.Store
	engine      *Engine
	checkpoints *checkpoint.Manager
	strategy    *recovery.Strategy
	logger      *events.Logger

	batchSize int
	timeout   time.Duration

	trigger chan struct{}

	// Active bulk jobs, for cancellation.
	jobMu sync.Mutex
	jobs  map[string]context.CancelFunc
	jobWG sync.WaitGroup
}

// ServiceConfig contains service configuration.
type ServiceConfig struct {
	MaxConcurrent int
	BatchSize     int
	Timeout       time.Duration
}

// NewService creates the sync service.
func NewService(
	records store.Store,
	q queue.Queue,
	rs remote.Store,
	checkpoints *checkpoint.Manager,
	strategy *recovery.Strategy,
	cfg *ServiceConfig,
	logger *events.Logger,
) *Service {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	engine := NewEngine(records, q, rs, &EngineConfig{
		MaxConcurrent: cfg.MaxConcurrent,
		Timeout:       timeout,
	}, logger)

	return &Service{
		records:     records,
		queue:       q,
		remote:      rs,
		engine:      engine,
		checkpoints: checkpoints,
		strategy:    strategy,
		logger:      logger.WithField("service", "sync"),
		batchSize:   batchSize,
		timeout:     timeout,
		trigger:     make(chan struct{}, 1),
		jobs:        make(map[string]context.CancelFunc),
	}
}

// SaveRecord persists a record locally and durably enqueues its remote
// write. Both succeed or neither does: if the enqueue fails, the local
// write is rolled back and the whole save reported as failed, so no record
// can end up unsynced but unqueued.
func (s *Service) SaveRecord(record *models.Record) error {
	if err := record.Validate(); err != nil {
		return err
	}

	prior, err := s.records.Get(record.ID)
	if err != nil && !errors.Is(err, models.ErrRecordNotFound) {
		return err
	}

	op := models.OpCreate
	if prior != nil {
		op = models.OpUpdate
	}

	// Every save is a fresh edit awaiting confirmation.
	record.Touch()
	if err := s.records.Put(record); err != nil {
		return err
	}

	entry := &models.QueueEntry{
		ID:         uuid.New().String(),
		Op:         op,
		ProjectID:  record.ProjectID,
		LogID:      record.LogID,
		Collection: record.Collection(),
		DocID:      record.ID,
		Payload:    snapshotPayload(record),
		CreatedAt:  time.Now().UTC(),
	}

	if _, err := s.queue.Enqueue(entry); err != nil {
		s.rollbackPut(record.ID, prior)
		return fmt.Errorf("enqueue sync entry: %w", err)
	}

	s.TriggerDrain()
	return nil
}

// DeleteRecord removes a record locally and enqueues the remote delete.
func (s *Service) DeleteRecord(id string) error {
	record, err := s.records.Get(id)
	if err != nil {
		if errors.Is(err, models.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	if err := s.records.Delete(id); err != nil {
		return err
	}

	entry := &models.QueueEntry{
		ID:         uuid.New().String(),
		Op:         models.OpDelete,
		ProjectID:  record.ProjectID,
		LogID:      record.LogID,
		Collection: record.Collection(),
		DocID:      record.ID,
		CreatedAt:  time.Now().UTC(),
	}

	if _, err := s.queue.Enqueue(entry); err != nil {
		s.rollbackPut(record.ID, record)
		return fmt.Errorf("enqueue delete entry: %w", err)
	}

	s.TriggerDrain()
	return nil
}

// rollbackPut restores the prior state of a record after a failed enqueue.
func (s *Service) rollbackPut(id string, prior *models.Record) {
	var err error
	if prior == nil {
		err = s.records.Delete(id)
	} else {
		err = s.records.Put(prior)
	}
	if err != nil {
		// Local IO failed during rollback too; the save already reports
		// failure, this only loses the rollback.
		s.logger.WithError(err).WithField("record_id", id).
			Error("Rollback after failed enqueue did not complete")
	}
}

// LoadRecord returns a record by identity.
func (s *Service) LoadRecord(id string) (*models.Record, error) {
	return s.records.Get(id)
}

// ListUnsynced returns records awaiting a confirmed remote write, newest
// first. The UI derives its "will sync later" badges from this.
func (s *Service) ListUnsynced(projectID string) ([]*models.Record, error) {
	return s.records.Scan(store.Filter{
		ProjectID:    projectID,
		UnsyncedOnly: true,
	})
}

// QueueEntries exposes the pending queue for operator surfaces.
func (s *Service) QueueEntries() ([]*models.QueueEntry, error) {
	return s.queue.Entries()
}

// PurgeRejected removes non-retryable queue entries on operator request.
func (s *Service) PurgeRejected() (int, error) {
	return s.queue.PurgeRejected()
}

// DrainOnce runs one drain pass; see Engine.DrainOnce.
func (s *Service) DrainOnce(ctx context.Context) (*DrainResult, error) {
	return s.engine.DrainOnce(ctx)
}

// TriggerDrain requests an out-of-band drain pass, e.g. on a
// connectivity-restored event. It never blocks.
func (s *Service) TriggerDrain() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// RunDrainLoop drains periodically and on demand until ctx is cancelled.
func (s *Service) RunDrainLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-s.trigger:
		}

		result, err := s.engine.DrainOnce(ctx)
		if err != nil {
			if errors.Is(err, models.ErrDrainInProgress) || errors.Is(err, context.Canceled) {
				continue
			}
			s.logger.WithError(err).Warn("Drain pass failed")
			continue
		}
		if result.Attempted > 0 {
			s.logger.WithFields(map[string]interface{}{
				"attempted": result.Attempted,
				"succeeded": result.Succeeded,
				"transient": result.Transient,
				"rejected":  result.Rejected,
			}).Info("Drain pass finished")
		}
	}
}

// SyncStatus reports a bulk job's state for the caller UI.
type SyncStatus struct {
	CheckpointID    string
	JobKind         string
	Progress        float64
	Processed       int
	Total           int
	FailedRecords   []string
	Completed       bool
	Stale           bool
	LastError       string
	Recommendations []string
}

// GetSyncStatus returns progress, staleness, and recovery recommendations
// for a bulk job.
func (s *Service) GetSyncStatus(ctx context.Context, checkpointID string) (*SyncStatus, error) {
	cp, err := s.checkpoints.Get(ctx, checkpointID)
	if err != nil {
		return nil, err
	}

	return &SyncStatus{
		CheckpointID:    cp.ID,
		JobKind:         cp.JobKind,
		Progress:        cp.Progress(),
		Processed:       cp.ProcessedRecords,
		Total:           cp.TotalRecords,
		FailedRecords:   append([]string(nil), cp.FailedRecords...),
		Completed:       cp.Completed,
		Stale:           cp.IsStale(s.checkpoints.MaxAge()),
		LastError:       cp.LastError,
		Recommendations: s.strategy.Recommendations(cp),
	}, nil
}

// Close waits for running bulk jobs to observe cancellation.
func (s *Service) Close() {
	s.jobMu.Lock()
	for _, cancel := range s.jobs {
		cancel()
	}
	s.jobMu.Unlock()
	s.jobWG.Wait()
}

// snapshotPayload captures the remote document fields at enqueue time.
// Later edits to the record enqueue a new entry; they never mutate this
// snapshot.
func snapshotPayload(record *models.Record) map[string]any {
	snap := make(map[string]any, len(record.Payload)+4)
	for k, v := range record.Payload {
		snap[k] = v
	}
	snap["status"] = string(record.Status)
	snap["author"] = record.Author
	snap["createdAt"] = record.CreatedAt.UTC().Format(time.RFC3339)
	snap["updatedAt"] = record.UpdatedAt.UTC().Format(time.RFC3339)
	return snap
}
