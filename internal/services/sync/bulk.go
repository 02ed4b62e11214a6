package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MonteBryce/fieldsync/internal/checkpoint"
	"github.com/MonteBryce/fieldsync/internal/events"
	"github.com/MonteBryce/fieldsync/internal/models"
	"github.com/MonteBryce/fieldsync/internal/store"
)

// StartBulkSync selects records, creates a checkpoint for the job, and
// uploads the selection in batches in the background. The returned
// checkpoint ID is the caller's handle for status and cancellation.
func (s *Service) StartBulkSync(ctx context.Context, jobKind string, selector store.Filter) (string, error) {
	records, err := s.records.Scan(selector)
	if err != nil {
		return "", fmt.Errorf("select records: %w", err)
	}

	// The checkpoint records which records the job selected. Resume must
	// not re-select: a fresh scan would pick up records that never belonged
	// to the job and shift batch positions under the accounted batches.
	ids := make([]string, len(records))
	for i, record := range records {
		ids[i] = record.ID
	}
	jobContext := map[string]string{
		"project_id": selector.ProjectID,
		"kind":       string(selector.Kind),
		"record_ids": strings.Join(ids, ","),
	}

	cp, err := s.checkpoints.Create(ctx, jobKind, len(records), jobContext)
	if err != nil {
		return "", err
	}

	s.launchJob(cp.ID, selector.ProjectID, records, 0)
	return cp.ID, nil
}

// ResumeBulkSync re-enters an interrupted bulk job at the last completed
// batch, if the recovery strategy deems the checkpoint viable.
func (s *Service) ResumeBulkSync(ctx context.Context, checkpointID string) error {
	cp, err := s.checkpoints.Get(ctx, checkpointID)
	if err != nil {
		return err
	}

	plan := s.strategy.Recover(cp)
	if !plan.Viable {
		return fmt.Errorf("checkpoint %s: %s", checkpointID, plan.Reason)
	}

	records, err := s.selectedRecords(plan.Context["record_ids"])
	if err != nil {
		return fmt.Errorf("checkpoint %s: %w", checkpointID, err)
	}

	s.logger.WithFields(map[string]interface{}{
		"checkpoint_id": checkpointID,
		"resume_batch":  plan.LastBatch,
	}).Info("Resuming bulk job")

	s.launchJob(checkpointID, plan.Context["project_id"], records, plan.LastBatch)
	return nil
}

// selectedRecords rebuilds a job's original selection from the IDs its
// checkpoint recorded. Records deleted since the job started keep a nil
// slot so batch positions stay aligned with already-accounted batches.
func (s *Service) selectedRecords(joined string) ([]*models.Record, error) {
	if joined == "" {
		return nil, errors.New("checkpoint does not record its selection")
	}

	ids := strings.Split(joined, ",")
	records := make([]*models.Record, len(ids))
	for i, id := range ids {
		record, err := s.records.Get(id)
		if errors.Is(err, models.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load record %s: %w", id, err)
		}
		records[i] = record
	}
	return records, nil
}

// CancelBulkSync stops a running bulk job. The checkpoint is left in its
// current non-completed state so recovery can later resume or abandon it.
func (s *Service) CancelBulkSync(checkpointID string) {
	s.jobMu.Lock()
	cancel, ok := s.jobs[checkpointID]
	s.jobMu.Unlock()

	if ok {
		cancel()
	}
}

// CleanupCheckpoints purges checkpoints beyond the retention window.
func (s *Service) CleanupCheckpoints(ctx context.Context, retention time.Duration) (int, error) {
	return s.checkpoints.Cleanup(ctx, retention)
}

// ListStaleCheckpoints returns incomplete jobs past the staleness
// threshold, for recovery sweeps.
func (s *Service) ListStaleCheckpoints(ctx context.Context, maxAge time.Duration) ([]*models.Checkpoint, error) {
	return s.checkpoints.ListStale(ctx, maxAge)
}

// ListActiveCheckpoints returns incomplete jobs, newest first.
func (s *Service) ListActiveCheckpoints(ctx context.Context) ([]*models.Checkpoint, error) {
	return s.checkpoints.ListActive(ctx)
}

// launchJob runs the batch loop in the background, tracked for Cancel.
// The job context carries a job-tagged logger for everything downstream.
func (s *Service) launchJob(checkpointID, projectID string, records []*models.Record, startBatch int) {
	ctx := events.WithLogger(context.Background(), s.logger)
	ctx = events.WithTag(ctx, events.TagJob, checkpointID)
	if projectID != "" {
		ctx = events.WithTag(ctx, events.TagProject, projectID)
	}
	jobCtx, cancel := context.WithCancel(ctx)

	s.jobMu.Lock()
	s.jobs[checkpointID] = cancel
	s.jobMu.Unlock()

	s.jobWG.Add(1)
	go func() {
		defer s.jobWG.Done()
		defer func() {
			cancel()
			s.jobMu.Lock()
			delete(s.jobs, checkpointID)
			s.jobMu.Unlock()
		}()

		if err := s.runBulkJob(jobCtx, checkpointID, records, startBatch); err != nil {
			if errors.Is(err, models.ErrJobCancelled) {
				s.logger.WithField("checkpoint_id", checkpointID).
					Info("Bulk job cancelled, checkpoint kept for recovery")
				return
			}
			s.logger.WithError(err).WithField("checkpoint_id", checkpointID).
				Error("Bulk job failed")
		}
	}()
}

// runBulkJob uploads record batches, reporting each batch into the
// checkpoint exactly once. Batch IDs are deterministic per position so a
// resumed or retried batch cannot double-count.
func (s *Service) runBulkJob(ctx context.Context, checkpointID string, records []*models.Record, startBatch int) error {
	batches := splitBatches(records, s.batchSize)

	for i := startBatch; i < len(batches); i++ {
		if ctx.Err() != nil {
			return models.ErrJobCancelled
		}

		batchID := fmt.Sprintf("%s-batch-%d", checkpointID, i)
		failed := s.uploadBatch(ctx, batches[i])

		if ctx.Err() != nil {
			// Cancelled mid-batch: do not account a partial batch; the
			// re-run repeats it and merge writes make that safe.
			return models.ErrJobCancelled
		}

		delta := checkpoint.Delta{
			BatchID:   batchID,
			Processed: len(batches[i]),
			Failed:    failed,
		}
		if len(failed) > 0 {
			delta.LastError = fmt.Sprintf("batch %d: %d of %d records failed",
				i, len(failed), len(batches[i]))
		}

		if _, err := s.checkpoints.Update(ctx, checkpointID, delta); err != nil {
			return fmt.Errorf("account batch %d: %w", i, err)
		}
	}

	return s.checkpoints.Complete(ctx, checkpointID)
}

// uploadBatch writes one batch to the remote store with bounded
// concurrency and returns the identities that failed. Individual failures
// accumulate; they never abort the rest of the batch.
func (s *Service) uploadBatch(ctx context.Context, batch []*models.Record) []string {
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed []string
		sem    = make(chan struct{}, s.engine.maxConcurrent)
	)

	for _, record := range batch {
		if record == nil {
			// Deleted since the job started; the slot still counts toward
			// the batch so positions stay aligned.
			continue
		}

		select {
		case <-ctx.Done():
			wg.Wait()
			return failed
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(record *models.Record) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := s.uploadRecord(ctx, record); err != nil {
				mu.Lock()
				failed = append(failed, record.ID)
				mu.Unlock()

				if markErr := s.records.MarkSyncFailed(record.ID, err); markErr != nil {
					events.FromContext(ctx).WithError(markErr).
						WithField("record_id", record.ID).
						Warn("Could not record bulk sync failure")
				}
			}
		}(record)
	}

	wg.Wait()
	return failed
}

// uploadRecord merges one record into the remote store and confirms it
// locally on success.
func (s *Service) uploadRecord(ctx context.Context, record *models.Record) error {
	attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	entry := models.QueueEntry{
		ProjectID:  record.ProjectID,
		LogID:      record.LogID,
		Collection: record.Collection(),
		DocID:      record.ID,
	}

	if err := s.remote.SetWithMerge(attemptCtx, entry.RemotePath(), snapshotPayload(record)); err != nil {
		return err
	}

	pending, err := hasPendingWrites(s.queue, entry.RemotePath())
	if err != nil {
		events.FromContext(ctx).WithError(err).WithField("record_id", record.ID).
			Warn("Could not verify pending entries after bulk upload")
		return nil
	}
	if pending {
		// The record was edited after the job snapshotted it. The queued
		// write supersedes this upload, and draining it confirms the record.
		return nil
	}

	if err := s.records.MarkSynced(record.ID, time.Now()); err != nil &&
		!errors.Is(err, models.ErrRecordNotFound) {
		return err
	}
	return nil
}

// splitBatches cuts records into fixed-size batches, preserving order.
func splitBatches(records []*models.Record, size int) [][]*models.Record {
	if size <= 0 {
		size = 50
	}

	var batches [][]*models.Record
	for i := 0; i < len(records); i += size {
		end := i + size
		if end > len(records) {
			end = len(records)
		}
		batches = append(batches, records[i:end])
	}
	return batches
}
