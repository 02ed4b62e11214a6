package sync

import (
	"context"
	"sync"
	"time"

	"github.com/MonteBryce/fieldsync/internal/events"
	"github.com/MonteBryce/fieldsync/internal/models"
	"github.com/MonteBryce/fieldsync/internal/queue"
	"github.com/MonteBryce/fieldsync/internal/remote"
	"github.com/MonteBryce/fieldsync/internal/store"
)

// Engine drains the sync queue against the remote store. It is the only
// component that reads both the record store and the queue and writes
// confirmations back into them.
type Engine struct {
	records store.Store
	queue   queue.Queue
	remote  remote.Store
	logger  *events.Logger

	maxConcurrent int
	timeout       time.Duration

	// Mutual exclusion over the queue: a second drain while one is in
	// flight is skipped, never run concurrently.
	mu       sync.Mutex
	draining bool
}

// EngineConfig contains drain configuration.
type EngineConfig struct {
	MaxConcurrent int           // Concurrent document groups
	Timeout       time.Duration // Per remote attempt
}

// NewEngine creates a sync engine.
func NewEngine(records store.Store, q queue.Queue, rs remote.Store, cfg *EngineConfig, logger *events.Logger) *Engine {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Engine{
		records:       records,
		queue:         q,
		remote:        rs,
		logger:        logger.WithField("component", "sync_engine"),
		maxConcurrent: maxConcurrent,
		timeout:       timeout,
	}
}

// DrainResult summarizes one drain pass.
type DrainResult struct {
	Attempted int
	Succeeded int
	Transient int
	Rejected  int
}

// DrainOnce attempts every eligible queue entry and classifies each
// outcome. Entries for the same document are applied sequentially in
// enqueue order; distinct documents proceed in parallel. One entry's
// failure never aborts the others.
func (e *Engine) DrainOnce(ctx context.Context) (*DrainResult, error) {
	e.mu.Lock()
	if e.draining {
		e.mu.Unlock()
		return nil, models.ErrDrainInProgress
	}
	e.draining = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.draining = false
		e.mu.Unlock()
	}()

	entries, err := e.queue.DequeueReady(time.Now())
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return &DrainResult{}, nil
	}

	groups := groupByDocument(entries)

	e.logger.WithFields(map[string]interface{}{
		"entries": len(entries),
		"groups":  len(groups),
	}).Debug("Draining sync queue")

	var (
		wg     sync.WaitGroup
		resMu  sync.Mutex
		result DrainResult
		sem    = make(chan struct{}, e.maxConcurrent)
	)

	for _, group := range groups {
		select {
		case <-ctx.Done():
			wg.Wait()
			return &result, ctx.Err()
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(group []*models.QueueEntry) {
			defer wg.Done()
			defer func() { <-sem }()

			gr := e.drainGroup(ctx, group)

			resMu.Lock()
			result.Attempted += gr.Attempted
			result.Succeeded += gr.Succeeded
			result.Transient += gr.Transient
			result.Rejected += gr.Rejected
			resMu.Unlock()
		}(group)
	}

	wg.Wait()
	return &result, nil
}

// drainGroup applies one document's entries in order, stopping at the
// first failure so a later write cannot overtake an earlier one.
func (e *Engine) drainGroup(ctx context.Context, group []*models.QueueEntry) DrainResult {
	var result DrainResult
	allSucceeded := true

	for _, entry := range group {
		if ctx.Err() != nil {
			allSucceeded = false
			break
		}

		result.Attempted++
		err := e.attempt(ctx, entry)

		switch {
		case err == nil:
			result.Succeeded++
			if qErr := e.queue.MarkSucceeded(entry.ID); qErr != nil {
				e.logger.WithError(qErr).WithField("entry_id", entry.ID).
					Error("Failed to remove confirmed entry")
			}

		case models.IsPermanent(err):
			result.Rejected++
			allSucceeded = false
			e.recordFailure(entry, err, true)

		default:
			// Transient, including timeouts: it is unknown whether the
			// remote applied the write, so the entry stays queued.
			result.Transient++
			allSucceeded = false
			e.recordFailure(entry, err, false)
		}

		if err != nil {
			break
		}
	}

	if allSucceeded {
		e.confirmRecord(group[len(group)-1])
	}

	return result
}

// attempt issues a single remote write bounded by the per-attempt timeout.
func (e *Engine) attempt(ctx context.Context, entry *models.QueueEntry) error {
	attemptCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	path := entry.RemotePath()

	switch entry.Op {
	case models.OpDelete:
		// The remote interface is get + merge only; deletes travel as an
		// idempotent tombstone merge.
		return e.remote.SetWithMerge(attemptCtx, path, map[string]any{
			"deleted":   true,
			"deletedAt": time.Now().UTC().Format(time.RFC3339),
		})
	default:
		return e.remote.SetWithMerge(attemptCtx, path, entry.Payload)
	}
}

// confirmRecord flips the originating record to synced once no pending
// entries remain for its document. A record edited twice offline stays
// unsynced until the last of its entries is confirmed.
func (e *Engine) confirmRecord(entry *models.QueueEntry) {
	if entry.Op == models.OpDelete {
		return
	}

	pending, err := hasPendingWrites(e.queue, entry.RemotePath())
	if err != nil {
		e.logger.WithError(err).Warn("Could not verify pending entries after sync")
		return
	}
	if pending {
		return
	}

	if err := e.records.MarkSynced(entry.DocID, time.Now()); err != nil {
		// The caller may have deleted the record after enqueueing.
		if err != models.ErrRecordNotFound {
			e.logger.WithError(err).WithField("record_id", entry.DocID).
				Error("Failed to mark record synced")
		}
	}
}

// hasPendingWrites reports whether any non-rejected queue entry still
// targets the document path. No path may flip a record to synced while
// one remains: a queued edit supersedes whatever write just landed.
func hasPendingWrites(q queue.Queue, path string) (bool, error) {
	entries, err := q.Entries()
	if err != nil {
		return false, err
	}
	for _, entry := range entries {
		if entry.RemotePath() == path && !entry.Rejected {
			return true, nil
		}
	}
	return false, nil
}

// recordFailure writes failure state back into the queue and the record.
func (e *Engine) recordFailure(entry *models.QueueEntry, attemptErr error, permanent bool) {
	syncErr := &models.SyncError{
		Code:      models.ErrCodeUnreachable,
		Op:        string(entry.Op),
		ProjectID: entry.ProjectID,
		DocID:     entry.DocID,
		Err:       attemptErr,
	}

	if permanent {
		syncErr.Code = models.ErrCodeRejected
		if err := e.queue.MarkRejected(entry.ID, attemptErr); err != nil {
			e.logger.WithError(err).WithField("entry_id", entry.ID).
				Error("Failed to mark entry rejected")
		}
	} else {
		if err := e.queue.MarkFailed(entry.ID, attemptErr); err != nil {
			e.logger.WithError(err).WithField("entry_id", entry.ID).
				Error("Failed to mark entry failed")
		}
	}

	if entry.Op != models.OpDelete {
		if err := e.records.MarkSyncFailed(entry.DocID, syncErr); err != nil &&
			err != models.ErrRecordNotFound {
			e.logger.WithError(err).WithField("record_id", entry.DocID).
				Error("Failed to record sync failure")
		}
	}

	e.logger.WithFields(map[string]interface{}{
		"entry_id":  entry.ID,
		"doc_id":    entry.DocID,
		"retries":   entry.RetryCount,
		"permanent": permanent,
	}).WithError(attemptErr).Warn("Sync attempt failed")
}

// groupByDocument splits entries into per-document groups, preserving
// enqueue order both across and within groups.
func groupByDocument(entries []*models.QueueEntry) [][]*models.QueueEntry {
	index := make(map[string]int)
	var groups [][]*models.QueueEntry

	for _, entry := range entries {
		key := entry.RemotePath()
		if i, ok := index[key]; ok {
			groups[i] = append(groups[i], entry)
			continue
		}
		index[key] = len(groups)
		groups = append(groups, []*models.QueueEntry{entry})
	}

	return groups
}
