// Package recovery decides whether an interrupted bulk-sync job can be
// resumed from its checkpoint and produces operator-facing diagnostics.
// Recommendations feed observability surfaces only, never control flow.
package recovery

import (
	"fmt"
	"time"

	"github.com/MonteBryce/fieldsync/internal/events"
	"github.com/MonteBryce/fieldsync/internal/models"
)

// Strategy inspects checkpoints and builds resume plans.
type Strategy struct {
	maxAge time.Duration
	logger *events.Logger
}

// NewStrategy creates a recovery strategy. maxAge is the staleness
// threshold beyond which a job is considered abandoned.
func NewStrategy(maxAge time.Duration, logger *events.Logger) *Strategy {
	if maxAge <= 0 {
		maxAge = models.DefaultCheckpointMaxAge
	}
	return &Strategy{
		maxAge: maxAge,
		logger: logger.WithField("component", "recovery"),
	}
}

// ResumePlan carries everything the caller needs to re-enter the job loop
// at the correct position instead of starting from zero.
type ResumePlan struct {
	Viable    bool
	Reason    string
	JobKind   string
	StartTime time.Time
	LastBatch int
	Processed int
	Context   map[string]string
}

// Recover reports whether resumption is viable for the checkpoint and, if
// so, reconstructs the resumption context. The checkpoint itself is never
// mutated or deleted here.
func (s *Strategy) Recover(cp *models.Checkpoint) *ResumePlan {
	plan := &ResumePlan{
		JobKind:   cp.JobKind,
		StartTime: cp.StartTime,
		LastBatch: cp.CurrentBatch,
		Processed: cp.ProcessedRecords,
		Context:   cp.Context,
	}

	if cp.Completed {
		plan.Reason = "job already completed"
		return plan
	}

	if cp.IsStale(s.maxAge) {
		plan.Reason = fmt.Sprintf("job stale: incomplete for %s (threshold %s)",
			cp.Elapsed().Round(time.Second), s.maxAge)
		s.logger.WithFields(map[string]interface{}{
			"checkpoint_id": cp.ID,
			"elapsed":       cp.Elapsed(),
		}).Warn("Checkpoint too stale to resume")
		return plan
	}

	plan.Viable = true
	plan.Reason = fmt.Sprintf("resumable from batch %d (%d/%d records processed)",
		cp.CurrentBatch, cp.ProcessedRecords, cp.TotalRecords)

	s.logger.WithFields(map[string]interface{}{
		"checkpoint_id": cp.ID,
		"last_batch":    cp.CurrentBatch,
		"processed":     cp.ProcessedRecords,
		"total":         cp.TotalRecords,
	}).Info("Recovering previous bulk job")

	return plan
}

// Recommendations returns human-readable hints for operator surfaces. It
// is pure: no side effects, no logging.
func (s *Strategy) Recommendations(cp *models.Checkpoint) []string {
	var hints []string

	if cp.Completed {
		if len(cp.FailedRecords) > 0 {
			hints = append(hints, fmt.Sprintf(
				"job completed with %d failed records; inspect their sync errors",
				len(cp.FailedRecords)))
		}
		return hints
	}

	if cp.IsStale(s.maxAge) {
		hints = append(hints, "job is stale; restart it from the beginning")
	}

	if len(cp.FailedRecords) > 0 {
		pct := float64(len(cp.FailedRecords)) / float64(max(cp.TotalRecords, 1)) * 100
		if pct >= 25 {
			hints = append(hints, fmt.Sprintf(
				"%d of %d records failed; inspect errors before retrying",
				len(cp.FailedRecords), cp.TotalRecords))
		} else {
			hints = append(hints, fmt.Sprintf(
				"%d records failed so far; they will be reported on completion",
				len(cp.FailedRecords)))
		}
	}

	if throughput := s.throughput(cp); throughput > 0 && throughput < 0.2 {
		hints = append(hints,
			"low throughput; check connectivity or reduce the batch size")
	}

	if cp.LastError != "" {
		hints = append(hints, fmt.Sprintf("last error: %s", cp.LastError))
	}

	return hints
}

// throughput estimates processed records per second over the job lifetime.
func (s *Strategy) throughput(cp *models.Checkpoint) float64 {
	elapsed := cp.Elapsed().Seconds()
	if elapsed <= 0 || cp.ProcessedRecords == 0 {
		return 0
	}
	return float64(cp.ProcessedRecords) / elapsed
}
