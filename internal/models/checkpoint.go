package models

import (
	"fmt"
	"strings"
	"time"
)

// Default windows for checkpoint staleness and retention.
const (
	DefaultCheckpointMaxAge    = 2 * time.Hour
	DefaultCheckpointRetention = 24 * time.Hour
)

// Checkpoint tracks one bulk-sync job instance so an interrupted job can be
// detected and resumed from the last completed batch instead of restarting.
type Checkpoint struct {
	ID               string            `json:"id"`
	JobKind          string            `json:"job_kind"`
	StartTime        time.Time         `json:"start_time"`
	TotalRecords     int               `json:"total_records"`
	ProcessedRecords int               `json:"processed_records"`
	CurrentBatch     int               `json:"current_batch"`
	ProcessedBatches []string          `json:"processed_batches,omitempty"`
	FailedRecords    []string          `json:"failed_records,omitempty"`
	Context          map[string]string `json:"context,omitempty"`
	Completed        bool              `json:"completed"`
	CompletedAt      *time.Time        `json:"completed_at,omitempty"`
	LastError        string            `json:"last_error,omitempty"`
}

// NewCheckpoint creates an active checkpoint. The identity is derived from
// the job kind and start time so reruns of the same job get distinct IDs.
func NewCheckpoint(jobKind string, totalRecords int, jobContext map[string]string) *Checkpoint {
	start := time.Now().UTC()
	return &Checkpoint{
		ID:           fmt.Sprintf("%s-%d", jobKind, start.UnixMilli()),
		JobKind:      jobKind,
		StartTime:    start,
		TotalRecords: totalRecords,
		Context:      jobContext,
	}
}

// Progress returns the completion percentage clamped to [0, 100].
func (c *Checkpoint) Progress() float64 {
	if c.TotalRecords <= 0 {
		if c.Completed {
			return 100
		}
		return 0
	}
	pct := float64(c.ProcessedRecords) / float64(c.TotalRecords) * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// Elapsed returns the time since the job started.
func (c *Checkpoint) Elapsed() time.Duration {
	return time.Since(c.StartTime)
}

// IsStale reports whether the job has been incomplete longer than maxAge.
// Completed checkpoints are never stale.
func (c *Checkpoint) IsStale(maxAge time.Duration) bool {
	if c.Completed {
		return false
	}
	if maxAge <= 0 {
		maxAge = DefaultCheckpointMaxAge
	}
	return c.Elapsed() > maxAge
}

// HasBatch reports whether a batch identifier was already accounted for.
func (c *Checkpoint) HasBatch(batchID string) bool {
	for _, b := range c.ProcessedBatches {
		if b == batchID {
			return true
		}
	}
	return false
}

// Validate checks structural requirements and the processed/total invariant.
func (c *Checkpoint) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("checkpoint ID is required")
	}
	if strings.TrimSpace(c.JobKind) == "" {
		return fmt.Errorf("checkpoint %s: job kind is required", c.ID)
	}
	if c.TotalRecords < 0 {
		return fmt.Errorf("checkpoint %s: total records cannot be negative", c.ID)
	}
	if c.ProcessedRecords < 0 || c.ProcessedRecords > c.TotalRecords {
		return fmt.Errorf("checkpoint %s: processed records %d out of range [0, %d]",
			c.ID, c.ProcessedRecords, c.TotalRecords)
	}
	return nil
}

// Clone returns a deep copy of the checkpoint.
func (c *Checkpoint) Clone() *Checkpoint {
	cp := *c
	cp.ProcessedBatches = append([]string(nil), c.ProcessedBatches...)
	cp.FailedRecords = append([]string(nil), c.FailedRecords...)
	if c.Context != nil {
		cp.Context = make(map[string]string, len(c.Context))
		for k, v := range c.Context {
			cp.Context[k] = v
		}
	}
	if c.CompletedAt != nil {
		t := *c.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
