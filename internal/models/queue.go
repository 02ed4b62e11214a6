package models

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// Operation is the kind of remote write a queue entry represents.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// QueueEntry is one pending remote-write intent. The payload is a snapshot
// captured at enqueue time; later edits to the same record enqueue a new
// entry rather than mutating an in-flight one.
type QueueEntry struct {
	ID         string         `json:"id"`
	Op         Operation      `json:"op"`
	ProjectID  string         `json:"project_id"`
	LogID      string         `json:"log_id,omitempty"`
	Collection string         `json:"collection"`
	DocID      string         `json:"doc_id"`
	Payload    map[string]any `json:"payload,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`

	RetryCount  int        `json:"retry_count"`
	LastError   string     `json:"last_error,omitempty"`
	LastAttempt *time.Time `json:"last_attempt,omitempty"`

	// Rejected marks a permanent remote failure. The entry is kept for
	// operator inspection but never retried automatically.
	Rejected bool `json:"rejected"`
}

// Validate checks structural requirements before the entry is made durable.
func (e *QueueEntry) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("queue entry ID is required")
	}
	switch e.Op {
	case OpCreate, OpUpdate, OpDelete:
	default:
		return fmt.Errorf("queue entry %s: unknown operation %q", e.ID, e.Op)
	}
	if strings.TrimSpace(e.ProjectID) == "" {
		return fmt.Errorf("queue entry %s: project ID is required", e.ID)
	}
	if strings.TrimSpace(e.Collection) == "" {
		return fmt.Errorf("queue entry %s: collection is required", e.ID)
	}
	if strings.TrimSpace(e.DocID) == "" {
		return fmt.Errorf("queue entry %s: document ID is required", e.ID)
	}
	if e.Op != OpDelete && e.Payload == nil {
		return fmt.Errorf("queue entry %s: payload snapshot is required for %s", e.ID, e.Op)
	}
	return nil
}

// RemotePath builds the hierarchical document path for this entry,
// projects/{projectID}/logs/{logID}/{collection}/{docID}. Entries without
// a log scope address the collection directly under the project.
func (e *QueueEntry) RemotePath() string {
	if e.LogID == "" {
		return path.Join("projects", e.ProjectID, e.Collection, e.DocID)
	}
	return path.Join("projects", e.ProjectID, "logs", e.LogID, e.Collection, e.DocID)
}

// NextAttemptAt returns the earliest time this entry may be retried,
// exponential in the retry count and keyed off the last attempt. Entries
// that have never been attempted are ready immediately.
func (e *QueueEntry) NextAttemptAt(base, cap time.Duration) time.Time {
	if e.LastAttempt == nil || e.RetryCount == 0 {
		return e.CreatedAt
	}
	delay := base
	for i := 1; i < e.RetryCount; i++ {
		delay *= 2
		if delay >= cap {
			delay = cap
			break
		}
	}
	if delay > cap {
		delay = cap
	}
	return e.LastAttempt.Add(delay)
}

// Ready reports whether the entry is eligible for an attempt at now.
// Rejected entries are never ready.
func (e *QueueEntry) Ready(now time.Time, base, cap time.Duration) bool {
	if e.Rejected {
		return false
	}
	return !now.Before(e.NextAttemptAt(base, cap))
}

// Clone returns a deep copy of the entry.
func (e *QueueEntry) Clone() *QueueEntry {
	cp := *e
	cp.Payload = clonePayload(e.Payload)
	if e.LastAttempt != nil {
		t := *e.LastAttempt
		cp.LastAttempt = &t
	}
	return &cp
}
