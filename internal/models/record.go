package models

import (
	"fmt"
	"strings"
	"time"
)

// RecordKind identifies the partition a record belongs to.
type RecordKind string

const (
	KindReading   RecordKind = "reading"
	KindRollup    RecordKind = "rollup"
	KindReference RecordKind = "reference"
)

// RecordStatus marks whether the operator finished entering a record.
type RecordStatus string

const (
	StatusComplete   RecordStatus = "complete"
	StatusIncomplete RecordStatus = "incomplete"
)

// Record is a locally persisted domain entity destined for the remote
// document store. Domain fields live in the open Payload map; typed views
// (Reading, DailyRollup) decode it at the boundary where logic reads fields.
type Record struct {
	ID        string         `json:"id"`
	ProjectID string         `json:"project_id"`
	LogID     string         `json:"log_id,omitempty"`
	Kind      RecordKind     `json:"kind"`
	Payload   map[string]any `json:"payload"`
	Status    RecordStatus   `json:"status"`
	Author    string         `json:"author,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`

	// Sync bookkeeping. Synced stays false from local creation until the
	// sync engine confirms a remote write; only the engine flips it.
	Synced    bool       `json:"synced"`
	SyncError string     `json:"sync_error,omitempty"`
	SyncedAt  *time.Time `json:"synced_at,omitempty"`
}

// NewRecord creates an unsynced record with timestamps set.
func NewRecord(id, projectID string, kind RecordKind, payload map[string]any) *Record {
	now := time.Now().UTC()
	if payload == nil {
		payload = make(map[string]any)
	}
	return &Record{
		ID:        id,
		ProjectID: projectID,
		Kind:      kind,
		Payload:   payload,
		Status:    StatusIncomplete,
		CreatedAt: now,
		UpdatedAt: now,
		Synced:    false,
	}
}

// MarkSynced records a confirmed remote write.
func (r *Record) MarkSynced(at time.Time) {
	r.Synced = true
	r.SyncError = ""
	t := at.UTC()
	r.SyncedAt = &t
}

// MarkSyncFailed records the most recent sync failure without touching
// domain fields.
func (r *Record) MarkSyncFailed(err error) {
	r.Synced = false
	if err != nil {
		r.SyncError = err.Error()
	}
}

// Touch bumps UpdatedAt and resets the synced flag; every domain edit
// makes the record unsynced again until confirmed.
func (r *Record) Touch() {
	r.UpdatedAt = time.Now().UTC()
	r.Synced = false
	r.SyncedAt = nil
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (r *Record) Clone() *Record {
	cp := *r
	cp.Payload = clonePayload(r.Payload)
	if r.SyncedAt != nil {
		t := *r.SyncedAt
		cp.SyncedAt = &t
	}
	return &cp
}

// Validate checks structural requirements before persistence.
func (r *Record) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("record ID is required")
	}
	if strings.TrimSpace(r.ProjectID) == "" {
		return fmt.Errorf("record %s: project ID is required", r.ID)
	}
	switch r.Kind {
	case KindReading, KindRollup, KindReference:
	default:
		return fmt.Errorf("record %s: unknown kind %q", r.ID, r.Kind)
	}
	switch r.Status {
	case StatusComplete, StatusIncomplete:
	default:
		return fmt.Errorf("record %s: unknown status %q", r.ID, r.Status)
	}
	return nil
}

// Collection returns the remote collection name for this record's kind.
func (r *Record) Collection() string {
	switch r.Kind {
	case KindRollup:
		return "rollups"
	case KindReference:
		return "reference"
	default:
		return "entries"
	}
}

func clonePayload(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		if m, ok := v.(map[string]any); ok {
			out[k] = clonePayload(m)
			continue
		}
		out[k] = v
	}
	return out
}
