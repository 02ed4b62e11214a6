package models

import (
	"errors"
	"fmt"
)

// Error codes for structured error handling.
const (
	ErrCodeLocalIO     = "LOCAL_IO"
	ErrCodeUnreachable = "REMOTE_UNREACHABLE"
	ErrCodeRejected    = "REMOTE_REJECTED"
	ErrCodeStaleJob    = "STALE_JOB"
	ErrCodeState       = "STATE_ERROR"
	ErrCodeConfig      = "CONFIG_ERROR"
)

// Sentinel errors
var (
	ErrRecordNotFound     = errors.New("record not found")
	ErrEntryNotFound      = errors.New("queue entry not found")
	ErrCheckpointNotFound = errors.New("checkpoint not found")
	ErrDrainInProgress    = errors.New("drain already in progress")
	ErrJobCancelled       = errors.New("bulk job cancelled")
	ErrRemoteUnreachable  = errors.New("remote store unreachable")
	ErrRemoteRejected     = errors.New("remote store rejected write")
)

// RemoteError carries the remote store's response detail alongside its
// transient/permanent classification.
type RemoteError struct {
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *RemoteError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("remote error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("remote error (%s): %s", e.Code, e.Message)
}

func (e *RemoteError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	switch e.Code {
	case ErrCodeRejected:
		return ErrRemoteRejected
	default:
		return ErrRemoteUnreachable
	}
}

// SyncError describes a failure on the sync path with enough context to
// surface through status queries without re-deriving it.
type SyncError struct {
	Code      string
	Op        string
	ProjectID string
	DocID     string
	Err       error
}

func (e *SyncError) Error() string {
	if e.DocID != "" {
		return fmt.Sprintf("sync %s [%s]: project %s: doc %s: %v",
			e.Op, e.Code, e.ProjectID, e.DocID, e.Err)
	}
	return fmt.Sprintf("sync %s [%s]: project %s: %v", e.Op, e.Code, e.ProjectID, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// LocalIOError marks a local store failure that is fatal to the calling
// write and must be surfaced, never retried silently.
type LocalIOError struct {
	Op  string
	Key string
	Err error
}

func (e *LocalIOError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("local store %s %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("local store %s: %v", e.Op, e.Err)
}

func (e *LocalIOError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether an error should be retried later. Timed-out
// or unreachable attempts are transient; it is unknown whether the remote
// applied them, which is why remote writes are merge-upserts.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRemoteUnreachable)
}

// IsPermanent reports whether the remote definitively rejected the write.
// Permanent failures are flagged non-retryable and surfaced for manual
// remediation.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrRemoteRejected)
}
