package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusNew        JobStatus = "new"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusReady      JobStatus = "ready"
	JobStatusRetry      JobStatus = "retry"
	JobStatusFailed     JobStatus = "failed"
)

// Claimable reports whether the dispatcher may move a job in this state to in_progress.
func (s JobStatus) Claimable() bool {
	return s == JobStatusNew || s == JobStatusRetry
}

// Terminal reports whether no further transition is possible.
func (s JobStatus) Terminal() bool {
	return s == JobStatusReady || s == JobStatusFailed
}

// CanTransition validates a status change against the job state machine.
func (s JobStatus) CanTransition(to JobStatus) bool {
	switch s {
	case JobStatusNew, JobStatusRetry:
		return to == JobStatusInProgress
	case JobStatusInProgress:
		return to == JobStatusReady || to == JobStatusRetry || to == JobStatusFailed
	default:
		return false
	}
}

// Job is one requested theme transformation of a source image.
type Job struct {
	ID            uuid.UUID
	BatchID       uuid.UUID
	SourceImageID uuid.UUID
	ThemeID       uuid.UUID
	ResultImageID uuid.UUID
	UserID        string
	UserText      string
	Status        JobStatus
	Engine        string
	Attempts      int
	LastError     string
	CreatedAt     time.Time
	ClaimedAt     *time.Time
	FinishedAt    *time.Time
}

// JobDetail is a claimed job joined with its theme and source image. The
// Found flags are false when the referenced row no longer exists.
type JobDetail struct {
	ID            uuid.UUID
	BatchID       uuid.UUID
	ResultImageID uuid.UUID
	UserID        string
	UserText      string
	Attempts      int
	// ClaimedAt is stamped by the dispatcher just before the claim query,
	// so it never trails the row's claimed_at.
	ClaimedAt time.Time

	ThemeID       uuid.UUID
	ThemeFound    bool
	ThemeName     string
	ThemeGuidance string
	ThemeType     ThemeType
	ThemeMetadata []byte

	SourceImageID uuid.UUID
	SourceFound   bool
	SourceData    []byte
	SourceMIME    string
}
