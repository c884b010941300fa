package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of a code execution job.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// IsTerminal returns true if the status represents a final state.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsValid reports whether s is one of the known statuses.
func (s JobStatus) IsValid() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// CanTransitionTo reports whether a job in status s may move to next.
// The only legal sequence is queued -> processing -> completed|failed.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case StatusQueued:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	}
	return false
}

// Job represents a code execution job throughout its lifecycle.
type Job struct {
	ID          uuid.UUID        `json:"job_id"`
	Code        string           `json:"code"`
	Language    string           `json:"language"`
	Filename    string           `json:"filename"`
	Status      JobStatus        `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	Result      *ExecutionResult `json:"result,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// SubmitRequest represents an incoming code submission from the API.
type SubmitRequest struct {
	Code     string `json:"code" binding:"required"`
	Language string `json:"language" binding:"required"`
	Filename string `json:"filename"`
}

// SubmitResponse is returned after a successful submission.
type SubmitResponse struct {
	JobID  uuid.UUID `json:"job_id"`
	Status JobStatus `json:"status"`
}

// StatusResponse is returned by the status endpoint.
type StatusResponse struct {
	JobID  uuid.UUID `json:"job_id"`
	Status JobStatus `json:"status"`
}

// DispatchMessage carries a job id from the queue to a worker, with
// acknowledgement callbacks bound to the originating delivery.
type DispatchMessage struct {
	JobID uuid.UUID
	Ack   func() error
	Nack  func(requeue bool) error
}
