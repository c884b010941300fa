package domain

import "github.com/google/uuid"

// EventType identifies an execution event on the wire.
type EventType string

const (
	EventOutput   EventType = "output"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Event is a single execution event delivered to subscribers.
type Event struct {
	Type          EventType `json:"type"`
	JobID         uuid.UUID `json:"job_id"`
	Stream        Stream    `json:"stream,omitempty"`
	Data          string    `json:"data,omitempty"`
	ExitCode      *int      `json:"exit_code,omitempty"`
	ExecutionTime *float64  `json:"execution_time,omitempty"`
	Message       string    `json:"message,omitempty"`
}

// IsTerminal reports whether no further events follow this one.
func (e Event) IsTerminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}

// OutputEvent builds an output event.
func OutputEvent(jobID uuid.UUID, stream Stream, text string) Event {
	return Event{Type: EventOutput, JobID: jobID, Stream: stream, Data: text}
}

// CompleteEvent builds a completion event.
func CompleteEvent(jobID uuid.UUID, exitCode int, executionTime float64) Event {
	return Event{Type: EventComplete, JobID: jobID, ExitCode: &exitCode, ExecutionTime: &executionTime}
}

// ErrorEvent builds an error event.
func ErrorEvent(jobID uuid.UUID, message string) Event {
	return Event{Type: EventError, JobID: jobID, Message: message}
}
