package domain

import "errors"

var (
	// ErrValidationRejected is returned when submitted code fails the security gate.
	ErrValidationRejected = errors.New("code rejected by security validator")

	// ErrUnknownLanguage is returned when no validator or executor exists for a language.
	ErrUnknownLanguage = errors.New("invalid or unsupported language")

	// ErrJobNotFound is returned when a job id does not exist or has expired.
	ErrJobNotFound = errors.New("job not found")

	// ErrStoreUnavailable is returned when the backing job store cannot be reached.
	ErrStoreUnavailable = errors.New("job store unavailable")

	// ErrInvalidTransition is returned when a status change would break the job state machine.
	ErrInvalidTransition = errors.New("invalid job status transition")

	// ErrEmptySourceCode is returned when source code is empty.
	ErrEmptySourceCode = errors.New("source code cannot be empty")

	// ErrPayloadTooLarge is returned when the source code exceeds the size limit.
	ErrPayloadTooLarge = errors.New("source code payload exceeds maximum size")

	// ErrPublishFailed is returned when the message broker publish fails.
	ErrPublishFailed = errors.New("failed to publish job to message queue")

	// ErrExecutionFailed is the message surfaced to untrusted callers outside development.
	ErrExecutionFailed = errors.New("Execution failed")
)
