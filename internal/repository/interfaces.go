package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/Harsh-BH/codr/internal/domain"
)

// JobStore is the authoritative record of every job within its retention
// window. Implementations must be safe for concurrent use and must apply
// each transition atomically: status never regresses and a terminal record
// is never rewritten.
type JobStore interface {
	// Create stores a new queued job and returns its freshly generated id.
	Create(ctx context.Context, code, language, filename string) (uuid.UUID, error)

	// Get returns the full job snapshot, or domain.ErrJobNotFound.
	Get(ctx context.Context, id uuid.UUID) (*domain.Job, error)

	// GetStatus returns only the status of a job.
	GetStatus(ctx context.Context, id uuid.UUID) (domain.JobStatus, error)

	// Exists reports whether the job is still retained.
	Exists(ctx context.Context, id uuid.UUID) (bool, error)

	// MarkProcessing moves a queued job to processing.
	MarkProcessing(ctx context.Context, id uuid.UUID) error

	// MarkCompleted records the result and moves a processing job to completed.
	MarkCompleted(ctx context.Context, id uuid.UUID, result *domain.ExecutionResult) error

	// MarkFailed records the error and result and moves a processing job to failed.
	MarkFailed(ctx context.Context, id uuid.UUID, message string, result *domain.ExecutionResult) error
}

// JobArchive keeps a durable copy of finished jobs beyond the store's retention.
type JobArchive interface {
	// Save archives a terminal job snapshot. Saving the same job twice is a no-op.
	Save(ctx context.Context, job *domain.Job) error

	// Get returns an archived job, or domain.ErrJobNotFound.
	Get(ctx context.Context, id uuid.UUID) (*domain.Job, error)
}
