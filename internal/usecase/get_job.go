package usecase

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harsh-BH/codr/internal/domain"
	"github.com/Harsh-BH/codr/internal/repository"
)

// GetJobUsecase handles fetching job status and results.
type GetJobUsecase struct {
	store   repository.JobStore
	archive repository.JobArchive
	logger  *zap.Logger
}

// NewGetJobUsecase creates a new GetJobUsecase. archive may be nil.
func NewGetJobUsecase(store repository.JobStore, archive repository.JobArchive, logger *zap.Logger) *GetJobUsecase {
	return &GetJobUsecase{
		store:   store,
		archive: archive,
		logger:  logger,
	}
}

// Execute retrieves a job by its ID.
func (uc *GetJobUsecase) Execute(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	job, err := uc.store.Get(ctx, id)
	if err != nil {
		uc.logger.Debug("Job lookup failed", zap.String("job_id", id.String()), zap.Error(err))
		return nil, err
	}
	return job, nil
}

// Status returns only the status of a job.
func (uc *GetJobUsecase) Status(ctx context.Context, id uuid.UUID) (domain.JobStatus, error) {
	return uc.store.GetStatus(ctx, id)
}

// HasArchive reports whether archived history can be queried.
func (uc *GetJobUsecase) HasArchive() bool {
	return uc.archive != nil
}

// History returns a job from the archive, which outlives the store's
// retention window.
func (uc *GetJobUsecase) History(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	if uc.archive == nil {
		return nil, domain.ErrJobNotFound
	}
	job, err := uc.archive.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, domain.ErrJobNotFound) {
			uc.logger.Error("Archive lookup failed", zap.String("job_id", id.String()), zap.Error(err))
		}
		return nil, err
	}
	return job, nil
}
