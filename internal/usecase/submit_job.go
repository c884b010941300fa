package usecase

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Harsh-BH/codr/internal/dispatch"
	"github.com/Harsh-BH/codr/internal/domain"
	"github.com/Harsh-BH/codr/internal/metrics"
	"github.com/Harsh-BH/codr/internal/repository"
)

// DefaultMaxSourceBytes bounds a submission when no limit is configured.
const DefaultMaxSourceBytes = 1 << 20 // 1 MB

// CodeValidator is the security gate in front of job creation.
type CodeValidator interface {
	Validate(ctx context.Context, code, language string) domain.Verdict
}

// SubmitJobUsecase handles the business logic for submitting code execution jobs.
type SubmitJobUsecase struct {
	validator      CodeValidator
	store          repository.JobStore
	publisher      dispatch.Publisher
	maxSourceBytes int
	logger         *zap.Logger
}

// NewSubmitJobUsecase creates a new SubmitJobUsecase.
func NewSubmitJobUsecase(v CodeValidator, store repository.JobStore, pub dispatch.Publisher, maxSourceBytes int, logger *zap.Logger) *SubmitJobUsecase {
	if maxSourceBytes <= 0 {
		maxSourceBytes = DefaultMaxSourceBytes
	}
	return &SubmitJobUsecase{
		validator:      v,
		store:          store,
		publisher:      pub,
		maxSourceBytes: maxSourceBytes,
		logger:         logger,
	}
}

// Execute validates the submission, creates a job, dispatches it, and
// returns the job ID. A rejected submission never creates a job.
func (uc *SubmitJobUsecase) Execute(ctx context.Context, req *domain.SubmitRequest) (*domain.SubmitResponse, error) {
	lang, err := domain.ParseLanguage(req.Language)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(req.Code) == "" {
		return nil, domain.ErrEmptySourceCode
	}
	if len(req.Code) > uc.maxSourceBytes {
		return nil, domain.ErrPayloadTooLarge
	}

	verdict := uc.validator.Validate(ctx, req.Code, string(lang))
	if !verdict.Accepted {
		uc.logger.Info("Submission rejected",
			zap.String("language", string(lang)),
			zap.String("reason", verdict.Reason),
		)
		return nil, &domain.ValidationError{Verdict: verdict}
	}

	jobID, err := uc.store.Create(ctx, req.Code, string(lang), req.Filename)
	if err != nil {
		uc.logger.Error("Failed to create job", zap.Error(err))
		return nil, fmt.Errorf("create job: %w", err)
	}
	metrics.SubmissionsTotal.WithLabelValues(string(lang)).Inc()

	if err := uc.publisher.Publish(ctx, jobID); err != nil {
		uc.logger.Error("Failed to publish job to queue", zap.Error(err), zap.String("job_id", jobID.String()))
		// The job stays queued and expires with the retention window.
		return nil, fmt.Errorf("%w: %w", domain.ErrPublishFailed, err)
	}

	uc.logger.Info("Job submitted successfully",
		zap.String("job_id", jobID.String()),
		zap.String("language", string(lang)),
	)

	return &domain.SubmitResponse{
		JobID:  jobID,
		Status: domain.StatusQueued,
	}, nil
}
