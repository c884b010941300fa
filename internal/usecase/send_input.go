package usecase

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harsh-BH/codr/internal/domain"
	"github.com/Harsh-BH/codr/internal/input"
	"github.com/Harsh-BH/codr/internal/repository"
)

// SendInputUsecase delivers client input to a running job.
type SendInputUsecase struct {
	store  repository.JobStore
	sink   input.Sink
	logger *zap.Logger
}

// NewSendInputUsecase creates a new SendInputUsecase.
func NewSendInputUsecase(store repository.JobStore, sink input.Sink, logger *zap.Logger) *SendInputUsecase {
	return &SendInputUsecase{
		store:  store,
		sink:   sink,
		logger: logger,
	}
}

// Execute forwards data to the job's process. Input for a job that is not
// processing is ignored and reported as not delivered.
func (uc *SendInputUsecase) Execute(ctx context.Context, id uuid.UUID, data []byte) (bool, error) {
	status, err := uc.store.GetStatus(ctx, id)
	if err != nil {
		return false, err
	}
	if status != domain.StatusProcessing {
		uc.logger.Debug("Input ignored, job not processing",
			zap.String("job_id", id.String()),
			zap.String("status", string(status)),
		)
		return false, nil
	}
	if len(data) == 0 {
		return false, nil
	}

	delivered, err := uc.sink.Send(ctx, id, data)
	if err != nil {
		return false, fmt.Errorf("send input: %w", err)
	}
	return delivered, nil
}
