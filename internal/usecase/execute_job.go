package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harsh-BH/codr/internal/domain"
	"github.com/Harsh-BH/codr/internal/events"
	"github.com/Harsh-BH/codr/internal/executor"
	"github.com/Harsh-BH/codr/internal/input"
	"github.com/Harsh-BH/codr/internal/metrics"
	"github.com/Harsh-BH/codr/internal/repository"
	"github.com/Harsh-BH/codr/internal/session"
)

// ExecuteConfig holds the settings an orchestrator is built with.
type ExecuteConfig struct {
	// Development exposes raw failure messages to callers. Otherwise they
	// are replaced with a generic message.
	Development bool
	Session     session.Config
}

// ExecuteJobUsecase drives one job from queued to a terminal state.
type ExecuteJobUsecase struct {
	store     repository.JobStore
	archive   repository.JobArchive
	registry  *executor.Registry
	publisher events.Publisher
	input     input.Source
	cfg       ExecuteConfig
	logger    *zap.Logger
}

// NewExecuteJobUsecase creates a new ExecuteJobUsecase. archive and source
// may be nil.
func NewExecuteJobUsecase(
	store repository.JobStore,
	archive repository.JobArchive,
	registry *executor.Registry,
	publisher events.Publisher,
	source input.Source,
	cfg ExecuteConfig,
	logger *zap.Logger,
) *ExecuteJobUsecase {
	return &ExecuteJobUsecase{
		store:     store,
		archive:   archive,
		registry:  registry,
		publisher: publisher,
		input:     source,
		cfg:       cfg,
		logger:    logger,
	}
}

// Execute runs the job: load → processing → resolve → stream → execute →
// teardown → completed. Failures while running are recorded as a failed
// job and an error event. The returned error is nil when the job reached a
// terminal state or was already claimed by another delivery.
func (uc *ExecuteJobUsecase) Execute(ctx context.Context, jobID uuid.UUID) error {
	log := uc.logger.With(zap.String("job_id", jobID.String()))

	// Step 1: Load
	job, err := uc.store.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			log.Warn("Dispatched job does not exist")
			uc.emitError(ctx, log, jobID, "Job not found")
			return err
		}
		log.Error("Failed to load job", zap.Error(err))
		uc.emitError(ctx, log, jobID, uc.sanitize(err.Error()))
		return err
	}

	// Step 2: Claim
	if err := uc.store.MarkProcessing(ctx, jobID); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			log.Info("Job already claimed, skipping", zap.String("status", string(job.Status)))
			return nil
		}
		log.Error("Failed to mark job processing", zap.Error(err))
		uc.emitError(ctx, log, jobID, uc.sanitize(err.Error()))
		return err
	}

	// Steps 3-6
	lang, result, err := uc.run(ctx, log, job)

	// A claimed job is always recorded, even when ctx was cancelled while
	// it ran.
	recordCtx := context.WithoutCancel(ctx)
	if err != nil {
		return uc.fail(recordCtx, log, job, lang, err)
	}

	// Step 7: Record and announce
	if err := uc.store.MarkCompleted(recordCtx, jobID, result); err != nil {
		log.Error("Failed to store result", zap.Error(err))
		return uc.fail(recordCtx, log, job, lang, fmt.Errorf("store result: %w", err))
	}
	metrics.ExecutionsTotal.WithLabelValues(string(lang), string(domain.StatusCompleted)).Inc()

	if err := uc.publisher.PublishComplete(recordCtx, jobID, result.ExitCode, result.ExecutionTime); err != nil {
		log.Warn("Failed to publish completion", zap.Error(err))
	}

	log.Info("Job executed",
		zap.String("language", string(lang)),
		zap.Bool("success", result.Success),
		zap.Int("exit_code", result.ExitCode),
		zap.Float64("execution_time", result.ExecutionTime),
	)

	uc.archiveJob(recordCtx, log, jobID)
	return nil
}

// run resolves the executor and executes the job inside a streaming
// session. The session is closed before run returns.
func (uc *ExecuteJobUsecase) run(ctx context.Context, log *zap.Logger, job *domain.Job) (lang domain.Language, result *domain.ExecutionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Execution panic recovered", zap.Any("panic", r))
			result, err = nil, fmt.Errorf("execution panic: %v", r)
		}
	}()

	exe, lang, err := uc.registry.Resolve(job.Language)
	if err != nil {
		return "", nil, fmt.Errorf("resolve executor for %q: %w", job.Language, err)
	}

	sess, err := session.Open(ctx, job.ID, uc.publisher, uc.input, uc.cfg.Session, uc.logger)
	if err != nil {
		return lang, nil, fmt.Errorf("open session: %w", err)
	}
	defer sess.Close()

	req := &domain.ExecutionRequest{
		JobID:    job.ID,
		Language: lang,
		Code:     job.Code,
		Filename: job.Filename,
	}

	start := time.Now()
	result, err = exe.Execute(ctx, req, sess.OnOutput, sess.Input())
	metrics.ExecutionDuration.WithLabelValues(string(lang)).Observe(time.Since(start).Seconds())
	if err != nil {
		return lang, nil, fmt.Errorf("execute: %w", err)
	}
	if result == nil {
		return lang, nil, errors.New("execute: executor returned no result")
	}
	return lang, result, nil
}

// fail records the failure result, then emits the error event. The event
// follows the store write whether or not the write succeeded.
func (uc *ExecuteJobUsecase) fail(ctx context.Context, log *zap.Logger, job *domain.Job, lang domain.Language, cause error) error {
	log.Error("Job execution failed", zap.Error(cause))

	label := string(lang)
	if label == "" {
		label = "unknown"
	}
	metrics.ExecutionsTotal.WithLabelValues(label, string(domain.StatusFailed)).Inc()

	message := uc.sanitize(cause.Error())
	if err := uc.store.MarkFailed(ctx, job.ID, message, domain.FailureResult(message)); err != nil {
		log.Error("Failed to mark job failed", zap.Error(err))
		uc.emitError(ctx, log, job.ID, message)
		return fmt.Errorf("mark failed: %w", err)
	}

	uc.emitError(ctx, log, job.ID, message)
	uc.archiveJob(ctx, log, job.ID)
	return nil
}

func (uc *ExecuteJobUsecase) emitError(ctx context.Context, log *zap.Logger, jobID uuid.UUID, message string) {
	if err := uc.publisher.PublishError(ctx, jobID, message); err != nil {
		log.Warn("Failed to publish error event", zap.Error(err))
	}
}

func (uc *ExecuteJobUsecase) sanitize(message string) string {
	if uc.cfg.Development {
		return message
	}
	return domain.ErrExecutionFailed.Error()
}

// archiveJob copies the terminal snapshot to the archive. Failures are
// logged only; the live store remains authoritative.
func (uc *ExecuteJobUsecase) archiveJob(ctx context.Context, log *zap.Logger, jobID uuid.UUID) {
	if uc.archive == nil {
		return
	}
	job, err := uc.store.Get(ctx, jobID)
	if err != nil {
		log.Warn("Failed to load job for archiving", zap.Error(err))
		return
	}
	if err := uc.archive.Save(ctx, job); err != nil {
		log.Warn("Failed to archive job", zap.Error(err))
	}
}
