// Package pool runs dispatched jobs on a fixed number of goroutines.
package pool

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/Harsh-BH/codr/internal/domain"
	"github.com/Harsh-BH/codr/internal/metrics"
	"github.com/Harsh-BH/codr/internal/usecase"
)

// WorkerPool manages a fixed-size pool of goroutines that process jobs.
// Each worker runs one job at a time.
type WorkerPool struct {
	size      int
	jobs      <-chan *domain.DispatchMessage
	executeUC *usecase.ExecuteJobUsecase
	logger    *zap.Logger
	wg        sync.WaitGroup
}

// NewWorkerPool creates a new fixed-size worker pool.
func NewWorkerPool(size int, jobs <-chan *domain.DispatchMessage, executeUC *usecase.ExecuteJobUsecase, logger *zap.Logger) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{
		size:      size,
		jobs:      jobs,
		executeUC: executeUC,
		logger:    logger,
	}
}

// Start launches all worker goroutines. Call Stop to wait for them to finish.
func (p *WorkerPool) Start(ctx context.Context) {
	p.logger.Info("Starting worker pool", zap.Int("pool_size", p.size))

	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Stop waits for all workers to finish their current jobs and exit.
func (p *WorkerPool) Stop() {
	p.wg.Wait()
	p.logger.Info("Worker pool stopped")
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	p.logger.Debug("Worker started", zap.Int("worker_id", id))

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("Worker shutting down", zap.Int("worker_id", id))
			return
		case msg, ok := <-p.jobs:
			if !ok {
				p.logger.Debug("Job channel closed", zap.Int("worker_id", id))
				return
			}
			p.handle(ctx, id, msg)
		}
	}
}

// handle runs one job and settles its delivery. A job that reached a
// terminal state, or was skipped as a duplicate, is acked; anything else is
// nacked without requeue so it lands in the dead letter queue.
func (p *WorkerPool) handle(ctx context.Context, id int, msg *domain.DispatchMessage) {
	log := p.logger.With(zap.Int("worker_id", id), zap.String("job_id", msg.JobID.String()))

	metrics.WorkersActive.Inc()
	defer metrics.WorkersActive.Dec()

	defer func() {
		if r := recover(); r != nil {
			log.Error("Worker panic recovered", zap.Any("panic", r))
			p.nack(log, msg)
		}
	}()

	log.Info("Worker processing job")

	if err := p.executeUC.Execute(ctx, msg.JobID); err != nil {
		log.Error("Job execution failed", zap.Error(err))
		p.nack(log, msg)
		return
	}

	if err := msg.Ack(); err != nil {
		log.Error("Failed to ACK message after execution", zap.Error(err))
	}
}

func (p *WorkerPool) nack(log *zap.Logger, msg *domain.DispatchMessage) {
	// Requeuing a deterministic failure would loop forever.
	if err := msg.Nack(false); err != nil {
		log.Error("Failed to NACK message", zap.Error(err))
	}
}
