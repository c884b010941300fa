package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Harsh-BH/codr/internal/config"
	"github.com/Harsh-BH/codr/internal/dispatch"
	"github.com/Harsh-BH/codr/internal/domain"
	"github.com/Harsh-BH/codr/internal/events"
	"github.com/Harsh-BH/codr/internal/executor"
	"github.com/Harsh-BH/codr/internal/input"
	"github.com/Harsh-BH/codr/internal/logging"
	"github.com/Harsh-BH/codr/internal/pool"
	"github.com/Harsh-BH/codr/internal/repository"
	"github.com/Harsh-BH/codr/internal/repository/postgres"
	redisrepo "github.com/Harsh-BH/codr/internal/repository/redis"
	"github.com/Harsh-BH/codr/internal/session"
	"github.com/Harsh-BH/codr/internal/usecase"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := logging.New(cfg.IsDevelopment())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting codr execution worker",
		zap.String("env", cfg.AppEnv),
		zap.String("sandbox_mode", cfg.Sandbox.Mode),
	)

	// consumeCtx stops intake; jobCtx aborts running jobs and is only
	// cancelled when draining takes too long.
	consumeCtx, stopConsuming := context.WithCancel(context.Background())
	defer stopConsuming()
	jobCtx, abortJobs := context.WithCancel(context.Background())
	defer abortJobs()

	// Connect to Redis
	redisOpts, err := goredis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Fatal("Invalid Redis URL", zap.Error(err))
	}
	redisClient := goredis.NewClient(redisOpts)
	if err := redisClient.Ping(consumeCtx).Err(); err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Connected to Redis")

	// Connect to PostgreSQL (optional archive)
	var archive repository.JobArchive
	if cfg.Database.URL != "" {
		dbPool, err := pgxpool.New(consumeCtx, cfg.Database.URL)
		if err != nil {
			logger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
		}
		defer dbPool.Close()
		if err := dbPool.Ping(consumeCtx); err != nil {
			logger.Fatal("Failed to ping PostgreSQL", zap.Error(err))
		}
		if err := postgres.Migrate(consumeCtx, dbPool); err != nil {
			logger.Fatal("Failed to migrate job archive", zap.Error(err))
		}
		archive = postgres.NewJobArchive(dbPool)
		logger.Info("Connected to PostgreSQL")
	}

	// Initialize repositories and transports
	store := redisrepo.NewJobStore(redisClient, cfg.Jobs.Retention)
	bus := events.NewRedisBus(redisClient, events.DefaultBuffer, logger)
	inputs := input.NewRedisChannel(redisClient, cfg.Session.InputBuffer, logger)

	// Initialize sandbox executor
	timeLimit := time.Duration(cfg.Sandbox.TimeLimitMs) * time.Millisecond
	sandboxExec := executor.NewSandboxExecutor(executor.SandboxConfig{
		Mode:          executor.Mode(cfg.Sandbox.Mode),
		NsjailPath:    cfg.Sandbox.NsjailPath,
		ConfigDir:     cfg.Sandbox.ConfigDir,
		TimeLimit:     timeLimit,
		MemoryLimitKB: cfg.Sandbox.MemoryLimitKB,
	}, logger)
	if cfg.Sandbox.Mode == string(executor.ModeDirect) {
		logger.Warn("Sandbox disabled: programs run as plain child processes")
	}
	registry := executor.NewSandboxRegistry(sandboxExec)

	// Initialize use case
	executeUC := usecase.NewExecuteJobUsecase(store, archive, registry, bus, inputs, usecase.ExecuteConfig{
		Development: cfg.IsDevelopment(),
		Session: session.Config{
			OutputBuffer: cfg.Session.OutputBuffer,
			InputBuffer:  cfg.Session.InputBuffer,
		},
	}, logger)

	// Unbuffered: prefetch already bounds what the broker hands over.
	jobsChan := make(chan *domain.DispatchMessage)

	// Initialize AMQP consumer
	consumer, err := dispatch.NewConsumer(cfg.RabbitMQ.URL, cfg.Worker.PoolSize, jobsChan, logger)
	if err != nil {
		logger.Fatal("Failed to initialize AMQP consumer", zap.Error(err))
	}
	defer consumer.Close()
	logger.Info("Connected to RabbitMQ")

	// Start worker pool
	workerPool := pool.NewWorkerPool(cfg.Worker.PoolSize, jobsChan, executeUC, logger)
	workerPool.Start(jobCtx)

	// Start AMQP consumer in a goroutine
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := consumer.Start(consumeCtx); err != nil {
			logger.Error("AMQP consumer error", zap.Error(err))
		}
	}()

	// Start Prometheus metrics server
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Worker.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("Metrics server listening", zap.String("addr", metricsSrv.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-consumerDone:
		logger.Error("AMQP consumer exited unexpectedly")
	}

	logger.Info("Shutting down worker...")
	stopConsuming()
	<-consumerDone
	close(jobsChan)

	// Wait for workers to finish in-flight jobs, then abort stragglers.
	drained := make(chan struct{})
	go func() {
		workerPool.Stop()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(timeLimit + 10*time.Second):
		logger.Warn("Drain timed out, aborting running jobs")
		abortJobs()
		<-drained
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)

	logger.Info("Worker stopped")
}
