package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Harsh-BH/codr/internal/config"
	handler "github.com/Harsh-BH/codr/internal/delivery/http"
	"github.com/Harsh-BH/codr/internal/dispatch"
	"github.com/Harsh-BH/codr/internal/events"
	"github.com/Harsh-BH/codr/internal/executor"
	"github.com/Harsh-BH/codr/internal/input"
	"github.com/Harsh-BH/codr/internal/logging"
	"github.com/Harsh-BH/codr/internal/parser"
	"github.com/Harsh-BH/codr/internal/repository"
	"github.com/Harsh-BH/codr/internal/repository/postgres"
	redisrepo "github.com/Harsh-BH/codr/internal/repository/redis"
	"github.com/Harsh-BH/codr/internal/usecase"
	"github.com/Harsh-BH/codr/internal/validator"
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

	logger.Info("Starting codr API server", zap.String("env", cfg.AppEnv))

	// Set Gin mode
	gin.SetMode(cfg.Server.GinMode)

	ctx := context.Background()

	// Connect to Redis
	redisOpts, err := goredis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Fatal("Failed to parse Redis URL", zap.Error(err))
	}
	rdb := goredis.NewClient(redisOpts)
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("Failed to ping Redis", zap.Error(err))
	}
	logger.Info("Connected to Redis")

	health := map[string]handler.HealthCheck{
		"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}

	// Connect to PostgreSQL (optional archive)
	var archive repository.JobArchive
	if cfg.Database.URL != "" {
		dbPool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			logger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
		}
		defer dbPool.Close()

		if err := dbPool.Ping(ctx); err != nil {
			logger.Fatal("Failed to ping PostgreSQL", zap.Error(err))
		}
		logger.Info("Connected to PostgreSQL")

		archive = postgres.NewJobArchive(dbPool)
		health["postgres"] = dbPool.Ping
	}

	// Initialize RabbitMQ publisher
	pub, err := dispatch.NewRabbitMQPublisher(cfg.RabbitMQ.URL, logger)
	if err != nil {
		logger.Fatal("Failed to initialize RabbitMQ publisher", zap.Error(err))
	}
	defer pub.Close()
	logger.Info("Connected to RabbitMQ")

	// Initialize repository and transports
	store := redisrepo.NewJobStore(rdb, cfg.Jobs.Retention)
	bus := events.NewRedisBus(rdb, events.DefaultBuffer, logger)
	inputs := input.NewRedisChannel(rdb, cfg.Session.InputBuffer, logger)
	codeValidator := validator.New(parser.NewAdapter(), logger)

	// Initialize use cases
	submitUC := usecase.NewSubmitJobUsecase(codeValidator, store, pub, cfg.Jobs.MaxSourceBytes, logger)
	getJobUC := usecase.NewGetJobUsecase(store, archive, logger)
	inputUC := usecase.NewSendInputUsecase(store, inputs, logger)

	// Initialize router
	router := handler.NewRouter(handler.Dependencies{
		SubmitUC:   submitUC,
		GetJobUC:   getJobUC,
		InputUC:    inputUC,
		Validator:  codeValidator,
		Subscriber: bus,
		Languages:  executor.Catalog(),
		Health:     health,
	}, handler.RouterConfig{
		APIKey:          cfg.Server.APIKey,
		RateLimitSubmit: cfg.Server.RateLimitSubmit,
		RateLimitStream: cfg.Server.RateLimitStream,
		RateBurst:       cfg.Server.RateBurst,
		// JSON escaping can grow source text; leave headroom above the code limit.
		MaxBodyBytes: int64(cfg.Jobs.MaxSourceBytes)*2 + 4096,
		CORSOrigins:  cfg.Server.CORSOrigins,
	}, logger)

	// Create HTTP server. WriteTimeout is left to the handlers because
	// stream connections outlive any fixed deadline.
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("API server listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("API server stopped")
}
