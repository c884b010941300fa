package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Harsh-BH/codr/internal/delivery/http/middleware"
	"github.com/Harsh-BH/codr/internal/domain"
	"github.com/Harsh-BH/codr/internal/events"
	"github.com/Harsh-BH/codr/internal/usecase"
)

// RouterConfig holds the transport settings of the router.
type RouterConfig struct {
	APIKey          string
	RateLimitSubmit float64 // requests per second per client
	RateLimitStream float64
	RateBurst       int
	MaxBodyBytes    int64
	CORSOrigins     []string
}

// Dependencies are the use cases and collaborators the handlers call.
type Dependencies struct {
	SubmitUC   *usecase.SubmitJobUsecase
	GetJobUC   *usecase.GetJobUsecase
	InputUC    *usecase.SendInputUsecase
	Validator  usecase.CodeValidator
	Subscriber events.Subscriber
	Languages  []domain.LanguageInfo
	Health     map[string]HealthCheck
}

// NewRouter creates and configures the Gin router with all routes and middleware.
func NewRouter(deps Dependencies, cfg RouterConfig, logger *zap.Logger) *gin.Engine {
	router := gin.New()

	// Global middleware
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS(cfg.CORSOrigins))
	router.Use(middleware.Logger(logger))

	// Metrics endpoint (no auth, no rate limiting)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	submitLimiter := middleware.NewRateLimiter(cfg.RateLimitSubmit, cfg.RateBurst)
	streamLimiter := middleware.NewRateLimiter(cfg.RateLimitStream, cfg.RateBurst)

	v1 := router.Group("/api/v1")
	{
		// Health check (no auth)
		healthHandler := NewHealthHandler(deps.Health, logger)
		v1.GET("/health", healthHandler.Health)

		authed := v1.Group("")
		authed.Use(middleware.APIKey(cfg.APIKey))

		langHandler := NewLanguageHandler(deps.Languages)
		authed.GET("/languages", langHandler.List)

		limited := authed.Group("")
		if cfg.MaxBodyBytes > 0 {
			limited.Use(middleware.BodySizeLimit(cfg.MaxBodyBytes))
		}

		validateHandler := NewValidateHandler(deps.Validator)
		limited.POST("/validate", validateHandler.Validate)

		jobHandler := NewJobHandler(deps.SubmitUC, deps.GetJobUC, deps.InputUC, logger)
		limited.POST("/jobs", submitLimiter.Middleware(), jobHandler.Submit)
		authed.GET("/jobs/:id", jobHandler.Get)
		authed.GET("/jobs/:id/status", jobHandler.Status)
		limited.POST("/jobs/:id/input", jobHandler.Input)

		if deps.GetJobUC.HasArchive() {
			authed.GET("/history/:id", jobHandler.History)
		}

		// WebSocket for live output and input
		streamHandler := NewStreamHandler(deps.GetJobUC, deps.InputUC, deps.Subscriber, middleware.OriginAllowed(cfg.CORSOrigins), logger)
		authed.GET("/jobs/:id/stream", streamLimiter.Middleware(), streamHandler.Stream)
	}

	return router
}
