package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harsh-BH/codr/internal/delivery/http/middleware"
	"github.com/Harsh-BH/codr/internal/domain"
)

// respondError maps domain errors to HTTP responses.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		body := gin.H{
			"error":  "ValidationRejected",
			"reason": verr.Verdict.Reason,
		}
		if verr.Verdict.Finding != nil {
			body["rule"] = verr.Verdict.Finding.RuleName
		}
		c.JSON(http.StatusBadRequest, body)
	case errors.Is(err, domain.ErrUnknownLanguage):
		c.JSON(http.StatusBadRequest, gin.H{"error": "UnknownLanguage", "reason": err.Error()})
	case errors.Is(err, domain.ErrEmptySourceCode):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrPayloadTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "JobNotFound"})
	case errors.Is(err, domain.ErrPublishFailed), errors.Is(err, domain.ErrStoreUnavailable):
		logger.Error("Dependency unavailable", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
	default:
		logger.Error("Request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// bindJSON decodes the request body into dst, writing a 400, or a 413 when
// the body limit was hit, on failure.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		if middleware.BodyTooLarge(err) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": domain.ErrPayloadTooLarge.Error()})
			return false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return false
	}
	return true
}

// jobID parses the :id path parameter, writing a 400 on failure.
func jobID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid job ID format"})
		return id, false
	}
	return id, true
}
