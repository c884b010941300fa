package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Harsh-BH/codr/internal/domain"
)

// BodySizeLimit caps submission and input bodies at maxBytes. A declared
// Content-Length over the cap is refused with 413 before the handler runs.
// Chunked bodies are cut off while reading; handlers detect that with
// BodyTooLarge.
func BodySizeLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": domain.ErrPayloadTooLarge.Error(),
				"limit": maxBytes,
			})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// BodyTooLarge reports whether err came from reading past the body cap.
func BodyTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}
