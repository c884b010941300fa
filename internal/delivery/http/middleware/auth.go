package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIKeyHeader carries the shared secret.
const APIKeyHeader = "X-API-Key"

// APIKey rejects requests without the shared secret. An empty key disables
// the check.
func APIKey(key string) gin.HandlerFunc {
	expected := []byte(key)

	return func(c *gin.Context) {
		if len(expected) == 0 {
			c.Next()
			return
		}

		got := c.GetHeader(APIKeyHeader)
		if got == "" {
			c.Header("WWW-Authenticate", "ApiKey")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "API key is missing"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), expected) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Invalid API key"})
			return
		}
		c.Next()
	}
}
