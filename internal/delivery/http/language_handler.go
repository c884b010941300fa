package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Harsh-BH/codr/internal/domain"
)

// LanguageHandler handles language listing requests.
type LanguageHandler struct {
	languages []domain.LanguageInfo
}

// NewLanguageHandler creates a new LanguageHandler.
func NewLanguageHandler(languages []domain.LanguageInfo) *LanguageHandler {
	return &LanguageHandler{languages: languages}
}

// List handles GET /api/v1/languages
func (h *LanguageHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"languages": h.languages,
	})
}
