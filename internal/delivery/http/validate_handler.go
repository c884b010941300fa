package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Harsh-BH/codr/internal/usecase"
)

type validateRequest struct {
	Code     string `json:"code" binding:"required"`
	Language string `json:"language" binding:"required"`
}

type validateResponse struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
	Rule   string `json:"rule,omitempty"`
}

// ValidateHandler runs the security validator without creating a job.
type ValidateHandler struct {
	validator usecase.CodeValidator
}

// NewValidateHandler creates a new ValidateHandler.
func NewValidateHandler(v usecase.CodeValidator) *ValidateHandler {
	return &ValidateHandler{validator: v}
}

// Validate handles POST /api/v1/validate
func (h *ValidateHandler) Validate(c *gin.Context) {
	var req validateRequest
	if !bindJSON(c, &req) {
		return
	}

	verdict := h.validator.Validate(c.Request.Context(), req.Code, req.Language)
	resp := validateResponse{Valid: verdict.Accepted, Reason: verdict.Reason}
	if verdict.Finding != nil {
		resp.Rule = verdict.Finding.RuleName
	}
	c.JSON(http.StatusOK, resp)
}
