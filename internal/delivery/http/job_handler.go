package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Harsh-BH/codr/internal/domain"
	"github.com/Harsh-BH/codr/internal/usecase"
)

type inputRequest struct {
	Data string `json:"data"`
}

// JobHandler handles HTTP requests for jobs.
type JobHandler struct {
	submitUC *usecase.SubmitJobUsecase
	getJobUC *usecase.GetJobUsecase
	inputUC  *usecase.SendInputUsecase
	logger   *zap.Logger
}

// NewJobHandler creates a new JobHandler.
func NewJobHandler(submitUC *usecase.SubmitJobUsecase, getJobUC *usecase.GetJobUsecase, inputUC *usecase.SendInputUsecase, logger *zap.Logger) *JobHandler {
	return &JobHandler{
		submitUC: submitUC,
		getJobUC: getJobUC,
		inputUC:  inputUC,
		logger:   logger,
	}
}

// Submit handles POST /api/v1/jobs
func (h *JobHandler) Submit(c *gin.Context) {
	var req domain.SubmitRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.submitUC.Execute(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusAccepted, resp)
}

// Get handles GET /api/v1/jobs/:id
func (h *JobHandler) Get(c *gin.Context) {
	id, ok := jobID(c)
	if !ok {
		return
	}

	job, err := h.getJobUC.Execute(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

// Status handles GET /api/v1/jobs/:id/status
func (h *JobHandler) Status(c *gin.Context) {
	id, ok := jobID(c)
	if !ok {
		return
	}

	status, err := h.getJobUC.Status(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, domain.StatusResponse{JobID: id, Status: status})
}

// Input handles POST /api/v1/jobs/:id/input
func (h *JobHandler) Input(c *gin.Context) {
	id, ok := jobID(c)
	if !ok {
		return
	}

	var req inputRequest
	if !bindJSON(c, &req) {
		return
	}

	delivered, err := h.inputUC.Execute(c.Request.Context(), id, []byte(req.Data))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"delivered": delivered})
}

// History handles GET /api/v1/history/:id
func (h *JobHandler) History(c *gin.Context) {
	id, ok := jobID(c)
	if !ok {
		return
	}

	job, err := h.getJobUC.History(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, job)
}
