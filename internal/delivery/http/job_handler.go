package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leadscope/leadscope/internal/domain"
	"github.com/leadscope/leadscope/internal/engine"
)

// JobHandler exposes the engine's job operations over HTTP.
type JobHandler struct {
	engine *engine.Engine
	logger *zap.Logger
}

// NewJobHandler creates a new JobHandler.
func NewJobHandler(eng *engine.Engine, logger *zap.Logger) *JobHandler {
	return &JobHandler{engine: eng, logger: logger}
}

// QualificationRequest is the body for POST /api/v1/qualifications.
type QualificationRequest struct {
	UserID      string            `json:"user_id" binding:"required"`
	ProfileID   string            `json:"profile_id"`
	Profile     domain.ICPProfile `json:"profile" binding:"required"`
	Domains     []string          `json:"domains" binding:"required"`
	MaxAttempts int               `json:"max_attempts"`
}

// AnalyzeRequest is the body for POST /api/v1/domains/analyze.
type AnalyzeRequest struct {
	Domain    string `json:"domain" binding:"required"`
	UserID    string `json:"user_id" binding:"required"`
	CompanyID string `json:"company_id"`
}

// GenerateProfileRequest is the body for POST /api/v1/profiles/generate.
type GenerateProfileRequest struct {
	CompanyID  string                   `json:"company_id"`
	UserID     string                   `json:"user_id" binding:"required"`
	Attributes domain.CompanyAttributes `json:"attributes" binding:"required"`
}

// EnqueueResponse is returned for every accepted job submission.
type EnqueueResponse struct {
	JobID  uuid.UUID        `json:"job_id"`
	RunID  uuid.UUID        `json:"run_id,omitempty"`
	Status domain.JobStatus `json:"status"`
}

// Qualify handles POST /api/v1/qualifications.
func (h *JobHandler) Qualify(c *gin.Context) {
	var req QualificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if len(req.Domains) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": domain.ErrEmptyDomainList.Error()})
		return
	}

	payload := domain.QualifyProspectsPayload{
		RunID:     uuid.New(),
		UserID:    req.UserID,
		ProfileID: req.ProfileID,
		Profile:   req.Profile,
		Domains:   req.Domains,
	}

	id, err := h.engine.Enqueue(domain.JobQualifyProspects, payload, &engine.EnqueueOptions{
		MaxAttempts: req.MaxAttempts,
	})
	if err != nil {
		h.respondEnqueueError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, EnqueueResponse{
		JobID:  id,
		RunID:  payload.RunID,
		Status: domain.StatusPending,
	})
}

// Analyze handles POST /api/v1/domains/analyze.
func (h *JobHandler) Analyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	id, err := h.engine.Enqueue(domain.JobAnalyzeDomain, domain.AnalyzeDomainPayload{
		Domain:    req.Domain,
		UserID:    req.UserID,
		CompanyID: req.CompanyID,
	}, nil)
	if err != nil {
		h.respondEnqueueError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, EnqueueResponse{JobID: id, Status: domain.StatusPending})
}

// Generate handles POST /api/v1/profiles/generate.
func (h *JobHandler) Generate(c *gin.Context) {
	var req GenerateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	id, err := h.engine.Enqueue(domain.JobGenerateProfile, domain.GenerateProfilePayload{
		CompanyID:  req.CompanyID,
		UserID:     req.UserID,
		Attributes: req.Attributes,
	}, nil)
	if err != nil {
		h.respondEnqueueError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, EnqueueResponse{JobID: id, Status: domain.StatusPending})
}

// GetByID handles GET /api/v1/jobs/:id.
func (h *JobHandler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid job ID format"})
		return
	}

	job, err := h.engine.GetJob(id)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		h.logger.Error("Get job failed", zap.Error(err), zap.String("job_id", id.String()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, job)
}

// Cancel handles DELETE /api/v1/jobs/:id.
func (h *JobHandler) Cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid job ID format"})
		return
	}

	if err := h.engine.Cancel(id); err != nil {
		switch {
		case errors.Is(err, domain.ErrJobNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		case errors.Is(err, domain.ErrJobNotCancellable):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			h.logger.Error("Cancel job failed", zap.Error(err), zap.String("job_id", id.String()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

// Stats handles GET /api/v1/stats.
func (h *JobHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Stats())
}

func (h *JobHandler) respondEnqueueError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidPayload):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrEngineStopped):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service shutting down"})
	default:
		h.logger.Error("Enqueue failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
