// Package api exposes the enhancement queue over HTTP. This surface is the
// only entry point the rest of the platform is permitted to call.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hypeindex/enhancement/internal/heuristic"
	"github.com/hypeindex/enhancement/internal/jwtauth"
	"github.com/hypeindex/enhancement/internal/logger"
	"github.com/hypeindex/enhancement/internal/queue"
)

// Handler handles HTTP requests for the enhancement API.
type Handler struct {
	queue        *queue.Queue
	scorer       *heuristic.Scorer
	jobRetention time.Duration
	logger       logger.Logger
}

// NewHandler creates an API handler. jobRetention is the default Cleanup
// age when the request does not supply one.
func NewHandler(q *queue.Queue, scorer *heuristic.Scorer, jobRetention time.Duration, log logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Handler{
		queue:        q,
		scorer:       scorer,
		jobRetention: jobRetention,
		logger:       log,
	}
}

// Enqueue handles POST /api/v1/enhancements.
func (h *Handler) Enqueue(c *gin.Context) {
	var req EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	job, err := h.queue.Enqueue(c.Request.Context(), req.ContentID, queue.EnqueueOptions{
		Priority:     req.Priority,
		Delay:        time.Duration(req.DelayMs) * time.Millisecond,
		SubmitterKey: submitterKey(c),
	})
	if err != nil {
		if errors.Is(err, queue.ErrSubmissionLimited) {
			c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "submission rate limit exceeded"})
			return
		}
		h.logger.Error("enqueue failed",
			logger.String("content_id", req.ContentID),
			logger.Error(err),
		)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	h.logger.Info("enhancement enqueued",
		logger.String("job_id", job.JobID),
		logger.Int("priority", job.Priority),
	)
	c.JSON(http.StatusAccepted, JobResponse{Job: job})
}

// GetJob handles GET /api/v1/enhancements/:job_id.
func (h *Handler) GetJob(c *gin.Context) {
	job, ok := h.queue.GetJob(c.Param("job_id"))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "job not found"})
		return
	}
	c.JSON(http.StatusOK, JobResponse{Job: job})
}

// Rescore handles POST /api/v1/contents/:content_id/rescore. A rescore
// is an explicit enqueue; while a job for the content is still in flight
// it returns that job rather than starting another.
func (h *Handler) Rescore(c *gin.Context) {
	job, err := h.queue.Enqueue(c.Request.Context(), c.Param("content_id"), queue.EnqueueOptions{
		SubmitterKey: submitterKey(c),
	})
	if err != nil {
		if errors.Is(err, queue.ErrSubmissionLimited) {
			c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "submission rate limit exceeded"})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, JobResponse{Job: job})
}

// Score handles POST /api/v1/score: the synchronous heuristic baseline.
func (h *Handler) Score(c *gin.Context) {
	var req ScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, ScoreResponse{Result: h.scorer.Score(req.Title, req.Body)})
}

// Stats handles GET /api/v1/stats.
func (h *Handler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, StatsResponse{Stats: h.queue.Stats()})
}

// Pause handles POST /api/v1/queue/pause.
func (h *Handler) Pause(c *gin.Context) {
	h.queue.Pause()
	c.JSON(http.StatusOK, gin.H{"status": "paused"})
}

// Resume handles POST /api/v1/queue/resume.
func (h *Handler) Resume(c *gin.Context) {
	h.queue.Resume()
	c.JSON(http.StatusOK, gin.H{"status": "running"})
}

// Cleanup handles POST /api/v1/queue/cleanup.
func (h *Handler) Cleanup(c *gin.Context) {
	// The body is optional; an empty request purges at the default age.
	var req CleanupRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
	}

	maxAge := h.jobRetention
	if req.MaxAgeMs > 0 {
		maxAge = time.Duration(req.MaxAgeMs) * time.Millisecond
	}
	c.JSON(http.StatusOK, CleanupResponse{Removed: h.queue.Cleanup(maxAge)})
}

// submitterKey identifies the caller for the submission rate limit: the
// authenticated subject when present, otherwise the client IP.
func submitterKey(c *gin.Context) string {
	if claims, ok := jwtauth.GetClaims(c); ok && claims.Sub != "" {
		return "user:" + claims.Sub
	}
	return "ip:" + c.ClientIP()
}
