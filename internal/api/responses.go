package api

import (
	"github.com/hypeindex/enhancement/internal/domain"
	"github.com/hypeindex/enhancement/internal/heuristic"
	"github.com/hypeindex/enhancement/internal/queue"
)

// EnqueueRequest asks for background enhancement of one content item.
type EnqueueRequest struct {
	ContentID string `json:"content_id" binding:"required"`
	Priority  int    `json:"priority"`
	DelayMs   int64  `json:"delay_ms" binding:"min=0"`
}

// JobResponse wraps a job snapshot.
type JobResponse struct {
	Job *domain.EnhancementJob `json:"job"`
}

// ScoreRequest asks for an inline heuristic score. Used by the platform's
// submit path for the baseline before enhancement runs.
type ScoreRequest struct {
	Title string `json:"title" binding:"required"`
	Body  string `json:"body"`
}

// ScoreResponse is the inline heuristic result.
type ScoreResponse struct {
	Result heuristic.Result `json:"result"`
}

// StatsResponse reports queue counters.
type StatsResponse struct {
	Stats queue.Stats `json:"stats"`
}

// CleanupRequest controls terminal-job purging. MaxAgeMs zero means the
// configured default retention.
type CleanupRequest struct {
	MaxAgeMs int64 `json:"max_age_ms" binding:"min=0"`
}

// CleanupResponse reports how many terminal jobs were purged.
type CleanupResponse struct {
	Removed int `json:"removed"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
