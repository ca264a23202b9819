package domain

import "time"

// JobState is the lifecycle state of an enhancement job.
type JobState string

const (
	// JobQueued means the job is waiting for a worker.
	JobQueued JobState = "queued"
	// JobDelayed means the job is waiting for its delay to elapse.
	JobDelayed JobState = "delayed"
	// JobActive means a worker has claimed the job.
	JobActive JobState = "active"
	// JobCompleted means a usable result was persisted. This includes the
	// degraded heuristic-only path; degraded completion is not a failure.
	JobCompleted JobState = "completed"
	// JobFailed means the content could not be fetched or the result could
	// not be persisted. Only Failed jobs are operationally significant.
	JobFailed JobState = "failed"
)

// Terminal reports whether the state is final.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// JobIDPrefix is the deterministic prefix for enhancement job IDs.
const JobIDPrefix = "enhance:"

// JobIDFor derives the idempotent job ID for a content item. Repeated
// submissions for the same content collapse onto one in-flight job because
// they derive the same ID.
func JobIDFor(contentID string) string {
	return JobIDPrefix + contentID
}

// EnhancementJob tracks one unit of background enhancement work.
type EnhancementJob struct {
	JobID      string    `json:"job_id"`
	ContentID  string    `json:"content_id"`
	Priority   int       `json:"priority"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	RunAt      time.Time `json:"run_at"`
	Attempt    int       `json:"attempt"`
	State      JobState  `json:"state"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	Enhanced   bool      `json:"enhanced"`
	LastError  string    `json:"last_error,omitempty"`
}
