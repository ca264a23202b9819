// Package queue implements the durable, idempotent enhancement job queue.
// Jobs are keyed by content ID, dispatched to a bounded worker pool, and
// degrade to heuristic-only results when the external refinement fails.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hypeindex/enhancement/internal/config"
	"github.com/hypeindex/enhancement/internal/domain"
	"github.com/hypeindex/enhancement/internal/heuristic"
	"github.com/hypeindex/enhancement/internal/llm"
	"github.com/hypeindex/enhancement/internal/logger"
	"github.com/hypeindex/enhancement/internal/ratelimit"
	"github.com/hypeindex/enhancement/internal/store"
	"github.com/hypeindex/enhancement/internal/telemetry"
)

// ErrSubmissionLimited is returned by Enqueue when the submission rate
// limiter rejects the request. No job is created.
var ErrSubmissionLimited = errors.New("submission rate limit exceeded")

// Refiner is the external-refinement dependency, satisfied by *llm.Client.
type Refiner interface {
	Refine(ctx context.Context, p llm.RefinePayload) (*llm.Refinement, error)
}

// EnqueueOptions controls one enqueue call.
type EnqueueOptions struct {
	// Priority orders dispatch: higher runs first. Default 0.
	Priority int
	// Delay holds the job back before it becomes eligible to run.
	Delay time.Duration
	// SubmitterKey identifies the caller for the submission rate limit,
	// e.g. a user ID or client IP. Empty means no admission check.
	SubmitterKey string
}

// Stats is a point-in-time snapshot of the queue.
type Stats struct {
	Queued    int  `json:"queued"`
	Delayed   int  `json:"delayed"`
	Active    int  `json:"active"`
	Completed int  `json:"completed"`
	Failed    int  `json:"failed"`
	Paused    bool `json:"paused"`
}

// Queue is the enhancement job queue. All methods are safe for concurrent
// use once Start has been called.
type Queue struct {
	store     store.Store
	scorer    *heuristic.Scorer
	refiner   Refiner
	limiter   ratelimit.KeyLimiter
	pacer     *ratelimit.Pacer
	telemetry *telemetry.Provider
	logger    logger.Logger

	workers         int
	jobRetention    time.Duration
	cleanupInterval time.Duration

	mu     sync.Mutex
	jobs   map[string]*domain.EnhancementJob
	paused bool

	wake     chan struct{}
	runCh    chan string
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// now is swapped out in tests.
	now func() time.Time
}

// Deps bundles the queue's collaborators.
type Deps struct {
	Store     store.Store
	Scorer    *heuristic.Scorer
	Refiner   Refiner
	Limiter   ratelimit.KeyLimiter
	Pacer     *ratelimit.Pacer
	Telemetry *telemetry.Provider
	Logger    logger.Logger
}

// New creates a queue. Start must be called before jobs are processed;
// Enqueue works immediately.
func New(cfg config.QueueConfig, deps Deps) (*Queue, error) {
	if deps.Store == nil {
		return nil, errors.New("queue requires a store")
	}
	if deps.Scorer == nil {
		return nil, errors.New("queue requires a scorer")
	}
	log := deps.Logger
	if log == nil {
		log = logger.NewNop()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 5
	}
	return &Queue{
		store:           deps.Store,
		scorer:          deps.Scorer,
		refiner:         deps.Refiner,
		limiter:         deps.Limiter,
		pacer:           deps.Pacer,
		telemetry:       deps.Telemetry,
		logger:          log,
		workers:         workers,
		jobRetention:    cfg.JobRetention,
		cleanupInterval: cfg.CleanupInterval,
		jobs:            make(map[string]*domain.EnhancementJob),
		wake:            make(chan struct{}, 1),
		runCh:           make(chan string),
		stopCh:          make(chan struct{}),
		now:             time.Now,
	}, nil
}

// Start launches the dispatcher, the worker pool, and the cleanup ticker.
func (q *Queue) Start() {
	q.wg.Add(1)
	go q.dispatch()

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}

	if q.cleanupInterval > 0 && q.jobRetention > 0 {
		q.wg.Add(1)
		go q.cleanupLoop()
	}

	q.logger.Info("enhancement queue started",
		logger.Int("workers", q.workers),
		logger.Duration("job_retention", q.jobRetention),
	)
}

// Enqueue submits content for enhancement. The job ID is derived from the
// content ID, so a second enqueue while a job is Queued, Delayed, or Active
// returns the existing job instead of creating a duplicate. A terminal job
// is replaced by a fresh one.
func (q *Queue) Enqueue(ctx context.Context, contentID string, opts EnqueueOptions) (*domain.EnhancementJob, error) {
	if contentID == "" {
		return nil, errors.New("content ID is required")
	}

	if q.limiter != nil && opts.SubmitterKey != "" {
		if !q.limiter.Allow(ctx, opts.SubmitterKey) {
			if q.telemetry != nil {
				q.telemetry.RecordSubmissionRejected()
			}
			return nil, fmt.Errorf("submitter %q: %w", opts.SubmitterKey, ErrSubmissionLimited)
		}
	}

	jobID := domain.JobIDFor(contentID)
	now := q.now()

	q.mu.Lock()
	if existing, ok := q.jobs[jobID]; ok && !existing.State.Terminal() {
		copied := *existing
		q.mu.Unlock()
		return &copied, nil
	}

	job := &domain.EnhancementJob{
		JobID:      jobID,
		ContentID:  contentID,
		Priority:   opts.Priority,
		EnqueuedAt: now,
		RunAt:      now.Add(opts.Delay),
		State:      domain.JobQueued,
	}
	if opts.Delay > 0 {
		job.State = domain.JobDelayed
	}
	q.jobs[jobID] = job
	copied := *job
	q.mu.Unlock()

	q.updateDepthGauges()
	q.notify()
	return &copied, nil
}

// GetJob returns a snapshot of the job, or false if it is unknown.
func (q *Queue) GetJob(jobID string) (*domain.EnhancementJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	if !ok {
		return nil, false
	}
	copied := *job
	return &copied, true
}

// Stats returns current queue counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := Stats{Paused: q.paused}
	for _, job := range q.jobs {
		switch job.State {
		case domain.JobQueued:
			s.Queued++
		case domain.JobDelayed:
			s.Delayed++
		case domain.JobActive:
			s.Active++
		case domain.JobCompleted:
			s.Completed++
		case domain.JobFailed:
			s.Failed++
		}
	}
	return s
}

// Pause stops workers from claiming new jobs. In-flight jobs finish.
func (q *Queue) Pause() {
	q.mu.Lock()
	q.paused = true
	q.mu.Unlock()
	q.logger.Info("enhancement queue paused")
}

// Resume restarts dispatch after Pause.
func (q *Queue) Resume() {
	q.mu.Lock()
	q.paused = false
	q.mu.Unlock()
	q.logger.Info("enhancement queue resumed")
	q.notify()
}

// Cleanup removes terminal jobs whose FinishedAt is older than maxAge.
// It returns the number of jobs removed.
func (q *Queue) Cleanup(maxAge time.Duration) int {
	cutoff := q.now().Add(-maxAge)

	q.mu.Lock()
	removed := 0
	for id, job := range q.jobs {
		if job.State.Terminal() && !job.FinishedAt.IsZero() && job.FinishedAt.Before(cutoff) {
			delete(q.jobs, id)
			removed++
		}
	}
	q.mu.Unlock()

	if removed > 0 {
		q.logger.Info("cleaned up terminal jobs", logger.Int("removed", removed))
	}
	return removed
}

// Shutdown drains the queue: no new jobs are claimed, in-flight jobs run to
// completion or until ctx expires.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.stopOnce.Do(func() { close(q.stopCh) })
	q.notify()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("enhancement queue drained")
		return nil
	case <-ctx.Done():
		q.logger.Warn("enhancement queue shutdown timed out with jobs in flight")
		return ctx.Err()
	}
}

// notify nudges the dispatcher without blocking.
func (q *Queue) notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) updateDepthGauges() {
	if q.telemetry == nil {
		return
	}
	q.mu.Lock()
	queued, delayed := 0, 0
	for _, job := range q.jobs {
		switch job.State {
		case domain.JobQueued:
			queued++
		case domain.JobDelayed:
			delayed++
		}
	}
	q.mu.Unlock()
	q.telemetry.SetQueueDepth(queued, delayed)
}

func (q *Queue) cleanupLoop() {
	defer q.wg.Done()
	ticker := time.NewTicker(q.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-q.stopCh:
			return
		case <-ticker.C:
			q.Cleanup(q.jobRetention)
		}
	}
}
