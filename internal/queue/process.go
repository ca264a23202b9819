package queue

import (
	"context"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/hypeindex/enhancement/internal/domain"
	"github.com/hypeindex/enhancement/internal/heuristic"
	"github.com/hypeindex/enhancement/internal/llm"
	"github.com/hypeindex/enhancement/internal/logger"
)

// dispatch selects ready jobs and hands them to workers. Delayed jobs are
// promoted when their RunAt passes; among ready jobs, higher priority runs
// first and ties break on enqueue time.
func (q *Queue) dispatch() {
	defer q.wg.Done()
	for {
		jobID, wait := q.claimNext()
		if jobID != "" {
			select {
			case q.runCh <- jobID:
				continue
			case <-q.stopCh:
				q.requeue(jobID)
				return
			}
		}

		var timerC <-chan time.Time
		var timer *time.Timer
		if wait > 0 {
			timer = time.NewTimer(wait)
			timerC = timer.C
		}
		select {
		case <-q.stopCh:
			if timer != nil {
				timer.Stop()
			}
			return
		case <-q.wake:
		case <-timerC:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// claimNext promotes due delayed jobs, then claims the best ready job and
// marks it Active. When nothing is ready it returns the wait until the
// earliest delayed job becomes due (zero when there is nothing to wait for).
func (q *Queue) claimNext() (string, time.Duration) {
	now := q.now()

	q.mu.Lock()
	defer q.mu.Unlock()

	var nextDue time.Duration
	for _, job := range q.jobs {
		if job.State != domain.JobDelayed {
			continue
		}
		if !job.RunAt.After(now) {
			job.State = domain.JobQueued
			continue
		}
		until := job.RunAt.Sub(now)
		if nextDue == 0 || until < nextDue {
			nextDue = until
		}
	}

	if q.paused {
		return "", nextDue
	}

	var best *domain.EnhancementJob
	for _, job := range q.jobs {
		if job.State != domain.JobQueued {
			continue
		}
		if best == nil || betterJob(job, best) {
			best = job
		}
	}
	if best == nil {
		return "", nextDue
	}

	best.State = domain.JobActive
	best.Attempt++
	return best.JobID, nextDue
}

// betterJob reports whether a should dispatch before b.
func betterJob(a, b *domain.EnhancementJob) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.EnqueuedAt.Equal(b.EnqueuedAt) {
		return a.EnqueuedAt.Before(b.EnqueuedAt)
	}
	return a.JobID < b.JobID
}

// requeue returns a claimed job to Queued. Used when shutdown interrupts
// dispatch between claiming and handing off.
func (q *Queue) requeue(jobID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if job, ok := q.jobs[jobID]; ok && job.State == domain.JobActive {
		job.State = domain.JobQueued
		job.Attempt--
	}
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()
	for {
		select {
		case <-q.stopCh:
			return
		case jobID := <-q.runCh:
			q.runJob(context.Background(), jobID)
		}
	}
}

// runJob processes one claimed job: fetch, heuristic floor, best-effort
// refinement, persist. Refinement failure degrades to a heuristic-only
// Completed job; only fetch and persist failures mark the job Failed.
func (q *Queue) runJob(ctx context.Context, jobID string) {
	start := q.now()

	q.mu.Lock()
	job, ok := q.jobs[jobID]
	if !ok {
		q.mu.Unlock()
		return
	}
	contentID := job.ContentID
	q.mu.Unlock()

	q.setActiveGauge()
	defer q.setActiveGauge()

	if q.telemetry != nil {
		spanCtx, span := q.telemetry.StartSpan(ctx, "queue.process",
			attribute.String("job_id", jobID),
			attribute.String("content_id", contentID),
		)
		defer span.End()
		ctx = spanCtx
	}

	content, err := q.store.FetchContent(ctx, contentID)
	if err != nil {
		q.logger.Error("content fetch failed",
			logger.String("job_id", jobID),
			logger.Error(err),
		)
		q.finishFailed(jobID, "fetch: "+err.Error(), start, "fetch")
		return
	}

	base := q.scorer.Score(content.Title, content.Body)
	result := &domain.ScoreResult{
		HypeScore:   base.HypeScore,
		EthicsScore: base.EthicsScore,
		ImpactTags:  base.ImpactTags,
		Enhanced:    false,
	}

	if q.refiner != nil {
		if err := q.pacer.Wait(ctx); err != nil {
			q.logger.Warn("dispatch pacing aborted, completing with heuristic result",
				logger.String("job_id", jobID),
				logger.Error(err),
			)
		} else {
			ref, err := q.refiner.Refine(ctx, llm.RefinePayload{
				Content:  *content,
				Baseline: base,
				Scope:    scopeFor(content),
			})
			switch {
			case err != nil:
				q.logger.Warn("refinement failed, completing with heuristic result",
					logger.String("job_id", jobID),
					logger.Error(err),
				)
			default:
				if merged, ok := mergeRefinement(base, ref); ok {
					result = merged
				} else {
					q.logger.Warn("refinement rejected by sanity checks",
						logger.String("job_id", jobID),
						logger.Float64("hype_score", ref.HypeScore),
						logger.Float64("ethics_score", ref.EthicsScore),
					)
				}
			}
		}
	}

	if err := q.persist(ctx, contentID, result); err != nil {
		q.finishFailed(jobID, "persist: "+err.Error(), start, "persist")
		return
	}
	q.finishCompleted(jobID, result.Enhanced, start)
}

// persist writes the result with a single bounded retry. This is not the
// full backoff policy: persistence is local and either works promptly or
// the job fails.
func (q *Queue) persist(ctx context.Context, contentID string, result *domain.ScoreResult) error {
	err := q.store.SaveScores(ctx, contentID, result)
	if err == nil {
		return nil
	}
	q.logger.Warn("score persistence failed, retrying once",
		logger.String("content_id", contentID),
		logger.Error(err),
	)
	return q.store.SaveScores(ctx, contentID, result)
}

func (q *Queue) finishCompleted(jobID string, enhanced bool, start time.Time) {
	now := q.now()

	q.mu.Lock()
	if job, ok := q.jobs[jobID]; ok {
		job.State = domain.JobCompleted
		job.FinishedAt = now
		job.Enhanced = enhanced
		job.LastError = ""
	}
	q.mu.Unlock()

	if q.telemetry != nil {
		q.telemetry.RecordJobCompleted(enhanced, now.Sub(start))
	}
	q.updateDepthGauges()
	q.logger.Info("enhancement job completed",
		logger.String("job_id", jobID),
		logger.Bool("enhanced", enhanced),
	)
}

func (q *Queue) finishFailed(jobID, lastError string, start time.Time, reason string) {
	now := q.now()

	q.mu.Lock()
	if job, ok := q.jobs[jobID]; ok {
		job.State = domain.JobFailed
		job.FinishedAt = now
		job.LastError = lastError
	}
	q.mu.Unlock()

	if q.telemetry != nil {
		q.telemetry.RecordJobFailed(reason, now.Sub(start))
	}
	q.updateDepthGauges()
}

func (q *Queue) setActiveGauge() {
	if q.telemetry == nil {
		return
	}
	q.mu.Lock()
	active := 0
	for _, job := range q.jobs {
		if job.State == domain.JobActive {
			active++
		}
	}
	q.mu.Unlock()
	q.telemetry.SetActiveWorkers(active)
}

// scopeFor keys the call-client rate limit. Content with a company context
// shares a window per company; everything else shares the global window.
func scopeFor(content *domain.ContentItem) string {
	if content.CompanyContext != nil && content.CompanyContext.Name != "" {
		return "company:" + content.CompanyContext.Name
	}
	return llm.DefaultScope
}

var knownTags = map[string]bool{
	domain.TagPrivacy:     true,
	domain.TagLabor:       true,
	domain.TagEnvironment: true,
	domain.TagSafety:      true,
}

// mergeRefinement merges an external refinement over the heuristic baseline.
// External values win per-field; scores out of range fail the sanity check
// and the refinement is discarded. Unknown impact tags are dropped, and an
// empty external tag set keeps the heuristic tags.
func mergeRefinement(base heuristic.Result, ref *llm.Refinement) (*domain.ScoreResult, bool) {
	if !domain.ValidScore(ref.HypeScore) || !domain.ValidScore(ref.EthicsScore) {
		return nil, false
	}

	tags := make([]string, 0, len(ref.ImpactTags))
	for _, t := range ref.ImpactTags {
		if knownTags[t] {
			tags = append(tags, t)
		}
	}
	if len(tags) == 0 {
		tags = base.ImpactTags
	} else {
		sort.Strings(tags)
	}

	return &domain.ScoreResult{
		HypeScore:    domain.ClampScore(ref.HypeScore),
		EthicsScore:  domain.ClampScore(ref.EthicsScore),
		ImpactTags:   tags,
		RealityCheck: ref.RealityCheck,
		ELI5Summary:  ref.ELI5Summary,
		Enhanced:     true,
	}, true
}
