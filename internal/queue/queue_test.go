package queue_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hypeindex/enhancement/internal/config"
	"github.com/hypeindex/enhancement/internal/domain"
	"github.com/hypeindex/enhancement/internal/heuristic"
	"github.com/hypeindex/enhancement/internal/llm"
	"github.com/hypeindex/enhancement/internal/queue"
	"github.com/hypeindex/enhancement/internal/ratelimit"
	"github.com/hypeindex/enhancement/internal/store"
)

type stubRefiner struct {
	mu    sync.Mutex
	calls int
	fn    func(p llm.RefinePayload) (*llm.Refinement, error)
}

func (r *stubRefiner) Refine(_ context.Context, p llm.RefinePayload) (*llm.Refinement, error) {
	r.mu.Lock()
	r.calls++
	fn := r.fn
	r.mu.Unlock()
	if fn == nil {
		return nil, errors.New("refiner unavailable")
	}
	return fn(p)
}

func (r *stubRefiner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func seedContent(mem *store.Memory, id, title, body string) {
	mem.PutContent(domain.ContentItem{ID: id, Title: title, Body: body})
}

func newTestQueue(t *testing.T, st store.Store, refiner queue.Refiner, limiter ratelimit.KeyLimiter, workers int) *queue.Queue {
	t.Helper()

	q, err := queue.New(config.QueueConfig{Workers: workers}, queue.Deps{
		Store:   st,
		Scorer:  heuristic.NewScorer(),
		Refiner: refiner,
		Limiter: limiter,
	})
	require.NoError(t, err)

	q.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = q.Shutdown(ctx)
	})
	return q
}

func waitForTerminal(t *testing.T, q *queue.Queue, jobID string) *domain.EnhancementJob {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if job, ok := q.GetJob(jobID); ok && job.State.Terminal() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach a terminal state", jobID)
	return nil
}

func TestEnqueue_IdempotentWhileInFlight(t *testing.T) {
	mem := store.NewMemory()
	seedContent(mem, "c1", "Title", "Body")

	release := make(chan struct{})
	refiner := &stubRefiner{fn: func(llm.RefinePayload) (*llm.Refinement, error) {
		<-release
		return nil, errors.New("unavailable")
	}}
	q := newTestQueue(t, mem, refiner, nil, 2)

	first, err := q.Enqueue(context.Background(), "c1", queue.EnqueueOptions{})
	require.NoError(t, err)
	require.Equal(t, "enhance:c1", first.JobID)

	// Wait for a worker to claim the job, then enqueue again.
	require.Eventually(t, func() bool {
		job, ok := q.GetJob(first.JobID)
		return ok && job.State == domain.JobActive
	}, 2*time.Second, 5*time.Millisecond)

	second, err := q.Enqueue(context.Background(), "c1", queue.EnqueueOptions{})
	require.NoError(t, err)
	require.Equal(t, first.JobID, second.JobID)
	require.Equal(t, domain.JobActive, second.State)

	close(release)
	job := waitForTerminal(t, q, first.JobID)
	require.Equal(t, domain.JobCompleted, job.State)

	// Exactly one worker processed the content.
	require.Equal(t, 1, refiner.callCount())
}

func TestEnqueue_FreshJobAfterTerminal(t *testing.T) {
	mem := store.NewMemory()
	seedContent(mem, "c1", "Title", "Body")
	q := newTestQueue(t, mem, &stubRefiner{}, nil, 1)

	first, err := q.Enqueue(context.Background(), "c1", queue.EnqueueOptions{})
	require.NoError(t, err)
	waitForTerminal(t, q, first.JobID)

	second, err := q.Enqueue(context.Background(), "c1", queue.EnqueueOptions{})
	require.NoError(t, err)
	require.Equal(t, first.JobID, second.JobID)
	require.NotEqual(t, domain.JobCompleted, second.State)
	waitForTerminal(t, q, second.JobID)
}

func TestEnqueue_SubmissionLimiterRejects(t *testing.T) {
	mem := store.NewMemory()
	seedContent(mem, "c1", "Title", "Body")
	seedContent(mem, "c2", "Title", "Body")

	limiter := ratelimit.NewLimiter(time.Minute, 1)
	q := newTestQueue(t, mem, &stubRefiner{}, limiter, 1)

	_, err := q.Enqueue(context.Background(), "c1", queue.EnqueueOptions{SubmitterKey: "user:1"})
	require.NoError(t, err)

	_, err = q.Enqueue(context.Background(), "c2", queue.EnqueueOptions{SubmitterKey: "user:1"})
	require.ErrorIs(t, err, queue.ErrSubmissionLimited)

	// Rejected submissions never create a job.
	_, ok := q.GetJob("enhance:c2")
	require.False(t, ok)

	// A different submitter is unaffected.
	_, err = q.Enqueue(context.Background(), "c2", queue.EnqueueOptions{SubmitterKey: "user:2"})
	require.NoError(t, err)
}

func TestProcess_DegradedCompletionOnRefinementFailure(t *testing.T) {
	mem := store.NewMemory()
	seedContent(mem, "c1", "REVOLUTIONARY AI!!!", "amazing breakthrough")
	q := newTestQueue(t, mem, &stubRefiner{}, nil, 1)

	job, err := q.Enqueue(context.Background(), "c1", queue.EnqueueOptions{})
	require.NoError(t, err)

	done := waitForTerminal(t, q, job.JobID)
	require.Equal(t, domain.JobCompleted, done.State, "degraded completion is not a failure")
	require.False(t, done.Enhanced)

	saved, ok := mem.Scores("c1")
	require.True(t, ok, "heuristic result must still be persisted")
	require.False(t, saved.Enhanced)
	require.Equal(t, 4.3, saved.HypeScore)
	require.Equal(t, 5.0, saved.EthicsScore)
}

func TestProcess_EnhancedCompletion(t *testing.T) {
	mem := store.NewMemory()
	seedContent(mem, "c1", "Title", "Body")

	refiner := &stubRefiner{fn: func(llm.RefinePayload) (*llm.Refinement, error) {
		return &llm.Refinement{
			HypeScore:    8.2,
			EthicsScore:  3.5,
			ImpactTags:   []string{"labor", "bogus-tag"},
			RealityCheck: "Claims outpace evidence.",
			ELI5Summary:  "Simple summary.",
		}, nil
	}}
	q := newTestQueue(t, mem, refiner, nil, 1)

	job, err := q.Enqueue(context.Background(), "c1", queue.EnqueueOptions{})
	require.NoError(t, err)

	done := waitForTerminal(t, q, job.JobID)
	require.Equal(t, domain.JobCompleted, done.State)
	require.True(t, done.Enhanced)

	saved, ok := mem.Scores("c1")
	require.True(t, ok)
	require.True(t, saved.Enhanced)
	require.Equal(t, 8.2, saved.HypeScore)
	require.Equal(t, 3.5, saved.EthicsScore)
	require.Equal(t, []string{"labor"}, saved.ImpactTags, "unknown tags are dropped")
	require.Equal(t, "Claims outpace evidence.", saved.RealityCheck)
}

func TestProcess_SanityCheckRejectsOutOfRangeScores(t *testing.T) {
	mem := store.NewMemory()
	seedContent(mem, "c1", "Title", "Body")

	refiner := &stubRefiner{fn: func(llm.RefinePayload) (*llm.Refinement, error) {
		return &llm.Refinement{HypeScore: 42, EthicsScore: 5}, nil
	}}
	q := newTestQueue(t, mem, refiner, nil, 1)

	job, err := q.Enqueue(context.Background(), "c1", queue.EnqueueOptions{})
	require.NoError(t, err)

	done := waitForTerminal(t, q, job.JobID)
	require.Equal(t, domain.JobCompleted, done.State)
	require.False(t, done.Enhanced, "out-of-range refinement must be discarded")

	saved, ok := mem.Scores("c1")
	require.True(t, ok)
	require.False(t, saved.Enhanced)
}

func TestProcess_FetchFailureFailsJob(t *testing.T) {
	mem := store.NewMemory() // no content seeded
	q := newTestQueue(t, mem, &stubRefiner{}, nil, 1)

	job, err := q.Enqueue(context.Background(), "missing", queue.EnqueueOptions{})
	require.NoError(t, err)

	done := waitForTerminal(t, q, job.JobID)
	require.Equal(t, domain.JobFailed, done.State)
	require.Contains(t, done.LastError, "fetch")
}

type failingResultStore struct {
	*store.Memory
	failures int32
	calls    atomic.Int32
}

func (s *failingResultStore) SaveScores(ctx context.Context, contentID string, result *domain.ScoreResult) error {
	if s.calls.Add(1) <= s.failures {
		return errors.New("database unavailable")
	}
	return s.Memory.SaveScores(ctx, contentID, result)
}

func TestProcess_PersistFailureFailsJobAfterOneRetry(t *testing.T) {
	mem := store.NewMemory()
	seedContent(mem, "c1", "Title", "Body")
	st := &failingResultStore{Memory: mem, failures: 100}
	q := newTestQueue(t, st, &stubRefiner{}, nil, 1)

	job, err := q.Enqueue(context.Background(), "c1", queue.EnqueueOptions{})
	require.NoError(t, err)

	done := waitForTerminal(t, q, job.JobID)
	require.Equal(t, domain.JobFailed, done.State)
	require.Contains(t, done.LastError, "persist")
	require.Equal(t, int32(2), st.calls.Load(), "exactly one bounded retry")
}

func TestProcess_PersistRetrySucceeds(t *testing.T) {
	mem := store.NewMemory()
	seedContent(mem, "c1", "Title", "Body")
	st := &failingResultStore{Memory: mem, failures: 1}
	q := newTestQueue(t, st, &stubRefiner{}, nil, 1)

	job, err := q.Enqueue(context.Background(), "c1", queue.EnqueueOptions{})
	require.NoError(t, err)

	done := waitForTerminal(t, q, job.JobID)
	require.Equal(t, domain.JobCompleted, done.State)
	_, ok := mem.Scores("c1")
	require.True(t, ok)
}

func TestEnqueue_DelayedJob(t *testing.T) {
	mem := store.NewMemory()
	seedContent(mem, "c1", "Title", "Body")
	q := newTestQueue(t, mem, &stubRefiner{}, nil, 1)

	job, err := q.Enqueue(context.Background(), "c1", queue.EnqueueOptions{Delay: 50 * time.Millisecond})
	require.NoError(t, err)
	require.Equal(t, domain.JobDelayed, job.State)

	done := waitForTerminal(t, q, job.JobID)
	require.Equal(t, domain.JobCompleted, done.State)
	require.True(t, done.FinishedAt.Sub(job.EnqueuedAt) >= 50*time.Millisecond,
		"job must not run before its delay elapses")
}

type recordingStore struct {
	*store.Memory
	mu    sync.Mutex
	order []string
}

func (s *recordingStore) SaveScores(ctx context.Context, contentID string, result *domain.ScoreResult) error {
	s.mu.Lock()
	s.order = append(s.order, contentID)
	s.mu.Unlock()
	return s.Memory.SaveScores(ctx, contentID, result)
}

func TestDispatch_PriorityOrder(t *testing.T) {
	mem := store.NewMemory()
	seedContent(mem, "low", "Title", "Body")
	seedContent(mem, "high", "Title", "Body")
	st := &recordingStore{Memory: mem}

	q := newTestQueue(t, st, &stubRefiner{}, nil, 1)
	q.Pause()

	low, err := q.Enqueue(context.Background(), "low", queue.EnqueueOptions{Priority: 0})
	require.NoError(t, err)
	high, err := q.Enqueue(context.Background(), "high", queue.EnqueueOptions{Priority: 10})
	require.NoError(t, err)

	q.Resume()
	waitForTerminal(t, q, low.JobID)
	waitForTerminal(t, q, high.JobID)

	st.mu.Lock()
	defer st.mu.Unlock()
	require.Equal(t, []string{"high", "low"}, st.order)
}

func TestPauseResume(t *testing.T) {
	mem := store.NewMemory()
	seedContent(mem, "c1", "Title", "Body")
	q := newTestQueue(t, mem, &stubRefiner{}, nil, 1)

	q.Pause()
	job, err := q.Enqueue(context.Background(), "c1", queue.EnqueueOptions{})
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	paused, ok := q.GetJob(job.JobID)
	require.True(t, ok)
	require.Equal(t, domain.JobQueued, paused.State, "paused queue must not claim jobs")
	require.True(t, q.Stats().Paused)

	q.Resume()
	done := waitForTerminal(t, q, job.JobID)
	require.Equal(t, domain.JobCompleted, done.State)
	require.False(t, q.Stats().Paused)
}

func TestStats(t *testing.T) {
	mem := store.NewMemory()
	seedContent(mem, "c1", "Title", "Body")
	seedContent(mem, "c2", "Title", "Body")
	q := newTestQueue(t, mem, &stubRefiner{}, nil, 1)

	j1, err := q.Enqueue(context.Background(), "c1", queue.EnqueueOptions{})
	require.NoError(t, err)
	j2, err := q.Enqueue(context.Background(), "c2", queue.EnqueueOptions{})
	require.NoError(t, err)

	waitForTerminal(t, q, j1.JobID)
	waitForTerminal(t, q, j2.JobID)

	stats := q.Stats()
	require.Equal(t, 2, stats.Completed)
	require.Equal(t, 0, stats.Queued)
	require.Equal(t, 0, stats.Active)
	require.Equal(t, 0, stats.Failed)
}

func TestCleanup_PurgesTerminalJobs(t *testing.T) {
	mem := store.NewMemory()
	seedContent(mem, "c1", "Title", "Body")
	q := newTestQueue(t, mem, &stubRefiner{}, nil, 1)

	job, err := q.Enqueue(context.Background(), "c1", queue.EnqueueOptions{})
	require.NoError(t, err)
	waitForTerminal(t, q, job.JobID)

	time.Sleep(10 * time.Millisecond)
	removed := q.Cleanup(time.Millisecond)
	require.Equal(t, 1, removed)

	_, ok := q.GetJob(job.JobID)
	require.False(t, ok)

	// Cleanup never touches non-terminal jobs.
	q.Pause()
	queued, err := q.Enqueue(context.Background(), "c1", queue.EnqueueOptions{})
	require.NoError(t, err)
	require.Equal(t, 0, q.Cleanup(0))
	_, ok = q.GetJob(queued.JobID)
	require.True(t, ok)
}

func TestShutdown_DrainsInFlightJobs(t *testing.T) {
	mem := store.NewMemory()
	seedContent(mem, "c1", "Title", "Body")

	refiner := &stubRefiner{fn: func(llm.RefinePayload) (*llm.Refinement, error) {
		time.Sleep(50 * time.Millisecond)
		return nil, errors.New("unavailable")
	}}
	q := newTestQueue(t, mem, refiner, nil, 1)

	job, err := q.Enqueue(context.Background(), "c1", queue.EnqueueOptions{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		j, ok := q.GetJob(job.JobID)
		return ok && j.State == domain.JobActive
	}, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, q.Shutdown(ctx))

	done, ok := q.GetJob(job.JobID)
	require.True(t, ok)
	require.Equal(t, domain.JobCompleted, done.State, "in-flight job must finish during drain")
}
