package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hypeindex/enhancement/internal/config"
	"github.com/hypeindex/enhancement/internal/domain"
	"github.com/hypeindex/enhancement/internal/heuristic"
	"github.com/hypeindex/enhancement/internal/ratelimit"
	"github.com/hypeindex/enhancement/internal/reporter"
)

type capturingReporter struct {
	mu       sync.Mutex
	attempts []reporter.Attempt
}

func (r *capturingReporter) ReportAttempt(a reporter.Attempt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, a)
}

func (r *capturingReporter) all() []reporter.Attempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]reporter.Attempt(nil), r.attempts...)
}

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string) bool { return false }

func testPayload() RefinePayload {
	return RefinePayload{
		Content: domain.ContentItem{
			ID:    "c1",
			Title: "Revolutionary AI",
			Body:  "amazing breakthrough",
		},
		Baseline: heuristic.Result{HypeScore: 4.3, EthicsScore: 5.0, ImpactTags: []string{}},
	}
}

func newTestClient(t *testing.T, baseURL string, rep reporter.Reporter) *Client {
	t.Helper()

	c := NewClient(config.ScoringConfig{
		BaseURL:    baseURL,
		APIKey:     "test-key",
		Model:      "gpt-4o-mini",
		Timeout:    2 * time.Second,
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   10 * time.Second,
		Multiplier: 2.0,
	}, ratelimit.NewLimiter(time.Minute, 1000), rep, nil)

	// Deterministic jitter (factor 1.0) and no real sleeping.
	c.jitterFn = func() float64 { return 0.5 }
	c.sleepFn = func(context.Context, time.Duration) error { return nil }
	return c
}

func successBody(t *testing.T) []byte {
	t.Helper()

	inner, err := json.Marshal(map[string]any{
		"hype_score":    7.5,
		"ethics_score":  4.0,
		"impact_tags":   []string{"labor"},
		"reality_check": "Mostly marketing claims.",
		"eli5_summary":  "A company says its new AI is great.",
	})
	if err != nil {
		t.Fatal(err)
	}
	outer, err := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": string(inner)}},
		},
		"usage": map[string]any{
			"prompt_tokens":     1000,
			"completion_tokens": 200,
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return outer
}

func TestRefine_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(successBody(t))
	}))
	defer srv.Close()

	rep := &capturingReporter{}
	c := newTestClient(t, srv.URL, rep)

	ref, err := c.Refine(context.Background(), testPayload())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref.HypeScore != 7.5 || ref.EthicsScore != 4.0 {
		t.Errorf("unexpected scores: %+v", ref)
	}
	if ref.RealityCheck == "" || ref.ELI5Summary == "" {
		t.Errorf("expected narrative fields, got %+v", ref)
	}

	wantCost := EstimateCost("gpt-4o-mini", 1000, 200)
	if ref.CostUSD != wantCost {
		t.Errorf("expected cost %v, got %v", wantCost, ref.CostUSD)
	}

	attempts := rep.all()
	if len(attempts) != 1 {
		t.Fatalf("expected 1 reported attempt, got %d", len(attempts))
	}
	if attempts[0].Outcome != reporter.OutcomeSuccess {
		t.Errorf("expected success outcome, got %q", attempts[0].Outcome)
	}
	if attempts[0].CostUSD != wantCost {
		t.Errorf("expected reported cost %v, got %v", wantCost, attempts[0].CostUSD)
	}
}

func TestRefine_RetryableExhaustsRetries(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	rep := &capturingReporter{}
	c := newTestClient(t, srv.URL, rep)

	var delays []time.Duration
	c.sleepFn = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	_, err := c.Refine(context.Background(), testPayload())
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}

	// maxRetries=3 means 4 total attempts.
	if hits != 4 {
		t.Errorf("expected 4 attempts, got %d", hits)
	}
	if len(rep.all()) != 4 {
		t.Errorf("expected 4 reported attempts, got %d", len(rep.all()))
	}

	// With jitter factor pinned to 1.0: 1s, 2s, 4s.
	wantDelays := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(delays) != len(wantDelays) {
		t.Fatalf("expected %d backoff sleeps, got %d", len(wantDelays), len(delays))
	}
	for i, want := range wantDelays {
		if delays[i] != want {
			t.Errorf("delay %d: expected %v, got %v", i, want, delays[i])
		}
	}
}

func TestRefine_TerminalStatusSingleAttempt(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	rep := &capturingReporter{}
	c := newTestClient(t, srv.URL, rep)

	_, err := c.Refine(context.Background(), testPayload())
	if err == nil {
		t.Fatal("expected error")
	}
	if hits != 1 {
		t.Errorf("terminal 4xx must not be retried, got %d attempts", hits)
	}

	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadRequest {
		t.Errorf("expected StatusError 400, got %v", err)
	}
	attempts := rep.all()
	if len(attempts) != 1 || attempts[0].Outcome != reporter.OutcomeTerminal {
		t.Errorf("expected single terminal attempt, got %+v", attempts)
	}
}

func TestRefine_ParseFailureNotRetried(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		fmt.Fprint(w, "this is not json")
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)

	_, err := c.Refine(context.Background(), testPayload())
	if err == nil {
		t.Fatal("expected parse error")
	}
	if hits != 1 {
		t.Errorf("parse failures must not be retried, got %d attempts", hits)
	}

	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if pe.Raw == "" {
		t.Error("parse error should carry truncated raw text")
	}
}

func TestRefine_RateLimitedWithoutAttempt(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer srv.Close()

	rep := &capturingReporter{}
	c := newTestClient(t, srv.URL, rep)
	c.limiter = denyLimiter{}

	_, err := c.Refine(context.Background(), testPayload())
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if hits != 0 {
		t.Errorf("rate-limited call must never reach the server, got %d hits", hits)
	}

	attempts := rep.all()
	if len(attempts) != 1 || attempts[0].Outcome != reporter.OutcomeRateLimited {
		t.Errorf("expected one rate_limited report, got %+v", attempts)
	}
}

func TestRefine_AttemptTimeoutIsRetryable(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	c.timeout = 20 * time.Millisecond

	_, err := c.Refine(context.Background(), testPayload())
	if err == nil {
		t.Fatal("expected error")
	}
	if got := hits.Load(); got != 4 {
		t.Errorf("timeouts should be retried, expected 4 attempts, got %d", got)
	}
}

func TestBackoffDelay_CappedAndMonotonic(t *testing.T) {
	c := newTestClient(t, "http://localhost", nil)

	var prev time.Duration
	for n := 0; n < 8; n++ {
		d := c.backoffDelay(n)
		if d < prev {
			t.Errorf("delay decreased at n=%d: %v < %v", n, d, prev)
		}
		if d > 10*time.Second {
			t.Errorf("delay exceeds cap at n=%d: %v", n, d)
		}
		prev = d
	}

	if got := c.backoffDelay(6); got != 10*time.Second {
		t.Errorf("expected capped delay 10s, got %v", got)
	}
}

func TestBackoffDelay_JitterBounds(t *testing.T) {
	c := newTestClient(t, "http://localhost", nil)

	c.jitterFn = func() float64 { return 0 }
	if got := c.backoffDelay(0); got != 800*time.Millisecond {
		t.Errorf("expected -20%% jitter to give 800ms, got %v", got)
	}

	c.jitterFn = func() float64 { return 0.999999 }
	got := c.backoffDelay(0)
	if got < 1100*time.Millisecond || got > 1200*time.Millisecond {
		t.Errorf("expected +20%% jitter near 1.2s, got %v", got)
	}
}

func TestIsRetryable_Classification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"429", &StatusError{StatusCode: 429}, true},
		{"500", &StatusError{StatusCode: 500}, true},
		{"503", &StatusError{StatusCode: 503}, true},
		{"400", &StatusError{StatusCode: 400}, false},
		{"404", &StatusError{StatusCode: 404}, false},
		{"parse", &ParseError{Raw: "x", Err: errors.New("bad json")}, false},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"wrapped 500", fmt.Errorf("call: %w", &StatusError{StatusCode: 502}), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsRetryable(tc.err); got != tc.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestEstimateCost(t *testing.T) {
	// gpt-4o-mini: $0.15/M input, $0.60/M output.
	got := EstimateCost("gpt-4o-mini", 1_000_000, 1_000_000)
	if got != 0.75 {
		t.Errorf("expected 0.75, got %v", got)
	}

	// Unknown models fall back to the expensive tier.
	unknown := EstimateCost("mystery-model", 1_000_000, 0)
	if unknown != 2.50 {
		t.Errorf("expected fallback pricing 2.50, got %v", unknown)
	}

	if EstimateCost("gpt-4o-mini", 0, 0) != 0 {
		t.Error("zero tokens should cost zero")
	}
}
