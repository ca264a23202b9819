// Package llm wraps the external scoring service behind a retrying,
// rate-limited, cost-accounted call client. The queue depends on this
// package for refinement but must keep working when every call fails:
// refinement is additive, never load-bearing.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hypeindex/enhancement/internal/config"
	"github.com/hypeindex/enhancement/internal/domain"
	"github.com/hypeindex/enhancement/internal/heuristic"
	"github.com/hypeindex/enhancement/internal/logger"
	"github.com/hypeindex/enhancement/internal/ratelimit"
	"github.com/hypeindex/enhancement/internal/reporter"
)

const (
	// DefaultScope is the rate-limit scope used when the caller does not
	// supply one.
	DefaultScope = "global"

	// maxRawDiagnostic bounds how much raw response text is carried inside
	// parse errors.
	maxRawDiagnostic = 512
)

// RefinePayload is one refinement request: the content plus the heuristic
// baseline the external service should improve on.
type RefinePayload struct {
	Content  domain.ContentItem
	Baseline heuristic.Result
	// Scope keys the client-side sliding window, e.g. "global" or
	// "company:<id>". Empty means DefaultScope.
	Scope string
}

// Refinement is a successful response from the scoring service.
type Refinement struct {
	HypeScore    float64  `json:"hype_score"`
	EthicsScore  float64  `json:"ethics_score"`
	ImpactTags   []string `json:"impact_tags"`
	RealityCheck string   `json:"reality_check"`
	ELI5Summary  string   `json:"eli5_summary"`

	Model            string  `json:"-"`
	PromptTokens     int     `json:"-"`
	CompletionTokens int     `json:"-"`
	CostUSD          float64 `json:"-"`
}

// Client calls the external scoring service with retry, backoff, and a
// per-scope sliding-window admission check.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string

	timeout    time.Duration
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	multiplier float64

	limiter  ratelimit.KeyLimiter
	reporter reporter.Reporter
	logger   logger.Logger

	// jitterFn returns a uniform value in [0,1); swapped out in tests.
	jitterFn func() float64
	sleepFn  func(ctx context.Context, d time.Duration) error
}

// NewClient creates a call client from configuration. The limiter must be a
// dedicated instance, never shared with the submission limiter.
func NewClient(cfg config.ScoringConfig, limiter ratelimit.KeyLimiter, rep reporter.Reporter, log logger.Logger) *Client {
	if log == nil {
		log = logger.NewNop()
	}
	return &Client{
		httpClient: &http.Client{
			// The per-attempt context deadline is the real bound; this is a
			// backstop for requests issued without one.
			Timeout: cfg.Timeout + 5*time.Second,
		},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.BaseDelay,
		maxDelay:   cfg.MaxDelay,
		multiplier: cfg.Multiplier,
		limiter:    limiter,
		reporter:   rep,
		logger:     log,
		jitterFn:   rand.Float64,
		sleepFn:    sleepContext,
	}
}

// Refine requests refined scores for the payload's content. It retries
// transient failures up to maxRetries times with exponential backoff and
// returns a terminal error otherwise. The admission window is consulted
// once per call, before the first attempt; retries ride on the admission
// already granted.
func (c *Client) Refine(ctx context.Context, p RefinePayload) (*Refinement, error) {
	scope := p.Scope
	if scope == "" {
		scope = DefaultScope
	}
	requestID := uuid.NewString()

	if c.limiter != nil && !c.limiter.Allow(ctx, scope) {
		reporter.Report(c.reporter, reporter.Attempt{
			RequestID: requestID,
			Scope:     scope,
			Model:     c.model,
			Outcome:   reporter.OutcomeRateLimited,
			Err:       ErrRateLimited,
		})
		return nil, fmt.Errorf("scope %q: %w", scope, ErrRateLimited)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleepFn(ctx, c.backoffDelay(attempt-1)); err != nil {
				return nil, err
			}
		}

		start := time.Now()
		ref, err := c.doAttempt(ctx, p)
		duration := time.Since(start)

		a := reporter.Attempt{
			RequestID: requestID,
			Scope:     scope,
			Model:     c.model,
			Attempt:   attempt,
			Duration:  duration,
		}

		if err == nil {
			a.Outcome = reporter.OutcomeSuccess
			a.PromptTokens = ref.PromptTokens
			a.CompletionTokens = ref.CompletionTokens
			a.CostUSD = ref.CostUSD
			reporter.Report(c.reporter, a)
			return ref, nil
		}

		lastErr = err
		a.Err = err
		if !IsRetryable(err) {
			a.Outcome = reporter.OutcomeTerminal
			reporter.Report(c.reporter, a)
			return nil, err
		}
		a.Outcome = reporter.OutcomeRetryable
		reporter.Report(c.reporter, a)

		c.logger.Warn("scoring attempt failed, will retry",
			logger.String("request_id", requestID),
			logger.Int("attempt", attempt),
			logger.Error(err),
		)
	}

	return nil, fmt.Errorf("scoring call failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

// backoffDelay returns the wait before retry n (0-indexed), capped at
// maxDelay with up to ±20% jitter applied after the cap.
func (c *Client) backoffDelay(n int) time.Duration {
	delay := float64(c.baseDelay)
	for i := 0; i < n; i++ {
		delay *= c.multiplier
	}
	if max := float64(c.maxDelay); delay > max {
		delay = max
	}
	jitter := 1 + (c.jitterFn()*0.4 - 0.2)
	return time.Duration(delay * jitter)
}

func (c *Client) doAttempt(ctx context.Context, p RefinePayload) (*Refinement, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(c.buildRequest(p))
	if err != nil {
		return nil, fmt.Errorf("encoding scoring request: %w", err)
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost,
		c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building scoring request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scoring request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading scoring response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Body:       truncate(string(raw), maxRawDiagnostic),
		}
	}

	return c.parseResponse(raw)
}

func (c *Client) parseResponse(raw []byte) (*Refinement, error) {
	var envelope chatResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, &ParseError{Raw: truncate(string(raw), maxRawDiagnostic), Err: err}
	}
	if len(envelope.Choices) == 0 {
		return nil, &ParseError{
			Raw: truncate(string(raw), maxRawDiagnostic),
			Err: fmt.Errorf("response has no choices"),
		}
	}

	content := envelope.Choices[0].Message.Content
	var ref Refinement
	if err := json.Unmarshal([]byte(content), &ref); err != nil {
		return nil, &ParseError{Raw: truncate(content, maxRawDiagnostic), Err: err}
	}

	ref.Model = c.model
	ref.PromptTokens = envelope.Usage.PromptTokens
	ref.CompletionTokens = envelope.Usage.CompletionTokens
	ref.CostUSD = EstimateCost(c.model, ref.PromptTokens, ref.CompletionTokens)
	return &ref, nil
}

func (c *Client) buildRequest(p RefinePayload) chatRequest {
	var sb strings.Builder
	sb.WriteString("Title: ")
	sb.WriteString(p.Content.Title)
	sb.WriteString("\n\nBody: ")
	sb.WriteString(p.Content.Body)
	if p.Content.CompanyContext != nil {
		fmt.Fprintf(&sb, "\n\nCompany: %s (industry: %s)",
			p.Content.CompanyContext.Name, p.Content.CompanyContext.Industry)
	}
	fmt.Fprintf(&sb, "\n\nBaseline heuristic scores: hype=%.1f ethics=%.1f tags=%s",
		p.Baseline.HypeScore, p.Baseline.EthicsScore, strings.Join(p.Baseline.ImpactTags, ","))

	return chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: sb.String()},
		},
		ResponseFormat: &responseFormat{Type: "json_object"},
		Temperature:    0.2,
	}
}

const systemPrompt = `You rate technology news content for a content-rating platform.
Given a story and baseline heuristic scores, return refined scores as JSON with fields:
hype_score (1-10, how much marketing hype versus substance),
ethics_score (1-10, ethical posture of the company behavior described),
impact_tags (array drawn from: privacy, labor, environment, safety),
reality_check (one paragraph separating claims from evidence),
eli5_summary (one paragraph plain-language summary).`

// Wire types for the scoring service's chat-completion API.

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	Temperature    float64         `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
