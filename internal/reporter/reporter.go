// Package reporter publishes per-attempt telemetry for external scoring
// calls. Reporting is best-effort: a panicking or slow reporter must never
// fail or block the call it is describing.
package reporter

import (
	"time"

	"github.com/hypeindex/enhancement/internal/logger"
	"github.com/hypeindex/enhancement/internal/telemetry"
)

// Attempt outcomes.
const (
	OutcomeSuccess     = "success"
	OutcomeRetryable   = "retryable_error"
	OutcomeTerminal    = "terminal_error"
	OutcomeRateLimited = "rate_limited"
)

// Attempt describes one attempt of one external scoring call.
type Attempt struct {
	RequestID        string
	Scope            string
	Model            string
	Attempt          int
	Duration         time.Duration
	PromptTokens     int
	CompletionTokens int
	CostUSD          float64
	Outcome          string
	Err              error
}

// Reporter receives attempt reports. Implementations must be safe for
// concurrent use.
type Reporter interface {
	ReportAttempt(a Attempt)
}

// Console logs every attempt through the structured logger.
type Console struct {
	logger logger.Logger
}

// NewConsole creates a logging reporter.
func NewConsole(log logger.Logger) *Console {
	if log == nil {
		log = logger.NewNop()
	}
	return &Console{logger: log}
}

func (c *Console) ReportAttempt(a Attempt) {
	fields := []logger.Field{
		logger.String("request_id", a.RequestID),
		logger.String("scope", a.Scope),
		logger.String("model", a.Model),
		logger.Int("attempt", a.Attempt),
		logger.Duration("duration", a.Duration),
		logger.String("outcome", a.Outcome),
	}
	if a.CostUSD > 0 {
		fields = append(fields,
			logger.Int("prompt_tokens", a.PromptTokens),
			logger.Int("completion_tokens", a.CompletionTokens),
			logger.Float64("cost_usd", a.CostUSD),
		)
	}
	if a.Err != nil {
		fields = append(fields, logger.Error(a.Err))
		c.logger.Warn("scoring attempt", fields...)
		return
	}
	c.logger.Info("scoring attempt", fields...)
}

// Metrics feeds attempts into the Prometheus metrics.
type Metrics struct {
	telemetry *telemetry.Provider
}

// NewMetrics creates a metrics reporter.
func NewMetrics(tel *telemetry.Provider) *Metrics {
	return &Metrics{telemetry: tel}
}

func (m *Metrics) ReportAttempt(a Attempt) {
	if m.telemetry == nil {
		return
	}
	m.telemetry.RecordScoringAttempt(a.Outcome, a.Duration, a.CostUSD)
}

// NoOp discards all reports.
type NoOp struct{}

func NewNoOp() *NoOp { return &NoOp{} }

func (*NoOp) ReportAttempt(Attempt) {}

// Multi fans out each report to several reporters.
type Multi struct {
	reporters []Reporter
}

// NewMulti creates a fan-out reporter. Nil entries are dropped.
func NewMulti(reporters ...Reporter) *Multi {
	kept := make([]Reporter, 0, len(reporters))
	for _, r := range reporters {
		if r != nil {
			kept = append(kept, r)
		}
	}
	return &Multi{reporters: kept}
}

func (m *Multi) ReportAttempt(a Attempt) {
	for _, r := range m.reporters {
		// Isolated per reporter so one panicking sink cannot starve the rest.
		Report(r, a)
	}
}

// Report delivers a to r, swallowing nil reporters and panics. Callers on
// the request path should always go through Report rather than calling
// ReportAttempt directly.
func Report(r Reporter, a Attempt) {
	if r == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	r.ReportAttempt(a)
}
