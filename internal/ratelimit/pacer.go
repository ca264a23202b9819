package ratelimit

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/hypeindex/enhancement/internal/logger"
)

// Pacer bounds the aggregate rate at which workers start external scoring
// calls. It is a token bucket, not a sliding window: its job is smoothing
// dispatch bursts, while the KeyLimiter implementations enforce hard per-key
// admission limits.
type Pacer struct {
	limiter *rate.Limiter
	logger  logger.Logger
}

// NewPacer creates a pacer admitting rps calls per second with burst equal
// to rps. A nil *Pacer is valid and never blocks.
func NewPacer(rps int, log logger.Logger) *Pacer {
	if rps <= 0 {
		return nil
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Pacer{
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		logger:  log,
	}
}

// Wait blocks until the pacer admits one more call or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil {
		return nil
	}
	if err := p.limiter.Wait(ctx); err != nil {
		p.logger.Warn("dispatch pacer wait failed", logger.Error(err))
		return err
	}
	return nil
}
