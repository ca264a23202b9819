// Package ratelimit provides per-key sliding-window rate limiting.
//
// A window starts at the first request for a key and resets after the
// configured length elapses, rather than rolling continuously. The service
// runs two independent instances: one guarding the enqueue surface and one
// inside the scoring client guarding the external API. They never share
// state because their keys and limits serve different purposes.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// KeyLimiter is the admission interface shared by the in-memory and
// Redis-backed implementations.
type KeyLimiter interface {
	// Allow reports whether one more request for key is admitted in the
	// current window.
	Allow(ctx context.Context, key string) bool
}

type window struct {
	count int
	start time.Time
}

// Limiter is an in-memory sliding-window limiter. Safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window

	windowLen time.Duration
	max       int
	now       func() time.Time
}

// NewLimiter creates a limiter admitting at most max requests per key within
// each window of length windowLen.
func NewLimiter(windowLen time.Duration, max int) *Limiter {
	if windowLen <= 0 {
		windowLen = time.Minute
	}
	if max <= 0 {
		max = 1
	}
	return &Limiter{
		windows:   make(map[string]*window),
		windowLen: windowLen,
		max:       max,
		now:       time.Now,
	}
}

// Allow admits the request if the key has a fresh or expired window, or if
// the post-increment count does not exceed the limit.
func (l *Limiter) Allow(_ context.Context, key string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.windowLen {
		l.windows[key] = &window{count: 1, start: now}
		return true
	}

	w.count++
	return w.count <= l.max
}

// Remaining returns how many requests the key may still make in its current
// window. A key with no window (or an expired one) has the full budget.
func (l *Limiter) Remaining(key string) int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.windowLen {
		return l.max
	}
	if w.count >= l.max {
		return 0
	}
	return l.max - w.count
}

// Prune drops expired windows to bound memory. Call periodically from a
// maintenance loop.
func (l *Limiter) Prune() {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, w := range l.windows {
		if now.Sub(w.start) >= l.windowLen {
			delete(l.windows, key)
		}
	}
}
