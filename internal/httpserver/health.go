package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Health status values.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

type namedCheck struct {
	name string
	fn   func(ctx context.Context) error
}

// Checker runs named dependency checks for the readiness endpoint.
type Checker struct {
	mu     sync.RWMutex
	checks []namedCheck
}

// NewChecker creates an empty health checker.
func NewChecker() *Checker {
	return &Checker{}
}

// Register adds a named dependency check.
func (c *Checker) Register(name string, fn func(ctx context.Context) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = append(c.checks, namedCheck{name: name, fn: fn})
}

// Check runs every registered check and returns the aggregate status plus
// per-dependency results.
func (c *Checker) Check(ctx context.Context) (Status, map[string]string) {
	c.mu.RLock()
	checks := make([]namedCheck, len(c.checks))
	copy(checks, c.checks)
	c.mu.RUnlock()

	results := make(map[string]string, len(checks))
	status := StatusHealthy
	for _, check := range checks {
		if err := check.fn(ctx); err != nil {
			results[check.name] = fmt.Sprintf("error: %v", err)
			status = StatusUnhealthy
		} else {
			results[check.name] = "ok"
		}
	}
	return status, results
}

// GinHandler returns the readiness handler.
func (c *Checker) GinHandler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		checkCtx, cancel := context.WithTimeout(ctx.Request.Context(), 5*time.Second)
		defer cancel()

		status, results := c.Check(checkCtx)
		code := http.StatusOK
		if status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		ctx.JSON(code, gin.H{
			"status":    status,
			"checks":    results,
			"timestamp": time.Now().Format(time.RFC3339),
		})
	}
}

// LivenessHandler reports process liveness only.
func LivenessHandler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "alive"})
	}
}

// RegisterHealthRoutes registers the health endpoints on a router.
func RegisterHealthRoutes(router *gin.Engine, checker *Checker) {
	router.GET("/health", checker.GinHandler())
	router.GET("/health/live", LivenessHandler())
	router.GET("/health/ready", checker.GinHandler())
}
