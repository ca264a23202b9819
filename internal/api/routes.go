package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hypeindex/enhancement/internal/httpserver"
	"github.com/hypeindex/enhancement/internal/jwtauth"
	"github.com/hypeindex/enhancement/internal/logger"
	"github.com/hypeindex/enhancement/internal/telemetry"
)

// NewRouter builds the gin engine: health and metrics are public, the
// /api/v1 surface sits behind JWT auth when a secret is configured.
func NewRouter(handler *Handler, checker *httpserver.Checker, tel *telemetry.Provider, jwtSecret string, debug bool, log logger.Logger) *gin.Engine {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(log))

	httpserver.RegisterHealthRoutes(router, checker)
	if tel != nil {
		router.GET("/metrics", gin.WrapH(tel.Handler()))
	}

	v1 := router.Group("/api/v1")
	v1.Use(jwtauth.Middleware(jwtSecret))

	enhancements := v1.Group("/enhancements")
	enhancements.POST("", handler.Enqueue)       // POST /api/v1/enhancements
	enhancements.GET("/:job_id", handler.GetJob) // GET  /api/v1/enhancements/:job_id

	v1.POST("/contents/:content_id/rescore", handler.Rescore) // POST /api/v1/contents/:content_id/rescore

	v1.POST("/score", handler.Score) // POST /api/v1/score
	v1.GET("/stats", handler.Stats)  // GET  /api/v1/stats

	queueGroup := v1.Group("/queue")
	queueGroup.POST("/pause", handler.Pause)     // POST /api/v1/queue/pause
	queueGroup.POST("/resume", handler.Resume)   // POST /api/v1/queue/resume
	queueGroup.POST("/cleanup", handler.Cleanup) // POST /api/v1/queue/cleanup

	return router
}

// requestLogger logs each request with method, path, status, and duration.
func requestLogger(log logger.Logger) gin.HandlerFunc {
	if log == nil {
		log = logger.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []logger.Field{
			logger.String("method", c.Request.Method),
			logger.String("path", c.FullPath()),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("duration", time.Since(start)),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			log.Error("request", fields...)
			return
		}
		log.Info("request", fields...)
	}
}
