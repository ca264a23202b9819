// Package bootstrap wires the enhancement service together: configuration,
// logging, persistence, rate limiters, the scoring client, the queue, and
// the HTTP surface.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/hypeindex/enhancement/internal/api"
	"github.com/hypeindex/enhancement/internal/config"
	"github.com/hypeindex/enhancement/internal/heuristic"
	"github.com/hypeindex/enhancement/internal/httpserver"
	"github.com/hypeindex/enhancement/internal/llm"
	"github.com/hypeindex/enhancement/internal/logger"
	"github.com/hypeindex/enhancement/internal/queue"
	"github.com/hypeindex/enhancement/internal/ratelimit"
	"github.com/hypeindex/enhancement/internal/reporter"
	"github.com/hypeindex/enhancement/internal/store"
	"github.com/hypeindex/enhancement/internal/telemetry"
)

const drainTimeout = 30 * time.Second

// App holds the wired service.
type App struct {
	Config    *config.Config
	Logger    logger.Logger
	Telemetry *telemetry.Provider
	Store     *store.Postgres
	Redis     *redis.Client
	Queue     *queue.Queue
	Router    *gin.Engine
}

// New loads configuration and wires every component. The queue is not yet
// started; Run starts it together with the HTTP server.
func New(configPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	log := logger.Must(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Development: cfg.Service.Debug,
	})

	tel := telemetry.NewProvider()

	pg, err := store.NewPostgres(cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("setting up store: %w", err)
	}

	var redisClient *redis.Client
	var submitLimiter ratelimit.KeyLimiter
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		submitLimiter = ratelimit.NewRedisLimiter(redisClient, "enhancement:submit",
			cfg.Submission.Window, cfg.Submission.MaxRequests, log)
	} else {
		submitLimiter = ratelimit.NewLimiter(cfg.Submission.Window, cfg.Submission.MaxRequests)
	}

	// The call-client window is always process-local: it bounds what this
	// process's worker pool sends to the paid API.
	callLimiter := ratelimit.NewLimiter(cfg.Scoring.RateWindow, cfg.Scoring.RateMaxCalls)

	rep := reporter.NewMulti(
		reporter.NewConsole(log.With(logger.String("component", "scoring"))),
		reporter.NewMetrics(tel),
	)

	client := llm.NewClient(cfg.Scoring, callLimiter, rep, log)
	scorer := heuristic.NewScorer()
	pacer := ratelimit.NewPacer(cfg.Queue.DispatchRPS, log)

	q, err := queue.New(cfg.Queue, queue.Deps{
		Store:     pg,
		Scorer:    scorer,
		Refiner:   client,
		Limiter:   submitLimiter,
		Pacer:     pacer,
		Telemetry: tel,
		Logger:    log.With(logger.String("component", "queue")),
	})
	if err != nil {
		return nil, fmt.Errorf("setting up queue: %w", err)
	}

	checker := httpserver.NewChecker()
	checker.Register("postgres", pg.Ping)
	if redisClient != nil {
		checker.Register("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	handler := api.NewHandler(q, scorer, cfg.Queue.JobRetention, log)
	router := api.NewRouter(handler, checker, tel, cfg.Auth.JWTSecret, cfg.Service.Debug, log)

	return &App{
		Config:    cfg,
		Logger:    log,
		Telemetry: tel,
		Store:     pg,
		Redis:     redisClient,
		Queue:     q,
		Router:    router,
	}, nil
}

// Run starts the queue and the HTTP server, blocks until shutdown, then
// drains in-flight jobs and releases resources.
func (a *App) Run(ctx context.Context) error {
	a.Queue.Start()

	srv := httpserver.New(fmt.Sprintf(":%d", a.Config.Service.Port), a.Router, a.Logger)
	serveErr := srv.Run(ctx)

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := a.Queue.Shutdown(drainCtx); err != nil {
		a.Logger.Warn("queue drain incomplete", logger.Error(err))
	}

	if err := a.Store.Close(); err != nil {
		a.Logger.Warn("closing store", logger.Error(err))
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("closing redis", logger.Error(err))
		}
	}
	_ = a.Logger.Sync()

	return serveErr
}
