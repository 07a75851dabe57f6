package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/crosslister/listing-worker/internal/archive"
	appcfg "github.com/crosslister/listing-worker/internal/config"
	"github.com/crosslister/listing-worker/internal/jobs"
	"github.com/crosslister/listing-worker/internal/metrics"
	"github.com/crosslister/listing-worker/internal/notify"
	"github.com/crosslister/listing-worker/internal/optimize"
	optimizermock "github.com/crosslister/listing-worker/internal/optimize/mock"
	"github.com/crosslister/listing-worker/internal/optimize/openrouter"
	"github.com/crosslister/listing-worker/internal/poster"
	"github.com/crosslister/listing-worker/internal/poster/agent"
	postermock "github.com/crosslister/listing-worker/internal/poster/mock"
	"github.com/crosslister/listing-worker/internal/processor"
	"github.com/crosslister/listing-worker/internal/queue"
	"github.com/crosslister/listing-worker/internal/retry"
	"github.com/crosslister/listing-worker/internal/sessions"
	sessionapi "github.com/crosslister/listing-worker/internal/sessions/api"
	sessionstatic "github.com/crosslister/listing-worker/internal/sessions/static"
	"github.com/crosslister/listing-worker/internal/status"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := appcfg.Load("")
	if err != nil {
		fatal(logger, "load config", err)
	}
	logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(cfg.Worker.LogLevel)}))
	slog.SetDefault(logger)

	// Redis (queue, checkpoints, status, metrics)
	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		fatal(logger, "parse redis url", err)
	}
	client := redis.NewClient(redisOpts)
	defer func() { _ = client.Close() }()
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := client.Ping(pingCtx).Err(); err != nil {
		fatal(logger, "redis connect", err)
	}

	checkpoints := jobs.NewRedisCheckpointStore(client, logger, cfg.Redis.CheckpointTTL)

	// Content optimizer
	var optimizer optimize.Optimizer
	switch cfg.Optimizer.Provider {
	case "openrouter":
		optimizer = openrouter.New(cfg.Optimizer.OpenRouter)
	case "mock":
		optimizer = optimizermock.New(cfg.Optimizer.Mock)
	default:
		logger.Error("unsupported optimizer provider", "provider", cfg.Optimizer.Provider)
		os.Exit(1)
	}

	// Session provider
	var sessionProvider sessions.Provider
	switch cfg.Sessions.Provider {
	case "api":
		sessionProvider = sessionapi.New(cfg.Sessions.API)
	case "static":
		sessionProvider, err = sessionstatic.New(cfg.Sessions.Static)
		if err != nil {
			fatal(logger, "init static sessions", err)
		}
	default:
		logger.Error("unsupported sessions provider", "provider", cfg.Sessions.Provider)
		os.Exit(1)
	}

	// Posters, one per configured target, resolved once at startup
	reg := poster.NewRegistry()
	for _, target := range cfg.Worker.Targets {
		switch cfg.Poster.Provider {
		case "agent":
			p, err := agent.New(target, cfg.Poster.Agent)
			if err != nil {
				fatal(logger, "init agent poster", err)
			}
			reg.Add(p)
		case "mock":
			reg.Add(postermock.New(target, cfg.Poster.Mock))
		default:
			logger.Error("unsupported poster provider", "provider", cfg.Poster.Provider)
			os.Exit(1)
		}
	}

	retryPolicy := retry.New(cfg.Retry.Attempts, cfg.Retry.BaseDelay, cfg.Retry.MaxDelay)
	proc := processor.New(logger, checkpoints, optimizer, sessionProvider, reg, retryPolicy, cfg.Poster.PostTimeout)

	consumer := &queue.Consumer{
		Log:     logger,
		Source:  queue.NewRedisQueue(client, logger, cfg.Redis),
		Handler: proc,
		Status:  status.NewRecorder(client, logger, cfg.Redis.StatusTTL),
		Metrics: metrics.NewCollector(client, logger),

		ShutdownGrace: cfg.Worker.ShutdownGrace,
	}
	if cfg.Notify.Enabled {
		consumer.Notify = notify.New(logger, cfg.Notify)
	}
	if cfg.Archive.DatabasePath != "" {
		store, err := archive.NewStore(cfg.Archive.DatabasePath)
		if err != nil {
			fatal(logger, "open archive", err)
		}
		defer func() { _ = store.Close() }()
		consumer.Archive = store
	}

	logger.Info("listing worker starting",
		"queue", cfg.Redis.QueueKey,
		"targets", cfg.Worker.Targets,
		"optimizer", cfg.Optimizer.Provider,
		"poster", cfg.Poster.Provider)

	rootCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := consumer.Run(rootCtx); err != nil {
		fatal(logger, "worker crashed", err)
	}
	logger.Info("worker stopped")
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "err", err)
	os.Exit(1)
}
