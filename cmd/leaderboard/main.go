package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/aoisupersix/strava-leaderboard-enhanced/internal/api"
	"github.com/aoisupersix/strava-leaderboard-enhanced/internal/config"
	"github.com/aoisupersix/strava-leaderboard-enhanced/internal/fetch"
	"github.com/aoisupersix/strava-leaderboard-enhanced/internal/monitoring"
	"github.com/aoisupersix/strava-leaderboard-enhanced/internal/session"
	"github.com/aoisupersix/strava-leaderboard-enhanced/internal/storage"
	"github.com/aoisupersix/strava-leaderboard-enhanced/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("could not load config: " + err.Error())
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		panic("could not initialize logger: " + err.Error())
	}
	defer log.Sync()

	// Optional storage layer. The service works without either store; they
	// only add page caching and snapshot persistence.
	var pgStore *storage.PostgresStore
	if cfg.PostgresURL != "" {
		pgStore, err = storage.NewPostgresStore(cfg.PostgresURL)
		if err != nil {
			log.Fatal("failed to connect to postgres", zap.Error(err))
		}
		defer pgStore.Close()
	}
	var redisStore *storage.RedisStore
	if cfg.RedisAddr != "" {
		redisStore = storage.NewRedisStore(cfg.RedisAddr, cfg.PageCacheTTL())
	}

	metrics := monitoring.NewMetrics()
	fetchTimeout := time.Duration(cfg.FetchTimeout) * time.Second
	client := fetch.NewClient(fetchTimeout, log)

	deps := session.Deps{
		Loader:  client,
		Fetcher: client,
		Metrics: metrics,
		Logger:  log,
		Config:  cfg,
	}
	if cfg.RenderJS {
		deps.Renderer = fetch.NewRenderer(fetchTimeout, log)
	}
	if redisStore != nil {
		deps.Cache = redisStore
	}
	if pgStore != nil {
		deps.Snapshots = pgStore
	}
	sessions := session.NewManager(deps)

	server := api.NewServer(cfg, sessions, pgStore, redisStore, metrics, log)

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal("could not start server", zap.Error(err))
		}
	}()

	log.Info("server started", zap.String("port", cfg.ServerPort))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("server forced to shutdown", zap.Error(err))
	}

	log.Info("server exiting")
}
