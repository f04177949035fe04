package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/aoisupersix/strava-leaderboard-enhanced/internal/config"
	"github.com/aoisupersix/strava-leaderboard-enhanced/internal/monitoring"
	"github.com/aoisupersix/strava-leaderboard-enhanced/internal/session"
	"github.com/aoisupersix/strava-leaderboard-enhanced/internal/storage"
)

// Server holds the dependencies for the HTTP server. The postgres and redis
// stores are optional and reported as disabled by the health check when nil.
type Server struct {
	config     *config.Config
	router     http.Handler
	httpServer *http.Server
	sessions   *session.Manager
	pgStore    *storage.PostgresStore
	redisStore *storage.RedisStore
	metrics    *monitoring.Metrics
	logger     *zap.Logger
}

func NewServer(cfg *config.Config, sm *session.Manager, ps *storage.PostgresStore, rs *storage.RedisStore, m *monitoring.Metrics, l *zap.Logger) *Server {
	s := &Server{
		config:     cfg,
		sessions:   sm,
		pgStore:    ps,
		redisStore: rs,
		metrics:    m,
		logger:     l,
	}
	s.router = s.setupRouter()
	return s
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%s", s.config.ServerPort),
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
