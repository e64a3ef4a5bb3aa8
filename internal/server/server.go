// Package server exposes a generator over HTTP as an ask/tell service:
// clients request a configuration, evaluate it, and report the loss back.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/haskel/bore/internal/config"
	"github.com/haskel/bore/internal/generator"
	"github.com/haskel/bore/internal/metrics"
	"github.com/haskel/bore/internal/monitor"
	"github.com/haskel/bore/internal/server/middleware"
	"github.com/haskel/bore/internal/space"
	"github.com/haskel/bore/internal/storage"
)

// Generator is the suggestion controller behind the service.
type Generator interface {
	generator.ConfigGenerator
	Space() *space.Space
	Options() generator.Options
	Rebuild()
	Model() generator.Model
}

// Options holds the optional collaborators of a server.
type Options struct {
	// Store receives every observation. Nil disables persistence.
	Store storage.Store
	// Models saves the classifier weights on shutdown. Nil disables it.
	Models  *storage.ModelStorage
	Metrics *metrics.Metrics
	// RunID tags persisted entries.
	RunID string
	// Host adds resource usage to the debug status.
	Host *monitor.Sampler
}

type Server struct {
	httpServer *http.Server
	config     *config.Config
	logger     *slog.Logger
	version    string
	authConfig *middleware.AuthConfig
	started    time.Time

	store   storage.Store
	models  *storage.ModelStorage
	metrics *metrics.Metrics
	runID   string
	host    *monitor.Sampler

	// mu serializes access to the generator, which is not safe for
	// concurrent use, and guards the fields below.
	mu        sync.Mutex
	gen       Generator
	pending   map[string]pendingJob
	suggested int
	observed  int
}

// pendingJob is a suggestion whose result has not been reported yet.
type pendingJob struct {
	Config space.Config
	Budget float64
	Issued time.Time
}

func New(cfg *config.Config, gen Generator, opts Options, logger *slog.Logger, version string) *Server {
	authConfig := &middleware.AuthConfig{
		Enabled:  cfg.Auth.Enabled,
		User:     cfg.Auth.User,
		Password: cfg.Auth.Password,
	}

	s := &Server{
		config:     cfg,
		logger:     logger,
		version:    version,
		authConfig: authConfig,
		started:    time.Now(),
		store:      opts.Store,
		models:     opts.Models,
		metrics:    opts.Metrics,
		runID:      opts.RunID,
		host:       opts.Host,
		gen:        gen,
		pending:    make(map[string]pendingJob),
	}

	mux := s.setupRoutes()

	handler := middleware.Chain(
		mux,
		middleware.RequestID(),
		middleware.Recovery(logger),
		middleware.Logging(logger),
		middleware.SecurityHeaders(),
		middleware.RateLimit(&middleware.RateLimitConfig{
			Enabled:           cfg.Server.RateLimit.Enabled,
			RequestsPerSecond: cfg.Server.RateLimit.RequestsPerSecond,
			Burst:             cfg.Server.RateLimit.Burst,
			PerIP:             cfg.Server.RateLimit.PerIP,
		}),
		middleware.Auth(authConfig, "/health"), // Exclude /health from auth
		middleware.MaxBody(cfg.Server.MaxBodyBytes),
	)

	s.httpServer = &http.Server{
		Addr:        cfg.Addr(),
		Handler:     handler,
		ReadTimeout: 10 * time.Second,
		// Suggestions fit the classifier inside the request.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ReloadConfig applies settings that can change at runtime. Only the
// credentials are reloaded; everything else requires a restart.
func (s *Server) ReloadConfig(cfg *config.Config) {
	s.logger.Info("reloading configuration")

	s.authConfig.Update(cfg.Auth.Enabled, cfg.Auth.User, cfg.Auth.Password)

	s.logger.Info("configuration reloaded",
		"auth_enabled", cfg.Auth.Enabled,
	)
}

func (s *Server) Start() error {
	s.logger.Info("server starting",
		"addr", s.httpServer.Addr,
	)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests, waits for in-flight ones and saves the
// classifier weights when a model store is configured.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	err := s.httpServer.Shutdown(ctx)

	if s.models != nil {
		s.mu.Lock()
		model := s.gen.Model()
		s.mu.Unlock()

		if model != nil {
			if saveErr := s.models.SaveModel(model); saveErr != nil {
				s.logger.Error("failed to save classifier", "error", saveErr)
				err = errors.Join(err, saveErr)
			}
		}
	}

	return err
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
