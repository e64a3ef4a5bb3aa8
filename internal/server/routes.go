package server

import (
	"net/http"
	"net/http/pprof"

	"github.com/haskel/bore/internal/server/middleware"
)

func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /", s.handleInfo)
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /v1/suggest", s.handleSuggest)
	mux.HandleFunc("POST /v1/observe", s.handleObserve)
	mux.HandleFunc("GET /v1/record", s.handleRecord)
	mux.HandleFunc("GET /v1/pending", s.handlePending)

	if s.metrics != nil && s.config.Metrics.Enabled {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	// Setup debug routes with separate authentication
	s.setupDebugRoutes(mux)

	return mux
}

// setupDebugRoutes configures debug and profiling endpoints with authentication.
func (s *Server) setupDebugRoutes(mux *http.ServeMux) {
	if !s.config.Debug.Enabled {
		return
	}

	debugAuth := middleware.DebugAuth(&middleware.DebugAuthConfig{
		Token:              s.config.Debug.Auth.Token,
		FallbackAuthConfig: s.authConfig,
	})

	s.logger.Warn("debug mode enabled - debug endpoints require authentication")

	mux.Handle("GET /debug/status", debugAuth(http.HandlerFunc(s.handleDebugStatus)))
	mux.Handle("POST /debug/rebuild", debugAuth(http.HandlerFunc(s.handleDebugRebuild)))

	mux.Handle("GET /debug/pprof/{$}", debugAuth(http.HandlerFunc(pprof.Index)))
	mux.Handle("GET /debug/pprof/cmdline", debugAuth(http.HandlerFunc(pprof.Cmdline)))
	mux.Handle("GET /debug/pprof/profile", debugAuth(http.HandlerFunc(pprof.Profile)))
	mux.Handle("GET /debug/pprof/symbol", debugAuth(http.HandlerFunc(pprof.Symbol)))
	mux.Handle("POST /debug/pprof/symbol", debugAuth(http.HandlerFunc(pprof.Symbol)))
	mux.Handle("GET /debug/pprof/trace", debugAuth(http.HandlerFunc(pprof.Trace)))
	// Named profiles: heap, goroutine, allocs, block, mutex, threadcreate.
	mux.Handle("GET /debug/pprof/{name}", debugAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pprof.Handler(r.PathValue("name")).ServeHTTP(w, r)
	})))
}
