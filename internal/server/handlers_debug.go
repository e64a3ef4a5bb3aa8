package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/haskel/bore/internal/generator"
	"github.com/haskel/bore/internal/monitor"
)

// DebugStatus is the response of GET /debug/status.
type DebugStatus struct {
	Uptime     string            `json:"uptime"`
	Goroutines int               `json:"goroutines"`
	Suggested  int               `json:"suggested"`
	Observed   int               `json:"observed"`
	Pending    int               `json:"pending"`
	RecordSize int               `json:"record_size"`
	HasModel   bool              `json:"has_model"`
	Options    generator.Options `json:"options"`
	Host       *monitor.State    `json:"host,omitempty"`
}

// handleDebugStatus handles GET /debug/status.
func (s *Server) handleDebugStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	resp := DebugStatus{
		Uptime:     time.Since(s.started).Round(time.Second).String(),
		Goroutines: runtime.NumGoroutine(),
		Suggested:  s.suggested,
		Observed:   s.observed,
		Pending:    len(s.pending),
		RecordSize: s.recordSize(),
		HasModel:   s.gen.Model() != nil,
		Options:    s.gen.Options(),
	}
	s.mu.Unlock()

	if s.host != nil {
		resp.Host = s.host.State()
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// handleDebugRebuild handles POST /debug/rebuild.
// Replaces the classifier with freshly initialized weights; the record is kept.
func (s *Server) handleDebugRebuild(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.gen.Rebuild()
	s.mu.Unlock()

	s.logger.Info("classifier rebuilt via debug endpoint")

	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
