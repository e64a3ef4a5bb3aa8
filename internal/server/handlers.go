package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/haskel/bore/internal/generator"
	"github.com/haskel/bore/internal/record"
	"github.com/haskel/bore/internal/space"
	"github.com/haskel/bore/internal/storage"
)

type InfoResponse struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// SuggestRequest is the body of POST /v1/suggest. An empty body asks for a
// configuration at the maximum budget.
type SuggestRequest struct {
	Budget *float64 `json:"budget,omitempty"`
}

type SuggestResponse struct {
	JobID  string         `json:"job_id"`
	Config space.Config   `json:"config"`
	Budget float64        `json:"budget"`
	Info   generator.Info `json:"info"`
}

// ObserveRequest reports the outcome of an evaluation. Config and budget may
// be omitted when job_id names a pending suggestion.
type ObserveRequest struct {
	JobID  string         `json:"job_id,omitempty"`
	Config space.Config   `json:"config,omitempty"`
	Budget *float64       `json:"budget,omitempty"`
	Loss   *float64       `json:"loss,omitempty"`
	Failed bool           `json:"failed,omitempty"`
	Info   map[string]any `json:"info,omitempty"`
}

type ObserveResponse struct {
	JobID     string `json:"job_id,omitempty"`
	Recorded  bool   `json:"recorded"`
	Persisted bool   `json:"persisted"`
	Size      int    `json:"size"`
}

type PendingJob struct {
	JobID  string       `json:"job_id"`
	Config space.Config `json:"config"`
	Budget float64      `json:"budget"`
	Issued time.Time    `json:"issued"`
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	resp := InfoResponse{
		Name:    "bore",
		Version: s.version,
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status: "ok",
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	var req SuggestRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	budget := s.config.Hyperband.MaxBudget
	if req.Budget != nil {
		budget = *req.Budget
	}
	if !(budget > 0) || math.IsInf(budget, 1) {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("budget must be positive and finite, got %v", budget))
		return
	}

	s.mu.Lock()
	suggestion, err := s.gen.GetConfig(r.Context(), budget)
	if err != nil {
		s.mu.Unlock()
		s.logger.Error("failed to suggest configuration", "budget", budget, "error", err)
		s.recordError("suggest")
		s.writeError(w, http.StatusInternalServerError, "failed to suggest configuration")
		return
	}

	jobID := uuid.NewString()
	s.pending[jobID] = pendingJob{
		Config: suggestion.Config,
		Budget: budget,
		Issued: time.Now(),
	}
	s.suggested++
	s.mu.Unlock()

	s.logger.Debug("configuration suggested",
		"job_id", jobID,
		"budget", budget,
		"source", suggestion.Info.Source,
	)

	s.writeJSON(w, http.StatusOK, SuggestResponse{
		JobID:  jobID,
		Config: suggestion.Config,
		Budget: budget,
		Info:   suggestion.Info,
	})
}

func (s *Server) handleObserve(w http.ResponseWriter, r *http.Request) {
	var req ObserveRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Loss == nil && !req.Failed {
		s.writeError(w, http.StatusBadRequest, "loss is required unless failed is set")
		return
	}

	job, size, status, msg := s.applyObservation(req)
	if status != http.StatusOK {
		s.writeError(w, status, msg)
		return
	}

	resp := ObserveResponse{
		JobID:    job.ID,
		Recorded: true,
		Size:     size,
	}

	// Persisted outside mu so a slow store does not stall suggestions.
	if s.store != nil {
		entry := storage.FromJob(s.runID, job, time.Now())
		if err := s.store.Append(r.Context(), entry); err != nil {
			s.logger.Error("failed to persist observation", "job_id", job.ID, "error", err)
			s.recordError("store")
		} else {
			resp.Persisted = true
		}
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// applyObservation resolves the job against the pending set and records it
// in the generator. It returns the record size after the update, or a
// non-200 status with a message.
func (s *Server) applyObservation(req ObserveRequest) (generator.Job, int, int, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := generator.Job{ID: req.JobID, Config: req.Config}
	if req.Budget != nil {
		job.Budget = *req.Budget
	}

	pending, known := s.pending[req.JobID]
	if known {
		if job.Config == nil {
			job.Config = pending.Config
		}
		if req.Budget == nil {
			job.Budget = pending.Budget
		}
	}

	if job.Config == nil {
		return job, 0, http.StatusBadRequest, "config is required for an unknown job"
	}
	if req.Budget == nil && !known {
		return job, 0, http.StatusBadRequest, "budget is required for an unknown job"
	}
	if !req.Failed {
		job.Result = &generator.JobResult{Loss: *req.Loss, Info: req.Info}
	}

	if err := s.gen.NewResult(job); err != nil {
		if errors.Is(err, record.ErrInvalidParameter) || errors.Is(err, record.ErrInvalidBudget) {
			return job, 0, http.StatusBadRequest, err.Error()
		}
		s.logger.Error("failed to record observation", "job_id", job.ID, "error", err)
		s.recordError("observe")
		return job, 0, http.StatusInternalServerError, "failed to record observation"
	}
	if known {
		delete(s.pending, req.JobID)
	}
	s.observed++
	return job, s.recordSize(), http.StatusOK, ""
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	view, err := newRecordView(s.gen)
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("failed to build record view", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read record")
		return
	}

	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	jobs := make([]PendingJob, 0, len(s.pending))
	for id, p := range s.pending {
		jobs = append(jobs, PendingJob{JobID: id, Config: p.Config, Budget: p.Budget, Issued: p.Issued})
	}
	s.mu.Unlock()

	sortPending(jobs)
	s.writeJSON(w, http.StatusOK, jobs)
}

// decodeBody decodes a JSON body, accepting an empty one.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (s *Server) recordError(component string) {
	if s.metrics != nil {
		s.metrics.RecordError(component)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, ErrorResponse{Error: msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}
