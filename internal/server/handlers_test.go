package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/haskel/bore/internal/classifier"
	"github.com/haskel/bore/internal/config"
	"github.com/haskel/bore/internal/generator"
	"github.com/haskel/bore/internal/metrics"
	"github.com/haskel/bore/internal/monitor"
	"github.com/haskel/bore/internal/space"
	"github.com/haskel/bore/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testSpace(t *testing.T) *space.Space {
	t.Helper()
	sp, err := space.New([]space.Parameter{
		{Name: "x", Type: space.TypeFloat, Lower: 0, Upper: 1},
	})
	if err != nil {
		t.Fatalf("space.New failed: %v", err)
	}
	return sp
}

func testGeneratorOptions() (generator.Options, classifier.Options) {
	opts := generator.DefaultOptions()
	opts.NumRandomInit = 3
	opts.RandomRate = 0
	opts.NumStarts = 2
	opts.NumEpochs = 10
	opts.Seed = 1

	clfOpts := classifier.DefaultOptions(0)
	clfOpts.NumUnits = 4
	clfOpts.Seed = 1
	return opts, clfOpts
}

func testRatio(t *testing.T) *generator.RatioEstimator {
	t.Helper()
	opts, clfOpts := testGeneratorOptions()
	g, err := generator.New(testSpace(t), opts, clfOpts, testLogger())
	if err != nil {
		t.Fatalf("generator.New failed: %v", err)
	}
	return g
}

func testServer(t *testing.T) *Server {
	return testServerWith(t, config.Default(), testRatio(t), Options{})
}

func testServerWith(t *testing.T, cfg *config.Config, gen Generator, opts Options) *Server {
	t.Helper()
	return New(cfg, gen, opts, testLogger(), "0.1.0-test")
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return v
}

func suggest(t *testing.T, srv *Server, body string) SuggestResponse {
	t.Helper()
	w := do(t, srv, http.MethodPost, "/v1/suggest", body)
	if w.Code != http.StatusOK {
		t.Fatalf("suggest: expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	return decode[SuggestResponse](t, w)
}

func TestHandleInfo(t *testing.T) {
	srv := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	srv.handleInfo(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	resp := decode[InfoResponse](t, w)
	if resp.Name != "bore" {
		t.Errorf("expected name 'bore', got %s", resp.Name)
	}
	if resp.Version != "0.1.0-test" {
		t.Errorf("expected version '0.1.0-test', got %s", resp.Version)
	}
}

func TestHandleInfo_NotFound(t *testing.T) {
	srv := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/other", nil)
	w := httptest.NewRecorder()

	srv.handleInfo(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	srv := testServer(t)

	w := do(t, srv, http.MethodGet, "/health", "")

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if resp := decode[HealthResponse](t, w); resp.Status != "ok" {
		t.Errorf("expected status 'ok', got %s", resp.Status)
	}
}

func TestHandleSuggest_DefaultBudget(t *testing.T) {
	cfg := config.Default()
	srv := testServerWith(t, cfg, testRatio(t), Options{})

	resp := suggest(t, srv, "")

	if resp.JobID == "" {
		t.Error("expected a job ID")
	}
	if resp.Budget != cfg.Hyperband.MaxBudget {
		t.Errorf("expected max budget %v, got %v", cfg.Hyperband.MaxBudget, resp.Budget)
	}
	if resp.Info.Source != generator.SourceInitial {
		t.Errorf("expected initial source, got %q", resp.Info.Source)
	}
	x, ok := resp.Config["x"].(float64)
	if !ok || x < 0 || x > 1 {
		t.Errorf("expected x in [0, 1], got %v", resp.Config["x"])
	}
}

func TestHandleSuggest_InvalidRequests(t *testing.T) {
	srv := testServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"negative budget", `{"budget": -1}`},
		{"zero budget", `{"budget": 0}`},
		{"malformed", `{"budget":`},
		{"unknown field", `{"fidelity": 3}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, srv, http.MethodPost, "/v1/suggest", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected status 400, got %d", w.Code)
			}
			if resp := decode[ErrorResponse](t, w); resp.Error == "" {
				t.Error("expected error message")
			}
		})
	}
}

func TestHandleObserve_PendingJob(t *testing.T) {
	srv := testServer(t)

	s := suggest(t, srv, `{"budget": 3}`)

	w := do(t, srv, http.MethodPost, "/v1/observe", `{"job_id": "`+s.JobID+`", "loss": 0.5}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	resp := decode[ObserveResponse](t, w)
	if !resp.Recorded || resp.Size != 1 || resp.JobID != s.JobID {
		t.Errorf("unexpected response %+v", resp)
	}
	if resp.Persisted {
		t.Error("expected nothing persisted without a store")
	}

	if len(srv.pending) != 0 {
		t.Errorf("expected pending job to be cleared, got %d", len(srv.pending))
	}

	obs := srv.gen.(*generator.RatioEstimator).Record().Observations()
	if len(obs) != 1 || obs[0].Y != 0.5 || obs[0].B != 3 {
		t.Errorf("unexpected record %+v", obs)
	}
}

func TestHandleObserve_ExternalJob(t *testing.T) {
	srv := testServer(t)

	w := do(t, srv, http.MethodPost, "/v1/observe", `{"config": {"x": 0.25}, "budget": 1, "loss": 2}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	w = do(t, srv, http.MethodPost, "/v1/observe", `{"config": {"x": 0.75}, "budget": 1, "failed": true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200 for failed job, got %d: %s", w.Code, w.Body.String())
	}
	if resp := decode[ObserveResponse](t, w); resp.Size != 2 {
		t.Errorf("expected record size 2, got %d", resp.Size)
	}
}

func TestHandleObserve_InvalidRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing loss", `{"config": {"x": 0.5}, "budget": 1}`},
		{"unknown job without config", `{"job_id": "nope", "loss": 1}`},
		{"unknown job without budget", `{"config": {"x": 0.5}, "loss": 1}`},
		{"unknown parameter", `{"config": {"y": 0.5}, "budget": 1, "loss": 1}`},
		{"malformed", `not json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testServer(t)
			w := do(t, srv, http.MethodPost, "/v1/observe", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected status 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestHandleObserve_Persists(t *testing.T) {
	fs := storage.NewFileStore(t.TempDir(), time.Hour, testLogger())
	srv := testServerWith(t, config.Default(), testRatio(t), Options{Store: fs, RunID: "run-7"})

	w := do(t, srv, http.MethodPost, "/v1/observe", `{"config": {"x": 0.5}, "budget": 1, "loss": 1.25}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if resp := decode[ObserveResponse](t, w); !resp.Persisted {
		t.Error("expected observation to be persisted")
	}

	entries := fs.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 stored entry, got %d", len(entries))
	}
	if entries[0].RunID != "run-7" || entries[0].Loss == nil || *entries[0].Loss != 1.25 {
		t.Errorf("unexpected entry %+v", entries[0])
	}
}

type failingStore struct{}

func (failingStore) Append(context.Context, storage.Entry) error {
	return errors.New("disk full")
}

func (failingStore) Load(context.Context) ([]storage.Entry, error) { return nil, nil }
func (failingStore) Close() error                                  { return nil }

func TestHandleObserve_StoreFailureStillRecords(t *testing.T) {
	m := metrics.New("ratio")
	srv := testServerWith(t, config.Default(), testRatio(t), Options{Store: failingStore{}, Metrics: m})

	w := do(t, srv, http.MethodPost, "/v1/observe", `{"config": {"x": 0.5}, "budget": 1, "loss": 1}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	resp := decode[ObserveResponse](t, w)
	if !resp.Recorded || resp.Persisted {
		t.Errorf("expected recorded but not persisted, got %+v", resp)
	}
	if got := testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("store")); got != 1 {
		t.Errorf("expected 1 store error, got %v", got)
	}
}

// blockingStore holds Append until release is closed.
type blockingStore struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingStore) Append(context.Context, storage.Entry) error {
	close(b.entered)
	<-b.release
	return nil
}

func (b *blockingStore) Load(context.Context) ([]storage.Entry, error) { return nil, nil }
func (b *blockingStore) Close() error                                  { return nil }

func TestHandleObserve_SlowStoreDoesNotBlockReads(t *testing.T) {
	bs := &blockingStore{entered: make(chan struct{}), release: make(chan struct{})}
	srv := testServerWith(t, config.Default(), testRatio(t), Options{Store: bs})

	observed := make(chan int, 1)
	go func() {
		w := do(t, srv, http.MethodPost, "/v1/observe", `{"config": {"x": 0.5}, "budget": 1, "loss": 1}`)
		observed <- w.Code
	}()

	select {
	case <-bs.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("observe never reached the store")
	}

	read := make(chan *httptest.ResponseRecorder, 1)
	go func() { read <- do(t, srv, http.MethodGet, "/v1/record", "") }()

	select {
	case w := <-read:
		if w.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", w.Code)
		}
		if view := decode[RecordView](t, w); len(view.Observations) != 1 {
			t.Errorf("expected the observation to be visible while persisting, got %d", len(view.Observations))
		}
	case <-time.After(5 * time.Second):
		t.Error("record read blocked while the store was persisting")
	}

	close(bs.release)
	if code := <-observed; code != http.StatusOK {
		t.Errorf("expected observe status 200, got %d", code)
	}
}

func TestHandleRecord_SingleFidelity(t *testing.T) {
	srv := testServer(t)

	for _, body := range []string{
		`{"config": {"x": 0.2}, "budget": 1, "loss": 3}`,
		`{"config": {"x": 0.4}, "budget": 1, "loss": 1}`,
		`{"config": {"x": 0.6}, "budget": 1, "failed": true}`,
	} {
		if w := do(t, srv, http.MethodPost, "/v1/observe", body); w.Code != http.StatusOK {
			t.Fatalf("observe failed: %d %s", w.Code, w.Body.String())
		}
	}

	w := do(t, srv, http.MethodGet, "/v1/record", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	view := decode[RecordView](t, w)
	if view.Kind != kindSingle || view.Size != 3 {
		t.Errorf("unexpected view kind=%s size=%d", view.Kind, view.Size)
	}
	if view.Best == nil || view.Best.Loss == nil || *view.Best.Loss != 1 {
		t.Fatalf("expected best loss 1, got %+v", view.Best)
	}
	if x := view.Best.Config["x"].(float64); x < 0.39 || x > 0.41 {
		t.Errorf("expected best x 0.4, got %v", x)
	}
	if view.Observations[2].Loss != nil {
		t.Errorf("expected failed observation to have null loss, got %v", *view.Observations[2].Loss)
	}
}

func TestHandleRecord_MultiFidelity(t *testing.T) {
	opts, clfOpts := testGeneratorOptions()
	opts.Gamma = 0.5
	g, err := generator.NewSequence(testSpace(t), opts, clfOpts, testLogger())
	if err != nil {
		t.Fatalf("NewSequence failed: %v", err)
	}
	srv := testServerWith(t, config.Default(), g, Options{})

	for _, body := range []string{
		`{"config": {"x": 0.2}, "budget": 1, "loss": 3}`,
		`{"config": {"x": 0.4}, "budget": 1, "loss": 1}`,
		`{"config": {"x": 0.4}, "budget": 9, "loss": 0.5}`,
	} {
		if w := do(t, srv, http.MethodPost, "/v1/observe", body); w.Code != http.StatusOK {
			t.Fatalf("observe failed: %d %s", w.Code, w.Body.String())
		}
	}

	view := decode[RecordView](t, do(t, srv, http.MethodGet, "/v1/record", ""))
	if view.Kind != kindMulti {
		t.Errorf("expected kind %s, got %s", kindMulti, view.Kind)
	}
	if len(view.Rungs) != 2 {
		t.Fatalf("expected 2 rungs, got %d", len(view.Rungs))
	}
	if view.Rungs[0].Budget != 1 || view.Rungs[0].Size != 2 || view.Rungs[1].Budget != 9 {
		t.Errorf("unexpected rungs %+v", view.Rungs)
	}
	if view.Best == nil || *view.Best.Loss != 0.5 {
		t.Errorf("expected best from the highest rung, got %+v", view.Best)
	}
}

func TestHandleObserve_InvalidBudgetMultiFidelity(t *testing.T) {
	opts, clfOpts := testGeneratorOptions()
	opts.Gamma = 0.5
	g, err := generator.NewSequence(testSpace(t), opts, clfOpts, testLogger())
	if err != nil {
		t.Fatalf("NewSequence failed: %v", err)
	}
	srv := testServerWith(t, config.Default(), g, Options{})

	w := do(t, srv, http.MethodPost, "/v1/observe", `{"config": {"x": 0.2}, "budget": -1, "loss": 3}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandlePending(t *testing.T) {
	srv := testServer(t)

	first := suggest(t, srv, `{"budget": 1}`)
	suggest(t, srv, `{"budget": 2}`)

	jobs := decode[[]PendingJob](t, do(t, srv, http.MethodGet, "/v1/pending", ""))
	if len(jobs) != 2 {
		t.Fatalf("expected 2 pending jobs, got %d", len(jobs))
	}

	do(t, srv, http.MethodPost, "/v1/observe", `{"job_id": "`+first.JobID+`", "loss": 1}`)

	jobs = decode[[]PendingJob](t, do(t, srv, http.MethodGet, "/v1/pending", ""))
	if len(jobs) != 1 || jobs[0].Budget != 2 {
		t.Errorf("expected the budget 2 job to remain, got %+v", jobs)
	}
}

func TestMetricsRoute(t *testing.T) {
	m := metrics.New("ratio")
	g := testRatio(t)
	g.SetObserver(m)
	srv := testServerWith(t, config.Default(), g, Options{Metrics: m})

	suggest(t, srv, "")

	w := do(t, srv, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "bore_suggestions_total") {
		t.Error("expected suggestion counter in metrics output")
	}
}

func TestMetricsRoute_Disabled(t *testing.T) {
	cfg := config.Default()
	cfg.Metrics.Enabled = false
	srv := testServerWith(t, cfg, testRatio(t), Options{Metrics: metrics.New("ratio")})

	if w := do(t, srv, http.MethodGet, "/metrics", ""); w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
}

func TestDebugRoutes(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		srv := testServer(t)
		if w := do(t, srv, http.MethodGet, "/debug/status", ""); w.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", w.Code)
		}
	})

	t.Run("enabled", func(t *testing.T) {
		cfg := config.Default()
		cfg.Debug.Enabled = true
		cfg.Debug.Auth.Token = "debug-token"
		srv := testServerWith(t, cfg, testRatio(t), Options{})

		if w := do(t, srv, http.MethodGet, "/debug/status", ""); w.Code != http.StatusForbidden {
			t.Errorf("expected status 403 without token, got %d", w.Code)
		}

		req := httptest.NewRequest(http.MethodGet, "/debug/status", nil)
		req.Header.Set("Authorization", "Bearer debug-token")
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
		status := decode[DebugStatus](t, w)
		if !status.HasModel || status.Options.NumRandomInit != 3 {
			t.Errorf("unexpected status %+v", status)
		}

		req = httptest.NewRequest(http.MethodPost, "/debug/rebuild", nil)
		req.Header.Set("Authorization", "Bearer debug-token")
		w = httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", w.Code)
		}
	})

	t.Run("host usage", func(t *testing.T) {
		cfg := config.Default()
		cfg.Debug.Enabled = true
		cfg.Debug.Auth.Token = "debug-token"

		host := monitor.NewSampler(nil, time.Hour, testLogger())
		host.Start(context.Background())
		defer host.Stop()

		srv := testServerWith(t, cfg, testRatio(t), Options{Host: host})

		req := httptest.NewRequest(http.MethodGet, "/debug/status", nil)
		req.Header.Set("Authorization", "Bearer debug-token")
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, req)

		status := decode[DebugStatus](t, w)
		if status.Host == nil || status.Host.Timestamp.IsZero() {
			t.Errorf("expected a host sample in the status, got %+v", status.Host)
		}
	})
}

func TestAuthRequired(t *testing.T) {
	cfg := config.Default()
	cfg.Auth = config.AuthConfig{Enabled: true, User: "admin", Password: "secret"}
	srv := testServerWith(t, cfg, testRatio(t), Options{})

	if w := do(t, srv, http.MethodPost, "/v1/suggest", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", w.Code)
	}
	if w := do(t, srv, http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Errorf("expected /health without auth, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/suggest", bytes.NewReader(nil))
	req.SetBasicAuth("admin", "secret")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200 with credentials, got %d", w.Code)
	}
}
