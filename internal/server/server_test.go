package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/haskel/bore/internal/config"
	"github.com/haskel/bore/internal/generator"
	"github.com/haskel/bore/internal/storage"
)

func TestServer_Integration(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Port = 0 // Let OS assign port

	fs := storage.NewFileStore(t.TempDir(), time.Hour, testLogger())
	srv := New(cfg, testRatio(t), Options{Store: fs}, testLogger(), "0.1.0")

	// Create test server
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	post := func(path string, body any, out any) {
		t.Helper()
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode: %v", err)
		}
		resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(data))
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: expected status 200, got %d", path, resp.StatusCode)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("failed to decode: %v", err)
		}
	}

	sources := make(map[string]int)
	for i := 0; i < 6; i++ {
		var s SuggestResponse
		post("/v1/suggest", SuggestRequest{}, &s)
		sources[s.Info.Source]++

		x := s.Config["x"].(float64)
		loss := (x - 0.3) * (x - 0.3)

		var o ObserveResponse
		post("/v1/observe", ObserveRequest{JobID: s.JobID, Loss: &loss}, &o)
		if o.Size != i+1 {
			t.Fatalf("iteration %d: expected record size %d, got %d", i, i+1, o.Size)
		}
	}

	if sources[generator.SourceInitial] != 3 {
		t.Errorf("expected 3 initial suggestions, got %v", sources)
	}
	if sources[generator.SourceModel]+sources[generator.SourceFallback] != 3 {
		t.Errorf("expected classifier-driven suggestions after the initial design, got %v", sources)
	}
	if fs.Len() != 6 {
		t.Errorf("expected 6 persisted entries, got %d", fs.Len())
	}

	t.Run("GET /unknown", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/unknown")
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", resp.StatusCode)
		}
	})

	t.Run("request ID", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/health")
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.Header.Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID header")
		}
	})
}

func TestServer_ReplayedHistory(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	fs := storage.NewFileStore(dir, time.Hour, testLogger())
	for i := 0; i < 4; i++ {
		loss := float64(i)
		job := generator.Job{
			ID:     fmt.Sprintf("job-%d", i),
			Config: map[string]any{"x": float64(i) / 4},
			Budget: 1,
			Result: &generator.JobResult{Loss: loss},
		}
		if err := fs.Append(ctx, storage.FromJob("run", job, time.Now())); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	if err := fs.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	gen := testRatio(t)
	replayed, _, err := storage.Replay(ctx, storage.NewFileStore(dir, time.Hour, testLogger()), gen, testLogger())
	if err != nil || replayed != 4 {
		t.Fatalf("Replay: replayed=%d err=%v", replayed, err)
	}

	srv := New(config.Default(), gen, Options{}, testLogger(), "0.1.0")
	view := decode[RecordView](t, do(t, srv, http.MethodGet, "/v1/record", ""))
	if view.Size != 4 || view.Best == nil || *view.Best.Loss != 0 {
		t.Errorf("expected replayed record with best loss 0, got size=%d best=%+v", view.Size, view.Best)
	}

	// The record is past the initial design, so the classifier is used.
	s := suggest(t, srv, "")
	if s.Info.Source == generator.SourceInitial {
		t.Errorf("expected a classifier suggestion after replay, got %q", s.Info.Source)
	}
}

func TestServer_ShutdownSavesClassifier(t *testing.T) {
	fs := storage.NewFileStore(t.TempDir(), time.Hour, testLogger())
	models := storage.NewModelStorage(fs)

	srv := New(config.Default(), testRatio(t), Options{Models: models}, testLogger(), "0.1.0")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if !models.ModelExists() {
		t.Error("expected classifier weights to be saved on shutdown")
	}

	restored := testRatio(t)
	if err := models.LoadModel(restored.Model()); err != nil {
		t.Errorf("LoadModel failed: %v", err)
	}
}

func TestServer_ReloadConfig(t *testing.T) {
	srv := testServer(t)

	if w := do(t, srv, http.MethodPost, "/v1/suggest", ""); w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	cfg := config.Default()
	cfg.Auth = config.AuthConfig{Enabled: true, User: "admin", Password: "secret"}
	srv.ReloadConfig(cfg)

	if w := do(t, srv, http.MethodPost, "/v1/suggest", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401 after reload, got %d", w.Code)
	}
}
