package cli

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/haskel/bore/internal/generator"
	"github.com/haskel/bore/internal/server"
	"github.com/haskel/bore/internal/space"
)

func testClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return &Client{baseURL: ts.URL, client: ts.Client()}
}

func TestClient_Suggest(t *testing.T) {
	var got server.SuggestRequest
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/suggest" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		json.NewEncoder(w).Encode(server.SuggestResponse{
			JobID:  "job-1",
			Config: space.Config{"x": 0.5},
			Budget: 9,
			Info:   generator.Info{Source: generator.SourceModel},
		})
	})

	budget := 9.0
	resp, err := c.Suggest(&budget)
	if err != nil {
		t.Fatalf("Suggest failed: %v", err)
	}
	if got.Budget == nil || *got.Budget != 9 {
		t.Errorf("expected budget 9 in request, got %v", got.Budget)
	}
	if resp.JobID != "job-1" || resp.Config["x"] != 0.5 || resp.Info.Source != generator.SourceModel {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestClient_ErrorStatus(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(server.ErrorResponse{Error: "loss is required unless failed is set"})
	})

	_, err := c.Observe(server.ObserveRequest{JobID: "job-1"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "400") || !strings.Contains(err.Error(), "loss is required") {
		t.Errorf("expected status and server message in error, got %v", err)
	}
}

func TestClient_Record(t *testing.T) {
	loss := 0.25
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/record" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(server.RecordView{
			Kind: "single_fidelity",
			Size: 1,
			Observations: []server.ObservationView{
				{Config: space.Config{"x": 0.1}, Budget: 1, Loss: &loss},
			},
		})
	})

	view, err := c.Record()
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if view.Size != 1 || len(view.Observations) != 1 || *view.Observations[0].Loss != 0.25 {
		t.Errorf("unexpected record: %+v", view)
	}
}

func TestClient_BasicAuth(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != "admin" || p != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	c.user, c.password = "admin", "secret"

	if err := c.Health(); err != nil {
		t.Errorf("expected authenticated health check, got %v", err)
	}

	c.password = "wrong"
	if err := c.Health(); err == nil {
		t.Error("expected error with wrong password")
	}
}
