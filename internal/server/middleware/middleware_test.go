package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// The service stack puts request tagging outermost and auth innermost, so a
// rejected worker still gets an ID and the API headers.
func TestChain_ServiceOrder(t *testing.T) {
	handler := Chain(okHandler(),
		RequestID(),
		SecurityHeaders(),
		Auth(&AuthConfig{Enabled: true, User: "worker", Password: "s3cret"}, "/health"),
	)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/observe", nil))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", w.Code)
	}
	if w.Header().Get(RequestIDHeader) == "" {
		t.Error("expected request ID on the rejection")
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers on the rejection")
	}
}

func TestChain_FirstIsOutermost(t *testing.T) {
	var trace []string
	tag := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				trace = append(trace, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	Chain(okHandler(), tag("outer"), tag("inner")).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if strings.Join(trace, ",") != "outer,inner" {
		t.Errorf("unexpected order %v", trace)
	}
}

func TestLogging_RecordsRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"job_id":"j-9"}`))
	}), RequestID(), Logging(logger))

	req := httptest.NewRequest(http.MethodPost, "/v1/suggest", nil)
	req.RemoteAddr = "10.5.0.2:41000"
	req.Header.Set(RequestIDHeader, "worker-2-17")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected one JSON log line, got %q: %v", buf.String(), err)
	}
	want := map[string]any{
		"msg":        "request",
		"level":      "INFO",
		"method":     "POST",
		"path":       "/v1/suggest",
		"status":     float64(200),
		"size":       float64(16),
		"remote":     "10.5.0.2",
		"request_id": "worker-2-17",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("%s: expected %v, got %v", k, v, entry[k])
		}
	}
}

func TestLogging_ServerErrorAtWarn(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	status := http.StatusOK
	handler := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/record", nil))
	if buf.Len() != 0 {
		t.Errorf("expected successful request below warn level, got %q", buf.String())
	}

	status = http.StatusInternalServerError
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/suggest", nil))
	if !strings.Contains(buf.String(), "level=WARN") {
		t.Errorf("expected warn log for 500, got %q", buf.String())
	}
}

func TestRecovery(t *testing.T) {
	handler := Recovery(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("classifier produced no weights")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/suggest", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", w.Code)
	}
	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil || resp.Error != "internal server error" {
		t.Errorf("unexpected body %q (%v)", w.Body.String(), err)
	}
}

func TestRecovery_AbortHandlerPropagates(t *testing.T) {
	handler := Recovery(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	defer func() {
		if r := recover(); r != http.ErrAbortHandler {
			t.Errorf("expected ErrAbortHandler to propagate, got %v", r)
		}
	}()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/debug/pprof/profile", nil))
}

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"generated when absent", "", false},
		{"worker id reused", "worker-4-112", true},
		{"oversized id replaced", strings.Repeat("a", 129), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = GetRequestID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/v1/pending", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if seen == "" {
				t.Fatal("expected a request ID in the context")
			}
			if (seen == tt.incoming) != tt.keep {
				t.Errorf("incoming %q, context %q", tt.incoming, seen)
			}
			if got := w.Header().Get(RequestIDHeader); got != seen {
				t.Errorf("expected response header %q, got %q", seen, got)
			}
		})
	}
}

func TestGetRequestID_Untagged(t *testing.T) {
	if id := GetRequestID(httptest.NewRequest(http.MethodGet, "/", nil).Context()); id != "" {
		t.Errorf("expected empty ID outside the middleware, got %q", id)
	}
}
