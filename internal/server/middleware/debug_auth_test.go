package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDebugAuth(t *testing.T) {
	service := func(enabled bool) *AuthConfig {
		return &AuthConfig{Enabled: enabled, User: "admin", Password: "s3cret"}
	}

	tests := []struct {
		name      string
		config    *DebugAuthConfig
		bearer    string
		basic     []string
		want      int
		wantRealm string
	}{
		{"token accepted", &DebugAuthConfig{Token: "dbg-7f3a"}, "dbg-7f3a", nil, http.StatusOK, ""},
		{"token mismatch", &DebugAuthConfig{Token: "dbg-7f3a"}, "dbg-0000", nil, http.StatusForbidden, ""},
		{"empty bearer", &DebugAuthConfig{Token: "dbg-7f3a"}, "", nil, http.StatusForbidden, ""},
		{"token ignores service credentials", &DebugAuthConfig{Token: "dbg-7f3a", FallbackAuthConfig: service(true)}, "", []string{"admin", "s3cret"}, http.StatusForbidden, ""},
		{"service credentials accepted", &DebugAuthConfig{FallbackAuthConfig: service(true)}, "", []string{"admin", "s3cret"}, http.StatusOK, ""},
		{"service credentials wrong", &DebugAuthConfig{FallbackAuthConfig: service(true)}, "", []string{"admin", "nope"}, http.StatusUnauthorized, `Basic realm="bore-debug"`},
		{"service auth disabled", &DebugAuthConfig{FallbackAuthConfig: service(false)}, "", []string{"admin", "s3cret"}, http.StatusForbidden, ""},
		{"nothing configured", &DebugAuthConfig{}, "", nil, http.StatusForbidden, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := DebugAuth(tt.config)(okHandler())

			for _, path := range []string{"/debug/status", "/debug/pprof/heap"} {
				req := httptest.NewRequest(http.MethodGet, path, nil)
				if tt.bearer != "" {
					req.Header.Set("Authorization", "Bearer "+tt.bearer)
				}
				if tt.basic != nil {
					req.SetBasicAuth(tt.basic[0], tt.basic[1])
				}
				w := httptest.NewRecorder()
				handler.ServeHTTP(w, req)

				if w.Code != tt.want {
					t.Errorf("%s: expected status %d, got %d", path, tt.want, w.Code)
				}
				if got := w.Header().Get("WWW-Authenticate"); got != tt.wantRealm {
					t.Errorf("%s: unexpected WWW-Authenticate %q", path, got)
				}
			}
		})
	}
}

func TestDebugAuth_FollowsServiceReload(t *testing.T) {
	service := &AuthConfig{}
	handler := DebugAuth(&DebugAuthConfig{FallbackAuthConfig: service})(okHandler())

	rebuild := func() int {
		req := httptest.NewRequest(http.MethodPost, "/debug/rebuild", nil)
		req.SetBasicAuth("admin", "s3cret")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	if code := rebuild(); code != http.StatusForbidden {
		t.Fatalf("expected 403 while service auth is off, got %d", code)
	}
	service.Update(true, "admin", "s3cret")
	if code := rebuild(); code != http.StatusOK {
		t.Errorf("expected 200 after reload, got %d", code)
	}
}
