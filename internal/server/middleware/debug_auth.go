package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const debugRealm = "bore-debug"

// DebugAuthConfig protects the profiling and rebuild endpoints.
type DebugAuthConfig struct {
	// Token enables bearer authentication and takes precedence.
	Token string
	// FallbackAuthConfig is the service's basic auth, used when Token is
	// empty.
	FallbackAuthConfig *AuthConfig
}

// DebugAuth admits a request carrying the bearer token, or, without a token,
// the service credentials. With neither configured every request is
// forbidden: debug endpoints are never open.
func DebugAuth(config *DebugAuthConfig) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if config.Token != "" {
				if !checkBearerToken(r, config.Token) {
					forbiddenDebug(w)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			enabled := false
			var user, password string
			if config.FallbackAuthConfig != nil {
				enabled, user, password = config.FallbackAuthConfig.get()
			}
			switch {
			case !enabled:
				forbiddenDebug(w)
			case !checkBasicAuth(r, user, password):
				unauthorized(w, debugRealm)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func checkBearerToken(r *http.Request, token string) bool {
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1
}

func forbiddenDebug(w http.ResponseWriter) {
	writeError(w, http.StatusForbidden, "debug endpoints require authentication")
}
