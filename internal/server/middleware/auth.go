package middleware

import (
	"crypto/subtle"
	"net/http"
	"sync"
)

const authRealm = "bore"

// AuthConfig holds the service credentials. It is safe for concurrent use
// and may be updated while requests are served.
type AuthConfig struct {
	mu       sync.RWMutex
	Enabled  bool
	User     string
	Password string
}

// Update replaces the credentials, for example on a config reload.
func (c *AuthConfig) Update(enabled bool, user, password string) {
	c.mu.Lock()
	c.Enabled = enabled
	c.User = user
	c.Password = password
	c.mu.Unlock()
}

// get returns a consistent snapshot.
func (c *AuthConfig) get() (enabled bool, user, password string) {
	c.mu.RLock()
	enabled = c.Enabled
	user = c.User
	password = c.Password
	c.mu.RUnlock()
	return
}

// Auth requires HTTP Basic credentials on every path except the exact
// paths in open. The config is read per request so Update takes effect on a
// reload without rebuilding the handler chain.
func Auth(config *AuthConfig, open ...string) Middleware {
	public := make(map[string]bool, len(open))
	for _, path := range open {
		public[path] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			enabled, user, password := config.get()
			if !enabled || public[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			if !checkBasicAuth(r, user, password) {
				unauthorized(w, authRealm)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// checkBasicAuth compares credentials in constant time.
func checkBasicAuth(r *http.Request, user, password string) bool {
	gotUser, gotPass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	userMatch := subtle.ConstantTimeCompare([]byte(gotUser), []byte(user)) == 1
	passMatch := subtle.ConstantTimeCompare([]byte(gotPass), []byte(password)) == 1
	return userMatch && passMatch
}

func unauthorized(w http.ResponseWriter, realm string) {
	w.Header().Set("WWW-Authenticate", `Basic realm="`+realm+`"`)
	writeError(w, http.StatusUnauthorized, "unauthorized")
}
