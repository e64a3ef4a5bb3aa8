package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// clientIdleTTL is how long an idle worker keeps its bucket.
	clientIdleTTL = 10 * time.Minute
	// maxClients bounds the number of tracked worker addresses.
	maxClients    = 10000
	sweepInterval = time.Minute
)

// RateLimitConfig configures request throttling.
type RateLimitConfig struct {
	Enabled bool
	// RequestsPerSecond is the refill rate of each token bucket.
	RequestsPerSecond float64
	// Burst is the bucket capacity.
	Burst int
	// PerIP gives every client address its own bucket instead of one
	// shared by all workers.
	PerIP bool
}

// RateLimit throttles requests with a token bucket. Rejected requests get a
// JSON 429 with Retry-After.
func RateLimit(config *RateLimitConfig) Middleware {
	if !config.Enabled {
		return passthrough
	}

	var bucket func(r *http.Request) *rate.Limiter
	if config.PerIP {
		clients := newClientLimiters(config.RequestsPerSecond, config.Burst)
		go clients.sweepLoop()
		bucket = func(r *http.Request) *rate.Limiter { return clients.get(getClientIP(r), time.Now()) }
	} else {
		shared := rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst)
		bucket = func(*http.Request) *rate.Limiter { return shared }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !bucket(r).Allow() {
				tooManyRequests(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiters holds one bucket per client address.
type clientLimiters struct {
	mu      sync.Mutex
	buckets map[string]*clientBucket
	rps     rate.Limit
	burst   int
}

func newClientLimiters(rps float64, burst int) *clientLimiters {
	return &clientLimiters{
		buckets: make(map[string]*clientBucket),
		rps:     rate.Limit(rps),
		burst:   burst,
	}
}

func (c *clientLimiters) get(ip string, now time.Time) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.buckets[ip]
	if !ok {
		if len(c.buckets) >= maxClients {
			c.evictLeastRecent()
		}
		b = &clientBucket{limiter: rate.NewLimiter(c.rps, c.burst)}
		c.buckets[ip] = b
	}
	b.lastSeen = now
	return b.limiter
}

func (c *clientLimiters) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for now := range ticker.C {
		c.sweep(now)
	}
}

// sweep drops buckets idle for longer than clientIdleTTL.
func (c *clientLimiters) sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := now.Add(-clientIdleTTL)
	for ip, b := range c.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(c.buckets, ip)
		}
	}
}

// evictLeastRecent removes the bucket seen longest ago. Caller holds mu.
func (c *clientLimiters) evictLeastRecent() {
	var victim string
	var oldest time.Time
	for ip, b := range c.buckets {
		if victim == "" || b.lastSeen.Before(oldest) {
			victim, oldest = ip, b.lastSeen
		}
	}
	delete(c.buckets, victim)
}

func tooManyRequests(w http.ResponseWriter) {
	w.Header().Set("Retry-After", "1")
	writeError(w, http.StatusTooManyRequests, "too many requests")
}

// getClientIP prefers the left-most X-Forwarded-For entry, then X-Real-IP,
// then the connection's address.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
