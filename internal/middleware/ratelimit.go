package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RATE LIMITING:
// Each client IP gets a token bucket (golang.org/x/time/rate) that holds
// `limit` tokens and refills at limit/window. A full bucket allows a burst
// of `limit` requests; after that the client gets one request every
// window/limit. Requests without a token get 429.
//
// Buckets live in memory, so limits are per process. Buckets idle for a
// whole window are full again and are swept out to keep the map bounded.

// RateLimiter holds one bucket per client IP.
type RateLimiter struct {
	name   string
	limit  rate.Limit
	burst  int
	window time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu        sync.Mutex
	clients   map[string]*client
	lastSweep time.Time
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows `limit` requests per `window` per client IP. name
// labels log lines, e.g. "global" or "login".
func NewRateLimiter(name string, limit int, window time.Duration, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		name:      name,
		limit:     rate.Every(window / time.Duration(limit)),
		burst:     limit,
		window:    window,
		now:       time.Now,
		logger:    logger,
		clients:   make(map[string]*client),
		lastSweep: time.Now(),
	}
}

// Allow reports whether the client identified by key may make a request now.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) >= rl.window {
		rl.sweep(now)
	}

	c, ok := rl.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[key] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// sweep drops buckets idle for at least one window. Caller holds mu.
func (rl *RateLimiter) sweep(now time.Time) {
	for key, c := range rl.clients {
		if now.Sub(c.lastSeen) >= rl.window {
			delete(rl.clients, key)
		}
	}
	rl.lastSweep = now
}

// Len is the number of tracked clients.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// Middleware rejects requests over the limit with 429 {"error":"rate_limited"}.
//
// The key is r.RemoteAddr without the port. Install chi's RealIP first when
// running behind a proxy so RemoteAddr is the client, not the proxy.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r)
		if !rl.Allow(key) {
			rl.logger.Warn("rate limit exceeded",
				slog.String("limiter", rl.name),
				slog.String("ip", key),
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", retryAfter(rl.limit))
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate_limited","message":"too many requests"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// retryAfter is the time for one token to refill, in whole seconds.
func retryAfter(limit rate.Limit) string {
	secs := int(time.Duration(float64(time.Second) / float64(limit)).Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
