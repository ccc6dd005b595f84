package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the per-client sliding window limiter.
type RateLimitConfig struct {
	Max    int
	Window time.Duration
	// TrustProxy keys clients by the first X-Forwarded-For or X-Real-IP
	// address instead of the connection address.
	TrustProxy bool
	// ExemptPaths are served without counting, e.g. health probes.
	ExemptPaths []string
}

// counter holds one client's counts for the current and previous window.
type counter struct {
	start time.Time
	curr  float64
	prev  float64
}

type limiter struct {
	max    int
	window time.Duration

	mu      sync.Mutex
	clients map[string]*counter
}

func newLimiter(limit int, window time.Duration) *limiter {
	return &limiter{
		max:     limit,
		window:  window,
		clients: make(map[string]*counter),
	}
}

// take records a request from client at now unless the weighted count of
// the previous and current windows already reaches max.
func (l *limiter) take(client string, now time.Time) (remaining int, reset time.Time, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c := l.clients[client]
	if c == nil {
		c = &counter{start: now.Truncate(l.window)}
		l.clients[client] = c
	}

	switch elapsed := now.Sub(c.start); {
	case elapsed >= 2*l.window:
		c.start, c.curr, c.prev = now.Truncate(l.window), 0, 0
	case elapsed >= l.window:
		c.start, c.curr, c.prev = c.start.Add(l.window), 0, c.curr
	}

	weight := 1 - float64(now.Sub(c.start))/float64(l.window)
	used := c.prev*max(weight, 0) + c.curr
	reset = c.start.Add(l.window)
	if used >= float64(l.max) {
		return 0, reset, false
	}

	c.curr++
	return max(l.max-int(math.Ceil(used+1)), 0), reset, true
}

// evict drops clients idle for two full windows.
func (l *limiter) evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for client, c := range l.clients {
		if now.Sub(c.start) >= 2*l.window {
			delete(l.clients, client)
		}
	}
}

func (l *limiter) evictLoop(ctx context.Context) {
	ticker := time.NewTicker(2 * l.window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.evict(now)
		}
	}
}

// RateLimit limits each client to cfg.Max requests per sliding cfg.Window
// and answers 429 with the error envelope beyond that. Responses carry
// X-RateLimit-Limit, X-RateLimit-Remaining and X-RateLimit-Reset. Idle
// clients are evicted until ctx is done.
func RateLimit(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := newLimiter(cfg.Max, cfg.Window)
	go l.evictLoop(ctx)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if slices.Contains(cfg.ExemptPaths, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			remaining, reset, ok := l.take(clientIP(r, cfg.TrustProxy), time.Now())

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Max))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

			if !ok {
				wait := max(time.Until(reset), 0)
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP identifies the caller. Forwarding headers are only honored when
// trustProxy is set, since clients can forge them.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
