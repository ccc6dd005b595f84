// Package health serves liveness and readiness probes.
//
// Each registered check runs in its own goroutine at a fixed interval. A check
// flips to unhealthy after failureThreshold consecutive failures and back to
// healthy after successThreshold consecutive successes.
package health

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
)

// CheckFunc returns nil when the checked component is healthy.
type CheckFunc func(ctx context.Context) error

const (
	defaultFailureThreshold = 3
	defaultSuccessThreshold = 1
)

// CheckOption configures a registered check.
type CheckOption func(*check)

// WithThresholds overrides the consecutive failure and success counts needed
// to change a check's state. Non-positive values keep the defaults.
func WithThresholds(failure, success int) CheckOption {
	return func(c *check) {
		if failure > 0 {
			c.failureThreshold = failure
		}
		if success > 0 {
			c.successThreshold = success
		}
	}
}

// check is the configuration and state of one registered check.
//
// run is called from a single goroutine, so the counters need no locking.
// healthy and lastErr are read by HTTP handlers concurrently.
type check struct {
	name             string
	timeout          time.Duration
	fn               CheckFunc
	failureThreshold int
	successThreshold int

	healthy atomic.Bool
	lastErr atomic.Pointer[error]

	consecutiveFails int
	consecutiveOK    int
}

func newCheck(name string, timeout time.Duration, fn CheckFunc, opts []CheckOption) *check {
	c := &check{
		name:             name,
		timeout:          timeout,
		fn:               fn,
		failureThreshold: defaultFailureThreshold,
		successThreshold: defaultSuccessThreshold,
	}
	for _, o := range opts {
		o(c)
	}
	c.healthy.Store(true)
	return c
}

func (c *check) isHealthy() bool {
	return c.healthy.Load()
}

func (c *check) getLastError() error {
	if p := c.lastErr.Load(); p != nil {
		return *p
	}
	return nil
}

// run executes the check once and applies the thresholds.
func (c *check) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.fn(ctx)
	c.lastErr.Store(&err)

	if err != nil {
		c.consecutiveOK = 0
		c.consecutiveFails++
		if c.consecutiveFails >= c.failureThreshold {
			c.healthy.Store(false)
		}
		return
	}
	c.consecutiveFails = 0
	c.consecutiveOK++
	if c.consecutiveOK >= c.successThreshold {
		c.healthy.Store(true)
	}
}

// Health manages liveness and readiness checks for a service.
type Health struct {
	ready atomic.Bool

	mu        sync.RWMutex
	liveness  []*check
	readiness []*check
	cancel    context.CancelFunc
}

// New creates a Health in the not-ready state. Call SetReady(true) once the
// service has finished initialization.
func New() *Health {
	return &Health{}
}

// AddLivenessCheck registers a check that decides whether the process is
// alive.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc, opts ...CheckOption) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.liveness = append(h.liveness, newCheck(name, timeout, fn, opts))
}

// AddReadinessCheck registers a check that decides whether the service can
// accept traffic, e.g. database or cache connectivity.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc, opts ...CheckOption) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readiness = append(h.readiness, newCheck(name, timeout, fn, opts))
}

// Start runs every registered check in its own goroutine at interval until
// Stop is called or ctx is done.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	checks := slices.Concat(h.liveness, h.readiness)
	h.mu.Unlock()

	for _, c := range checks {
		go runCheck(ctx, c, interval)
	}
}

func runCheck(ctx context.Context, c *check, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.run(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.run(ctx)
		}
	}
}

// SetReady sets the manual readiness flag. It is flipped to false on
// shutdown so load balancers stop routing new traffic.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the service is marked ready and every readiness
// check passes.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.readiness {
		if !c.isHealthy() {
			return false
		}
	}
	return true
}

// Stop cancels the check goroutines. It is safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// Mount registers /livez and /readyz on r.
func (h *Health) Mount(r chi.Router) {
	r.Get("/livez", h.LiveEndpoint)
	r.Get("/readyz", h.ReadyEndpoint)
}

// LiveEndpoint responds 200 {"status":"ok"} when all liveness checks pass,
// otherwise 503 with the failing checks.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	failures := collectFailures(h.liveness)
	h.mu.RUnlock()

	writeResponse(w, failures)
}

// ReadyEndpoint responds 200 when the service is marked ready and all
// readiness checks pass, otherwise 503 with details.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	failures := collectFailures(h.readiness)
	h.mu.RUnlock()

	if !h.ready.Load() {
		failures["_readiness"] = "service is not ready"
	}
	writeResponse(w, failures)
}

// collectFailures maps unhealthy check names to their last error. Checks are
// not re-run.
func collectFailures(checks []*check) map[string]string {
	failures := make(map[string]string)
	for _, c := range checks {
		if c.isHealthy() {
			continue
		}
		if err := c.getLastError(); err != nil {
			failures[c.name] = err.Error()
		} else {
			failures[c.name] = "check is unhealthy"
		}
	}
	return failures
}

func writeResponse(w http.ResponseWriter, failures map[string]string) {
	status := http.StatusOK
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		if len(failures) == 0 {
			e.Field("status", func(e *jx.Encoder) { e.Str("ok") })
			return
		}
		status = http.StatusServiceUnavailable
		e.Field("status", func(e *jx.Encoder) { e.Str("unhealthy") })
		e.Field("checks", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				names := make([]string, 0, len(failures))
				for name := range failures {
					names = append(names, name)
				}
				slices.Sort(names)
				for _, name := range names {
					e.Field(name, func(e *jx.Encoder) { e.Str(failures[name]) })
				}
			})
		})
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The status is already written; a failed write means the client left.
	_, _ = w.Write(e.Bytes())
}
