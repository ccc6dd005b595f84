package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func hit(h http.Handler, path, remoteAddr string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = remoteAddr
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit(t *testing.T) {
	h := RateLimit(t.Context(), RateLimitConfig{Max: 3, Window: time.Minute})(okHandler())

	for i := range 3 {
		w := hit(h, "/api/coupons", "10.0.0.1:1000", nil)
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
		assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}

	w := hit(h, "/api/coupons", "10.0.0.1:2000", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"success":false,"error":{"message":"rate limit exceeded"}}`, w.Body.String())

	assert.Equal(t, http.StatusOK, hit(h, "/api/coupons", "10.0.0.2:1000", nil).Code, "clients are limited independently")
}

func TestRateLimit_ExemptPaths(t *testing.T) {
	h := RateLimit(t.Context(), RateLimitConfig{
		Max:         1,
		Window:      time.Minute,
		ExemptPaths: []string{"/readyz"},
	})(okHandler())

	require.Equal(t, http.StatusOK, hit(h, "/api/coupons", "10.0.0.1:1", nil).Code)
	require.Equal(t, http.StatusTooManyRequests, hit(h, "/api/coupons", "10.0.0.1:1", nil).Code)

	w := hit(h, "/readyz", "10.0.0.1:1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
}

func TestRateLimit_ForwardedHeaders(t *testing.T) {
	xff := map[string]string{"X-Forwarded-For": "203.0.113.50, 70.41.3.18"}

	t.Run("trusted", func(t *testing.T) {
		h := RateLimit(t.Context(), RateLimitConfig{Max: 1, Window: time.Minute, TrustProxy: true})(okHandler())
		require.Equal(t, http.StatusOK, hit(h, "/", "192.168.1.1:1", xff).Code)
		assert.Equal(t, http.StatusTooManyRequests, hit(h, "/", "192.168.1.2:1", xff).Code)
	})

	t.Run("untrusted", func(t *testing.T) {
		h := RateLimit(t.Context(), RateLimitConfig{Max: 1, Window: time.Minute})(okHandler())
		require.Equal(t, http.StatusOK, hit(h, "/", "192.168.1.1:1", xff).Code)
		assert.Equal(t, http.StatusOK, hit(h, "/", "192.168.1.2:1", xff).Code)
	})
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		trust      bool
		want       string
	}{
		{name: "remote addr", remoteAddr: "10.0.0.1:555", want: "10.0.0.1"},
		{name: "remote addr without port", remoteAddr: "10.0.0.1", want: "10.0.0.1"},
		{
			name:       "forwarded ignored by default",
			remoteAddr: "10.0.0.1:555",
			headers:    map[string]string{"X-Forwarded-For": "1.2.3.4"},
			want:       "10.0.0.1",
		},
		{
			name:       "first forwarded address",
			remoteAddr: "10.0.0.1:555",
			headers:    map[string]string{"X-Forwarded-For": " 1.2.3.4 , 5.6.7.8"},
			trust:      true,
			want:       "1.2.3.4",
		},
		{
			name:       "real ip",
			remoteAddr: "10.0.0.1:555",
			headers:    map[string]string{"X-Real-IP": "9.9.9.9"},
			trust:      true,
			want:       "9.9.9.9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientIP(req, tt.trust))
		})
	}
}

func TestLimiter_SlidingWindow(t *testing.T) {
	l := newLimiter(4, time.Minute)
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	for range 4 {
		_, _, ok := l.take("c", start)
		require.True(t, ok)
	}
	_, _, ok := l.take("c", start.Add(30*time.Second))
	require.False(t, ok)

	// Half way into the next window the previous four weigh as two.
	remaining, reset, ok := l.take("c", start.Add(90*time.Second))
	require.True(t, ok)
	assert.Equal(t, 1, remaining)
	assert.Equal(t, start.Add(2*time.Minute), reset)

	// Two idle windows reset the client.
	remaining, _, ok = l.take("c", start.Add(5*time.Minute))
	require.True(t, ok)
	assert.Equal(t, 3, remaining)

	l.evict(start.Add(10 * time.Minute))
	assert.Empty(t, l.clients)
}
