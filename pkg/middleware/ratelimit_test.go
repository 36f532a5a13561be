package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestLimiter(t *testing.T, cfg RateLimitConfig) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(cfg, zap.NewNop())
	t.Cleanup(rl.Shutdown)
	return rl
}

func TestRateLimiter_BurstThenReject(t *testing.T) {
	rl := newTestLimiter(t, RateLimitConfig{RequestsPerSecond: 1, Burst: 2})
	frozen := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return frozen }

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))

	// other clients have their own budget
	assert.True(t, rl.Allow("10.0.0.2"))

	frozen = frozen.Add(time.Second)
	assert.True(t, rl.Allow("10.0.0.1"))
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl := newTestLimiter(t, RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1})
	calls := 0
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/square", nil)
		req.RemoteAddr = "192.0.2.1:5555"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, send().Code)

	rec := send()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Too many requests", body["error"])
	assert.Equal(t, 1, calls)
}

func TestRateLimiter_ClientAddr(t *testing.T) {
	tests := []struct {
		name       string
		trustProxy bool
		remoteAddr string
		forwarded  string
		want       string
	}{
		{name: "strips port", remoteAddr: "192.0.2.1:443", want: "192.0.2.1"},
		{name: "no port", remoteAddr: "192.0.2.1", want: "192.0.2.1"},
		{name: "ignores forwarded when untrusted", remoteAddr: "192.0.2.1:443", forwarded: "203.0.113.9", want: "192.0.2.1"},
		{name: "first forwarded when trusted", trustProxy: true, remoteAddr: "192.0.2.1:443", forwarded: "203.0.113.9, 10.0.0.1", want: "203.0.113.9"},
		{name: "trusted without header", trustProxy: true, remoteAddr: "[2001:db8::1]:443", want: "2001:db8::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := newTestLimiter(t, RateLimitConfig{RequestsPerSecond: 1, Burst: 1, TrustProxy: tt.trustProxy})
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			assert.Equal(t, tt.want, rl.clientAddr(req))
		})
	}
}

func TestRateLimiter_CleanupAndEviction(t *testing.T) {
	rl := newTestLimiter(t, RateLimitConfig{RequestsPerSecond: 1, Burst: 1, MaxClients: 2, CleanupInterval: time.Minute})
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.Allow("a")
	now = now.Add(time.Second)
	rl.Allow("b")
	now = now.Add(time.Second)
	rl.Allow("c")

	rl.mu.Lock()
	_, hasA := rl.limiters["a"]
	size := len(rl.limiters)
	rl.mu.Unlock()
	assert.False(t, hasA)
	assert.Equal(t, 2, size)

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 2, rl.cleanup())
}
