package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTakeWithinLimit(t *testing.T) {
	l := newLimiter(RateLimitConfig{Max: 3, Window: time.Minute})
	now := time.Now()

	for i := 0; i < 3; i++ {
		remaining, _, ok := l.take("k", now)
		require.True(t, ok, "request %d rejected", i+1)
		assert.Equal(t, 2-i, remaining)
	}

	remaining, _, ok := l.take("k", now)
	assert.False(t, ok)
	assert.Equal(t, 0, remaining)
}

func TestTakeKeysAreIndependent(t *testing.T) {
	l := newLimiter(RateLimitConfig{Max: 1, Window: time.Minute})
	now := time.Now()

	_, _, ok := l.take("a", now)
	require.True(t, ok)
	_, _, ok = l.take("a", now)
	require.False(t, ok)

	_, _, ok = l.take("b", now)
	assert.True(t, ok, "key b throttled by key a")
}

func TestTakeSlidingCarryover(t *testing.T) {
	l := newLimiter(RateLimitConfig{Max: 10, Window: time.Minute})
	start := time.Now()

	// Fill the first window.
	for i := 0; i < 10; i++ {
		_, _, ok := l.take("k", start)
		require.True(t, ok)
	}

	// Just into the next window nearly all of the previous one still
	// counts, so the budget admits one request and no more.
	_, _, ok := l.take("k", start.Add(time.Minute+time.Second))
	require.True(t, ok)
	_, _, ok = l.take("k", start.Add(time.Minute+2*time.Second))
	assert.False(t, ok)

	// Halfway through, half the budget has slid free.
	remaining, _, ok := l.take("k", start.Add(time.Minute+30*time.Second))
	assert.True(t, ok)
	assert.LessOrEqual(t, remaining, 5)
}

func TestTakeResetsAfterIdle(t *testing.T) {
	l := newLimiter(RateLimitConfig{Max: 1, Window: time.Minute})
	start := time.Now()

	_, _, ok := l.take("k", start)
	require.True(t, ok)
	_, _, ok = l.take("k", start)
	require.False(t, ok)

	// Two full windows later the old counts no longer apply.
	_, _, ok = l.take("k", start.Add(3*time.Minute))
	assert.True(t, ok)
}

func TestSweepEvictsIdleBuckets(t *testing.T) {
	l := newLimiter(RateLimitConfig{Max: 5, Window: time.Minute})
	now := time.Now()

	l.take("stale", now)
	l.take("fresh", now)

	// Make "fresh" recent again before sweeping.
	l.take("fresh", now.Add(2*time.Minute))
	l.sweep(now.Add(2 * time.Minute))

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.NotContains(t, l.buckets, "stale")
	assert.Contains(t, l.buckets, "fresh")
}

func TestRateLimitMiddleware(t *testing.T) {
	mw := RateLimit(RateLimitConfig{Max: 2, Window: time.Minute})
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := do()
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))

	do()

	rec = do()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"code":429,"message":"rate limit exceeded"}`, rec.Body.String())
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.9:5000"
	assert.Equal(t, "192.0.2.9", clientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.7")
	assert.Equal(t, "198.51.100.7", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.4, 198.51.100.7")
	assert.Equal(t, "203.0.113.4", clientIP(req))
}
