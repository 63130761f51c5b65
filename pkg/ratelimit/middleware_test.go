package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareAllowsAndDenies(t *testing.T) {
	clock := newFakeClock()
	cfg := testLimiterConfig()
	cfg.GlobalMaxTokens = 1000
	cfg.GlobalRefillRate = 100
	cfg.UserPerMinute = 2
	l := newTestLimiter(t, cfg, clock)
	m := NewManager(l, nil, "daily")

	var sawResult *CombinedResult
	handler := Middleware(MiddlewareConfig{Manager: m})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawResult = ResultFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/call", nil)
		req.Header.Set("X-User-ID", "alice")
		req.Header.Set("X-Tool-Name", "web_search")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	rec := do()
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, sawResult)
	assert.True(t, sawResult.Allowed)
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Remaining"))

	do()
	rec = do()
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate_limit")
}

func TestMiddlewareExcludedPaths(t *testing.T) {
	clock := newFakeClock()
	cfg := testLimiterConfig()
	cfg.UserPerMinute = 1
	l := newTestLimiter(t, cfg, clock)
	m := NewManager(l, nil, "daily")

	handler := Middleware(MiddlewareConfig{
		Manager:       m,
		ExcludedPaths: []string{"/healthz"},
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, 0, l.GetUserStats("alice").Windows[0].Used)
}

func TestDefaultIdentityFunc(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User-ID", "alice")
	req.Header.Set("X-Tool-Name", "db_query")
	userID, toolName, quotaType := DefaultIdentityFunc(req)
	assert.Equal(t, "alice", userID)
	assert.Equal(t, "db_query", toolName)
	assert.Equal(t, "tool_calls", quotaType)

	// Without a user header the remote address stands in.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	userID, _, _ = DefaultIdentityFunc(req)
	assert.Equal(t, req.RemoteAddr, userID)
}
