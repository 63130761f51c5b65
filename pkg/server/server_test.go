package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/mcpgate/pkg/alerts"
	"github.com/kadirpekel/mcpgate/pkg/config"
	"github.com/kadirpekel/mcpgate/pkg/observability"
	"github.com/kadirpekel/mcpgate/pkg/quota"
	"github.com/kadirpekel/mcpgate/pkg/ratelimit"
	"github.com/kadirpekel/mcpgate/pkg/testutils"
)

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()

	limiter, err := ratelimit.New(&config.RateLimitConfig{
		Enabled:          config.BoolPtr(true),
		GlobalMaxTokens:  1000,
		GlobalRefillRate: 100,
		UserPerMinute:    5,
		UserPerHour:      1000,
		UserPerDay:       10000,
		SweepInterval:    "1h",
	})
	require.NoError(t, err)
	t.Cleanup(limiter.Close)

	tracker, err := quota.NewTracker(testutils.TestQuotaConfig())
	require.NoError(t, err)

	alertManager, err := alerts.NewManager(testutils.TestAlertsConfig(), alerts.WithSyncDispatch())
	require.NoError(t, err)
	t.Cleanup(alertManager.Close)

	metrics, err := observability.InitMetrics(config.MetricsConfig{})
	require.NoError(t, err)

	serverCfg := &config.ServerConfig{}
	serverCfg.SetDefaults()

	s := New(serverCfg, ratelimit.NewManager(limiter, tracker, "daily"), alertManager, metrics)
	return s, s.routes()
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	_, handler := newTestServer(t)
	rec := doJSON(t, handler, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestAdmissionCheckAllowed(t *testing.T) {
	_, handler := newTestServer(t)

	rec := doJSON(t, handler, http.MethodPost, "/v1/admission/check", map[string]string{
		"user_id":   "alice",
		"tool_name": "web_search",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("X-Quota-Remaining"))

	var result ratelimit.CombinedResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Allowed)
}

func TestAdmissionCheckDenied(t *testing.T) {
	_, handler := newTestServer(t)

	body := map[string]string{"user_id": "alice"}
	for i := 0; i < 3; i++ {
		rec := doJSON(t, handler, http.MethodPost, "/v1/admission/check", body)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	// Free tier quota allows 3 daily tool calls; the 4th is denied.
	rec := doJSON(t, handler, http.MethodPost, "/v1/admission/check", body)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "quota_exceeded")
	assert.Equal(t, "0", rec.Header().Get("X-Quota-Remaining"))
}

func TestAdmissionCheckRateLimitDenied(t *testing.T) {
	_, handler := newTestServer(t)

	// quota_type "requests" is untracked, so only the limiter applies and
	// the per-minute window of 5 denies the 6th request.
	body := map[string]string{"user_id": "bob", "quota_type": "requests"}
	for i := 0; i < 5; i++ {
		rec := doJSON(t, handler, http.MethodPost, "/v1/admission/check", body)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := doJSON(t, handler, http.MethodPost, "/v1/admission/check", body)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate_limit")
}

func TestAdmissionCheckBadRequest(t *testing.T) {
	_, handler := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/admission/check", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/v1/admission/check", map[string]string{"tool_name": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSecurityEventEndpoint(t *testing.T) {
	_, handler := newTestServer(t)

	rec := doJSON(t, handler, http.MethodPost, "/v1/events", map[string]string{
		"type":    "prompt_injection",
		"message": "ignore previous instructions",
		"source":  "detector",
		"user_id": "alice",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var alert alerts.Alert
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &alert))
	assert.Equal(t, alerts.SeverityCritical, alert.Severity)
	assert.True(t, alert.Delivered)

	// Events without a type are rejected.
	rec = doJSON(t, handler, http.MethodPost, "/v1/events", map[string]string{"message": "no type"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAlertLifecycleEndpoints(t *testing.T) {
	_, handler := newTestServer(t)

	rec := doJSON(t, handler, http.MethodPost, "/v1/events", map[string]string{
		"type":    "auth_failure",
		"message": "bad token",
		"user_id": "alice",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var created alerts.Alert
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, handler, http.MethodGet, "/v1/alerts/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/v1/alerts/"+created.ID+"/ack", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/v1/alerts/"+created.ID+"/resolve", map[string]string{"notes": "rotated key"})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/v1/alerts/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var fetched alerts.Alert
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fetched))
	assert.True(t, fetched.Acknowledged)
	assert.True(t, fetched.Resolved)
	assert.Equal(t, "rotated key", fetched.ResolutionNotes)

	rec = doJSON(t, handler, http.MethodGet, "/v1/alerts/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = doJSON(t, handler, http.MethodPost, "/v1/alerts/nope/ack", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAlertListAndStats(t *testing.T) {
	_, handler := newTestServer(t)

	for i := 0; i < 3; i++ {
		rec := doJSON(t, handler, http.MethodPost, "/v1/events", map[string]string{
			"type":    "policy_violation",
			"message": fmt.Sprintf("violation %d", i),
			"user_id": fmt.Sprintf("user-%d", i),
		})
		require.Equal(t, http.StatusAccepted, rec.Code)
	}

	rec := doJSON(t, handler, http.MethodGet, "/v1/alerts/?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []alerts.Alert
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Len(t, listed, 2)

	rec = doJSON(t, handler, http.MethodGet, "/v1/alerts/?user_id=user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "user-1", listed[0].UserID)

	rec = doJSON(t, handler, http.MethodGet, "/v1/alerts/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats alerts.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 3, stats.Total)
}

func TestUserAdminEndpoints(t *testing.T) {
	_, handler := newTestServer(t)

	body := map[string]string{"user_id": "alice", "quota_type": "requests"}
	for i := 0; i < 3; i++ {
		doJSON(t, handler, http.MethodPost, "/v1/admission/check", body)
	}

	rec := doJSON(t, handler, http.MethodGet, "/v1/users/alice/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats ratelimit.UserStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.NotEmpty(t, stats.Windows)
	assert.Equal(t, 3, stats.Windows[0].Used)

	rec = doJSON(t, handler, http.MethodPost, "/v1/users/alice/reset", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/v1/users/alice/stats", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 0, stats.Windows[0].Used)

	rec = doJSON(t, handler, http.MethodPut, "/v1/users/alice/limits", ratelimit.UserLimits{
		PerMinute: 100, PerHour: 1000, PerDay: 10000,
	})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, handler, http.MethodPut, "/v1/users/alice/limits", ratelimit.UserLimits{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddToolLimitEndpoint(t *testing.T) {
	_, handler := newTestServer(t)

	rec := doJSON(t, handler, http.MethodPost, "/v1/tools/limits", map[string]interface{}{
		"pattern":    "db_*",
		"per_minute": 1,
		"reason":     "database budget",
	})
	require.Equal(t, http.StatusNoContent, rec.Code)

	body := map[string]string{"user_id": "alice", "tool_name": "db_query", "quota_type": "requests"}
	rec = doJSON(t, handler, http.MethodPost, "/v1/admission/check", body)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, handler, http.MethodPost, "/v1/admission/check", body)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "database budget")

	rec = doJSON(t, handler, http.MethodPost, "/v1/tools/limits", map[string]interface{}{
		"pattern": "", "per_minute": 5,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
