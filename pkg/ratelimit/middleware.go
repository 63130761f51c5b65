package ratelimit

import (
	"context"
	"encoding/json"
	"net/http"
)

// IdentityFunc extracts the user, tool, and quota type from a request.
type IdentityFunc func(r *http.Request) (userID, toolName, quotaType string)

// DefaultIdentityFunc reads X-User-ID and X-Tool-Name headers, falling back
// to the remote address for the user.
func DefaultIdentityFunc(r *http.Request) (string, string, string) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		userID = r.RemoteAddr
	}
	return userID, r.Header.Get("X-Tool-Name"), "tool_calls"
}

// MiddlewareConfig configures the admission middleware.
type MiddlewareConfig struct {
	// Manager performs the combined rate-limit + quota check.
	Manager *Manager

	// IdentityFunc extracts identity from requests.
	// If nil, DefaultIdentityFunc is used.
	IdentityFunc IdentityFunc

	// ExcludedPaths bypass admission control (health, metrics).
	ExcludedPaths []string
}

// Middleware enforces admission control on an HTTP handler chain,
// answering 429 with the contract headers on denial.
func Middleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	if cfg.Manager == nil {
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	if cfg.IdentityFunc == nil {
		cfg.IdentityFunc = DefaultIdentityFunc
	}

	excluded := make(map[string]bool, len(cfg.ExcludedPaths))
	for _, path := range cfg.ExcludedPaths {
		excluded[path] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if excluded[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			userID, toolName, quotaType := cfg.IdentityFunc(r)
			result := cfg.Manager.CheckLimits(r.Context(), userID, toolName, quotaType)

			for k, v := range result.Headers {
				w.Header().Set(k, v)
			}

			if !result.Allowed {
				WriteDenial(w, result)
				return
			}

			ctx := context.WithValue(r.Context(), admissionKey{}, result)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type admissionKey struct{}

// ResultFromContext extracts the admission decision placed by Middleware.
func ResultFromContext(ctx context.Context) *CombinedResult {
	if result, ok := ctx.Value(admissionKey{}).(*CombinedResult); ok {
		return result
	}
	return nil
}

// WriteDenial writes a 429 JSON body for a denied combined result.
// Contract headers are assumed to be set already by the caller.
func WriteDenial(w http.ResponseWriter, result *CombinedResult) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	body := map[string]interface{}{
		"error": map[string]interface{}{
			"code":    string(result.Reason),
			"message": denialMessage(result),
		},
	}
	if result.RateLimit != nil && result.RateLimit.RetryAfterSeconds > 0 {
		body["retry_after_seconds"] = result.RateLimit.RetryAfterSeconds
	}
	_ = json.NewEncoder(w).Encode(body)
}

func denialMessage(result *CombinedResult) string {
	if result.RateLimit != nil && result.RateLimit.Reason != "" {
		return result.RateLimit.Reason
	}
	if result.Reason == ReasonQuotaExceeded {
		return "quota exceeded"
	}
	return "rate limit exceeded"
}
