package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kadirpekel/mcpgate/pkg/alerts"
	"github.com/kadirpekel/mcpgate/pkg/ratelimit"
)

// admissionRequest is the request body for POST /v1/admission/check.
type admissionRequest struct {
	UserID    string `json:"user_id"`
	ToolName  string `json:"tool_name"`
	QuotaType string `json:"quota_type"`
}

func (s *Server) handleAdmissionCheck(w http.ResponseWriter, r *http.Request) {
	var req admissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "user_id is required")
		return
	}
	if req.QuotaType == "" {
		req.QuotaType = "tool_calls"
	}

	start := time.Now()
	result := s.manager.CheckLimits(r.Context(), req.UserID, req.ToolName, req.QuotaType)
	s.metrics.RecordAdmission(r.Context(), admissionLayer(result), result.Allowed, time.Since(start))

	for k, v := range result.Headers {
		w.Header().Set(k, v)
	}
	if !result.Allowed {
		ratelimit.WriteDenial(w, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func admissionLayer(result *ratelimit.CombinedResult) string {
	if result.Allowed {
		return "none"
	}
	if result.Reason == ratelimit.ReasonQuotaExceeded {
		return "quota"
	}
	if result.RateLimit != nil {
		return string(result.RateLimit.LimitType)
	}
	return "rate_limit"
}

func (s *Server) handleSecurityEvent(w http.ResponseWriter, r *http.Request) {
	var event alerts.SecurityEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	alert := s.alerts.HandleSecurityEvent(event)
	if alert == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "event type is required")
		return
	}
	writeJSON(w, http.StatusAccepted, alert)
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if q.Get("type") != "" || q.Get("severity") != "" || q.Get("user_id") != "" ||
		q.Get("tenant_id") != "" || q.Get("since") != "" {
		filter := alerts.Filter{
			Type:     q.Get("type"),
			Severity: alerts.Severity(q.Get("severity")),
			UserID:   q.Get("user_id"),
			TenantID: q.Get("tenant_id"),
		}
		if since := q.Get("since"); since != "" {
			ts, err := time.Parse(time.RFC3339, since)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request", "since must be RFC3339")
				return
			}
			filter.Since = ts
		}
		writeJSON(w, http.StatusOK, s.alerts.Find(filter))
		return
	}

	limit := 100
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, s.alerts.Recent(limit))
}

func (s *Server) handleAlertStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.alerts.Stats())
}

func (s *Server) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	alert, ok := s.alerts.Alert(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "alert not found")
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	if err := s.alerts.Acknowledge(chi.URLParam(r, "id")); err != nil {
		writeAlertError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type resolveRequest struct {
	Notes string `json:"notes"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
			return
		}
	}
	if err := s.alerts.Resolve(chi.URLParam(r, "id"), req.Notes); err != nil {
		writeAlertError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUserStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Limiter().GetUserStats(chi.URLParam(r, "userID")))
}

func (s *Server) handleUserReset(w http.ResponseWriter, r *http.Request) {
	s.manager.Limiter().ResetUser(chi.URLParam(r, "userID"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUserLimits(w http.ResponseWriter, r *http.Request) {
	var limits ratelimit.UserLimits
	if err := json.NewDecoder(r.Body).Decode(&limits); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if err := s.manager.Limiter().UpdateUserLimits(chi.URLParam(r, "userID"), limits); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type toolLimitRequest struct {
	Pattern   string `json:"pattern"`
	PerMinute int    `json:"per_minute"`
	Reason    string `json:"reason,omitempty"`
}

func (s *Server) handleAddToolLimit(w http.ResponseWriter, r *http.Request) {
	var req toolLimitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if err := s.manager.Limiter().AddToolLimit(req.Pattern, req.PerMinute, req.Reason); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeAlertError(w http.ResponseWriter, err error) {
	if errors.Is(err, alerts.ErrAlertNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "alert not found")
		return
	}
	writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{"code": code, "message": message},
	})
}
