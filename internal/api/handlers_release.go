package api

import (
	"net/http"

	"github.com/org/legacyvault/internal/crypto"
)

// ConditionsGetHandler handles GET /v1/release/conditions
func (s *Server) ConditionsGetHandler(w http.ResponseWriter, r *http.Request) {
	cond, err := s.release.Conditions(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": cond})
}

// ConditionsUpdateHandler handles PUT /v1/release/conditions. Only the
// threshold and trustee requirement are editable.
func (s *Server) ConditionsUpdateHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		InactivityThresholdDays int `json:"inactivityThresholdDays"`
		RequiredTrusteeCount    int `json:"requiredTrusteeCount"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cond, err := s.release.UpdateConditions(r.Context(), req.InactivityThresholdDays, req.RequiredTrusteeCount)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": cond})
}

// ActivityHandler handles POST /v1/release/activity
func (s *Server) ActivityHandler(w http.ResponseWriter, r *http.Request) {
	cond, err := s.release.TouchActivity(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": cond})
}

// ReleaseNowHandler handles POST /v1/release/now
func (s *Server) ReleaseNowHandler(w http.ResponseWriter, r *http.Request) {
	key, err := s.session.Key()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	defer crypto.Zero(key)

	res, err := s.release.ReleaseNow(r.Context(), key)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": res})
}

// PreviewHandler handles GET /v1/release/preview
func (s *Server) PreviewHandler(w http.ResponseWriter, r *http.Request) {
	key, err := s.session.Key()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	defer crypto.Zero(key)

	bundle, err := s.release.Preview(r.Context(), key)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(bundle)) //nolint:errcheck
}
