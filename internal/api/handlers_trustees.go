package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/org/legacyvault/pkg/models"
)

// TrusteeListHandler handles GET /v1/trustees
func (s *Server) TrusteeListHandler(w http.ResponseWriter, r *http.Request) {
	list, err := s.trustees.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if list == nil {
		list = []*models.Trustee{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": list, "max": models.MaxTrustees})
}

// TrusteeCreateHandler handles POST /v1/trustees
func (s *Server) TrusteeCreateHandler(w http.ResponseWriter, r *http.Request) {
	var req models.Trustee
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	t, err := s.trustees.Add(r.Context(), &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"data": t})
}

// TrusteeUpdateHandler handles PUT /v1/trustees/{id}
func (s *Server) TrusteeUpdateHandler(w http.ResponseWriter, r *http.Request) {
	var req models.Trustee
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	t, err := s.trustees.Update(r.Context(), chi.URLParam(r, "id"), &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": t})
}

// TrusteeDeleteHandler handles DELETE /v1/trustees/{id}
func (s *Server) TrusteeDeleteHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.trustees.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
