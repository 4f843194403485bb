package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/org/legacyvault/pkg/models"
)

type recordRequest struct {
	Category models.Category `json:"category"`
	Fields   map[string]any  `json:"fields"`
}

type recordFailure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// RecordListHandler handles GET /v1/records?category=
func (s *Server) RecordListHandler(w http.ResponseWriter, r *http.Request) {
	category := models.Category(r.URL.Query().Get("category"))
	if category != "" && !category.Valid() {
		writeError(w, http.StatusBadRequest, "unknown category")
		return
	}
	entries, failed, err := s.records.List(r.Context(), category)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	resp := map[string]any{"data": entries}
	if len(failed) > 0 {
		out := make([]recordFailure, len(failed))
		for i, f := range failed {
			out[i] = recordFailure{ID: f.ID, Error: f.Err.Error()}
		}
		resp["failed"] = out
	}
	writeJSON(w, http.StatusOK, resp)
}

// RecordCreateHandler handles POST /v1/records
func (s *Server) RecordCreateHandler(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	entry, err := s.records.Save(r.Context(), &models.Entry{Category: req.Category, Fields: req.Fields})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.refreshRecordGauge(r.Context())
	writeJSON(w, http.StatusCreated, map[string]any{"data": entry})
}

// RecordGetHandler handles GET /v1/records/{id}
func (s *Server) RecordGetHandler(w http.ResponseWriter, r *http.Request) {
	entry, err := s.records.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": entry})
}

// RecordUpdateHandler handles PUT /v1/records/{id}. The entry must exist;
// its category may not change.
func (s *Server) RecordUpdateHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req recordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cur, err := s.store.GetRecord(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if req.Category == "" {
		req.Category = cur.Category
	}
	if req.Category != cur.Category {
		writeError(w, http.StatusBadRequest, "category cannot be changed")
		return
	}
	entry, err := s.records.Save(r.Context(), &models.Entry{ID: id, Category: req.Category, Fields: req.Fields})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": entry})
}

// RecordDeleteHandler handles DELETE /v1/records/{id}
func (s *Server) RecordDeleteHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.records.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	s.refreshRecordGauge(r.Context())
	w.WriteHeader(http.StatusNoContent)
}
