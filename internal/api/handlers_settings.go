package api

import (
	"errors"
	"net/http"

	"github.com/org/legacyvault/internal/storage"
	"github.com/org/legacyvault/pkg/models"
)

// EmailSettingsGetHandler handles GET /v1/settings/email
func (s *Server) EmailSettingsGetHandler(w http.ResponseWriter, r *http.Request) {
	es, err := s.store.GetEmailSettings(r.Context())
	if errors.Is(err, storage.ErrNotFound) {
		es = &models.EmailSettings{}
	} else if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": es})
}

// EmailSettingsUpdateHandler handles PUT /v1/settings/email. The last backup
// time is kept from the stored settings.
func (s *Server) EmailSettingsUpdateHandler(w http.ResponseWriter, r *http.Request) {
	var req models.EmailSettings
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeServiceError(w, err)
		return
	}
	if req.Backup != nil {
		if req.Backup.FrequencyDays == 0 {
			req.Backup.FrequencyDays = models.DefaultBackupFrequencyDays
		}
		req.Backup.LastSent = nil
		if cur, err := s.store.GetEmailSettings(r.Context()); err == nil && cur.Backup != nil {
			req.Backup.LastSent = cur.Backup.LastSent
		}
	}
	if err := s.store.PutEmailSettings(r.Context(), &req); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": &req})
}
