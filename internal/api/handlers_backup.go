package api

import (
	"io"
	"net/http"

	"github.com/org/legacyvault/internal/backup"
	"github.com/rs/zerolog/log"
)

const maxBackupBytes = 64 << 20

// BackupExportHandler handles GET /v1/backup. The body is the .legacy document.
func (s *Server) BackupExportHandler(w http.ResponseWriter, r *http.Request) {
	b, err := s.backups.Export(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	data, err := backup.Marshal(b)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+backup.Filename(b.Timestamp)+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data) //nolint:errcheck
}

// BackupImportHandler handles POST /v1/backup. Import may replace the key
// derivation settings, so the session is locked afterwards and the owner
// unlocks again with the backup's password.
func (s *Server) BackupImportHandler(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBackupBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	b, err := backup.Parse(data)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	sum, err := s.backups.Import(r.Context(), b)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.lock()
	s.refreshRecordGauge(r.Context())
	log.Info().Int("entries", sum.Entries).Msg("backup imported, session locked")
	writeJSON(w, http.StatusOK, map[string]any{"data": sum, "locked": true})
}

// BackupEmailHandler handles POST /v1/backup/email
func (s *Server) BackupEmailHandler(w http.ResponseWriter, r *http.Request) {
	st, err := s.backups.SendNow(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": st})
}
