package api

import (
	"net/http"
	"strconv"
)

// AuditLogHandler handles GET /v1/sys/audit-log?limit=
func (s *Server) AuditLogHandler(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": s.auditor.Recent(limit)})
}
