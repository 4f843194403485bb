package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/org/legacyvault/internal/backup"
	"github.com/org/legacyvault/internal/core"
	"github.com/org/legacyvault/internal/crypto"
	"github.com/org/legacyvault/internal/mail"
	"github.com/org/legacyvault/internal/release"
	"github.com/org/legacyvault/internal/storage"
	"github.com/org/legacyvault/pkg/models"
	"github.com/rs/zerolog/log"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"errors":[%q]}`, msg)
}

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

// writeServiceError maps domain errors onto HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	var ve *models.ValidationError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, storage.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "already exists")
	case errors.Is(err, core.ErrLocked):
		writeError(w, http.StatusUnauthorized, "vault is locked")
	case errors.Is(err, release.ErrTrusteeLimit):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, backup.ErrInvalidFormat):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, crypto.ErrAuthentication):
		writeError(w, http.StatusForbidden, crypto.ErrAuthentication.Error())
	case errors.Is(err, mail.ErrConfiguration):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
