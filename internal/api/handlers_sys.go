package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/org/legacyvault/internal/backup"
	"github.com/org/legacyvault/internal/crypto"
	"github.com/org/legacyvault/internal/release"
	"github.com/org/legacyvault/internal/storage"
	"github.com/org/legacyvault/pkg/models"
	"github.com/rs/zerolog/log"
)

// MinPasswordLength applies when the vault is first initialized.
const MinPasswordLength = 8

type passwordRequest struct {
	Password string `json:"password"`
}

type sessionResponse struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expiresAt"`
	Release   *release.Result `json:"release,omitempty"`
	Backup    *backup.Status  `json:"backup,omitempty"`
}

// InitHandler handles POST /v1/sys/init
func (s *Server) InitHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req passwordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Password) < MinPasswordLength {
		writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	salt, err := crypto.GenerateSalt()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	key, err := crypto.DeriveKey(req.Password, salt, s.cfg.KDFIterations)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	defer crypto.Zero(key)

	check, checkNonce, err := crypto.Encrypt(key, models.KeyCheckID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	settings := &models.KDFSettings{
		Salt:          salt,
		Iterations:    s.cfg.KDFIterations,
		KeyCheck:      check,
		KeyCheckNonce: checkNonce,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.store.InitSettings(ctx, settings); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			writeError(w, http.StatusBadRequest, "vault is already initialized")
			return
		}
		writeServiceError(w, err)
		return
	}
	if _, err := s.release.Conditions(ctx); err != nil {
		writeServiceError(w, err)
		return
	}

	resp, err := s.startSession(key)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	log.Info().Int("iterations", settings.Iterations).Msg("vault initialized")
	writeJSON(w, http.StatusOK, resp)
}

// UnlockHandler handles POST /v1/sys/unlock. The release conditions are
// evaluated once against the persisted state before this login counts as
// activity, then the backup schedule is checked once.
func (s *Server) UnlockHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req passwordRequest
	if err := decodeJSON(r, &req); err != nil || req.Password == "" {
		writeError(w, http.StatusBadRequest, "password is required")
		return
	}

	settings, err := s.store.GetSettings(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusBadRequest, "vault is not initialized")
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}

	key, err := crypto.DeriveKey(req.Password, settings.Salt, settings.Iterations)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	defer crypto.Zero(key)

	if err := verifyKey(key, settings); err != nil {
		log.Warn().Str("ip", clientIP(r)).Msg("unlock rejected")
		writeError(w, http.StatusForbidden, crypto.ErrAuthentication.Error())
		return
	}

	resp, err := s.startSession(key)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp.Release = s.checkRelease(ctx, key)
	if _, err := s.release.TouchActivity(ctx); err != nil {
		log.Error().Err(err).Msg("recording activity")
	}
	if st, err := s.backups.CheckAndSend(ctx); err != nil {
		log.Error().Err(err).Msg("checking backup schedule")
	} else {
		resp.Backup = st
	}
	s.refreshRecordGauge(ctx)

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) checkRelease(ctx context.Context, key []byte) *release.Result {
	res, err := s.release.CheckAndRelease(ctx, key)
	if err != nil {
		log.Error().Err(err).Msg("checking release conditions")
		return nil
	}
	if res.Released {
		log.Info().Msg("information automatically released to trustees")
	}
	return res
}

// verifyKey decrypts the key-check sentinel. Settings without one (older
// backups) are accepted and fail later on the first entry instead.
func verifyKey(key []byte, settings *models.KDFSettings) error {
	if len(settings.KeyCheck) == 0 {
		return nil
	}
	var got string
	if err := crypto.Decrypt(key, settings.KeyCheck, settings.KeyCheckNonce, &got); err != nil {
		return err
	}
	if got != models.KeyCheckID {
		return crypto.ErrAuthentication
	}
	return nil
}

func (s *Server) startSession(key []byte) (*sessionResponse, error) {
	token, exp, err := s.tokens.Issue()
	if err != nil {
		return nil, err
	}
	s.session.Unlock(key, s.now())
	sessionUnlocked.Set(1)
	return &sessionResponse{Token: token, ExpiresAt: exp}, nil
}

func (s *Server) refreshRecordGauge(ctx context.Context) {
	if n, err := s.store.CountRecords(ctx); err == nil {
		recordsTotal.Set(float64(n))
	}
}

// LockHandler handles PUT /v1/sys/lock
func (s *Server) LockHandler(w http.ResponseWriter, r *http.Request) {
	s.lock()
	writeJSON(w, http.StatusOK, map[string]any{"locked": true})
}

// StatusHandler handles GET /v1/sys/status
func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	_, err := s.store.GetSettings(r.Context())
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		writeServiceError(w, err)
		return
	}
	resp := map[string]any{
		"initialized": err == nil,
		"locked":      s.session.IsLocked(),
		"version":     Version,
	}
	if exp := s.tokens.ExpiresAt(); !exp.IsZero() {
		resp["expiresAt"] = exp
	}
	writeJSON(w, http.StatusOK, resp)
}

// HealthHandler handles GET /v1/sys/health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": Version,
	})
}
