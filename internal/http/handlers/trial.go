package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"server/internal/credits"
	"server/internal/domain"
	"server/internal/middleware"
)

// trialTokenTTL is deliberately long: trial identities have no password to
// come back with, so the token is their only key.
const trialTokenTTL = 30 * 24 * time.Hour

type trialRegisterRequest struct {
	DeviceID string `json:"device_id"`
}

type trialRegisterResponse struct {
	Token   string `json:"token"`
	UserID  string `json:"user_id"`
	Credits int    `json:"credits"`
}

// TrialRegister issues an anonymous trial identity for a device. Each device
// gets exactly one; the unique index on the device table is the arbiter when
// two registrations race.
func (a *App) TrialRegister(w http.ResponseWriter, r *http.Request) {
	var req trialRegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	deviceID := strings.TrimSpace(req.DeviceID)
	if deviceID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "device_id must not be empty")
		return
	}

	locale := middleware.LocaleFromContext(r.Context())

	used, err := a.Trials.HasUsedTrial(r.Context(), deviceID)
	if err != nil {
		a.Logger.Error().Err(err).Str("device_id", deviceID).Msg("failed to check trial status")
		a.error(w, http.StatusInternalServerError, "internal", "failed to check trial status")
		return
	}
	if used {
		a.error(w, http.StatusConflict, "trial_used", localized(locale, msgTrialUsed))
		return
	}

	userID := uuid.NewString()
	if err := a.Trials.Register(r.Context(), deviceID, userID); err != nil {
		if errors.Is(err, domain.ErrTrialAlreadyUsed) {
			a.error(w, http.StatusConflict, "trial_used", localized(locale, msgTrialUsed))
			return
		}
		a.Logger.Error().Err(err).Str("device_id", deviceID).Msg("failed to register trial device")
		a.error(w, http.StatusInternalServerError, "internal", "failed to register trial")
		return
	}

	token, err := middleware.SignToken(a.JWTSecret, userID, true, trialTokenTTL)
	if err != nil {
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("failed to sign trial token")
		a.error(w, http.StatusInternalServerError, "internal", "failed to issue token")
		return
	}

	// Seed the ledger now so the very first scan does not pay the
	// account-creation round trip.
	if _, err := a.Credits.Balance(r.Context(), userID, true); err != nil {
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("failed to seed trial credits")
	}

	a.Logger.Info().Str("device_id", deviceID).Str("user_id", userID).Msg("trial registered")
	a.json(w, http.StatusCreated, trialRegisterResponse{
		Token:   token,
		UserID:  userID,
		Credits: credits.DailyQuotaTrial,
	})
}

// TrialStatus reports whether a device already consumed its trial.
func (a *App) TrialStatus(w http.ResponseWriter, r *http.Request) {
	deviceID := strings.TrimSpace(r.URL.Query().Get("device_id"))
	if deviceID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "device_id query parameter is required")
		return
	}

	used, err := a.Trials.HasUsedTrial(r.Context(), deviceID)
	if err != nil {
		a.Logger.Error().Err(err).Str("device_id", deviceID).Msg("failed to check trial status")
		a.error(w, http.StatusInternalServerError, "internal", "failed to check trial status")
		return
	}

	a.json(w, http.StatusOK, map[string]bool{"trial_used": used})
}
