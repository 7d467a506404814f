package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"server/internal/credits"
)

type creditsResponse struct {
	Credits     int    `json:"credits"`
	NextResetAt string `json:"next_reset_at"`
}

type creditsAddRequest struct {
	Amount int `json:"amount"`
}

// CreditsGet returns the caller's current balance after any due daily refill.
func (a *App) CreditsGet(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}

	balance, err := a.Credits.Balance(r.Context(), userID, a.currentIsTrial(r))
	if err != nil {
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("failed to load credits")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load credits")
		return
	}

	a.json(w, http.StatusOK, creditsResponse{
		Credits:     balance,
		NextResetAt: credits.NextReset(time.Now()).Format(time.RFC3339),
	})
}

// CreditsAdd grants bonus credits to the caller. An account that burned
// today's whole quota is refused until the next daily refill.
func (a *App) CreditsAdd(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}

	var req creditsAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.Amount <= 0 {
		a.error(w, http.StatusUnprocessableEntity, "invalid_amount", "amount must be a positive integer")
		return
	}

	balance, err := a.Credits.AddBonus(r.Context(), userID, req.Amount, a.currentIsTrial(r))
	if err != nil {
		if a.ledgerFailure(w, r, err) {
			return
		}
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("failed to add credits")
		a.error(w, http.StatusInternalServerError, "internal", "failed to add credits")
		return
	}

	a.json(w, http.StatusOK, creditsResponse{
		Credits:     balance,
		NextResetAt: credits.NextReset(time.Now()).Format(time.RFC3339),
	})
}
