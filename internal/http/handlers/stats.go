package handlers

import (
	"net/http"

	"server/internal/sqlinline"
)

type statsSummaryResponse struct {
	ScansTotal        int64 `json:"scans_total"`
	ChatsTotal        int64 `json:"chats_total"`
	SuccessTotal      int64 `json:"success_total"`
	FailTotal         int64 `json:"fail_total"`
	TokensTotal       int64 `json:"tokens_total"`
	CreditsSpentTotal int64 `json:"credits_spent_total"`
	EventsLast24h     int64 `json:"events_last_24h"`
}

// StatsSummary aggregates usage events across all users.
func (a *App) StatsSummary(w http.ResponseWriter, r *http.Request) {
	if a.SQL == nil {
		a.error(w, http.StatusServiceUnavailable, "unavailable", "statistics are not available")
		return
	}

	var resp statsSummaryResponse
	row := a.SQL.QueryRow(r.Context(), sqlinline.QStatsSummary)
	if err := row.Scan(
		&resp.ScansTotal,
		&resp.ChatsTotal,
		&resp.SuccessTotal,
		&resp.FailTotal,
		&resp.TokensTotal,
		&resp.CreditsSpentTotal,
		&resp.EventsLast24h,
	); err != nil {
		a.Logger.Error().Err(err).Msg("failed to load usage summary")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load statistics")
		return
	}

	a.json(w, http.StatusOK, resp)
}
