package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"server/internal/credits"
	"server/internal/domain"
	"server/internal/infra"
	"server/internal/middleware"
	"server/internal/providers/gemini"
	"server/internal/sqlinline"
)

// App bundles the dependencies shared by the HTTP handlers.
type App struct {
	Logger    zerolog.Logger
	SQL       infra.SQLExecutor
	Credits   *credits.Service
	Scans     domain.ScanRecordRepository
	Trials    domain.TrialDeviceRepository
	Analyzer  gemini.Analyzer
	Assistant gemini.Assistant
	JWTSecret string
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.errorDetails(w, status, code, message, nil)
}

func (a *App) errorDetails(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	body := map[string]any{"code": code, "message": message}
	if len(details) > 0 {
		body["details"] = details
	}
	a.json(w, status, map[string]any{"error": body})
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

func (a *App) currentIsTrial(r *http.Request) bool {
	return middleware.IsTrialFromContext(r.Context())
}

// recordUsage writes a usage event for analytics. Failures are logged and
// swallowed; billing must not depend on the analytics path.
func (a *App) recordUsage(r *http.Request, eventType string, success bool, tokens, cost int) {
	if a.SQL == nil {
		return
	}
	_, err := a.SQL.Exec(r.Context(), sqlinline.QInsertUsageEvent,
		middleware.UserIDFromContext(r.Context()),
		middleware.RequestIDFromContext(r.Context()),
		eventType,
		success,
		tokens,
		cost,
		middleware.CountryFromContext(r.Context()),
	)
	if err != nil {
		a.Logger.Error().Err(err).Str("event_type", eventType).Msg("failed to record usage event")
	}
}
