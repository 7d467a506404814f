package httpapi

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"server/internal/http/handlers"
	"server/internal/infra"
	"server/internal/middleware"
)

// NewRouter assembles the HTTP surface. Trial registration is the only
// mutating route outside the bearer-token wall; everything billable sits
// behind it.
func NewRouter(cfg *infra.Config, app *handlers.App, lookup middleware.CountryLookup) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logger(app.Logger))
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.I18N(cfg.DefaultLocale, lookup))
	r.Use(middleware.RateLimit(cfg.RateLimitPerMin, time.Minute))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/healthz", app.Health)

		r.Post("/trial/register", app.TrialRegister)
		r.Get("/trial/status", app.TrialStatus)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWTSecret))

			r.Get("/credits", app.CreditsGet)
			r.Post("/credits/add", app.CreditsAdd)

			r.Post("/scan", app.Scan)
			r.Post("/assistant/chat", app.AssistantChat)

			r.Get("/history", app.HistoryList)
			r.Get("/history/{id}", app.HistoryGet)
			r.Delete("/history/{id}", app.HistoryDelete)

			r.Get("/stats/summary", app.StatsSummary)
		})
	})

	return r
}
