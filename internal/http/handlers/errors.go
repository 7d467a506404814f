package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"server/internal/domain"
	"server/internal/middleware"
)

type msgKey string

const (
	msgInsufficientCredits msgKey = "insufficient_credits"
	msgQuotaExhausted      msgKey = "quota_exhausted"
	msgTrialUsed           msgKey = "trial_used"
)

// The product launched in French; every ledger refusal ships in both
// languages so the client can show it verbatim.
var messages = map[msgKey]map[string]string{
	msgInsufficientCredits: {
		"en": "Insufficient credits. Balance: %d, required: %d",
		"fr": "Crédits insuffisants. Solde : %d, requis : %d",
	},
	msgQuotaExhausted: {
		"en": "Your daily quota is exhausted. Come back tomorrow for a fresh set of credits.",
		"fr": "Votre quota journalier est épuisé. Revenez demain pour obtenir votre nouveau quota de gemmes.",
	},
	msgTrialUsed: {
		"en": "This device has already used its free trial.",
		"fr": "Cet appareil a déjà utilisé son essai gratuit.",
	},
}

func localized(locale string, key msgKey, args ...any) string {
	byLocale, ok := messages[key]
	if !ok {
		return string(key)
	}
	msg, ok := byLocale[locale]
	if !ok {
		msg = byLocale["en"]
	}
	if len(args) == 0 {
		return msg
	}
	return fmt.Sprintf(msg, args...)
}

// ledgerFailure translates the expected credit-ledger errors into their HTTP
// representations. It returns false when the error is not a ledger refusal,
// so the caller can fall through to a generic storage failure.
func (a *App) ledgerFailure(w http.ResponseWriter, r *http.Request, err error) bool {
	locale := middleware.LocaleFromContext(r.Context())

	var insufficient *domain.InsufficientCreditsError
	switch {
	case errors.As(err, &insufficient):
		a.errorDetails(w, http.StatusPaymentRequired, "insufficient_credits",
			localized(locale, msgInsufficientCredits, insufficient.Available, insufficient.Required),
			map[string]any{
				"available": insufficient.Available,
				"required":  insufficient.Required,
			})
	case errors.Is(err, domain.ErrQuotaExhaustedToday):
		a.error(w, http.StatusForbidden, "quota_exhausted", localized(locale, msgQuotaExhausted))
	default:
		return false
	}
	return true
}
