package domain

import "time"

// CreditAccount is the per-user credit ledger record. One row exists per user
// identifier; it is created lazily on first access and refilled to the daily
// quota once per UTC calendar day.
type CreditAccount struct {
	UserID         string
	Balance        int
	QuotaResetDate *time.Time // nil means the account has never been reset
	UpdatedAt      time.Time
}

// ResetDueAt reports whether the account's daily refill is due at the given
// UTC calendar date. A nil reset date counts as due.
func (a *CreditAccount) ResetDueAt(today time.Time) bool {
	return a.QuotaResetDate == nil || a.QuotaResetDate.Before(today)
}
