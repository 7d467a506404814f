package domain

import (
	"context"
	"time"
)

// CreditAccountRepository defines the durable store contract for the credit
// ledger. Mutations that must be race-free under concurrent requests
// (Debit, ResetIfDue, CreditIfAllowed) are single conditional updates
// executed by the store, never read-then-write in application code.
type CreditAccountRepository interface {
	// Get returns the account or ErrNotFound.
	Get(ctx context.Context, userID string) (*CreditAccount, error)

	// Create inserts the account if no row exists yet and returns the stored
	// row. Concurrent first-touch calls for the same user converge on the
	// single row that won the insert.
	Create(ctx context.Context, acct *CreditAccount) (*CreditAccount, error)

	// ResetIfDue refills the balance to quota and stamps today's date, but
	// only when the stored reset date is unset or before today. It returns
	// the current row whether or not the refill applied.
	ResetIfDue(ctx context.Context, userID string, quota int, today time.Time) (*CreditAccount, error)

	// Debit atomically decrements the balance when it covers the cost and
	// returns the new balance. Returns ErrInsufficientCredits without
	// mutating when it does not.
	Debit(ctx context.Context, userID string, cost int) (int, error)

	// CreditIfAllowed atomically adds amount to the balance unless the
	// account sits at zero with today's reset date already consumed, in
	// which case it returns ErrQuotaExhaustedToday.
	CreditIfAllowed(ctx context.Context, userID string, amount int, today time.Time) (int, error)
}

// ScanRecordRepository persists medication scan history.
type ScanRecordRepository interface {
	Create(ctx context.Context, rec *ScanRecord) error
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]ScanRecord, error)
	GetByID(ctx context.Context, id, userID string) (*ScanRecord, error)
	Delete(ctx context.Context, id, userID string) error
}

// TrialDeviceRepository tracks which devices already used their one-time trial.
type TrialDeviceRepository interface {
	HasUsedTrial(ctx context.Context, deviceID string) (bool, error)
	Register(ctx context.Context, deviceID, userID string) error
}
