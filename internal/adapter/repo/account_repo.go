package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// CreditAccountRepositoryPG implements domain.CreditAccountRepository backed
// by PostgreSQL. All balance mutations are single conditional UPDATE
// statements so concurrent requests for the same user are serialized by the
// database rather than by application memory.
type CreditAccountRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewCreditAccountRepository creates a new CreditAccountRepositoryPG.
func NewCreditAccountRepository(pool *pgxpool.Pool) *CreditAccountRepositoryPG {
	return &CreditAccountRepositoryPG{pool: pool}
}

// Get fetches the account row for a user.
func (r *CreditAccountRepositoryPG) Get(ctx context.Context, userID string) (*domain.CreditAccount, error) {
	row := r.pool.QueryRow(ctx, `
SELECT user_id, balance, quota_reset_date, updated_at
FROM credit_accounts
WHERE user_id = $1;
`, userID)
	return scanAccount(row)
}

// Create inserts the account unless a concurrent request beat us to it, then
// returns whichever row is stored.
func (r *CreditAccountRepositoryPG) Create(ctx context.Context, acct *domain.CreditAccount) (*domain.CreditAccount, error) {
	_, err := r.pool.Exec(ctx, `
INSERT INTO credit_accounts (user_id, balance, quota_reset_date)
VALUES ($1, $2, $3)
ON CONFLICT (user_id) DO NOTHING;
`, acct.UserID, acct.Balance, acct.QuotaResetDate)
	if err != nil {
		return nil, storageErr("credit_accounts.insert", err)
	}
	return r.Get(ctx, acct.UserID)
}

// ResetIfDue applies the daily refill only when the stored reset date is
// unset or before today, then returns the current row. The WHERE guard makes
// the refill happen once per day no matter how many requests cross the
// boundary together.
func (r *CreditAccountRepositoryPG) ResetIfDue(ctx context.Context, userID string, quota int, today time.Time) (*domain.CreditAccount, error) {
	_, err := r.pool.Exec(ctx, `
UPDATE credit_accounts
SET balance = $2,
    quota_reset_date = $3,
    updated_at = NOW()
WHERE user_id = $1
  AND (quota_reset_date IS NULL OR quota_reset_date < $3);
`, userID, quota, today)
	if err != nil {
		return nil, storageErr("credit_accounts.reset", err)
	}
	return r.Get(ctx, userID)
}

// Debit decrements the balance when it covers the cost. Sufficiency is
// decided by the UPDATE itself; zero affected rows means the balance was too
// low (or the row vanished) and nothing changed.
func (r *CreditAccountRepositoryPG) Debit(ctx context.Context, userID string, cost int) (int, error) {
	row := r.pool.QueryRow(ctx, `
UPDATE credit_accounts
SET balance = balance - $2,
    updated_at = NOW()
WHERE user_id = $1
  AND balance >= $2
RETURNING balance;
`, userID, cost)

	var balance int
	if err := row.Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrInsufficientCredits
		}
		return 0, storageErr("credit_accounts.debit", err)
	}
	return balance, nil
}

// CreditIfAllowed adds bonus credits unless the account already burned
// today's whole quota (balance zero with today's reset date stamped).
func (r *CreditAccountRepositoryPG) CreditIfAllowed(ctx context.Context, userID string, amount int, today time.Time) (int, error) {
	row := r.pool.QueryRow(ctx, `
UPDATE credit_accounts
SET balance = balance + $2,
    updated_at = NOW()
WHERE user_id = $1
  AND NOT (balance = 0 AND quota_reset_date = $3)
RETURNING balance;
`, userID, amount, today)

	var balance int
	if err := row.Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrQuotaExhaustedToday
		}
		return 0, storageErr("credit_accounts.credit", err)
	}
	return balance, nil
}

func scanAccount(row pgx.Row) (*domain.CreditAccount, error) {
	var acct domain.CreditAccount
	if err := row.Scan(&acct.UserID, &acct.Balance, &acct.QuotaResetDate, &acct.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, storageErr("credit_accounts.get", err)
	}
	return &acct, nil
}

func storageErr(op string, err error) error {
	return &domain.StorageError{Op: op, Err: err}
}
