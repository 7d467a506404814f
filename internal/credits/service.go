package credits

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"server/internal/domain"
)

// Service owns the credit lifecycle for every user: lazy account creation,
// the daily refill, sufficiency checks, atomic debits and bonus grants.
//
// The service keeps no per-user state between calls; every operation is a
// fresh round trip to the account repository so multiple instances can run
// behind a load balancer without diverging. The account class (trial or
// full) is supplied by the caller on every call and is not persisted, so the
// stored record is reinterpreted if the caller's classification changes.
type Service struct {
	accounts domain.CreditAccountRepository
	logger   zerolog.Logger
	now      func() time.Time
}

// NewService constructs the ledger service.
func NewService(accounts domain.CreditAccountRepository, logger zerolog.Logger) *Service {
	return &Service{
		accounts: accounts,
		logger:   logger.With().Str("component", "credits").Logger(),
		now:      time.Now,
	}
}

// today returns midnight UTC of the current calendar day. The refill
// boundary is the UTC date change, not a rolling 24-hour window.
func (s *Service) today() time.Time {
	t := s.now().UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// NextReset returns the upcoming refill instant: midnight UTC of the day
// after now.
func NextReset(now time.Time) time.Time {
	t := now.UTC().AddDate(0, 0, 1)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// GetOrCreate fetches the account, creating it seeded with the class quota on
// first touch and refilling it when the stored reset date is before today.
// The refill itself is a conditional update at the store, so concurrent
// callers crossing the same day boundary apply it once.
func (s *Service) GetOrCreate(ctx context.Context, userID string, isTrial bool) (*domain.CreditAccount, error) {
	today := s.today()

	acct, err := s.accounts.Get(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		quota := DailyQuota(isTrial)
		created, cerr := s.accounts.Create(ctx, &domain.CreditAccount{
			UserID:         userID,
			Balance:        quota,
			QuotaResetDate: &today,
		})
		if cerr != nil {
			return nil, cerr
		}
		s.logger.Info().
			Str("user_id", userID).
			Int("credits", created.Balance).
			Bool("is_trial", isTrial).
			Msg("credit account created with daily quota")
		return created, nil
	}
	if err != nil {
		return nil, err
	}

	if !acct.ResetDueAt(today) {
		return acct, nil
	}

	reset, err := s.accounts.ResetIfDue(ctx, userID, DailyQuota(isTrial), today)
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("user_id", userID).
		Int("credits", reset.Balance).
		Bool("is_trial", isTrial).
		Msg("daily quota reset")
	return reset, nil
}

// Balance returns the current balance after any due refill.
func (s *Service) Balance(ctx context.Context, userID string, isTrial bool) (int, error) {
	acct, err := s.GetOrCreate(ctx, userID, isTrial)
	if err != nil {
		return 0, err
	}
	return acct.Balance, nil
}

// EnsureSufficient verifies the balance covers the operation about to run.
// A positive estimatedTokens overrides the fixed cost. This is a
// look-before-you-leap check, not a reservation: it holds nothing, and a
// concurrent debit may still exhaust the balance before Consume runs.
func (s *Service) EnsureSufficient(ctx context.Context, userID string, cost int, isTrial bool, estimatedTokens int) error {
	required := effectiveCost(cost, estimatedTokens)
	acct, err := s.GetOrCreate(ctx, userID, isTrial)
	if err != nil {
		return err
	}
	if acct.Balance < required {
		s.logger.Warn().
			Str("user_id", userID).
			Int("credits", acct.Balance).
			Int("required", required).
			Msg("insufficient credits")
		return &domain.InsufficientCreditsError{Available: acct.Balance, Required: required}
	}
	return nil
}

// Consume charges the operation's real cost and returns the new balance. A
// positive actualTokens overrides the fixed cost with the token-derived one.
// The debit is a single conditional decrement at the store; its outcome is
// the sole arbiter of sufficiency, so the balance can never go negative no
// matter how calls interleave. When it fails the billable work has already
// happened and is not refunded; the caller is told the balance anyway.
func (s *Service) Consume(ctx context.Context, userID string, cost int, isTrial bool, actualTokens int) (int, error) {
	required := effectiveCost(cost, actualTokens)
	if actualTokens > 0 {
		s.logger.Info().
			Int("tokens", actualTokens).
			Int("cost", required).
			Msg("cost derived from actual token usage")
	}

	// Guarantees the account exists and applies a refill if the day rolled
	// over since the caller's sufficiency check.
	if _, err := s.GetOrCreate(ctx, userID, isTrial); err != nil {
		return 0, err
	}

	balance, err := s.accounts.Debit(ctx, userID, required)
	if errors.Is(err, domain.ErrInsufficientCredits) {
		acct, gerr := s.accounts.Get(ctx, userID)
		if gerr != nil {
			return 0, gerr
		}
		return 0, &domain.InsufficientCreditsError{Available: acct.Balance, Required: required}
	}
	if err != nil {
		return 0, err
	}

	s.logger.Info().
		Str("user_id", userID).
		Int("cost", required).
		Int("remaining", balance).
		Msg("credits consumed")
	return balance, nil
}

// AddBonus grants extra credits on top of the current balance. A user who
// spent today's whole quota cannot revive it with bonuses before the next
// calendar day; that refusal is product policy, enforced atomically by the
// store so a concurrent last debit cannot slip a bonus through.
func (s *Service) AddBonus(ctx context.Context, userID string, amount int, isTrial bool) (int, error) {
	if amount <= 0 {
		return 0, errors.New("credits: bonus amount must be positive")
	}

	acct, err := s.GetOrCreate(ctx, userID, isTrial)
	if err != nil {
		return 0, err
	}

	today := s.today()
	if acct.Balance == 0 && acct.QuotaResetDate != nil && acct.QuotaResetDate.Equal(today) {
		return 0, domain.ErrQuotaExhaustedToday
	}

	balance, err := s.accounts.CreditIfAllowed(ctx, userID, amount, today)
	if err != nil {
		return 0, err
	}

	s.logger.Info().
		Str("user_id", userID).
		Int("amount", amount).
		Int("total", balance).
		Msg("bonus credits added")
	return balance, nil
}
