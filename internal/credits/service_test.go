package credits

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"server/internal/domain"
)

// fakeAccountRepo is an in-memory CreditAccountRepository that mirrors the
// conditional-update semantics of the PostgreSQL implementation: Debit,
// ResetIfDue and CreditIfAllowed check and mutate under one lock, the way a
// single UPDATE statement would.
type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*domain.CreditAccount
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{accounts: make(map[string]*domain.CreditAccount)}
}

func (f *fakeAccountRepo) Get(_ context.Context, userID string) (*domain.CreditAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.accounts[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyAccount(acct), nil
}

func (f *fakeAccountRepo) Create(_ context.Context, acct *domain.CreditAccount) (*domain.CreditAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.accounts[acct.UserID]; ok {
		return copyAccount(existing), nil
	}
	stored := copyAccount(acct)
	stored.UpdatedAt = time.Now()
	f.accounts[acct.UserID] = stored
	return copyAccount(stored), nil
}

func (f *fakeAccountRepo) ResetIfDue(_ context.Context, userID string, quota int, today time.Time) (*domain.CreditAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.accounts[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if acct.QuotaResetDate == nil || acct.QuotaResetDate.Before(today) {
		acct.Balance = quota
		day := today
		acct.QuotaResetDate = &day
		acct.UpdatedAt = time.Now()
	}
	return copyAccount(acct), nil
}

func (f *fakeAccountRepo) Debit(_ context.Context, userID string, cost int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.accounts[userID]
	if !ok || acct.Balance < cost {
		return 0, domain.ErrInsufficientCredits
	}
	acct.Balance -= cost
	acct.UpdatedAt = time.Now()
	return acct.Balance, nil
}

func (f *fakeAccountRepo) CreditIfAllowed(_ context.Context, userID string, amount int, today time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.accounts[userID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	if acct.Balance == 0 && acct.QuotaResetDate != nil && acct.QuotaResetDate.Equal(today) {
		return 0, domain.ErrQuotaExhaustedToday
	}
	acct.Balance += amount
	acct.UpdatedAt = time.Now()
	return acct.Balance, nil
}

func (f *fakeAccountRepo) balance(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if acct, ok := f.accounts[userID]; ok {
		return acct.Balance
	}
	return -1
}

func copyAccount(acct *domain.CreditAccount) *domain.CreditAccount {
	out := *acct
	if acct.QuotaResetDate != nil {
		day := *acct.QuotaResetDate
		out.QuotaResetDate = &day
	}
	return &out
}

var (
	day1 = time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)
	day2 = time.Date(2025, 3, 11, 0, 5, 0, 0, time.UTC)
)

func newTestService(repo domain.CreditAccountRepository, at time.Time) *Service {
	svc := NewService(repo, zerolog.Nop())
	svc.now = func() time.Time { return at }
	return svc
}

func TestGetOrCreateSeedsClassQuota(t *testing.T) {
	ctx := context.Background()
	repo := newFakeAccountRepo()
	svc := newTestService(repo, day1)

	trial, err := svc.GetOrCreate(ctx, "device-1", true)
	if err != nil {
		t.Fatalf("GetOrCreate trial: %v", err)
	}
	if trial.Balance != DailyQuotaTrial {
		t.Fatalf("trial balance = %d, want %d", trial.Balance, DailyQuotaTrial)
	}

	full, err := svc.GetOrCreate(ctx, "user-1", false)
	if err != nil {
		t.Fatalf("GetOrCreate full: %v", err)
	}
	if full.Balance != DailyQuotaFull {
		t.Fatalf("full balance = %d, want %d", full.Balance, DailyQuotaFull)
	}
	if full.QuotaResetDate == nil || !full.QuotaResetDate.Equal(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("reset date = %v, want midnight UTC of day1", full.QuotaResetDate)
	}
}

func TestGetOrCreateIdempotentWithinDay(t *testing.T) {
	ctx := context.Background()
	repo := newFakeAccountRepo()
	svc := newTestService(repo, day1)

	if _, err := svc.GetOrCreate(ctx, "user-1", false); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if _, err := svc.Consume(ctx, "user-1", 7, false, 0); err != nil {
		t.Fatalf("Consume: %v", err)
	}

	for i := 0; i < 3; i++ {
		acct, err := svc.GetOrCreate(ctx, "user-1", false)
		if err != nil {
			t.Fatalf("GetOrCreate #%d: %v", i, err)
		}
		if acct.Balance != DailyQuotaFull-7 {
			t.Fatalf("balance after repeat GetOrCreate = %d, want %d", acct.Balance, DailyQuotaFull-7)
		}
	}
}

func TestGetOrCreateResetsAcrossDays(t *testing.T) {
	ctx := context.Background()
	repo := newFakeAccountRepo()

	svc := newTestService(repo, day1)
	if _, err := svc.GetOrCreate(ctx, "user-1", false); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if _, err := svc.Consume(ctx, "user-1", 25, false, 0); err != nil {
		t.Fatalf("Consume: %v", err)
	}

	svc.now = func() time.Time { return day2 }
	acct, err := svc.GetOrCreate(ctx, "user-1", false)
	if err != nil {
		t.Fatalf("GetOrCreate next day: %v", err)
	}
	if acct.Balance != DailyQuotaFull {
		t.Fatalf("balance after day rollover = %d, want %d", acct.Balance, DailyQuotaFull)
	}
}

func TestConsumeFailsWithoutMutationWhenInsufficient(t *testing.T) {
	ctx := context.Background()
	repo := newFakeAccountRepo()
	svc := newTestService(repo, day1)

	if _, err := svc.GetOrCreate(ctx, "user-1", false); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	_, err := svc.Consume(ctx, "user-1", DailyQuotaFull+1, false, 0)
	var insufficient *domain.InsufficientCreditsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("Consume error = %v, want InsufficientCreditsError", err)
	}
	if insufficient.Available != DailyQuotaFull || insufficient.Required != DailyQuotaFull+1 {
		t.Fatalf("error payload = %+v, want available=%d required=%d", insufficient, DailyQuotaFull, DailyQuotaFull+1)
	}
	if !errors.Is(err, domain.ErrInsufficientCredits) {
		t.Fatalf("error does not unwrap to ErrInsufficientCredits: %v", err)
	}
	if got := repo.balance("user-1"); got != DailyQuotaFull {
		t.Fatalf("balance mutated on failed consume: %d", got)
	}
}

func TestConsumeTokenCostOverridesFixedCost(t *testing.T) {
	ctx := context.Background()
	repo := newFakeAccountRepo()
	svc := newTestService(repo, day1)

	if err := svc.EnsureSufficient(ctx, "user-1", ScanCost, false, 0); err != nil {
		t.Fatalf("EnsureSufficient: %v", err)
	}
	balance, err := svc.Consume(ctx, "user-1", ScanCost, false, 2500)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	// ceil(2500/1000) = 3 credits, not the fixed cost of 5.
	if balance != DailyQuotaFull-3 {
		t.Fatalf("balance = %d, want %d", balance, DailyQuotaFull-3)
	}
}

func TestEnsureSufficientDoesNotMutate(t *testing.T) {
	ctx := context.Background()
	repo := newFakeAccountRepo()
	svc := newTestService(repo, day1)

	if err := svc.EnsureSufficient(ctx, "device-1", 3, true, 0); err != nil {
		t.Fatalf("EnsureSufficient: %v", err)
	}
	if err := svc.EnsureSufficient(ctx, "device-1", 3, true, 0); err != nil {
		t.Fatalf("EnsureSufficient repeat: %v", err)
	}
	if got := repo.balance("device-1"); got != DailyQuotaTrial {
		t.Fatalf("balance after checks = %d, want %d", got, DailyQuotaTrial)
	}

	err := svc.EnsureSufficient(ctx, "device-1", DailyQuotaTrial+1, true, 0)
	var insufficient *domain.InsufficientCreditsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("EnsureSufficient error = %v, want InsufficientCreditsError", err)
	}
	if insufficient.Available != DailyQuotaTrial || insufficient.Required != DailyQuotaTrial+1 {
		t.Fatalf("error payload = %+v", insufficient)
	}
}

func TestAddBonusBlockedWhenExhaustedToday(t *testing.T) {
	ctx := context.Background()
	repo := newFakeAccountRepo()
	svc := newTestService(repo, day1)

	if _, err := svc.GetOrCreate(ctx, "user-1", false); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if _, err := svc.Consume(ctx, "user-1", DailyQuotaFull, false, 0); err != nil {
		t.Fatalf("Consume: %v", err)
	}

	_, err := svc.AddBonus(ctx, "user-1", 5, false)
	if !errors.Is(err, domain.ErrQuotaExhaustedToday) {
		t.Fatalf("AddBonus error = %v, want ErrQuotaExhaustedToday", err)
	}
	if got := repo.balance("user-1"); got != 0 {
		t.Fatalf("balance changed by refused bonus: %d", got)
	}
}

func TestAddBonusAfterCrossDayReset(t *testing.T) {
	ctx := context.Background()
	repo := newFakeAccountRepo()

	svc := newTestService(repo, day1)
	if _, err := svc.GetOrCreate(ctx, "user-1", false); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if _, err := svc.Consume(ctx, "user-1", DailyQuotaFull, false, 0); err != nil {
		t.Fatalf("Consume: %v", err)
	}

	svc.now = func() time.Time { return day2 }
	balance, err := svc.AddBonus(ctx, "user-1", 5, false)
	if err != nil {
		t.Fatalf("AddBonus after rollover: %v", err)
	}
	if balance != DailyQuotaFull+5 {
		t.Fatalf("balance = %d, want %d", balance, DailyQuotaFull+5)
	}
}

func TestAddBonusOnPartialBalance(t *testing.T) {
	ctx := context.Background()
	repo := newFakeAccountRepo()
	svc := newTestService(repo, day1)

	if _, err := svc.Consume(ctx, "user-1", 10, false, 0); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	balance, err := svc.AddBonus(ctx, "user-1", 4, false)
	if err != nil {
		t.Fatalf("AddBonus: %v", err)
	}
	if balance != DailyQuotaFull-10+4 {
		t.Fatalf("balance = %d, want %d", balance, DailyQuotaFull-10+4)
	}
}

func TestAddBonusRejectsNonPositiveAmount(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newFakeAccountRepo(), day1)

	if _, err := svc.AddBonus(ctx, "user-1", 0, false); err == nil {
		t.Fatal("AddBonus(0) succeeded, want error")
	}
	if _, err := svc.AddBonus(ctx, "user-1", -3, false); err == nil {
		t.Fatal("AddBonus(-3) succeeded, want error")
	}
}

func TestBalanceReflectsLazyReset(t *testing.T) {
	ctx := context.Background()
	repo := newFakeAccountRepo()

	svc := newTestService(repo, day1)
	if _, err := svc.Consume(ctx, "device-1", 9, true, 0); err != nil {
		t.Fatalf("Consume: %v", err)
	}

	svc.now = func() time.Time { return day2 }
	balance, err := svc.Balance(ctx, "device-1", true)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if balance != DailyQuotaTrial {
		t.Fatalf("balance = %d, want %d", balance, DailyQuotaTrial)
	}
}

func TestConcurrentConsumeNeverOvercharges(t *testing.T) {
	ctx := context.Background()
	repo := newFakeAccountRepo()
	svc := newTestService(repo, day1)

	if _, err := svc.GetOrCreate(ctx, "device-1", true); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	const attempts = 40 // well above the trial quota of 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, refused := 0, 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Consume(ctx, "device-1", 1, true, 0)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domain.ErrInsufficientCredits):
				refused++
			default:
				t.Errorf("unexpected consume error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != DailyQuotaTrial {
		t.Fatalf("successful consumes = %d, want %d", succeeded, DailyQuotaTrial)
	}
	if refused != attempts-DailyQuotaTrial {
		t.Fatalf("refused consumes = %d, want %d", refused, attempts-DailyQuotaTrial)
	}
	if got := repo.balance("device-1"); got != 0 {
		t.Fatalf("final balance = %d, want 0", got)
	}
}
