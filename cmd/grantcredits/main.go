package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/adapter/repo"
	"server/internal/credits"
	"server/internal/domain"
	"server/internal/infra"
)

// grantcredits is an operator tool for topping up a user's balance. It goes
// through the same ledger service as the API, so the daily-exhaustion refusal
// applies to manual grants too.
func main() {
	var (
		userFlag   string
		amountFlag int
		trialFlag  bool
	)

	flag.StringVar(&userFlag, "user", "", "user ID to credit (UUID)")
	flag.IntVar(&amountFlag, "amount", 0, "credits to grant (positive integer)")
	flag.BoolVar(&trialFlag, "trial", false, "treat the account as a trial account when seeding")
	flag.Parse()

	userID := strings.TrimSpace(userFlag)
	if userID == "" {
		exitWithError(errors.New("-user is required"))
	}
	if amountFlag <= 0 {
		exitWithError(errors.New("-amount must be a positive integer"))
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect database: %w", err))
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "grantcredits").Logger()
	service := credits.NewService(repo.NewCreditAccountRepository(pool), logger)

	balance, err := service.AddBonus(ctx, userID, amountFlag, trialFlag)
	if errors.Is(err, domain.ErrQuotaExhaustedToday) {
		exitWithError(fmt.Errorf("user %s exhausted today's quota; grants resume after the next daily reset", userID))
	}
	if err != nil {
		exitWithError(fmt.Errorf("failed to grant credits: %w", err))
	}

	fmt.Printf("User %s credited with %d, new balance %d\n", userID, amountFlag, balance)
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
