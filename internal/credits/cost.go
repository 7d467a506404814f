package credits

// Pricing constants for billable operations.
const (
	// DailyQuotaFull is the balance a registered account refills to each day.
	DailyQuotaFull = 30
	// DailyQuotaTrial is the refill for anonymous trial accounts.
	DailyQuotaTrial = 10
	// TokensPerCredit converts reported token usage into credits.
	TokensPerCredit = 1000
	// ScanCost is the fixed price of a medication scan.
	ScanCost = 5
	// ChatCost is the default price of an assistant message when no token
	// count is reported.
	ChatCost = 1
)

// DailyQuota returns the refill amount for the given account class.
func DailyQuota(isTrial bool) int {
	if isTrial {
		return DailyQuotaTrial
	}
	return DailyQuotaFull
}

// CostFromTokens converts a token count into a credit cost. Every billable
// operation costs at least one credit, even for zero or bogus token counts.
func CostFromTokens(totalTokens int) int {
	if totalTokens <= 0 {
		return 1
	}
	cost := (totalTokens + TokensPerCredit - 1) / TokensPerCredit
	if cost < 1 {
		cost = 1
	}
	return cost
}

// effectiveCost resolves the price of an operation: a positive token count
// overrides the fixed cost.
func effectiveCost(cost, tokens int) int {
	if tokens > 0 {
		return CostFromTokens(tokens)
	}
	return cost
}
