package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrQuotaExhaustedToday = errors.New("daily quota exhausted")
	ErrTrialAlreadyUsed    = errors.New("trial already used")
)

// InsufficientCreditsError carries the balance details a caller needs to
// render an actionable message. It unwraps to ErrInsufficientCredits so
// callers can match with errors.Is.
type InsufficientCreditsError struct {
	Available int
	Required  int
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: balance %d, required %d", e.Available, e.Required)
}

func (e *InsufficientCreditsError) Unwrap() error {
	return ErrInsufficientCredits
}

// StorageError wraps a failure from the durable store. Handlers must never
// confuse it with the expected ledger errors above.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "storage: " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
