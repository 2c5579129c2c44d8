package core

import (
	"errors"
	"fmt"
)

// Error taxonomy. Callers match with errors.Is against the family
// sentinels (ErrValidation, ErrNotFound, ErrStorageUnavailable) or the
// specific ones below.
var (
	ErrValidation         = errors.New("validation error")
	ErrNotFound           = errors.New("not found")
	ErrStorageUnavailable = errors.New("storage unavailable")

	ErrInvalidAmount       = fmt.Errorf("%w: invalid amount", ErrValidation)
	ErrInvalidPeriod       = fmt.Errorf("%w: invalid period", ErrValidation)
	ErrInvalidKind         = fmt.Errorf("%w: invalid transaction kind", ErrValidation)
	ErrInvalidFrequency    = fmt.Errorf("%w: invalid frequency", ErrValidation)
	ErrEmptyDescription    = fmt.Errorf("%w: empty description", ErrValidation)
	ErrInvalidDate         = fmt.Errorf("%w: invalid date", ErrValidation)
	ErrCurrencyMismatch    = fmt.Errorf("%w: currency mismatch", ErrValidation)
	ErrInactiveAccount     = fmt.Errorf("%w: account is inactive", ErrValidation)
	ErrDuplicateAllocation = fmt.Errorf("%w: duplicate allocation category", ErrValidation)

	ErrAccountNotFound     = fmt.Errorf("account %w", ErrNotFound)
	ErrTransactionNotFound = fmt.Errorf("transaction %w", ErrNotFound)
	ErrBudgetNotFound      = fmt.Errorf("budget %w", ErrNotFound)
	ErrRecurringNotFound   = fmt.Errorf("recurring definition %w", ErrNotFound)
	ErrAlertNotFound       = fmt.Errorf("alert %w", ErrNotFound)
	ErrCategoryNotFound    = fmt.Errorf("category %w", ErrNotFound)
)

// Unavailable wraps a storage failure so callers see ErrStorageUnavailable
// while the cause stays in the chain.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}
