package core

import (
	"fmt"
	"time"
)

// Limits applied to every amount and budget period.
var (
	MinAmount = MoneyFromCents(1)
	MaxAmount = MoneyFromCents(99_999_999_999)
)

const MaxBudgetPeriodDays = 365

// ValidateAmount fails with ErrInvalidAmount outside [0.01, 999999999.99].
func ValidateAmount(m Money) error {
	if m.LessThan(MinAmount) {
		return fmt.Errorf("%w: %s is below minimum %s", ErrInvalidAmount, m, MinAmount)
	}
	if m.GreaterThan(MaxAmount) {
		return fmt.Errorf("%w: %s exceeds maximum %s", ErrInvalidAmount, m, MaxAmount)
	}
	return nil
}

// ValidatePeriod fails with ErrInvalidPeriod when end is not after start
// or the window spans more than MaxBudgetPeriodDays.
func ValidatePeriod(start, end Date) error {
	if start.IsZero() || end.IsZero() {
		return fmt.Errorf("%w: start and end are required", ErrInvalidPeriod)
	}
	if !end.After(start) {
		return fmt.Errorf("%w: end %s must be after start %s", ErrInvalidPeriod, end, start)
	}
	if end.Sub(start.Time) > MaxBudgetPeriodDays*24*time.Hour {
		return fmt.Errorf("%w: period cannot exceed %d days", ErrInvalidPeriod, MaxBudgetPeriodDays)
	}
	return nil
}
