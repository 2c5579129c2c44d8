// This file holds the per-frequency rules for advancing a recurring
// definition. Each frequency maps to a step strategy; month-based steps
// clamp to the end of the target month.

package services

import (
	"fmt"

	"ledger/internal/core"
)

// Advancer computes the occurrence interval steps after from.
type Advancer interface {
	Advance(from core.Date, interval int) core.Date
}

// DayStep advances by a fixed number of days per interval.
type DayStep int

func (d DayStep) Advance(from core.Date, interval int) core.Date {
	return from.AddDays(int(d) * interval)
}

// MonthStep advances by a fixed number of calendar months per interval.
type MonthStep int

func (m MonthStep) Advance(from core.Date, interval int) core.Date {
	return from.AddMonths(int(m) * interval)
}

var recurrenceStrategies = map[core.Frequency]Advancer{
	core.FreqDaily:     DayStep(1),
	core.FreqWeekly:    DayStep(7),
	core.FreqBiweekly:  DayStep(14),
	core.FreqMonthly:   MonthStep(1),
	core.FreqBimonthly: MonthStep(2),
	core.FreqQuarterly: MonthStep(3),
	core.FreqYearly:    MonthStep(12),
}

// GetAdvancer returns the strategy for a frequency.
func GetAdvancer(f core.Frequency) (Advancer, error) {
	a, ok := recurrenceStrategies[f]
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidFrequency, f)
	}
	return a, nil
}

// NextOccurrence returns the date after r.NextDate.
func NextOccurrence(r core.RecurringDefinition) (core.Date, error) {
	a, err := GetAdvancer(r.Frequency)
	if err != nil {
		return core.Date{}, err
	}
	interval := r.Interval
	if interval < 1 {
		interval = 1
	}
	return a.Advance(r.NextDate, interval), nil
}
