package services

import (
	"errors"
	"testing"

	"ledger/internal/core"
)

func TestNextOccurrence(t *testing.T) {
	tests := []struct {
		name      string
		frequency core.Frequency
		interval  int
		from      core.Date
		want      core.Date
	}{
		{"daily", core.FreqDaily, 1, core.NewDate(2024, 1, 31), core.NewDate(2024, 2, 1)},
		{"every 3 days", core.FreqDaily, 3, core.NewDate(2024, 2, 27), core.NewDate(2024, 3, 1)},
		{"weekly", core.FreqWeekly, 1, core.NewDate(2024, 1, 5), core.NewDate(2024, 1, 12)},
		{"biweekly", core.FreqBiweekly, 1, core.NewDate(2024, 1, 5), core.NewDate(2024, 1, 19)},
		{"monthly", core.FreqMonthly, 1, core.NewDate(2024, 1, 5), core.NewDate(2024, 2, 5)},
		{"monthly clamps in leap year", core.FreqMonthly, 1, core.NewDate(2024, 1, 31), core.NewDate(2024, 2, 29)},
		{"monthly clamps", core.FreqMonthly, 1, core.NewDate(2023, 1, 31), core.NewDate(2023, 2, 28)},
		{"bimonthly", core.FreqBimonthly, 1, core.NewDate(2024, 12, 31), core.NewDate(2025, 2, 28)},
		{"quarterly", core.FreqQuarterly, 1, core.NewDate(2024, 11, 30), core.NewDate(2025, 2, 28)},
		{"every 2 quarters", core.FreqQuarterly, 2, core.NewDate(2024, 1, 15), core.NewDate(2024, 7, 15)},
		{"yearly from leap day", core.FreqYearly, 1, core.NewDate(2024, 2, 29), core.NewDate(2025, 2, 28)},
		{"zero interval acts as one", core.FreqWeekly, 0, core.NewDate(2024, 1, 1), core.NewDate(2024, 1, 8)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextOccurrence(core.RecurringDefinition{Frequency: tt.frequency, Interval: tt.interval, NextDate: tt.from})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("NextOccurrence() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestGetAdvancer_Unknown(t *testing.T) {
	_, err := GetAdvancer("FORTNIGHTLY")
	if !errors.Is(err, core.ErrInvalidFrequency) {
		t.Fatalf("expected ErrInvalidFrequency, got %v", err)
	}
}

func TestAllFrequenciesHaveStrategies(t *testing.T) {
	for _, f := range []core.Frequency{
		core.FreqDaily, core.FreqWeekly, core.FreqBiweekly, core.FreqMonthly,
		core.FreqBimonthly, core.FreqQuarterly, core.FreqYearly,
	} {
		if _, err := GetAdvancer(f); err != nil {
			t.Errorf("no strategy for %s: %v", f, err)
		}
	}
}
