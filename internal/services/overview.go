package services

import (
	"context"
	"fmt"

	"ledger/internal/core"
	"ledger/internal/ledger"
	"ledger/internal/log"
)

// OverviewService builds the monthly dashboard figures from committed
// ledger state. It never writes.
type OverviewService struct {
	store ledger.Reader
	runtime
}

func NewOverviewService(store ledger.Reader, opts ...Option) *OverviewService {
	return &OverviewService{store: store, runtime: newRuntime(log.ComponentOverview, opts)}
}

// Month summarises the owner's month: active balance, income and expense
// totals, the expense breakdown by category and the active budgets whose
// window overlaps the month.
func (s *OverviewService) Month(ctx context.Context, owner string, year, month int) (core.MonthOverview, error) {
	first, last, err := core.MonthRange(year, month)
	if err != nil {
		return core.MonthOverview{}, err
	}

	ov, err := s.store.ReadMonthOverview(ctx, owner, first, last)
	if err != nil {
		return core.MonthOverview{}, fmt.Errorf("read month overview (year=%d, month=%d): %w", year, month, err)
	}
	ov.Year, ov.Month = year, month
	ov.SetShares()

	budgets, err := s.store.ListBudgets(ctx, owner)
	if err != nil {
		return core.MonthOverview{}, fmt.Errorf("list budgets: %w", err)
	}
	ov.Budgets = []core.Budget{}
	for _, b := range budgets {
		if b.Active && !b.EndDate.Before(first) && !last.Before(b.StartDate) {
			ov.Budgets = append(ov.Budgets, b)
		}
	}
	if ov.ByCategory == nil {
		ov.ByCategory = []core.CategoryAmount{}
	}

	s.logger.DebugContext(ctx, "Month overview built",
		log.FieldOwner, owner,
		"year", year,
		"month", month,
		"categories", len(ov.ByCategory))
	return ov, nil
}

// CurrentMonth is Month for the month containing the service clock's today.
func (s *OverviewService) CurrentMonth(ctx context.Context, owner string) (core.MonthOverview, error) {
	now := s.now().UTC()
	return s.Month(ctx, owner, now.Year(), int(now.Month()))
}
