package core

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
)

// CategoryAmount is the expense total of one category in a period.
type CategoryAmount struct {
	CategoryID string          `json:"categoryId"`
	Name       string          `json:"name"`
	Amount     Money           `json:"amount"`
	Count      int             `json:"transactionCount"`
	Share      decimal.Decimal `json:"percentage"`
}

// MonthOverview is a compact summary for a specific year+month.
type MonthOverview struct {
	Year         int              `json:"year"`
	Month        int              `json:"month"` // 1-12
	TotalBalance Money            `json:"totalBalance"`
	Income       Money            `json:"income"`
	Expenses     Money            `json:"expenses"`
	ByCategory   []CategoryAmount `json:"byCategory"`
	Budgets      []Budget         `json:"budgets"`
}

// Net is income minus expenses for the month.
func (o MonthOverview) Net() Money { return o.Income.Sub(o.Expenses) }

// MonthRange returns the first and last day of the month.
func MonthRange(year, month int) (Date, Date, error) {
	if month < 1 || month > 12 || year < 1 || year > 9999 {
		return Date{}, Date{}, fmt.Errorf("%w: month %04d-%02d", ErrInvalidDate, year, month)
	}
	first := NewDate(year, month, 1)
	return first, first.AddMonths(1).AddDays(-1), nil
}

// SetShares orders ByCategory by amount, largest first, and fills each
// entry's percentage of Expenses rounded to 2 places. Uncategorized
// expenses count toward Expenses only, so shares may sum below 100.
func (o *MonthOverview) SetShares() {
	slices.SortFunc(o.ByCategory, func(a, b CategoryAmount) int {
		return cmp.Or(b.Amount.Decimal().Cmp(a.Amount.Decimal()), cmp.Compare(a.Name, b.Name), cmp.Compare(a.CategoryID, b.CategoryID))
	})
	total := o.Expenses.Decimal()
	for i := range o.ByCategory {
		if total.IsZero() {
			o.ByCategory[i].Share = decimal.Zero
			continue
		}
		o.ByCategory[i].Share = o.ByCategory[i].Amount.Decimal().Mul(decimal.NewFromInt(100)).Div(total).Round(2)
	}
}
