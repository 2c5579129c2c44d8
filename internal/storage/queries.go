package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ledger/internal/core"
	"ledger/internal/ledger"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Queries implements ledger.Tx on top of any DBTX. Outside an atomic unit
// it is bound to the pool and only its read methods are reachable.
type Queries struct {
	db DBTX
}

var _ ledger.Tx = (*Queries)(nil)

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

// nullID stores an empty reference as NULL so foreign keys accept it.
func nullID(id string) sql.NullString {
	return sql.NullString{String: id, Valid: id != ""}
}

func nullDate(d core.Date) sql.NullString {
	if d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseNullDate(s sql.NullString) (core.Date, error) {
	if !s.Valid || s.String == "" {
		return core.Date{}, nil
	}
	return core.ParseDate(s.String)
}

// checkAffected turns a zero-row update into notFound.
func checkAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// Categories

const categoryColumns = `id, owner, name, type, parent_id, color, icon, created_at`

func scanCategory(row scanner) (core.Category, error) {
	var (
		c       core.Category
		parent  sql.NullString
		created int64
	)
	if err := row.Scan(&c.ID, &c.Owner, &c.Name, &c.Type, &parent, &c.Color, &c.Icon, &created); err != nil {
		return core.Category{}, err
	}
	c.ParentID = parent.String
	c.CreatedAt = fromNanos(created)
	return c, nil
}

func (q *Queries) GetCategory(ctx context.Context, id string) (core.Category, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = ?`, id)
	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, fmt.Errorf("%w: %s", core.ErrCategoryNotFound, id)
	}
	if err != nil {
		return core.Category{}, classify("get category", err)
	}
	return c, nil
}

func (q *Queries) ListCategories(ctx context.Context, owner string) ([]core.Category, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE owner = ? ORDER BY name, id`, owner)
	if err != nil {
		return nil, classify("list categories", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, classify("scan category", err)
		}
		out = append(out, c)
	}
	return out, classify("list categories", rows.Err())
}

func (q *Queries) InsertCategory(ctx context.Context, c core.Category) error {
	_, err := q.db.ExecContext(ctx, `INSERT INTO categories (`+categoryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Owner, c.Name, string(c.Type), nullID(c.ParentID), c.Color, c.Icon, nanos(c.CreatedAt))
	return classify("insert category", err)
}

// Accounts

const accountColumns = `id, owner, name, currency, initial_balance_cents, current_balance_cents, active, created_at`

func scanAccount(row scanner) (core.Account, error) {
	var (
		a                core.Account
		initial, current int64
		active           int
		created          int64
	)
	if err := row.Scan(&a.ID, &a.Owner, &a.Name, &a.Currency, &initial, &current, &active, &created); err != nil {
		return core.Account{}, err
	}
	a.InitialBalance = core.MoneyFromCents(initial)
	a.CurrentBalance = core.MoneyFromCents(current)
	a.Active = active == 1
	a.CreatedAt = fromNanos(created)
	return a, nil
}

func (q *Queries) GetAccount(ctx context.Context, id string) (core.Account, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, fmt.Errorf("%w: %s", core.ErrAccountNotFound, id)
	}
	if err != nil {
		return core.Account{}, classify("get account", err)
	}
	return a, nil
}

func (q *Queries) ListAccounts(ctx context.Context, owner string) ([]core.Account, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE owner = ? ORDER BY name, id`, owner)
	if err != nil {
		return nil, classify("list accounts", err)
	}
	defer rows.Close()

	var out []core.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, classify("scan account", err)
		}
		out = append(out, a)
	}
	return out, classify("list accounts", rows.Err())
}

func (q *Queries) InsertAccount(ctx context.Context, a core.Account) error {
	_, err := q.db.ExecContext(ctx, `INSERT INTO accounts (`+accountColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Owner, a.Name, a.Currency, a.InitialBalance.Cents(), a.CurrentBalance.Cents(), boolInt(a.Active), nanos(a.CreatedAt))
	return classify("insert account", err)
}

func (q *Queries) SetAccountActive(ctx context.Context, id string, active bool) error {
	res, err := q.db.ExecContext(ctx, `UPDATE accounts SET active = ? WHERE id = ?`, boolInt(active), id)
	if err != nil {
		return classify("set account active", err)
	}
	return checkAffected(res, fmt.Errorf("%w: %s", core.ErrAccountNotFound, id))
}

func (q *Queries) AdjustBalance(ctx context.Context, accountID string, delta core.Money) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE accounts SET current_balance_cents = current_balance_cents + ? WHERE id = ?`,
		delta.Cents(), accountID)
	if err != nil {
		return classify("adjust balance", err)
	}
	return checkAffected(res, fmt.Errorf("%w: %s", core.ErrAccountNotFound, accountID))
}

// Transactions

const transactionColumns = `id, owner, account_id, category_id, kind, amount_cents, description, date,
	deleted, deleted_at, recurring_id, allocation_id, created_at, updated_at`

func scanTransaction(row scanner) (core.Transaction, error) {
	var (
		t                    core.Transaction
		category, allocation sql.NullString
		amount               int64
		date                 string
		deleted              int
		deletedNanos         sql.NullInt64
		created, updated     int64
	)
	err := row.Scan(&t.ID, &t.Owner, &t.AccountID, &category, &t.Kind, &amount, &t.Description, &date,
		&deleted, &deletedNanos, &t.RecurringID, &allocation, &created, &updated)
	if err != nil {
		return core.Transaction{}, err
	}
	t.CategoryID = category.String
	t.AllocationID = allocation.String
	if t.Date, err = core.ParseDate(date); err != nil {
		return core.Transaction{}, err
	}
	t.Amount = core.MoneyFromCents(amount)
	t.Deletion = core.Deletion{Deleted: deleted == 1, At: fromNanos(deletedNanos.Int64)}
	t.CreatedAt = fromNanos(created)
	t.UpdatedAt = fromNanos(updated)
	return t, nil
}

func deletedAt(d core.Deletion) sql.NullInt64 {
	if !d.Deleted {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: nanos(d.At), Valid: true}
}

func (q *Queries) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("%w: %s", core.ErrTransactionNotFound, id)
	}
	if err != nil {
		return core.Transaction{}, classify("get transaction", err)
	}
	return t, nil
}

func (q *Queries) ListTransactions(ctx context.Context, f ledger.TransactionFilter) ([]core.Transaction, error) {
	var (
		where []string
		args  []any
	)
	if f.Owner != "" {
		where = append(where, "owner = ?")
		args = append(args, f.Owner)
	}
	if f.AccountID != "" {
		where = append(where, "account_id = ?")
		args = append(args, f.AccountID)
	}
	if !f.IncludeDeleted {
		where = append(where, "deleted = 0")
	}
	if !f.From.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, f.From.String())
	}
	if !f.To.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, f.To.String())
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date DESC, created_at DESC, id"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("list transactions", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, classify("scan transaction", err)
		}
		out = append(out, t)
	}
	return out, classify("list transactions", rows.Err())
}

func (q *Queries) InsertTransaction(ctx context.Context, t core.Transaction) error {
	_, err := q.db.ExecContext(ctx, `INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Owner, t.AccountID, nullID(t.CategoryID), string(t.Kind), t.Amount.Cents(), t.Description, t.Date.String(),
		boolInt(t.Deletion.Deleted), deletedAt(t.Deletion), t.RecurringID, nullID(t.AllocationID), nanos(t.CreatedAt), nanos(t.UpdatedAt))
	return classify("insert transaction", err)
}

func (q *Queries) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	res, err := q.db.ExecContext(ctx, `UPDATE transactions SET
		account_id = ?, category_id = ?, kind = ?, amount_cents = ?, description = ?, date = ?,
		deleted = ?, deleted_at = ?, allocation_id = ?, updated_at = ?
		WHERE id = ?`,
		t.AccountID, nullID(t.CategoryID), string(t.Kind), t.Amount.Cents(), t.Description, t.Date.String(),
		boolInt(t.Deletion.Deleted), deletedAt(t.Deletion), nullID(t.AllocationID), nanos(t.UpdatedAt), t.ID)
	if err != nil {
		return classify("update transaction", err)
	}
	return checkAffected(res, fmt.Errorf("%w: %s", core.ErrTransactionNotFound, t.ID))
}

func (q *Queries) SumTransactions(ctx context.Context, accountID string) (core.Money, error) {
	var cents int64
	err := q.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(
			CASE WHEN kind = 'INCOME' THEN amount_cents ELSE -amount_cents END), 0)
		FROM transactions WHERE account_id = ? AND deleted = 0`, accountID).Scan(&cents)
	if err != nil {
		return core.Money{}, classify("sum transactions", err)
	}
	return core.MoneyFromCents(cents), nil
}

// ReadMonthOverview implements ledger.Reader
func (q *Queries) ReadMonthOverview(ctx context.Context, owner string, from, to core.Date) (core.MonthOverview, error) {
	var (
		ov                        core.MonthOverview
		balance, income, expenses int64
	)
	err := q.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(current_balance_cents), 0)
		FROM accounts WHERE owner = ? AND active = 1`, owner).Scan(&balance)
	if err != nil {
		return ov, classify("get total balance", err)
	}
	err = q.db.QueryRowContext(ctx, `SELECT
			COALESCE(SUM(CASE WHEN kind = 'INCOME' THEN amount_cents END), 0),
			COALESCE(SUM(CASE WHEN kind = 'EXPENSE' THEN amount_cents END), 0)
		FROM transactions
		WHERE owner = ? AND deleted = 0 AND date >= ? AND date <= ?`,
		owner, from.String(), to.String()).Scan(&income, &expenses)
	if err != nil {
		return ov, classify("get month totals", err)
	}
	ov.TotalBalance = core.MoneyFromCents(balance)
	ov.Income = core.MoneyFromCents(income)
	ov.Expenses = core.MoneyFromCents(expenses)

	rows, err := q.db.QueryContext(ctx, `SELECT t.category_id, COALESCE(c.name, ''), SUM(t.amount_cents), COUNT(*)
		FROM transactions t
		LEFT JOIN categories c ON c.id = t.category_id
		WHERE t.owner = ? AND t.deleted = 0 AND t.kind = 'EXPENSE' AND t.category_id IS NOT NULL
		  AND t.date >= ? AND t.date <= ?
		GROUP BY t.category_id, c.name`, owner, from.String(), to.String())
	if err != nil {
		return ov, classify("get category sums", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ca    core.CategoryAmount
			cents int64
		)
		if err := rows.Scan(&ca.CategoryID, &ca.Name, &cents, &ca.Count); err != nil {
			return ov, classify("scan category sum", err)
		}
		ca.Amount = core.MoneyFromCents(cents)
		ov.ByCategory = append(ov.ByCategory, ca)
	}
	return ov, classify("get category sums", rows.Err())
}

// Budgets

const budgetColumns = `b.id, b.owner, b.name, b.period, b.start_date, b.end_date, b.total_cents,
	b.alert_threshold_cents, b.active, b.created_at`

const allocationColumns = `a.id, a.budget_id, a.category_id, a.amount_cents, a.spent_cents`

func scanBudget(row scanner) (core.Budget, error) {
	var (
		b          core.Budget
		start, end string
		total      int64
		threshold  sql.NullInt64
		active     int
		created    int64
	)
	err := row.Scan(&b.ID, &b.Owner, &b.Name, &b.Period, &start, &end, &total, &threshold, &active, &created)
	if err != nil {
		return core.Budget{}, err
	}
	if b.StartDate, err = core.ParseDate(start); err != nil {
		return core.Budget{}, err
	}
	if b.EndDate, err = core.ParseDate(end); err != nil {
		return core.Budget{}, err
	}
	b.TotalAmount = core.MoneyFromCents(total)
	if threshold.Valid {
		m := core.MoneyFromCents(threshold.Int64)
		b.AlertThreshold = &m
	}
	b.Active = active == 1
	b.CreatedAt = fromNanos(created)
	return b, nil
}

func scanAllocation(row scanner) (core.BudgetAllocation, error) {
	var (
		a             core.BudgetAllocation
		amount, spent int64
	)
	if err := row.Scan(&a.ID, &a.BudgetID, &a.CategoryID, &amount, &spent); err != nil {
		return core.BudgetAllocation{}, err
	}
	a.Amount = core.MoneyFromCents(amount)
	a.Spent = core.MoneyFromCents(spent)
	return a, nil
}

func (q *Queries) loadAllocations(ctx context.Context, b *core.Budget) error {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+allocationColumns+` FROM budget_allocations a WHERE a.budget_id = ? ORDER BY a.category_id`, b.ID)
	if err != nil {
		return classify("list allocations", err)
	}
	defer rows.Close()

	b.Allocations = nil
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return classify("scan allocation", err)
		}
		b.Allocations = append(b.Allocations, a)
	}
	return classify("list allocations", rows.Err())
}

func (q *Queries) GetBudget(ctx context.Context, id string) (core.Budget, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+budgetColumns+` FROM budgets b WHERE b.id = ?`, id)
	b, err := scanBudget(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Budget{}, fmt.Errorf("%w: %s", core.ErrBudgetNotFound, id)
	}
	if err != nil {
		return core.Budget{}, classify("get budget", err)
	}
	if err := q.loadAllocations(ctx, &b); err != nil {
		return core.Budget{}, err
	}
	return b, nil
}

func (q *Queries) ListBudgets(ctx context.Context, owner string) ([]core.Budget, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+budgetColumns+` FROM budgets b WHERE b.owner = ? ORDER BY b.created_at DESC, b.id DESC`, owner)
	if err != nil {
		return nil, classify("list budgets", err)
	}
	var out []core.Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			rows.Close()
			return nil, classify("scan budget", err)
		}
		out = append(out, b)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, classify("list budgets", err)
	}

	// Allocations are loaded after the cursor is closed; the pool may hold
	// a single connection.
	for i := range out {
		if err := q.loadAllocations(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (q *Queries) FindAllocation(ctx context.Context, owner, categoryID string, date core.Date) (core.Budget, core.BudgetAllocation, bool, error) {
	var (
		b       core.Budget
		a       core.BudgetAllocation
		start   string
		end     string
		total   int64
		thresh  sql.NullInt64
		active  int
		created int64
		amount  int64
		spent   int64
	)
	day := date.String()
	err := q.db.QueryRowContext(ctx, `SELECT `+budgetColumns+`, `+allocationColumns+`
		FROM budget_allocations a
		JOIN budgets b ON b.id = a.budget_id
		WHERE b.owner = ? AND a.category_id = ? AND b.active = 1
		  AND b.start_date <= ? AND b.end_date >= ?
		ORDER BY b.created_at DESC, b.id DESC
		LIMIT 1`, owner, categoryID, day, day).Scan(
		&b.ID, &b.Owner, &b.Name, &b.Period, &start, &end, &total, &thresh, &active, &created,
		&a.ID, &a.BudgetID, &a.CategoryID, &amount, &spent)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Budget{}, core.BudgetAllocation{}, false, nil
	}
	if err != nil {
		return core.Budget{}, core.BudgetAllocation{}, false, classify("find allocation", err)
	}
	if b.StartDate, err = core.ParseDate(start); err != nil {
		return core.Budget{}, core.BudgetAllocation{}, false, err
	}
	if b.EndDate, err = core.ParseDate(end); err != nil {
		return core.Budget{}, core.BudgetAllocation{}, false, err
	}
	b.TotalAmount = core.MoneyFromCents(total)
	if thresh.Valid {
		m := core.MoneyFromCents(thresh.Int64)
		b.AlertThreshold = &m
	}
	b.Active = active == 1
	b.CreatedAt = fromNanos(created)
	a.Amount = core.MoneyFromCents(amount)
	a.Spent = core.MoneyFromCents(spent)

	if err := q.loadAllocations(ctx, &b); err != nil {
		return core.Budget{}, core.BudgetAllocation{}, false, err
	}
	return b, a, true, nil
}

func (q *Queries) InsertBudget(ctx context.Context, b core.Budget) error {
	var threshold sql.NullInt64
	if b.AlertThreshold != nil {
		threshold = sql.NullInt64{Int64: b.AlertThreshold.Cents(), Valid: true}
	}
	_, err := q.db.ExecContext(ctx, `INSERT INTO budgets
		(id, owner, name, period, start_date, end_date, total_cents, alert_threshold_cents, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Owner, b.Name, string(b.Period), b.StartDate.String(), b.EndDate.String(),
		b.TotalAmount.Cents(), threshold, boolInt(b.Active), nanos(b.CreatedAt))
	if err != nil {
		return classify("insert budget", err)
	}
	for _, a := range b.Allocations {
		_, err := q.db.ExecContext(ctx, `INSERT INTO budget_allocations
			(id, budget_id, category_id, amount_cents, spent_cents) VALUES (?, ?, ?, ?, ?)`,
			a.ID, b.ID, a.CategoryID, a.Amount.Cents(), a.Spent.Cents())
		if err != nil {
			return classify("insert allocation", err)
		}
	}
	return nil
}

func (q *Queries) SetBudgetActive(ctx context.Context, id string, active bool) error {
	res, err := q.db.ExecContext(ctx, `UPDATE budgets SET active = ? WHERE id = ?`, boolInt(active), id)
	if err != nil {
		return classify("set budget active", err)
	}
	return checkAffected(res, fmt.Errorf("%w: %s", core.ErrBudgetNotFound, id))
}

func (q *Queries) AdjustAllocationSpent(ctx context.Context, allocationID string, delta core.Money) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE budget_allocations SET spent_cents = spent_cents + ? WHERE id = ?`,
		delta.Cents(), allocationID)
	if err != nil {
		return classify("adjust allocation", err)
	}
	return checkAffected(res, fmt.Errorf("allocation %s: %w", allocationID, core.ErrNotFound))
}

// Recurring definitions

const recurringColumns = `id, owner, account_id, category_id, kind, amount_cents, description,
	frequency, interval_count, next_date, end_date, active, created_at`

func scanRecurring(row scanner) (core.RecurringDefinition, error) {
	var (
		r        core.RecurringDefinition
		category sql.NullString
		amount   int64
		next     string
		end      sql.NullString
		active   int
		created  int64
	)
	err := row.Scan(&r.ID, &r.Owner, &r.AccountID, &category, &r.Kind, &amount, &r.Description,
		&r.Frequency, &r.Interval, &next, &end, &active, &created)
	if err != nil {
		return core.RecurringDefinition{}, err
	}
	r.CategoryID = category.String
	if r.NextDate, err = core.ParseDate(next); err != nil {
		return core.RecurringDefinition{}, err
	}
	if r.EndDate, err = parseNullDate(end); err != nil {
		return core.RecurringDefinition{}, err
	}
	r.Amount = core.MoneyFromCents(amount)
	r.Active = active == 1
	r.CreatedAt = fromNanos(created)
	return r, nil
}

func (q *Queries) queryRecurring(ctx context.Context, query string, args ...any) ([]core.RecurringDefinition, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("list recurring", err)
	}
	defer rows.Close()

	var out []core.RecurringDefinition
	for rows.Next() {
		r, err := scanRecurring(rows)
		if err != nil {
			return nil, classify("scan recurring", err)
		}
		out = append(out, r)
	}
	return out, classify("list recurring", rows.Err())
}

func (q *Queries) GetRecurring(ctx context.Context, id string) (core.RecurringDefinition, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+recurringColumns+` FROM recurring_transactions WHERE id = ?`, id)
	r, err := scanRecurring(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.RecurringDefinition{}, fmt.Errorf("%w: %s", core.ErrRecurringNotFound, id)
	}
	if err != nil {
		return core.RecurringDefinition{}, classify("get recurring", err)
	}
	return r, nil
}

func (q *Queries) ListRecurring(ctx context.Context, owner string) ([]core.RecurringDefinition, error) {
	return q.queryRecurring(ctx,
		`SELECT `+recurringColumns+` FROM recurring_transactions WHERE owner = ? ORDER BY next_date, id`, owner)
}

func (q *Queries) ListDueRecurring(ctx context.Context, today core.Date) ([]core.RecurringDefinition, error) {
	day := today.String()
	return q.queryRecurring(ctx, `SELECT `+recurringColumns+` FROM recurring_transactions
		WHERE active = 1 AND next_date <= ? AND (end_date IS NULL OR end_date >= ?)
		ORDER BY next_date, id`, day, day)
}

func (q *Queries) InsertRecurring(ctx context.Context, r core.RecurringDefinition) error {
	_, err := q.db.ExecContext(ctx, `INSERT INTO recurring_transactions (`+recurringColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Owner, r.AccountID, nullID(r.CategoryID), string(r.Kind), r.Amount.Cents(), r.Description,
		string(r.Frequency), r.Interval, r.NextDate.String(), nullDate(r.EndDate), boolInt(r.Active), nanos(r.CreatedAt))
	return classify("insert recurring", err)
}

func (q *Queries) AdvanceRecurring(ctx context.Context, id string, expected, next core.Date, active bool) (bool, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE recurring_transactions SET next_date = ?, active = ? WHERE id = ? AND next_date = ?`,
		next.String(), boolInt(active), id, expected.String())
	if err != nil {
		return false, classify("advance recurring", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, classify("advance recurring", err)
	}
	if n == 1 {
		return true, nil
	}
	if _, err := q.GetRecurring(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (q *Queries) SetRecurringActive(ctx context.Context, id string, active bool) error {
	res, err := q.db.ExecContext(ctx, `UPDATE recurring_transactions SET active = ? WHERE id = ?`, boolInt(active), id)
	if err != nil {
		return classify("set recurring active", err)
	}
	return checkAffected(res, fmt.Errorf("%w: %s", core.ErrRecurringNotFound, id))
}

// Alerts

const alertColumns = `id, owner, type, title, message, priority, is_read, created_at, budget_id, category_id`

func scanAlert(row scanner) (core.Alert, error) {
	var (
		a       core.Alert
		read    int
		created int64
	)
	err := row.Scan(&a.ID, &a.Owner, &a.Type, &a.Title, &a.Message, &a.Priority, &read, &created, &a.BudgetID, &a.CategoryID)
	if err != nil {
		return core.Alert{}, err
	}
	a.Read = read == 1
	a.CreatedAt = fromNanos(created)
	return a, nil
}

func (q *Queries) GetAlert(ctx context.Context, id string) (core.Alert, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Alert{}, fmt.Errorf("%w: %s", core.ErrAlertNotFound, id)
	}
	if err != nil {
		return core.Alert{}, classify("get alert", err)
	}
	return a, nil
}

func (q *Queries) ListAlerts(ctx context.Context, owner string, limit int) ([]core.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE owner = ? ORDER BY created_at DESC, id DESC`
	args := []any{owner}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("list alerts", err)
	}
	defer rows.Close()

	var out []core.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, classify("scan alert", err)
		}
		out = append(out, a)
	}
	return out, classify("list alerts", rows.Err())
}

func (q *Queries) CountUnreadAlerts(ctx context.Context, owner string) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts WHERE owner = ? AND is_read = 0`, owner).Scan(&n)
	return n, classify("count alerts", err)
}

func (q *Queries) FindRecentAlert(ctx context.Context, owner, budgetID, title string, since time.Time) (bool, error) {
	var found int
	err := q.db.QueryRowContext(ctx, `SELECT EXISTS (
		SELECT 1 FROM alerts
		WHERE owner = ? AND budget_id = ? AND title = ? AND is_read = 0 AND created_at >= ?)`,
		owner, budgetID, title, nanos(since)).Scan(&found)
	if err != nil {
		return false, classify("find recent alert", err)
	}
	return found == 1, nil
}

func (q *Queries) InsertAlert(ctx context.Context, a core.Alert) error {
	_, err := q.db.ExecContext(ctx, `INSERT INTO alerts (`+alertColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Owner, a.Type, a.Title, a.Message, string(a.Priority), boolInt(a.Read), nanos(a.CreatedAt), a.BudgetID, a.CategoryID)
	return classify("insert alert", err)
}

func (q *Queries) MarkAlertRead(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, `UPDATE alerts SET is_read = 1 WHERE id = ?`, id)
	if err != nil {
		return classify("mark alert read", err)
	}
	return checkAffected(res, fmt.Errorf("%w: %s", core.ErrAlertNotFound, id))
}

func (q *Queries) MarkAllAlertsRead(ctx context.Context, owner string) (int, error) {
	res, err := q.db.ExecContext(ctx, `UPDATE alerts SET is_read = 1 WHERE owner = ? AND is_read = 0`, owner)
	if err != nil {
		return 0, classify("mark all alerts read", err)
	}
	n, err := res.RowsAffected()
	return int(n), classify("mark all alerts read", err)
}
