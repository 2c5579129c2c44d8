package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"

	"ledger/internal/backend"
	"ledger/internal/config"
	"ledger/internal/core"
	"ledger/internal/ledger"
	"ledger/internal/log"
	"ledger/internal/services"
	"ledger/internal/storage"
)

var commands = []subcommands.Command{
	&migrateCmd{},
	&postCmd{},
	&processDueCmd{},
	&reconcileCmd{},
	&alertsCmd{},
	&categoriesCmd{},
	&overviewCmd{},
}

// dbFlag registers the shared -db flag, defaulting to SQLITE_DB_PATH.
func dbFlag(f *flag.FlagSet, p *string) {
	f.StringVar(p, "db", config.Load().SQLiteDBPath, "Path to the SQLite ledger database.")
}

func openStore(ctx context.Context, dbPath string) (ledger.Store, error) {
	res, err := backend.NewFactory(log.Discard()).CreateBackend(ctx, backend.Config{
		Type:         backend.SQLiteBackend,
		SQLiteDBPath: dbPath,
	})
	if err != nil {
		return nil, err
	}
	return res.Store, nil
}

func fail(err error) subcommands.ExitStatus {
	fmt.Fprintln(os.Stderr, err)
	return subcommands.ExitFailure
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type migrateCmd struct {
	db string
}

func (*migrateCmd) Name() string     { return "migrate" }
func (*migrateCmd) Synopsis() string { return "apply pending schema migrations" }
func (*migrateCmd) Usage() string {
	return `ledgerctl migrate [-db <path>]

  Applies every pending migration and prints the resulting schema version.
`
}

func (c *migrateCmd) SetFlags(f *flag.FlagSet) { dbFlag(f, &c.db) }

func (c *migrateCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	dsn := storage.DSN(c.db)
	if err := storage.RunMigrations(dsn); err != nil {
		return fail(err)
	}
	version, dirty, err := storage.MigrationVersion(dsn)
	if err != nil {
		return fail(err)
	}
	fmt.Printf("schema version %d (dirty: %v)\n", version, dirty)
	return subcommands.ExitSuccess
}

type postCmd struct {
	db          string
	owner       string
	account     string
	category    string
	kind        string
	amount      string
	description string
	date        string
}

func (*postCmd) Name() string     { return "post" }
func (*postCmd) Synopsis() string { return "record a transaction" }
func (*postCmd) Usage() string {
	return `ledgerctl post -owner <id> -account <id> -amount <12.34> -desc <text> [-kind EXPENSE] [-category <id>] [-d <YYYY-MM-DD>]

  Posts a transaction through the engine, updating the account balance and
  the matching budget allocation. Amounts accept a comma as the decimal
  separator.
`
}

func (c *postCmd) SetFlags(f *flag.FlagSet) {
	dbFlag(f, &c.db)
	f.StringVar(&c.owner, "owner", "", "The account owner.")
	f.StringVar(&c.account, "account", "", "The account to post to.")
	f.StringVar(&c.category, "category", "", "Optional budget category.")
	f.StringVar(&c.kind, "kind", string(core.Expense), "INCOME, EXPENSE or TRANSFER.")
	f.StringVar(&c.amount, "amount", "", "Positive amount, e.g. 12.34 or 12,34.")
	f.StringVar(&c.description, "desc", "", "Description.")
	f.StringVar(&c.date, "d", "", "Transaction date (defaults to today, UTC).")
}

func (c *postCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.owner == "" || c.account == "" || c.amount == "" {
		f.Usage()
		return subcommands.ExitUsageError
	}
	amount, err := core.ParseAmount(c.amount)
	if err != nil {
		return fail(err)
	}
	date := core.DateOf(time.Now())
	if c.date != "" {
		if date, err = core.ParseDate(c.date); err != nil {
			return fail(err)
		}
	}

	store, err := openStore(ctx, c.db)
	if err != nil {
		return fail(err)
	}
	defer store.Close()

	opts := []services.Option{services.WithLogger(log.Discard())}
	evaluator := services.NewThresholdEvaluator(store, services.DefaultDedupWindow, opts...)
	txns := services.NewTransactionService(store, services.ThresholdQueueFunc(evaluator.Handle), opts...)

	t, err := txns.Create(ctx, services.CreateTransactionInput{
		Owner:       c.owner,
		AccountID:   c.account,
		CategoryID:  c.category,
		Kind:        core.Kind(strings.ToUpper(c.kind)),
		Amount:      amount,
		Description: c.description,
		Date:        date,
	})
	if err != nil {
		return fail(err)
	}
	if err := printJSON(os.Stdout, t); err != nil {
		return fail(err)
	}
	return subcommands.ExitSuccess
}

type processDueCmd struct {
	db      string
	date    string
	asJSON  bool
	workers int
}

func (*processDueCmd) Name() string     { return "process-due" }
func (*processDueCmd) Synopsis() string { return "post every recurring definition due on a date" }
func (*processDueCmd) Usage() string {
	return `ledgerctl process-due [-db <path>] [-d <YYYY-MM-DD>] [-json]

  Runs one scheduler pass. Each due definition posts at most one
  occurrence; run again to catch up on older ones. Budget thresholds are
  evaluated inline.
`
}

func (c *processDueCmd) SetFlags(f *flag.FlagSet) {
	dbFlag(f, &c.db)
	f.StringVar(&c.date, "d", "", "The day to process (defaults to today, UTC).")
	f.BoolVar(&c.asJSON, "json", false, "Print results as JSON.")
	f.IntVar(&c.workers, "c", 4, "Accounts processed concurrently.")
}

func (c *processDueCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	now := time.Now().UTC()
	if c.date != "" {
		d, err := core.ParseDate(c.date)
		if err != nil {
			return fail(err)
		}
		now = d.Time
	}

	store, err := openStore(ctx, c.db)
	if err != nil {
		return fail(err)
	}
	defer store.Close()

	opts := []services.Option{services.WithLogger(log.Discard())}
	evaluator := services.NewThresholdEvaluator(store, services.DefaultDedupWindow, opts...)
	txns := services.NewTransactionService(store, services.ThresholdQueueFunc(evaluator.Handle), opts...)
	processor := services.NewRecurringProcessor(store, txns, services.RecurringProcessorConfig{Concurrency: c.workers}, opts...)

	results, err := processor.ProcessDue(ctx, now)
	if err != nil {
		return fail(err)
	}
	if c.asJSON {
		if err := printJSON(os.Stdout, results); err != nil {
			return fail(err)
		}
	} else {
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "DEFINITION\tSTATUS\tTRANSACTION\tERROR")
		for _, r := range results {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, r.Status, r.TransactionID, r.Error)
		}
		w.Flush()
	}

	for _, r := range results {
		if r.Status == services.RecurringError {
			return subcommands.ExitFailure
		}
	}
	return subcommands.ExitSuccess
}

type reconcileCmd struct {
	db      string
	owner   string
	account string
}

func (*reconcileCmd) Name() string     { return "reconcile" }
func (*reconcileCmd) Synopsis() string { return "compare stored balances with the transaction history" }
func (*reconcileCmd) Usage() string {
	return `ledgerctl reconcile [-db <path>] (-owner <id> | -account <id>)

  Recomputes balances from the transactions and reports drift. Exits
  non-zero when any account drifted. Nothing is written.
`
}

func (c *reconcileCmd) SetFlags(f *flag.FlagSet) {
	dbFlag(f, &c.db)
	f.StringVar(&c.owner, "owner", "", "Reconcile every account of this owner.")
	f.StringVar(&c.account, "account", "", "Reconcile a single account.")
}

func (c *reconcileCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if (c.owner == "") == (c.account == "") {
		f.Usage()
		return subcommands.ExitUsageError
	}

	store, err := openStore(ctx, c.db)
	if err != nil {
		return fail(err)
	}
	defer store.Close()

	reconciler := services.NewReconciler(store)
	var recs []services.Reconciliation
	if c.account != "" {
		rec, err := reconciler.Reconcile(ctx, c.account)
		if err != nil {
			return fail(err)
		}
		recs = append(recs, rec)
	} else if recs, err = reconciler.ReconcileOwner(ctx, c.owner); err != nil {
		return fail(err)
	}

	status := subcommands.ExitSuccess
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "ACCOUNT\tSTORED\tCOMPUTED\tDRIFT\t")
	for _, r := range recs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", r.AccountID, r.Stored, r.Computed, r.Drift)
		if !r.Consistent {
			status = subcommands.ExitFailure
		}
	}
	w.Flush()
	return status
}

type alertsCmd struct {
	db       string
	owner    string
	limit    int
	markRead bool
}

func (*alertsCmd) Name() string     { return "alerts" }
func (*alertsCmd) Synopsis() string { return "list an owner's alerts" }
func (*alertsCmd) Usage() string {
	return `ledgerctl alerts -owner <id> [-db <path>] [-n <limit>] [-mark-read]

  Lists the newest alerts and the unread count. With -mark-read every
  unread alert is marked read after listing.
`
}

func (c *alertsCmd) SetFlags(f *flag.FlagSet) {
	dbFlag(f, &c.db)
	f.StringVar(&c.owner, "owner", "", "The alert owner.")
	f.IntVar(&c.limit, "n", services.DefaultAlertLimit, "Maximum alerts to list.")
	f.BoolVar(&c.markRead, "mark-read", false, "Mark every unread alert read.")
}

func (c *alertsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.owner == "" {
		f.Usage()
		return subcommands.ExitUsageError
	}

	store, err := openStore(ctx, c.db)
	if err != nil {
		return fail(err)
	}
	defer store.Close()

	alerts := services.NewAlertService(store, services.WithLogger(log.Discard()))
	list, err := alerts.List(ctx, c.owner, c.limit)
	if err != nil {
		return fail(err)
	}
	unread, err := alerts.UnreadCount(ctx, c.owner)
	if err != nil {
		return fail(err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CREATED\tPRIORITY\tREAD\tTITLE")
	for _, a := range list {
		fmt.Fprintf(w, "%s\t%s\t%v\t%s\n", a.CreatedAt.Format(time.DateTime), a.Priority, a.Read, a.Title)
	}
	w.Flush()
	fmt.Printf("%d unread\n", unread)

	if c.markRead {
		n, err := alerts.MarkAllRead(ctx, c.owner)
		if err != nil {
			return fail(err)
		}
		fmt.Printf("marked %d read\n", n)
	}
	return subcommands.ExitSuccess
}

type categoriesCmd struct {
	db    string
	owner string
	seed  bool
}

func (*categoriesCmd) Name() string     { return "categories" }
func (*categoriesCmd) Synopsis() string { return "list an owner's categories" }
func (*categoriesCmd) Usage() string {
	return `ledgerctl categories -owner <id> [-db <path>] [-seed]

  Lists the category tree. With -seed the default categories are created
  first when the owner has none.
`
}

func (c *categoriesCmd) SetFlags(f *flag.FlagSet) {
	dbFlag(f, &c.db)
	f.StringVar(&c.owner, "owner", "", "The category owner.")
	f.BoolVar(&c.seed, "seed", false, "Create the default categories if the owner has none.")
}

func (c *categoriesCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.owner == "" {
		f.Usage()
		return subcommands.ExitUsageError
	}

	store, err := openStore(ctx, c.db)
	if err != nil {
		return fail(err)
	}
	defer store.Close()

	catalog := services.NewCatalogService(store, services.WithLogger(log.Discard()))
	if c.seed {
		n, err := catalog.SeedDefaultCategories(ctx, c.owner)
		if err != nil {
			return fail(err)
		}
		fmt.Printf("seeded %d categories\n", n)
	}
	tree, err := catalog.ListCategories(ctx, c.owner)
	if err != nil {
		return fail(err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tNAME")
	for _, cat := range tree {
		fmt.Fprintf(w, "%s\t%s\t%s\n", cat.ID, cat.Type, cat.Name)
		for _, sub := range cat.Subcategories {
			fmt.Fprintf(w, "%s\t%s\t  %s\n", sub.ID, sub.Type, sub.Name)
		}
	}
	w.Flush()
	return subcommands.ExitSuccess
}

type overviewCmd struct {
	db    string
	owner string
	month string
}

func (*overviewCmd) Name() string     { return "overview" }
func (*overviewCmd) Synopsis() string { return "print an owner's month overview" }
func (*overviewCmd) Usage() string {
	return `ledgerctl overview -owner <id> [-db <path>] [-m <YYYY-MM>]

  Prints balance, income, expenses and the expense breakdown by category
  for the month as JSON. Defaults to the current month.
`
}

func (c *overviewCmd) SetFlags(f *flag.FlagSet) {
	dbFlag(f, &c.db)
	f.StringVar(&c.owner, "owner", "", "The ledger owner.")
	f.StringVar(&c.month, "m", "", "The month to summarise (defaults to the current month, UTC).")
}

func (c *overviewCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.owner == "" {
		f.Usage()
		return subcommands.ExitUsageError
	}
	month := time.Now().UTC()
	if c.month != "" {
		m, err := time.Parse("2006-01", c.month)
		if err != nil {
			return fail(fmt.Errorf("%w: month must be YYYY-MM", core.ErrInvalidDate))
		}
		month = m
	}

	store, err := openStore(ctx, c.db)
	if err != nil {
		return fail(err)
	}
	defer store.Close()

	ov, err := services.NewOverviewService(store, services.WithLogger(log.Discard())).
		Month(ctx, c.owner, month.Year(), int(month.Month()))
	if err != nil {
		return fail(err)
	}
	if err := printJSON(os.Stdout, ov); err != nil {
		return fail(err)
	}
	return subcommands.ExitSuccess
}
