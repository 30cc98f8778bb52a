package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/google/subcommands"

	"github.com/kjannette/stonks-backend/internal/app"
	"github.com/kjannette/stonks-backend/internal/config"
	"github.com/kjannette/stonks-backend/internal/db"
	"github.com/kjannette/stonks-backend/internal/ledger"
	"github.com/kjannette/stonks-backend/internal/logging"
	"github.com/kjannette/stonks-backend/internal/money"
)

// Register the subcommands.
func Register(c *subcommands.Commander) {
	c.Register(&migrateCmd{}, "admin")
	c.Register(&addUserCmd{}, "admin")

	c.Register(&quoteCmd{}, "market")

	c.Register(&tradeCmd{side: ledger.SideBuy}, "trading")
	c.Register(&tradeCmd{side: ledger.SideSell}, "trading")
	c.Register(&portfolioCmd{}, "trading")
	c.Register(&historyCmd{}, "trading")

	c.Register(&watchCmd{}, "watchlist")
	c.Register(&unwatchCmd{}, "watchlist")
}

// as a short lived CLI, globals are fine here.
var (
	stdout  io.Writer = os.Stdout
	stderr  io.Writer = os.Stderr
	openApp           = defaultOpenApp
)

var jsonOut = flag.Bool("json", false, "print results as JSON")

func defaultOpenApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return app.Build(ctx, cfg, logging.NewWithWriter(stderr, cfg.LogLevel))
}

// withApp opens the services, runs fn and maps its error to an exit status.
func withApp(ctx context.Context, fn func(*app.App) error) subcommands.ExitStatus {
	a, err := openApp(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	if err := fn(a); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func printJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseUser(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id %q", s)
	}
	return id, nil
}

// --- migrate ---

type migrateCmd struct{}

func (*migrateCmd) Name() string     { return "migrate" }
func (*migrateCmd) Synopsis() string { return "apply the database schema" }
func (*migrateCmd) Usage() string {
	return `migrate

  Applies the schema to the configured Postgres database. Safe to rerun.
`
}
func (*migrateCmd) SetFlags(*flag.FlagSet) {}

func (*migrateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(ctx, func(a *app.App) error {
		if a.Pool == nil {
			return fmt.Errorf("migrate requires STORE=%s", config.StorePostgres)
		}
		if err := db.Migrate(ctx, a.Pool); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "schema up to date")
		return nil
	})
}

// --- adduser ---

type addUserCmd struct {
	cash int64
}

func (*addUserCmd) Name() string     { return "adduser" }
func (*addUserCmd) Synopsis() string { return "create a user with starting cash" }
func (*addUserCmd) Usage() string {
	return `adduser [-cash <cents>] <username>

  Creates a user. Starting cash defaults to INITIAL_CASH_CENTS.
`
}

func (c *addUserCmd) SetFlags(f *flag.FlagSet) {
	f.Int64Var(&c.cash, "cash", -1, "starting cash in cents (default INITIAL_CASH_CENTS)")
}

func (c *addUserCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 || strings.TrimSpace(f.Arg(0)) == "" {
		fmt.Fprintln(stderr, "Error: exactly one username is required.")
		return subcommands.ExitUsageError
	}
	return withApp(ctx, func(a *app.App) error {
		cash := c.cash
		if cash < 0 {
			cash = a.Config.InitialCashCents
		}
		u, err := a.Store.CreateUser(ctx, strings.TrimSpace(f.Arg(0)), cash)
		if err != nil {
			return err
		}
		if *jsonOut {
			return printJSON(u)
		}
		fmt.Fprintf(stdout, "created user %d %q with %s\n", u.ID, u.Username, money.FormatCents(u.Cash))
		return nil
	})
}

// --- quote ---

type quoteCmd struct{}

func (*quoteCmd) Name() string     { return "quote" }
func (*quoteCmd) Synopsis() string { return "look up current prices" }
func (*quoteCmd) Usage() string {
	return `quote <symbol>...

  Prints the current price of each symbol. Stub prices are marked.
`
}
func (*quoteCmd) SetFlags(*flag.FlagSet) {}

func (*quoteCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(stderr, "Error: at least one symbol is required.")
		return subcommands.ExitUsageError
	}
	return withApp(ctx, func(a *app.App) error {
		w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		defer w.Flush()
		for _, sym := range f.Args() {
			q, err := a.Quotes.Get(ctx, sym)
			if err != nil {
				return fmt.Errorf("%s: %w", sym, err)
			}
			if *jsonOut {
				if err := printJSON(q); err != nil {
					return err
				}
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%s%%\t%s\n", q.Symbol, money.FormatCents(q.PriceCents), q.ChangePercent.StringFixed(2), q.Provenance)
		}
		return nil
	})
}

// --- buy / sell ---

type tradeCmd struct {
	side string
	user string
}

func (c *tradeCmd) Name() string { return c.side }
func (c *tradeCmd) Synopsis() string {
	return c.side + " whole shares at the current price"
}
func (c *tradeCmd) Usage() string {
	return c.side + ` -user <id> <symbol> <shares>
`
}

func (c *tradeCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "user id (required)")
}

func (c *tradeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	uid, err := parseUser(c.user)
	if err != nil || f.NArg() != 2 {
		fmt.Fprintln(stderr, "Error: -user, a symbol and a share count are required.")
		return subcommands.ExitUsageError
	}
	shares, err := ledger.ParseShares(f.Arg(1))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	return withApp(ctx, func(a *app.App) error {
		trade := a.Ledger.Buy
		if c.side == ledger.SideSell {
			trade = a.Ledger.Sell
		}
		r, err := trade(ctx, uid, f.Arg(0), shares)
		if err != nil {
			return err
		}
		if *jsonOut {
			return printJSON(r)
		}
		fmt.Fprintf(stdout, "%s %d %s @ %s, total %s, cash now %s\n",
			r.Side, r.Shares, r.Symbol, money.FormatCents(r.PriceCents),
			money.FormatCents(r.TotalCents), money.FormatCents(r.CashAfter))
		if r.Provenance == "stub" {
			fmt.Fprintln(stdout, "note: priced from the stub table")
		}
		return nil
	})
}

// --- portfolio ---

type portfolioCmd struct {
	user string
}

func (*portfolioCmd) Name() string     { return "portfolio" }
func (*portfolioCmd) Synopsis() string { return "show holdings valued at current prices" }
func (*portfolioCmd) Usage() string {
	return `portfolio -user <id>
`
}

func (c *portfolioCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "user id (required)")
}

func (c *portfolioCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	uid, err := parseUser(c.user)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	return withApp(ctx, func(a *app.App) error {
		p, err := a.Portfolio.Compute(ctx, uid)
		if err != nil {
			return err
		}
		if *jsonOut {
			return printJSON(p)
		}
		w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "SYMBOL\tSHARES\tPRICE\tVALUE\tCHANGE\tSECTOR\t")
		for _, pos := range p.Positions {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s%%\t%s\t\n", pos.Symbol, pos.Shares,
				money.FormatCents(pos.PriceCents), money.FormatCents(pos.ValueCents),
				pos.ChangePercent.StringFixed(2), pos.Sector)
		}
		fmt.Fprintf(w, "CASH\t\t\t%s\t\t\t\n", money.FormatCents(p.Cash))
		fmt.Fprintf(w, "TOTAL\t\t\t%s\t\t\t\n", money.FormatCents(p.GrandTotal))
		if err := w.Flush(); err != nil {
			return err
		}
		if len(p.Excluded) > 0 {
			fmt.Fprintf(stdout, "unpriced: %s\n", strings.Join(p.Excluded, ", "))
		}
		return nil
	})
}

// --- history ---

type historyCmd struct {
	user  string
	limit int
}

func (*historyCmd) Name() string     { return "history" }
func (*historyCmd) Synopsis() string { return "list past transactions, newest first" }
func (*historyCmd) Usage() string {
	return `history -user <id> [-limit <n>]
`
}

func (c *historyCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "user id (required)")
	f.IntVar(&c.limit, "limit", 0, "maximum rows, 0 for all")
}

func (c *historyCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	uid, err := parseUser(c.user)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	return withApp(ctx, func(a *app.App) error {
		rows, err := a.Portfolio.History(ctx, uid, c.limit)
		if err != nil {
			return err
		}
		if *jsonOut {
			return printJSON(rows)
		}
		w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tSIDE\tSYMBOL\tSHARES\tPRICE\tSECTOR")
		for _, h := range rows {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n", h.Timestamp.Format("2006-01-02 15:04:05"),
				h.Side, h.Symbol, h.Shares, money.FormatCents(h.PriceCents), h.Sector)
		}
		return w.Flush()
	})
}

// --- watch / unwatch ---

type watchCmd struct {
	user string
}

func (*watchCmd) Name() string     { return "watch" }
func (*watchCmd) Synopsis() string { return "add symbols to a watchlist" }
func (*watchCmd) Usage() string {
	return `watch -user <id> <symbol>...
`
}

func (c *watchCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "user id (required)")
}

func (c *watchCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	uid, err := parseUser(c.user)
	if err != nil || f.NArg() == 0 {
		fmt.Fprintln(stderr, "Error: -user and at least one symbol are required.")
		return subcommands.ExitUsageError
	}
	return withApp(ctx, func(a *app.App) error {
		for _, sym := range f.Args() {
			if err := a.Watchlist.Watch(ctx, uid, sym); err != nil {
				return fmt.Errorf("%s: %w", sym, err)
			}
		}
		syms, err := a.Watchlist.Symbols(ctx, uid)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "watching: %s\n", strings.Join(syms, ", "))
		return nil
	})
}

type unwatchCmd struct {
	user string
}

func (*unwatchCmd) Name() string     { return "unwatch" }
func (*unwatchCmd) Synopsis() string { return "remove symbols from a watchlist" }
func (*unwatchCmd) Usage() string {
	return `unwatch -user <id> <symbol>...
`
}

func (c *unwatchCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "user id (required)")
}

func (c *unwatchCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	uid, err := parseUser(c.user)
	if err != nil || f.NArg() == 0 {
		fmt.Fprintln(stderr, "Error: -user and at least one symbol are required.")
		return subcommands.ExitUsageError
	}
	return withApp(ctx, func(a *app.App) error {
		for _, sym := range f.Args() {
			if err := a.Watchlist.Unwatch(ctx, uid, sym); err != nil {
				return fmt.Errorf("%s: %w", sym, err)
			}
		}
		fmt.Fprintln(stdout, "removed")
		return nil
	})
}
