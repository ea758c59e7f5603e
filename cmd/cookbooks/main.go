package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"cookbooks/internal/backend"
	"cookbooks/internal/cli"
	"cookbooks/internal/config"
	"cookbooks/internal/core"
	"cookbooks/internal/ledger"
	"cookbooks/internal/log"
	"cookbooks/internal/services"
)

const usage = `usage: cookbooks <command> [flags]

commands:
  report    print balances and the income/expense breakdown (default)
  list      print live transactions
  add       record a transaction
  edit      change a transaction
  remove    delete a transaction
  category  add a category
  opening   set opening balances

Run "cookbooks <command> -h" for the flags of a command.
`

// amountFlag is a flag.Value holding an optional amount.
type amountFlag struct {
	value decimal.Decimal
	set   bool
}

func (a *amountFlag) String() string {
	if !a.set {
		return ""
	}
	return core.FormatAmount(a.value)
}

func (a *amountFlag) Set(s string) error {
	v, err := core.ParseAmount(s)
	if err != nil {
		return err
	}
	a.value, a.set = v, true
	return nil
}

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()

	err := run(context.Background(), cfg, os.Args[1:], os.Stdout)
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
	default:
		fmt.Fprintln(os.Stderr, "cookbooks:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, args []string, out io.Writer) (err error) {
	command := "report"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}

	var cmd func(context.Context, *services.Books, []string, io.Writer) error
	switch command {
	case "report":
		cmd = reportCmd
	case "list":
		cmd = listCmd
	case "add":
		cmd = addCmd
	case "edit":
		cmd = editCmd
	case "remove":
		cmd = removeCmd
	case "category":
		cmd = categoryCmd
	case "opening":
		cmd = openingCmd
	case "help":
		fmt.Fprint(out, usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q\n%s", command, usage)
	}

	logger := cli.SetupLogger(cfg).WithComponent(log.ComponentApp)

	backendConfig, err := backend.FromAppConfig(cfg)
	if err != nil {
		return fmt.Errorf("backend configuration: %w", err)
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, backendConfig)
	if err != nil {
		return fmt.Errorf("create %s backend: %w", cfg.DataBackend, err)
	}
	defer func() {
		if cerr := res.Cleanup(); cerr != nil {
			logger.Error("Cleanup failed", log.FieldError, cerr)
			err = errors.Join(err, cerr)
		}
	}()

	// A nil *amqp.Client must not reach the Publisher interface.
	var events services.Publisher
	if res.Events != nil {
		events = res.Events
	}

	books := services.NewBooks(res.Store, events, logger)
	if err := books.Reload(ctx); err != nil {
		return fmt.Errorf("load books: %w", err)
	}

	return cmd(ctx, books, args, out)
}

func reportCmd(_ context.Context, books *services.Books, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	var initialRaw, initialCooked amountFlag
	fs.Var(&initialRaw, "initial-raw", "Starting raw balance (default: opening balance from the store)")
	fs.Var(&initialCooked, "initial-cooked", "Starting cooked balance (default: opening balance from the store)")
	valuation := fs.String("valuation", "both", "Amounts to show: raw, cooked or both")
	if err := fs.Parse(args); err != nil {
		return err
	}

	valuations := []ledger.Valuation{ledger.Raw, ledger.Cooked}
	if !strings.EqualFold(*valuation, "both") {
		v, err := ledger.ParseValuation(*valuation)
		if err != nil {
			return err
		}
		valuations = []ledger.Valuation{v}
	}

	opening := books.OpeningBalances()
	if initialRaw.set {
		opening.Raw = initialRaw.value
	}
	if initialCooked.set {
		opening.Cooked = initialCooked.value
	}

	return report(out, books, opening, valuations)
}

func pick(v ledger.Valuation, raw, cooked decimal.Decimal) decimal.Decimal {
	if v == ledger.Cooked {
		return cooked
	}
	return raw
}

func report(out io.Writer, books *services.Books, opening core.Balances, valuations []ledger.Valuation) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)

	row := func(label string, raw, cooked decimal.Decimal) {
		fmt.Fprintf(tw, "%s\t", label)
		for _, v := range valuations {
			fmt.Fprintf(tw, "%s\t", core.FormatAmount(pick(v, raw, cooked)))
		}
		fmt.Fprintln(tw)
	}
	title := func(label string) {
		fmt.Fprintf(tw, "%s\t%s\n", label, strings.Repeat("\t", len(valuations)))
	}

	fmt.Fprint(tw, "\t")
	for _, v := range valuations {
		name := v.String()
		fmt.Fprintf(tw, "%s\t", strings.ToUpper(name[:1])+name[1:])
	}
	fmt.Fprintln(tw)

	balances := books.CurrentBalances(opening.Raw, opening.Cooked)
	row("Opening", opening.Raw, opening.Cooked)
	row("Balance", balances.Raw, balances.Cooked)
	fmt.Fprintf(tw, "Transactions\t%d\t%s\n", books.Len(), strings.Repeat("\t", len(valuations)-1))

	totals := books.CategoryTotals()
	for _, section := range []struct {
		name string
		rows []core.CategorySummary
	}{
		{"Income", totals.Income},
		{"Expenses", totals.Expenses},
	} {
		title("")
		title(section.name)
		for _, r := range section.rows {
			row(r.Name, r.RawTotal, r.CookedTotal)
		}
	}

	return tw.Flush()
}

func listCmd(_ context.Context, books *services.Books, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	categories := books.Categories()
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCategory\tRaw\tCooked")
	for _, e := range books.Entries() {
		name := "?"
		if e.CategoryID >= 0 && e.CategoryID < len(categories) {
			name = categories[e.CategoryID]
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", e.ID, name, core.FormatAmount(e.Raw), core.FormatAmount(e.Cooked))
	}
	return tw.Flush()
}

// transactionFlags registers the fields shared by add and edit.
type transactionFlags struct {
	date, description, typ, category *string
	raw, cooked                      amountFlag
}

func newTransactionFlags(fs *flag.FlagSet) *transactionFlags {
	f := &transactionFlags{
		date:        fs.String("date", "", "Date as YYYY-MM-DD (add defaults to today)"),
		description: fs.String("desc", "", "Description"),
		typ:         fs.String("type", "", "withdrawal or deposit"),
		category:    fs.String("category", "", "Category name"),
	}
	fs.Var(&f.raw, "raw", "Raw amount, unsigned")
	fs.Var(&f.cooked, "cooked", "Cooked amount, unsigned (default: raw amount)")
	return f
}

// apply overwrites the fields of tx that were given on the command line.
func (f *transactionFlags) apply(tx *core.Transaction) error {
	if *f.date != "" {
		d, err := core.ParseDate(*f.date)
		if err != nil {
			return err
		}
		tx.Date = d
	}
	if *f.description != "" {
		tx.Description = *f.description
	}
	if *f.typ != "" {
		t, err := core.ParseTransactionType(*f.typ)
		if err != nil {
			return err
		}
		tx.Type = t
	}
	if *f.category != "" {
		tx.Category = *f.category
	}
	if f.raw.set {
		tx.RawAmount = f.raw.value
	}
	if f.cooked.set {
		tx.CookedAmount = f.cooked.value
	}
	return nil
}

func addCmd(ctx context.Context, books *services.Books, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	f := newTransactionFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !f.raw.set {
		return errors.New("add: -raw is required")
	}
	if !f.cooked.set {
		f.cooked.value, f.cooked.set = f.raw.value, true
	}

	now := time.Now()
	tx := core.Transaction{Date: core.NewDate(now.Year(), int(now.Month()), now.Day())}
	if err := f.apply(&tx); err != nil {
		return err
	}
	id, err := books.Add(ctx, tx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "added transaction %d\n", id)
	return nil
}

func editCmd(ctx context.Context, books *services.Books, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("edit", flag.ContinueOnError)
	id := fs.Int64("id", 0, "Transaction id")
	f := newTransactionFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id <= 0 {
		return errors.New("edit: -id is required")
	}

	tx, err := books.Transaction(ctx, *id)
	if err != nil {
		return err
	}
	if err := f.apply(&tx); err != nil {
		return err
	}
	if err := books.Edit(ctx, tx); err != nil {
		return err
	}
	fmt.Fprintf(out, "updated transaction %d\n", *id)
	return nil
}

func removeCmd(ctx context.Context, books *services.Books, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("remove", flag.ContinueOnError)
	id := fs.Int64("id", 0, "Transaction id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id <= 0 {
		return errors.New("remove: -id is required")
	}

	if err := books.Remove(ctx, *id); err != nil {
		return err
	}
	fmt.Fprintf(out, "removed transaction %d\n", *id)
	return nil
}

func categoryCmd(ctx context.Context, books *services.Books, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("category", flag.ContinueOnError)
	name := fs.String("name", "", "Category name")
	if err := fs.Parse(args); err != nil {
		return err
	}

	id, err := books.AddCategory(ctx, *name)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "added category %q with id %d\n", strings.TrimSpace(*name), id)
	return nil
}

func openingCmd(ctx context.Context, books *services.Books, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("opening", flag.ContinueOnError)
	var raw, cooked amountFlag
	fs.Var(&raw, "raw", "Opening raw balance")
	fs.Var(&cooked, "cooked", "Opening cooked balance (default: raw)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	opening := books.OpeningBalances()
	if raw.set {
		opening.Raw = raw.value
		if !cooked.set {
			opening.Cooked = raw.value
		}
	}
	if cooked.set {
		opening.Cooked = cooked.value
	}
	if err := books.SetOpeningBalances(ctx, opening); err != nil {
		return err
	}
	fmt.Fprintf(out, "opening balances: raw %s, cooked %s\n", core.FormatAmount(opening.Raw), core.FormatAmount(opening.Cooked))
	return nil
}
