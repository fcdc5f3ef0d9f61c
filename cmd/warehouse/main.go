// Command warehouse drives the market data warehouse: it downloads vendor
// data into snapshots, moves items between tiers and exports panels.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
)

// command is one subcommand of the driver
type command struct {
	usage string
	run   func(ctx context.Context, a *app, args []string, stdout io.Writer) error
}

var commands = map[string]command{
	"status":          {"status -stack S [-item I]", runStatus},
	"assemble":        {"assemble -stack S -item I -start D -end D [-prefetch N] [-entities a,b] [-out file]", runAssemble},
	"assemble-items":  {"assemble-items -stack S -items a,b -start D -end D [-align] -out dir", runAssembleItems},
	"export":          {"export -stack S -item I [-tier table] -out file.csv|file.xlsx", runExport},
	"rebuild":         {"rebuild -stack S -item I [-replace]", runRebuild},
	"merge":           {"merge -stack S -item I [-start D] [-through D]", runMerge},
	"promote":         {"promote -stack S -item I", runPromote},
	"factors":         {"factors -stack S -start D -end D [-method backward|forward] [-out file]", runFactors},
	"changes":         {"changes -stack S [-item universe] (-from D -to D | -date D [-lookback N])", runChanges},
	"calendar":        {"calendar -stack S -start D -end D [-holidays D,D] [-fetch]", runCalendar},
	"fetch-prices":    {"fetch-prices -stack S [-adjusted]", runFetchPrices},
	"fetch-splits":    {"fetch-splits -stack S", runFetchSplits},
	"fetch-dividends": {"fetch-dividends -stack S", runFetchDividends},
	"fetch-universe":  {"fetch-universe -stack S [-item universe]", runFetchUniverse},
	"fetch-delisted":  {"fetch-delisted -stack S [-item delisted]", runFetchDelisted},
	"fetch-shares":    {"fetch-shares -stack S [-universe universe]", runFetchShares},
	"fetch-macro":     {"fetch-macro -stack S -item I -series ID", runFetchMacro},
	"fetch-reports":   {"fetch-reports -stack S", runFetchReports},
	"fetch-companies": {"fetch-companies -stack S [-universe universe]", runFetchCompanies},
	"returns":         {"returns -stack S [-mode c2c|o2o]", runReturns},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		slog.Error("Command failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// run dispatches args[0] to its command with a fully wired app
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		printUsage(stderr)
		return fmt.Errorf("missing command")
	}
	cmd, ok := commands[args[0]]
	if !ok {
		printUsage(stderr)
		return fmt.Errorf("unknown command %q", args[0])
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx = a.startRun(ctx, args[0])
	if err := cmd.run(ctx, a, args[1:], stdout); err != nil {
		a.logger.ErrorContext(ctx, "Command failed",
			slog.String("command", args[0]),
			slog.String("error", err.Error()))
		return err
	}
	a.logger.InfoContext(ctx, "Command finished", slog.String("command", args[0]))
	return nil
}

func printUsage(w io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w, "usage: warehouse <command> [flags]")
	fmt.Fprintln(w)
	for _, name := range names {
		fmt.Fprintf(w, "  %s\n", commands[name].usage)
	}
}
