package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"mdwarehouse/internal/adjustment"
	"mdwarehouse/internal/assembler"
	"mdwarehouse/internal/config"
	"mdwarehouse/internal/exporter"
	"mdwarehouse/internal/fanout"
	"mdwarehouse/internal/ingest"
	"mdwarehouse/internal/panel"
	"mdwarehouse/internal/registry"
	"mdwarehouse/internal/snapshot"
	"mdwarehouse/internal/tables"
	"mdwarehouse/internal/universe"
)

// dateFlag is a YYYY-MM-DD flag value; unset means zero time
type dateFlag struct{ t time.Time }

func (f *dateFlag) String() string {
	if f.t.IsZero() {
		return ""
	}
	return f.t.Format(config.DateLayout)
}

func (f *dateFlag) Set(s string) error {
	t, err := time.Parse(config.DateLayout, s)
	if err != nil {
		return fmt.Errorf("expected a %s date: %w", config.DateLayout, err)
	}
	f.t = t
	return nil
}

// listFlag is a comma-separated flag value
type listFlag []string

func (f *listFlag) String() string { return strings.Join(*f, ",") }

func (f *listFlag) Set(s string) error {
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*f = append(*f, part)
		}
	}
	return nil
}

func newFlagSet(name string) *flag.FlagSet {
	return flag.NewFlagSet(name, flag.ContinueOnError)
}

func requireFlags(name string, values map[string]string) error {
	for flagName, v := range values {
		if v == "" {
			return fmt.Errorf("%s: -%s is required", name, flagName)
		}
	}
	return nil
}

func runStatus(_ context.Context, a *app, args []string, stdout io.Writer) error {
	fs := newFlagSet("status")
	stack := fs.String("stack", "", "stack name")
	item := fs.String("item", "", "item name, all items when empty")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags("status", map[string]string{"stack": *stack}); err != nil {
		return err
	}

	names := []string{*item}
	if *item == "" {
		items, err := a.registry.Items(*stack)
		if err != nil {
			return err
		}
		names = names[:0]
		for _, it := range items {
			names = append(names, it.Name)
		}
	}

	for _, name := range names {
		st, err := a.store.Status(*stack, name)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, formatStatus(name, st))
	}
	return nil
}

func formatStatus(item string, st snapshot.Status) string {
	if !st.HasData() {
		return fmt.Sprintf("%s\tempty", item)
	}
	return fmt.Sprintf("%s\t%s\t%s\t%d", item,
		st.Start.Format(config.DateLayout), st.End.Format(config.DateLayout), st.Count)
}

func runAssemble(ctx context.Context, a *app, args []string, stdout io.Writer) error {
	fs := newFlagSet("assemble")
	stack := fs.String("stack", "", "stack name")
	item := fs.String("item", "", "item name")
	var start, end dateFlag
	fs.Var(&start, "start", "first date")
	fs.Var(&end, "end", "last date")
	prefetch := fs.Int("prefetch", 0, "calendar days loaded before start")
	var entities listFlag
	fs.Var(&entities, "entities", "comma-separated entity subset")
	filled := fs.Bool("fill", false, "forward fill onto the trading days of the range")
	out := fs.String("out", "", "output .csv or .xlsx file, stdout when empty")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags("assemble", map[string]string{"stack": *stack, "item": *item, "start": start.String(), "end": end.String()}); err != nil {
		return err
	}

	req := assembler.Request{
		Stack: *stack, Item: *item, Start: start.t, End: end.t,
		PreFetchDays: *prefetch, Entities: entities,
	}
	var (
		p   *panel.Panel
		err error
	)
	if *filled {
		cal := a.calendarFor(*stack)
		if cal == nil {
			return fmt.Errorf("assemble: -fill needs the trade calendar of %s", *stack)
		}
		p, err = a.assembler.AssembleFilled(ctx, req, cal.TradingDays(start.t, end.t))
	} else {
		p, err = a.assembler.Assemble(ctx, req)
	}
	if err != nil {
		return err
	}
	return a.writePanel(p, *out, *item, stdout)
}

func runAssembleItems(ctx context.Context, a *app, args []string, stdout io.Writer) error {
	fs := newFlagSet("assemble-items")
	stack := fs.String("stack", "", "stack name")
	var items listFlag
	fs.Var(&items, "items", "comma-separated item names")
	var start, end dateFlag
	fs.Var(&start, "start", "first date")
	fs.Var(&end, "end", "last date")
	align := fs.Bool("align", false, "conform every panel to the union of dates and entities")
	out := fs.String("out", "", "output directory, one <item>.csv per item")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags("assemble-items", map[string]string{
		"stack": *stack, "items": items.String(), "start": start.String(), "end": end.String(), "out": *out,
	}); err != nil {
		return err
	}

	panels, err := a.assembler.AssembleItems(ctx, *stack, items, start.t, end.t, *align)
	if err != nil {
		return err
	}
	for _, item := range items {
		p := panels[item]
		if err := a.writePanel(p, filepath.Join(*out, item+".csv"), item, stdout); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s\t%d rows\t%d columns\n", item, p.Len(), p.Width())
	}
	return nil
}

func runExport(_ context.Context, a *app, args []string, stdout io.Writer) error {
	fs := newFlagSet("export")
	stack := fs.String("stack", "", "stack name")
	item := fs.String("item", "", "item name")
	tierName := fs.String("tier", registry.TierTable.String(), "raw_table or table")
	out := fs.String("out", "", "output .csv or .xlsx file, stdout when empty")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags("export", map[string]string{"stack": *stack, "item": *item}); err != nil {
		return err
	}
	tier, err := registry.ParseTier(*tierName)
	if err != nil {
		return err
	}

	p, err := a.builder(*stack).Read(*stack, *item, tier)
	if err != nil {
		return err
	}
	return a.writePanel(p, *out, *item, stdout)
}

// writePanel writes p to out by extension, or as CSV to stdout
func (a *app) writePanel(p *panel.Panel, out, sheet string, stdout io.Writer) error {
	if out == "" {
		return p.WriteCSV(stdout)
	}
	w := exporter.NewCSVWriter(a.layout, a.logger)
	if strings.EqualFold(filepath.Ext(out), ".xlsx") {
		return w.WritePanelXLSX(out, sheet, p)
	}
	return w.WritePanelCSV(out, p, -1)
}

func runRebuild(ctx context.Context, a *app, args []string, stdout io.Writer) error {
	fs := newFlagSet("rebuild")
	stack := fs.String("stack", "", "stack name")
	item := fs.String("item", "", "item name")
	replace := fs.Bool("replace", false, "overwrite an existing raw table")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags("rebuild", map[string]string{"stack": *stack, "item": *item}); err != nil {
		return err
	}

	res, err := a.builder(*stack).Rebuild(ctx, *stack, *item, tables.RebuildOptions{Replace: *replace})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s\t%d rows\t%d columns\n", res.Path, res.Rows, res.Columns)
	return nil
}

func runMerge(ctx context.Context, a *app, args []string, stdout io.Writer) error {
	fs := newFlagSet("merge")
	stack := fs.String("stack", "", "stack name")
	item := fs.String("item", "", "item name")
	var start, through dateFlag
	fs.Var(&start, "start", "first snapshot date to merge")
	fs.Var(&through, "through", "last snapshot date to merge")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags("merge", map[string]string{"stack": *stack, "item": *item}); err != nil {
		return err
	}

	res, err := a.builder(*stack).Merge(ctx, *stack, *item, tables.MergeOptions{Start: start.t, Through: through.t})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s\t%d appended\t%d rows\n", res.Path, res.Appended, res.Rows)
	return nil
}

func runPromote(ctx context.Context, a *app, args []string, stdout io.Writer) error {
	fs := newFlagSet("promote")
	stack := fs.String("stack", "", "stack name")
	item := fs.String("item", "", "item name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags("promote", map[string]string{"stack": *stack, "item": *item}); err != nil {
		return err
	}

	res, err := a.builder(*stack).Promote(ctx, *stack, *item)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s\t%d rows\t%d columns\t%d dropped\n", res.Path, res.Rows, res.Columns, len(res.Dropped))
	for _, id := range res.Dropped {
		fmt.Fprintf(stdout, "dropped\t%s\n", id)
	}
	return nil
}

func runFactors(ctx context.Context, a *app, args []string, stdout io.Writer) error {
	fs := newFlagSet("factors")
	stack := fs.String("stack", "", "stack name")
	var start, end dateFlag
	fs.Var(&start, "start", "first date")
	fs.Var(&end, "end", "last date")
	methodName := fs.String("method", adjustment.Backward.String(), "backward or forward")
	out := fs.String("out", "", "output .csv or .xlsx file, stdout when empty")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags("factors", map[string]string{"stack": *stack, "start": start.String(), "end": end.String()}); err != nil {
		return err
	}
	method, err := adjustment.ParseMethod(*methodName)
	if err != nil {
		return err
	}
	cal := a.calendarFor(*stack)
	if cal == nil {
		return fmt.Errorf("factors: the trade calendar of %s is required", *stack)
	}

	splits, err := a.assembler.Assemble(ctx, assembler.Request{
		Stack: *stack, Item: a.cfg.Quality.SplitItem, Start: start.t, End: end.t,
	})
	if err != nil {
		return err
	}
	factors, err := adjustment.NewEngine(a.logger).ComputeFactorPanel(splits, cal.TradingDays(start.t, end.t), method)
	if err != nil {
		return err
	}
	return a.writePanel(factors, *out, "factors", stdout)
}

func runChanges(ctx context.Context, a *app, args []string, stdout io.Writer) error {
	fs := newFlagSet("changes")
	stack := fs.String("stack", "", "stack name")
	item := fs.String("item", ingest.ItemUniverse, "universe item")
	var from, to, date dateFlag
	fs.Var(&from, "from", "earlier membership date")
	fs.Var(&to, "to", "later membership date")
	fs.Var(&date, "date", "compare this date with an earlier snapshot")
	lookback := fs.Int("lookback", 1, "snapshots to look back from -date")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags("changes", map[string]string{"stack": *stack}); err != nil {
		return err
	}

	var entered, exited []string
	switch {
	case !from.t.IsZero() && !to.t.IsZero():
		p, err := a.assembler.Assemble(ctx, assembler.Request{Stack: *stack, Item: *item, Start: from.t, End: to.t})
		if err != nil {
			return err
		}
		entered, exited, err = universe.DetectChanges(universe.FromPanel(p), from.t, to.t)
		if err != nil {
			return err
		}
	case !date.t.IsZero():
		var err error
		entered, exited, err = universe.CheckComponentChange(ctx, a.store, *stack, *item, date.t, *lookback, a.logger)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("changes: either -from and -to or -date is required")
	}

	for _, id := range entered {
		fmt.Fprintf(stdout, "+\t%s\n", id)
	}
	for _, id := range exited {
		fmt.Fprintf(stdout, "-\t%s\n", id)
	}
	return nil
}

func runCalendar(ctx context.Context, a *app, args []string, stdout io.Writer) error {
	fs := newFlagSet("calendar")
	stack := fs.String("stack", "", "stack name")
	var start, end dateFlag
	fs.Var(&start, "start", "first date")
	fs.Var(&end, "end", "last date")
	var holidayList listFlag
	fs.Var(&holidayList, "holidays", "comma-separated holiday dates")
	fetch := fs.Bool("fetch", false, "ask the vendor for upcoming holidays")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags("calendar", map[string]string{"stack": *stack, "start": start.String(), "end": end.String()}); err != nil {
		return err
	}

	holidays := []time.Time{}
	if *fetch {
		holidays = nil
	}
	for _, s := range holidayList {
		var d dateFlag
		if err := d.Set(s); err != nil {
			return fmt.Errorf("calendar: holiday %q: %w", s, err)
		}
		holidays = append(holidays, d.t)
	}

	in, err := a.ingestor(*stack)
	if err != nil {
		return err
	}
	cal, err := in.SaveMarketStatus(ctx, *stack, start.t, end.t, holidays)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%d days\t%d trading days\n", cal.Len(), len(cal.AllTradingDays()))
	return nil
}

func runFetchPrices(ctx context.Context, a *app, args []string, stdout io.Writer) error {
	fs := newFlagSet("fetch-prices")
	stack := fs.String("stack", "", "stack name")
	adjusted := fs.Bool("adjusted", false, "fetch vendor-adjusted bars into adj_ items")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags("fetch-prices", map[string]string{"stack": *stack}); err != nil {
		return err
	}
	in, err := a.ingestor(*stack)
	if err != nil {
		return err
	}
	report, err := in.SavePrices(ctx, *stack, ingest.PriceOptions{Adjusted: *adjusted})
	if err != nil {
		return err
	}
	return printReport(stdout, report)
}

func runFetchSplits(ctx context.Context, a *app, args []string, stdout io.Writer) error {
	return runCounted(ctx, a, "fetch-splits", args, stdout, func(ctx context.Context, in *ingest.Ingestor, stack string) (int, error) {
		return in.SaveSplits(ctx, stack)
	})
}

func runFetchDividends(ctx context.Context, a *app, args []string, stdout io.Writer) error {
	return runCounted(ctx, a, "fetch-dividends", args, stdout, func(ctx context.Context, in *ingest.Ingestor, stack string) (int, error) {
		return in.SaveDividends(ctx, stack)
	})
}

// runCounted runs a downloader that only takes a stack and reports a
// snapshot count
func runCounted(ctx context.Context, a *app, name string, args []string, stdout io.Writer,
	fn func(context.Context, *ingest.Ingestor, string) (int, error)) error {
	fs := newFlagSet(name)
	stack := fs.String("stack", "", "stack name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags(name, map[string]string{"stack": *stack}); err != nil {
		return err
	}
	in, err := a.ingestor(*stack)
	if err != nil {
		return err
	}
	n, err := fn(ctx, in, *stack)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%d snapshots written\n", n)
	return nil
}

func runFetchUniverse(ctx context.Context, a *app, args []string, stdout io.Writer) error {
	fs := newFlagSet("fetch-universe")
	stack := fs.String("stack", "", "stack name")
	item := fs.String("item", ingest.ItemUniverse, "universe item")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags("fetch-universe", map[string]string{"stack": *stack}); err != nil {
		return err
	}
	in, err := a.ingestor(*stack)
	if err != nil {
		return err
	}
	report, err := in.SaveUniverse(ctx, *stack, *item)
	if err != nil {
		return err
	}
	return printReport(stdout, report)
}

func runFetchDelisted(ctx context.Context, a *app, args []string, stdout io.Writer) error {
	fs := newFlagSet("fetch-delisted")
	stack := fs.String("stack", "", "stack name")
	item := fs.String("item", ingest.ItemDelisted, "delisted registry item")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags("fetch-delisted", map[string]string{"stack": *stack}); err != nil {
		return err
	}
	in, err := a.ingestor(*stack)
	if err != nil {
		return err
	}
	reg, err := in.SaveDelisted(ctx, *stack, *item)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%d delisted entities\n", reg.Len())
	return nil
}

func runFetchShares(ctx context.Context, a *app, args []string, stdout io.Writer) error {
	fs := newFlagSet("fetch-shares")
	stack := fs.String("stack", "", "stack name")
	universeItem := fs.String("universe", ingest.ItemUniverse, "universe item listing the entities")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags("fetch-shares", map[string]string{"stack": *stack}); err != nil {
		return err
	}
	in, err := a.ingestor(*stack)
	if err != nil {
		return err
	}
	report, err := in.SaveShares(ctx, *stack, *universeItem)
	if err != nil {
		return err
	}
	return printReport(stdout, report)
}

func runFetchMacro(ctx context.Context, a *app, args []string, stdout io.Writer) error {
	fs := newFlagSet("fetch-macro")
	stack := fs.String("stack", "", "stack name")
	item := fs.String("item", "", "macro item")
	series := fs.String("series", "", "vendor series id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags("fetch-macro", map[string]string{"stack": *stack, "item": *item, "series": *series}); err != nil {
		return err
	}
	in, err := a.ingestor(*stack)
	if err != nil {
		return err
	}
	n, err := in.SaveMacro(ctx, *stack, *item, *series)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%d snapshots written\n", n)
	return nil
}

func runFetchReports(ctx context.Context, a *app, args []string, stdout io.Writer) error {
	fs := newFlagSet("fetch-reports")
	stack := fs.String("stack", "", "stack name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags("fetch-reports", map[string]string{"stack": *stack}); err != nil {
		return err
	}
	in, err := a.ingestor(*stack)
	if err != nil {
		return err
	}
	report, err := in.SaveFinancialReports(ctx, *stack)
	if err != nil {
		return err
	}
	return printReport(stdout, report)
}

func runFetchCompanies(ctx context.Context, a *app, args []string, stdout io.Writer) error {
	fs := newFlagSet("fetch-companies")
	stack := fs.String("stack", "", "stack name")
	universeItem := fs.String("universe", ingest.ItemUniverse, "universe item listing the entities")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags("fetch-companies", map[string]string{"stack": *stack}); err != nil {
		return err
	}
	in, err := a.ingestor(*stack)
	if err != nil {
		return err
	}
	report, err := in.SaveCompanyInfo(ctx, *stack, *universeItem)
	if err != nil {
		return err
	}
	return printReport(stdout, report)
}

func runReturns(ctx context.Context, a *app, args []string, stdout io.Writer) error {
	fs := newFlagSet("returns")
	stack := fs.String("stack", "", "stack name")
	modeName := fs.String("mode", string(ingest.CloseToClose), "c2c or o2o")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags("returns", map[string]string{"stack": *stack}); err != nil {
		return err
	}
	mode, err := ingest.ParseReturnMode(*modeName)
	if err != nil {
		return err
	}
	in, err := a.ingestor(*stack)
	if err != nil {
		return err
	}
	n, err := in.SaveDailyReturns(ctx, *stack, mode)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%d snapshots written\n", n)
	return nil
}

func printReport(w io.Writer, r fanout.Report) error {
	fmt.Fprintf(w, "%d units\t%d ok\t%d failed\n", r.Total, len(r.Succeeded), len(r.Failed))
	for _, unit := range r.FailedUnits() {
		fmt.Fprintf(w, "failed\t%s\t%v\n", unit, r.Failed[unit])
	}
	return nil
}
