package ingest

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdwarehouse/internal/calendar"
	"mdwarehouse/internal/config"
	apperrors "mdwarehouse/internal/errors"
	"mdwarehouse/internal/provider"
	"mdwarehouse/internal/registry"
	"mdwarehouse/internal/shared/testutil"
	"mdwarehouse/internal/snapshot"
	"mdwarehouse/internal/universe"
)

const stack = "us_stock"

func d(s string) time.Time {
	t, err := time.Parse(config.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

type fakePrices struct {
	missing map[string]bool
}

func (f *fakePrices) DailyBars(_ context.Context, date time.Time, _ bool) ([]provider.Bar, error) {
	if f.missing[date.Format(config.DateLayout)] {
		return nil, apperrors.NewNetworkError("delayed", provider.ErrNoData)
	}
	return []provider.Bar{
		{Ticker: "AAPL", Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 100, AvgPrice: 1.2, Transactions: 7},
		{Ticker: "BRK.B", Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 5, AvgPrice: 10, Transactions: 1},
	}, nil
}

type fakeActions struct {
	splits     []provider.Split
	dividends  []provider.Dividend
	start, end time.Time
}

func (f *fakeActions) Splits(_ context.Context, start, end time.Time) ([]provider.Split, error) {
	f.start, f.end = start, end
	return f.splits, nil
}

func (f *fakeActions) Dividends(_ context.Context, start, end time.Time) ([]provider.Dividend, error) {
	f.start, f.end = start, end
	return f.dividends, nil
}

type fakeUniverse struct {
	members  []string
	delisted []provider.DelistedTicker
}

func (f *fakeUniverse) Members(context.Context, time.Time) ([]string, error) { return f.members, nil }

func (f *fakeUniverse) Delisted(context.Context) ([]provider.DelistedTicker, error) {
	return f.delisted, nil
}

type fakeShares struct {
	mu    sync.Mutex
	calls map[string]int
}

func (f *fakeShares) SharesOutstanding(_ context.Context, ticker string, date time.Time) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[date.Format(config.DateLayout)]++
	if ticker == "A" {
		return 1000, nil
	}
	return 500, nil
}

type fakeMacro struct{ obs []provider.Observation }

func (f *fakeMacro) Observations(context.Context, string, time.Time, time.Time) ([]provider.Observation, error) {
	return f.obs, nil
}

type fakeCalendar struct{ holidays []time.Time }

func (f *fakeCalendar) Holidays(context.Context) ([]time.Time, error) { return f.holidays, nil }

type fakeFundamentals struct {
	reports map[string][]provider.Report
}

func (f *fakeFundamentals) FinancialReports(_ context.Context, date time.Time) ([]provider.Report, error) {
	return f.reports[date.Format(config.DateLayout)], nil
}

type fakeCompanies struct {
	mu    sync.Mutex
	asked []string
}

func (f *fakeCompanies) CompanyInfo(_ context.Context, ticker string) (provider.CompanyInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asked = append(f.asked, ticker)
	if ticker == "BAD" {
		return provider.CompanyInfo{}, apperrors.NewNetworkError("not found", provider.ErrNoData)
	}
	return provider.CompanyInfo{Ticker: ticker, Name: ticker + " Inc", MarketCap: 1e9}, nil
}

type fixture struct {
	ingestor *Ingestor
	store    *snapshot.Store
	registry *registry.Registry
	logs     *testutil.BufferedSlogHandler
}

func newFixture(t *testing.T, providers Providers, epoch, today string) *fixture {
	t.Helper()
	layout, err := config.NewLayout(t.TempDir())
	require.NoError(t, err)

	items := []registry.Item{
		{Stack: stack, Name: "stock_splits", Kind: registry.KindSplit},
		{Stack: stack, Name: ItemExDividends, Kind: registry.KindDividend},
		{Stack: stack, Name: ItemPayDividends, Kind: registry.KindDividend},
		{Stack: stack, Name: ItemUniverse, Kind: registry.KindUniverse},
		{Stack: stack, Name: ItemShares, Kind: registry.KindShares},
		{Stack: stack, Name: ItemDelisted, Kind: registry.KindDelisted},
		{Stack: stack, Name: "c2c_ret", Kind: registry.KindReturn},
		{Stack: stack, Name: "trade_date", Kind: registry.KindCalendar},
		{Stack: stack, Name: "unrate", Kind: registry.KindMacro},
		{Stack: stack, Name: ItemFilingDate},
		{Stack: stack, Name: ItemCompanyInfo, Kind: registry.KindCompany},
		{Stack: stack, Name: "revenues", Kind: registry.KindReport},
		{Stack: stack, Name: "assets", Kind: registry.KindReport},
	}
	for _, name := range PriceItems {
		items = append(items, registry.Item{Stack: stack, Name: name, Kind: registry.KindOHLC})
	}
	reg, err := registry.New(layout, items)
	require.NoError(t, err)

	cal, err := calendar.BuildStatus(d("2024-01-01"), d("2024-02-29"), []time.Time{d("2024-01-01")})
	require.NoError(t, err)

	logger, logs := testutil.NewTestLogger(t)
	store := snapshot.NewStore(reg, logger)
	in := NewIngestor(store, cal, providers, Options{
		Quality:    config.Default().Quality,
		EpochFloor: d(epoch),
	}, logger)
	in.now = func() time.Time { return d(today).Add(15 * time.Hour) }

	return &fixture{ingestor: in, store: store, registry: reg, logs: logs}
}

func (f *fixture) snapshot(t *testing.T, item, date string) map[string]float64 {
	t.Helper()
	values, err := f.store.ReadSnapshot(stack, item, d(date))
	require.NoError(t, err)
	return values
}

func TestSavePrices(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Providers{Prices: &fakePrices{missing: map[string]bool{"2024-01-04": true}}}, "2024-01-02", "2024-01-05")

	report, err := f.ingestor.SavePrices(ctx, stack, PriceOptions{})
	require.NoError(t, err)
	assert.Equal(t, 4, report.Total)
	assert.Equal(t, []string{"2024-01-04"}, report.FailedUnits())
	testutil.AssertLogContains(t, f.logs, slog.LevelWarn, "Unit failed")

	assert.Equal(t, map[string]float64{"AAPL": 1.5, "BRK_B": 10.5}, f.snapshot(t, "close", "2024-01-05"))
	assert.Equal(t, map[string]float64{"AAPL": 7, "BRK_B": 1}, f.snapshot(t, "transaction_num", "2024-01-02"))
	_, err = f.store.ReadSnapshot(stack, "open", d("2024-01-04"))
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeNotFound))

	report, err = f.ingestor.SavePrices(ctx, stack, PriceOptions{})
	require.NoError(t, err)
	assert.Zero(t, report.Total, "a second run has nothing new to fetch")
}

func TestSavePrices_AdjustedItemsMustBeRegistered(t *testing.T) {
	f := newFixture(t, Providers{Prices: &fakePrices{}}, "2024-01-02", "2024-01-05")
	_, err := f.ingestor.SavePrices(context.Background(), stack, PriceOptions{Adjusted: true})
	assert.True(t, apperrors.IsUnknownItem(err))
}

func TestSave_NoProvider(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Providers{}, "2024-01-02", "2024-01-05")

	_, err := f.ingestor.SavePrices(ctx, stack, PriceOptions{})
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
	_, err = f.ingestor.SaveSplits(ctx, stack)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
	_, err = f.ingestor.SaveMacro(ctx, stack, "unrate", "UNRATE")
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
}

func TestSaveSplits(t *testing.T) {
	actions := &fakeActions{splits: []provider.Split{
		{Ticker: "AAPL", Date: d("2024-01-03"), Ratio: 0.25},
		{Ticker: "X", Date: d("2024-01-03"), Ratio: 0.5},
		{Ticker: "X", Date: d("2024-01-03"), Ratio: 0.5},
		{Ticker: "REV", Date: d("2024-01-06"), Ratio: 10},
	}}
	f := newFixture(t, Providers{Actions: actions}, "2024-01-02", "2024-01-05")

	written, err := f.ingestor.SaveSplits(context.Background(), stack)
	require.NoError(t, err)
	assert.Equal(t, 2, written)
	assert.Equal(t, d("2024-01-02"), actions.start)
	assert.Equal(t, d("2024-01-06"), actions.end, "splits are fetched through tomorrow")

	assert.Equal(t, map[string]float64{"AAPL": 0.25, "X": 0.25}, f.snapshot(t, "stock_splits", "2024-01-03"))
	assert.Equal(t, map[string]float64{"REV": 10}, f.snapshot(t, "stock_splits", "2024-01-06"))
}

func TestSaveDividends(t *testing.T) {
	actions := &fakeActions{dividends: []provider.Dividend{
		{Ticker: "KO", ExDate: d("2024-01-03"), PayDate: d("2024-01-20"), Amount: 0.4},
		{Ticker: "KO", ExDate: d("2024-01-03"), PayDate: d("2024-01-20"), Amount: 0.1},
		{Ticker: "PEP", ExDate: d("2024-01-04")},
	}}
	f := newFixture(t, Providers{Actions: actions}, "2024-01-02", "2024-01-05")

	written, err := f.ingestor.SaveDividends(context.Background(), stack)
	require.NoError(t, err)
	assert.Equal(t, 3, written)
	assert.Equal(t, d("2024-01-05"), actions.end)

	assert.Equal(t, map[string]float64{"KO": 0.5}, f.snapshot(t, ItemExDividends, "2024-01-03"))
	assert.Equal(t, map[string]float64{"KO": 0.5}, f.snapshot(t, ItemPayDividends, "2024-01-20"))
	assert.Equal(t, map[string]float64{"PEP": 0}, f.snapshot(t, ItemExDividends, "2024-01-04"))
}

func TestSaveUniverseAndShares(t *testing.T) {
	ctx := context.Background()
	shares := &fakeShares{}
	f := newFixture(t, Providers{
		Universe: &fakeUniverse{members: []string{"A", "B"}},
		Shares:   shares,
	}, "2024-01-30", "2024-02-02")

	report, err := f.ingestor.SaveUniverse(ctx, stack, ItemUniverse)
	require.NoError(t, err)
	require.True(t, report.Complete())
	assert.Equal(t, 4, report.Total)

	require.NoError(t, f.store.WriteSnapshot(stack, "stock_splits", d("2024-01-31"), map[string]float64{"A": 0.5}))

	report, err = f.ingestor.SaveShares(ctx, stack, ItemUniverse)
	require.NoError(t, err)
	assert.True(t, report.Complete())
	assert.Equal(t, map[string]int{"2024-01-30": 2, "2024-02-01": 2}, shares.calls,
		"the vendor is asked on the first date and on the first trading day of a month")

	assert.Equal(t, map[string]float64{"A": 1000, "B": 500}, f.snapshot(t, ItemShares, "2024-01-30"))
	assert.Equal(t, map[string]float64{"A": 2000, "B": 500}, f.snapshot(t, ItemShares, "2024-01-31"))
	assert.Equal(t, map[string]float64{"A": 1000, "B": 500}, f.snapshot(t, ItemShares, "2024-02-02"))
}

func TestSaveDelisted(t *testing.T) {
	f := newFixture(t, Providers{Universe: &fakeUniverse{delisted: []provider.DelistedTicker{
		{Ticker: "OLD", Name: "Old Corp", Date: d("2020-03-04")},
		{Ticker: "GONE", Name: "Gone Inc", Date: d("2021-05-06")},
	}}}, "2024-01-02", "2024-01-05")

	reg, err := f.ingestor.SaveDelisted(context.Background(), stack, ItemDelisted)
	require.NoError(t, err)
	assert.Equal(t, 2, reg.Len())

	loc, err := f.registry.Resolve(stack, ItemDelisted, registry.TierRawTable)
	require.NoError(t, err)
	loaded, err := universe.LoadDelisted(loc.Path)
	require.NoError(t, err)
	date, ok := loaded.DelistedOn("GONE")
	require.True(t, ok)
	assert.Equal(t, d("2021-05-06"), date)
}

func TestSaveMacro(t *testing.T) {
	f := newFixture(t, Providers{Macro: &fakeMacro{obs: []provider.Observation{
		{Date: d("2023-12-01"), Value: 3.5},
		{Date: d("2024-01-01"), Value: 3.7},
		{Date: d("2024-02-01"), Value: 3.9},
	}}}, "2024-01-01", "2024-02-05")

	written, err := f.ingestor.SaveMacro(context.Background(), stack, "unrate", "UNRATE")
	require.NoError(t, err)
	assert.Equal(t, 2, written, "observations before the fetch start are ignored")
	assert.Equal(t, map[string]float64{"unrate": 3.9}, f.snapshot(t, "unrate", "2024-02-01"))
}

func TestSaveMarketStatus(t *testing.T) {
	f := newFixture(t, Providers{Calendar: &fakeCalendar{holidays: []time.Time{d("2024-07-04")}}}, "2024-01-02", "2024-01-05")

	cal, err := f.ingestor.SaveMarketStatus(context.Background(), stack, d("2024-07-01"), d("2024-07-07"), nil)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{d("2024-07-01"), d("2024-07-02"), d("2024-07-03"), d("2024-07-05")}, cal.AllTradingDays())

	loaded, err := calendar.LoadFromRegistry(f.registry, stack, "trade_date")
	require.NoError(t, err)
	assert.Equal(t, cal.AllTradingDays(), loaded.AllTradingDays())
	status, ok := loaded.StatusOf(d("2024-07-04"))
	require.True(t, ok)
	assert.Equal(t, calendar.Holiday, status)
}

func TestSaveDailyReturns(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Providers{}, "2024-01-02", "2024-01-08")

	seed := func(item, date string, values map[string]float64) {
		require.NoError(t, f.store.WriteSnapshot(stack, item, d(date), values))
	}
	seed("close", "2024-01-02", map[string]float64{"A": 10, "B": 10})
	seed("close", "2024-01-03", map[string]float64{"A": 11, "B": 10})
	seed("close", "2024-01-04", map[string]float64{"A": 5.5, "B": 0.5})
	seed("close", "2024-01-05", map[string]float64{"A": 6, "B": 0.5})
	seed("stock_splits", "2024-01-04", map[string]float64{"A": 0.5})
	seed(ItemExDividends, "2024-01-05", map[string]float64{"A": 0.5})

	written, err := f.ingestor.SaveDailyReturns(ctx, stack, CloseToClose)
	require.NoError(t, err)
	assert.Equal(t, 3, written)

	jan3 := f.snapshot(t, "c2c_ret", "2024-01-03")
	assert.InDelta(t, 0.1, jan3["A"], 1e-12)
	assert.InDelta(t, 0.0, jan3["B"], 1e-12)
	assert.InDelta(t, 0.0, f.snapshot(t, "c2c_ret", "2024-01-04")["A"], 1e-12, "the split is not a loss")
	assert.InDelta(t, 6.5/5.5-1, f.snapshot(t, "c2c_ret", "2024-01-05")["A"], 1e-12, "the dividend is income")

	rec, ok := f.logs.FindMessage("Suspect price move without split")
	require.True(t, ok)
	assert.Equal(t, slog.LevelWarn, rec.Level)
	assert.True(t, f.logs.ContainsAttr("entity", "B"))

	seed("close", "2024-01-08", map[string]float64{"A": 6.6, "B": 0.5})
	written, err = f.ingestor.SaveDailyReturns(ctx, stack, CloseToClose)
	require.NoError(t, err)
	assert.Equal(t, 1, written)
	assert.InDelta(t, 0.1, f.snapshot(t, "c2c_ret", "2024-01-08")["A"], 1e-12)

	written, err = f.ingestor.SaveDailyReturns(ctx, stack, CloseToClose)
	require.NoError(t, err)
	assert.Zero(t, written)
}

func TestParseReturnMode(t *testing.T) {
	m, err := ParseReturnMode("o2o")
	require.NoError(t, err)
	assert.Equal(t, "o2o_ret", m.Item())

	_, err = ParseReturnMode("h2l")
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))
}

func TestSaveFinancialReports(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Providers{Fundamentals: &fakeFundamentals{reports: map[string][]provider.Report{
		"2024-01-03": {
			{Ticker: "AAPL", Values: map[string]float64{"revenues": 100, "assets": 900, "rare_account": 1}},
			{Ticker: "BRK.B", Values: map[string]float64{"assets": 500}},
		},
	}}}, "2024-01-02", "2024-01-05")

	report, err := f.ingestor.SaveFinancialReports(ctx, stack)
	require.NoError(t, err)
	assert.True(t, report.Complete())
	assert.Equal(t, 4, report.Total)

	assert.Equal(t, map[string]float64{"AAPL": 1, "BRK_B": 1}, f.snapshot(t, ItemFilingDate, "2024-01-03"))
	assert.Equal(t, map[string]float64{"AAPL": 100}, f.snapshot(t, "revenues", "2024-01-03"),
		"a filer without the account has no entry")
	assert.Equal(t, map[string]float64{"AAPL": 900, "BRK_B": 500}, f.snapshot(t, "assets", "2024-01-03"))

	_, err = f.store.ReadSnapshot(stack, ItemFilingDate, d("2024-01-02"))
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeNotFound), "dates without filings write nothing")
	_, err = f.registry.Item(stack, "rare_account")
	assert.True(t, apperrors.IsUnknownItem(err))

	report, err = f.ingestor.SaveFinancialReports(ctx, stack)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Total, "the next run resumes after the last filing date")
}

func TestSaveCompanyInfo(t *testing.T) {
	ctx := context.Background()
	companies := &fakeCompanies{}
	f := newFixture(t, Providers{Companies: companies}, "2024-01-02", "2024-01-05")
	require.NoError(t, f.store.WriteMembership(stack, ItemUniverse, d("2024-01-04"), []string{"B", "A", "BAD"}))

	report, err := f.ingestor.SaveCompanyInfo(ctx, stack, ItemUniverse)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, []string{"BAD"}, report.FailedUnits())

	loc, err := f.registry.Resolve(stack, ItemCompanyInfo, registry.TierRawTable)
	require.NoError(t, err)
	table, err := universe.LoadCompanies(loc.Path)
	require.NoError(t, err)
	require.Equal(t, 2, table.Len())
	assert.Equal(t, "A Inc", table.Rows()[0].Name)

	// only tickers new to the table are asked for and appended
	require.NoError(t, f.store.WriteMembership(stack, ItemUniverse, d("2024-01-05"), []string{"A", "B", "C"}))
	companies.asked = nil
	report, err = f.ingestor.SaveCompanyInfo(ctx, stack, ItemUniverse)
	require.NoError(t, err)
	assert.Equal(t, []string{"C"}, companies.asked)
	assert.True(t, report.Complete())

	table, err = universe.LoadCompanies(loc.Path)
	require.NoError(t, err)
	var tickers []string
	for _, row := range table.Rows() {
		tickers = append(tickers, row.Ticker)
	}
	assert.Equal(t, []string{"A", "B", "C"}, tickers)
	testutil.AssertLogContains(t, f.logs, slog.LevelInfo, "Company info saved")

	_, err = newFixture(t, Providers{}, "2024-01-02", "2024-01-05").ingestor.SaveCompanyInfo(ctx, stack, ItemUniverse)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
}
