// Package ingest downloads vendor data and writes it as snapshots. Every
// downloader is incremental: it starts the day after the item's last
// snapshot, or at the epoch floor for an empty item.
package ingest

import (
	"log/slog"
	"time"

	"mdwarehouse/internal/assembler"
	"mdwarehouse/internal/calendar"
	"mdwarehouse/internal/config"
	"mdwarehouse/internal/fanout"
	"mdwarehouse/internal/infrastructure"
	"mdwarehouse/internal/panel"
	"mdwarehouse/internal/provider"
	"mdwarehouse/internal/registry"
	"mdwarehouse/internal/snapshot"
)

// Item names written by the downloaders
const (
	ItemExDividends  = "ex_dividends"
	ItemPayDividends = "pay_dividends"
	ItemShares       = "shares_outstanding"
	ItemUniverse     = "universe"
	ItemDelisted     = "delisted"
	ItemFilingDate   = "filing_date"
	ItemCompanyInfo  = "company_info"
	AdjustedPrefix   = "adj_"
)

// PriceItems are the fields of a daily bar, one item each
var PriceItems = []string{"open", "high", "low", "close", "volume", "avg_price", "transaction_num"}

// Providers are the vendors an Ingestor reads from. Nil providers disable
// the downloaders that need them.
type Providers struct {
	Prices   provider.PriceProvider
	Actions  provider.CorporateActionProvider
	Universe provider.UniverseProvider
	Shares   provider.SharesProvider
	Calendar provider.CalendarProvider
	Macro    provider.MacroProvider

	Fundamentals provider.FundamentalsProvider
	Companies    provider.CompanyInfoProvider
}

// Options configures an Ingestor
type Options struct {
	Fetch      config.FetchConfig
	Quality    config.QualityConfig
	EpochFloor time.Time
}

// Ingestor runs the downloaders of one warehouse
type Ingestor struct {
	registry  *registry.Registry
	store     *snapshot.Store
	assembler *assembler.Assembler
	calendar  *calendar.Calendar
	providers Providers
	opts      Options
	metrics   *infrastructure.BusinessMetrics
	now       func() time.Time
	logger    *slog.Logger
}

// NewIngestor creates an ingestor. The calendar may be nil, in which case
// every calendar day in a range is fetched.
func NewIngestor(store *snapshot.Store, cal *calendar.Calendar, providers Providers, opts Options, logger *slog.Logger) *Ingestor {
	logger = infrastructure.WithComponent(logger, "ingest")
	return &Ingestor{
		registry:  store.Registry(),
		store:     store,
		assembler: assembler.New(store, logger),
		calendar:  cal,
		providers: providers,
		opts:      opts,
		now:       time.Now,
		logger:    logger,
	}
}

// WithMetrics records fan-out units and snapshot writes on m
func (in *Ingestor) WithMetrics(m *infrastructure.BusinessMetrics) *Ingestor {
	in.metrics = m
	in.store.WithMetrics(m)
	return in
}

// WithCalendar replaces the trade calendar, e.g. after SaveMarketStatus
func (in *Ingestor) WithCalendar(cal *calendar.Calendar) *Ingestor {
	in.calendar = cal
	return in
}

func (in *Ingestor) today() time.Time {
	return panel.Day(in.now())
}

// fetchStart is the first date to download for item
func (in *Ingestor) fetchStart(stack, item string) (time.Time, error) {
	status, err := in.store.Status(stack, item)
	if err != nil {
		return time.Time{}, err
	}
	return snapshot.NextFetchStart(status, in.opts.EpochFloor), nil
}

// fetchDates lists the dates a per-day downloader covers in [start, end]
func (in *Ingestor) fetchDates(start, end time.Time) []time.Time {
	if start.After(end) {
		return nil
	}
	if in.calendar != nil {
		return in.calendar.TradingDays(start, end)
	}
	var dates []time.Time
	for d := panel.Day(start); !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates
}

func (in *Ingestor) fanoutOptions(operation string) fanout.Options {
	opts := fanout.OptionsFrom(operation, in.opts.Fetch)
	opts.Logger = in.logger
	opts.Metrics = in.metrics
	return opts
}

// requireItems fails on the first unregistered item
func (in *Ingestor) requireItems(stack string, items ...string) error {
	for _, item := range items {
		if _, err := in.registry.Item(stack, item); err != nil {
			return err
		}
	}
	return nil
}

func units(dates []time.Time) ([]string, map[string]time.Time) {
	names := make([]string, len(dates))
	byName := make(map[string]time.Time, len(dates))
	for i, d := range dates {
		names[i] = d.Format(config.DateLayout)
		byName[names[i]] = d
	}
	return names, byName
}
