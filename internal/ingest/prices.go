package ingest

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"mdwarehouse/internal/adjustment"
	"mdwarehouse/internal/config"
	apperrors "mdwarehouse/internal/errors"
	"mdwarehouse/internal/fanout"
)

// PriceOptions controls SavePrices
type PriceOptions struct {
	// Adjusted fetches vendor-adjusted bars into the adj_ items
	Adjusted bool
}

// SavePrices downloads grouped daily bars, one fan-out unit per date. Each
// unit writes one snapshot per price item.
func (in *Ingestor) SavePrices(ctx context.Context, stack string, opts PriceOptions) (fanout.Report, error) {
	if in.providers.Prices == nil {
		return fanout.Report{}, apperrors.NewConfigError("no price provider configured", nil)
	}

	items := make([]string, len(PriceItems))
	for i, name := range PriceItems {
		if opts.Adjusted {
			name = AdjustedPrefix + name
		}
		items[i] = name
	}
	if err := in.requireItems(stack, items...); err != nil {
		return fanout.Report{}, err
	}

	start, err := in.fetchStart(stack, items[3])
	if err != nil {
		return fanout.Report{}, err
	}
	names, byName := units(in.fetchDates(start, in.today()))

	report := fanout.Run(ctx, names, in.fanoutOptions("prices"), func(ctx context.Context, unit string) error {
		date := byName[unit]
		bars, err := in.providers.Prices.DailyBars(ctx, date, opts.Adjusted)
		if err != nil {
			return err
		}

		columns := make([]map[string]float64, len(items))
		for i := range columns {
			columns[i] = make(map[string]float64, len(bars))
		}
		for _, b := range bars {
			for i, v := range []float64{b.Open, b.High, b.Low, b.Close, b.Volume, b.AvgPrice, b.Transactions} {
				columns[i][b.Ticker] = v
			}
		}
		for i, item := range items {
			if err := in.store.WriteSnapshot(stack, item, date, columns[i]); err != nil {
				return err
			}
		}
		return nil
	})
	return report, nil
}

// SaveUniverse writes one membership snapshot per date
func (in *Ingestor) SaveUniverse(ctx context.Context, stack, item string) (fanout.Report, error) {
	if in.providers.Universe == nil {
		return fanout.Report{}, apperrors.NewConfigError("no universe provider configured", nil)
	}
	if err := in.requireItems(stack, item); err != nil {
		return fanout.Report{}, err
	}

	start, err := in.fetchStart(stack, item)
	if err != nil {
		return fanout.Report{}, err
	}
	names, byName := units(in.fetchDates(start, in.today()))

	return fanout.Run(ctx, names, in.fanoutOptions("universe"), func(ctx context.Context, unit string) error {
		date := byName[unit]
		members, err := in.providers.Universe.Members(ctx, date)
		if err != nil {
			return err
		}
		return in.store.WriteMembership(stack, item, date, members)
	}), nil
}

// SaveShares writes shares outstanding per date. On the first date of a
// run and on the first trading day of each month every member is fetched
// from the vendor, one unit per entity; on other days the previous
// snapshot is rolled forward through that day's splits.
func (in *Ingestor) SaveShares(ctx context.Context, stack, universeItem string) (fanout.Report, error) {
	if in.providers.Shares == nil {
		return fanout.Report{}, apperrors.NewConfigError("no shares provider configured", nil)
	}
	if err := in.requireItems(stack, ItemShares, universeItem); err != nil {
		return fanout.Report{}, err
	}

	status, err := in.store.Status(stack, ItemShares)
	if err != nil {
		return fanout.Report{}, err
	}
	var (
		report fanout.Report
		prev   map[string]float64
		last   time.Time
	)
	dates := in.fetchDates(in.opts.EpochFloor, in.today())
	if status.HasData() {
		dates = in.fetchDates(status.End.AddDate(0, 0, 1), in.today())
	}

	for _, date := range dates {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		var values map[string]float64
		if prev == nil || date.Month() != last.Month() || date.Year() != last.Year() {
			fetched, unitReport, err := in.fetchShares(ctx, stack, universeItem, date)
			if err != nil {
				return report, err
			}
			report.Merge(unitReport)
			values = fetched
		} else {
			values = adjustment.RollShares(prev, in.splitRatios(stack, date))
		}

		if len(values) == 0 {
			in.logger.WarnContext(ctx, "No shares outstanding for date",
				slog.String("stack", stack),
				slog.String("date", date.Format(config.DateLayout)))
			continue
		}
		if err := in.store.WriteSnapshot(stack, ItemShares, date, values); err != nil {
			return report, err
		}
		prev, last = values, date
	}
	return report, nil
}

func (in *Ingestor) fetchShares(ctx context.Context, stack, universeItem string, date time.Time) (map[string]float64, fanout.Report, error) {
	members, err := in.membersOn(stack, universeItem, date)
	if err != nil {
		return nil, fanout.Report{}, err
	}

	var (
		mu     sync.Mutex
		values = make(map[string]float64, len(members))
	)
	report := fanout.Run(ctx, members, in.fanoutOptions("shares"), func(ctx context.Context, ticker string) error {
		n, err := in.providers.Shares.SharesOutstanding(ctx, ticker, date)
		if err != nil {
			return err
		}
		mu.Lock()
		values[ticker] = n
		mu.Unlock()
		return nil
	})
	return values, report, nil
}

// membersOn reads the latest membership snapshot on or before date
func (in *Ingestor) membersOn(stack, item string, date time.Time) ([]string, error) {
	at, err := in.store.StartByCount(stack, item, date, 1)
	if err != nil {
		return nil, err
	}
	snap, err := in.store.ReadSnapshot(stack, item, at)
	if err != nil {
		return nil, err
	}
	members := make([]string, 0, len(snap))
	for id, v := range snap {
		if v == 1 {
			members = append(members, id)
		}
	}
	sort.Strings(members)
	return members, nil
}

// splitRatios reads the split snapshot of date; no snapshot means no splits
func (in *Ingestor) splitRatios(stack string, date time.Time) map[string]float64 {
	ratios, err := in.store.ReadSnapshot(stack, in.opts.Quality.SplitItem, date)
	if err != nil {
		if !apperrors.IsType(err, apperrors.ErrTypeNotFound) {
			in.logger.Warn("Split snapshot unreadable, rolling shares without splits",
				slog.String("date", date.Format(config.DateLayout)),
				slog.String("error", err.Error()))
		}
		return nil
	}
	return ratios
}
