package ingest

import (
	"context"
	"log/slog"
	"sort"
	"time"

	apperrors "mdwarehouse/internal/errors"
)

// SaveSplits downloads the splits from the item's next fetch date through
// tomorrow in one call and writes one snapshot per execution date. Two
// splits of one entity on the same date compound.
func (in *Ingestor) SaveSplits(ctx context.Context, stack string) (int, error) {
	if in.providers.Actions == nil {
		return 0, apperrors.NewConfigError("no corporate action provider configured", nil)
	}
	item := in.opts.Quality.SplitItem
	if err := in.requireItems(stack, item); err != nil {
		return 0, err
	}

	start, err := in.fetchStart(stack, item)
	if err != nil {
		return 0, err
	}
	end := in.today().AddDate(0, 0, 1)
	if start.After(end) {
		return 0, nil
	}

	splits, err := in.providers.Actions.Splits(ctx, start, end)
	if err != nil {
		return 0, err
	}

	byDate := make(map[time.Time]map[string]float64)
	for _, s := range splits {
		day, ok := byDate[s.Date]
		if !ok {
			day = make(map[string]float64)
			byDate[s.Date] = day
		}
		if r, dup := day[s.Ticker]; dup {
			day[s.Ticker] = r * s.Ratio
			continue
		}
		day[s.Ticker] = s.Ratio
	}

	written, err := in.writeByDate(stack, item, byDate)
	if err != nil {
		return written, err
	}
	in.logger.InfoContext(ctx, "Splits saved",
		slog.String("stack", stack),
		slog.Int("splits", len(splits)),
		slog.Int("snapshots", written))
	return written, nil
}

// SaveDividends downloads cash dividends going ex from the next fetch date
// through today. Amounts are written to ex_dividends keyed by ex-date and
// to pay_dividends keyed by pay date; same-day amounts of an entity add up.
func (in *Ingestor) SaveDividends(ctx context.Context, stack string) (int, error) {
	if in.providers.Actions == nil {
		return 0, apperrors.NewConfigError("no corporate action provider configured", nil)
	}
	if err := in.requireItems(stack, ItemExDividends, ItemPayDividends); err != nil {
		return 0, err
	}

	start, err := in.fetchStart(stack, ItemExDividends)
	if err != nil {
		return 0, err
	}
	end := in.today()
	if start.After(end) {
		return 0, nil
	}

	divs, err := in.providers.Actions.Dividends(ctx, start, end)
	if err != nil {
		return 0, err
	}

	exByDate := make(map[time.Time]map[string]float64)
	payByDate := make(map[time.Time]map[string]float64)
	add := func(m map[time.Time]map[string]float64, date time.Time, ticker string, amount float64) {
		day, ok := m[date]
		if !ok {
			day = make(map[string]float64)
			m[date] = day
		}
		day[ticker] += amount
	}
	for _, d := range divs {
		add(exByDate, d.ExDate, d.Ticker, d.Amount)
		if !d.PayDate.IsZero() {
			add(payByDate, d.PayDate, d.Ticker, d.Amount)
		}
	}

	written, err := in.writeByDate(stack, ItemExDividends, exByDate)
	if err != nil {
		return written, err
	}
	paid, err := in.writeByDate(stack, ItemPayDividends, payByDate)
	written += paid
	if err != nil {
		return written, err
	}

	in.logger.InfoContext(ctx, "Dividends saved",
		slog.String("stack", stack),
		slog.Int("dividends", len(divs)),
		slog.Int("snapshots", written))
	return written, nil
}

// writeByDate writes one snapshot per date in date order
func (in *Ingestor) writeByDate(stack, item string, byDate map[time.Time]map[string]float64) (int, error) {
	dates := make([]time.Time, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	for i, d := range dates {
		if err := in.store.WriteSnapshot(stack, item, d, byDate[d]); err != nil {
			return i, err
		}
	}
	return len(dates), nil
}
