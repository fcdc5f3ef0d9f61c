package ingest

import (
	"context"
	"log/slog"
	"time"

	"mdwarehouse/internal/calendar"
	apperrors "mdwarehouse/internal/errors"
	"mdwarehouse/internal/registry"
	"mdwarehouse/internal/universe"
)

// SaveDelisted replaces the delisted registry stored at the raw_table
// location of item
func (in *Ingestor) SaveDelisted(ctx context.Context, stack, item string) (*universe.DelistedRegistry, error) {
	if in.providers.Universe == nil {
		return nil, apperrors.NewConfigError("no universe provider configured", nil)
	}
	loc, err := in.registry.Resolve(stack, item, registry.TierRawTable)
	if err != nil {
		return nil, err
	}

	tickers, err := in.providers.Universe.Delisted(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]universe.Delisting, 0, len(tickers))
	for _, t := range tickers {
		records = append(records, universe.Delisting{Entity: t.Ticker, Name: t.Name, Date: t.Date})
	}

	reg := universe.NewDelistedRegistry(records)
	if err := reg.Save(loc.Path, in.logger); err != nil {
		return nil, err
	}
	in.logger.InfoContext(ctx, "Delisted registry saved",
		slog.String("stack", stack),
		slog.Int("entities", reg.Len()))
	return reg, nil
}

// SaveMacro writes one snapshot per observation of seriesID, keyed by the
// item name
func (in *Ingestor) SaveMacro(ctx context.Context, stack, item, seriesID string) (int, error) {
	if in.providers.Macro == nil {
		return 0, apperrors.NewConfigError("no macro provider configured", nil)
	}
	if err := in.requireItems(stack, item); err != nil {
		return 0, err
	}

	start, err := in.fetchStart(stack, item)
	if err != nil {
		return 0, err
	}
	obs, err := in.providers.Macro.Observations(ctx, seriesID, start, in.today())
	if err != nil {
		return 0, err
	}

	byDate := make(map[time.Time]map[string]float64, len(obs))
	for _, o := range obs {
		if o.Date.Before(start) {
			continue
		}
		byDate[o.Date] = map[string]float64{item: o.Value}
	}
	written, err := in.writeByDate(stack, item, byDate)
	if err != nil {
		return written, err
	}
	in.logger.InfoContext(ctx, "Macro series saved",
		slog.String("item", item),
		slog.String("series", seriesID),
		slog.Int("snapshots", written))
	return written, nil
}

// SaveMarketStatus builds the market status series for [start, end] and
// stores it at the table location of the calendar item. A nil holidays
// slice asks the calendar provider.
func (in *Ingestor) SaveMarketStatus(ctx context.Context, stack string, start, end time.Time, holidays []time.Time) (*calendar.Calendar, error) {
	if holidays == nil && in.providers.Calendar != nil {
		fetched, err := in.providers.Calendar.Holidays(ctx)
		if err != nil {
			return nil, err
		}
		holidays = fetched
	}

	cal, err := calendar.BuildStatus(start, end, holidays)
	if err != nil {
		return nil, err
	}
	if err := cal.SaveToRegistry(in.registry, stack, in.opts.Quality.CalendarItem, in.logger); err != nil {
		return nil, err
	}
	in.calendar = cal

	in.logger.InfoContext(ctx, "Market status saved",
		slog.String("stack", stack),
		slog.Int("days", cal.Len()),
		slog.Int("holidays", len(holidays)))
	return cal, nil
}
