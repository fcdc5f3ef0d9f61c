package tables

import (
	"context"
	"errors"
	"log/slog"

	"mdwarehouse/internal/adjustment"
	"mdwarehouse/internal/assembler"
	apperrors "mdwarehouse/internal/errors"
	"mdwarehouse/internal/infrastructure"
	"mdwarehouse/internal/panel"
	"mdwarehouse/internal/quality"
	"mdwarehouse/internal/registry"
)

// filter applies the quality filter of the item's kind. Kinds without a
// filter pass through unchanged.
func (b *Builder) filter(ctx context.Context, it registry.Item, raw *panel.Panel) (*panel.Panel, []string, error) {
	cfg := quality.ConfigFrom(b.quality)

	var (
		out    *panel.Panel
		report quality.Report
	)
	switch it.Kind {
	case registry.KindOHLC:
		factors, err := b.factors(ctx, it.Stack, raw)
		if err != nil {
			return nil, nil, err
		}
		out, report = quality.FilterOHLC(raw, factors, cfg)
	case registry.KindDividend:
		closePrice, err := b.prices(ctx, it.Stack, raw)
		if err != nil {
			return nil, nil, err
		}
		out, report = quality.FilterDividends(raw, closePrice, cfg)
	default:
		return raw, nil, nil
	}

	infrastructure.AddSpanEvent(ctx, "quality filter applied", map[string]interface{}{
		"item":    it.Name,
		"kind":    string(it.Kind),
		"dropped": int64(len(report.Entities())),
	})
	for _, id := range report.Entities() {
		b.logger.DebugContext(ctx, "Entity dropped by quality filter",
			slog.String("item", it.Name),
			slog.String("entity", id),
			slog.Any("reasons", report.Dropped[id]))
	}
	return out, report.Entities(), nil
}

// factors computes backward split factors over the raw table's range
func (b *Builder) factors(ctx context.Context, stack string, raw *panel.Panel) (*panel.Panel, error) {
	first, ok := raw.FirstDate()
	if !ok {
		return panel.Empty(), nil
	}
	last, _ := raw.LastDate()

	splits, err := b.assembler.Assemble(ctx, assembler.Request{
		Stack: stack, Item: b.quality.SplitItem, Start: first, End: last,
	})
	if apperrors.IsUnknownItem(err) {
		b.logger.WarnContext(ctx, "Split item not registered, returns are not split-adjusted",
			slog.String("stack", stack),
			slog.String("item", b.quality.SplitItem))
		splits = panel.Empty()
	} else if err != nil {
		return nil, err
	}

	trading := raw.Dates()
	if b.calendar != nil {
		trading = b.calendar.TradingDays(first, last)
	}
	return adjustment.NewEngine(b.logger).ComputeFactorPanel(splits, trading, adjustment.Backward)
}

// prices loads the close prices dividends are compared against, from the
// raw table when there is one and from snapshots otherwise
func (b *Builder) prices(ctx context.Context, stack string, div *panel.Panel) (*panel.Panel, error) {
	p, err := b.Read(stack, b.quality.PriceItem, registry.TierRawTable)
	switch {
	case err == nil:
		return p, nil
	case apperrors.IsUnknownItem(err):
		b.logger.WarnContext(ctx, "Price item not registered, dividends are not filtered",
			slog.String("stack", stack),
			slog.String("item", b.quality.PriceItem))
		return panel.Empty(), nil
	case !errors.Is(err, apperrors.ErrNoTable):
		return nil, err
	}

	first, ok := div.FirstDate()
	if !ok {
		return panel.Empty(), nil
	}
	last, _ := div.LastDate()
	return b.assembler.Assemble(ctx, assembler.Request{
		Stack: stack, Item: b.quality.PriceItem, Start: first, End: last,
	})
}
