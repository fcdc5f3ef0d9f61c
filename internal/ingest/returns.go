package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mdwarehouse/internal/adjustment"
	"mdwarehouse/internal/assembler"
	"mdwarehouse/internal/config"
	apperrors "mdwarehouse/internal/errors"
	"mdwarehouse/internal/panel"
)

// ReturnMode selects the price a daily return is measured on
type ReturnMode string

const (
	CloseToClose ReturnMode = "c2c"
	OpenToOpen   ReturnMode = "o2o"
)

// ParseReturnMode validates a return mode name
func ParseReturnMode(s string) (ReturnMode, error) {
	switch ReturnMode(s) {
	case CloseToClose, OpenToOpen:
		return ReturnMode(s), nil
	}
	return "", apperrors.NewValidationError(fmt.Sprintf("unknown return mode %q", s))
}

func (m ReturnMode) priceItem() string {
	if m == OpenToOpen {
		return "open"
	}
	return "close"
}

// Item is the snapshot item the returns are written to
func (m ReturnMode) Item() string { return string(m) + "_ret" }

// SaveDailyReturns writes split- and dividend-adjusted daily returns for
// every price snapshot newer than the last return snapshot. Price moves
// beyond the suspect threshold on days without a split are logged.
func (in *Ingestor) SaveDailyReturns(ctx context.Context, stack string, mode ReturnMode) (int, error) {
	out := mode.Item()
	priceItem := mode.priceItem()
	if err := in.requireItems(stack, out, priceItem); err != nil {
		return 0, err
	}

	start, err := in.fetchStart(stack, out)
	if err != nil {
		return 0, err
	}
	priceStatus, err := in.store.Status(stack, priceItem)
	if err != nil {
		return 0, err
	}
	if !priceStatus.HasData() || start.After(priceStatus.End) {
		in.logger.InfoContext(ctx, "Returns already up to date",
			slog.String("stack", stack), slog.String("item", out))
		return 0, nil
	}
	end := priceStatus.End

	// one price snapshot before start anchors the first return
	from := start
	if prev, err := in.store.StartByCount(stack, priceItem, start.AddDate(0, 0, -1), 1); err == nil {
		from = prev
	}

	price, err := in.assembler.Assemble(ctx, assembler.Request{Stack: stack, Item: priceItem, Start: from, End: end})
	if err != nil {
		return 0, err
	}
	splits, err := in.optional(ctx, stack, in.opts.Quality.SplitItem, from, end)
	if err != nil {
		return 0, err
	}
	dividends, err := in.optional(ctx, stack, ItemExDividends, from, end)
	if err != nil {
		return 0, err
	}

	factors, err := adjustment.NewEngine(in.logger).ComputeFactorPanel(splits, price.Dates(), adjustment.Backward)
	if err != nil {
		return 0, err
	}
	returns := adjustment.DailyReturns(price, factors, dividends)

	written := 0
	for _, d := range returns.Dates() {
		if d.Before(start) {
			continue
		}
		if err := in.store.WriteSnapshot(stack, out, d, returns.Row(d)); err != nil {
			return written, err
		}
		written++
	}

	for _, m := range adjustment.SuspectMoves(price, factors, in.opts.Quality.SuspectMoveThreshold) {
		in.logger.WarnContext(ctx, "Suspect price move without split",
			slog.String("entity", m.Entity),
			slog.String("date", m.Date.Format(config.DateLayout)),
			slog.Float64("change", m.Change))
	}

	in.logger.InfoContext(ctx, "Daily returns saved",
		slog.String("stack", stack),
		slog.String("item", out),
		slog.Int("snapshots", written))
	return written, nil
}

// optional assembles an item that may not be registered in every stack;
// an unregistered item yields nil
func (in *Ingestor) optional(ctx context.Context, stack, item string, start, end time.Time) (*panel.Panel, error) {
	p, err := in.assembler.Assemble(ctx, assembler.Request{Stack: stack, Item: item, Start: start, End: end})
	if apperrors.IsUnknownItem(err) {
		in.logger.DebugContext(ctx, "Optional item not registered",
			slog.String("stack", stack), slog.String("item", item))
		return nil, nil
	}
	return p, err
}
