// Package adjustment computes split adjustment factors and applies them to
// price panels.
//
// A split is recorded as the price multiplier split_from/split_to (a
// 2-for-1 split is 0.5). The forward factor of a date is the cumulative
// product of every multiplier on or before it; the backward factor divides
// the last forward factor by it. Adjusted price = raw price × factor.
package adjustment

import (
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"mdwarehouse/internal/config"
	apperrors "mdwarehouse/internal/errors"
	"mdwarehouse/internal/infrastructure"
	"mdwarehouse/internal/panel"
)

// Engine computes adjustment factors, logging the split records it has to
// repair or skip
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates an engine; a nil logger uses the application logger
func NewEngine(logger *slog.Logger) *Engine {
	return &Engine{logger: infrastructure.WithComponent(logger, "adjustment")}
}

// ComputeFactorPanel computes factors with the application logger
func ComputeFactorPanel(splits *panel.Panel, tradingDates []time.Time, method Method) (*panel.Panel, error) {
	return NewEngine(nil).ComputeFactorPanel(splits, tradingDates, method)
}

// ComputeFactorPanel returns one factor column per splits entity over the
// trading dates.
//
// Missing and null multipliers count as 1. A zero multiplier counts as 1
// and is logged. A split dated on a non-trading day applies on the next
// trading day; one dated outside the trading dates is dropped with a
// warning. Negative or infinite multipliers are a computation error.
func (e *Engine) ComputeFactorPanel(splits *panel.Panel, tradingDates []time.Time, method Method) (*panel.Panel, error) {
	if method != Forward && method != Backward {
		return nil, apperrors.NewValidationError("unknown adjustment method").WithContext("method", int(method))
	}

	days := make([]time.Time, 0, len(tradingDates))
	for _, d := range tradingDates {
		days = append(days, panel.Day(d))
	}
	slices.SortFunc(days, func(a, b time.Time) int { return a.Compare(b) })
	days = slices.CompactFunc(days, func(a, b time.Time) bool { return a.Equal(b) })

	if splits == nil {
		splits = panel.Empty()
	}
	cols := splits.Columns()
	ratios := panel.New(days, cols)
	for i := range days {
		for j := range cols {
			ratios.Set(i, j, 1)
		}
	}
	if len(days) == 0 {
		return ratios, nil
	}

	splitDates := splits.Dates()
	for i, d := range splitDates {
		for j, entity := range cols {
			r := splits.At(i, j)
			if panel.IsNull(r) {
				continue
			}
			if r < 0 || math.IsInf(r, 0) {
				return nil, apperrors.NewComputationError("invalid split ratio").
					WithContext("entity", entity).
					WithContext("date", d.Format(config.DateLayout)).
					WithContext("ratio", fmt.Sprint(r))
			}
			if r == 0 {
				e.logger.Warn("Zero split ratio treated as no split",
					slog.String("entity", entity),
					slog.String("date", d.Format(config.DateLayout)))
				continue
			}

			idx, ok := e.target(days, d, entity)
			if !ok {
				continue
			}
			ratios.Set(idx, j, ratios.At(idx, j)*r)
		}
	}

	return cumulate(ratios, method), nil
}

// target returns the trading-day row a split dated d applies to
func (e *Engine) target(days []time.Time, d time.Time, entity string) (int, bool) {
	idx := sort.Search(len(days), func(i int) bool { return !days[i].Before(d) })
	switch {
	case idx == len(days):
		e.logger.Warn("Split after last trading date dropped",
			slog.String("entity", entity),
			slog.String("date", d.Format(config.DateLayout)),
			slog.String("last_trading_date", days[len(days)-1].Format(config.DateLayout)))
		return 0, false
	case idx == 0 && !days[0].Equal(d):
		e.logger.Warn("Split before first trading date dropped",
			slog.String("entity", entity),
			slog.String("date", d.Format(config.DateLayout)),
			slog.String("first_trading_date", days[0].Format(config.DateLayout)))
		return 0, false
	case !days[idx].Equal(d):
		e.logger.Warn("Split on non-trading day moved to next trading day",
			slog.String("entity", entity),
			slog.String("date", d.Format(config.DateLayout)),
			slog.String("applied", days[idx].Format(config.DateLayout)))
	}
	return idx, true
}

func cumulate(ratios *panel.Panel, method Method) *panel.Panel {
	n := ratios.Len()
	for j := 0; j < ratios.Width(); j++ {
		cum := 1.0
		for i := 0; i < n; i++ {
			cum *= ratios.At(i, j)
			ratios.Set(i, j, cum)
		}
		if method == Backward {
			for i := 0; i < n; i++ {
				ratios.Set(i, j, cum/ratios.At(i, j))
			}
		}
	}
	return ratios
}

// ApplyAdjustment multiplies p by factors over the shared entities. Entities
// without factors pass through, and dates outside the factor index use 1.
func ApplyAdjustment(p, factors *panel.Panel) *panel.Panel {
	out := p.Clone()
	if factors == nil {
		return out
	}
	dates := p.Dates()
	for j, entity := range p.Columns() {
		if !factors.HasColumn(entity) {
			continue
		}
		for i, d := range dates {
			f, ok := factors.Value(d, entity)
			if !ok || panel.IsNull(f) {
				continue
			}
			out.Set(i, j, out.At(i, j)*f)
		}
	}
	return out
}

// SplitRatio converts a vendor split record into the stored price
// multiplier split_from/split_to. Split snapshots written by earlier
// tooling hold split_to/split_from, the reciprocal of this value, so they
// must be inverted before they are mixed with snapshots written here.
func SplitRatio(splitFrom, splitTo decimal.Decimal) (float64, error) {
	if !splitFrom.IsPositive() || !splitTo.IsPositive() {
		return 0, apperrors.NewComputationError("split terms must be positive").
			WithContext("split_from", splitFrom.String()).
			WithContext("split_to", splitTo.String())
	}
	r, _ := splitFrom.Div(splitTo).Float64()
	return r, nil
}
