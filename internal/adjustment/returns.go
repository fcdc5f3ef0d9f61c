package adjustment

import (
	"math"
	"sort"
	"time"

	"mdwarehouse/internal/panel"
)

// DailyReturns computes split- and dividend-adjusted returns
//
//	r(t) = (P(t)·f(t) + D(t)·f(t)) / (P(t-1)·f(t-1)) - 1
//
// over the rows of price after the first. Missing dividends are 0; a null
// or zero previous price yields a null return.
func DailyReturns(price, factors, dividends *panel.Panel) *panel.Panel {
	dates := price.Dates()
	cols := price.Columns()
	if len(dates) < 2 {
		return panel.New(nil, cols)
	}

	adjusted := ApplyAdjustment(price, factors)
	out := panel.New(dates[1:], cols)
	for j, entity := range cols {
		for i := 1; i < len(dates); i++ {
			prev, cur := adjusted.At(i-1, j), adjusted.At(i, j)
			if panel.IsNull(prev) || panel.IsNull(cur) || prev == 0 {
				continue
			}
			div := dividendOn(dividends, dates[i], entity) * factorOn(factors, dates[i], entity)
			out.Set(i-1, j, (cur+div)/prev-1)
		}
	}
	return out
}

func dividendOn(dividends *panel.Panel, d time.Time, entity string) float64 {
	if dividends == nil {
		return 0
	}
	v, ok := dividends.Value(d, entity)
	if !ok || panel.IsNull(v) {
		return 0
	}
	return v
}

func factorOn(factors *panel.Panel, d time.Time, entity string) float64 {
	if factors == nil {
		return 1
	}
	f, ok := factors.Value(d, entity)
	if !ok || panel.IsNull(f) {
		return 1
	}
	return f
}

// RollShares carries share counts forward across one day's splits. Each
// entity with a positive multiplier r holds prev/r shares afterwards.
func RollShares(prev map[string]float64, ratios map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(prev))
	for entity, shares := range prev {
		r, ok := ratios[entity]
		if ok && r > 0 && !math.IsInf(r, 0) {
			shares /= r
		}
		out[entity] = shares
	}
	return out
}

// Move is a large day-over-day price change
type Move struct {
	Date   time.Time
	Entity string
	Change float64
}

// SuspectMoves lists raw price changes larger than threshold in absolute
// value on days without a recorded split, the usual sign of a split the
// vendor never reported.
func SuspectMoves(raw, factors *panel.Panel, threshold float64) []Move {
	var moves []Move
	dates := raw.Dates()
	for j, entity := range raw.Columns() {
		prevIdx := -1
		for i := range dates {
			cur := raw.At(i, j)
			if panel.IsNull(cur) {
				continue
			}
			if prevIdx >= 0 {
				prev := raw.At(prevIdx, j)
				if prev != 0 {
					change := cur/prev - 1
					if math.Abs(change) > threshold && !splitBetween(factors, dates[prevIdx], dates[i], entity) {
						moves = append(moves, Move{Date: dates[i], Entity: entity, Change: change})
					}
				}
			}
			prevIdx = i
		}
	}

	sort.Slice(moves, func(a, b int) bool {
		if !moves[a].Date.Equal(moves[b].Date) {
			return moves[a].Date.Before(moves[b].Date)
		}
		return moves[a].Entity < moves[b].Entity
	})
	return moves
}

func splitBetween(factors *panel.Panel, from, to time.Time, entity string) bool {
	return factorOn(factors, from, entity) != factorOn(factors, to, entity)
}
