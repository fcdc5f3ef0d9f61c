// Package quality drops entities whose data looks broken. Filters are pure
// functions of their inputs, so filtering a raw table twice gives the same
// table.
package quality

import (
	"math"
	"sort"

	"mdwarehouse/internal/adjustment"
	"mdwarehouse/internal/config"
	"mdwarehouse/internal/panel"
)

// Reason explains why an entity was dropped
type Reason string

const (
	ReasonGapRatio      Reason = "gap_ratio"
	ReasonZScore        Reason = "zscore"
	ReasonDividendRatio Reason = "dividend_ratio"
)

// minReturns is the fewest returns a z-score is computed from
const minReturns = 3

// Config holds the filter thresholds
type Config struct {
	MaxGapRatio      float64
	MaxZScore        float64
	MaxDividendRatio float64
}

// ConfigFrom extracts the thresholds from the application config
func ConfigFrom(cfg config.QualityConfig) Config {
	return Config{
		MaxGapRatio:      cfg.MaxGapRatio,
		MaxZScore:        cfg.MaxZScore,
		MaxDividendRatio: cfg.MaxDividendRatio,
	}
}

// DefaultConfig returns the stock thresholds
func DefaultConfig() Config {
	return Config{MaxGapRatio: 0.1, MaxZScore: 5, MaxDividendRatio: 0.8}
}

// Report lists the dropped entities and why
type Report struct {
	Dropped map[string][]Reason
}

func (r *Report) drop(entity string, reason Reason) {
	if r.Dropped == nil {
		r.Dropped = make(map[string][]Reason)
	}
	r.Dropped[entity] = append(r.Dropped[entity], reason)
}

// Entities returns the sorted dropped entities
func (r Report) Entities() []string {
	out := make([]string, 0, len(r.Dropped))
	for id := range r.Dropped {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Count returns the number of dropped entities
func (r Report) Count() int { return len(r.Dropped) }

// FilterOHLC drops entities with too many interior gaps or with an extreme
// split-adjusted daily return
func FilterOHLC(price, factors *panel.Panel, cfg Config) (*panel.Panel, Report) {
	var report Report

	for _, id := range price.Columns() {
		if GapRatio(price.Column(id)) > cfg.MaxGapRatio {
			report.drop(id, ReasonGapRatio)
		}
	}

	returns := adjustment.ApplyAdjustment(price, factors).PctChange()
	for _, id := range returns.Columns() {
		if z, ok := MaxAbsZScore(returns.Column(id)); ok && z > cfg.MaxZScore {
			report.drop(id, ReasonZScore)
		}
	}

	return price.Drop(report.Entities()), report
}

// FilterDividends drops entities whose dividend ever exceeds
// MaxDividendRatio of the same day's close
func FilterDividends(div, closePrice *panel.Panel, cfg Config) (*panel.Panel, Report) {
	var report Report

	dates := div.Dates()
	for j, id := range div.Columns() {
		for i, d := range dates {
			amount := div.At(i, j)
			if panel.IsNull(amount) {
				continue
			}
			c, ok := closePrice.Value(d, id)
			if !ok || panel.IsNull(c) || c <= 0 {
				continue
			}
			if amount/c > cfg.MaxDividendRatio {
				report.drop(id, ReasonDividendRatio)
				break
			}
		}
	}

	return div.Drop(report.Entities()), report
}

// GapRatio returns the share of null cells between the first and last
// non-null cell. Leading and trailing nulls are not gaps.
func GapRatio(values []float64) float64 {
	first, last := -1, -1
	for i, v := range values {
		if !panel.IsNull(v) {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 || last == first {
		return 0
	}

	gaps := 0
	for _, v := range values[first : last+1] {
		if panel.IsNull(v) {
			gaps++
		}
	}
	return float64(gaps) / float64(last-first+1)
}

// MaxAbsZScore returns the largest |z| of the non-null values using the
// sample standard deviation. ok is false with fewer than three values or
// zero deviation.
func MaxAbsZScore(values []float64) (float64, bool) {
	var xs []float64
	for _, v := range values {
		if !panel.IsNull(v) && !math.IsInf(v, 0) {
			xs = append(xs, v)
		}
	}
	if len(xs) < minReturns {
		return 0, false
	}

	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))

	ss := 0.0
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	std := math.Sqrt(ss / float64(len(xs)-1))
	if std == 0 {
		return 0, false
	}

	maxZ := 0.0
	for _, x := range xs {
		if z := math.Abs(x-mean) / std; z > maxZ {
			maxZ = z
		}
	}
	return maxZ, true
}
