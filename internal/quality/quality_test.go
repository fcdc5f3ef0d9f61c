package quality

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdwarehouse/internal/panel"
)

var nan = math.NaN()

func series(start time.Time, cols map[string][]float64) *panel.Panel {
	n := 0
	for _, v := range cols {
		n = max(n, len(v))
	}
	rows := make([]panel.Row, n)
	for i := range rows {
		rows[i] = panel.Row{Date: start.AddDate(0, 0, i), Values: map[string]float64{}}
		for id, v := range cols {
			if i < len(v) {
				rows[i].Values[id] = v[i]
			}
		}
	}
	return panel.FromRows(rows)
}

// steady alternates small moves around 100
func steady(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 + float64(i%2)
	}
	return out
}

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestGapRatio(t *testing.T) {
	assert.Equal(t, 0.0, GapRatio([]float64{nan, 1, 2, 3, nan}))
	assert.Equal(t, 0.25, GapRatio([]float64{1, nan, 2, 3}))
	assert.Equal(t, 0.0, GapRatio([]float64{nan, nan}))
	assert.Equal(t, 0.0, GapRatio([]float64{5}))
}

func TestMaxAbsZScore(t *testing.T) {
	_, ok := MaxAbsZScore([]float64{1, nan, 2})
	assert.False(t, ok, "fewer than three returns")

	_, ok = MaxAbsZScore([]float64{0.1, 0.1, 0.1, 0.1})
	assert.False(t, ok, "zero deviation")

	z, ok := MaxAbsZScore([]float64{1, 2, 3})
	require.True(t, ok)
	assert.InDelta(t, 1.0, z, 1e-12)
}

func TestFilterOHLC(t *testing.T) {
	gappy := steady(40)
	for i := 5; i < 15; i++ {
		gappy[i] = nan
	}
	jumpy := steady(40)
	for i := 30; i < 40; i++ {
		jumpy[i] = 1000
	}
	split := steady(40)
	for i := 30; i < 40; i++ {
		split[i] = split[i] / 2
	}

	price := series(start, map[string][]float64{
		"GOOD":  steady(40),
		"GAPPY": gappy,
		"JUMPY": jumpy,
		"SPLIT": split,
	})
	factors := panel.New(price.Dates(), []string{"SPLIT"})
	for i := 0; i < factors.Len(); i++ {
		f := 0.5
		if i >= 30 {
			f = 1
		}
		factors.Set(i, 0, f)
	}

	filtered, report := FilterOHLC(price, factors, DefaultConfig())
	assert.Equal(t, []string{"GOOD", "SPLIT"}, filtered.Columns())
	assert.Equal(t, []string{"GAPPY", "JUMPY"}, report.Entities())
	assert.Equal(t, []Reason{ReasonGapRatio}, report.Dropped["GAPPY"])
	assert.Equal(t, []Reason{ReasonZScore}, report.Dropped["JUMPY"])

	// without factors the split looks like a crash
	_, report = FilterOHLC(price, nil, DefaultConfig())
	assert.Contains(t, report.Entities(), "SPLIT")
}

func TestFilterOHLC_Idempotent(t *testing.T) {
	jumpy := steady(40)
	jumpy[20] = 10000
	price := series(start, map[string][]float64{"GOOD": steady(40), "JUMPY": jumpy})

	once, r1 := FilterOHLC(price, nil, DefaultConfig())
	again, r2 := FilterOHLC(price, nil, DefaultConfig())
	assert.True(t, once.Equal(again))
	assert.Equal(t, r1, r2)

	twice, r3 := FilterOHLC(once, nil, DefaultConfig())
	assert.True(t, once.Equal(twice))
	assert.Zero(t, r3.Count())
}

func TestFilterDividends(t *testing.T) {
	closes := series(start, map[string][]float64{"A": {10, 10, 10}, "B": {10, 10, 10}, "C": {nan, 10, 10}})
	div := series(start, map[string][]float64{"A": {nan, 0.5, nan}, "B": {nan, 9, nan}, "C": {20, nan, nan}})

	filtered, report := FilterDividends(div, closes, DefaultConfig())
	assert.Equal(t, []string{"A", "C"}, filtered.Columns())
	assert.Equal(t, []Reason{ReasonDividendRatio}, report.Dropped["B"])
}
