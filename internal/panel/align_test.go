package panel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlign_Symmetry(t *testing.T) {
	p1 := FromRows([]Row{
		{Date: d("2020-01-01"), Values: map[string]float64{"A": 1, "B": 2}},
		{Date: d("2020-01-03"), Values: map[string]float64{"A": 3}},
	})
	p2 := FromRows([]Row{
		{Date: d("2020-01-02"), Values: map[string]float64{"B": 20, "C": 30}},
		{Date: d("2020-01-03"), Values: map[string]float64{"C": 31}},
	})

	aligned := Align(p1, p2)
	require.Len(t, aligned, 2)
	a1, a2 := aligned[0], aligned[1]

	wantDates := []time.Time{d("2020-01-01"), d("2020-01-02"), d("2020-01-03")}
	assert.Equal(t, wantDates, a1.Dates())
	assert.Equal(t, a1.Dates(), a2.Dates())
	assert.Equal(t, []string{"A", "B", "C"}, a1.Columns())
	assert.Equal(t, a1.Columns(), a2.Columns())

	// originals preserved, null elsewhere
	for _, src := range []struct {
		orig, aligned *Panel
	}{{p1, a1}, {p2, a2}} {
		for _, date := range src.aligned.Dates() {
			for _, col := range src.aligned.Columns() {
				got, _ := src.aligned.Value(date, col)
				want, present := src.orig.Value(date, col)
				if present {
					if IsNull(want) {
						assert.True(t, IsNull(got))
					} else {
						assert.Equal(t, want, got, "%s %s", date, col)
					}
				} else {
					assert.True(t, IsNull(got), "%s %s should be null", date, col)
				}
			}
		}
	}

	// inputs untouched
	assert.Equal(t, []string{"A", "B"}, p1.Columns())
	assert.Equal(t, 2, p2.Len())
}

func TestAlign_HandlesEmptyAndNil(t *testing.T) {
	p := FromRows([]Row{{Date: d("2020-01-01"), Values: map[string]float64{"A": 1}}})

	aligned := Align(p, Empty(), nil)
	require.Len(t, aligned, 3)
	for _, a := range aligned {
		assert.Equal(t, 1, a.Len())
		assert.Equal(t, []string{"A"}, a.Columns())
	}
	assert.True(t, IsNull(aligned[2].At(0, 0)))
}

func TestConcat_LaterWins(t *testing.T) {
	old := FromRows([]Row{
		{Date: d("2020-01-01"), Values: map[string]float64{"A": 1}},
		{Date: d("2020-01-02"), Values: map[string]float64{"A": 2}},
	})
	fresh := FromRows([]Row{
		{Date: d("2020-01-02"), Values: map[string]float64{"A": 20, "B": 5}},
		{Date: d("2020-01-03"), Values: map[string]float64{"B": 6}},
	})

	c := Concat(old, fresh)
	assert.Equal(t, 3, c.Len())
	v, _ := c.Value(d("2020-01-02"), "A")
	assert.Equal(t, 20.0, v)
	v, _ = c.Value(d("2020-01-01"), "B")
	assert.True(t, IsNull(v))
}
