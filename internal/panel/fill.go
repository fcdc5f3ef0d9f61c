package panel

import "time"

// FillStatistics summarizes a forward-fill pass
type FillStatistics struct {
	TotalCells  int
	FilledCells int
	Columns     int
	Dates       int
}

// ForwardFill carries the last known value of each column down over null
// cells. Cells before a column's first value stay null.
func (p *Panel) ForwardFill() *Panel {
	out, _ := p.ForwardFillWithStats()
	return out
}

// ForwardFillWithStats performs forward-fill and returns statistics
func (p *Panel) ForwardFillWithStats() (*Panel, FillStatistics) {
	out := p.Clone()
	stats := FillStatistics{
		TotalCells: p.Len() * p.Width(),
		Columns:    p.Width(),
		Dates:      p.Len(),
	}

	for j := range out.columns {
		last := Null()
		for i := range out.dates {
			v := out.values[i][j]
			if !IsNull(v) {
				last = v
				continue
			}
			if !IsNull(last) {
				out.values[i][j] = last
				stats.FilledCells++
			}
		}
	}
	return out, stats
}

// FillOnto reindexes p onto dates, forward filling from the most recent
// earlier row of p for dates p does not carry. Used for sparse items such
// as financial reports that must be read on every trading day.
func (p *Panel) FillOnto(dates []time.Time) *Panel {
	all := make([]time.Time, 0, len(dates)+p.Len())
	all = append(all, p.dates...)
	all = append(all, dates...)
	return p.Reindex(all, p.columns).ForwardFill().Reindex(dates, p.columns)
}
