package panel

import "time"

// Align reindexes every panel onto the union of all dates and the sorted
// union of all columns. Values present in a source panel are preserved,
// every other cell is null. The inputs are not modified.
func Align(panels ...*Panel) []*Panel {
	dates, cols := union(panels)

	out := make([]*Panel, len(panels))
	for i, p := range panels {
		if p == nil {
			p = Empty()
		}
		out[i] = p.Reindex(dates, cols)
	}
	return out
}

// Concat stacks panels along the date axis. On a date present in more than
// one panel, non-null cells of later panels win.
func Concat(panels ...*Panel) *Panel {
	dates, cols := union(panels)
	out := New(dates, cols)

	for _, p := range panels {
		if p == nil {
			continue
		}
		for i, d := range p.dates {
			oi, _ := out.RowIndex(d)
			for j, c := range p.columns {
				if v := p.values[i][j]; !IsNull(v) {
					out.values[oi][out.index[c]] = v
				}
			}
		}
	}
	return out
}

func union(panels []*Panel) ([]time.Time, []string) {
	var dates []time.Time
	seen := make(map[string]struct{})
	for _, p := range panels {
		if p == nil {
			continue
		}
		dates = append(dates, p.dates...)
		for _, c := range p.columns {
			seen[c] = struct{}{}
		}
	}
	return normalizeDates(dates), sortedKeys(seen)
}
