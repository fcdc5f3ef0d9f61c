package panel

import (
	"math"
	"slices"
	"sort"
	"time"
)

// Panel is a date x entity matrix of float64 values. Null cells hold NaN.
// Rows are strictly increasing UTC calendar dates; columns are unique.
type Panel struct {
	dates   []time.Time
	columns []string
	index   map[string]int
	values  [][]float64
}

// Row is one date's cross-section, used to build a panel from snapshots
type Row struct {
	Date   time.Time
	Values map[string]float64
}

// Null returns the null cell value
func Null() float64 { return math.NaN() }

// IsNull reports whether v is a null cell
func IsNull(v float64) bool { return math.IsNaN(v) }

// Day truncates t to its calendar date in UTC
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// New creates an all-null panel. Dates are truncated, sorted and
// deduplicated; duplicate columns are dropped keeping the first.
func New(dates []time.Time, columns []string) *Panel {
	p := &Panel{
		dates:   normalizeDates(dates),
		columns: make([]string, 0, len(columns)),
		index:   make(map[string]int, len(columns)),
	}
	for _, c := range columns {
		if _, ok := p.index[c]; ok {
			continue
		}
		p.index[c] = len(p.columns)
		p.columns = append(p.columns, c)
	}
	p.values = make([][]float64, len(p.dates))
	for i := range p.values {
		p.values[i] = nullRow(len(p.columns))
	}
	return p
}

// Empty returns a panel with no rows and no columns
func Empty() *Panel {
	return New(nil, nil)
}

// FromRows concatenates cross-sections along the date axis. Columns are the
// sorted union of all entities; a date given twice is merged, later rows
// winning.
func FromRows(rows []Row) *Panel {
	dates := make([]time.Time, 0, len(rows))
	seen := make(map[string]struct{})
	for _, r := range rows {
		dates = append(dates, r.Date)
		for id := range r.Values {
			seen[id] = struct{}{}
		}
	}

	p := New(dates, sortedKeys(seen))
	for _, r := range rows {
		i, _ := p.RowIndex(r.Date)
		for id, v := range r.Values {
			p.values[i][p.index[id]] = v
		}
	}
	return p
}

// Len returns the number of dates
func (p *Panel) Len() int { return len(p.dates) }

// Width returns the number of columns
func (p *Panel) Width() int { return len(p.columns) }

// IsEmpty reports whether the panel has no rows
func (p *Panel) IsEmpty() bool { return p == nil || len(p.dates) == 0 }

// Dates returns a copy of the row index
func (p *Panel) Dates() []time.Time { return slices.Clone(p.dates) }

// Columns returns a copy of the column names
func (p *Panel) Columns() []string { return slices.Clone(p.columns) }

// FirstDate returns the earliest date
func (p *Panel) FirstDate() (time.Time, bool) {
	if p.IsEmpty() {
		return time.Time{}, false
	}
	return p.dates[0], true
}

// LastDate returns the latest date
func (p *Panel) LastDate() (time.Time, bool) {
	if p.IsEmpty() {
		return time.Time{}, false
	}
	return p.dates[len(p.dates)-1], true
}

// HasColumn reports whether the entity is a column
func (p *Panel) HasColumn(col string) bool {
	_, ok := p.index[col]
	return ok
}

// ColumnIndex returns the position of a column
func (p *Panel) ColumnIndex(col string) (int, bool) {
	i, ok := p.index[col]
	return i, ok
}

// RowIndex returns the position of a date
func (p *Panel) RowIndex(date time.Time) (int, bool) {
	d := Day(date)
	i := sort.Search(len(p.dates), func(i int) bool { return !p.dates[i].Before(d) })
	if i < len(p.dates) && p.dates[i].Equal(d) {
		return i, true
	}
	return i, false
}

// At returns the cell at (row, col)
func (p *Panel) At(row, col int) float64 { return p.values[row][col] }

// Set assigns the cell at (row, col)
func (p *Panel) Set(row, col int, v float64) { p.values[row][col] = v }

// Value returns the cell at (date, col). ok is false when the date or the
// column is not part of the panel; a present but null cell returns NaN, true.
func (p *Panel) Value(date time.Time, col string) (float64, bool) {
	j, ok := p.index[col]
	if !ok {
		return Null(), false
	}
	i, ok := p.RowIndex(date)
	if !ok {
		return Null(), false
	}
	return p.values[i][j], true
}

// SetValue assigns the cell at (date, col) and reports whether it exists
func (p *Panel) SetValue(date time.Time, col string, v float64) bool {
	j, ok := p.index[col]
	if !ok {
		return false
	}
	i, ok := p.RowIndex(date)
	if !ok {
		return false
	}
	p.values[i][j] = v
	return true
}

// Row returns the non-null cells of one date
func (p *Panel) Row(date time.Time) map[string]float64 {
	i, ok := p.RowIndex(date)
	if !ok {
		return nil
	}
	out := make(map[string]float64)
	for j, c := range p.columns {
		if v := p.values[i][j]; !IsNull(v) {
			out[c] = v
		}
	}
	return out
}

// Column returns a copy of one entity's values in date order
func (p *Panel) Column(col string) []float64 {
	j, ok := p.index[col]
	if !ok {
		return nil
	}
	out := make([]float64, len(p.dates))
	for i := range p.dates {
		out[i] = p.values[i][j]
	}
	return out
}

// Clone returns a deep copy
func (p *Panel) Clone() *Panel {
	out := New(p.dates, p.columns)
	for i := range p.values {
		copy(out.values[i], p.values[i])
	}
	return out
}

// Select returns the given columns in the given order; unknown columns are
// skipped.
func (p *Panel) Select(cols []string) *Panel {
	keep := make([]string, 0, len(cols))
	for _, c := range cols {
		if p.HasColumn(c) {
			keep = append(keep, c)
		}
	}
	return p.Reindex(p.dates, keep)
}

// Drop returns the panel without the given columns
func (p *Panel) Drop(cols []string) *Panel {
	drop := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		drop[c] = struct{}{}
	}
	keep := make([]string, 0, len(p.columns))
	for _, c := range p.columns {
		if _, ok := drop[c]; !ok {
			keep = append(keep, c)
		}
	}
	return p.Reindex(p.dates, keep)
}

// Reindex conforms the panel to a new date index and column set. Cells that
// exist in p keep their value, everything else is null.
func (p *Panel) Reindex(dates []time.Time, cols []string) *Panel {
	out := New(dates, cols)
	colMap := make([]int, len(out.columns))
	for j, c := range out.columns {
		if src, ok := p.index[c]; ok {
			colMap[j] = src
		} else {
			colMap[j] = -1
		}
	}
	for i, d := range out.dates {
		src, ok := p.RowIndex(d)
		if !ok {
			continue
		}
		for j, sj := range colMap {
			if sj >= 0 {
				out.values[i][j] = p.values[src][sj]
			}
		}
	}
	return out
}

// Between returns the rows within [start, end]
func (p *Panel) Between(start, end time.Time) *Panel {
	s, e := Day(start), Day(end)
	dates := make([]time.Time, 0, len(p.dates))
	for _, d := range p.dates {
		if !d.Before(s) && !d.After(e) {
			dates = append(dates, d)
		}
	}
	return p.Reindex(dates, p.columns)
}

// After returns the rows strictly after date
func (p *Panel) After(date time.Time) *Panel {
	d := Day(date)
	dates := make([]time.Time, 0, len(p.dates))
	for _, x := range p.dates {
		if x.After(d) {
			dates = append(dates, x)
		}
	}
	return p.Reindex(dates, p.columns)
}

// PctChange returns v[t]/v[t-1] - 1 per column. The first row and any cell
// with a null operand are null.
func (p *Panel) PctChange() *Panel {
	out := New(p.dates, p.columns)
	for i := 1; i < len(p.dates); i++ {
		for j := range p.columns {
			prev, cur := p.values[i-1][j], p.values[i][j]
			if IsNull(prev) || IsNull(cur) || prev == 0 {
				continue
			}
			out.values[i][j] = cur/prev - 1
		}
	}
	return out
}

// Equal reports whether two panels have the same index, columns and cells,
// treating null as equal to null.
func (p *Panel) Equal(other *Panel) bool {
	if p.Len() != other.Len() || !slices.Equal(p.columns, other.columns) {
		return false
	}
	for i := range p.dates {
		if !p.dates[i].Equal(other.dates[i]) {
			return false
		}
		for j := range p.columns {
			a, b := p.values[i][j], other.values[i][j]
			if IsNull(a) && IsNull(b) {
				continue
			}
			if a != b {
				return false
			}
		}
	}
	return true
}

func normalizeDates(dates []time.Time) []time.Time {
	out := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		out = append(out, Day(d))
	}
	slices.SortFunc(out, func(a, b time.Time) int { return a.Compare(b) })
	return slices.CompactFunc(out, func(a, b time.Time) bool { return a.Equal(b) })
}

func nullRow(n int) []float64 {
	row := make([]float64, n)
	for i := range row {
		row[i] = math.NaN()
	}
	return row
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
