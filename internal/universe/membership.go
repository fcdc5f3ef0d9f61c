// Package universe tracks which entities belong to a universe on each date.
package universe

import (
	"fmt"
	"sort"
	"time"

	"mdwarehouse/internal/config"
	apperrors "mdwarehouse/internal/errors"
	"mdwarehouse/internal/panel"
)

// Options controls BuildMembership
type Options struct {
	// ExcludeDelisted drops entities delisted on or before the last date.
	// It requires Delisted.
	ExcludeDelisted bool
	Delisted        *DelistedRegistry
}

// Membership is a date × entity panel holding 1 (member), 0 (not a member
// after first observation) or null (not yet observed)
type Membership struct {
	p *panel.Panel
}

// BuildMembership builds membership from the entity list of each date
func BuildMembership(lists map[time.Time][]string, opts Options) (*Membership, error) {
	if opts.ExcludeDelisted && opts.Delisted == nil {
		return nil, apperrors.NewConfigError("excluding delisted entities requires a delisted registry", nil)
	}

	rows := make([]panel.Row, 0, len(lists))
	for d, ids := range lists {
		values := make(map[string]float64, len(ids))
		for _, id := range ids {
			values[id] = 1
		}
		rows = append(rows, panel.Row{Date: d, Values: values})
	}

	m := FromPanel(panel.FromRows(rows))
	if opts.ExcludeDelisted {
		m = m.excludeDelisted(opts.Delisted)
	}
	return m, nil
}

// FromPanel wraps an assembled universe panel. Any non-zero value is
// membership; a null after an entity's first observation becomes 0.
func FromPanel(p *panel.Panel) *Membership {
	out := panel.New(p.Dates(), p.Columns())
	for j := 0; j < p.Width(); j++ {
		seen := false
		for i := 0; i < p.Len(); i++ {
			v := p.At(i, j)
			switch {
			case !panel.IsNull(v) && v != 0:
				out.Set(i, j, 1)
				seen = true
			case seen || !panel.IsNull(v):
				out.Set(i, j, 0)
			}
		}
	}
	return &Membership{p: out}
}

func (m *Membership) excludeDelisted(reg *DelistedRegistry) *Membership {
	last, ok := m.p.LastDate()
	if !ok {
		return m
	}
	var drop []string
	for _, id := range m.p.Columns() {
		if d, ok := reg.DelistedOn(id); ok && !d.After(last) {
			drop = append(drop, id)
		}
	}
	return &Membership{p: m.p.Drop(drop)}
}

// Panel returns the membership as a panel
func (m *Membership) Panel() *panel.Panel { return m.p.Clone() }

// Dates returns the observed dates
func (m *Membership) Dates() []time.Time { return m.p.Dates() }

// Members returns the sorted members on date
func (m *Membership) Members(date time.Time) ([]string, error) {
	if _, ok := m.p.RowIndex(date); !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("membership on %s", date.Format(config.DateLayout)))
	}
	members := make([]string, 0)
	for id, v := range m.p.Row(date) {
		if v == 1 {
			members = append(members, id)
		}
	}
	sort.Strings(members)
	return members, nil
}

// Latest returns the last observed date and its members
func (m *Membership) Latest() (time.Time, []string, error) {
	last, ok := m.p.LastDate()
	if !ok {
		return time.Time{}, nil, apperrors.NewNotFoundError("membership data")
	}
	members, err := m.Members(last)
	return last, members, err
}

// DetectChanges compares membership on t0 and t1. Null counts as not a
// member. Both lists are sorted.
func DetectChanges(m *Membership, t0, t1 time.Time) (entered, exited []string, err error) {
	before, err := m.Members(t0)
	if err != nil {
		return nil, nil, err
	}
	after, err := m.Members(t1)
	if err != nil {
		return nil, nil, err
	}
	entered, exited = diff(before, after)
	return entered, exited, nil
}

// diff returns the sorted entries only in after and only in before
func diff(before, after []string) (entered, exited []string) {
	was := make(map[string]bool, len(before))
	for _, id := range before {
		was[id] = true
	}
	is := make(map[string]bool, len(after))
	for _, id := range after {
		is[id] = true
		if !was[id] {
			entered = append(entered, id)
		}
	}
	for _, id := range before {
		if !is[id] {
			exited = append(exited, id)
		}
	}
	sort.Strings(entered)
	sort.Strings(exited)
	return entered, exited
}
