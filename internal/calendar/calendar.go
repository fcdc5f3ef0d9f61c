// Package calendar answers trading-day questions from a market status
// series: one entry per calendar day marking it as a trading day, a weekend
// or a holiday.
package calendar

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"mdwarehouse/internal/config"
	apperrors "mdwarehouse/internal/errors"
	"mdwarehouse/internal/panel"
)

// Status is the market status of one calendar day
type Status int

const (
	Holiday Status = -1
	Weekend Status = 0
	Trading Status = 1
)

func (s Status) String() string {
	switch s {
	case Trading:
		return "trading"
	case Weekend:
		return "weekend"
	case Holiday:
		return "holiday"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Direction selects which way Closest searches
type Direction int

const (
	Last Direction = iota
	Next
)

// Calendar is an immutable market status series
type Calendar struct {
	days    []time.Time
	status  map[time.Time]Status
	trading []time.Time
}

// New builds a calendar from a status series
func New(series map[time.Time]Status) *Calendar {
	c := &Calendar{status: make(map[time.Time]Status, len(series))}
	for d, s := range series {
		c.status[panel.Day(d)] = s
	}
	for d := range c.status {
		c.days = append(c.days, d)
	}
	slices.SortFunc(c.days, func(a, b time.Time) int { return a.Compare(b) })
	for _, d := range c.days {
		if c.status[d] == Trading {
			c.trading = append(c.trading, d)
		}
	}
	return c
}

// FromTradingDays builds a calendar spanning the given trading days. Other
// days in the span are weekends on Saturday and Sunday and holidays
// otherwise.
func FromTradingDays(days []time.Time) *Calendar {
	if len(days) == 0 {
		return New(nil)
	}
	trading := make(map[time.Time]struct{}, len(days))
	first, last := panel.Day(days[0]), panel.Day(days[0])
	for _, d := range days {
		d = panel.Day(d)
		trading[d] = struct{}{}
		if d.Before(first) {
			first = d
		}
		if d.After(last) {
			last = d
		}
	}

	series := make(map[time.Time]Status)
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		switch {
		case hasDay(trading, d):
			series[d] = Trading
		case isWeekend(d):
			series[d] = Weekend
		default:
			series[d] = Holiday
		}
	}
	return New(series)
}

// BuildStatus generates the status series of [start, end]: Saturdays and
// Sundays are weekends, the listed holidays are holidays and every other
// day trades.
func BuildStatus(start, end time.Time, holidays []time.Time) (*Calendar, error) {
	start, end = panel.Day(start), panel.Day(end)
	if end.Before(start) {
		return nil, apperrors.NewValidationError("calendar end is before start").
			WithContext("start", start.Format(config.DateLayout)).
			WithContext("end", end.Format(config.DateLayout))
	}

	off := make(map[time.Time]struct{}, len(holidays))
	for _, h := range holidays {
		off[panel.Day(h)] = struct{}{}
	}

	series := make(map[time.Time]Status)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		switch {
		case isWeekend(d):
			series[d] = Weekend
		case hasDay(off, d):
			series[d] = Holiday
		default:
			series[d] = Trading
		}
	}
	return New(series), nil
}

// Len returns the number of calendar days covered
func (c *Calendar) Len() int { return len(c.days) }

// First returns the first covered calendar day
func (c *Calendar) First() (time.Time, bool) {
	if len(c.days) == 0 {
		return time.Time{}, false
	}
	return c.days[0], true
}

// Last returns the last covered calendar day
func (c *Calendar) Last() (time.Time, bool) {
	if len(c.days) == 0 {
		return time.Time{}, false
	}
	return c.days[len(c.days)-1], true
}

// StatusOf returns the status of a day; ok is false outside the series
func (c *Calendar) StatusOf(d time.Time) (Status, bool) {
	s, ok := c.status[panel.Day(d)]
	return s, ok
}

// IsTradingDay reports whether d is a trading day
func (c *Calendar) IsTradingDay(d time.Time) bool {
	s, ok := c.StatusOf(d)
	return ok && s == Trading
}

// TradingDays returns the trading days within [start, end]
func (c *Calendar) TradingDays(start, end time.Time) []time.Time {
	start, end = panel.Day(start), panel.Day(end)
	lo := sort.Search(len(c.trading), func(i int) bool { return !c.trading[i].Before(start) })
	hi := sort.Search(len(c.trading), func(i int) bool { return c.trading[i].After(end) })
	if lo >= hi {
		return nil
	}
	return slices.Clone(c.trading[lo:hi])
}

// AllTradingDays returns every trading day of the series
func (c *Calendar) AllTradingDays() []time.Time {
	return slices.Clone(c.trading)
}

// Closest steps day by day from d in the given direction and returns the
// first trading day. With includeSelf, d itself qualifies. Leaving the
// covered range is a not-found error.
func (c *Calendar) Closest(d time.Time, dir Direction, includeSelf bool) (time.Time, error) {
	step := -1
	if dir == Next {
		step = 1
	}

	d = panel.Day(d)
	if !includeSelf {
		d = d.AddDate(0, 0, step)
	}
	for {
		s, ok := c.status[d]
		if !ok {
			return time.Time{}, apperrors.NewNotFoundError("trading day").
				WithContext("date", d.Format(config.DateLayout)).
				WithContext("direction", dir.String())
		}
		if s == Trading {
			return d, nil
		}
		d = d.AddDate(0, 0, step)
	}
}

// Next returns the first trading day strictly after d
func (c *Calendar) Next(d time.Time) (time.Time, error) {
	return c.Closest(d, Next, false)
}

// Prev returns the last trading day strictly before d
func (c *Calendar) Prev(d time.Time) (time.Time, error) {
	return c.Closest(d, Last, false)
}

func (dir Direction) String() string {
	if dir == Next {
		return "next"
	}
	return "last"
}

func isWeekend(d time.Time) bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func hasDay(set map[time.Time]struct{}, d time.Time) bool {
	_, ok := set[d]
	return ok
}
