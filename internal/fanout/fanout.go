// Package fanout runs independent units of work concurrently with paced
// launches. A failing unit never cancels its siblings.
package fanout

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"mdwarehouse/internal/config"
	"mdwarehouse/internal/infrastructure"
)

// DefaultLaunchInterval spaces unit launches when Options leaves it unset
const DefaultLaunchInterval = 100 * time.Millisecond

// Options configures a Run
type Options struct {
	// Operation names the run in logs and metrics
	Operation string
	// LaunchInterval is the minimum gap between two unit launches. Negative
	// disables pacing.
	LaunchInterval time.Duration
	// MaxConcurrency bounds the units in flight; zero means unbounded
	MaxConcurrency int
	Logger         *slog.Logger
	Metrics        *infrastructure.BusinessMetrics
}

// OptionsFrom builds run options from the fetch configuration
func OptionsFrom(operation string, cfg config.FetchConfig) Options {
	interval := cfg.LaunchInterval
	if interval == 0 {
		interval = -1
	}
	return Options{
		Operation:      operation,
		LaunchInterval: interval,
		MaxConcurrency: cfg.MaxConcurrency,
	}
}

// Report is the outcome of a Run
type Report struct {
	Operation string
	Total     int
	Succeeded []string
	Failed    map[string]error
	Duration  time.Duration
}

// Complete reports whether every unit succeeded
func (r Report) Complete() bool { return len(r.Failed) == 0 }

// FailedUnits returns the failed units sorted
func (r Report) FailedUnits() []string {
	units := make([]string, 0, len(r.Failed))
	for u := range r.Failed {
		units = append(units, u)
	}
	sort.Strings(units)
	return units
}

// Merge folds other into r
func (r *Report) Merge(other Report) {
	r.Total += other.Total
	r.Succeeded = append(r.Succeeded, other.Succeeded...)
	sort.Strings(r.Succeeded)
	for u, err := range other.Failed {
		if r.Failed == nil {
			r.Failed = make(map[string]error)
		}
		r.Failed[u] = err
	}
	r.Duration += other.Duration
}

// Run calls fn once per unit, each in its own goroutine, and waits for all of
// them. Errors and panics are collected into the report and logged at warn
// level. Units not yet launched when ctx is cancelled fail with ctx.Err().
func Run(ctx context.Context, units []string, opts Options, fn func(ctx context.Context, unit string) error) Report {
	logger := infrastructure.WithComponent(opts.Logger, "fanout")
	began := time.Now()

	interval := opts.LaunchInterval
	if interval == 0 {
		interval = DefaultLaunchInterval
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	limiter := rate.NewLimiter(limit, 1)

	var g errgroup.Group
	if opts.MaxConcurrency > 0 {
		g.SetLimit(opts.MaxConcurrency)
	}

	var (
		mu     sync.Mutex
		report = Report{Operation: opts.Operation, Total: len(units), Failed: make(map[string]error)}
	)
	finish := func(unit string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			report.Failed[unit] = err
		} else {
			report.Succeeded = append(report.Succeeded, unit)
		}
		opts.Metrics.RecordFanoutUnit(ctx, opts.Operation, err == nil)
	}

	for i, unit := range units {
		if err := limiter.Wait(ctx); err != nil {
			for _, skipped := range units[i:] {
				finish(skipped, ctx.Err())
			}
			break
		}
		g.Go(func() error {
			finish(unit, safeCall(ctx, unit, fn))
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(report.Succeeded)
	report.Duration = time.Since(began)

	for _, unit := range report.FailedUnits() {
		logger.WarnContext(ctx, "Unit failed",
			slog.String("operation", opts.Operation),
			slog.String("unit", unit),
			slog.String("error", report.Failed[unit].Error()))
	}
	logger.InfoContext(ctx, "Fan-out finished",
		slog.String("operation", opts.Operation),
		slog.Int("total", report.Total),
		slog.Int("succeeded", len(report.Succeeded)),
		slog.Int("failed", len(report.Failed)),
		slog.Duration("duration", report.Duration))

	return report
}

func safeCall(ctx context.Context, unit string, fn func(context.Context, string) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unit %s panicked: %v\n%s", unit, r, debug.Stack())
		}
	}()
	return fn(ctx, unit)
}
