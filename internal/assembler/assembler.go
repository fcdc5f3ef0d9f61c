// Package assembler turns the snapshots of one item into a date-indexed
// panel.
package assembler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mdwarehouse/internal/cache"
	"mdwarehouse/internal/config"
	apperrors "mdwarehouse/internal/errors"
	"mdwarehouse/internal/files"
	"mdwarehouse/internal/infrastructure"
	"mdwarehouse/internal/panel"
	"mdwarehouse/internal/snapshot"
)

// DefaultReportPrefetch is the number of snapshots read before Start when
// filling sparse items
const DefaultReportPrefetch = 90

// Request selects the snapshots to assemble
type Request struct {
	Stack string
	Item  string
	Start time.Time
	End   time.Time
	// PreFetchDays widens the range by this many calendar days before Start
	PreFetchDays int
	// Entities restricts the columns when non-nil, in the given order
	Entities []string
}

// CacheKey identifies the range of a request. The cache entry key also
// carries a fingerprint of the snapshot files in that range, so a rewritten
// or added snapshot misses the cache instead of serving the old panel.
func (r Request) CacheKey() string {
	return fmt.Sprintf("%s|%s|%s|%s|%d", r.Stack, r.Item,
		r.Start.Format(config.DateLayout), r.End.Format(config.DateLayout), r.PreFetchDays)
}

// From returns the first date covered, pre-fetch included
func (r Request) From() time.Time {
	return panel.Day(r.Start).AddDate(0, 0, -r.PreFetchDays)
}

// Assembler reads snapshots through a snapshot store
type Assembler struct {
	store          *snapshot.Store
	cache          cache.Cache
	ttl            time.Duration
	reportPrefetch int
	metrics        *infrastructure.BusinessMetrics
	logger         *slog.Logger
}

// New creates an assembler without a cache
func New(store *snapshot.Store, logger *slog.Logger) *Assembler {
	return &Assembler{
		store:          store,
		cache:          cache.NoopCache{},
		reportPrefetch: DefaultReportPrefetch,
		logger:         infrastructure.WithComponent(logger, "assembler"),
	}
}

// WithCache consults c before reading snapshots
func (a *Assembler) WithCache(c cache.Cache, ttl time.Duration) *Assembler {
	if c != nil {
		a.cache = c
	}
	a.ttl = ttl
	return a
}

// WithMetrics records assembly durations and cache lookups on m
func (a *Assembler) WithMetrics(m *infrastructure.BusinessMetrics) *Assembler {
	a.metrics = m
	return a
}

// WithReportPrefetch sets the snapshot count AssembleFilled reads before Start
func (a *Assembler) WithReportPrefetch(n int) *Assembler {
	if n > 0 {
		a.reportPrefetch = n
	}
	return a
}

// Store returns the underlying snapshot store
func (a *Assembler) Store() *snapshot.Store { return a.store }

// Assemble loads every snapshot dated within [Start-PreFetchDays, End] and
// stacks them by date. Entities that were requested but never stored are
// logged and left out; an empty range yields an empty panel.
func (a *Assembler) Assemble(ctx context.Context, req Request) (*panel.Panel, error) {
	ctx, span := infrastructure.StartSpan(ctx, "assembler.Assemble", map[string]interface{}{
		"stack": req.Stack,
		"item":  req.Item,
	})
	defer span.End()

	began := time.Now()
	logger := a.logger.With(slog.String("stack", req.Stack), slog.String("item", req.Item))

	p, err := a.cached(ctx, req, logger)
	if err != nil {
		infrastructure.RecordError(ctx, err)
		return nil, err
	}
	a.metrics.RecordAssemble(ctx, req.Stack, req.Item, time.Since(began))

	if req.Entities == nil || p.IsEmpty() {
		return p, nil
	}
	return selectEntities(p, req.Entities, logger), nil
}

func (a *Assembler) cached(ctx context.Context, req Request, logger *slog.Logger) (*panel.Panel, error) {
	from, end := req.From(), panel.Day(req.End)
	if end.Before(from) {
		return nil, apperrors.NewValidationError("assemble range ends before it starts").
			WithContext("start", from.Format(config.DateLayout)).
			WithContext("end", end.Format(config.DateLayout))
	}

	found, err := a.store.Files(req.Stack, req.Item, from, end)
	if err != nil {
		return nil, err
	}
	key := req.CacheKey() + "|" + a.store.Fingerprint(req.Stack, req.Item, found)

	data, hit, err := a.cache.Get(ctx, key)
	if err != nil {
		logger.Warn("Panel cache lookup failed", slog.String("key", key), slog.String("error", err.Error()))
	}
	if hit {
		p, err := panel.Decode(data)
		if err == nil {
			a.metrics.RecordCacheLookup(ctx, true)
			logger.Debug("Panel cache hit", slog.String("key", key))
			return p, nil
		}
		logger.Warn("Discarding undecodable cache entry", slog.String("key", key), slog.String("error", err.Error()))
	}
	a.metrics.RecordCacheLookup(ctx, false)

	p, err := a.load(ctx, req, found, logger)
	if err != nil || p.IsEmpty() {
		return p, err
	}

	if encoded, err := p.Encode(); err != nil {
		logger.Warn("Failed to encode panel for cache", slog.String("error", err.Error()))
	} else if err := a.cache.Set(ctx, key, encoded, a.ttl); err != nil {
		logger.Warn("Panel cache store failed", slog.String("key", key), slog.String("error", err.Error()))
	}
	return p, nil
}

func (a *Assembler) load(ctx context.Context, req Request, found []files.DatedFile, logger *slog.Logger) (*panel.Panel, error) {
	from, end := req.From(), panel.Day(req.End)

	rows := make([]panel.Row, 0, len(found))
	for _, f := range found {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		values, err := a.store.ReadSnapshot(req.Stack, req.Item, f.Date)
		if err != nil {
			return nil, err
		}
		rows = append(rows, panel.Row{Date: f.Date, Values: values})
	}

	if len(rows) == 0 {
		logger.Warn("No snapshots in range",
			slog.String("start", from.Format(config.DateLayout)),
			slog.String("end", end.Format(config.DateLayout)))
		return panel.Empty(), nil
	}

	logger.Debug("Assembled panel",
		slog.Int("dates", len(rows)),
		slog.String("start", from.Format(config.DateLayout)),
		slog.String("end", end.Format(config.DateLayout)))
	return panel.FromRows(rows), nil
}

// selectEntities keeps the requested entities in request order. Requests
// are normalized the way snapshots store identifiers, so "BRK.B" selects
// the BRK_B column.
func selectEntities(p *panel.Panel, entities []string, logger *slog.Logger) *panel.Panel {
	ids := make([]string, len(entities))
	var missing []string
	for i, id := range entities {
		ids[i] = snapshot.NormalizeID(id)
		if !p.HasColumn(ids[i]) {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		logger.Warn("Requested entities missing from panel",
			slog.Int("missing_count", len(missing)),
			slog.Any("missing", missing))
	}
	return p.Select(ids)
}

// AssembleFilled serves sparse items such as financial reports on a
// trading-day index. It reads a number of snapshots before Start so the
// first trading days inherit the latest earlier value, forward fills onto
// tradingDates and trims the result to [Start, End].
func (a *Assembler) AssembleFilled(ctx context.Context, req Request, tradingDates []time.Time) (*panel.Panel, error) {
	inner := req
	inner.PreFetchDays = 0

	start, err := a.store.StartByCount(req.Stack, req.Item, req.Start, a.reportPrefetch)
	switch {
	case err == nil:
		inner.Start = start
	case apperrors.IsType(err, apperrors.ErrTypeNotFound):
		// nothing stored before Start, read from Start
	default:
		return nil, err
	}

	p, err := a.Assemble(ctx, inner)
	if err != nil {
		return nil, err
	}

	from, end := panel.Day(req.Start), panel.Day(req.End)
	var index []time.Time
	for _, d := range tradingDates {
		d = panel.Day(d)
		if !d.Before(from) && !d.After(end) {
			index = append(index, d)
		}
	}
	return p.FillOnto(index), nil
}
