package tables

import (
	"context"
	"log/slog"
	"time"

	"mdwarehouse/internal/assembler"
	"mdwarehouse/internal/config"
	apperrors "mdwarehouse/internal/errors"
	"mdwarehouse/internal/infrastructure"
	"mdwarehouse/internal/panel"
	"mdwarehouse/internal/registry"
)

// maxReportedGaps bounds the missing dates attached to an ErrGap
const maxReportedGaps = 10

// Merge appends the snapshots dated after the raw table's last date.
//
// The raw table must exist. An explicit Start on or before the table end
// is an overlap. For dense items every trading day between the table end
// and the last merged snapshot must have a snapshot; sparse items skip the
// check. Nothing new to merge is a logged no-op.
func (b *Builder) Merge(ctx context.Context, stack, item string, opts MergeOptions) (res Result, err error) {
	ctx, span := infrastructure.StartSpan(ctx, "tables.Merge", map[string]interface{}{"stack": stack, "item": item})
	defer span.End()
	defer b.record(ctx, "merge", stack, item, time.Now(), &err)

	it, err := b.registry.Item(stack, item)
	if err != nil {
		return Result{}, err
	}
	loc, err := b.registry.Resolve(stack, item, registry.TierRawTable)
	if err != nil {
		return Result{}, err
	}
	existing, err := b.readTable(loc.Path, stack, item)
	if err != nil {
		return Result{}, err
	}
	tableEnd, ok := existing.LastDate()
	if !ok {
		return Result{}, apperrors.NewAppError(apperrors.ErrTypeValidation, "raw table is empty", apperrors.ErrNoTable).
			WithContext("path", loc.Path)
	}

	from := tableEnd.AddDate(0, 0, 1)
	if !opts.Start.IsZero() {
		start := panel.Day(opts.Start)
		if !start.After(tableEnd) {
			return Result{}, apperrors.NewAppError(apperrors.ErrTypeValidation, "merge start overlaps raw table", apperrors.ErrOverlap).
				WithContext("start", start.Format(config.DateLayout)).
				WithContext("table_end", tableEnd.Format(config.DateLayout))
		}
		from = start
	}

	dates, err := b.store.Dates(stack, item)
	if err != nil {
		return Result{}, err
	}
	var pending []time.Time
	for _, d := range dates {
		if d.Before(from) || (!opts.Through.IsZero() && d.After(panel.Day(opts.Through))) {
			continue
		}
		pending = append(pending, d)
	}

	result := Result{
		Stack: stack, Item: item, Tier: registry.TierRawTable, Path: loc.Path,
		Rows: existing.Len(), Columns: existing.Width(),
	}
	if len(pending) == 0 {
		b.logger.InfoContext(ctx, "Raw table already up to date",
			slog.String("stack", stack),
			slog.String("item", item),
			slog.String("table_end", tableEnd.Format(config.DateLayout)))
		return result, nil
	}

	last := pending[len(pending)-1]
	if it.Kind.Dense() {
		if err := b.checkGaps(tableEnd, last, pending); err != nil {
			return Result{}, err
		}
	}

	fresh, err := b.assembler.Assemble(ctx, assembler.Request{Stack: stack, Item: item, Start: pending[0], End: last})
	if err != nil {
		return Result{}, err
	}
	merged := panel.Concat(existing, fresh)
	if err := b.writeTable(loc.Path, merged); err != nil {
		return Result{}, err
	}

	b.logger.InfoContext(ctx, "Raw table merged",
		slog.String("stack", stack),
		slog.String("item", item),
		slog.Int("appended", fresh.Len()),
		slog.String("through", last.Format(config.DateLayout)))

	result.Rows, result.Columns, result.Appended = merged.Len(), merged.Width(), fresh.Len()
	return result, nil
}

// checkGaps fails when a trading day in (tableEnd, last] has no snapshot
func (b *Builder) checkGaps(tableEnd, last time.Time, pending []time.Time) error {
	if b.calendar == nil {
		return apperrors.NewConfigError("merging a dense item requires a trade calendar", nil)
	}

	have := make(map[time.Time]struct{}, len(pending))
	for _, d := range pending {
		have[d] = struct{}{}
	}

	var missing []string
	for _, d := range b.calendar.TradingDays(tableEnd.AddDate(0, 0, 1), last) {
		if _, ok := have[d]; !ok {
			missing = append(missing, d.Format(config.DateLayout))
		}
	}
	if len(missing) == 0 {
		return nil
	}

	reported := missing
	if len(reported) > maxReportedGaps {
		reported = reported[:maxReportedGaps]
	}
	return apperrors.NewAppError(apperrors.ErrTypeValidation, "merge would leave trading days without data", apperrors.ErrGap).
		WithContext("missing_count", len(missing)).
		WithContext("missing", reported)
}
