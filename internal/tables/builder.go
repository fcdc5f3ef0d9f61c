// Package tables moves item data between tiers: snapshots are merged into
// raw tables, and raw tables are quality-filtered into tables.
package tables

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"time"

	"mdwarehouse/internal/assembler"
	"mdwarehouse/internal/calendar"
	"mdwarehouse/internal/config"
	apperrors "mdwarehouse/internal/errors"
	"mdwarehouse/internal/files"
	"mdwarehouse/internal/infrastructure"
	"mdwarehouse/internal/panel"
	"mdwarehouse/internal/registry"
	"mdwarehouse/internal/snapshot"
)

// Result describes a written table
type Result struct {
	Stack    string
	Item     string
	Tier     registry.Tier
	Path     string
	Rows     int
	Columns  int
	Appended int
	Dropped  []string
}

// RebuildOptions controls Rebuild
type RebuildOptions struct {
	// Replace overwrites an existing raw table
	Replace bool
}

// MergeOptions controls Merge
type MergeOptions struct {
	// Start is the first snapshot date to merge; zero means the day after
	// the table's last date
	Start time.Time
	// Through is the last snapshot date to merge; zero means all
	Through time.Time
}

// Builder performs tier transitions
type Builder struct {
	registry  *registry.Registry
	store     *snapshot.Store
	assembler *assembler.Assembler
	calendar  *calendar.Calendar
	quality   config.QualityConfig
	files     *files.Manager
	metrics   *infrastructure.BusinessMetrics
	logger    *slog.Logger
}

// NewBuilder creates a builder. The calendar is required to merge dense
// items and to compute split factors; it may be nil otherwise.
func NewBuilder(store *snapshot.Store, cal *calendar.Calendar, qcfg config.QualityConfig, logger *slog.Logger) *Builder {
	logger = infrastructure.WithComponent(logger, "tables")
	return &Builder{
		registry:  store.Registry(),
		store:     store,
		assembler: assembler.New(store, logger),
		calendar:  cal,
		quality:   qcfg,
		files:     files.NewManager(logger),
		logger:    logger,
	}
}

// WithMetrics records transition durations on m
func (b *Builder) WithMetrics(m *infrastructure.BusinessMetrics) *Builder {
	b.metrics = m
	b.assembler.WithMetrics(m)
	return b
}

// Read loads the raw_table or table tier of an item
func (b *Builder) Read(stack, item string, tier registry.Tier) (*panel.Panel, error) {
	if tier == registry.TierSnapshot {
		return nil, apperrors.NewValidationError("snapshots are read through the assembler").WithContext("tier", tier.String())
	}
	loc, err := b.registry.Resolve(stack, item, tier)
	if err != nil {
		return nil, err
	}
	return b.readTable(loc.Path, stack, item)
}

// Rebuild builds the raw table from every snapshot. An existing raw table
// is an error unless opts.Replace is set, in which case it is recomputed
// from scratch.
func (b *Builder) Rebuild(ctx context.Context, stack, item string, opts RebuildOptions) (res Result, err error) {
	ctx, span := infrastructure.StartSpan(ctx, "tables.Rebuild", map[string]interface{}{"stack": stack, "item": item})
	defer span.End()
	defer b.record(ctx, "rebuild", stack, item, time.Now(), &err)

	loc, err := b.registry.Resolve(stack, item, registry.TierRawTable)
	if err != nil {
		return Result{}, err
	}
	if b.files.FileExists(loc.Path) && !opts.Replace {
		return Result{}, apperrors.NewAppError(apperrors.ErrTypeValidation, "raw table already exists", apperrors.ErrTableExists).
			WithContext("stack", stack).
			WithContext("item", item).
			WithContext("path", loc.Path)
	}

	status, err := b.store.Status(stack, item)
	if err != nil {
		return Result{}, err
	}
	if !status.HasData() {
		return Result{}, apperrors.NewNotFoundError("snapshots of " + stack + "/" + item)
	}

	p, err := b.assembler.Assemble(ctx, assembler.Request{Stack: stack, Item: item, Start: status.Start, End: status.End})
	if err != nil {
		return Result{}, err
	}
	if err := b.writeTable(loc.Path, p); err != nil {
		return Result{}, err
	}

	b.logger.InfoContext(ctx, "Raw table rebuilt",
		slog.String("stack", stack),
		slog.String("item", item),
		slog.Int("rows", p.Len()),
		slog.Int("columns", p.Width()),
		slog.Bool("replaced", opts.Replace))

	return Result{
		Stack: stack, Item: item, Tier: registry.TierRawTable, Path: loc.Path,
		Rows: p.Len(), Columns: p.Width(), Appended: p.Len(),
	}, nil
}

// Promote filters the raw table according to the item kind and writes the
// table tier. The output depends only on the raw table and its inputs, so
// promoting twice gives the same table.
func (b *Builder) Promote(ctx context.Context, stack, item string) (res Result, err error) {
	ctx, span := infrastructure.StartSpan(ctx, "tables.Promote", map[string]interface{}{"stack": stack, "item": item})
	defer span.End()
	defer b.record(ctx, "promote", stack, item, time.Now(), &err)

	it, err := b.registry.Item(stack, item)
	if err != nil {
		return Result{}, err
	}
	raw, err := b.Read(stack, item, registry.TierRawTable)
	if err != nil {
		return Result{}, err
	}
	loc, err := b.registry.Resolve(stack, item, registry.TierTable)
	if err != nil {
		return Result{}, err
	}

	filtered, dropped, err := b.filter(ctx, it, raw)
	if err != nil {
		return Result{}, err
	}
	if err := b.writeTable(loc.Path, filtered); err != nil {
		return Result{}, err
	}

	b.logger.InfoContext(ctx, "Table promoted",
		slog.String("stack", stack),
		slog.String("item", item),
		slog.String("kind", string(it.Kind)),
		slog.Int("rows", filtered.Len()),
		slog.Int("columns", filtered.Width()),
		slog.Int("dropped", len(dropped)))

	return Result{
		Stack: stack, Item: item, Tier: registry.TierTable, Path: loc.Path,
		Rows: filtered.Len(), Columns: filtered.Width(), Dropped: dropped,
	}, nil
}

func (b *Builder) readTable(path, stack, item string) (*panel.Panel, error) {
	data, err := b.files.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, apperrors.NewAppError(apperrors.ErrTypeValidation, "table does not exist", apperrors.ErrNoTable).
			WithContext("stack", stack).
			WithContext("item", item).
			WithContext("path", path)
	}
	if err != nil {
		return nil, apperrors.NewStorageError("failed to read table", err).WithContext("path", path)
	}
	p, err := panel.ReadCSV(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.NewParsingError("invalid table file", err).WithContext("path", path)
	}
	return p, nil
}

func (b *Builder) writeTable(path string, p *panel.Panel) error {
	if err := b.files.WriteWith(path, p.WriteCSV); err != nil {
		return apperrors.NewStorageError("failed to write table", err).WithContext("path", path)
	}
	return nil
}

func (b *Builder) record(ctx context.Context, op, stack, item string, began time.Time, err *error) {
	b.metrics.RecordTransition(ctx, op, stack, item, time.Since(began), *err)
	if *err != nil {
		infrastructure.RecordError(ctx, *err)
	}
}
