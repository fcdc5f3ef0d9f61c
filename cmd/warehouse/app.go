package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mdwarehouse/internal/assembler"
	"mdwarehouse/internal/cache"
	"mdwarehouse/internal/calendar"
	"mdwarehouse/internal/config"
	"mdwarehouse/internal/infrastructure"
	"mdwarehouse/internal/ingest"
	"mdwarehouse/internal/provider"
	"mdwarehouse/internal/registry"
	"mdwarehouse/internal/snapshot"
	"mdwarehouse/internal/tables"
)

// app holds the components shared by every command
type app struct {
	cfg       *config.Config
	layout    *config.Layout
	registry  *registry.Registry
	store     *snapshot.Store
	assembler *assembler.Assembler
	cache     cache.Cache
	otel      *infrastructure.OTelProviders
	metrics   *infrastructure.BusinessMetrics
	logger    *slog.Logger
}

// newApp wires config, logging, telemetry, registry and storage
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	layout, err := config.LayoutFor(cfg)
	if err != nil {
		return nil, err
	}
	if err := layout.EnsureDirectories(); err != nil {
		return nil, err
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	layout.LogPathResolution(logger)

	a := &app{cfg: cfg, layout: layout, logger: logger}

	a.otel, err = infrastructure.InitializeOTel(infrastructure.OTelConfigFrom(cfg.Telemetry), logger)
	if err != nil {
		logger.Warn("OpenTelemetry unavailable, continuing without telemetry", slog.String("error", err.Error()))
	} else if a.otel.Meter != nil {
		if a.metrics, err = infrastructure.CreateBusinessMetrics(a.otel.Meter); err != nil {
			logger.Warn("Failed to create warehouse metrics", slog.String("error", err.Error()))
		}
	}

	a.registry, err = registry.Load(layout, layout.RegistryPath(cfg.Storage.RegistryFile))
	if err != nil {
		return nil, err
	}

	a.store = snapshot.NewStore(a.registry, logger).WithMetrics(a.metrics)
	a.cache = cache.New(cfg.Cache, logger)
	a.assembler = assembler.New(a.store, logger).
		WithCache(a.cache, cfg.Cache.TTL).
		WithMetrics(a.metrics).
		WithReportPrefetch(cfg.Quality.ReportPrefetch)

	return a, nil
}

// startRun tags the context of one command with a fresh trace id
func (a *app) startRun(ctx context.Context, name string) context.Context {
	ctx = infrastructure.EnsureTraceID(ctx)
	a.logger.InfoContext(ctx, "Command started",
		slog.String("command", name),
		slog.String("root", a.layout.Root))
	return ctx
}

// calendarFor loads the trade calendar of stack; a missing calendar is
// logged and yields nil
func (a *app) calendarFor(stack string) *calendar.Calendar {
	cal, err := calendar.LoadFromRegistry(a.registry, stack, a.cfg.Quality.CalendarItem)
	if err != nil {
		a.logger.Warn("Trade calendar unavailable",
			slog.String("stack", stack),
			slog.String("error", err.Error()))
		return nil
	}
	return cal
}

func (a *app) builder(stack string) *tables.Builder {
	return tables.NewBuilder(a.store, a.calendarFor(stack), a.cfg.Quality, a.logger).WithMetrics(a.metrics)
}

// ingestor builds the downloaders with whichever vendors have credentials
func (a *app) ingestor(stack string) (*ingest.Ingestor, error) {
	creds, err := config.ResolveCredentials(a.cfg.Providers)
	if err != nil {
		return nil, err
	}

	var providers ingest.Providers
	if creds.Has(a.cfg.Providers.Polygon.Source) {
		polygon, err := provider.NewPolygonClient(a.cfg.Providers.Polygon, creds, a.cfg.Fetch, a.logger)
		if err != nil {
			return nil, err
		}
		providers.Prices = polygon
		providers.Actions = polygon
		providers.Universe = polygon
		providers.Shares = polygon
		providers.Calendar = polygon
		providers.Fundamentals = polygon
		providers.Companies = polygon
	}
	if creds.Has(a.cfg.Providers.FRED.Source) {
		fred, err := provider.NewFREDClient(a.cfg.Providers.FRED, creds, a.cfg.Fetch, a.logger)
		if err != nil {
			return nil, err
		}
		providers.Macro = fred
	}

	in := ingest.NewIngestor(a.store, a.calendarFor(stack), providers, ingest.Options{
		Fetch:      a.cfg.Fetch,
		Quality:    a.cfg.Quality,
		EpochFloor: a.cfg.EpochFloorDate(),
	}, a.logger)
	return in.WithMetrics(a.metrics), nil
}

// Close flushes telemetry and releases the cache
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if a.otel != nil {
		if err := a.otel.WriteMetricsFile(a.cfg.Telemetry.MetricsFile); err != nil {
			a.logger.Warn("Failed to write metrics file", slog.String("error", err.Error()))
		}
		if err := a.otel.Shutdown(ctx); err != nil {
			a.logger.Warn("Telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("Cache close failed", slog.String("error", err.Error()))
		}
	}
	if err := infrastructure.CloseLogFile(); err != nil {
		a.logger.Warn("Failed to close log file", slog.String("error", err.Error()))
	}
}
