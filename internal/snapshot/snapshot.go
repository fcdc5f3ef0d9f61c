// Package snapshot stores per-date cross-sections of one item as individual
// files below the raw_data tier.
package snapshot

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"mdwarehouse/internal/config"
	apperrors "mdwarehouse/internal/errors"
	"mdwarehouse/internal/files"
	"mdwarehouse/internal/infrastructure"
	"mdwarehouse/internal/panel"
	"mdwarehouse/internal/registry"
)

// EntityHeader is the first header cell of a snapshot file
const EntityHeader = "entity"

var idReplacer = strings.NewReplacer("/", "_", ".", "_")

// NormalizeID makes an entity identifier safe for storage
// ("BRK.B" -> "BRK_B", "BTC/USD" -> "BTC_USD")
func NormalizeID(id string) string {
	return idReplacer.Replace(strings.TrimSpace(id))
}

// Status describes the snapshots stored for one item. It is derived from
// file names and never persisted.
type Status struct {
	Start time.Time
	End   time.Time
	Count int
}

// HasData reports whether any snapshot exists
func (s Status) HasData() bool { return s.Count > 0 }

// Store reads and writes snapshot files
type Store struct {
	registry  *registry.Registry
	discovery *files.Discovery
	files     *files.Manager
	metrics   *infrastructure.BusinessMetrics
	logger    *slog.Logger

	mu          sync.Mutex
	generations map[string]uint64
}

// NewStore creates a snapshot store over the registry's raw_data tier
func NewStore(reg *registry.Registry, logger *slog.Logger) *Store {
	logger = infrastructure.WithComponent(logger, "snapshot")
	return &Store{
		registry:  reg,
		discovery: files.NewDiscovery(config.DateLayout, config.SnapshotExt),
		files:     files.NewManager(logger),
		logger:    logger,

		generations: make(map[string]uint64),
	}
}

// WithMetrics records every written snapshot on m
func (s *Store) WithMetrics(m *infrastructure.BusinessMetrics) *Store {
	s.metrics = m
	return s
}

// Registry returns the registry locations are resolved through
func (s *Store) Registry() *registry.Registry { return s.registry }

// Dir returns the snapshot directory of an item
func (s *Store) Dir(stack, item string) (string, error) {
	loc, err := s.registry.Resolve(stack, item, registry.TierSnapshot)
	if err != nil {
		return "", err
	}
	return loc.Path, nil
}

// Path returns the snapshot file of an item on a date
func (s *Store) Path(stack, item string, date time.Time) (string, error) {
	dir, err := s.Dir(stack, item)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, s.discovery.FileName(panel.Day(date))), nil
}

// WriteSnapshot writes the values of one date, replacing any earlier file.
// Identifiers are normalized and rows are sorted so rewriting the same
// values yields the same bytes. When several identifiers normalize to the
// same one, the smallest raw identifier wins and the rest are logged.
func (s *Store) WriteSnapshot(stack, item string, date time.Time, values map[string]float64) error {
	path, err := s.Path(stack, item, date)
	if err != nil {
		return err
	}

	raw := make([]string, 0, len(values))
	for id := range values {
		raw = append(raw, id)
	}
	sort.Strings(raw)

	normalized := make(map[string]float64, len(values))
	for _, id := range raw {
		key := NormalizeID(id)
		if _, taken := normalized[key]; taken {
			s.logger.Warn("Identifier collides after normalization, value dropped",
				slog.String("stack", stack),
				slog.String("item", item),
				slog.String("date", date.Format(config.DateLayout)),
				slog.String("entity", key),
				slog.String("dropped", id))
			continue
		}
		normalized[key] = values[id]
	}
	ids := make([]string, 0, len(normalized))
	for id := range normalized {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	records := make([][]string, len(ids))
	for i, id := range ids {
		records[i] = []string{id, panel.FormatValue(normalized[id])}
	}

	return s.write(stack, item, path, date, records)
}

// WriteMembership writes a universe snapshot listing ids as members
func (s *Store) WriteMembership(stack, item string, date time.Time, ids []string) error {
	path, err := s.Path(stack, item, date)
	if err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		seen[NormalizeID(id)] = struct{}{}
	}
	sorted := make([]string, 0, len(seen))
	for id := range seen {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	records := make([][]string, len(sorted))
	for i, id := range sorted {
		records[i] = []string{id, "true"}
	}

	return s.write(stack, item, path, date, records)
}

func (s *Store) write(stack, item, path string, date time.Time, records [][]string) error {
	err := s.files.WriteWith(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write([]string{EntityHeader, panel.Day(date).Format(config.DateLayout)}); err != nil {
			return err
		}
		if err := cw.WriteAll(records); err != nil {
			return err
		}
		return cw.Error()
	})
	if err != nil {
		return apperrors.NewStorageError("failed to write snapshot", err).
			WithContext("stack", stack).
			WithContext("item", item).
			WithContext("path", path)
	}

	s.mu.Lock()
	s.generations[stack+"/"+item]++
	s.mu.Unlock()

	s.logger.Debug("Snapshot written",
		slog.String("stack", stack),
		slog.String("item", item),
		slog.String("date", date.Format(config.DateLayout)),
		slog.Int("entities", len(records)))
	s.metrics.RecordSnapshotWritten(context.Background(), stack, item)
	return nil
}

// ReadSnapshot reads the values of one date. Boolean cells read as 1/0
// and empty cells as null.
func (s *Store) ReadSnapshot(stack, item string, date time.Time) (map[string]float64, error) {
	path, err := s.Path(stack, item, date)
	if err != nil {
		return nil, err
	}

	data, err := s.files.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("snapshot %s/%s %s", stack, item, date.Format(config.DateLayout)))
	}
	if err != nil {
		return nil, apperrors.NewStorageError("failed to read snapshot", err).WithContext("path", path)
	}

	values, err := decode(data)
	if err != nil {
		return nil, apperrors.NewParsingError("invalid snapshot file", err).WithContext("path", path)
	}
	return values, nil
}

func decode(data []byte) (map[string]float64, error) {
	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	values := make(map[string]float64, len(records))
	if len(records) == 0 {
		return values, nil
	}

	for i, rec := range records[1:] {
		if len(rec) == 0 || rec[0] == "" {
			continue
		}
		cell := ""
		if len(rec) > 1 {
			cell = strings.TrimSpace(rec[1])
		}
		v, err := panel.ParseValue(cell)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+2, err)
		}
		values[rec[0]] = v
	}
	return values, nil
}

// Dates returns the sorted dates that have a snapshot
func (s *Store) Dates(stack, item string) ([]time.Time, error) {
	dir, err := s.Dir(stack, item)
	if err != nil {
		return nil, err
	}
	found, err := s.discovery.FindDatedFiles(dir)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to list snapshots", err).WithContext("path", dir)
	}
	return files.Dates(found), nil
}

// Files returns the snapshot files dated within [start, end]
func (s *Store) Files(stack, item string, start, end time.Time) ([]files.DatedFile, error) {
	dir, err := s.Dir(stack, item)
	if err != nil {
		return nil, err
	}
	found, err := s.discovery.FindDatedFiles(dir)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to list snapshots", err).WithContext("path", dir)
	}
	return files.FilterByDate(found, panel.Day(start), panel.Day(end)), nil
}

// Fingerprint summarizes a file list returned by Files. It changes when a
// file is added, removed, resized or touched, and whenever this store
// writes a snapshot of the item.
func (s *Store) Fingerprint(stack, item string, found []files.DatedFile) string {
	s.mu.Lock()
	gen := s.generations[stack+"/"+item]
	s.mu.Unlock()

	var (
		size   int64
		latest time.Time
		last   string
	)
	for _, f := range found {
		size += f.Size
		if f.ModTime.After(latest) {
			latest = f.ModTime
		}
	}
	if len(found) > 0 {
		last = found[len(found)-1].Date.Format(config.DateLayout)
	}
	return fmt.Sprintf("%d|%s|%d|%d|%d", len(found), last, size, latest.UnixNano(), gen)
}

// Status summarizes the stored snapshots. A missing or empty directory is
// the empty status.
func (s *Store) Status(stack, item string) (Status, error) {
	dates, err := s.Dates(stack, item)
	if err != nil {
		return Status{}, err
	}
	if len(dates) == 0 {
		return Status{}, nil
	}
	return Status{
		Start: dates[0],
		End:   dates[len(dates)-1],
		Count: len(dates),
	}, nil
}

// NextFetchStart returns the first date an incremental fetch should cover:
// the day after the last snapshot, or floor when nothing is stored.
func NextFetchStart(status Status, floor time.Time) time.Time {
	if !status.HasData() {
		return panel.Day(floor)
	}
	return status.End.AddDate(0, 0, 1)
}

// StartByCount returns the date of the n-th latest snapshot on or before
// end. With fewer than n snapshots the earliest one is returned.
func (s *Store) StartByCount(stack, item string, end time.Time, n int) (time.Time, error) {
	if n < 1 {
		return time.Time{}, apperrors.NewValidationError("snapshot count must be positive").WithContext("count", n)
	}
	dates, err := s.Dates(stack, item)
	if err != nil {
		return time.Time{}, err
	}

	end = panel.Day(end)
	idx := sort.Search(len(dates), func(i int) bool { return dates[i].After(end) })
	dates = dates[:idx]
	if len(dates) == 0 {
		return time.Time{}, apperrors.NewNotFoundError(fmt.Sprintf("snapshots of %s/%s on or before %s", stack, item, end.Format(config.DateLayout)))
	}
	if n > len(dates) {
		n = len(dates)
	}
	return dates[len(dates)-n], nil
}
