package calendar

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"mdwarehouse/internal/config"
	apperrors "mdwarehouse/internal/errors"
	"mdwarehouse/internal/exporter"
	"mdwarehouse/internal/registry"
)

var header = []string{"date", "status"}

// Save writes the series as "date,status" rows
func (c *Calendar) Save(path string, logger *slog.Logger) error {
	records := make([][]string, len(c.days))
	for i, d := range c.days {
		records[i] = []string{d.Format(config.DateLayout), strconv.Itoa(int(c.status[d]))}
	}
	if err := exporter.NewCSVWriter(nil, logger).WriteSimpleCSV(path, header, records); err != nil {
		return apperrors.NewStorageError("failed to save market status", err).WithContext("path", path)
	}
	return nil
}

// Load reads a series written by Save
func Load(path string) (*Calendar, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, apperrors.NewNotFoundError("market status file " + path)
	}
	if err != nil {
		return nil, apperrors.NewStorageError("failed to read market status", err).WithContext("path", path)
	}

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return nil, apperrors.NewParsingError("invalid market status file", err).WithContext("path", path)
	}

	series := make(map[time.Time]Status, len(records))
	for i, rec := range records {
		if i == 0 && len(rec) > 0 && strings.EqualFold(rec[0], header[0]) {
			continue
		}
		if len(rec) < 2 {
			return nil, apperrors.NewParsingError(fmt.Sprintf("line %d: expected date,status", i+1), nil)
		}
		d, err := time.Parse(config.DateLayout, rec[0])
		if err != nil {
			return nil, apperrors.NewParsingError(fmt.Sprintf("line %d: invalid date", i+1), err)
		}
		s, err := parseStatus(rec[1])
		if err != nil {
			return nil, apperrors.NewParsingError(fmt.Sprintf("line %d: invalid status", i+1), err)
		}
		series[d] = s
	}
	return New(series), nil
}

// LoadFromRegistry loads the calendar registered as (stack, item). The
// series is a single file, stored at the item's table location.
func LoadFromRegistry(reg *registry.Registry, stack, item string) (*Calendar, error) {
	loc, err := reg.Resolve(stack, item, registry.TierTable)
	if err != nil {
		return nil, err
	}
	return Load(loc.Path)
}

// SaveToRegistry saves the calendar at the table location of (stack, item)
func (c *Calendar) SaveToRegistry(reg *registry.Registry, stack, item string, logger *slog.Logger) error {
	loc, err := reg.Resolve(stack, item, registry.TierTable)
	if err != nil {
		return err
	}
	return c.Save(loc.Path, logger)
}

func parseStatus(cell string) (Status, error) {
	// pandas may write the series as floats
	v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
	if err != nil {
		return 0, err
	}
	switch Status(int(v)) {
	case Trading, Weekend, Holiday:
		return Status(int(v)), nil
	}
	return 0, fmt.Errorf("unknown status %q", cell)
}
