package universe

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"mdwarehouse/internal/config"
	apperrors "mdwarehouse/internal/errors"
	"mdwarehouse/internal/exporter"
	"mdwarehouse/internal/panel"
)

var delistedHeader = []string{"entity", "name", "delisted_date"}

// Delisting records when an entity left the market
type Delisting struct {
	Entity string
	Name   string
	Date   time.Time
}

// DelistedRegistry maps entities to their delisting date
type DelistedRegistry struct {
	entries map[string]Delisting
}

// NewDelistedRegistry creates a registry from records; a repeated entity
// keeps the latest date
func NewDelistedRegistry(records []Delisting) *DelistedRegistry {
	r := &DelistedRegistry{entries: make(map[string]Delisting, len(records))}
	for _, rec := range records {
		r.Add(rec)
	}
	return r
}

// Add records a delisting
func (r *DelistedRegistry) Add(rec Delisting) {
	rec.Date = panel.Day(rec.Date)
	if prev, ok := r.entries[rec.Entity]; ok && prev.Date.After(rec.Date) {
		return
	}
	r.entries[rec.Entity] = rec
}

// DelistedOn returns the delisting date of an entity
func (r *DelistedRegistry) DelistedOn(entity string) (time.Time, bool) {
	if r == nil {
		return time.Time{}, false
	}
	rec, ok := r.entries[entity]
	return rec.Date, ok
}

// Len returns the number of delisted entities
func (r *DelistedRegistry) Len() int { return len(r.entries) }

// Records returns the delistings ordered by date, then entity
func (r *DelistedRegistry) Records() []Delisting {
	out := make([]Delisting, 0, len(r.entries))
	for _, rec := range r.entries {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Entity < out[j].Entity
	})
	return out
}

// Save writes the registry as "entity,name,delisted_date" rows
func (r *DelistedRegistry) Save(path string, logger *slog.Logger) error {
	recs := r.Records()
	records := make([][]string, len(recs))
	for i, rec := range recs {
		records[i] = []string{rec.Entity, rec.Name, rec.Date.Format(config.DateLayout)}
	}
	if err := exporter.NewCSVWriter(nil, logger).WriteSimpleCSV(path, delistedHeader, records); err != nil {
		return apperrors.NewStorageError("failed to save delisted registry", err).WithContext("path", path)
	}
	return nil
}

// LoadDelisted reads a registry written by Save
func LoadDelisted(path string) (*DelistedRegistry, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, apperrors.NewNotFoundError("delisted registry " + path)
	}
	if err != nil {
		return nil, apperrors.NewStorageError("failed to read delisted registry", err).WithContext("path", path)
	}

	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, apperrors.NewParsingError("invalid delisted registry", err).WithContext("path", path)
	}

	r := NewDelistedRegistry(nil)
	for i, rec := range records {
		if i == 0 && len(rec) > 0 && rec[0] == delistedHeader[0] {
			continue
		}
		if len(rec) < 3 {
			return nil, apperrors.NewParsingError(fmt.Sprintf("line %d: expected entity,name,delisted_date", i+1), nil)
		}
		d, err := time.Parse(config.DateLayout, rec[2])
		if err != nil {
			return nil, apperrors.NewParsingError(fmt.Sprintf("line %d: invalid date", i+1), err)
		}
		r.Add(Delisting{Entity: rec[0], Name: rec[1], Date: d})
	}
	return r, nil
}
