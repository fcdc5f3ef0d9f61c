package files

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// DatedFile represents a file whose name is a calendar date
type DatedFile struct {
	Path    string
	Name    string
	Date    time.Time
	Size    int64
	ModTime time.Time
}

// Discovery lists date-named files below a directory
type Discovery struct {
	layout string
	ext    string
}

// NewDiscovery creates a discovery for files named <layout><ext>,
// e.g. 2006-01-02 and .csv
func NewDiscovery(layout, ext string) *Discovery {
	return &Discovery{layout: layout, ext: ext}
}

// ParseName returns the date encoded in a file name. Hidden files, other
// extensions and names that are not a valid date are rejected.
func (d *Discovery) ParseName(name string) (time.Time, bool) {
	if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, d.ext) {
		return time.Time{}, false
	}
	stem := strings.TrimSuffix(name, d.ext)
	date, err := time.Parse(d.layout, stem)
	if err != nil {
		return time.Time{}, false
	}
	// reject non-canonical spellings such as 2024-1-2
	if date.Format(d.layout) != stem {
		return time.Time{}, false
	}
	return date, true
}

// FileName returns the file name of a date
func (d *Discovery) FileName(date time.Time) string {
	return date.Format(d.layout) + d.ext
}

// FindDatedFiles lists the dated files in dir sorted by date. A missing
// directory yields no files and no error.
func (d *Discovery) FindDatedFiles(dir string) ([]DatedFile, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var files []DatedFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		date, ok := d.ParseName(entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, DatedFile{
			Path:    filepath.Join(dir, entry.Name()),
			Name:    entry.Name(),
			Date:    date,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Date.Before(files[j].Date)
	})

	return files, nil
}

// Dates extracts the dates of a sorted file list
func Dates(files []DatedFile) []time.Time {
	dates := make([]time.Time, len(files))
	for i, f := range files {
		dates[i] = f.Date
	}
	return dates
}

// FilterByDate keeps the files dated within [start, end]
func FilterByDate(files []DatedFile, start, end time.Time) []DatedFile {
	var filtered []DatedFile
	for _, file := range files {
		if !file.Date.Before(start) && !file.Date.After(end) {
			filtered = append(filtered, file)
		}
	}
	return filtered
}
