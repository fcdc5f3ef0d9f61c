package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Layout contains the warehouse root directories.
// This is the single source of truth for the on-disk tier roots; item level
// paths below them are owned by the registry.
type Layout struct {
	Root        string
	RawDataDir  string
	RawTableDir string
	TableDir    string
	CacheDir    string
	DataPathDir string
	LogsDir     string
}

// NewLayout resolves the tier roots below root.
// Directory structure:
//
//	<root>/
//	  ├── raw_data/<stack>/<item path>/YYYY-MM-DD.csv   (snapshots)
//	  ├── raw_table/<stack>/<item path>.csv             (merged panels)
//	  ├── table/<stack>/<item path>.csv                 (quality-filtered panels)
//	  ├── cache/                                        (scratch files)
//	  ├── data_path/                                    (registry definitions)
//	  └── logs/
func NewLayout(root string) (*Layout, error) {
	if root == "" {
		return nil, fmt.Errorf("storage root must not be empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root %s: %w", root, err)
	}

	return &Layout{
		Root:        abs,
		RawDataDir:  filepath.Join(abs, RawDataDirName),
		RawTableDir: filepath.Join(abs, RawTableDirName),
		TableDir:    filepath.Join(abs, TableDirName),
		CacheDir:    filepath.Join(abs, CacheDirName),
		DataPathDir: filepath.Join(abs, DataPathDirName),
		LogsDir:     filepath.Join(abs, LogsDirName),
	}, nil
}

// LayoutFor resolves the layout of a loaded config
func LayoutFor(cfg *Config) (*Layout, error) {
	return NewLayout(cfg.Storage.Root)
}

// EnsureDirectories creates all tier roots if they don't exist
func (l *Layout) EnsureDirectories() error {
	directories := []string{
		l.RawDataDir,
		l.RawTableDir,
		l.TableDir,
		l.CacheDir,
		l.DataPathDir,
		l.LogsDir,
	}

	for _, dir := range directories {
		if err := os.MkdirAll(dir, DirPermissions); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		slog.Debug("Ensured directory exists", slog.String("directory", dir))
	}

	return nil
}

// RegistryPath returns the path of a registry definition file. Absolute
// names are returned unchanged.
func (l *Layout) RegistryPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(l.DataPathDir, name)
}

// GetCachePath returns the path for a cache file
func (l *Layout) GetCachePath(filename string) string {
	return filepath.Join(l.CacheDir, filename)
}

// GetLogPath returns the path for a log file
func (l *Layout) GetLogPath(filename string) string {
	return filepath.Join(l.LogsDir, filename)
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// LogPathResolution logs the resolved tier roots
func (l *Layout) LogPathResolution(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("Path resolution summary",
		slog.Group("directories",
			slog.String("root", l.Root),
			slog.String("raw_data", l.RawDataDir),
			slog.String("raw_table", l.RawTableDir),
			slog.String("table", l.TableDir),
			slog.String("cache", l.CacheDir),
			slog.String("data_path", l.DataPathDir),
			slog.String("logs", l.LogsDir),
		))
}
