package config

import "time"

// Application constants
const (
	AppName    = "mdwarehouse"
	AppVersion = "1.0.0"

	// EnvPrefix namespaces every environment variable (MDW_STORAGE_ROOT, ...)
	EnvPrefix = "MDW"

	// DateLayout is the layout of snapshot file names and every date cell
	DateLayout = "2006-01-02"

	// Tier root directory names under Storage.Root
	RawDataDirName  = "raw_data"
	RawTableDirName = "raw_table"
	TableDirName    = "table"
	CacheDirName    = "cache"
	DataPathDirName = "data_path"
	LogsDirName     = "logs"

	// SnapshotExt is the extension of per-date snapshot files and table files
	SnapshotExt = ".csv"

	// Upstream endpoints
	DefaultPolygonURL = "https://api.polygon.io"
	DefaultFREDURL    = "https://api.stlouisfed.org"

	// Network
	DefaultHTTPTimeout    = 30 * time.Second
	DefaultLaunchInterval = 100 * time.Millisecond

	// File permissions
	DirPermissions  = 0755
	FilePermissions = 0644
)
