package files

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"mdwarehouse/internal/config"
)

// Manager performs whole-file writes and reads below the warehouse root
type Manager struct {
	logger *slog.Logger
}

// NewManager creates a new file manager instance
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger}
}

// FileExists checks if a regular file exists at path
func (m *Manager) FileExists(path string) bool {
	info, err := os.Stat(path)
	exists := err == nil && !info.IsDir()

	m.logger.Debug("FileExists check",
		slog.String("path", path),
		slog.Bool("exists", exists))

	return exists
}

// EnsureDirectory creates a directory if it doesn't exist
func (m *Manager) EnsureDirectory(path string) error {
	m.logger.Debug("Ensuring directory exists", slog.String("path", path))

	if err := os.MkdirAll(path, config.DirPermissions); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

// WriteFile writes data to path, creating parent directories and
// replacing any existing file
func (m *Manager) WriteFile(path string, data []byte) error {
	m.logger.Debug("Writing file",
		slog.String("path", path),
		slog.Int("size_bytes", len(data)))

	if err := m.EnsureDirectory(filepath.Dir(path)); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, config.FilePermissions); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// WriteWith renders the content with fn and writes it as one file
func (m *Manager) WriteWith(path string, fn func(w io.Writer) error) error {
	var buf bytes.Buffer
	if err := fn(&buf); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return m.WriteFile(path, buf.Bytes())
}

// ReadFile reads the entire content of a file
func (m *Manager) ReadFile(path string) ([]byte, error) {
	m.logger.Debug("Reading file", slog.String("path", path))
	return os.ReadFile(path)
}
