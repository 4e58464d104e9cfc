package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the papertrail home directory.
	DefaultDirName = ".papertrail"

	// DataDirName is the subdirectory for databases and the history log.
	DataDirName = "data"

	// ExportsDirName is the subdirectory for retrieval export output.
	ExportsDirName = "exports"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"
)

// Dir represents the papertrail home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.papertrail).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// DataPath returns the path to the data directory.
func (d *Dir) DataPath() string {
	return filepath.Join(d.path, DataDirName)
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// TrackingDBPath returns the path to the document tracking database.
func (d *Dir) TrackingDBPath() string {
	return filepath.Join(d.DataPath(), "tracking.sqlite3")
}

// PipelineDBPath returns the path to the pipeline events database.
func (d *Dir) PipelineDBPath() string {
	return filepath.Join(d.DataPath(), "pipeline.sqlite3")
}

// HistoryLogPath returns the path to the append-only OCR history log.
func (d *Dir) HistoryLogPath() string {
	return filepath.Join(d.DataPath(), "ocr_history.jsonl")
}

// TokenFilePath returns the default location of the API token file.
func (d *Dir) TokenFilePath() string {
	return filepath.Join(d.path, "api.token")
}

// LLMKeyFilePath returns the default location of the LLM API key file.
func (d *Dir) LLMKeyFilePath() string {
	return filepath.Join(d.path, "llm.token")
}

// ExportsDir returns the directory for retrieval export files.
func (d *Dir) ExportsDir() string {
	return filepath.Join(d.path, ExportsDirName)
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	if err := os.MkdirAll(d.DataPath(), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := os.MkdirAll(d.ExportsDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create exports directory: %w", err)
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}
