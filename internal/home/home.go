package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the phototagger home directory.
	DefaultDirName = ".phototagger"

	// StateDirName is the subdirectory holding the cursor, catalog and ledger.
	StateDirName = "state"

	// LogDirName is the subdirectory for the application error log.
	LogDirName = "logs"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"

	// LogFileName receives ERROR records only.
	LogFileName = "application.log"
)

// Dir represents the phototagger home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.phototagger).
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

// StatePath returns the default state directory.
func (d *Dir) StatePath() string {
	return filepath.Join(d.path, StateDirName)
}

// LogPath returns the default application log file.
func (d *Dir) LogPath() string {
	return filepath.Join(d.path, LogDirName, LogFileName)
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	for _, dir := range []string{d.StatePath(), filepath.Dir(d.LogPath())} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
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
