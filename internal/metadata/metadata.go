// Package metadata embeds classification tags into image files.
package metadata

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/vinitshetty/phototagger/internal/imagefmt"
)

// ErrUnsupportedFormat is returned for formats whose metadata cannot be written.
var ErrUnsupportedFormat = errors.New("metadata writing not supported")

// Writer embeds tags into the file at path.
type Writer interface {
	Write(path, tags string) error
}

// WriteError describes a failed metadata write.
type WriteError struct {
	Path   string
	Format imagefmt.Format
	Err    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s metadata to %s: %v", e.Format, filepath.Base(e.Path), e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Unsupported reports whether the write was skipped because the format
// cannot carry metadata.
func (e *WriteError) Unsupported() bool {
	return errors.Is(e.Err, ErrUnsupportedFormat)
}

// FileWriter dispatches on the file extension.
type FileWriter struct {
	logger *slog.Logger
}

// NewFileWriter creates a FileWriter. A nil logger uses slog.Default.
func NewFileWriter(logger *slog.Logger) *FileWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileWriter{logger: logger}
}

// Write embeds tags. JPEG gets EXIF ImageDescription and UserComment, PNG
// gets Description, Title and Comment text chunks. HEIC is skipped with
// ErrUnsupportedFormat.
func (w *FileWriter) Write(path, tags string) error {
	f := imagefmt.FromPath(path)
	var err error
	switch f {
	case imagefmt.JPEG:
		err = writeJPEG(path, tags)
	case imagefmt.PNG:
		err = writePNG(path, tags)
	default:
		err = ErrUnsupportedFormat
	}
	if err != nil {
		return &WriteError{Path: path, Format: f, Err: err}
	}
	w.logger.Debug("wrote metadata", "file", filepath.Base(path), "format", string(f))
	return nil
}

// replaceFile atomically replaces path with data, keeping its permissions.
func replaceFile(path string, data []byte) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(info.Mode().Perm()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

var _ Writer = (*FileWriter)(nil)
