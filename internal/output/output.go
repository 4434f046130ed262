// Package output renders command results as yaml, json or a table.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Format defines the output format for CLI commands.
type Format string

const (
	FormatYAML  Format = "yaml"
	FormatJSON  Format = "json"
	FormatTable Format = "table"
)

// DefaultFormat is the default output format.
var DefaultFormat Format = FormatTable

// globalFormat is set by the root command's --output flag.
var globalFormat Format = DefaultFormat

// Tabular is implemented by results that can render as a table.
type Tabular interface {
	Table() (headers []string, rows [][]string)
}

// SetFormat sets the global output format.
func SetFormat(format string) error {
	switch Format(format) {
	case FormatJSON, FormatYAML, FormatTable:
		globalFormat = Format(format)
		return nil
	case "":
		globalFormat = DefaultFormat
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}

// GetFormat returns the current global output format.
func GetFormat() Format {
	return globalFormat
}

// Print writes data to stdout in the configured format.
func Print(data any) error {
	return To(os.Stdout, globalFormat, data)
}

// To writes data to the given writer in the specified format. Data that is
// not Tabular falls back to yaml in table mode.
func To(w io.Writer, format Format, data any) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(data)
	case FormatTable:
		t, ok := data.(Tabular)
		if !ok {
			return To(w, FormatYAML, data)
		}
		headers, rows := t.Table()
		_, err := fmt.Fprintln(w, RenderTable(headers, rows))
		return err
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}

// IsStructured returns true if the output format is structured (JSON/YAML).
// Commands print human-friendly messages only when it is false.
func IsStructured() bool {
	return globalFormat == FormatJSON || globalFormat == FormatYAML
}
