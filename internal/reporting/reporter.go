// internal/reporting/reporter.go
package reporting

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"

	"github.com/xkilldash9x/widgetpilot/api/schemas"
)

// Reporter defines the interface for writing run reports to an output.
type Reporter interface {
	// Write renders a complete run report.
	Write(report *schemas.RunReport) error
	// Close finalizes the report and closes any underlying resources (e.g., file handles).
	Close() error
}

// Supported report formats.
const (
	FormatJSON  = "json"
	FormatJUnit = "junit"
)

// extensions maps a format to its file extension.
var extensions = map[string]string{
	FormatJSON:  "json",
	FormatJUnit: "xml",
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a new reporter based on the specified format and output path.
// An empty path or "stdout" writes to standard output.
func New(format, outputPath string) (Reporter, error) {
	if _, ok := extensions[format]; !ok {
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	var writer io.WriteCloser
	if outputPath == "" || outputPath == "stdout" {
		writer = &nopWriteCloser{os.Stdout}
	} else {
		path, err := homedir.Expand(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to expand output path %s: %w", outputPath, err)
		}
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", path, err)
		}
		writer = f
	}
	return NewWithWriter(format, writer)
}

// NewWithWriter creates a reporter that takes ownership of w.
func NewWithWriter(format string, w io.WriteCloser) (Reporter, error) {
	switch format {
	case FormatJSON:
		return NewJSONReporter(w), nil
	case FormatJUnit:
		return NewJUnitReporter(w), nil
	default:
		w.Close()
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// FileName is the report file name for a run in the given format.
func FileName(report *schemas.RunReport, format string) string {
	return fmt.Sprintf("%s-%s.%s", toolOrDefault(report.Tool), report.RunID, extensions[format])
}

func toolOrDefault(tool string) string {
	if tool == "" {
		return "run"
	}
	return tool
}

// WriteAll writes report once per format into dir and returns the paths written.
func WriteAll(report *schemas.RunReport, formats []string, dir string) ([]string, error) {
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to expand report directory %s: %w", dir, err)
	}
	dir = expanded
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report directory %s: %w", dir, err)
	}

	var paths []string
	for _, format := range formats {
		if _, ok := extensions[format]; !ok {
			return paths, fmt.Errorf("unsupported output format: %s", format)
		}
		path := filepath.Join(dir, FileName(report, format))
		r, err := New(format, path)
		if err != nil {
			return paths, err
		}
		if err := r.Write(report); err != nil {
			r.Close()
			return paths, fmt.Errorf("failed to write %s report: %w", format, err)
		}
		if err := r.Close(); err != nil {
			return paths, fmt.Errorf("failed to close %s report: %w", format, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
