package report

import (
	"errors"
	"fmt"
	"strings"
)

// Format is a report serialization supported by the analyzer and the merger.
type Format string

// Supported formats.
const (
	FormatCSV   Format = "csv"
	FormatJSON  Format = "json"
	FormatSARIF Format = "sarif"
)

// sarifAnalyzerFormat is the analyzer's name for the current SARIF revision.
const sarifAnalyzerFormat = "sarif-latest"

// ErrUnknownFormat is returned for an unsupported report format.
var ErrUnknownFormat = errors.New("unknown report format")

// Formats lists the supported formats.
func Formats() []Format {
	return []Format{FormatCSV, FormatJSON, FormatSARIF}
}

// ParseFormat parses a format name case-insensitively.
func ParseFormat(raw string) (Format, error) {
	format := Format(strings.ToLower(strings.TrimSpace(raw)))

	switch format {
	case FormatCSV, FormatJSON, FormatSARIF:
		return format, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, raw)
	}
}

// Extension is the file extension used for raw and merged files.
func (f Format) Extension() string {
	return string(f)
}

// AnalyzerArg is the value passed to the analyzer's --format option.
func (f Format) AnalyzerArg() string {
	if f == FormatSARIF {
		return sarifAnalyzerFormat
	}

	return string(f)
}
