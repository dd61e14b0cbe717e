package report

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/Sumatoshi-tech/hydraql/internal/severity"
)

// SARIF header written when no raw document provides one.
const (
	DefaultSARIFSchema  = "https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0.json"
	DefaultSARIFVersion = "2.1.0"
)

const reportFileMode = 0o644

// unknownTier buckets findings without any severity text.
const unknownTier = "UNKNOWN"

// Report describes a merged report.
type Report struct {
	Format Format
	Path   string
	// Total is the number of findings written.
	Total int
	// Findings holds a normalized record of every finding written.
	Findings []Finding
	// Severities counts findings per normalized tier.
	Severities map[string]int
	// Files is the number of raw files merged; Malformed those skipped as unreadable.
	Files     int
	Malformed int
}

// Aggregator merges raw per-query result files into one report.
type Aggregator struct {
	format  Format
	matcher severity.Matcher
	logger  *slog.Logger
}

// NewAggregator creates an Aggregator for format, filtering with matcher.
func NewAggregator(format Format, matcher severity.Matcher, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}

	return &Aggregator{format: format, matcher: matcher, logger: logger}
}

// Merge reads every raw file in paths and writes the merged report to out.
// Missing and malformed raw files contribute nothing. The merged file always
// has a well-formed shape, even with zero findings.
func (a *Aggregator) Merge(paths []string, out string) (*Report, error) {
	rep := &Report{Format: a.format, Path: out, Severities: make(map[string]int)}
	merged := &parsed{}

	for _, path := range paths {
		content, err := load(path, a.format, a.matcher)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}

		if err != nil {
			rep.Malformed++

			a.logger.Warn("skipping unreadable result file", "path", path, "error", err)

			continue
		}

		rep.Files++

		if merged.schema == "" && merged.version == "" {
			merged.schema, merged.version = content.schema, content.version
		}

		merged.rows = append(merged.rows, content.rows...)
		merged.items = append(merged.items, content.items...)
		merged.runs = append(merged.runs, content.runs...)
		merged.findings = append(merged.findings, content.findings...)
	}

	writeErr := a.write(out, merged)
	if writeErr != nil {
		return nil, writeErr
	}

	rep.Findings = merged.findings
	rep.Total = len(merged.findings)

	for _, finding := range merged.findings {
		tier := severity.Tier(finding.Severity)
		if tier == "" {
			tier = unknownTier
		}

		rep.Severities[tier]++
	}

	return rep, nil
}

func (a *Aggregator) write(out string, merged *parsed) error {
	switch a.format {
	case FormatCSV:
		return writeCSV(out, merged.rows)
	case FormatJSON:
		items := merged.items
		if items == nil {
			items = []map[string]any{}
		}

		return writeJSON(out, items)
	case FormatSARIF:
		runs := merged.runs
		if runs == nil {
			runs = []map[string]any{}
		}

		schema, version := merged.schema, merged.version
		if schema == "" {
			schema = DefaultSARIFSchema
		}

		if version == "" {
			version = DefaultSARIFVersion
		}

		return writeJSON(out, map[string]any{"$schema": schema, "version": version, "runs": runs})
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, a.format)
	}
}

func writeCSV(out string, rows [][]string) error {
	file, err := os.OpenFile(out, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, reportFileMode) //nolint:gosec // operator-chosen output dir
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}

	writer := csv.NewWriter(file)

	writeErr := writer.Write(CSVHeader)

	for _, row := range rows {
		if writeErr != nil {
			break
		}

		writeErr = writer.Write(fitRow(row))
	}

	writer.Flush()

	if writeErr == nil {
		writeErr = writer.Error()
	}

	closeErr := file.Close()

	if writeErr != nil {
		return fmt.Errorf("write report: %w", writeErr)
	}

	if closeErr != nil {
		return fmt.Errorf("close report: %w", closeErr)
	}

	return nil
}

// fitRow pads or truncates row to the width of CSVHeader.
func fitRow(row []string) []string {
	if len(row) == len(CSVHeader) {
		return row
	}

	fitted := make([]string, len(CSVHeader))
	copy(fitted, row)

	return fitted
}

func writeJSON(out string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	writeErr := os.WriteFile(out, append(data, '\n'), reportFileMode)
	if writeErr != nil {
		return fmt.Errorf("write report: %w", writeErr)
	}

	return nil
}
