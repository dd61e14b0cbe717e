package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"

	"github.com/Sumatoshi-tech/hydraql/internal/severity"
)

// parsed is the filtered content of one raw result file.
type parsed struct {
	rows     [][]string
	items    []map[string]any
	runs     []map[string]any
	schema   string
	version  string
	findings []Finding
}

func load(path string, format Format, matcher severity.Matcher) (*parsed, error) {
	switch format {
	case FormatCSV:
		return loadCSV(path, matcher)
	case FormatJSON:
		return loadJSON(path, matcher)
	case FormatSARIF:
		return loadSARIF(path, matcher)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func loadCSV(path string, matcher severity.Matcher) (*parsed, error) {
	file, err := os.Open(path) //nolint:gosec // raw results live in the run's work dir
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	out := &parsed{}
	headerSeen := false

	for {
		row, readErr := reader.Read()
		if errors.Is(readErr, io.EOF) {
			break
		}

		if readErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, readErr)
		}

		if !headerSeen {
			headerSeen = true

			continue
		}

		if len(row) > 2 && !matcher.Accepts(row[2]) {
			continue
		}

		out.rows = append(out.rows, row)
		out.findings = append(out.findings, findingFromRow(row))
	}

	return out, nil
}

func loadJSON(path string, matcher severity.Matcher) (*parsed, error) {
	doc, err := readDocument(path)
	if err != nil {
		return nil, err
	}

	out := &parsed{}

	for _, item := range doc.FlatItems() {
		if !acceptItem(matcher, item) {
			continue
		}

		out.items = append(out.items, item)
		out.findings = append(out.findings, findingFromItem(item))
	}

	return out, nil
}

func loadSARIF(path string, matcher severity.Matcher) (*parsed, error) {
	data, err := os.ReadFile(path) //nolint:gosec // raw results live in the run's work dir
	if err != nil {
		return nil, err
	}

	validateErr := ValidateSARIF(data)
	if validateErr != nil {
		return nil, validateErr
	}

	doc, err := ParseDocument(data)
	if err != nil {
		return nil, err
	}

	out := &parsed{schema: doc.Schema, version: doc.Version}
	if doc.Kind != KindSARIF {
		return out, nil
	}

	for _, run := range doc.Runs {
		rules := RuleSeverities(run)
		filteredRun := maps.Clone(run)

		// Runs without a results array are carried over untouched.
		if results, ok := run["results"].([]any); ok {
			kept := make([]any, 0, len(results))

			for _, entry := range results {
				result := object(entry)
				if result == nil || !acceptResult(matcher, result, rules) {
					continue
				}

				kept = append(kept, result)
				out.findings = append(out.findings, findingFromResult(result, rules))
			}

			filteredRun["results"] = kept
		}

		out.runs = append(out.runs, filteredRun)
	}

	return out, nil
}

func readDocument(path string) (Document, error) {
	data, err := os.ReadFile(path) //nolint:gosec // raw results live in the run's work dir
	if err != nil {
		return Document{}, err
	}

	return ParseDocument(data)
}

// Count returns the number of findings in one raw result file that pass
// matcher. A malformed file yields zero findings and the decode error.
func Count(path string, format Format, matcher severity.Matcher) (int, error) {
	content, err := load(path, format, matcher)
	if err != nil {
		return 0, err
	}

	return len(content.findings), nil
}
