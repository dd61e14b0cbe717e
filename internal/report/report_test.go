package report_test

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/hydraql/internal/report"
	"github.com/Sumatoshi-tech/hydraql/internal/severity"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

const rawCSVHeader = "name,description,severity,message,path,sl,sc,el,ec\n"

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()

	file, err := os.Open(path)
	require.NoError(t, err)

	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)

	return rows
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"csv", "JSON", " sarif "} {
		format, err := report.ParseFormat(raw)
		require.NoError(t, err)
		assert.Contains(t, report.Formats(), format)
	}

	_, err := report.ParseFormat("xml")
	require.ErrorIs(t, err, report.ErrUnknownFormat)

	assert.Equal(t, "sarif-latest", report.FormatSARIF.AnalyzerArg())
	assert.Equal(t, "csv", report.FormatCSV.AnalyzerArg())
	assert.Equal(t, "sarif", report.FormatSARIF.Extension())
}

func TestMergeCSV_HeaderWithZeroRows(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	out := filepath.Join(dir, "merged.csv")

	agg := report.NewAggregator(report.FormatCSV, severity.NewMatcher("", false), discardLogger)

	rep, err := agg.Merge(nil, out)
	require.NoError(t, err)

	assert.Zero(t, rep.Total)
	assert.Equal(t, [][]string{report.CSVHeader}, readCSV(t, out))
}

func TestMergeCSV_SkipsRawHeadersAndFilters(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first := writeFile(t, dir, "a.csv", rawCSVHeader+
		`Sqli,desc,error,"msg, with comma",/src/A.java,1,2,3,4`+"\n"+
		"Xss,desc,warning,msg,/src/B.java,5,6,7,8\n")
	second := writeFile(t, dir, "b.csv", rawCSVHeader+
		"Path,desc,error,msg,/src/C.java,9,1,9,5\n"+
		"short,row\n")
	out := filepath.Join(dir, "merged.csv")

	agg := report.NewAggregator(report.FormatCSV, severity.NewMatcher("critical", false), discardLogger)

	rep, err := agg.Merge([]string{first, second, filepath.Join(dir, "missing.csv")}, out)
	require.NoError(t, err)

	rows := readCSV(t, out)
	require.Len(t, rows, 4)
	assert.Equal(t, report.CSVHeader, rows[0])
	assert.Equal(t, "Sqli", rows[1][0])
	assert.Equal(t, "msg, with comma", rows[1][3])
	assert.Equal(t, "Path", rows[2][0])
	assert.Equal(t, []string{"short", "row", "", "", "", "", "", "", ""}, rows[3], "ragged rows are padded to the header width")

	assert.Equal(t, 3, rep.Total)
	assert.Equal(t, 2, rep.Files)
	assert.Equal(t, 2, rep.Severities[severity.TierCritical])
	assert.Equal(t, report.Location{Path: "/src/A.java", StartLine: 1, StartColumn: 2, EndLine: 3, EndColumn: 4}, rep.Findings[0].Location)

	count, err := report.Count(first, report.FormatCSV, severity.NewMatcher("critical", false))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMergeCSV_LongRowsTruncatedToHeader(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	raw := writeFile(t, dir, "a.csv", rawCSVHeader+"A,d,error,m,p,1,1,1,1,extra,more\n")
	out := filepath.Join(dir, "merged.csv")

	_, err := report.NewAggregator(report.FormatCSV, severity.NewMatcher("", false), discardLogger).
		Merge([]string{raw}, out)
	require.NoError(t, err)

	rows := readCSV(t, out)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"A", "d", "error", "m", "p", "1", "1", "1", "1"}, rows[1])
}

func TestMergeCSV_StrictModeExactMatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	raw := writeFile(t, dir, "a.csv", rawCSVHeader+
		"A,d,error,m,p,1,1,1,1\n"+
		"B,d,Error,m,p,1,1,1,1\n"+
		"C,d,errors,m,p,1,1,1,1\n"+
		"D,d,warning,m,p,1,1,1,1\n")
	out := filepath.Join(dir, "merged.csv")

	rep, err := report.NewAggregator(report.FormatCSV, severity.NewMatcher("ERROR", true), discardLogger).
		Merge([]string{raw}, out)
	require.NoError(t, err)

	rows := readCSV(t, out)[1:]
	require.Len(t, rows, 2)

	for _, row := range rows {
		assert.True(t, strings.EqualFold(row[2], "error"), row[2])
	}

	assert.Equal(t, 2, rep.Total)
}

func TestMergeJSON_FlattensListsAndResultObjects(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	list := writeFile(t, dir, "a.json", `[
		{"name": "a", "severity": "error", "message": "m1"},
		{"name": "b", "level": "note"},
		"not-an-object",
		{"name": "c", "properties": {"severity": "warning"}}
	]`)
	object := writeFile(t, dir, "b.json", `{"results": [{"name": "d", "severity": "", "level": "warning"}]}`)
	sarifLike := writeFile(t, dir, "c.json", `{"version": "2.1.0", "runs": [{"results": [{"level": "error"}]}]}`)
	broken := writeFile(t, dir, "d.json", `{"results": [`)
	out := filepath.Join(dir, "merged.json")

	agg := report.NewAggregator(report.FormatJSON, severity.NewMatcher("high", false), discardLogger)

	rep, err := agg.Merge([]string{list, object, sarifLike, broken}, out)
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)

	var merged []map[string]any
	require.NoError(t, json.Unmarshal(data, &merged))

	names := make([]string, 0, len(merged))
	for _, item := range merged {
		names = append(names, item["name"].(string))
	}

	assert.Equal(t, []string{"c", "d"}, names)
	assert.Equal(t, 2, rep.Total)
	assert.Equal(t, 1, rep.Malformed)
	assert.Equal(t, 3, rep.Files)

	count, err := report.Count(broken, report.FormatJSON, severity.NewMatcher("", false))
	require.Error(t, err)
	assert.Zero(t, count)
}

func TestMergeJSON_EmptyIsList(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "merged.json")

	_, err := report.NewAggregator(report.FormatJSON, severity.NewMatcher("", false), discardLogger).Merge(nil, out)
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))
}

func TestItemSeverity_Precedence(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "error", report.ItemSeverity(map[string]any{"severity": "error", "level": "note"}))
	assert.Equal(t, "note", report.ItemSeverity(map[string]any{"severity": "", "level": "note"}))
	assert.Equal(t, "warning", report.ItemSeverity(map[string]any{"properties": map[string]any{"severity": "warning"}}))
	assert.Empty(t, report.ItemSeverity(map[string]any{"properties": "odd"}))
}

const sarifRaw = `{
  "$schema": "https://example.test/sarif.json",
  "version": "2.1.0",
  "runs": [
    {
      "tool": {"driver": {"name": "analyzer", "rules": [
        {"id": "java/sqli", "properties": {"problem.severity": "error"}},
        {"id": "java/log", "defaultConfiguration": {"level": "note"}},
        {"name": "java/named", "properties": {"severity": "warning"}}
      ]}},
      "results": [
        {"ruleId": "java/sqli", "message": {"text": "sql"},
         "locations": [{"physicalLocation": {"artifactLocation": {"uri": "src/A.java"}, "region": {"startLine": 10, "startColumn": 2}}}]},
        {"ruleId": "java/log", "message": {"text": "log"}},
        {"rule": {"id": "java/named"}, "message": {"text": "named"}},
        {"ruleId": "other", "level": "error"}
      ]
    },
    {"tool": {"driver": {"name": "analyzer"}}, "invocations": []}
  ]
}`

func TestMergeSARIF_FiltersRunsInPlace(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first := writeFile(t, dir, "a.sarif", sarifRaw)
	second := writeFile(t, dir, "b.sarif", `{"version": "2.1.0", "runs": [{"results": [{"level": "warning"}]}]}`)
	invalid := writeFile(t, dir, "c.sarif", `{"version": "2.1.0", "runs": {"results": []}}`)
	out := filepath.Join(dir, "merged.sarif")

	agg := report.NewAggregator(report.FormatSARIF, severity.NewMatcher("CRITICAL", false), discardLogger)

	rep, err := agg.Merge([]string{first, second, invalid}, out)
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)

	var merged struct {
		Schema  string           `json:"$schema"`
		Version string           `json:"version"`
		Runs    []map[string]any `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(data, &merged))

	assert.Equal(t, "https://example.test/sarif.json", merged.Schema)
	assert.Equal(t, "2.1.0", merged.Version)
	require.Len(t, merged.Runs, 3)

	sum := 0

	for _, run := range merged.Runs {
		if results, ok := run["results"].([]any); ok {
			sum += len(results)
		}
	}

	assert.Equal(t, rep.Total, sum)
	assert.Equal(t, 2, rep.Total)
	assert.NotContains(t, merged.Runs[1], "results")
	assert.Contains(t, merged.Runs[1], "invocations")
	assert.Empty(t, merged.Runs[2]["results"])
	assert.Equal(t, 1, rep.Malformed)

	assert.Equal(t, "java/sqli", rep.Findings[0].Name)
	assert.Equal(t, "sql", rep.Findings[0].Message)
	assert.Equal(t, "src/A.java", rep.Findings[0].Location.Path)
	assert.Equal(t, 10, rep.Findings[0].Location.StartLine)
}

func TestMergeSARIF_DefaultHeader(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "merged.sarif")

	rep, err := report.NewAggregator(report.FormatSARIF, severity.NewMatcher("", false), discardLogger).Merge(nil, out)
	require.NoError(t, err)
	assert.Zero(t, rep.Total)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"$schema": "`+report.DefaultSARIFSchema+`", "version": "2.1.0", "runs": []}`, string(data))
}

func TestRuleSeverities(t *testing.T) {
	t.Parallel()

	doc, err := report.ParseDocument([]byte(sarifRaw))
	require.NoError(t, err)
	require.Equal(t, report.KindSARIF, doc.Kind)

	rules := report.RuleSeverities(doc.Runs[0])

	assert.Equal(t, map[string]string{
		"java/sqli":  "error",
		"java/log":   "note",
		"java/named": "warning",
	}, rules)
}

func TestParseDocument_Kinds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		kind report.Kind
	}{
		{`[{"a": 1}]`, report.KindList},
		{`{"results": []}`, report.KindResultsObject},
		{`{"runs": []}`, report.KindSARIF},
		{`{"other": true}`, report.KindUnknown},
		{`42`, report.KindUnknown},
	}

	for _, tc := range tests {
		doc, err := report.ParseDocument([]byte(tc.raw))
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.kind, doc.Kind, tc.raw)
	}

	_, err := report.ParseDocument([]byte(`{`))
	require.ErrorIs(t, err, report.ErrMalformed)
}

func TestValidateSARIF(t *testing.T) {
	t.Parallel()

	require.NoError(t, report.ValidateSARIF([]byte(sarifRaw)))
	require.ErrorIs(t, report.ValidateSARIF([]byte(`{"version": "2.1.0"}`)), report.ErrSchemaViolation)
	require.ErrorIs(t, report.ValidateSARIF([]byte(`{"runs": [{"results": [1]}]}`)), report.ErrSchemaViolation)
}
