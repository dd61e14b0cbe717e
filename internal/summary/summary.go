// Package summary renders the end-of-run scan summary.
package summary

import (
	"cmp"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"gonum.org/v1/gonum/stat"
)

const (
	defaultChartWidth = 40
	defaultChartRows  = 10
	chartBar          = "#"
)

// QueryResult is the per work item line of the summary.
type QueryResult struct {
	Name     string
	Language string
	OK       bool
	Findings int
	Duration time.Duration
}

// Summary holds the figures of one run.
type Summary struct {
	Results    []QueryResult
	Severities map[string]int
	Total      int
	Skipped    []string
	ReportPath string
	ReportSize int64
	FailureLog string
	Elapsed    time.Duration
	DryRun     bool
}

// Options selects the rendering style.
type Options struct {
	// Fancy adds colors and a findings chart.
	Fancy bool
	// ChartWidth is the width of the longest chart bar.
	ChartWidth int
	// ChartRows caps the number of charted queries.
	ChartRows int
}

// Stats are the derived figures printed in the summary.
type Stats struct {
	Ran             int
	Succeeded       int
	Failed          int
	WithFindings    int
	WithoutFindings int
	MeanFindings    float64
	StdDevFindings  float64
	MeanDuration    time.Duration
	StdDevDuration  time.Duration
}

// Compute derives the summary statistics from the per-query results.
// Findings statistics cover succeeded queries only.
func (s Summary) Compute() Stats {
	st := Stats{Ran: len(s.Results)}

	var findings, durations []float64

	for _, res := range s.Results {
		durations = append(durations, res.Duration.Seconds())

		if !res.OK {
			st.Failed++

			continue
		}

		st.Succeeded++

		if res.Findings > 0 {
			st.WithFindings++
		} else {
			st.WithoutFindings++
		}

		findings = append(findings, float64(res.Findings))
	}

	if len(findings) > 0 {
		st.MeanFindings, st.StdDevFindings = meanStdDev(findings)
	}

	if len(durations) > 0 {
		mean, std := meanStdDev(durations)
		st.MeanDuration = secondsToDuration(mean)
		st.StdDevDuration = secondsToDuration(std)
	}

	return st
}

// Render writes the summary to w.
func Render(w io.Writer, s Summary, opts Options) error {
	var out strings.Builder

	headline := color.New(color.FgCyan, color.Bold)
	bad := color.New(color.FgRed, color.Bold)

	if !opts.Fancy {
		headline.DisableColor()
		bad.DisableColor()
	}

	st := s.Compute()

	if s.DryRun {
		out.WriteString(headline.Sprintf("Dry run: %s work items planned", humanize.Comma(int64(st.Ran))))
		out.WriteString("\n")

		return write(w, out.String())
	}

	out.WriteString(headline.Sprint("Scan summary"))
	out.WriteString("\n")
	out.WriteString(overviewTable(s, st))
	out.WriteString("\n")

	if len(s.Severities) > 0 {
		out.WriteString("\n")
		out.WriteString(severityTable(s.Severities))
		out.WriteString("\n")
	}

	if st.Failed > 0 && s.FailureLog != "" {
		out.WriteString("\n")
		out.WriteString(bad.Sprintf("%d queries failed, see %s", st.Failed, s.FailureLog))
		out.WriteString("\n")
	}

	if opts.Fancy {
		chart := Chart(s.Results, cmp.Or(opts.ChartWidth, defaultChartWidth), cmp.Or(opts.ChartRows, defaultChartRows))
		if chart != "" {
			out.WriteString("\n")
			out.WriteString(chart)
		}
	}

	return write(w, out.String())
}

func write(w io.Writer, text string) error {
	_, err := io.WriteString(w, text)
	if err != nil {
		return fmt.Errorf("write summary: %w", err)
	}

	return nil
}

func newTable() table.Writer {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.Style().Options.DrawBorder = false

	return tbl
}

func overviewTable(s Summary, st Stats) string {
	tbl := newTable()
	tbl.AppendHeader(table.Row{"Metric", "Value"})

	tbl.AppendRows([]table.Row{
		{"Queries run", humanize.Comma(int64(st.Ran))},
		{"Succeeded", humanize.Comma(int64(st.Succeeded))},
		{"Failed", humanize.Comma(int64(st.Failed))},
		{"With findings", humanize.Comma(int64(st.WithFindings))},
		{"Without findings", humanize.Comma(int64(st.WithoutFindings))},
		{"Total findings", humanize.Comma(int64(s.Total))},
		{"Findings per query", fmt.Sprintf("%.2f ± %.2f", st.MeanFindings, st.StdDevFindings)},
		{"Analyzer time per query", fmt.Sprintf("%s ± %s", st.MeanDuration, st.StdDevDuration)},
		{"Elapsed", s.Elapsed.Round(time.Millisecond).String()},
	})

	if len(s.Skipped) > 0 {
		tbl.AppendRow(table.Row{"Skipped databases", strings.Join(s.Skipped, ", ")})
	}

	if s.ReportPath != "" {
		tbl.AppendRow(table.Row{"Report", fmt.Sprintf("%s (%s)", s.ReportPath, humanize.Bytes(uint64(max(s.ReportSize, 0))))})
	}

	return tbl.Render()
}

func severityTable(severities map[string]int) string {
	tbl := newTable()
	tbl.AppendHeader(table.Row{"Severity", "Findings"})

	for _, tier := range slices.Sorted(maps.Keys(severities)) {
		tbl.AppendRow(table.Row{tier, humanize.Comma(int64(severities[tier]))})
	}

	return tbl.Render()
}

// Chart draws a horizontal bar per succeeded query with findings, largest
// first, scaled so the largest bar is width characters long.
func Chart(results []QueryResult, width, rows int) string {
	var charted []QueryResult

	for _, res := range results {
		if res.OK && res.Findings > 0 {
			charted = append(charted, res)
		}
	}

	if len(charted) == 0 || width < 1 {
		return ""
	}

	slices.SortStableFunc(charted, func(a, b QueryResult) int {
		return cmp.Or(cmp.Compare(b.Findings, a.Findings), cmp.Compare(a.Name, b.Name))
	})

	if rows > 0 && len(charted) > rows {
		charted = charted[:rows]
	}

	peak := charted[0].Findings
	label := 0

	for _, res := range charted {
		label = max(label, len(res.Name))
	}

	var out strings.Builder

	for _, res := range charted {
		bar := max(res.Findings*width/peak, 1)
		fmt.Fprintf(&out, "%-*s | %s %d\n", label, res.Name, strings.Repeat(chartBar, bar), res.Findings)
	}

	return out.String()
}

func meanStdDev(values []float64) (float64, float64) {
	if len(values) == 1 {
		return values[0], 0
	}

	return stat.MeanStdDev(values, nil)
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second)).Round(time.Millisecond)
}
