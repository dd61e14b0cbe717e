package engine

import (
	"os"
	"time"

	"github.com/Sumatoshi-tech/hydraql/internal/catalog"
	"github.com/Sumatoshi-tech/hydraql/internal/registry"
	"github.com/Sumatoshi-tech/hydraql/internal/report"
	"github.com/Sumatoshi-tech/hydraql/internal/scheduler"
	"github.com/Sumatoshi-tech/hydraql/internal/summary"
)

// Result describes a finished run.
type Result struct {
	Resolution *registry.Resolution
	Queries    []catalog.Query
	Items      []scheduler.WorkItem
	Outcomes   []scheduler.Outcome
	// Report is nil for dry runs and runs aborted before merging.
	Report     *report.Report
	Failures   int
	FailureLog string
	Elapsed    time.Duration
	DryRun     bool
}

// Succeeded counts work items with a successful attempt.
func (r *Result) Succeeded() int {
	count := 0

	for _, outcome := range r.Outcomes {
		if outcome.OK {
			count++
		}
	}

	return count
}

// Summary converts the result into renderable summary figures.
func (r *Result) Summary() summary.Summary {
	sum := summary.Summary{Elapsed: r.Elapsed, DryRun: r.DryRun}

	if r.Resolution != nil {
		sum.Skipped = r.Resolution.Skipped
	}

	if r.DryRun {
		sum.Results = make([]summary.QueryResult, len(r.Items))

		for idx, item := range r.Items {
			sum.Results[idx] = summary.QueryResult{Name: item.Query.Name, Language: item.Database.Language}
		}

		return sum
	}

	for _, outcome := range r.Outcomes {
		sum.Results = append(sum.Results, summary.QueryResult{
			Name:     outcome.Item.Query.Name,
			Language: outcome.Item.Database.Language,
			OK:       outcome.OK,
			Findings: outcome.Findings,
			Duration: outcome.Duration,
		})
	}

	if r.Failures > 0 {
		sum.FailureLog = r.FailureLog
	}

	if r.Report != nil {
		sum.Total = r.Report.Total
		sum.Severities = r.Report.Severities
		sum.ReportPath = r.Report.Path

		info, err := os.Stat(r.Report.Path)
		if err == nil {
			sum.ReportSize = info.Size()
		}
	}

	return sum
}
