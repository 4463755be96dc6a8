package storage

import (
	"github.com/olegiv/drfeedback-go/internal/ai"
	"github.com/olegiv/drfeedback-go/internal/runner"
)

// FromAggregate flattens an inspection run into a storable report.
// triage may be nil.
func FromAggregate(agg *runner.AggregateReport, source string, triage *ai.Triage) *Report {
	info, warn, errs := agg.Counts()

	r := &Report{
		ReportID:    agg.ID,
		CreatedAt:   agg.CreatedAt,
		Source:      source,
		FileCount:   len(agg.Results),
		InfoCount:   info,
		WarnCount:   warn,
		ErrorCount:  errs,
		FailedFiles: []string{},
		DurationMs:  agg.Duration.Milliseconds(),
	}
	if triage != nil {
		r.TriageStatus = triage.Status
		r.TriageSummary = triage.Summary
	}

	for _, res := range agg.Results {
		if res.Failed() {
			r.FailedFiles = append(r.FailedFiles, res.Filename)
		}
		kind := ""
		if res.Kind != 0 {
			kind = res.Kind.String()
		}
		for i, f := range res.Report.Findings() {
			r.Findings = append(r.Findings, Finding{
				Filename: res.Filename,
				Kind:     kind,
				Severity: f.Severity.String(),
				Position: i,
				Message:  f.Message,
			})
		}
	}
	return r
}
