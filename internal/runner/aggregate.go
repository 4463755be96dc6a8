package runner

import (
	"time"

	"github.com/olegiv/drfeedback-go/internal/inspector"
)

// FileResult is the outcome of inspecting one file. Report holds whatever
// was recorded before a failure; Err is nil when the inspection completed.
type FileResult struct {
	Filename string
	Kind     inspector.Kind
	Format   inspector.Format
	Report   *inspector.Report
	Err      error
}

// Failed reports whether the inspection did not complete.
func (r FileResult) Failed() bool {
	return r.Err != nil
}

// AggregateReport is the per-bundle collection of reports, in bundle order.
type AggregateReport struct {
	ID        string
	CreatedAt time.Time
	Duration  time.Duration
	Results   []FileResult
}

// Report returns the report recorded for filename.
func (a *AggregateReport) Report(filename string) (*inspector.Report, bool) {
	for _, res := range a.Results {
		if res.Filename == filename {
			return res.Report, true
		}
	}
	return nil, false
}

// Filenames lists the inspected files in bundle order.
func (a *AggregateReport) Filenames() []string {
	names := make([]string, len(a.Results))
	for i, res := range a.Results {
		names[i] = res.Filename
	}
	return names
}

// Counts sums the findings of every file per tier.
func (a *AggregateReport) Counts() (info, warn, errs int) {
	for _, res := range a.Results {
		i, w, e := res.Report.Counts()
		info += i
		warn += w
		errs += e
	}
	return info, warn, errs
}

// Failed returns the results whose inspection did not complete.
func (a *AggregateReport) Failed() []FileResult {
	var failed []FileResult
	for _, res := range a.Results {
		if res.Failed() {
			failed = append(failed, res)
		}
	}
	return failed
}

// HasErrors reports whether any file has an error finding.
func (a *AggregateReport) HasErrors() bool {
	_, _, errs := a.Counts()
	return errs > 0
}
