// Package render prints inspection results to a terminal.
package render

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/olegiv/drfeedback-go/internal/ai"
	"github.com/olegiv/drfeedback-go/internal/inspector"
	"github.com/olegiv/drfeedback-go/internal/runner"
)

var (
	headerColor  = color.New(color.Bold)
	fileColor    = color.New(color.FgCyan, color.Bold)
	failedColor  = color.New(color.FgMagenta, color.Bold)
	dimColor     = color.New(color.Faint)
	versionColor = color.New(color.FgGreen, color.Bold)

	severityColors = map[inspector.Severity]*color.Color{
		inspector.SeverityInfo:  color.New(color.FgBlue),
		inspector.SeverityWarn:  color.New(color.FgYellow),
		inspector.SeverityError: color.New(color.FgRed, color.Bold),
	}

	statusColors = map[string]*color.Color{
		ai.StatusGood:     color.New(color.FgGreen, color.Bold),
		ai.StatusDegraded: color.New(color.FgYellow, color.Bold),
		ai.StatusBroken:   color.New(color.FgRed, color.Bold),
	}
)

// Options selects what Report prints.
type Options struct {
	// HideInfo drops info findings from the per-file listing.
	HideInfo bool
}

// Report writes the per-file findings of agg followed by a totals line and,
// when present, the triage.
func Report(w io.Writer, agg *runner.AggregateReport, triage *ai.Triage, opts Options) {
	headerColor.Fprintf(w, "Bundle %s", agg.ID)
	dimColor.Fprintf(w, " (%d files, %s)\n\n", len(agg.Results), agg.Duration.Round(time.Millisecond))

	for _, res := range agg.Results {
		fileColor.Fprint(w, res.Filename)
		if res.Kind != 0 {
			dimColor.Fprintf(w, " [%s]", res.Kind)
		}
		if res.Failed() {
			failedColor.Fprint(w, " FAILED")
		}
		fmt.Fprintln(w)

		printed := 0
		for _, f := range res.Report.Findings() {
			if opts.HideInfo && f.Severity == inspector.SeverityInfo {
				continue
			}
			fmt.Fprint(w, "  ")
			severityColors[f.Severity].Fprintf(w, "%-5s", strings.ToUpper(f.Severity.String()))
			fmt.Fprintf(w, " %s\n", f.Message)
			printed++
		}
		if printed == 0 {
			dimColor.Fprintln(w, "  (no findings)")
		}
	}

	info, warn, errs := agg.Counts()
	fmt.Fprintln(w)
	headerColor.Fprint(w, "Total: ")
	severityColors[inspector.SeverityError].Fprintf(w, "%d error", errs)
	fmt.Fprint(w, ", ")
	severityColors[inspector.SeverityWarn].Fprintf(w, "%d warn", warn)
	fmt.Fprint(w, ", ")
	severityColors[inspector.SeverityInfo].Fprintf(w, "%d info", info)
	if failed := len(agg.Failed()); failed > 0 {
		fmt.Fprint(w, ", ")
		failedColor.Fprintf(w, "%d failed", failed)
	}
	fmt.Fprintln(w)

	if triage != nil {
		printTriage(w, triage)
	}
}

func printTriage(w io.Writer, t *ai.Triage) {
	fmt.Fprintln(w)
	headerColor.Fprint(w, "Triage: ")
	c, ok := statusColors[t.Status]
	if !ok {
		c = headerColor
	}
	c.Fprintln(w, t.Status)
	fmt.Fprintf(w, "  %s\n", t.Summary)

	printList(w, "Suspect files", t.SuspectFiles)
	printList(w, "Likely causes", t.LikelyCauses)
	printList(w, "Next steps", t.NextSteps)
}

func printList(w io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	dimColor.Fprintf(w, "  %s:\n", title)
	for _, item := range items {
		fmt.Fprintf(w, "    - %s\n", item)
	}
}

// Inspectors lists the registered filenames and the crash dump prefix.
func Inspectors(w io.Writer, specs []inspector.Spec) {
	for _, spec := range specs {
		fileColor.Fprintf(w, "%-24s", spec.Filename)
		fmt.Fprintf(w, " %s\n", spec.Kind)
	}
	fileColor.Fprintf(w, "%-24s", inspector.CrashDumpPrefix+"*")
	fmt.Fprintf(w, " %s\n", inspector.KindBinary)
}

// Version prints the program name and version.
func Version(w io.Writer, name, version string) {
	fmt.Fprintf(w, "%s ", name)
	versionColor.Fprintln(w, version)
}
