package inspector

import "fmt"

// Severity classifies a finding into one of the three report tiers.
type Severity int

// Report tiers, least to most severe.
const (
	SeverityInfo Severity = iota
	SeverityWarn
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarn:
		return "warn"
	case SeverityError:
		return "error"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// ParseSeverity converts a tier name back to a Severity.
func ParseSeverity(s string) (Severity, error) {
	switch s {
	case "info":
		return SeverityInfo, nil
	case "warn":
		return SeverityWarn, nil
	case "error":
		return SeverityError, nil
	default:
		return 0, fmt.Errorf("invalid severity: %q (valid: info, warn, error)", s)
	}
}

// Finding is a single human-readable observation about a file.
// The message itself carries the subject; there are no other fields.
type Finding struct {
	Severity Severity
	Message  string
}

// Report accumulates the findings of one inspection run over one file.
// Tiers are append-only and keep insertion order. A Report is not safe
// for concurrent use; each run owns its own instance.
type Report struct {
	findings []Finding
}

// NewReport creates an empty report.
func NewReport() *Report {
	return &Report{}
}

// AddInfo appends a finding to the info tier.
func (r *Report) AddInfo(msg string) { r.add(SeverityInfo, msg) }

// AddWarn appends a finding to the warn tier.
func (r *Report) AddWarn(msg string) { r.add(SeverityWarn, msg) }

// AddError appends a finding to the error tier.
func (r *Report) AddError(msg string) { r.add(SeverityError, msg) }

func (r *Report) add(sev Severity, msg string) {
	r.findings = append(r.findings, Finding{Severity: sev, Message: msg})
}

// Info returns the info tier in insertion order.
func (r *Report) Info() []string { return r.tier(SeverityInfo) }

// Warn returns the warn tier in insertion order.
func (r *Report) Warn() []string { return r.tier(SeverityWarn) }

// Error returns the error tier in insertion order.
func (r *Report) Error() []string { return r.tier(SeverityError) }

func (r *Report) tier(sev Severity) []string {
	out := []string{}
	for _, f := range r.findings {
		if f.Severity == sev {
			out = append(out, f.Message)
		}
	}
	return out
}

// Findings returns every finding across tiers in the order they were added.
func (r *Report) Findings() []Finding {
	out := make([]Finding, len(r.findings))
	copy(out, r.findings)
	return out
}

// Counts returns the number of findings per tier.
func (r *Report) Counts() (info, warn, errs int) {
	for _, f := range r.findings {
		switch f.Severity {
		case SeverityInfo:
			info++
		case SeverityWarn:
			warn++
		case SeverityError:
			errs++
		}
	}
	return info, warn, errs
}

// Empty reports whether nothing was recorded.
func (r *Report) Empty() bool {
	return len(r.findings) == 0
}
