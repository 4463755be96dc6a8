package inspector

import "strings"

// Exists reports whether any line contains needle as a literal substring.
func Exists(lines []string, needle string) bool {
	for _, line := range lines {
		if strings.Contains(line, needle) {
			return true
		}
	}
	return false
}

// Matcher records presence/absence assertions into a report's warn tier.
type Matcher struct {
	report *Report
}

// NewMatcher binds a matcher to the report it writes into.
func NewMatcher(r *Report) Matcher {
	return Matcher{report: r}
}

// AssertExists warns with message when needle is absent.
// It returns whether needle was found so callers can branch further.
func (m Matcher) AssertExists(lines []string, needle, message string) bool {
	found := Exists(lines, needle)
	if !found {
		m.report.AddWarn(message)
	}
	return found
}

// AssertNotExists warns with message when needle is present.
// It returns whether needle was found.
func (m Matcher) AssertNotExists(lines []string, needle, message string) bool {
	found := Exists(lines, needle)
	if found {
		m.report.AddWarn(message)
	}
	return found
}

// joinLines rebuilds the text form of a line slice for pattern extraction.
func joinLines(lines []string) string {
	return strings.Join(lines, "\n")
}
