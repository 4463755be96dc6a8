package ai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/olegiv/drfeedback-go/internal/runner"
)

// Triage statuses, from best to worst.
const (
	StatusGood     = "Good"
	StatusDegraded = "Degraded"
	StatusBroken   = "Broken"
)

// Triage is the structured assessment of one inspected bundle.
type Triage struct {
	Status        string   `json:"status"`
	Summary       string   `json:"summary"`
	SuspectFiles  []string `json:"suspectFiles"`
	LikelyCauses  []string `json:"likelyCauses"`
	NextSteps     []string `json:"nextSteps"`
	NeedsFollowUp bool     `json:"needsFollowUp"`
}

// maxPromptFindings caps how many findings are sent per bundle.
const maxPromptFindings = 400

// SystemPrompt returns the instructions for the triage model.
func SystemPrompt() string {
	return `You are a support engineer for a fleet of small ARM computers running Kanux, a Debian based distribution. Users send diagnostic bundles when something goes wrong. Each file in the bundle has already been inspected by automated rules that produced findings in three tiers: INFO (facts), WARN (suspicious) and ERROR (definitely wrong).

**Your task:**

1. **Status** - classify the device:
   - "Good" - nothing actionable, findings are informational
   - "Degraded" - warnings or isolated errors, device is usable
   - "Broken" - errors that prevent normal use (no network, missing packages, crashes)

2. **Suspect files** - list the bundle filenames whose findings point at the root cause.

3. **Likely causes** - short statements of what is probably wrong.

4. **Next steps** - concrete actions for the support team or the user.

**Output Requirements:**

You MUST respond with a valid JSON object (and ONLY JSON) in this exact format:

{
  "status": "Good|Degraded|Broken",
  "summary": "1-2 sentence overview of the device state",
  "suspectFiles": ["wlaninfo.txt"],
  "likelyCauses": ["Wireless adapter is not associated"],
  "nextSteps": ["Ask the user to re-run the wifi setup"],
  "needsFollowUp": true
}

**Principles:**
- Only report what the findings support
- Files marked FAILED could not be fully inspected; treat that as a signal, not proof
- Empty arrays are acceptable`
}

// UserPrompt renders the findings of an inspection run.
func UserPrompt(agg *runner.AggregateReport) string {
	var b strings.Builder

	info, warn, errs := agg.Counts()
	fmt.Fprintf(&b, "BUNDLE %s: %d files, %d info, %d warn, %d error\n\n",
		agg.ID, len(agg.Results), info, warn, errs)

	written := 0
	for _, res := range agg.Results {
		b.WriteString("## ")
		b.WriteString(res.Filename)
		if res.Kind != 0 {
			fmt.Fprintf(&b, " (%s)", res.Kind)
		}
		if res.Failed() {
			b.WriteString(" [FAILED]")
		}
		b.WriteString("\n")

		for _, f := range res.Report.Findings() {
			if written == maxPromptFindings {
				b.WriteString("... further findings omitted\n")
				break
			}
			fmt.Fprintf(&b, "%s: %s\n", strings.ToUpper(f.Severity.String()), SanitizeLogContent(f.Message))
			written++
		}
		b.WriteString("\n")
	}

	b.WriteString("Please triage the bundle above and answer in JSON format as specified.")
	return b.String()
}

// promptInjectionPatterns contains regex patterns for common prompt injection attempts
var promptInjectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?)`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?)`),
	regexp.MustCompile(`(?i)forget\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?)`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+a`),
	regexp.MustCompile(`(?i)new\s+instructions?:`),
	regexp.MustCompile(`(?i)system\s*prompt\s*:`),
	regexp.MustCompile(`(?i)\b(ASSISTANT|HUMAN|USER|SYSTEM)\s*:`),
}

var excessiveNewlines = regexp.MustCompile(`\n{4,}`)

// SanitizeLogContent strips non-printable characters and known prompt
// injection phrases from text copied out of a bundle. Bundle files are
// user controlled.
func SanitizeLogContent(content string) string {
	var sanitized strings.Builder
	sanitized.Grow(len(content))

	for _, r := range content {
		if unicode.IsPrint(r) || r == '\n' || r == '\t' || r == '\r' {
			sanitized.WriteRune(r)
		}
	}

	result := sanitized.String()
	for _, pattern := range promptInjectionPatterns {
		result = pattern.ReplaceAllString(result, "[FILTERED]")
	}
	return excessiveNewlines.ReplaceAllString(result, "\n\n\n")
}

// Maximum allowed JSON response size (1MB)
const maxJSONResponseSize = 1024 * 1024

// sanitizeJSONEscapes drops the backslash of escape sequences JSON does not
// allow, such as \. or \( which models sometimes emit.
func sanitizeJSONEscapes(s string) string {
	var result strings.Builder
	result.Grow(len(s))

	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 >= len(s) {
			result.WriteByte(s[i])
			continue
		}
		next := s[i+1]
		if strings.IndexByte(`"\/bfnrtu`, next) < 0 {
			result.WriteByte(next)
		} else {
			result.WriteByte('\\')
			result.WriteByte(next)
		}
		i++
	}
	return result.String()
}

// ParseTriage extracts and validates the JSON triage from a model response.
func ParseTriage(response string) (*Triage, error) {
	jsonMatch := extractJSON(response)
	if jsonMatch == "" {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	if len(jsonMatch) > maxJSONResponseSize {
		return nil, fmt.Errorf("JSON response too large: %d bytes (max: %d)", len(jsonMatch), maxJSONResponseSize)
	}

	var triage Triage
	if err := json.Unmarshal([]byte(sanitizeJSONEscapes(jsonMatch)), &triage); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	if err := validateTriage(&triage); err != nil {
		return nil, fmt.Errorf("triage validation failed: %w", err)
	}
	return &triage, nil
}

func validateTriage(t *Triage) error {
	switch t.Status {
	case StatusGood, StatusDegraded, StatusBroken:
	case "":
		return fmt.Errorf("status is required")
	default:
		return fmt.Errorf("invalid status: %s", t.Status)
	}

	if t.Summary == "" {
		return fmt.Errorf("summary is required")
	}

	if t.SuspectFiles == nil {
		t.SuspectFiles = []string{}
	}
	if t.LikelyCauses == nil {
		t.LikelyCauses = []string{}
	}
	if t.NextSteps == nil {
		t.NextSteps = []string{}
	}
	return nil
}

// StatusEmoji returns the emoji for a triage status.
func StatusEmoji(status string) string {
	switch status {
	case StatusGood:
		return "🟢"
	case StatusDegraded:
		return "🟠"
	case StatusBroken:
		return "🔴"
	}
	return "⚪"
}

// ShouldAlert reports whether a triage status warrants the alerts channel.
func ShouldAlert(status string) bool {
	return status == StatusDegraded || status == StatusBroken
}

// extractJSON returns the first balanced JSON object in response.
func extractJSON(response string) string {
	startIdx := strings.Index(response, "{")
	if startIdx == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false

	for i := startIdx; i < len(response); i++ {
		char := response[i]

		if escaped {
			escaped = false
			continue
		}

		if char == '\\' && inString {
			escaped = true
			continue
		}

		if char == '"' {
			inString = !inString
			continue
		}

		if inString {
			continue
		}

		switch char {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return response[startIdx : i+1]
			}
		}
	}

	return ""
}
