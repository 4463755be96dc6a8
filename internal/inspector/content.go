package inspector

import (
	"bytes"
	"strings"
)

// Format is the detected shape of a file's payload.
type Format int

const (
	FormatText Format = iota
	FormatImage
	FormatBinary
)

func (f Format) String() string {
	switch f {
	case FormatText:
		return "text"
	case FormatImage:
		return "image"
	case FormatBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// Detection is the per-inspector format declaration consulted by the loader.
type Detection int

const (
	// DetectAuto sniffs the payload: PNG signature means image, anything else text.
	DetectAuto Detection = iota
	// DetectText always treats the payload as text lines.
	DetectText
	// DetectBinary always treats the payload as opaque bytes.
	DetectBinary
)

var pngSignature = []byte("\x89PNG\r\n")

// DetectFormat applies the automatic detection rule to raw bytes.
func DetectFormat(raw []byte) Format {
	if bytes.HasPrefix(raw, pngSignature) {
		return FormatImage
	}
	return FormatText
}

// Resolve returns the format a payload gets under this declaration.
func (d Detection) Resolve(raw []byte) Format {
	switch d {
	case DetectBinary:
		return FormatBinary
	case DetectText:
		return FormatText
	default:
		return DetectFormat(raw)
	}
}

// Content is what an inspector receives for one file. Lines is populated
// only for text payloads; Raw always holds the original bytes.
type Content struct {
	Format Format
	Lines  []string
	Raw    []byte
}

// NewContent builds the inspector input for raw file data.
func NewContent(raw []byte, d Detection) Content {
	c := Content{Format: d.Resolve(raw), Raw: raw}
	if c.Format == FormatText {
		c.Lines = SplitLines(raw)
	}
	return c
}

// TextContent is a convenience for building text input from lines.
func TextContent(lines ...string) Content {
	raw := strings.Join(lines, "\n")
	return Content{Format: FormatText, Lines: lines, Raw: []byte(raw)}
}

// SplitLines splits text into newline-stripped lines. A trailing newline
// does not produce an empty final line, and empty input yields no lines.
func SplitLines(raw []byte) []string {
	if len(raw) == 0 {
		return []string{}
	}
	text := strings.TrimSuffix(string(raw), "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}
