package inspector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// appLogsRaw flags known failure markers in the plain application log.
type appLogsRaw struct{}

func (appLogsRaw) Inspect(_ context.Context, r *Report, c Content) error {
	m := NewMatcher(r)
	m.AssertNotExists(c.Lines, "rdate FAIL", "Rdate has failed at least once")
	m.AssertNotExists(c.Lines, "make-minecraft error", "Make Minecraft has reported problems")
	return nil
}

// appLogsJSON reads the per-component structured application log:
// {"component": [{"level": "...", ...}, ...], ...}
// Components are checked in document order; each stops at its first error
// entry, so entries after it are never looked at.
type appLogsJSON struct{}

func (appLogsJSON) Inspect(_ context.Context, r *Report, c Content) error {
	components, err := readComponentLogs(joinLines(c.Lines))
	if err == nil {
		for _, comp := range components {
			var hasErrors bool
			hasErrors, err = componentHasErrors(comp)
			if err != nil {
				break
			}
			if hasErrors {
				r.AddError(fmt.Sprintf("%s reported errors", comp.name))
			}
		}
	}
	if err != nil {
		r.AddError("Could not read logs in Json format")
		return malformed(KindAppLogsJSON, err)
	}
	return nil
}

type componentLog struct {
	name    string
	entries json.RawMessage
}

// readComponentLogs decodes the top-level object keeping key order. A
// repeated component keeps its first position and its last value.
func readComponentLogs(text string) ([]componentLog, error) {
	dec := json.NewDecoder(strings.NewReader(text))

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to read JSON log: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected an object of component logs, got %v", tok)
	}

	var components []componentLog
	index := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to read component name: %w", err)
		}
		name, _ := tok.(string)

		var entries json.RawMessage
		if err := dec.Decode(&entries); err != nil {
			return nil, fmt.Errorf("component %q: %w", name, err)
		}
		if i, ok := index[name]; ok {
			components[i].entries = entries
			continue
		}
		index[name] = len(components)
		components = append(components, componentLog{name: name, entries: entries})
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("unterminated component object: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unexpected data after component object")
	}
	return components, nil
}

// componentHasErrors walks the entries up to the first one whose level is
// the string "error". Levels of any other value or type do not match.
func componentHasErrors(comp componentLog) (bool, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(comp.entries, &entries); err != nil || entries == nil {
		return false, fmt.Errorf("component %q: entries are not a list", comp.name)
	}

	for i, raw := range entries {
		var entry map[string]json.RawMessage
		if err := json.Unmarshal(raw, &entry); err != nil || entry == nil {
			return false, fmt.Errorf("component %q: entry %d is not an object", comp.name, i)
		}
		levelRaw, ok := entry["level"]
		if !ok {
			return false, fmt.Errorf("component %q: entry %d has no level", comp.name, i)
		}
		var level any
		if err := json.Unmarshal(levelRaw, &level); err != nil {
			return false, fmt.Errorf("component %q: entry %d: %w", comp.name, i, err)
		}
		if s, ok := level.(string); ok && s == "error" {
			return true, nil
		}
	}
	return false, nil
}

// cmdline requires IPv6 to be disabled on the kernel command line.
type cmdline struct{}

func (cmdline) Inspect(_ context.Context, r *Report, c Content) error {
	NewMatcher(r).AssertExists(c.Lines, "ipv6.disable=1",
		"IPv6 is not forcibly disabled through the kernel command line")
	return nil
}

type dmesg struct{}

func (dmesg) Inspect(_ context.Context, r *Report, c Content) error {
	NewMatcher(r).AssertExists(c.Lines, "wlan0: associated",
		"This unit has not been wirelessly associated since it last booted")
	return nil
}

// kanuxVersion reports the OS version file: line 0 is the update date,
// line 1 the version string.
type kanuxVersion struct{}

func (kanuxVersion) Inspect(_ context.Context, r *Report, c Content) error {
	if len(c.Lines) < 2 {
		r.AddError("Kanux version file is incomplete")
		return nil
	}
	r.AddInfo(fmt.Sprintf("Current Kanux Version: %s", c.Lines[1]))
	r.AddInfo(fmt.Sprintf("Last updated on: %s", c.Lines[0]))
	return nil
}

const (
	kanoWirelessDongle = "Ralink Technology, Corp. RT5370 Wireless Adapter"
	kanoKeyboard       = "ID 1997:2433"
)

type usbDevices struct{}

func (usbDevices) Inspect(_ context.Context, r *Report, c Content) error {
	m := NewMatcher(r)
	m.AssertExists(c.Lines, kanoWirelessDongle,
		"This Kit is not using the de-facto wireless dongle provided by Kano (or is an RPI3)")
	m.AssertExists(c.Lines, kanoKeyboard, "This Kit is not using the de-facto Kano Keyboard")
	return nil
}

type cpuInfo struct{}

func (cpuInfo) Inspect(_ context.Context, r *Report, c Content) error {
	model := "Model: unknown"
	for _, line := range c.Lines {
		if strings.HasPrefix(line, "Model:") {
			model = strings.TrimSpace(line)
		}
	}
	r.AddInfo("This is a RaspberryPI " + model)
	return nil
}

type screenshot struct{}

func (screenshot) Inspect(_ context.Context, r *Report, _ Content) error {
	r.AddInfo("This feedback report contains a screenshot")
	return nil
}

// noop is registered for files that are collected but have no rule yet,
// and for binary payloads.
type noop struct{}

func (noop) Inspect(context.Context, *Report, Content) error {
	return nil
}
