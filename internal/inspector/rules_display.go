package inspector

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	minimumDisplayWidth  = 1024
	minimumDisplayHeight = 768

	hdmiBadHeader = "HDMI: bad EDID header"
)

var hdmiPreferredPattern = regexp.MustCompile(`HDMI:EDID found preferred (.*) detail timing format: (\d+)x(\d+)p`)

// hdmiInfo checks the EDID negotiation output of the display.
type hdmiInfo struct{}

func (hdmiInfo) Inspect(_ context.Context, r *Report, c Content) error {
	for _, line := range c.Lines {
		if strings.Contains(line, hdmiBadHeader) {
			r.AddError(line)
		}
	}

	m := hdmiPreferredPattern.FindStringSubmatch(joinLines(c.Lines))
	if m == nil {
		r.AddError("HDMI didn't find preferred timing")
		return nil
	}

	mode := m[1]
	width, werr := strconv.Atoi(m[2])
	height, herr := strconv.Atoi(m[3])
	if werr != nil || herr != nil {
		r.AddError("Could not determine current display mode")
		return malformed(KindHdmiInfo, fmt.Errorf("invalid resolution %sx%s", m[2], m[3]))
	}

	r.AddInfo(fmt.Sprintf("Video mode is set to: %s", mode))
	if width < minimumDisplayWidth || height < minimumDisplayHeight {
		r.AddError(fmt.Sprintf("Current display mode is too small: %dx%d (minimum: %dx%d)",
			width, height, minimumDisplayWidth, minimumDisplayHeight))
	} else {
		r.AddInfo(fmt.Sprintf("Current display mode should be ok: %dx%d", width, height))
	}
	return nil
}
