package inspector

import (
	"context"
	"fmt"
	"regexp"
)

const wpaAuthenticated = "EAPOL authentication completed successfully"

var (
	extraDonglePattern = regexp.MustCompile(`(?m)^.*(wlan[1-9])`)
	ethernetIPPattern  = interfaceIPPattern("eth0")
	wirelessIPPattern  = interfaceIPPattern("wlan0")
)

// interfaceIPPattern matches an ifconfig stanza whose next line carries the
// interface address, in both "inet addr:1.2.3.4 " and "inet 1.2.3.4 " forms.
func interfaceIPPattern(iface string) *regexp.Regexp {
	return regexp.MustCompile(regexp.QuoteMeta(iface) + `.*\n.*inet (?:addr:)?([0-9.]+)[ /]`)
}

// wifiInfo inspects the combined wpa_supplicant log and ifconfig dump.
type wifiInfo struct{}

func (wifiInfo) Inspect(_ context.Context, r *Report, c Content) error {
	text := joinLines(c.Lines)
	if m := extraDonglePattern.FindStringSubmatch(text); m != nil {
		r.AddWarn(fmt.Sprintf("There is at least one extra wireless device: %s", m[1]))
	}

	inspectWPALog(r, c.Lines)
	inspectIfconfig(r, text)
	return nil
}

func inspectWPALog(r *Report, lines []string) {
	NewMatcher(r).AssertExists(lines, wpaAuthenticated,
		"There is no indication of a successfull WPA wireless association")
}

// inspectIfconfig explains how the unit is connected: exactly one finding.
func inspectIfconfig(r *Report, text string) {
	ethernet := firstGroup(ethernetIPPattern, text)
	wireless := firstGroup(wirelessIPPattern, text)

	switch {
	case ethernet == "" && wireless == "":
		r.AddWarn("This unit does *not* have an IP on Ethernet or Wireless")
	case wireless == "":
		r.AddInfo(fmt.Sprintf("This unit is connected through the Ethernet device: %s", ethernet))
	case ethernet == "":
		r.AddInfo(fmt.Sprintf("This unit is connected through the Wireless device: %s", wireless))
	default:
		r.AddError(fmt.Sprintf("This unit is connected through *both* the Wireless and Ethernet devices: %s - %s",
			wireless, ethernet))
	}
}

func firstGroup(re *regexp.Regexp, text string) string {
	if m := re.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

// wpalog is the legacy standalone WPA log; superseded by wifi-info.txt.
type wpalog struct{}

func (wpalog) Inspect(_ context.Context, r *Report, c Content) error {
	inspectWPALog(r, c.Lines)
	return nil
}

// kwifiCache checks the cached wireless credentials.
type kwifiCache struct{}

func (kwifiCache) Inspect(_ context.Context, r *Report, c Content) error {
	if len(c.Lines) == 0 {
		r.AddWarn("Looks like there is no wireless credentials cache, unit is connected over Ethernet")
		return nil
	}
	NewMatcher(r).AssertExists(c.Lines, `encryption": "wpa"`,
		"There is a non-WPA connection in the cache (WEP or Open)")
	return nil
}
