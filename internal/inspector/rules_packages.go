package inspector

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// internalPackages are shipped for internal use only and never compared.
var internalPackages = map[string]bool{
	"libraspberrypi-bin":  true,
	"libraspberrypi-dev":  true,
	"libraspberrypi-doc":  true,
	"gnome-panel-control": true,
	"openbox-dev":         true,
}

// packages compares the unit's installed "name-version" list against the
// canonical repository index.
type packages struct {
	source PackageSource
}

func (p packages) Inspect(ctx context.Context, r *Report, c Content) error {
	if p.source == nil {
		r.AddError("No package repository is configured to compare installed packages against")
		return unavailable(KindPackages, errors.New("package source not configured"))
	}

	repoPackages, err := p.source.Packages(ctx)
	if err != nil {
		r.AddError(fmt.Sprintf("Could not contact %s to fetch package list", p.source.Source()))
		return unavailable(KindPackages, err)
	}

	for _, pkg := range repoPackages {
		if internalPackages[pkg.Name] {
			continue
		}
		want := pkg.String()

		installed, ok := findInstalled(c.Lines, pkg.Name)
		if !ok {
			r.AddError(fmt.Sprintf(`Package "%s" is not installed`, want))
			continue
		}
		if installed != want {
			r.AddError(fmt.Sprintf(`Package version mismatch, installed: "%s" repo: "%s"`, installed, want))
		}
	}
	return nil
}

// findInstalled returns the first installed line that starts with name.
// The whole line is the installed "name-version" string.
func findInstalled(lines []string, name string) (string, bool) {
	for _, line := range lines {
		if strings.HasPrefix(line, name) {
			return line, true
		}
	}
	return "", false
}
