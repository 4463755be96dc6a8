// Package repo fetches and parses the canonical Debian package index that
// installed package lists are compared against.
package repo

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Package is one name/version pair from the repository index.
type Package struct {
	Name    string
	Version string
}

// String returns the "name-version" form used by installed package lists.
func (p Package) String() string {
	return p.Name + "-" + p.Version
}

const (
	packageField = "Package: "
	versionField = "Version: "

	// maxIndexLine bounds a single control-file line (long Description fields).
	maxIndexLine = 1024 * 1024
)

// Parse reads a control-file index (a sequence of stanzas with
// "Package: <name>" and "Version: <version>" lines). A Version line is paired
// with the most recent Package line of the same stanza; stanzas without both
// fields are skipped.
func Parse(r io.Reader) ([]Package, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxIndexLine)

	var (
		pkgs []Package
		name string
	)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")

		switch {
		case line == "":
			name = ""
		case strings.HasPrefix(line, packageField):
			name = strings.TrimSpace(line[len(packageField):])
		case strings.HasPrefix(line, versionField) && name != "":
			pkgs = append(pkgs, Package{
				Name:    name,
				Version: strings.TrimSpace(line[len(versionField):]),
			})
			name = ""
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read package index: %w", err)
	}
	return pkgs, nil
}
