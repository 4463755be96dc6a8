// Package inspector provides the per-file analyzers applied to diagnostic
// bundles, the filename registry that selects them, and the report each
// analyzer fills with info, warn and error findings.
package inspector

import (
	"context"
	"errors"
	"fmt"

	"github.com/olegiv/drfeedback-go/internal/repo"
)

// Inspector examines one file's content and records findings into r.
// Expected-missing data is reported as findings; a non-nil error is returned
// only when the file cannot be inspected at all, and always after the
// explaining finding has been recorded.
type Inspector interface {
	Inspect(ctx context.Context, r *Report, c Content) error
}

// PackageSource supplies the canonical package list for the packages rule.
type PackageSource interface {
	// Packages returns the repository package/version pairs.
	Packages(ctx context.Context) ([]repo.Package, error)
	// Source names the repository in findings (credentials removed).
	Source() string
}

// Deps carries the external collaborators some rules need.
type Deps struct {
	Packages PackageSource
}

// Reason tags why an inspection could not complete.
type Reason string

const (
	ReasonMalformedContent        Reason = "malformed_content"
	ReasonCollaboratorUnavailable Reason = "collaborator_unavailable"
	ReasonPanic                   Reason = "panic"
)

// InspectionError is returned by an inspector that could not finish.
type InspectionError struct {
	Kind   Kind
	Reason Reason
	Err    error
}

func (e *InspectionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
}

func (e *InspectionError) Unwrap() error {
	return e.Err
}

// ReasonOf extracts the failure reason from an inspection error chain.
func ReasonOf(err error) (Reason, bool) {
	var ie *InspectionError
	if errors.As(err, &ie) {
		return ie.Reason, true
	}
	return "", false
}

func malformed(kind Kind, err error) error {
	return &InspectionError{Kind: kind, Reason: ReasonMalformedContent, Err: err}
}

func unavailable(kind Kind, err error) error {
	return &InspectionError{Kind: kind, Reason: ReasonCollaboratorUnavailable, Err: err}
}

// New constructs the inspector for a variant.
func New(kind Kind, deps Deps) (Inspector, error) {
	switch kind {
	case KindAppLogsRaw:
		return appLogsRaw{}, nil
	case KindAppLogsJSON:
		return appLogsJSON{}, nil
	case KindCmdline:
		return cmdline{}, nil
	case KindDmesg:
		return dmesg{}, nil
	case KindHdmiInfo:
		return hdmiInfo{}, nil
	case KindKanuxVersion:
		return kanuxVersion{}, nil
	case KindKwifiCache:
		return kwifiCache{}, nil
	case KindPackages:
		return packages{source: deps.Packages}, nil
	case KindUsbDevices:
		return usbDevices{}, nil
	case KindWifiInfo:
		return wifiInfo{}, nil
	case KindWpalog:
		return wpalog{}, nil
	case KindCPUInfo:
		return cpuInfo{}, nil
	case KindScreenshot:
		return screenshot{}, nil
	case KindBinary, KindConfig, KindProcess, KindXorg, KindSyslog,
		KindLSof, KindContentObjects, KindKanuxStamp, KindScreenLog:
		return noop{}, nil
	default:
		return nil, fmt.Errorf("unknown inspector kind: %d", int(kind))
	}
}
