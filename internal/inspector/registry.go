package inspector

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Kind identifies one inspector variant. The set is closed.
type Kind int

// Inspector variants.
const (
	KindAppLogsRaw Kind = iota + 1
	KindAppLogsJSON
	KindCmdline
	KindConfig
	KindDmesg
	KindBinary
	KindScreenLog
	KindHdmiInfo
	KindKanuxVersion
	KindKanuxStamp
	KindKwifiCache
	KindPackages
	KindProcess
	KindSyslog
	KindUsbDevices
	KindWpalog
	KindWifiInfo
	KindCPUInfo
	KindXorg
	KindLSof
	KindScreenshot
	KindContentObjects
)

var kindNames = map[Kind]string{
	KindAppLogsRaw:     "AppLogsRaw",
	KindAppLogsJSON:    "AppLogsJson",
	KindCmdline:        "Cmdline",
	KindConfig:         "Config",
	KindDmesg:          "Dmesg",
	KindBinary:         "Binary",
	KindScreenLog:      "ScreenLog",
	KindHdmiInfo:       "HdmiInfo",
	KindKanuxVersion:   "KanuxVersion",
	KindKanuxStamp:     "KanuxStamp",
	KindKwifiCache:     "KwifiCache",
	KindPackages:       "Packages",
	KindProcess:        "Process",
	KindSyslog:         "Syslog",
	KindUsbDevices:     "UsbDevices",
	KindWpalog:         "Wpalog",
	KindWifiInfo:       "WifiInfo",
	KindCPUInfo:        "CPUInfo",
	KindXorg:           "Xorg",
	KindLSof:           "LSof",
	KindScreenshot:     "Screenshot",
	KindContentObjects: "ContentObjects",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// CrashDumpPrefix marks core dumps, which resolve to the binary inspector
// unless registered exactly.
const CrashDumpPrefix = "core-"

// Spec is one registry entry.
type Spec struct {
	Filename  string
	Kind      Kind
	Detection Detection
}

// ErrUnregisteredFileType is matched by every UnregisteredFileTypeError.
var ErrUnregisteredFileType = errors.New("unregistered file type")

// UnregisteredFileTypeError is returned by Resolve for unknown filenames.
type UnregisteredFileTypeError struct {
	Filename string
}

func (e *UnregisteredFileTypeError) Error() string {
	return fmt.Sprintf("no inspector registered for file %q", e.Filename)
}

func (e *UnregisteredFileTypeError) Is(target error) bool {
	return target == ErrUnregisteredFileType
}

// Registry maps filenames to inspector variants.
// It provides thread-safe access; the default registry is never mutated
// after construction.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]Spec
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		specs: make(map[string]Spec),
	}
}

// Register adds a filename entry.
// If the filename is already registered, it will be overwritten.
func (r *Registry) Register(spec Spec) error {
	if spec.Filename == "" {
		return fmt.Errorf("inspector filename cannot be empty")
	}
	if _, ok := kindNames[spec.Kind]; !ok {
		return fmt.Errorf("invalid inspector kind for %q: %d", spec.Filename, int(spec.Kind))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.specs[spec.Filename] = spec
	return nil
}

// Lookup retrieves an exactly registered filename.
func (r *Registry) Lookup(filename string) (Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	spec, ok := r.specs[filename]
	return spec, ok
}

// Resolve returns the entry responsible for filename: an exact match first,
// then the binary inspector for crash dumps, else UnregisteredFileTypeError.
func (r *Registry) Resolve(filename string) (Spec, error) {
	if spec, ok := r.Lookup(filename); ok {
		return spec, nil
	}
	if strings.HasPrefix(filename, CrashDumpPrefix) {
		return Spec{Filename: filename, Kind: KindBinary, Detection: DetectBinary}, nil
	}
	return Spec{}, &UnregisteredFileTypeError{Filename: filename}
}

// Has checks if a filename is registered exactly.
func (r *Registry) Has(filename string) bool {
	_, ok := r.Lookup(filename)
	return ok
}

// List returns all registered entries sorted by filename.
func (r *Registry) List() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]Spec, 0, len(r.specs))
	for _, s := range r.specs {
		specs = append(specs, s)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Filename < specs[j].Filename })
	return specs
}

// defaultSpecs is the registration table for feedback bundles.
var defaultSpecs = []Spec{
	{Filename: "app-logs.txt", Kind: KindAppLogsRaw},
	{Filename: "app-logs-json.txt", Kind: KindAppLogsJSON},
	{Filename: "cmdline.txt", Kind: KindCmdline},
	{Filename: "config.txt", Kind: KindConfig},
	{Filename: "dmesg.txt", Kind: KindDmesg},
	{Filename: "edid.dat", Kind: KindBinary, Detection: DetectBinary},
	{Filename: "screen-log.txt", Kind: KindScreenLog},
	{Filename: "hdmi-info.txt", Kind: KindHdmiInfo},
	{Filename: "kanux_version.txt", Kind: KindKanuxVersion},
	{Filename: "kanux_stamp.txt", Kind: KindKanuxStamp},
	{Filename: "kwificache.txt", Kind: KindKwifiCache},
	{Filename: "packages.txt", Kind: KindPackages},
	{Filename: "process.txt", Kind: KindProcess},
	{Filename: "syslog.txt", Kind: KindSyslog},
	{Filename: "usbdevices.txt", Kind: KindUsbDevices},
	{Filename: "wpalog.txt", Kind: KindWpalog},
	{Filename: "wifi-info.txt", Kind: KindWifiInfo},
	{Filename: "cpu-info.txt", Kind: KindCPUInfo},
	{Filename: "xorg-log.txt", Kind: KindXorg},
	{Filename: "lsof.txt", Kind: KindLSof},
	{Filename: "screenshot.png", Kind: KindScreenshot},
	{Filename: "content-objects.txt", Kind: KindContentObjects},
}

var defaultRegistry = sync.OnceValue(func() *Registry {
	r := NewRegistry()
	for _, spec := range defaultSpecs {
		if err := r.Register(spec); err != nil {
			panic(fmt.Sprintf("invalid default inspector table: %v", err))
		}
	}
	return r
})

// DefaultRegistry returns the process-wide registration table.
func DefaultRegistry() *Registry {
	return defaultRegistry()
}

// ParseKind converts a variant name (e.g. "HdmiInfo") to its Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("invalid inspector kind: %q", s)
}
