// Package bundle holds the files uploaded for one feedback report and loads
// them from a gzip-compressed tar archive or a local directory.
package bundle

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrDuplicateFile is returned when two files in a bundle share a name.
var ErrDuplicateFile = errors.New("duplicate file in bundle")

// File is one named diagnostic file and its raw bytes.
type File struct {
	Name string
	Data []byte
}

// Bundle is an ordered, immutable set of uniquely named files.
type Bundle struct {
	id    string
	files []File
	index map[string]int
}

// New builds a bundle in the given file order. An empty id is replaced by a
// random UUID.
func New(id string, files ...File) (*Bundle, error) {
	if id == "" {
		id = uuid.NewString()
	}

	b := &Bundle{
		id:    id,
		files: make([]File, 0, len(files)),
		index: make(map[string]int, len(files)),
	}
	for _, f := range files {
		if f.Name == "" {
			return nil, errors.New("bundle file name cannot be empty")
		}
		if _, dup := b.index[f.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateFile, f.Name)
		}
		b.index[f.Name] = len(b.files)
		b.files = append(b.files, File{Name: f.Name, Data: f.Data})
	}
	return b, nil
}

// ID identifies the feedback report the bundle belongs to.
func (b *Bundle) ID() string {
	return b.id
}

// Files returns the files in bundle order. The slice is a copy; the byte
// slices are shared and must not be modified.
func (b *Bundle) Files() []File {
	out := make([]File, len(b.files))
	copy(out, b.files)
	return out
}

// Names returns the filenames in bundle order.
func (b *Bundle) Names() []string {
	out := make([]string, len(b.files))
	for i, f := range b.files {
		out[i] = f.Name
	}
	return out
}

func (b *Bundle) Len() int {
	return len(b.files)
}

// Get returns the named file.
func (b *Bundle) Get(name string) (File, bool) {
	i, ok := b.index[name]
	if !ok {
		return File{}, false
	}
	return b.files[i], true
}
