package bundle

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
)

// maxEntries bounds how many files an archive may contain.
const maxEntries = 1024

// ErrTooLarge is returned when a bundle exceeds the configured size limit.
var ErrTooLarge = errors.New("bundle exceeds maximum size")

// LoadArchive reads a .tar.gz feedback bundle. Regular files are kept in
// archive order under their base name; directories and links are skipped.
// maxSizeMB limits both the archive on disk and the extracted total.
func LoadArchive(id, archivePath string, maxSizeMB int) (*Bundle, error) {
	maxBytes := int64(maxSizeMB) * 1024 * 1024

	if err := checkFile(archivePath, maxBytes); err != nil {
		return nil, err
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open bundle archive: %w", err)
	}
	defer func() { _ = f.Close() }()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("bundle archive is not gzip-compressed: %w", err)
	}
	defer func() { _ = gz.Close() }()

	files, err := readTar(tar.NewReader(gz), maxBytes)
	if err != nil {
		return nil, err
	}
	return New(id, files...)
}

func readTar(tr *tar.Reader, maxBytes int64) ([]File, error) {
	var (
		files []File
		total int64
	)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read bundle archive: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		name := path.Base(path.Clean(hdr.Name))
		if name == "." || name == "/" {
			continue
		}
		if len(files) >= maxEntries {
			return nil, fmt.Errorf("bundle archive has more than %d files", maxEntries)
		}

		remaining := maxBytes - total
		if hdr.Size > remaining {
			return nil, fmt.Errorf("%w of %dMB while reading %s", ErrTooLarge, maxBytes/1024/1024, name)
		}
		data, err := io.ReadAll(io.LimitReader(tr, remaining+1))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s from bundle archive: %w", name, err)
		}
		if int64(len(data)) > remaining {
			return nil, fmt.Errorf("%w of %dMB while reading %s", ErrTooLarge, maxBytes/1024/1024, name)
		}
		total += int64(len(data))
		files = append(files, File{Name: name, Data: data})
	}
	return files, nil
}

// LoadDir reads every regular file directly inside dir, sorted by name.
func LoadDir(id, dir string, maxSizeMB int) (*Bundle, error) {
	maxBytes := int64(maxSizeMB) * 1024 * 1024

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read bundle directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var (
		files []File
		total int64
	)
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		p := filepath.Join(dir, e.Name())
		if err := checkFile(p, maxBytes-total); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read bundle file: %w", err)
		}
		total += int64(len(data))
		files = append(files, File{Name: e.Name(), Data: data})
	}
	return New(id, files...)
}

// checkFile verifies p exists, is readable and is not larger than maxBytes.
func checkFile(p string, maxBytes int64) error {
	info, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("bundle file not found: %s", p)
		}
		return fmt.Errorf("failed to stat bundle file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("bundle path is a directory: %s", p)
	}
	if info.Mode().Perm()&0400 == 0 {
		return fmt.Errorf("bundle file is not readable: %s", p)
	}
	if info.Size() > maxBytes {
		return fmt.Errorf("%w of %dMB (size: %.2fMB): %s",
			ErrTooLarge, maxBytes/1024/1024, float64(info.Size())/1024/1024, p)
	}
	return nil
}
