package bundle

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKeepsOrder(t *testing.T) {
	b, err := New("r-1",
		File{Name: "dmesg.txt", Data: []byte("a")},
		File{Name: "cmdline.txt", Data: []byte("b")},
		File{Name: "app-logs.txt", Data: []byte("c")},
	)
	require.NoError(t, err)

	assert.Equal(t, "r-1", b.ID())
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, []string{"dmesg.txt", "cmdline.txt", "app-logs.txt"}, b.Names())

	f, ok := b.Get("cmdline.txt")
	require.True(t, ok)
	assert.Equal(t, []byte("b"), f.Data)

	_, ok = b.Get("missing.txt")
	assert.False(t, ok)
}

func TestNewRejectsDuplicates(t *testing.T) {
	_, err := New("", File{Name: "dmesg.txt"}, File{Name: "dmesg.txt"})
	assert.ErrorIs(t, err, ErrDuplicateFile)
}

func TestNewRejectsEmptyName(t *testing.T) {
	_, err := New("", File{Name: ""})
	assert.Error(t, err)
}

func TestNewGeneratesID(t *testing.T) {
	b, err := New("")
	require.NoError(t, err)

	_, err = uuid.Parse(b.ID())
	assert.NoError(t, err)
	assert.Equal(t, 0, b.Len())
}

func TestFilesIsCopy(t *testing.T) {
	b, err := New("", File{Name: "dmesg.txt"})
	require.NoError(t, err)

	files := b.Files()
	files[0].Name = "changed"
	assert.Equal(t, []string{"dmesg.txt"}, b.Names())
}

type tarEntry struct {
	name     string
	body     string
	typeflag byte
}

func writeArchive(t *testing.T, entries []tarEntry) string {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: 0644, Size: int64(len(e.body)), Typeflag: e.typeflag}
		if e.typeflag == tar.TypeDir {
			hdr.Size = 0
			hdr.Mode = 0755
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if e.typeflag == tar.TypeReg {
			_, err := tw.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	p := filepath.Join(t.TempDir(), "bundle.tar.gz")
	require.NoError(t, os.WriteFile(p, buf.Bytes(), 0600))
	return p
}

func TestLoadArchive(t *testing.T) {
	p := writeArchive(t, []tarEntry{
		{name: "tmp/feedback/", typeflag: tar.TypeDir},
		{name: "tmp/feedback/kanux_version.txt", body: "2016-01-01\nKanux Beta v3.2\n", typeflag: tar.TypeReg},
		{name: "tmp/feedback/cmdline.txt", body: "ipv6.disable=1", typeflag: tar.TypeReg},
	})

	b, err := LoadArchive("r-7", p, 10)
	require.NoError(t, err)

	assert.Equal(t, "r-7", b.ID())
	assert.Equal(t, []string{"kanux_version.txt", "cmdline.txt"}, b.Names())

	f, ok := b.Get("cmdline.txt")
	require.True(t, ok)
	assert.Equal(t, "ipv6.disable=1", string(f.Data))
}

func TestLoadArchiveDuplicateBaseName(t *testing.T) {
	p := writeArchive(t, []tarEntry{
		{name: "a/dmesg.txt", body: "x", typeflag: tar.TypeReg},
		{name: "b/dmesg.txt", body: "y", typeflag: tar.TypeReg},
	})

	_, err := LoadArchive("", p, 10)
	assert.ErrorIs(t, err, ErrDuplicateFile)
}

func TestLoadArchiveTooLarge(t *testing.T) {
	big := string(bytes.Repeat([]byte("x"), 1024*1024+1))
	p := writeArchive(t, []tarEntry{
		{name: "syslog.txt", body: big, typeflag: tar.TypeReg},
	})

	_, err := LoadArchive("", p, 1)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestLoadArchiveErrors(t *testing.T) {
	_, err := LoadArchive("", filepath.Join(t.TempDir(), "missing.tar.gz"), 10)
	assert.Error(t, err)

	plain := filepath.Join(t.TempDir(), "plain.tar.gz")
	require.NoError(t, os.WriteFile(plain, []byte("not gzip"), 0600))
	_, err = LoadArchive("", plain, 10)
	assert.Error(t, err)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wifi-info.txt"), []byte("eth0"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cmdline.txt"), []byte("quiet"), 0600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0755))

	b, err := LoadDir("", dir, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"cmdline.txt", "wifi-info.txt"}, b.Names())
}

func TestLoadDirMissing(t *testing.T) {
	_, err := LoadDir("", filepath.Join(t.TempDir(), "nope"), 10)
	assert.Error(t, err)
}
