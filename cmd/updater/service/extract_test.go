package service

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scaleflower/otrs-updater/cmd/updater/security"
)

func writeTarGz(t *testing.T, entries map[string]string) string {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	for name, content := range entries {
		hdr := &tar.Header{
			Name: name,
			Mode: 0o644,
			Size: int64(len(content)),
		}
		require.NoError(t, tw.WriteHeader(hdr))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}

	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	path := filepath.Join(t.TempDir(), "release.tar.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func writeZip(t *testing.T, entries map[string]string) string {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	path := filepath.Join(t.TempDir(), "release.zip")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestPackageExtractor_TarGz(t *testing.T) {
	archive := writeTarGz(t, map[string]string{
		"otrs-web-1.3.0/app.py":               "print('hello')",
		"otrs-web-1.3.0/templates/index.html": "<html></html>",
	})

	extractor := NewPackageExtractor(testLogger())
	scratch, err := extractor.Extract(archive)
	require.NoError(t, err)
	defer os.RemoveAll(scratch)

	data, err := os.ReadFile(filepath.Join(scratch, "otrs-web-1.3.0", "app.py"))
	require.NoError(t, err)
	assert.Equal(t, "print('hello')", string(data))

	root, err := extractor.DiscoverRoot(scratch)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(scratch, "otrs-web-1.3.0"), root)
}

func TestPackageExtractor_Zip(t *testing.T) {
	archive := writeZip(t, map[string]string{
		"app.py":    "print('hi')",
		"config.py": "DEBUG = False",
	})

	extractor := NewPackageExtractor(testLogger())
	scratch, err := extractor.Extract(archive)
	require.NoError(t, err)
	defer os.RemoveAll(scratch)

	data, err := os.ReadFile(filepath.Join(scratch, "config.py"))
	require.NoError(t, err)
	assert.Equal(t, "DEBUG = False", string(data))

	// No common root: scratch itself is the root
	root, err := extractor.DiscoverRoot(scratch)
	require.NoError(t, err)
	assert.Equal(t, scratch, root)
}

func TestPackageExtractor_RejectsTraversal(t *testing.T) {
	archive := writeTarGz(t, map[string]string{
		"../../etc/passwd": "root:x:0:0",
	})

	extractor := NewPackageExtractor(testLogger())
	_, err := extractor.Extract(archive)
	require.Error(t, err)

	var se *security.SecurityError
	assert.ErrorAs(t, err, &se)
}

func TestPackageExtractor_RejectsSymlink(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:     "evil-link",
		Typeflag: tar.TypeSymlink,
		Linkname: "/etc/passwd",
	}))
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	path := filepath.Join(t.TempDir(), "evil.tar.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	extractor := NewPackageExtractor(testLogger())
	_, err := extractor.Extract(path)
	require.Error(t, err)

	var se *security.SecurityError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "symlink member", se.Reason)
}

func TestPackageExtractor_LateMaliciousMemberWritesNothing(t *testing.T) {
	// A benign member first, the traversal attempt last: the whole archive
	// is validated before the first write, so nothing is extracted
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, entry := range []struct{ name, content string }{
		{"app.py", "print('ok')"},
		{"../../etc/passwd", "root:x:0:0"},
	} {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: entry.name,
			Mode: 0o644,
			Size: int64(len(entry.content)),
		}))
		_, err := tw.Write([]byte(entry.content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	path := filepath.Join(t.TempDir(), "mixed.tar.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	extractor := NewPackageExtractor(testLogger())
	_, err := extractor.Extract(path)
	require.Error(t, err)

	var se *security.SecurityError
	assert.ErrorAs(t, err, &se)
}

func TestPackageExtractor_ZipRejectsTraversal(t *testing.T) {
	archive := writeZip(t, map[string]string{
		"app.py":           "print('ok')",
		"../../etc/passwd": "root:x:0:0",
	})

	extractor := NewPackageExtractor(testLogger())
	_, err := extractor.Extract(archive)
	require.Error(t, err)

	var se *security.SecurityError
	assert.ErrorAs(t, err, &se)
}

func TestPackageExtractor_ZipRejectsSymlink(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	hdr := &zip.FileHeader{Name: "evil-link"}
	hdr.SetMode(os.ModeSymlink | 0o777)
	w, err := zw.CreateHeader(hdr)
	require.NoError(t, err)
	_, err = w.Write([]byte("/etc/passwd"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	path := filepath.Join(t.TempDir(), "evil.zip")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	extractor := NewPackageExtractor(testLogger())
	_, err = extractor.Extract(path)
	require.Error(t, err)

	var se *security.SecurityError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "symlink member", se.Reason)
}

func TestPackageExtractor_UnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "release.rar")
	require.NoError(t, os.WriteFile(path, []byte("not an archive"), 0o644))

	extractor := NewPackageExtractor(testLogger())
	_, err := extractor.Extract(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported archive format")
}
