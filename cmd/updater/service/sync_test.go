package service

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestProjectSynchronizer_PreservesConfiguredPaths(t *testing.T) {
	live := t.TempDir()
	source := t.TempDir()

	writeTree(t, live, map[string]string{
		"secrets.cfg": "live-secret",
		"data/x.txt":  "live-data",
		"app.py":      "old code",
	})
	writeTree(t, source, map[string]string{
		"secrets.cfg": "release-secret",
		"data/x.txt":  "release-data",
		"app.py":      "new code",
		"new.py":      "brand new",
	})

	syncer := NewProjectSynchronizer(live, []string{"secrets.cfg", "data/"}, testLogger())
	result, err := syncer.Sync(source)
	require.NoError(t, err)

	// Preserved entries untouched
	assert.Equal(t, "live-secret", readFile(t, filepath.Join(live, "secrets.cfg")))
	assert.Equal(t, "live-data", readFile(t, filepath.Join(live, "data", "x.txt")))

	// Everything else mirrors the release
	assert.Equal(t, "new code", readFile(t, filepath.Join(live, "app.py")))
	assert.Equal(t, "brand new", readFile(t, filepath.Join(live, "new.py")))

	assert.Equal(t, 2, result.Copied)
	assert.Equal(t, 2, result.Skipped)
}

func TestProjectSynchronizer_AdditiveOnly(t *testing.T) {
	live := t.TempDir()
	source := t.TempDir()

	writeTree(t, live, map[string]string{
		"runtime/generated.log": "keep me",
	})
	writeTree(t, source, map[string]string{
		"app.py": "code",
	})

	syncer := NewProjectSynchronizer(live, nil, testLogger())
	result, err := syncer.Sync(source)
	require.NoError(t, err)

	// Files absent from the release survive
	assert.FileExists(t, filepath.Join(live, "runtime", "generated.log"))
	assert.Equal(t, 1, result.Copied)
	assert.Equal(t, 0, result.Skipped)
}

func TestProjectSynchronizer_CreatesParentDirs(t *testing.T) {
	live := t.TempDir()
	source := t.TempDir()

	writeTree(t, source, map[string]string{
		"a/b/c/deep.txt": "nested",
	})

	syncer := NewProjectSynchronizer(live, nil, testLogger())
	result, err := syncer.Sync(source)
	require.NoError(t, err)

	assert.Equal(t, "nested", readFile(t, filepath.Join(live, "a", "b", "c", "deep.txt")))
	assert.Equal(t, 1, result.Copied)
}

func TestProjectSynchronizer_PreservedFileInsideWalkedDir(t *testing.T) {
	live := t.TempDir()
	source := t.TempDir()

	writeTree(t, live, map[string]string{
		"config/secrets.cfg": "live",
	})
	writeTree(t, source, map[string]string{
		"config/secrets.cfg": "release",
		"config/app.cfg":     "release",
	})

	syncer := NewProjectSynchronizer(live, []string{"config/secrets.cfg"}, testLogger())
	result, err := syncer.Sync(source)
	require.NoError(t, err)

	assert.Equal(t, "live", readFile(t, filepath.Join(live, "config", "secrets.cfg")))
	assert.Equal(t, "release", readFile(t, filepath.Join(live, "config", "app.cfg")))
	assert.Equal(t, 1, result.Copied)
	assert.Equal(t, 1, result.Skipped)
}
