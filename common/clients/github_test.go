package clients

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scaleflower/otrs-updater/common/logger"
)

func testLogger() *logger.Logger {
	return logger.New("error", "text")
}

func TestGitHubSource_FetchLatest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/scaleflower/otrs-web/releases/latest", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"tag_name": "v1.3.0",
			"name": "Release 1.3.0",
			"body": "Bug fixes",
			"html_url": "https://example.com/releases/v1.3.0",
			"published_at": "2025-06-01T10:00:00Z",
			"tarball_url": "https://example.com/tarball/v1.3.0",
			"zipball_url": "https://example.com/zipball/v1.3.0"
		}`)
	}))
	defer server.Close()

	source := NewGitHubSource("scaleflower/otrs-web", "secret", 5*time.Second, testLogger(), WithGitHubAPIBase(server.URL))

	meta, err := source.FetchLatest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v1.3.0", meta.TagName)
	assert.Equal(t, "Release 1.3.0", meta.Name)
	assert.Equal(t, "Bug fixes", meta.Body)
	assert.Equal(t, "github", meta.Source)
	require.NotNil(t, meta.PublishedAt)
	assert.Equal(t, 2025, meta.PublishedAt.Year())
}

func TestGitHubSource_FetchByTag_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	source := NewGitHubSource("scaleflower/otrs-web", "", 5*time.Second, testLogger(), WithGitHubAPIBase(server.URL))

	_, err := source.FetchByTag(context.Background(), "v9.9.9")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "v9.9.9", nf.Tag)
}

func TestGitHubSource_FetchLatest_RateLimited(t *testing.T) {
	resetAt := time.Now().Add(30 * time.Minute).Unix()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", resetAt))
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	source := NewGitHubSource("scaleflower/otrs-web", "", 5*time.Second, testLogger(), WithGitHubAPIBase(server.URL))

	_, err := source.FetchLatest(context.Background())
	require.Error(t, err)

	var rl *RateLimitedError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, resetAt, rl.ResetAt.Unix())
}

func TestGitHubSource_Download(t *testing.T) {
	payload := []byte("pretend this is a tarball")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", len(payload)))
		w.Write(payload)
	}))
	defer server.Close()

	source := NewGitHubSource("scaleflower/otrs-web", "", 5*time.Second, testLogger())
	meta := releaseMetaForTest("v1.3.0", server.URL)

	downloadRoot := t.TempDir()
	path, err := source.Download(context.Background(), meta, downloadRoot)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(downloadRoot, "v1.3.0", "v1.3.0.tar.gz"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestGitHubSource_Download_Truncated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		w.Write([]byte("short"))
	}))
	defer server.Close()

	source := NewGitHubSource("scaleflower/otrs-web", "", 5*time.Second, testLogger())
	meta := releaseMetaForTest("v1.3.0", server.URL)

	_, err := source.Download(context.Background(), meta, t.TempDir())
	require.Error(t, err)

	var de *DownloadError
	assert.ErrorAs(t, err, &de)
}

func TestGitHubSource_Download_NoURL(t *testing.T) {
	source := NewGitHubSource("scaleflower/otrs-web", "", 5*time.Second, testLogger())
	meta := releaseMetaForTest("v1.3.0", "")

	_, err := source.Download(context.Background(), meta, t.TempDir())
	require.Error(t, err)
}
