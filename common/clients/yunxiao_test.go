package clients

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scaleflower/otrs-updater/common/models"
)

func releaseMetaForTest(tag, tarballURL string) *models.ReleaseMetadata {
	return &models.ReleaseMetadata{
		TagName:    tag,
		Name:       tag,
		TarballURL: tarballURL,
		Source:     "github",
	}
}

func TestYunxiaoSource_FetchLatest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/repository/tags"))
		assert.Equal(t, "secret", r.Header.Get("PRIVATE-TOKEN"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[
			{"name": "v2.1.0", "message": "release notes", "commit": {"committed_date": "2025-07-15T08:30:00Z"}},
			{"name": "v2.0.0", "message": "", "commit": {"committed_date": "2025-05-01T08:30:00Z"}}
		]`)
	}))
	defer server.Close()

	source := NewYunxiaoSource("12345/otrs-web", "secret", 5*time.Second, testLogger(), WithYunxiaoAPIBase(server.URL))

	meta, err := source.FetchLatest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v2.1.0", meta.TagName)
	assert.Equal(t, "release notes", meta.Body)
	assert.Equal(t, "yunxiao", meta.Source)
	assert.Contains(t, meta.TarballURL, "archive.tar.gz")
	require.NotNil(t, meta.PublishedAt)
}

func TestYunxiaoSource_FetchLatest_NoTags(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	}))
	defer server.Close()

	source := NewYunxiaoSource("12345/otrs-web", "", 5*time.Second, testLogger(), WithYunxiaoAPIBase(server.URL))

	_, err := source.FetchLatest(context.Background())
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestYunxiaoSource_FetchByTag_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	source := NewYunxiaoSource("12345/otrs-web", "", 5*time.Second, testLogger(), WithYunxiaoAPIBase(server.URL))

	_, err := source.FetchByTag(context.Background(), "v0.0.1")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestYunxiaoSource_FetchLatest_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	source := NewYunxiaoSource("12345/otrs-web", "", 5*time.Second, testLogger(), WithYunxiaoAPIBase(server.URL))

	_, err := source.FetchLatest(context.Background())
	require.Error(t, err)

	var rl *RateLimitedError
	assert.ErrorAs(t, err, &rl)
}
