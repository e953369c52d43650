package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/scaleflower/otrs-updater/common/models"
)

const (
	yunxiaoAPIBase   = "https://codeup.aliyun.com/api/v4"
	yunxiaoUserAgent = "otrs-update-agent"
)

// YunxiaoSource fetches releases from Aliyun Yunxiao (Codeup). Codeup has no
// release object, so tags stand in for releases and archives are fetched via
// the repository archive endpoint.
type YunxiaoSource struct {
	project string
	token   string
	apiBase string
	client  *http.Client
	logger  Logger
}

// YunxiaoOption configures a YunxiaoSource
type YunxiaoOption func(*YunxiaoSource)

// WithYunxiaoAPIBase overrides the API base URL (used in tests)
func WithYunxiaoAPIBase(base string) YunxiaoOption {
	return func(s *YunxiaoSource) {
		s.apiBase = base
	}
}

// NewYunxiaoSource creates a release source backed by the Codeup API
func NewYunxiaoSource(project, token string, timeout time.Duration, logger Logger, opts ...YunxiaoOption) *YunxiaoSource {
	s := &YunxiaoSource{
		project: project,
		token:   token,
		apiBase: yunxiaoAPIBase,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name identifies the provider
func (s *YunxiaoSource) Name() string { return "yunxiao" }

// yunxiaoTag mirrors the subset of the Codeup tag payload we consume
type yunxiaoTag struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Commit  struct {
		CommittedDate string `json:"committed_date"`
	} `json:"commit"`
}

// FetchLatest returns metadata for the most recently created tag
func (s *YunxiaoSource) FetchLatest(ctx context.Context) (*models.ReleaseMetadata, error) {
	endpoint := fmt.Sprintf("%s/projects/%s/repository/tags?order_by=updated&sort=desc", s.apiBase, url.PathEscape(s.project))

	var tags []yunxiaoTag
	if err := s.getJSON(ctx, endpoint, "", &tags); err != nil {
		return nil, err
	}
	if len(tags) == 0 {
		return nil, &NotFoundError{}
	}

	return s.releaseFromTag(&tags[0]), nil
}

// FetchByTag returns metadata for one specific tag
func (s *YunxiaoSource) FetchByTag(ctx context.Context, tag string) (*models.ReleaseMetadata, error) {
	endpoint := fmt.Sprintf("%s/projects/%s/repository/tags/%s", s.apiBase, url.PathEscape(s.project), url.PathEscape(tag))

	var payload yunxiaoTag
	if err := s.getJSON(ctx, endpoint, tag, &payload); err != nil {
		return nil, err
	}
	if payload.Name == "" {
		return nil, &NotFoundError{Tag: tag}
	}

	return s.releaseFromTag(&payload), nil
}

// Download streams the tag archive to disk and returns the local path
func (s *YunxiaoSource) Download(ctx context.Context, meta *models.ReleaseMetadata, downloadRoot string) (string, error) {
	archiveURL := meta.DownloadURL()
	if archiveURL == "" {
		return "", &DownloadError{URL: archiveURL, Err: fmt.Errorf("release metadata contains no download URL")}
	}

	archiveDir := filepath.Join(downloadRoot, meta.TagName)
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", &DownloadError{URL: archiveURL, Err: err}
	}
	archivePath := filepath.Join(archiveDir, meta.TagName+meta.ArchiveExt())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, archiveURL, nil)
	if err != nil {
		return "", &DownloadError{URL: archiveURL, Err: err}
	}
	req.Header.Set("User-Agent", yunxiaoUserAgent)
	if s.token != "" {
		req.Header.Set("PRIVATE-TOKEN", s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return "", &DownloadError{URL: archiveURL, Err: fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)}
	}

	written, err := streamToFile(resp.Body, archivePath, resp.ContentLength, s.logger)
	if err != nil {
		return "", &DownloadError{URL: archiveURL, Err: err}
	}

	if resp.ContentLength > 0 && written != resp.ContentLength {
		return "", &DownloadError{URL: archiveURL, Err: fmt.Errorf("truncated transfer: got %d of %d bytes", written, resp.ContentLength)}
	}

	s.logger.Info("downloaded release archive", "path", archivePath, "bytes", written)
	return archivePath, nil
}

func (s *YunxiaoSource) getJSON(ctx context.Context, endpoint, tag string, out interface{}) error {
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", yunxiaoUserAgent)
		if s.token != "" {
			req.Header.Set("PRIVATE-TOKEN", s.token)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return &NetworkError{Err: err}
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(&NotFoundError{Tag: tag})
		case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
			return backoff.Permanent(rateLimitError(resp))
		case resp.StatusCode != http.StatusOK:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
			return backoff.Permanent(fmt.Errorf("yunxiao lookup failed (%d): %s", resp.StatusCode, body))
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode yunxiao payload: %w", err))
		}
		return nil
	}

	return backoff.Retry(operation, backoff.WithContext(fetchBackoff(), ctx))
}

func (s *YunxiaoSource) releaseFromTag(tag *yunxiaoTag) *models.ReleaseMetadata {
	meta := &models.ReleaseMetadata{
		TagName: tag.Name,
		Name:    tag.Name,
		Body:    tag.Message,
		TarballURL: fmt.Sprintf("%s/projects/%s/repository/archive.tar.gz?sha=%s",
			s.apiBase, url.PathEscape(s.project), url.QueryEscape(tag.Name)),
		Source: "yunxiao",
	}
	if tag.Commit.CommittedDate != "" {
		if t, err := time.Parse(time.RFC3339, tag.Commit.CommittedDate); err == nil {
			meta.PublishedAt = &t
		}
	}
	return meta
}
