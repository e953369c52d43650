package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/scaleflower/otrs-updater/common/models"
)

const (
	githubAPIBase   = "https://api.github.com"
	githubUserAgent = "otrs-update-agent"
)

// GitHubSource fetches releases from the GitHub Releases REST API
type GitHubSource struct {
	repo    string
	token   string
	apiBase string
	client  *http.Client
	logger  Logger
}

// GitHubOption configures a GitHubSource
type GitHubOption func(*GitHubSource)

// WithGitHubAPIBase overrides the API base URL (used in tests)
func WithGitHubAPIBase(base string) GitHubOption {
	return func(s *GitHubSource) {
		s.apiBase = base
	}
}

// WithGitHubHTTPClient overrides the HTTP client
func WithGitHubHTTPClient(client *http.Client) GitHubOption {
	return func(s *GitHubSource) {
		s.client = client
	}
}

// NewGitHubSource creates a release source backed by the GitHub API.
// The token is optional; unauthenticated requests fall under much stricter
// rate limits.
func NewGitHubSource(repo, token string, timeout time.Duration, logger Logger, opts ...GitHubOption) *GitHubSource {
	s := &GitHubSource{
		repo:    repo,
		token:   token,
		apiBase: githubAPIBase,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name identifies the provider
func (s *GitHubSource) Name() string { return "github" }

// FetchLatest returns metadata for the most recent published release
func (s *GitHubSource) FetchLatest(ctx context.Context) (*models.ReleaseMetadata, error) {
	url := fmt.Sprintf("%s/repos/%s/releases/latest", s.apiBase, s.repo)
	return s.fetchRelease(ctx, url, "")
}

// FetchByTag returns metadata for one specific release tag
func (s *GitHubSource) FetchByTag(ctx context.Context, tag string) (*models.ReleaseMetadata, error) {
	url := fmt.Sprintf("%s/repos/%s/releases/tags/%s", s.apiBase, s.repo, tag)
	return s.fetchRelease(ctx, url, tag)
}

// githubRelease mirrors the subset of the GitHub release payload we consume
type githubRelease struct {
	TagName     string `json:"tag_name"`
	Name        string `json:"name"`
	Body        string `json:"body"`
	HTMLURL     string `json:"html_url"`
	PublishedAt string `json:"published_at"`
	TarballURL  string `json:"tarball_url"`
	ZipballURL  string `json:"zipball_url"`
}

func (s *GitHubSource) fetchRelease(ctx context.Context, url, tag string) (*models.ReleaseMetadata, error) {
	var meta *models.ReleaseMetadata

	// Transient transport failures are retried with bounded backoff;
	// HTTP-level outcomes (404, 403, ...) are terminal.
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/vnd.github+json")
		req.Header.Set("User-Agent", githubUserAgent)
		if s.token != "" {
			req.Header.Set("Authorization", "Bearer "+s.token)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return &NetworkError{Err: err}
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(&NotFoundError{Tag: tag})
		case resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0":
			return backoff.Permanent(rateLimitError(resp))
		case resp.StatusCode != http.StatusOK:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
			return backoff.Permanent(fmt.Errorf("github release lookup failed (%d): %s", resp.StatusCode, body))
		}

		var payload githubRelease
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return backoff.Permanent(fmt.Errorf("decode github release payload: %w", err))
		}

		if payload.TagName == "" && payload.Name == "" {
			return backoff.Permanent(fmt.Errorf("github release payload missing tag name"))
		}

		meta = releaseFromGitHub(&payload)
		return nil
	}

	policy := backoff.WithContext(fetchBackoff(), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}

	s.logger.Debug("fetched github release metadata", "repo", s.repo, "tag", meta.TagName)
	return meta, nil
}

// Download streams the release archive to disk and returns the local path
func (s *GitHubSource) Download(ctx context.Context, meta *models.ReleaseMetadata, downloadRoot string) (string, error) {
	url := meta.DownloadURL()
	if url == "" {
		return "", &DownloadError{URL: url, Err: fmt.Errorf("release metadata contains no download URL")}
	}

	archiveDir := filepath.Join(downloadRoot, meta.TagName)
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", &DownloadError{URL: url, Err: err}
	}
	archivePath := filepath.Join(archiveDir, meta.TagName+meta.ArchiveExt())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &DownloadError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", githubUserAgent)
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0" {
		return "", rateLimitError(resp)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return "", &DownloadError{URL: url, Err: fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)}
	}

	written, err := streamToFile(resp.Body, archivePath, resp.ContentLength, s.logger)
	if err != nil {
		return "", &DownloadError{URL: url, Err: err}
	}

	if resp.ContentLength > 0 && written != resp.ContentLength {
		return "", &DownloadError{URL: url, Err: fmt.Errorf("truncated transfer: got %d of %d bytes", written, resp.ContentLength)}
	}

	s.logger.Info("downloaded release archive", "path", archivePath, "bytes", written)
	return archivePath, nil
}

// rateLimitError builds a RateLimitedError from GitHub-style rate limit headers
func rateLimitError(resp *http.Response) *RateLimitedError {
	e := &RateLimitedError{}
	if reset := resp.Header.Get("X-RateLimit-Reset"); reset != "" {
		if epoch, err := strconv.ParseInt(reset, 10, 64); err == nil {
			e.ResetAt = time.Unix(epoch, 0)
		}
	}
	return e
}

func releaseFromGitHub(payload *githubRelease) *models.ReleaseMetadata {
	tag := payload.TagName
	if tag == "" {
		tag = payload.Name
	}

	meta := &models.ReleaseMetadata{
		TagName:    tag,
		Name:       payload.Name,
		Body:       payload.Body,
		HTMLURL:    payload.HTMLURL,
		TarballURL: payload.TarballURL,
		ZipballURL: payload.ZipballURL,
		Source:     "github",
	}
	if payload.PublishedAt != "" {
		if t, err := time.Parse(time.RFC3339, payload.PublishedAt); err == nil {
			meta.PublishedAt = &t
		}
	}
	return meta
}

// fetchBackoff is the shared retry policy for metadata lookups
func fetchBackoff() backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxElapsedTime = 15 * time.Second
	return policy
}

// streamToFile copies the response body to disk, logging coarse progress for
// large archives
func streamToFile(body io.Reader, path string, total int64, logger Logger) (int64, error) {
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	var written int64
	buf := make([]byte, 1024*1024)
	lastLogged := 0
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				return written, writeErr
			}
			written += int64(n)
			if total > 0 {
				pct := int(written * 100 / total)
				if pct >= lastLogged+10 {
					logger.Debug("download progress", "percent", pct)
					lastLogged = pct
				}
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}
