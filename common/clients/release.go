package clients

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/scaleflower/otrs-updater/common/models"
)

// Logger interface for release client logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Source fetches release metadata and downloads release archives from one
// hosted provider. Implementations exist per provider and are selected by
// configuration; the update pipeline never branches on provider identity.
type Source interface {
	// Name identifies the provider ("github", "yunxiao")
	Name() string

	// FetchLatest returns metadata for the most recent published release
	FetchLatest(ctx context.Context) (*models.ReleaseMetadata, error)

	// FetchByTag returns metadata for one specific release tag
	FetchByTag(ctx context.Context, tag string) (*models.ReleaseMetadata, error)

	// Download streams the release archive to disk under downloadRoot and
	// returns the local archive path
	Download(ctx context.Context, meta *models.ReleaseMetadata, downloadRoot string) (string, error)
}

// NotFoundError indicates the requested tag (or any release at all) does not
// exist on the provider. check() treats this as "no update available".
type NotFoundError struct {
	Tag string
}

func (e *NotFoundError) Error() string {
	if e.Tag == "" {
		return "no releases found"
	}
	return fmt.Sprintf("release tag %q not found", e.Tag)
}

// RateLimitedError indicates the provider refused the request because the
// API quota is exhausted.
type RateLimitedError struct {
	Remaining int
	ResetAt   time.Time
}

func (e *RateLimitedError) Error() string {
	if e.ResetAt.IsZero() {
		return "release provider rate limit exceeded"
	}
	return fmt.Sprintf("release provider rate limit exceeded, resets at %s", e.ResetAt.Format(time.RFC3339))
}

// NetworkError indicates a transport-level failure talking to the provider
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("release provider unreachable: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// DownloadError indicates the archive transfer failed or was truncated
type DownloadError struct {
	URL string
	Err error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("failed to download release archive from %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a NotFoundError
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
