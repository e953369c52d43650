package models

import "time"

// ReleaseMetadata describes one published release as reported by the
// release-hosting provider. Immutable once fetched.
type ReleaseMetadata struct {
	TagName     string     `json:"tag_name"`
	Name        string     `json:"name,omitempty"`
	Body        string     `json:"body,omitempty"`
	HTMLURL     string     `json:"html_url,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	TarballURL  string     `json:"tarball_url,omitempty"`
	ZipballURL  string     `json:"zipball_url,omitempty"`
	Source      string     `json:"source"`
}

// DownloadURL returns the preferred archive URL, tarball first
func (m *ReleaseMetadata) DownloadURL() string {
	if m.TarballURL != "" {
		return m.TarballURL
	}
	return m.ZipballURL
}

// ArchiveExt returns the file extension matching DownloadURL
func (m *ReleaseMetadata) ArchiveExt() string {
	if m.TarballURL != "" {
		return ".tar.gz"
	}
	return ".zip"
}
