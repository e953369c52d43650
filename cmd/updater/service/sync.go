package service

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/scaleflower/otrs-updater/common/logger"
)

// SyncError indicates a filesystem failure while mirroring the release tree
type SyncError struct {
	Path string
	Err  error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync failed at %s: %v", e.Path, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// SyncResult summarizes one synchronization pass
type SyncResult struct {
	Copied  int `json:"copied"`
	Skipped int `json:"skipped"`
}

// ProjectSynchronizer mirrors an extracted release tree onto the live
// project directory. Copies are additive and overwrite only; files present
// in the live tree but absent from the release are never deleted, so
// runtime-generated artifacts survive an update.
type ProjectSynchronizer struct {
	projectRoot string
	preserve    []string
	log         *logger.Logger
}

// NewProjectSynchronizer creates a synchronizer with a preserve-list of
// relative paths that must never be overwritten. Entries ending in "/"
// preserve whole subtrees.
func NewProjectSynchronizer(projectRoot string, preserve []string, log *logger.Logger) *ProjectSynchronizer {
	cleaned := make([]string, 0, len(preserve))
	for _, p := range preserve {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		cleaned = append(cleaned, filepath.ToSlash(p))
	}

	return &ProjectSynchronizer{
		projectRoot: projectRoot,
		preserve:    cleaned,
		log:         log,
	}
}

// Sync copies every file under sourceRoot into the project directory at the
// same relative path. Preserved paths and preserved subtrees are skipped
// before being visited.
func (s *ProjectSynchronizer) Sync(sourceRoot string) (*SyncResult, error) {
	result := &SyncResult{}
	if err := s.syncDir(sourceRoot, "", result); err != nil {
		return nil, err
	}

	s.log.Info("project synchronized",
		"copied", result.Copied,
		"skipped", result.Skipped,
	)
	return result, nil
}

func (s *ProjectSynchronizer) syncDir(sourceRoot, rel string, result *SyncResult) error {
	entries, err := os.ReadDir(filepath.Join(sourceRoot, rel))
	if err != nil {
		return &SyncError{Path: rel, Err: err}
	}

	for _, entry := range entries {
		entryRel := filepath.ToSlash(filepath.Join(rel, entry.Name()))

		if s.isPreserved(entryRel) {
			// Preserved subtrees are never walked
			result.Skipped++
			s.log.Debug("preserved path skipped", "path", entryRel)
			continue
		}

		if entry.IsDir() {
			if err := s.syncDir(sourceRoot, entryRel, result); err != nil {
				return err
			}
			continue
		}

		if err := s.copyFile(filepath.Join(sourceRoot, entryRel), filepath.Join(s.projectRoot, entryRel)); err != nil {
			return &SyncError{Path: entryRel, Err: err}
		}
		result.Copied++
	}

	return nil
}

// isPreserved reports whether rel matches a preserve-list entry. Directory
// entries (trailing slash) match the directory itself and everything below.
func (s *ProjectSynchronizer) isPreserved(rel string) bool {
	for _, p := range s.preserve {
		trimmed := strings.TrimSuffix(p, "/")
		if rel == trimmed {
			return true
		}
		if strings.HasSuffix(p, "/") && strings.HasPrefix(rel, trimmed+"/") {
			return true
		}
	}
	return false
}

func (s *ProjectSynchronizer) copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
