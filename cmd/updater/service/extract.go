package service

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/scaleflower/otrs-updater/cmd/updater/security"
	"github.com/scaleflower/otrs-updater/common/logger"
)

// ExtractionError indicates the archive could not be unpacked
type ExtractionError struct {
	Archive string
	Err     error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("failed to extract %s: %v", e.Archive, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// PackageExtractor unpacks release archives into isolated scratch
// directories. Every member is validated before any write, and extraction
// never targets the live project tree.
type PackageExtractor struct {
	validator *security.ArchiveValidator
	log       *logger.Logger
}

// NewPackageExtractor creates a new extractor
func NewPackageExtractor(log *logger.Logger) *PackageExtractor {
	return &PackageExtractor{
		validator: security.NewArchiveValidator(),
		log:       log,
	}
}

// Extract unpacks the archive into a freshly created scratch directory and
// returns its path. On any failure the scratch directory is removed.
func (e *PackageExtractor) Extract(archivePath string) (string, error) {
	scratch, err := os.MkdirTemp("", "otrs-update-*")
	if err != nil {
		return "", &ExtractionError{Archive: archivePath, Err: err}
	}

	switch {
	case strings.HasSuffix(archivePath, ".tar.gz"), strings.HasSuffix(archivePath, ".tgz"):
		err = e.extractTarGz(archivePath, scratch)
	case strings.HasSuffix(archivePath, ".zip"):
		err = e.extractZip(archivePath, scratch)
	default:
		err = fmt.Errorf("unsupported archive format: %s", filepath.Base(archivePath))
	}

	if err != nil {
		os.RemoveAll(scratch)
		return "", err
	}

	e.log.Info("archive extracted", "archive", archivePath, "scratch", scratch)
	return scratch, nil
}

// DiscoverRoot returns the single top-level directory inside the scratch
// directory, or the scratch directory itself if the archive has no common
// root
func (e *PackageExtractor) DiscoverRoot(scratchDir string) (string, error) {
	entries, err := os.ReadDir(scratchDir)
	if err != nil {
		return "", &ExtractionError{Archive: scratchDir, Err: err}
	}

	if len(entries) == 1 && entries[0].IsDir() {
		return filepath.Join(scratchDir, entries[0].Name()), nil
	}
	return scratchDir, nil
}

// extractTarGz validates every member of the archive before the first write,
// then extracts in a second pass. A malicious member anywhere in the archive
// rejects the whole archive with nothing written.
func (e *PackageExtractor) extractTarGz(archivePath, dest string) error {
	if err := e.walkTarGz(archivePath, func(hdr *tar.Header, _ *tar.Reader) error {
		return e.validator.ValidateTarHeader(hdr, dest)
	}); err != nil {
		return err
	}

	return e.walkTarGz(archivePath, func(hdr *tar.Header, tr *tar.Reader) error {
		target := filepath.Join(dest, hdr.Name)
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return &ExtractionError{Archive: archivePath, Err: err}
			}
		case tar.TypeReg:
			if err := writeMember(target, tr, hdr.FileInfo().Mode()); err != nil {
				return &ExtractionError{Archive: archivePath, Err: err}
			}
		}
		return nil
	})
}

func (e *PackageExtractor) walkTarGz(archivePath string, visit func(*tar.Header, *tar.Reader) error) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return &ExtractionError{Archive: archivePath, Err: err}
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return &ExtractionError{Archive: archivePath, Err: err}
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return &ExtractionError{Archive: archivePath, Err: err}
		}
		if err := visit(hdr, tr); err != nil {
			return err
		}
	}
}

func (e *PackageExtractor) extractZip(archivePath, dest string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return &ExtractionError{Archive: archivePath, Err: err}
	}
	defer reader.Close()

	// The central directory lists every member up front; validate all of
	// them before the first write
	for _, member := range reader.File {
		if err := e.validator.ValidateName(member.Name, dest); err != nil {
			return err
		}

		// Zip encodes symlinks as regular members with a mode bit
		if member.Mode()&os.ModeSymlink != 0 {
			return &security.SecurityError{Member: member.Name, Reason: "symlink member"}
		}
	}

	for _, member := range reader.File {
		target := filepath.Join(dest, member.Name)
		if member.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return &ExtractionError{Archive: archivePath, Err: err}
			}
			continue
		}

		src, err := member.Open()
		if err != nil {
			return &ExtractionError{Archive: archivePath, Err: err}
		}
		err = writeMember(target, src, member.Mode())
		src.Close()
		if err != nil {
			return &ExtractionError{Archive: archivePath, Err: err}
		}
	}

	return nil
}

func writeMember(target string, src io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, src)
	return err
}
