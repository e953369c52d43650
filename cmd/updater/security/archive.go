package security

import (
	"archive/tar"
	"fmt"
	"path/filepath"
	"strings"
)

// SecurityError indicates an archive member failed safety validation.
// Extraction aborts on the first SecurityError; nothing partial is kept.
type SecurityError struct {
	Member string
	Reason string
}

func (e *SecurityError) Error() string {
	return fmt.Sprintf("unsafe archive member %q: %s", e.Member, e.Reason)
}

// ArchiveValidator performs safety validation on archive members before
// extraction. Release archives come from an external provider and must be
// treated as hostile input.
type ArchiveValidator struct{}

// NewArchiveValidator creates a new archive validator
func NewArchiveValidator() *ArchiveValidator {
	return &ArchiveValidator{}
}

// ValidateName checks a member path independent of archive format.
// Checks: empty names, absolute paths, traversal segments, and escape of
// the destination root after resolution.
func (v *ArchiveValidator) ValidateName(name, destRoot string) error {
	if name == "" {
		return &SecurityError{Member: name, Reason: "empty member name"}
	}

	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return &SecurityError{Member: name, Reason: "absolute path"}
	}

	for _, segment := range strings.Split(filepath.ToSlash(name), "/") {
		if segment == ".." {
			return &SecurityError{Member: name, Reason: "path traversal segment"}
		}
	}

	// Resolve against the destination and verify containment
	target := filepath.Join(destRoot, name)
	cleanRoot := filepath.Clean(destRoot) + string(filepath.Separator)
	if target != filepath.Clean(destRoot) && !strings.HasPrefix(target, cleanRoot) {
		return &SecurityError{Member: name, Reason: "resolves outside destination"}
	}

	return nil
}

// ValidateTarHeader checks a tar member, including link types that have no
// zip equivalent
func (v *ArchiveValidator) ValidateTarHeader(hdr *tar.Header, destRoot string) error {
	if err := v.ValidateName(hdr.Name, destRoot); err != nil {
		return err
	}

	switch hdr.Typeflag {
	case tar.TypeSymlink:
		return &SecurityError{Member: hdr.Name, Reason: "symlink member"}
	case tar.TypeLink:
		return &SecurityError{Member: hdr.Name, Reason: "hardlink member"}
	case tar.TypeDir, tar.TypeReg:
		return nil
	default:
		return &SecurityError{Member: hdr.Name, Reason: fmt.Sprintf("unsupported member type %d", hdr.Typeflag)}
	}
}
