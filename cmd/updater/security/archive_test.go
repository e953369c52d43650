package security

import (
	"archive/tar"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveValidator_ValidateName(t *testing.T) {
	v := NewArchiveValidator()
	dest := "/tmp/extract"

	tests := []struct {
		name    string
		member  string
		wantErr string
	}{
		{"plain file", "app/main.py", ""},
		{"nested file", "otrs-web-1.3.0/templates/index.html", ""},
		{"dot segment", "app/./config.py", ""},
		{"empty name", "", "empty member name"},
		{"absolute path", "/etc/passwd", "absolute path"},
		{"parent traversal", "../../../etc/passwd", "path traversal segment"},
		{"embedded traversal", "app/../../escape.txt", "path traversal segment"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateName(tt.member, dest)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)

			var se *SecurityError
			require.ErrorAs(t, err, &se)
			assert.Contains(t, se.Reason, tt.wantErr)
		})
	}
}

func TestArchiveValidator_ValidateTarHeader_RejectsLinks(t *testing.T) {
	v := NewArchiveValidator()
	dest := t.TempDir()

	symlink := &tar.Header{Name: "bin/sh", Typeflag: tar.TypeSymlink, Linkname: "/bin/sh"}
	err := v.ValidateTarHeader(symlink, dest)
	require.Error(t, err)
	var se *SecurityError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "symlink member", se.Reason)

	hardlink := &tar.Header{Name: "copy.txt", Typeflag: tar.TypeLink, Linkname: "orig.txt"}
	err = v.ValidateTarHeader(hardlink, dest)
	require.Error(t, err)
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "hardlink member", se.Reason)
}

func TestArchiveValidator_ValidateTarHeader_AllowsRegularMembers(t *testing.T) {
	v := NewArchiveValidator()
	dest := t.TempDir()

	assert.NoError(t, v.ValidateTarHeader(&tar.Header{Name: "app/main.py", Typeflag: tar.TypeReg}, dest))
	assert.NoError(t, v.ValidateTarHeader(&tar.Header{Name: "app/", Typeflag: tar.TypeDir}, dest))
}
