package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scaleflower/otrs-updater/common/config"
)

func TestBackupService_CopiesCandidateFile(t *testing.T) {
	workdir := t.TempDir()
	dbPath := filepath.Join(workdir, "otrs.db")
	require.NoError(t, os.WriteFile(dbPath, []byte("db contents"), 0o644))

	cfg := config.BackupConfig{
		Dir:        filepath.Join(workdir, "backups"),
		Candidates: []string{dbPath},
	}

	b := NewBackupService(cfg, NewExecRunner(time.Second, testLogger()), testLogger())
	path, err := b.Backup(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, path)

	assert.Equal(t, "db contents", readFile(t, path))
	assert.Contains(t, filepath.Base(path), "otrs_backup_")
	assert.Equal(t, ".db", filepath.Ext(path))
}

func TestBackupService_NoDatabaseIsNotAnError(t *testing.T) {
	cfg := config.BackupConfig{
		Dir:        filepath.Join(t.TempDir(), "backups"),
		Candidates: []string{"does/not/exist.db"},
	}

	b := NewBackupService(cfg, NewExecRunner(time.Second, testLogger()), testLogger())
	path, err := b.Backup(context.Background())
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestBackupService_RunsConfiguredCommand(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "backups")
	cfg := config.BackupConfig{
		Dir:     dir,
		Command: `echo dumped > "$BACKUP_PATH"`,
	}

	b := NewBackupService(cfg, NewExecRunner(5*time.Second, testLogger()), testLogger())
	path, err := b.Backup(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ".sql", filepath.Ext(path))
	assert.Contains(t, readFile(t, path), "dumped")
}

func TestBackupService_CommandFailure(t *testing.T) {
	cfg := config.BackupConfig{
		Dir:     filepath.Join(t.TempDir(), "backups"),
		Command: "exit 1",
	}

	b := NewBackupService(cfg, NewExecRunner(time.Second, testLogger()), testLogger())
	_, err := b.Backup(context.Background())
	require.Error(t, err)

	var pe *ProcessError
	assert.ErrorAs(t, err, &pe)
}
