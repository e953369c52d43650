package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecRunner_CapturesOutput(t *testing.T) {
	runner := NewExecRunner(5*time.Second, testLogger())

	out, err := runner.Run(context.Background(), "echo hello", t.TempDir(), nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestExecRunner_NonZeroExit(t *testing.T) {
	runner := NewExecRunner(5*time.Second, testLogger())

	out, err := runner.Run(context.Background(), "echo boom >&2; exit 3", t.TempDir(), nil)
	require.Error(t, err)

	var pe *ProcessError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "boom", pe.Output)
	assert.Equal(t, "boom", out)
}

func TestExecRunner_Timeout(t *testing.T) {
	runner := NewExecRunner(100*time.Millisecond, testLogger())

	_, err := runner.Run(context.Background(), "sleep 5", t.TempDir(), nil)
	require.Error(t, err)

	var pe *ProcessError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Err.Error(), "timed out")
}

func TestExecRunner_ExtraEnv(t *testing.T) {
	runner := NewExecRunner(5*time.Second, testLogger())

	out, err := runner.Run(context.Background(), "echo $UPDATE_TOKEN", t.TempDir(), []string{"UPDATE_TOKEN=sekrit"})
	require.NoError(t, err)
	assert.Equal(t, "sekrit", out)
}

func TestMigrationRunner_MissingScriptIsNoOp(t *testing.T) {
	root := t.TempDir()
	runner := NewExecRunner(5*time.Second, testLogger())

	m := NewMigrationRunner(runner, "sh scripts/migrate.sh", "scripts/migrate.sh", root, nil)
	out, err := m.Migrate(context.Background())
	require.NoError(t, err)
	assert.Contains(t, out, "not present, skipping")
}

func TestMigrationRunner_RunsExistingScript(t *testing.T) {
	root := t.TempDir()
	script := filepath.Join(root, "migrate.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho migrated"), 0o755))

	runner := NewExecRunner(5*time.Second, testLogger())
	m := NewMigrationRunner(runner, "./migrate.sh", "migrate.sh", root, nil)

	out, err := m.Migrate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "migrated", out)
}

func TestMigrationRunner_NoScriptConfiguredAlwaysRuns(t *testing.T) {
	root := t.TempDir()
	runner := NewExecRunner(5*time.Second, testLogger())

	// Interpreter names with dots or slashes must not be mistaken for a
	// script whose absence skips the migration
	m := NewMigrationRunner(runner, "echo python3.11 would migrate", "", root, nil)
	out, err := m.Migrate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "python3.11 would migrate", out)
}

func TestDependencyInstaller_EmptyCommandSkips(t *testing.T) {
	i := NewDependencyInstaller(NewExecRunner(time.Second, testLogger()), "", t.TempDir())

	out, err := i.Install(context.Background())
	require.NoError(t, err)
	assert.Contains(t, out, "skipping")
}
