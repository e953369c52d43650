package service

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/scaleflower/otrs-updater/common/logger"
)

// ProcessError indicates a child process exited non-zero or timed out.
// Output carries the captured combined stdout/stderr for diagnostics.
type ProcessError struct {
	Command string
	Output  string
	Err     error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("command %q failed: %v", e.Command, e.Err)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// CommandRunner executes one external command with a bounded timeout,
// capturing combined output
type CommandRunner interface {
	Run(ctx context.Context, command string, dir string, extraEnv []string) (string, error)
}

// ExecRunner runs commands through the shell
type ExecRunner struct {
	timeout time.Duration
	log     *logger.Logger
}

// NewExecRunner creates a runner with the given per-command timeout
func NewExecRunner(timeout time.Duration, log *logger.Logger) *ExecRunner {
	return &ExecRunner{timeout: timeout, log: log}
}

// Run executes the command, returning its combined output. A non-zero exit
// or timeout yields a ProcessError carrying the output.
func (r *ExecRunner) Run(ctx context.Context, command string, dir string, extraEnv []string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), extraEnv...)

	r.log.Info("running command", "command", command, "dir", dir)
	start := time.Now()

	out, err := cmd.CombinedOutput()
	output := strings.TrimSpace(string(out))

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("timed out after %s", r.timeout)
		}
		return output, &ProcessError{Command: command, Output: output, Err: err}
	}

	r.log.Info("command finished", "command", command, "duration", time.Since(start))
	return output, nil
}

// DependencyInstaller runs the configured dependency install command after
// a release tree has been synchronized
type DependencyInstaller struct {
	runner      CommandRunner
	command     string
	projectRoot string
}

// NewDependencyInstaller creates an installer
func NewDependencyInstaller(runner CommandRunner, command, projectRoot string) *DependencyInstaller {
	return &DependencyInstaller{runner: runner, command: command, projectRoot: projectRoot}
}

// Install runs the install command; an empty command is a configured no-op
func (i *DependencyInstaller) Install(ctx context.Context) (string, error) {
	if i.command == "" {
		return "no dependency command configured, skipping", nil
	}
	return i.runner.Run(ctx, i.command, i.projectRoot, nil)
}

// MigrationRunner runs the configured schema migration command.
// Migrations are opportunistic: a release without the migration script is
// valid, so a missing script is a no-op rather than a failure.
type MigrationRunner struct {
	runner      CommandRunner
	command     string
	script      string
	projectRoot string
	extraEnv    []string
}

// NewMigrationRunner creates a migration runner. script is the path the
// release ships its migration in, relative to the project root; when empty
// the command runs unconditionally. extraEnv is injected only for the
// migration step's duration, typically an access token.
func NewMigrationRunner(runner CommandRunner, command, script, projectRoot string, extraEnv []string) *MigrationRunner {
	return &MigrationRunner{
		runner:      runner,
		command:     command,
		script:      script,
		projectRoot: projectRoot,
		extraEnv:    extraEnv,
	}
}

// Migrate runs the migration command if the configured script exists
func (m *MigrationRunner) Migrate(ctx context.Context) (string, error) {
	if m.command == "" {
		return "no migration command configured, skipping", nil
	}

	if m.script != "" {
		full := m.script
		if !filepath.IsAbs(full) {
			full = filepath.Join(m.projectRoot, full)
		}
		if _, err := os.Stat(full); os.IsNotExist(err) {
			return fmt.Sprintf("migration script %s not present, skipping", m.script), nil
		}
	}

	return m.runner.Run(ctx, m.command, m.projectRoot, m.extraEnv)
}
