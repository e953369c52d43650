package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/scaleflower/otrs-updater/common/config"
	"github.com/scaleflower/otrs-updater/common/logger"
)

// BackupService produces a timestamped database backup before each update
// attempt. The backup, not file-tree rollback, is the recovery path for a
// failed update.
type BackupService struct {
	cfg    config.BackupConfig
	runner CommandRunner
	log    *logger.Logger
	now    func() time.Time
}

// NewBackupService creates a backup service
func NewBackupService(cfg config.BackupConfig, runner CommandRunner, log *logger.Logger) *BackupService {
	return &BackupService{
		cfg:    cfg,
		runner: runner,
		log:    log,
		now:    time.Now,
	}
}

// Backup writes a timestamped backup and returns its path. When a backup
// command is configured it is executed with BACKUP_PATH set; otherwise the
// first existing database file candidate is copied. No database file at all
// is not an error: fresh deployments have nothing to back up yet.
func (b *BackupService) Backup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(b.cfg.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	stamp := b.now().Format("20060102_150405")

	if b.cfg.Command != "" {
		target := filepath.Join(b.cfg.Dir, fmt.Sprintf("otrs_backup_%s.sql", stamp))
		if _, err := b.runner.Run(ctx, b.cfg.Command, ".", []string{"BACKUP_PATH=" + target}); err != nil {
			return "", err
		}
		b.log.Info("database backup created", "path", target)
		return target, nil
	}

	source := b.findDatabase()
	if source == "" {
		b.log.Warn("no database file found, skipping backup", "candidates", b.cfg.Candidates)
		return "", nil
	}

	target := filepath.Join(b.cfg.Dir, fmt.Sprintf("otrs_backup_%s%s", stamp, filepath.Ext(source)))
	if err := copyBackup(source, target); err != nil {
		return "", fmt.Errorf("copy database backup: %w", err)
	}

	b.log.Info("database backup created", "source", source, "path", target)
	return target, nil
}

func (b *BackupService) findDatabase() string {
	for _, candidate := range b.cfg.Candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}

func copyBackup(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
