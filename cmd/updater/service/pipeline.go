package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/scaleflower/otrs-updater/common/clients"
	"github.com/scaleflower/otrs-updater/common/models"
)

// runJob is the queue payload handed from Trigger to the background worker
type runJob struct {
	RunID  uuid.UUID `json:"run_id"`
	Target string    `json:"target"`
	Source string    `json:"source"`
	Force  bool      `json:"force"`
}

// pipelineStepNames fixes the stage order; TotalSteps on a run derives from
// this list
var pipelineStepNames = []string{
	"backup_database",
	"fetch_release",
	"download_archive",
	"extract_archive",
	"sync_files",
	"install_dependencies",
	"run_migrations",
	"finalize_version",
	"schedule_restart",
}

// runContext carries intermediate pipeline state between stages
type runContext struct {
	job         runJob
	source      clients.Source
	meta        *models.ReleaseMetadata
	archivePath string
	scratchDir  string
	sourceRoot  string
}

func (s *UpdateService) handleRunMessage(ctx context.Context, key string, value []byte) error {
	var job runJob
	if err := json.Unmarshal(value, &job); err != nil {
		return fmt.Errorf("decode update job %s: %w", key, err)
	}

	s.executeRun(ctx, job)
	return nil
}

// executeRun drives the pipeline for one update run. Any stage failure
// finalizes the run as failed and stops; no file-tree rollback is
// attempted, the pre-update backup is the recovery path.
func (s *UpdateService) executeRun(ctx context.Context, job runJob) {
	log := s.log.WithRunID(job.RunID.String())
	log.Info("update pipeline starting", "target", job.Target)

	source, err := s.sourceByName(job.Source)
	if err != nil {
		// Trigger validated the name; a mismatch here means the job payload
		// was corrupted in transit
		s.failRun(ctx, job.RunID, err)
		s.running.Store(false)
		return
	}

	rc := &runContext{job: job, source: source}
	defer func() {
		if rc.scratchDir != "" {
			os.RemoveAll(rc.scratchDir)
		}
		// The guard stays held through a pending restart
		if !s.restartScheduled.Load() {
			s.running.Store(false)
		}
	}()

	stages := []func(context.Context, *runContext) (string, error){
		s.stageBackup,
		s.stageFetchRelease,
		s.stageDownload,
		s.stageExtract,
		s.stageSync,
		s.stageInstallDeps,
		s.stageMigrate,
		s.stageFinalizeVersion,
		s.stageScheduleRestart,
	}

	for i, stage := range stages {
		name := pipelineStepNames[i]
		stepLog := log.WithStep(name)

		stepID, err := s.steps.Start(ctx, job.RunID, name, i+1, s.now())
		if err != nil {
			s.failRun(ctx, job.RunID, fmt.Errorf("record step %s: %w", name, err))
			return
		}

		stepLog.Info("step started")
		output, err := stage(ctx, rc)
		if err != nil {
			stepLog.Error("step failed", "error", err)
			if finishErr := s.steps.Finish(ctx, stepID, models.StepFailed, err.Error(), s.now()); finishErr != nil {
				stepLog.Error("failed to record step failure", "error", finishErr)
			}
			s.failRun(ctx, job.RunID, fmt.Errorf("%s: %w", name, err))
			return
		}

		if err := s.steps.Finish(ctx, stepID, models.StepCompleted, output, s.now()); err != nil {
			stepLog.Error("failed to record step completion", "error", err)
		}
		if err := s.runs.RecordProgress(ctx, job.RunID, i+1); err != nil {
			stepLog.Error("failed to record progress", "error", err)
		}
		stepLog.Info("step completed")
	}

	if err := s.runs.Finish(ctx, job.RunID, models.RunCompleted, nil, s.now()); err != nil {
		log.Error("failed to finalize run", "error", err)
	}
	log.Info("update pipeline completed", "target", job.Target)
}

// failRun finalizes a failed run and flips the status to update_failed,
// leaving current_version untouched
func (s *UpdateService) failRun(ctx context.Context, runID uuid.UUID, cause error) {
	msg := cause.Error()
	if err := s.runs.Finish(ctx, runID, models.RunFailed, &msg, s.now()); err != nil {
		s.log.Error("failed to finalize failed run", "run_id", runID, "error", err)
	}

	status, err := s.statuses.Get(ctx, s.cfg.Service.Version)
	if err != nil {
		s.log.Error("failed to load status after run failure", "error", err)
		return
	}

	status.State = models.StateUpdateFailed
	status.LastError = &msg
	if err := s.statuses.Save(ctx, status); err != nil {
		s.log.Error("failed to save status after run failure", "error", err)
	}
}

func (s *UpdateService) stageBackup(ctx context.Context, rc *runContext) (string, error) {
	path, err := s.backup.Backup(ctx)
	if err != nil {
		return "", err
	}
	if path == "" {
		return "no database file found, backup skipped", nil
	}
	return "backup created: " + path, nil
}

func (s *UpdateService) stageFetchRelease(ctx context.Context, rc *runContext) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Update.FetchTimeout)
	defer cancel()

	meta, err := rc.source.FetchByTag(ctx, rc.job.Target)
	if err != nil {
		return "", err
	}

	rc.meta = meta
	return fmt.Sprintf("release %s (%s)", meta.TagName, meta.Name), nil
}

func (s *UpdateService) stageDownload(ctx context.Context, rc *runContext) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Update.DownloadTimeout)
	defer cancel()

	path, err := rc.source.Download(ctx, rc.meta, s.cfg.Update.DownloadRoot)
	if err != nil {
		return "", err
	}

	rc.archivePath = path
	return "downloaded " + path, nil
}

func (s *UpdateService) stageExtract(ctx context.Context, rc *runContext) (string, error) {
	scratch, err := s.extractor.Extract(rc.archivePath)
	if err != nil {
		return "", err
	}
	rc.scratchDir = scratch

	root, err := s.extractor.DiscoverRoot(scratch)
	if err != nil {
		return "", err
	}
	rc.sourceRoot = root

	return "extracted to " + root, nil
}

func (s *UpdateService) stageSync(ctx context.Context, rc *runContext) (string, error) {
	result, err := s.syncer.Sync(rc.sourceRoot)
	if err != nil {
		return "", err
	}

	if err := s.runs.RecordFileCounts(ctx, rc.job.RunID, result.Copied, result.Skipped); err != nil {
		s.log.Error("failed to record file counts", "error", err)
	}
	return fmt.Sprintf("copied %d files, skipped %d preserved entries", result.Copied, result.Skipped), nil
}

func (s *UpdateService) stageInstallDeps(ctx context.Context, rc *runContext) (string, error) {
	return s.installer.Install(ctx)
}

func (s *UpdateService) stageMigrate(ctx context.Context, rc *runContext) (string, error) {
	return s.migrator.Migrate(ctx)
}

func (s *UpdateService) stageFinalizeVersion(ctx context.Context, rc *runContext) (string, error) {
	status, err := s.statuses.Get(ctx, s.cfg.Service.Version)
	if err != nil {
		return "", err
	}

	version := NormalizeVersion(rc.job.Target)
	status.CurrentVersion = version
	status.LatestVersion = &version
	completedAt := s.now()
	status.LastUpdateCompletedAt = &completedAt
	status.LastError = nil

	if err := s.statuses.Save(ctx, status); err != nil {
		return "", err
	}
	return "current version set to " + version, nil
}

func (s *UpdateService) stageScheduleRestart(ctx context.Context, rc *runContext) (string, error) {
	status, err := s.statuses.Get(ctx, s.cfg.Service.Version)
	if err != nil {
		return "", err
	}

	status.State = models.StateRestarting
	if err := s.statuses.Save(ctx, status); err != nil {
		return "", err
	}

	s.restartScheduled.Store(true)
	delay := s.cfg.Update.RestartDelay
	time.AfterFunc(delay, s.restartFn)

	s.log.Info("restart scheduled", "delay", delay)
	return fmt.Sprintf("restart scheduled in %s", delay), nil
}
