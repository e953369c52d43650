package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/scaleflower/otrs-updater/common/cache"
	"github.com/scaleflower/otrs-updater/common/clients"
	"github.com/scaleflower/otrs-updater/common/config"
	"github.com/scaleflower/otrs-updater/common/logger"
	"github.com/scaleflower/otrs-updater/common/models"
	"github.com/scaleflower/otrs-updater/common/queue"
)

// UpdateRunsTopic is the queue topic carrying triggered update jobs to the
// background worker
const UpdateRunsTopic = "update.runs"

// StatusStore persists the singleton deployment status record
type StatusStore interface {
	Get(ctx context.Context, seedVersion string) (*models.UpdateStatus, error)
	Save(ctx context.Context, status *models.UpdateStatus) error
	Acknowledge(ctx context.Context, at time.Time) error
}

// RunStore persists update run audit records
type RunStore interface {
	Create(ctx context.Context, run *models.UpdateRun) error
	GetByID(ctx context.Context, runID uuid.UUID) (*models.UpdateRun, error)
	RecordProgress(ctx context.Context, runID uuid.UUID, completedSteps int) error
	RecordFileCounts(ctx context.Context, runID uuid.UUID, copied, skipped int) error
	Finish(ctx context.Context, runID uuid.UUID, status models.RunStatus, errorMessage *string, at time.Time) error
	List(ctx context.Context, offset, limit int) ([]*models.UpdateRun, error)
	Count(ctx context.Context) (int, error)
}

// StepStore persists per-stage audit records
type StepStore interface {
	Start(ctx context.Context, runID uuid.UUID, name string, order int, at time.Time) (int64, error)
	Finish(ctx context.Context, stepID int64, status models.StepStatus, output string, at time.Time) error
	ListByRun(ctx context.Context, runID uuid.UUID) ([]*models.UpdateStep, error)
}

// Deps bundles the collaborators of the update service
type Deps struct {
	Config    *config.Config
	Logger    *logger.Logger
	Source    clients.Source
	Sources   map[string]clients.Source
	Cache     cache.ReleaseCache
	Queue     queue.Queue
	Statuses  StatusStore
	Runs      RunStore
	Steps     StepStore
	Backup    *BackupService
	Extractor *PackageExtractor
	Syncer    *ProjectSynchronizer
	Installer *DependencyInstaller
	Migrator  *MigrationRunner
}

// UpdateService orchestrates the update lifecycle: detection, triggering,
// and background pipeline execution. All writes to the status record go
// through this service.
type UpdateService struct {
	cfg       *config.Config
	log       *logger.Logger
	source    clients.Source
	sources   map[string]clients.Source
	cache     cache.ReleaseCache
	queue     queue.Queue
	statuses  StatusStore
	runs      RunStore
	steps     StepStore
	backup    *BackupService
	extractor *PackageExtractor
	syncer    *ProjectSynchronizer
	installer *DependencyInstaller
	migrator  *MigrationRunner

	running          atomic.Bool
	restartScheduled atomic.Bool
	restartFn        func()
	now              func() time.Time
}

// NewUpdateService creates the orchestrator
func NewUpdateService(d Deps) *UpdateService {
	sources := d.Sources
	if sources == nil {
		sources = make(map[string]clients.Source)
	}
	if d.Source != nil {
		sources[d.Source.Name()] = d.Source
	}

	return &UpdateService{
		cfg:       d.Config,
		log:       d.Logger,
		source:    d.Source,
		sources:   sources,
		cache:     d.Cache,
		queue:     d.Queue,
		statuses:  d.Statuses,
		runs:      d.Runs,
		steps:     d.Steps,
		backup:    d.Backup,
		extractor: d.Extractor,
		syncer:    d.Syncer,
		installer: d.Installer,
		migrator:  d.Migrator,
		restartFn: func() { os.Exit(0) },
		now:       time.Now,
	}
}

// SetRestartFunc overrides the process restart hook
func (s *UpdateService) SetRestartFunc(fn func()) {
	s.restartFn = fn
}

// Start subscribes the background worker to the update job topic
func (s *UpdateService) Start(ctx context.Context) error {
	return s.queue.Subscribe(ctx, UpdateRunsTopic, s.handleRunMessage)
}

// IsRunning reports whether an update pipeline is active
func (s *UpdateService) IsRunning() bool {
	return s.running.Load()
}

// RestartScheduled reports whether a restart is pending
func (s *UpdateService) RestartScheduled() bool {
	return s.restartScheduled.Load()
}

// Check queries the release source and refreshes detection fields of the
// status record. It never downgrades an in-progress updating/restarting
// state; failures only set the error fields and are retried on the next
// poll tick.
func (s *UpdateService) Check(ctx context.Context, bypassCache bool) (*models.UpdateStatus, error) {
	status, err := s.statuses.Get(ctx, s.cfg.Service.Version)
	if err != nil {
		return nil, err
	}

	if status.State == models.StateUpdating || status.State == models.StateRestarting {
		s.log.Debug("check skipped, update in progress", "state", status.State)
		return status, nil
	}

	checkedAt := s.now()
	status.LastCheckedAt = &checkedAt

	meta, err := s.fetchLatest(ctx, bypassCache)
	if err != nil {
		if clients.IsNotFound(err) {
			// No published release is not a failure
			status.State = models.StateUpToDate
			status.LastError = nil
			return status, s.statuses.Save(ctx, status)
		}

		msg := err.Error()
		status.State = models.StateError
		status.LastError = &msg
		s.log.Error("release check failed", "error", err)
		if saveErr := s.statuses.Save(ctx, status); saveErr != nil {
			return nil, saveErr
		}
		return status, err
	}

	previousLatest := ""
	if status.LatestVersion != nil {
		previousLatest = *status.LatestVersion
	}

	status.LatestVersion = &meta.TagName
	status.ReleaseName = nilIfEmpty(meta.Name)
	status.ReleaseNotes = nilIfEmpty(meta.Body)
	status.ReleaseURL = nilIfEmpty(meta.HTMLURL)
	status.PublishedAt = meta.PublishedAt
	status.LastError = nil

	if CompareVersions(meta.TagName, status.CurrentVersion) == 0 {
		status.State = models.StateUpToDate
	} else {
		status.State = models.StateUpdateAvailable
		if previousLatest != meta.TagName {
			// A newly seen release resets the acknowledgement flag
			status.NotifiedAt = nil
		}
	}

	s.log.Info("release check complete",
		"current", status.CurrentVersion,
		"latest", meta.TagName,
		"state", status.State,
	)
	return status, s.statuses.Save(ctx, status)
}

// Trigger starts an update run toward the given target version, optionally
// from an explicitly named release source. It returns the run id
// immediately; the pipeline executes on the background worker.
func (s *UpdateService) Trigger(ctx context.Context, target, sourceName string, force bool) (uuid.UUID, error) {
	if !s.running.CompareAndSwap(false, true) {
		return uuid.Nil, &AlreadyRunningError{}
	}

	accepted := false
	defer func() {
		if !accepted {
			s.running.Store(false)
		}
	}()

	source, err := s.sourceByName(sourceName)
	if err != nil {
		return uuid.Nil, err
	}

	status, err := s.statuses.Get(ctx, s.cfg.Service.Version)
	if err != nil {
		return uuid.Nil, err
	}

	target, err = s.resolveTarget(ctx, target, status, source)
	if err != nil {
		return uuid.Nil, err
	}

	if CompareVersions(target, status.CurrentVersion) == 0 && !force {
		return uuid.Nil, &NoOpError{Version: status.CurrentVersion}
	}

	startedAt := s.now()
	current := status.CurrentVersion
	run := &models.UpdateRun{
		RunID:          uuid.New(),
		TargetVersion:  target,
		CurrentVersion: &current,
		Source:         source.Name(),
		Force:          force,
		Status:         models.RunStarted,
		TotalSteps:     len(pipelineStepNames),
		StartedAt:      startedAt,
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return uuid.Nil, err
	}

	status.State = models.StateUpdating
	status.LastUpdateStartedAt = &startedAt
	status.LastError = nil
	if err := s.statuses.Save(ctx, status); err != nil {
		return uuid.Nil, err
	}

	payload, err := json.Marshal(&runJob{RunID: run.RunID, Target: target, Source: source.Name(), Force: force})
	if err != nil {
		return uuid.Nil, &UpdateError{Op: "trigger", Err: err}
	}
	if err := s.queue.Publish(ctx, UpdateRunsTopic, run.RunID.String(), payload); err != nil {
		s.failRun(ctx, run.RunID, fmt.Errorf("dispatch update job: %w", err))
		return uuid.Nil, &UpdateError{Op: "trigger", Err: err}
	}

	accepted = true
	s.log.Info("update triggered", "run_id", run.RunID, "target", target, "force", force)
	return run.RunID, nil
}

// resolveTarget picks the version to update to: explicit argument, then
// configured override, then the latest known (or freshly fetched) release
func (s *UpdateService) resolveTarget(ctx context.Context, target string, status *models.UpdateStatus, src clients.Source) (string, error) {
	if target != "" {
		return target, nil
	}
	if s.cfg.Update.TargetOverride != "" {
		return s.cfg.Update.TargetOverride, nil
	}
	if status.LatestVersion != nil && *status.LatestVersion != "" {
		return *status.LatestVersion, nil
	}

	meta, err := s.fetchLatestFrom(ctx, src, false)
	if err != nil {
		return "", &UpdateError{Op: "resolve target", Err: err}
	}
	return meta.TagName, nil
}

// sourceByName resolves a caller-supplied provider name; empty means the
// configured default
func (s *UpdateService) sourceByName(name string) (clients.Source, error) {
	if name == "" {
		return s.source, nil
	}
	if src, ok := s.sources[name]; ok {
		return src, nil
	}
	return nil, &UnknownSourceError{Name: name}
}

// Acknowledge clears the freshly-notified flag without touching version or
// state
func (s *UpdateService) Acknowledge(ctx context.Context) error {
	return s.statuses.Acknowledge(ctx, s.now())
}

// StatusResponse is the externally observable deployment status
type StatusResponse struct {
	CurrentVersion   string             `json:"current_version"`
	LatestVersion    *string            `json:"latest_version,omitempty"`
	State            models.UpdateState `json:"state"`
	ReleaseName      *string            `json:"release_name,omitempty"`
	ReleaseNotes     *string            `json:"release_notes,omitempty"`
	ReleaseURL       *string            `json:"release_url,omitempty"`
	PublishedAt      *time.Time         `json:"published_at,omitempty"`
	LastCheckedAt    *time.Time         `json:"last_checked_at,omitempty"`
	IsRunning        bool               `json:"is_running"`
	RestartScheduled bool               `json:"restart_scheduled"`
	Acknowledged     bool               `json:"acknowledged"`
	LastError        *string            `json:"last_error,omitempty"`
}

// Status returns the current deployment status
func (s *UpdateService) Status(ctx context.Context) (*StatusResponse, error) {
	status, err := s.statuses.Get(ctx, s.cfg.Service.Version)
	if err != nil {
		return nil, err
	}

	return &StatusResponse{
		CurrentVersion:   status.CurrentVersion,
		LatestVersion:    status.LatestVersion,
		State:            status.State,
		ReleaseName:      status.ReleaseName,
		ReleaseNotes:     status.ReleaseNotes,
		ReleaseURL:       status.ReleaseURL,
		PublishedAt:      status.PublishedAt,
		LastCheckedAt:    status.LastCheckedAt,
		IsRunning:        s.running.Load(),
		RestartScheduled: s.restartScheduled.Load(),
		Acknowledged:     status.NotifiedAt != nil,
		LastError:        status.LastError,
	}, nil
}

// RunList is one page of update run history
type RunList struct {
	Runs       []*models.UpdateRun `json:"runs"`
	Total      int                 `json:"total"`
	Page       int                 `json:"page"`
	PerPage    int                 `json:"per_page"`
	TotalPages int                 `json:"total_pages"`
}

// Logs returns paginated update run history, newest first
func (s *UpdateService) Logs(ctx context.Context, page, perPage int) (*RunList, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}

	runs, err := s.runs.List(ctx, (page-1)*perPage, perPage)
	if err != nil {
		return nil, err
	}
	total, err := s.runs.Count(ctx)
	if err != nil {
		return nil, err
	}

	return &RunList{
		Runs:       runs,
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: (total + perPage - 1) / perPage,
	}, nil
}

// RunDetails is one run with its ordered steps
type RunDetails struct {
	Run   *models.UpdateRun    `json:"run"`
	Steps []*models.UpdateStep `json:"steps"`
}

// LogDetails returns one run and its ordered steps
func (s *UpdateService) LogDetails(ctx context.Context, runID uuid.UUID) (*RunDetails, error) {
	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	steps, err := s.steps.ListByRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	return &RunDetails{Run: run, Steps: steps}, nil
}

// fetchLatest returns the latest release metadata from the default source,
// served from the cache within its TTL unless bypassed
func (s *UpdateService) fetchLatest(ctx context.Context, bypassCache bool) (*models.ReleaseMetadata, error) {
	return s.fetchLatestFrom(ctx, s.source, bypassCache)
}

func (s *UpdateService) fetchLatestFrom(ctx context.Context, src clients.Source, bypassCache bool) (*models.ReleaseMetadata, error) {
	key := "release:" + src.Name() + ":latest"

	if s.cache != nil {
		if bypassCache {
			s.cache.Delete(ctx, key)
		} else if meta, ok := s.cache.Get(ctx, key); ok {
			return meta, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Update.FetchTimeout)
	defer cancel()

	meta, err := src.FetchLatest(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Set(ctx, key, meta, s.cfg.Cache.DefaultTTL)
	}
	return meta, nil
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
