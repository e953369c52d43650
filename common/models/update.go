package models

import (
	"time"

	"github.com/google/uuid"
)

// UpdateState represents the lifecycle state of the deployment
type UpdateState string

const (
	StateIdle            UpdateState = "idle"
	StateChecking        UpdateState = "checking"
	StateUpToDate        UpdateState = "up_to_date"
	StateUpdateAvailable UpdateState = "update_available"
	StateUpdating        UpdateState = "updating"
	StateRestarting      UpdateState = "restarting"
	StateUpdateFailed    UpdateState = "update_failed"
	StateError           UpdateState = "error"
)

// RunStatus represents the status of an update run
type RunStatus string

const (
	RunStarted   RunStatus = "started"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// StepStatus represents the status of a single pipeline step
type StepStatus string

const (
	StepStarted   StepStatus = "started"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// UpdateStatus is the singleton record tracking the deployment's version
// and update lifecycle. Exactly one row exists; all mutation goes through
// the update service.
// Maps to: update_status table
type UpdateStatus struct {
	CurrentVersion        string      `db:"current_version" json:"current_version"`
	LatestVersion         *string     `db:"latest_version" json:"latest_version,omitempty"`
	ReleaseName           *string     `db:"release_name" json:"release_name,omitempty"`
	ReleaseNotes          *string     `db:"release_notes" json:"release_notes,omitempty"`
	ReleaseURL            *string     `db:"release_url" json:"release_url,omitempty"`
	PublishedAt           *time.Time  `db:"published_at" json:"published_at,omitempty"`
	State                 UpdateState `db:"state" json:"state"`
	NotifiedAt            *time.Time  `db:"notified_at" json:"notified_at,omitempty"`
	LastCheckedAt         *time.Time  `db:"last_checked_at" json:"last_checked_at,omitempty"`
	LastUpdateStartedAt   *time.Time  `db:"last_update_started_at" json:"last_update_started_at,omitempty"`
	LastUpdateCompletedAt *time.Time  `db:"last_update_completed_at" json:"last_update_completed_at,omitempty"`
	LastError             *string     `db:"last_error" json:"last_error,omitempty"`
}

// UpdateRun is one update attempt. Created at trigger time, finalized when
// the pipeline completes or fails. Never deleted; retained for audit.
// Maps to: update_runs table
type UpdateRun struct {
	RunID          uuid.UUID  `db:"run_id" json:"run_id"`
	TargetVersion  string     `db:"target_version" json:"target_version"`
	CurrentVersion *string    `db:"current_version" json:"current_version,omitempty"`
	Source         string     `db:"source" json:"source"`
	Force          bool       `db:"force" json:"force"`
	Status         RunStatus  `db:"status" json:"status"`
	TotalSteps     int        `db:"total_steps" json:"total_steps"`
	CompletedSteps int        `db:"completed_steps" json:"completed_steps"`
	FilesCopied    int        `db:"files_copied" json:"files_copied"`
	FilesSkipped   int        `db:"files_skipped" json:"files_skipped"`
	StartedAt      time.Time  `db:"started_at" json:"started_at"`
	CompletedAt    *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	ErrorMessage   *string    `db:"error_message" json:"error_message,omitempty"`
}

// ProgressPercentage returns completed steps as a bounded percentage
func (r *UpdateRun) ProgressPercentage() int {
	if r.TotalSteps == 0 {
		return 0
	}
	pct := r.CompletedSteps * 100 / r.TotalSteps
	if pct > 100 {
		return 100
	}
	return pct
}

// DurationSeconds returns the run duration, using now for unfinished runs
func (r *UpdateRun) DurationSeconds(now time.Time) int {
	end := now
	if r.CompletedAt != nil {
		end = *r.CompletedAt
	}
	return int(end.Sub(r.StartedAt).Seconds())
}

// UpdateStep is an ordered child of an UpdateRun, one per pipeline stage.
// Maps to: update_steps table
type UpdateStep struct {
	ID          int64      `db:"id" json:"id"`
	RunID       uuid.UUID  `db:"run_id" json:"run_id"`
	Name        string     `db:"name" json:"name"`
	StepOrder   int        `db:"step_order" json:"step_order"`
	Status      StepStatus `db:"status" json:"status"`
	Output      *string    `db:"output" json:"output,omitempty"`
	StartedAt   time.Time  `db:"started_at" json:"started_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}
