package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/scaleflower/otrs-updater/common/db"
	"github.com/scaleflower/otrs-updater/common/models"
)

// RunRepository handles database operations for update runs
type RunRepository struct {
	db *db.DB
}

// NewRunRepository creates a new run repository
func NewRunRepository(database *db.DB) *RunRepository {
	return &RunRepository{db: database}
}

const runColumns = `run_id, target_version, current_version, source, force, status,
		total_steps, completed_steps, files_copied, files_skipped,
		started_at, completed_at, error_message`

// Create inserts a new update run
func (r *RunRepository) Create(ctx context.Context, run *models.UpdateRun) error {
	query := `
		INSERT INTO update_runs (run_id, target_version, current_version, source, force, status, total_steps, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.Exec(
		ctx,
		query,
		run.RunID,
		run.TargetVersion,
		run.CurrentVersion,
		run.Source,
		run.Force,
		run.Status,
		run.TotalSteps,
		run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create update run: %w", err)
	}

	return nil
}

// GetByID retrieves a run by its ID
func (r *RunRepository) GetByID(ctx context.Context, runID uuid.UUID) (*models.UpdateRun, error) {
	query := `SELECT ` + runColumns + ` FROM update_runs WHERE run_id = $1`

	run := &models.UpdateRun{}
	err := r.db.QueryRow(ctx, query, runID).Scan(
		&run.RunID,
		&run.TargetVersion,
		&run.CurrentVersion,
		&run.Source,
		&run.Force,
		&run.Status,
		&run.TotalSteps,
		&run.CompletedSteps,
		&run.FilesCopied,
		&run.FilesSkipped,
		&run.StartedAt,
		&run.CompletedAt,
		&run.ErrorMessage,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get update run: %w", err)
	}

	return run, nil
}

// RecordProgress updates step counters after each completed stage
func (r *RunRepository) RecordProgress(ctx context.Context, runID uuid.UUID, completedSteps int) error {
	query := `UPDATE update_runs SET completed_steps = $2 WHERE run_id = $1`

	_, err := r.db.Exec(ctx, query, runID, completedSteps)
	if err != nil {
		return fmt.Errorf("failed to record run progress: %w", err)
	}

	return nil
}

// RecordFileCounts stores the synchronization summary for a run
func (r *RunRepository) RecordFileCounts(ctx context.Context, runID uuid.UUID, copied, skipped int) error {
	query := `UPDATE update_runs SET files_copied = $2, files_skipped = $3 WHERE run_id = $1`

	_, err := r.db.Exec(ctx, query, runID, copied, skipped)
	if err != nil {
		return fmt.Errorf("failed to record run file counts: %w", err)
	}

	return nil
}

// Finish finalizes a run with its terminal status and optional error message
func (r *RunRepository) Finish(ctx context.Context, runID uuid.UUID, status models.RunStatus, errorMessage *string, at time.Time) error {
	query := `
		UPDATE update_runs
		SET status = $2, error_message = $3, completed_at = $4
		WHERE run_id = $1
	`

	_, err := r.db.Exec(ctx, query, runID, status, errorMessage, at)
	if err != nil {
		return fmt.Errorf("failed to finish update run: %w", err)
	}

	return nil
}

// List retrieves runs ordered by start time, newest first
func (r *RunRepository) List(ctx context.Context, offset, limit int) ([]*models.UpdateRun, error) {
	query := `SELECT ` + runColumns + ` FROM update_runs ORDER BY started_at DESC OFFSET $1 LIMIT $2`

	rows, err := r.db.Query(ctx, query, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list update runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.UpdateRun
	for rows.Next() {
		run := &models.UpdateRun{}
		err := rows.Scan(
			&run.RunID,
			&run.TargetVersion,
			&run.CurrentVersion,
			&run.Source,
			&run.Force,
			&run.Status,
			&run.TotalSteps,
			&run.CompletedSteps,
			&run.FilesCopied,
			&run.FilesSkipped,
			&run.StartedAt,
			&run.CompletedAt,
			&run.ErrorMessage,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan update run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating update runs: %w", err)
	}

	return runs, nil
}

// Count returns the total number of recorded runs
func (r *RunRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT count(*) FROM update_runs`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count update runs: %w", err)
	}

	return count, nil
}
