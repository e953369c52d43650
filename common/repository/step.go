package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/scaleflower/otrs-updater/common/db"
	"github.com/scaleflower/otrs-updater/common/models"
)

// StepRepository handles database operations for update run steps
type StepRepository struct {
	db *db.DB
}

// NewStepRepository creates a new step repository
func NewStepRepository(database *db.DB) *StepRepository {
	return &StepRepository{db: database}
}

// Start records a stage beginning and returns its row id
func (r *StepRepository) Start(ctx context.Context, runID uuid.UUID, name string, order int, at time.Time) (int64, error) {
	query := `
		INSERT INTO update_steps (run_id, name, step_order, status, started_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRow(ctx, query, runID, name, order, models.StepStarted, at).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to start update step: %w", err)
	}

	return id, nil
}

// Finish records a stage ending with its status and captured output
func (r *StepRepository) Finish(ctx context.Context, stepID int64, status models.StepStatus, output string, at time.Time) error {
	query := `
		UPDATE update_steps
		SET status = $2, output = $3, completed_at = $4
		WHERE id = $1
	`

	var out *string
	if output != "" {
		out = &output
	}

	_, err := r.db.Exec(ctx, query, stepID, status, out, at)
	if err != nil {
		return fmt.Errorf("failed to finish update step: %w", err)
	}

	return nil
}

// ListByRun retrieves all steps of a run in pipeline order
func (r *StepRepository) ListByRun(ctx context.Context, runID uuid.UUID) ([]*models.UpdateStep, error) {
	query := `
		SELECT id, run_id, name, step_order, status, output, started_at, completed_at
		FROM update_steps
		WHERE run_id = $1
		ORDER BY step_order ASC
	`

	rows, err := r.db.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list update steps: %w", err)
	}
	defer rows.Close()

	var steps []*models.UpdateStep
	for rows.Next() {
		step := &models.UpdateStep{}
		err := rows.Scan(
			&step.ID,
			&step.RunID,
			&step.Name,
			&step.StepOrder,
			&step.Status,
			&step.Output,
			&step.StartedAt,
			&step.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan update step: %w", err)
		}
		steps = append(steps, step)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating update steps: %w", err)
	}

	return steps, nil
}
