package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/scaleflower/otrs-updater/common/db"
	"github.com/scaleflower/otrs-updater/common/models"
)

// StatusRepository handles database operations for the singleton
// update_status record
type StatusRepository struct {
	db *db.DB
}

// NewStatusRepository creates a new status repository
func NewStatusRepository(database *db.DB) *StatusRepository {
	return &StatusRepository{db: database}
}

const statusColumns = `current_version, latest_version, release_name, release_notes,
		release_url, published_at, state, notified_at, last_checked_at,
		last_update_started_at, last_update_completed_at, last_error`

// Get retrieves the singleton status row, seeding it with the given version
// on first access.
func (r *StatusRepository) Get(ctx context.Context, seedVersion string) (*models.UpdateStatus, error) {
	status, err := r.fetch(ctx)
	if err == nil {
		return status, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	query := `
		INSERT INTO update_status (id, current_version, state)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := r.db.Exec(ctx, query, seedVersion, models.StateIdle); err != nil {
		return nil, fmt.Errorf("failed to seed update status: %w", err)
	}

	return r.fetch(ctx)
}

func (r *StatusRepository) fetch(ctx context.Context) (*models.UpdateStatus, error) {
	query := `SELECT ` + statusColumns + ` FROM update_status WHERE id = 1`

	status := &models.UpdateStatus{}
	err := r.db.QueryRow(ctx, query).Scan(
		&status.CurrentVersion,
		&status.LatestVersion,
		&status.ReleaseName,
		&status.ReleaseNotes,
		&status.ReleaseURL,
		&status.PublishedAt,
		&status.State,
		&status.NotifiedAt,
		&status.LastCheckedAt,
		&status.LastUpdateStartedAt,
		&status.LastUpdateCompletedAt,
		&status.LastError,
	)
	if err != nil {
		return nil, err
	}

	return status, nil
}

// Save persists all mutable fields of the singleton status row
func (r *StatusRepository) Save(ctx context.Context, status *models.UpdateStatus) error {
	query := `
		UPDATE update_status
		SET current_version = $1,
		    latest_version = $2,
		    release_name = $3,
		    release_notes = $4,
		    release_url = $5,
		    published_at = $6,
		    state = $7,
		    notified_at = $8,
		    last_checked_at = $9,
		    last_update_started_at = $10,
		    last_update_completed_at = $11,
		    last_error = $12,
		    updated_at = now()
		WHERE id = 1
	`

	_, err := r.db.Exec(
		ctx,
		query,
		status.CurrentVersion,
		status.LatestVersion,
		status.ReleaseName,
		status.ReleaseNotes,
		status.ReleaseURL,
		status.PublishedAt,
		status.State,
		status.NotifiedAt,
		status.LastCheckedAt,
		status.LastUpdateStartedAt,
		status.LastUpdateCompletedAt,
		status.LastError,
	)
	if err != nil {
		return fmt.Errorf("failed to save update status: %w", err)
	}

	return nil
}

// Acknowledge stamps notified_at without touching version or state fields
func (r *StatusRepository) Acknowledge(ctx context.Context, at time.Time) error {
	query := `UPDATE update_status SET notified_at = $1, updated_at = now() WHERE id = 1`

	_, err := r.db.Exec(ctx, query, at)
	if err != nil {
		return fmt.Errorf("failed to acknowledge update notification: %w", err)
	}

	return nil
}
