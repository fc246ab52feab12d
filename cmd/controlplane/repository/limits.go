package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pixeon/renderplane/cmd/controlplane/models"
	"github.com/pixeon/renderplane/common/db"
	apperrors "github.com/pixeon/renderplane/common/errors"
)

// LimitsRepository handles database operations for per-user quotas
type LimitsRepository struct {
	db *db.DB
}

// NewLimitsRepository creates a new limits repository
func NewLimitsRepository(db *db.DB) *LimitsRepository {
	return &LimitsRepository{db: db}
}

// GetOrCreate returns the user's limits, inserting a defaults row on first
// use. Runs inside the caller's transaction so quota checks see a
// consistent row.
func (r *LimitsRepository) GetOrCreate(ctx context.Context, tx pgx.Tx, userID string) (*models.UserLimits, error) {
	query := `
		INSERT INTO user_limits (user_id, max_concurrent_jobs, max_jobs_per_day, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING user_id, max_concurrent_jobs, max_jobs_per_day, created_at
	`

	limits := &models.UserLimits{}
	err := tx.QueryRow(ctx, query, userID, models.DefaultMaxConcurrentJobs, models.DefaultMaxJobsPerDay).Scan(
		&limits.UserID,
		&limits.MaxConcurrentJobs,
		&limits.MaxJobsPerDay,
		&limits.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get user limits: %w", err)
	}
	return limits, nil
}

// Get returns the user's limits without creating a row
func (r *LimitsRepository) Get(ctx context.Context, userID string) (*models.UserLimits, error) {
	query := `
		SELECT user_id, max_concurrent_jobs, max_jobs_per_day, created_at
		FROM user_limits
		WHERE user_id = $1
	`

	limits := &models.UserLimits{}
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&limits.UserID,
		&limits.MaxConcurrentJobs,
		&limits.MaxJobsPerDay,
		&limits.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user limits: %w", err)
	}
	return limits, nil
}

// Upsert sets a user's limits from the admin surface
func (r *LimitsRepository) Upsert(ctx context.Context, limits *models.UserLimits) error {
	query := `
		INSERT INTO user_limits (user_id, max_concurrent_jobs, max_jobs_per_day, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id) DO UPDATE
		SET max_concurrent_jobs = EXCLUDED.max_concurrent_jobs,
		    max_jobs_per_day = EXCLUDED.max_jobs_per_day
	`

	if _, err := r.db.Exec(ctx, query, limits.UserID, limits.MaxConcurrentJobs, limits.MaxJobsPerDay); err != nil {
		return fmt.Errorf("failed to upsert user limits: %w", err)
	}
	return nil
}
