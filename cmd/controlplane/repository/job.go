package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pixeon/renderplane/cmd/controlplane/models"
	"github.com/pixeon/renderplane/common/db"
	apperrors "github.com/pixeon/renderplane/common/errors"
)

// JobRepository handles database operations for jobs
type JobRepository struct {
	db *db.DB
}

// NewJobRepository creates a new job repository
func NewJobRepository(db *db.DB) *JobRepository {
	return &JobRepository{db: db}
}

const jobColumns = `
	id, user_id, workflow_id, mode, inputs, files,
	prepared_workflow, status, result, error_message, created_at
`

const insertJobQuery = `
	INSERT INTO job (
		id, user_id, workflow_id, mode, inputs, files,
		prepared_workflow, status, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`

// CreateTx inserts a new job within an open transaction so the quota check
// and the insert commit atomically
func (r *JobRepository) CreateTx(ctx context.Context, tx pgx.Tx, job *models.Job) error {
	_, err := tx.Exec(ctx, insertJobQuery,
		job.ID,
		job.UserID,
		job.WorkflowID,
		job.Mode,
		job.Inputs,
		job.Files,
		job.PreparedWorkflow,
		job.Status,
		job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// GetByID retrieves a job by its ID
func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM job WHERE id = $1`

	job, err := scanJob(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// GetByIDForUser retrieves a job only when it belongs to the user
func (r *JobRepository) GetByIDForUser(ctx context.Context, id uuid.UUID, userID string) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM job WHERE id = $1 AND user_id = $2`

	job, err := scanJob(r.db.QueryRow(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// ListByUser lists a user's jobs, newest first
func (r *JobRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM job
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// ClaimQueued locks and returns up to limit of the oldest QUEUED jobs.
// The SKIP LOCKED claim lets multiple scheduler processes coexist without
// dispatching the same job twice. Must run inside the caller's transaction.
func (r *JobRepository) ClaimQueued(ctx context.Context, tx pgx.Tx, limit int) ([]*models.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM job
		WHERE status = 'QUEUED'
		ORDER BY created_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`

	rows, err := tx.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim queued jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// SetRunning transitions a job to RUNNING
func (r *JobRepository) SetRunning(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	query := `UPDATE job SET status = 'RUNNING' WHERE id = $1 AND status = 'QUEUED'`

	tag, err := tx.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark job running: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s not in QUEUED state", id)
	}
	return nil
}

// UpdatePrepared replaces the compiled snapshot of a non-terminal job
func (r *JobRepository) UpdatePrepared(ctx context.Context, id uuid.UUID, prepared map[string]any) error {
	query := `
		UPDATE job SET prepared_workflow = $2
		WHERE id = $1 AND status NOT IN ('DONE', 'ERROR')
	`

	if _, err := r.db.Exec(ctx, query, id, prepared); err != nil {
		return fmt.Errorf("failed to update prepared workflow: %w", err)
	}
	return nil
}

// Finalize sets a terminal status with result or error message. Terminal
// jobs are never updated again.
func (r *JobRepository) Finalize(ctx context.Context, id uuid.UUID, status models.JobStatus, result map[string]any, errorMessage *string) error {
	if !status.Terminal() {
		return fmt.Errorf("finalize requires a terminal status, got %s", status)
	}

	query := `
		UPDATE job SET status = $2, result = $3, error_message = $4
		WHERE id = $1 AND status NOT IN ('DONE', 'ERROR')
	`

	if _, err := r.db.Exec(ctx, query, id, status, result, errorMessage); err != nil {
		return fmt.Errorf("failed to finalize job: %w", err)
	}
	return nil
}

// CountActiveByUser counts a user's QUEUED and RUNNING jobs
func (r *JobRepository) CountActiveByUser(ctx context.Context, tx pgx.Tx, userID string) (int, error) {
	query := `
		SELECT COUNT(*) FROM job
		WHERE user_id = $1 AND status IN ('QUEUED', 'RUNNING')
	`

	var count int
	if err := tx.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active jobs: %w", err)
	}
	return count, nil
}

// CountTodayByUser counts a user's jobs created in the trailing 24 hours
func (r *JobRepository) CountTodayByUser(ctx context.Context, tx pgx.Tx, userID string) (int, error) {
	query := `
		SELECT COUNT(*) FROM job
		WHERE user_id = $1 AND created_at >= now() - interval '24 hours'
	`

	var count int
	if err := tx.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count daily jobs: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	job := &models.Job{}
	err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.WorkflowID,
		&job.Mode,
		&job.Inputs,
		&job.Files,
		&job.PreparedWorkflow,
		&job.Status,
		&job.Result,
		&job.ErrorMessage,
		&job.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return job, nil
}

func collectJobs(rows pgx.Rows) ([]*models.Job, error) {
	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}
	return jobs, nil
}
