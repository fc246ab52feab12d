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

// ExecutionRepository handles database operations for job executions
type ExecutionRepository struct {
	db *db.DB
}

// NewExecutionRepository creates a new execution repository
func NewExecutionRepository(db *db.DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

const executionColumns = `
	id, job_id, node_id, status, prompt_id,
	error_message, started_at, finished_at, created_at
`

// Create inserts a new execution
func (r *ExecutionRepository) Create(ctx context.Context, exec *models.JobExecution) error {
	query := `
		INSERT INTO job_execution (
			id, job_id, node_id, status, prompt_id,
			error_message, started_at, finished_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.Exec(ctx, query,
		exec.ID,
		exec.JobID,
		exec.NodeID,
		exec.Status,
		exec.PromptID,
		exec.ErrorMessage,
		exec.StartedAt,
		exec.FinishedAt,
		exec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create execution: %w", err)
	}
	return nil
}

// LatestByJob returns the most recent execution for a job
func (r *ExecutionRepository) LatestByJob(ctx context.Context, jobID uuid.UUID) (*models.JobExecution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM job_execution
		WHERE job_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	exec, err := scanExecution(r.db.QueryRow(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest execution: %w", err)
	}
	return exec, nil
}

// SetPromptID records the worker-assigned prompt id after submission
func (r *ExecutionRepository) SetPromptID(ctx context.Context, id uuid.UUID, promptID string) error {
	query := `UPDATE job_execution SET prompt_id = $2 WHERE id = $1`

	if _, err := r.db.Exec(ctx, query, id, promptID); err != nil {
		return fmt.Errorf("failed to set prompt id: %w", err)
	}
	return nil
}

// Finalize sets a terminal status and finished_at on an execution
func (r *ExecutionRepository) Finalize(ctx context.Context, id uuid.UUID, status models.JobStatus, errorMessage *string) error {
	if !status.Terminal() {
		return fmt.Errorf("finalize requires a terminal status, got %s", status)
	}

	query := `
		UPDATE job_execution
		SET status = $2, error_message = $3, finished_at = now()
		WHERE id = $1 AND status NOT IN ('DONE', 'ERROR')
	`

	if _, err := r.db.Exec(ctx, query, id, status, errorMessage); err != nil {
		return fmt.Errorf("failed to finalize execution: %w", err)
	}
	return nil
}

// ListRunningWithPrompt returns up to limit RUNNING executions that have a
// prompt id, oldest first. These are the ones the poll phase checks.
func (r *ExecutionRepository) ListRunningWithPrompt(ctx context.Context, limit int) ([]*models.JobExecution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM job_execution
		WHERE status = 'RUNNING' AND prompt_id IS NOT NULL
		ORDER BY started_at ASC
		LIMIT $1
	`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list running executions: %w", err)
	}
	defer rows.Close()

	var execs []*models.JobExecution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		execs = append(execs, exec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}
	return execs, nil
}

// ActiveCounts returns the number of QUEUED and RUNNING executions per node
func (r *ExecutionRepository) ActiveCounts(ctx context.Context) (map[uuid.UUID]int, error) {
	query := `
		SELECT node_id, COUNT(*)
		FROM job_execution
		WHERE status IN ('QUEUED', 'RUNNING')
		GROUP BY node_id
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count active executions: %w", err)
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int)
	for rows.Next() {
		var nodeID uuid.UUID
		var count int
		if err := rows.Scan(&nodeID, &count); err != nil {
			return nil, fmt.Errorf("failed to scan execution count: %w", err)
		}
		counts[nodeID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating execution counts: %w", err)
	}
	return counts, nil
}

func scanExecution(row rowScanner) (*models.JobExecution, error) {
	exec := &models.JobExecution{}
	err := row.Scan(
		&exec.ID,
		&exec.JobID,
		&exec.NodeID,
		&exec.Status,
		&exec.PromptID,
		&exec.ErrorMessage,
		&exec.StartedAt,
		&exec.FinishedAt,
		&exec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return exec, nil
}
