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

// WorkflowRepository handles database operations for workflow definitions
type WorkflowRepository struct {
	db *db.DB
}

// NewWorkflowRepository creates a new workflow repository
func NewWorkflowRepository(db *db.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

const workflowColumns = `
	id, slug, name, category, version, is_active, requires_mask,
	ui_graph, spec, created_at
`

// Create inserts a new workflow definition
func (r *WorkflowRepository) Create(ctx context.Context, wf *models.WorkflowDefinition) error {
	query := `
		INSERT INTO workflow_definition (
			id, slug, name, category, version, is_active, requires_mask,
			ui_graph, spec, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.Exec(ctx, query,
		wf.ID,
		wf.Slug,
		wf.Name,
		wf.Category,
		wf.Version,
		wf.IsActive,
		wf.RequiresMask,
		wf.UIGraph,
		wf.Spec,
		wf.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create workflow: %w", err)
	}
	return nil
}

// GetByID retrieves a workflow by its ID
func (r *WorkflowRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.WorkflowDefinition, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflow_definition WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetBySlug retrieves a workflow by its unique slug
func (r *WorkflowRepository) GetBySlug(ctx context.Context, slug string) (*models.WorkflowDefinition, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflow_definition WHERE slug = $1`
	return r.getOne(ctx, query, slug)
}

func (r *WorkflowRepository) getOne(ctx context.Context, query string, arg any) (*models.WorkflowDefinition, error) {
	wf, err := scanWorkflow(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}
	return wf, nil
}

// ListActive lists workflows available for submission
func (r *WorkflowRepository) ListActive(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM workflow_definition
		WHERE is_active
		ORDER BY category ASC, name ASC
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	var wfs []*models.WorkflowDefinition
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		wfs = append(wfs, wf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}
	return wfs, nil
}

// UpdateSpec replaces a workflow's spec and bumps its version
func (r *WorkflowRepository) UpdateSpec(ctx context.Context, id uuid.UUID, spec *models.Spec) error {
	query := `
		UPDATE workflow_definition
		SET spec = $2, version = version + 1
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query, id, spec)
	if err != nil {
		return fmt.Errorf("failed to update workflow spec: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// SetActive flips a workflow's availability
func (r *WorkflowRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE workflow_definition SET is_active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("failed to set workflow active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func scanWorkflow(row rowScanner) (*models.WorkflowDefinition, error) {
	wf := &models.WorkflowDefinition{}
	err := row.Scan(
		&wf.ID,
		&wf.Slug,
		&wf.Name,
		&wf.Category,
		&wf.Version,
		&wf.IsActive,
		&wf.RequiresMask,
		&wf.UIGraph,
		&wf.Spec,
		&wf.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return wf, nil
}
