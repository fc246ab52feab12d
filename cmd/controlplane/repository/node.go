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

// NodeRepository handles database operations for worker nodes
type NodeRepository struct {
	db *db.DB
}

// NewNodeRepository creates a new node repository
func NewNodeRepository(db *db.DB) *NodeRepository {
	return &NodeRepository{db: db}
}

const nodeColumns = `
	id, name, base_url, is_active, max_queue, priority, last_seen, created_at
`

// Create inserts a new worker node
func (r *NodeRepository) Create(ctx context.Context, node *models.WorkerNode) error {
	query := `
		INSERT INTO worker_node (
			id, name, base_url, is_active, max_queue, priority, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.Exec(ctx, query,
		node.ID,
		node.Name,
		node.BaseURL,
		node.IsActive,
		node.MaxQueue,
		node.Priority,
		node.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create node: %w", err)
	}
	return nil
}

// GetByID retrieves a node by its ID
func (r *NodeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.WorkerNode, error) {
	query := `SELECT ` + nodeColumns + ` FROM worker_node WHERE id = $1`

	node, err := scanNode(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get node: %w", err)
	}
	return node, nil
}

// List returns all known nodes
func (r *NodeRepository) List(ctx context.Context) ([]*models.WorkerNode, error) {
	query := `SELECT ` + nodeColumns + ` FROM worker_node ORDER BY created_at ASC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	defer rows.Close()

	return collectNodes(rows)
}

// ListActive returns nodes eligible for dispatch
func (r *NodeRepository) ListActive(ctx context.Context) ([]*models.WorkerNode, error) {
	query := `SELECT ` + nodeColumns + ` FROM worker_node WHERE is_active ORDER BY created_at ASC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active nodes: %w", err)
	}
	defer rows.Close()

	return collectNodes(rows)
}

// Update changes a node's mutable settings
func (r *NodeRepository) Update(ctx context.Context, node *models.WorkerNode) error {
	query := `
		UPDATE worker_node
		SET name = $2, base_url = $3, is_active = $4, max_queue = $5, priority = $6
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query,
		node.ID,
		node.Name,
		node.BaseURL,
		node.IsActive,
		node.MaxQueue,
		node.Priority,
	)
	if err != nil {
		return fmt.Errorf("failed to update node: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// Delete removes a node
func (r *NodeRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM worker_node WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete node: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// MarkSeen records a successful health probe
func (r *NodeRepository) MarkSeen(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE worker_node SET last_seen = now(), is_active = true WHERE id = $1`

	if _, err := r.db.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to mark node seen: %w", err)
	}
	return nil
}

// Deactivate marks a node inactive after prolonged probe failures
func (r *NodeRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE worker_node SET is_active = false WHERE id = $1`

	if _, err := r.db.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to deactivate node: %w", err)
	}
	return nil
}

func scanNode(row rowScanner) (*models.WorkerNode, error) {
	node := &models.WorkerNode{}
	err := row.Scan(
		&node.ID,
		&node.Name,
		&node.BaseURL,
		&node.IsActive,
		&node.MaxQueue,
		&node.Priority,
		&node.LastSeen,
		&node.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return node, nil
}

func collectNodes(rows pgx.Rows) ([]*models.WorkerNode, error) {
	var nodes []*models.WorkerNode
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating nodes: %w", err)
	}
	return nodes, nil
}
