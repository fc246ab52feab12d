package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pixeon/renderplane/cmd/controlplane/catalog"
	"github.com/pixeon/renderplane/cmd/controlplane/models"
	"github.com/pixeon/renderplane/cmd/controlplane/repository"
	apperrors "github.com/pixeon/renderplane/common/errors"
	"github.com/pixeon/renderplane/common/logger"
)

// NodeService handles worker fleet management
type NodeService struct {
	repo     *repository.NodeRepository
	catalogs *catalog.Client
	log      *logger.Logger
}

// NewNodeService creates a new node service
func NewNodeService(repo *repository.NodeRepository, catalogs *catalog.Client, log *logger.Logger) *NodeService {
	return &NodeService{repo: repo, catalogs: catalogs, log: log}
}

// NodeRequest carries node create/update fields
type NodeRequest struct {
	Name     string `json:"name"`
	BaseURL  string `json:"base_url"`
	IsActive bool   `json:"is_active"`
	MaxQueue int    `json:"max_queue"`
	Priority int    `json:"priority"`
}

func (r *NodeRequest) validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: name is required", apperrors.ErrInvalidInput)
	}
	if !strings.HasPrefix(r.BaseURL, "http://") && !strings.HasPrefix(r.BaseURL, "https://") {
		return fmt.Errorf("%w: base_url must be an http(s) URL", apperrors.ErrInvalidInput)
	}
	if r.MaxQueue < 1 {
		return fmt.Errorf("%w: max_queue must be at least 1", apperrors.ErrInvalidInput)
	}
	return nil
}

// Create registers a new worker node
func (s *NodeService) Create(ctx context.Context, req *NodeRequest) (*models.WorkerNode, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	node := &models.WorkerNode{
		ID:        uuid.New(),
		Name:      req.Name,
		BaseURL:   strings.TrimRight(req.BaseURL, "/"),
		IsActive:  req.IsActive,
		MaxQueue:  req.MaxQueue,
		Priority:  req.Priority,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, node); err != nil {
		return nil, err
	}

	s.log.WithNodeID(node.ID.String()).Info("worker node registered", "base_url", node.BaseURL)
	return node, nil
}

// Get returns a node by id
func (s *NodeService) Get(ctx context.Context, id uuid.UUID) (*models.WorkerNode, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns all nodes
func (s *NodeService) List(ctx context.Context) ([]*models.WorkerNode, error) {
	return s.repo.List(ctx)
}

// Update changes a node's settings
func (s *NodeService) Update(ctx context.Context, id uuid.UUID, req *NodeRequest) (*models.WorkerNode, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	node, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	node.Name = req.Name
	node.BaseURL = strings.TrimRight(req.BaseURL, "/")
	node.IsActive = req.IsActive
	node.MaxQueue = req.MaxQueue
	node.Priority = req.Priority

	if err := s.repo.Update(ctx, node); err != nil {
		return nil, err
	}
	return node, nil
}

// Delete removes a node from the fleet
func (s *NodeService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

// RefreshCatalog drops and refetches the node's schema catalog. Admins use
// it after installing custom nodes on a worker.
func (s *NodeService) RefreshCatalog(ctx context.Context, id uuid.UUID) (int, error) {
	node, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return 0, err
	}

	cat, err := s.catalogs.Refresh(ctx, node.BaseURL)
	if err != nil {
		return 0, err
	}
	return len(cat.Classes), nil
}
