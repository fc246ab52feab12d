package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/google/uuid"

	"github.com/pixeon/renderplane/cmd/controlplane/compiler"
	"github.com/pixeon/renderplane/cmd/controlplane/models"
	"github.com/pixeon/renderplane/cmd/controlplane/repository"
	apperrors "github.com/pixeon/renderplane/common/errors"
	"github.com/pixeon/renderplane/common/logger"
)

// WorkflowService handles workflow definition management
type WorkflowService struct {
	repo *repository.WorkflowRepository
	log  *logger.Logger
}

// NewWorkflowService creates a new workflow service
func NewWorkflowService(repo *repository.WorkflowRepository, log *logger.Logger) *WorkflowService {
	return &WorkflowService{repo: repo, log: log}
}

// CreateRequest carries a new workflow definition
type CreateRequest struct {
	Slug         string          `json:"slug"`
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	RequiresMask bool            `json:"requires_mask"`
	UIGraph      json.RawMessage `json:"ui_graph"`
	Spec         *models.Spec    `json:"spec"`
}

// Create validates and stores a new workflow definition. The graph must
// parse and every spec binding must resolve before anything is persisted.
func (s *WorkflowService) Create(ctx context.Context, req *CreateRequest) (*models.WorkflowDefinition, error) {
	if req.Slug == "" || req.Name == "" {
		return nil, fmt.Errorf("%w: slug and name are required", apperrors.ErrInvalidInput)
	}
	if req.Spec == nil {
		return nil, fmt.Errorf("%w: spec is required", apperrors.ErrInvalidInput)
	}
	if err := req.Spec.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	if err := s.checkBindings(req.UIGraph, req.Spec); err != nil {
		return nil, err
	}

	wf := &models.WorkflowDefinition{
		ID:           uuid.New(),
		Slug:         req.Slug,
		Name:         req.Name,
		Category:     req.Category,
		Version:      1,
		IsActive:     true,
		RequiresMask: req.RequiresMask,
		UIGraph:      req.UIGraph,
		Spec:         req.Spec,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, wf); err != nil {
		return nil, err
	}

	s.log.Info("workflow created", "slug", wf.Slug, "id", wf.ID)
	return wf, nil
}

// Get returns a workflow by slug
func (s *WorkflowService) Get(ctx context.Context, slug string) (*models.WorkflowDefinition, error) {
	return s.repo.GetBySlug(ctx, slug)
}

// GetByID returns a workflow by id
func (s *WorkflowService) GetByID(ctx context.Context, id uuid.UUID) (*models.WorkflowDefinition, error) {
	return s.repo.GetByID(ctx, id)
}

// ListForUser lists active workflows with their image inputs filtered to
// those still reachable in the graph, so legacy graphs do not advertise
// stale upload slots.
func (s *WorkflowService) ListForUser(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	wfs, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	for _, wf := range wfs {
		if wf.Spec == nil || len(wf.Spec.Inputs.Images) == 0 {
			continue
		}
		relevant, err := s.relevantImages(wf)
		if err != nil {
			s.log.Warn("could not compute image relevance", "slug", wf.Slug, "error", err)
			continue
		}
		wf.Spec.Inputs.Images = relevant
	}
	return wfs, nil
}

func (s *WorkflowService) relevantImages(wf *models.WorkflowDefinition) ([]models.ImageInput, error) {
	g, err := compiler.ParseGraph(wf.UIGraph)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(wf.Spec.Inputs.Images))
	for _, img := range wf.Spec.Inputs.Images {
		ids = append(ids, img.Binding.NodeID)
	}
	reachable, err := g.RelevantImageBindings(ids)
	if err != nil {
		return nil, err
	}

	kept := make([]models.ImageInput, 0, len(wf.Spec.Inputs.Images))
	for _, img := range wf.Spec.Inputs.Images {
		if reachable[img.Binding.NodeID] {
			kept = append(kept, img)
		}
	}
	return kept, nil
}

// PatchSpec applies an RFC 7396 merge patch to a workflow's spec and bumps
// its version. The patched spec must still validate.
func (s *WorkflowService) PatchSpec(ctx context.Context, id uuid.UUID, patch json.RawMessage) (*models.WorkflowDefinition, error) {
	wf, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if wf.Spec == nil {
		return nil, fmt.Errorf("%w: workflow has no spec", apperrors.ErrInvalidInput)
	}

	current, err := json.Marshal(wf.Spec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal spec: %w", err)
	}

	merged, err := jsonpatch.MergePatch(current, patch)
	if err != nil {
		return nil, fmt.Errorf("%w: merge patch failed: %v", apperrors.ErrInvalidInput, err)
	}

	var spec models.Spec
	if err := json.Unmarshal(merged, &spec); err != nil {
		return nil, fmt.Errorf("%w: patched spec is malformed: %v", apperrors.ErrInvalidInput, err)
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	if err := s.checkBindings(wf.UIGraph, &spec); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateSpec(ctx, id, &spec); err != nil {
		return nil, err
	}

	wf.Spec = &spec
	wf.Version++
	s.log.Info("workflow spec patched", "slug", wf.Slug, "version", wf.Version)
	return wf, nil
}

// SetActive flips a workflow's availability
func (s *WorkflowService) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	return s.repo.SetActive(ctx, id, active)
}

// checkBindings verifies that every binding in the spec points at a node
// that exists in the graph.
func (s *WorkflowService) checkBindings(uiGraph json.RawMessage, spec *models.Spec) error {
	g, err := compiler.ParseGraph(uiGraph)
	if err != nil {
		return err
	}

	var bindings []*models.Binding
	for i := range spec.Inputs.Text {
		bindings = append(bindings, spec.Inputs.Text[i].Binding)
	}
	for i := range spec.Inputs.Params {
		bindings = append(bindings, spec.Inputs.Params[i].Binding)
	}
	for i := range spec.Inputs.Images {
		bindings = append(bindings, spec.Inputs.Images[i].Binding)
	}
	if spec.Inputs.Mask != nil {
		bindings = append(bindings, spec.Inputs.Mask.Binding)
	}

	for _, b := range bindings {
		if b == nil {
			continue
		}
		id, err := strconv.Atoi(b.NodeID)
		if err != nil {
			return apperrors.BindingNotFound(b.NodeID, b.Field)
		}
		if g.NodeByID(id) == nil {
			return apperrors.BindingNotFound(b.NodeID, b.Field)
		}
	}
	return nil
}
