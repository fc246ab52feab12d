package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/pixeon/renderplane/cmd/controlplane/compiler"
	"github.com/pixeon/renderplane/cmd/controlplane/models"
	"github.com/pixeon/renderplane/cmd/controlplane/progress"
	"github.com/pixeon/renderplane/cmd/controlplane/quota"
	"github.com/pixeon/renderplane/cmd/controlplane/repository"
	"github.com/pixeon/renderplane/common/db"
	apperrors "github.com/pixeon/renderplane/common/errors"
	"github.com/pixeon/renderplane/common/logger"
)

// SubmitRequest is one user submission of a workflow
type SubmitRequest struct {
	WorkflowSlug string         `json:"workflow_slug"`
	Mode         string         `json:"mode"`
	Inputs       map[string]any `json:"inputs"`
	// Spec input key -> storage path returned by the upload endpoint
	Files map[string]string `json:"files"`
}

// JobService handles job submission and retrieval
type JobService struct {
	db        *db.DB
	jobs      *repository.JobRepository
	execs     *repository.ExecutionRepository
	workflows *repository.WorkflowRepository
	quota     *quota.Enforcer
	merger    compiler.FileMerger
	registry  *progress.Registry
	rng       *rand.Rand
	log       *logger.Logger
}

// NewJobService creates a new job service. The rand source is injected so
// seed randomization is reproducible under test.
func NewJobService(
	database *db.DB,
	jobs *repository.JobRepository,
	execs *repository.ExecutionRepository,
	workflows *repository.WorkflowRepository,
	enforcer *quota.Enforcer,
	merger compiler.FileMerger,
	registry *progress.Registry,
	rng *rand.Rand,
	log *logger.Logger,
) *JobService {
	return &JobService{
		db:        database,
		jobs:      jobs,
		execs:     execs,
		workflows: workflows,
		quota:     enforcer,
		merger:    merger,
		registry:  registry,
		rng:       rng,
		log:       log,
	}
}

// Submit validates and compiles a submission, then persists the job QUEUED.
// The quota check and the insert share one transaction so concurrent
// submissions cannot overshoot the limit: when the quota rejects, no job
// row exists.
func (s *JobService) Submit(ctx context.Context, userID string, req *SubmitRequest) (*models.Job, error) {
	wf, err := s.workflows.GetBySlug(ctx, req.WorkflowSlug)
	if err != nil {
		return nil, err
	}
	if !wf.IsActive || wf.Spec == nil {
		return nil, apperrors.ErrNotFound
	}

	mode := req.Mode
	if mode == "" {
		mode = models.DefaultMode
	}
	if !wf.Spec.HasMode(mode) {
		return nil, apperrors.InvalidModeForKey(mode, wf.Slug)
	}

	if wf.RequiresMask {
		if _, ok := req.Files[maskKey(wf.Spec)]; !ok {
			return nil, fmt.Errorf("%w: workflow requires a mask upload", apperrors.ErrInvalidInput)
		}
	}

	texts, params := splitInputs(wf.Spec, req.Inputs)

	for _, t := range wf.Spec.Inputs.Text {
		if t.Required && texts[t.Key] == "" && t.Default == "" {
			return nil, fmt.Errorf("%w: required input %q missing", apperrors.ErrInvalidInput, t.Key)
		}
	}

	// Compile up front: binding errors surface to the submitter before
	// anything is persisted.
	compiled, err := compiler.Compile(ctx, compiler.Options{
		UIGraph:     wf.UIGraph,
		Spec:        wf.Spec,
		Mode:        mode,
		TextInputs:  texts,
		ParamInputs: params,
		Files:       req.Files,
		Rand:        s.rng,
		Merger:      s.merger,
	})
	if err != nil {
		return nil, err
	}

	job := &models.Job{
		ID:               uuid.New(),
		UserID:           userID,
		WorkflowID:       wf.ID,
		Mode:             mode,
		Inputs:           req.Inputs,
		Files:            compiled.Files,
		PreparedWorkflow: compiled.Payload,
		Status:           models.StatusQueued,
		CreatedAt:        time.Now().UTC(),
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.quota.Check(ctx, tx, userID); err != nil {
		return nil, err
	}
	if err := s.jobs.CreateTx(ctx, tx, job); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit job: %w", err)
	}

	s.log.WithJobID(job.ID.String()).Info("job submitted", "workflow", wf.Slug, "mode", mode)
	return job, nil
}

// Get returns a user's job by id
func (s *JobService) Get(ctx context.Context, userID string, id uuid.UUID) (*models.Job, error) {
	return s.jobs.GetByIDForUser(ctx, id, userID)
}

// List returns a user's jobs, newest first
func (s *JobService) List(ctx context.Context, userID string, limit, offset int) ([]*models.Job, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.jobs.ListByUser(ctx, userID, limit, offset)
}

// Progress returns the live progress record of a user's running job, or
// nil when no tracker has reported yet.
func (s *JobService) Progress(ctx context.Context, userID string, id uuid.UUID) (*progress.Progress, error) {
	job, err := s.jobs.GetByIDForUser(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	exec, err := s.execs.LatestByJob(ctx, job.ID)
	if err != nil || exec.PromptID == nil {
		return nil, nil
	}

	if p, ok := s.registry.Get(*exec.PromptID); ok {
		return &p, nil
	}
	return nil, nil
}

// splitInputs partitions the flat user input map by the spec's text and
// param key sets. Unknown keys are dropped.
func splitInputs(spec *models.Spec, inputs map[string]any) (map[string]string, map[string]any) {
	texts := make(map[string]string)
	params := make(map[string]any)

	for _, t := range spec.Inputs.Text {
		if v, ok := inputs[t.Key]; ok {
			texts[t.Key] = fmt.Sprintf("%v", v)
		}
	}
	for _, p := range spec.Inputs.Params {
		if v, ok := inputs[p.Key]; ok {
			params[p.Key] = v
		}
	}
	return texts, params
}

func maskKey(spec *models.Spec) string {
	if spec.Inputs.Mask == nil {
		return ""
	}
	return spec.Inputs.Mask.Key
}
