// Package scheduler drives jobs from QUEUED through dispatch onto a worker
// node and polls running executions to a terminal state.
package scheduler

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/pixeon/renderplane/cmd/controlplane/catalog"
	"github.com/pixeon/renderplane/cmd/controlplane/compiler"
	"github.com/pixeon/renderplane/cmd/controlplane/models"
	"github.com/pixeon/renderplane/cmd/controlplane/progress"
	"github.com/pixeon/renderplane/cmd/controlplane/repository"
	"github.com/pixeon/renderplane/cmd/controlplane/results"
	"github.com/pixeon/renderplane/cmd/controlplane/staging"
	"github.com/pixeon/renderplane/common/clients"
	"github.com/pixeon/renderplane/common/config"
	"github.com/pixeon/renderplane/common/db"
	"github.com/pixeon/renderplane/common/logger"
)

// Scheduler is the single dispatch writer of a process. Horizontal scaling
// is safe because job claiming uses row locks with SKIP LOCKED.
type Scheduler struct {
	cfg      config.SchedulerConfig
	db       *db.DB
	jobs     *repository.JobRepository
	execs    *repository.ExecutionRepository
	nodes    *repository.NodeRepository
	worker   *clients.WorkerClient
	catalogs *catalog.Client
	stager   *staging.Stager
	tracker  *progress.Tracker
	registry *progress.Registry
	log      *logger.Logger
}

func New(
	cfg config.SchedulerConfig,
	database *db.DB,
	jobs *repository.JobRepository,
	execs *repository.ExecutionRepository,
	nodes *repository.NodeRepository,
	worker *clients.WorkerClient,
	catalogs *catalog.Client,
	stager *staging.Stager,
	tracker *progress.Tracker,
	registry *progress.Registry,
	log *logger.Logger,
) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		db:       database,
		jobs:     jobs,
		execs:    execs,
		nodes:    nodes,
		worker:   worker,
		catalogs: catalogs,
		stager:   stager,
		tracker:  tracker,
		registry: registry,
		log:      log,
	}
}

// Run blocks until ctx is canceled, ticking the dispatch and poll phases.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	s.log.Info("scheduler started", "tick", s.cfg.Tick, "dispatch_batch", s.cfg.DispatchBatch, "poll_batch", s.cfg.PollBatch)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one dispatch phase followed by one poll phase.
func (s *Scheduler) Tick(ctx context.Context) {
	s.dispatch(ctx)
	s.poll(ctx)
}

func (s *Scheduler) dispatch(ctx context.Context) {
	ranked, err := s.rankNodes(ctx)
	if err != nil {
		s.log.Error("node ranking failed", "error", err)
		return
	}
	if len(ranked) == 0 {
		return
	}

	limit := dispatchLimit(ranked, s.cfg.DispatchBatch)
	if limit == 0 {
		return
	}

	jobs, err := s.claim(ctx, limit)
	if err != nil {
		s.log.Error("job claim failed", "error", err)
		return
	}

	for _, job := range jobs {
		node := pickNode(ranked)
		if node == nil {
			// Cannot happen: the claim is capped at spare capacity
			s.log.Error("claimed job has no node slot", "job_id", job.ID)
			return
		}
		s.dispatchOne(ctx, job, node)
	}
}

// dispatchLimit caps a dispatch batch at the fleet's spare queue capacity.
// Jobs beyond it are never claimed and stay QUEUED for a later tick, so a
// full fleet can never error a healthy job.
func dispatchLimit(ranked []*rankedNode, batch int) int {
	spare := 0
	for _, r := range ranked {
		spare += r.node.MaxQueue - r.load
	}
	if spare < batch {
		return spare
	}
	return batch
}

// claim marks up to limit of the oldest QUEUED jobs RUNNING inside one
// transaction and returns them.
func (s *Scheduler) claim(ctx context.Context, limit int) ([]*models.Job, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	jobs, err := s.jobs.ClaimQueued(ctx, tx, limit)
	if err != nil {
		return nil, err
	}

	for _, job := range jobs {
		if err := s.jobs.SetRunning(ctx, tx, job.ID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return jobs, nil
}

type rankedNode struct {
	node *models.WorkerNode
	load int
}

// rankNodes returns active nodes with spare queue capacity, best first:
// least loaded, then most recently seen, then higher priority, then id.
func (s *Scheduler) rankNodes(ctx context.Context) ([]*rankedNode, error) {
	nodes, err := s.nodes.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := s.execs.ActiveCounts(ctx)
	if err != nil {
		return nil, err
	}

	var ranked []*rankedNode
	for _, node := range nodes {
		load := counts[node.ID]
		if load >= node.MaxQueue {
			continue
		}
		ranked = append(ranked, &rankedNode{node: node, load: load})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.load != b.load {
			return a.load < b.load
		}
		at, bt := lastSeen(a.node), lastSeen(b.node)
		if !at.Equal(bt) {
			return at.After(bt)
		}
		if a.node.Priority != b.node.Priority {
			return a.node.Priority > b.node.Priority
		}
		return a.node.ID.String() < b.node.ID.String()
	})
	return ranked, nil
}

// pickNode takes the best node with remaining capacity and charges one
// slot against it so a batch spreads across the fleet.
func pickNode(ranked []*rankedNode) *models.WorkerNode {
	var best *rankedNode
	for _, r := range ranked {
		if r.load >= r.node.MaxQueue {
			continue
		}
		if best == nil || r.load < best.load {
			best = r
		}
	}
	if best == nil {
		return nil
	}
	best.load++
	return best.node
}

func lastSeen(n *models.WorkerNode) time.Time {
	if n.LastSeen == nil {
		return time.Time{}
	}
	return *n.LastSeen
}

func (s *Scheduler) dispatchOne(ctx context.Context, job *models.Job, node *models.WorkerNode) {
	log := s.log.WithJobID(job.ID.String()).WithNodeID(node.ID.String())

	now := time.Now().UTC()
	exec := &models.JobExecution{
		ID:        uuid.New(),
		JobID:     job.ID,
		NodeID:    node.ID,
		Status:    models.StatusRunning,
		StartedAt: &now,
		CreatedAt: now,
	}
	if err := s.execs.Create(ctx, exec); err != nil {
		log.Error("failed to create execution", "error", err)
		s.failJob(ctx, job.ID, "failed to create execution")
		return
	}

	// Catalog fetch is best-effort: without it the payload still goes
	// through the sanitizer, just without schema coercion.
	var cat *catalog.Catalog
	if c, err := s.catalogs.Get(ctx, node.BaseURL); err != nil {
		log.Warn("catalog unavailable, dispatching without schema validation", "error", err)
	} else {
		cat = c
	}

	payload, warnings := compiler.Recompile(job.PreparedWorkflow, cat)
	for _, w := range warnings {
		log.Debug("schema coercion", "warning", w)
	}
	// Keep the stored snapshot equal to what actually ran
	if err := s.jobs.UpdatePrepared(ctx, job.ID, payload); err != nil {
		log.Warn("failed to persist recompiled payload", "error", err)
	}

	if err := s.stager.UploadAndPatch(ctx, node.BaseURL, payload, job.Files); err != nil {
		log.Error("input staging failed", "error", err)
		s.failExecution(ctx, exec.ID, job.ID, "input staging failed: "+err.Error())
		return
	}

	promptID, err := s.worker.Submit(ctx, node.BaseURL, payload)
	if err != nil {
		log.Error("submit failed", "error", err)
		s.failExecution(ctx, exec.ID, job.ID, "submit failed: "+err.Error())
		return
	}

	if err := s.execs.SetPromptID(ctx, exec.ID, promptID); err != nil {
		log.Error("failed to store prompt id", "error", err)
		s.failExecution(ctx, exec.ID, job.ID, "failed to store prompt id")
		return
	}

	s.tracker.EnsureTracking(ctx, node.BaseURL, node.ID.String(), promptID)
	log.Info("job dispatched", "prompt_id", promptID)
}

func (s *Scheduler) poll(ctx context.Context) {
	execs, err := s.execs.ListRunningWithPrompt(ctx, s.cfg.PollBatch)
	if err != nil {
		s.log.Error("poll listing failed", "error", err)
		return
	}

	for _, exec := range execs {
		s.pollOne(ctx, exec)
	}
}

func (s *Scheduler) pollOne(ctx context.Context, exec *models.JobExecution) {
	log := s.log.WithJobID(exec.JobID.String()).WithPromptID(*exec.PromptID)

	node, err := s.nodes.GetByID(ctx, exec.NodeID)
	if err != nil {
		log.Error("poll cannot resolve node", "node_id", exec.NodeID, "error", err)
		s.failExecution(ctx, exec.ID, exec.JobID, "worker node no longer exists")
		s.registry.Clear(*exec.PromptID)
		return
	}

	outputs, err := s.worker.History(ctx, node.BaseURL, *exec.PromptID)
	if err != nil {
		log.Error("history poll failed", "error", err)
		s.failExecution(ctx, exec.ID, exec.JobID, "history poll failed: "+err.Error())
		s.registry.Clear(*exec.PromptID)
		return
	}
	if outputs == nil {
		// Still running on the worker
		return
	}

	if err := s.execs.Finalize(ctx, exec.ID, models.StatusDone, nil); err != nil {
		log.Error("failed to finalize execution", "error", err)
		return
	}
	result := results.Normalize(outputs)
	if err := s.jobs.Finalize(ctx, exec.JobID, models.StatusDone, result, nil); err != nil {
		log.Error("failed to finalize job", "error", err)
		return
	}
	s.registry.Clear(*exec.PromptID)
	log.Info("job finished")
}

func (s *Scheduler) failExecution(ctx context.Context, execID, jobID uuid.UUID, msg string) {
	if err := s.execs.Finalize(ctx, execID, models.StatusError, &msg); err != nil {
		s.log.Error("failed to mark execution errored", "execution_id", execID, "error", err)
	}
	s.failJob(ctx, jobID, msg)
}

func (s *Scheduler) failJob(ctx context.Context, jobID uuid.UUID, msg string) {
	if err := s.jobs.Finalize(ctx, jobID, models.StatusError, nil, &msg); err != nil {
		s.log.Error("failed to mark job errored", "job_id", jobID, "error", err)
	}
}
