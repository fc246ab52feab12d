package container

import (
	"time"

	"github.com/pixeon/renderplane/cmd/controlplane/catalog"
	"github.com/pixeon/renderplane/cmd/controlplane/compiler"
	"github.com/pixeon/renderplane/cmd/controlplane/health"
	"github.com/pixeon/renderplane/cmd/controlplane/progress"
	"github.com/pixeon/renderplane/cmd/controlplane/quota"
	"github.com/pixeon/renderplane/cmd/controlplane/repository"
	"github.com/pixeon/renderplane/cmd/controlplane/scheduler"
	"github.com/pixeon/renderplane/cmd/controlplane/service"
	"github.com/pixeon/renderplane/cmd/controlplane/staging"
	"github.com/pixeon/renderplane/common/bootstrap"
	"github.com/pixeon/renderplane/common/clients"
)

// Container holds all initialized services and repositories (singleton pattern)
type Container struct {
	Components *bootstrap.Components

	// Worker-facing plumbing
	Worker   *clients.WorkerClient
	Catalogs *catalog.Client
	Stager   *staging.Stager
	Registry *progress.Registry
	Tracker  *progress.Tracker

	// Repositories
	JobRepo      *repository.JobRepository
	ExecRepo     *repository.ExecutionRepository
	NodeRepo     *repository.NodeRepository
	WorkflowRepo *repository.WorkflowRepository
	LimitsRepo   *repository.LimitsRepository

	// Services
	JobService      *service.JobService
	WorkflowService *service.WorkflowService
	NodeService     *service.NodeService
	UploadService   *service.UploadService

	// Background loops
	Scheduler  *scheduler.Scheduler
	HealthLoop *health.Loop
}

// NewContainer initializes all services and repositories once
func NewContainer(components *bootstrap.Components) (*Container, error) {
	cfg := components.Config
	log := components.Logger

	worker := clients.NewWorkerClient(cfg, log)
	catalogs := catalog.NewClient(worker, components.Cache, cfg.Cache.CatalogTTL, log)
	stager := staging.NewStager(worker, components.Storage, log)
	merger := staging.NewMerger(components.Storage, log)
	registry := progress.NewRegistry()
	tracker := progress.NewTracker(registry, cfg.Worker.ProgressPingInterval, log)

	jobRepo := repository.NewJobRepository(components.DB)
	execRepo := repository.NewExecutionRepository(components.DB)
	nodeRepo := repository.NewNodeRepository(components.DB)
	workflowRepo := repository.NewWorkflowRepository(components.DB)
	limitsRepo := repository.NewLimitsRepository(components.DB)

	enforcer := quota.NewEnforcer(limitsRepo, jobRepo)
	// Shared across concurrent submissions; must come from NewSeedSource
	rng := compiler.NewSeedSource(time.Now().UnixNano())

	jobService := service.NewJobService(
		components.DB,
		jobRepo,
		execRepo,
		workflowRepo,
		enforcer,
		merger,
		registry,
		rng,
		log,
	)
	workflowService := service.NewWorkflowService(workflowRepo, log)
	nodeService := service.NewNodeService(nodeRepo, catalogs, log)
	uploadService := service.NewUploadService(components.Storage, log)

	sched := scheduler.New(
		cfg.Scheduler,
		components.DB,
		jobRepo,
		execRepo,
		nodeRepo,
		worker,
		catalogs,
		stager,
		tracker,
		registry,
		log,
	)
	healthLoop := health.NewLoop(nodeRepo, worker, cfg.Health, log)

	return &Container{
		Components:      components,
		Worker:          worker,
		Catalogs:        catalogs,
		Stager:          stager,
		Registry:        registry,
		Tracker:         tracker,
		JobRepo:         jobRepo,
		ExecRepo:        execRepo,
		NodeRepo:        nodeRepo,
		WorkflowRepo:    workflowRepo,
		LimitsRepo:      limitsRepo,
		JobService:      jobService,
		WorkflowService: workflowService,
		NodeService:     nodeService,
		UploadService:   uploadService,
		Scheduler:       sched,
		HealthLoop:      healthLoop,
	}, nil
}
