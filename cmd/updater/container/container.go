package container

import (
	"fmt"
	"time"

	"github.com/scaleflower/otrs-updater/cmd/updater/service"
	"github.com/scaleflower/otrs-updater/common/bootstrap"
	"github.com/scaleflower/otrs-updater/common/clients"
	"github.com/scaleflower/otrs-updater/common/repository"
)

// Container holds all initialized services and repositories (singleton pattern)
type Container struct {
	Components *bootstrap.Components

	// Repositories
	StatusRepo *repository.StatusRepository
	RunRepo    *repository.RunRepository
	StepRepo   *repository.StepRepository

	// Services
	Source        clients.Source
	UpdateService *service.UpdateService
	Poller        *service.Poller
}

// NewContainer initializes all services and repositories once
func NewContainer(components *bootstrap.Components) (*Container, error) {
	cfg := components.Config
	log := components.Logger

	// Repositories
	statusRepo := repository.NewStatusRepository(components.DB)
	runRepo := repository.NewRunRepository(components.DB)
	stepRepo := repository.NewStepRepository(components.DB)

	// Release sources: both providers are available per request, the
	// configured one is the default
	sources := newSources(components)
	source, ok := sources[cfg.Update.Source]
	if !ok {
		return nil, fmt.Errorf("unknown update source: %s", cfg.Update.Source)
	}

	// Pipeline collaborators (bottom-up: dependencies first)
	runner := service.NewExecRunner(cfg.Update.CommandTimeout, log)
	backup := service.NewBackupService(cfg.Backup, runner, log)
	extractor := service.NewPackageExtractor(log)
	syncer := service.NewProjectSynchronizer(cfg.Update.ProjectRoot, cfg.Update.PreservePaths, log)
	installer := service.NewDependencyInstaller(runner, cfg.Update.DepsCommand, cfg.Update.ProjectRoot)

	// The token is injected only for the migration step's duration
	var migrateEnv []string
	if cfg.Update.Token != "" {
		migrateEnv = []string{"UPDATE_TOKEN=" + cfg.Update.Token}
	}
	migrator := service.NewMigrationRunner(runner, cfg.Update.MigrateCommand, cfg.Update.MigrateScript, cfg.Update.ProjectRoot, migrateEnv)

	updateService := service.NewUpdateService(service.Deps{
		Config:    cfg,
		Logger:    log,
		Source:    source,
		Sources:   sources,
		Cache:     components.Cache,
		Queue:     components.Queue,
		Statuses:  statusRepo,
		Runs:      runRepo,
		Steps:     stepRepo,
		Backup:    backup,
		Extractor: extractor,
		Syncer:    syncer,
		Installer: installer,
		Migrator:  migrator,
	})

	poller := service.NewPoller(updateService, cfg.Update, log)

	return &Container{
		Components:    components,
		StatusRepo:    statusRepo,
		RunRepo:       runRepo,
		StepRepo:      stepRepo,
		Source:        source,
		UpdateService: updateService,
		Poller:        poller,
	}, nil
}

func newSources(components *bootstrap.Components) map[string]clients.Source {
	cfg := components.Config.Update
	timeout := 30 * time.Second
	if cfg.FetchTimeout > 0 {
		timeout = cfg.FetchTimeout
	}

	yunxiaoRepo := cfg.YunxiaoRepo
	if yunxiaoRepo == "" {
		yunxiaoRepo = cfg.Repo
	}

	github := clients.NewGitHubSource(cfg.Repo, cfg.Token, timeout, components.Logger)
	yunxiao := clients.NewYunxiaoSource(yunxiaoRepo, cfg.Token, timeout, components.Logger)

	return map[string]clients.Source{
		github.Name():  github,
		yunxiao.Name(): yunxiao,
	}
}
