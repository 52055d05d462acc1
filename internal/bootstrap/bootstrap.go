// Package bootstrap provides dependency initialization for the StoryForge API.
package bootstrap

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/maauso/storyforge-api/internal/checkpoint"
	"github.com/maauso/storyforge-api/internal/config"
	"github.com/maauso/storyforge-api/internal/encoder"
	"github.com/maauso/storyforge-api/internal/format"
	"github.com/maauso/storyforge-api/internal/gateway"
	"github.com/maauso/storyforge-api/internal/generate"
	"github.com/maauso/storyforge-api/internal/pipeline"
	"github.com/maauso/storyforge-api/internal/render"
	"github.com/maauso/storyforge-api/internal/retry"
	"github.com/maauso/storyforge-api/internal/session"
	"github.com/maauso/storyforge-api/internal/storage"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	Registry    *format.Registry
	Router      *pipeline.Router
	Checkpoints *checkpoint.Manager
	Sessions    session.Store
	Renders     *render.Manager
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	// Format registry: built-in catalog plus optional overrides from disk
	registry := format.NewDefaultRegistry()
	if cfg.FormatCatalogPath != "" {
		if err := registry.LoadCatalog(cfg.FormatCatalogPath); err != nil {
			return nil, fmt.Errorf("load format catalog: %w", err)
		}
		logger.Info("format catalog loaded",
			slog.String("path", cfg.FormatCatalogPath),
		)
	}

	// Generation gateway shared by every pipeline
	client, err := gateway.NewClient(cfg.GatewayBaseURL, gateway.WithAPIKey(cfg.GatewayAPIKey))
	if err != nil {
		return nil, fmt.Errorf("create gateway client: %w", err)
	}
	services := generate.Services{
		Script:   client,
		Research: client,
		Image:    client,
		Speech:   client,
	}

	checkpoints := checkpoint.NewManager(logger)

	sessions, err := session.NewFileStore(filepath.Join(cfg.DataDir, "sessions"))
	if err != nil {
		return nil, fmt.Errorf("create session store: %w", err)
	}

	deps := &pipeline.Deps{
		Services:          services,
		Checkpoints:       checkpoints,
		Sessions:          sessions,
		Policy:            retry.DefaultPolicy(),
		CheckpointTimeout: cfg.CheckpointTimeout,
		Logger:            logger,
	}

	router := pipeline.NewRouter(registry, logger)
	registerPipelines(router, registry, deps, logger)

	renders, err := initRenderQueue(cfg, logger)
	if err != nil {
		return nil, err
	}

	return &Dependencies{
		Registry:    registry,
		Router:      router,
		Checkpoints: checkpoints,
		Sessions:    sessions,
		Renders:     renders,
	}, nil
}

// registerPipelines attaches a pipeline to every catalog format. The
// documentary pipeline carries all long-form formats; advertisement and
// shorts have dedicated flows.
func registerPipelines(router *pipeline.Router, registry *format.Registry, deps *pipeline.Deps, logger *slog.Logger) {
	for _, meta := range registry.All() {
		var p pipeline.Pipeline
		switch meta.ID {
		case "advertisement":
			p = pipeline.NewAdvertisementPipeline(meta, deps)
		case "shorts":
			p = pipeline.NewShortsPipeline(meta, deps)
		default:
			p = pipeline.NewDocumentaryPipeline(meta, deps)
		}
		router.Register(p)
		logger.Debug("pipeline registered", slog.String("format_id", meta.ID))
	}
}

// initRenderQueue wires the render manager: ffmpeg encoder, durable job
// records, optional S3 upload, and crash recovery of persisted jobs.
func initRenderQueue(cfg *config.Config, logger *slog.Logger) (*render.Manager, error) {
	jobStore, err := render.NewFileStore(filepath.Join(cfg.DataDir, "render-jobs"))
	if err != nil {
		return nil, fmt.Errorf("create render job store: %w", err)
	}

	ffmpeg := encoder.NewFFmpegEncoder("", filepath.Join(cfg.DataDir, "render-work"))

	manager := render.NewManager(jobStore, ffmpeg, render.Options{
		MaxConcurrentJobs: cfg.MaxConcurrentJobs,
		MaxRetries:        cfg.JobMaxRetries,
		StallTimeout:      cfg.JobStallTimeout,
		MaxDuration:       cfg.JobMaxDuration,
		Retention:         cfg.JobRetention,
	}, logger)

	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}
	if cfg.S3Enabled() {
		manager.SetUploader(storage.NewVideoUploader(store))
	}

	if err := manager.Recover(); err != nil {
		return nil, fmt.Errorf("recover render jobs: %w", err)
	}
	manager.Start()
	return manager, nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	tempDir := filepath.Join(cfg.DataDir, "tmp")
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(tempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(tempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", tempDir),
	)
	return localStore, nil
}
