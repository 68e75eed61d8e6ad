package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/uam-labs/uam-go/internal/pipeline"
	"github.com/uam-labs/uam-go/internal/platform/env"
	"github.com/uam-labs/uam-go/internal/platform/filewatch"
	"github.com/uam-labs/uam-go/internal/platform/httpserver"
	platformstore "github.com/uam-labs/uam-go/internal/platform/objectstore"
	"github.com/uam-labs/uam-go/internal/platform/postgres"
	"github.com/uam-labs/uam-go/internal/progress"
	repopg "github.com/uam-labs/uam-go/internal/repo/postgres"
	"github.com/uam-labs/uam-go/internal/service/runs"
	"github.com/uam-labs/uam-go/internal/storage/objectstore"
	"github.com/uam-labs/uam-go/internal/train"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := env.String("UAM_HTTP_ADDR", ":8080")
	shutdownTimeout, err := env.Duration("UAM_HTTP_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		logger.Error("invalid shutdown timeout", "error", err)
		os.Exit(2)
	}
	pipelineWorkers, err := env.Int("UAM_PIPELINE_WORKERS", 2)
	if err != nil {
		logger.Error("invalid pipeline workers", "error", err)
		os.Exit(2)
	}
	searchWorkers, err := env.Int("UAM_SEARCH_WORKERS", 1)
	if err != nil {
		logger.Error("invalid search workers", "error", err)
		os.Exit(2)
	}
	pollInterval, err := env.Duration("UAM_PIPELINE_POLL_INTERVAL", 2*time.Second)
	if err != nil {
		logger.Error("invalid pipeline poll interval", "error", err)
		os.Exit(2)
	}
	downloadTTL, err := env.Duration("UAM_DOWNLOAD_URL_TTL", 15*time.Minute)
	if err != nil {
		logger.Error("invalid download url ttl", "error", err)
		os.Exit(2)
	}
	catalogPath := env.String("UAM_CATALOG_PATH", "")

	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid database config", "error", err)
		os.Exit(2)
	}
	db, err := postgres.Open(ctx, dbCfg)
	if err != nil {
		logger.Error("postgres unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	storeCfg, err := platformstore.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid object store config", "error", err)
		os.Exit(2)
	}
	storeClient, err := platformstore.NewMinIOClient(storeCfg)
	if err != nil {
		logger.Error("object store client init failed", "error", err)
		os.Exit(2)
	}
	startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = platformstore.EnsureBuckets(startupCtx, storeClient, storeCfg)
	cancel()
	if err != nil {
		logger.Error("object store unavailable", "error", err)
		os.Exit(1)
	}
	store, err := objectstore.NewMinioStoreWithClient(storeClient)
	if err != nil {
		logger.Error("object store wrapper init failed", "error", err)
		os.Exit(2)
	}

	runStore := repopg.NewRunStore(db)
	candidateStore := repopg.NewCandidateStore(db)
	artifactStore := repopg.NewArtifactStore(db)
	logStore := repopg.NewRunLogStore(db)
	datasetStore := repopg.NewDatasetStore(db)
	projectStore := repopg.NewProjectStore(db)

	hub := progress.NewHub()

	service := runs.New(runStore, candidateStore, artifactStore, logStore, datasetStore, projectStore)
	if service == nil {
		logger.Error("run service init failed")
		os.Exit(2)
	}

	buckets := pipeline.Buckets{
		Datasets:  storeCfg.BucketDatasets,
		Artifacts: storeCfg.BucketArtifacts,
		Models:    storeCfg.BucketModels,
	}

	catalog := loadCatalog(logger, catalogPath)
	searcher, err := train.NewSearcher(catalog, searchWorkers, hub, logger)
	if err != nil {
		logger.Error("searcher init failed", "error", err)
		os.Exit(2)
	}
	executor, err := pipeline.NewExecutor(pipeline.ExecutorConfig{
		Runs:       runStore,
		Candidates: candidateStore,
		Artifacts:  artifactStore,
		Logs:       logStore,
		Datasets:   datasetStore,
		Store:      store,
		Buckets:    buckets,
		Searcher:   searcher,
		Hub:        hub,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("executor init failed", "error", err)
		os.Exit(2)
	}
	dispatcher, err := pipeline.NewDispatcher(runStore, executor, pipelineWorkers, pollInterval, logger)
	if err != nil {
		logger.Error("dispatcher init failed", "error", err)
		os.Exit(2)
	}

	go func() {
		if err := dispatcher.Run(ctx); err != nil {
			logger.Error("dispatcher stopped", "error", err)
		}
	}()
	if catalogPath != "" {
		go watchCatalog(ctx, logger, catalogPath, executor, searchWorkers, hub)
	}

	api := newAnalysisAPI(logger, service, store, buckets, hub, downloadTTL)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", httpserver.Healthz("analysis"))
	mux.HandleFunc(
		"/readyz",
		httpserver.ReadyzWithChecks(
			"analysis",
			httpserver.ReadinessCheck{
				Name: "postgres",
				Check: func(ctx context.Context) error {
					checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
					defer cancel()
					return db.PingContext(checkCtx)
				},
			},
			httpserver.ReadinessCheck{
				Name: "minio",
				Check: func(ctx context.Context) error {
					checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
					defer cancel()
					return platformstore.CheckBuckets(checkCtx, storeClient, storeCfg)
				},
			},
		),
	)
	api.register(mux)

	cfg := httpserver.Config{
		Service:         "analysis",
		Addr:            addr,
		ShutdownTimeout: shutdownTimeout,
	}
	if err := httpserver.Run(ctx, logger, cfg, httpserver.Wrap(logger, "analysis", mux)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// watchCatalog swaps the executor's searcher whenever the catalog file
// changes. Runs already training keep the searcher they started with;
// a file that fails to parse falls back to the built-in families.
func watchCatalog(ctx context.Context, logger *slog.Logger, path string, executor *pipeline.Executor, workers int, hub *progress.Hub) {
	for ctx.Err() == nil {
		watchCtx, cancel, err := filewatch.UntilModified(ctx, path)
		if err != nil {
			logger.Warn("catalog watch unavailable", "path", path, "error", err)
			return
		}
		<-watchCtx.Done()
		cancel()
		if ctx.Err() != nil {
			return
		}

		catalog := loadCatalog(logger, path)
		searcher, err := train.NewSearcher(catalog, workers, hub, logger)
		if err != nil {
			logger.Error("searcher rebuild failed, keeping previous catalog", "error", err)
			continue
		}
		executor.SetSearcher(searcher)
		logger.Info("trainer catalog reloaded", "path", path)
	}
}

func loadCatalog(logger *slog.Logger, path string) *train.Catalog {
	if path == "" {
		return train.DefaultCatalog()
	}
	catalog, err := train.LoadCatalog(path)
	if err != nil {
		logger.Warn("catalog load failed, using built-in families", "path", path, "error", err)
		return train.DefaultCatalog()
	}
	logger.Info("trainer catalog loaded", "path", path)
	return catalog
}
