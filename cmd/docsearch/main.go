package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/docsearch/internal/ai"
	"github.com/xxxsen/docsearch/internal/chunker"
	"github.com/xxxsen/docsearch/internal/config"
	"github.com/xxxsen/docsearch/internal/crawl"
	"github.com/xxxsen/docsearch/internal/db"
	"github.com/xxxsen/docsearch/internal/embedcache"
	"github.com/xxxsen/docsearch/internal/filestore"
	"github.com/xxxsen/docsearch/internal/handler"
	"github.com/xxxsen/docsearch/internal/job"
	"github.com/xxxsen/docsearch/internal/middleware"
	"github.com/xxxsen/docsearch/internal/repo"
	"github.com/xxxsen/docsearch/internal/schedule"
	"github.com/xxxsen/docsearch/internal/service"
	"github.com/xxxsen/docsearch/internal/worker"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "docsearch",
		Short: "documentation search backend",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run docsearch server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger.Init(
				cfg.LogConfig.File,
				cfg.LogConfig.Level,
				int(cfg.LogConfig.FileCount),
				int(cfg.LogConfig.FileSize),
				int(cfg.LogConfig.KeepDays),
				cfg.LogConfig.Console,
			)
			logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))
			return runServer(cfg)
		},
	}

	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(newReindexCmd())

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func runServer(cfg *config.Config) error {
	ctx := context.Background()
	logutil.GetLogger(ctx).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("ai_provider", cfg.AI.Provider),
	)

	providerArgs := cfg.AI.Data
	if providerArgs == nil {
		providerArgs = cfg.AI
	}
	aiProvider, err := ai.NewProvider(cfg.AI.Provider, providerArgs)
	if err != nil {
		return fmt.Errorf("init ai provider: %w", err)
	}
	managerCfg := ai.ManagerConfig{
		Timeout:       cfg.AI.Timeout,
		MaxInputChars: cfg.AI.MaxInputChars,
		DefaultDims:   cfg.AI.DefaultDims,
	}
	gen := ai.NewGenerator(aiProvider, cfg.AI.Model)
	baseEmbedder := ai.NewEmbedder(aiProvider, cfg.AI.EmbedModel)

	// the vector columns need the embedding width before the schema can be
	// bootstrapped, so probe with the uncached embedder
	probe := ai.NewManager(gen, baseEmbedder, managerCfg)
	dims, err := probe.DetectDims(ctx)
	if err != nil {
		return fmt.Errorf("detect embedding dims: %w", err)
	}
	logutil.GetLogger(ctx).Info("embedding dims detected", zap.Int("dims", dims))

	conn, err := db.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	if err := db.ApplyMigrations(conn, dims); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	fragRepo := repo.NewFragmentRepo(conn)
	jobRepo := repo.NewIngestJobRepo(conn)
	cacheRepo := repo.NewEmbeddingCacheRepo(conn)

	manager := ai.NewManager(gen, wireEmbedCaches(cfg, baseEmbedder, cacheRepo), managerCfg)
	var embedder service.Embedder = manager

	pool, err := worker.NewPool(cfg.Worker.PoolSize)
	if err != nil {
		return err
	}
	defer pool.Release()

	splitter := chunker.New(cfg.Chunk.TargetSize, cfg.Chunk.OverlapTokens())
	fetcher := crawl.NewFetcher(time.Duration(cfg.HTTPTimeoutSec) * time.Second)
	ingestService := service.NewIngestService(fragRepo, jobRepo, embedder, fetcher, splitter, pool, cfg.Crawl)
	searchService := service.NewSearchService(fragRepo, embedder, manager, cfg.Search)
	sourceService := service.NewSourceService(fragRepo)

	var store filestore.Store
	if cfg.FileStore.Type != "" {
		store, err = filestore.New(cfg.FileStore)
		if err != nil {
			return fmt.Errorf("init file store: %w", err)
		}
	}
	uploadService := service.NewUploadService(store, ingestService, "")

	deps := handler.RouterDeps{
		Ingest:  handler.NewIngestHandler(ingestService),
		Query:   handler.NewQueryHandler(searchService),
		Sources: handler.NewSourceHandler(sourceService),
		Status:  handler.NewStatusHandler(conn, pool, manager),
		Upload:  handler.NewUploadHandler(uploadService),
		APIKey:  cfg.APIKey,
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(cfg.AllowedOrigins),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logutil.GetLogger(ctx).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.NewCronScheduler()
	_ = scheduler.AddJob(job.NewIngestCleanupJob(jobRepo, time.Duration(cfg.Retention.JobMaxAgeHours)*time.Hour), "17 * * * *")
	_ = scheduler.AddJob(job.NewEmbeddingCacheCleanupJob(cacheRepo, cfg.Retention.CacheMaxAgeDays), "43 3 * * *")
	scheduler.Start(runCtx)
	defer scheduler.Stop()

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(ctx).Error("server error", zap.Error(err))
		}
	}()

	<-runCtx.Done()
	logutil.GetLogger(ctx).Info("server stopping...")
	return nil
}

func wireEmbedCaches(cfg *config.Config, base ai.IEmbedder, cacheRepo *repo.EmbeddingCacheRepo) ai.IEmbedder {
	embedder := base
	if cfg.AI.DBCache {
		embedder = embedcache.WrapDBCacheToEmbedder(embedder, cacheRepo)
	}
	if cfg.AI.CacheSize > 0 {
		embedder = embedcache.WrapLruCacheToEmbedder(embedder, cfg.AI.CacheSize,
			time.Duration(cfg.AI.CacheTTLHours)*time.Hour)
	}
	return embedder
}

