package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docsearch/internal/ai"
	"github.com/xxxsen/docsearch/internal/config"
	"github.com/xxxsen/docsearch/internal/db"
	"github.com/xxxsen/docsearch/internal/repo"
	"github.com/xxxsen/docsearch/internal/service"
)

// newReindexCmd re-embeds every stored fragment with the currently
// configured embedding model. Use it after switching models of the same
// dimension; a dimension change needs a fresh index instead.
func newReindexCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "re-embed all stored fragments with the configured model",
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
			return runReindex(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	return cmd
}

func runReindex(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	providerArgs := cfg.AI.Data
	if providerArgs == nil {
		providerArgs = cfg.AI
	}
	aiProvider, err := ai.NewProvider(cfg.AI.Provider, providerArgs)
	if err != nil {
		return fmt.Errorf("init ai provider: %w", err)
	}
	manager := ai.NewManager(
		ai.NewGenerator(aiProvider, cfg.AI.Model),
		ai.NewEmbedder(aiProvider, cfg.AI.EmbedModel),
		ai.ManagerConfig{
			Timeout:       cfg.AI.Timeout,
			MaxInputChars: cfg.AI.MaxInputChars,
			DefaultDims:   cfg.AI.DefaultDims,
		},
	)
	dims, err := manager.DetectDims(ctx)
	if err != nil {
		return fmt.Errorf("detect embedding dims: %w", err)
	}
	conn, err := db.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer conn.Close()
	if err := db.ApplyMigrations(conn, dims); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	fragRepo := repo.NewFragmentRepo(conn)
	log := logutil.GetLogger(ctx)
	total := 0
	failed := 0
	err = fragRepo.IterateAll(ctx, 200, func(docKey, content string) error {
		vec, err := manager.Embed(ctx, content, service.TaskTypeDocument)
		if err != nil {
			log.Warn("re-embed failed", zap.String("doc_key", docKey), zap.Error(err))
			failed++
			return nil
		}
		if err := fragRepo.UpdateVector(ctx, docKey, vec); err != nil {
			return fmt.Errorf("update vector %s: %w", docKey, err)
		}
		total++
		if total%500 == 0 {
			log.Info("reindex progress", zap.Int("done", total))
		}
		return nil
	})
	if err != nil {
		return err
	}
	log.Info("reindex finished", zap.Int("updated", total), zap.Int("failed", failed))
	return nil
}
