package handler_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/xxxsen/common/webapi"

	"github.com/xxxsen/docsearch/internal/chunker"
	"github.com/xxxsen/docsearch/internal/config"
	"github.com/xxxsen/docsearch/internal/filestore"
	"github.com/xxxsen/docsearch/internal/handler"
	"github.com/xxxsen/docsearch/internal/repo"
	"github.com/xxxsen/docsearch/internal/service"
	"github.com/xxxsen/docsearch/internal/worker"
	"github.com/xxxsen/docsearch/test/testutil"
)

const testAPIKey = "test-key"

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	return []float32{0.5, 0.5, 0.5}, nil
}

type probe3 struct{}

func (probe3) Dims() int { return 3 }

type stubAnswerer struct{}

func (stubAnswerer) Answer(ctx context.Context, question string, sources []string) (string, error) {
	return "generated answer", nil
}

func setupRouter(t *testing.T) (http.Handler, func()) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, cleanup := testutil.OpenTestDB(t)
	fragRepo := repo.NewFragmentRepo(db)
	jobRepo := repo.NewIngestJobRepo(db)

	pool, err := worker.NewPool(2)
	require.NoError(t, err)

	splitter := chunker.New(20, 4)
	ingestService := service.NewIngestService(fragRepo, jobRepo, stubEmbedder{}, nil,
		splitter, pool, config.CrawlConfig{MaxPages: 10, SameDomainOnly: true, RateLimitPerSec: 100})
	searchService := service.NewSearchService(fragRepo, stubEmbedder{}, stubAnswerer{},
		config.SearchConfig{BM25TopN: 50, RRFK: 60, QueryTopK: 8})
	sourceService := service.NewSourceService(fragRepo)

	tmpDir := t.TempDir()
	store, err := filestore.New(config.FileStoreConfig{
		Type: "local",
		Data: map[string]interface{}{"dir": tmpDir},
	})
	require.NoError(t, err)
	uploadService := service.NewUploadService(store, ingestService, tmpDir)

	deps := handler.RouterDeps{
		Ingest:  handler.NewIngestHandler(ingestService),
		Query:   handler.NewQueryHandler(searchService),
		Sources: handler.NewSourceHandler(sourceService),
		Status:  handler.NewStatusHandler(db, pool, probe3{}),
		Upload:  handler.NewUploadHandler(uploadService),
		APIKey:  testAPIKey,
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		"",
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
	)
	require.NoError(t, err)

	return engine, func() {
		pool.Release()
		cleanup()
	}
}
