package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docsearch/internal/chunker"
	"github.com/xxxsen/docsearch/internal/config"
	"github.com/xxxsen/docsearch/internal/crawl"
	"github.com/xxxsen/docsearch/internal/model"
	appErr "github.com/xxxsen/docsearch/internal/pkg/errors"
	"github.com/xxxsen/docsearch/internal/worker"
)

type fakeFragmentWriter struct {
	mu       sync.Mutex
	frags    []model.Fragment
	failKeys map[string]bool
	gone     bool
	panics   bool
}

func (f *fakeFragmentWriter) BulkUpsert(ctx context.Context, frags []model.Fragment) ([]string, []string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panics {
		panic("fragment store blew up")
	}
	if f.gone {
		return nil, nil, appErr.ErrStoreGone
	}
	var indexed, skipped []string
	for _, frag := range frags {
		if f.failKeys[frag.DocKey] {
			skipped = append(skipped, frag.DocKey)
			continue
		}
		f.frags = append(f.frags, frag)
		indexed = append(indexed, frag.DocKey)
	}
	return indexed, skipped, nil
}

type fakeJobStore struct {
	mu   sync.Mutex
	jobs map[string]*model.IngestJob
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: map[string]*model.IngestJob{}}
}

func (f *fakeJobStore) Create(ctx context.Context, req *model.IngestRequest, now int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.NewString()
	f.jobs[id] = &model.IngestJob{ID: id, Status: model.JobStatusPending, Payload: req, Ctime: now, Mtime: now}
	return id, nil
}

func (f *fakeJobStore) Get(ctx context.Context, id string) (*model.IngestJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (f *fakeJobStore) UpdateStatusIf(ctx context.Context, id string, from, to string, now int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok || job.Status != from {
		return false, nil
	}
	job.Status = to
	job.Mtime = now
	return true, nil
}

func (f *fakeJobStore) FinishSuccess(ctx context.Context, id string, result *model.IngestResult, now int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok || job.Status != model.JobStatusStarted {
		return false, nil
	}
	job.Status = model.JobStatusSuccess
	job.Result = result
	job.Mtime = now
	return true, nil
}

func (f *fakeJobStore) FinishFailure(ctx context.Context, id string, jobErr string, now int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok || model.IsTerminalJobStatus(job.Status) {
		return false, nil
	}
	job.Status = model.JobStatusFailure
	job.Error = jobErr
	job.Mtime = now
	return true, nil
}

type contentEmbedder struct {
	failOn  string
	panicOn string
}

func (e *contentEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	if e.panicOn != "" && strings.Contains(text, e.panicOn) {
		panic("embedding provider crashed")
	}
	if e.failOn != "" && strings.Contains(text, e.failOn) {
		return nil, errors.New("embedding failed")
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeFetcher struct {
	pages []crawl.Page
}

func (f *fakeFetcher) Fetch(ctx context.Context, plan []string, perSec float64) []crawl.Page {
	return f.pages
}

func newTestIngest(t *testing.T, frags FragmentWriter, jobs JobStore, embedder Embedder, fetcher PageFetcher) *IngestService {
	t.Helper()
	pool, err := worker.NewPool(1)
	require.NoError(t, err)
	t.Cleanup(pool.Release)
	return NewIngestService(frags, jobs, embedder, fetcher,
		chunker.New(10, 2), pool, config.CrawlConfig{MaxPages: 10, SameDomainOnly: true, RateLimitPerSec: 100})
}

func writeTempMarkdown(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.md")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunSyncRejectsEmptyRequest(t *testing.T) {
	svc := newTestIngest(t, &fakeFragmentWriter{}, newFakeJobStore(), &contentEmbedder{}, &fakeFetcher{})
	_, err := svc.RunSync(context.Background(), &model.IngestRequest{})
	require.ErrorIs(t, err, appErr.ErrNoSources)
}

func TestRunSyncMarkdownFile(t *testing.T) {
	writer := &fakeFragmentWriter{}
	svc := newTestIngest(t, writer, newFakeJobStore(), &contentEmbedder{}, &fakeFetcher{})
	path := writeTempMarkdown(t, "# Guide\n\n"+strings.Repeat("token ", 30))

	result, err := svc.RunSync(context.Background(), &model.IngestRequest{MdPaths: []string{path}, Version: "v1"})
	require.NoError(t, err)
	require.Len(t, result.Sources, 1)
	require.Equal(t, "markdown", result.Sources[0].Kind)
	require.Empty(t, result.Sources[0].Error)
	require.Greater(t, result.ChunkCount, 1)
	require.Equal(t, result.ChunkCount, result.IndexedChunks)
	require.Empty(t, result.SkippedChunks)
	for _, frag := range writer.frags {
		require.Equal(t, "markdown", frag.Source)
		require.Equal(t, "v1", frag.Version)
		require.NotEmpty(t, frag.Vector)
	}
}

func TestRunSyncUnreadableFileIsReported(t *testing.T) {
	writer := &fakeFragmentWriter{}
	svc := newTestIngest(t, writer, newFakeJobStore(), &contentEmbedder{}, &fakeFetcher{})

	result, err := svc.RunSync(context.Background(), &model.IngestRequest{
		MdPaths: []string{"/nonexistent/file.md"},
	})
	require.NoError(t, err)
	require.Len(t, result.Sources, 1)
	require.NotEmpty(t, result.Sources[0].Error)
	require.Zero(t, result.ChunkCount)
}

func TestRunSyncWebPages(t *testing.T) {
	writer := &fakeFragmentWriter{}
	fetcher := &fakeFetcher{pages: []crawl.Page{
		{URL: "https://docs.example.com/intro", Text: strings.Repeat("intro ", 15)},
	}}
	svc := newTestIngest(t, writer, newFakeJobStore(), &contentEmbedder{}, fetcher)

	result, err := svc.RunSync(context.Background(), &model.IngestRequest{
		URLs: []string{"https://docs.example.com/intro"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"https://docs.example.com/intro"}, result.FetchedPages)
	require.NotEmpty(t, writer.frags)
	require.Equal(t, "docs.example.com", writer.frags[0].Source)
	require.True(t, strings.HasPrefix(writer.frags[0].DocID, "web::"))
}

func TestRunSyncEmbedFailureSkipsChunk(t *testing.T) {
	writer := &fakeFragmentWriter{}
	svc := newTestIngest(t, writer, newFakeJobStore(), &contentEmbedder{failOn: "poison"}, &fakeFetcher{})
	path := writeTempMarkdown(t, strings.Repeat("good ", 12)+"\n\n"+strings.Repeat("poison ", 12))

	result, err := svc.RunSync(context.Background(), &model.IngestRequest{MdPaths: []string{path}})
	require.NoError(t, err)
	require.NotEmpty(t, result.SkippedChunks)
	require.Equal(t, result.ChunkCount, result.IndexedChunks+len(result.SkippedChunks))
}

func TestRunSyncEmbedPanicSkipsChunk(t *testing.T) {
	writer := &fakeFragmentWriter{}
	svc := newTestIngest(t, writer, newFakeJobStore(), &contentEmbedder{panicOn: "poison"}, &fakeFetcher{})
	path := writeTempMarkdown(t, strings.Repeat("good ", 12)+"\n\n"+strings.Repeat("poison ", 12))

	result, err := svc.RunSync(context.Background(), &model.IngestRequest{MdPaths: []string{path}})
	require.NoError(t, err)
	require.NotEmpty(t, result.SkippedChunks)
	require.Greater(t, result.IndexedChunks, 0)
	require.Equal(t, result.ChunkCount, result.IndexedChunks+len(result.SkippedChunks))
}

func TestRunSyncStoreUnreachableFails(t *testing.T) {
	writer := &fakeFragmentWriter{gone: true}
	svc := newTestIngest(t, writer, newFakeJobStore(), &contentEmbedder{}, &fakeFetcher{})
	path := writeTempMarkdown(t, strings.Repeat("token ", 20))

	_, err := svc.RunSync(context.Background(), &model.IngestRequest{MdPaths: []string{path}})
	require.ErrorIs(t, err, appErr.ErrStoreGone)
}

func TestCreateJobLifecycle(t *testing.T) {
	writer := &fakeFragmentWriter{}
	jobs := newFakeJobStore()
	svc := newTestIngest(t, writer, jobs, &contentEmbedder{}, &fakeFetcher{})
	path := writeTempMarkdown(t, strings.Repeat("token ", 20))

	id, err := svc.CreateJob(context.Background(), &model.IngestRequest{MdPaths: []string{path}})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.Eventually(t, func() bool {
		job, err := svc.GetJob(context.Background(), id)
		return err == nil && job.Status == model.JobStatusSuccess
	}, 5*time.Second, 10*time.Millisecond)

	job, err := svc.GetJob(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, job.Result)
	require.Equal(t, job.Result.ChunkCount, job.Result.IndexedChunks)
}

func TestCreateJobFailureState(t *testing.T) {
	writer := &fakeFragmentWriter{gone: true}
	jobs := newFakeJobStore()
	svc := newTestIngest(t, writer, jobs, &contentEmbedder{}, &fakeFetcher{})
	path := writeTempMarkdown(t, strings.Repeat("token ", 20))

	id, err := svc.CreateJob(context.Background(), &model.IngestRequest{MdPaths: []string{path}})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		job, err := svc.GetJob(context.Background(), id)
		return err == nil && job.Status == model.JobStatusFailure
	}, 5*time.Second, 10*time.Millisecond)

	job, err := svc.GetJob(context.Background(), id)
	require.NoError(t, err)
	require.NotEmpty(t, job.Error)
}

func TestCreateJobPanicEndsTerminal(t *testing.T) {
	writer := &fakeFragmentWriter{panics: true}
	jobs := newFakeJobStore()
	svc := newTestIngest(t, writer, jobs, &contentEmbedder{}, &fakeFetcher{})
	path := writeTempMarkdown(t, strings.Repeat("token ", 20))

	id, err := svc.CreateJob(context.Background(), &model.IngestRequest{MdPaths: []string{path}})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		job, err := svc.GetJob(context.Background(), id)
		return err == nil && job.Status == model.JobStatusFailure
	}, 5*time.Second, 10*time.Millisecond)

	job, err := svc.GetJob(context.Background(), id)
	require.NoError(t, err)
	require.Contains(t, job.Error, "panic")
}

func TestCreateJobNoSources(t *testing.T) {
	svc := newTestIngest(t, &fakeFragmentWriter{}, newFakeJobStore(), &contentEmbedder{}, &fakeFetcher{})
	_, err := svc.CreateJob(context.Background(), nil)
	require.ErrorIs(t, err, appErr.ErrNoSources)
}
