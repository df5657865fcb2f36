package service

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docsearch/internal/chunker"
	"github.com/xxxsen/docsearch/internal/config"
	"github.com/xxxsen/docsearch/internal/crawl"
	"github.com/xxxsen/docsearch/internal/model"
	"github.com/xxxsen/docsearch/internal/parse"
	appErr "github.com/xxxsen/docsearch/internal/pkg/errors"
	"github.com/xxxsen/docsearch/internal/worker"
)

// TaskTypeDocument and TaskTypeQuery are the embedding task hints sent to
// the AI provider.
const (
	TaskTypeDocument = "RETRIEVAL_DOCUMENT"
	TaskTypeQuery    = "RETRIEVAL_QUERY"
)

type FragmentWriter interface {
	BulkUpsert(ctx context.Context, frags []model.Fragment) (indexed []string, skipped []string, err error)
}

type JobStore interface {
	Create(ctx context.Context, req *model.IngestRequest, now int64) (string, error)
	Get(ctx context.Context, id string) (*model.IngestJob, error)
	UpdateStatusIf(ctx context.Context, id string, from, to string, now int64) (bool, error)
	FinishSuccess(ctx context.Context, id string, result *model.IngestResult, now int64) (bool, error)
	FinishFailure(ctx context.Context, id string, jobErr string, now int64) (bool, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string, taskType string) ([]float32, error)
}

type PageFetcher interface {
	Fetch(ctx context.Context, plan []string, perSec float64) []crawl.Page
}

// IngestService turns raw sources into indexed fragments, tracking each run
// as a job record.
type IngestService struct {
	frags    FragmentWriter
	jobs     JobStore
	embedder Embedder
	fetcher  PageFetcher
	splitter *chunker.Chunker
	pool     *worker.Pool
	crawlCfg config.CrawlConfig
}

func NewIngestService(frags FragmentWriter, jobs JobStore, embedder Embedder,
	fetcher PageFetcher, splitter *chunker.Chunker, pool *worker.Pool,
	crawlCfg config.CrawlConfig) *IngestService {
	return &IngestService{
		frags:    frags,
		jobs:     jobs,
		embedder: embedder,
		fetcher:  fetcher,
		splitter: splitter,
		pool:     pool,
		crawlCfg: crawlCfg,
	}
}

// CreateJob records the request and schedules it on the worker pool.
func (s *IngestService) CreateJob(ctx context.Context, req *model.IngestRequest) (string, error) {
	if req == nil || req.Empty() {
		return "", appErr.ErrNoSources
	}
	id, err := s.jobs.Create(ctx, req, time.Now().Unix())
	if err != nil {
		return "", err
	}
	if err := s.pool.Submit(ctx, "ingest:"+id, func(taskCtx context.Context) {
		s.runJob(taskCtx, id, req)
	}); err != nil {
		_, _ = s.jobs.FinishFailure(ctx, id, "schedule failed: "+err.Error(), time.Now().Unix())
		return "", err
	}
	return id, nil
}

// RunSync executes the pipeline inline, without a job record.
func (s *IngestService) RunSync(ctx context.Context, req *model.IngestRequest) (*model.IngestResult, error) {
	if req == nil || req.Empty() {
		return nil, appErr.ErrNoSources
	}
	return s.execute(ctx, req)
}

func (s *IngestService) GetJob(ctx context.Context, id string) (*model.IngestJob, error) {
	return s.jobs.Get(ctx, id)
}

func (s *IngestService) runJob(ctx context.Context, id string, req *model.IngestRequest) {
	logger := logutil.GetLogger(ctx).With(zap.String("job_id", id))
	defer func() {
		// a panic anywhere in the run must still leave the job terminal
		if r := recover(); r != nil {
			logger.Error("ingest job panicked", zap.Any("panic", r))
			_, _ = s.jobs.FinishFailure(ctx, id, fmt.Sprintf("panic: %v", r), time.Now().Unix())
		}
	}()
	now := time.Now().Unix()
	ok, err := s.jobs.UpdateStatusIf(ctx, id, model.JobStatusPending, model.JobStatusStarted, now)
	if err != nil {
		logger.Error("mark job started failed", zap.Error(err))
		return
	}
	if !ok {
		logger.Warn("job no longer pending, skip run")
		return
	}
	result, err := s.execute(ctx, req)
	now = time.Now().Unix()
	if err != nil {
		logger.Error("ingest job failed", zap.Error(err))
		_, _ = s.jobs.FinishFailure(ctx, id, err.Error(), now)
		return
	}
	if _, err := s.jobs.FinishSuccess(ctx, id, result, now); err != nil {
		logger.Error("record job result failed", zap.Error(err))
		return
	}
	logger.Info("ingest job finished",
		zap.Int("chunk_count", result.ChunkCount),
		zap.Int("indexed", result.IndexedChunks),
		zap.Int("skipped", len(result.SkippedChunks)))
}

func (s *IngestService) execute(ctx context.Context, req *model.IngestRequest) (*model.IngestResult, error) {
	result := &model.IngestResult{
		Sources:       []model.SourceReport{},
		CrawlPlan:     []string{},
		FetchedPages:  []string{},
		SkippedChunks: []string{},
	}
	docs := make([]*parse.Document, 0)

	for _, path := range req.PdfPaths {
		doc, err := parse.PDFFile(path)
		report := model.SourceReport{Kind: "pdf", Path: path}
		if err != nil {
			report.Error = err.Error()
		} else {
			report.Bytes = len(doc.Text)
			docs = append(docs, doc)
		}
		result.Sources = append(result.Sources, report)
	}
	for _, path := range req.MdPaths {
		doc, err := parse.MarkdownFile(path)
		report := model.SourceReport{Kind: "markdown", Path: path}
		if err != nil {
			report.Error = err.Error()
		} else {
			report.Bytes = len(doc.Text)
			docs = append(docs, doc)
		}
		result.Sources = append(result.Sources, report)
	}
	if len(req.URLs) > 0 {
		plan := crawl.Plan(req.URLs, s.buildCrawlConfig(req.Crawl))
		result.CrawlPlan = plan
		perSec := s.crawlCfg.RateLimitPerSec
		if req.Crawl != nil && req.Crawl.RateLimitPerSec != nil {
			perSec = *req.Crawl.RateLimitPerSec
		}
		pages := s.fetcher.Fetch(ctx, plan, perSec)
		for _, page := range pages {
			result.FetchedPages = append(result.FetchedPages, page.URL)
			result.Sources = append(result.Sources, model.SourceReport{
				Kind:  "web",
				URL:   page.URL,
				Bytes: len(page.Text),
			})
			docs = append(docs, &parse.Document{
				DocID:  "web::" + page.URL,
				Source: hostOf(page.URL),
				URL:    page.URL,
				Text:   page.Text,
			})
		}
	}

	frags := make([]model.Fragment, 0)
	lastSeen := time.Now().Unix()
	for _, doc := range docs {
		meta := chunker.DocMeta{
			DocID:   doc.DocID,
			Source:  doc.Source,
			URL:     doc.URL,
			HPath:   doc.HPath,
			Version: req.Version,
		}
		for _, frag := range s.splitter.Split(doc.Text, meta) {
			frag.LastSeenAt = lastSeen
			frags = append(frags, frag)
		}
	}
	result.ChunkCount = len(frags)

	embedded, embedSkipped := s.embedAll(ctx, frags)
	result.SkippedChunks = append(result.SkippedChunks, embedSkipped...)

	if len(embedded) > 0 {
		indexed, skipped, err := s.frags.BulkUpsert(ctx, embedded)
		if err != nil {
			return nil, fmt.Errorf("bulk upsert: %w", err)
		}
		result.IndexedChunks = len(indexed)
		result.SkippedChunks = append(result.SkippedChunks, skipped...)
	}
	return result, nil
}

const embedConcurrency = 4

// embedAll attaches vectors to the fragments, a few at a time. Fragments
// whose embedding fails are dropped from the batch and reported back.
func (s *IngestService) embedAll(ctx context.Context, frags []model.Fragment) ([]model.Fragment, []string) {
	logger := logutil.GetLogger(ctx)
	type slot struct {
		frag model.Fragment
		err  error
	}
	slots := make([]slot, len(frags))
	sem := make(chan struct{}, embedConcurrency)
	done := make(chan int, len(frags))
	for i := range frags {
		sem <- struct{}{}
		go func(i int) {
			defer func() { <-sem; done <- i }()
			defer func() {
				// a misbehaving provider must only cost its own fragment
				if r := recover(); r != nil {
					slots[i] = slot{frag: frags[i], err: fmt.Errorf("embed panic: %v", r)}
				}
			}()
			vec, err := s.embedder.Embed(ctx, frags[i].Content, TaskTypeDocument)
			frag := frags[i]
			frag.Vector = vec
			slots[i] = slot{frag: frag, err: err}
		}(i)
	}
	for range frags {
		<-done
	}
	embedded := make([]model.Fragment, 0, len(frags))
	skipped := make([]string, 0)
	for _, sl := range slots {
		if sl.err != nil {
			logger.Warn("embed fragment failed, skipping",
				zap.String("doc_key", sl.frag.DocKey), zap.Error(sl.err))
			skipped = append(skipped, sl.frag.DocKey)
			continue
		}
		embedded = append(embedded, sl.frag)
	}
	return embedded, skipped
}

func (s *IngestService) buildCrawlConfig(opts *model.CrawlOptions) crawl.Config {
	cfg := crawl.Config{
		MaxDepth:        s.crawlCfg.MaxDepth,
		MaxPages:        s.crawlCfg.MaxPages,
		SameDomainOnly:  s.crawlCfg.SameDomainOnly,
		AllowSubdomains: s.crawlCfg.AllowSubdomains,
		RateLimitPerSec: s.crawlCfg.RateLimitPerSec,
	}
	if opts == nil {
		return cfg
	}
	if opts.MaxDepth != nil {
		cfg.MaxDepth = *opts.MaxDepth
	}
	if opts.MaxPages != nil {
		cfg.MaxPages = *opts.MaxPages
	}
	if opts.SameDomainOnly != nil {
		cfg.SameDomainOnly = *opts.SameDomainOnly
	}
	if opts.AllowSubdomains != nil {
		cfg.AllowSubdomains = *opts.AllowSubdomains
	}
	if opts.RateLimitPerSec != nil {
		cfg.RateLimitPerSec = *opts.RateLimitPerSec
	}
	cfg.IncludePaths = opts.IncludePaths
	cfg.ExcludePaths = opts.ExcludePaths
	return cfg
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "web"
	}
	return u.Host
}
