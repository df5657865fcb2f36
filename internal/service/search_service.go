package service

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docsearch/internal/config"
	"github.com/xxxsen/docsearch/internal/model"
	appErr "github.com/xxxsen/docsearch/internal/pkg/errors"
)

type FragmentSearcher interface {
	Search(ctx context.Context, query string, topN int, domains []string, version string) ([]model.Candidate, error)
}

type Answerer interface {
	Answer(ctx context.Context, question string, sources []string) (string, error)
}

// SearchService answers questions with hybrid retrieval: lexical rank and
// vector similarity fused by reciprocal rank.
type SearchService struct {
	frags     FragmentSearcher
	embedder  Embedder
	generator Answerer
	cfg       config.SearchConfig
}

func NewSearchService(frags FragmentSearcher, embedder Embedder, generator Answerer, cfg config.SearchConfig) *SearchService {
	return &SearchService{frags: frags, embedder: embedder, generator: generator, cfg: cfg}
}

const snippetMaxChars = 240

func (s *SearchService) Query(ctx context.Context, req *model.QueryRequest) (*model.QueryResponse, error) {
	if req == nil || strings.TrimSpace(req.Q) == "" {
		return nil, appErr.ErrInvalid
	}
	logger := logutil.GetLogger(ctx)
	topK := req.TopK
	if topK <= 0 {
		topK = s.cfg.QueryTopK
	}
	totalStart := time.Now()

	embedStart := time.Now()
	queryVec, err := s.embedder.Embed(ctx, req.Q, TaskTypeQuery)
	if err != nil {
		// fall back to lexical-only ranking, never fail the query
		logger.Warn("query embedding failed, lexical-only ranking", zap.Error(err))
		queryVec = nil
	}
	embeddingMs := time.Since(embedStart).Milliseconds()

	retrievalStart := time.Now()
	candidates, err := s.frags.Search(ctx, req.Q, s.cfg.BM25TopN, req.DomainFilter, req.Version)
	if err != nil {
		return nil, err
	}
	retrievalMs := time.Since(retrievalStart).Milliseconds()

	rerankStart := time.Now()
	ranked := fuse(candidates, queryVec, s.cfg.RRFK)
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	rerankMs := time.Since(rerankStart).Milliseconds()

	citations := make([]model.Citation, 0, len(ranked))
	contents := make([]string, 0, len(ranked))
	for _, c := range ranked {
		citations = append(citations, model.Citation{
			ID:      c.DocKey,
			Title:   citationTitle(c),
			URL:     c.URL,
			Snippet: snippet(c.Content),
		})
		contents = append(contents, c.Content)
	}

	answer := s.buildAnswer(ctx, req.Q, contents)
	return &model.QueryResponse{
		Answer:    answer,
		Citations: citations,
		Diagnostics: model.QueryDiagnostics{
			EmbeddingMs: embeddingMs,
			RetrievalMs: retrievalMs,
			RerankMs:    rerankMs,
			TotalMs:     time.Since(totalStart).Milliseconds(),
			TopK:        topK,
			BM25TopN:    s.cfg.BM25TopN,
			RRFK:        s.cfg.RRFK,
		},
	}, nil
}

// buildAnswer asks the generator for a grounded answer, degrading to an
// extractive summary of the top passages when generation is unavailable.
func (s *SearchService) buildAnswer(ctx context.Context, question string, contents []string) string {
	if len(contents) == 0 {
		return "No matching documentation found."
	}
	if s.generator != nil {
		answer, err := s.generator.Answer(ctx, question, contents)
		if err == nil && strings.TrimSpace(answer) != "" {
			return answer
		}
		if err != nil {
			logutil.GetLogger(ctx).Warn("answer generation failed, using extractive fallback", zap.Error(err))
		}
	}
	parts := make([]string, 0, 3)
	for i, content := range contents {
		if i >= 3 {
			break
		}
		parts = append(parts, snippet(content))
	}
	return strings.Join(parts, "\n\n")
}

// fuse orders candidates by reciprocal rank fusion of the lexical rank and
// the cosine-similarity rank. Candidates without vectors (or when the query
// vector is missing) contribute only their lexical rank. Ties keep lexical
// order.
func fuse(candidates []model.Candidate, queryVec []float32, rrfK int) []model.Candidate {
	if rrfK <= 0 {
		rrfK = 60
	}
	type scored struct {
		cand    model.Candidate
		lexRank int
		fused   float64
	}
	items := make([]scored, len(candidates))
	for i, c := range candidates {
		items[i] = scored{cand: c, lexRank: i + 1}
		items[i].fused = 1.0 / float64(rrfK+i+1)
	}
	if len(queryVec) > 0 {
		type vecEntry struct {
			idx int
			sim float64
		}
		entries := make([]vecEntry, 0, len(items))
		for i, it := range items {
			if len(it.cand.Vector) == 0 {
				continue
			}
			entries = append(entries, vecEntry{idx: i, sim: cosine(queryVec, it.cand.Vector)})
		}
		sort.SliceStable(entries, func(a, b int) bool { return entries[a].sim > entries[b].sim })
		for rank, e := range entries {
			items[e.idx].fused += 1.0 / float64(rrfK+rank+1)
		}
	}
	sort.SliceStable(items, func(a, b int) bool {
		if items[a].fused != items[b].fused {
			return items[a].fused > items[b].fused
		}
		return items[a].lexRank < items[b].lexRank
	})
	out := make([]model.Candidate, len(items))
	for i, it := range items {
		out[i] = it.cand
	}
	return out
}

func cosine(a []float32, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func citationTitle(c model.Candidate) string {
	if len(c.HPath) > 0 {
		return strings.Join(c.HPath, " > ")
	}
	if c.Source != "" {
		return c.Source
	}
	return c.DocKey
}

func snippet(content string) string {
	content = strings.TrimSpace(content)
	if len(content) <= snippetMaxChars {
		return content
	}
	cut := content[:snippetMaxChars]
	if idx := strings.LastIndexByte(cut, ' '); idx > snippetMaxChars/2 {
		cut = cut[:idx]
	}
	return cut + "…"
}
