package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docsearch/internal/config"
	"github.com/xxxsen/docsearch/internal/model"
	appErr "github.com/xxxsen/docsearch/internal/pkg/errors"
)

type fakeSearcher struct {
	candidates []model.Candidate
	err        error
	gotDomains []string
	gotVersion string
}

func (f *fakeSearcher) Search(ctx context.Context, query string, topN int, domains []string, version string) ([]model.Candidate, error) {
	f.gotDomains = domains
	f.gotVersion = version
	return f.candidates, f.err
}

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	return f.vec, f.err
}

type fakeAnswerer struct {
	answer string
	err    error
}

func (f *fakeAnswerer) Answer(ctx context.Context, question string, sources []string) (string, error) {
	return f.answer, f.err
}

func searchCfg() config.SearchConfig {
	return config.SearchConfig{BM25TopN: 200, RRFK: 60, QueryTopK: 8}
}

func TestQueryRejectsEmptyQuestion(t *testing.T) {
	svc := NewSearchService(&fakeSearcher{}, &fakeEmbedder{}, nil, searchCfg())
	_, err := svc.Query(context.Background(), &model.QueryRequest{Q: "   "})
	require.ErrorIs(t, err, appErr.ErrInvalid)

	_, err = svc.Query(context.Background(), nil)
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestQueryLexicalOnlyWhenEmbeddingFails(t *testing.T) {
	searcher := &fakeSearcher{candidates: []model.Candidate{
		{DocKey: "a::0", Content: "first passage", Vector: []float32{0, 1}},
		{DocKey: "b::0", Content: "second passage", Vector: []float32{1, 0}},
	}}
	embedder := &fakeEmbedder{err: errors.New("provider down")}
	svc := NewSearchService(searcher, embedder, &fakeAnswerer{answer: "ok"}, searchCfg())

	res, err := svc.Query(context.Background(), &model.QueryRequest{Q: "passage"})
	require.NoError(t, err)
	require.Len(t, res.Citations, 2)
	// lexical order preserved without a query vector
	require.Equal(t, "a::0", res.Citations[0].ID)
	require.Equal(t, "b::0", res.Citations[1].ID)
}

func TestFuseVectorRankBoostsCandidate(t *testing.T) {
	candidates := []model.Candidate{
		{DocKey: "a::0", Vector: []float32{0, 1}},
		{DocKey: "b::0", Vector: []float32{1, 0}},
		{DocKey: "c::0", Vector: []float32{0.7, 0.7}},
	}
	ranked := fuse(candidates, []float32{1, 0}, 60)
	require.Equal(t, "b::0", ranked[0].DocKey)
	require.Equal(t, "a::0", ranked[1].DocKey)
	require.Equal(t, "c::0", ranked[2].DocKey)
}

func TestFuseTieKeepsLexicalOrder(t *testing.T) {
	candidates := []model.Candidate{
		{DocKey: "a::0"},
		{DocKey: "b::0"},
	}
	ranked := fuse(candidates, []float32{1, 0}, 60)
	require.Equal(t, "a::0", ranked[0].DocKey)
	require.Equal(t, "b::0", ranked[1].DocKey)
}

func TestQueryAppliesDomainFilter(t *testing.T) {
	searcher := &fakeSearcher{candidates: []model.Candidate{
		{DocKey: "web::https://docs.example.com/ops::0", Content: "restart from the dashboard", Source: "docs.example.com"},
	}}
	svc := NewSearchService(searcher, &fakeEmbedder{}, &fakeAnswerer{answer: "ok"}, searchCfg())

	res, err := svc.Query(context.Background(), &model.QueryRequest{
		Q:            "restart",
		DomainFilter: []string{"docs.example.com"},
		Version:      "v2",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"docs.example.com"}, searcher.gotDomains)
	require.Equal(t, "v2", searcher.gotVersion)
	for _, c := range res.Citations {
		require.Equal(t, "docs.example.com", c.Title)
	}
}

func TestFuseVectorSimilarityMonotonic(t *testing.T) {
	rankOf := func(ranked []model.Candidate, key string) int {
		for i, c := range ranked {
			if c.DocKey == key {
				return i
			}
		}
		t.Fatalf("candidate %s missing from ranking", key)
		return -1
	}
	queryVec := []float32{1, 0}
	base := []model.Candidate{
		{DocKey: "a::0", Vector: []float32{0.95, 0.05}},
		{DocKey: "b::0", Vector: []float32{0.9, 0.1}},
		{DocKey: "c::0", Vector: []float32{0, 1}},
	}
	before := rankOf(fuse(base, queryVec, 60), "c::0")

	improved := []model.Candidate{
		{DocKey: "a::0", Vector: []float32{0.95, 0.05}},
		{DocKey: "b::0", Vector: []float32{0.9, 0.1}},
		{DocKey: "c::0", Vector: []float32{1, 0}},
	}
	after := rankOf(fuse(improved, queryVec, 60), "c::0")

	// a better similarity with everything else fixed can only move c up
	require.Less(t, after, before)
}

func TestQueryHonorsTopK(t *testing.T) {
	candidates := make([]model.Candidate, 20)
	for i := range candidates {
		candidates[i] = model.Candidate{DocKey: string(rune('a'+i)) + "::0", Content: "content"}
	}
	svc := NewSearchService(&fakeSearcher{candidates: candidates}, &fakeEmbedder{}, &fakeAnswerer{answer: "ok"}, searchCfg())

	res, err := svc.Query(context.Background(), &model.QueryRequest{Q: "content", TopK: 3})
	require.NoError(t, err)
	require.Len(t, res.Citations, 3)
	require.Equal(t, 3, res.Diagnostics.TopK)
	require.Equal(t, 200, res.Diagnostics.BM25TopN)
	require.Equal(t, 60, res.Diagnostics.RRFK)
}

func TestQueryExtractiveFallbackOnGenerationFailure(t *testing.T) {
	searcher := &fakeSearcher{candidates: []model.Candidate{
		{DocKey: "a::0", Content: "install the binary and run it"},
	}}
	generator := &fakeAnswerer{err: errors.New("quota exceeded")}
	svc := NewSearchService(searcher, &fakeEmbedder{}, generator, searchCfg())

	res, err := svc.Query(context.Background(), &model.QueryRequest{Q: "how to install"})
	require.NoError(t, err)
	require.Contains(t, res.Answer, "install the binary")
}

func TestQueryNoResults(t *testing.T) {
	svc := NewSearchService(&fakeSearcher{}, &fakeEmbedder{}, &fakeAnswerer{answer: "ok"}, searchCfg())
	res, err := svc.Query(context.Background(), &model.QueryRequest{Q: "nothing"})
	require.NoError(t, err)
	require.Empty(t, res.Citations)
	require.Equal(t, "No matching documentation found.", res.Answer)
}

func TestCosine(t *testing.T) {
	require.InDelta(t, 1.0, cosine([]float32{1, 0}, []float32{2, 0}), 1e-9)
	require.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	require.InDelta(t, 0.0, cosine(nil, []float32{1}), 1e-9)
}

func TestSnippetCutsAtWordBoundary(t *testing.T) {
	long := strings.Repeat("word ", 100)
	got := snippet(long)
	require.LessOrEqual(t, len(got), snippetMaxChars+len("…"))
	require.True(t, strings.HasSuffix(got, "…"))
	require.False(t, strings.HasSuffix(strings.TrimSuffix(got, "…"), " "))
}
