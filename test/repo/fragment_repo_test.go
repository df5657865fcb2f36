package repo_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docsearch/internal/model"
	"github.com/xxxsen/docsearch/internal/repo"
	"github.com/xxxsen/docsearch/test/testutil"
)

func makeFragment(docID string, idx int, content string, hash string) model.Fragment {
	return model.Fragment{
		DocKey:      model.BuildDocKey(docID, idx),
		DocID:       docID,
		ChunkIndex:  idx,
		Content:     content,
		Vector:      []float32{0.1, 0.2, 0.3},
		ContentHash: hash,
		Source:      "markdown",
		HPath:       []string{"Guide"},
		LastSeenAt:  time.Now().Unix(),
	}
}

func TestFragmentRepoUpsertAndSearch(t *testing.T) {
	conn, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	r := repo.NewFragmentRepo(conn)
	ctx := context.Background()

	frags := []model.Fragment{
		makeFragment("md::/tmp/a.md", 0, "install the service with the setup script", "h1"),
		makeFragment("md::/tmp/a.md", 1, "configure the database connection string", "h2"),
	}
	indexed, skipped, err := r.BulkUpsert(ctx, frags)
	require.NoError(t, err)
	require.Len(t, indexed, 2)
	require.Empty(t, skipped)

	candidates, err := r.Search(ctx, "database connection", 10, nil, "")
	require.NoError(t, err)
	require.NotEmpty(t, candidates)
	require.Equal(t, frags[1].DocKey, candidates[0].DocKey)
	require.Len(t, candidates[0].Vector, 3)
	require.Equal(t, []string{"Guide"}, candidates[0].HPath)
}

func TestFragmentRepoUpsertIdempotent(t *testing.T) {
	conn, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	r := repo.NewFragmentRepo(conn)
	ctx := context.Background()

	frag := makeFragment("md::/tmp/b.md", 0, "unchanged content", "same-hash")
	_, _, err := r.BulkUpsert(ctx, []model.Fragment{frag})
	require.NoError(t, err)

	frag.LastSeenAt = time.Now().Unix() + 100
	indexed, skipped, err := r.BulkUpsert(ctx, []model.Fragment{frag})
	require.NoError(t, err)
	require.Len(t, indexed, 1)
	require.Empty(t, skipped)

	stored, err := r.GetByDocKey(ctx, frag.DocKey)
	require.NoError(t, err)
	require.Equal(t, "unchanged content", stored.Content)
	require.Equal(t, frag.LastSeenAt, stored.LastSeenAt)
}

func TestFragmentRepoWrongVectorWidthFailsBatch(t *testing.T) {
	conn, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	r := repo.NewFragmentRepo(conn)
	ctx := context.Background()

	frag := makeFragment("md::/tmp/wide.md", 0, "vector with the wrong width", "h-wide")
	frag.Vector = []float32{0.1, 0.2, 0.3, 0.4}

	// a width mismatch means the whole batch is wrong, not just this row
	indexed, skipped, err := r.BulkUpsert(ctx, []model.Fragment{frag})
	require.Error(t, err)
	require.Empty(t, indexed)
	require.Empty(t, skipped)
}

func TestFragmentRepoSearchDomainFilter(t *testing.T) {
	conn, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	r := repo.NewFragmentRepo(conn)
	ctx := context.Background()

	mdFrag := makeFragment("md::/tmp/filter.md", 0, "restart the daemon after changing config", "h-md")
	webFrag := makeFragment("web::https://docs.example.com/ops", 0, "restart the daemon from the dashboard", "h-web")
	webFrag.Source = "docs.example.com"
	_, _, err := r.BulkUpsert(ctx, []model.Fragment{mdFrag, webFrag})
	require.NoError(t, err)

	candidates, err := r.Search(ctx, "restart daemon", 10, []string{"docs.example.com"}, "")
	require.NoError(t, err)
	require.NotEmpty(t, candidates)
	for _, c := range candidates {
		require.Equal(t, "docs.example.com", c.Source)
	}

	candidates, err = r.Search(ctx, "restart daemon", 10, []string{"no-such-source"}, "")
	require.NoError(t, err)
	require.Empty(t, candidates)
}

func TestFragmentRepoSourceLifecycle(t *testing.T) {
	conn, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	r := repo.NewFragmentRepo(conn)
	ctx := context.Background()

	frag := makeFragment("pdf::/tmp/c.pdf", 0, "pdf only content", "h-pdf")
	frag.Source = "pdf"
	_, _, err := r.BulkUpsert(ctx, []model.Fragment{frag})
	require.NoError(t, err)

	sources, err := r.ListSources(ctx)
	require.NoError(t, err)
	found := false
	for _, s := range sources {
		if s.Name == "pdf" {
			found = true
			require.GreaterOrEqual(t, s.DocumentCount, 1)
			decoded, err := repo.DecodeSourceID(s.ID)
			require.NoError(t, err)
			require.Equal(t, "pdf", decoded)
		}
	}
	require.True(t, found)

	deleted, err := r.DeleteSource(ctx, "pdf")
	require.NoError(t, err)
	require.GreaterOrEqual(t, deleted, int64(1))
}
