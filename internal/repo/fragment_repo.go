package repo

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/didi/gendry/builder"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docsearch/internal/model"
	"github.com/xxxsen/docsearch/internal/pkg/dbutil"
	appErr "github.com/xxxsen/docsearch/internal/pkg/errors"
)

// FragmentRepo is the document store: a bulk-writable, queryable index of
// fragments with full-text and dense-vector fields.
type FragmentRepo struct {
	db *sql.DB
}

func NewFragmentRepo(db *sql.DB) *FragmentRepo {
	return &FragmentRepo{db: db}
}

const upsertFragmentQuery = `
	INSERT INTO fragments
		(doc_key, doc_id, chunk_index, content, content_vector, content_hash,
		 source, url, h_path, version, token_start, token_end, last_seen_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (doc_key) DO UPDATE SET
		content = CASE WHEN fragments.content_hash = EXCLUDED.content_hash
			THEN fragments.content ELSE EXCLUDED.content END,
		content_vector = CASE WHEN fragments.content_hash = EXCLUDED.content_hash
			THEN fragments.content_vector ELSE EXCLUDED.content_vector END,
		content_hash = EXCLUDED.content_hash,
		source = EXCLUDED.source,
		url = EXCLUDED.url,
		h_path = EXCLUDED.h_path,
		version = EXCLUDED.version,
		token_start = EXCLUDED.token_start,
		token_end = EXCLUDED.token_end,
		last_seen_at = EXCLUDED.last_seen_at
`

// BulkUpsert writes the batch keyed on doc_key. An unchanged content_hash
// keeps the stored content and vector and only refreshes last_seen_at.
// Statement-level failures skip that fragment; a connection-level failure
// aborts the batch with ErrStoreGone, and a vector width mismatch aborts it
// outright since every remaining row would fail the same way.
func (r *FragmentRepo) BulkUpsert(ctx context.Context, frags []model.Fragment) (indexed []string, skipped []string, err error) {
	logger := logutil.GetLogger(ctx)
	for _, frag := range frags {
		hPath, merr := json.Marshal(frag.HPath)
		if merr != nil {
			hPath = []byte("[]")
		}
		_, eerr := r.db.ExecContext(ctx, upsertFragmentQuery,
			frag.DocKey,
			frag.DocID,
			frag.ChunkIndex,
			frag.Content,
			pgvector.NewVector(frag.Vector),
			frag.ContentHash,
			frag.Source,
			frag.URL,
			string(hPath),
			frag.Version,
			frag.TokenStart,
			frag.TokenEnd,
			frag.LastSeenAt,
		)
		if eerr != nil {
			if dbutil.IsUnreachable(eerr) {
				return indexed, skipped, appErr.ErrStoreGone
			}
			if dbutil.IsVectorWidthMismatch(eerr) {
				return indexed, skipped, fmt.Errorf("vector width mismatch: %w", eerr)
			}
			logger.Warn("fragment upsert failed, skipping item",
				zap.String("doc_key", frag.DocKey), zap.Error(eerr))
			skipped = append(skipped, frag.DocKey)
			continue
		}
		indexed = append(indexed, frag.DocKey)
	}
	return indexed, skipped, nil
}

// Search runs the lexical (full-text rank) retrieval. domains and version
// are pre-filters applied inside the query so filtered-out fragments never
// crowd out the top-N candidate set.
func (r *FragmentRepo) Search(ctx context.Context, query string, topN int, domains []string, version string) ([]model.Candidate, error) {
	sqlStr := `
		SELECT doc_key, content, source, COALESCE(url, ''), h_path,
			COALESCE(version, ''), content_vector::text,
			ts_rank_cd(content_tsv, plainto_tsquery('simple', $1)) AS score
		FROM fragments
		WHERE content_tsv @@ plainto_tsquery('simple', $1)
	`
	args := []interface{}{query}
	if len(domains) > 0 {
		sqlStr += ` AND source = ANY($` + strconv.Itoa(len(args)+1) + `)`
		args = append(args, pq.Array(domains))
	}
	if version != "" {
		sqlStr += ` AND version = $` + strconv.Itoa(len(args)+1)
		args = append(args, version)
	}
	sqlStr += ` ORDER BY score DESC, doc_key ASC LIMIT $` + strconv.Itoa(len(args)+1)
	args = append(args, topN)

	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Candidate
	for rows.Next() {
		var c model.Candidate
		var hPath string
		var vec sql.NullString
		if err := rows.Scan(&c.DocKey, &c.Content, &c.Source, &c.URL, &hPath, &c.Version, &vec, &c.LexScore); err != nil {
			return nil, err
		}
		if hPath != "" {
			_ = json.Unmarshal([]byte(hPath), &c.HPath)
		}
		if vec.Valid && vec.String != "" {
			var v pgvector.Vector
			if err := v.Scan(vec.String); err == nil {
				c.Vector = v.Slice()
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetByDocKey fetches one fragment's indexed fields, mainly for tests and
// the idempotency checks.
func (r *FragmentRepo) GetByDocKey(ctx context.Context, docKey string) (*model.Fragment, error) {
	where := map[string]interface{}{"doc_key": docKey}
	sqlStr, args, err := builder.BuildSelect("fragments",
		where, []string{"doc_key", "doc_id", "chunk_index", "content", "content_hash", "source", "last_seen_at"})
	if err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx, dbutil.Rebind(sqlStr), args...)
	var frag model.Fragment
	if err := row.Scan(&frag.DocKey, &frag.DocID, &frag.ChunkIndex, &frag.Content,
		&frag.ContentHash, &frag.Source, &frag.LastSeenAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return &frag, nil
}

// ListSources derives the source list from indexed fragments.
func (r *FragmentRepo) ListSources(ctx context.Context) ([]model.Source, error) {
	const query = `
		SELECT source, COUNT(DISTINCT doc_id)
		FROM fragments
		GROUP BY source
		ORDER BY source
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	sources := make([]model.Source, 0)
	for rows.Next() {
		var s model.Source
		if err := rows.Scan(&s.Name, &s.DocumentCount); err != nil {
			return nil, err
		}
		s.ID = EncodeSourceID(s.Name)
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// DeleteSource removes every fragment of the named source and returns the
// number deleted.
func (r *FragmentRepo) DeleteSource(ctx context.Context, source string) (int64, error) {
	where := map[string]interface{}{"source": source}
	sqlStr, args, err := builder.BuildDelete("fragments", where)
	if err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx, dbutil.Rebind(sqlStr), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// EncodeSourceID makes a source name URL-path safe.
func EncodeSourceID(name string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(name))
}

// DecodeSourceID reverses EncodeSourceID.
func DecodeSourceID(id string) (string, error) {
	data, err := base64.RawURLEncoding.DecodeString(id)
	if err != nil {
		return "", appErr.ErrInvalid
	}
	return string(data), nil
}

// IterateAll streams every stored fragment's key and content in pages, for
// offline re-embedding.
func (r *FragmentRepo) IterateAll(ctx context.Context, batchSize int, fn func(docKey, content string) error) error {
	if batchSize <= 0 {
		batchSize = 200
	}
	lastKey := ""
	for {
		rows, err := r.db.QueryContext(ctx, `
			SELECT doc_key, content FROM fragments
			WHERE doc_key > $1 ORDER BY doc_key LIMIT $2
		`, lastKey, batchSize)
		if err != nil {
			return err
		}
		count := 0
		for rows.Next() {
			var docKey, content string
			if err := rows.Scan(&docKey, &content); err != nil {
				rows.Close()
				return err
			}
			if err := fn(docKey, content); err != nil {
				rows.Close()
				return err
			}
			lastKey = docKey
			count++
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()
		if count < batchSize {
			return nil
		}
	}
}

// UpdateVector replaces one fragment's stored embedding.
func (r *FragmentRepo) UpdateVector(ctx context.Context, docKey string, vec []float32) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE fragments SET content_vector = $1 WHERE doc_key = $2`,
		pgvector.NewVector(vec), docKey)
	return err
}
