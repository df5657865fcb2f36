package repo

import (
	"context"
	"database/sql"

	"github.com/pgvector/pgvector-go"
)

// EmbeddingCacheRepo persists computed embeddings keyed by model, task type
// and content hash, so unchanged content never re-hits the AI provider.
type EmbeddingCacheRepo struct {
	db *sql.DB
}

func NewEmbeddingCacheRepo(db *sql.DB) *EmbeddingCacheRepo {
	return &EmbeddingCacheRepo{db: db}
}

func (r *EmbeddingCacheRepo) Get(ctx context.Context, modelName, taskType, contentHash string) ([]float32, bool, error) {
	const query = `
		SELECT embedding FROM embedding_cache
		WHERE model_name = $1 AND task_type = $2 AND content_hash = $3
	`
	var vec pgvector.Vector
	err := r.db.QueryRowContext(ctx, query, modelName, taskType, contentHash).Scan(&vec)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return vec.Slice(), true, nil
}

func (r *EmbeddingCacheRepo) Save(ctx context.Context, modelName, taskType, contentHash string, values []float32, ctime int64) error {
	const query = `
		INSERT INTO embedding_cache (model_name, task_type, content_hash, embedding, ctime)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (model_name, task_type, content_hash) DO UPDATE SET
			embedding = EXCLUDED.embedding, ctime = EXCLUDED.ctime
	`
	_, err := r.db.ExecContext(ctx, query, modelName, taskType, contentHash, pgvector.NewVector(values), ctime)
	return err
}

// DeleteBefore drops cache entries older than the cutoff and returns the
// number removed.
func (r *EmbeddingCacheRepo) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM embedding_cache WHERE ctime < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
