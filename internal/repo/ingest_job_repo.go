package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/didi/gendry/builder"
	"github.com/google/uuid"

	"github.com/xxxsen/docsearch/internal/model"
	"github.com/xxxsen/docsearch/internal/pkg/dbutil"
	appErr "github.com/xxxsen/docsearch/internal/pkg/errors"
)

// IngestJobRepo persists ingestion job records and their lifecycle.
type IngestJobRepo struct {
	db *sql.DB
}

func NewIngestJobRepo(db *sql.DB) *IngestJobRepo {
	return &IngestJobRepo{db: db}
}

// Create stores a new pending job and returns its generated id.
func (r *IngestJobRepo) Create(ctx context.Context, req *model.IngestRequest, now int64) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	data := map[string]interface{}{
		"id":           id,
		"status":       model.JobStatusPending,
		"payload_json": string(payload),
		"ctime":        now,
		"mtime":        now,
	}
	sqlStr, args, err := builder.BuildInsert("ingest_jobs", []map[string]interface{}{data})
	if err != nil {
		return "", err
	}
	if _, err := r.db.ExecContext(ctx, dbutil.Rebind(sqlStr), args...); err != nil {
		return "", err
	}
	return id, nil
}

func (r *IngestJobRepo) Get(ctx context.Context, id string) (*model.IngestJob, error) {
	const query = `
		SELECT id, status, payload_json, COALESCE(result_json, ''), COALESCE(error, ''), ctime, mtime
		FROM ingest_jobs WHERE id = $1
	`
	row := r.db.QueryRowContext(ctx, query, id)
	var job model.IngestJob
	var payload, result string
	if err := row.Scan(&job.ID, &job.Status, &payload, &result, &job.Error, &job.Ctime, &job.Mtime); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &job.Payload); err != nil {
			return nil, err
		}
	}
	if result != "" {
		if err := json.Unmarshal([]byte(result), &job.Result); err != nil {
			return nil, err
		}
	}
	return &job, nil
}

// UpdateStatusIf moves the job from one status to another. It reports false
// when the job was not in the expected status, so callers never overwrite a
// terminal state.
func (r *IngestJobRepo) UpdateStatusIf(ctx context.Context, id string, from, to string, now int64) (bool, error) {
	const query = `
		UPDATE ingest_jobs SET status = $1, mtime = $2
		WHERE id = $3 AND status = $4
	`
	res, err := r.db.ExecContext(ctx, query, to, now, id, from)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// FinishSuccess records the job result and flips it to success in one step.
func (r *IngestJobRepo) FinishSuccess(ctx context.Context, id string, result *model.IngestResult, now int64) (bool, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return false, err
	}
	const query = `
		UPDATE ingest_jobs SET status = $1, result_json = $2, mtime = $3
		WHERE id = $4 AND status = $5
	`
	res, err := r.db.ExecContext(ctx, query, model.JobStatusSuccess, string(data), now, id, model.JobStatusStarted)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// FinishFailure records the error message and flips the job to failure. It
// accepts any non-terminal state so a run that dies before marking itself
// started still ends up terminal.
func (r *IngestJobRepo) FinishFailure(ctx context.Context, id string, jobErr string, now int64) (bool, error) {
	const query = `
		UPDATE ingest_jobs SET status = $1, error = $2, mtime = $3
		WHERE id = $4 AND status IN ($5, $6)
	`
	res, err := r.db.ExecContext(ctx, query, model.JobStatusFailure, jobErr, now, id, model.JobStatusPending, model.JobStatusStarted)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// DeleteBefore removes terminal jobs older than the cutoff.
func (r *IngestJobRepo) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	const query = `
		DELETE FROM ingest_jobs
		WHERE ctime < $1 AND status IN ($2, $3)
	`
	res, err := r.db.ExecContext(ctx, query, cutoff, model.JobStatusSuccess, model.JobStatusFailure)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
