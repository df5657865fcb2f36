package job

import (
	"context"
	"time"

	"github.com/xxxsen/docsearch/internal/repo"
)

type IngestCleanupJob struct {
	jobRepo *repo.IngestJobRepo
	maxAge  time.Duration
}

func NewIngestCleanupJob(jobRepo *repo.IngestJobRepo, maxAge time.Duration) *IngestCleanupJob {
	return &IngestCleanupJob{jobRepo: jobRepo, maxAge: maxAge}
}

func (j *IngestCleanupJob) Name() string {
	return "ingest_cleanup"
}

func (j *IngestCleanupJob) Run(ctx context.Context) error {
	if j.jobRepo == nil {
		return nil
	}
	maxAge := j.maxAge
	if maxAge <= 0 {
		maxAge = 7 * 24 * time.Hour
	}
	cutoff := time.Now().Add(-maxAge).Unix()
	_, err := j.jobRepo.DeleteBefore(ctx, cutoff)
	return err
}
