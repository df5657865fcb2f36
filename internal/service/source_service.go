package service

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docsearch/internal/model"
	appErr "github.com/xxxsen/docsearch/internal/pkg/errors"
	"github.com/xxxsen/docsearch/internal/repo"
)

type SourceStore interface {
	ListSources(ctx context.Context) ([]model.Source, error)
	DeleteSource(ctx context.Context, source string) (int64, error)
}

// SourceService exposes the indexed source inventory.
type SourceService struct {
	frags SourceStore
}

func NewSourceService(frags SourceStore) *SourceService {
	return &SourceService{frags: frags}
}

func (s *SourceService) List(ctx context.Context) ([]model.Source, error) {
	return s.frags.ListSources(ctx)
}

// Delete removes all fragments of the source named by the encoded id and
// returns the number removed. Unknown sources are reported as not found.
func (s *SourceService) Delete(ctx context.Context, encodedID string) (int64, error) {
	name, err := repo.DecodeSourceID(encodedID)
	if err != nil {
		return 0, err
	}
	deleted, err := s.frags.DeleteSource(ctx, name)
	if err != nil {
		return 0, err
	}
	if deleted == 0 {
		return 0, appErr.ErrNotFound
	}
	logutil.GetLogger(ctx).Info("source deleted",
		zap.String("source", name), zap.Int64("fragments", deleted))
	return deleted, nil
}
