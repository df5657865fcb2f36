package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/xxxsen/docsearch/internal/filestore"
	"github.com/xxxsen/docsearch/internal/model"
	appErr "github.com/xxxsen/docsearch/internal/pkg/errors"
)

const maxUploadBytes = 64 * 1024 * 1024

var allowedUploadExt = map[string]bool{
	".pdf":      true,
	".md":       true,
	".markdown": true,
	".mdown":    true,
	".txt":      true,
}

// UploadService accepts a document file, archives it in the file store, and
// hands it to the ingestion pipeline.
type UploadService struct {
	store  filestore.Store
	ingest *IngestService
	tmpDir string
}

func NewUploadService(store filestore.Store, ingest *IngestService, tmpDir string) *UploadService {
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	return &UploadService{store: store, ingest: ingest, tmpDir: tmpDir}
}

// Accept saves the upload and starts an async ingestion job for it. It
// returns the stored key and the job id.
func (s *UploadService) Accept(ctx context.Context, filename string, r io.Reader, size int64, version string) (string, string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedUploadExt[ext] {
		return "", "", appErr.ErrInvalid
	}
	if size > maxUploadBytes {
		return "", "", appErr.ErrInvalid
	}

	// spool to disk first: the parser wants a file path and the store wants
	// a seekable reader
	tmp, err := os.CreateTemp(s.tmpDir, "upload-*"+ext)
	if err != nil {
		return "", "", err
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, io.LimitReader(r, maxUploadBytes+1)); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", "", err
	}
	info, err := tmp.Stat()
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", "", err
	}
	if info.Size() > maxUploadBytes {
		tmp.Close()
		os.Remove(tmpPath)
		return "", "", appErr.ErrInvalid
	}

	key := uuid.NewString() + ext
	if s.store != nil {
		if _, err := tmp.Seek(0, io.SeekStart); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return "", "", err
		}
		if err := s.store.Save(ctx, key, tmp, info.Size()); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return "", "", fmt.Errorf("archive upload: %w", err)
		}
	}
	tmp.Close()

	req := &model.IngestRequest{Version: version}
	if ext == ".pdf" {
		req.PdfPaths = []string{tmpPath}
	} else {
		req.MdPaths = []string{tmpPath}
	}
	jobID, err := s.ingest.CreateJob(ctx, req)
	if err != nil {
		os.Remove(tmpPath)
		return "", "", err
	}
	return key, jobID, nil
}

// Open streams back a previously archived upload.
func (s *UploadService) Open(ctx context.Context, key string) (filestore.ReadSeekCloser, error) {
	if s.store == nil {
		return nil, appErr.ErrNotFound
	}
	r, err := s.store.Open(ctx, key)
	if err != nil {
		return nil, appErr.ErrNotFound
	}
	return r, nil
}
