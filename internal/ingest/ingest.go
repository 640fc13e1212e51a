package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"archivist/internal/blobstore"
	"archivist/internal/catalog"
	"archivist/internal/logging"
	"archivist/internal/services"
)

// UploadResult describes the outcome of an upload. Duplicate uploads resolve
// to the already-stored file: no new item is created and no bytes are kept.
type UploadResult struct {
	Item        *catalog.Item
	File        *catalog.SourceFile
	IsDuplicate bool
}

// Service accepts original files into the library: bytes go to the
// content-addressed blob store, metadata to the catalog, and the new item is
// left pending for the pipeline to pick up.
type Service struct {
	store  *catalog.Store
	blobs  *blobstore.Store
	logger *slog.Logger
}

// NewService creates an ingest service.
func NewService(store *catalog.Store, blobs *blobstore.Store, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		blobs:  blobs,
		logger: logging.NewComponentLogger(logger, "ingest"),
	}
}

// Upload stores the reader's bytes and registers a new item with one source
// file. If the exact bytes are already in the library, the existing file wins
// and the result reports a duplicate.
func (s *Service) Upload(ctx context.Context, kind catalog.ItemKind, title, originalName, mediaType string, r io.Reader) (*UploadResult, error) {
	originalName = strings.TrimSpace(originalName)
	if originalName == "" {
		return nil, services.Wrap(services.ErrValidation, "ingest", "upload", "original file name required", nil)
	}
	if r == nil {
		return nil, services.Wrap(services.ErrValidation, "ingest", "upload", "no content", nil)
	}

	relPath, contentHash, size, err := s.blobs.WriteBlob(r)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "ingest", "store blob", "", err)
	}
	if size == 0 {
		return nil, services.Wrap(services.ErrValidation, "ingest", "upload", "empty file", nil)
	}

	if existing, err := s.store.FindSourceFileByHash(ctx, contentHash); err != nil {
		return nil, err
	} else if existing != nil {
		return s.duplicateResult(ctx, existing)
	}

	item, err := s.store.CreateItem(ctx, kind, title)
	if err != nil {
		return nil, err
	}

	file, err := s.store.InsertSourceFile(ctx, &catalog.SourceFile{
		ItemID:       item.ID,
		OriginalName: originalName,
		RelativePath: relPath,
		ContentHash:  contentHash,
		SizeBytes:    size,
		MediaType:    mediaType,
	})
	if err != nil {
		// A concurrent upload of the same bytes won the hash race. Unwind
		// our item and yield to the winner.
		if catalog.IsConflict(err) {
			if delErr := s.store.DeleteItem(ctx, item.ID); delErr != nil {
				s.logger.Warn("failed to unwind item after duplicate race",
					logging.String(logging.FieldItemID, item.ID), logging.Error(delErr))
			}
			winner, findErr := s.store.FindSourceFileByHash(ctx, contentHash)
			if findErr != nil {
				return nil, findErr
			}
			if winner == nil {
				return nil, fmt.Errorf("duplicate hash conflict for %s but no winning row", contentHash)
			}
			return s.duplicateResult(ctx, winner)
		}
		return nil, err
	}

	s.logger.Info("file ingested",
		logging.String(logging.FieldItemID, item.ID),
		logging.String("original_name", originalName),
		logging.String("content_hash", contentHash),
		logging.Int64("size_bytes", size))

	return &UploadResult{Item: item, File: file}, nil
}

// UploadPath ingests a file from the local filesystem.
func (s *Service) UploadPath(ctx context.Context, kind catalog.ItemKind, title, path string) (*UploadResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, services.Wrap(services.ErrNotFound, "ingest", "open source", path, err)
	}
	defer file.Close()
	return s.Upload(ctx, kind, title, filepath.Base(path), mediaTypeForPath(path), file)
}

func (s *Service) duplicateResult(ctx context.Context, file *catalog.SourceFile) (*UploadResult, error) {
	item, err := s.store.GetItem(ctx, file.ItemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, errors.New("ingest: duplicate file references missing item")
	}
	s.logger.Info("duplicate upload detected",
		logging.String(logging.FieldItemID, item.ID),
		logging.String("content_hash", file.ContentHash))
	return &UploadResult{Item: item, File: file, IsDuplicate: true}, nil
}

func mediaTypeForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".tif", ".tiff":
		return "image/tiff"
	case ".txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
