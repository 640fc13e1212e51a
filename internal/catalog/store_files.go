package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const sourceFileColumns = "id, item_id, original_name, relative_path, content_hash, size_bytes, media_type, created_at"

func scanSourceFile(scanner interface{ Scan(dest ...any) error }) (*SourceFile, error) {
	var (
		id           string
		itemID       string
		originalName string
		relativePath string
		contentHash  string
		sizeBytes    int64
		mediaType    sql.NullString
		createdRaw   sql.NullString
	)
	if err := scanner.Scan(&id, &itemID, &originalName, &relativePath, &contentHash, &sizeBytes, &mediaType, &createdRaw); err != nil {
		return nil, err
	}
	file := &SourceFile{
		ID:           id,
		ItemID:       itemID,
		OriginalName: originalName,
		RelativePath: relativePath,
		ContentHash:  contentHash,
		SizeBytes:    sizeBytes,
		MediaType:    mediaType.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		file.CreatedAt = created
	}
	return file, nil
}

// InsertSourceFile records an uploaded original. A unique-constraint failure
// on content_hash surfaces as a conflict; callers resolve it via
// FindSourceFileByHash.
func (s *Store) InsertSourceFile(ctx context.Context, file *SourceFile) (*SourceFile, error) {
	if file == nil {
		return nil, errors.New("source file is nil")
	}
	if file.ID == "" {
		file.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO source_files (`+sourceFileColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		file.ID,
		file.ItemID,
		file.OriginalName,
		file.RelativePath,
		file.ContentHash,
		file.SizeBytes,
		nullableString(file.MediaType),
		formatTime(time.Now()),
	)
	if err != nil {
		if IsConflict(err) {
			return nil, fmt.Errorf("insert source file: %w: %w", ErrConflict, err)
		}
		return nil, fmt.Errorf("insert source file: %w", err)
	}
	return s.GetSourceFile(ctx, file.ID)
}

// GetSourceFile fetches a source file by identifier. Returns nil when not found.
func (s *Store) GetSourceFile(ctx context.Context, id string) (*SourceFile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sourceFileColumns+` FROM source_files WHERE id = ?`, id)
	file, err := scanSourceFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get source file: %w", err)
	}
	return file, nil
}

// FindSourceFileByHash returns the source file with the given content hash,
// or nil when no file with those bytes has been stored.
func (s *Store) FindSourceFileByHash(ctx context.Context, contentHash string) (*SourceFile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sourceFileColumns+` FROM source_files WHERE content_hash = ?`, contentHash)
	file, err := scanSourceFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find source file by hash: %w", err)
	}
	return file, nil
}

// SourceFilesForItem returns an item's source files in upload order.
func (s *Store) SourceFilesForItem(ctx context.Context, itemID string) ([]*SourceFile, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+sourceFileColumns+` FROM source_files WHERE item_id = ? ORDER BY created_at, id`,
		itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("source files for item: %w", err)
	}
	defer rows.Close()

	var files []*SourceFile
	for rows.Next() {
		file, err := scanSourceFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, rows.Err()
}
