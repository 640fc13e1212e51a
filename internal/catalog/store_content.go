package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ReplacePages overwrites the extracted text of a source file. Pages are
// written in one transaction so re-running extraction is idempotent.
func (s *Store) ReplacePages(ctx context.Context, sourceFileID string, pages []*ExtractedPage) error {
	now := formatTime(time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin pages tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM extracted_pages WHERE source_file_id = ?`, sourceFileID); err != nil {
		return fmt.Errorf("clear pages: %w", err)
	}

	for _, page := range pages {
		_, err := tx.ExecContext(
			ctx,
			`INSERT INTO extracted_pages (source_file_id, page_number, text, method, confidence, created_at)
             VALUES (?, ?, ?, ?, ?, ?)`,
			sourceFileID,
			page.PageNumber,
			nullableString(page.Text),
			string(page.Method),
			page.Confidence,
			now,
		)
		if err != nil {
			return fmt.Errorf("insert page %d: %w", page.PageNumber, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit pages: %w", err)
	}
	return nil
}

// UpsertPage writes or replaces the text of a single page.
func (s *Store) UpsertPage(ctx context.Context, page *ExtractedPage) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO extracted_pages (source_file_id, page_number, text, method, confidence, created_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT (source_file_id, page_number)
         DO UPDATE SET text = excluded.text, method = excluded.method, confidence = excluded.confidence`,
		page.SourceFileID,
		page.PageNumber,
		nullableString(page.Text),
		string(page.Method),
		page.Confidence,
		formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("upsert page: %w", err)
	}
	return nil
}

// PagesForSourceFile returns extracted pages in page order.
func (s *Store) PagesForSourceFile(ctx context.Context, sourceFileID string) ([]*ExtractedPage, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, source_file_id, page_number, text, method, confidence, created_at
         FROM extracted_pages WHERE source_file_id = ? ORDER BY page_number`,
		sourceFileID,
	)
	if err != nil {
		return nil, fmt.Errorf("pages for source file: %w", err)
	}
	defer rows.Close()

	var pages []*ExtractedPage
	for rows.Next() {
		var (
			page       ExtractedPage
			text       sql.NullString
			method     string
			createdRaw sql.NullString
		)
		if err := rows.Scan(&page.ID, &page.SourceFileID, &page.PageNumber, &text, &method, &page.Confidence, &createdRaw); err != nil {
			return nil, err
		}
		page.Text = text.String
		page.Method = OCRMethod(method)
		if created, err := parseTimeString(createdRaw.String); err == nil {
			page.CreatedAt = created
		}
		pages = append(pages, &page)
	}
	return pages, rows.Err()
}

// ReplaceChunks overwrites an item's chunk set in one transaction.
func (s *Store) ReplaceChunks(ctx context.Context, itemID string, chunks []*Chunk) error {
	now := formatTime(time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin chunks tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE item_id = ?`, itemID); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}

	for _, chunk := range chunks {
		_, err := tx.ExecContext(
			ctx,
			`INSERT INTO chunks (item_id, seq, text, embedding_json, model, created_at)
             VALUES (?, ?, ?, ?, ?, ?)`,
			itemID,
			chunk.Seq,
			chunk.Text,
			nullableString(chunk.EmbeddingJSON),
			nullableString(chunk.Model),
			now,
		)
		if err != nil {
			return fmt.Errorf("insert chunk %d: %w", chunk.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit chunks: %w", err)
	}
	return nil
}

// SetChunkEmbedding stores the embedding for one chunk.
func (s *Store) SetChunkEmbedding(ctx context.Context, itemID string, seq int, embeddingJSON, model string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE chunks SET embedding_json = ?, model = ? WHERE item_id = ? AND seq = ?`,
		embeddingJSON,
		nullableString(model),
		itemID,
		seq,
	)
	if err != nil {
		return fmt.Errorf("set chunk embedding: %w", err)
	}
	return nil
}

// ChunksForItem returns an item's chunks in sequence order.
func (s *Store) ChunksForItem(ctx context.Context, itemID string) ([]*Chunk, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, item_id, seq, text, embedding_json, model, created_at
         FROM chunks WHERE item_id = ? ORDER BY seq`,
		itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("chunks for item: %w", err)
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		var (
			chunk      Chunk
			embedding  sql.NullString
			model      sql.NullString
			createdRaw sql.NullString
		)
		if err := rows.Scan(&chunk.ID, &chunk.ItemID, &chunk.Seq, &chunk.Text, &embedding, &model, &createdRaw); err != nil {
			return nil, err
		}
		chunk.EmbeddingJSON = embedding.String
		chunk.Model = model.String
		if created, err := parseTimeString(createdRaw.String); err == nil {
			chunk.CreatedAt = created
		}
		chunks = append(chunks, &chunk)
	}
	return chunks, rows.Err()
}

// AssignCategories replaces an item's category set, creating categories that
// do not exist yet.
func (s *Store) AssignCategories(ctx context.Context, itemID string, names []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin categories tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM item_categories WHERE item_id = ?`, itemID); err != nil {
		return fmt.Errorf("clear item categories: %w", err)
	}

	for _, name := range names {
		if name == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO categories (name) VALUES (?)`, name); err != nil {
			return fmt.Errorf("insert category %q: %w", name, err)
		}
		_, err := tx.ExecContext(
			ctx,
			`INSERT OR IGNORE INTO item_categories (item_id, category_id)
             SELECT ?, id FROM categories WHERE name = ?`,
			itemID,
			name,
		)
		if err != nil {
			return fmt.Errorf("link category %q: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit categories: %w", err)
	}
	return nil
}

// CategoriesForItem returns an item's category names sorted alphabetically.
func (s *Store) CategoriesForItem(ctx context.Context, itemID string) ([]string, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT c.name FROM categories c
         JOIN item_categories ic ON ic.category_id = c.id
         WHERE ic.item_id = ? ORDER BY c.name`,
		itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("categories for item: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
