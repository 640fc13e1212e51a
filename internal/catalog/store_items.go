package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const itemColumns = "id, kind, title, summary, author, year, status, confidence, completeness, details_json, error_message, created_at, updated_at"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id           string
		kind         string
		title        sql.NullString
		summary      sql.NullString
		author       sql.NullString
		year         int
		statusStr    string
		confidence   int
		completeness int
		details      sql.NullString
		errorMessage sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&kind,
		&title,
		&summary,
		&author,
		&year,
		&statusStr,
		&confidence,
		&completeness,
		&details,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:           id,
		Kind:         ItemKind(kind),
		Title:        title.String,
		Summary:      summary.String,
		Author:       author.String,
		Year:         year,
		Status:       ItemStatus(statusStr),
		Confidence:   confidence,
		Completeness: completeness,
		DetailsJSON:  details.String,
		ErrorMessage: errorMessage.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		item.UpdatedAt = updated
	}
	return item, nil
}

// CreateItem inserts a new item in pending status together with its initial
// processing state, so the dispatcher can pick it up immediately.
func (s *Store) CreateItem(ctx context.Context, kind ItemKind, title string) (*Item, error) {
	id := uuid.NewString()
	now := formatTime(time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin item tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO items (id, kind, title, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		id,
		string(kind),
		nullableString(title),
		string(StatusPending),
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert item: %w", err)
	}

	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO processing_state (item_id, current_step, updated_at)
         VALUES (?, ?, ?)`,
		id,
		string(StepExtractText),
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert processing state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit item: %w", err)
	}

	return s.GetItem(ctx, id)
}

// GetItem fetches an item by identifier. Returns nil when not found.
func (s *Store) GetItem(ctx context.Context, id string) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// ListItems returns items filtered by status, newest first. An empty status
// list returns everything.
func (s *Store) ListItems(ctx context.Context, statuses ...ItemStatus) ([]*Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, string(status))
		}
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpdateItem persists changes to an existing item.
func (s *Store) UpdateItem(ctx context.Context, item *Item) error {
	if item == nil {
		return errors.New("item is nil")
	}
	item.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE items
         SET kind = ?, title = ?, summary = ?, author = ?, year = ?, status = ?,
             confidence = ?, completeness = ?, details_json = ?, error_message = ?,
             updated_at = ?
         WHERE id = ?`,
		string(item.Kind),
		nullableString(item.Title),
		nullableString(item.Summary),
		nullableString(item.Author),
		item.Year,
		string(item.Status),
		item.Confidence,
		item.Completeness,
		nullableString(item.DetailsJSON),
		nullableString(item.ErrorMessage),
		formatTime(item.UpdatedAt),
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// SetItemStatus updates just the status (and error message) of an item.
func (s *Store) SetItemStatus(ctx context.Context, id string, status ItemStatus, errorMessage string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE items SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		string(status),
		nullableString(errorMessage),
		formatTime(time.Now()),
		id,
	)
	if err != nil {
		return fmt.Errorf("set item status: %w", err)
	}
	return nil
}

// DeleteItem removes an item and, via cascade, its files, state, log, and
// review entries. Used to unwind the losing side of an upload race.
func (s *Store) DeleteItem(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}

// Stats returns a count of items grouped by status.
func (s *Store) Stats(ctx context.Context) (map[ItemStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("item stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[ItemStatus]int)
	for rows.Next() {
		var status ItemStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates item state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusPending:
			health.Pending += count
		case StatusProcessing:
			health.Processing += count
		case StatusReview:
			health.Review += count
		case StatusFailed:
			health.Failed += count
		case StatusPublished:
			health.Published += count
		}
	}
	return health, nil
}
