package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const reviewColumns = "id, item_id, reason, snapshot_json, created_at, reviewed_at, resolution, resolved_by"

func scanReviewEntry(scanner interface{ Scan(dest ...any) error }) (*ReviewEntry, error) {
	var (
		id         int64
		itemID     string
		reason     string
		snapshot   sql.NullString
		createdRaw sql.NullString
		reviewed   sql.NullString
		resolution sql.NullString
		resolvedBy sql.NullString
	)
	if err := scanner.Scan(&id, &itemID, &reason, &snapshot, &createdRaw, &reviewed, &resolution, &resolvedBy); err != nil {
		return nil, err
	}
	entry := &ReviewEntry{
		ID:           id,
		ItemID:       itemID,
		Reason:       reason,
		SnapshotJSON: snapshot.String,
		ReviewedAt:   parseNullableTime(reviewed),
		Resolution:   resolution.String,
		ResolvedBy:   resolvedBy.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		entry.CreatedAt = created
	}
	return entry, nil
}

// OpenReview escalates an item to human review, freezing the item's extracted
// metadata into the entry. The partial unique index on open entries makes this
// idempotent: if an open entry already exists the insert is a no-op and the
// existing entry is returned with its original snapshot.
func (s *Store) OpenReview(ctx context.Context, itemID, reason string) (*ReviewEntry, error) {
	snapshot, err := s.snapshotItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO review_queue (item_id, reason, snapshot_json, created_at) VALUES (?, ?, ?, ?)`,
		itemID,
		reason,
		nullableString(snapshot),
		formatTime(time.Now()),
	)
	if err != nil && !IsConflict(err) {
		return nil, fmt.Errorf("open review: %w", err)
	}
	return s.OpenReviewForItem(ctx, itemID)
}

// snapshotItem serializes the reviewable fields of an item.
func (s *Store) snapshotItem(ctx context.Context, itemID string) (string, error) {
	item, err := s.GetItem(ctx, itemID)
	if err != nil {
		return "", fmt.Errorf("snapshot item: %w", err)
	}
	if item == nil {
		return "", nil
	}
	payload := struct {
		Title        string          `json:"title,omitempty"`
		Author       string          `json:"author,omitempty"`
		Year         int             `json:"year,omitempty"`
		Summary      string          `json:"summary,omitempty"`
		Confidence   int             `json:"confidence"`
		Completeness int             `json:"completeness"`
		Details      json.RawMessage `json:"details,omitempty"`
	}{
		Title:        item.Title,
		Author:       item.Author,
		Year:         item.Year,
		Summary:      item.Summary,
		Confidence:   item.Confidence,
		Completeness: item.Completeness,
	}
	if json.Valid([]byte(item.DetailsJSON)) {
		payload.Details = json.RawMessage(item.DetailsJSON)
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("snapshot item: %w", err)
	}
	return string(encoded), nil
}

// OpenReviewForItem returns the item's open review entry, or nil.
func (s *Store) OpenReviewForItem(ctx context.Context, itemID string) (*ReviewEntry, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+reviewColumns+` FROM review_queue WHERE item_id = ? AND reviewed_at IS NULL`,
		itemID,
	)
	entry, err := scanReviewEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open review for item: %w", err)
	}
	return entry, nil
}

// ListOpenReviews returns all unresolved review entries, oldest first.
func (s *Store) ListOpenReviews(ctx context.Context) ([]*ReviewEntry, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+reviewColumns+` FROM review_queue WHERE reviewed_at IS NULL ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list open reviews: %w", err)
	}
	defer rows.Close()

	var entries []*ReviewEntry
	for rows.Next() {
		entry, err := scanReviewEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ReviewHistoryForItem returns every review entry for an item, resolved or not.
func (s *Store) ReviewHistoryForItem(ctx context.Context, itemID string) ([]*ReviewEntry, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+reviewColumns+` FROM review_queue WHERE item_id = ? ORDER BY id`,
		itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("review history: %w", err)
	}
	defer rows.Close()

	var entries []*ReviewEntry
	for rows.Next() {
		entry, err := scanReviewEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ResolveReview closes an open review entry. Returns false when the entry does
// not exist or is already resolved.
func (s *Store) ResolveReview(ctx context.Context, reviewID int64, resolution, resolvedBy string) (bool, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE review_queue
         SET reviewed_at = ?, resolution = ?, resolved_by = ?
         WHERE id = ? AND reviewed_at IS NULL`,
		formatTime(time.Now()),
		nullableString(resolution),
		nullableString(resolvedBy),
		reviewID,
	)
	if err != nil {
		return false, fmt.Errorf("resolve review: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("resolve review rows: %w", err)
	}
	return affected == 1, nil
}
