package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const stateColumns = "item_id, current_step, last_run_id, last_error, retry_count, next_retry_at, locked_until, updated_at"

func scanState(scanner interface{ Scan(dest ...any) error }) (*ProcessingState, error) {
	var (
		itemID      string
		currentStep string
		lastRunID   sql.NullString
		lastError   sql.NullString
		retryCount  int
		nextRetry   sql.NullString
		lockedUntil sql.NullString
		updatedRaw  sql.NullString
	)
	if err := scanner.Scan(&itemID, &currentStep, &lastRunID, &lastError, &retryCount, &nextRetry, &lockedUntil, &updatedRaw); err != nil {
		return nil, err
	}
	state := &ProcessingState{
		ItemID:      itemID,
		CurrentStep: Step(currentStep),
		LastRunID:   lastRunID.String,
		LastError:   lastError.String,
		RetryCount:  retryCount,
		NextRetryAt: parseNullableTime(nextRetry),
		LockedUntil: parseNullableTime(lockedUntil),
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		state.UpdatedAt = updated
	}
	return state, nil
}

// GetState fetches the processing state for an item. Returns nil when not found.
func (s *Store) GetState(ctx context.Context, itemID string) (*ProcessingState, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+stateColumns+` FROM processing_state WHERE item_id = ?`, itemID)
	state, err := scanState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get processing state: %w", err)
	}
	return state, nil
}

// AcquireLease attempts to claim an item for processing. The claim is a single
// conditional update: it succeeds only when the item is runnable, any previous
// lease has expired, and no retry delay is pending. Exactly one concurrent
// caller can win; everyone else sees false.
func (s *Store) AcquireLease(ctx context.Context, itemID, runID string, leaseDuration time.Duration) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE processing_state
         SET locked_until = ?, last_run_id = ?, updated_at = ?
         WHERE item_id = ?
           AND (locked_until IS NULL OR locked_until <= ?)
           AND (next_retry_at IS NULL OR next_retry_at <= ?)
           AND item_id IN (SELECT id FROM items WHERE status IN (?, ?))`,
		formatTime(now.Add(leaseDuration)),
		runID,
		formatTime(now),
		itemID,
		formatTime(now),
		formatTime(now),
		string(StatusPending),
		string(StatusProcessing),
	)
	if err != nil {
		return false, fmt.Errorf("acquire lease: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquire lease rows: %w", err)
	}
	return affected == 1, nil
}

// ExtendLease pushes out the lease expiry for the holder identified by runID.
// Returns false when the lease is no longer held by that run.
func (s *Store) ExtendLease(ctx context.Context, itemID, runID string, leaseDuration time.Duration) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE processing_state
         SET locked_until = ?, updated_at = ?
         WHERE item_id = ? AND last_run_id = ? AND locked_until IS NOT NULL`,
		formatTime(now.Add(leaseDuration)),
		formatTime(now),
		itemID,
		runID,
	)
	if err != nil {
		return false, fmt.Errorf("extend lease: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("extend lease rows: %w", err)
	}
	return affected == 1, nil
}

// AdvanceStep records successful completion of the current step: the state
// moves to nextStep, retry bookkeeping resets, and the lease is released.
func (s *Store) AdvanceStep(ctx context.Context, itemID, runID string, nextStep Step) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE processing_state
         SET current_step = ?, retry_count = 0, next_retry_at = NULL,
             last_error = NULL, locked_until = NULL, updated_at = ?
         WHERE item_id = ? AND last_run_id = ?`,
		string(nextStep),
		formatTime(time.Now()),
		itemID,
		runID,
	)
	if err != nil {
		return fmt.Errorf("advance step: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("advance step rows: %w", err)
	}
	if affected != 1 {
		return fmt.Errorf("advance step: lease for item %s no longer held by run %s", itemID, runID)
	}
	return nil
}

// ScheduleRetry records a step failure that will be retried: the retry count
// increments, the next attempt is delayed until retryAt, and the lease is
// released. The current step is unchanged so the retry resumes there.
func (s *Store) ScheduleRetry(ctx context.Context, itemID, runID, errorMessage string, retryAt time.Time) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE processing_state
         SET retry_count = retry_count + 1, next_retry_at = ?, last_error = ?,
             locked_until = NULL, updated_at = ?
         WHERE item_id = ? AND last_run_id = ?`,
		formatTime(retryAt),
		nullableString(errorMessage),
		formatTime(time.Now()),
		itemID,
		runID,
	)
	if err != nil {
		return fmt.Errorf("schedule retry: %w", err)
	}
	return nil
}

// ReleaseLease clears the lease without touching step or retry bookkeeping.
// Used when an item leaves the runnable statuses (failed, review).
func (s *Store) ReleaseLease(ctx context.Context, itemID, runID, errorMessage string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE processing_state
         SET locked_until = NULL, last_error = ?, updated_at = ?
         WHERE item_id = ? AND last_run_id = ?`,
		nullableString(errorMessage),
		formatTime(time.Now()),
		itemID,
		runID,
	)
	if err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}

// Kick clears retry delay and count so an item becomes eligible immediately.
func (s *Store) Kick(ctx context.Context, itemID string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE processing_state
         SET next_retry_at = NULL, retry_count = 0, updated_at = ?
         WHERE item_id = ?`,
		formatTime(time.Now()),
		itemID,
	)
	if err != nil {
		return fmt.Errorf("kick item: %w", err)
	}
	return nil
}

// ListEligible returns item IDs the dispatcher may claim: runnable status, no
// live lease, no pending retry delay. Oldest first.
func (s *Store) ListEligible(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	now := formatTime(time.Now())
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT ps.item_id
         FROM processing_state ps
         JOIN items i ON i.id = ps.item_id
         WHERE i.status IN (?, ?)
           AND (ps.locked_until IS NULL OR ps.locked_until <= ?)
           AND (ps.next_retry_at IS NULL OR ps.next_retry_at <= ?)
         ORDER BY i.created_at, i.id
         LIMIT ?`,
		string(StatusPending),
		string(StatusProcessing),
		now,
		now,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list eligible: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RetryFailed moves failed items back to pending and clears retry bookkeeping
// so the pipeline resumes from the step that failed. Returns the number of
// items reset.
func (s *Store) RetryFailed(ctx context.Context, itemIDs ...string) (int, error) {
	now := formatTime(time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin retry tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	itemQuery := `UPDATE items SET status = ?, error_message = NULL, updated_at = ? WHERE status = ?`
	args := []any{string(StatusPending), now, string(StatusFailed)}
	if len(itemIDs) > 0 {
		itemQuery += ` AND id IN (` + makePlaceholders(len(itemIDs)) + `)`
		for _, id := range itemIDs {
			args = append(args, id)
		}
	}
	res, err := tx.ExecContext(ctx, itemQuery, args...)
	if err != nil {
		return 0, fmt.Errorf("retry failed items: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("retry failed rows: %w", err)
	}

	stateQuery := `UPDATE processing_state
        SET retry_count = 0, next_retry_at = NULL, last_error = NULL, updated_at = ?
        WHERE item_id IN (SELECT id FROM items WHERE status = ?)`
	stateArgs := []any{now, string(StatusPending)}
	if len(itemIDs) > 0 {
		stateQuery += ` AND item_id IN (` + makePlaceholders(len(itemIDs)) + `)`
		for _, id := range itemIDs {
			stateArgs = append(stateArgs, id)
		}
	}
	if _, err := tx.ExecContext(ctx, stateQuery, stateArgs...); err != nil {
		return 0, fmt.Errorf("retry failed states: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit retry: %w", err)
	}
	return int(affected), nil
}
