package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const logColumns = "id, item_id, run_id, step, outcome, message, processor_name, processor_version, duration_ms, input_hash, cost, retry_count, created_at"

func scanLogEntry(scanner interface{ Scan(dest ...any) error }) (*LogEntry, error) {
	var (
		id               int64
		itemID           string
		runID            string
		step             string
		outcome          string
		message          sql.NullString
		processorName    sql.NullString
		processorVersion sql.NullString
		durationMS       int64
		inputHash        sql.NullString
		cost             float64
		retryCount       int
		createdRaw       sql.NullString
	)
	if err := scanner.Scan(&id, &itemID, &runID, &step, &outcome, &message,
		&processorName, &processorVersion, &durationMS, &inputHash, &cost, &retryCount, &createdRaw); err != nil {
		return nil, err
	}
	entry := &LogEntry{
		ID:               id,
		ItemID:           itemID,
		RunID:            runID,
		Step:             Step(step),
		Outcome:          Outcome(outcome),
		Message:          message.String,
		ProcessorName:    processorName.String,
		ProcessorVersion: processorVersion.String,
		DurationMS:       durationMS,
		InputHash:        inputHash.String,
		Cost:             cost,
		RetryCount:       retryCount,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		entry.CreatedAt = created
	}
	return entry, nil
}

// AppendLog writes one append-only processing log entry. Log rows are never
// updated or deleted.
func (s *Store) AppendLog(ctx context.Context, entry *LogEntry) error {
	if entry == nil {
		return fmt.Errorf("log entry is nil")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO processing_log
            (item_id, run_id, step, outcome, message, processor_name, processor_version,
             duration_ms, input_hash, cost, retry_count, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ItemID,
		entry.RunID,
		string(entry.Step),
		string(entry.Outcome),
		nullableString(entry.Message),
		nullableString(entry.ProcessorName),
		nullableString(entry.ProcessorVersion),
		entry.DurationMS,
		nullableString(entry.InputHash),
		entry.Cost,
		entry.RetryCount,
		formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}

// LogForItem returns an item's full processing history in insertion order.
func (s *Store) LogForItem(ctx context.Context, itemID string) ([]*LogEntry, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+logColumns+` FROM processing_log WHERE item_id = ? ORDER BY id`,
		itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("log for item: %w", err)
	}
	defer rows.Close()

	var entries []*LogEntry
	for rows.Next() {
		entry, err := scanLogEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
