package api

import (
	"encoding/json"
	"time"

	"archivist/internal/catalog"
)

func formatTimestamp(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(dateTimeFormat)
}

// FromItem converts a catalog item to its transport representation. State and
// categories are optional; pass nil when the caller has not loaded them.
func FromItem(item *catalog.Item, state *catalog.ProcessingState, categories []string) Item {
	if item == nil {
		return Item{}
	}
	dto := Item{
		ID:           item.ID,
		Kind:         string(item.Kind),
		Title:        item.Title,
		Summary:      item.Summary,
		Author:       item.Author,
		Year:         item.Year,
		Status:       string(item.Status),
		Confidence:   item.Confidence,
		Completeness: item.Completeness,
		Categories:   categories,
		ErrorMessage: item.ErrorMessage,
		CreatedAt:    formatTimestamp(item.CreatedAt),
		UpdatedAt:    formatTimestamp(item.UpdatedAt),
	}
	if item.DetailsJSON != "" && json.Valid([]byte(item.DetailsJSON)) {
		dto.Details = json.RawMessage(item.DetailsJSON)
	}
	if state != nil {
		dto.CurrentStep = string(state.CurrentStep)
		dto.RetryCount = state.RetryCount
		dto.LastError = state.LastError
		dto.IsLocked = state.LockedUntil != nil && state.LockedUntil.After(time.Now())
		if state.NextRetryAt != nil {
			dto.NextRetryAt = formatTimestamp(*state.NextRetryAt)
		}
	}
	return dto
}

// FromSourceFile converts a catalog source file to its transport representation.
func FromSourceFile(file *catalog.SourceFile) SourceFile {
	if file == nil {
		return SourceFile{}
	}
	return SourceFile{
		ID:           file.ID,
		OriginalName: file.OriginalName,
		RelativePath: file.RelativePath,
		ContentHash:  file.ContentHash,
		SizeBytes:    file.SizeBytes,
		MediaType:    file.MediaType,
		CreatedAt:    formatTimestamp(file.CreatedAt),
	}
}

// FromDerivative converts a catalog derivative to its transport representation.
func FromDerivative(derivative *catalog.Derivative) Derivative {
	if derivative == nil {
		return Derivative{}
	}
	return Derivative{
		ID:               derivative.ID,
		SourceFileID:     derivative.SourceFileID,
		Kind:             string(derivative.Kind),
		GeneratorName:    derivative.GeneratorName,
		GeneratorVersion: derivative.GeneratorVersion,
		RelativePath:     derivative.RelativePath,
		SizeBytes:        derivative.SizeBytes,
		CreatedAt:        formatTimestamp(derivative.CreatedAt),
	}
}

// FromLogEntry converts a processing log record to its transport representation.
func FromLogEntry(entry *catalog.LogEntry) LogEntry {
	if entry == nil {
		return LogEntry{}
	}
	return LogEntry{
		ID:               entry.ID,
		RunID:            entry.RunID,
		Step:             string(entry.Step),
		Outcome:          string(entry.Outcome),
		Message:          entry.Message,
		ProcessorName:    entry.ProcessorName,
		ProcessorVersion: entry.ProcessorVersion,
		DurationMS:       entry.DurationMS,
		InputHash:        entry.InputHash,
		Cost:             entry.Cost,
		RetryCount:       entry.RetryCount,
		CreatedAt:        formatTimestamp(entry.CreatedAt),
	}
}

// FromReviewEntry converts a review queue record to its transport representation.
func FromReviewEntry(entry *catalog.ReviewEntry) ReviewEntry {
	if entry == nil {
		return ReviewEntry{}
	}
	dto := ReviewEntry{
		ID:         entry.ID,
		ItemID:     entry.ItemID,
		Reason:     entry.Reason,
		CreatedAt:  formatTimestamp(entry.CreatedAt),
		Resolution: entry.Resolution,
		ResolvedBy: entry.ResolvedBy,
	}
	if json.Valid([]byte(entry.SnapshotJSON)) {
		dto.Snapshot = json.RawMessage(entry.SnapshotJSON)
	}
	if entry.ReviewedAt != nil {
		dto.ReviewedAt = formatTimestamp(*entry.ReviewedAt)
	}
	return dto
}

// FromHealthSummary converts catalog health counts.
func FromHealthSummary(health catalog.HealthSummary) HealthSummary {
	return HealthSummary{
		Total:      health.Total,
		Pending:    health.Pending,
		Processing: health.Processing,
		Review:     health.Review,
		Failed:     health.Failed,
		Published:  health.Published,
	}
}
