package api

import (
	"testing"
	"time"

	"archivist/internal/catalog"
)

func TestFromItemIncludesStateFields(t *testing.T) {
	created := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	retry := created.Add(time.Hour)
	item := &catalog.Item{
		ID:           "item-1",
		Kind:         catalog.KindBook,
		Title:        "Tidewater Atlas",
		Status:       catalog.StatusProcessing,
		Confidence:   82,
		Completeness: 75,
		DetailsJSON:  `{"book":{"tags":["maps"]}}`,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
	locked := time.Now().Add(2 * time.Minute)
	state := &catalog.ProcessingState{
		CurrentStep: catalog.StepEmbed,
		RetryCount:  1,
		LastError:   "embedder timeout",
		NextRetryAt: &retry,
		LockedUntil: &locked,
	}

	dto := FromItem(item, state, []string{"Geography"})
	if dto.CurrentStep != "embed" {
		t.Errorf("current step = %q", dto.CurrentStep)
	}
	if dto.RetryCount != 1 {
		t.Errorf("retry count = %d", dto.RetryCount)
	}
	if dto.LastError != "embedder timeout" {
		t.Errorf("last error = %q", dto.LastError)
	}
	if !dto.IsLocked {
		t.Error("active lease should report isLocked")
	}
	if dto.NextRetryAt == "" {
		t.Error("next retry timestamp missing")
	}
	if len(dto.Categories) != 1 || dto.Categories[0] != "Geography" {
		t.Errorf("categories = %v", dto.Categories)
	}
	if string(dto.Details) != item.DetailsJSON {
		t.Errorf("details = %s", dto.Details)
	}
	if dto.CreatedAt != "2025-03-14T09:26:53.000Z" {
		t.Errorf("created at = %q", dto.CreatedAt)
	}
}

func TestFromItemExpiredLeaseIsNotLocked(t *testing.T) {
	expired := time.Now().Add(-time.Minute)
	item := &catalog.Item{ID: "item-4", Kind: catalog.KindDocument}
	state := &catalog.ProcessingState{
		CurrentStep: catalog.StepOCRLocal,
		LockedUntil: &expired,
	}
	dto := FromItem(item, state, nil)
	if dto.IsLocked {
		t.Error("expired lease must not report isLocked")
	}
}

func TestFromItemSkipsInvalidDetails(t *testing.T) {
	item := &catalog.Item{ID: "item-2", Kind: catalog.KindPlan, DetailsJSON: "{broken"}
	dto := FromItem(item, nil, nil)
	if dto.Details != nil {
		t.Errorf("invalid details should be dropped, got %s", dto.Details)
	}
	if dto.CurrentStep != "" || dto.NextRetryAt != "" {
		t.Error("state fields should be empty without state")
	}
}

func TestFromReviewEntryFormatsResolution(t *testing.T) {
	reviewed := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	entry := &catalog.ReviewEntry{
		ID:         7,
		ItemID:     "item-3",
		Reason:     "metadata below thresholds",
		ReviewedAt: &reviewed,
		Resolution: "approved",
		ResolvedBy: "mk",
	}
	dto := FromReviewEntry(entry)
	if dto.ReviewedAt != "2025-05-01T12:00:00.000Z" {
		t.Errorf("reviewed at = %q", dto.ReviewedAt)
	}
	if dto.Resolution != "approved" || dto.ResolvedBy != "mk" {
		t.Errorf("resolution fields = %+v", dto)
	}
}
