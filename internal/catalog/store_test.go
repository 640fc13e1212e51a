package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenPath(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCreateItemSeedsProcessingState(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	item, err := store.CreateItem(ctx, KindBook, "Field Guide")
	if err != nil {
		t.Fatal(err)
	}
	if item.Status != StatusPending {
		t.Errorf("status = %q, want pending", item.Status)
	}
	if item.Kind != KindBook {
		t.Errorf("kind = %q", item.Kind)
	}

	state, err := store.GetState(ctx, item.ID)
	if err != nil {
		t.Fatal(err)
	}
	if state == nil {
		t.Fatal("processing state not created")
	}
	if state.CurrentStep != StepExtractText {
		t.Errorf("current step = %q, want extract_text", state.CurrentStep)
	}
	if state.LockedUntil != nil {
		t.Error("new item should not be leased")
	}
}

func TestSourceFileHashUnique(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	item, err := store.CreateItem(ctx, KindDocument, "")
	if err != nil {
		t.Fatal(err)
	}

	first, err := store.InsertSourceFile(ctx, &SourceFile{
		ItemID:       item.ID,
		OriginalName: "scan.pdf",
		RelativePath: "blobs/ab/abcd",
		ContentHash:  "abcd",
		SizeBytes:    100,
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = store.InsertSourceFile(ctx, &SourceFile{
		ItemID:       item.ID,
		OriginalName: "scan-copy.pdf",
		RelativePath: "blobs/ab/abcd",
		ContentHash:  "abcd",
		SizeBytes:    100,
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}
	if !IsConflict(err) {
		t.Error("IsConflict should report true")
	}

	found, err := store.FindSourceFileByHash(ctx, "abcd")
	if err != nil {
		t.Fatal(err)
	}
	if found == nil || found.ID != first.ID {
		t.Errorf("hash lookup returned %+v, want id %s", found, first.ID)
	}
}

func TestDerivativeIdentityTupleUnique(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	item, _ := store.CreateItem(ctx, KindPlan, "")
	file, err := store.InsertSourceFile(ctx, &SourceFile{
		ItemID: item.ID, OriginalName: "plan.pdf", RelativePath: "blobs/p", ContentHash: "p1", SizeBytes: 5,
	})
	if err != nil {
		t.Fatal(err)
	}

	base := Derivative{
		SourceFileID:     file.ID,
		Kind:             DerivativeOCRText,
		GeneratorName:    "tesseract",
		GeneratorVersion: "5.3.0",
		InputHash:        "p1",
		RelativePath:     "derived/x",
		ContentHash:      "d1",
		SizeBytes:        10,
	}
	first := base
	if _, err := store.InsertDerivative(ctx, &first); err != nil {
		t.Fatal(err)
	}

	dup := base
	dup.ID = ""
	dup.RelativePath = "derived/y"
	_, err = store.InsertDerivative(ctx, &dup)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}

	// A different generator version is a distinct derivative.
	other := base
	other.ID = ""
	other.GeneratorVersion = "6.0.0"
	other.RelativePath = "derived/z"
	if _, err := store.InsertDerivative(ctx, &other); err != nil {
		t.Fatalf("distinct version should insert: %v", err)
	}

	found, err := store.FindDerivative(ctx, file.ID, DerivativeOCRText, "5.3.0", "p1")
	if err != nil {
		t.Fatal(err)
	}
	if found == nil || found.ID != first.ID {
		t.Errorf("FindDerivative returned %+v", found)
	}
}

func TestAcquireLeaseSingleWinner(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	item, err := store.CreateItem(ctx, KindDocument, "")
	if err != nil {
		t.Fatal(err)
	}

	const contenders = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			ok, err := store.AcquireLease(ctx, item.ID, "run-"+string(rune('a'+n)), time.Minute)
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("lease winners = %d, want exactly 1", wins)
	}
}

func TestLeaseExpiryAllowsReclaim(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	item, _ := store.CreateItem(ctx, KindDocument, "")

	ok, err := store.AcquireLease(ctx, item.ID, "run-1", 10*time.Millisecond)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}

	// A live lease blocks other claimants.
	ok, err = store.AcquireLease(ctx, item.ID, "run-2", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("second claim should lose while the lease is live")
	}

	time.Sleep(20 * time.Millisecond)

	ok, err = store.AcquireLease(ctx, item.ID, "run-3", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expired lease should be reclaimable")
	}

	state, err := store.GetState(ctx, item.ID)
	if err != nil {
		t.Fatal(err)
	}
	if state.LastRunID != "run-3" {
		t.Errorf("last run = %q, want run-3", state.LastRunID)
	}
}

func TestExtendLeaseRequiresOwnership(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	item, _ := store.CreateItem(ctx, KindDocument, "")
	if ok, _ := store.AcquireLease(ctx, item.ID, "run-1", time.Minute); !ok {
		t.Fatal("acquire failed")
	}

	ok, err := store.ExtendLease(ctx, item.ID, "run-2", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("non-holder must not extend the lease")
	}

	ok, err = store.ExtendLease(ctx, item.ID, "run-1", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("holder should extend the lease")
	}
}

func TestAdvanceStepResetsRetryState(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	item, _ := store.CreateItem(ctx, KindDocument, "")
	if ok, _ := store.AcquireLease(ctx, item.ID, "run-1", time.Minute); !ok {
		t.Fatal("acquire failed")
	}
	if err := store.ScheduleRetry(ctx, item.ID, "run-1", "boom", time.Now().Add(-time.Second)); err != nil {
		t.Fatal(err)
	}

	if ok, _ := store.AcquireLease(ctx, item.ID, "run-2", time.Minute); !ok {
		t.Fatal("retry due, reacquire should work")
	}
	if err := store.AdvanceStep(ctx, item.ID, "run-2", StepOCRLocal); err != nil {
		t.Fatal(err)
	}

	state, err := store.GetState(ctx, item.ID)
	if err != nil {
		t.Fatal(err)
	}
	if state.CurrentStep != StepOCRLocal {
		t.Errorf("step = %q, want ocr_local", state.CurrentStep)
	}
	if state.RetryCount != 0 || state.NextRetryAt != nil || state.LastError != "" {
		t.Errorf("retry state not reset: %+v", state)
	}
	if state.LockedUntil != nil {
		t.Error("advance should release the lease")
	}
}

func TestScheduleRetryDelaysEligibility(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	item, _ := store.CreateItem(ctx, KindDocument, "")
	if ok, _ := store.AcquireLease(ctx, item.ID, "run-1", time.Minute); !ok {
		t.Fatal("acquire failed")
	}
	if err := store.ScheduleRetry(ctx, item.ID, "run-1", "backend down", time.Now().Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	eligible, err := store.ListEligible(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(eligible) != 0 {
		t.Fatalf("item with future retry should not be eligible, got %v", eligible)
	}

	if err := store.Kick(ctx, item.ID); err != nil {
		t.Fatal(err)
	}
	eligible, err = store.ListEligible(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(eligible) != 1 || eligible[0] != item.ID {
		t.Fatalf("kicked item should be eligible, got %v", eligible)
	}

	state, _ := store.GetState(ctx, item.ID)
	if state.RetryCount != 0 {
		t.Errorf("kick should reset retry count, got %d", state.RetryCount)
	}
}

func TestProcessingLogAppendOrder(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	item, _ := store.CreateItem(ctx, KindBook, "")
	steps := []struct {
		step    Step
		outcome Outcome
	}{
		{StepExtractText, OutcomeCompleted},
		{StepOCRLocal, OutcomeSkipped},
		{StepOCRCloud, OutcomeSkipped},
		{StepChunk, OutcomeCompleted},
		{StepEmbed, OutcomeFailed},
		{StepEmbed, OutcomeCompleted},
	}
	for _, s := range steps {
		err := store.AppendLog(ctx, &LogEntry{
			ItemID: item.ID, RunID: "run-1", Step: s.step, Outcome: s.outcome,
			ProcessorName: "test", ProcessorVersion: "1",
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	entries, err := store.LogForItem(ctx, item.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != len(steps) {
		t.Fatalf("got %d entries, want %d", len(entries), len(steps))
	}
	for i, s := range steps {
		if entries[i].Step != s.step || entries[i].Outcome != s.outcome {
			t.Errorf("entry %d = %s/%s, want %s/%s", i, entries[i].Step, entries[i].Outcome, s.step, s.outcome)
		}
	}
}

func TestProcessingLogRecordsAttemptDetails(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	item, _ := store.CreateItem(ctx, KindDocument, "")
	err := store.AppendLog(ctx, &LogEntry{
		ItemID: item.ID, RunID: "run-9", Step: StepOCRCloud, Outcome: OutcomeCompleted,
		ProcessorName: "vision", ProcessorVersion: "vision-ocr-1",
		InputHash:  "deadbeef",
		Cost:       0.0045,
		RetryCount: 2,
	})
	if err != nil {
		t.Fatal(err)
	}

	entries, err := store.LogForItem(ctx, item.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d", len(entries))
	}
	got := entries[0]
	if got.InputHash != "deadbeef" {
		t.Errorf("input hash = %q", got.InputHash)
	}
	if got.Cost != 0.0045 {
		t.Errorf("cost = %v", got.Cost)
	}
	if got.RetryCount != 2 {
		t.Errorf("retry count = %d", got.RetryCount)
	}
}

func TestOpenReviewIdempotent(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	item, _ := store.CreateItem(ctx, KindDocument, "")

	first, err := store.OpenReview(ctx, item.ID, "retries exhausted")
	if err != nil {
		t.Fatal(err)
	}
	second, err := store.OpenReview(ctx, item.ID, "another reason")
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected one open entry, got %d and %d", first.ID, second.ID)
	}

	open, err := store.ListOpenReviews(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 1 {
		t.Fatalf("open reviews = %d, want 1", len(open))
	}

	ok, err := store.ResolveReview(ctx, first.ID, "metadata corrected", "curator")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("resolve should succeed for open entry")
	}

	// Resolving twice is a no-op.
	ok, err = store.ResolveReview(ctx, first.ID, "again", "curator")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("second resolve should report false")
	}

	// After resolution a new escalation opens a fresh entry.
	third, err := store.OpenReview(ctx, item.ID, "regressed")
	if err != nil {
		t.Fatal(err)
	}
	if third.ID == first.ID {
		t.Fatal("resolved entry must not be reused")
	}
}

func TestOpenReviewSnapshotsItemMetadata(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	item, _ := store.CreateItem(ctx, KindBook, "Rivers of the West")
	item.Author = "H. Granger"
	item.Confidence = 42
	item.DetailsJSON = `{"book":{"isbn":"978-0-00-000000-0"}}`
	if err := store.UpdateItem(ctx, item); err != nil {
		t.Fatal(err)
	}

	entry, err := store.OpenReview(ctx, item.ID, "low confidence")
	if err != nil {
		t.Fatal(err)
	}
	var snapshot struct {
		Title      string `json:"title"`
		Author     string `json:"author"`
		Confidence int    `json:"confidence"`
		Details    struct {
			Book struct {
				ISBN string `json:"isbn"`
			} `json:"book"`
		} `json:"details"`
	}
	if err := json.Unmarshal([]byte(entry.SnapshotJSON), &snapshot); err != nil {
		t.Fatalf("snapshot is not valid JSON: %v", err)
	}
	if snapshot.Title != "Rivers of the West" || snapshot.Author != "H. Granger" || snapshot.Confidence != 42 {
		t.Errorf("snapshot = %+v", snapshot)
	}
	if snapshot.Details.Book.ISBN != "978-0-00-000000-0" {
		t.Errorf("details not captured: %q", entry.SnapshotJSON)
	}

	// The snapshot is frozen at escalation time.
	item.Title = "Renamed After Escalation"
	if err := store.UpdateItem(ctx, item); err != nil {
		t.Fatal(err)
	}
	reloaded, err := store.OpenReviewForItem(ctx, item.ID)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.SnapshotJSON != entry.SnapshotJSON {
		t.Error("snapshot changed after item update")
	}
}

func TestRetryFailedResetsItems(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	item, _ := store.CreateItem(ctx, KindDocument, "")
	if err := store.SetItemStatus(ctx, item.ID, StatusFailed, "exhausted"); err != nil {
		t.Fatal(err)
	}

	eligible, _ := store.ListEligible(ctx, 10)
	if len(eligible) != 0 {
		t.Fatal("failed item should not be eligible")
	}

	count, err := store.RetryFailed(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("reset count = %d, want 1", count)
	}

	reloaded, _ := store.GetItem(ctx, item.ID)
	if reloaded.Status != StatusPending {
		t.Errorf("status = %q, want pending", reloaded.Status)
	}
	if reloaded.ErrorMessage != "" {
		t.Errorf("error message not cleared: %q", reloaded.ErrorMessage)
	}
}

func TestReplacePagesIdempotent(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	item, _ := store.CreateItem(ctx, KindBook, "")
	file, _ := store.InsertSourceFile(ctx, &SourceFile{
		ItemID: item.ID, OriginalName: "b.pdf", RelativePath: "blobs/b", ContentHash: "b1", SizeBytes: 1,
	})

	pages := []*ExtractedPage{
		{SourceFileID: file.ID, PageNumber: 1, Text: "one", Method: OCRMethodNative, Confidence: 100},
		{SourceFileID: file.ID, PageNumber: 2, Text: "two", Method: OCRMethodLocal, Confidence: 88},
	}
	if err := store.ReplacePages(ctx, file.ID, pages); err != nil {
		t.Fatal(err)
	}
	// Re-running extraction replaces rather than duplicates.
	if err := store.ReplacePages(ctx, file.ID, pages); err != nil {
		t.Fatal(err)
	}

	got, err := store.PagesForSourceFile(ctx, file.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("pages = %d, want 2", len(got))
	}
	if got[1].Method != OCRMethodLocal || got[1].Confidence != 88 {
		t.Errorf("page 2 = %+v", got[1])
	}
}

func TestAssignCategories(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	a, _ := store.CreateItem(ctx, KindBook, "")
	b, _ := store.CreateItem(ctx, KindBook, "")

	if err := store.AssignCategories(ctx, a.ID, []string{"history", "maps"}); err != nil {
		t.Fatal(err)
	}
	// Shared category names reuse the same row.
	if err := store.AssignCategories(ctx, b.ID, []string{"maps"}); err != nil {
		t.Fatal(err)
	}
	// Reassignment replaces the set.
	if err := store.AssignCategories(ctx, a.ID, []string{"genealogy"}); err != nil {
		t.Fatal(err)
	}

	got, err := store.CategoriesForItem(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "genealogy" {
		t.Errorf("categories = %v", got)
	}

	gotB, _ := store.CategoriesForItem(ctx, b.ID)
	if len(gotB) != 1 || gotB[0] != "maps" {
		t.Errorf("item b categories = %v", gotB)
	}
}

func TestStatsAndHealth(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.CreateItem(ctx, KindDocument, ""); err != nil {
			t.Fatal(err)
		}
	}
	item, _ := store.CreateItem(ctx, KindDocument, "")
	_ = store.SetItemStatus(ctx, item.ID, StatusPublished, "")

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if health.Total != 4 || health.Pending != 3 || health.Published != 1 {
		t.Errorf("health = %+v", health)
	}
}
