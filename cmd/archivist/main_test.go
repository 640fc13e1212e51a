package main

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"archivist/internal/catalog"
)

func TestCLIUploadListShow(t *testing.T) {
	env := setupCLITestEnv(t)

	path := writeUploadFixture(t, env.baseDir, "rivers.pdf", "%PDF-1.7 rivers of the north")

	out, _, err := runCLI(t, []string{"upload", path, "--kind", "book", "--title", "Rivers of the North"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	requireContains(t, out, "Uploaded rivers.pdf")

	out, _, err = runCLI(t, []string{"upload", path}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("duplicate upload: %v", err)
	}
	requireContains(t, out, "Already in library")

	out, _, err = runCLI(t, []string{"item", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("item list: %v", err)
	}
	requireContains(t, out, "Rivers of the North")
	requireContains(t, out, "pending")

	items, err := env.store.ListItems(context.Background())
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}

	out, _, err = runCLI(t, []string{"item", "show", items[0].ID}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("item show: %v", err)
	}
	requireContains(t, out, "Rivers of the North")
	requireContains(t, out, "rivers.pdf")
	requireContains(t, out, "extract_text")

	if _, _, err := runCLI(t, []string{"item", "show", "missing"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("show of missing item should fail")
	}
}

func TestCLIUploadRejectsTitleWithMultiplePaths(t *testing.T) {
	env := setupCLITestEnv(t)

	a := writeUploadFixture(t, env.baseDir, "a.pdf", "%PDF-1.7 a")
	b := writeUploadFixture(t, env.baseDir, "b.pdf", "%PDF-1.7 b")

	_, _, err := runCLI(t, []string{"upload", a, b, "--title", "One Title"}, env.socketPath, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "--title applies to a single file") {
		t.Fatalf("expected title/multi-path error, got %v", err)
	}
}

func TestCLIStatusCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Running")
	requireContains(t, out, "Catalog")
	requireContains(t, out, "Library is empty")

	out, _, err = runCLI(t, []string{"status", "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	requireContains(t, out, "\"catalog_db_path\"")
}

func TestCLIReviewListAndResolve(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	item, err := env.store.CreateItem(ctx, catalog.KindDocument, "Smudged Ledger")
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	if err := env.store.SetItemStatus(ctx, item.ID, catalog.StatusReview, ""); err != nil {
		t.Fatalf("SetItemStatus: %v", err)
	}
	review, err := env.store.OpenReview(ctx, item.ID, "metadata below thresholds")
	if err != nil {
		t.Fatalf("OpenReview: %v", err)
	}

	out, _, err := runCLI(t, []string{"review", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("review list: %v", err)
	}
	requireContains(t, out, "metadata below thresholds")

	reviewID := strconv.FormatInt(review.ID, 10)
	out, _, err = runCLI(t, []string{"review", "resolve", reviewID, "--action", "approve", "--note", "looks fine"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("review resolve: %v", err)
	}
	requireContains(t, out, "resolved: approve")

	updated, err := env.store.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if updated.Status != catalog.StatusPublished {
		t.Fatalf("status after approve = %s, want published", updated.Status)
	}

	out, _, err = runCLI(t, []string{"review", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("review list after resolve: %v", err)
	}
	requireContains(t, out, "Review queue is empty")

	if _, _, err := runCLI(t, []string{"review", "resolve", reviewID, "--action", "approve"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("resolving an already-resolved review should fail")
	}
}

func TestCLIRetryAndKick(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	out, _, err := runCLI(t, []string{"retry"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("retry with empty library: %v", err)
	}
	requireContains(t, out, "No failed items to retry")

	path := writeUploadFixture(t, env.baseDir, "broken.pdf", "%PDF-1.7 broken")
	if _, _, err := runCLI(t, []string{"upload", path}, env.socketPath, env.configPath); err != nil {
		t.Fatalf("upload: %v", err)
	}
	items, err := env.store.ListItems(ctx)
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if err := env.store.SetItemStatus(ctx, items[0].ID, catalog.StatusFailed, "boom"); err != nil {
		t.Fatalf("SetItemStatus: %v", err)
	}

	out, _, err = runCLI(t, []string{"retry"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	requireContains(t, out, "Retried 1 failed items")

	updated, err := env.store.GetItem(ctx, items[0].ID)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if updated.Status != catalog.StatusPending {
		t.Fatalf("status after retry = %s, want pending", updated.Status)
	}

	out, _, err = runCLI(t, []string{"kick", items[0].ID}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("kick: %v", err)
	}
	requireContains(t, out, "queued for pickup")

	if _, _, err := runCLI(t, []string{"kick", "missing"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("kick of missing item should fail")
	}
}
