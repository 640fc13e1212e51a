package blobstore

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "storage"))
	if err != nil {
		t.Fatal(err)
	}
	store.statfs = func(string) (uint64, uint64, error) {
		return 1 << 40, 1 << 39, nil
	}
	return store
}

func TestWriteBlobContentAddressed(t *testing.T) {
	store := newTestStore(t)
	content := "the same scanned document"

	rel1, hash1, size, err := store.WriteBlob(strings.NewReader(content))
	if err != nil {
		t.Fatal(err)
	}
	if size != int64(len(content)) {
		t.Errorf("size = %d, want %d", size, len(content))
	}
	if !strings.HasPrefix(rel1, filepath.Join("blobs", hash1[:2])) {
		t.Errorf("unexpected layout %q", rel1)
	}

	// Same bytes land on the same path without error.
	rel2, hash2, _, err := store.WriteBlob(strings.NewReader(content))
	if err != nil {
		t.Fatal(err)
	}
	if rel1 != rel2 || hash1 != hash2 {
		t.Errorf("duplicate content produced %q/%q, want %q/%q", rel2, hash2, rel1, hash1)
	}

	reader, err := store.Open(rel1)
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()
	got, err := io.ReadAll(reader)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != content {
		t.Errorf("round-trip = %q", got)
	}
}

func TestWriteBlobLeavesNoStaging(t *testing.T) {
	store := newTestStore(t)
	if _, _, _, err := store.WriteBlob(strings.NewReader("abc")); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(filepath.Join(store.Root(), "blobs"))
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".incoming-") {
			t.Errorf("staging file left behind: %s", entry.Name())
		}
	}
}

func TestResolveDeniesTraversal(t *testing.T) {
	store := newTestStore(t)
	cases := []string{
		"../etc/passwd",
		"blobs/../../outside",
		"/etc/passwd",
		"",
		"..",
	}
	for _, rel := range cases {
		if _, err := store.Resolve(rel); !errors.Is(err, ErrInvalidPath) {
			t.Errorf("Resolve(%q) err = %v, want ErrInvalidPath", rel, err)
		}
	}

	// Interior dot segments that stay inside the root are fine.
	if _, err := store.Resolve("blobs/ab/./hash"); err != nil {
		t.Errorf("clean interior path rejected: %v", err)
	}
}

func TestRemoveMissingIsNoError(t *testing.T) {
	store := newTestStore(t)
	if err := store.Remove(DerivedPath("deadbeef")); err != nil {
		t.Fatalf("remove missing: %v", err)
	}
}

func TestWriteDerived(t *testing.T) {
	store := newTestStore(t)
	content := "derived artifact bytes"

	rel := DerivedPath("cafe1234")
	hash, size, err := store.Write(rel, strings.NewReader(content))
	if err != nil {
		t.Fatal(err)
	}
	if size != int64(len(content)) {
		t.Errorf("size = %d", size)
	}
	if hash == "" {
		t.Error("hash not computed")
	}

	exists, err := store.Exists(rel)
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Error("derived file should exist")
	}
}

func TestStat(t *testing.T) {
	store := newTestStore(t)
	if _, _, _, err := store.WriteBlob(strings.NewReader("one")); err != nil {
		t.Fatal(err)
	}
	if _, _, _, err := store.WriteBlob(strings.NewReader("two-longer")); err != nil {
		t.Fatal(err)
	}

	stats, err := store.Stat()
	if err != nil {
		t.Fatal(err)
	}
	if stats.BlobCount != 2 {
		t.Errorf("blob count = %d, want 2", stats.BlobCount)
	}
	if stats.StoreBytes != int64(len("one")+len("two-longer")) {
		t.Errorf("store bytes = %d", stats.StoreBytes)
	}
	if stats.TotalBytes != 1<<40 || stats.FreeBytes != 1<<39 {
		t.Errorf("filesystem stats = %d/%d", stats.TotalBytes, stats.FreeBytes)
	}
}
