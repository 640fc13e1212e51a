package testsupport

import (
	"context"
	"testing"

	"archivist/internal/blobstore"
	"archivist/internal/catalog"
	"archivist/internal/config"
)

// MustOpenStore opens a catalog.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *catalog.Store {
	t.Helper()

	store, err := catalog.Open(cfg)
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenBlobstore opens the content-addressed store under the configured
// storage directory.
func MustOpenBlobstore(t testing.TB, cfg *config.Config) *blobstore.Store {
	t.Helper()

	blobs, err := blobstore.New(cfg.Paths.StorageDir)
	if err != nil {
		t.Fatalf("blobstore.New: %v", err)
	}
	return blobs
}

// NewItem creates a catalog item for tests using the provided store.
func NewItem(t testing.TB, store *catalog.Store, kind catalog.ItemKind, title string) *catalog.Item {
	t.Helper()

	item, err := store.CreateItem(context.Background(), kind, title)
	if err != nil {
		t.Fatalf("store.CreateItem: %v", err)
	}
	return item
}
