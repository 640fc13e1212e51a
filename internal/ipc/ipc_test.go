package ipc

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"archivist/internal/blobstore"
	"archivist/internal/catalog"
	"archivist/internal/config"
	"archivist/internal/daemon"
	"archivist/internal/derivatives"
	"archivist/internal/ingest"
	"archivist/internal/logging"
	"archivist/internal/pipeline"
)

func newTestServer(t *testing.T) (*Client, *daemon.Daemon) {
	t.Helper()

	cfg := config.Default()
	cfg.Paths.StorageDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Paths.APIBind = ""

	store, err := catalog.OpenPath(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	blobs, err := blobstore.New(cfg.Paths.StorageDir)
	if err != nil {
		t.Fatalf("open blobstore: %v", err)
	}
	logger := logging.NewNop()
	cache := derivatives.NewCache(store, blobs, logger)
	engines := pipeline.NewEngines(&cfg)
	registry, err := pipeline.NewRegistry(pipeline.NewHandlers(&cfg, store, blobs, cache, engines, logger)...)
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	dispatcher, err := pipeline.NewDispatcher(&cfg, store, registry, logger)
	if err != nil {
		t.Fatalf("build dispatcher: %v", err)
	}
	d, err := daemon.New(&cfg, store, blobs, ingest.NewService(store, blobs, logger), dispatcher, logger, "")
	if err != nil {
		t.Fatalf("create daemon: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	socketPath := filepath.Join(t.TempDir(), "archivistd.sock")
	server, err := NewServer(ctx, socketPath, d, logger)
	if err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(server.Close)
	server.Serve()

	client, err := Dial(socketPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client, d
}

func TestPingAndStatus(t *testing.T) {
	client, _ := newTestServer(t)

	ping, err := client.Ping()
	if err != nil {
		t.Fatalf("ping: %v", err)
	}
	if ping.PID != os.Getpid() {
		t.Errorf("pid = %d", ping.PID)
	}

	status, err := client.Status()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Running {
		t.Error("daemon should not report running before Start")
	}
	if status.CatalogDBPath == "" {
		t.Error("catalog path missing")
	}
}

func TestUploadListDescribe(t *testing.T) {
	client, _ := newTestServer(t)

	path := filepath.Join(t.TempDir(), "plan.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.7 shed plan"), 0o644); err != nil {
		t.Fatal(err)
	}

	uploaded, err := client.Upload("plan", "Shed Plan", path)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if uploaded.IsDuplicate {
		t.Error("first upload reported duplicate")
	}
	if uploaded.Item.Status != "pending" {
		t.Errorf("status = %q", uploaded.Item.Status)
	}

	// Same bytes again resolve to the existing item.
	again, err := client.Upload("plan", "Shed Plan Copy", path)
	if err != nil {
		t.Fatalf("duplicate upload: %v", err)
	}
	if !again.IsDuplicate {
		t.Error("second upload should be a duplicate")
	}
	if again.Item.ID != uploaded.Item.ID {
		t.Error("duplicate should yield the original item")
	}

	list, err := client.ItemList([]string{"pending"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(list.Items))
	}

	detail, err := client.ItemDescribe(uploaded.Item.ID)
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if len(detail.Detail.SourceFiles) != 1 {
		t.Errorf("source files = %d", len(detail.Detail.SourceFiles))
	}
	if detail.Detail.Item.CurrentStep != "extract_text" {
		t.Errorf("current step = %q", detail.Detail.Item.CurrentStep)
	}

	if _, err := client.ItemDescribe("missing"); err == nil {
		t.Error("describe of missing item should fail")
	}
}

func TestUploadRejectsUnknownKind(t *testing.T) {
	client, _ := newTestServer(t)
	if _, err := client.Upload("scroll", "", "/tmp/nope.pdf"); err == nil {
		t.Error("unknown kind should fail")
	}
}
