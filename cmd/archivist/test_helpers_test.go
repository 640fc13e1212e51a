package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"archivist/internal/blobstore"
	"archivist/internal/catalog"
	"archivist/internal/config"
	"archivist/internal/daemon"
	"archivist/internal/derivatives"
	"archivist/internal/ingest"
	"archivist/internal/ipc"
	"archivist/internal/logging"
	"archivist/internal/pipeline"
	"archivist/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	store      *catalog.Store
	blobs      *blobstore.Store
	daemon     *daemon.Daemon
	server     *ipc.Server
	socketPath string
	configPath string
	baseDir    string
	cancel     context.CancelFunc
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)

	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	store := testsupport.MustOpenStore(t, cfg)
	blobs := testsupport.MustOpenBlobstore(t, cfg)

	logger := logging.NewNop()
	cache := derivatives.NewCache(store, blobs, logger)
	engines := pipeline.NewEngines(cfg)
	registry, err := pipeline.NewRegistry(pipeline.NewHandlers(cfg, store, blobs, cache, engines, logger)...)
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	dispatcher, err := pipeline.NewDispatcher(cfg, store, registry, logger)
	if err != nil {
		t.Fatalf("build dispatcher: %v", err)
	}

	d, err := daemon.New(cfg, store, blobs, ingest.NewService(store, blobs, logger), dispatcher, logger, "")
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	socketPath := filepath.Join(cfg.Paths.LogDir, "cli.sock")
	srv, err := ipc.NewServer(ctx, socketPath, d, logger)
	if err != nil {
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	env := &cliTestEnv{
		cfg:        cfg,
		store:      store,
		blobs:      blobs,
		daemon:     d,
		server:     srv,
		socketPath: socketPath,
		configPath: configPath,
		baseDir:    base,
		cancel:     cancel,
	}

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Close()
	})

	return env
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\nstorage_dir = %q\nlog_dir = %q\napi_bind = %q\n",
		cfg.Paths.StorageDir,
		cfg.Paths.LogDir,
		cfg.Paths.APIBind,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func writeUploadFixture(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write fixture %s: %v", name, err)
	}
	return path
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
