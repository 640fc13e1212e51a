// Package daemonrun wires the daemon process together: logging, catalog,
// blob store, pipeline, IPC, and signal handling.
package daemonrun

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"archivist/internal/blobstore"
	"archivist/internal/catalog"
	"archivist/internal/config"
	"archivist/internal/daemon"
	"archivist/internal/derivatives"
	"archivist/internal/ingest"
	"archivist/internal/ipc"
	"archivist/internal/logging"
	"archivist/internal/pipeline"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Run starts the archivist daemon runtime loop and blocks until a termination
// signal arrives.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	logPath := filepath.Join(cfg.Paths.LogDir, "archivist.log")
	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	pidPath := filepath.Join(cfg.Paths.LogDir, "archivistd.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := catalog.Open(cfg)
	if err != nil {
		logger.Error("open catalog store", logging.Error(err))
		return err
	}
	defer store.Close()

	blobs, err := blobstore.New(cfg.Paths.StorageDir)
	if err != nil {
		logger.Error("open blob store", logging.Error(err))
		return err
	}

	cache := derivatives.NewCache(store, blobs, logger)
	engines := pipeline.NewEngines(cfg)
	registry, err := pipeline.NewRegistry(pipeline.NewHandlers(cfg, store, blobs, cache, engines, logger)...)
	if err != nil {
		return fmt.Errorf("build pipeline registry: %w", err)
	}
	dispatcher, err := pipeline.NewDispatcher(cfg, store, registry, logger)
	if err != nil {
		return fmt.Errorf("build dispatcher: %w", err)
	}

	d, err := daemon.New(cfg, store, blobs, ingest.NewService(store, blobs, logger), dispatcher, logger, logPath)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	ipcServer, err := ipc.NewServer(signalCtx, cfg.SocketPath(), d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check configuration and catalog database access"))
		return err
	}

	<-signalCtx.Done()
	logger.Info("archivist daemon shutting down")
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
