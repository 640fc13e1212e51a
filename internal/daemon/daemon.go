package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"archivist/internal/blobstore"
	"archivist/internal/catalog"
	"archivist/internal/config"
	"archivist/internal/ingest"
	"archivist/internal/logging"
	"archivist/internal/pipeline"
)

// Daemon coordinates the pipeline dispatcher and serves control requests. The
// flock lock enforces single-instance execution per log directory.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *catalog.Store
	blobs      *blobstore.Store
	ingest     *ingest.Service
	dispatcher *pipeline.Dispatcher
	api        *apiServer
	logPath    string

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	PID           int
	CatalogDBPath string
	StorageDir    string
	LockFilePath  string
	Workers       int
	Health        catalog.HealthSummary
}

// ItemDetail bundles an item with its related catalog records.
type ItemDetail struct {
	Item        *catalog.Item
	State       *catalog.ProcessingState
	Categories  []string
	SourceFiles []*catalog.SourceFile
	Derivatives []*catalog.Derivative
	Log         []*catalog.LogEntry
	Reviews     []*catalog.ReviewEntry
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *catalog.Store, blobs *blobstore.Store, ingestSvc *ingest.Service, dispatcher *pipeline.Dispatcher, logger *slog.Logger, logPath string) (*Daemon, error) {
	if cfg == nil || store == nil || blobs == nil || ingestSvc == nil || dispatcher == nil {
		return nil, errors.New("daemon requires config, store, blobstore, ingest, and dispatcher")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "archivistd.lock")
	d := &Daemon{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		store:      store,
		blobs:      blobs,
		ingest:     ingestSvc,
		dispatcher: dispatcher,
		logPath:    logPath,
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
	}

	api, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// Start acquires the daemon lock and launches the dispatcher and HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another archivist daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if d.api != nil {
		if err := d.api.start(runCtx); err != nil {
			cancel()
			_ = d.lock.Unlock()
			return err
		}
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.dispatcher.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("dispatcher exited", logging.Error(err))
		}
	}()

	d.running.Store(true)
	d.logger.Info("archivist daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	if d.api != nil {
		d.api.stop()
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("archivist daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	health, err := d.store.Health(ctx)
	if err != nil {
		d.logger.Warn("health query failed", logging.Error(err))
	}
	return Status{
		Running:       d.running.Load(),
		PID:           os.Getpid(),
		CatalogDBPath: d.store.Path(),
		StorageDir:    d.cfg.Paths.StorageDir,
		LockFilePath:  d.lockPath,
		Workers:       d.cfg.Pipeline.Workers,
		Health:        health,
	}
}

// ListItems returns catalog items filtered by optional statuses.
func (d *Daemon) ListItems(ctx context.Context, statuses []catalog.ItemStatus) ([]*catalog.Item, error) {
	return d.store.ListItems(ctx, statuses...)
}

// DescribeItem loads an item and every related record. Returns nil when the
// item does not exist.
func (d *Daemon) DescribeItem(ctx context.Context, id string) (*ItemDetail, error) {
	item, err := d.store.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, nil
	}

	detail := &ItemDetail{Item: item}
	if detail.State, err = d.store.GetState(ctx, id); err != nil {
		return nil, err
	}
	if detail.Categories, err = d.store.CategoriesForItem(ctx, id); err != nil {
		return nil, err
	}
	if detail.SourceFiles, err = d.store.SourceFilesForItem(ctx, id); err != nil {
		return nil, err
	}
	for _, file := range detail.SourceFiles {
		derived, err := d.store.DerivativesForSourceFile(ctx, file.ID)
		if err != nil {
			return nil, err
		}
		detail.Derivatives = append(detail.Derivatives, derived...)
	}
	if detail.Log, err = d.store.LogForItem(ctx, id); err != nil {
		return nil, err
	}
	if detail.Reviews, err = d.store.ReviewHistoryForItem(ctx, id); err != nil {
		return nil, err
	}
	return detail, nil
}

// Upload ingests a file from a local path.
func (d *Daemon) Upload(ctx context.Context, kind catalog.ItemKind, title, path string) (*ingest.UploadResult, error) {
	return d.ingest.UploadPath(ctx, kind, title, path)
}

// KickItem clears retry delay and count so the item is claimed on the next
// poll instead of waiting out its backoff.
func (d *Daemon) KickItem(ctx context.Context, id string) error {
	item, err := d.store.GetItem(ctx, id)
	if err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("item %s not found", id)
	}
	if err := d.store.Kick(ctx, id); err != nil {
		return err
	}
	d.logger.Info("item kicked", logging.String(logging.FieldItemID, id))
	return nil
}

// RetryFailed requeues failed items. An empty id list requeues all of them.
func (d *Daemon) RetryFailed(ctx context.Context, ids []string) (int, error) {
	reset, err := d.store.RetryFailed(ctx, ids...)
	if err != nil {
		return 0, err
	}
	if reset > 0 {
		d.logger.Info("failed items requeued", logging.Int("count", reset))
	}
	return reset, nil
}

// OpenReviews returns all unresolved review entries.
func (d *Daemon) OpenReviews(ctx context.Context) ([]*catalog.ReviewEntry, error) {
	return d.store.ListOpenReviews(ctx)
}

// Review resolution actions.
const (
	ReviewApprove = "approve"
	ReviewReject  = "reject"
	ReviewRequeue = "requeue"
)

// ResolveReview closes a review entry and applies the reviewer's decision to
// the item: approve publishes it, reject fails it, requeue sends it back
// through the pipeline from its current step.
func (d *Daemon) ResolveReview(ctx context.Context, reviewID int64, action, note, resolvedBy string) error {
	switch action {
	case ReviewApprove, ReviewReject, ReviewRequeue:
	default:
		return fmt.Errorf("unknown review action %q", action)
	}

	entry, err := d.findReview(ctx, reviewID)
	if err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("review %d not found", reviewID)
	}

	resolution := action
	if note != "" {
		resolution = action + ": " + note
	}
	resolved, err := d.store.ResolveReview(ctx, reviewID, resolution, resolvedBy)
	if err != nil {
		return err
	}
	if !resolved {
		return fmt.Errorf("review %d is already resolved", reviewID)
	}

	switch action {
	case ReviewApprove:
		err = d.store.SetItemStatus(ctx, entry.ItemID, catalog.StatusPublished, "")
	case ReviewReject:
		err = d.store.SetItemStatus(ctx, entry.ItemID, catalog.StatusFailed, "rejected by reviewer")
	case ReviewRequeue:
		if err = d.store.SetItemStatus(ctx, entry.ItemID, catalog.StatusPending, ""); err == nil {
			err = d.store.Kick(ctx, entry.ItemID)
		}
	}
	if err != nil {
		return err
	}

	d.logger.Info("review resolved",
		logging.String(logging.FieldItemID, entry.ItemID),
		logging.Int64("review_id", reviewID),
		logging.String("action", action))
	return nil
}

func (d *Daemon) findReview(ctx context.Context, reviewID int64) (*catalog.ReviewEntry, error) {
	entries, err := d.store.ListOpenReviews(ctx)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.ID == reviewID {
			return entry, nil
		}
	}
	return nil, nil
}

// Health returns aggregate catalog diagnostics.
func (d *Daemon) Health(ctx context.Context) (catalog.HealthSummary, error) {
	return d.store.Health(ctx)
}
