package derivatives

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"archivist/internal/blobstore"
	"archivist/internal/catalog"
	"archivist/internal/logging"
)

// ErrInvariant indicates the cache saw a uniqueness conflict but no winning
// row exists. That combination means the database and the store disagree and
// processing must stop rather than guess.
var ErrInvariant = errors.New("derivative conflict with no winning row")

// Request identifies one derivative: which source file, what kind of
// artifact, which generator version produced it, and the hash of its input.
// Re-running the same generator version over the same input always maps to
// the same cache slot.
type Request struct {
	SourceFileID     string
	Kind             catalog.DerivativeKind
	GeneratorName    string
	GeneratorVersion string
	InputHash        string
}

// Producer writes the derivative bytes. It is invoked only on a cache miss.
type Producer func(ctx context.Context, w io.Writer) error

// Cache coordinates derivative production so that each (source file, kind,
// generator version, input hash) tuple is produced at most once, no matter
// how many workers race.
type Cache struct {
	store  *catalog.Store
	blobs  *blobstore.Store
	logger *slog.Logger
}

// NewCache creates a derivative cache over the catalog and blob store.
func NewCache(store *catalog.Store, blobs *blobstore.Store, logger *slog.Logger) *Cache {
	return &Cache{
		store:  store,
		blobs:  blobs,
		logger: logging.NewComponentLogger(logger, "derivatives"),
	}
}

// GetExisting returns the cached derivative for a request, or nil on a miss.
func (c *Cache) GetExisting(ctx context.Context, req Request) (*catalog.Derivative, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	return c.store.FindDerivative(ctx, req.SourceFileID, req.Kind, req.GeneratorVersion, req.InputHash)
}

// GetOrCreate returns the cached derivative for a request, producing it on a
// miss. alreadyExisted reports whether the returned derivative came from the
// cache rather than this call's producer.
//
// When two callers miss simultaneously both produce bytes, but only one
// insert wins the uniqueness race. The loser deletes its orphaned bytes and
// returns the winner's row; the caller never sees the race.
func (c *Cache) GetOrCreate(ctx context.Context, req Request, produce Producer) (*catalog.Derivative, bool, error) {
	if err := validate(req); err != nil {
		return nil, false, err
	}
	if produce == nil {
		return nil, false, errors.New("derivatives: producer is nil")
	}

	if existing, err := c.store.FindDerivative(ctx, req.SourceFileID, req.Kind, req.GeneratorVersion, req.InputHash); err != nil {
		return nil, false, err
	} else if existing != nil {
		return existing, true, nil
	}

	relPath, contentHash, size, err := c.produceToStore(ctx, produce)
	if err != nil {
		return nil, false, err
	}

	inserted, err := c.store.InsertDerivative(ctx, &catalog.Derivative{
		SourceFileID:     req.SourceFileID,
		Kind:             req.Kind,
		GeneratorName:    req.GeneratorName,
		GeneratorVersion: req.GeneratorVersion,
		InputHash:        req.InputHash,
		RelativePath:     relPath,
		ContentHash:      contentHash,
		SizeBytes:        size,
	})
	if err == nil {
		return inserted, false, nil
	}
	if !catalog.IsConflict(err) {
		c.discard(relPath)
		return nil, false, err
	}

	// Lost the race: another worker's row is the authority now.
	winner, findErr := c.store.FindDerivative(ctx, req.SourceFileID, req.Kind, req.GeneratorVersion, req.InputHash)
	if findErr != nil {
		c.discard(relPath)
		return nil, false, findErr
	}
	if winner == nil {
		c.discard(relPath)
		return nil, false, fmt.Errorf("%w: source_file=%s kind=%s version=%s",
			ErrInvariant, req.SourceFileID, req.Kind, req.GeneratorVersion)
	}
	if winner.RelativePath != relPath {
		// Content-addressed paths collide only for identical bytes, so a
		// differing path means our copy is a true orphan.
		c.discard(relPath)
	}
	c.logger.Debug("derivative race lost, yielding to winner",
		logging.String("source_file_id", req.SourceFileID),
		logging.String("kind", string(req.Kind)),
		logging.String("winner_id", winner.ID))
	return winner, true, nil
}

func (c *Cache) produceToStore(ctx context.Context, produce Producer) (relPath, contentHash string, size int64, err error) {
	tmp, err := os.CreateTemp("", "archivist-derivative-*")
	if err != nil {
		return "", "", 0, fmt.Errorf("derivatives: temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	hasher := sha256.New()
	if err := produce(ctx, io.MultiWriter(tmp, hasher)); err != nil {
		return "", "", 0, fmt.Errorf("derivatives: produce: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return "", "", 0, fmt.Errorf("derivatives: rewind: %w", err)
	}

	contentHash = hex.EncodeToString(hasher.Sum(nil))
	relPath = blobstore.DerivedPath(contentHash)
	if _, size, err = c.blobs.Write(relPath, tmp); err != nil {
		return "", "", 0, fmt.Errorf("derivatives: store: %w", err)
	}
	return relPath, contentHash, size, nil
}

func (c *Cache) discard(relPath string) {
	if err := c.blobs.Remove(relPath); err != nil {
		c.logger.Warn("failed to remove orphaned derivative bytes",
			logging.String("path", relPath), logging.Error(err))
	}
}

// Open reads a cached derivative's bytes.
func (c *Cache) Open(derivative *catalog.Derivative) (io.ReadCloser, error) {
	if derivative == nil {
		return nil, errors.New("derivatives: derivative is nil")
	}
	return c.blobs.Open(derivative.RelativePath)
}

func validate(req Request) error {
	switch {
	case req.SourceFileID == "":
		return errors.New("derivatives: source file ID required")
	case req.Kind == "":
		return errors.New("derivatives: kind required")
	case req.GeneratorVersion == "":
		return errors.New("derivatives: generator version required")
	case req.InputHash == "":
		return errors.New("derivatives: input hash required")
	}
	return nil
}
