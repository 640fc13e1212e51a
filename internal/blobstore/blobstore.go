package blobstore

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"archivist/internal/fileutil"
)

// ErrInvalidPath marks a relative path that escapes the store root. Lookups
// with such paths are denied, never resolved.
var ErrInvalidPath = errors.New("invalid blob path")

// statfsFunc allows tests to stub filesystem stats.
type statfsFunc func(path string) (total uint64, free uint64, err error)

// Store is a content-addressed blob store rooted at a single directory.
// Originals live under blobs/, derivative artifacts under derived/; both are
// addressed by SHA-256 with a two-character fan-out prefix.
type Store struct {
	root   string
	statfs statfsFunc
}

// Stats summarizes store usage and the free space of the backing filesystem.
type Stats struct {
	Root       string
	BlobCount  int
	StoreBytes int64
	TotalBytes uint64
	FreeBytes  uint64
}

// New creates (if needed) and opens a blob store rooted at root.
func New(root string) (*Store, error) {
	root = filepath.Clean(root)
	for _, dir := range []string{root, filepath.Join(root, "blobs"), filepath.Join(root, "derived")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("blobstore: create %s: %w", dir, err)
		}
	}
	return &Store{root: root, statfs: realStatfs}, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

// BlobPath returns the store-relative path for an original with the given
// content hash.
func BlobPath(contentHash string) string {
	return filepath.Join("blobs", fanOut(contentHash), contentHash)
}

// DerivedPath returns the store-relative path for a derivative artifact with
// the given content hash.
func DerivedPath(contentHash string) string {
	return filepath.Join("derived", fanOut(contentHash), contentHash)
}

func fanOut(hash string) string {
	if len(hash) < 2 {
		return "xx"
	}
	return hash[:2]
}

// Write streams r into the store at relPath, hashing as it writes. The write
// is atomic: concurrent writers of identical content converge on one file.
func (s *Store) Write(relPath string, r io.Reader) (contentHash string, size int64, err error) {
	abs, err := s.Resolve(relPath)
	if err != nil {
		return "", 0, err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", 0, fmt.Errorf("blobstore: create parent: %w", err)
	}
	return fileutil.WriteFileAtomic(abs, r, 0o444)
}

// WriteBlob stores original content addressed purely by its bytes and returns
// the store-relative path along with the hash. Storing the same bytes twice
// lands on the same file.
func (s *Store) WriteBlob(r io.Reader) (relPath, contentHash string, size int64, err error) {
	tmpDir := filepath.Join(s.root, "blobs")
	tmp, err := os.CreateTemp(tmpDir, ".incoming-*")
	if err != nil {
		return "", "", 0, fmt.Errorf("blobstore: temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	hash, written, err := hashingCopy(tmp, r)
	closeErr := tmp.Close()
	if err != nil {
		return "", "", 0, fmt.Errorf("blobstore: stage blob: %w", err)
	}
	if closeErr != nil {
		return "", "", 0, fmt.Errorf("blobstore: stage blob: %w", closeErr)
	}

	relPath = BlobPath(hash)
	abs := filepath.Join(s.root, relPath)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", "", 0, fmt.Errorf("blobstore: create parent: %w", err)
	}
	if _, err := os.Stat(abs); err == nil {
		// Content already stored; the staged copy is redundant.
		return relPath, hash, written, nil
	}
	if err := os.Chmod(tmpName, 0o444); err != nil {
		return "", "", 0, fmt.Errorf("blobstore: finalize blob: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return "", "", 0, fmt.Errorf("blobstore: finalize blob: %w", err)
	}
	return relPath, hash, written, nil
}

// Resolve maps a store-relative path to an absolute one, denying anything
// that would escape the root.
func (s *Store) Resolve(relPath string) (string, error) {
	if strings.TrimSpace(relPath) == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	if filepath.IsAbs(relPath) {
		return "", fmt.Errorf("%w: absolute path %q", ErrInvalidPath, relPath)
	}
	abs := filepath.Join(s.root, relPath)
	if abs != s.root && !strings.HasPrefix(abs, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes store root", ErrInvalidPath, relPath)
	}
	return abs, nil
}

// Open opens a stored file for reading.
func (s *Store) Open(relPath string) (io.ReadCloser, error) {
	abs, err := s.Resolve(relPath)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("blobstore: open %s: %w", relPath, err)
	}
	return file, nil
}

// Exists reports whether relPath is present in the store.
func (s *Store) Exists(relPath string) (bool, error) {
	abs, err := s.Resolve(relPath)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(abs)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("blobstore: stat %s: %w", relPath, err)
}

// Remove deletes a stored file. Missing files are not an error; losers of a
// derivative race remove paths that may already be gone.
func (s *Store) Remove(relPath string) error {
	abs, err := s.Resolve(relPath)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("blobstore: remove %s: %w", relPath, err)
	}
	return nil
}

// Stat returns usage counters for the store and the backing filesystem.
func (s *Store) Stat() (Stats, error) {
	stats := Stats{Root: s.root}

	err := filepath.WalkDir(s.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".incoming-") {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		stats.BlobCount++
		stats.StoreBytes += info.Size()
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("blobstore: walk: %w", err)
	}

	total, free, err := s.statfs(s.root)
	if err != nil {
		return stats, fmt.Errorf("blobstore: statfs: %w", err)
	}
	stats.TotalBytes = total
	stats.FreeBytes = free
	return stats, nil
}

func hashingCopy(dst io.Writer, src io.Reader) (string, int64, error) {
	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(dst, hasher), src)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(hasher.Sum(nil)), written, nil
}

func realStatfs(path string) (uint64, uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	blockSize := uint64(stat.Bsize)
	return stat.Blocks * blockSize, stat.Bavail * blockSize, nil
}
