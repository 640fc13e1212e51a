package pipeline

import (
	"log/slog"

	"archivist/internal/blobstore"
	"archivist/internal/catalog"
	"archivist/internal/config"
	"archivist/internal/derivatives"
)

// Generator identities recorded on derivatives. Bumping a version invalidates
// the cache slot for that generator only.
const (
	textLayerGenerator = "pdftotext"
	textLayerVersion   = "poppler-1"
	localOCRGenerator  = "tesseract"
	localOCRVersion    = "tesseract-5"
	cloudOCRGenerator  = "vision"
	thumbnailGenerator = "pdftoppm"
	thumbnailVersion   = "poppler-1"
)

type env struct {
	cfg     *config.Config
	store   *catalog.Store
	blobs   *blobstore.Store
	cache   *derivatives.Cache
	engines Engines
	logger  *slog.Logger
}

// NewHandlers builds the full step handler set in pipeline order.
func NewHandlers(cfg *config.Config, store *catalog.Store, blobs *blobstore.Store, cache *derivatives.Cache, engines Engines, logger *slog.Logger) []Handler {
	e := &env{cfg: cfg, store: store, blobs: blobs, cache: cache, engines: engines, logger: logger}
	return []Handler{
		&extractTextHandler{env: e},
		&localOCRHandler{env: e},
		&cloudOCRHandler{env: e},
		&chunkHandler{env: e},
		&embedHandler{env: e},
		&categorizeHandler{env: e},
		&completeHandler{env: e},
	}
}

func isImageMediaType(mediaType string) bool {
	switch mediaType {
	case "image/png", "image/jpeg", "image/tiff":
		return true
	}
	return false
}
