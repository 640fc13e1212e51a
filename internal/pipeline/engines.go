package pipeline

import (
	"context"
	"time"

	"archivist/internal/config"
	"archivist/internal/services/classify"
	"archivist/internal/services/embedder"
	"archivist/internal/services/pdftext"
	"archivist/internal/services/tesseract"
	"archivist/internal/services/vision"
)

// TextExtractor pulls the native text layer out of a source file.
type TextExtractor interface {
	ExtractPages(ctx context.Context, path string) ([]pdftext.Page, error)
}

// LocalOCR renders and recognizes pages with the local engine.
type LocalOCR interface {
	RenderPage(ctx context.Context, pdfPath string, page int, workDir string) (string, error)
	RecognizeImage(ctx context.Context, imagePath string) (tesseract.Result, error)
}

// CloudOCR recognizes pages with the hosted engine.
type CloudOCR interface {
	Configured() bool
	RecognizeImage(ctx context.Context, imagePath string) (vision.Result, error)
	Model() string
}

// Embedder vectorizes text chunks.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	Model() string
}

// Classifier extracts item metadata from document text.
type Classifier interface {
	Configured() bool
	Classify(ctx context.Context, kind, text string) (classify.Classification, error)
	Model() string
}

// Engines bundles the step backends. Tests substitute stubs; production wiring
// builds the real clients from configuration.
type Engines struct {
	Text     TextExtractor
	LocalOCR LocalOCR
	CloudOCR CloudOCR
	Embedder Embedder
	Classify Classifier
}

// NewEngines constructs production engines from configuration.
func NewEngines(cfg *config.Config) Engines {
	return Engines{
		Text:     pdftext.NewService(""),
		LocalOCR: tesseract.NewService(cfg.OCR.TesseractBinary, cfg.OCR.Language),
		CloudOCR: vision.NewClient(cfg.OCR.CloudBaseURL, cfg.OCR.CloudAPIKey,
			vision.WithModel(cfg.OCR.CloudModel),
			vision.WithTimeout(time.Duration(cfg.OCR.CloudTimeout)*time.Second)),
		Embedder: embedder.NewClient(cfg.Embedder.BaseURL, cfg.Embedder.APIKey,
			embedder.WithModel(cfg.Embedder.Model),
			embedder.WithTimeout(time.Duration(cfg.Embedder.Timeout)*time.Second)),
		Classify: classify.NewClient(cfg.Classify.BaseURL, cfg.Classify.APIKey,
			classify.WithModel(cfg.Classify.Model),
			classify.WithTimeout(time.Duration(cfg.Classify.Timeout)*time.Second)),
	}
}
