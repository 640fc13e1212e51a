package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"archivist/internal/catalog"
	"archivist/internal/derivatives"
	"archivist/internal/logging"
	"archivist/internal/services"
)

// extractTextHandler pulls the native text layer out of every source file.
// Pages whose native text falls short of the configured minimum are left for
// the OCR steps. The combined text layer is cached as a derivative keyed by
// the source file's content hash.
type extractTextHandler struct {
	env *env
}

func (h *extractTextHandler) Step() catalog.Step { return catalog.StepExtractText }

func (h *extractTextHandler) Execute(ctx context.Context, job *Job) (Result, error) {
	files, err := h.env.store.SourceFilesForItem(ctx, job.Item.ID)
	if err != nil {
		return Result{}, err
	}
	if len(files) == 0 {
		return Result{}, services.Wrap(services.ErrValidation, string(h.Step()), "load sources", "item has no source files", nil)
	}

	minChars := h.env.cfg.OCR.NativeTextMinChars
	totalPages := 0
	nativePages := 0

	for _, file := range files {
		var pages []*catalog.ExtractedPage

		abs, err := h.env.blobs.Resolve(file.RelativePath)
		if err != nil {
			return Result{}, services.Wrap(services.ErrValidation, string(h.Step()), "resolve source", file.RelativePath, err)
		}

		if isImageMediaType(file.MediaType) {
			// Images have no text layer; a placeholder page routes them to OCR.
			pages = append(pages, &catalog.ExtractedPage{
				SourceFileID: file.ID,
				PageNumber:   1,
				Method:       catalog.OCRMethodNative,
			})
		} else {
			extracted, err := h.env.engines.Text.ExtractPages(ctx, abs)
			if err != nil {
				return Result{}, err
			}
			var nativeText strings.Builder
			for _, page := range extracted {
				confidence := 0
				if len(strings.TrimSpace(page.Text)) >= minChars {
					confidence = 100
					nativePages++
					nativeText.WriteString(page.Text)
					nativeText.WriteString("\f")
				}
				pages = append(pages, &catalog.ExtractedPage{
					SourceFileID: file.ID,
					PageNumber:   page.Number,
					Text:         page.Text,
					Method:       catalog.OCRMethodNative,
					Confidence:   confidence,
				})
			}

			if nativeText.Len() > 0 {
				_, _, err := h.env.cache.GetOrCreate(ctx, textLayerRequest(file), func(_ context.Context, w io.Writer) error {
					_, err := io.WriteString(w, nativeText.String())
					return err
				})
				if err != nil {
					return Result{}, err
				}
			}
		}

		totalPages += len(pages)
		if err := h.env.store.ReplacePages(ctx, file.ID, pages); err != nil {
			return Result{}, err
		}

		// Thumbnails are a nice-to-have; failure must not block the run.
		if err := h.writeThumbnail(ctx, file, abs); err != nil {
			h.env.logger.Warn("thumbnail generation failed",
				logging.String(logging.FieldStep, string(h.Step())),
				logging.Error(err))
		}
	}

	return Result{
		Message:          fmt.Sprintf("%d pages, %d with native text", totalPages, nativePages),
		ProcessorName:    textLayerGenerator,
		ProcessorVersion: textLayerVersion,
		InputHash:        files[0].ContentHash,
	}, nil
}

// writeThumbnail caches a preview image for the file: the first page rendered
// for PDFs, the original bytes for images.
func (h *extractTextHandler) writeThumbnail(ctx context.Context, file *catalog.SourceFile, abs string) error {
	_, _, err := h.env.cache.GetOrCreate(ctx, derivatives.Request{
		SourceFileID:     file.ID,
		Kind:             catalog.DerivativeThumbnail,
		GeneratorName:    thumbnailGenerator,
		GeneratorVersion: thumbnailVersion,
		InputHash:        file.ContentHash,
	}, func(ctx context.Context, w io.Writer) error {
		src := abs
		if !isImageMediaType(file.MediaType) {
			workDir, err := os.MkdirTemp("", "archivist-thumb-*")
			if err != nil {
				return err
			}
			defer os.RemoveAll(workDir)
			rendered, err := h.env.engines.LocalOCR.RenderPage(ctx, abs, 1, workDir)
			if err != nil {
				return err
			}
			src = rendered
		}
		f, err := os.Open(src)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	})
	return err
}

func textLayerRequest(file *catalog.SourceFile) derivatives.Request {
	return derivatives.Request{
		SourceFileID:     file.ID,
		Kind:             catalog.DerivativeTextLayer,
		GeneratorName:    textLayerGenerator,
		GeneratorVersion: textLayerVersion,
		InputHash:        file.ContentHash,
	}
}
