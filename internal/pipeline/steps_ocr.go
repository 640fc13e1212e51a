package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"archivist/internal/catalog"
	"archivist/internal/derivatives"
	"archivist/internal/services"
)

// localOCRHandler recognizes pages whose native text layer fell short. When
// every page already has enough native text the step is skipped, which still
// leaves a skipped entry in the processing log.
type localOCRHandler struct {
	env *env
}

func (h *localOCRHandler) Step() catalog.Step { return catalog.StepOCRLocal }

func (h *localOCRHandler) Execute(ctx context.Context, job *Job) (Result, error) {
	files, err := h.env.store.SourceFilesForItem(ctx, job.Item.ID)
	if err != nil {
		return Result{}, err
	}

	workDir, err := os.MkdirTemp("", "archivist-ocr-*")
	if err != nil {
		return Result{}, services.Wrap(services.ErrTransient, string(h.Step()), "work dir", "", err)
	}
	defer os.RemoveAll(workDir)

	recognized := 0
	confSum := 0
	var collected strings.Builder

	for _, file := range files {
		pages, err := h.env.store.PagesForSourceFile(ctx, file.ID)
		if err != nil {
			return Result{}, err
		}
		needy := pagesNeedingOCR(pages, h.env.cfg.OCR.NativeTextMinChars)
		if len(needy) == 0 {
			continue
		}

		abs, err := h.env.blobs.Resolve(file.RelativePath)
		if err != nil {
			return Result{}, services.Wrap(services.ErrValidation, string(h.Step()), "resolve source", file.RelativePath, err)
		}

		for _, page := range needy {
			imagePath := abs
			if !isImageMediaType(file.MediaType) {
				imagePath, err = h.env.engines.LocalOCR.RenderPage(ctx, abs, page.PageNumber, workDir)
				if err != nil {
					return Result{}, err
				}
			}
			result, err := h.env.engines.LocalOCR.RecognizeImage(ctx, imagePath)
			if err != nil {
				return Result{}, err
			}
			page.Text = result.Text
			page.Method = catalog.OCRMethodLocal
			page.Confidence = result.Confidence
			if err := h.env.store.UpsertPage(ctx, page); err != nil {
				return Result{}, err
			}
			recognized++
			confSum += result.Confidence
			collected.WriteString(result.Text)
			collected.WriteString("\f")
		}

		if collected.Len() > 0 {
			text := collected.String()
			_, _, err := h.env.cache.GetOrCreate(ctx, derivatives.Request{
				SourceFileID:     file.ID,
				Kind:             catalog.DerivativeOCRText,
				GeneratorName:    localOCRGenerator,
				GeneratorVersion: localOCRVersion,
				InputHash:        file.ContentHash,
			}, func(_ context.Context, w io.Writer) error {
				_, err := io.WriteString(w, text)
				return err
			})
			if err != nil {
				return Result{}, err
			}
			collected.Reset()
		}
	}

	if recognized == 0 {
		return Result{
			Skipped:          true,
			Message:          "native text layer sufficient, no OCR needed",
			ProcessorName:    localOCRGenerator,
			ProcessorVersion: localOCRVersion,
		}, nil
	}

	mean := confSum / recognized
	return Result{
		Message:          fmt.Sprintf("%d pages recognized, mean confidence %d", recognized, mean),
		ProcessorName:    localOCRGenerator,
		ProcessorVersion: localOCRVersion,
		InputHash:        files[0].ContentHash,
	}, nil
}

// cloudOCRHandler re-recognizes pages where local OCR confidence fell below
// the escalation threshold. Runs only when a cloud backend is configured;
// otherwise low-confidence local text stands.
type cloudOCRHandler struct {
	env *env
}

func (h *cloudOCRHandler) Step() catalog.Step { return catalog.StepOCRCloud }

func (h *cloudOCRHandler) Execute(ctx context.Context, job *Job) (Result, error) {
	model := h.env.engines.CloudOCR.Model()

	files, err := h.env.store.SourceFilesForItem(ctx, job.Item.ID)
	if err != nil {
		return Result{}, err
	}

	threshold := h.env.cfg.OCR.LocalConfidenceThreshold
	var escalate []escalation
	for _, file := range files {
		pages, err := h.env.store.PagesForSourceFile(ctx, file.ID)
		if err != nil {
			return Result{}, err
		}
		for _, page := range pages {
			if page.Method == catalog.OCRMethodLocal && page.Confidence < threshold {
				escalate = append(escalate, escalation{file: file, page: page})
			}
		}
	}

	if len(escalate) == 0 {
		return Result{
			Skipped:          true,
			Message:          "local OCR confidence sufficient",
			ProcessorName:    cloudOCRGenerator,
			ProcessorVersion: model,
		}, nil
	}
	if !h.env.engines.CloudOCR.Configured() {
		return Result{
			Skipped:          true,
			Message:          fmt.Sprintf("%d low-confidence pages but cloud OCR not configured", len(escalate)),
			ProcessorName:    cloudOCRGenerator,
			ProcessorVersion: model,
		}, nil
	}

	workDir, err := os.MkdirTemp("", "archivist-ocr-cloud-*")
	if err != nil {
		return Result{}, services.Wrap(services.ErrTransient, string(h.Step()), "work dir", "", err)
	}
	defer os.RemoveAll(workDir)

	perFile := make(map[string]*strings.Builder)
	confSum := 0
	for _, esc := range escalate {
		abs, err := h.env.blobs.Resolve(esc.file.RelativePath)
		if err != nil {
			return Result{}, services.Wrap(services.ErrValidation, string(h.Step()), "resolve source", esc.file.RelativePath, err)
		}
		imagePath := abs
		if !isImageMediaType(esc.file.MediaType) {
			imagePath, err = h.env.engines.LocalOCR.RenderPage(ctx, abs, esc.page.PageNumber, workDir)
			if err != nil {
				return Result{}, err
			}
		}
		result, err := h.env.engines.CloudOCR.RecognizeImage(ctx, imagePath)
		if err != nil {
			return Result{}, err
		}
		esc.page.Text = result.Text
		esc.page.Method = catalog.OCRMethodCloud
		esc.page.Confidence = result.Confidence
		if err := h.env.store.UpsertPage(ctx, esc.page); err != nil {
			return Result{}, err
		}
		confSum += result.Confidence

		if _, ok := perFile[esc.file.ID]; !ok {
			perFile[esc.file.ID] = &strings.Builder{}
		}
		perFile[esc.file.ID].WriteString(result.Text)
		perFile[esc.file.ID].WriteString("\f")
	}

	for _, file := range files {
		builder, ok := perFile[file.ID]
		if !ok {
			continue
		}
		text := builder.String()
		_, _, err := h.env.cache.GetOrCreate(ctx, derivatives.Request{
			SourceFileID:     file.ID,
			Kind:             catalog.DerivativeOCRText,
			GeneratorName:    cloudOCRGenerator,
			GeneratorVersion: model,
			InputHash:        file.ContentHash,
		}, func(_ context.Context, w io.Writer) error {
			_, err := io.WriteString(w, text)
			return err
		})
		if err != nil {
			return Result{}, err
		}
	}

	mean := confSum / len(escalate)
	return Result{
		Message:          fmt.Sprintf("%d pages escalated, mean confidence %d", len(escalate), mean),
		ProcessorName:    cloudOCRGenerator,
		ProcessorVersion: model,
		InputHash:        files[0].ContentHash,
		Cost:             float64(len(escalate)) * h.env.cfg.OCR.CloudCostPerPage,
	}, nil
}

type escalation struct {
	file *catalog.SourceFile
	page *catalog.ExtractedPage
}

func pagesNeedingOCR(pages []*catalog.ExtractedPage, minChars int) []*catalog.ExtractedPage {
	var needy []*catalog.ExtractedPage
	for _, page := range pages {
		if page.Method == catalog.OCRMethodNative && len(strings.TrimSpace(page.Text)) < minChars {
			needy = append(needy, page)
		}
	}
	return needy
}
