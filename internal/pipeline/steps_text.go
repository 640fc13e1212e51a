package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"archivist/internal/catalog"
	"archivist/internal/services"
)

// classifySampleChars caps the text sent to the classifier; the opening pages
// carry the title page, table of contents, and colophon.
const classifySampleChars = 4000

// chunkHandler slices the item's full text into overlapping chunks for
// embedding. An item with no recoverable text at this point is a permanent
// failure: neither the native layer nor OCR produced anything.
type chunkHandler struct {
	env *env
}

func (h *chunkHandler) Step() catalog.Step { return catalog.StepChunk }

func (h *chunkHandler) Execute(ctx context.Context, job *Job) (Result, error) {
	text, err := h.env.itemText(ctx, job.Item.ID)
	if err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(text) == "" {
		return Result{}, services.Wrap(services.ErrValidation, string(h.Step()), "gather text", "no text recovered from any page", nil)
	}

	pieces := splitChunks(text, h.env.cfg.Embedder.ChunkSize, h.env.cfg.Embedder.ChunkOverlap)
	chunks := make([]*catalog.Chunk, 0, len(pieces))
	for i, piece := range pieces {
		chunks = append(chunks, &catalog.Chunk{
			ItemID: job.Item.ID,
			Seq:    i,
			Text:   piece,
		})
	}
	if err := h.env.store.ReplaceChunks(ctx, job.Item.ID, chunks); err != nil {
		return Result{}, err
	}

	return Result{
		Message: fmt.Sprintf("%d chunks from %d characters", len(chunks), len(text)),
	}, nil
}

// embedHandler vectorizes every chunk that does not have an embedding yet, so
// a retried run picks up where the failed one stopped.
type embedHandler struct {
	env *env
}

func (h *embedHandler) Step() catalog.Step { return catalog.StepEmbed }

func (h *embedHandler) Execute(ctx context.Context, job *Job) (Result, error) {
	chunks, err := h.env.store.ChunksForItem(ctx, job.Item.ID)
	if err != nil {
		return Result{}, err
	}
	if len(chunks) == 0 {
		return Result{}, services.Wrap(services.ErrValidation, string(h.Step()), "load chunks", "item has no chunks", nil)
	}

	model := h.env.engines.Embedder.Model()
	embedded := 0
	for _, chunk := range chunks {
		if chunk.EmbeddingJSON != "" {
			continue
		}
		vector, err := h.env.engines.Embedder.Embed(ctx, chunk.Text)
		if err != nil {
			return Result{}, err
		}
		encoded, err := json.Marshal(vector)
		if err != nil {
			return Result{}, fmt.Errorf("encode embedding: %w", err)
		}
		if err := h.env.store.SetChunkEmbedding(ctx, job.Item.ID, chunk.Seq, string(encoded), model); err != nil {
			return Result{}, err
		}
		embedded++
	}

	return Result{
		Message:          fmt.Sprintf("%d of %d chunks embedded", embedded, len(chunks)),
		ProcessorName:    "embedder",
		ProcessorVersion: model,
	}, nil
}

// categorizeHandler extracts item metadata from the opening text. Without a
// configured classifier the item keeps its upload-time metadata with zero
// scores, which routes it to review at the completion step.
type categorizeHandler struct {
	env *env
}

func (h *categorizeHandler) Step() catalog.Step { return catalog.StepCategorize }

func (h *categorizeHandler) Execute(ctx context.Context, job *Job) (Result, error) {
	if !h.env.engines.Classify.Configured() {
		// No classifier means no metadata scores; the completion step will
		// route the item to review.
		job.Item.Confidence = 0
		job.Item.Completeness = 0
		if err := h.env.store.UpdateItem(ctx, job.Item); err != nil {
			return Result{}, err
		}
		return Result{
			Message: "classifier not configured, keeping upload metadata",
		}, nil
	}

	text, err := h.env.itemText(ctx, job.Item.ID)
	if err != nil {
		return Result{}, err
	}
	sample := []rune(text)
	if len(sample) > classifySampleChars {
		sample = sample[:classifySampleChars]
	}

	result, err := h.env.engines.Classify.Classify(ctx, string(job.Item.Kind), string(sample))
	if err != nil {
		return Result{}, err
	}

	if result.Title != "" {
		job.Item.Title = result.Title
	}
	job.Item.Summary = result.Summary
	job.Item.Author = result.Author
	job.Item.Year = result.Year
	job.Item.Confidence = result.Confidence
	job.Item.Completeness = result.Completeness

	details := map[string]any{
		string(job.Item.Kind): map[string]any{
			"tags": result.Tags,
		},
	}
	if encoded, err := json.Marshal(details); err == nil {
		job.Item.DetailsJSON = string(encoded)
	}

	if err := h.env.store.UpdateItem(ctx, job.Item); err != nil {
		return Result{}, err
	}
	if err := h.env.store.AssignCategories(ctx, job.Item.ID, result.Categories); err != nil {
		return Result{}, err
	}

	return Result{
		Message:          fmt.Sprintf("confidence %d, completeness %d, %d categories", result.Confidence, result.Completeness, len(result.Categories)),
		ProcessorName:    "classifier",
		ProcessorVersion: h.env.engines.Classify.Model(),
	}, nil
}

// itemText concatenates the extracted pages of every source file in page
// order. Form feeds keep the page boundaries visible to the chunker.
func (e *env) itemText(ctx context.Context, itemID string) (string, error) {
	files, err := e.store.SourceFilesForItem(ctx, itemID)
	if err != nil {
		return "", err
	}
	var text strings.Builder
	for _, file := range files {
		pages, err := e.store.PagesForSourceFile(ctx, file.ID)
		if err != nil {
			return "", err
		}
		for _, page := range pages {
			if page.Text == "" {
				continue
			}
			text.WriteString(page.Text)
			text.WriteString("\f")
		}
	}
	return text.String(), nil
}
