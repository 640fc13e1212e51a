package pipeline

import (
	"context"
	"fmt"

	"archivist/internal/catalog"
)

// completeHandler decides the item's final status. High-confidence, complete
// metadata publishes the item; anything else opens a review entry so a human
// confirms the catalog record before it goes live.
type completeHandler struct {
	env *env
}

func (h *completeHandler) Step() catalog.Step { return catalog.StepComplete }

func (h *completeHandler) Execute(ctx context.Context, job *Job) (Result, error) {
	minConfidence := h.env.cfg.Pipeline.ConfidenceThreshold
	minCompleteness := h.env.cfg.Pipeline.CompletenessThreshold

	if job.Item.Confidence >= minConfidence && job.Item.Completeness >= minCompleteness {
		if err := h.env.store.SetItemStatus(ctx, job.Item.ID, catalog.StatusPublished, ""); err != nil {
			return Result{}, err
		}
		job.Item.Status = catalog.StatusPublished
		return Result{
			Message: fmt.Sprintf("published with confidence %d, completeness %d", job.Item.Confidence, job.Item.Completeness),
		}, nil
	}

	reason := fmt.Sprintf("metadata below thresholds: confidence %d/%d, completeness %d/%d",
		job.Item.Confidence, minConfidence, job.Item.Completeness, minCompleteness)
	if err := h.env.store.SetItemStatus(ctx, job.Item.ID, catalog.StatusReview, ""); err != nil {
		return Result{}, err
	}
	if _, err := h.env.store.OpenReview(ctx, job.Item.ID, reason); err != nil {
		return Result{}, err
	}
	job.Item.Status = catalog.StatusReview
	return Result{
		Message: reason,
	}, nil
}
