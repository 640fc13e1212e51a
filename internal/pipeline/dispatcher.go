package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"archivist/internal/catalog"
	"archivist/internal/config"
	"archivist/internal/logging"
	"archivist/internal/services"
)

// Dispatcher polls the catalog for eligible items and runs their current step
// on a bounded worker pool. Every step execution is fenced by a lease in
// processing_state: a worker that cannot acquire or keep the lease does not
// touch the item, so a crashed daemon's items are reclaimed by lease expiry
// rather than by any cleanup pass.
type Dispatcher struct {
	cfg      *config.Config
	store    *catalog.Store
	registry *Registry
	backoff  Backoff
	logger   *slog.Logger

	pool     *ants.Pool
	inflight sync.Map
	wg       sync.WaitGroup
}

// NewDispatcher builds a dispatcher with a worker pool sized from
// configuration.
func NewDispatcher(cfg *config.Config, store *catalog.Store, registry *Registry, logger *slog.Logger) (*Dispatcher, error) {
	workers := cfg.Pipeline.Workers
	if workers < 1 {
		workers = 1
	}
	pool, err := ants.NewPool(workers, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("pipeline: worker pool: %w", err)
	}
	return &Dispatcher{
		cfg:      cfg,
		store:    store,
		registry: registry,
		backoff:  NewBackoff(cfg.Pipeline),
		logger:   logging.NewComponentLogger(logger, "dispatcher"),
		pool:     pool,
	}, nil
}

// Run polls until the context is canceled, then waits for in-flight steps to
// finish and releases the pool.
func (d *Dispatcher) Run(ctx context.Context) error {
	interval := time.Duration(d.cfg.Pipeline.PollInterval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	d.logger.Info("dispatcher started",
		logging.Int("workers", d.pool.Cap()),
		logging.Duration("poll_interval", interval))

	d.dispatch(ctx)
	for {
		select {
		case <-ctx.Done():
			d.wg.Wait()
			d.pool.Release()
			d.logger.Info("dispatcher stopped")
			return ctx.Err()
		case <-ticker.C:
			d.dispatch(ctx)
		}
	}
}

// dispatch claims as many eligible items as the pool will take right now.
func (d *Dispatcher) dispatch(ctx context.Context) {
	ids, err := d.store.ListEligible(ctx, d.pool.Cap()*2)
	if err != nil {
		d.logger.Error("list eligible items", logging.Error(err))
		return
	}
	for _, id := range ids {
		if _, loaded := d.inflight.LoadOrStore(id, struct{}{}); loaded {
			continue
		}
		itemID := id
		d.wg.Add(1)
		submitErr := d.pool.Submit(func() {
			defer d.wg.Done()
			defer d.inflight.Delete(itemID)
			if _, err := d.ProcessItem(ctx, itemID); err != nil {
				d.logger.Error("process item",
					logging.String(logging.FieldItemID, itemID),
					logging.Error(err))
			}
		})
		if submitErr != nil {
			// Pool is saturated; the item stays eligible for the next poll.
			d.inflight.Delete(itemID)
			d.wg.Done()
			return
		}
	}
}

// ProcessItem runs exactly one step for one item: acquire the lease, execute
// the handler for the item's current step, and record the outcome. Returns
// false without error when the lease could not be acquired, meaning another
// worker holds the item or it is not currently eligible.
func (d *Dispatcher) ProcessItem(ctx context.Context, itemID string) (bool, error) {
	runID := uuid.NewString()
	leaseDuration := time.Duration(d.cfg.Pipeline.LeaseDuration) * time.Second

	claimed, err := d.store.AcquireLease(ctx, itemID, runID, leaseDuration)
	if err != nil {
		return false, err
	}
	if !claimed {
		return false, nil
	}

	item, err := d.store.GetItem(ctx, itemID)
	if err != nil {
		return true, err
	}
	if item == nil {
		return true, fmt.Errorf("item %s has processing state but no row", itemID)
	}
	state, err := d.store.GetState(ctx, itemID)
	if err != nil {
		return true, err
	}

	if item.Status == catalog.StatusPending {
		if err := d.store.SetItemStatus(ctx, item.ID, catalog.StatusProcessing, ""); err != nil {
			return true, err
		}
		item.Status = catalog.StatusProcessing
	}

	handler, err := d.registry.Resolve(state.CurrentStep)
	if err != nil {
		// An unknown step cannot make progress without operator help.
		return true, d.escalate(ctx, item, state, runID, err)
	}

	stepCtx := services.WithItemID(ctx, item.ID)
	stepCtx = services.WithStep(stepCtx, string(state.CurrentStep))
	stepCtx = services.WithRunID(stepCtx, runID)

	stopHeartbeat := d.startHeartbeat(ctx, item.ID, runID, leaseDuration)
	defer stopHeartbeat()

	logger := d.logger.With(
		logging.String(logging.FieldItemID, item.ID),
		logging.String(logging.FieldStep, string(state.CurrentStep)),
		logging.String(logging.FieldRunID, runID))
	logger.Info("step started")
	if err := d.appendLog(ctx, item.ID, runID, state.CurrentStep, catalog.OutcomeStarted, "", Result{}, 0, state.RetryCount); err != nil {
		return true, err
	}

	started := time.Now()
	result, execErr := handler.Execute(stepCtx, &Job{Item: item, State: state, RunID: runID})
	duration := time.Since(started)

	if execErr != nil {
		logger.Warn("step failed",
			logging.Duration("duration", duration),
			logging.Error(execErr))
		if err := d.appendLog(ctx, item.ID, runID, state.CurrentStep, catalog.OutcomeFailed, execErr.Error(), result, duration, state.RetryCount); err != nil {
			return true, err
		}
		return true, d.handleFailure(ctx, item, state, runID, execErr)
	}

	outcome := catalog.OutcomeCompleted
	if result.Skipped {
		outcome = catalog.OutcomeSkipped
	}
	logger.Info("step finished",
		logging.String("outcome", string(outcome)),
		logging.Duration("duration", duration),
		logging.String("message", result.Message))

	if err := d.appendLog(ctx, item.ID, runID, state.CurrentStep, outcome, result.Message, result, duration, state.RetryCount); err != nil {
		return true, err
	}

	next := catalog.NextStep(state.CurrentStep)
	if next == "" {
		// Final step: the completion handler already settled the item's
		// status, so advancing in place just clears the lease and retries.
		next = state.CurrentStep
	}
	if err := d.store.AdvanceStep(ctx, item.ID, runID, next); err != nil {
		return true, err
	}
	return true, nil
}

// handleFailure applies the error taxonomy: permanent errors and exhausted
// retries go to a human, everything else is rescheduled with backoff.
func (d *Dispatcher) handleFailure(ctx context.Context, item *catalog.Item, state *catalog.ProcessingState, runID string, execErr error) error {
	if services.IsPermanent(execErr) {
		return d.escalate(ctx, item, state, runID, execErr)
	}

	if state.RetryCount >= d.cfg.Pipeline.MaxRetries {
		message := fmt.Sprintf("step %s failed after %d retries: %v", state.CurrentStep, state.RetryCount, execErr)
		if err := d.store.SetItemStatus(ctx, item.ID, catalog.StatusFailed, message); err != nil {
			return err
		}
		if _, err := d.store.OpenReview(ctx, item.ID, message); err != nil {
			return err
		}
		d.logger.Error("retries exhausted",
			logging.String(logging.FieldItemID, item.ID),
			logging.String(logging.FieldStep, string(state.CurrentStep)),
			logging.Int("retry_count", state.RetryCount),
			logging.Alert("item failed"),
			logging.Error(execErr))
		return d.store.ReleaseLease(ctx, item.ID, runID, message)
	}

	attempt := state.RetryCount + 1
	delay := d.backoff.Delay(attempt)
	d.logger.Info("retry scheduled",
		logging.String(logging.FieldItemID, item.ID),
		logging.String(logging.FieldStep, string(state.CurrentStep)),
		logging.Int("attempt", attempt),
		logging.Duration("delay", delay))
	return d.store.ScheduleRetry(ctx, item.ID, runID, execErr.Error(), time.Now().UTC().Add(delay))
}

// escalate parks the item in review with exactly one open review entry.
func (d *Dispatcher) escalate(ctx context.Context, item *catalog.Item, state *catalog.ProcessingState, runID string, cause error) error {
	message := fmt.Sprintf("step %s: %v", state.CurrentStep, cause)
	if err := d.store.SetItemStatus(ctx, item.ID, catalog.StatusReview, message); err != nil {
		return err
	}
	if _, err := d.store.OpenReview(ctx, item.ID, message); err != nil {
		return err
	}
	d.logger.Warn("item escalated to review",
		logging.String(logging.FieldItemID, item.ID),
		logging.String(logging.FieldStep, string(state.CurrentStep)),
		logging.Error(cause))
	return d.store.ReleaseLease(ctx, item.ID, runID, message)
}

// startHeartbeat extends the lease periodically while a step runs. Losing the
// lease mid-run is logged loudly; the terminal state writes are all fenced on
// runID so a usurped run cannot clobber the new holder's state.
func (d *Dispatcher) startHeartbeat(ctx context.Context, itemID, runID string, leaseDuration time.Duration) func() {
	interval := time.Duration(d.cfg.Pipeline.HeartbeatInterval) * time.Second
	if interval <= 0 {
		interval = leaseDuration / 3
	}
	if interval <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	var once sync.Once
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				held, err := d.store.ExtendLease(ctx, itemID, runID, leaseDuration)
				if err != nil {
					d.logger.Error("extend lease",
						logging.String(logging.FieldItemID, itemID),
						logging.Error(err))
					continue
				}
				if !held {
					d.logger.Error("lease lost during step",
						logging.String(logging.FieldItemID, itemID),
						logging.String(logging.FieldRunID, runID),
						logging.Alert("lease lost"))
					return
				}
			}
		}
	}()
	return func() { once.Do(func() { close(done) }) }
}

func (d *Dispatcher) appendLog(ctx context.Context, itemID, runID string, step catalog.Step, outcome catalog.Outcome, message string, result Result, duration time.Duration, retryCount int) error {
	return d.store.AppendLog(ctx, &catalog.LogEntry{
		ItemID:           itemID,
		RunID:            runID,
		Step:             step,
		Outcome:          outcome,
		Message:          message,
		ProcessorName:    result.ProcessorName,
		ProcessorVersion: result.ProcessorVersion,
		DurationMS:       duration.Milliseconds(),
		InputHash:        result.InputHash,
		Cost:             result.Cost,
		RetryCount:       retryCount,
	})
}
