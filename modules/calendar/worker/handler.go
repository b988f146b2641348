package worker

import (
	"context"
	"fmt"

	"calendar-sync/core/errors"
	"calendar-sync/core/logger"
	"calendar-sync/modules/calendar/dto"
	"calendar-sync/modules/calendar/service"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

type FeedInvalidator interface {
	InvalidateOwner(ctx context.Context, ownerID uuid.UUID)
}

type Handler struct {
	sync  service.SyncService
	feeds FeedInvalidator
	batch int
}

func NewHandler(sync service.SyncService, feeds FeedInvalidator, reconcileBatch int) *Handler {
	if reconcileBatch <= 0 {
		reconcileBatch = 100
	}
	return &Handler{sync: sync, feeds: feeds, batch: reconcileBatch}
}

func (h *Handler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeEntityChanged, h.HandleEntityChanged)
	mux.HandleFunc(TypeOwnerResync, h.HandleOwnerResync)
	mux.HandleFunc(TypeReconcile, h.HandleReconcile)
}

func (h *Handler) HandleEntityChanged(ctx context.Context, t *asynq.Task) error {
	var p EntityChangedPayload
	if err := decode(t, &p); err != nil {
		return err
	}
	ref := p.Ref()

	results, err := h.sync.FanOut(ctx, ref)
	h.invalidate(ctx, ref.OwnerID)
	if err != nil {
		if errors.HasCode(err, errors.ErrInvalidInput) {
			return fmt.Errorf("fan out %s: %v: %w", ref.Key(), err, asynq.SkipRetry)
		}
		return err
	}
	logger.Info("CalendarWorker:EntityChanged:Done", "entity", ref.Key(), "integrations", len(results))
	return retryable(results)
}

func (h *Handler) HandleOwnerResync(ctx context.Context, t *asynq.Task) error {
	var p OwnerResyncPayload
	if err := decode(t, &p); err != nil {
		return err
	}
	results, err := h.sync.SyncOwner(ctx, p.OwnerID)
	h.invalidate(ctx, p.OwnerID)
	if err != nil {
		return err
	}
	logger.Info("CalendarWorker:OwnerResync:Done", "owner_id", p.OwnerID, "results", len(results))
	return retryable(results)
}

// HandleReconcile never asks asynq to retry; the next tick picks up what is left.
func (h *Handler) HandleReconcile(ctx context.Context, t *asynq.Task) error {
	var p ReconcilePayload
	if err := decode(t, &p); err != nil {
		return err
	}
	limit := p.Limit
	if limit <= 0 {
		limit = h.batch
	}
	results, err := h.sync.Reconcile(ctx, limit)
	if err != nil {
		logger.Error("CalendarWorker:Reconcile:Error", "error", err)
		return fmt.Errorf("reconcile: %v: %w", err, asynq.SkipRetry)
	}

	failed := 0
	for _, res := range results {
		if res.Failed() {
			failed++
		}
	}
	logger.Info("CalendarWorker:Reconcile:Done", "rows", len(results), "failed", failed)
	return nil
}

func (h *Handler) invalidate(ctx context.Context, ownerID uuid.UUID) {
	if h.feeds != nil && ownerID != uuid.Nil {
		h.feeds.InvalidateOwner(ctx, ownerID)
	}
}

// retryable returns an error when at least one integration failed for a
// reason that may clear on its own. Integrations that already converged are
// unchanged on the retry.
func retryable(results []dto.SyncResult) error {
	transient := 0
	for _, res := range results {
		if res.Err != nil && errors.HasCode(res.Err, errors.ErrProviderTransient) {
			transient++
		}
	}
	if transient == 0 {
		return nil
	}
	return fmt.Errorf("%d calendar integrations failed transiently", transient)
}
