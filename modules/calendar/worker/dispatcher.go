package worker

import (
	"context"
	stderrors "errors"
	"time"

	"calendar-sync/core/logger"
	"calendar-sync/modules/calendar/dto"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Enqueuer is the subset of *asynq.Client the dispatcher needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type DispatcherOptions struct {
	Queue    string
	MaxRetry int
	// OwnerResyncWindow collapses repeated resync requests for one owner.
	OwnerResyncWindow time.Duration
}

// Dispatcher turns domain writes into background sync tasks. Enqueueing is
// the only work done on the caller's path.
type Dispatcher struct {
	client Enqueuer
	opts   DispatcherOptions
}

func NewDispatcher(client Enqueuer, opts DispatcherOptions) *Dispatcher {
	if opts.Queue == "" {
		opts.Queue = "calendar"
	}
	if opts.MaxRetry <= 0 {
		opts.MaxRetry = 8
	}
	if opts.OwnerResyncWindow <= 0 {
		opts.OwnerResyncWindow = 30 * time.Second
	}
	return &Dispatcher{client: client, opts: opts}
}

func (d *Dispatcher) taskOptions() []asynq.Option {
	return []asynq.Option{asynq.Queue(d.opts.Queue), asynq.MaxRetry(d.opts.MaxRetry)}
}

// EntityChanged schedules a fan out of ref to every integration of its owner.
func (d *Dispatcher) EntityChanged(ctx context.Context, ref dto.EntityRef) error {
	task, err := NewEntityChangedTask(ref, d.taskOptions()...)
	if err != nil {
		return err
	}
	info, err := d.client.EnqueueContext(ctx, task)
	if err != nil {
		logger.Error("CalendarDispatcher:EntityChanged:Error", "entity", ref.Key(), "error", err)
		return err
	}
	logger.Debug("CalendarDispatcher:EntityChanged:Enqueued", "entity", ref.Key(), "task_id", info.ID)
	return nil
}

// OwnerChanged schedules a full push of the owner's entities.
func (d *Dispatcher) OwnerChanged(ctx context.Context, ownerID uuid.UUID) error {
	opts := append(d.taskOptions(), asynq.Unique(d.opts.OwnerResyncWindow))
	task, err := NewOwnerResyncTask(ownerID, opts...)
	if err != nil {
		return err
	}
	if _, err := d.client.EnqueueContext(ctx, task); err != nil {
		if stderrors.Is(err, asynq.ErrDuplicateTask) {
			return nil
		}
		logger.Error("CalendarDispatcher:OwnerChanged:Error", "owner_id", ownerID, "error", err)
		return err
	}
	return nil
}

// RegisterReconcile adds the periodic reconcile task to scheduler.
func RegisterReconcile(scheduler *asynq.Scheduler, spec, queue string, limit int) (string, error) {
	task, err := NewReconcileTask(limit, asynq.Queue(queue), asynq.MaxRetry(0), asynq.Unique(time.Minute))
	if err != nil {
		return "", err
	}
	return scheduler.Register(spec, task)
}
