package worker

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"
	"testing"

	"calendar-sync/core/errors"
	"calendar-sync/modules/calendar/dto"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingClient struct {
	mu    sync.Mutex
	tasks []*asynq.Task
	err   error
}

func (c *recordingClient) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	c.tasks = append(c.tasks, task)
	return &asynq.TaskInfo{ID: uuid.NewString(), Type: task.Type(), Payload: task.Payload()}, nil
}

type stubSync struct {
	fanOut  []dto.EntityRef
	owners  []uuid.UUID
	limits  []int
	results []dto.SyncResult
	err     error
}

func (s *stubSync) Push(context.Context, uuid.UUID, *dto.SchedulableEntity) (dto.SyncResult, error) {
	return dto.SyncResult{}, nil
}

func (s *stubSync) Remove(context.Context, uuid.UUID, dto.EntityRef) (dto.SyncResult, error) {
	return dto.SyncResult{}, nil
}

func (s *stubSync) FanOut(_ context.Context, ref dto.EntityRef) ([]dto.SyncResult, error) {
	s.fanOut = append(s.fanOut, ref)
	return s.results, s.err
}

func (s *stubSync) SyncOwner(_ context.Context, ownerID uuid.UUID) ([]dto.SyncResult, error) {
	s.owners = append(s.owners, ownerID)
	return s.results, s.err
}

func (s *stubSync) Reconcile(_ context.Context, limit int) ([]dto.SyncResult, error) {
	s.limits = append(s.limits, limit)
	return s.results, s.err
}

type stubFeeds struct {
	owners []uuid.UUID
}

func (f *stubFeeds) InvalidateOwner(_ context.Context, ownerID uuid.UUID) {
	f.owners = append(f.owners, ownerID)
}

func transientResult() dto.SyncResult {
	cause := errors.NewAppError(errors.ErrProviderTransient, "calendar provider unavailable", nil)
	return dto.SyncResult{IntegrationID: uuid.New(), Err: errors.NewAppError(errors.ErrSync, "calendar sync failed", cause)}
}

func TestDispatcher_EntityChanged(t *testing.T) {
	client := &recordingClient{}
	d := NewDispatcher(client, DispatcherOptions{})
	ref := dto.EntityRef{Type: "session", ID: "42", OwnerID: uuid.New()}

	require.NoError(t, d.EntityChanged(context.Background(), ref))
	require.Len(t, client.tasks, 1)
	assert.Equal(t, TypeEntityChanged, client.tasks[0].Type())

	var p EntityChangedPayload
	require.NoError(t, json.Unmarshal(client.tasks[0].Payload(), &p))
	assert.Equal(t, ref, p.Ref())
}

func TestDispatcher_OwnerChanged(t *testing.T) {
	client := &recordingClient{}
	d := NewDispatcher(client, DispatcherOptions{Queue: "calendar", MaxRetry: 3})
	owner := uuid.New()

	require.NoError(t, d.OwnerChanged(context.Background(), owner))
	require.Len(t, client.tasks, 1)
	assert.Equal(t, TypeOwnerResync, client.tasks[0].Type())

	client.err = asynq.ErrDuplicateTask
	assert.NoError(t, d.OwnerChanged(context.Background(), owner))

	client.err = stderrors.New("redis down")
	assert.Error(t, d.OwnerChanged(context.Background(), owner))
}

func TestHandler_EntityChanged(t *testing.T) {
	ref := dto.EntityRef{Type: "session", ID: "1", OwnerID: uuid.New()}
	task, err := NewEntityChangedTask(ref)
	require.NoError(t, err)

	t.Run("converged", func(t *testing.T) {
		svc := &stubSync{results: []dto.SyncResult{{Action: dto.SyncActionCreated}}}
		feeds := &stubFeeds{}
		h := NewHandler(svc, feeds, 0)

		require.NoError(t, h.HandleEntityChanged(context.Background(), task))
		assert.Equal(t, []dto.EntityRef{ref}, svc.fanOut)
		assert.Equal(t, []uuid.UUID{ref.OwnerID}, feeds.owners)
	})

	t.Run("transient failure is retried", func(t *testing.T) {
		svc := &stubSync{results: []dto.SyncResult{{Action: dto.SyncActionUnchanged}, transientResult()}}
		h := NewHandler(svc, nil, 0)

		err := h.HandleEntityChanged(context.Background(), task)
		require.Error(t, err)
		assert.False(t, stderrors.Is(err, asynq.SkipRetry))
	})

	t.Run("permanent failure is not retried", func(t *testing.T) {
		validation := errors.NewAppError(errors.ErrSync, "calendar sync failed",
			errors.NewAppError(errors.ErrProviderValidation, "calendar provider rejected the event", nil))
		svc := &stubSync{results: []dto.SyncResult{{Err: validation}}}
		h := NewHandler(svc, nil, 0)

		assert.NoError(t, h.HandleEntityChanged(context.Background(), task))
	})

	t.Run("unknown entity type", func(t *testing.T) {
		svc := &stubSync{err: errors.NewAppError(errors.ErrInvalidInput, "unknown entity type", nil)}
		h := NewHandler(svc, nil, 0)

		err := h.HandleEntityChanged(context.Background(), task)
		assert.True(t, stderrors.Is(err, asynq.SkipRetry))
	})

	t.Run("malformed payload", func(t *testing.T) {
		h := NewHandler(&stubSync{}, nil, 0)
		err := h.HandleEntityChanged(context.Background(), asynq.NewTask(TypeEntityChanged, []byte("{")))
		assert.True(t, stderrors.Is(err, asynq.SkipRetry))
	})
}

func TestHandler_OwnerResync(t *testing.T) {
	owner := uuid.New()
	task, err := NewOwnerResyncTask(owner)
	require.NoError(t, err)

	svc := &stubSync{}
	feeds := &stubFeeds{}
	h := NewHandler(svc, feeds, 0)

	require.NoError(t, h.HandleOwnerResync(context.Background(), task))
	assert.Equal(t, []uuid.UUID{owner}, svc.owners)
	assert.Equal(t, []uuid.UUID{owner}, feeds.owners)
}

func TestHandler_Reconcile(t *testing.T) {
	svc := &stubSync{results: []dto.SyncResult{transientResult()}}
	h := NewHandler(svc, nil, 25)

	task, err := NewReconcileTask(0)
	require.NoError(t, err)
	assert.NoError(t, h.HandleReconcile(context.Background(), task))

	task, err = NewReconcileTask(5)
	require.NoError(t, err)
	assert.NoError(t, h.HandleReconcile(context.Background(), task))
	assert.Equal(t, []int{25, 5}, svc.limits)

	svc.err = stderrors.New("db down")
	err = h.HandleReconcile(context.Background(), task)
	assert.True(t, stderrors.Is(err, asynq.SkipRetry))
}

func TestHandler_Register(t *testing.T) {
	mux := asynq.NewServeMux()
	svc := &stubSync{}
	NewHandler(svc, nil, 10).Register(mux)

	task, err := NewOwnerResyncTask(uuid.New())
	require.NoError(t, err)
	require.NoError(t, mux.ProcessTask(context.Background(), task))
	assert.Len(t, svc.owners, 1)

}
