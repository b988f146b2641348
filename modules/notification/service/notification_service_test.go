package service

import (
	"context"
	"testing"

	"calendar-sync/core/errors"
	"calendar-sync/core/params"
	calendarService "calendar-sync/modules/calendar/service"
	"calendar-sync/modules/notification/entity"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	items []entity.Notification
	read  []uuid.UUID
}

func (r *memoryRepo) Create(_ context.Context, n *entity.Notification) error {
	n.ID = uuid.New()
	r.items = append(r.items, *n)
	return nil
}

func (r *memoryRepo) GetByUserID(_ context.Context, userID uuid.UUID, p params.QueryParams) (*entity.PaginatedNotificationEntity, error) {
	return nil, nil
}

func (r *memoryRepo) HasUnread(_ context.Context, userID uuid.UUID, t string) (bool, error) {
	for _, n := range r.items {
		if n.UserID == userID && n.Type == t && !n.IsRead {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryRepo) MarkAsRead(_ context.Context, _ uuid.UUID, ids []uuid.UUID) error {
	r.read = append(r.read, ids...)
	return nil
}

func (r *memoryRepo) MarkAllAsRead(_ context.Context, userID uuid.UUID) error {
	for i := range r.items {
		if r.items[i].UserID == userID {
			r.items[i].IsRead = true
		}
	}
	return nil
}

func (r *memoryRepo) CountUnread(_ context.Context, userID uuid.UUID) (int, error) {
	n := 0
	for _, item := range r.items {
		if item.UserID == userID && !item.IsRead {
			n++
		}
	}
	return n, nil
}

func TestNotificationService_CalendarAlert(t *testing.T) {
	repo := &memoryRepo{}
	svc := NewNotificationService(repo)
	ctx := context.Background()
	owner := uuid.New()

	require.NoError(t, svc.CalendarAlert(ctx, owner, calendarService.AlertReconnectRequired, "reconnect calendar: token revoked"))
	require.Len(t, repo.items, 1)
	got := repo.items[0]
	assert.Equal(t, "Reconnect your calendar", got.Title)
	assert.Equal(t, "calendar_reconnect_required", got.Type)
	assert.Equal(t, "reconnect calendar: token revoked", got.Message)
	assert.Equal(t, "calendar_reconnect_required", got.Data["kind"])

	// An unread alert of the same kind is not repeated.
	require.NoError(t, svc.CalendarAlert(ctx, owner, calendarService.AlertReconnectRequired, "again"))
	assert.Len(t, repo.items, 1)

	require.NoError(t, svc.CalendarAlert(ctx, owner, calendarService.AlertSyncDegraded, "provider unavailable"))
	assert.Len(t, repo.items, 2)

	require.NoError(t, svc.MarkAllAsRead(ctx, owner))
	require.NoError(t, svc.CalendarAlert(ctx, owner, calendarService.AlertReconnectRequired, "once more"))
	assert.Len(t, repo.items, 3)

	count, err := svc.CountUnread(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNotificationService_MarkAsRead(t *testing.T) {
	repo := &memoryRepo{}
	svc := NewNotificationService(repo)
	id := uuid.New()

	require.NoError(t, svc.MarkAsRead(context.Background(), uuid.New(), []string{id.String()}))
	assert.Equal(t, []uuid.UUID{id}, repo.read)

	err := svc.MarkAsRead(context.Background(), uuid.New(), []string{"nope"})
	assert.True(t, errors.HasCode(err, errors.ErrInvalidInput))
}
