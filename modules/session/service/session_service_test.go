package service

import (
	"context"
	stderrors "errors"
	"sort"
	"sync"
	"testing"
	"time"

	"calendar-sync/core/errors"
	"calendar-sync/core/params"
	calendarDto "calendar-sync/modules/calendar/dto"
	"calendar-sync/modules/calendar/mapper"
	"calendar-sync/modules/session/dto"
	sessionEntity "calendar-sync/modules/session/entity"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]sessionEntity.Session
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{sessions: map[uuid.UUID]sessionEntity.Session{}}
}

func (r *memoryRepo) Create(_ context.Context, s *sessionEntity.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.ID = uuid.New()
	s.CreatedAt = time.Now()
	s.UpdatedAt = s.CreatedAt
	r.sessions[s.ID] = *s
	return nil
}

func (r *memoryRepo) GetByID(_ context.Context, id uuid.UUID) (*sessionEntity.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r *memoryRepo) ListByHost(_ context.Context, hostID uuid.UUID, p params.QueryParams) ([]sessionEntity.Session, int, error) {
	all := r.byHost(hostID, false)
	total := len(all)
	start := min(p.Offset(), total)
	end := min(start+p.PageSize, total)
	return all[start:end], total, nil
}

func (r *memoryRepo) ListScheduledByHost(_ context.Context, hostID uuid.UUID) ([]sessionEntity.Session, error) {
	return r.byHost(hostID, true), nil
}

func (r *memoryRepo) byHost(hostID uuid.UUID, scheduledOnly bool) []sessionEntity.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sessionEntity.Session
	for _, s := range r.sessions {
		if s.HostID == hostID && (!scheduledOnly || s.StartDate != nil) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r *memoryRepo) Update(_ context.Context, s *sessionEntity.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.UpdatedAt = time.Now()
	r.sessions[s.ID] = *s
	return nil
}

func (r *memoryRepo) Delete(_ context.Context, hostID, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.HostID != hostID {
		return false, nil
	}
	delete(r.sessions, id)
	return true, nil
}

type recordingNotifier struct {
	refs []calendarDto.EntityRef
	err  error
}

func (n *recordingNotifier) EntityChanged(_ context.Context, ref calendarDto.EntityRef) error {
	n.refs = append(n.refs, ref)
	return n.err
}

func newService(t *testing.T) (SessionService, *memoryRepo, *recordingNotifier) {
	t.Helper()
	repo := newMemoryRepo()
	notifier := &recordingNotifier{}
	return NewSessionService(repo, notifier, "Europe/Prague"), repo, notifier
}

func TestSessionService_CreateNotifies(t *testing.T) {
	svc, _, notifier := newService(t)
	ctx := context.Background()
	host := uuid.New()
	start := time.Date(2025, 3, 10, 13, 0, 0, 0, time.UTC)

	resp, appErr := svc.Create(ctx, host, &dto.CreateSessionRequest{Title: " Shoot ", DurationMinutes: 90, StartDate: &start})
	require.Nil(t, appErr)
	assert.Equal(t, "Shoot", resp.Title)
	assert.Equal(t, "scheduled", resp.Status)
	assert.Equal(t, "Europe/Prague", resp.Timezone)

	require.Len(t, notifier.refs, 1)
	assert.Equal(t, calendarDto.EntityRef{Type: "session", ID: resp.ID.String(), OwnerID: host}, notifier.refs[0])

	draft, appErr := svc.Create(ctx, host, &dto.CreateSessionRequest{Title: "Later"})
	require.Nil(t, appErr)
	assert.Equal(t, "pending", draft.Status)
}

func TestSessionService_CreateValidation(t *testing.T) {
	svc, _, notifier := newService(t)
	ctx := context.Background()
	start := time.Now()
	before := start.Add(-time.Hour)

	cases := map[string]*dto.CreateSessionRequest{
		"missing title":    {Title: " "},
		"unknown timezone": {Title: "x", Timezone: "Mars/Olympus"},
		"end before start": {Title: "x", StartDate: &start, EndDate: &before},
		"negative length":  {Title: "x", DurationMinutes: -5},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, appErr := svc.Create(ctx, uuid.New(), req)
			require.NotNil(t, appErr)
			assert.Equal(t, errors.ErrInvalidInput, appErr.Code)
		})
	}
	assert.Empty(t, notifier.refs)
}

func TestSessionService_NotifyFailureDoesNotFailWrite(t *testing.T) {
	svc, repo, notifier := newService(t)
	notifier.err = stderrors.New("queue unavailable")

	resp, appErr := svc.Create(context.Background(), uuid.New(), &dto.CreateSessionRequest{Title: "Shoot"})
	require.Nil(t, appErr)
	stored, _ := repo.GetByID(context.Background(), resp.ID)
	assert.NotNil(t, stored)
}

func TestSessionService_RescheduleAndCancel(t *testing.T) {
	svc, repo, notifier := newService(t)
	ctx := context.Background()
	host := uuid.New()

	created, appErr := svc.Create(ctx, host, &dto.CreateSessionRequest{Title: "Shoot"})
	require.Nil(t, appErr)

	newStart := time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC)
	moved, appErr := svc.Reschedule(ctx, host, created.ID, &dto.RescheduleSessionRequest{StartDate: newStart, Timezone: "America/New_York"})
	require.Nil(t, appErr)
	assert.Equal(t, "scheduled", moved.Status)
	assert.Equal(t, "America/New_York", moved.Timezone)
	assert.True(t, moved.StartDate.Equal(newStart))

	_, appErr = svc.Reschedule(ctx, uuid.New(), created.ID, &dto.RescheduleSessionRequest{StartDate: newStart})
	require.NotNil(t, appErr)
	assert.Equal(t, errors.ErrNotFound, appErr.Code)

	cancelled, appErr := svc.Cancel(ctx, host, created.ID)
	require.Nil(t, appErr)
	assert.Equal(t, "cancelled", cancelled.Status)

	// Cancelling twice is a no-op and does not notify again.
	before := len(notifier.refs)
	_, appErr = svc.Cancel(ctx, host, created.ID)
	require.Nil(t, appErr)
	assert.Len(t, notifier.refs, before)

	_, appErr = svc.Reschedule(ctx, host, created.ID, &dto.RescheduleSessionRequest{StartDate: newStart})
	require.NotNil(t, appErr)
	assert.Equal(t, errors.ErrInvalidInput, appErr.Code)

	stored, _ := repo.GetByID(ctx, created.ID)
	assert.Equal(t, sessionEntity.SessionStatusCancelled, stored.Status)
	assert.Len(t, notifier.refs, 3)
}

func TestSessionService_UpdateAndConfirm(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	host := uuid.New()

	created, appErr := svc.Create(ctx, host, &dto.CreateSessionRequest{Title: "Shoot", Address: "Park"})
	require.Nil(t, appErr)

	_, appErr = svc.Confirm(ctx, host, created.ID)
	require.NotNil(t, appErr)
	assert.Equal(t, errors.ErrInvalidInput, appErr.Code)

	title, empty, minutes := "Portrait", "", 45
	updated, appErr := svc.Update(ctx, host, created.ID, &dto.UpdateSessionRequest{Title: &title, Address: &empty, DurationMinutes: &minutes})
	require.Nil(t, appErr)
	assert.Equal(t, "Portrait", updated.Title)
	assert.Empty(t, updated.Address)
	assert.Equal(t, 45, updated.DurationMinutes)
}

func TestSessionService_DeleteNotifies(t *testing.T) {
	svc, repo, notifier := newService(t)
	ctx := context.Background()
	host := uuid.New()

	created, appErr := svc.Create(ctx, host, &dto.CreateSessionRequest{Title: "Shoot"})
	require.Nil(t, appErr)

	appErr = svc.Delete(ctx, uuid.New(), created.ID)
	require.NotNil(t, appErr)
	assert.Equal(t, errors.ErrNotFound, appErr.Code)

	require.Nil(t, svc.Delete(ctx, host, created.ID))
	stored, _ := repo.GetByID(ctx, created.ID)
	assert.Nil(t, stored)
	assert.Len(t, notifier.refs, 2)
	assert.Equal(t, host, notifier.refs[1].OwnerID)
}

func TestSessionService_ListMine(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	host := uuid.New()
	for i := 0; i < 3; i++ {
		_, appErr := svc.Create(ctx, host, &dto.CreateSessionRequest{Title: "Shoot"})
		require.Nil(t, appErr)
	}

	page, appErr := svc.ListMine(ctx, host, params.QueryParams{PageNumber: 2, PageSize: 2})
	require.Nil(t, appErr)
	assert.Equal(t, 3, page.TotalItems)
	assert.Equal(t, 2, page.TotalPages)
	assert.Len(t, page.Items, 1)
}

func TestCalendarSource(t *testing.T) {
	repo := newMemoryRepo()
	src := NewCalendarSource(repo)
	ctx := context.Background()
	host := uuid.New()
	start := time.Date(2025, 3, 10, 13, 0, 0, 0, time.UTC)
	link, addr := "https://meet.example/x", "Park"

	scheduled := &sessionEntity.Session{HostID: host, Title: "Shoot", Status: sessionEntity.SessionStatusScheduled,
		StartDate: &start, DurationMinutes: 90, Timezone: "Europe/Prague", MeetingLink: &link, Address: &addr}
	pending := &sessionEntity.Session{HostID: host, Title: "Maybe", Status: sessionEntity.SessionStatusPending, StartDate: &start}
	cancelled := &sessionEntity.Session{HostID: host, Title: "Off", Status: sessionEntity.SessionStatusCancelled, StartDate: &start}
	draft := &sessionEntity.Session{HostID: host, Title: "Draft", Status: sessionEntity.SessionStatusPending}
	for _, s := range []*sessionEntity.Session{scheduled, pending, cancelled, draft} {
		require.NoError(t, repo.Create(ctx, s))
	}

	assert.Equal(t, "session", src.EntityType())

	ent, err := src.Get(ctx, calendarDto.EntityRef{Type: "session", ID: scheduled.ID.String()})
	require.NoError(t, err)
	require.NotNil(t, ent)
	assert.Equal(t, host, ent.Ref.OwnerID)
	assert.Equal(t, "Park", ent.Location)
	assert.Equal(t, link, ent.MeetingLink)
	assert.True(t, mapper.Visible(ent))
	status, _ := mapper.EventStatus(ent.Status)
	assert.Equal(t, calendarDto.EventStatusConfirmed, status)

	ent, _ = src.Get(ctx, calendarDto.EntityRef{Type: "session", ID: pending.ID.String()})
	status, _ = mapper.EventStatus(ent.Status)
	assert.Equal(t, calendarDto.EventStatusTentative, status)

	ent, _ = src.Get(ctx, calendarDto.EntityRef{Type: "session", ID: cancelled.ID.String()})
	assert.False(t, mapper.Visible(ent))

	ent, _ = src.Get(ctx, calendarDto.EntityRef{Type: "session", ID: draft.ID.String()})
	assert.False(t, mapper.Visible(ent))

	ent, err = src.Get(ctx, calendarDto.EntityRef{Type: "session", ID: "not-a-uuid"})
	assert.NoError(t, err)
	assert.Nil(t, ent)

	ent, err = src.Get(ctx, calendarDto.EntityRef{Type: "session", ID: uuid.NewString()})
	assert.NoError(t, err)
	assert.Nil(t, ent)
}
