package service

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"calendar-sync/core/errors"
	"calendar-sync/modules/calendar/dto"
	"calendar-sync/modules/calendar/mapper"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryFeedCache struct {
	mu    sync.Mutex
	feeds map[uuid.UUID][]byte
	hits  int
}

func (c *memoryFeedCache) GetFeed(_ context.Context, owner uuid.UUID) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	body, ok := c.feeds[owner]
	if ok {
		c.hits++
	}
	return body, ok, nil
}

func (c *memoryFeedCache) SetFeed(_ context.Context, owner uuid.UUID, body []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.feeds == nil {
		c.feeds = map[uuid.UUID][]byte{}
	}
	c.feeds[owner] = body
	return nil
}

func (c *memoryFeedCache) InvalidateFeed(_ context.Context, owner uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.feeds, owner)
	return nil
}

func newFeedFixture(t *testing.T, cache FeedCache) (FeedService, *fakeFeedTokenRepo, *fakeSource) {
	t.Helper()
	tokens := newFakeFeedTokenRepo()
	src := newFakeSource()
	svc := NewFeedService(tokens, []EntitySource{src}, cache, FeedOptions{
		Map:      mapper.MapOptions{DefaultTimezone: "UTC", UIDDomain: "example.test"},
		Timezone: "Europe/Prague",
		Name:     "Studio bookings",
		CacheTTL: time.Minute,
		BaseURL:  "https://cal.example.test/",
	})
	return svc, tokens, src
}

func TestFeedService_TokenLifecycle(t *testing.T) {
	svc, repo, _ := newFeedFixture(t, nil)
	ctx := context.Background()
	owner := uuid.New()

	created, err := svc.CreateToken(ctx, owner, " phone ", 0)
	require.NoError(t, err)
	require.Len(t, created.Token, 43)
	assert.Equal(t, "phone", created.Label)
	assert.Nil(t, created.ExpiresAt)
	assert.Equal(t, "https://cal.example.test/api/v1/public/calendar/feed/"+created.Token+".ics", created.URL)

	// Only the digest is stored.
	stored, _ := repo.ListByOwner(ctx, owner)
	require.Len(t, stored, 1)
	assert.NotEqual(t, created.Token, stored[0].TokenHash)
	assert.Equal(t, HashFeedToken(created.Token), stored[0].TokenHash)

	listed, err := svc.ListTokens(ctx, owner)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Empty(t, listed[0].Token)

	got, err := svc.ResolveToken(ctx, created.Token)
	require.NoError(t, err)
	assert.Equal(t, owner, got)

	// Revocation is immediate and scoped to the owner.
	err = svc.RevokeToken(ctx, uuid.New(), created.ID)
	assert.True(t, errors.HasCode(err, errors.ErrNotFound))
	require.NoError(t, svc.RevokeToken(ctx, owner, created.ID))

	_, err = svc.ResolveToken(ctx, created.Token)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidFeedToken))
}

func TestFeedService_ResolveToken(t *testing.T) {
	svc, _, _ := newFeedFixture(t, nil)
	ctx := context.Background()

	_, err := svc.ResolveToken(ctx, "")
	assert.True(t, errors.HasCode(err, errors.ErrInvalidFeedToken))

	_, err = svc.ResolveToken(ctx, "never-issued")
	assert.True(t, errors.HasCode(err, errors.ErrInvalidFeedToken))

	created, err := svc.CreateToken(ctx, uuid.New(), "short", time.Nanosecond)
	require.NoError(t, err)
	require.NotNil(t, created.ExpiresAt)
	time.Sleep(time.Millisecond)

	_, err = svc.ResolveToken(ctx, created.Token)
	assert.True(t, errors.HasCode(err, errors.ErrExpiredFeedToken))
	assert.False(t, errors.HasCode(err, errors.ErrInvalidFeedToken))
}

func TestFeedService_Render(t *testing.T) {
	svc, _, src := newFeedFixture(t, nil)
	ctx := context.Background()
	owner := uuid.New()
	prague, err := time.LoadLocation("Europe/Prague")
	require.NoError(t, err)

	src.put(&dto.SchedulableEntity{
		Ref: dto.EntityRef{Type: "session", ID: "late", OwnerID: owner}, Title: "Late, evening",
		Start: time.Date(2025, 3, 12, 18, 0, 0, 0, prague), DurationMinutes: 30, Status: dto.EntityStatusScheduled,
	})
	src.put(&dto.SchedulableEntity{
		Ref: dto.EntityRef{Type: "session", ID: "early", OwnerID: owner}, Title: "Early",
		Start: time.Date(2025, 3, 10, 14, 0, 0, 0, prague), DurationMinutes: 90, Status: dto.EntityStatusPending,
		Location: "Studio; room 2",
	})
	src.put(&dto.SchedulableEntity{
		Ref: dto.EntityRef{Type: "session", ID: "gone", OwnerID: owner}, Title: "Cancelled",
		Start: time.Date(2025, 3, 11, 9, 0, 0, 0, prague), Status: dto.EntityStatusCancelled,
	})
	src.put(&dto.SchedulableEntity{
		Ref: dto.EntityRef{Type: "session", ID: "other", OwnerID: uuid.New()}, Title: "Someone else",
		Start: time.Date(2025, 3, 11, 9, 0, 0, 0, prague), Status: dto.EntityStatusScheduled,
	})

	body, err := svc.Render(ctx, owner)
	require.NoError(t, err)
	doc := string(body)

	assert.Equal(t, 2, strings.Count(doc, "BEGIN:VEVENT"))
	assert.NotContains(t, doc, "Cancelled")
	assert.NotContains(t, doc, "Someone else")
	assert.Contains(t, doc, "X-WR-CALNAME:Studio bookings\r\n")
	assert.Contains(t, doc, "BEGIN:VTIMEZONE\r\nTZID:Europe/Prague\r\n")

	early := strings.Index(doc, "UID:session-early@example.test")
	late := strings.Index(doc, "UID:session-late@example.test")
	require.True(t, early > 0 && late > 0)
	assert.Less(t, early, late)

	assert.Contains(t, doc, "DTSTART;TZID=Europe/Prague:20250310T140000\r\nDTEND;TZID=Europe/Prague:20250310T153000\r\n")
	assert.Contains(t, doc, "STATUS:TENTATIVE\r\n")
	assert.Contains(t, doc, "STATUS:CONFIRMED\r\n")
	assert.Contains(t, doc, "SUMMARY:Late\\, evening\r\n")
	assert.Contains(t, doc, "LOCATION:Studio\\; room 2\r\n")
}

func TestFeedService_RenderEmptyUsesClock(t *testing.T) {
	svc, _, _ := newFeedFixture(t, nil)
	svc.(*feedService).now = func() time.Time { return time.Date(2031, 6, 1, 12, 0, 0, 0, time.UTC) }

	body, err := svc.Render(context.Background(), uuid.New())
	require.NoError(t, err)
	doc := string(body)

	assert.NotContains(t, doc, "BEGIN:VEVENT")
	assert.Contains(t, doc, "BEGIN:VTIMEZONE\r\nTZID:Europe/Prague\r\n")
	assert.Contains(t, doc, "DTSTART:20300331T020000\r\n")
	assert.Contains(t, doc, "DTSTART:20311026T030000\r\n")
}

func TestFeedService_RenderIsStable(t *testing.T) {
	svc, _, src := newFeedFixture(t, nil)
	ctx := context.Background()
	owner := uuid.New()
	for _, id := range []string{"a", "b", "c"} {
		src.put(&dto.SchedulableEntity{
			Ref: dto.EntityRef{Type: "session", ID: id, OwnerID: owner}, Title: id,
			Start: time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC), Status: dto.EntityStatusScheduled,
		})
	}

	first, err := svc.Render(ctx, owner)
	require.NoError(t, err)
	time.Sleep(1100 * time.Millisecond)
	second, err := svc.Render(ctx, owner)
	require.NoError(t, err)

	stable := regexp.MustCompile(`(?m)^(UID|DTSTART|DTEND)[:;].*$`)
	assert.Equal(t, stable.FindAllString(string(first), -1), stable.FindAllString(string(second), -1))
	assert.Equal(t, 3, strings.Count(string(first), "UID:session-"))
}

func TestFeedService_RenderUsesCache(t *testing.T) {
	cache := &memoryFeedCache{}
	svc, _, src := newFeedFixture(t, cache)
	ctx := context.Background()
	owner := uuid.New()
	src.put(&dto.SchedulableEntity{
		Ref: dto.EntityRef{Type: "session", ID: "a", OwnerID: owner}, Title: "Original",
		Start: time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC), Status: dto.EntityStatusScheduled,
	})

	first, err := svc.Render(ctx, owner)
	require.NoError(t, err)

	src.put(&dto.SchedulableEntity{
		Ref: dto.EntityRef{Type: "session", ID: "a", OwnerID: owner}, Title: "Renamed",
		Start: time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC), Status: dto.EntityStatusScheduled,
	})
	cached, err := svc.Render(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, first, cached)
	assert.Equal(t, 1, cache.hits)

	svc.InvalidateOwner(ctx, owner)
	fresh, err := svc.Render(ctx, owner)
	require.NoError(t, err)
	assert.Contains(t, string(fresh), "SUMMARY:Renamed")
}
