package service

import (
	"context"
	"sync"
	"time"

	"calendar-sync/modules/calendar/dto"

	"github.com/google/uuid"
)

// EntitySource is the read side of the domain. Get returns nil when the
// entity no longer exists.
type EntitySource interface {
	EntityType() string
	Get(ctx context.Context, ref dto.EntityRef) (*dto.SchedulableEntity, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]dto.SchedulableEntity, error)
}

// Locker serializes work per key across processes. cache.Cache satisfies it.
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

type AlertKind string

const (
	AlertReconnectRequired AlertKind = "calendar_reconnect_required"
	AlertSyncDegraded      AlertKind = "calendar_sync_degraded"
)

// Alerter receives healthy to failing transitions of an integration.
type Alerter interface {
	CalendarAlert(ctx context.Context, ownerID uuid.UUID, kind AlertKind, message string) error
}

// StateStore keeps single use OAuth state values.
type StateStore interface {
	SetOAuthState(ctx context.Context, state string, ownerID uuid.UUID, ttl time.Duration) error
	ConsumeOAuthState(ctx context.Context, state string) (uuid.UUID, bool, error)
}

type FeedCache interface {
	GetFeed(ctx context.Context, ownerID uuid.UUID) ([]byte, bool, error)
	SetFeed(ctx context.Context, ownerID uuid.UUID, body []byte, ttl time.Duration) error
	InvalidateFeed(ctx context.Context, ownerID uuid.UUID) error
}

// Resyncer schedules a full push of an owner's entities.
type Resyncer interface {
	OwnerChanged(ctx context.Context, ownerID uuid.UUID) error
}

type localLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewLocalLocker returns an in-process Locker.
func NewLocalLocker() Locker {
	return &localLocker{locks: make(map[string]chan struct{})}
}

func (l *localLocker) AcquireLock(ctx context.Context, key string, _ time.Duration) (func(), error) {
	for {
		l.mu.Lock()
		held, ok := l.locks[key]
		if !ok {
			ch := make(chan struct{})
			l.locks[key] = ch
			l.mu.Unlock()
			return func() {
				l.mu.Lock()
				delete(l.locks, key)
				l.mu.Unlock()
				close(ch)
			}, nil
		}
		l.mu.Unlock()

		select {
		case <-held:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
