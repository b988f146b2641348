package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"calendar-sync/core/constants"
	"calendar-sync/core/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	lockPollInterval    = 50 * time.Millisecond
	minLockKeepAlive    = 10 * time.Millisecond
	lockReleaseDeadline = 5 * time.Second
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

type Cache interface {
	Ping(ctx context.Context) error
	Close() error

	// OAuth state is single use: ConsumeOAuthState deletes it.
	SetOAuthState(ctx context.Context, state string, ownerID uuid.UUID, ttl time.Duration) error
	ConsumeOAuthState(ctx context.Context, state string) (uuid.UUID, bool, error)

	// AcquireLock blocks until key is held or ctx is done. The lock is
	// extended every ttl/3 until release, so ttl only bounds how long a
	// crashed holder blocks the key.
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (release func(), err error)

	GetFeed(ctx context.Context, ownerID uuid.UUID) ([]byte, bool, error)
	SetFeed(ctx context.Context, ownerID uuid.UUID, body []byte, ttl time.Duration) error
	InvalidateFeed(ctx context.Context, ownerID uuid.UUID) error
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type redisCache struct {
	client *redis.Client
}

func NewRedisCache(cfg RedisConfig) Cache {
	return NewFromClient(redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}))
}

func NewFromClient(client *redis.Client) Cache {
	return &redisCache{client: client}
}

func (c *redisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *redisCache) Close() error {
	return c.client.Close()
}

func (c *redisCache) SetOAuthState(ctx context.Context, state string, ownerID uuid.UUID, ttl time.Duration) error {
	return c.client.Set(ctx, constants.RedisKeyOAuthState+state, ownerID.String(), ttl).Err()
}

func (c *redisCache) ConsumeOAuthState(ctx context.Context, state string) (uuid.UUID, bool, error) {
	val, err := c.client.GetDel(ctx, constants.RedisKeyOAuthState+state).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	ownerID, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("corrupt oauth state: %w", err)
	}
	return ownerID, true, nil
}

func (c *redisCache) AcquireLock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	redisKey := constants.RedisKeySyncLock + key
	token := uuid.NewString()

	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		ok, err := c.client.SetNX(ctx, redisKey, token, ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	done := make(chan struct{})
	go c.keepLock(redisKey, token, ttl, done)

	var once sync.Once
	release := func() {
		once.Do(func() {
			close(done)
			// Released with a fresh context so a cancelled caller still frees the key.
			releaseCtx, cancel := context.WithTimeout(context.Background(), lockReleaseDeadline)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, c.client, []string{redisKey}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
				logger.Warn("Cache:ReleaseLock:Error", "key", key, "error", err)
			}
		})
	}
	return release, nil
}

// keepLock pushes the expiry of a held lock forward until done is closed or
// the key no longer carries token.
func (c *redisCache) keepLock(redisKey, token string, ttl time.Duration, done <-chan struct{}) {
	interval := max(ttl/3, minLockKeepAlive)
	ttlMillis := max(ttl.Milliseconds(), 1)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), interval)
		held, err := extendScript.Run(ctx, c.client, []string{redisKey}, token, ttlMillis).Int()
		cancel()
		if err != nil {
			logger.Warn("Cache:ExtendLock:Error", "key", redisKey, "error", err)
			continue
		}
		if held == 0 {
			logger.Warn("Cache:ExtendLock:Lost", "key", redisKey)
			return
		}
	}
}

func (c *redisCache) GetFeed(ctx context.Context, ownerID uuid.UUID) ([]byte, bool, error) {
	body, err := c.client.Get(ctx, constants.RedisKeyFeed+ownerID.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return body, true, nil
}

func (c *redisCache) SetFeed(ctx context.Context, ownerID uuid.UUID, body []byte, ttl time.Duration) error {
	return c.client.Set(ctx, constants.RedisKeyFeed+ownerID.String(), body, ttl).Err()
}

func (c *redisCache) InvalidateFeed(ctx context.Context, ownerID uuid.UUID) error {
	return c.client.Del(ctx, constants.RedisKeyFeed+ownerID.String()).Err()
}
