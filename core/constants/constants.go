package constants

import "time"

const (
	DefaultTimeout = 30 * time.Second

	DatabaseMaxOpenConns    = 25
	DatabaseMaxIdleConns    = 10
	DatabaseConnMaxLifetime = 30 // minutes
	DatabaseSSLMode         = "disable"

	ContextTokenData = "token_data"
	ContextUserID    = "user_id"

	DefaultPageSize   = 20
	MaxPageSize       = 100
	DefaultPageNumber = 1
)

// Redis keys
const (
	RedisKeyOAuthState = "calendar:oauth_state:"
	RedisKeySyncLock   = "calendar:lock:"
	RedisKeyFeed       = "calendar:feed:"
)

// Calendar providers
const (
	ProviderGoogle = "google"
)

// asynq queues
const (
	QueueCalendar = "calendar"
	QueueDefault  = "default"
)
