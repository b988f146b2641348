package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Env          string             `mapstructure:"env"`
	LogLevel     string             `mapstructure:"log_level"`
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	JWT          JWTConfig          `mapstructure:"jwt"`
	GoogleAPI    GoogleAPIConfig    `mapstructure:"google_api"`
	CalendarSync CalendarSyncConfig `mapstructure:"calendar_sync"`
}

type ServerConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	PublicURL string `mapstructure:"public_url"`
	// ShutdownTimeout bounds graceful shutdown of the HTTP server and workers.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"name"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type GoogleAPIConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURI  string `mapstructure:"redirect_uri"`
	// Endpoint overrides, empty means the public Google endpoints.
	TokenURL    string `mapstructure:"token_url"`
	RevokeURL   string `mapstructure:"revoke_url"`
	APIEndpoint string `mapstructure:"api_endpoint"`
}

type CalendarSyncConfig struct {
	SafetyBuffer     time.Duration  `mapstructure:"safety_buffer"`
	ProviderTimeout  time.Duration  `mapstructure:"provider_timeout"`
	DefaultTimezone  string         `mapstructure:"default_timezone"`
	DefaultDurations map[string]int `mapstructure:"default_durations"` // minutes per entity type
	FeedTimezone     string         `mapstructure:"feed_timezone"`
	FeedName         string         `mapstructure:"feed_name"`
	FeedUIDDomain    string         `mapstructure:"feed_uid_domain"`
	FeedCacheTTL     time.Duration  `mapstructure:"feed_cache_ttl"`
	FeedTokenTTL     time.Duration  `mapstructure:"feed_token_ttl"` // zero = no expiry
	ReconcileSpec    string         `mapstructure:"reconcile_spec"`
	ReconcileBatch   int            `mapstructure:"reconcile_batch"`
	QueueName        string         `mapstructure:"queue_name"`
	MaxRetry         int            `mapstructure:"max_retry"`
	WorkerConcurrent int            `mapstructure:"worker_concurrency"`
}

var (
	mu       sync.RWMutex
	instance *Config
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "production")
	v.SetDefault("log_level", "info")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 7070)
	v.SetDefault("server.public_url", "http://localhost:7070")
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "calendar_sync")
	v.SetDefault("database.ssl_mode", "disable")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.ttl", "24h")

	v.SetDefault("google_api.client_id", "")
	v.SetDefault("google_api.client_secret", "")
	v.SetDefault("google_api.redirect_uri", "")
	v.SetDefault("google_api.token_url", "")
	v.SetDefault("google_api.revoke_url", "https://oauth2.googleapis.com/revoke")
	v.SetDefault("google_api.api_endpoint", "")

	v.SetDefault("calendar_sync.safety_buffer", "5m")
	v.SetDefault("calendar_sync.provider_timeout", "15s")
	v.SetDefault("calendar_sync.default_timezone", "Europe/Prague")
	v.SetDefault("calendar_sync.default_durations", map[string]int{"session": 60})
	v.SetDefault("calendar_sync.feed_timezone", "Europe/Prague")
	v.SetDefault("calendar_sync.feed_name", "Bookings")
	v.SetDefault("calendar_sync.feed_uid_domain", "calendar-sync.local")
	v.SetDefault("calendar_sync.feed_cache_ttl", "1m")
	v.SetDefault("calendar_sync.feed_token_ttl", "0s")
	v.SetDefault("calendar_sync.reconcile_spec", "@every 15m")
	v.SetDefault("calendar_sync.reconcile_batch", 100)
	v.SetDefault("calendar_sync.queue_name", "calendar")
	v.SetDefault("calendar_sync.max_retry", 8)
	v.SetDefault("calendar_sync.worker_concurrency", 10)
}

// Load reads .env (when present), an optional config.yaml and the environment.
// Environment keys use underscores for nesting: CALENDAR_SYNC_SAFETY_BUFFER=10m.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	Set(&cfg)
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.CalendarSync.SafetyBuffer < 0 {
		return fmt.Errorf("calendar_sync.safety_buffer must not be negative")
	}
	if c.CalendarSync.ProviderTimeout <= 0 {
		return fmt.Errorf("calendar_sync.provider_timeout must be positive")
	}
	if c.CalendarSync.ReconcileBatch <= 0 {
		return fmt.Errorf("calendar_sync.reconcile_batch must be positive")
	}
	return nil
}

func Set(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	instance = cfg
}

// Get panics when Load has not run.
func Get() *Config {
	cfg, ok := GetSafe()
	if !ok {
		panic("config not initialized")
	}
	return cfg
}

func GetSafe() (*Config, bool) {
	mu.RLock()
	defer mu.RUnlock()
	return instance, instance != nil
}
