package database

import (
	"context"
	"fmt"

	"calendar-sync/core/logger"
)

// schema is applied in order on startup. Every statement is idempotent.
var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS pgcrypto`,
	`CREATE TABLE IF NOT EXISTS calendar_integrations (
		id               UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		owner_id         UUID NOT NULL,
		provider         TEXT NOT NULL,
		access_token     TEXT NOT NULL DEFAULT '',
		refresh_token    TEXT,
		token_expires_at TIMESTAMPTZ NOT NULL DEFAULT 'epoch',
		calendar_id      TEXT NOT NULL DEFAULT 'primary',
		sync_enabled     BOOLEAN NOT NULL DEFAULT TRUE,
		last_synced_at   TIMESTAMPTZ,
		last_error       TEXT,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (owner_id, provider)
	)`,
	`CREATE TABLE IF NOT EXISTS calendar_event_syncs (
		id                UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		integration_id    UUID NOT NULL REFERENCES calendar_integrations(id) ON DELETE CASCADE,
		entity_type       TEXT NOT NULL,
		entity_id         TEXT NOT NULL,
		external_event_id TEXT,
		calendar_id       TEXT NOT NULL DEFAULT '',
		content_hash      TEXT NOT NULL DEFAULT '',
		last_synced_at    TIMESTAMPTZ,
		status            TEXT NOT NULL,
		last_error        TEXT,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (integration_id, entity_type, entity_id)
	)`,
	`ALTER TABLE calendar_event_syncs ADD COLUMN IF NOT EXISTS calendar_id TEXT NOT NULL DEFAULT ''`,
	`CREATE INDEX IF NOT EXISTS idx_calendar_event_syncs_status ON calendar_event_syncs (status, updated_at)`,
	`CREATE TABLE IF NOT EXISTS calendar_feed_tokens (
		id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		owner_id   UUID NOT NULL,
		token_hash TEXT NOT NULL UNIQUE,
		label      TEXT NOT NULL DEFAULT '',
		expires_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_calendar_feed_tokens_owner ON calendar_feed_tokens (owner_id)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id               UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		host_id          UUID NOT NULL,
		title            TEXT NOT NULL,
		description      TEXT,
		address          TEXT,
		duration_minutes INT NOT NULL DEFAULT 0,
		status           TEXT NOT NULL DEFAULT 'pending',
		timezone         TEXT NOT NULL DEFAULT 'Europe/Prague',
		start_date       TIMESTAMPTZ,
		end_date         TIMESTAMPTZ,
		meeting_link     TEXT,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_host ON sessions (host_id, start_date)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id    UUID NOT NULL,
		title      TEXT NOT NULL,
		message    TEXT NOT NULL,
		type       TEXT NOT NULL,
		data       JSONB,
		is_read    BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

func EnsureSchema(ctx context.Context, db IDatabase) error {
	for i, stmt := range schema {
		if err := db.ExecContext(ctx, stmt); err != nil {
			logger.Error("Database:EnsureSchema:Error", "statement", i, "error", err)
			return fmt.Errorf("apply schema statement %d: %w", i, err)
		}
	}
	logger.Info("Database:EnsureSchema:Success", "statements", len(schema))
	return nil
}
