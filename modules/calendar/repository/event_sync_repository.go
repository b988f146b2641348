package repository

import (
	"context"
	"database/sql"
	"errors"

	"calendar-sync/core/database"
	"calendar-sync/core/logger"
	"calendar-sync/modules/calendar/entity"

	"github.com/google/uuid"
)

// EventSyncRepository is the sync ledger.
type EventSyncRepository interface {
	Get(ctx context.Context, integrationID uuid.UUID, entityType, entityID string) (*entity.CalendarEventSync, error)
	Upsert(ctx context.Context, row *entity.CalendarEventSync) error
	MarkError(ctx context.Context, integrationID uuid.UUID, entityType, entityID, message string) error
	MarkDeleted(ctx context.Context, integrationID uuid.UUID, entityType, entityID string) error
	ListByStatus(ctx context.Context, status entity.SyncStatus, limit int) ([]entity.CalendarEventSync, error)
}

type eventSyncRepository struct {
	db database.Database
}

func NewEventSyncRepository(db database.Database) EventSyncRepository {
	return &eventSyncRepository{db: db}
}

const eventSyncColumns = `id, integration_id, entity_type, entity_id, external_event_id, calendar_id, content_hash,
	last_synced_at, status, last_error, created_at, updated_at`

func (r *eventSyncRepository) Get(ctx context.Context, integrationID uuid.UUID, entityType, entityID string) (*entity.CalendarEventSync, error) {
	query := `SELECT ` + eventSyncColumns + `
		FROM calendar_event_syncs
		WHERE integration_id = $1 AND entity_type = $2 AND entity_id = $3`

	var row entity.CalendarEventSync
	if err := r.db.GetContext(ctx, &row, query, integrationID, entityType, entityID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		logger.Error("EventSyncRepository:Get:Error", "integration_id", integrationID, "entity_id", entityID, "error", err)
		return nil, err
	}
	return &row, nil
}

// Upsert records a successful push.
func (r *eventSyncRepository) Upsert(ctx context.Context, row *entity.CalendarEventSync) error {
	query := `
		INSERT INTO calendar_event_syncs (integration_id, entity_type, entity_id, external_event_id, content_hash, last_synced_at, status, last_error, calendar_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (integration_id, entity_type, entity_id) DO UPDATE SET
			external_event_id = EXCLUDED.external_event_id,
			calendar_id       = EXCLUDED.calendar_id,
			content_hash      = EXCLUDED.content_hash,
			last_synced_at    = EXCLUDED.last_synced_at,
			status            = EXCLUDED.status,
			last_error        = EXCLUDED.last_error,
			updated_at        = NOW()
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		row.IntegrationID, row.EntityType, row.EntityID, row.ExternalEventID,
		row.ContentHash, row.LastSyncedAt, row.Status, row.LastError, row.CalendarID,
	).Scan(&row.ID, &row.CreatedAt, &row.UpdatedAt)
	if err != nil {
		logger.Error("EventSyncRepository:Upsert:Error", "integration_id", row.IntegrationID, "entity_id", row.EntityID, "error", err)
		return err
	}
	return nil
}

// MarkError flags the row for another attempt. The external id and hash are kept.
func (r *eventSyncRepository) MarkError(ctx context.Context, integrationID uuid.UUID, entityType, entityID, message string) error {
	query := `
		INSERT INTO calendar_event_syncs (integration_id, entity_type, entity_id, status, last_error)
		VALUES ($1, $2, $3, 'error', $4)
		ON CONFLICT (integration_id, entity_type, entity_id) DO UPDATE SET
			status     = 'error',
			last_error = EXCLUDED.last_error,
			updated_at = NOW()
	`
	if err := r.db.ExecContext(ctx, query, integrationID, entityType, entityID, message); err != nil {
		logger.Error("EventSyncRepository:MarkError:Error", "integration_id", integrationID, "entity_id", entityID, "error", err)
		return err
	}
	return nil
}

func (r *eventSyncRepository) MarkDeleted(ctx context.Context, integrationID uuid.UUID, entityType, entityID string) error {
	query := `
		UPDATE calendar_event_syncs
		SET external_event_id = NULL, status = 'deleted', last_error = NULL, last_synced_at = NOW(), updated_at = NOW()
		WHERE integration_id = $1 AND entity_type = $2 AND entity_id = $3
	`
	if err := r.db.ExecContext(ctx, query, integrationID, entityType, entityID); err != nil {
		logger.Error("EventSyncRepository:MarkDeleted:Error", "integration_id", integrationID, "entity_id", entityID, "error", err)
		return err
	}
	return nil
}

// ListByStatus returns rows of sync-enabled integrations, least recently touched first.
func (r *eventSyncRepository) ListByStatus(ctx context.Context, status entity.SyncStatus, limit int) ([]entity.CalendarEventSync, error) {
	query := `
		SELECT s.id, s.integration_id, s.entity_type, s.entity_id, s.external_event_id, s.calendar_id, s.content_hash,
		       s.last_synced_at, s.status, s.last_error, s.created_at, s.updated_at
		FROM calendar_event_syncs s
		JOIN calendar_integrations i ON i.id = s.integration_id
		WHERE s.status = $1 AND i.sync_enabled = TRUE
		ORDER BY s.updated_at ASC
		LIMIT $2
	`
	var rows []entity.CalendarEventSync
	if err := r.db.SelectContext(ctx, &rows, query, status, limit); err != nil {
		logger.Error("EventSyncRepository:ListByStatus:Error", "status", status, "error", err)
		return nil, err
	}
	return rows, nil
}
