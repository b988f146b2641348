package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"calendar-sync/core/database"
	"calendar-sync/core/logger"
	"calendar-sync/modules/calendar/entity"

	"github.com/google/uuid"
)

// IntegrationRepository is the credential store. Every write touches a single row.
type IntegrationRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.CalendarIntegration, error)
	GetByOwnerAndProvider(ctx context.Context, ownerID uuid.UUID, provider string) (*entity.CalendarIntegration, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]entity.CalendarIntegration, error)
	Upsert(ctx context.Context, integ *entity.CalendarIntegration) error
	UpdateTokens(ctx context.Context, id uuid.UUID, accessToken string, refreshToken *string, expiresAt time.Time) error
	Disable(ctx context.Context, id uuid.UUID, reason string) error
	RecordError(ctx context.Context, id uuid.UUID, message string) error
	MarkSyncSuccess(ctx context.Context, id uuid.UUID, at time.Time) error
	ClearCredentials(ctx context.Context, id uuid.UUID) error
	UpdateSettings(ctx context.Context, id uuid.UUID, calendarID string, syncEnabled bool) error
	Delete(ctx context.Context, ownerID, id uuid.UUID) error
}

type integrationRepository struct {
	db database.Database
}

func NewIntegrationRepository(db database.Database) IntegrationRepository {
	return &integrationRepository{db: db}
}

const integrationColumns = `id, owner_id, provider, access_token, refresh_token, token_expires_at,
	calendar_id, sync_enabled, last_synced_at, last_error, created_at, updated_at`

func (r *integrationRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.CalendarIntegration, error) {
	query := `SELECT ` + integrationColumns + ` FROM calendar_integrations WHERE id = $1`

	var integ entity.CalendarIntegration
	if err := r.db.GetContext(ctx, &integ, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		logger.Error("IntegrationRepository:GetByID:Error", "id", id, "error", err)
		return nil, err
	}
	return &integ, nil
}

func (r *integrationRepository) GetByOwnerAndProvider(ctx context.Context, ownerID uuid.UUID, provider string) (*entity.CalendarIntegration, error) {
	query := `SELECT ` + integrationColumns + ` FROM calendar_integrations WHERE owner_id = $1 AND provider = $2`

	var integ entity.CalendarIntegration
	if err := r.db.GetContext(ctx, &integ, query, ownerID, provider); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		logger.Error("IntegrationRepository:GetByOwnerAndProvider:Error", "owner_id", ownerID, "error", err)
		return nil, err
	}
	return &integ, nil
}

func (r *integrationRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]entity.CalendarIntegration, error) {
	query := `SELECT ` + integrationColumns + `
		FROM calendar_integrations
		WHERE owner_id = $1
		ORDER BY created_at ASC`

	var items []entity.CalendarIntegration
	if err := r.db.SelectContext(ctx, &items, query, ownerID); err != nil {
		logger.Error("IntegrationRepository:ListByOwner:Error", "owner_id", ownerID, "error", err)
		return nil, err
	}
	return items, nil
}

// Upsert stores a freshly authorized connection. A missing refresh token keeps
// the stored one, since providers only send it on first consent.
func (r *integrationRepository) Upsert(ctx context.Context, integ *entity.CalendarIntegration) error {
	query := `
		INSERT INTO calendar_integrations (owner_id, provider, access_token, refresh_token, token_expires_at, calendar_id, sync_enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (owner_id, provider) DO UPDATE SET
			access_token     = EXCLUDED.access_token,
			refresh_token    = COALESCE(EXCLUDED.refresh_token, calendar_integrations.refresh_token),
			token_expires_at = EXCLUDED.token_expires_at,
			sync_enabled     = EXCLUDED.sync_enabled,
			last_error       = NULL,
			updated_at       = NOW()
		RETURNING id, calendar_id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		integ.OwnerID, integ.Provider, integ.AccessToken, integ.RefreshToken,
		integ.TokenExpiresAt, integ.CalendarID, integ.SyncEnabled,
	).Scan(&integ.ID, &integ.CalendarID, &integ.CreatedAt, &integ.UpdatedAt)
	if err != nil {
		logger.Error("IntegrationRepository:Upsert:Error", "owner_id", integ.OwnerID, "error", err)
		return err
	}
	integ.LastError = nil
	return nil
}

func (r *integrationRepository) UpdateTokens(ctx context.Context, id uuid.UUID, accessToken string, refreshToken *string, expiresAt time.Time) error {
	query := `
		UPDATE calendar_integrations
		SET access_token = $2, refresh_token = COALESCE($3, refresh_token), token_expires_at = $4, updated_at = NOW()
		WHERE id = $1
	`
	if err := r.db.ExecContext(ctx, query, id, accessToken, refreshToken, expiresAt); err != nil {
		logger.Error("IntegrationRepository:UpdateTokens:Error", "id", id, "error", err)
		return err
	}
	return nil
}

func (r *integrationRepository) Disable(ctx context.Context, id uuid.UUID, reason string) error {
	query := `
		UPDATE calendar_integrations
		SET sync_enabled = FALSE, last_error = $2, updated_at = NOW()
		WHERE id = $1
	`
	if err := r.db.ExecContext(ctx, query, id, reason); err != nil {
		logger.Error("IntegrationRepository:Disable:Error", "id", id, "error", err)
		return err
	}
	return nil
}

func (r *integrationRepository) RecordError(ctx context.Context, id uuid.UUID, message string) error {
	query := `UPDATE calendar_integrations SET last_error = $2, updated_at = NOW() WHERE id = $1`
	if err := r.db.ExecContext(ctx, query, id, message); err != nil {
		logger.Error("IntegrationRepository:RecordError:Error", "id", id, "error", err)
		return err
	}
	return nil
}

func (r *integrationRepository) MarkSyncSuccess(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE calendar_integrations SET last_synced_at = $2, last_error = NULL, updated_at = NOW() WHERE id = $1`
	if err := r.db.ExecContext(ctx, query, id, at); err != nil {
		logger.Error("IntegrationRepository:MarkSyncSuccess:Error", "id", id, "error", err)
		return err
	}
	return nil
}

func (r *integrationRepository) ClearCredentials(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE calendar_integrations
		SET access_token = '', refresh_token = NULL, token_expires_at = 'epoch', sync_enabled = FALSE, updated_at = NOW()
		WHERE id = $1
	`
	if err := r.db.ExecContext(ctx, query, id); err != nil {
		logger.Error("IntegrationRepository:ClearCredentials:Error", "id", id, "error", err)
		return err
	}
	return nil
}

func (r *integrationRepository) UpdateSettings(ctx context.Context, id uuid.UUID, calendarID string, syncEnabled bool) error {
	query := `
		UPDATE calendar_integrations
		SET calendar_id = $2, sync_enabled = $3, updated_at = NOW()
		WHERE id = $1
	`
	if err := r.db.ExecContext(ctx, query, id, calendarID, syncEnabled); err != nil {
		logger.Error("IntegrationRepository:UpdateSettings:Error", "id", id, "error", err)
		return err
	}
	return nil
}

// Delete removes the connection; its ledger rows go with it.
func (r *integrationRepository) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	query := `DELETE FROM calendar_integrations WHERE id = $1 AND owner_id = $2`
	if err := r.db.ExecContext(ctx, query, id, ownerID); err != nil {
		logger.Error("IntegrationRepository:Delete:Error", "id", id, "error", err)
		return err
	}
	return nil
}
