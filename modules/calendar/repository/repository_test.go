package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"calendar-sync/core/database"
	"calendar-sync/modules/calendar/entity"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (database.Database, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return database.NewFromSQLx(sqlx.NewDb(db, "postgres")), mock
}

var integrationCols = []string{
	"id", "owner_id", "provider", "access_token", "refresh_token", "token_expires_at",
	"calendar_id", "sync_enabled", "last_synced_at", "last_error", "created_at", "updated_at",
}

func TestIntegrationRepository_GetByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewIntegrationRepository(db)
	ctx := context.Background()

	id, owner := uuid.New(), uuid.New()
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM calendar_integrations WHERE id = $1")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(integrationCols).
			AddRow(id.String(), owner.String(), "google", "at", "rt", now, "primary", true, nil, nil, now, now))

	integ, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, integ)
	assert.Equal(t, owner, integ.OwnerID)
	assert.Equal(t, "rt", *integ.RefreshToken)
	assert.True(t, integ.SyncEnabled)
	assert.Nil(t, integ.LastError)

	mock.ExpectQuery(regexp.QuoteMeta("FROM calendar_integrations WHERE id = $1")).
		WithArgs(id).
		WillReturnError(sql.ErrNoRows)
	integ, err = repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, integ)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIntegrationRepository_Upsert(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewIntegrationRepository(db)

	integ := &entity.CalendarIntegration{
		OwnerID:        uuid.New(),
		Provider:       "google",
		AccessToken:    "at",
		TokenExpiresAt: time.Now().Add(time.Hour),
		CalendarID:     "primary",
		SyncEnabled:    true,
	}
	id := uuid.New()
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (owner_id, provider) DO UPDATE")).
		WithArgs(integ.OwnerID, "google", "at", nil, integ.TokenExpiresAt, "primary", true).
		WillReturnRows(sqlmock.NewRows([]string{"id", "calendar_id", "created_at", "updated_at"}).
			AddRow(id.String(), "work@example.com", now, now))

	require.NoError(t, repo.Upsert(context.Background(), integ))
	assert.Equal(t, id, integ.ID)
	assert.Equal(t, "work@example.com", integ.CalendarID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIntegrationRepository_Writes(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewIntegrationRepository(db)
	ctx := context.Background()
	id := uuid.New()
	exp := time.Now().Add(time.Hour)

	mock.ExpectExec(regexp.QuoteMeta("SET access_token = $2, refresh_token = COALESCE($3, refresh_token)")).
		WithArgs(id, "new", nil, exp).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("SET sync_enabled = FALSE, last_error = $2")).
		WithArgs(id, "refresh token revoked").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("SET access_token = '', refresh_token = NULL")).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateTokens(ctx, id, "new", nil, exp))
	require.NoError(t, repo.Disable(ctx, id, "refresh token revoked"))
	require.NoError(t, repo.ClearCredentials(ctx, id))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventSyncRepository_GetAndUpsert(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEventSyncRepository(db)
	ctx := context.Background()
	integID := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE integration_id = $1 AND entity_type = $2 AND entity_id = $3")).
		WithArgs(integID, "session", "e1").
		WillReturnError(sql.ErrNoRows)
	row, err := repo.Get(ctx, integID, "session", "e1")
	require.NoError(t, err)
	assert.Nil(t, row)

	ext := "evt123"
	now := time.Now()
	newRow := &entity.CalendarEventSync{
		IntegrationID:   integID,
		EntityType:      "session",
		EntityID:        "e1",
		ExternalEventID: &ext,
		CalendarID:      "work",
		ContentHash:     "abc",
		LastSyncedAt:    &now,
		Status:          entity.SyncStatusSynced,
	}
	rowID := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (integration_id, entity_type, entity_id) DO UPDATE")).
		WithArgs(integID, "session", "e1", &ext, "abc", &now, entity.SyncStatusSynced, nil, "work").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(rowID.String(), now, now))
	require.NoError(t, repo.Upsert(ctx, newRow))
	assert.Equal(t, rowID, newRow.ID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventSyncRepository_MarkErrorKeepsExternalID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEventSyncRepository(db)
	integID := uuid.New()

	mock.ExpectExec(`(?s)INSERT INTO calendar_event_syncs .*status\s+= 'error',\s+last_error = EXCLUDED.last_error`).
		WithArgs(integID, "session", "e1", "boom").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("SET external_event_id = NULL, status = 'deleted'")).
		WithArgs(integID, "session", "e1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkError(context.Background(), integID, "session", "e1", "boom"))
	require.NoError(t, repo.MarkDeleted(context.Background(), integID, "session", "e1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFeedTokenRepository(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewFeedTokenRepository(db)
	ctx := context.Background()
	owner, id := uuid.New(), uuid.New()
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO calendar_feed_tokens")).
		WithArgs(owner, "digest", "phone", nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(id.String(), now))
	tok := &entity.CalendarFeedToken{OwnerID: owner, TokenHash: "digest", Label: "phone"}
	require.NoError(t, repo.Create(ctx, tok))
	assert.Equal(t, id, tok.ID)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE token_hash = $1")).
		WithArgs("digest").
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "token_hash", "label", "expires_at", "created_at"}).
			AddRow(id.String(), owner.String(), "digest", "phone", nil, now))
	got, err := repo.GetByHash(ctx, "digest")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, owner, got.OwnerID)
	assert.Nil(t, got.ExpiresAt)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM calendar_feed_tokens WHERE id = $1 AND owner_id = $2")).
		WithArgs(id, owner).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM calendar_feed_tokens WHERE id = $1 AND owner_id = $2")).
		WithArgs(id, owner).
		WillReturnResult(sqlmock.NewResult(0, 0))

	deleted, err := repo.Delete(ctx, owner, id)
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = repo.Delete(ctx, owner, id)
	require.NoError(t, err)
	assert.False(t, deleted)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventSyncRepository_ListByStatus(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEventSyncRepository(db)
	integID, rowID := uuid.New(), uuid.New()
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("JOIN calendar_integrations i ON i.id = s.integration_id WHERE s.status = $1 AND i.sync_enabled = TRUE")).
		WithArgs(entity.SyncStatusError, 50).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "integration_id", "entity_type", "entity_id", "external_event_id", "calendar_id", "content_hash",
			"last_synced_at", "status", "last_error", "created_at", "updated_at",
		}).AddRow(rowID.String(), integID.String(), "session", "e1", nil, "", "", nil, "error", "boom", now, now))

	rows, err := repo.ListByStatus(context.Background(), entity.SyncStatusError, 50)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, entity.SyncStatusError, rows[0].Status)
	assert.Nil(t, rows[0].ExternalEventID)
	assert.Equal(t, "boom", *rows[0].LastError)
	require.NoError(t, mock.ExpectationsWereMet())
}
