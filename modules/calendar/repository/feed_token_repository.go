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

type FeedTokenRepository interface {
	Create(ctx context.Context, token *entity.CalendarFeedToken) error
	GetByHash(ctx context.Context, tokenHash string) (*entity.CalendarFeedToken, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]entity.CalendarFeedToken, error)
	// Delete reports whether a token was removed.
	Delete(ctx context.Context, ownerID, id uuid.UUID) (bool, error)
}

type feedTokenRepository struct {
	db database.Database
}

func NewFeedTokenRepository(db database.Database) FeedTokenRepository {
	return &feedTokenRepository{db: db}
}

func (r *feedTokenRepository) Create(ctx context.Context, token *entity.CalendarFeedToken) error {
	query := `
		INSERT INTO calendar_feed_tokens (owner_id, token_hash, label, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query, token.OwnerID, token.TokenHash, token.Label, token.ExpiresAt).
		Scan(&token.ID, &token.CreatedAt)
	if err != nil {
		logger.Error("FeedTokenRepository:Create:Error", "owner_id", token.OwnerID, "error", err)
		return err
	}
	return nil
}

func (r *feedTokenRepository) GetByHash(ctx context.Context, tokenHash string) (*entity.CalendarFeedToken, error) {
	query := `
		SELECT id, owner_id, token_hash, label, expires_at, created_at
		FROM calendar_feed_tokens
		WHERE token_hash = $1
	`
	var token entity.CalendarFeedToken
	if err := r.db.GetContext(ctx, &token, query, tokenHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		logger.Error("FeedTokenRepository:GetByHash:Error", "error", err)
		return nil, err
	}
	return &token, nil
}

func (r *feedTokenRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]entity.CalendarFeedToken, error) {
	query := `
		SELECT id, owner_id, token_hash, label, expires_at, created_at
		FROM calendar_feed_tokens
		WHERE owner_id = $1
		ORDER BY created_at DESC
	`
	var tokens []entity.CalendarFeedToken
	if err := r.db.SelectContext(ctx, &tokens, query, ownerID); err != nil {
		logger.Error("FeedTokenRepository:ListByOwner:Error", "owner_id", ownerID, "error", err)
		return nil, err
	}
	return tokens, nil
}

func (r *feedTokenRepository) Delete(ctx context.Context, ownerID, id uuid.UUID) (bool, error) {
	res, err := r.db.ExecResultContext(ctx, `DELETE FROM calendar_feed_tokens WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		logger.Error("FeedTokenRepository:Delete:Error", "id", id, "error", err)
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
