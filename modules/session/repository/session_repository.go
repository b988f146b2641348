package repository

import (
	"context"
	"database/sql"
	"errors"

	"calendar-sync/core/database"
	"calendar-sync/core/logger"
	"calendar-sync/core/params"
	"calendar-sync/modules/session/entity"

	"github.com/google/uuid"
)

const sessionColumns = `id, host_id, title, description, address, duration_minutes, status, timezone,
		       start_date, end_date, meeting_link, created_at, updated_at`

type SessionRepository interface {
	Create(ctx context.Context, s *entity.Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Session, error)
	ListByHost(ctx context.Context, hostID uuid.UUID, p params.QueryParams) ([]entity.Session, int, error)
	// ListScheduledByHost returns every session of hostID that has a start date.
	ListScheduledByHost(ctx context.Context, hostID uuid.UUID) ([]entity.Session, error)
	Update(ctx context.Context, s *entity.Session) error
	Delete(ctx context.Context, hostID, id uuid.UUID) (bool, error)
}

type sessionRepository struct {
	db database.Database
}

func NewSessionRepository(db database.Database) SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Create(ctx context.Context, s *entity.Session) error {
	query := `
		INSERT INTO sessions (host_id, title, description, address, duration_minutes, status, timezone,
		                      start_date, end_date, meeting_link)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		s.HostID, s.Title, s.Description, s.Address, s.DurationMinutes, s.Status, s.Timezone,
		s.StartDate, s.EndDate, s.MeetingLink,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		logger.Error("SessionRepository:Create:Error", "host_id", s.HostID, "error", err)
		return err
	}
	return nil
}

func (r *sessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`

	var s entity.Session
	if err := r.db.GetContext(ctx, &s, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		logger.Error("SessionRepository:GetByID:Error", "session_id", id, "error", err)
		return nil, err
	}
	return &s, nil
}

func (r *sessionRepository) ListByHost(ctx context.Context, hostID uuid.UUID, p params.QueryParams) ([]entity.Session, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM sessions WHERE host_id = $1`, hostID); err != nil {
		logger.Error("SessionRepository:ListByHost:Count:Error", "host_id", hostID, "error", err)
		return nil, 0, err
	}

	query := `SELECT ` + sessionColumns + ` FROM sessions
		WHERE host_id = $1
		ORDER BY start_date ASC NULLS LAST, created_at DESC
		LIMIT $2 OFFSET $3`

	var sessions []entity.Session
	if err := r.db.SelectContext(ctx, &sessions, query, hostID, p.PageSize, p.Offset()); err != nil {
		logger.Error("SessionRepository:ListByHost:Error", "host_id", hostID, "error", err)
		return nil, 0, err
	}
	return sessions, total, nil
}

func (r *sessionRepository) ListScheduledByHost(ctx context.Context, hostID uuid.UUID) ([]entity.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions
		WHERE host_id = $1 AND start_date IS NOT NULL
		ORDER BY start_date ASC`

	var sessions []entity.Session
	if err := r.db.SelectContext(ctx, &sessions, query, hostID); err != nil {
		logger.Error("SessionRepository:ListScheduledByHost:Error", "host_id", hostID, "error", err)
		return nil, err
	}
	return sessions, nil
}

func (r *sessionRepository) Update(ctx context.Context, s *entity.Session) error {
	query := `
		UPDATE sessions
		SET title = $2, description = $3, address = $4, duration_minutes = $5, status = $6,
		    timezone = $7, start_date = $8, end_date = $9, meeting_link = $10, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		s.ID, s.Title, s.Description, s.Address, s.DurationMinutes, s.Status,
		s.Timezone, s.StartDate, s.EndDate, s.MeetingLink,
	).Scan(&s.UpdatedAt)
	if err != nil {
		logger.Error("SessionRepository:Update:Error", "session_id", s.ID, "error", err)
		return err
	}
	return nil
}

func (r *sessionRepository) Delete(ctx context.Context, hostID, id uuid.UUID) (bool, error) {
	res, err := r.db.ExecResultContext(ctx, `DELETE FROM sessions WHERE id = $1 AND host_id = $2`, id, hostID)
	if err != nil {
		logger.Error("SessionRepository:Delete:Error", "session_id", id, "error", err)
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
