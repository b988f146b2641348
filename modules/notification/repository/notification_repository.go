package repository

import (
	"context"

	"calendar-sync/core/database"
	"calendar-sync/core/entity"
	"calendar-sync/core/logger"
	"calendar-sync/core/params"
	notificationEntity "calendar-sync/modules/notification/entity"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const notificationColumns = `id, user_id, title, message, type, data, is_read, created_at, updated_at`

type NotificationRepository interface {
	Create(ctx context.Context, n *notificationEntity.Notification) error
	GetByUserID(ctx context.Context, userID uuid.UUID, p params.QueryParams) (*notificationEntity.PaginatedNotificationEntity, error)
	// HasUnread reports whether userID has an unread notification of type t.
	HasUnread(ctx context.Context, userID uuid.UUID, t string) (bool, error)
	MarkAsRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) error
	MarkAllAsRead(ctx context.Context, userID uuid.UUID) error
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
}

type notificationRepository struct {
	db database.Database
}

func NewNotificationRepository(db database.Database) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, n *notificationEntity.Notification) error {
	query := `
		INSERT INTO notifications (title, message, type, data, user_id, is_read)
		VALUES (:title, :message, :type, :data, :user_id, :is_read)
		RETURNING id, created_at, updated_at
	`
	rows, err := r.db.NamedQueryContext(ctx, query, n)
	if err != nil {
		logger.Error("NotificationRepository:Create:Error", "user_id", n.UserID, "error", err)
		return err
	}
	defer rows.Close()

	if rows.Next() {
		return rows.Scan(&n.ID, &n.CreatedAt, &n.UpdatedAt)
	}
	return rows.Err()
}

func (r *notificationRepository) GetByUserID(ctx context.Context, userID uuid.UUID, p params.QueryParams) (*notificationEntity.PaginatedNotificationEntity, error) {
	baseQuery := `FROM notifications WHERE user_id = $1`

	var totalItems int
	if err := r.db.GetContext(ctx, &totalItems, "SELECT COUNT(*) "+baseQuery, userID); err != nil {
		logger.Error("NotificationRepository:GetByUserID:Count:Error", "user_id", userID, "error", err)
		return nil, err
	}

	query := `SELECT ` + notificationColumns + ` ` + baseQuery + `
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	var notifications []notificationEntity.Notification
	if err := r.db.SelectContext(ctx, &notifications, query, userID, p.PageSize, p.Offset()); err != nil {
		logger.Error("NotificationRepository:GetByUserID:Select:Error", "user_id", userID, "error", err)
		return nil, err
	}

	return entity.NewPagination(notifications, totalItems, p.PageNumber, p.PageSize), nil
}

func (r *notificationRepository) HasUnread(ctx context.Context, userID uuid.UUID, t string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM notifications WHERE user_id = $1 AND type = $2 AND is_read = FALSE)`
	if err := r.db.GetContext(ctx, &exists, query, userID, t); err != nil {
		logger.Error("NotificationRepository:HasUnread:Error", "user_id", userID, "error", err)
		return false, err
	}
	return exists, nil
}

func (r *notificationRepository) MarkAsRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	query, args, err := sqlx.In(`UPDATE notifications SET is_read = TRUE, updated_at = NOW() WHERE user_id = ? AND id IN (?)`, userID, ids)
	if err != nil {
		return err
	}
	query = r.db.SQLx().Rebind(query)
	if err := r.db.ExecContext(ctx, query, args...); err != nil {
		logger.Error("NotificationRepository:MarkAsRead:Error", "user_id", userID, "error", err)
		return err
	}
	return nil
}

func (r *notificationRepository) MarkAllAsRead(ctx context.Context, userID uuid.UUID) error {
	query := `UPDATE notifications SET is_read = TRUE, updated_at = NOW() WHERE user_id = $1 AND is_read = FALSE`
	if err := r.db.ExecContext(ctx, query, userID); err != nil {
		logger.Error("NotificationRepository:MarkAllAsRead:Error", "user_id", userID, "error", err)
		return err
	}
	return nil
}

func (r *notificationRepository) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE`
	if err := r.db.GetContext(ctx, &count, query, userID); err != nil {
		logger.Error("NotificationRepository:CountUnread:Error", "user_id", userID, "error", err)
		return 0, err
	}
	return count, nil
}
