package service

import (
	"context"
	"strings"

	"calendar-sync/core/errors"
	"calendar-sync/core/logger"
	"calendar-sync/core/params"
	calendarService "calendar-sync/modules/calendar/service"
	"calendar-sync/modules/notification/dto"
	"calendar-sync/modules/notification/entity"
	"calendar-sync/modules/notification/repository"

	"github.com/google/uuid"
)

var calendarAlertTitles = map[calendarService.AlertKind]string{
	calendarService.AlertReconnectRequired: "Reconnect your calendar",
	calendarService.AlertSyncDegraded:      "Calendar sync is failing",
}

type NotificationService struct {
	repo repository.NotificationRepository
}

func NewNotificationService(repo repository.NotificationRepository) *NotificationService {
	return &NotificationService{repo: repo}
}

func (s *NotificationService) Create(ctx context.Context, req *dto.CreateNotificationRequest) error {
	notif := &entity.Notification{
		UserID:  req.UserID,
		Title:   req.Title,
		Message: req.Message,
		Type:    req.Type,
		Data:    entity.JSONB(req.Data),
	}
	return s.repo.Create(ctx, notif)
}

// CalendarAlert tells the owner an integration stopped syncing. An unread
// alert of the same kind is not repeated.
func (s *NotificationService) CalendarAlert(ctx context.Context, ownerID uuid.UUID, kind calendarService.AlertKind, message string) error {
	pending, err := s.repo.HasUnread(ctx, ownerID, string(kind))
	if err != nil {
		return err
	}
	if pending {
		logger.Debug("NotificationService:CalendarAlert:Pending", "user_id", ownerID, "kind", kind)
		return nil
	}

	title, ok := calendarAlertTitles[kind]
	if !ok {
		title = "Calendar"
	}
	err = s.Create(ctx, &dto.CreateNotificationRequest{
		UserID:  ownerID,
		Title:   title,
		Message: message,
		Type:    string(kind),
		Data:    map[string]any{"kind": string(kind)},
	})
	if err != nil {
		return err
	}
	logger.Info("NotificationService:CalendarAlert:Created", "user_id", ownerID, "kind", kind)
	return nil
}

func (s *NotificationService) GetMyNotifications(ctx context.Context, userID uuid.UUID, queryParams params.QueryParams) (*entity.PaginatedNotificationEntity, error) {
	return s.repo.GetByUserID(ctx, userID, queryParams)
}

func (s *NotificationService) MarkAsRead(ctx context.Context, userID uuid.UUID, ids []string) error {
	parsed := make([]uuid.UUID, 0, len(ids))
	for _, raw := range ids {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			return errors.NewAppError(errors.ErrInvalidInput, "invalid notification id "+raw, err)
		}
		parsed = append(parsed, id)
	}
	return s.repo.MarkAsRead(ctx, userID, parsed)
}

func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID uuid.UUID) error {
	return s.repo.MarkAllAsRead(ctx, userID)
}

func (s *NotificationService) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.CountUnread(ctx, userID)
}
