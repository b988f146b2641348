package service

import (
	"context"
	"strings"
	"time"

	"calendar-sync/core/entity"
	"calendar-sync/core/errors"
	"calendar-sync/core/logger"
	"calendar-sync/core/params"
	calendarDto "calendar-sync/modules/calendar/dto"
	"calendar-sync/modules/session/dto"
	sessionEntity "calendar-sync/modules/session/entity"
	"calendar-sync/modules/session/repository"

	"github.com/google/uuid"
)

// ChangeNotifier is told about every session write after it commits.
type ChangeNotifier interface {
	EntityChanged(ctx context.Context, ref calendarDto.EntityRef) error
}

type SessionService interface {
	Create(ctx context.Context, hostID uuid.UUID, req *dto.CreateSessionRequest) (*dto.SessionResponse, *errors.AppError)
	Get(ctx context.Context, hostID, id uuid.UUID) (*dto.SessionResponse, *errors.AppError)
	ListMine(ctx context.Context, hostID uuid.UUID, p params.QueryParams) (*entity.Pagination[dto.SessionResponse], *errors.AppError)
	Update(ctx context.Context, hostID, id uuid.UUID, req *dto.UpdateSessionRequest) (*dto.SessionResponse, *errors.AppError)
	Reschedule(ctx context.Context, hostID, id uuid.UUID, req *dto.RescheduleSessionRequest) (*dto.SessionResponse, *errors.AppError)
	Confirm(ctx context.Context, hostID, id uuid.UUID) (*dto.SessionResponse, *errors.AppError)
	Cancel(ctx context.Context, hostID, id uuid.UUID) (*dto.SessionResponse, *errors.AppError)
	Delete(ctx context.Context, hostID, id uuid.UUID) *errors.AppError
}

type sessionService struct {
	repo            repository.SessionRepository
	notifier        ChangeNotifier
	defaultTimezone string
}

func NewSessionService(repo repository.SessionRepository, notifier ChangeNotifier, defaultTimezone string) SessionService {
	if defaultTimezone == "" {
		defaultTimezone = "UTC"
	}
	return &sessionService{repo: repo, notifier: notifier, defaultTimezone: defaultTimezone}
}

func validTimezone(name string) bool {
	_, err := time.LoadLocation(name)
	return err == nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// changed hands the write to the calendar subsystem. Its failure never
// fails the session write.
func (s *sessionService) changed(ctx context.Context, sess *sessionEntity.Session) {
	if s.notifier == nil {
		return
	}
	ref := calendarDto.EntityRef{Type: EntityType, ID: sess.ID.String(), OwnerID: sess.HostID}
	if err := s.notifier.EntityChanged(ctx, ref); err != nil {
		logger.Warn("SessionService:Notify:Error", "session_id", sess.ID, "error", err)
	}
}

func (s *sessionService) owned(ctx context.Context, hostID, id uuid.UUID) (*sessionEntity.Session, *errors.AppError) {
	sess, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "Failed to get session", err)
	}
	if sess == nil || sess.HostID != hostID {
		return nil, errors.NewAppError(errors.ErrNotFound, "Session not found", nil)
	}
	return sess, nil
}

func (s *sessionService) Create(ctx context.Context, hostID uuid.UUID, req *dto.CreateSessionRequest) (*dto.SessionResponse, *errors.AppError) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "title is required", nil)
	}
	if req.DurationMinutes < 0 {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "duration_minutes must not be negative", nil)
	}
	tz := req.Timezone
	if tz == "" {
		tz = s.defaultTimezone
	}
	if !validTimezone(tz) {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "unknown timezone "+tz, nil)
	}
	if req.StartDate != nil && req.EndDate != nil && !req.EndDate.After(*req.StartDate) {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "end_date must be after start_date", nil)
	}

	sess := &sessionEntity.Session{
		HostID:          hostID,
		Title:           strings.TrimSpace(req.Title),
		Description:     optional(req.Description),
		Address:         optional(req.Address),
		MeetingLink:     optional(req.MeetingLink),
		DurationMinutes: req.DurationMinutes,
		Status:          sessionEntity.SessionStatusPending,
		Timezone:        tz,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
	}
	if req.StartDate != nil {
		sess.Status = sessionEntity.SessionStatusScheduled
	}

	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "Failed to create session", err)
	}
	logger.Info("SessionService:Create:Success", "session_id", sess.ID, "host_id", hostID)
	s.changed(ctx, sess)

	resp := dto.ToSessionResponse(sess)
	return &resp, nil
}

func (s *sessionService) Get(ctx context.Context, hostID, id uuid.UUID) (*dto.SessionResponse, *errors.AppError) {
	sess, appErr := s.owned(ctx, hostID, id)
	if appErr != nil {
		return nil, appErr
	}
	resp := dto.ToSessionResponse(sess)
	return &resp, nil
}

func (s *sessionService) ListMine(ctx context.Context, hostID uuid.UUID, p params.QueryParams) (*entity.Pagination[dto.SessionResponse], *errors.AppError) {
	sessions, total, err := s.repo.ListByHost(ctx, hostID, p)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "Failed to list sessions", err)
	}
	items := make([]dto.SessionResponse, 0, len(sessions))
	for i := range sessions {
		items = append(items, dto.ToSessionResponse(&sessions[i]))
	}
	return entity.NewPagination(items, total, p.PageNumber, p.PageSize), nil
}

func (s *sessionService) save(ctx context.Context, sess *sessionEntity.Session, op string) (*dto.SessionResponse, *errors.AppError) {
	if err := s.repo.Update(ctx, sess); err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "Failed to update session", err)
	}
	logger.Info("SessionService:"+op+":Success", "session_id", sess.ID, "status", sess.Status)
	s.changed(ctx, sess)

	resp := dto.ToSessionResponse(sess)
	return &resp, nil
}

func (s *sessionService) Update(ctx context.Context, hostID, id uuid.UUID, req *dto.UpdateSessionRequest) (*dto.SessionResponse, *errors.AppError) {
	sess, appErr := s.owned(ctx, hostID, id)
	if appErr != nil {
		return nil, appErr
	}

	if req.Title != nil {
		if strings.TrimSpace(*req.Title) == "" {
			return nil, errors.NewAppError(errors.ErrInvalidInput, "title must not be empty", nil)
		}
		sess.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		sess.Description = optional(*req.Description)
	}
	if req.Address != nil {
		sess.Address = optional(*req.Address)
	}
	if req.MeetingLink != nil {
		sess.MeetingLink = optional(*req.MeetingLink)
	}
	if req.DurationMinutes != nil {
		if *req.DurationMinutes < 0 {
			return nil, errors.NewAppError(errors.ErrInvalidInput, "duration_minutes must not be negative", nil)
		}
		sess.DurationMinutes = *req.DurationMinutes
	}
	return s.save(ctx, sess, "Update")
}

// Reschedule moves the session. A cancelled session must be booked again.
func (s *sessionService) Reschedule(ctx context.Context, hostID, id uuid.UUID, req *dto.RescheduleSessionRequest) (*dto.SessionResponse, *errors.AppError) {
	sess, appErr := s.owned(ctx, hostID, id)
	if appErr != nil {
		return nil, appErr
	}
	if sess.Status == sessionEntity.SessionStatusCancelled {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "cancelled session cannot be rescheduled", nil)
	}
	if req.StartDate.IsZero() {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "start_date is required", nil)
	}
	if req.EndDate != nil && !req.EndDate.After(req.StartDate) {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "end_date must be after start_date", nil)
	}
	if req.Timezone != "" {
		if !validTimezone(req.Timezone) {
			return nil, errors.NewAppError(errors.ErrInvalidInput, "unknown timezone "+req.Timezone, nil)
		}
		sess.Timezone = req.Timezone
	}

	start := req.StartDate
	sess.StartDate = &start
	sess.EndDate = req.EndDate
	sess.Status = sessionEntity.SessionStatusScheduled
	return s.save(ctx, sess, "Reschedule")
}

func (s *sessionService) Confirm(ctx context.Context, hostID, id uuid.UUID) (*dto.SessionResponse, *errors.AppError) {
	sess, appErr := s.owned(ctx, hostID, id)
	if appErr != nil {
		return nil, appErr
	}
	if sess.StartDate == nil {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "session has no start date", nil)
	}
	if sess.Status == sessionEntity.SessionStatusCancelled {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "cancelled session cannot be confirmed", nil)
	}
	sess.Status = sessionEntity.SessionStatusScheduled
	return s.save(ctx, sess, "Confirm")
}

func (s *sessionService) Cancel(ctx context.Context, hostID, id uuid.UUID) (*dto.SessionResponse, *errors.AppError) {
	sess, appErr := s.owned(ctx, hostID, id)
	if appErr != nil {
		return nil, appErr
	}
	if sess.Status == sessionEntity.SessionStatusCancelled {
		resp := dto.ToSessionResponse(sess)
		return &resp, nil
	}
	sess.Status = sessionEntity.SessionStatusCancelled
	return s.save(ctx, sess, "Cancel")
}

func (s *sessionService) Delete(ctx context.Context, hostID, id uuid.UUID) *errors.AppError {
	sess, appErr := s.owned(ctx, hostID, id)
	if appErr != nil {
		return appErr
	}
	deleted, err := s.repo.Delete(ctx, hostID, id)
	if err != nil {
		return errors.NewAppError(errors.ErrInternalServer, "Failed to delete session", err)
	}
	if !deleted {
		return errors.NewAppError(errors.ErrNotFound, "Session not found", nil)
	}
	logger.Info("SessionService:Delete:Success", "session_id", id, "host_id", hostID)
	s.changed(ctx, sess)
	return nil
}
