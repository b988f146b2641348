package service

import (
	"context"
	"strings"
	"time"

	"calendar-sync/core/errors"
	"calendar-sync/core/logger"
	"calendar-sync/core/utils"
	"calendar-sync/modules/calendar/dto"
	"calendar-sync/modules/calendar/entity"
	"calendar-sync/modules/calendar/provider"
	"calendar-sync/modules/calendar/repository"

	"github.com/google/uuid"
)

const (
	oauthStateTTL     = 10 * time.Minute
	defaultCalendarID = "primary"
)

// ConnectionService manages the lifecycle of an owner's calendar connections.
type ConnectionService interface {
	BeginConnect(ctx context.Context, ownerID uuid.UUID) (*dto.ConnectResponse, error)
	CompleteConnect(ctx context.Context, code, state string) (*dto.IntegrationResponse, error)
	ListIntegrations(ctx context.Context, ownerID uuid.UUID) ([]dto.IntegrationResponse, error)
	ListExternalCalendars(ctx context.Context, ownerID, integrationID uuid.UUID) ([]dto.ExternalCalendar, error)
	UpdateSettings(ctx context.Context, ownerID, integrationID uuid.UUID, req *dto.UpdateIntegrationRequest) (*dto.IntegrationResponse, error)
	Disconnect(ctx context.Context, ownerID, integrationID uuid.UUID) error
}

type connectionService struct {
	repo     repository.IntegrationRepository
	tokens   TokenService
	provider provider.Provider
	states   StateStore
	resync   Resyncer
}

func NewConnectionService(
	repo repository.IntegrationRepository,
	tokens TokenService,
	p provider.Provider,
	states StateStore,
	resync Resyncer,
) ConnectionService {
	return &connectionService{
		repo:     repo,
		tokens:   tokens,
		provider: p,
		states:   states,
		resync:   resync,
	}
}

func ToIntegrationResponse(integ *entity.CalendarIntegration) dto.IntegrationResponse {
	return dto.IntegrationResponse{
		ID:           integ.ID,
		Provider:     integ.Provider,
		CalendarID:   integ.CalendarID,
		SyncEnabled:  integ.SyncEnabled,
		Connected:    integ.HasCredentials(),
		LastSyncedAt: integ.LastSyncedAt,
		LastError:    integ.LastError,
		ConnectedAt:  integ.CreatedAt,
	}
}

func (s *connectionService) BeginConnect(ctx context.Context, ownerID uuid.UUID) (*dto.ConnectResponse, error) {
	state, err := utils.GenerateOAuthState()
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to generate state", err)
	}
	if err := s.states.SetOAuthState(ctx, state, ownerID, oauthStateTTL); err != nil {
		logger.Error("ConnectionService:BeginConnect:SetOAuthState:Error", "owner_id", ownerID, "error", err)
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to store state token", err)
	}
	return &dto.ConnectResponse{AuthURL: s.tokens.AuthCodeURL(state), State: state}, nil
}

func (s *connectionService) CompleteConnect(ctx context.Context, code, state string) (*dto.IntegrationResponse, error) {
	if strings.TrimSpace(state) == "" {
		return nil, errors.NewAppError(errors.ErrAuthExchange, "missing state, try connecting again", nil)
	}
	ownerID, ok, err := s.states.ConsumeOAuthState(ctx, state)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to validate state token", err)
	}
	if !ok {
		return nil, errors.NewAppError(errors.ErrAuthExchange, "invalid or expired state, try connecting again", nil)
	}

	tokens, err := s.tokens.Authorize(ctx, code)
	if err != nil {
		return nil, err
	}

	integ := &entity.CalendarIntegration{
		OwnerID:        ownerID,
		Provider:       s.provider.Name(),
		AccessToken:    tokens.AccessToken,
		TokenExpiresAt: tokens.Expiry,
		CalendarID:     defaultCalendarID,
		SyncEnabled:    true,
	}
	if tokens.RefreshToken != "" {
		integ.RefreshToken = &tokens.RefreshToken
	}
	if err := s.repo.Upsert(ctx, integ); err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to save calendar connection", err)
	}

	logger.Info("ConnectionService:CompleteConnect:Success", "owner_id", ownerID, "integration_id", integ.ID)
	s.requestResync(ctx, ownerID)

	resp := ToIntegrationResponse(integ)
	return &resp, nil
}

func (s *connectionService) requestResync(ctx context.Context, ownerID uuid.UUID) {
	if s.resync == nil {
		return
	}
	if err := s.resync.OwnerChanged(ctx, ownerID); err != nil {
		logger.Warn("ConnectionService:Resync:Error", "owner_id", ownerID, "error", err)
	}
}

func (s *connectionService) ListIntegrations(ctx context.Context, ownerID uuid.UUID) ([]dto.IntegrationResponse, error) {
	items, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to list calendar connections", err)
	}
	out := make([]dto.IntegrationResponse, 0, len(items))
	for i := range items {
		out = append(out, ToIntegrationResponse(&items[i]))
	}
	return out, nil
}

func (s *connectionService) owned(ctx context.Context, ownerID, integrationID uuid.UUID) (*entity.CalendarIntegration, error) {
	integ, err := s.repo.GetByID(ctx, integrationID)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to load calendar connection", err)
	}
	if integ == nil || integ.OwnerID != ownerID {
		return nil, errors.NewAppError(errors.ErrNotFound, "calendar connection not found", nil)
	}
	return integ, nil
}

func (s *connectionService) ListExternalCalendars(ctx context.Context, ownerID, integrationID uuid.UUID) ([]dto.ExternalCalendar, error) {
	integ, err := s.owned(ctx, ownerID, integrationID)
	if err != nil {
		return nil, err
	}
	if !integ.HasCredentials() {
		return nil, errors.NewAppError(errors.ErrCredentialExpired, "calendar is disconnected, reconnect your calendar", nil)
	}

	token, err := s.tokens.EnsureValid(ctx, integ)
	if err != nil {
		return nil, err
	}
	cals, err := s.provider.ListCalendars(ctx, token)
	if provider.IsUnauthorized(err) {
		if token, err = s.tokens.ForceRefresh(ctx, integ, token); err != nil {
			return nil, err
		}
		cals, err = s.provider.ListCalendars(ctx, token)
		if provider.IsUnauthorized(err) {
			return nil, errors.NewAppError(errors.ErrAuthExpired, "calendar rejected a refreshed token, reconnect your calendar", err)
		}
	}
	if err != nil {
		return nil, classify(err)
	}
	return cals, nil
}

func (s *connectionService) UpdateSettings(ctx context.Context, ownerID, integrationID uuid.UUID, req *dto.UpdateIntegrationRequest) (*dto.IntegrationResponse, error) {
	integ, err := s.owned(ctx, ownerID, integrationID)
	if err != nil {
		return nil, err
	}

	calendarID := integ.CalendarID
	if req.CalendarID != nil {
		calendarID = strings.TrimSpace(*req.CalendarID)
		if calendarID == "" {
			return nil, errors.NewAppError(errors.ErrInvalidInput, "calendar_id must not be empty", nil)
		}
	}
	syncEnabled := integ.SyncEnabled
	if req.SyncEnabled != nil {
		syncEnabled = *req.SyncEnabled
	}
	if syncEnabled && !integ.HasCredentials() {
		return nil, errors.NewAppError(errors.ErrCredentialExpired, "calendar is disconnected, reconnect your calendar", nil)
	}

	if err := s.repo.UpdateSettings(ctx, integ.ID, calendarID, syncEnabled); err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to update calendar connection", err)
	}

	changed := calendarID != integ.CalendarID || (syncEnabled && !integ.SyncEnabled)
	integ.CalendarID = calendarID
	integ.SyncEnabled = syncEnabled
	if changed && syncEnabled {
		s.requestResync(ctx, ownerID)
	}

	resp := ToIntegrationResponse(integ)
	return &resp, nil
}

// Disconnect revokes at the provider, then deletes the connection and its ledger.
func (s *connectionService) Disconnect(ctx context.Context, ownerID, integrationID uuid.UUID) error {
	integ, err := s.owned(ctx, ownerID, integrationID)
	if err != nil {
		return err
	}
	if err := s.tokens.Revoke(ctx, integ); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, ownerID, integ.ID); err != nil {
		return errors.NewAppError(errors.ErrInternalServer, "failed to delete calendar connection", err)
	}
	logger.Info("ConnectionService:Disconnect:Success", "owner_id", ownerID, "integration_id", integ.ID)
	return nil
}
