package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"calendar-sync/core/errors"
	"calendar-sync/core/logger"
	"calendar-sync/modules/calendar/dto"
	"calendar-sync/modules/calendar/entity"
	"calendar-sync/modules/calendar/mapper"
	"calendar-sync/modules/calendar/provider"
	"calendar-sync/modules/calendar/repository"

	"github.com/google/uuid"
)

const defaultLockTTL = time.Minute

type SyncOptions struct {
	Map mapper.MapOptions
	// LockTTL bounds how long a crashed worker can block one (integration, entity) pair.
	LockTTL time.Duration
}

// SyncService mirrors domain entities into push providers. Failures are
// recorded on the ledger and the integration and returned as results; they
// never roll back the domain write that triggered them.
type SyncService interface {
	Push(ctx context.Context, integrationID uuid.UUID, ent *dto.SchedulableEntity) (dto.SyncResult, error)
	Remove(ctx context.Context, integrationID uuid.UUID, ref dto.EntityRef) (dto.SyncResult, error)
	// FanOut converges every integration of the entity's owner on its current state.
	FanOut(ctx context.Context, ref dto.EntityRef) ([]dto.SyncResult, error)
	// SyncOwner pushes every visible entity of ownerID.
	SyncOwner(ctx context.Context, ownerID uuid.UUID) ([]dto.SyncResult, error)
	// Reconcile retries up to limit ledger rows in error.
	Reconcile(ctx context.Context, limit int) ([]dto.SyncResult, error)
}

type syncService struct {
	integrations repository.IntegrationRepository
	ledger       repository.EventSyncRepository
	tokens       TokenService
	providers    map[string]provider.Provider
	sources      map[string]EntitySource
	locker       Locker
	alerter      Alerter
	opts         SyncOptions
	now          func() time.Time
}

func NewSyncService(
	integrations repository.IntegrationRepository,
	ledger repository.EventSyncRepository,
	tokens TokenService,
	providers []provider.Provider,
	sources []EntitySource,
	locker Locker,
	alerter Alerter,
	opts SyncOptions,
) SyncService {
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaultLockTTL
	}
	if locker == nil {
		locker = NewLocalLocker()
	}
	s := &syncService{
		integrations: integrations,
		ledger:       ledger,
		tokens:       tokens,
		providers:    make(map[string]provider.Provider, len(providers)),
		sources:      make(map[string]EntitySource, len(sources)),
		locker:       locker,
		alerter:      alerter,
		opts:         opts,
		now:          time.Now,
	}
	for _, p := range providers {
		s.providers[p.Name()] = p
	}
	for _, src := range sources {
		s.sources[src.EntityType()] = src
	}
	return s
}

func lockKey(integrationID uuid.UUID, ref dto.EntityRef) string {
	return integrationID.String() + ":" + ref.Key()
}

func (s *syncService) Push(ctx context.Context, integrationID uuid.UUID, ent *dto.SchedulableEntity) (dto.SyncResult, error) {
	release, err := s.locker.AcquireLock(ctx, lockKey(integrationID, ent.Ref), s.opts.LockTTL)
	if err != nil {
		return dto.SyncResult{IntegrationID: integrationID}, errors.NewAppError(errors.ErrProviderTransient, "sync lock unavailable", err)
	}
	defer release()

	integ, err := s.integrations.GetByID(ctx, integrationID)
	if err != nil {
		return dto.SyncResult{IntegrationID: integrationID}, errors.NewAppError(errors.ErrInternalServer, "failed to load calendar integration", err)
	}
	if integ == nil || !integ.SyncEnabled || integ.OwnerID != ent.Ref.OwnerID {
		return dto.SyncResult{IntegrationID: integrationID, Action: dto.SyncActionSkipped}, nil
	}
	if !mapper.Visible(ent) {
		return s.remove(ctx, integ, ent.Ref)
	}
	return s.push(ctx, integ, ent)
}

func (s *syncService) push(ctx context.Context, integ *entity.CalendarIntegration, ent *dto.SchedulableEntity) (dto.SyncResult, error) {
	result := dto.SyncResult{IntegrationID: integ.ID}
	ref := ent.Ref

	p, ok := s.providers[integ.Provider]
	if !ok {
		return s.fail(ctx, integ, ref, result, errors.NewAppError(errors.ErrProviderValidation, "unsupported calendar provider "+integ.Provider, nil))
	}

	ev, err := mapper.ToCalendarEvent(ent, s.opts.Map)
	if err != nil {
		return s.fail(ctx, integ, ref, result, errors.NewAppError(errors.ErrProviderValidation, "entity cannot be mapped to an event", err))
	}
	hash := mapper.ContentHash(ev)

	row, err := s.ledger.Get(ctx, integ.ID, ref.Type, ref.ID)
	if err != nil {
		return result, errors.NewAppError(errors.ErrInternalServer, "failed to load sync ledger", err)
	}
	if row.UpToDate(hash, integ.CalendarID) {
		logger.Debug("SyncService:Push:Unchanged", "integration_id", integ.ID, "entity", ref.Key())
		result.ExternalID = *row.ExternalEventID
		result.Action = dto.SyncActionUnchanged
		return result, nil
	}

	var externalID string
	var action dto.SyncAction
	err = s.withToken(ctx, integ, func(token string) error {
		var callErr error
		externalID, action, callErr = s.upsertEvent(ctx, p, token, integ.CalendarID, row, ev)
		return callErr
	})
	if err != nil {
		return s.fail(ctx, integ, ref, result, err)
	}

	now := s.now()
	if err := s.ledger.Upsert(ctx, &entity.CalendarEventSync{
		IntegrationID:   integ.ID,
		EntityType:      ref.Type,
		EntityID:        ref.ID,
		ExternalEventID: &externalID,
		CalendarID:      integ.CalendarID,
		ContentHash:     hash,
		LastSyncedAt:    &now,
		Status:          entity.SyncStatusSynced,
	}); err != nil {
		return result, errors.NewAppError(errors.ErrSync, "event pushed but ledger write failed", err)
	}
	if err := s.integrations.MarkSyncSuccess(ctx, integ.ID, now); err != nil {
		logger.Warn("SyncService:Push:MarkSyncSuccess:Error", "integration_id", integ.ID, "error", err)
	}

	logger.Info("SyncService:Push:Success", "integration_id", integ.ID, "entity", ref.Key(), "action", action)
	result.ExternalID = externalID
	result.Action = action
	return result, nil
}

// upsertEvent updates when the ledger knows an external event and creates
// otherwise. An update of an event deleted on the provider side recreates it.
// An event left in a previously chosen calendar is deleted there and created
// in calendarID.
func (s *syncService) upsertEvent(ctx context.Context, p provider.Provider, token, calendarID string, row *entity.CalendarEventSync, ev *dto.CalendarEvent) (string, dto.SyncAction, error) {
	if row.Moved(calendarID) {
		from := row.EventCalendar(calendarID)
		if err := p.DeleteEvent(ctx, token, from, *row.ExternalEventID); err != nil && !provider.IsGone(err) {
			return "", "", err
		}
		logger.Info("SyncService:Push:MoveCalendar", "from", from, "to", calendarID, "external_id", *row.ExternalEventID)
	} else if row.HasExternalEvent() {
		id, err := p.UpdateEvent(ctx, token, calendarID, *row.ExternalEventID, ev)
		if err == nil {
			return id, dto.SyncActionUpdated, nil
		}
		if !provider.IsGone(err) {
			return "", "", err
		}
		logger.Info("SyncService:Push:Recreate", "external_id", *row.ExternalEventID)
	}
	id, err := p.CreateEvent(ctx, token, calendarID, ev)
	if err != nil {
		return "", "", err
	}
	return id, dto.SyncActionCreated, nil
}

func (s *syncService) Remove(ctx context.Context, integrationID uuid.UUID, ref dto.EntityRef) (dto.SyncResult, error) {
	release, err := s.locker.AcquireLock(ctx, lockKey(integrationID, ref), s.opts.LockTTL)
	if err != nil {
		return dto.SyncResult{IntegrationID: integrationID}, errors.NewAppError(errors.ErrProviderTransient, "sync lock unavailable", err)
	}
	defer release()

	integ, err := s.integrations.GetByID(ctx, integrationID)
	if err != nil {
		return dto.SyncResult{IntegrationID: integrationID}, errors.NewAppError(errors.ErrInternalServer, "failed to load calendar integration", err)
	}
	if integ == nil {
		return dto.SyncResult{IntegrationID: integrationID, Action: dto.SyncActionSkipped}, nil
	}
	return s.remove(ctx, integ, ref)
}

// remove does not require sync to be enabled, only credentials.
func (s *syncService) remove(ctx context.Context, integ *entity.CalendarIntegration, ref dto.EntityRef) (dto.SyncResult, error) {
	result := dto.SyncResult{IntegrationID: integ.ID, Action: dto.SyncActionSkipped}

	row, err := s.ledger.Get(ctx, integ.ID, ref.Type, ref.ID)
	if err != nil {
		return result, errors.NewAppError(errors.ErrInternalServer, "failed to load sync ledger", err)
	}
	if !row.HasExternalEvent() {
		if row != nil && row.Status != entity.SyncStatusDeleted {
			if err := s.ledger.MarkDeleted(ctx, integ.ID, ref.Type, ref.ID); err != nil {
				return result, errors.NewAppError(errors.ErrInternalServer, "failed to update sync ledger", err)
			}
		}
		return result, nil
	}

	p, ok := s.providers[integ.Provider]
	if !ok {
		return s.fail(ctx, integ, ref, result, errors.NewAppError(errors.ErrProviderValidation, "unsupported calendar provider "+integ.Provider, nil))
	}

	externalID := *row.ExternalEventID
	calendarID := row.EventCalendar(integ.CalendarID)
	err = s.withToken(ctx, integ, func(token string) error {
		err := p.DeleteEvent(ctx, token, calendarID, externalID)
		if provider.IsGone(err) {
			logger.Info("SyncService:Remove:AlreadyGone", "integration_id", integ.ID, "entity", ref.Key())
			return nil
		}
		return err
	})
	if err != nil {
		return s.fail(ctx, integ, ref, result, err)
	}

	if err := s.ledger.MarkDeleted(ctx, integ.ID, ref.Type, ref.ID); err != nil {
		return result, errors.NewAppError(errors.ErrSync, "event deleted but ledger write failed", err)
	}
	if err := s.integrations.MarkSyncSuccess(ctx, integ.ID, s.now()); err != nil {
		logger.Warn("SyncService:Remove:MarkSyncSuccess:Error", "integration_id", integ.ID, "error", err)
	}

	logger.Info("SyncService:Remove:Success", "integration_id", integ.ID, "entity", ref.Key())
	result.ExternalID = externalID
	result.Action = dto.SyncActionDeleted
	return result, nil
}

// withToken runs call with a valid token. A 401 triggers exactly one refresh
// and one retry; a second 401 is AuthExpired.
func (s *syncService) withToken(ctx context.Context, integ *entity.CalendarIntegration, call func(token string) error) error {
	if !integ.HasCredentials() {
		return errors.NewAppError(errors.ErrCredentialExpired, "calendar is disconnected, reconnect your calendar", nil)
	}

	token, err := s.tokens.EnsureValid(ctx, integ)
	if err != nil {
		return err
	}

	err = call(token)
	if !provider.IsUnauthorized(err) {
		return err
	}

	logger.Info("SyncService:Unauthorized:Refresh", "integration_id", integ.ID)
	token, err = s.tokens.ForceRefresh(ctx, integ, token)
	if err != nil {
		return err
	}

	err = call(token)
	if provider.IsUnauthorized(err) {
		return errors.NewAppError(errors.ErrAuthExpired, "calendar rejected a refreshed token, reconnect your calendar", err)
	}
	return err
}

// classify turns provider failures into the application taxonomy.
func classify(err error) *errors.AppError {
	var ae *errors.AppError
	if stderrors.As(err, &ae) {
		return ae
	}
	switch {
	case provider.IsValidation(err), provider.IsGone(err):
		return errors.NewAppError(errors.ErrProviderValidation, "calendar provider rejected the event", err)
	case provider.IsTransient(err):
		return errors.NewAppError(errors.ErrProviderTransient, "calendar provider unavailable", err)
	default:
		return errors.NewAppError(errors.ErrSync, "calendar sync failed", err)
	}
}

// fail records err on the ledger row and the integration and returns it as a
// SyncError. Only a healthy to failing transition raises an alert.
func (s *syncService) fail(ctx context.Context, integ *entity.CalendarIntegration, ref dto.EntityRef, result dto.SyncResult, err error) (dto.SyncResult, error) {
	cause := classify(err)
	msg := cause.Error()

	logger.Warn("SyncService:Failed", "integration_id", integ.ID, "entity", ref.Key(), "code", cause.Code, "error", err)

	if lerr := s.ledger.MarkError(ctx, integ.ID, ref.Type, ref.ID, msg); lerr != nil {
		logger.Error("SyncService:Failed:MarkError:Error", "integration_id", integ.ID, "error", lerr)
	}
	if cause.Code != errors.ErrCredentialExpired {
		if ierr := s.integrations.RecordError(ctx, integ.ID, msg); ierr != nil {
			logger.Error("SyncService:Failed:RecordError:Error", "integration_id", integ.ID, "error", ierr)
		}
	}

	if integ.Healthy() && s.alerter != nil {
		kind := AlertSyncDegraded
		if errors.IsReconnectRequired(cause) {
			kind = AlertReconnectRequired
		}
		if aerr := s.alerter.CalendarAlert(ctx, integ.OwnerID, kind, cause.Message); aerr != nil {
			logger.Warn("SyncService:Failed:Alert:Error", "integration_id", integ.ID, "error", aerr)
		}
	}

	syncErr := errors.NewAppError(errors.ErrSync, fmt.Sprintf("calendar sync failed for %s", ref.Key()), cause)
	result.Err = syncErr
	result.Error = cause.Message
	return result, syncErr
}

func (s *syncService) source(entityType string) (EntitySource, error) {
	src, ok := s.sources[entityType]
	if !ok {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "unknown entity type "+entityType, nil)
	}
	return src, nil
}

func (s *syncService) FanOut(ctx context.Context, ref dto.EntityRef) ([]dto.SyncResult, error) {
	src, err := s.source(ref.Type)
	if err != nil {
		return nil, err
	}
	ent, err := src.Get(ctx, ref)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to load entity", err)
	}
	if ent != nil {
		if ref.OwnerID != uuid.Nil && ent.Ref.OwnerID != ref.OwnerID {
			return nil, errors.NewAppError(errors.ErrNotFound, "entity not found", nil)
		}
		ref = ent.Ref
	}
	if ref.OwnerID == uuid.Nil {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "entity owner is unknown", nil)
	}

	integrations, err := s.integrations.ListByOwner(ctx, ref.OwnerID)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to list calendar integrations", err)
	}

	visible := ent != nil && mapper.Visible(ent)
	results := make([]dto.SyncResult, len(integrations))
	var wg sync.WaitGroup
	for i := range integrations {
		integ := integrations[i]
		if visible && !integ.SyncEnabled {
			results[i] = dto.SyncResult{IntegrationID: integ.ID, Action: dto.SyncActionSkipped}
			continue
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if visible {
				results[i], _ = s.Push(ctx, integ.ID, ent)
			} else {
				results[i], _ = s.Remove(ctx, integ.ID, ref)
			}
		}(i)
	}
	wg.Wait()
	return results, nil
}

func (s *syncService) SyncOwner(ctx context.Context, ownerID uuid.UUID) ([]dto.SyncResult, error) {
	integrations, err := s.integrations.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to list calendar integrations", err)
	}

	var results []dto.SyncResult
	for _, src := range s.sources {
		ents, err := src.ListByOwner(ctx, ownerID)
		if err != nil {
			return results, errors.NewAppError(errors.ErrInternalServer, "failed to list entities", err)
		}
		for i := range ents {
			if !mapper.Visible(&ents[i]) {
				continue
			}
			for _, integ := range integrations {
				if !integ.SyncEnabled {
					continue
				}
				res, _ := s.Push(ctx, integ.ID, &ents[i])
				results = append(results, res)
			}
		}
	}
	return results, nil
}

func (s *syncService) Reconcile(ctx context.Context, limit int) ([]dto.SyncResult, error) {
	rows, err := s.ledger.ListByStatus(ctx, entity.SyncStatusError, limit)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to list failed syncs", err)
	}

	owners := make(map[uuid.UUID]uuid.UUID)
	results := make([]dto.SyncResult, 0, len(rows))
	for _, row := range rows {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		ownerID, ok := owners[row.IntegrationID]
		if !ok {
			integ, err := s.integrations.GetByID(ctx, row.IntegrationID)
			if err != nil || integ == nil {
				continue
			}
			ownerID = integ.OwnerID
			owners[row.IntegrationID] = ownerID
		}

		ref := dto.EntityRef{Type: row.EntityType, ID: row.EntityID, OwnerID: ownerID}
		src, err := s.source(ref.Type)
		if err != nil {
			logger.Warn("SyncService:Reconcile:UnknownType", "entity_type", ref.Type)
			continue
		}
		ent, err := src.Get(ctx, ref)
		if err != nil {
			logger.Warn("SyncService:Reconcile:Load:Error", "entity", ref.Key(), "error", err)
			continue
		}

		var res dto.SyncResult
		if ent != nil && mapper.Visible(ent) {
			res, _ = s.Push(ctx, row.IntegrationID, ent)
		} else {
			res, _ = s.Remove(ctx, row.IntegrationID, ref)
		}
		results = append(results, res)
	}
	logger.Info("SyncService:Reconcile:Done", "rows", len(rows))
	return results, nil
}
