package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"calendar-sync/modules/calendar/dto"
	"calendar-sync/modules/calendar/entity"
	"calendar-sync/modules/calendar/provider"

	"github.com/google/uuid"
)

// ===== credential store =====

type fakeIntegrationRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*entity.CalendarIntegration
}

func newFakeIntegrationRepo() *fakeIntegrationRepo {
	return &fakeIntegrationRepo{items: map[uuid.UUID]*entity.CalendarIntegration{}}
}

func (r *fakeIntegrationRepo) add(integ *entity.CalendarIntegration) *entity.CalendarIntegration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if integ.ID == uuid.Nil {
		integ.ID = uuid.New()
	}
	if integ.Provider == "" {
		integ.Provider = "fake"
	}
	if integ.CalendarID == "" {
		integ.CalendarID = "primary"
	}
	cp := *integ
	r.items[integ.ID] = &cp
	return integ
}

func (r *fakeIntegrationRepo) snapshot(id uuid.UUID) entity.CalendarIntegration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.items[id]
}

func (r *fakeIntegrationRepo) GetByID(_ context.Context, id uuid.UUID) (*entity.CalendarIntegration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	integ, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	cp := *integ
	return &cp, nil
}

func (r *fakeIntegrationRepo) GetByOwnerAndProvider(_ context.Context, ownerID uuid.UUID, p string) (*entity.CalendarIntegration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, integ := range r.items {
		if integ.OwnerID == ownerID && integ.Provider == p {
			cp := *integ
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeIntegrationRepo) ListByOwner(_ context.Context, ownerID uuid.UUID) ([]entity.CalendarIntegration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.CalendarIntegration
	for _, integ := range r.items {
		if integ.OwnerID == ownerID {
			out = append(out, *integ)
		}
	}
	return out, nil
}

func (r *fakeIntegrationRepo) Upsert(_ context.Context, integ *entity.CalendarIntegration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.items {
		if existing.OwnerID == integ.OwnerID && existing.Provider == integ.Provider {
			existing.AccessToken = integ.AccessToken
			if integ.RefreshToken != nil {
				existing.RefreshToken = integ.RefreshToken
			}
			existing.TokenExpiresAt = integ.TokenExpiresAt
			existing.SyncEnabled = integ.SyncEnabled
			existing.LastError = nil
			integ.ID = existing.ID
			integ.CalendarID = existing.CalendarID
			return nil
		}
	}
	integ.ID = uuid.New()
	integ.CreatedAt = time.Now()
	cp := *integ
	r.items[integ.ID] = &cp
	return nil
}

func (r *fakeIntegrationRepo) update(id uuid.UUID, fn func(*entity.CalendarIntegration)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if integ, ok := r.items[id]; ok {
		fn(integ)
	}
	return nil
}

func (r *fakeIntegrationRepo) UpdateTokens(_ context.Context, id uuid.UUID, access string, refresh *string, exp time.Time) error {
	return r.update(id, func(i *entity.CalendarIntegration) {
		i.AccessToken = access
		if refresh != nil {
			i.RefreshToken = refresh
		}
		i.TokenExpiresAt = exp
	})
}

func (r *fakeIntegrationRepo) Disable(_ context.Context, id uuid.UUID, reason string) error {
	return r.update(id, func(i *entity.CalendarIntegration) {
		i.SyncEnabled = false
		i.LastError = &reason
	})
}

func (r *fakeIntegrationRepo) RecordError(_ context.Context, id uuid.UUID, msg string) error {
	return r.update(id, func(i *entity.CalendarIntegration) { i.LastError = &msg })
}

func (r *fakeIntegrationRepo) MarkSyncSuccess(_ context.Context, id uuid.UUID, at time.Time) error {
	return r.update(id, func(i *entity.CalendarIntegration) {
		i.LastSyncedAt = &at
		i.LastError = nil
	})
}

func (r *fakeIntegrationRepo) ClearCredentials(_ context.Context, id uuid.UUID) error {
	return r.update(id, func(i *entity.CalendarIntegration) {
		i.AccessToken = ""
		i.RefreshToken = nil
		i.TokenExpiresAt = time.Unix(0, 0)
		i.SyncEnabled = false
	})
}

func (r *fakeIntegrationRepo) UpdateSettings(_ context.Context, id uuid.UUID, calendarID string, enabled bool) error {
	return r.update(id, func(i *entity.CalendarIntegration) {
		i.CalendarID = calendarID
		i.SyncEnabled = enabled
	})
}

func (r *fakeIntegrationRepo) Delete(_ context.Context, ownerID, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if integ, ok := r.items[id]; ok && integ.OwnerID == ownerID {
		delete(r.items, id)
	}
	return nil
}

// ===== ledger =====

type fakeLedger struct {
	mu   sync.Mutex
	rows map[string]*entity.CalendarEventSync
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{rows: map[string]*entity.CalendarEventSync{}}
}

func ledgerKey(id uuid.UUID, typ, entityID string) string {
	return id.String() + "|" + typ + "|" + entityID
}

func (l *fakeLedger) row(id uuid.UUID, typ, entityID string) *entity.CalendarEventSync {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.rows[ledgerKey(id, typ, entityID)]
	if !ok {
		return nil
	}
	cp := *r
	return &cp
}

func (l *fakeLedger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.rows)
}

func (l *fakeLedger) Get(_ context.Context, id uuid.UUID, typ, entityID string) (*entity.CalendarEventSync, error) {
	return l.row(id, typ, entityID), nil
}

func (l *fakeLedger) Upsert(_ context.Context, row *entity.CalendarEventSync) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := *row
	l.rows[ledgerKey(row.IntegrationID, row.EntityType, row.EntityID)] = &cp
	return nil
}

func (l *fakeLedger) MarkError(_ context.Context, id uuid.UUID, typ, entityID, msg string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := ledgerKey(id, typ, entityID)
	r, ok := l.rows[key]
	if !ok {
		r = &entity.CalendarEventSync{IntegrationID: id, EntityType: typ, EntityID: entityID}
		l.rows[key] = r
	}
	r.Status = entity.SyncStatusError
	r.LastError = &msg
	return nil
}

func (l *fakeLedger) MarkDeleted(_ context.Context, id uuid.UUID, typ, entityID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if r, ok := l.rows[ledgerKey(id, typ, entityID)]; ok {
		r.ExternalEventID = nil
		r.Status = entity.SyncStatusDeleted
		r.LastError = nil
	}
	return nil
}

func (l *fakeLedger) ListByStatus(_ context.Context, status entity.SyncStatus, limit int) ([]entity.CalendarEventSync, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []entity.CalendarEventSync
	for _, r := range l.rows {
		if r.Status == status && len(out) < limit {
			out = append(out, *r)
		}
	}
	return out, nil
}

// ===== feed tokens =====

type fakeFeedTokenRepo struct {
	mu     sync.Mutex
	tokens map[uuid.UUID]*entity.CalendarFeedToken
}

func newFakeFeedTokenRepo() *fakeFeedTokenRepo {
	return &fakeFeedTokenRepo{tokens: map[uuid.UUID]*entity.CalendarFeedToken{}}
}

func (r *fakeFeedTokenRepo) Create(_ context.Context, t *entity.CalendarFeedToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t.ID = uuid.New()
	t.CreatedAt = time.Now()
	cp := *t
	r.tokens[t.ID] = &cp
	return nil
}

func (r *fakeFeedTokenRepo) GetByHash(_ context.Context, hash string) (*entity.CalendarFeedToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.TokenHash == hash {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeFeedTokenRepo) ListByOwner(_ context.Context, ownerID uuid.UUID) ([]entity.CalendarFeedToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.CalendarFeedToken
	for _, t := range r.tokens {
		if t.OwnerID == ownerID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (r *fakeFeedTokenRepo) Delete(_ context.Context, ownerID, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[id]
	if !ok || t.OwnerID != ownerID {
		return false, nil
	}
	delete(r.tokens, id)
	return true, nil
}

// ===== provider =====

type providerCall struct {
	Op         string
	Token      string
	CalendarID string
	EventID    string
}

type fakeProvider struct {
	mu     sync.Mutex
	calls  []providerCall
	nextID int
	events []dto.CalendarEvent
	// queued errors per operation, consumed in order
	errs map[string][]error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{errs: map[string][]error{}}
}

func (p *fakeProvider) failNext(op string, errs ...error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs[op] = append(p.errs[op], errs...)
}

func (p *fakeProvider) record(op, token, calendarID, eventID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, providerCall{Op: op, Token: token, CalendarID: calendarID, EventID: eventID})
	if queue := p.errs[op]; len(queue) > 0 {
		p.errs[op] = queue[1:]
		return queue[0]
	}
	return nil
}

func (p *fakeProvider) opCalls(op string) []providerCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []providerCall
	for _, c := range p.calls {
		if op == "" || c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (p *fakeProvider) lastEvent() dto.CalendarEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) ListCalendars(_ context.Context, token string) ([]dto.ExternalCalendar, error) {
	if err := p.record("list", token, "", ""); err != nil {
		return nil, err
	}
	return []dto.ExternalCalendar{{ID: "primary", Summary: "Me", Primary: true, CanWrite: true}}, nil
}

func (p *fakeProvider) CreateEvent(_ context.Context, token, calendarID string, ev *dto.CalendarEvent) (string, error) {
	if err := p.record("create", token, calendarID, ""); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *ev)
	p.nextID++
	return fmt.Sprintf("ext-%d", p.nextID), nil
}

func (p *fakeProvider) UpdateEvent(_ context.Context, token, calendarID, eventID string, ev *dto.CalendarEvent) (string, error) {
	if err := p.record("update", token, calendarID, eventID); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *ev)
	return eventID, nil
}

func (p *fakeProvider) DeleteEvent(_ context.Context, token, calendarID, eventID string) error {
	return p.record("delete", token, calendarID, eventID)
}

func providerErr(status int) error {
	return &provider.Error{StatusCode: status, Kind: provider.KindForStatus(status), Err: fmt.Errorf("status %d", status)}
}

// ===== tokens =====

type fakeTokens struct {
	mu            sync.Mutex
	ensureCalls   int
	refreshCalls  int
	token         string
	refreshErr    error
	refreshTokens []string
}

func (f *fakeTokens) AuthCodeURL(state string) string { return "https://auth.example/?state=" + state }

func (f *fakeTokens) Authorize(_ context.Context, code string) (*TokenSet, error) {
	return &TokenSet{AccessToken: "at-" + code, RefreshToken: "rt-" + code, Expiry: time.Now().Add(time.Hour)}, nil
}

func (f *fakeTokens) EnsureValid(_ context.Context, integ *entity.CalendarIntegration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensureCalls++
	if f.token != "" {
		return f.token, nil
	}
	return integ.AccessToken, nil
}

func (f *fakeTokens) ForceRefresh(_ context.Context, _ *entity.CalendarIntegration, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++
	if f.refreshErr != nil {
		return "", f.refreshErr
	}
	tok := fmt.Sprintf("refreshed-%d", f.refreshCalls)
	f.refreshTokens = append(f.refreshTokens, tok)
	return tok, nil
}

func (f *fakeTokens) Revoke(_ context.Context, _ *entity.CalendarIntegration) error { return nil }

// ===== domain =====

type fakeSource struct {
	mu   sync.Mutex
	ents map[string]*dto.SchedulableEntity
}

func newFakeSource() *fakeSource {
	return &fakeSource{ents: map[string]*dto.SchedulableEntity{}}
}

func (s *fakeSource) put(ent *dto.SchedulableEntity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *ent
	s.ents[ent.Ref.ID] = &cp
}

func (s *fakeSource) EntityType() string { return "session" }

func (s *fakeSource) Get(_ context.Context, ref dto.EntityRef) (*dto.SchedulableEntity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ent, ok := s.ents[ref.ID]
	if !ok {
		return nil, nil
	}
	cp := *ent
	return &cp, nil
}

func (s *fakeSource) ListByOwner(_ context.Context, ownerID uuid.UUID) ([]dto.SchedulableEntity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []dto.SchedulableEntity
	for _, ent := range s.ents {
		if ent.Ref.OwnerID == ownerID {
			out = append(out, *ent)
		}
	}
	return out, nil
}

type alert struct {
	OwnerID uuid.UUID
	Kind    AlertKind
}

type fakeAlerter struct {
	mu     sync.Mutex
	alerts []alert
}

func (a *fakeAlerter) CalendarAlert(_ context.Context, ownerID uuid.UUID, kind AlertKind, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, alert{OwnerID: ownerID, Kind: kind})
	return nil
}

func (a *fakeAlerter) list() []alert {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]alert(nil), a.alerts...)
}

type fakeStateStore struct {
	mu     sync.Mutex
	states map[string]uuid.UUID
}

func (s *fakeStateStore) SetOAuthState(_ context.Context, state string, ownerID uuid.UUID, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.states == nil {
		s.states = map[string]uuid.UUID{}
	}
	s.states[state] = ownerID
	return nil
}

func (s *fakeStateStore) ConsumeOAuthState(_ context.Context, state string) (uuid.UUID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	owner, ok := s.states[state]
	delete(s.states, state)
	return owner, ok, nil
}

type fakeResyncer struct {
	mu     sync.Mutex
	owners []uuid.UUID
}

func (r *fakeResyncer) OwnerChanged(_ context.Context, ownerID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owners = append(r.owners, ownerID)
	return nil
}
