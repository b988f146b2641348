package service

import (
	"context"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"calendar-sync/core/errors"
	"calendar-sync/core/logger"
	"calendar-sync/core/utils"
	"calendar-sync/modules/calendar/dto"
	"calendar-sync/modules/calendar/entity"
	"calendar-sync/modules/calendar/ical"
	"calendar-sync/modules/calendar/mapper"
	"calendar-sync/modules/calendar/repository"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

const feedProdID = "-//calendar-sync//Feed//EN"

type FeedOptions struct {
	Map      mapper.MapOptions
	Timezone string
	Name     string
	CacheTTL time.Duration
	// TokenTTL applies when a token is created without its own TTL. Zero means no expiry.
	TokenTTL time.Duration
	// BaseURL prefixes the feed path in token responses.
	BaseURL string
}

type FeedService interface {
	// CreateToken returns the raw token once; only its digest is stored.
	CreateToken(ctx context.Context, ownerID uuid.UUID, label string, ttl time.Duration) (*dto.FeedTokenResponse, error)
	ListTokens(ctx context.Context, ownerID uuid.UUID) ([]dto.FeedTokenResponse, error)
	RevokeToken(ctx context.Context, ownerID, tokenID uuid.UUID) error
	ResolveToken(ctx context.Context, token string) (uuid.UUID, error)
	Render(ctx context.Context, ownerID uuid.UUID) ([]byte, error)
	InvalidateOwner(ctx context.Context, ownerID uuid.UUID)
	FeedName() string
}

type feedService struct {
	tokens  repository.FeedTokenRepository
	sources []EntitySource
	cache   FeedCache
	opts    FeedOptions
	loc     *time.Location
	now     func() time.Time
}

func NewFeedService(tokens repository.FeedTokenRepository, sources []EntitySource, cache FeedCache, opts FeedOptions) FeedService {
	if opts.Name == "" {
		opts.Name = "Bookings"
	}
	return &feedService{
		tokens:  tokens,
		sources: sources,
		cache:   cache,
		opts:    opts,
		loc:     mapper.ResolveLocation(opts.Timezone, opts.Map.DefaultTimezone),
		now:     time.Now,
	}
}

// HashFeedToken is the stored form of a feed token.
func HashFeedToken(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (s *feedService) FeedName() string {
	return s.opts.Name
}

func (s *feedService) feedURL(token string) string {
	return strings.TrimRight(s.opts.BaseURL, "/") + "/api/v1/public/calendar/feed/" + token + ".ics"
}

func toFeedTokenResponse(t *entity.CalendarFeedToken) dto.FeedTokenResponse {
	return dto.FeedTokenResponse{
		ID:        t.ID,
		Label:     t.Label,
		ExpiresAt: t.ExpiresAt,
		CreatedAt: t.CreatedAt,
	}
}

func (s *feedService) CreateToken(ctx context.Context, ownerID uuid.UUID, label string, ttl time.Duration) (*dto.FeedTokenResponse, error) {
	raw, err := utils.GenerateFeedToken()
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to generate feed token", err)
	}

	if ttl <= 0 {
		ttl = s.opts.TokenTTL
	}
	tok := &entity.CalendarFeedToken{
		OwnerID:   ownerID,
		TokenHash: HashFeedToken(raw),
		Label:     strings.TrimSpace(label),
	}
	if ttl > 0 {
		exp := s.now().Add(ttl)
		tok.ExpiresAt = &exp
	}
	if err := s.tokens.Create(ctx, tok); err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to store feed token", err)
	}

	logger.Info("FeedService:CreateToken:Success", "owner_id", ownerID, "token_id", tok.ID)
	resp := toFeedTokenResponse(tok)
	resp.Token = raw
	resp.URL = s.feedURL(raw)
	return &resp, nil
}

func (s *feedService) ListTokens(ctx context.Context, ownerID uuid.UUID) ([]dto.FeedTokenResponse, error) {
	tokens, err := s.tokens.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to list feed tokens", err)
	}
	out := make([]dto.FeedTokenResponse, 0, len(tokens))
	for i := range tokens {
		out = append(out, toFeedTokenResponse(&tokens[i]))
	}
	return out, nil
}

func (s *feedService) RevokeToken(ctx context.Context, ownerID, tokenID uuid.UUID) error {
	deleted, err := s.tokens.Delete(ctx, ownerID, tokenID)
	if err != nil {
		return errors.NewAppError(errors.ErrInternalServer, "failed to revoke feed token", err)
	}
	if !deleted {
		return errors.NewAppError(errors.ErrNotFound, "feed token not found", nil)
	}
	logger.Info("FeedService:RevokeToken:Success", "owner_id", ownerID, "token_id", tokenID)
	return nil
}

func (s *feedService) ResolveToken(ctx context.Context, token string) (uuid.UUID, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return uuid.Nil, errors.NewAppError(errors.ErrInvalidFeedToken, "this calendar link was revoked", nil)
	}

	tok, err := s.tokens.GetByHash(ctx, HashFeedToken(token))
	if err != nil {
		return uuid.Nil, errors.NewAppError(errors.ErrInternalServer, "failed to resolve feed token", err)
	}
	if tok == nil {
		return uuid.Nil, errors.NewAppError(errors.ErrInvalidFeedToken, "this calendar link was revoked", nil)
	}
	if tok.Expired(s.now()) {
		return uuid.Nil, errors.NewAppError(errors.ErrExpiredFeedToken, "this calendar link expired, request a new link", nil)
	}
	return tok.OwnerID, nil
}

// Render builds the owner's feed. It only reads, so polling clients may call
// it at any rate; a short-lived cache absorbs the load.
func (s *feedService) Render(ctx context.Context, ownerID uuid.UUID) ([]byte, error) {
	if s.cache != nil && s.opts.CacheTTL > 0 {
		body, ok, err := s.cache.GetFeed(ctx, ownerID)
		if err != nil {
			logger.Warn("FeedService:Render:CacheGet:Error", "owner_id", ownerID, "error", err)
		} else if ok {
			return body, nil
		}
	}

	var events []*dto.CalendarEvent
	for _, src := range s.sources {
		ents, err := src.ListByOwner(ctx, ownerID)
		if err != nil {
			return nil, errors.NewAppError(errors.ErrInternalServer, "failed to load entities", err)
		}
		for i := range ents {
			if !mapper.Visible(&ents[i]) {
				continue
			}
			ev, err := mapper.ToCalendarEvent(&ents[i], s.opts.Map)
			if err != nil {
				logger.Warn("FeedService:Render:Skip", "entity", ents[i].Ref.Key(), "error", err)
				continue
			}
			events = append(events, ev)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Start.Equal(events[j].Start) {
			return events[i].Start.Before(events[j].Start)
		}
		return events[i].UID < events[j].UID
	})

	stamp := s.now().UTC().Truncate(time.Second)
	cal := &ical.Calendar{
		ProdID:   feedProdID,
		Name:     s.opts.Name,
		Location: s.loc,
		Now:      stamp,
		Events:   make([]ical.Event, 0, len(events)),
	}
	for _, ev := range events {
		cal.Events = append(cal.Events, ical.Event{
			UID:         ev.UID,
			Stamp:       stamp,
			Start:       ev.Start,
			End:         ev.End,
			Summary:     ev.Summary,
			Description: ev.Description,
			Location:    ev.Location,
			Status:      ev.Status,
		})
	}

	body, err := cal.Bytes()
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInternalServer, "failed to render feed", err)
	}

	if s.cache != nil && s.opts.CacheTTL > 0 {
		if err := s.cache.SetFeed(ctx, ownerID, body, s.opts.CacheTTL); err != nil {
			logger.Warn("FeedService:Render:CacheSet:Error", "owner_id", ownerID, "error", err)
		}
	}
	return body, nil
}

func (s *feedService) InvalidateOwner(ctx context.Context, ownerID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateFeed(ctx, ownerID); err != nil {
		logger.Warn("FeedService:Invalidate:Error", "owner_id", ownerID, "error", err)
	}
}
