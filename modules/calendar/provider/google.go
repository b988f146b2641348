package provider

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"calendar-sync/core/constants"
	"calendar-sync/core/logger"
	"calendar-sync/modules/calendar/dto"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

const defaultGoogleTimeout = 15 * time.Second

type GoogleConfig struct {
	// Endpoint overrides the Calendar API base URL.
	Endpoint string
	Timeout  time.Duration
	// HTTPClient is the base transport; the bearer token is layered on top.
	HTTPClient *http.Client
}

type googleProvider struct {
	cfg GoogleConfig
}

func NewGoogleProvider(cfg GoogleConfig) Provider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultGoogleTimeout
	}
	return &googleProvider{cfg: cfg}
}

func (g *googleProvider) Name() string {
	return constants.ProviderGoogle
}

func (g *googleProvider) service(ctx context.Context, accessToken string) (*calendar.Service, error) {
	if g.cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, g.cfg.HTTPClient)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, ts))}
	if g.cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(g.cfg.Endpoint))
	}
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return svc, nil
}

// EventID derives the Google event id for an event UID in a calendar. Hex
// digits are valid base32hex, so the id is accepted as a client-supplied id.
func EventID(calendarID, uid string) string {
	sum := blake2b.Sum256([]byte(calendarID + "\x00" + uid))
	return hex.EncodeToString(sum[:])
}

func toGoogleEvent(ev *dto.CalendarEvent) *calendar.Event {
	return &calendar.Event{
		ICalUID:     ev.UID,
		Summary:     ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		Status:      strings.ToLower(ev.Status),
		Start: &calendar.EventDateTime{
			DateTime: ev.Start.Format(time.RFC3339),
			TimeZone: ev.Timezone,
		},
		End: &calendar.EventDateTime{
			DateTime: ev.End.Format(time.RFC3339),
			TimeZone: ev.Timezone,
		},
	}
}

func (g *googleProvider) ListCalendars(ctx context.Context, accessToken string) ([]dto.ExternalCalendar, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	svc, err := g.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	var out []dto.ExternalCalendar
	err = svc.CalendarList.List().Pages(ctx, func(page *calendar.CalendarList) error {
		for _, item := range page.Items {
			out = append(out, dto.ExternalCalendar{
				ID:       item.Id,
				Summary:  item.Summary,
				Timezone: item.TimeZone,
				Primary:  item.Primary,
				CanWrite: item.AccessRole == "owner" || item.AccessRole == "writer",
			})
		}
		return nil
	})
	if err != nil {
		return nil, Classify(err)
	}
	return out, nil
}

// CreateEvent inserts under a deterministic id. An id that already exists
// means an earlier unconfirmed insert landed, so the event is updated instead.
func (g *googleProvider) CreateEvent(ctx context.Context, accessToken, calendarID string, ev *dto.CalendarEvent) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	svc, err := g.service(ctx, accessToken)
	if err != nil {
		return "", err
	}

	gev := toGoogleEvent(ev)
	gev.Id = EventID(calendarID, ev.UID)

	created, err := svc.Events.Insert(calendarID, gev).Context(ctx).Do()
	if err == nil {
		return created.Id, nil
	}
	err = Classify(err)
	if !IsConflict(err) {
		return "", err
	}

	logger.Info("GoogleProvider:CreateEvent:Conflict", "event_id", gev.Id)
	updated, err := svc.Events.Update(calendarID, gev.Id, gev).Context(ctx).Do()
	if err != nil {
		return "", Classify(err)
	}
	return updated.Id, nil
}

func (g *googleProvider) UpdateEvent(ctx context.Context, accessToken, calendarID, eventID string, ev *dto.CalendarEvent) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	svc, err := g.service(ctx, accessToken)
	if err != nil {
		return "", err
	}

	updated, err := svc.Events.Update(calendarID, eventID, toGoogleEvent(ev)).Context(ctx).Do()
	if err != nil {
		return "", Classify(err)
	}
	return updated.Id, nil
}

func (g *googleProvider) DeleteEvent(ctx context.Context, accessToken, calendarID, eventID string) error {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	svc, err := g.service(ctx, accessToken)
	if err != nil {
		return err
	}

	if err := svc.Events.Delete(calendarID, eventID).Context(ctx).Do(); err != nil {
		return Classify(err)
	}
	return nil
}
