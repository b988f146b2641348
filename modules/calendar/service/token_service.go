package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"calendar-sync/core/errors"
	"calendar-sync/core/logger"
	"calendar-sync/modules/calendar/entity"
	"calendar-sync/modules/calendar/repository"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/singleflight"
)

const (
	GoogleCalendarScope  = "https://www.googleapis.com/auth/calendar"
	defaultSafetyBuffer  = 5 * time.Minute
	defaultTokenTimeout  = 15 * time.Second
	defaultTokenLifetime = time.Hour
)

type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Empty endpoint URLs use Google's.
	AuthURL   string
	TokenURL  string
	RevokeURL string
	Scopes    []string

	SafetyBuffer time.Duration
	Timeout      time.Duration
	HTTPClient   *http.Client
}

// TokenSet is the result of an authorization code exchange.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

type TokenService interface {
	AuthCodeURL(state string) string
	// Authorize exchanges a one-time code. It does not persist anything.
	Authorize(ctx context.Context, code string) (*TokenSet, error)
	// EnsureValid returns an access token that is not within the safety buffer of expiry.
	EnsureValid(ctx context.Context, integ *entity.CalendarIntegration) (string, error)
	// ForceRefresh replaces rejected, unless another caller already did.
	ForceRefresh(ctx context.Context, integ *entity.CalendarIntegration, rejected string) (string, error)
	// Revoke always clears local credentials; the provider call is best effort.
	Revoke(ctx context.Context, integ *entity.CalendarIntegration) error
}

type tokenService struct {
	repo   repository.IntegrationRepository
	locker Locker
	oauth  *oauth2.Config
	cfg    OAuthConfig
	group  singleflight.Group
	now    func() time.Time
}

func NewTokenService(repo repository.IntegrationRepository, locker Locker, cfg OAuthConfig) TokenService {
	if cfg.SafetyBuffer <= 0 {
		cfg.SafetyBuffer = defaultSafetyBuffer
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTokenTimeout
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{GoogleCalendarScope}
	}
	endpoint := google.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	if cfg.RevokeURL == "" {
		cfg.RevokeURL = "https://oauth2.googleapis.com/revoke"
	}
	if locker == nil {
		locker = NewLocalLocker()
	}

	return &tokenService{
		repo:   repo,
		locker: locker,
		cfg:    cfg,
		now:    time.Now,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint:     endpoint,
		},
	}
}

func (s *tokenService) httpContext(ctx context.Context) context.Context {
	if s.cfg.HTTPClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, s.cfg.HTTPClient)
	}
	return ctx
}

func (s *tokenService) AuthCodeURL(state string) string {
	return s.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (s *tokenService) Authorize(ctx context.Context, code string) (*TokenSet, error) {
	if strings.TrimSpace(code) == "" {
		return nil, errors.NewAppError(errors.ErrAuthExchange, "authorization code is missing", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	tok, err := s.oauth.Exchange(s.httpContext(ctx), code)
	if err != nil {
		logger.Warn("TokenService:Authorize:Exchange:Error", "error", err)
		return nil, errors.NewAppError(errors.ErrAuthExchange, "authorization code is invalid or expired, try connecting again", err)
	}
	if tok.AccessToken == "" {
		return nil, errors.NewAppError(errors.ErrAuthExchange, "provider returned no access token", nil)
	}

	expiry := tok.Expiry
	if expiry.IsZero() {
		expiry = s.now().Add(defaultTokenLifetime)
	}
	return &TokenSet{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken, Expiry: expiry}, nil
}

func (s *tokenService) EnsureValid(ctx context.Context, integ *entity.CalendarIntegration) (string, error) {
	if !integ.NeedsRefresh(s.now(), s.cfg.SafetyBuffer) {
		return integ.AccessToken, nil
	}
	return s.refresh(ctx, integ.ID, integ.AccessToken)
}

func (s *tokenService) ForceRefresh(ctx context.Context, integ *entity.CalendarIntegration, rejected string) (string, error) {
	return s.refresh(ctx, integ.ID, rejected)
}

// refresh coalesces concurrent callers per integration. The row is re-read
// under the lock so a token refreshed elsewhere is reused instead of spending
// the refresh token again.
func (s *tokenService) refresh(ctx context.Context, integrationID uuid.UUID, stale string) (string, error) {
	ch := s.group.DoChan(integrationID.String(), func() (any, error) {
		// Detached so one caller's cancellation does not fail the others.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*s.cfg.Timeout)
		defer cancel()

		release, err := s.locker.AcquireLock(rctx, "refresh:"+integrationID.String(), 2*s.cfg.Timeout)
		if err != nil {
			return "", errors.NewAppError(errors.ErrProviderTransient, "token refresh is busy", err)
		}
		defer release()

		current, err := s.repo.GetByID(rctx, integrationID)
		if err != nil {
			return "", errors.NewAppError(errors.ErrInternalServer, "failed to load calendar integration", err)
		}
		if current == nil {
			return "", errors.NewAppError(errors.ErrNotFound, "calendar integration not found", nil)
		}
		if current.AccessToken != "" && current.AccessToken != stale && !current.NeedsRefresh(s.now(), s.cfg.SafetyBuffer) {
			return current.AccessToken, nil
		}
		return s.exchangeRefreshToken(rctx, current)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", errors.NewAppError(errors.ErrProviderTransient, "token refresh cancelled", ctx.Err())
	}
}

func (s *tokenService) exchangeRefreshToken(ctx context.Context, integ *entity.CalendarIntegration) (string, error) {
	if integ.RefreshToken == nil || *integ.RefreshToken == "" {
		return "", s.expire(ctx, integ, "no refresh token stored", nil)
	}

	logger.Info("TokenService:Refresh:Start", "integration_id", integ.ID)

	tctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	tok, err := s.oauth.TokenSource(s.httpContext(tctx), &oauth2.Token{RefreshToken: *integ.RefreshToken}).Token()
	if err != nil {
		if isTerminalRefreshError(err) {
			return "", s.expire(ctx, integ, "refresh token was revoked or is invalid", err)
		}
		logger.Warn("TokenService:Refresh:Transient", "integration_id", integ.ID, "error", err)
		return "", errors.NewAppError(errors.ErrProviderTransient, "token endpoint unavailable", err)
	}

	expiry := tok.Expiry
	if expiry.IsZero() {
		expiry = s.now().Add(defaultTokenLifetime)
	}
	var rotated *string
	if tok.RefreshToken != "" && tok.RefreshToken != *integ.RefreshToken {
		rotated = &tok.RefreshToken
	}
	if err := s.repo.UpdateTokens(ctx, integ.ID, tok.AccessToken, rotated, expiry); err != nil {
		return "", errors.NewAppError(errors.ErrInternalServer, "failed to store refreshed token", err)
	}

	logger.Info("TokenService:Refresh:Success", "integration_id", integ.ID, "expires_at", expiry)
	return tok.AccessToken, nil
}

// expire disables sync for the integration. Only the user can recover it.
func (s *tokenService) expire(ctx context.Context, integ *entity.CalendarIntegration, reason string, cause error) error {
	logger.Warn("TokenService:Refresh:CredentialExpired", "integration_id", integ.ID, "reason", reason, "error", cause)
	if err := s.repo.Disable(ctx, integ.ID, "reconnect calendar: "+reason); err != nil {
		logger.Error("TokenService:Refresh:Disable:Error", "integration_id", integ.ID, "error", err)
	}
	return errors.NewAppError(errors.ErrCredentialExpired, "calendar credentials expired, reconnect your calendar", cause)
}

func isTerminalRefreshError(err error) bool {
	var rerr *oauth2.RetrieveError
	if !stderrors.As(err, &rerr) {
		return false
	}
	switch rerr.ErrorCode {
	case "invalid_grant", "invalid_client", "unauthorized_client":
		return true
	}
	if rerr.Response == nil {
		return false
	}
	code := rerr.Response.StatusCode
	return code >= 400 && code < 500 && code != http.StatusTooManyRequests
}

func (s *tokenService) Revoke(ctx context.Context, integ *entity.CalendarIntegration) error {
	token := integ.AccessToken
	if integ.RefreshToken != nil && *integ.RefreshToken != "" {
		token = *integ.RefreshToken
	}
	if token != "" {
		if err := s.revokeAtProvider(ctx, token); err != nil {
			logger.Warn("TokenService:Revoke:Provider:Error", "integration_id", integ.ID, "error", err)
		}
	}

	if err := s.repo.ClearCredentials(ctx, integ.ID); err != nil {
		return errors.NewAppError(errors.ErrInternalServer, "failed to clear calendar credentials", err)
	}
	logger.Info("TokenService:Revoke:Success", "integration_id", integ.ID)
	return nil
}

func (s *tokenService) revokeAtProvider(ctx context.Context, token string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.RevokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := s.cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("revoke returned status %d", resp.StatusCode)
	}
	return nil
}
