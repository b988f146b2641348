package calendar

import (
	"calendar-sync/core/cache"
	"calendar-sync/core/config"
	"calendar-sync/core/database"
	"calendar-sync/core/middleware"
	"calendar-sync/modules/calendar/controller"
	"calendar-sync/modules/calendar/mapper"
	"calendar-sync/modules/calendar/provider"
	"calendar-sync/modules/calendar/repository"
	"calendar-sync/modules/calendar/router"
	"calendar-sync/modules/calendar/service"
	"calendar-sync/modules/calendar/worker"

	"github.com/labstack/echo/v4"
)

// Deps are supplied by the modules that own schedulable entities and alerts.
type Deps struct {
	Sources []service.EntitySource
	Alerter service.Alerter
	Resync  service.Resyncer
}

// Module exposes the pieces the worker process needs.
type Module struct {
	Sync    service.SyncService
	Feeds   service.FeedService
	Handler *worker.Handler
}

// Init builds the calendar subsystem and registers its routes.
func Init(e *echo.Echo, db database.Database, c cache.Cache, mw *middleware.Middleware, cfg *config.Config, deps Deps) *Module {
	integrations := repository.NewIntegrationRepository(db)
	ledger := repository.NewEventSyncRepository(db)
	feedTokens := repository.NewFeedTokenRepository(db)

	syncCfg := cfg.CalendarSync
	mapOpts := mapper.MapOptions{
		DefaultTimezone:  syncCfg.DefaultTimezone,
		DefaultDurations: syncCfg.DefaultDurations,
		UIDDomain:        syncCfg.FeedUIDDomain,
	}

	tokens := service.NewTokenService(integrations, c, service.OAuthConfig{
		ClientID:     cfg.GoogleAPI.ClientID,
		ClientSecret: cfg.GoogleAPI.ClientSecret,
		RedirectURL:  cfg.GoogleAPI.RedirectURI,
		TokenURL:     cfg.GoogleAPI.TokenURL,
		RevokeURL:    cfg.GoogleAPI.RevokeURL,
		SafetyBuffer: syncCfg.SafetyBuffer,
		Timeout:      syncCfg.ProviderTimeout,
	})
	google := provider.NewGoogleProvider(provider.GoogleConfig{
		Endpoint: cfg.GoogleAPI.APIEndpoint,
		Timeout:  syncCfg.ProviderTimeout,
	})

	syncSvc := service.NewSyncService(integrations, ledger, tokens,
		[]provider.Provider{google}, deps.Sources, c, deps.Alerter,
		service.SyncOptions{Map: mapOpts, LockTTL: 2 * syncCfg.ProviderTimeout})
	feedSvc := service.NewFeedService(feedTokens, deps.Sources, c, service.FeedOptions{
		Map:      mapOpts,
		Timezone: syncCfg.FeedTimezone,
		Name:     syncCfg.FeedName,
		CacheTTL: syncCfg.FeedCacheTTL,
		TokenTTL: syncCfg.FeedTokenTTL,
		BaseURL:  cfg.Server.PublicURL,
	})
	connSvc := service.NewConnectionService(integrations, tokens, google, c, deps.Resync)

	ctrl := controller.NewCalendarController(connSvc, syncSvc, feedSvc, deps.Resync)
	router.NewCalendarRouter(ctrl).Setup(e, mw)

	return &Module{
		Sync:    syncSvc,
		Feeds:   feedSvc,
		Handler: worker.NewHandler(syncSvc, feedSvc, syncCfg.ReconcileBatch),
	}
}
