package controller

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"calendar-sync/core/controller"
	"calendar-sync/core/errors"
	"calendar-sync/modules/calendar/dto"
	"calendar-sync/modules/calendar/service"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/labstack/echo/v4"
)

const feedCacheControl = "private, max-age=60"

type CalendarController struct {
	controller.BaseController
	connections service.ConnectionService
	sync        service.SyncService
	feeds       service.FeedService
	resync      service.Resyncer
}

func NewCalendarController(
	connections service.ConnectionService,
	sync service.SyncService,
	feeds service.FeedService,
	resync service.Resyncer,
) *CalendarController {
	return &CalendarController{
		BaseController: controller.NewBaseController(),
		connections:    connections,
		sync:           sync,
		feeds:          feeds,
		resync:         resync,
	}
}

func (c *CalendarController) userID(ctx echo.Context) (uuid.UUID, error) {
	userID, err := controller.UserIDFromContext(ctx)
	if err != nil {
		return uuid.Nil, c.Unauthorized(errors.ErrUnauthorized, "User not authenticated")
	}
	return userID, nil
}

func (c *CalendarController) pathID(ctx echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(ctx.Param(name))
	if err != nil {
		return uuid.Nil, c.BadRequest(errors.ErrInvalidInput, "Invalid "+name)
	}
	return id, nil
}

// Connect starts the provider consent flow
// @Summary Connect a calendar
// @Description Returns the provider consent URL; the provider redirects back to the OAuth callback
// @Tags Calendar
// @Security BearerAuth
// @Produce json
// @Success 200 {object} dto.ConnectResponse
// @Router /private/calendar/connect [post]
func (c *CalendarController) Connect(ctx echo.Context) error {
	userID, err := c.userID(ctx)
	if err != nil {
		return err
	}
	result, err := c.connections.BeginConnect(ctx.Request().Context(), userID)
	if err != nil {
		return c.ErrorResponse(ctx, err)
	}
	return c.SuccessResponse(ctx, result, "Open auth_url to connect your calendar")
}

// OAuthCallback completes the consent flow
// @Summary OAuth callback
// @Tags Calendar
// @Produce json
// @Param code query string true "Authorization code"
// @Param state query string true "State issued by connect"
// @Success 200 {object} dto.IntegrationResponse
// @Failure 400 {object} errors.AppError
// @Router /public/calendar/oauth/callback [get]
func (c *CalendarController) OAuthCallback(ctx echo.Context) error {
	if reason := ctx.QueryParam("error"); reason != "" {
		return c.BadRequest(errors.ErrAuthExchange, "Calendar access was not granted: "+reason)
	}
	code := ctx.QueryParam("code")
	if code == "" {
		return c.BadRequest(errors.ErrAuthExchange, "Missing authorization code")
	}

	result, err := c.connections.CompleteConnect(ctx.Request().Context(), code, ctx.QueryParam("state"))
	if err != nil {
		return c.ErrorResponse(ctx, err)
	}
	return c.SuccessResponse(ctx, result, "Calendar connected successfully")
}

// GetIntegrations lists calendar connections
// @Summary List calendar connections
// @Tags Calendar
// @Security BearerAuth
// @Produce json
// @Success 200 {object} dto.IntegrationListResponse
// @Router /private/calendar/integrations [get]
func (c *CalendarController) GetIntegrations(ctx echo.Context) error {
	userID, err := c.userID(ctx)
	if err != nil {
		return err
	}
	items, err := c.connections.ListIntegrations(ctx.Request().Context(), userID)
	if err != nil {
		return c.ErrorResponse(ctx, err)
	}
	return c.SuccessResponse(ctx, dto.IntegrationListResponse{Integrations: items}, "Calendar connections retrieved successfully")
}

// GetCalendars lists the calendars the connected account can write to
// @Summary List provider calendars
// @Tags Calendar
// @Security BearerAuth
// @Produce json
// @Param id path string true "Integration ID"
// @Success 200 {object} dto.ExternalCalendarListResponse
// @Failure 409 {object} errors.AppError
// @Router /private/calendar/integrations/{id}/calendars [get]
func (c *CalendarController) GetCalendars(ctx echo.Context) error {
	userID, err := c.userID(ctx)
	if err != nil {
		return err
	}
	id, err := c.pathID(ctx, "id")
	if err != nil {
		return err
	}
	cals, err := c.connections.ListExternalCalendars(ctx.Request().Context(), userID, id)
	if err != nil {
		return c.ErrorResponse(ctx, err)
	}
	return c.SuccessResponse(ctx, dto.ExternalCalendarListResponse{Calendars: cals}, "Calendars retrieved successfully")
}

// UpdateIntegration changes the target calendar or pauses sync
// @Summary Update a calendar connection
// @Tags Calendar
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Integration ID"
// @Param request body dto.UpdateIntegrationRequest true "Settings"
// @Success 200 {object} dto.IntegrationResponse
// @Router /private/calendar/integrations/{id} [patch]
func (c *CalendarController) UpdateIntegration(ctx echo.Context) error {
	userID, err := c.userID(ctx)
	if err != nil {
		return err
	}
	id, err := c.pathID(ctx, "id")
	if err != nil {
		return err
	}
	var req dto.UpdateIntegrationRequest
	if err := ctx.Bind(&req); err != nil {
		return c.BadRequest(errors.ErrInvalidInput, "Invalid request body")
	}
	result, err := c.connections.UpdateSettings(ctx.Request().Context(), userID, id, &req)
	if err != nil {
		return c.ErrorResponse(ctx, err)
	}
	return c.SuccessResponse(ctx, result, "Calendar connection updated successfully")
}

// DeleteIntegration revokes and removes a connection
// @Summary Disconnect a calendar
// @Tags Calendar
// @Security BearerAuth
// @Param id path string true "Integration ID"
// @Success 200 {object} controller.SuccessResponse
// @Router /private/calendar/integrations/{id} [delete]
func (c *CalendarController) DeleteIntegration(ctx echo.Context) error {
	userID, err := c.userID(ctx)
	if err != nil {
		return err
	}
	id, err := c.pathID(ctx, "id")
	if err != nil {
		return err
	}
	if err := c.connections.Disconnect(ctx.Request().Context(), userID, id); err != nil {
		return c.ErrorResponse(ctx, err)
	}
	return c.SuccessResponse(ctx, nil, "Calendar disconnected successfully")
}

// Resync queues a full push of the user's entities
// @Summary Resync all entities
// @Tags Calendar
// @Security BearerAuth
// @Success 202 {object} controller.SuccessResponse
// @Router /private/calendar/resync [post]
func (c *CalendarController) Resync(ctx echo.Context) error {
	userID, err := c.userID(ctx)
	if err != nil {
		return err
	}
	if err := c.resync.OwnerChanged(ctx.Request().Context(), userID); err != nil {
		return c.InternalServerError(errors.ErrInternalServer, "Failed to queue resync")
	}
	return ctx.JSON(http.StatusAccepted, controller.NewSuccessResponse(http.StatusAccepted, nil, "Resync queued"))
}

// SyncEntity pushes one entity now and reports per integration outcomes
// @Summary Sync one entity
// @Tags Calendar
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body dto.SyncEntityRequest true "Entity"
// @Success 200 {object} dto.SyncEntityResponse
// @Router /private/calendar/sync [post]
func (c *CalendarController) SyncEntity(ctx echo.Context) error {
	userID, err := c.userID(ctx)
	if err != nil {
		return err
	}
	var req dto.SyncEntityRequest
	if err := ctx.Bind(&req); err != nil || req.EntityType == "" || req.EntityID == "" {
		return c.BadRequest(errors.ErrInvalidInput, "entity_type and entity_id are required")
	}

	ref := dto.EntityRef{Type: req.EntityType, ID: req.EntityID, OwnerID: userID}
	results, err := c.sync.FanOut(ctx.Request().Context(), ref)
	if err != nil {
		return c.ErrorResponse(ctx, err)
	}
	c.feeds.InvalidateOwner(ctx.Request().Context(), userID)
	return c.SuccessResponse(ctx, dto.SyncEntityResponse{Results: results}, "Sync finished")
}

// CreateFeedToken issues a subscription link
// @Summary Create a feed link
// @Description The token is only returned once
// @Tags Calendar
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body dto.CreateFeedTokenRequest false "Label and lifetime"
// @Success 201 {object} dto.FeedTokenResponse
// @Router /private/calendar/feed-tokens [post]
func (c *CalendarController) CreateFeedToken(ctx echo.Context) error {
	userID, err := c.userID(ctx)
	if err != nil {
		return err
	}
	var req dto.CreateFeedTokenRequest
	if err := ctx.Bind(&req); err != nil {
		return c.BadRequest(errors.ErrInvalidInput, "Invalid request body")
	}
	if req.TTLHours < 0 {
		return c.BadRequest(errors.ErrInvalidInput, "ttl_hours must not be negative")
	}
	result, err := c.feeds.CreateToken(ctx.Request().Context(), userID, req.Label, time.Duration(req.TTLHours)*time.Hour)
	if err != nil {
		return c.ErrorResponse(ctx, err)
	}
	return c.CreatedResponse(ctx, result, "Feed link created")
}

// GetFeedTokens lists subscription links
// @Summary List feed links
// @Tags Calendar
// @Security BearerAuth
// @Produce json
// @Success 200 {object} dto.FeedTokenListResponse
// @Router /private/calendar/feed-tokens [get]
func (c *CalendarController) GetFeedTokens(ctx echo.Context) error {
	userID, err := c.userID(ctx)
	if err != nil {
		return err
	}
	tokens, err := c.feeds.ListTokens(ctx.Request().Context(), userID)
	if err != nil {
		return c.ErrorResponse(ctx, err)
	}
	return c.SuccessResponse(ctx, dto.FeedTokenListResponse{Tokens: tokens}, "Feed links retrieved successfully")
}

// DeleteFeedToken revokes a subscription link
// @Summary Revoke a feed link
// @Tags Calendar
// @Security BearerAuth
// @Param id path string true "Feed token ID"
// @Success 200 {object} controller.SuccessResponse
// @Router /private/calendar/feed-tokens/{id} [delete]
func (c *CalendarController) DeleteFeedToken(ctx echo.Context) error {
	userID, err := c.userID(ctx)
	if err != nil {
		return err
	}
	id, err := c.pathID(ctx, "id")
	if err != nil {
		return err
	}
	if err := c.feeds.RevokeToken(ctx.Request().Context(), userID, id); err != nil {
		return c.ErrorResponse(ctx, err)
	}
	return c.SuccessResponse(ctx, nil, "Feed link revoked")
}

// Feed serves the iCalendar document behind a subscription link
// @Summary Calendar feed
// @Tags Calendar
// @Produce text/calendar
// @Param token path string true "Feed token, optionally suffixed with .ics"
// @Success 200 {string} string
// @Failure 404 {object} errors.AppError
// @Failure 410 {object} errors.AppError
// @Router /public/calendar/feed/{token} [get]
func (c *CalendarController) Feed(ctx echo.Context) error {
	token := strings.TrimSuffix(ctx.Param("token"), ".ics")
	reqCtx := ctx.Request().Context()

	ownerID, err := c.feeds.ResolveToken(reqCtx, token)
	if err != nil {
		return c.ErrorResponse(ctx, err)
	}
	body, err := c.feeds.Render(reqCtx, ownerID)
	if err != nil {
		return c.ErrorResponse(ctx, err)
	}

	name := slug.Make(c.feeds.FeedName())
	if name == "" {
		name = "calendar"
	}
	header := ctx.Response().Header()
	header.Set(echo.HeaderContentDisposition, fmt.Sprintf(`inline; filename="%s.ics"`, name))
	header.Set("Cache-Control", feedCacheControl)
	return ctx.Blob(http.StatusOK, "text/calendar; charset=utf-8", body)
}
