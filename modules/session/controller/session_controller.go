package controller

import (
	"calendar-sync/core/controller"
	"calendar-sync/core/errors"
	"calendar-sync/core/params"
	"calendar-sync/modules/session/dto"
	"calendar-sync/modules/session/service"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type SessionController struct {
	controller.BaseController
	SessionService service.SessionService
}

func NewSessionController(svc service.SessionService) *SessionController {
	return &SessionController{
		BaseController: controller.NewBaseController(),
		SessionService: svc,
	}
}

func (c *SessionController) ids(ctx echo.Context) (uuid.UUID, uuid.UUID, error) {
	hostID, err := controller.UserIDFromContext(ctx)
	if err != nil {
		return uuid.Nil, uuid.Nil, c.Unauthorized(errors.ErrUnauthorized, "User not authenticated")
	}
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, c.BadRequest(errors.ErrInvalidInput, "Invalid session ID")
	}
	return hostID, id, nil
}

// CreateSession handles POST /sessions
// @Summary Create a session
// @Description Creates a session; sessions with a start date are pushed to connected calendars
// @Tags Session
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body dto.CreateSessionRequest true "Session"
// @Success 201 {object} dto.SessionResponse
// @Failure 400 {object} errors.AppError
// @Router /private/sessions [post]
func (c *SessionController) CreateSession(ctx echo.Context) error {
	hostID, err := controller.UserIDFromContext(ctx)
	if err != nil {
		return c.Unauthorized(errors.ErrUnauthorized, "User not authenticated")
	}

	var req dto.CreateSessionRequest
	if err := ctx.Bind(&req); err != nil {
		return c.BadRequest(errors.ErrInvalidInput, "Invalid request body")
	}

	result, appErr := c.SessionService.Create(ctx.Request().Context(), hostID, &req)
	if appErr != nil {
		return c.ErrorResponse(ctx, appErr)
	}
	return c.CreatedResponse(ctx, result, "Session created successfully")
}

// GetMySessions handles GET /sessions
// @Summary List my sessions
// @Tags Session
// @Security BearerAuth
// @Produce json
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} dto.SessionResponse
// @Router /private/sessions [get]
func (c *SessionController) GetMySessions(ctx echo.Context) error {
	hostID, err := controller.UserIDFromContext(ctx)
	if err != nil {
		return c.Unauthorized(errors.ErrUnauthorized, "User not authenticated")
	}

	result, appErr := c.SessionService.ListMine(ctx.Request().Context(), hostID, *params.NewQueryParams(ctx))
	if appErr != nil {
		return c.ErrorResponse(ctx, appErr)
	}
	return c.SuccessResponse(ctx, result, "Sessions retrieved successfully")
}

// GetSession handles GET /sessions/:id
// @Summary Get a session
// @Tags Session
// @Security BearerAuth
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} dto.SessionResponse
// @Failure 404 {object} errors.AppError
// @Router /private/sessions/{id} [get]
func (c *SessionController) GetSession(ctx echo.Context) error {
	hostID, id, err := c.ids(ctx)
	if err != nil {
		return err
	}
	result, appErr := c.SessionService.Get(ctx.Request().Context(), hostID, id)
	if appErr != nil {
		return c.ErrorResponse(ctx, appErr)
	}
	return c.SuccessResponse(ctx, result, "Session retrieved successfully")
}

// UpdateSession handles PATCH /sessions/:id
// @Summary Update session details
// @Tags Session
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param request body dto.UpdateSessionRequest true "Fields to change"
// @Success 200 {object} dto.SessionResponse
// @Router /private/sessions/{id} [patch]
func (c *SessionController) UpdateSession(ctx echo.Context) error {
	hostID, id, err := c.ids(ctx)
	if err != nil {
		return err
	}
	var req dto.UpdateSessionRequest
	if err := ctx.Bind(&req); err != nil {
		return c.BadRequest(errors.ErrInvalidInput, "Invalid request body")
	}
	result, appErr := c.SessionService.Update(ctx.Request().Context(), hostID, id, &req)
	if appErr != nil {
		return c.ErrorResponse(ctx, appErr)
	}
	return c.SuccessResponse(ctx, result, "Session updated successfully")
}

// RescheduleSession handles POST /sessions/:id/reschedule
// @Summary Reschedule a session
// @Tags Session
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param request body dto.RescheduleSessionRequest true "New time"
// @Success 200 {object} dto.SessionResponse
// @Router /private/sessions/{id}/reschedule [post]
func (c *SessionController) RescheduleSession(ctx echo.Context) error {
	hostID, id, err := c.ids(ctx)
	if err != nil {
		return err
	}
	var req dto.RescheduleSessionRequest
	if err := ctx.Bind(&req); err != nil {
		return c.BadRequest(errors.ErrInvalidInput, "Invalid request body")
	}
	result, appErr := c.SessionService.Reschedule(ctx.Request().Context(), hostID, id, &req)
	if appErr != nil {
		return c.ErrorResponse(ctx, appErr)
	}
	return c.SuccessResponse(ctx, result, "Session rescheduled successfully")
}

// ConfirmSession handles POST /sessions/:id/confirm
// @Summary Confirm a pending session
// @Tags Session
// @Security BearerAuth
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} dto.SessionResponse
// @Router /private/sessions/{id}/confirm [post]
func (c *SessionController) ConfirmSession(ctx echo.Context) error {
	hostID, id, err := c.ids(ctx)
	if err != nil {
		return err
	}
	result, appErr := c.SessionService.Confirm(ctx.Request().Context(), hostID, id)
	if appErr != nil {
		return c.ErrorResponse(ctx, appErr)
	}
	return c.SuccessResponse(ctx, result, "Session confirmed successfully")
}

// CancelSession handles POST /sessions/:id/cancel
// @Summary Cancel a session
// @Description Cancelled sessions are removed from connected calendars and feeds
// @Tags Session
// @Security BearerAuth
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} dto.SessionResponse
// @Router /private/sessions/{id}/cancel [post]
func (c *SessionController) CancelSession(ctx echo.Context) error {
	hostID, id, err := c.ids(ctx)
	if err != nil {
		return err
	}
	result, appErr := c.SessionService.Cancel(ctx.Request().Context(), hostID, id)
	if appErr != nil {
		return c.ErrorResponse(ctx, appErr)
	}
	return c.SuccessResponse(ctx, result, "Session cancelled successfully")
}

// DeleteSession handles DELETE /sessions/:id
// @Summary Delete a session
// @Tags Session
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Success 200 {object} controller.SuccessResponse
// @Router /private/sessions/{id} [delete]
func (c *SessionController) DeleteSession(ctx echo.Context) error {
	hostID, id, err := c.ids(ctx)
	if err != nil {
		return err
	}
	if appErr := c.SessionService.Delete(ctx.Request().Context(), hostID, id); appErr != nil {
		return c.ErrorResponse(ctx, appErr)
	}
	return c.SuccessResponse(ctx, nil, "Session deleted successfully")
}
