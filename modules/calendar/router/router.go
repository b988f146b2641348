package router

import (
	"calendar-sync/core/middleware"
	"calendar-sync/modules/calendar/controller"

	"github.com/labstack/echo/v4"
)

type CalendarRouter struct {
	controller *controller.CalendarController
}

func NewCalendarRouter(controller *controller.CalendarController) *CalendarRouter {
	return &CalendarRouter{
		controller: controller,
	}
}

func (r *CalendarRouter) Setup(e *echo.Echo, mw *middleware.Middleware) {
	v1 := e.Group("/api/v1")

	// Public routes
	publicRoutes := v1.Group("/public/calendar")
	publicRoutes.GET("/oauth/callback", r.controller.OAuthCallback)
	publicRoutes.GET("/feed/:token", r.controller.Feed)

	// Private routes (require authentication)
	calendarRoutes := v1.Group("/private/calendar")
	calendarRoutes.Use(mw.AuthMiddleware())

	// Connections
	calendarRoutes.POST("/connect", r.controller.Connect)
	calendarRoutes.GET("/integrations", r.controller.GetIntegrations)
	calendarRoutes.GET("/integrations/:id/calendars", r.controller.GetCalendars)
	calendarRoutes.PATCH("/integrations/:id", r.controller.UpdateIntegration)
	calendarRoutes.DELETE("/integrations/:id", r.controller.DeleteIntegration)

	// Sync
	calendarRoutes.POST("/sync", r.controller.SyncEntity)
	calendarRoutes.POST("/resync", r.controller.Resync)

	// Feed links
	calendarRoutes.POST("/feed-tokens", r.controller.CreateFeedToken)
	calendarRoutes.GET("/feed-tokens", r.controller.GetFeedTokens)
	calendarRoutes.DELETE("/feed-tokens/:id", r.controller.DeleteFeedToken)
}
