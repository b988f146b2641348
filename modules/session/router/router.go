package router

import (
	"calendar-sync/core/middleware"
	"calendar-sync/modules/session/controller"

	"github.com/labstack/echo/v4"
)

type SessionRouter struct {
	SessionController *controller.SessionController
}

func NewSessionRouter(sessionController *controller.SessionController) *SessionRouter {
	return &SessionRouter{
		SessionController: sessionController,
	}
}

// Setup registers session routes
func (r *SessionRouter) Setup(e *echo.Echo, mw *middleware.Middleware) {
	v1 := e.Group("/api/v1")
	sessionRoutes := v1.Group("/private/sessions", mw.AuthMiddleware())

	sessionRoutes.POST("", r.SessionController.CreateSession)
	sessionRoutes.GET("", r.SessionController.GetMySessions)
	sessionRoutes.GET("/:id", r.SessionController.GetSession)
	sessionRoutes.PATCH("/:id", r.SessionController.UpdateSession)
	sessionRoutes.DELETE("/:id", r.SessionController.DeleteSession)

	sessionRoutes.POST("/:id/reschedule", r.SessionController.RescheduleSession)
	sessionRoutes.POST("/:id/confirm", r.SessionController.ConfirmSession)
	sessionRoutes.POST("/:id/cancel", r.SessionController.CancelSession)
}
