package session

import (
	"calendar-sync/core/database"
	"calendar-sync/core/middleware"
	"calendar-sync/modules/session/controller"
	"calendar-sync/modules/session/repository"
	"calendar-sync/modules/session/router"
	"calendar-sync/modules/session/service"

	"github.com/labstack/echo/v4"
)

// Init registers session routes and returns the calendar source for sessions.
func Init(e *echo.Echo, db database.Database, mw *middleware.Middleware, notifier service.ChangeNotifier, defaultTimezone string) *service.CalendarSource {
	repo := repository.NewSessionRepository(db)
	svc := service.NewSessionService(repo, notifier, defaultTimezone)
	ctrl := controller.NewSessionController(svc)

	router.NewSessionRouter(ctrl).Setup(e, mw)

	return service.NewCalendarSource(repo)
}
