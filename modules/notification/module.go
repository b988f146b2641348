package notification

import (
	"calendar-sync/core/database"
	"calendar-sync/core/middleware"
	"calendar-sync/modules/notification/controller"
	"calendar-sync/modules/notification/repository"
	"calendar-sync/modules/notification/router"
	"calendar-sync/modules/notification/service"

	"github.com/labstack/echo/v4"
)

// Init registers notification routes. The returned service also receives calendar alerts.
func Init(e *echo.Group, db database.Database, mw *middleware.Middleware) *service.NotificationService {
	repo := repository.NewNotificationRepository(db)
	svc := service.NewNotificationService(repo)
	ctrl := controller.NewNotificationController(svc)

	router.NewNotificationRouter(ctrl).Register(e, mw)

	return svc
}
