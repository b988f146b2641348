package middleware

import (
	"strings"

	"calendar-sync/core/constants"
	"calendar-sync/core/controller"
	"calendar-sync/core/errors"
	"calendar-sync/core/utils"

	"github.com/labstack/echo/v4"
)

type Middleware struct {
	controller.BaseController
}

func NewMiddleware() *Middleware {
	return &Middleware{BaseController: controller.NewBaseController()}
}

// AuthMiddleware requires a valid bearer token and stores its claims in the context.
func (m *Middleware) AuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if header == "" {
				return m.Unauthorized(errors.ErrMissingAuthorizationHeader, "missing authorization header")
			}
			token, found := strings.CutPrefix(header, "Bearer ")
			if !found || token == "" {
				return m.Unauthorized(errors.ErrInvalidTokenFormat, "invalid authorization header")
			}

			claims, err := utils.ValidateAndParseToken(token)
			if err != nil {
				return m.Unauthorized(errors.ErrUnauthorized, "invalid or expired token")
			}

			c.Set(constants.ContextTokenData, claims)
			c.Set(constants.ContextUserID, claims.UserID)
			return next(c)
		}
	}
}
