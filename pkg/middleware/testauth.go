// Package middleware provides HTTP middleware for Clover.
package middleware

import (
	"github.com/labstack/echo/v4"

	appctx "github.com/Ramsey-B/clover/pkg/context"
)

// TestAuth middleware extracts the actor identity from headers when auth is
// disabled. This allows testing the API without a real JWT auth system.
// Headers:
//   - X-User-ID: The acting user ID
//   - X-User-Role: The acting user's role (admin, client, partner, specialist)
//   - X-Client-ID: The client account the request acts on
//
// WARNING: Only use this when AUTH_ENABLED=false. Do not enable in production.
func TestAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()

			userID := c.Request().Header.Get("X-User-ID")
			if userID != "" {
				ctx = appctx.SetUserID(ctx, userID)
			}

			role := c.Request().Header.Get("X-User-Role")
			if role != "" {
				ctx = appctx.SetRole(ctx, role)
			}

			clientID := c.Request().Header.Get("X-Client-ID")
			if clientID != "" {
				ctx = appctx.SetClientID(ctx, clientID)
			}

			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}
