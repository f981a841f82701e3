// Package handlers exposes the negotiation API over HTTP.
package handlers

import (
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	appctx "github.com/Ramsey-B/clover/pkg/context"
)

const dateLayout = "2006-01-02"

// RequireRole ensures the authenticated actor carries the given role.
func RequireRole(c echo.Context, role string) error {
	if appctx.GetRole(c.Request().Context()) != role {
		return httperror.NewHTTPError(http.StatusForbidden, "insufficient role")
	}
	return nil
}

// GetClientID extracts the acting client account from context. Client routes
// always scope to the authenticated client; the id never comes from the body.
func GetClientID(c echo.Context) (uuid.UUID, error) {
	ctx := c.Request().Context()
	clientIDStr := appctx.GetClientID(ctx)
	if clientIDStr == "" {
		return uuid.Nil, httperror.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	clientID, err := uuid.Parse(clientIDStr)
	if err != nil {
		return uuid.Nil, httperror.NewHTTPError(http.StatusUnauthorized, "invalid authentication token")
	}

	return clientID, nil
}

// ParseBodyUUID parses a UUID from a request body field
func ParseBodyUUID(field, value string) (uuid.UUID, error) {
	if value == "" {
		return uuid.Nil, httperror.NewHTTPError(http.StatusBadRequest, "missing "+field)
	}

	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid %s: must be a valid UUID", field)
	}

	return id, nil
}

// ParseDate parses a YYYY-MM-DD date from a request body field
func ParseDate(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, httperror.NewHTTPError(http.StatusBadRequest, "missing "+field)
	}

	d, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid %s: must be YYYY-MM-DD", field)
	}

	return d, nil
}

// SuccessResponse returns a 200 OK with the standard success envelope
func SuccessResponse(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

// DataResponse returns a 200 OK with data
func DataResponse(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, data)
}

// BadRequest returns a 400 Bad Request error
func BadRequest(message string) error {
	return httperror.NewHTTPError(http.StatusBadRequest, message)
}
