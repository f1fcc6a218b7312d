// Package handler contains the Echo HTTP handlers. Handlers stay thin:
// bind and validate the request, call the service, translate the error
// taxonomy into JSON responses.
package handler

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/azurestay/booking/internal/middleware"
	"github.com/azurestay/booking/internal/model"
	"github.com/azurestay/booking/internal/service"
)

// Validator adapts validator/v10 to Echo's Validator interface.
type Validator struct {
	v *validator.Validate
}

// NewValidator returns the request validator used by all handlers.
func NewValidator() *Validator {
	return &Validator{v: validator.New()}
}

func (cv *Validator) Validate(i interface{}) error {
	if err := cv.v.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// userID returns the authenticated caller's id, set by the JWT
// middleware. Zero means the route was wired without auth by mistake.
func userID(c echo.Context) uint64 {
	if v, ok := c.Get(middleware.CtxUserID).(uint64); ok {
		return v
	}
	return 0
}

// isAdmin reports whether the caller carries the admin role.
func isAdmin(c echo.Context) bool {
	role, _ := c.Get(middleware.CtxRole).(string)
	return role == model.RoleAdmin
}

// writeServiceError translates the service error taxonomy into a JSON
// response. Unknown errors are logged with context and hidden behind a
// generic 500.
func writeServiceError(c echo.Context, log *zap.SugaredLogger, err error) error {
	switch e := err.(type) {
	case *service.ValidationError:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": e.Msg})
	case *service.ConflictError:
		return c.JSON(http.StatusConflict, echo.Map{
			"error":         "apartment is not available for the selected dates",
			"availableFrom": e.AvailableFrom.Format("2006-01-02"),
		})
	case *service.StateError:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": e.Msg})
	case *service.UpstreamError:
		log.Errorw("payment gateway failure", "op", e.Op, "err", e.Err,
			"path", c.Path())
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "payment gateway unavailable"})
	}
	if errors.Is(err, service.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	}
	log.Errorw("unhandled error", "err", err, "path", c.Path())
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
}
