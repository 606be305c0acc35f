package middleware

import (
	"context"
	"time"

	"automation-scheduler/pkg/logger"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const HeaderRequestID = "X-Request-ID"

// WithContext bounds every request with timeout and attaches a logger carrying
// the request id, so handlers and services log with it through FromContext.
func WithContext(log *logger.Logger, timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			requestID := c.Request().Header.Get(HeaderRequestID)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			c.Response().Header().Set(HeaderRequestID, requestID)

			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()

			reqLog := log.With(
				logger.StringField("request_id", requestID),
				logger.StringField("path", c.Path()),
			)
			ctx = logger.NewContext(ctx, reqLog)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}
