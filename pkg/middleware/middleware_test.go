package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"automation-scheduler/config"
	"automation-scheduler/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func TestWithContext_SetsRequestIDAndDeadline(t *testing.T) {
	e := echo.New()
	var hasDeadline bool
	e.GET("/ping", func(c echo.Context) error {
		_, hasDeadline = c.Request().Context().Deadline()
		return c.String(http.StatusOK, "pong")
	}, WithContext(logger.NewNop(), time.Minute))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderRequestID, "req-1")
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-1", rec.Header().Get(HeaderRequestID))
	assert.True(t, hasDeadline)
}

func TestRateLimiter_Denies(t *testing.T) {
	e := echo.New()
	e.Use(NewRateLimiterMiddleware(config.API{RateLimit: 1, RateBurst: 1}))
	e.GET("/ping", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, http.StatusOK, codes[0])
	assert.Contains(t, codes[1:], http.StatusTooManyRequests)
}
