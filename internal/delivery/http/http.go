package http

import (
	"context"
	"net/http"
	"strconv"

	"automation-scheduler/internal/dto"
	"automation-scheduler/internal/service"
	"automation-scheduler/pkg/common"
	"automation-scheduler/pkg/errors"
	"automation-scheduler/pkg/logger"

	goValidator "github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type HttpAPIHandler struct {
	echo      *echo.Echo
	validator *goValidator.Validate
	service   *service.Service
	log       *logger.Logger
}

func NewHttpAPIHandler(ctx context.Context, echo *echo.Echo, validator *goValidator.Validate, service *service.Service, log *logger.Logger) *HttpAPIHandler {
	return &HttpAPIHandler{
		echo:      echo,
		validator: validator,
		service:   service,
		log:       log,
	}
}

func (h *HttpAPIHandler) SetupRoutes() {
	base := h.echo.Group("/api")
	h.SetupSchedules(base)
	h.SetupJobExecutions(base)
	h.SetupAdr(base)
}

// bind decodes and validates the request into req. On failure the 400
// response has already been written and the returned bool is false.
func (h *HttpAPIHandler) bind(c echo.Context, req interface{}) (bool, error) {
	if err := c.Bind(req); err != nil {
		return false, c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse("invalid request body"))
	}
	if err := h.validator.Struct(req); err != nil {
		return false, c.JSON(http.StatusBadRequest, dto.NewBadRequestResponse(err.Error()))
	}
	return true, nil
}

func pathID(c echo.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, errors.Mark(errors.Newf("invalid %s %q", name, c.Param(name)), errors.ErrValidation)
	}
	return uint(id), nil
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errors.ErrValidation),
		errors.Is(err, errors.ErrScheduleConfiguration),
		errors.Is(err, errors.ErrParameterResolutionFailed):
		return http.StatusBadRequest
	case errors.Is(err, errors.ErrSystemProtected):
		return http.StatusForbidden
	case errors.Is(err, errors.ErrConcurrencyConflict),
		errors.Is(err, errors.ErrOrchestrationAlreadyRunning),
		errors.Is(err, errors.ErrInvalidTransition):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (h *HttpAPIHandler) errorResponse(c echo.Context, err error) error {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		h.log.ErrorContext(c.Request().Context(), "Request failed",
			logger.StringField("path", c.Path()),
			logger.ErrorField(err),
		)
	}
	return c.JSON(code, dto.NewErrorResponse(code, err.Error()))
}

func actor(by string) string {
	if by == "" {
		return common.ACTOR_API
	}
	return by
}
