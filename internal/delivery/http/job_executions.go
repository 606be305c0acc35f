package http

import (
	"net/http"

	"automation-scheduler/internal/dto"

	"github.com/labstack/echo/v4"
)

func (h *HttpAPIHandler) SetupJobExecutions(base *echo.Group) {
	v1 := base.Group("/v1/jobexecutions")
	{
		v1.GET("/:id", h.getJobExecution)
		v1.POST("/:id/cancel", h.cancelJobExecution)
		v1.POST("/:id/retry", h.retryJobExecution)
	}
}

func (h *HttpAPIHandler) getJobExecution(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return h.errorResponse(c, err)
	}
	execution, err := h.service.ScheduleService.GetExecution(c.Request().Context(), id)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("ok", dto.NewJobExecutionResponse(*execution)))
}

func (h *HttpAPIHandler) cancelJobExecution(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return h.errorResponse(c, err)
	}
	req := new(dto.ActorRequest)
	if ok, err := h.bind(c, req); !ok {
		return err
	}

	execution, err := h.service.SchedulerService.CancelExecution(c.Request().Context(), id, actor(req.By))
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("Execution cancelled", dto.NewJobExecutionResponse(*execution)))
}

// retryJobExecution fires the execution's schedule again, outside its cadence.
func (h *HttpAPIHandler) retryJobExecution(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return h.errorResponse(c, err)
	}
	req := new(dto.ActorRequest)
	if ok, err := h.bind(c, req); !ok {
		return err
	}

	execution, err := h.service.SchedulerService.RetryExecution(c.Request().Context(), id, actor(req.By))
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusAccepted, dto.NewAcceptedResponse("Execution retried", dto.NewJobExecutionResponse(*execution)))
}
