package http

import (
	"net/http"

	"automation-scheduler/internal/dto"
	"automation-scheduler/internal/model"
	"automation-scheduler/pkg/utils"

	"github.com/labstack/echo/v4"
)

func (h *HttpAPIHandler) SetupSchedules(base *echo.Group) {
	v1 := base.Group("/v1/schedules")
	{
		v1.GET("", h.listSchedules)
		v1.POST("", h.createSchedule)
		v1.GET("/:id", h.getSchedule)
		v1.PUT("/:id", h.updateSchedule)
		v1.DELETE("/:id", h.deleteSchedule)
		v1.GET("/:id/executions", h.listScheduleExecutions)
		v1.POST("/:id/trigger", h.triggerSchedule)
		v1.POST("/:id/pause", h.pauseSchedule)
		v1.POST("/:id/resume", h.resumeSchedule)
	}
}

func (h *HttpAPIHandler) listSchedules(c echo.Context) error {
	req := new(dto.ListSchedulesRequest)
	if ok, err := h.bind(c, req); !ok {
		return err
	}

	param := model.GetScheduleParam{IsEnabled: req.IsEnabled}
	if req.TenantID != "" {
		param.TenantID = utils.ToPointer(req.TenantID)
	}
	if req.JobType != "" {
		param.JobType = utils.ToPointer(model.JobType(req.JobType))
	}
	if req.Limit > 0 {
		param.Limit = utils.ToPointer(req.Limit)
	}
	if req.Offset > 0 {
		param.Offset = utils.ToPointer(req.Offset)
	}

	schedules, err := h.service.ScheduleService.List(c.Request().Context(), param)
	if err != nil {
		return h.errorResponse(c, err)
	}
	resp := make([]dto.ScheduleResponse, 0, len(schedules))
	for _, s := range schedules {
		resp = append(resp, dto.NewScheduleResponse(s))
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("ok", resp))
}

func (h *HttpAPIHandler) createSchedule(c echo.Context) error {
	req := new(dto.ScheduleRequest)
	if ok, err := h.bind(c, req); !ok {
		return err
	}

	schedule, err := h.service.ScheduleService.Create(c.Request().Context(), *req, actor(c.QueryParam("by")))
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusCreated, dto.NewBaseResponse(http.StatusCreated, "Schedule created", dto.NewScheduleResponse(*schedule)))
}

func (h *HttpAPIHandler) getSchedule(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return h.errorResponse(c, err)
	}
	schedule, err := h.service.ScheduleService.Get(c.Request().Context(), id)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("ok", dto.NewScheduleResponse(*schedule)))
}

func (h *HttpAPIHandler) updateSchedule(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return h.errorResponse(c, err)
	}
	req := new(dto.ScheduleRequest)
	if ok, err := h.bind(c, req); !ok {
		return err
	}

	schedule, err := h.service.ScheduleService.Update(c.Request().Context(), id, *req)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("Schedule updated", dto.NewScheduleResponse(*schedule)))
}

func (h *HttpAPIHandler) deleteSchedule(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return h.errorResponse(c, err)
	}
	if err := h.service.ScheduleService.Delete(c.Request().Context(), id); err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("Schedule deleted", nil))
}

func (h *HttpAPIHandler) listScheduleExecutions(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return h.errorResponse(c, err)
	}
	req := new(dto.ListExecutionsRequest)
	if ok, err := h.bind(c, req); !ok {
		return err
	}

	param := model.GetJobExecutionParam{ScheduleID: utils.ToPointer(id)}
	if req.Status != "" {
		param.Status = utils.ToPointer(model.ExecutionStatus(req.Status))
	}
	if req.Limit > 0 {
		param.Limit = utils.ToPointer(req.Limit)
	}

	executions, err := h.service.ScheduleService.ListExecutions(c.Request().Context(), param)
	if err != nil {
		return h.errorResponse(c, err)
	}
	resp := make([]dto.JobExecutionResponse, 0, len(executions))
	for _, e := range executions {
		resp = append(resp, dto.NewJobExecutionResponse(e))
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("ok", resp))
}

func (h *HttpAPIHandler) triggerSchedule(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return h.errorResponse(c, err)
	}
	req := new(dto.ActorRequest)
	if ok, err := h.bind(c, req); !ok {
		return err
	}

	execution, err := h.service.SchedulerService.Trigger(c.Request().Context(), id, actor(req.By))
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusAccepted, dto.NewAcceptedResponse("Schedule triggered", dto.NewJobExecutionResponse(*execution)))
}

func (h *HttpAPIHandler) pauseSchedule(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return h.errorResponse(c, err)
	}
	schedule, err := h.service.SchedulerService.Pause(c.Request().Context(), id)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("Schedule paused", dto.NewScheduleResponse(*schedule)))
}

func (h *HttpAPIHandler) resumeSchedule(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return h.errorResponse(c, err)
	}
	schedule, err := h.service.SchedulerService.Resume(c.Request().Context(), id)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("Schedule resumed", dto.NewScheduleResponse(*schedule)))
}
