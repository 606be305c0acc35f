package http

import (
	"net/http"

	"automation-scheduler/internal/dto"
	"automation-scheduler/internal/model"
	"automation-scheduler/pkg/utils"

	"github.com/labstack/echo/v4"
)

// stepRoutes maps the single-step endpoints onto orchestration steps.
var stepRoutes = map[string]model.OrchestrationStep{
	"create-jobs":        model.StepCreateJobs,
	"verify-credentials": model.StepVerifyCredentials,
	"process-scraping":   model.StepSendRequests,
	"check-statuses":     model.StepCheckStatuses,
	"sync-accounts":      model.StepSyncAccounts,
	"cleanup":            model.StepCleanup,
}

func (h *HttpAPIHandler) SetupAdr(base *echo.Group) {
	orchestrate := base.Group("/v1/adr/orchestrate")
	{
		for route, step := range stepRoutes {
			orchestrate.POST("/"+route, h.runStep(step))
		}
		orchestrate.POST("/run-full-cycle", h.runFullCycle)
		orchestrate.POST("/run-background", h.runBackground)
		orchestrate.GET("/current", h.currentOrchestration)
		orchestrate.GET("/status/:requestId", h.orchestrationStatus)
		orchestrate.GET("/history", h.orchestrationHistory)
		orchestrate.POST("/:requestId/cancel", h.cancelOrchestration)
	}

	accounts := base.Group("/v1/adr/accounts")
	{
		accounts.GET("", h.listAdrAccounts)
		accounts.GET("/:id", h.getAdrAccount)
		accounts.PUT("/:id/override", h.setAdrAccountOverride)
		accounts.DELETE("/:id/override", h.clearAdrAccountOverride)
	}
}

func (h *HttpAPIHandler) runStep(step model.OrchestrationStep) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := new(dto.ActorRequest)
		if ok, err := h.bind(c, req); !ok {
			return err
		}
		run, err := h.service.AdrOrchestratorService.RunStep(c.Request().Context(), step, actor(req.By))
		if err != nil {
			return h.errorResponse(c, err)
		}
		return c.JSON(http.StatusOK, dto.NewSuccessResponse(string(step)+" finished", run))
	}
}

func (h *HttpAPIHandler) runFullCycle(c echo.Context) error {
	req := new(dto.ActorRequest)
	if ok, err := h.bind(c, req); !ok {
		return err
	}
	run, err := h.service.AdrOrchestratorService.RunFullCycle(c.Request().Context(), actor(req.By))
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("Full cycle finished", run))
}

func (h *HttpAPIHandler) runBackground(c echo.Context) error {
	req := new(dto.ActorRequest)
	if ok, err := h.bind(c, req); !ok {
		return err
	}
	requestID, err := h.service.AdrOrchestratorService.StartBackground(c.Request().Context(), actor(req.By))
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusAccepted, dto.NewAcceptedResponse("Full cycle started", map[string]string{"request_id": requestID}))
}

func (h *HttpAPIHandler) currentOrchestration(c echo.Context) error {
	run := h.service.AdrOrchestratorService.Current()
	if run == nil {
		return c.JSON(http.StatusOK, dto.NewSuccessResponse("No orchestration is running", nil))
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("ok", run))
}

func (h *HttpAPIHandler) orchestrationStatus(c echo.Context) error {
	run, err := h.service.AdrOrchestratorService.Status(c.Request().Context(), c.Param("requestId"))
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("ok", run))
}

func (h *HttpAPIHandler) orchestrationHistory(c echo.Context) error {
	req := new(dto.HistoryRequest)
	if ok, err := h.bind(c, req); !ok {
		return err
	}
	runs, err := h.service.AdrOrchestratorService.History(c.Request().Context(), req.Limit)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("ok", runs))
}

func (h *HttpAPIHandler) cancelOrchestration(c echo.Context) error {
	req := new(dto.ActorRequest)
	if ok, err := h.bind(c, req); !ok {
		return err
	}
	run, err := h.service.AdrOrchestratorService.Cancel(c.Request().Context(), c.Param("requestId"), actor(req.By))
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("Cancellation requested", run))
}

func (h *HttpAPIHandler) listAdrAccounts(c echo.Context) error {
	req := new(dto.ListAdrAccountsRequest)
	if ok, err := h.bind(c, req); !ok {
		return err
	}
	param := model.GetAdrAccountParam{IsActive: req.IsActive, IsMissing: req.IsMissing}
	if req.Limit > 0 {
		param.Limit = utils.ToPointer(req.Limit)
	}

	accounts, err := h.service.AdrAccountService.List(c.Request().Context(), param)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("ok", accounts))
}

func (h *HttpAPIHandler) getAdrAccount(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return h.errorResponse(c, err)
	}
	account, err := h.service.AdrAccountService.Get(c.Request().Context(), id)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("ok", account))
}

func (h *HttpAPIHandler) setAdrAccountOverride(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return h.errorResponse(c, err)
	}
	req := new(dto.AdrAccountOverrideRequest)
	if ok, err := h.bind(c, req); !ok {
		return err
	}

	account, err := h.service.AdrAccountService.SetOverride(c.Request().Context(), id, *req)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("Override set", account))
}

func (h *HttpAPIHandler) clearAdrAccountOverride(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return h.errorResponse(c, err)
	}
	account, err := h.service.AdrAccountService.ClearOverride(c.Request().Context(), id, actor(c.QueryParam("by")))
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, dto.NewSuccessResponse("Override cleared", account))
}
