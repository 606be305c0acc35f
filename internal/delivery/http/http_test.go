package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"automation-scheduler/internal/dto"
	"automation-scheduler/internal/model"
	"automation-scheduler/internal/service"
	"automation-scheduler/pkg/errors"
	"automation-scheduler/pkg/logger"

	goValidator "github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubScheduler struct {
	service.SchedulerService
	triggerErr  error
	triggeredBy string
}

func (s *stubScheduler) Trigger(_ context.Context, scheduleID uint, triggeredBy string) (*model.JobExecution, error) {
	s.triggeredBy = triggeredBy
	if s.triggerErr != nil {
		return nil, s.triggerErr
	}
	return &model.JobExecution{ID: 5, ScheduleID: scheduleID, Status: model.ExecutionStatusRunning}, nil
}

type stubOrchestrator struct {
	service.AdrOrchestratorService
	step model.OrchestrationStep
}

func (s *stubOrchestrator) StartBackground(context.Context, string) (string, error) {
	return "req-1", nil
}

func (s *stubOrchestrator) RunStep(_ context.Context, step model.OrchestrationStep, _ string) (*model.AdrOrchestrationRun, error) {
	s.step = step
	return &model.AdrOrchestrationRun{RequestID: "req-2", Status: model.OrchestrationStatusCompleted}, nil
}

func (s *stubOrchestrator) Current() *model.AdrOrchestrationRun {
	return nil
}

func newTestServer(svc *service.Service) *echo.Echo {
	e := echo.New()
	NewHttpAPIHandler(context.Background(), e, goValidator.New(), svc, logger.NewNop()).SetupRoutes()
	return e
}

func do(e *echo.Echo, method, path, body string) (*httptest.ResponseRecorder, dto.BaseResponse) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var resp dto.BaseResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec, resp
}

func TestTriggerSchedule(t *testing.T) {
	sched := &stubScheduler{}
	e := newTestServer(&service.Service{SchedulerService: sched})

	rec, resp := do(e, http.MethodPost, "/api/v1/schedules/3/trigger", `{"by":"alice"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "Schedule triggered", resp.Message)
	assert.Equal(t, "alice", sched.triggeredBy)

	_, _ = do(e, http.MethodPost, "/api/v1/schedules/3/trigger", "")
	assert.Equal(t, "api", sched.triggeredBy)
}

func TestTriggerSchedule_Errors(t *testing.T) {
	tests := []struct {
		name string
		path string
		err  error
		want int
	}{
		{"conflict", "/api/v1/schedules/3/trigger", errors.Mark(errors.New("busy"), errors.ErrConcurrencyConflict), http.StatusConflict},
		{"not found", "/api/v1/schedules/3/trigger", errors.Mark(errors.New("missing"), errors.ErrNotFound), http.StatusNotFound},
		{"internal", "/api/v1/schedules/3/trigger", errors.New("db down"), http.StatusInternalServerError},
		{"bad id", "/api/v1/schedules/abc/trigger", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestServer(&service.Service{SchedulerService: &stubScheduler{triggerErr: tt.err}})
			rec, resp := do(e, http.MethodPost, tt.path, "")
			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, tt.want, resp.Code)
		})
	}
}

func TestCreateSchedule_ValidationFails(t *testing.T) {
	e := newTestServer(&service.Service{})

	rec, _ := do(e, http.MethodPost, "/api/v1/schedules", `{"name":"","job_type":"Shell"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdrRoutes(t *testing.T) {
	orch := &stubOrchestrator{}
	e := newTestServer(&service.Service{AdrOrchestratorService: orch})

	rec, resp := do(e, http.MethodPost, "/api/v1/adr/orchestrate/run-background", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, map[string]interface{}{"request_id": "req-1"}, resp.Data)

	rec, _ = do(e, http.MethodPost, "/api/v1/adr/orchestrate/process-scraping", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.StepSendRequests, orch.step)

	rec, resp = do(e, http.MethodGet, "/api/v1/adr/orchestrate/current", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, resp.Data)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errors.Mark(errors.New("x"), errors.ErrValidation), http.StatusBadRequest},
		{errors.Mark(errors.New("x"), errors.ErrScheduleConfiguration), http.StatusBadRequest},
		{errors.Mark(errors.New("x"), errors.ErrSystemProtected), http.StatusForbidden},
		{errors.Mark(errors.New("x"), errors.ErrOrchestrationAlreadyRunning), http.StatusConflict},
		{errors.Mark(errors.New("x"), errors.ErrInvalidTransition), http.StatusConflict},
		{errors.Wrap(errors.Mark(errors.New("x"), errors.ErrNotFound), "load"), http.StatusNotFound},
		{errors.New("x"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
