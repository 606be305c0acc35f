package dto

import (
	"encoding/json"
	"time"

	"automation-scheduler/internal/model"
)

type JobParameterRequest struct {
	ParameterName    string `json:"parameter_name" validate:"required,max=100"`
	ParameterValue   string `json:"parameter_value"`
	IsDynamic        bool   `json:"is_dynamic"`
	SourceQuery      string `json:"source_query" validate:"required_if=IsDynamic true,max=255"`
	SourceConnection string `json:"source_connection" validate:"required_if=IsDynamic true,max=100"`
	DataType         string `json:"data_type" validate:"omitempty,oneof=string int decimal bool datetime"`
	DisplayOrder     int    `json:"display_order"`
}

type ScheduleRequest struct {
	TenantID          string                `json:"tenant_id" validate:"max=100"`
	Name              string                `json:"name" validate:"required,max=255"`
	Description       string                `json:"description"`
	JobType           model.JobType         `json:"job_type" validate:"required,oneof=Process StoredProcedure ApiCall"`
	CronExpression    string                `json:"cron_expression" validate:"required,max=100"`
	TimeZone          string                `json:"time_zone" validate:"max=64"`
	IsEnabled         bool                  `json:"is_enabled"`
	MaxRetries        int                   `json:"max_retries" validate:"min=0,max=20"`
	RetryDelayMinutes int                   `json:"retry_delay_minutes" validate:"min=0,max=1440"`
	TimeoutMinutes    *int                  `json:"timeout_minutes" validate:"omitempty,min=1"`
	JobConfiguration  json.RawMessage       `json:"job_configuration" validate:"required"`
	NotifyOnSuccess   bool                  `json:"notify_on_success"`
	NotifyOnFailure   *bool                 `json:"notify_on_failure"`
	Parameters        []JobParameterRequest `json:"parameters" validate:"dive"`
}

type ListSchedulesRequest struct {
	TenantID  string `query:"tenant_id"`
	JobType   string `query:"job_type" validate:"omitempty,oneof=Process StoredProcedure ApiCall"`
	IsEnabled *bool  `query:"is_enabled"`
	Limit     int    `query:"limit" validate:"min=0,max=500"`
	Offset    int    `query:"offset" validate:"min=0"`
}

type ListExecutionsRequest struct {
	Status string `query:"status" validate:"omitempty,oneof=Running Completed Failed Cancelled"`
	Limit  int    `query:"limit" validate:"min=0,max=500"`
}

type ActorRequest struct {
	By string `json:"by" validate:"max=100"`
}

type ScheduleResponse struct {
	model.Schedule
	NextRunTime *time.Time `json:"next_run_time"`
	LastRunTime *time.Time `json:"last_run_time"`
}

func NewScheduleResponse(s model.Schedule) ScheduleResponse {
	resp := ScheduleResponse{Schedule: s}
	if s.NextRunTime.Valid {
		resp.NextRunTime = &s.NextRunTime.Time
	}
	if s.LastRunTime.Valid {
		resp.LastRunTime = &s.LastRunTime.Time
	}
	return resp
}

type JobExecutionResponse struct {
	model.JobExecution
	EndTime    *time.Time `json:"end_time"`
	DurationMs *int64     `json:"duration_ms"`
}

func NewJobExecutionResponse(e model.JobExecution) JobExecutionResponse {
	resp := JobExecutionResponse{JobExecution: e}
	if e.EndTime.Valid {
		resp.EndTime = &e.EndTime.Time
	}
	if e.DurationMs.Valid {
		resp.DurationMs = &e.DurationMs.Int64
	}
	return resp
}
