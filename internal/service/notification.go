package service

import (
	"context"
	"time"

	"automation-scheduler/internal/model"
	"automation-scheduler/pkg/logger"
	"automation-scheduler/pkg/telegram"
)

// NotificationService delivers job and orchestration notifications. Callers
// only log its errors.
type NotificationService interface {
	SendJobExecutionNotification(ctx context.Context, schedule model.Schedule, execution model.JobExecution, nextRunTime *time.Time) error
	SendOrchestrationSummary(ctx context.Context, run model.AdrOrchestrationRun) error
}

// MessageSender posts a formatted message. *telegram.Client implements it.
type MessageSender interface {
	Send(ctx context.Context, text string) error
}

type telegramNotificationService struct {
	log    *logger.Logger
	sender MessageSender
}

func NewTelegramNotificationService(log *logger.Logger, sender MessageSender) NotificationService {
	return &telegramNotificationService{log: log, sender: sender}
}

func (n *telegramNotificationService) SendJobExecutionNotification(ctx context.Context, schedule model.Schedule, execution model.JobExecution, nextRunTime *time.Time) error {
	msg := telegram.JobExecutionMessage{
		ScheduleID:   schedule.ID,
		ScheduleName: schedule.Name,
		JobType:      string(schedule.JobType),
		ExecutionID:  execution.ID,
		Status:       string(execution.Status),
		ErrorTag:     execution.ErrorTag,
		ErrorMessage: execution.ErrorMessage,
		Output:       execution.Output,
		RetryCount:   execution.RetryCount,
		MaxRetries:   schedule.MaxRetries,
		StartTime:    execution.StartTime,
		NextRunTime:  nextRunTime,
	}
	if execution.DurationMs.Valid {
		msg.Duration = time.Duration(execution.DurationMs.Int64) * time.Millisecond
	}
	return n.sender.Send(ctx, telegram.FormatJobExecutionMessage(msg))
}

func (n *telegramNotificationService) SendOrchestrationSummary(ctx context.Context, run model.AdrOrchestrationRun) error {
	msg := telegram.OrchestrationSummaryMessage{
		RequestID:   run.RequestID,
		Mode:        run.Mode,
		Status:      string(run.Status),
		TriggeredBy: run.TriggeredBy,
		StartedAt:   run.StartedAt,
		CompletedAt: run.StartedAt,
		Error:       run.ErrorMessage,
	}
	if run.CompletedAt != nil {
		msg.CompletedAt = *run.CompletedAt
	}
	for _, s := range run.StepResults {
		msg.Steps = append(msg.Steps, telegram.StepLine{
			Name:      string(s.Step),
			Processed: s.Processed,
			Succeeded: s.Succeeded,
			Failed:    s.Failed,
			Error:     s.Error,
		})
	}
	return n.sender.Send(ctx, telegram.FormatOrchestrationSummary(msg))
}

// noopNotificationService is used when telegram is disabled.
type noopNotificationService struct {
	log *logger.Logger
}

func NewNoopNotificationService(log *logger.Logger) NotificationService {
	return &noopNotificationService{log: log}
}

func (n *noopNotificationService) SendJobExecutionNotification(ctx context.Context, schedule model.Schedule, execution model.JobExecution, _ *time.Time) error {
	n.log.DebugContext(ctx, "Notification skipped",
		logger.UintField("schedule_id", schedule.ID),
		logger.UintField("execution_id", execution.ID),
		logger.StringField("status", string(execution.Status)),
	)
	return nil
}

func (n *noopNotificationService) SendOrchestrationSummary(ctx context.Context, run model.AdrOrchestrationRun) error {
	n.log.DebugContext(ctx, "Orchestration summary skipped", logger.StringField("request_id", run.RequestID))
	return nil
}
