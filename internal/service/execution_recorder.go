package service

import (
	"context"
	"database/sql"
	"time"

	"automation-scheduler/internal/model"
	"automation-scheduler/internal/repository"
	"automation-scheduler/pkg/errors"
	"automation-scheduler/pkg/logger"
	"automation-scheduler/pkg/utils"
)

// ExecutionOutcome is how an execution ended. Err nil with Status Completed is
// a success.
type ExecutionOutcome struct {
	Status      model.ExecutionStatus
	Output      string
	Err         error
	CancelledBy string
}

type ExecutionRecorder interface {
	Open(ctx context.Context, schedule model.Schedule, retryCount int, triggeredBy string) (*model.JobExecution, error)
	Close(ctx context.Context, execution *model.JobExecution, outcome ExecutionOutcome) (bool, error)
	Cancel(ctx context.Context, execution *model.JobExecution, by string) (bool, error)
	Cleanup(ctx context.Context, retentionDays int) (int64, error)
}

type executionRecorder struct {
	log           *logger.Logger
	jobExecRepo   repository.JobExecutionRepository
	maxOutputSize int
	now           func() time.Time
}

func NewExecutionRecorder(log *logger.Logger, jobExecRepo repository.JobExecutionRepository, maxOutputSize int) ExecutionRecorder {
	return &executionRecorder{
		log:           log,
		jobExecRepo:   jobExecRepo,
		maxOutputSize: maxOutputSize,
		now:           utils.TimeNowUTC,
	}
}

func (r *executionRecorder) Open(ctx context.Context, schedule model.Schedule, retryCount int, triggeredBy string) (*model.JobExecution, error) {
	execution := &model.JobExecution{
		ScheduleID:  schedule.ID,
		StartTime:   r.now(),
		Status:      model.ExecutionStatusRunning,
		RetryCount:  retryCount,
		TriggeredBy: triggeredBy,
	}
	if err := r.jobExecRepo.Create(ctx, execution); err != nil {
		return nil, errors.Wrapf(err, "open execution for schedule %d", schedule.ID)
	}
	return execution, nil
}

// Close writes the terminal state. It returns false without error when the
// execution was already closed by someone else (a cancel or a recovery sweep).
func (r *executionRecorder) Close(ctx context.Context, execution *model.JobExecution, outcome ExecutionOutcome) (bool, error) {
	end := r.now()
	execution.Status = outcome.Status
	execution.EndTime = sql.NullTime{Time: end, Valid: true}
	execution.DurationMs = sql.NullInt64{Int64: end.Sub(execution.StartTime).Milliseconds(), Valid: true}
	execution.Output = utils.Truncate(outcome.Output, r.maxOutputSize)
	execution.CancelledBy = outcome.CancelledBy
	if outcome.Err != nil {
		execution.ErrorMessage = outcome.Err.Error()
		execution.ErrorTag = errors.Tag(outcome.Err)
	}

	updated, err := r.jobExecRepo.Finish(ctx, execution)
	if err != nil {
		return false, errors.Wrapf(err, "close execution %d", execution.ID)
	}
	if !updated {
		r.log.WarnContext(ctx, "Execution already closed",
			logger.UintField("execution_id", execution.ID),
			logger.StringField("status", string(outcome.Status)),
		)
	}
	return updated, nil
}

func (r *executionRecorder) Cancel(ctx context.Context, execution *model.JobExecution, by string) (bool, error) {
	return r.Close(ctx, execution, ExecutionOutcome{
		Status:      model.ExecutionStatusCancelled,
		Err:         errors.Mark(errors.Newf("cancelled by %s", by), errors.ErrExecutionCancelled),
		CancelledBy: by,
	})
}

// Cleanup deletes finished executions older than retentionDays. A
// non-positive retention keeps everything.
func (r *executionRecorder) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := r.now().AddDate(0, 0, -retentionDays)
	deleted, err := r.jobExecRepo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "delete old executions")
	}
	if deleted > 0 {
		r.log.InfoContext(ctx, "Deleted old job executions",
			logger.Int64Field("deleted", deleted),
			logger.TimeField("cutoff", cutoff),
		)
	}
	return deleted, nil
}
