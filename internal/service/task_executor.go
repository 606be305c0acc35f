package service

import (
	"context"
	"encoding/json"
	"time"

	"automation-scheduler/config"
	"automation-scheduler/internal/model"
	"automation-scheduler/internal/strategy"
	"automation-scheduler/pkg/errors"
	"automation-scheduler/pkg/logger"
	"automation-scheduler/pkg/utils"
)

// TaskExecutor runs one execution of a schedule: it resolves parameters,
// dispatches to the strategy registered for the job type and enforces the
// schedule timeout. The returned error is classified with the pkg/errors
// taxonomy.
type TaskExecutor interface {
	Execute(ctx context.Context, schedule model.Schedule, execution model.JobExecution) (strategy.JobResult, error)
	Validate(jobType model.JobType, configuration json.RawMessage) error
}

type taskExecutor struct {
	cfg                *config.Config
	log                *logger.Logger
	paramResolver      ParameterResolver
	executorStrategies map[model.JobType]strategy.JobExecutionStrategy
}

func NewTaskExecutor(cfg *config.Config, log *logger.Logger, paramResolver ParameterResolver, executorStrategies map[model.JobType]strategy.JobExecutionStrategy) TaskExecutor {
	return &taskExecutor{
		cfg:                cfg,
		log:                log,
		paramResolver:      paramResolver,
		executorStrategies: executorStrategies,
	}
}

func (t *taskExecutor) Validate(jobType model.JobType, configuration json.RawMessage) error {
	executor, ok := t.executorStrategies[jobType]
	if !ok {
		return errors.Mark(errors.Newf("unsupported job type %q", jobType), errors.ErrScheduleConfiguration)
	}
	return executor.Validate(configuration)
}

type executorOutcome struct {
	result strategy.JobResult
	err    error
}

func (t *taskExecutor) Execute(ctx context.Context, schedule model.Schedule, execution model.JobExecution) (strategy.JobResult, error) {
	log := t.log.With(
		logger.UintField("schedule_id", schedule.ID),
		logger.UintField("execution_id", execution.ID),
		logger.StringField("job_type", string(schedule.JobType)),
	)
	log.InfoContext(ctx, "Processing job", logger.IntField("retry_count", execution.RetryCount))

	executor, ok := t.executorStrategies[schedule.JobType]
	if !ok {
		return strategy.JobResult{ExitCode: strategy.JOB_EXIT_CODE_FAILED},
			errors.Mark(errors.Newf("unsupported job type %q", schedule.JobType), errors.ErrScheduleConfiguration)
	}

	timeout := schedule.Timeout(t.cfg.Scheduler.DefaultTimeout)
	runCtx, cancel := context.WithTimeoutCause(ctx, timeout,
		errors.Mark(errors.Newf("execution exceeded timeout of %s", timeout), errors.ErrTimeoutExceeded))
	defer cancel()

	params, err := t.paramResolver.Resolve(runCtx, schedule.ID)
	if err != nil {
		return strategy.JobResult{ExitCode: strategy.JOB_EXIT_CODE_FAILED}, classify(runCtx, err)
	}

	req := strategy.ExecutionRequest{
		ScheduleID:    schedule.ID,
		ExecutionID:   execution.ID,
		Configuration: json.RawMessage(schedule.JobConfiguration),
		Parameters:    params,
	}

	done := make(chan executorOutcome, 1)
	utils.GoSafe(log, func() {
		defer func() {
			if r := recover(); r != nil {
				done <- executorOutcome{
					result: strategy.JobResult{ExitCode: strategy.JOB_EXIT_CODE_FAILED},
					err:    errors.Mark(errors.Newf("executor panicked: %v", r), errors.ErrExecutorFailure),
				}
				panic(r)
			}
		}()
		result, err := executor.Execute(runCtx, req)
		done <- executorOutcome{result: result, err: err}
	})

	select {
	case o := <-done:
		return t.finish(runCtx, log, o)
	case <-runCtx.Done():
	}

	// Cancelled or timed out: the executor gets a grace period to stop.
	grace := t.cfg.Scheduler.CancelGracePeriod
	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case o := <-done:
		return t.finish(runCtx, log, o)
	case <-timer.C:
		log.WarnContext(ctx, "Executor did not stop within grace period", logger.DurationField("grace_period", grace))
		return strategy.JobResult{ExitCode: strategy.JOB_EXIT_CODE_KILLED},
			classify(runCtx, errors.Newf("executor did not stop within %s", grace))
	}
}

func (t *taskExecutor) finish(ctx context.Context, log *logger.Logger, o executorOutcome) (strategy.JobResult, error) {
	err := o.err
	if err == nil && !o.result.Success {
		err = errors.Newf("job reported failure with exit code %d", o.result.ExitCode)
	}
	if err != nil {
		err = classify(ctx, err)
		log.WarnContext(ctx, "Job failed",
			logger.ErrorField(err),
			logger.StringField("error_tag", errors.Tag(err)),
			logger.Field("exit_code", o.result.ExitCode),
		)
		return o.result, err
	}
	log.InfoContext(ctx, "Job completed", logger.Field("exit_code", o.result.ExitCode))
	return o.result, nil
}

// classify marks err with the reason ctx ended, if it ended, and falls back
// to ErrExecutorFailure for unclassified errors.
func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		cause := context.Cause(ctx)
		switch {
		case errors.Is(cause, errors.ErrExecutionCancelled) && !errors.Is(err, errors.ErrExecutionCancelled):
			err = errors.Mark(errors.Wrap(err, cause.Error()), errors.ErrExecutionCancelled)
		case errors.Is(cause, errors.ErrTimeoutExceeded) && !errors.Is(err, errors.ErrTimeoutExceeded):
			err = errors.Mark(errors.Wrap(err, cause.Error()), errors.ErrTimeoutExceeded)
		}
	}
	if errors.Tag(err) == "" {
		err = errors.Mark(err, errors.ErrExecutorFailure)
	}
	return err
}
