package service

import (
	"context"
	"testing"
	"time"

	"automation-scheduler/config"
	"automation-scheduler/internal/model"
	"automation-scheduler/internal/strategy"
	"automation-scheduler/pkg/errors"
	"automation-scheduler/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func newTestTaskExecutor(resolver ParameterResolver, strat *fakeStrategy) TaskExecutor {
	cfg := config.Default()
	cfg.Scheduler.DefaultTimeout = 50 * time.Millisecond
	cfg.Scheduler.CancelGracePeriod = 100 * time.Millisecond
	return NewTaskExecutor(cfg, logger.NewNop(), resolver, map[model.JobType]strategy.JobExecutionStrategy{
		model.JobTypeProcess: strat,
	})
}

func processSchedule() model.Schedule {
	return model.Schedule{ID: 1, JobType: model.JobTypeProcess, JobConfiguration: datatypes.JSON(`{"command":"echo {Name}"}`)}
}

func TestTaskExecutor_PassesResolvedParameters(t *testing.T) {
	var got map[string]string
	strat := &fakeStrategy{jobType: model.JobTypeProcess, fn: func(_ context.Context, req strategy.ExecutionRequest) (strategy.JobResult, error) {
		got = req.Parameters
		return strategy.JobResult{Success: true}, nil
	}}
	exec := newTestTaskExecutor(staticResolver{values: map[string]string{"Name": "acme"}}, strat)

	_, err := exec.Execute(context.Background(), processSchedule(), model.JobExecution{ID: 9})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Name": "acme"}, got)
}

func TestTaskExecutor_UnknownJobType(t *testing.T) {
	exec := newTestTaskExecutor(staticResolver{}, &fakeStrategy{jobType: model.JobTypeProcess})
	schedule := processSchedule()
	schedule.JobType = model.JobTypeApiCall

	_, err := exec.Execute(context.Background(), schedule, model.JobExecution{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrScheduleConfiguration))
}

func TestTaskExecutor_ResolutionFailureSkipsExecutor(t *testing.T) {
	strat := &fakeStrategy{jobType: model.JobTypeProcess}
	resolverErr := errors.Mark(errors.New("datasource down"), errors.ErrParameterResolutionFailed)
	exec := newTestTaskExecutor(staticResolver{err: resolverErr}, strat)

	_, err := exec.Execute(context.Background(), processSchedule(), model.JobExecution{})
	require.Error(t, err)
	assert.Equal(t, "ParameterResolutionFailed", errors.Tag(err))
	assert.Zero(t, strat.Calls())
}

func TestTaskExecutor_Timeout(t *testing.T) {
	strat := &fakeStrategy{jobType: model.JobTypeProcess, fn: func(ctx context.Context, _ strategy.ExecutionRequest) (strategy.JobResult, error) {
		<-ctx.Done()
		return strategy.JobResult{ExitCode: strategy.JOB_EXIT_CODE_KILLED}, ctx.Err()
	}}
	exec := newTestTaskExecutor(staticResolver{}, strat)

	_, err := exec.Execute(context.Background(), processSchedule(), model.JobExecution{})
	require.Error(t, err)
	assert.Equal(t, "TimeoutExceeded", errors.Tag(err))
	assert.True(t, errors.IsRetryable(err))
}

func TestTaskExecutor_ExecutorIgnoringCancellationIsAbandoned(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	strat := &fakeStrategy{jobType: model.JobTypeProcess, fn: func(context.Context, strategy.ExecutionRequest) (strategy.JobResult, error) {
		<-block
		return strategy.JobResult{Success: true}, nil
	}}
	exec := newTestTaskExecutor(staticResolver{}, strat)

	result, err := exec.Execute(context.Background(), processSchedule(), model.JobExecution{})
	require.Error(t, err)
	assert.Equal(t, int32(strategy.JOB_EXIT_CODE_KILLED), result.ExitCode)
	assert.Equal(t, "TimeoutExceeded", errors.Tag(err))
}

func TestTaskExecutor_PanicBecomesExecutorFailure(t *testing.T) {
	strat := &fakeStrategy{jobType: model.JobTypeProcess, fn: func(context.Context, strategy.ExecutionRequest) (strategy.JobResult, error) {
		panic("nil map")
	}}
	exec := newTestTaskExecutor(staticResolver{}, strat)

	_, err := exec.Execute(context.Background(), processSchedule(), model.JobExecution{})
	require.Error(t, err)
	assert.Equal(t, "ExecutorFailure", errors.Tag(err))
	assert.Contains(t, err.Error(), "nil map")
}

func TestTaskExecutor_UnsuccessfulResultWithoutError(t *testing.T) {
	strat := &fakeStrategy{jobType: model.JobTypeProcess, fn: func(context.Context, strategy.ExecutionRequest) (strategy.JobResult, error) {
		return strategy.JobResult{ExitCode: 3}, nil
	}}
	exec := newTestTaskExecutor(staticResolver{}, strat)

	_, err := exec.Execute(context.Background(), processSchedule(), model.JobExecution{})
	require.Error(t, err)
	assert.Equal(t, "ExecutorFailure", errors.Tag(err))
}

func TestTaskExecutor_Validate(t *testing.T) {
	exec := newTestTaskExecutor(staticResolver{}, &fakeStrategy{jobType: model.JobTypeProcess})

	assert.NoError(t, exec.Validate(model.JobTypeProcess, []byte(`{}`)))
	assert.True(t, errors.Is(exec.Validate(model.JobTypeProcess, []byte(`{`)), errors.ErrScheduleConfiguration))
	assert.True(t, errors.Is(exec.Validate(model.JobTypeApiCall, []byte(`{}`)), errors.ErrScheduleConfiguration))
}
