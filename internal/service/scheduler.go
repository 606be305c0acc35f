package service

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"automation-scheduler/config"
	"automation-scheduler/internal/model"
	"automation-scheduler/internal/repository"
	"automation-scheduler/internal/strategy"
	"automation-scheduler/pkg/common"
	"automation-scheduler/pkg/cronexpr"
	"automation-scheduler/pkg/errors"
	"automation-scheduler/pkg/logger"
	"automation-scheduler/pkg/utils"

	"go.uber.org/zap"
)

const dueBatchSize = 100

type SchedulerService interface {
	// Start recovers orphaned executions and polls for due schedules until
	// ctx is done.
	Start(ctx context.Context)
	// Stop waits for in-flight executions, cancelling them after the grace period.
	Stop(ctx context.Context)
	Tick(ctx context.Context) error
	Trigger(ctx context.Context, scheduleID uint, triggeredBy string) (*model.JobExecution, error)
	Pause(ctx context.Context, scheduleID uint) (*model.Schedule, error)
	Resume(ctx context.Context, scheduleID uint) (*model.Schedule, error)
	CancelExecution(ctx context.Context, executionID uint, cancelledBy string) (*model.JobExecution, error)
	RetryExecution(ctx context.Context, executionID uint, triggeredBy string) (*model.JobExecution, error)
	RecoverOrphans(ctx context.Context) (int, error)
	CleanupHistory(ctx context.Context) (int64, error)
	// Wait blocks until every in-flight execution has finished.
	Wait()
}

type schedulerService struct {
	cfg          *config.Config
	log          *logger.Logger
	scheduleRepo repository.ScheduleRepository
	jobExecRepo  repository.JobExecutionRepository
	recorder     ExecutionRecorder
	taskExecutor TaskExecutor
	notifier     NotificationService
	policy       RetryPolicy
	locks        scheduleLock
	semaphore    chan struct{}
	wg           sync.WaitGroup
	now          func() time.Time

	runCtx    context.Context
	runCancel context.CancelCauseFunc

	cleanupMu   sync.Mutex
	lastCleanup time.Time
}

func NewSchedulerService(
	cfg *config.Config,
	log *logger.Logger,
	scheduleRepo repository.ScheduleRepository,
	jobExecRepo repository.JobExecutionRepository,
	recorder ExecutionRecorder,
	taskExecutor TaskExecutor,
	notifier NotificationService,
) *schedulerService {
	maxConcurrency := cfg.Scheduler.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	runCtx, runCancel := context.WithCancelCause(context.Background())
	return &schedulerService{
		cfg:          cfg,
		log:          log,
		scheduleRepo: scheduleRepo,
		jobExecRepo:  jobExecRepo,
		recorder:     recorder,
		taskExecutor: taskExecutor,
		notifier:     notifier,
		policy:       RetryPolicy{MaxBackoff: cfg.Scheduler.MaxBackoff},
		semaphore:    make(chan struct{}, maxConcurrency),
		now:          utils.TimeNowUTC,
		runCtx:       runCtx,
		runCancel:    runCancel,
	}
}

func (s *schedulerService) Start(ctx context.Context) {
	if recovered, err := s.RecoverOrphans(ctx); err != nil {
		s.log.ErrorContext(ctx, "Failed to recover orphaned executions", logger.ErrorField(err))
	} else if recovered > 0 {
		s.log.InfoContext(ctx, "Recovered orphaned executions", logger.IntField("count", recovered))
	}

	s.log.InfoContext(ctx, "Scheduler started",
		logger.DurationField("poll_interval", s.cfg.Scheduler.PollInterval),
		logger.IntField("max_concurrency", cap(s.semaphore)),
	)

	ticker := time.NewTicker(s.cfg.Scheduler.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("Scheduler poll loop stopped")
			return
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				s.log.ErrorContext(ctx, "Scheduler tick failed", logger.ErrorField(err))
			}
		}
	}
}

func (s *schedulerService) Stop(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	grace := s.cfg.Scheduler.CancelGracePeriod
	select {
	case <-done:
		return
	case <-time.After(grace):
	case <-ctx.Done():
	}

	s.log.Warn("Cancelling in-flight executions for shutdown")
	s.runCancel(errors.Mark(errors.New("scheduler stopped"), errors.ErrExecutorFailure))
	select {
	case <-done:
	case <-time.After(grace):
		s.log.Warn("In-flight executions did not finish before shutdown")
	}
}

func (s *schedulerService) Wait() {
	s.wg.Wait()
}

// Tick fires every due schedule once.
func (s *schedulerService) Tick(ctx context.Context) error {
	now := s.now()

	if _, err := s.RecoverOrphans(ctx); err != nil {
		s.log.ErrorContext(ctx, "Failed to recover orphaned executions", logger.ErrorField(err))
	}
	s.maybeCleanup(ctx, now)

	schedules, err := s.scheduleRepo.FindDueSchedules(ctx, now, dueBatchSize)
	if err != nil {
		return errors.Wrap(err, "find due schedules")
	}
	if len(schedules) == 0 {
		s.log.DebugContext(ctx, "No schedules due")
		return nil
	}

	s.log.InfoContext(ctx, "Firing due schedules",
		logger.IntField("schedule_count", len(schedules)),
		logger.IntField("active_concurrency", len(s.semaphore)),
		logger.IntField("max_concurrency", cap(s.semaphore)),
	)

	for _, schedule := range schedules {
		if ctx.Err() != nil {
			s.log.WarnContext(ctx, "Tick cancelled", logger.ErrorField(ctx.Err()))
			return nil
		}

		_, err := s.fire(ctx, schedule, common.ACTOR_SCHEDULER, false)
		switch {
		case err == nil:
		case errors.Is(err, errors.ErrConcurrencyConflict):
			s.log.WarnContext(ctx, "Disallowed concurrent execution, skipping fire",
				logger.UintField("schedule_id", schedule.ID),
				logger.StringField("schedule_name", schedule.Name),
			)
			s.skipFire(ctx, schedule)
		default:
			s.log.ErrorContextWithAlert(ctx, "Failed to fire schedule",
				logger.ErrorField(err),
				logger.UintField("schedule_id", schedule.ID),
				logger.StringField("schedule_name", schedule.Name),
				logger.StringField("job_type", string(schedule.JobType)),
			)
		}
	}
	return nil
}

// skipFire drops a missed fire by moving NextRunTime to the next cron occurrence.
func (s *schedulerService) skipFire(ctx context.Context, schedule model.Schedule) {
	next, err := cronexpr.Next(schedule.CronExpression, schedule.TimeZone, s.now())
	if err != nil {
		s.parkSchedule(ctx, schedule, err)
		return
	}
	timing := model.ScheduleTiming{
		NextRunTime:       sql.NullTime{Time: next, Valid: true},
		LastRunTime:       schedule.LastRunTime,
		CurrentRetryCount: schedule.CurrentRetryCount,
	}
	if err := s.scheduleRepo.UpdateTiming(ctx, schedule.ID, timing); err != nil {
		s.log.ErrorContext(ctx, "Failed to advance schedule", logger.ErrorField(err), logger.UintField("schedule_id", schedule.ID))
	}
}

// parkSchedule clears NextRunTime of a schedule whose expression no longer
// evaluates. It stays parked until edited or resumed.
func (s *schedulerService) parkSchedule(ctx context.Context, schedule model.Schedule, cause error) {
	s.log.ErrorContextWithAlert(ctx, "Schedule expression cannot be evaluated, schedule parked",
		logger.ErrorField(cause),
		logger.UintField("schedule_id", schedule.ID),
		logger.StringField("cron_expression", schedule.CronExpression),
		logger.StringField("time_zone", schedule.TimeZone),
	)
	timing := model.ScheduleTiming{
		LastRunTime:       schedule.LastRunTime,
		CurrentRetryCount: 0,
	}
	if err := s.scheduleRepo.UpdateTiming(ctx, schedule.ID, timing); err != nil {
		s.log.ErrorContext(ctx, "Failed to park schedule", logger.ErrorField(err), logger.UintField("schedule_id", schedule.ID))
	}
}

// fire acquires the schedule lock, opens the execution, arms NextRunTime and
// hands the run to the worker pool. Manual fires leave NextRunTime alone.
func (s *schedulerService) fire(ctx context.Context, schedule model.Schedule, triggeredBy string, manual bool) (*model.JobExecution, error) {
	handle := newRunHandle(schedule.ID)
	if !s.locks.TryAcquire(handle) {
		return nil, errors.Mark(errors.Newf("schedule %d is already running", schedule.ID), errors.ErrConcurrencyConflict)
	}
	acquired := false
	defer func() {
		if !acquired {
			s.locks.Release(handle)
		}
	}()

	running, err := s.jobExecRepo.FindRunningBySchedule(ctx, schedule.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "check running execution of schedule %d", schedule.ID)
	}
	if running != nil {
		return nil, errors.Mark(errors.Newf("schedule %d has running execution %d", schedule.ID, running.ID), errors.ErrConcurrencyConflict)
	}

	now := s.now()
	timing := model.ScheduleTiming{
		NextRunTime:       schedule.NextRunTime,
		LastRunTime:       sql.NullTime{Time: now, Valid: true},
		CurrentRetryCount: schedule.CurrentRetryCount,
	}
	if !manual {
		next, err := cronexpr.Next(schedule.CronExpression, schedule.TimeZone, now)
		if err != nil {
			s.parkSchedule(ctx, schedule, err)
			return nil, err
		}
		timing.NextRunTime = sql.NullTime{Time: next, Valid: true}
	}

	execution, err := s.recorder.Open(ctx, schedule, schedule.CurrentRetryCount, triggeredBy)
	if err != nil {
		return nil, err
	}
	if err := s.scheduleRepo.UpdateTiming(ctx, schedule.ID, timing); err != nil {
		s.log.ErrorContext(ctx, "Failed to arm schedule", logger.ErrorField(err), logger.UintField("schedule_id", schedule.ID))
	}
	schedule.NextRunTime = timing.NextRunTime
	schedule.LastRunTime = timing.LastRunTime

	runCtx, cancel := context.WithCancelCause(s.runCtx)
	handle.setExecution(execution.ID, cancel)

	select {
	case s.semaphore <- struct{}{}:
	case <-ctx.Done():
		cancel(ctx.Err())
		s.finishRun(context.WithoutCancel(ctx), schedule, execution, strategy.JobResult{}, errors.Mark(errors.Wrap(ctx.Err(), "waiting for a worker"), errors.ErrExecutorFailure), "")
		return execution, nil
	}

	acquired = true
	s.wg.Add(1)
	utils.GoSafe(s.log, func() {
		defer func() {
			<-s.semaphore
			cancel(nil)
			s.locks.Release(handle)
			close(handle.done)
			s.wg.Done()
		}()

		result, execErr := s.taskExecutor.Execute(runCtx, schedule, *execution)
		s.finishRun(context.WithoutCancel(runCtx), schedule, execution, result, execErr, handle.CancelledBy())
	})

	s.log.InfoContext(ctx, "Execution started",
		logger.UintField("schedule_id", schedule.ID),
		logger.UintField("execution_id", execution.ID),
		logger.StringField("triggered_by", triggeredBy),
		logger.IntField("retry_count", execution.RetryCount),
	)
	snapshot := *execution
	return &snapshot, nil
}

// finishRun closes the execution and applies the retry policy to the schedule.
func (s *schedulerService) finishRun(ctx context.Context, schedule model.Schedule, execution *model.JobExecution, result strategy.JobResult, execErr error, cancelledBy string) {
	outcome := ExecutionOutcome{Status: model.ExecutionStatusCompleted, Output: result.Output, Err: execErr}
	switch {
	case execErr == nil:
	case errors.Is(execErr, errors.ErrExecutionCancelled):
		outcome.Status = model.ExecutionStatusCancelled
		outcome.CancelledBy = cancelledBy
	default:
		outcome.Status = model.ExecutionStatusFailed
	}

	closed, err := s.recorder.Close(ctx, execution, outcome)
	if err != nil {
		s.log.ErrorContextWithAlert(ctx, "Failed to close execution",
			logger.ErrorField(err),
			logger.UintField("schedule_id", schedule.ID),
			logger.UintField("execution_id", execution.ID),
		)
		return
	}
	if !closed {
		return
	}
	s.applyOutcome(ctx, execution, execErr)
}

// applyOutcome moves the schedule to its next state after a closed execution.
func (s *schedulerService) applyOutcome(ctx context.Context, execution *model.JobExecution, execErr error) {
	current, err := s.scheduleRepo.FindByID(ctx, execution.ScheduleID)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			s.log.InfoContext(ctx, "Schedule removed while running", logger.UintField("schedule_id", execution.ScheduleID))
			return
		}
		s.log.ErrorContext(ctx, "Failed to reload schedule", logger.ErrorField(err), logger.UintField("schedule_id", execution.ScheduleID))
		return
	}

	timing, decision, err := s.planNext(*current, *execution, execErr)
	if err != nil {
		s.parkSchedule(ctx, *current, err)
		return
	}
	if err := s.scheduleRepo.UpdateTiming(ctx, current.ID, timing); err != nil {
		s.log.ErrorContext(ctx, "Failed to update schedule timing", logger.ErrorField(err), logger.UintField("schedule_id", current.ID))
	}

	fields := []zap.Field{
		logger.UintField("schedule_id", current.ID),
		logger.StringField("schedule_name", current.Name),
		logger.UintField("execution_id", execution.ID),
		logger.StringField("status", string(execution.Status)),
		logger.IntField("retry_count", execution.RetryCount),
	}
	if timing.NextRunTime.Valid {
		fields = append(fields, logger.TimeField("next_run_time", timing.NextRunTime.Time))
	}

	switch {
	case execution.Status == model.ExecutionStatusCompleted:
		s.log.InfoContext(ctx, "Execution completed", fields...)
		if current.NotifyOnSuccess {
			s.notify(*current, *execution, timing.NextRunTime)
		}
	case execution.Status == model.ExecutionStatusCancelled:
		s.log.InfoContext(ctx, "Execution cancelled", append(fields, logger.StringField("cancelled_by", execution.CancelledBy))...)
	case decision.Retry:
		s.log.WarnContext(ctx, "Execution failed, retry scheduled",
			append(fields, logger.ErrorField(execErr), logger.DurationField("retry_delay", decision.Delay))...)
	default:
		s.log.ErrorContextWithAlert(ctx, "Execution failed",
			append(fields, logger.ErrorField(execErr), logger.StringField("error_tag", execution.ErrorTag))...)
		if current.NotifyOnFailure {
			s.notify(*current, *execution, timing.NextRunTime)
		}
	}
}

// planNext computes the schedule timing after execution ended with execErr.
// It depends only on the schedule definition and the closed execution, so
// recomputing it yields the same result.
func (s *schedulerService) planNext(schedule model.Schedule, execution model.JobExecution, execErr error) (model.ScheduleTiming, RetryDecision, error) {
	ref := execution.StartTime
	if execution.EndTime.Valid {
		ref = execution.EndTime.Time
	}

	timing := model.ScheduleTiming{
		LastRunTime: sql.NullTime{Time: execution.StartTime, Valid: true},
	}

	var decision RetryDecision
	if execution.Status == model.ExecutionStatusFailed {
		attempt := schedule
		attempt.CurrentRetryCount = execution.RetryCount
		decision = s.policy.Decide(attempt, execErr)
	}

	if !schedule.IsEnabled {
		return timing, RetryDecision{}, nil
	}
	if decision.Retry {
		timing.NextRunTime = sql.NullTime{Time: ref.Add(decision.Delay), Valid: true}
		timing.CurrentRetryCount = decision.NextRetryCount
		return timing, decision, nil
	}

	next, err := cronexpr.Next(schedule.CronExpression, schedule.TimeZone, ref)
	if err != nil {
		return timing, decision, err
	}
	timing.NextRunTime = sql.NullTime{Time: next, Valid: true}
	return timing, decision, nil
}

func (s *schedulerService) notify(schedule model.Schedule, execution model.JobExecution, next sql.NullTime) {
	var nextRun *time.Time
	if next.Valid {
		nextRun = utils.ToPointer(next.Time)
	}
	utils.GoSafe(s.log, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.notifier.SendJobExecutionNotification(ctx, schedule, execution, nextRun); err != nil {
			s.log.WarnContext(ctx, "Failed to send job notification",
				logger.ErrorField(err),
				logger.UintField("schedule_id", schedule.ID),
				logger.UintField("execution_id", execution.ID),
			)
		}
	})
}

func (s *schedulerService) Trigger(ctx context.Context, scheduleID uint, triggeredBy string) (*model.JobExecution, error) {
	schedule, err := s.scheduleRepo.FindByID(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	return s.fire(ctx, *schedule, triggeredBy, true)
}

func (s *schedulerService) Pause(ctx context.Context, scheduleID uint) (*model.Schedule, error) {
	schedule, err := s.scheduleRepo.FindByID(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	schedule.IsEnabled = false
	schedule.NextRunTime = sql.NullTime{}
	if err := s.scheduleRepo.Update(ctx, schedule); err != nil {
		return nil, errors.Wrapf(err, "pause schedule %d", scheduleID)
	}
	s.log.InfoContext(ctx, "Schedule paused", logger.UintField("schedule_id", scheduleID))
	return schedule, nil
}

func (s *schedulerService) Resume(ctx context.Context, scheduleID uint) (*model.Schedule, error) {
	schedule, err := s.scheduleRepo.FindByID(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	next, err := cronexpr.Next(schedule.CronExpression, schedule.TimeZone, s.now())
	if err != nil {
		return nil, err
	}
	schedule.IsEnabled = true
	schedule.CurrentRetryCount = 0
	schedule.NextRunTime = sql.NullTime{Time: next, Valid: true}
	if err := s.scheduleRepo.Update(ctx, schedule); err != nil {
		return nil, errors.Wrapf(err, "resume schedule %d", scheduleID)
	}
	s.log.InfoContext(ctx, "Schedule resumed",
		logger.UintField("schedule_id", scheduleID),
		logger.TimeField("next_run_time", next),
	)
	return schedule, nil
}

// CancelExecution cancels a live execution and waits for its worker to record
// the result. An execution with no live worker is cancelled in the store.
func (s *schedulerService) CancelExecution(ctx context.Context, executionID uint, cancelledBy string) (*model.JobExecution, error) {
	execution, err := s.jobExecRepo.FindByID(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if execution.Status.IsTerminal() {
		return nil, errors.Mark(errors.Newf("execution %d is already %s", executionID, execution.Status), errors.ErrInvalidTransition)
	}

	handle, live := s.locks.FindByExecution(executionID)
	if !live {
		if _, err := s.recorder.Cancel(ctx, execution, cancelledBy); err != nil {
			return nil, err
		}
		s.log.InfoContext(ctx, "Orphaned execution cancelled",
			logger.UintField("execution_id", executionID),
			logger.StringField("cancelled_by", cancelledBy),
		)
		return s.jobExecRepo.FindByID(ctx, executionID)
	}

	handle.Cancel(cancelledBy, errors.Mark(errors.Newf("cancelled by %s", cancelledBy), errors.ErrExecutionCancelled))
	s.log.InfoContext(ctx, "Execution cancellation requested",
		logger.UintField("execution_id", executionID),
		logger.StringField("cancelled_by", cancelledBy),
	)

	// The executor has its own grace period; allow it to elapse before the
	// row is closed here.
	wait := 2 * s.cfg.Scheduler.CancelGracePeriod
	select {
	case <-handle.done:
	case <-time.After(wait):
		if _, err := s.recorder.Cancel(ctx, execution, cancelledBy); err != nil {
			return nil, err
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.jobExecRepo.FindByID(ctx, executionID)
}

// RetryExecution starts a new run of the schedule of a failed or cancelled execution.
func (s *schedulerService) RetryExecution(ctx context.Context, executionID uint, triggeredBy string) (*model.JobExecution, error) {
	execution, err := s.jobExecRepo.FindByID(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if execution.Status != model.ExecutionStatusFailed && execution.Status != model.ExecutionStatusCancelled {
		return nil, errors.Mark(errors.Newf("execution %d is %s, only failed or cancelled executions can be retried", executionID, execution.Status), errors.ErrInvalidTransition)
	}
	return s.Trigger(ctx, execution.ScheduleID, triggeredBy)
}

// RecoverOrphans fails Running executions that have no live worker and are
// older than their schedule timeout (recovery ceiling when unset), then
// applies the retry policy to each.
func (s *schedulerService) RecoverOrphans(ctx context.Context) (int, error) {
	running, err := s.jobExecRepo.FindRunning(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "find running executions")
	}

	now := s.now()
	recovered := 0
	for i := range running {
		execution := running[i]
		if _, live := s.locks.FindByExecution(execution.ID); live {
			continue
		}

		threshold := s.cfg.Scheduler.RecoveryCeiling
		schedule, err := s.scheduleRepo.FindByID(ctx, execution.ScheduleID)
		if err == nil {
			threshold = schedule.Timeout(threshold)
		} else if !errors.Is(err, errors.ErrNotFound) {
			s.log.ErrorContext(ctx, "Failed to load schedule of running execution", logger.ErrorField(err), logger.UintField("execution_id", execution.ID))
			continue
		}
		if now.Sub(execution.StartTime) < threshold {
			continue
		}

		recoverErr := errors.Mark(errors.New("recovered after restart"), errors.ErrExecutorFailure)
		closed, err := s.recorder.Close(ctx, &execution, ExecutionOutcome{Status: model.ExecutionStatusFailed, Err: recoverErr})
		if err != nil {
			s.log.ErrorContext(ctx, "Failed to recover execution", logger.ErrorField(err), logger.UintField("execution_id", execution.ID))
			continue
		}
		if !closed {
			continue
		}
		recovered++
		s.log.WarnContext(ctx, "Recovered orphaned execution",
			logger.UintField("execution_id", execution.ID),
			logger.UintField("schedule_id", execution.ScheduleID),
			logger.TimeField("start_time", execution.StartTime),
		)
		if schedule != nil {
			s.applyOutcome(ctx, &execution, recoverErr)
		}
	}
	return recovered, nil
}

func (s *schedulerService) CleanupHistory(ctx context.Context) (int64, error) {
	return s.recorder.Cleanup(ctx, s.cfg.Scheduler.HistoryRetentionDays)
}

func (s *schedulerService) maybeCleanup(ctx context.Context, now time.Time) {
	s.cleanupMu.Lock()
	due := s.lastCleanup.IsZero() || now.Sub(s.lastCleanup) >= s.cfg.Scheduler.RetentionInterval
	if due {
		s.lastCleanup = now
	}
	s.cleanupMu.Unlock()
	if !due {
		return
	}
	if _, err := s.CleanupHistory(ctx); err != nil {
		s.log.ErrorContext(ctx, "Failed to clean up execution history", logger.ErrorField(err))
	}
}
