package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"automation-scheduler/config"
	"automation-scheduler/internal/model"
	"automation-scheduler/internal/repository"
	"automation-scheduler/pkg/cache"
	"automation-scheduler/pkg/common"
	"automation-scheduler/pkg/errors"
	"automation-scheduler/pkg/logger"
	"automation-scheduler/pkg/ratelimit"
	"automation-scheduler/pkg/utils"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

type AdrOrchestratorService interface {
	// RunFullCycle runs every step in order and blocks until the run ends.
	RunFullCycle(ctx context.Context, triggeredBy string) (*model.AdrOrchestrationRun, error)
	// StartBackground starts a full cycle and returns its request id.
	StartBackground(ctx context.Context, triggeredBy string) (string, error)
	RunStep(ctx context.Context, step model.OrchestrationStep, triggeredBy string) (*model.AdrOrchestrationRun, error)
	Current() *model.AdrOrchestrationRun
	Status(ctx context.Context, requestID string) (*model.AdrOrchestrationRun, error)
	History(ctx context.Context, limit int) ([]model.AdrOrchestrationRun, error)
	Cancel(ctx context.Context, requestID string, cancelledBy string) (*model.AdrOrchestrationRun, error)
	// RecoverInterrupted fails runs left Running by a previous process.
	RecoverInterrupted(ctx context.Context) (int64, error)
	// Wait blocks until background runs have finished.
	Wait()
}

// activeRun is the run occupying the orchestration slot.
type activeRun struct {
	mu        sync.Mutex
	run       model.AdrOrchestrationRun
	cancelled atomic.Bool
}

func (a *activeRun) snapshot() *model.AdrOrchestrationRun {
	a.mu.Lock()
	defer a.mu.Unlock()
	run := a.run
	run.StepResults = append(run.StepResults[:0:0], a.run.StepResults...)
	return &run
}

func (a *activeRun) update(fn func(run *model.AdrOrchestrationRun)) model.AdrOrchestrationRun {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(&a.run)
	run := a.run
	run.StepResults = append(run.StepResults[:0:0], a.run.StepResults...)
	return run
}

type adrOrchestratorService struct {
	cfg             *config.Config
	log             *logger.Logger
	repo            *repository.Repository
	lifecycle       AdrJobLifecycle
	billing         BillingWindow
	notifier        NotificationService
	statusCache     cache.Cache
	credentialCache cache.Cache
	limiters        *ratelimit.LimiterStore
	slot            atomic.Pointer[activeRun]
	wg              sync.WaitGroup
	now             func() time.Time
}

func NewAdrOrchestratorService(
	cfg *config.Config,
	log *logger.Logger,
	repo *repository.Repository,
	lifecycle AdrJobLifecycle,
	notifier NotificationService,
	statusCache cache.Cache,
	credentialCache cache.Cache,
) *adrOrchestratorService {
	burst := cfg.ADR.RequestBurst
	if burst <= 0 {
		burst = 1
	}
	return &adrOrchestratorService{
		cfg:             cfg,
		log:             log,
		repo:            repo,
		lifecycle:       lifecycle,
		billing:         NewBillingWindow(cfg.ADR),
		notifier:        notifier,
		statusCache:     statusCache,
		credentialCache: credentialCache,
		limiters:        ratelimit.NewLimiterStore(rate.Limit(cfg.ADR.RequestsPerSecond), burst),
		now:             utils.TimeNowUTC,
	}
}

// acquire claims the orchestration slot for a new run.
func (s *adrOrchestratorService) acquire(mode, triggeredBy string) (*activeRun, error) {
	active := &activeRun{run: model.AdrOrchestrationRun{
		RequestID:   uuid.NewString(),
		Mode:        mode,
		Status:      model.OrchestrationStatusRunning,
		StartedAt:   s.now(),
		TriggeredBy: triggeredBy,
	}}
	if !s.slot.CompareAndSwap(nil, active) {
		current := s.slot.Load()
		requestID := ""
		if current != nil {
			requestID = current.snapshot().RequestID
		}
		return nil, errors.Mark(errors.Newf("orchestration run %s is in progress", requestID), errors.ErrOrchestrationAlreadyRunning)
	}
	return active, nil
}

func (s *adrOrchestratorService) begin(ctx context.Context, mode, triggeredBy string) (*activeRun, error) {
	active, err := s.acquire(mode, triggeredBy)
	if err != nil {
		return nil, err
	}
	run := active.snapshot()
	if err := s.repo.AdrRunRepo.Create(ctx, run); err != nil {
		s.slot.CompareAndSwap(active, nil)
		return nil, errors.Wrap(err, "persist orchestration run")
	}
	active.update(func(r *model.AdrOrchestrationRun) { r.ID = run.ID })

	s.log.InfoContext(ctx, "Adr orchestration started",
		logger.StringField("request_id", run.RequestID),
		logger.StringField("mode", mode),
		logger.StringField("triggered_by", triggeredBy),
	)
	return active, nil
}

func (s *adrOrchestratorService) RunFullCycle(ctx context.Context, triggeredBy string) (*model.AdrOrchestrationRun, error) {
	active, err := s.begin(ctx, model.OrchestrationModeSync, triggeredBy)
	if err != nil {
		return nil, err
	}
	run := s.execute(context.WithoutCancel(ctx), active, model.FullCycleSteps)
	return &run, nil
}

func (s *adrOrchestratorService) StartBackground(ctx context.Context, triggeredBy string) (string, error) {
	active, err := s.begin(ctx, model.OrchestrationModeBackground, triggeredBy)
	if err != nil {
		return "", err
	}
	requestID := active.snapshot().RequestID

	s.wg.Add(1)
	utils.GoSafe(s.log, func() {
		defer s.wg.Done()
		s.execute(context.WithoutCancel(ctx), active, model.FullCycleSteps)
	})
	return requestID, nil
}

func (s *adrOrchestratorService) RunStep(ctx context.Context, step model.OrchestrationStep, triggeredBy string) (*model.AdrOrchestrationRun, error) {
	if _, ok := s.stepFunc(step); !ok {
		return nil, errors.Mark(errors.Newf("unknown orchestration step %q", step), errors.ErrValidation)
	}
	active, err := s.begin(ctx, model.OrchestrationModeStep(step), triggeredBy)
	if err != nil {
		return nil, err
	}
	run := s.execute(context.WithoutCancel(ctx), active, []model.OrchestrationStep{step})
	return &run, nil
}

func (s *adrOrchestratorService) Wait() {
	s.wg.Wait()
}

// execute runs steps in order, checking the cancel flag between steps. A
// failing step is recorded and the run continues. A run is Cancelled only
// when the flag made it skip a step. The slot is released and a summary sent
// when it ends.
func (s *adrOrchestratorService) execute(ctx context.Context, active *activeRun, steps []model.OrchestrationStep) (final model.AdrOrchestrationRun) {
	requestID := active.snapshot().RequestID
	log := s.log.With(logger.StringField("request_id", requestID))
	stepFailed, skipped := false, false

	defer func() {
		if r := recover(); r != nil {
			log.ErrorContextWithAlert(ctx, "Adr orchestration panicked", logger.StringField("panic", fmt.Sprint(r)))
			final = s.complete(ctx, active, model.OrchestrationStatusFailed, fmt.Sprintf("orchestration panicked: %v", r))
		}
	}()

	for _, step := range steps {
		if active.cancelled.Load() {
			skipped = true
			break
		}
		run := active.update(func(r *model.AdrOrchestrationRun) { r.CurrentStep = step })
		s.persist(ctx, run)

		fn, _ := s.stepFunc(step)
		result := s.runStep(ctx, log, step, fn)
		if result.Error != "" {
			stepFailed = true
		}
		run = active.update(func(r *model.AdrOrchestrationRun) {
			r.StepResults = append(r.StepResults, result)
		})
		s.persist(ctx, run)
	}

	status := model.OrchestrationStatusCompleted
	message := ""
	switch {
	case skipped:
		status = model.OrchestrationStatusCancelled
		message = "cancelled"
	case stepFailed:
		status = model.OrchestrationStatusFailed
		message = "one or more steps failed"
	}
	return s.complete(ctx, active, status, message)
}

func (s *adrOrchestratorService) runStep(ctx context.Context, log *logger.Logger, step model.OrchestrationStep, fn stepFunc) (result model.StepResult) {
	started := s.now()
	log.InfoContext(ctx, "Adr step started", logger.StringField("step", string(step)))

	defer func() {
		if r := recover(); r != nil {
			result.Error = fmt.Sprintf("step panicked: %v", r)
			log.ErrorContextWithAlert(ctx, "Adr step panicked", logger.StringField("step", string(step)), logger.StringField("panic", fmt.Sprint(r)))
		}
		result.Step = step
		result.StartedAt = started
		result.CompletedAt = s.now()
	}()

	counter := &stepCounter{}
	err := fn(ctx, counter)
	result = counter.result()
	if err != nil {
		result.Error = err.Error()
		log.ErrorContextWithAlert(ctx, "Adr step failed", logger.StringField("step", string(step)), logger.ErrorField(err))
		return result
	}
	log.InfoContext(ctx, "Adr step completed",
		logger.StringField("step", string(step)),
		logger.IntField("processed", result.Processed),
		logger.IntField("succeeded", result.Succeeded),
		logger.IntField("failed", result.Failed),
		logger.IntField("skipped", result.Skipped),
	)
	return result
}

func (s *adrOrchestratorService) complete(ctx context.Context, active *activeRun, status model.OrchestrationStatus, message string) model.AdrOrchestrationRun {
	now := s.now()
	run := active.update(func(r *model.AdrOrchestrationRun) {
		r.Status = status
		r.CompletedAt = &now
		r.CurrentStep = ""
		if r.ErrorMessage == "" {
			r.ErrorMessage = message
		}
	})
	s.persist(ctx, run)
	s.statusCache.Set(fmt.Sprintf(common.KEY_ORCHESTRATION_STATUS, run.RequestID), run, s.cfg.ADR.StatusCacheTTL)
	s.slot.CompareAndSwap(active, nil)

	s.log.InfoContext(ctx, "Adr orchestration finished",
		logger.StringField("request_id", run.RequestID),
		logger.StringField("status", string(run.Status)),
		logger.DurationField("duration", now.Sub(run.StartedAt)),
	)

	summary := run
	utils.GoSafe(s.log, func() {
		notifyCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.notifier.SendOrchestrationSummary(notifyCtx, summary); err != nil {
			s.log.WarnContext(notifyCtx, "Failed to send orchestration summary", logger.ErrorField(err), logger.StringField("request_id", summary.RequestID))
		}
	})
	return run
}

func (s *adrOrchestratorService) persist(ctx context.Context, run model.AdrOrchestrationRun) {
	if err := s.repo.AdrRunRepo.Update(ctx, &run); err != nil {
		s.log.ErrorContext(ctx, "Failed to persist orchestration run", logger.ErrorField(err), logger.StringField("request_id", run.RequestID))
	}
}

func (s *adrOrchestratorService) Current() *model.AdrOrchestrationRun {
	active := s.slot.Load()
	if active == nil {
		return nil
	}
	return active.snapshot()
}

// Status looks in the live slot, then the recent-status cache, then history.
func (s *adrOrchestratorService) Status(ctx context.Context, requestID string) (*model.AdrOrchestrationRun, error) {
	if current := s.Current(); current != nil && current.RequestID == requestID {
		return current, nil
	}
	if run, ok := cache.GetFromCache[model.AdrOrchestrationRun](s.statusCache, fmt.Sprintf(common.KEY_ORCHESTRATION_STATUS, requestID)); ok {
		return &run, nil
	}
	return s.repo.AdrRunRepo.FindByRequestID(ctx, requestID)
}

func (s *adrOrchestratorService) History(ctx context.Context, limit int) ([]model.AdrOrchestrationRun, error) {
	if limit <= 0 {
		limit = s.cfg.ADR.HistoryLimit
	}
	return s.repo.AdrRunRepo.List(ctx, limit)
}

// Cancel flags the live run; it stops before its next step. A run left
// Running by a previous process is closed in the store.
func (s *adrOrchestratorService) Cancel(ctx context.Context, requestID string, cancelledBy string) (*model.AdrOrchestrationRun, error) {
	if active := s.slot.Load(); active != nil && active.snapshot().RequestID == requestID {
		if active.cancelled.CompareAndSwap(false, true) {
			active.update(func(r *model.AdrOrchestrationRun) { r.CancelledBy = cancelledBy })
			s.log.InfoContext(ctx, "Adr orchestration cancellation requested",
				logger.StringField("request_id", requestID),
				logger.StringField("cancelled_by", cancelledBy),
			)
		}
		return active.snapshot(), nil
	}

	run, err := s.repo.AdrRunRepo.FindByRequestID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if run.Status != model.OrchestrationStatusRunning {
		return nil, errors.Mark(errors.Newf("orchestration run %s is already %s", requestID, run.Status), errors.ErrInvalidTransition)
	}
	now := s.now()
	run.Status = model.OrchestrationStatusCancelled
	run.CancelledBy = cancelledBy
	run.CompletedAt = &now
	run.ErrorMessage = "cancelled without a live worker"
	if err := s.repo.AdrRunRepo.Update(ctx, run); err != nil {
		return nil, errors.Wrapf(err, "cancel orchestration run %s", requestID)
	}
	return run, nil
}

func (s *adrOrchestratorService) RecoverInterrupted(ctx context.Context) (int64, error) {
	n, err := s.repo.AdrRunRepo.FailRunning(ctx, "interrupted by restart", s.now())
	if err != nil {
		return 0, errors.Wrap(err, "fail interrupted orchestration runs")
	}
	if n > 0 {
		s.log.WarnContext(ctx, "Interrupted orchestration runs failed", logger.Int64Field("count", n))
	}
	return n, nil
}
