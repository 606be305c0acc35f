package service

import (
	"automation-scheduler/config"
	"automation-scheduler/internal/model"
	"automation-scheduler/internal/repository"
	"automation-scheduler/internal/strategy"
	"automation-scheduler/pkg/cache"
	"automation-scheduler/pkg/datasource"
	"automation-scheduler/pkg/httpclient"
	"automation-scheduler/pkg/logger"
	"automation-scheduler/pkg/telegram"
)

type Service struct {
	SchedulerService       SchedulerService
	ScheduleService        ScheduleService
	TaskExecutor           TaskExecutor
	AdrOrchestratorService AdrOrchestratorService
	AdrAccountService      AdrAccountService
	NotificationService    NotificationService
}

func NewService(
	cfg *config.Config,
	log *logger.Logger,
	repo *repository.Repository,
	registry datasource.Registry,
	inmemoryCache cache.Cache,
	telegramClient *telegram.Client,
) *Service {
	var notifier NotificationService
	if telegramClient != nil {
		notifier = NewTelegramNotificationService(log, telegramClient)
	} else {
		notifier = NewNoopNotificationService(log)
	}

	executorStrategies := make(map[model.JobType]strategy.JobExecutionStrategy)
	executorStrategies[model.JobTypeProcess] = strategy.NewProcessStrategy(log, cfg.Scheduler.MaxOutputBytes)
	executorStrategies[model.JobTypeStoredProcedure] = strategy.NewStoredProcedureStrategy(log, registry)
	executorStrategies[model.JobTypeApiCall] = strategy.NewApiCallStrategy(log, httpclient.New("", cfg.Scheduler.DefaultTimeout, ""), cfg.Scheduler.MaxOutputBytes)

	paramResolver := NewParameterResolver(log, repo.JobParameterRepo, registry, cfg.Scheduler.AllowedParameterSources)
	taskExecutor := NewTaskExecutor(cfg, log, paramResolver, executorStrategies)
	recorder := NewExecutionRecorder(log, repo.JobExecutionRepo, cfg.Scheduler.MaxOutputBytes)

	schedulerService := NewSchedulerService(cfg, log, repo.ScheduleRepo, repo.JobExecutionRepo, recorder, taskExecutor, notifier)
	scheduleService := NewScheduleService(log, repo.ScheduleRepo, repo.JobParameterRepo, repo.JobExecutionRepo, repo.UnitOfWork, taskExecutor)

	credentialCache := cache.NewCache(cfg.ADR.CredentialCacheTTL, cfg.Cache.CleanupInterval)
	lifecycle := NewAdrJobLifecycle(log, repo.AdrJobRepo)
	orchestrator := NewAdrOrchestratorService(cfg, log, repo, lifecycle, notifier, inmemoryCache, credentialCache)

	return &Service{
		SchedulerService:       schedulerService,
		ScheduleService:        scheduleService,
		TaskExecutor:           taskExecutor,
		AdrOrchestratorService: orchestrator,
		AdrAccountService:      NewAdrAccountService(cfg, log, repo.AdrAccountRepo),
		NotificationService:    notifier,
	}
}
