package cmd

import (
	"context"
	"log"
	httpNet "net/http"
	"os"
	"os/signal"
	"syscall"

	"automation-scheduler/internal/delivery/http"
	"automation-scheduler/internal/repository"
	"automation-scheduler/internal/service"
	"automation-scheduler/pkg/utils"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the HTTP API and the scheduler loop",
	Run:   Start,
}

func Start(cmd *cobra.Command, args []string) {

	// Create a context that is canceled on interrupt signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appDep, err := NewAppDependency(ctx)
	if err != nil {
		log.Fatalf("Failed to create app dependency: %v", err)
	}

	repo := repository.NewRepository(appDep.cfg, appDep.db.DB, appDep.dataSource, appDep.log)

	services := service.NewService(
		appDep.cfg,
		appDep.log,
		repo,
		appDep.dataSource,
		appDep.cache,
		appDep.telegram,
	)

	if n, err := services.AdrOrchestratorService.RecoverInterrupted(ctx); err != nil {
		appDep.log.Error("Failed to recover interrupted orchestration runs", zap.Error(err))
	} else if n > 0 {
		appDep.log.Info("Recovered interrupted orchestration runs", zap.Int64("count", n))
	}

	httpHandler := http.NewHttpAPIHandler(ctx, appDep.echo, appDep.validator, services, appDep.log)

	apiServer := NewHTTPServer(ctx, appDep, httpHandler)
	go func() {
		if err := apiServer.Start(); err != nil && err != httpNet.ErrServerClosed {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	schedulerDone := make(chan struct{})
	if appDep.cfg.Scheduler.Enabled {
		utils.GoSafe(appDep.log, func() {
			defer close(schedulerDone)
			services.SchedulerService.Start(ctx)
		})
	} else {
		appDep.log.Info("Scheduler loop disabled")
		close(schedulerDone)
	}

	// Wait for shutdown signal
	<-ctx.Done()
	log.Println("Shutting down gracefully...")

	if err := apiServer.Stop(); err != nil {
		log.Fatalf("Failed to stop HTTP server: %v", err)
	}

	<-schedulerDone
	services.SchedulerService.Stop(context.Background())
	services.AdrOrchestratorService.Wait()

	if err := appDep.Close(); err != nil {
		log.Fatalf("Failed to close app dependency: %v", err)
	}
}
