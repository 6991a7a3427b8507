package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wusimpl/hackernewscn/internal/config"
	"github.com/wusimpl/hackernewscn/internal/db"
	"github.com/wusimpl/hackernewscn/internal/events"
	"github.com/wusimpl/hackernewscn/internal/hackernews"
	"github.com/wusimpl/hackernewscn/internal/handler"
	transport "github.com/wusimpl/hackernewscn/internal/http"
	"github.com/wusimpl/hackernewscn/internal/llm"
	"github.com/wusimpl/hackernewscn/internal/logger"
	"github.com/wusimpl/hackernewscn/internal/queue"
	"github.com/wusimpl/hackernewscn/internal/reader"
	"github.com/wusimpl/hackernewscn/internal/repository"
	"github.com/wusimpl/hackernewscn/internal/scheduler"
	"github.com/wusimpl/hackernewscn/internal/service"
)

const (
	// retentionInterval is how often the cache ceilings are checked.
	retentionInterval = 24 * time.Hour
	// refreshInitialDelay gives the first pipeline run a head start
	// before comment refresh begins competing for the upstream API.
	refreshInitialDelay = 30 * time.Second
	// shutdownTimeout bounds the drain of in-flight translation tasks.
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg := config.Load()
	logger.Init(logger.ParseLevel(cfg.LogLevel))

	dbConn, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer dbConn.Close()

	itemRepo := repository.NewItemRepository(dbConn)
	titleRepo := repository.NewTitleTranslationRepository(dbConn)
	articleRepo := repository.NewArticleTranslationRepository(dbConn)
	commentRepo := repository.NewCommentRepository(dbConn)
	commentTranslationRepo := repository.NewCommentTranslationRepository(dbConn)
	jobRepo := repository.NewJobRepository(dbConn)
	settingsRepo := repository.NewSettingsRepository(dbConn)
	statusRepo := repository.NewSchedulerStatusRepository(dbConn)

	// Jobs left queued or running by a previous process will never
	// finish; resetting them lets the next cycle resubmit their items.
	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	if reset, err := jobRepo.ResetAbandoned(startupCtx); err != nil {
		log.Fatalf("reset abandoned jobs: %v", err)
	} else if reset > 0 {
		logger.Warn("abandoned jobs reset", "module", "main", "count", reset)
	}
	cancelStartup()

	settingsService := service.NewSettingsService(settingsRepo)
	promptRegistry := llm.NewRegistry(settingsRepo)
	llmClient := llm.NewClient(settingsService, llm.NewRateLimiter(0))

	bootCtx, cancelBoot := context.WithTimeout(context.Background(), 5*time.Second)
	hnClient := hackernews.NewClient(cfg.HNBaseURL)
	fetcher := reader.NewFetcher(cfg.ReaderBase)
	bus := events.NewBus()
	jobQueue := queue.New(jobRepo, settingsService.QueueConcurrency(bootCtx))

	pipelineService := service.NewPipelineService(
		hnClient, fetcher, llmClient, promptRegistry,
		itemRepo, titleRepo, articleRepo, commentRepo, commentTranslationRepo,
		statusRepo, settingsService, jobQueue, bus,
	)
	refreshService := service.NewCommentRefreshService(hnClient, itemRepo, commentRepo, settingsService, pipelineService)
	retentionService := service.NewRetentionService(itemRepo, commentRepo, jobRepo)
	storyService := service.NewStoryService(itemRepo, titleRepo, articleRepo, commentRepo, commentTranslationRepo, promptRegistry)

	pipelineSched := scheduler.New("pipeline", pipelineService.RunOnce, settingsService.SchedulerInterval(bootCtx))
	refreshSched := scheduler.New("comment-refresh", refreshService.RefreshAll, settingsService.CommentRefreshInterval(bootCtx)).
		WithInitialDelay(refreshInitialDelay)
	retentionSched := scheduler.New("retention", retentionService.Sweep, retentionInterval)
	cancelBoot()

	storyHandler := handler.NewStoryHandler(storyService)
	statusHandler := handler.NewStatusHandler(statusRepo, jobQueue, pipelineSched)
	settingsHandler := handler.NewSettingsHandler(settingsService, promptRegistry, pipelineSched, refreshSched)
	eventsHandler := handler.NewEventsHandler(bus)

	router := transport.NewRouter(storyHandler, statusHandler, settingsHandler, eventsHandler)

	pipelineSched.Start()
	refreshSched.Start()
	retentionSched.Start()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down", "module", "main")

		pipelineSched.Stop()
		refreshSched.Stop()
		retentionSched.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := jobQueue.Shutdown(ctx); err != nil {
			logger.Warn("queue drain timed out", "module", "main", "error", err)
		}
		if err := router.Shutdown(ctx); err != nil {
			logger.Warn("server shutdown", "module", "main", "error", err)
		}
	}()

	if err := router.Start(cfg.Addr); err != nil {
		logger.Info("server stopped", "module", "main", "error", err)
	}
}
