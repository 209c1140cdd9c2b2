package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"k8s.io/klog/v2"

	"github.com/serpwatch/serpwatch/config"
	"github.com/serpwatch/serpwatch/internal/eventbus"
	"github.com/serpwatch/serpwatch/internal/handler"
	"github.com/serpwatch/serpwatch/internal/model"
	"github.com/serpwatch/serpwatch/internal/pkg/database"
	"github.com/serpwatch/serpwatch/internal/repository"
	"github.com/serpwatch/serpwatch/internal/router"
	"github.com/serpwatch/serpwatch/internal/service"
	"github.com/serpwatch/serpwatch/internal/service/cleaner"
	"github.com/serpwatch/serpwatch/internal/service/extractor"
	"github.com/serpwatch/serpwatch/internal/service/orchestrator"
	"github.com/serpwatch/serpwatch/internal/service/publisher"
	"github.com/serpwatch/serpwatch/internal/service/scheduler"
	"github.com/serpwatch/serpwatch/internal/subscriber"
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	defer klog.Flush()

	cfg := config.GetConfig()

	if err := os.MkdirAll(cfg.Data.Dir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	db, err := database.InitDB(cfg.Database.Type, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	keywordRepo := repository.NewKeywordRepository(db)
	runRepo := repository.NewRunRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	resultRepo := repository.NewResultRepository(db)

	bus := eventbus.NewRunEventBus()

	newExtractor := func(opts extractor.Options) service.KeywordExtractor { return extractor.New(opts) }
	extractDefaults := extractor.Options{
		Country:  cfg.Extract.Country,
		Headless: cfg.Extract.Headless,
		WaitTime: cfg.Extract.WaitDuration(),
		MinDelay: time.Duration(cfg.Extract.MinDelay) * time.Second,
		MaxDelay: time.Duration(cfg.Extract.MaxDelay) * time.Second,
	}

	keywordService := service.NewKeywordService(keywordRepo)
	taskService := service.NewTaskService(taskRepo, resultRepo, runRepo, bus, cfg.Data.Dir,
		newExtractor, extractDefaults)

	var pubService *publisher.Service
	if cfg.Git.Enabled {
		pubService = publisher.New(publisher.Options{
			RepoDir:       cfg.Git.RepoDir,
			DataDir:       cfg.Data.Dir,
			Remote:        cfg.Git.Remote,
			Branch:        cfg.Git.Branch,
			AuthorName:    cfg.Git.AuthorName,
			AuthorEmail:   cfg.Git.AuthorEmail,
			MessagePrefix: cfg.Git.MessagePrefix,
			Push:          cfg.Git.Push,
		})
	}

	runService := service.NewRunService(
		runRepo, taskRepo, keywordRepo, resultRepo,
		taskService, bus,
		cleaner.New(cfg.Data.Dir),
		pubService,
		newExtractor,
		extractDefaults,
		cfg.Data.Dir,
	)

	unsubscribe := subscriber.RegisterRunEventSubscriber(bus, runService)
	defer unsubscribe()

	if err := orchestrator.InitGlobalOrchestrator(cfg.Extract.MaxWorkers, taskService); err != nil {
		log.Fatalf("Failed to initialize orchestrator: %v", err)
	}
	defer orchestrator.ShutdownGlobalOrchestrator()

	// Tasks and runs left over from an unclean shutdown would block the
	// single-run guard forever.
	cleanupStuckTasks(taskService)
	if recovered, err := runService.RecoverStaleRuns(context.Background()); err != nil {
		klog.Warningf("stale run recovery failed: %v", err)
	} else if recovered > 0 {
		klog.Warningf("failed %d interrupted runs at startup", recovered)
	}

	if created, err := keywordService.ImportFile(cfg.Extract.KeywordsFile); err != nil {
		klog.Warningf("keywords file not loaded: %v", err)
	} else if created > 0 {
		klog.V(6).Infof("loaded %d new keywords from %s", created, cfg.Extract.KeywordsFile)
	}

	if cfg.Schedule.Enabled {
		sched, err := scheduler.New(cfg.Schedule.Cron, func() {
			if _, err := runService.Start(context.Background(), service.StartOptions{
				Trigger: model.TriggerSchedule,
			}); err != nil {
				klog.Errorf("scheduled run failed to start: %v", err)
			}
		})
		if err != nil {
			log.Fatalf("Failed to initialize scheduler: %v", err)
		}
		sched.Start()
		defer sched.Stop()
		klog.V(6).Infof("next scheduled run: %s", sched.NextRun())
	}

	runHandler := handler.NewRunHandler(runService, taskService)
	taskHandler := handler.NewTaskHandler(taskService)
	keywordHandler := handler.NewKeywordHandler(keywordService, cfg.Extract.KeywordsFile)
	resultHandler := handler.NewResultHandler(resultRepo)
	configHandler := handler.NewConfigHandler(cfg)

	r := router.Setup(cfg, runHandler, taskHandler, keywordHandler, resultHandler, configHandler)

	log.Printf("Server starting on port %s...", cfg.Server.Port)
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// cleanupStuckTasks fails tasks stuck from before this process started.
func cleanupStuckTasks(taskService *service.TaskService) {
	affected, err := taskService.CleanupStuckTasks(10*time.Minute, 30*time.Minute)
	if err != nil {
		klog.Warningf("stuck task cleanup failed: %v", err)
		return
	}
	if affected > 0 {
		klog.V(6).Infof("cleaned up %d stuck tasks at startup", affected)
	}
}
