// Command extract runs one full harvest pipeline and exits: every active
// keyword is processed, the data files are re-cleaned, the combined and
// summary artifacts are written and, when enabled, the data directory is
// committed to git. Intended for CI environments.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"

	"github.com/serpwatch/serpwatch/config"
	"github.com/serpwatch/serpwatch/internal/eventbus"
	"github.com/serpwatch/serpwatch/internal/model"
	"github.com/serpwatch/serpwatch/internal/pkg/database"
	"github.com/serpwatch/serpwatch/internal/repository"
	"github.com/serpwatch/serpwatch/internal/service"
	"github.com/serpwatch/serpwatch/internal/service/cleaner"
	"github.com/serpwatch/serpwatch/internal/service/extractor"
	"github.com/serpwatch/serpwatch/internal/service/orchestrator"
	"github.com/serpwatch/serpwatch/internal/service/publisher"
	"github.com/serpwatch/serpwatch/internal/service/statemachine"
	"github.com/serpwatch/serpwatch/internal/subscriber"
)

func main() {
	klog.InitFlags(nil)

	cfg := config.GetConfig()

	country := flag.String("country", cfg.Extract.Country, "two-letter country code for search results")
	headless := flag.Bool("headless", cfg.Extract.Headless, "run the browser headless")
	waitTime := flag.Int("wait", cfg.Extract.WaitTime, "seconds to wait for page elements")
	keywordsFile := flag.String("keywords-file", cfg.Extract.KeywordsFile, "keyword list, one per line")
	keywords := flag.String("keywords", "", "comma separated keywords, overrides the keywords file")
	publish := flag.Bool("publish", cfg.Git.Enabled, "commit the data directory after the run")
	flag.Parse()
	defer klog.Flush()

	if err := run(cfg, *country, *headless, *waitTime, *keywordsFile, *keywords, *publish); err != nil {
		log.Printf("extraction failed: %v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, country string, headless bool, waitTime int,
	keywordsFile, keywordList string, publish bool) error {

	if err := os.MkdirAll(cfg.Data.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := database.InitDB(cfg.Database.Type, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	keywordRepo := repository.NewKeywordRepository(db)
	runRepo := repository.NewRunRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	resultRepo := repository.NewResultRepository(db)

	bus := eventbus.NewRunEventBus()
	newExtractor := func(opts extractor.Options) service.KeywordExtractor { return extractor.New(opts) }
	extractDefaults := extractor.Options{
		Country:  country,
		Headless: headless,
		WaitTime: time.Duration(waitTime) * time.Second,
		MinDelay: time.Duration(cfg.Extract.MinDelay) * time.Second,
		MaxDelay: time.Duration(cfg.Extract.MaxDelay) * time.Second,
	}
	taskService := service.NewTaskService(taskRepo, resultRepo, runRepo, bus, cfg.Data.Dir,
		newExtractor, extractDefaults)

	var pubService *publisher.Service
	if publish {
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
		return fmt.Errorf("failed to initialize orchestrator: %w", err)
	}
	defer orchestrator.ShutdownGlobalOrchestrator()

	// A run interrupted mid-flight in a previous invocation would block the
	// single-run guard.
	if recovered, err := runService.RecoverStaleRuns(context.Background()); err != nil {
		klog.Warningf("stale run recovery failed: %v", err)
	} else if recovered > 0 {
		klog.Warningf("failed %d interrupted runs from previous invocations", recovered)
	}

	keywordService := service.NewKeywordService(keywordRepo)
	var explicit []string
	total := 0
	if keywordList != "" {
		for _, keyword := range strings.Split(keywordList, ",") {
			if keyword = strings.TrimSpace(keyword); keyword != "" {
				explicit = append(explicit, keyword)
			}
		}
		total = len(explicit)
	} else {
		if _, err := keywordService.ImportFile(keywordsFile); err != nil {
			return err
		}
		if active, err := keywordRepo.ListActive(); err == nil {
			total = len(active)
		}
	}

	// The bar exists before any task can finish; workers start as soon as
	// Start enqueues them.
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription("Extracting keywords"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
	)
	done := make(chan string, 1)
	defer bus.Subscribe(eventbus.RunEventTaskSucceeded, progressTicker(bar))()
	defer bus.Subscribe(eventbus.RunEventTaskFailed, progressTicker(bar))()
	defer bus.Subscribe(eventbus.RunEventFinished, func(ctx context.Context, event eventbus.RunEvent) error {
		select {
		case done <- event.Status:
		default:
		}
		return nil
	})()

	runRecord, err := runService.Start(context.Background(), service.StartOptions{
		Trigger:  model.TriggerCLI,
		Keywords: explicit,
	})
	if err != nil {
		return err
	}
	if runRecord.TotalKeywords != total {
		bar.ChangeMax(runRecord.TotalKeywords)
	}

	status := <-done
	fmt.Println()

	final, err := runService.Get(runRecord.ID)
	if err == nil {
		fmt.Printf("Run %s finished: %d succeeded, %d failed\n",
			final.UUID, final.SucceededTasks, final.FailedTasks)
		if final.CommitHash != "" {
			fmt.Printf("Committed as %s\n", final.CommitHash)
		}
	}

	if status != string(statemachine.RunStatusSucceeded) {
		return fmt.Errorf("run finished with status %s", status)
	}
	return nil
}

// progressTicker advances the bar on each terminal task event. The bar
// serializes its own state, so handlers may tick from worker goroutines.
func progressTicker(bar *progressbar.ProgressBar) func(context.Context, eventbus.RunEvent) error {
	return func(ctx context.Context, event eventbus.RunEvent) error {
		bar.Add(1)
		return nil
	}
}
