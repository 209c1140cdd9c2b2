package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/serpwatch/serpwatch/internal/eventbus"
	"github.com/serpwatch/serpwatch/internal/model"
	"github.com/serpwatch/serpwatch/internal/pkg/git"
	"github.com/serpwatch/serpwatch/internal/repository"
	"github.com/serpwatch/serpwatch/internal/service/cleaner"
	"github.com/serpwatch/serpwatch/internal/service/extractor"
	"github.com/serpwatch/serpwatch/internal/service/publisher"
	"github.com/serpwatch/serpwatch/internal/service/statemachine"
)

// ErrRunInProgress is returned when a new run is requested while another one
// is still active. The extractor drives a single shared browser, so runs
// never overlap.
var ErrRunInProgress = errors.New("a run is already in progress")

// ExtractorFactory builds the harvest backend for one run. Tests inject a
// factory returning a fake.
type ExtractorFactory func(opts extractor.Options) KeywordExtractor

// StartOptions carries per-run overrides of the configured defaults.
type StartOptions struct {
	Trigger  string
	Country  string
	Headless *bool
	WaitTime int      // seconds
	Keywords []string // when empty, all active keywords are used
}

type RunService struct {
	runRepo     repository.RunRepository
	taskRepo    repository.TaskRepository
	keywordRepo repository.KeywordRepository
	resultRepo  repository.ResultRepository

	tasks *TaskService
	bus   *eventbus.RunEventBus
	sm    *statemachine.RunStateMachine

	cleaner      *cleaner.Service
	publisher    *publisher.Service // nil when publishing is disabled
	newExtractor ExtractorFactory

	defaults extractor.Options
	dataDir  string

	finalizeMu sync.Mutex
}

func NewRunService(
	runRepo repository.RunRepository,
	taskRepo repository.TaskRepository,
	keywordRepo repository.KeywordRepository,
	resultRepo repository.ResultRepository,
	tasks *TaskService,
	bus *eventbus.RunEventBus,
	cleanSvc *cleaner.Service,
	pubSvc *publisher.Service,
	newExtractor ExtractorFactory,
	defaults extractor.Options,
	dataDir string,
) *RunService {
	return &RunService{
		runRepo:      runRepo,
		taskRepo:     taskRepo,
		keywordRepo:  keywordRepo,
		resultRepo:   resultRepo,
		tasks:        tasks,
		bus:          bus,
		sm:           statemachine.NewRunStateMachine(),
		cleaner:      cleanSvc,
		publisher:    pubSvc,
		newExtractor: newExtractor,
		defaults:     defaults,
		dataDir:      dataDir,
	}
}

func (s *RunService) Get(id uint) (*model.Run, error) {
	return s.runRepo.Get(id)
}

func (s *RunService) GetByUUID(uuid string) (*model.Run, error) {
	return s.runRepo.GetByUUID(uuid)
}

func (s *RunService) GetActive() (*model.Run, error) {
	return s.runRepo.GetActive()
}

func (s *RunService) List(limit int) ([]model.Run, error) {
	return s.runRepo.List(limit)
}

// Start creates a run with one task per keyword, boots the harvest backend
// and queues everything. Only one run may be active at a time.
func (s *RunService) Start(ctx context.Context, opts StartOptions) (*model.Run, error) {
	active, err := s.runRepo.GetActive()
	if err != nil {
		return nil, fmt.Errorf("failed to check active runs: %w", err)
	}
	if active != nil {
		return nil, ErrRunInProgress
	}

	keywords, err := s.resolveKeywords(opts.Keywords)
	if err != nil {
		return nil, err
	}
	if len(keywords) == 0 {
		return nil, fmt.Errorf("no active keywords to process")
	}

	exOpts := s.defaults
	if opts.Country != "" {
		exOpts.Country = opts.Country
	}
	if opts.Headless != nil {
		exOpts.Headless = *opts.Headless
	}
	if opts.WaitTime > 0 {
		exOpts.WaitTime = time.Duration(opts.WaitTime) * time.Second
	}

	run := &model.Run{
		UUID:          uuid.NewString(),
		Trigger:       opts.Trigger,
		Status:        string(statemachine.RunStatusPending),
		Country:       exOpts.Country,
		Headless:      exOpts.Headless,
		WaitTime:      int(exOpts.WaitTime / time.Second),
		TotalKeywords: len(keywords),
	}
	if err := s.runRepo.Create(run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	tasks := make([]*model.Task, 0, len(keywords))
	for _, keyword := range keywords {
		task := &model.Task{
			RunID:     run.ID,
			KeywordID: keyword.ID,
			Keyword:   keyword.Text,
			Status:    string(statemachine.TaskStatusPending),
		}
		if err := s.taskRepo.Create(task); err != nil {
			return nil, fmt.Errorf("failed to create task for %q: %w", keyword.Text, err)
		}
		tasks = append(tasks, task)
	}

	ex := s.newExtractor(exOpts)
	if err := ex.Start(); err != nil {
		s.failRun(ctx, run, fmt.Errorf("extractor startup failed: %w", err))
		return nil, err
	}
	s.tasks.SetExtractor(ex)

	if err := s.sm.Transition(statemachine.RunStatusPending, statemachine.RunStatusRunning, run.ID); err != nil {
		return nil, err
	}
	now := time.Now()
	run.Status = string(statemachine.RunStatusRunning)
	run.StartedAt = &now
	if err := s.runRepo.Save(run); err != nil {
		return nil, fmt.Errorf("failed to save run: %w", err)
	}

	for _, task := range tasks {
		if err := s.tasks.Enqueue(task.ID); err != nil {
			klog.Errorf("failed to enqueue task: taskID=%d, err=%v", task.ID, err)
			s.tasks.MarkDispatchFailed(ctx, task.ID, err)
		}
	}

	klog.V(6).Infof("run started: runID=%d, uuid=%s, trigger=%s, keywords=%d",
		run.ID, run.UUID, run.Trigger, run.TotalKeywords)
	return run, nil
}

// resolveKeywords upserts an explicit list or falls back to all active ones.
func (s *RunService) resolveKeywords(explicit []string) ([]model.Keyword, error) {
	if len(explicit) == 0 {
		return s.keywordRepo.ListActive()
	}

	keywordSvc := NewKeywordService(s.keywordRepo)
	keywords := make([]model.Keyword, 0, len(explicit))
	for _, text := range explicit {
		keyword, _, err := keywordSvc.Upsert(text)
		if err != nil {
			klog.Warningf("skipping keyword %q: %v", text, err)
			continue
		}
		keywords = append(keywords, *keyword)
	}
	return keywords, nil
}

// RecoverStaleRuns fails runs left non-terminal by an unclean shutdown.
// Without this a crashed run would hold the single-run guard forever. Called
// at startup after the stuck-task cleanup.
func (s *RunService) RecoverStaleRuns(ctx context.Context) (int, error) {
	recovered := 0
	for {
		run, err := s.runRepo.GetActive()
		if err != nil {
			return recovered, fmt.Errorf("failed to check active runs: %w", err)
		}
		if run == nil {
			return recovered, nil
		}
		klog.Warningf("failing interrupted run: runID=%d, status=%s", run.ID, run.Status)
		s.failRun(ctx, run, errors.New("interrupted by restart"))
		recovered++
	}
}

// HandleTaskFinished updates the run counters after a task reached a terminal
// state and finalizes the run when all tasks are done. Wired to the event bus
// by the subscriber.
func (s *RunService) HandleTaskFinished(ctx context.Context, event eventbus.RunEvent) error {
	run, err := s.runRepo.Get(event.RunID)
	if err != nil {
		return fmt.Errorf("failed to load run %d: %w", event.RunID, err)
	}

	succeeded, err := s.taskRepo.CountByRunAndStatus(run.ID, string(statemachine.TaskStatusSucceeded))
	if err != nil {
		return err
	}
	failed, err := s.taskRepo.CountByRunAndStatus(run.ID,
		string(statemachine.TaskStatusFailed), string(statemachine.TaskStatusCanceled))
	if err != nil {
		return err
	}

	run.SucceededTasks = int(succeeded)
	run.FailedTasks = int(failed)
	if err := s.runRepo.Save(run); err != nil {
		return err
	}

	if int(succeeded+failed) >= run.TotalKeywords {
		s.Finalize(ctx, run.ID)
	}
	return nil
}

// Finalize runs the tail of the pipeline: close the browser, re-clean the
// data files, write the combined and summary artifacts and publish to git.
func (s *RunService) Finalize(ctx context.Context, runID uint) {
	s.finalizeMu.Lock()
	defer s.finalizeMu.Unlock()

	run, err := s.runRepo.Get(runID)
	if err != nil {
		klog.Errorf("finalize: failed to load run %d: %v", runID, err)
		return
	}
	if run.Status != string(statemachine.RunStatusRunning) {
		klog.V(6).Infof("finalize skipped: runID=%d, status=%s", runID, run.Status)
		return
	}

	if err := s.tasks.CloseExtractor(); err != nil {
		klog.Warningf("extractor close failed: runID=%d, err=%v", runID, err)
	}

	// Cleanup stage.
	if err := s.transitionRun(run, statemachine.RunStatusCleaning); err != nil {
		return
	}
	if stats, err := s.cleaner.Clean(); err != nil {
		s.failRun(ctx, run, fmt.Errorf("cleanup pass failed: %w", err))
		return
	} else {
		klog.V(6).Infof("cleanup pass: runID=%d, rewritten=%d, removed=%d",
			runID, stats.FilesRewritten, stats.EntriesRemoved)
	}

	// Publish stage.
	if err := s.transitionRun(run, statemachine.RunStatusPublishing); err != nil {
		return
	}
	if err := s.writeRunArtifacts(run); err != nil {
		s.failRun(ctx, run, err)
		return
	}

	suggestions, questions, related, err := s.taskRepo.SumCountsByRun(run.ID)
	if err != nil {
		klog.Warningf("failed to sum counts: runID=%d, err=%v", runID, err)
	}
	run.SuggestionCount = int(suggestions)
	run.QuestionCount = int(questions)
	run.RelatedCount = int(related)

	if s.publisher != nil {
		hash, err := s.publisher.Publish(ctx, time.Now())
		if err != nil {
			s.failRun(ctx, run, fmt.Errorf("publish failed: %w", err))
			return
		}
		run.CommitHash = hash
	}

	if sizeMB, err := git.DirSizeMB(s.dataDir); err == nil {
		klog.V(6).Infof("data directory size: %.2f MB", sizeMB)
	}

	if err := s.transitionRun(run, statemachine.RunStatusSucceeded); err != nil {
		return
	}
	now := time.Now()
	run.CompletedAt = &now
	if err := s.runRepo.Save(run); err != nil {
		klog.Errorf("failed to save finished run: runID=%d, err=%v", runID, err)
	}

	klog.V(6).Infof("run succeeded: runID=%d, succeeded=%d, failed=%d",
		run.ID, run.SucceededTasks, run.FailedTasks)
	s.publishFinished(ctx, run)
}

// writeRunArtifacts rebuilds the combined file and the summary report from
// the persisted results of this run.
func (s *RunService) writeRunArtifacts(run *model.Run) error {
	rows, err := s.resultRepo.ListByRun(run.ID)
	if err != nil {
		return fmt.Errorf("failed to list results: %w", err)
	}

	results := make([]*extractor.Result, 0, len(rows))
	for _, row := range rows {
		result := &extractor.Result{
			Keyword:   row.Keyword,
			Timestamp: row.CapturedAt.Format(time.RFC3339),
		}
		if err := json.Unmarshal([]byte(row.Autocomplete), &result.Autocomplete); err != nil {
			klog.Warningf("bad autocomplete payload: resultID=%d, err=%v", row.ID, err)
		}
		if err := json.Unmarshal([]byte(row.PeopleAlsoAsk), &result.PeopleAlsoAsk); err != nil {
			klog.Warningf("bad people_also_ask payload: resultID=%d, err=%v", row.ID, err)
		}
		if err := json.Unmarshal([]byte(row.PeopleAlsoSearchFor), &result.PeopleAlsoSearchFor); err != nil {
			klog.Warningf("bad people_also_search_for payload: resultID=%d, err=%v", row.ID, err)
		}
		results = append(results, result)
	}

	now := time.Now()
	if _, err := extractor.WriteCombined(s.dataDir, results, now); err != nil {
		return err
	}
	return extractor.WriteSummary(s.dataDir, results, now)
}

// Cancel aborts a pending or running run along with its open tasks.
func (s *RunService) Cancel(ctx context.Context, runID uint) error {
	run, err := s.runRepo.Get(runID)
	if err != nil {
		return fmt.Errorf("failed to load run %d: %w", runID, err)
	}

	current := statemachine.RunStatus(run.Status)
	if err := s.sm.Transition(current, statemachine.RunStatusCanceled, runID); err != nil {
		return err
	}

	tasks, err := s.taskRepo.GetByRun(runID)
	if err != nil {
		return err
	}
	for i := range tasks {
		status := statemachine.TaskStatus(tasks[i].Status)
		if !statemachine.IsRunning(status) {
			continue
		}
		if err := s.tasks.Cancel(ctx, tasks[i].ID); err != nil {
			klog.Warningf("task cancel failed: taskID=%d, err=%v", tasks[i].ID, err)
		}
	}

	if err := s.tasks.CloseExtractor(); err != nil {
		klog.Warningf("extractor close failed: runID=%d, err=%v", runID, err)
	}

	now := time.Now()
	run.Status = string(statemachine.RunStatusCanceled)
	run.CompletedAt = &now
	if err := s.runRepo.Save(run); err != nil {
		return err
	}

	klog.V(6).Infof("run canceled: runID=%d", runID)
	s.publishFinished(ctx, run)
	return nil
}

func (s *RunService) transitionRun(run *model.Run, to statemachine.RunStatus) error {
	from := statemachine.RunStatus(run.Status)
	if err := s.sm.Transition(from, to, run.ID); err != nil {
		klog.Errorf("run transition rejected: runID=%d, %s -> %s", run.ID, from, to)
		return err
	}
	run.Status = string(to)
	return s.runRepo.Save(run)
}

func (s *RunService) failRun(ctx context.Context, run *model.Run, cause error) {
	klog.Errorf("run failed: runID=%d, err=%v", run.ID, cause)

	if err := s.tasks.CloseExtractor(); err != nil {
		klog.Warningf("extractor close failed: runID=%d, err=%v", run.ID, err)
	}

	from := statemachine.RunStatus(run.Status)
	if !s.sm.CanTransition(from, statemachine.RunStatusFailed) {
		klog.Warningf("forcing run %d from %s to failed", run.ID, from)
	}
	now := time.Now()
	run.Status = string(statemachine.RunStatusFailed)
	run.ErrorMsg = truncate(cause.Error(), 1000)
	run.CompletedAt = &now
	if err := s.runRepo.Save(run); err != nil {
		klog.Errorf("failed to save failed run: runID=%d, err=%v", run.ID, err)
	}

	s.publishFinished(ctx, run)
}

func (s *RunService) publishFinished(ctx context.Context, run *model.Run) {
	event := eventbus.RunEvent{
		Type:   eventbus.RunEventFinished,
		RunID:  run.ID,
		Status: run.Status,
	}
	if err := s.bus.Publish(ctx, eventbus.RunEventFinished, event); err != nil {
		klog.Errorf("run finished event publish failed: runID=%d, err=%v", run.ID, err)
	}
}
