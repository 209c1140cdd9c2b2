package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"k8s.io/klog/v2"

	"github.com/serpwatch/serpwatch/internal/eventbus"
	"github.com/serpwatch/serpwatch/internal/model"
	"github.com/serpwatch/serpwatch/internal/repository"
	"github.com/serpwatch/serpwatch/internal/service/extractor"
	"github.com/serpwatch/serpwatch/internal/service/orchestrator"
	"github.com/serpwatch/serpwatch/internal/service/statemachine"
)

// KeywordExtractor is the harvest backend a task runs against. The real
// implementation drives a browser; tests substitute a fake.
type KeywordExtractor interface {
	Start() error
	Close() error
	Extract(ctx context.Context, keyword string) (*extractor.Result, error)
	Throttle(ctx context.Context)
}

type TaskService struct {
	taskRepo   repository.TaskRepository
	resultRepo repository.ResultRepository
	runRepo    repository.RunRepository
	sm         *statemachine.TaskStateMachine
	bus        *eventbus.RunEventBus
	dataDir    string

	newExtractor ExtractorFactory
	defaults     extractor.Options

	mu        sync.Mutex
	extractor KeywordExtractor
}

func NewTaskService(taskRepo repository.TaskRepository, resultRepo repository.ResultRepository,
	runRepo repository.RunRepository, bus *eventbus.RunEventBus, dataDir string,
	newExtractor ExtractorFactory, defaults extractor.Options) *TaskService {
	return &TaskService{
		taskRepo:     taskRepo,
		resultRepo:   resultRepo,
		runRepo:      runRepo,
		sm:           statemachine.NewTaskStateMachine(),
		bus:          bus,
		dataDir:      dataDir,
		newExtractor: newExtractor,
		defaults:     defaults,
	}
}

// SetExtractor installs the harvest backend for the current run.
func (s *TaskService) SetExtractor(ex KeywordExtractor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extractor = ex
}

// CloseExtractor shuts down the current harvest backend, if any.
func (s *TaskService) CloseExtractor() error {
	s.mu.Lock()
	ex := s.extractor
	s.extractor = nil
	s.mu.Unlock()
	if ex == nil {
		return nil
	}
	return ex.Close()
}

func (s *TaskService) getExtractor() KeywordExtractor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.extractor
}

func (s *TaskService) Get(id uint) (*model.Task, error) {
	return s.taskRepo.Get(id)
}

func (s *TaskService) GetByRun(runID uint) ([]model.Task, error) {
	return s.taskRepo.GetByRun(runID)
}

// Enqueue moves a pending task into the orchestrator queue.
func (s *TaskService) Enqueue(taskID uint) error {
	task, err := s.taskRepo.Get(taskID)
	if err != nil {
		return fmt.Errorf("failed to load task %d: %w", taskID, err)
	}

	current := statemachine.TaskStatus(task.Status)
	if err := s.sm.Transition(current, statemachine.TaskStatusQueued, taskID); err != nil {
		return err
	}
	task.Status = string(statemachine.TaskStatusQueued)
	if err := s.taskRepo.Save(task); err != nil {
		return fmt.Errorf("failed to save task %d: %w", taskID, err)
	}

	orch := orchestrator.GetGlobalOrchestrator()
	if orch == nil {
		return fmt.Errorf("orchestrator not initialized")
	}
	return orch.EnqueueJob(orchestrator.NewTaskJob(taskID))
}

// ExecuteTask is the orchestrator entry point. A harvest failure is recorded
// on the task and swallowed; each keyword gets one pass per run, matching the
// page-level retries inside the extractor.
func (s *TaskService) ExecuteTask(ctx context.Context, taskID uint) error {
	task, err := s.taskRepo.Get(taskID)
	if err != nil {
		return fmt.Errorf("failed to load task %d: %w", taskID, err)
	}

	current := statemachine.TaskStatus(task.Status)
	if current == statemachine.TaskStatusCanceled {
		klog.V(6).Infof("task canceled before execution: taskID=%d", taskID)
		return nil
	}
	if err := s.sm.Transition(current, statemachine.TaskStatusRunning, taskID); err != nil {
		return err
	}

	now := time.Now()
	task.Status = string(statemachine.TaskStatusRunning)
	task.StartedAt = &now
	task.ErrorMsg = ""
	if err := s.taskRepo.Save(task); err != nil {
		return fmt.Errorf("failed to save task %d: %w", taskID, err)
	}

	result, outputFile, err := s.executeTaskLogic(ctx, task)
	if err != nil {
		s.failTask(ctx, task, err)
		return nil
	}
	s.succeedTask(ctx, task, result, outputFile)
	return nil
}

func (s *TaskService) executeTaskLogic(ctx context.Context, task *model.Task) (*extractor.Result, string, error) {
	ex := s.getExtractor()
	if ex == nil {
		fresh, err := s.startRunExtractor(task.RunID)
		if err != nil {
			return nil, "", err
		}
		defer func() {
			if err := fresh.Close(); err != nil {
				klog.Warningf("per-task extractor close failed: taskID=%d, err=%v", task.ID, err)
			}
		}()
		ex = fresh
	}

	klog.V(6).Infof("harvesting keyword: taskID=%d, keyword=%q", task.ID, task.Keyword)

	result, err := ex.Extract(ctx, task.Keyword)
	if err != nil {
		return nil, "", fmt.Errorf("harvest failed: %w", err)
	}

	outputFile, err := extractor.WriteResult(s.dataDir, result)
	if err != nil {
		return nil, "", err
	}

	if err := s.saveResult(task, result); err != nil {
		klog.Warningf("result row not persisted: taskID=%d, err=%v", task.ID, err)
	}

	ex.Throttle(ctx)
	return result, outputFile, nil
}

// startRunExtractor boots a browser for a task executed outside its run's
// lifetime, typically a retry after the run finalized. Settings come from the
// run's recorded snapshot so the retry behaves like the original pass.
func (s *TaskService) startRunExtractor(runID uint) (KeywordExtractor, error) {
	if s.newExtractor == nil {
		return nil, fmt.Errorf("no extractor installed")
	}

	opts := s.defaults
	if run, err := s.runRepo.Get(runID); err == nil {
		if run.Country != "" {
			opts.Country = run.Country
		}
		opts.Headless = run.Headless
		if run.WaitTime > 0 {
			opts.WaitTime = time.Duration(run.WaitTime) * time.Second
		}
	} else {
		klog.Warningf("run snapshot unavailable, using defaults: runID=%d, err=%v", runID, err)
	}

	ex := s.newExtractor(opts)
	if err := ex.Start(); err != nil {
		return nil, fmt.Errorf("extractor startup failed: %w", err)
	}
	return ex, nil
}

func (s *TaskService) saveResult(task *model.Task, result *extractor.Result) error {
	autocomplete, err := json.Marshal(result.Autocomplete)
	if err != nil {
		return err
	}
	questions, err := json.Marshal(result.PeopleAlsoAsk)
	if err != nil {
		return err
	}
	related, err := json.Marshal(result.PeopleAlsoSearchFor)
	if err != nil {
		return err
	}

	return s.resultRepo.Create(&model.Result{
		RunID:               task.RunID,
		TaskID:              task.ID,
		Keyword:             task.Keyword,
		Autocomplete:        string(autocomplete),
		PeopleAlsoAsk:       string(questions),
		PeopleAlsoSearchFor: string(related),
		CapturedAt:          time.Now(),
	})
}

func (s *TaskService) succeedTask(ctx context.Context, task *model.Task, result *extractor.Result, outputFile string) {
	if err := s.sm.Transition(statemachine.TaskStatusRunning, statemachine.TaskStatusSucceeded, task.ID); err != nil {
		klog.Errorf("cannot mark task succeeded: taskID=%d, err=%v", task.ID, err)
		return
	}

	now := time.Now()
	task.Status = string(statemachine.TaskStatusSucceeded)
	task.CompletedAt = &now
	task.SuggestionCount = len(result.Autocomplete)
	task.QuestionCount = len(result.PeopleAlsoAsk)
	task.RelatedCount = len(result.PeopleAlsoSearchFor)
	task.OutputFile = outputFile
	if err := s.taskRepo.Save(task); err != nil {
		klog.Errorf("failed to save succeeded task: taskID=%d, err=%v", task.ID, err)
	}

	s.publish(ctx, eventbus.RunEventTaskSucceeded, task)
}

func (s *TaskService) failTask(ctx context.Context, task *model.Task, taskErr error) {
	if err := s.sm.Transition(statemachine.TaskStatusRunning, statemachine.TaskStatusFailed, task.ID); err != nil {
		klog.Errorf("cannot mark task failed: taskID=%d, err=%v", task.ID, err)
		return
	}

	now := time.Now()
	task.Status = string(statemachine.TaskStatusFailed)
	task.CompletedAt = &now
	task.ErrorMsg = truncate(taskErr.Error(), 1000)
	if err := s.taskRepo.Save(task); err != nil {
		klog.Errorf("failed to save failed task: taskID=%d, err=%v", task.ID, err)
	}

	klog.Warningf("task failed: taskID=%d, keyword=%q, err=%v", task.ID, task.Keyword, taskErr)
	s.publish(ctx, eventbus.RunEventTaskFailed, task)
}

func (s *TaskService) publish(ctx context.Context, eventType eventbus.RunEventType, task *model.Task) {
	event := eventbus.RunEvent{
		Type:    eventType,
		RunID:   task.RunID,
		TaskID:  task.ID,
		Keyword: task.Keyword,
		Status:  task.Status,
	}
	if err := s.bus.Publish(ctx, eventType, event); err != nil {
		klog.Errorf("event publish failed: taskID=%d, type=%s, err=%v", task.ID, eventType, err)
	}
}

// Cancel aborts a queued or running task.
func (s *TaskService) Cancel(ctx context.Context, taskID uint) error {
	task, err := s.taskRepo.Get(taskID)
	if err != nil {
		return fmt.Errorf("failed to load task %d: %w", taskID, err)
	}

	current := statemachine.TaskStatus(task.Status)
	if err := s.sm.Transition(current, statemachine.TaskStatusCanceled, taskID); err != nil {
		return err
	}

	if current == statemachine.TaskStatusRunning {
		if orch := orchestrator.GetGlobalOrchestrator(); orch != nil {
			orch.CancelTask(taskID)
		}
	}

	now := time.Now()
	task.Status = string(statemachine.TaskStatusCanceled)
	task.CompletedAt = &now
	return s.taskRepo.Save(task)
}

// Retry resets a terminal task and queues it again.
func (s *TaskService) Retry(taskID uint) error {
	task, err := s.taskRepo.Get(taskID)
	if err != nil {
		return fmt.Errorf("failed to load task %d: %w", taskID, err)
	}

	current := statemachine.TaskStatus(task.Status)
	if err := s.sm.Transition(current, statemachine.TaskStatusPending, taskID); err != nil {
		return err
	}

	task.Status = string(statemachine.TaskStatusPending)
	task.ErrorMsg = ""
	task.StartedAt = nil
	task.CompletedAt = nil
	task.SuggestionCount = 0
	task.QuestionCount = 0
	task.RelatedCount = 0
	task.OutputFile = ""
	if err := s.taskRepo.Save(task); err != nil {
		return fmt.Errorf("failed to save task %d: %w", taskID, err)
	}

	return s.Enqueue(taskID)
}

// MarkDispatchFailed fails a task that could not be handed to the
// orchestrator, so its run still reaches a terminal state.
func (s *TaskService) MarkDispatchFailed(ctx context.Context, taskID uint, cause error) {
	task, err := s.taskRepo.Get(taskID)
	if err != nil {
		klog.Errorf("failed to load undispatched task %d: %v", taskID, err)
		return
	}

	current := statemachine.TaskStatus(task.Status)
	for _, next := range []statemachine.TaskStatus{
		statemachine.TaskStatusQueued,
		statemachine.TaskStatusRunning,
		statemachine.TaskStatusFailed,
	} {
		if current == next || !s.sm.CanTransition(current, next) {
			continue
		}
		if err := s.sm.Transition(current, next, taskID); err != nil {
			return
		}
		current = next
	}
	if current != statemachine.TaskStatusFailed {
		klog.Errorf("cannot fail undispatched task: taskID=%d, status=%s", taskID, task.Status)
		return
	}

	now := time.Now()
	task.Status = string(statemachine.TaskStatusFailed)
	task.CompletedAt = &now
	task.ErrorMsg = truncate(cause.Error(), 1000)
	if err := s.taskRepo.Save(task); err != nil {
		klog.Errorf("failed to save undispatched task: taskID=%d, err=%v", taskID, err)
		return
	}

	klog.Warningf("task dispatch failed: taskID=%d, keyword=%q, err=%v", task.ID, task.Keyword, cause)
	s.publish(ctx, eventbus.RunEventTaskFailed, task)
}

// CleanupStuckTasks fails tasks left running or queued past the timeouts,
// typically after an unclean shutdown.
func (s *TaskService) CleanupStuckTasks(runTimeout, queueTimeout time.Duration) (int64, error) {
	running, err := s.taskRepo.CleanupStuckTasks(runTimeout)
	if err != nil {
		return 0, err
	}
	queued, err := s.taskRepo.CleanupStuckQueuedTasks(queueTimeout)
	if err != nil {
		return running, err
	}
	if total := running + queued; total > 0 {
		klog.Warningf("cleaned up %d stuck tasks (running=%d, queued=%d)", total, running, queued)
	}
	return running + queued, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
