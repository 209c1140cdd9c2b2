package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/serpwatch/serpwatch/internal/eventbus"
	"github.com/serpwatch/serpwatch/internal/model"
	"github.com/serpwatch/serpwatch/internal/repository"
	"github.com/serpwatch/serpwatch/internal/service/extractor"
	"github.com/serpwatch/serpwatch/internal/service/statemachine"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite error: %v", err)
	}
	if err := db.AutoMigrate(&model.Keyword{}, &model.Run{}, &model.Task{}, &model.Result{}); err != nil {
		t.Fatalf("migrate error: %v", err)
	}
	return db
}

// fakeExtractor returns canned results and counts calls.
type fakeExtractor struct {
	err      error
	startErr error
	extracts int
	closed   bool
}

func (f *fakeExtractor) Start() error { return f.startErr }

func (f *fakeExtractor) Close() error {
	f.closed = true
	return nil
}

func (f *fakeExtractor) Extract(ctx context.Context, keyword string) (*extractor.Result, error) {
	f.extracts++
	if f.err != nil {
		return nil, f.err
	}
	return &extractor.Result{
		Keyword:             keyword,
		Timestamp:           time.Now().Format(time.RFC3339),
		Autocomplete:        []string{keyword + " reviews", keyword + " price"},
		PeopleAlsoAsk:       []string{"what is the best " + keyword},
		PeopleAlsoSearchFor: []string{keyword + " alternatives"},
	}, nil
}

func (f *fakeExtractor) Throttle(ctx context.Context) {}

type taskFixture struct {
	svc        *TaskService
	taskRepo   repository.TaskRepository
	resultRepo repository.ResultRepository
	runRepo    repository.RunRepository
	bus        *eventbus.RunEventBus
	run        *model.Run
	task       *model.Task

	// factoryEx is what the factory hands out when the service has to boot
	// its own extractor.
	factoryEx *fakeExtractor
}

func newTaskFixture(t *testing.T, ex KeywordExtractor) *taskFixture {
	t.Helper()
	db := setupDB(t)
	taskRepo := repository.NewTaskRepository(db)
	resultRepo := repository.NewResultRepository(db)
	runRepo := repository.NewRunRepository(db)
	bus := eventbus.NewRunEventBus()

	factoryEx := &fakeExtractor{}
	factory := func(opts extractor.Options) KeywordExtractor { return factoryEx }

	svc := NewTaskService(taskRepo, resultRepo, runRepo, bus, t.TempDir(),
		factory, extractor.Options{Country: "us"})
	svc.SetExtractor(ex)

	run := &model.Run{
		UUID:          "task-fixture-run",
		Trigger:       model.TriggerManual,
		Status:        string(statemachine.RunStatusRunning),
		Country:       "us",
		Headless:      true,
		WaitTime:      10,
		TotalKeywords: 1,
	}
	if err := runRepo.Create(run); err != nil {
		t.Fatalf("create run error: %v", err)
	}

	task := &model.Task{
		RunID:   run.ID,
		Keyword: "coffee maker",
		Status:  string(statemachine.TaskStatusQueued),
	}
	if err := taskRepo.Create(task); err != nil {
		t.Fatalf("create task error: %v", err)
	}

	return &taskFixture{
		svc:        svc,
		taskRepo:   taskRepo,
		resultRepo: resultRepo,
		runRepo:    runRepo,
		bus:        bus,
		run:        run,
		task:       task,
		factoryEx:  factoryEx,
	}
}

func TestExecuteTaskSuccess(t *testing.T) {
	ex := &fakeExtractor{}
	f := newTaskFixture(t, ex)

	var events []eventbus.RunEvent
	f.bus.Subscribe(eventbus.RunEventTaskSucceeded, func(ctx context.Context, event eventbus.RunEvent) error {
		events = append(events, event)
		return nil
	})

	if err := f.svc.ExecuteTask(context.Background(), f.task.ID); err != nil {
		t.Fatalf("ExecuteTask error: %v", err)
	}

	task, err := f.taskRepo.Get(f.task.ID)
	if err != nil {
		t.Fatalf("get task error: %v", err)
	}
	if task.Status != string(statemachine.TaskStatusSucceeded) {
		t.Fatalf("expected succeeded, got %s", task.Status)
	}
	if task.SuggestionCount != 2 || task.QuestionCount != 1 || task.RelatedCount != 1 {
		t.Fatalf("unexpected counts: %d/%d/%d", task.SuggestionCount, task.QuestionCount, task.RelatedCount)
	}
	if task.OutputFile != "coffee_maker.json" {
		t.Fatalf("unexpected output file: %s", task.OutputFile)
	}
	if task.StartedAt == nil || task.CompletedAt == nil {
		t.Fatalf("timestamps not set")
	}

	if len(events) != 1 || events[0].TaskID != f.task.ID {
		t.Fatalf("expected one succeeded event, got %+v", events)
	}

	row, err := f.resultRepo.GetByTask(f.task.ID)
	if err != nil {
		t.Fatalf("get result error: %v", err)
	}
	if row == nil || row.Keyword != "coffee maker" {
		t.Fatalf("result row not persisted: %+v", row)
	}
}

func TestExecuteTaskFailureIsRecorded(t *testing.T) {
	ex := &fakeExtractor{err: errors.New("browser crashed")}
	f := newTaskFixture(t, ex)

	var events []eventbus.RunEvent
	f.bus.Subscribe(eventbus.RunEventTaskFailed, func(ctx context.Context, event eventbus.RunEvent) error {
		events = append(events, event)
		return nil
	})

	// The failure is recorded on the task, not propagated.
	if err := f.svc.ExecuteTask(context.Background(), f.task.ID); err != nil {
		t.Fatalf("ExecuteTask should swallow harvest errors: %v", err)
	}

	task, err := f.taskRepo.Get(f.task.ID)
	if err != nil {
		t.Fatalf("get task error: %v", err)
	}
	if task.Status != string(statemachine.TaskStatusFailed) {
		t.Fatalf("expected failed, got %s", task.Status)
	}
	if task.ErrorMsg == "" {
		t.Fatalf("error message should be recorded")
	}
	if len(events) != 1 {
		t.Fatalf("expected one failed event, got %d", len(events))
	}
}

func TestExecuteTaskSkipsCanceled(t *testing.T) {
	ex := &fakeExtractor{}
	f := newTaskFixture(t, ex)

	f.task.Status = string(statemachine.TaskStatusCanceled)
	if err := f.taskRepo.Save(f.task); err != nil {
		t.Fatalf("save task error: %v", err)
	}

	if err := f.svc.ExecuteTask(context.Background(), f.task.ID); err != nil {
		t.Fatalf("ExecuteTask error: %v", err)
	}
	if ex.extracts != 0 {
		t.Fatalf("canceled task should not be harvested")
	}
}

func TestExecuteTaskAfterRunExtractorClosed(t *testing.T) {
	ex := &fakeExtractor{}
	f := newTaskFixture(t, ex)

	// The run finished and released its shared browser; a retried task must
	// get a fresh one from the run's recorded settings.
	if err := f.svc.CloseExtractor(); err != nil {
		t.Fatalf("CloseExtractor error: %v", err)
	}

	if err := f.svc.ExecuteTask(context.Background(), f.task.ID); err != nil {
		t.Fatalf("ExecuteTask error: %v", err)
	}

	task, err := f.taskRepo.Get(f.task.ID)
	if err != nil {
		t.Fatalf("get task error: %v", err)
	}
	if task.Status != string(statemachine.TaskStatusSucceeded) {
		t.Fatalf("expected succeeded, got %s (err=%q)", task.Status, task.ErrorMsg)
	}
	if ex.extracts != 0 {
		t.Fatalf("closed extractor must not be reused")
	}
	if f.factoryEx.extracts != 1 {
		t.Fatalf("per-task extractor should harvest, got %d extracts", f.factoryEx.extracts)
	}
	if !f.factoryEx.closed {
		t.Fatalf("per-task extractor should be closed after the task")
	}
}

func TestExecuteTaskFailsWhenExtractorStartupFails(t *testing.T) {
	f := newTaskFixture(t, nil)
	f.svc.SetExtractor(nil)
	f.factoryEx.startErr = errors.New("no chrome binary")

	if err := f.svc.ExecuteTask(context.Background(), f.task.ID); err != nil {
		t.Fatalf("ExecuteTask error: %v", err)
	}

	task, err := f.taskRepo.Get(f.task.ID)
	if err != nil {
		t.Fatalf("get task error: %v", err)
	}
	if task.Status != string(statemachine.TaskStatusFailed) {
		t.Fatalf("expected failed, got %s", task.Status)
	}
	if task.ErrorMsg == "" {
		t.Fatalf("error message should be recorded")
	}
}

func TestMarkDispatchFailed(t *testing.T) {
	f := newTaskFixture(t, &fakeExtractor{})

	f.task.Status = string(statemachine.TaskStatusPending)
	if err := f.taskRepo.Save(f.task); err != nil {
		t.Fatalf("save task error: %v", err)
	}

	var events []eventbus.RunEvent
	f.bus.Subscribe(eventbus.RunEventTaskFailed, func(ctx context.Context, event eventbus.RunEvent) error {
		events = append(events, event)
		return nil
	})

	f.svc.MarkDispatchFailed(context.Background(), f.task.ID, errors.New("queue full"))

	task, err := f.taskRepo.Get(f.task.ID)
	if err != nil {
		t.Fatalf("get task error: %v", err)
	}
	if task.Status != string(statemachine.TaskStatusFailed) {
		t.Fatalf("expected failed, got %s", task.Status)
	}
	if task.ErrorMsg != "queue full" {
		t.Fatalf("unexpected error message: %q", task.ErrorMsg)
	}
	if task.CompletedAt == nil {
		t.Fatalf("CompletedAt not set")
	}
	if len(events) != 1 || events[0].TaskID != f.task.ID {
		t.Fatalf("expected one failed event, got %+v", events)
	}

	// A task that already finished stays untouched.
	done := &model.Task{
		RunID:   f.run.ID,
		Keyword: "espresso machine",
		Status:  string(statemachine.TaskStatusSucceeded),
	}
	if err := f.taskRepo.Create(done); err != nil {
		t.Fatalf("create task error: %v", err)
	}
	f.svc.MarkDispatchFailed(context.Background(), done.ID, errors.New("queue full"))
	got, err := f.taskRepo.Get(done.ID)
	if err != nil {
		t.Fatalf("get task error: %v", err)
	}
	if got.Status != string(statemachine.TaskStatusSucceeded) {
		t.Fatalf("terminal task should be untouched, got %s", got.Status)
	}
}

func TestCloseExtractor(t *testing.T) {
	ex := &fakeExtractor{}
	f := newTaskFixture(t, ex)

	if err := f.svc.CloseExtractor(); err != nil {
		t.Fatalf("CloseExtractor error: %v", err)
	}
	if !ex.closed {
		t.Fatalf("extractor should be closed")
	}
	// Second close is a no-op.
	if err := f.svc.CloseExtractor(); err != nil {
		t.Fatalf("second CloseExtractor error: %v", err)
	}
}
