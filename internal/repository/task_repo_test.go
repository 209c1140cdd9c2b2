package repository

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/serpwatch/serpwatch/internal/model"
	"gorm.io/gorm"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}
	if err := db.AutoMigrate(&model.Keyword{}, &model.Run{}, &model.Task{}, &model.Result{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func TestTaskRepository_CountAndSums(t *testing.T) {
	db := setupDB(t)
	repo := NewTaskRepository(db)

	tasks := []model.Task{
		{RunID: 1, Keyword: "a", Status: "succeeded", SuggestionCount: 5, QuestionCount: 2, RelatedCount: 3},
		{RunID: 1, Keyword: "b", Status: "succeeded", SuggestionCount: 4, QuestionCount: 0, RelatedCount: 1},
		{RunID: 1, Keyword: "c", Status: "failed"},
		{RunID: 2, Keyword: "d", Status: "succeeded", SuggestionCount: 9},
	}
	for i := range tasks {
		if err := repo.Create(&tasks[i]); err != nil {
			t.Fatalf("failed to create task: %v", err)
		}
	}

	count, err := repo.CountByRunAndStatus(1, "succeeded", "failed")
	if err != nil {
		t.Fatalf("CountByRunAndStatus failed: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 terminal tasks for run 1, got %d", count)
	}

	suggestions, questions, related, err := repo.SumCountsByRun(1)
	if err != nil {
		t.Fatalf("SumCountsByRun failed: %v", err)
	}
	if suggestions != 9 || questions != 2 || related != 4 {
		t.Errorf("unexpected sums: suggestions=%d questions=%d related=%d", suggestions, questions, related)
	}
}

func TestTaskRepository_CleanupStuckTasks(t *testing.T) {
	db := setupDB(t)
	repo := NewTaskRepository(db)

	old := time.Now().Add(-30 * time.Minute)
	recent := time.Now().Add(-1 * time.Minute)
	tasks := []model.Task{
		{RunID: 1, Keyword: "stuck", Status: "running", StartedAt: &old},
		{RunID: 1, Keyword: "fresh", Status: "running", StartedAt: &recent},
		{RunID: 1, Keyword: "done", Status: "succeeded", StartedAt: &old},
	}
	for i := range tasks {
		if err := repo.Create(&tasks[i]); err != nil {
			t.Fatalf("failed to create task: %v", err)
		}
	}

	affected, err := repo.CleanupStuckTasks(10 * time.Minute)
	if err != nil {
		t.Fatalf("CleanupStuckTasks failed: %v", err)
	}
	if affected != 1 {
		t.Errorf("expected 1 stuck task cleaned, got %d", affected)
	}

	stuck, err := repo.Get(tasks[0].ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if stuck.Status != "failed" {
		t.Errorf("stuck task should be failed, got %s", stuck.Status)
	}
	if stuck.ErrorMsg == "" {
		t.Errorf("stuck task should carry an error message")
	}

	fresh, err := repo.Get(tasks[1].ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fresh.Status != "running" {
		t.Errorf("fresh task should stay running, got %s", fresh.Status)
	}
}

func TestTaskRepository_GetByRunOrder(t *testing.T) {
	db := setupDB(t)
	repo := NewTaskRepository(db)

	for _, kw := range []string{"first", "second", "third"} {
		if err := repo.Create(&model.Task{RunID: 7, Keyword: kw, Status: "pending"}); err != nil {
			t.Fatalf("failed to create task: %v", err)
		}
	}

	got, err := repo.GetByRun(7)
	if err != nil {
		t.Fatalf("GetByRun failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(got))
	}
	if got[0].Keyword != "first" || got[2].Keyword != "third" {
		t.Errorf("tasks should come back in creation order, got %s..%s", got[0].Keyword, got[2].Keyword)
	}
}
