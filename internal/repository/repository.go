package repository

import (
	"time"

	"github.com/serpwatch/serpwatch/internal/model"
)

type KeywordRepository interface {
	Create(keyword *model.Keyword) error
	Get(id uint) (*model.Keyword, error)
	GetByText(text string) (*model.Keyword, error)
	List() ([]model.Keyword, error)
	ListActive() ([]model.Keyword, error)
	Save(keyword *model.Keyword) error
	Delete(id uint) error
}

type RunRepository interface {
	Create(run *model.Run) error
	Get(id uint) (*model.Run, error)
	GetByUUID(uuid string) (*model.Run, error)
	GetActive() (*model.Run, error)
	List(limit int) ([]model.Run, error)
	Save(run *model.Run) error
}

type TaskRepository interface {
	Create(task *model.Task) error
	Get(id uint) (*model.Task, error)
	GetByRun(runID uint) ([]model.Task, error)
	Save(task *model.Task) error
	CountByRunAndStatus(runID uint, statuses ...string) (int64, error)
	SumCountsByRun(runID uint) (suggestions, questions, related int64, err error)
	CleanupStuckTasks(timeout time.Duration) (int64, error)
	CleanupStuckQueuedTasks(timeout time.Duration) (int64, error)
}

type ResultRepository interface {
	Create(result *model.Result) error
	GetByTask(taskID uint) (*model.Result, error)
	ListByRun(runID uint) ([]model.Result, error)
	ListByKeyword(keyword string, limit int) ([]model.Result, error)
}
