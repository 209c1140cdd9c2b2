package repository

import (
	"fmt"
	"time"

	"github.com/serpwatch/serpwatch/internal/model"
	"gorm.io/gorm"
)

type taskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) TaskRepository {
	return &taskRepository{db: db}
}

func (r *taskRepository) Create(task *model.Task) error {
	return r.db.Create(task).Error
}

func (r *taskRepository) Get(id uint) (*model.Task, error) {
	var task model.Task
	err := r.db.First(&task, id).Error
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *taskRepository) GetByRun(runID uint) ([]model.Task, error) {
	var tasks []model.Task
	err := r.db.Where("run_id = ?", runID).Order("id").Find(&tasks).Error
	return tasks, err
}

func (r *taskRepository) Save(task *model.Task) error {
	return r.db.Save(task).Error
}

func (r *taskRepository) CountByRunAndStatus(runID uint, statuses ...string) (int64, error) {
	var count int64
	err := r.db.Model(&model.Task{}).
		Where("run_id = ? AND status IN ?", runID, statuses).
		Count(&count).Error
	return count, err
}

// SumCountsByRun aggregates the per-source harvest counters of a run.
func (r *taskRepository) SumCountsByRun(runID uint) (int64, int64, int64, error) {
	type sums struct {
		Suggestions int64
		Questions   int64
		Related     int64
	}
	var s sums
	err := r.db.Model(&model.Task{}).
		Select("COALESCE(SUM(suggestion_count),0) as suggestions, COALESCE(SUM(question_count),0) as questions, COALESCE(SUM(related_count),0) as related").
		Where("run_id = ?", runID).
		Scan(&s).Error
	return s.Suggestions, s.Questions, s.Related, err
}

// CleanupStuckTasks marks running tasks older than the timeout as failed.
func (r *taskRepository) CleanupStuckTasks(timeout time.Duration) (int64, error) {
	cutoff := time.Now().Add(-timeout)
	result := r.db.Model(&model.Task{}).
		Where("status = ? AND started_at < ?", "running", cutoff).
		Updates(map[string]interface{}{
			"status":    "failed",
			"error_msg": fmt.Sprintf("task timed out after %v, marked as failed", timeout),
		})
	return result.RowsAffected, result.Error
}

// CleanupStuckQueuedTasks marks queued tasks that never started within the
// timeout as failed.
func (r *taskRepository) CleanupStuckQueuedTasks(timeout time.Duration) (int64, error) {
	cutoff := time.Now().Add(-timeout)
	result := r.db.Model(&model.Task{}).
		Where("status = ? AND updated_at < ?", "queued", cutoff).
		Updates(map[string]interface{}{
			"status":    "failed",
			"error_msg": fmt.Sprintf("task stayed queued longer than %v, marked as failed", timeout),
		})
	return result.RowsAffected, result.Error
}
