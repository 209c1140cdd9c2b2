package repository

import (
	"errors"

	"github.com/serpwatch/serpwatch/internal/model"
	"gorm.io/gorm"
)

type resultRepository struct {
	db *gorm.DB
}

func NewResultRepository(db *gorm.DB) ResultRepository {
	return &resultRepository{db: db}
}

func (r *resultRepository) Create(result *model.Result) error {
	return r.db.Create(result).Error
}

func (r *resultRepository) GetByTask(taskID uint) (*model.Result, error) {
	var result model.Result
	err := r.db.Where("task_id = ?", taskID).Order("id DESC").First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (r *resultRepository) ListByRun(runID uint) ([]model.Result, error) {
	var results []model.Result
	err := r.db.Where("run_id = ?", runID).Order("id").Find(&results).Error
	return results, err
}

func (r *resultRepository) ListByKeyword(keyword string, limit int) ([]model.Result, error) {
	var results []model.Result
	query := r.db.Where("keyword = ?", keyword).Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&results).Error
	return results, err
}
