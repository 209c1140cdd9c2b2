package repository

import (
	"errors"

	"github.com/serpwatch/serpwatch/internal/model"
	"gorm.io/gorm"
)

type runRepository struct {
	db *gorm.DB
}

func NewRunRepository(db *gorm.DB) RunRepository {
	return &runRepository{db: db}
}

func (r *runRepository) Create(run *model.Run) error {
	return r.db.Create(run).Error
}

func (r *runRepository) Get(id uint) (*model.Run, error) {
	var run model.Run
	err := r.db.First(&run, id).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *runRepository) GetByUUID(uuid string) (*model.Run, error) {
	var run model.Run
	err := r.db.Where("uuid = ?", uuid).First(&run).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// GetActive returns the run currently in flight, if any. Returns nil without
// error when every run is terminal.
func (r *runRepository) GetActive() (*model.Run, error) {
	var run model.Run
	err := r.db.Where("status IN ?", []string{"pending", "running", "cleaning", "publishing"}).
		Order("id DESC").
		First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}

func (r *runRepository) List(limit int) ([]model.Run, error) {
	var runs []model.Run
	query := r.db.Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&runs).Error
	return runs, err
}

func (r *runRepository) Save(run *model.Run) error {
	return r.db.Save(run).Error
}
