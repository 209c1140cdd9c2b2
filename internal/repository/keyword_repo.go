package repository

import (
	"github.com/serpwatch/serpwatch/internal/model"
	"gorm.io/gorm"
)

type keywordRepository struct {
	db *gorm.DB
}

func NewKeywordRepository(db *gorm.DB) KeywordRepository {
	return &keywordRepository{db: db}
}

func (r *keywordRepository) Create(keyword *model.Keyword) error {
	return r.db.Create(keyword).Error
}

func (r *keywordRepository) Get(id uint) (*model.Keyword, error) {
	var keyword model.Keyword
	err := r.db.First(&keyword, id).Error
	if err != nil {
		return nil, err
	}
	return &keyword, nil
}

func (r *keywordRepository) GetByText(text string) (*model.Keyword, error) {
	var keyword model.Keyword
	err := r.db.Where("text = ?", text).First(&keyword).Error
	if err != nil {
		return nil, err
	}
	return &keyword, nil
}

func (r *keywordRepository) List() ([]model.Keyword, error) {
	var keywords []model.Keyword
	err := r.db.Order("id").Find(&keywords).Error
	return keywords, err
}

func (r *keywordRepository) ListActive() ([]model.Keyword, error) {
	var keywords []model.Keyword
	err := r.db.Where("active = ?", true).Order("id").Find(&keywords).Error
	return keywords, err
}

func (r *keywordRepository) Save(keyword *model.Keyword) error {
	return r.db.Save(keyword).Error
}

func (r *keywordRepository) Delete(id uint) error {
	return r.db.Delete(&model.Keyword{}, id).Error
}
