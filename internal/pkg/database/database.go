package database

import (
	"github.com/glebarez/sqlite"
	"github.com/serpwatch/serpwatch/internal/model"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func InitDB(dbType, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch dbType {
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		// pure-Go sqlite driver, no cgo
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&model.Keyword{}, &model.Run{}, &model.Task{}, &model.Result{}); err != nil {
		return nil, err
	}
	return db, nil
}
