package database

import (
	"gorm.io/gorm"

	"vcompressor/app/model"
)

// AutoMigrate 自动迁移表结构
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.User{},
		&model.CompressJob{},
	)
}
