package repository

import (
	"report-intake-go/internal/model"

	"gorm.io/gorm"
)

// AutoMigrate 创建或更新本服务拥有的表。
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&model.FileRecord{}, &model.ReportFiles{})
}
