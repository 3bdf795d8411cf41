package repository

import (
	"context"
	"errors"

	"report-intake-go/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReportRepository 维护报告的 uploadedFiles 投影。
type ReportRepository interface {
	// MergeUploadedFiles 将 ids 并入投影，已有项保留，重复项忽略。
	MergeUploadedFiles(ctx context.Context, reportID string, ids []string) ([]string, error)
	RemoveUploadedFile(ctx context.Context, reportID, id string) error
	UploadedFiles(ctx context.Context, reportID string) ([]string, error)
}

type reportRepository struct {
	db *gorm.DB
}

// NewReportRepository 创建一个新的 ReportRepository 实例。
func NewReportRepository(db *gorm.DB) ReportRepository {
	return &reportRepository{db: db}
}

func (r *reportRepository) MergeUploadedFiles(ctx context.Context, reportID string, ids []string) ([]string, error) {
	var merged []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := lockProjection(tx, reportID)
		if err != nil {
			return err
		}
		row.UploadedFiles = model.MergeFileIDs(row.UploadedFiles, ids)
		merged = row.UploadedFiles
		return tx.Save(row).Error
	})
	if err != nil {
		return nil, classifyDBError("merge uploaded files", err)
	}
	return merged, nil
}

func (r *reportRepository) RemoveUploadedFile(ctx context.Context, reportID, id string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := lockProjection(tx, reportID)
		if err != nil {
			return err
		}
		row.UploadedFiles = model.RemoveFileID(row.UploadedFiles, id)
		return tx.Save(row).Error
	})
	if err != nil {
		return classifyDBError("remove uploaded file", err)
	}
	return nil
}

func (r *reportRepository) UploadedFiles(ctx context.Context, reportID string) ([]string, error) {
	var row model.ReportFiles
	err := r.db.WithContext(ctx).Where("report_id = ?", reportID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, classifyDBError("get uploaded files", err)
	}
	return row.UploadedFiles, nil
}

// lockProjection 在事务内以 FOR UPDATE 读取投影行，不存在时返回空行。
func lockProjection(tx *gorm.DB, reportID string) (*model.ReportFiles, error) {
	var row model.ReportFiles
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("report_id = ?", reportID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &model.ReportFiles{ReportID: reportID, UploadedFiles: []string{}}, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
