// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"context"
	"errors"

	"report-intake-go/internal/model"
	"report-intake-go/pkg/errs"

	"gorm.io/gorm"
)

// FileRepository 是文件记录的持久化接口。
type FileRepository interface {
	Get(ctx context.Context, id string) (*model.File, error)
	ListByReport(ctx context.Context, reportID string) ([]model.File, error)
	CountByReport(ctx context.Context, reportID string) (int, error)
	Put(ctx context.Context, file model.File) error
	Delete(ctx context.Context, id string) error
}

type fileRepository struct {
	db *gorm.DB
}

// NewFileRepository 创建一个新的 FileRepository 实例。
func NewFileRepository(db *gorm.DB) FileRepository {
	return &fileRepository{db: db}
}

// Get 根据 ID 查询文件，不存在时返回 NotFound。
func (r *fileRepository) Get(ctx context.Context, id string) (*model.File, error) {
	var record model.FileRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.Newf(errs.NotFound, "file %s not found", id).WithDetail("id", id)
		}
		return nil, classifyDBError("get file", err)
	}
	f := record.ToFile()
	return &f, nil
}

// ListByReport 按上传时间升序返回报告下的全部文件。
func (r *fileRepository) ListByReport(ctx context.Context, reportID string) ([]model.File, error) {
	var records []model.FileRecord
	err := r.db.WithContext(ctx).Where("report_id = ?", reportID).Order("uploaded_at ASC, id ASC").Find(&records).Error
	if err != nil {
		return nil, classifyDBError("list files", err)
	}
	files := make([]model.File, 0, len(records))
	for _, rec := range records {
		files = append(files, rec.ToFile())
	}
	return files, nil
}

// CountByReport 返回报告当前的文件数。
func (r *fileRepository) CountByReport(ctx context.Context, reportID string) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.FileRecord{}).Where("report_id = ?", reportID).Count(&count).Error
	if err != nil {
		return 0, classifyDBError("count files", err)
	}
	return int(count), nil
}

// Put 插入或整体覆盖一条文件记录。
func (r *fileRepository) Put(ctx context.Context, file model.File) error {
	record := file.ToRecord()
	if err := r.db.WithContext(ctx).Save(&record).Error; err != nil {
		return classifyDBError("save file", err)
	}
	return nil
}

// Delete 删除文件记录，记录不存在时返回 NotFound。
func (r *fileRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.FileRecord{})
	if res.Error != nil {
		return classifyDBError("delete file", res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.Newf(errs.NotFound, "file %s not found", id).WithDetail("id", id)
	}
	return nil
}

// classifyDBError 在数据库错误发生处标注分类。
func classifyDBError(op string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return errs.From(err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return errs.Wrap(errs.AlreadyExists, op+": duplicated key", err)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return errs.Wrap(errs.NotFound, op+": record not found", err)
	case errors.Is(err, gorm.ErrInvalidData), errors.Is(err, gorm.ErrInvalidValue):
		return errs.Wrap(errs.DataIntegrity, op+": invalid data", err)
	}
	return errs.Wrap(errs.Unavailable, op+" failed", err)
}
