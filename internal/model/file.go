// Package model 定义了领域实体以及与数据库表对应的 Go 结构体。
package model

import (
	"strings"
	"time"
)

// ProcessingStatus 是文件后处理的生命周期状态。
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

// Valid 判断状态是否属于已知枚举。
func (s ProcessingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// File 是上传文件的领域实体。
type File struct {
	ID               string           `json:"id"`
	ReportID         string           `json:"reportId"`
	OriginalName     string           `json:"originalName"`
	MimeType         string           `json:"mimeType"`
	Size             int64            `json:"size"`
	StorageLocator   string           `json:"storageLocator"`
	StorageBackend   string           `json:"storageBackend"`
	PublicURL        string           `json:"publicUrl"`
	ThumbnailURL     string           `json:"thumbnailUrl"`
	UploadedAt       time.Time        `json:"uploadedAt"`
	UploadedByIP     *string          `json:"uploadedByIp,omitempty"`
	ProcessingStatus ProcessingStatus `json:"processingStatus"`
}

// IsImage 判断文件是否为图片类型。
func (f File) IsImage() bool {
	return strings.HasPrefix(f.MimeType, "image/")
}

// FileRecord 定义了 report_files 表的 ORM 模型。
type FileRecord struct {
	ID               string    `gorm:"type:varchar(16);primaryKey"`
	ReportID         string    `gorm:"type:varchar(16);not null;index"`
	OriginalName     string    `gorm:"type:varchar(255);not null"`
	MimeType         string    `gorm:"type:varchar(127);not null"`
	Size             int64     `gorm:"not null"`
	StorageLocator   string    `gorm:"type:varchar(512);not null"`
	StorageBackend   string    `gorm:"type:varchar(16);not null"`
	PublicURL        string    `gorm:"type:text"`
	ThumbnailURL     string    `gorm:"type:text"`
	UploadedAt       time.Time `gorm:"not null"`
	UploadedByIP     *string   `gorm:"type:varchar(64)"`
	ProcessingStatus string    `gorm:"type:varchar(16);not null;default:pending"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (FileRecord) TableName() string {
	return "report_files"
}

// ToRecord 将实体转换为行结构，所有字段无损映射。
func (f File) ToRecord() FileRecord {
	var ip *string
	if f.UploadedByIP != nil {
		v := *f.UploadedByIP
		ip = &v
	}
	return FileRecord{
		ID:               f.ID,
		ReportID:         f.ReportID,
		OriginalName:     f.OriginalName,
		MimeType:         f.MimeType,
		Size:             f.Size,
		StorageLocator:   f.StorageLocator,
		StorageBackend:   f.StorageBackend,
		PublicURL:        f.PublicURL,
		ThumbnailURL:     f.ThumbnailURL,
		UploadedAt:       f.UploadedAt,
		UploadedByIP:     ip,
		ProcessingStatus: string(f.ProcessingStatus),
	}
}

// ToFile 将行结构还原为实体。
func (r FileRecord) ToFile() File {
	var ip *string
	if r.UploadedByIP != nil {
		v := *r.UploadedByIP
		ip = &v
	}
	return File{
		ID:               r.ID,
		ReportID:         r.ReportID,
		OriginalName:     r.OriginalName,
		MimeType:         r.MimeType,
		Size:             r.Size,
		StorageLocator:   r.StorageLocator,
		StorageBackend:   r.StorageBackend,
		PublicURL:        r.PublicURL,
		ThumbnailURL:     r.ThumbnailURL,
		UploadedAt:       r.UploadedAt,
		UploadedByIP:     ip,
		ProcessingStatus: ProcessingStatus(r.ProcessingStatus),
	}
}
