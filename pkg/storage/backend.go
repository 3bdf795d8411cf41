// Package storage 提供文件字节的存储后端：本地文件系统与 MinIO 对象存储。
// 后端在进程启动时选定一次，之后通过 Backend 接口使用。
package storage

import (
	"context"
	"fmt"

	"report-intake-go/internal/config"

	"github.com/spf13/afero"
)

// Locator 是后端不透明的存储引用：本地后端为相对路径，MinIO 为对象名。
type Locator string

// Object 描述一次上传。
type Object struct {
	ReportID string
	Name     string
	MimeType string
	Body     []byte
}

// Backend 是存储后端的能力集合。所有错误都已按 errs.Kind 归类。
type Backend interface {
	// Name 返回后端标识，写入 File.storageBackend。
	Name() string
	Upload(ctx context.Context, obj Object) (Locator, error)
	PublicURL(ctx context.Context, loc Locator) (string, error)
	// ThumbnailURL 返回缩略图地址；真正的缩略图由外部后处理生成。
	ThumbnailURL(ctx context.Context, loc Locator) (string, error)
	// Delete 删除对象，对象不存在时返回 false 且无错误。
	Delete(ctx context.Context, loc Locator) (bool, error)
}

// New 根据配置构造后端。
func New(ctx context.Context, cfg config.StorageConfig) (Backend, error) {
	switch cfg.Backend {
	case config.BackendLocal:
		return NewLocalBackend(afero.NewOsFs(), cfg.Local.Dir, cfg.Local.PublicRoute)
	case config.BackendMinIO:
		client, err := NewMinIOClient(cfg.MinIO)
		if err != nil {
			return nil, err
		}
		if err := EnsureBucket(ctx, client, cfg.MinIO.BucketName); err != nil {
			return nil, err
		}
		return NewMinIOBackend(client, cfg.MinIO), nil
	default:
		return nil, fmt.Errorf("未知的存储后端: %q", cfg.Backend)
	}
}
