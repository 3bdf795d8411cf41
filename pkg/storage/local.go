package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"report-intake-go/pkg/errs"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// BackendNameLocal 是本地后端的名称。
const BackendNameLocal = "local"

// LocalBackend 将文件写入 dir/<reportId>/ 下，通过静态路由对外提供访问。
type LocalBackend struct {
	fs          afero.Fs
	dir         string
	publicRoute string
}

// NewLocalBackend 创建本地后端，目录不存在时自动创建。
func NewLocalBackend(fs afero.Fs, dir, publicRoute string) (*LocalBackend, error) {
	if err := fs.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("创建上传目录 %s 失败: %w", dir, err)
	}
	if publicRoute == "" {
		publicRoute = "/uploads"
	}
	return &LocalBackend{fs: fs, dir: dir, publicRoute: strings.TrimSuffix(publicRoute, "/")}, nil
}

// Name 返回后端名称。
func (b *LocalBackend) Name() string {
	return BackendNameLocal
}

// Dir 返回根目录，供静态文件路由使用。
func (b *LocalBackend) Dir() string {
	return b.dir
}

// PublicRoute 返回静态文件路由前缀。
func (b *LocalBackend) PublicRoute() string {
	return b.publicRoute
}

// Upload 先写临时文件再原子 rename，失败时清理临时文件。
func (b *LocalBackend) Upload(ctx context.Context, obj Object) (Locator, error) {
	if err := ctx.Err(); err != nil {
		return "", errs.From(err)
	}
	if obj.ReportID == "" || strings.ContainsAny(obj.ReportID, `/\.`) {
		return "", errs.Newf(errs.Validation, "invalid report id %q for local storage", obj.ReportID)
	}

	reportDir := filepath.Join(b.dir, obj.ReportID)
	if err := b.fs.MkdirAll(reportDir, 0o750); err != nil {
		return "", classifyFSError("create report directory", err)
	}

	name := storageName(obj.Name)
	rel := path.Join(obj.ReportID, name)
	fullPath := filepath.Join(reportDir, name)
	tmpPath := fullPath + ".tmp"

	if err := afero.WriteFile(b.fs, tmpPath, obj.Body, 0o640); err != nil {
		_ = b.fs.Remove(tmpPath)
		return "", classifyFSError("write file", err)
	}
	if err := b.fs.Rename(tmpPath, fullPath); err != nil {
		_ = b.fs.Remove(tmpPath)
		return "", classifyFSError("rename file", err)
	}
	return Locator(rel), nil
}

// PublicURL 返回静态路由前缀加相对路径。
func (b *LocalBackend) PublicURL(_ context.Context, loc Locator) (string, error) {
	if err := checkLocator(loc); err != nil {
		return "", err
	}
	return b.publicRoute + "/" + string(loc), nil
}

// ThumbnailURL 本地后端没有缩略图，返回原文件地址。
func (b *LocalBackend) ThumbnailURL(ctx context.Context, loc Locator) (string, error) {
	return b.PublicURL(ctx, loc)
}

// Delete 删除文件，文件不存在时返回 false。
func (b *LocalBackend) Delete(_ context.Context, loc Locator) (bool, error) {
	if err := checkLocator(loc); err != nil {
		return false, err
	}
	err := b.fs.Remove(filepath.Join(b.dir, filepath.FromSlash(string(loc))))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, classifyFSError("delete file", err)
	}
	return true, nil
}

// checkLocator 拒绝绝对路径与目录穿越。
func checkLocator(loc Locator) error {
	s := string(loc)
	if s == "" || path.IsAbs(s) || strings.Contains(s, "..") || strings.Contains(s, `\`) {
		return errs.Newf(errs.Validation, "invalid locator %q", s)
	}
	return nil
}

func classifyFSError(op string, err error) error {
	switch {
	case os.IsPermission(err):
		return errs.Wrap(errs.PermissionDenied, op+": permission denied", err)
	case errors.Is(err, syscall.ENOSPC):
		return errs.Wrap(errs.Unavailable, op+": no space left on device", err)
	case os.IsNotExist(err):
		return errs.Wrap(errs.NotFound, op+": path does not exist", err)
	}
	return errs.Wrap(errs.SystemFailure, op+" failed", err)
}

// storageName 生成存储文件名：{name}_{timestamp}_{uuid8}{ext}
func storageName(original string) string {
	ext := strings.ToLower(filepath.Ext(original))
	if len(ext) > 10 || strings.ContainsAny(ext, `/\ `) {
		ext = ""
	}
	name := sanitize(strings.TrimSuffix(filepath.Base(original), filepath.Ext(original)))
	if len(name) > 50 {
		name = name[:50]
	}
	ts := time.Now().UTC().Format("20060102150405")
	return fmt.Sprintf("%s_%s_%s%s", name, ts, uuid.NewString()[:8], ext)
}

// sanitize 只保留 ASCII 字母数字、连字符和下划线。
func sanitize(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			sb.WriteRune(r)
		}
	}
	if sb.Len() == 0 {
		return "file"
	}
	return sb.String()
}
