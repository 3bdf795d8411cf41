package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"report-intake-go/internal/config"
	"report-intake-go/pkg/errs"
	"report-intake-go/pkg/log"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// BackendNameMinIO 是 MinIO 后端的名称。
const BackendNameMinIO = "minio"

const defaultPresignExpiry = 7 * 24 * time.Hour

// NewMinIOClient 初始化 MinIO 客户端。
func NewMinIOClient(cfg config.MinIOConfig) (*minio.Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 MinIO 客户端失败: %w", err)
	}
	log.Info("MinIO 客户端初始化成功")
	return client, nil
}

// EnsureBucket 检查存储桶是否存在，不存在则创建。
func EnsureBucket(ctx context.Context, client *minio.Client, bucketName string) error {
	exists, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("检查 MinIO 存储桶失败: %w", err)
	}
	if exists {
		log.Infof("存储桶 '%s' 已存在", bucketName)
		return nil
	}
	log.Infof("存储桶 '%s' 不存在，正在创建...", bucketName)
	if err := client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("创建 MinIO 存储桶失败: %w", err)
	}
	log.Infof("存储桶 '%s' 创建成功", bucketName)
	return nil
}

// MinIOBackend 将文件上传到 reports/<reportId>/ 前缀下，对象名即 Locator。
type MinIOBackend struct {
	client        *minio.Client
	bucket        string
	presignExpiry time.Duration
	publicBaseURL string
}

// NewMinIOBackend 创建 MinIO 后端。PublicBaseURL 非空时生成固定地址，否则使用预签名地址。
func NewMinIOBackend(client *minio.Client, cfg config.MinIOConfig) *MinIOBackend {
	expiry := cfg.PresignExpiry
	if expiry <= 0 {
		expiry = defaultPresignExpiry
	}
	return &MinIOBackend{
		client:        client,
		bucket:        cfg.BucketName,
		presignExpiry: expiry,
		publicBaseURL: strings.TrimSuffix(cfg.PublicBaseURL, "/"),
	}
}

// Name 返回后端名称。
func (b *MinIOBackend) Name() string {
	return BackendNameMinIO
}

// Upload 上传对象并返回对象名。
func (b *MinIOBackend) Upload(ctx context.Context, obj Object) (Locator, error) {
	ext := strings.ToLower(filepath.Ext(obj.Name))
	if len(ext) > 10 {
		ext = ""
	}
	objectName := path.Join("reports", obj.ReportID, uuid.NewString()+ext)

	_, err := b.client.PutObject(ctx, b.bucket, objectName, bytes.NewReader(obj.Body), int64(len(obj.Body)), minio.PutObjectOptions{
		ContentType:  obj.MimeType,
		UserMetadata: map[string]string{"Original-Name": url.PathEscape(obj.Name)},
	})
	if err != nil {
		log.Errorf("[MinIOBackend] 上传对象失败, objectName: %s, error: %v", objectName, err)
		return "", classifyMinIOError("put object", err)
	}
	return Locator(objectName), nil
}

// PublicURL 返回对象的访问地址。
func (b *MinIOBackend) PublicURL(ctx context.Context, loc Locator) (string, error) {
	return b.link(ctx, loc, nil)
}

// ThumbnailURL 返回以 inline 方式展示的地址。
func (b *MinIOBackend) ThumbnailURL(ctx context.Context, loc Locator) (string, error) {
	params := url.Values{}
	params.Set("response-content-disposition", "inline")
	return b.link(ctx, loc, params)
}

func (b *MinIOBackend) link(ctx context.Context, loc Locator, params url.Values) (string, error) {
	if loc == "" {
		return "", errs.New(errs.Validation, "empty locator")
	}
	if b.publicBaseURL != "" {
		return fmt.Sprintf("%s/%s/%s", b.publicBaseURL, b.bucket, loc), nil
	}
	u, err := b.client.PresignedGetObject(ctx, b.bucket, string(loc), b.presignExpiry, params)
	if err != nil {
		return "", classifyMinIOError("presign object", err)
	}
	return u.String(), nil
}

// Delete 删除对象。对象不存在时返回 false。
func (b *MinIOBackend) Delete(ctx context.Context, loc Locator) (bool, error) {
	if _, err := b.client.StatObject(ctx, b.bucket, string(loc), minio.StatObjectOptions{}); err != nil {
		classified := classifyMinIOError("stat object", err)
		if errs.IsKind(classified, errs.NotFound) {
			return false, nil
		}
		return false, classified
	}
	if err := b.client.RemoveObject(ctx, b.bucket, string(loc), minio.RemoveObjectOptions{}); err != nil {
		return false, classifyMinIOError("remove object", err)
	}
	return true, nil
}

// classifyMinIOError 依据 S3 错误码、HTTP 状态码和网络错误类型进行归类。
func classifyMinIOError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.From(err)
	}

	resp := minio.ToErrorResponse(err)
	detail := func(kind errs.Kind) error {
		e := errs.Wrap(kind, op+" failed", err).WithDetail("backend", BackendNameMinIO)
		if resp.Code != "" {
			e = e.WithDetail("code", resp.Code)
		}
		return e
	}

	switch resp.Code {
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "AccountProblem", "AllAccessDisabled":
		return detail(errs.PermissionDenied)
	case "SlowDown", "SlowDownRead", "SlowDownWrite", "RequestLimitExceeded", "TooManyRequests":
		return detail(errs.RateLimited)
	case "NoSuchKey", "NoSuchBucket", "NoSuchObject":
		return detail(errs.NotFound)
	case "RequestTimeout", "RequestTimeTooSkewed":
		return detail(errs.Timeout)
	case "ServiceUnavailable", "InternalError", "XMinioServerNotInitialized":
		return detail(errs.Unavailable)
	}

	switch resp.StatusCode {
	case http.StatusForbidden, http.StatusUnauthorized:
		return detail(errs.PermissionDenied)
	case http.StatusTooManyRequests:
		return detail(errs.RateLimited)
	case http.StatusNotFound:
		return detail(errs.NotFound)
	case http.StatusGatewayTimeout:
		return detail(errs.Timeout)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return detail(errs.Unavailable)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return detail(errs.Timeout)
		}
		return detail(errs.Unavailable)
	}
	return detail(errs.SystemFailure)
}
