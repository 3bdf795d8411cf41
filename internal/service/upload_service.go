// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"fmt"
	"time"

	"report-intake-go/internal/lifecycle"
	"report-intake-go/internal/metrics"
	"report-intake-go/internal/model"
	"report-intake-go/internal/repository"
	"report-intake-go/internal/validation"
	"report-intake-go/pkg/errs"
	"report-intake-go/pkg/idgen"
	"report-intake-go/pkg/lock"
	"report-intake-go/pkg/log"
	"report-intake-go/pkg/result"
	"report-intake-go/pkg/storage"
	"report-intake-go/pkg/tasks"
)

const (
	maxIDAttempts = 5

	reasonUnreadable = "unreadable"
)

// FileInput 是批次中的一个待上传文件。
// ReadErr 非空表示读取内容失败，该文件直接记为失败，不影响批次中的其他文件。
type FileInput struct {
	Name     string
	MimeType string
	Body     []byte
	ReadErr  error
}

// Publisher 投递"文件已上传"任务，可以为 nil。
type Publisher interface {
	PublishFileUploaded(ctx context.Context, task tasks.FileUploadedTask) error
}

// SupportedTypesInfo 描述上传限制。
type SupportedTypesInfo struct {
	Types             map[validation.Category][]string `json:"types"`
	MaxFileSize       int64                            `json:"maxFileSize"`
	MaxFilesPerReport int                              `json:"maxFilesPerReport"`
}

// UploadService 接口定义了报告附件的上传与管理操作。
type UploadService interface {
	UploadBatch(ctx context.Context, files []FileInput, reportID, uploaderIP string) result.Result[BatchResult]
	GetFile(ctx context.Context, id string) result.Result[model.File]
	ListFilesForReport(ctx context.Context, reportID string) result.Result[[]model.File]
	SetFileStatus(ctx context.Context, id string, status model.ProcessingStatus) result.Result[model.File]
	DeleteFile(ctx context.Context, id string) result.Result[bool]
	SupportedTypes() SupportedTypesInfo
}

type uploadService struct {
	files     repository.FileRepository
	reports   repository.ReportRepository
	backend   storage.Backend
	gate      validation.Gate
	machine   lifecycle.Machine
	locker    lock.Locker
	publisher Publisher
	now       func() time.Time
}

// NewUploadService 创建一个新的 UploadService 实例。所有依赖在进程启动时构造一次。
func NewUploadService(
	files repository.FileRepository,
	reports repository.ReportRepository,
	backend storage.Backend,
	gate validation.Gate,
	machine lifecycle.Machine,
	locker lock.Locker,
	publisher Publisher,
) UploadService {
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	return &uploadService{
		files:     files,
		reports:   reports,
		backend:   backend,
		gate:      gate,
		machine:   machine,
		locker:    locker,
		publisher: publisher,
		now:       time.Now,
	}
}

// UploadBatch 按输入顺序处理批次中的文件，单个文件失败不会中止批次。
// 持有报告锁期间完成"检查配额-上传-复查-持久化"，并发批次不会共同突破配额。
func (s *uploadService) UploadBatch(ctx context.Context, files []FileInput, reportID, uploaderIP string) result.Result[BatchResult] {
	return result.Attempt(func() (BatchResult, error) {
		return s.uploadBatch(ctx, files, reportID, uploaderIP)
	})
}

func (s *uploadService) uploadBatch(ctx context.Context, files []FileInput, reportID, uploaderIP string) (BatchResult, error) {
	batch := newBatchResult(len(files))
	if len(files) == 0 {
		return batch, nil
	}
	log.Infof("[UploadBatch] 开始处理批次, reportId: %s, 文件数: %d, ip: %s", reportID, len(files), uploaderIP)

	unlock, err := s.locker.Lock(ctx, "report:"+reportID)
	if err != nil {
		log.Errorf("[UploadBatch] 获取报告锁失败, reportId: %s, error: %v", reportID, err)
		return BatchResult{}, err
	}
	defer unlock()

	existing, err := s.files.CountByReport(ctx, reportID)
	if err != nil {
		log.Errorf("[UploadBatch] 查询报告文件数失败, reportId: %s, error: %v", reportID, err)
		return BatchResult{}, err
	}

	var ip *string
	if uploaderIP != "" {
		ip = &uploaderIP
	}

	for i, in := range files {
		if err := ctx.Err(); err != nil {
			// 已持久化的文件保留，剩余文件记为失败
			for _, rest := range files[i:] {
				batch.fail(rest.Name, errs.From(err))
			}
			log.Warnf("[UploadBatch] 请求已取消, reportId: %s, 已上传: %d, 未处理: %d", reportID, len(batch.Uploaded), len(files)-i)
			break
		}

		file, ferr := s.uploadOne(ctx, in, reportID, ip, existing+len(batch.Uploaded))
		if ferr != nil {
			log.Warnw("[UploadBatch] 文件上传失败", "reportId", reportID, "name", in.Name, "kind", ferr.Kind, "reason", reasonOf(ferr))
			batch.fail(in.Name, ferr)
			continue
		}
		metrics.FilesUploadedTotal.WithLabelValues(file.StorageBackend).Inc()
		metrics.UploadBytes.Observe(float64(file.Size))
		batch.Uploaded = append(batch.Uploaded, *file)
	}
	batch.TotalUploaded = len(batch.Uploaded)
	metrics.BatchesTotal.WithLabelValues(string(batch.Outcome())).Inc()

	if len(batch.Uploaded) > 0 {
		// 请求取消后仍需更新投影并投递任务，已持久化的文件不回滚
		detached := context.WithoutCancel(ctx)
		s.mergeProjection(detached, reportID, batch.Uploaded)
		s.publish(detached, batch.Uploaded)
	}

	log.Infof("[UploadBatch] 批次处理完成, reportId: %s, 请求: %d, 成功: %d, 失败: %d", reportID, batch.TotalRequested, batch.TotalUploaded, len(batch.Failed))
	return batch, nil
}

// uploadOne 处理单个文件。countSoFar 为已持久化数量加本批次已接受数量。
func (s *uploadService) uploadOne(ctx context.Context, in FileInput, reportID string, ip *string, countSoFar int) (*model.File, *errs.Error) {
	if in.ReadErr != nil {
		return nil, errs.Wrap(errs.Validation, "file content could not be read", in.ReadErr).
			WithDetail("reason", reasonUnreadable)
	}
	mimeType := validation.ResolveMimeType(in.MimeType, in.Body)
	verdict := s.gate.Validate(validation.Candidate{
		Name:     in.Name,
		Size:     int64(len(in.Body)),
		MimeType: mimeType,
		ReportID: reportID,
	}, countSoFar)
	if !verdict.Accepted {
		return nil, verdict.Err
	}

	loc, err := s.backend.Upload(ctx, storage.Object{ReportID: reportID, Name: in.Name, MimeType: mimeType, Body: in.Body})
	if err != nil {
		return nil, errs.From(err)
	}

	file, ferr := s.persist(ctx, in, reportID, ip, mimeType, loc)
	if ferr != nil {
		s.discard(loc)
		return nil, ferr
	}
	return file, nil
}

// persist 生成实体并写入记录存储。写入前复查配额，防止锁失效或其他写入方越过配额。
func (s *uploadService) persist(ctx context.Context, in FileInput, reportID string, ip *string, mimeType string, loc storage.Locator) (*model.File, *errs.Error) {
	count, err := s.files.CountByReport(ctx, reportID)
	if err != nil {
		return nil, errs.From(err)
	}
	if count >= s.gate.MaxFiles() {
		return nil, errs.Newf(errs.Validation, "quota exceeded: report already has %d of %d files", count, s.gate.MaxFiles()).
			WithDetail("reason", string(validation.ReasonQuotaExceeded))
	}

	id, err := s.newFileID(ctx)
	if err != nil {
		return nil, errs.From(err)
	}
	publicURL, err := s.backend.PublicURL(ctx, loc)
	if err != nil {
		return nil, errs.From(err)
	}
	file := model.File{
		ID:               id,
		ReportID:         reportID,
		OriginalName:     in.Name,
		MimeType:         mimeType,
		Size:             int64(len(in.Body)),
		StorageLocator:   string(loc),
		StorageBackend:   s.backend.Name(),
		PublicURL:        publicURL,
		UploadedAt:       s.now().UTC(),
		UploadedByIP:     ip,
		ProcessingStatus: model.StatusPending,
	}
	if file.IsImage() {
		thumb, err := s.backend.ThumbnailURL(ctx, loc)
		if err != nil {
			return nil, errs.From(err)
		}
		file.ThumbnailURL = thumb
	}

	if err := s.files.Put(ctx, file); err != nil {
		log.Errorf("[UploadBatch] 保存文件记录失败, id: %s, error: %v", id, err)
		return nil, errs.From(err)
	}
	return &file, nil
}

// newFileID 生成未被占用的文件 ID。
func (s *uploadService) newFileID(ctx context.Context) (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id, err := idgen.NewFileID()
		if err != nil {
			return "", errs.Wrap(errs.SystemFailure, "generate file id", err)
		}
		_, err = s.files.Get(ctx, id)
		if errs.IsKind(err, errs.NotFound) {
			return id, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", errs.Newf(errs.AlreadyExists, "could not allocate a unique file id after %d attempts", maxIDAttempts)
}

// discard 尽力删除已上传但未能持久化的对象，失败只记录日志。
func (s *uploadService) discard(loc storage.Locator) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := s.backend.Delete(ctx, loc); err != nil {
		log.Warnf("[UploadBatch] 清理孤立对象失败, locator: %s, error: %v", loc, err)
	}
}

func (s *uploadService) mergeProjection(ctx context.Context, reportID string, uploaded []model.File) {
	ids := make([]string, 0, len(uploaded))
	for _, f := range uploaded {
		ids = append(ids, f.ID)
	}
	if _, err := s.reports.MergeUploadedFiles(ctx, reportID, ids); err != nil {
		log.Errorf("[UploadBatch] 更新报告文件列表失败, reportId: %s, error: %v", reportID, err)
	}
}

func (s *uploadService) publish(ctx context.Context, uploaded []model.File) {
	if s.publisher == nil {
		return
	}
	for _, f := range uploaded {
		task := tasks.FileUploadedTask{
			FileID:         f.ID,
			ReportID:       f.ReportID,
			MimeType:       f.MimeType,
			StorageBackend: f.StorageBackend,
			StorageLocator: f.StorageLocator,
			PublicURL:      f.PublicURL,
			UploadedAt:     f.UploadedAt,
		}
		if err := s.publisher.PublishFileUploaded(ctx, task); err != nil {
			log.Errorf("[UploadBatch] 投递上传任务失败, fileId: %s, error: %v", f.ID, err)
		}
	}
}

// GetFile 根据 ID 查询文件。
func (s *uploadService) GetFile(ctx context.Context, id string) result.Result[model.File] {
	return result.Attempt(func() (model.File, error) {
		if !idgen.IsFileID(id) {
			return model.File{}, errs.Newf(errs.NotFound, "file %s not found", id).WithDetail("id", id)
		}
		f, err := s.files.Get(ctx, id)
		if err != nil {
			return model.File{}, err
		}
		return *f, nil
	})
}

// ListFilesForReport 返回报告下的全部文件。
func (s *uploadService) ListFilesForReport(ctx context.Context, reportID string) result.Result[[]model.File] {
	return result.Attempt(func() ([]model.File, error) {
		if !idgen.IsReportID(reportID) {
			return nil, errs.Newf(errs.Validation, "invalid report id %q", reportID).
				WithDetail("reason", string(validation.ReasonInvalidReportID))
		}
		return s.files.ListByReport(ctx, reportID)
	})
}

// SetFileStatus 修改文件的处理状态，同一文件的修改互斥执行。
func (s *uploadService) SetFileStatus(ctx context.Context, id string, status model.ProcessingStatus) result.Result[model.File] {
	return result.Attempt(func() (model.File, error) {
		unlock, err := s.locker.Lock(ctx, "file:"+id)
		if err != nil {
			return model.File{}, err
		}
		defer unlock()

		f, err := s.files.Get(ctx, id)
		if err != nil {
			return model.File{}, err
		}
		if err := s.machine.Transition(f.ProcessingStatus, status); err != nil {
			log.Warnf("[SetFileStatus] 状态迁移被拒绝, id: %s, %s -> %s", id, f.ProcessingStatus, status)
			return model.File{}, err
		}
		if f.ProcessingStatus == status {
			return *f, nil
		}

		from := f.ProcessingStatus
		f.ProcessingStatus = status
		if err := s.files.Put(ctx, *f); err != nil {
			return model.File{}, err
		}
		metrics.StatusTransitionsTotal.WithLabelValues(string(from), string(status)).Inc()
		log.Infof("[SetFileStatus] 文件状态已更新, id: %s, %s -> %s", id, from, status)
		return *f, nil
	})
}

// DeleteFile 删除文件记录与存储对象。文件不存在时返回 false。
// 存储对象的删除是尽力而为的：失败时记录日志，记录仍被删除。
func (s *uploadService) DeleteFile(ctx context.Context, id string) result.Result[bool] {
	return result.Attempt(func() (bool, error) {
		f, err := s.files.Get(ctx, id)
		if errs.IsKind(err, errs.NotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}

		removed, err := s.backend.Delete(ctx, storage.Locator(f.StorageLocator))
		switch {
		case err != nil:
			log.Warnf("[DeleteFile] 删除存储对象失败, id: %s, locator: %s, error: %v", id, f.StorageLocator, err)
		case !removed:
			log.Warnf("[DeleteFile] 存储对象不存在, id: %s, locator: %s", id, f.StorageLocator)
		}

		if err := s.files.Delete(ctx, id); err != nil {
			if errs.IsKind(err, errs.NotFound) {
				return false, nil
			}
			return false, err
		}
		if err := s.reports.RemoveUploadedFile(ctx, f.ReportID, id); err != nil {
			log.Errorf("[DeleteFile] 更新报告文件列表失败, reportId: %s, error: %v", f.ReportID, err)
		}
		log.Infof("[DeleteFile] 文件已删除, id: %s, reportId: %s", id, f.ReportID)
		return true, nil
	})
}

// SupportedTypes 返回受支持的类型与上传限制。
func (s *uploadService) SupportedTypes() SupportedTypesInfo {
	return SupportedTypesInfo{
		Types:             validation.SupportedTypes(),
		MaxFileSize:       s.gate.MaxFileSize(),
		MaxFilesPerReport: s.gate.MaxFiles(),
	}
}

func reasonOf(e *errs.Error) string {
	if r, ok := e.Details["reason"].(string); ok && r != "" {
		return r
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}
