package handler

import (
	"io"
	"mime/multipart"
	"net/http"

	"report-intake-go/internal/model"
	"report-intake-go/internal/service"
	"report-intake-go/pkg/errs"
	"report-intake-go/pkg/log"
	"report-intake-go/pkg/result"

	"github.com/gin-gonic/gin"
)

// FormField 是批量上传使用的 multipart 字段名。
const FormField = "files"

// FileHandler 负责处理报告附件相关的 API 请求。
type FileHandler struct {
	uploadService service.UploadService
}

// NewFileHandler 创建一个新的 FileHandler 实例。
func NewFileHandler(uploadService service.UploadService) *FileHandler {
	return &FileHandler{uploadService: uploadService}
}

// UploadBatch 处理 POST /reports/:reportId/files。
// 全部成功返回 201，部分成功返回 207，全部失败返回 422，两者都携带完整的批次结果。
func (h *FileHandler) UploadBatch(c *gin.Context) {
	reportID := c.Param("reportId")

	form, err := c.MultipartForm()
	if err != nil {
		fail(c, errs.Wrap(errs.Validation, "请求必须是 multipart/form-data", err))
		return
	}
	headers := form.File[FormField]
	if len(headers) == 0 {
		fail(c, errs.Newf(errs.Validation, "缺少文件字段 %q", FormField))
		return
	}

	inputs := readParts(headers, h.uploadService.SupportedTypes().MaxFileSize)
	res := h.uploadService.UploadBatch(c.Request.Context(), inputs, reportID, c.ClientIP())
	if !res.Success {
		respond(c, http.StatusOK, res)
		return
	}
	switch res.Value().Outcome() {
	case service.OutcomeComplete:
		respond(c, http.StatusCreated, res)
	case service.OutcomePartial:
		respond(c, http.StatusMultiStatus, res)
	default:
		respond(c, http.StatusUnprocessableEntity, res)
	}
}

// readParts 按顺序读取全部文件部分。读取失败的部分带着 ReadErr 进入批次，由服务记为失败。
func readParts(headers []*multipart.FileHeader, maxSize int64) []service.FileInput {
	inputs := make([]service.FileInput, 0, len(headers))
	for _, fh := range headers {
		in, err := readPart(fh, maxSize)
		if err != nil {
			log.Errorf("[UploadBatch] 读取上传文件失败, name: %s, error: %v", fh.Filename, err)
			in = service.FileInput{Name: fh.Filename, ReadErr: err}
		}
		inputs = append(inputs, in)
	}
	return inputs
}

// readPart 最多读取 maxSize+1 字节，超出部分交给校验闸门判定为过大。
func readPart(fh *multipart.FileHeader, maxSize int64) (service.FileInput, error) {
	f, err := fh.Open()
	if err != nil {
		return service.FileInput{}, err
	}
	defer f.Close()

	body, err := io.ReadAll(io.LimitReader(f, maxSize+1))
	if err != nil {
		return service.FileInput{}, err
	}
	return service.FileInput{
		Name:     fh.Filename,
		MimeType: fh.Header.Get("Content-Type"),
		Body:     body,
	}, nil
}

// ListReportFiles 处理 GET /reports/:reportId/files。
func (h *FileHandler) ListReportFiles(c *gin.Context) {
	respond(c, http.StatusOK, h.uploadService.ListFilesForReport(c.Request.Context(), c.Param("reportId")))
}

// GetFile 处理 GET /files/:id。
func (h *FileHandler) GetFile(c *gin.Context) {
	respond(c, http.StatusOK, h.uploadService.GetFile(c.Request.Context(), c.Param("id")))
}

// SetStatusRequest 定义了状态修改 API 的请求体结构。
type SetStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// SetStatus 处理 PUT /files/:id/status。
func (h *FileHandler) SetStatus(c *gin.Context) {
	var req SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.Wrap(errs.Validation, "无效的请求负载", err))
		return
	}
	res := h.uploadService.SetFileStatus(c.Request.Context(), c.Param("id"), model.ProcessingStatus(req.Status))
	respond(c, http.StatusOK, res)
}

// DeleteFile 处理 DELETE /files/:id。
func (h *FileHandler) DeleteFile(c *gin.Context) {
	id := c.Param("id")
	res := h.uploadService.DeleteFile(c.Request.Context(), id)
	if res.Success && !res.Value() {
		fail(c, errs.Newf(errs.NotFound, "file %s not found", id).WithDetail("id", id))
		return
	}
	respond(c, http.StatusOK, res)
}

// SupportedTypes 处理 GET /files/supported-types。
func (h *FileHandler) SupportedTypes(c *gin.Context) {
	respond(c, http.StatusOK, result.Ok(h.uploadService.SupportedTypes()))
}
