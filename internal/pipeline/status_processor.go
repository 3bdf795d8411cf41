// Package pipeline 处理外部后处理器回传的文件状态事件。
package pipeline

import (
	"context"

	"report-intake-go/internal/model"
	"report-intake-go/internal/service"
	"report-intake-go/pkg/errs"
	"report-intake-go/pkg/log"
	"report-intake-go/pkg/tasks"
)

// StatusProcessor 将状态事件应用到文件上。
type StatusProcessor struct {
	uploads service.UploadService
}

// NewStatusProcessor 创建状态事件处理器。
func NewStatusProcessor(uploads service.UploadService) *StatusProcessor {
	return &StatusProcessor{uploads: uploads}
}

// Process 应用一条状态事件。
// 文件不存在或迁移不合法的事件重试也不会成功，记录日志后返回 nil 以便提交 offset。
func (p *StatusProcessor) Process(ctx context.Context, event tasks.FileStatusEvent) error {
	log.Infof("[StatusProcessor] 收到状态事件, fileId: %s, status: %s, reason: %s", event.FileID, event.Status, event.Reason)

	res := p.uploads.SetFileStatus(ctx, event.FileID, model.ProcessingStatus(event.Status))
	if res.Success {
		return nil
	}
	switch res.Kind() {
	case errs.NotFound, errs.Validation:
		log.Warnf("[StatusProcessor] 丢弃状态事件, fileId: %s, status: %s, error: %v", event.FileID, event.Status, res.Error)
		return nil
	}
	return res.Error
}
