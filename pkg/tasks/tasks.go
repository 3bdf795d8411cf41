// Package tasks 定义了通过 Kafka 传递的消息结构。
package tasks

import "time"

// FileUploadedTask 在文件记录持久化后投递，供外部后处理器（缩略图、扫描等）消费。
type FileUploadedTask struct {
	FileID         string    `json:"file_id"`
	ReportID       string    `json:"report_id"`
	MimeType       string    `json:"mime_type"`
	StorageBackend string    `json:"storage_backend"`
	StorageLocator string    `json:"storage_locator"`
	PublicURL      string    `json:"public_url"`
	UploadedAt     time.Time `json:"uploaded_at"`
}

// FileStatusEvent 是外部后处理器回传的状态变更。
type FileStatusEvent struct {
	FileID string `json:"file_id"`
	Status string `json:"status"`
	// Reason 仅用于日志，状态为 failed 时通常非空。
	Reason string `json:"reason,omitempty"`
}
