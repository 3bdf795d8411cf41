// Package metrics 注册上传服务的 Prometheus 指标。
// HTTP 指标由 middleware 更新，业务指标由 service 层更新。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP 指标
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_http_requests_total",
			Help: "HTTP 请求总数",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "intake_http_request_duration_seconds",
			Help:    "HTTP 请求耗时（秒）",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// 业务指标
var (
	// FilesUploadedTotal 成功持久化的文件数。
	FilesUploadedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_files_uploaded_total",
			Help: "成功上传并持久化的文件数",
		},
		[]string{"backend"},
	)

	// FilesRejectedTotal 被拒绝或上传失败的文件数，kind 为错误分类。
	FilesRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_files_rejected_total",
			Help: "被拒绝或上传失败的文件数",
		},
		[]string{"kind"},
	)

	// BatchesTotal 按整体结论统计的批次数。
	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_batches_total",
			Help: "批量上传次数",
		},
		[]string{"outcome"},
	)

	// UploadBytes 单个已接受文件的大小分布。
	UploadBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "intake_upload_bytes",
			Help:    "已接受文件的大小（字节）",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		},
	)

	// StatusTransitionsTotal 已生效的状态变更次数。
	StatusTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_status_transitions_total",
			Help: "文件处理状态变更次数",
		},
		[]string{"from", "to"},
	)
)
