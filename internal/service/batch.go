package service

import (
	"report-intake-go/internal/metrics"
	"report-intake-go/internal/model"
	"report-intake-go/pkg/errs"
)

// FailedFile 是批次中未能上传的文件。
type FailedFile struct {
	Name   string    `json:"name"`
	Reason string    `json:"reason"`
	Kind   errs.Kind `json:"kind"`
}

// BatchResult 汇总一次批量上传。部分成功时 Uploaded 与 Failed 均非空，调用方需同时检查。
type BatchResult struct {
	Uploaded       []model.File `json:"uploaded"`
	Failed         []FailedFile `json:"failed"`
	TotalRequested int          `json:"totalRequested"`
	TotalUploaded  int          `json:"totalUploaded"`
}

// Outcome 是批次的整体结论。
type Outcome string

const (
	OutcomeComplete Outcome = "complete"
	OutcomePartial  Outcome = "partial"
	OutcomeFailed   Outcome = "failed"
	OutcomeEmpty    Outcome = "empty"
)

// Outcome 将批次归为全部成功、部分成功、全部失败或空批次。
func (b BatchResult) Outcome() Outcome {
	switch {
	case b.TotalRequested == 0:
		return OutcomeEmpty
	case b.TotalUploaded == 0:
		return OutcomeFailed
	case len(b.Failed) > 0:
		return OutcomePartial
	default:
		return OutcomeComplete
	}
}

func newBatchResult(n int) BatchResult {
	return BatchResult{
		Uploaded:       make([]model.File, 0, n),
		Failed:         []FailedFile{},
		TotalRequested: n,
	}
}

func (b *BatchResult) fail(name string, e *errs.Error) {
	metrics.FilesRejectedTotal.WithLabelValues(string(e.Kind)).Inc()
	b.Failed = append(b.Failed, FailedFile{Name: name, Reason: reasonOf(e), Kind: e.Kind})
}
