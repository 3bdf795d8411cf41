package model

import "time"

// ReportFiles 是报告的文件列表投影，对应 report_file_projections 表。
// 报告本身的行映射由外部记录服务负责，这里只维护 uploadedFiles。
type ReportFiles struct {
	ReportID      string    `gorm:"type:varchar(16);primaryKey" json:"reportId"`
	UploadedFiles []string  `gorm:"serializer:json;type:text" json:"uploadedFiles"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (ReportFiles) TableName() string {
	return "report_file_projections"
}

// MergeFileIDs 将 ids 合并进现有列表：保持原顺序，去重，不删除任何已有项。
func MergeFileIDs(existing, ids []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(ids))
	merged := make([]string, 0, len(existing)+len(ids))
	for _, list := range [][]string{existing, ids} {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			merged = append(merged, id)
		}
	}
	return merged
}

// RemoveFileID 返回去掉 id 后的新列表。
func RemoveFileID(existing []string, id string) []string {
	out := make([]string, 0, len(existing))
	for _, v := range existing {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
