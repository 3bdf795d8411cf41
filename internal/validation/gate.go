// Package validation 实现上传候选文件的校验闸门。
// Gate 是纯函数式的：不做 I/O，不修改状态，相同输入得到相同结论。
package validation

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"report-intake-go/pkg/errs"
	"report-intake-go/pkg/idgen"

	"github.com/gabriel-vasile/mimetype"
)

const (
	// DefaultMaxFileSize 单个文件的大小上限 (10MB)。
	DefaultMaxFileSize int64 = 10 * 1024 * 1024
	// DefaultMaxFilesPerReport 每个报告允许关联的文件数上限。
	DefaultMaxFilesPerReport = 10
	// MaxNameLength 原始文件名的最大字符数。
	MaxNameLength = 255
)

// Category 是受支持 MIME 类型的分组。
type Category string

const (
	CategoryImage    Category = "image"
	CategoryVideo    Category = "video"
	CategoryDocument Category = "document"
)

var supportedTypes = func() map[string]Category {
	groups := map[Category][]string{
		CategoryImage: {"image/jpeg", "image/png", "image/gif", "image/webp"},
		CategoryVideo: {"video/mp4", "video/quicktime", "video/webm"},
		CategoryDocument: {
			"application/pdf",
			"application/msword",
			"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
			"text/plain",
		},
	}
	m := make(map[string]Category)
	for c, types := range groups {
		for _, t := range types {
			m[t] = c
		}
	}
	return m
}()

// CategoryOf 返回 MIME 类型所属分组，不受支持时 ok 为 false。
func CategoryOf(mimeType string) (Category, bool) {
	c, ok := supportedTypes[mimeType]
	return c, ok
}

// SupportedTypes 按分组返回受支持的 MIME 类型，组内有序。
func SupportedTypes() map[Category][]string {
	out := make(map[Category][]string)
	for t, c := range supportedTypes {
		out[c] = append(out[c], t)
	}
	for c := range out {
		sort.Strings(out[c])
	}
	return out
}

// Reason 是校验拒绝的原因。
type Reason string

const (
	ReasonUnsupportedType Reason = "unsupported type"
	ReasonTooLarge        Reason = "file too large"
	ReasonInvalidSize     Reason = "invalid size"
	ReasonInvalidReportID Reason = "invalid report id"
	ReasonInvalidName     Reason = "invalid file name"
	ReasonQuotaExceeded   Reason = "quota exceeded"
)

// Candidate 是待校验的上传候选。
type Candidate struct {
	Name     string
	Size     int64
	MimeType string
	ReportID string
}

// Verdict 是校验结论。Accepted 为 false 时 Reason 和 Err 均非空。
type Verdict struct {
	Accepted bool
	Reason   Reason
	Err      *errs.Error
}

func reject(reason Reason, message string) Verdict {
	return Verdict{
		Reason: reason,
		Err:    errs.New(errs.Validation, message).WithDetail("reason", string(reason)),
	}
}

// Gate 持有大小与配额上限。
type Gate struct {
	maxFileSize int64
	maxFiles    int
}

// NewGate 创建校验闸门；非正数参数回退到默认值。
func NewGate(maxFileSize int64, maxFiles int) Gate {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	if maxFiles <= 0 {
		maxFiles = DefaultMaxFilesPerReport
	}
	return Gate{maxFileSize: maxFileSize, maxFiles: maxFiles}
}

// MaxFileSize 返回单个文件的大小上限。
func (g Gate) MaxFileSize() int64 {
	return g.maxFileSize
}

// MaxFiles 返回每个报告的文件配额。
func (g Gate) MaxFiles() int {
	return g.maxFiles
}

// Validate 依次检查类型、大小、报告标识与文件名、配额，首个失败即返回。
// existingCount 应包含已持久化的文件数和本批次中已接受的文件数。
func (g Gate) Validate(c Candidate, existingCount int) Verdict {
	if _, ok := supportedTypes[c.MimeType]; !ok {
		return reject(ReasonUnsupportedType, fmt.Sprintf("unsupported type %q", c.MimeType))
	}
	if c.Size < 0 {
		return reject(ReasonInvalidSize, "size must not be negative")
	}
	if c.Size > g.maxFileSize {
		return reject(ReasonTooLarge, fmt.Sprintf("file too large: %d bytes exceeds %d", c.Size, g.maxFileSize))
	}
	if !idgen.IsReportID(c.ReportID) {
		return reject(ReasonInvalidReportID, fmt.Sprintf("invalid report id %q", c.ReportID))
	}
	if strings.TrimSpace(c.Name) == "" || utf8.RuneCountInString(c.Name) > MaxNameLength {
		return reject(ReasonInvalidName, "file name must be 1-255 characters")
	}
	if existingCount >= g.maxFiles {
		return reject(ReasonQuotaExceeded, fmt.Sprintf("quota exceeded: report already has %d of %d files", existingCount, g.maxFiles))
	}
	return Verdict{Accepted: true}
}

// NormalizeMimeType 去掉参数并转为小写，如 "Text/Plain; charset=utf-8" -> "text/plain"。
func NormalizeMimeType(declared string) string {
	base, _, _ := strings.Cut(declared, ";")
	return strings.ToLower(strings.TrimSpace(base))
}

// ResolveMimeType 在声明类型缺失或为通用二进制类型时，根据内容嗅探实际类型。
func ResolveMimeType(declared string, body []byte) string {
	t := NormalizeMimeType(declared)
	if t != "" && t != "application/octet-stream" {
		return t
	}
	return NormalizeMimeType(mimetype.Detect(body).String())
}
