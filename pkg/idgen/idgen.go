// Package idgen 生成带前缀的短标识符，如 file_Ab3xY9。
package idgen

import (
	"crypto/rand"
	"math/big"
	"regexp"
)

const (
	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	// SuffixLen 是前缀之后的字母数字个数。
	SuffixLen = 6

	FilePrefix   = "file_"
	ReportPrefix = "rep_"
)

var (
	fileIDPattern   = regexp.MustCompile(`^file_[A-Za-z0-9]{6}$`)
	reportIDPattern = regexp.MustCompile(`^rep_[A-Za-z0-9]{6}$`)
)

// New 返回 prefix 加 6 位随机字母数字。
func New(prefix string) (string, error) {
	buf := make([]byte, SuffixLen)
	max := big.NewInt(int64(len(alphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = alphabet[n.Int64()]
	}
	return prefix + string(buf), nil
}

// NewFileID 生成一个文件标识符。
func NewFileID() (string, error) {
	return New(FilePrefix)
}

// IsFileID 判断字符串是否符合文件标识符格式。
func IsFileID(s string) bool {
	return fileIDPattern.MatchString(s)
}

// IsReportID 判断字符串是否符合报告标识符格式。
func IsReportID(s string) bool {
	return reportIDPattern.MatchString(s)
}
