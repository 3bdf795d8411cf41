// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"

	"report-intake-go/pkg/errs"
	"report-intake-go/pkg/result"

	"github.com/gin-gonic/gin"
)

// StatusFor 将错误分类映射为 HTTP 状态码。分类本身与传输层无关，映射只在这里发生。
func StatusFor(kind errs.Kind) int {
	switch kind {
	case errs.Validation:
		return http.StatusBadRequest
	case errs.NotFound:
		return http.StatusNotFound
	case errs.AlreadyExists:
		return http.StatusConflict
	case errs.PermissionDenied:
		return http.StatusForbidden
	case errs.RateLimited:
		return http.StatusTooManyRequests
	case errs.Unavailable:
		return http.StatusServiceUnavailable
	case errs.Timeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respond 写出信封，失败时状态码由错误分类决定。
func respond[T any](c *gin.Context, okStatus int, res result.Result[T]) {
	if res.Success {
		c.JSON(okStatus, res)
		return
	}
	c.JSON(StatusFor(res.Kind()), res)
}

func fail(c *gin.Context, err *errs.Error) {
	c.JSON(StatusFor(err.Kind), result.Fail[any](err))
}
