package middleware

import (
	"net/http"

	"report-intake-go/pkg/errs"
	"report-intake-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// AdminAuthMiddleware 检查用户是否具有管理员权限。
// 此中间件必须在 AuthMiddleware 之后使用。
func AdminAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		value, exists := c.Get(ClaimsKey)
		if !exists {
			// AuthMiddleware 未能成功解析，这是一个服务器内部错误
			abort(c, http.StatusInternalServerError, errs.SystemFailure, "无法获取用户信息")
			return
		}
		claims, ok := value.(*token.Claims)
		if !ok {
			abort(c, http.StatusInternalServerError, errs.SystemFailure, "用户数据类型错误")
			return
		}
		if !claims.IsAdmin() {
			abort(c, http.StatusForbidden, errs.PermissionDenied, "权限不足，需要管理员权限")
			return
		}
		c.Next()
	}
}
