// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"
	"strings"

	"report-intake-go/pkg/errs"
	"report-intake-go/pkg/result"
	"report-intake-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// ClaimsKey 是 claims 在 gin.Context 中的键。
const ClaimsKey = "claims"

// AuthMiddleware 创建一个 Gin 中间件，用于 JWT 认证。
// 令牌由外部会话服务签发，这里只校验签名与有效期，并将 claims 存入上下文。
func AuthMiddleware(jwtManager *token.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, http.StatusUnauthorized, errs.PermissionDenied, "请求未包含授权头")
			return
		}

		// Token 以 "Bearer <token>" 的形式提供
		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			abort(c, http.StatusUnauthorized, errs.PermissionDenied, "无效的授权头格式")
			return
		}

		claims, err := jwtManager.VerifyToken(strings.TrimPrefix(authHeader, bearerPrefix))
		if err != nil {
			abort(c, http.StatusUnauthorized, errs.PermissionDenied, "无效或已过期的 token")
			return
		}

		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// abort 以统一信封中止请求。
func abort(c *gin.Context, status int, kind errs.Kind, message string) {
	c.AbortWithStatusJSON(status, result.Fail[any](errs.New(kind, message)))
}
