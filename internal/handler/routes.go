package handler

import (
	"report-intake-go/internal/middleware"
	"report-intake-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// RegisterFileRoutes 注册附件相关路由。上传与类型查询公开访问，查询需登录，修改与删除需管理员。
func RegisterFileRoutes(apiV1 *gin.RouterGroup, h *FileHandler, jwtManager *token.JWTManager, limiter middleware.Limiter) {
	apiV1.POST("/reports/:reportId/files", middleware.RateLimit(limiter), h.UploadBatch)
	apiV1.GET("/files/supported-types", h.SupportedTypes)

	authed := apiV1.Group("/")
	authed.Use(middleware.AuthMiddleware(jwtManager))
	{
		authed.GET("/reports/:reportId/files", h.ListReportFiles)
		authed.GET("/files/:id", h.GetFile)
	}

	admin := apiV1.Group("/")
	// 需要同时通过认证和管理员授权两个中间件
	admin.Use(middleware.AuthMiddleware(jwtManager), middleware.AdminAuthMiddleware())
	{
		admin.PUT("/files/:id/status", h.SetStatus)
		admin.DELETE("/files/:id", h.DeleteFile)
	}
}
