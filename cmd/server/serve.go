package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"report-intake-go/internal/config"
	"report-intake-go/internal/handler"
	"report-intake-go/internal/middleware"
	"report-intake-go/internal/pipeline"
	"report-intake-go/pkg/kafka"
	"report-intake-go/pkg/log"
	"report-intake-go/pkg/token"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP 服务与状态事件消费者",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

func runServe(ctx context.Context, configPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	rootCtx, stop := context.WithCancel(ctx)
	defer stop()

	a, err := bootstrap(rootCtx, configPath)
	if err != nil {
		return err
	}
	defer a.close()
	cfg := a.cfg

	// 启动后台状态事件消费者
	var wg sync.WaitGroup
	if cfg.Kafka.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			kafka.StartStatusConsumer(rootCtx, cfg.Kafka, a.rdb, pipeline.NewStatusProcessor(a.uploads))
		}()
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           newRouter(a),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		log.Info("接收到停机信号，正在关闭服务...")
	case err := <-serveErr:
		log.Error("HTTP 服务监听失败", err)
		stop()
		wg.Wait()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP 服务器关闭失败", err)
	}

	// 停止消费者并等待当前事件处理完成
	stop()
	wg.Wait()
	log.Info("服务已优雅关闭")
	return nil
}

// newRouter 设置 Gin 模式并注册全部路由。
func newRouter(a *app) *gin.Engine {
	cfg := a.cfg
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.MaxMultipartMemory = 32 << 20
	r.Use(middleware.RequestLogger(), middleware.Metrics(), gin.Recovery())

	if len(cfg.CORS.AllowOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:  cfg.CORS.AllowOrigins,
			AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders: []string{"Content-Length"},
			MaxAge:        cfg.CORS.MaxAge,
		}))
	}

	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}
	if cfg.Storage.Backend == config.BackendLocal {
		r.Static(cfg.Storage.Local.PublicRoute, cfg.Storage.Local.Dir)
	}

	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours)
	limiter := middleware.NewRedisLimiter(a.rdb, cfg.RateLimit.Requests, cfg.RateLimit.Window)
	handler.RegisterFileRoutes(r.Group("/api/v1"), handler.NewFileHandler(a.uploads), jwtManager, limiter)
	return r
}
