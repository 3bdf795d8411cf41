package main

import (
	"context"

	"report-intake-go/internal/config"
	"report-intake-go/internal/lifecycle"
	"report-intake-go/internal/repository"
	"report-intake-go/internal/service"
	"report-intake-go/internal/validation"
	"report-intake-go/pkg/database"
	"report-intake-go/pkg/kafka"
	"report-intake-go/pkg/lock"
	"report-intake-go/pkg/log"
	"report-intake-go/pkg/storage"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// app 持有进程级依赖，客户端只在 bootstrap 中构造一次，由 close 统一释放。
type app struct {
	cfg      config.Config
	db       *gorm.DB
	rdb      *redis.Client
	backend  storage.Backend
	producer *kafka.Producer
	uploads  service.UploadService
}

// bootstrap 依次初始化配置、日志、数据库、Redis、存储后端与服务。
func bootstrap(ctx context.Context, configPath string) (*app, error) {
	// 1. 初始化配置
	config.Init(configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	log.Info("日志记录器初始化成功")

	a := &app{cfg: cfg}

	// 3. 初始化数据库、Redis 与存储后端
	db, err := database.NewMySQL(cfg.Database.MySQL.DSN)
	if err != nil {
		return nil, err
	}
	a.db = db
	if err := repository.AutoMigrate(db); err != nil {
		a.close()
		return nil, err
	}

	rdb, err := database.NewRedis(ctx, cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	if err != nil {
		a.close()
		return nil, err
	}
	a.rdb = rdb

	backend, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		a.close()
		return nil, err
	}
	a.backend = backend
	log.Infof("存储后端: %s", backend.Name())

	// 4. 初始化 Kafka 生产者（可选）
	var publisher service.Publisher
	if cfg.Kafka.Enabled {
		a.producer = kafka.NewProducer(cfg.Kafka)
		publisher = a.producer
	}

	// 5. 初始化 Service (依赖注入)
	a.uploads = service.NewUploadService(
		repository.NewFileRepository(db),
		repository.NewReportRepository(db),
		backend,
		validation.NewGate(cfg.Upload.MaxFileSize, cfg.Upload.MaxFilesPerReport),
		lifecycle.NewMachine(lifecycle.PolicyFromStrict(cfg.Upload.StrictStatusTransitions)),
		lock.NewRedisLocker(rdb, cfg.Upload.LockTTL),
		publisher,
	)
	return a, nil
}

func (a *app) close() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			log.Error("关闭 Kafka 生产者失败", err)
		}
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.db != nil {
		database.Close(a.db)
	}
	log.Sync()
}
