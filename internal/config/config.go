// Package config 负责加载和管理应用程序的配置。
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// 全局配置变量，由 Init 填充，仅供 main 使用；其余组件通过构造函数接收各自的配置段。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Log       LogConfig       `mapstructure:"log"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Upload    UploadConfig    `mapstructure:"upload"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
// UploadTopic 用于投递"文件已上传"任务，StatusTopic 接收外部处理器回传的状态事件。
type KafkaConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Brokers     string `mapstructure:"brokers"`
	UploadTopic string `mapstructure:"upload_topic"`
	StatusTopic string `mapstructure:"status_topic"`
	GroupID     string `mapstructure:"group_id"`
}

// 存储后端类型
const (
	BackendLocal = "local"
	BackendMinIO = "minio"
)

// StorageConfig 选择并配置存储后端，进程启动时确定一次。
type StorageConfig struct {
	Backend string             `mapstructure:"backend"`
	Local   LocalStorageConfig `mapstructure:"local"`
	MinIO   MinIOConfig        `mapstructure:"minio"`
}

// LocalStorageConfig 存储本地文件系统后端的配置。
type LocalStorageConfig struct {
	Dir         string `mapstructure:"dir"`
	PublicRoute string `mapstructure:"public_route"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string        `mapstructure:"endpoint"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	UseSSL          bool          `mapstructure:"use_ssl"`
	BucketName      string        `mapstructure:"bucket_name"`
	PresignExpiry   time.Duration `mapstructure:"presign_expiry"`
	PublicBaseURL   string        `mapstructure:"public_base_url"`
}

// UploadConfig 存储上传校验与配额相关的配置。
type UploadConfig struct {
	MaxFileSize             int64         `mapstructure:"max_file_size"`
	MaxFilesPerReport       int           `mapstructure:"max_files_per_report"`
	StrictStatusTransitions bool          `mapstructure:"strict_status_transitions"`
	LockTTL                 time.Duration `mapstructure:"lock_ttl"`
}

// RateLimitConfig 存储上传接口按 IP 限流的配置。
type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// CORSConfig 存储跨域配置，AllowOrigins 为空时不启用 CORS 中间件。
type CORSConfig struct {
	AllowOrigins []string      `mapstructure:"allow_origins"`
	MaxAge       time.Duration `mapstructure:"max_age"`
}

// MetricsConfig 存储 Prometheus 指标端点的配置。
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("jwt.access_token_expire_hours", 24)
	v.SetDefault("kafka.upload_topic", "report-file-uploaded")
	v.SetDefault("kafka.status_topic", "report-file-status")
	v.SetDefault("kafka.group_id", "report-intake-go-consumer")
	v.SetDefault("storage.backend", BackendLocal)
	v.SetDefault("storage.local.dir", "./data/uploads")
	v.SetDefault("storage.local.public_route", "/uploads")
	v.SetDefault("storage.minio.presign_expiry", 7*24*time.Hour)
	v.SetDefault("upload.max_file_size", 10*1024*1024)
	v.SetDefault("upload.max_files_per_report", 10)
	v.SetDefault("upload.lock_ttl", 2*time.Minute)
	v.SetDefault("ratelimit.requests", 30)
	v.SetDefault("ratelimit.window", time.Minute)
	v.SetDefault("cors.max_age", 12*time.Hour)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Load 从指定路径读取 YAML 配置，环境变量 INTAKE_<SECTION>_<KEY> 可覆盖任意键。
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("INTAKE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查配置中互相依赖的取值。
func (c *Config) Validate() error {
	var problems []error
	switch c.Storage.Backend {
	case BackendLocal:
		if c.Storage.Local.Dir == "" {
			problems = append(problems, errors.New("storage.local.dir 不能为空"))
		}
	case BackendMinIO:
		if c.Storage.MinIO.Endpoint == "" || c.Storage.MinIO.BucketName == "" {
			problems = append(problems, errors.New("storage.minio.endpoint 和 bucket_name 不能为空"))
		}
	default:
		problems = append(problems, fmt.Errorf("未知的存储后端: %q", c.Storage.Backend))
	}
	if c.Upload.MaxFileSize <= 0 {
		problems = append(problems, errors.New("upload.max_file_size 必须为正数"))
	}
	if c.Upload.MaxFilesPerReport <= 0 {
		problems = append(problems, errors.New("upload.max_files_per_report 必须为正数"))
	}
	return errors.Join(problems...)
}

// LoadEnvFile 将 .env 文件中的变量写入进程环境，已存在的环境变量不会被覆盖。文件不存在时忽略。
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("读取 %s 失败: %w", path, err)
	}
	return nil
}

// Init 先加载 .env，再加载配置到 Conf，失败时直接 panic。
func Init(configPath string) {
	if err := LoadEnvFile(".env"); err != nil {
		panic(err)
	}
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = *cfg
}
