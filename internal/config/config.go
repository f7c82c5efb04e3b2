package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	JWT         JWTConfig
	Storage     StorageConfig
	Tracing     TracingConfig `mapstructure:"tracing"`
	Redis       RedisConfig
	CORS        CORSConfig        `mapstructure:"cors"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Progress    ProgressConfig    `mapstructure:"progress"`
	Attempts    AttemptsConfig    `mapstructure:"attempts"`
	Certificate CertificateConfig `mapstructure:"certificate"`
	Curriculum  CurriculumConfig  `mapstructure:"curriculum"`

	// 运行时标志（非配置文件，通过命令行参数设置）
	ForceMigrate bool `mapstructure:"-"` // 强制执行数据库迁移
	MigrateOnly  bool `mapstructure:"-"` // 仅迁移模式（迁移后退出）
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
	LogLevel  string `mapstructure:"log_level"`
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	ExpireTime time.Duration `mapstructure:"expire_hours"`
}

type StorageConfig struct {
	Type          string `mapstructure:"type"`
	LocalPath     string `mapstructure:"local_path"`
	MinioEndpoint string `mapstructure:"minio_endpoint"`
	MinioAccessID string `mapstructure:"minio_access_key"`
	MinioSecret   string `mapstructure:"minio_secret_key"`
	MinioBucket   string `mapstructure:"minio_bucket"`
	MinioUseSSL   bool   `mapstructure:"minio_use_ssl"`
	OSSEndpoint   string `mapstructure:"oss_endpoint"`
	OSSAccessKey  string `mapstructure:"oss_access_key"`
	OSSSecretKey  string `mapstructure:"oss_secret_key"`
	OSSBucket     string `mapstructure:"oss_bucket"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// ProgressConfig controls lesson completion and snapshot weighting.
type ProgressConfig struct {
	// Fraction of a video's duration that must be watched before it counts as complete.
	VideoCompletionThreshold float64 `mapstructure:"video_completion_threshold"`
	// Weight of one required module/final assessment relative to one lesson in ProgressPercent.
	AssessmentItemWeight float64 `mapstructure:"assessment_item_weight"`
	// OverallScore = LessonScoreWeight*lesson completion + AssessmentScoreWeight*mean best percentage.
	LessonScoreWeight     float64 `mapstructure:"lesson_score_weight"`
	AssessmentScoreWeight float64 `mapstructure:"assessment_score_weight"`
	ProbeVideoDurations   bool    `mapstructure:"probe_video_durations"`
}

type AttemptsConfig struct {
	// Whether an attempt abandoned by timeout consumes one of maxAttempts.
	CountExpiredAttempts   bool `mapstructure:"count_expired_attempts"`
	SubmissionGraceSeconds int  `mapstructure:"submission_grace_seconds"`
	// 0 disables the background sweep; overdue attempts are still expired lazily.
	SweepIntervalSeconds int `mapstructure:"sweep_interval_seconds"`
}

type CertificateConfig struct {
	AutoIssue bool   `mapstructure:"auto_issue"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type CurriculumConfig struct {
	CacheTTLMinutes int `mapstructure:"cache_ttl_minutes"`
}

func (c ProgressConfig) Normalized() ProgressConfig {
	if c.VideoCompletionThreshold <= 0 || c.VideoCompletionThreshold > 1 {
		c.VideoCompletionThreshold = 0.9
	}
	if c.AssessmentItemWeight <= 0 {
		c.AssessmentItemWeight = 1
	}
	if c.LessonScoreWeight < 0 || c.AssessmentScoreWeight < 0 || c.LessonScoreWeight+c.AssessmentScoreWeight == 0 {
		c.LessonScoreWeight, c.AssessmentScoreWeight = 0.3, 0.7
	}
	return c
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.charset", "utf8mb4")
	v.SetDefault("database.parsetime", true)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("jwt.expire_hours", 24)
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "uploads")
	v.SetDefault("rate_limit.max_requests", 6000)
	v.SetDefault("rate_limit.window_minutes", 1)
	v.SetDefault("progress.video_completion_threshold", 0.9)
	v.SetDefault("progress.assessment_item_weight", 1.0)
	v.SetDefault("progress.lesson_score_weight", 0.3)
	v.SetDefault("progress.assessment_score_weight", 0.7)
	v.SetDefault("attempts.count_expired_attempts", true)
	v.SetDefault("attempts.submission_grace_seconds", 0)
	v.SetDefault("attempts.sweep_interval_seconds", 0)
	v.SetDefault("certificate.key_prefix", "certificates")
	v.SetDefault("curriculum.cache_ttl_minutes", 10)
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("COURSE_PROGRESS")
	v.AutomaticEnv()
	setDefaults(v)

	// Database
	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("database.port", "DATABASE_PORT")
	v.BindEnv("database.user", "DATABASE_USER")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("database.dbname", "DATABASE_NAME")

	// JWT
	v.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	v.BindEnv("redis.enabled", "REDIS_ENABLED")
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	v.BindEnv("server.mode", "SERVER_MODE")
	v.BindEnv("server.port", "SERVER_PORT")

	// Storage
	v.BindEnv("storage.type", "STORAGE_TYPE")
	v.BindEnv("storage.oss_endpoint", "OSS_ENDPOINT")
	v.BindEnv("storage.oss_access_key", "OSS_ACCESS_KEY")
	v.BindEnv("storage.oss_secret_key", "OSS_SECRET_KEY")
	v.BindEnv("storage.oss_bucket", "OSS_BUCKET")
	v.BindEnv("storage.minio_endpoint", "MINIO_ENDPOINT")
	v.BindEnv("storage.minio_access_key", "MINIO_ACCESS_KEY")
	v.BindEnv("storage.minio_secret_key", "MINIO_SECRET_KEY")
	v.BindEnv("storage.minio_bucket", "MINIO_BUCKET")

	// Tracing
	v.BindEnv("tracing.enabled", "TRACING_ENABLED")
	v.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	// Policies
	v.BindEnv("attempts.count_expired_attempts", "ATTEMPTS_COUNT_EXPIRED")
	v.BindEnv("certificate.auto_issue", "CERTIFICATE_AUTO_ISSUE")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.JWT.ExpireTime = cfg.JWT.ExpireTime * time.Hour
	cfg.Progress = cfg.Progress.Normalized()

	// 生产环境校验 JWT Secret 强度
	if cfg.Server.Mode == "release" && len(cfg.JWT.Secret) < 32 {
		return nil, fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(cfg.JWT.Secret))
	}

	if cfg.Storage.Type == "local" {
		if _, err := os.Stat(cfg.Storage.LocalPath); os.IsNotExist(err) {
			os.MkdirAll(cfg.Storage.LocalPath, 0755)
		}
	}

	return &cfg, nil
}
