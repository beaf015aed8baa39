package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	JWT        JWTConfig
	Redis      RedisConfig
	AI         AIConfig
	YouTube    YouTubeConfig    `mapstructure:"youtube"`
	Transcript TranscriptConfig `mapstructure:"transcript"`
	Generation GenerationConfig `mapstructure:"generation"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
	CORS       CORSConfig       `mapstructure:"cors"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`

	// 运行时标志（非配置文件，通过命令行参数设置）
	ForceMigrate bool `mapstructure:"-"`
	MigrateOnly  bool `mapstructure:"-"`
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
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	ExpireTime time.Duration `mapstructure:"expire_hours"`
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type AIConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
}

// YouTubeConfig 视频搜索接口配置，api_keys 支持多个凭证用于配额轮换
type YouTubeConfig struct {
	BaseURL string   `mapstructure:"base_url"`
	APIKeys []string `mapstructure:"api_keys"`
}

type TranscriptConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Lang    string `mapstructure:"lang"`
}

// GenerationConfig 章节生成管线的重试退避参数
type GenerationConfig struct {
	MaxRetries     int `mapstructure:"max_retries"`
	InitialDelayMs int `mapstructure:"initial_delay_ms"`
	BackoffFactor  int `mapstructure:"backoff_factor"`
	MaxDelayMs     int `mapstructure:"max_delay_ms"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("COURSE_GEN")
	viper.AutomaticEnv()

	// Database
	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.dbname", "DATABASE_NAME")

	// JWT
	viper.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	viper.BindEnv("server.mode", "SERVER_MODE")

	// AI
	viper.BindEnv("ai.base_url", "AI_BASE_URL")
	viper.BindEnv("ai.api_key", "AI_API_KEY")
	viper.BindEnv("ai.model", "AI_MODEL")

	// YouTube / Transcript
	viper.BindEnv("youtube.base_url", "YOUTUBE_BASE_URL")
	viper.BindEnv("transcript.base_url", "TRANSCRIPT_BASE_URL")

	// Tracing
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.JWT.ExpireTime = cfg.JWT.ExpireTime * time.Hour

	// 环境变量中的 YOUTUBE_API_KEY_n 追加进轮换池，与配置文件中的合并
	for _, env := range []string{
		"YOUTUBE_API_KEY", "YOUTUBE_API_KEY_2", "YOUTUBE_API_KEY_3",
		"YOUTUBE_API_KEY_4", "YOUTUBE_API_KEY_5", "YOUTUBE_API_KEY_6",
		"YOUTUBE_API_KEY_7", "YOUTUBE_API_KEY_8", "YOUTUBE_API_KEY_9",
		"YOUTUBE_API_KEY_10",
	} {
		if v := viper.GetString(env); v != "" {
			cfg.YouTube.APIKeys = append(cfg.YouTube.APIKeys, v)
		}
	}

	cfg.applyDefaults()

	// 生产环境校验 JWT Secret 强度
	if cfg.Server.Mode == "release" && len(cfg.JWT.Secret) < 32 {
		return nil, fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(cfg.JWT.Secret))
	}

	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.YouTube.BaseURL == "" {
		cfg.YouTube.BaseURL = "https://www.googleapis.com/youtube/v3"
	}
	if cfg.Transcript.Lang == "" {
		cfg.Transcript.Lang = "en"
	}
	if cfg.Generation.MaxRetries == 0 {
		cfg.Generation.MaxRetries = 3
	}
	if cfg.Generation.InitialDelayMs == 0 {
		cfg.Generation.InitialDelayMs = 1000
	}
	if cfg.Generation.BackoffFactor == 0 {
		cfg.Generation.BackoffFactor = 2
	}
	if cfg.Generation.MaxDelayMs == 0 {
		cfg.Generation.MaxDelayMs = 10000
	}
}
