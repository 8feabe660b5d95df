package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the qualification service.
type Config struct {
	Engine    EngineConfig
	Cache     CacheConfig
	Breaker   BreakerConfig
	Fetch     FetchConfig
	Score     ScoreConfig
	Inference InferenceConfig
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	RabbitMQ  RabbitMQConfig
}

type EngineConfig struct {
	Concurrency     int           `mapstructure:"ENGINE_CONCURRENCY"`
	MaxAttempts     int           `mapstructure:"ENGINE_MAX_ATTEMPTS"`
	BaseDelay       time.Duration `mapstructure:"ENGINE_BASE_DELAY"`
	MaxDelay        time.Duration `mapstructure:"ENGINE_MAX_DELAY"`
	Multiplier      float64       `mapstructure:"ENGINE_BACKOFF_MULTIPLIER"`
	PollInterval    time.Duration `mapstructure:"ENGINE_POLL_INTERVAL"`
	Retention       time.Duration `mapstructure:"ENGINE_RETENTION"`
	CleanupInterval time.Duration `mapstructure:"ENGINE_CLEANUP_INTERVAL"`
}

type CacheConfig struct {
	MaxEntries int `mapstructure:"CACHE_MAX_ENTRIES"`
}

type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"BREAKER_FAILURE_THRESHOLD"`
	Cooldown         time.Duration `mapstructure:"BREAKER_COOLDOWN"`
}

type FetchConfig struct {
	Timeout          time.Duration `mapstructure:"FETCH_TIMEOUT"`
	Attempts         int           `mapstructure:"FETCH_ATTEMPTS"`
	RetryDelay       time.Duration `mapstructure:"FETCH_RETRY_DELAY"`
	MinContentLength int           `mapstructure:"FETCH_MIN_CONTENT_LENGTH"`
}

type ScoreConfig struct {
	Attempts  int           `mapstructure:"SCORE_ATTEMPTS"`
	BaseDelay time.Duration `mapstructure:"SCORE_BASE_DELAY"`
	Fanout    int           `mapstructure:"SCORE_DOMAIN_FANOUT"`
}

type InferenceConfig struct {
	URL     string        `mapstructure:"INFERENCE_URL"`
	APIKey  string        `mapstructure:"INFERENCE_API_KEY"`
	Timeout time.Duration `mapstructure:"INFERENCE_TIMEOUT"`
}

type ServerConfig struct {
	Port        int    `mapstructure:"SERVER_PORT"`
	MetricsPort int    `mapstructure:"METRICS_PORT"`
	GinMode     string `mapstructure:"GIN_MODE"`
	BodyLimit   int64  `mapstructure:"SERVER_BODY_LIMIT_BYTES"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"DATABASE_URL"`
}

type RedisConfig struct {
	URL string `mapstructure:"REDIS_URL"`
}

type RabbitMQConfig struct {
	URL string `mapstructure:"RABBITMQ_URL"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("ENGINE_CONCURRENCY", 3)
	viper.SetDefault("ENGINE_MAX_ATTEMPTS", 3)
	viper.SetDefault("ENGINE_BASE_DELAY", "1s")
	viper.SetDefault("ENGINE_MAX_DELAY", "1m")
	viper.SetDefault("ENGINE_BACKOFF_MULTIPLIER", 2.0)
	viper.SetDefault("ENGINE_POLL_INTERVAL", "100ms")
	viper.SetDefault("ENGINE_RETENTION", "30m")
	viper.SetDefault("ENGINE_CLEANUP_INTERVAL", "5m")
	viper.SetDefault("CACHE_MAX_ENTRIES", 1000)
	viper.SetDefault("BREAKER_FAILURE_THRESHOLD", 5)
	viper.SetDefault("BREAKER_COOLDOWN", "60s")
	viper.SetDefault("FETCH_TIMEOUT", "10s")
	viper.SetDefault("FETCH_ATTEMPTS", 3)
	viper.SetDefault("FETCH_RETRY_DELAY", "500ms")
	viper.SetDefault("FETCH_MIN_CONTENT_LENGTH", 64)
	viper.SetDefault("SCORE_ATTEMPTS", 3)
	viper.SetDefault("SCORE_BASE_DELAY", "500ms")
	viper.SetDefault("SCORE_DOMAIN_FANOUT", 5)
	viper.SetDefault("INFERENCE_URL", "http://localhost:8000")
	viper.SetDefault("INFERENCE_API_KEY", "")
	viper.SetDefault("INFERENCE_TIMEOUT", "30s")
	viper.SetDefault("SERVER_PORT", 8080)
	viper.SetDefault("METRICS_PORT", 9090)
	viper.SetDefault("GIN_MODE", "release")
	viper.SetDefault("SERVER_BODY_LIMIT_BYTES", 1<<20)
	viper.SetDefault("DATABASE_URL", "")
	viper.SetDefault("REDIS_URL", "")
	viper.SetDefault("RABBITMQ_URL", "")

	_ = viper.ReadInConfig()

	cfg := &Config{}
	cfg.Engine.Concurrency = viper.GetInt("ENGINE_CONCURRENCY")
	cfg.Engine.MaxAttempts = viper.GetInt("ENGINE_MAX_ATTEMPTS")
	cfg.Engine.BaseDelay = viper.GetDuration("ENGINE_BASE_DELAY")
	cfg.Engine.MaxDelay = viper.GetDuration("ENGINE_MAX_DELAY")
	cfg.Engine.Multiplier = viper.GetFloat64("ENGINE_BACKOFF_MULTIPLIER")
	cfg.Engine.PollInterval = viper.GetDuration("ENGINE_POLL_INTERVAL")
	cfg.Engine.Retention = viper.GetDuration("ENGINE_RETENTION")
	cfg.Engine.CleanupInterval = viper.GetDuration("ENGINE_CLEANUP_INTERVAL")
	cfg.Cache.MaxEntries = viper.GetInt("CACHE_MAX_ENTRIES")
	cfg.Breaker.FailureThreshold = viper.GetInt("BREAKER_FAILURE_THRESHOLD")
	cfg.Breaker.Cooldown = viper.GetDuration("BREAKER_COOLDOWN")
	cfg.Fetch.Timeout = viper.GetDuration("FETCH_TIMEOUT")
	cfg.Fetch.Attempts = viper.GetInt("FETCH_ATTEMPTS")
	cfg.Fetch.RetryDelay = viper.GetDuration("FETCH_RETRY_DELAY")
	cfg.Fetch.MinContentLength = viper.GetInt("FETCH_MIN_CONTENT_LENGTH")
	cfg.Score.Attempts = viper.GetInt("SCORE_ATTEMPTS")
	cfg.Score.BaseDelay = viper.GetDuration("SCORE_BASE_DELAY")
	cfg.Score.Fanout = viper.GetInt("SCORE_DOMAIN_FANOUT")
	cfg.Inference.URL = viper.GetString("INFERENCE_URL")
	cfg.Inference.APIKey = viper.GetString("INFERENCE_API_KEY")
	cfg.Inference.Timeout = viper.GetDuration("INFERENCE_TIMEOUT")
	cfg.Server.Port = viper.GetInt("SERVER_PORT")
	cfg.Server.MetricsPort = viper.GetInt("METRICS_PORT")
	cfg.Server.GinMode = viper.GetString("GIN_MODE")
	cfg.Server.BodyLimit = viper.GetInt64("SERVER_BODY_LIMIT_BYTES")
	cfg.Database.URL = viper.GetString("DATABASE_URL")
	cfg.Redis.URL = viper.GetString("REDIS_URL")
	cfg.RabbitMQ.URL = viper.GetString("RABBITMQ_URL")

	return cfg, nil
}
