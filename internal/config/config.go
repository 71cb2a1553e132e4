package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig    `mapstructure:"server"`
	Database   DatabaseConfig  `mapstructure:"database"`
	Redis      RedisConfig     `mapstructure:"redis"`
	Kafka      KafkaConfig     `mapstructure:"kafka"`
	Catalog    CatalogConfig   `mapstructure:"catalog"`
	Rerank     RerankConfig    `mapstructure:"rerank"`
	Algorithms AlgorithmConfig `mapstructure:"recommendation"`
	Sink       SinkConfig      `mapstructure:"sink"`
	Auth       AuthConfig      `mapstructure:"auth"`
	Logging    LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Port string     `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConnections int           `mapstructure:"max_connections"`
	MaxIdleTime    time.Duration `mapstructure:"max_idle_time"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type RedisConfig struct {
	URL        string        `mapstructure:"url"`
	MaxRetries int           `mapstructure:"max_retries"`
	PoolSize   int           `mapstructure:"pool_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topics  struct {
		Interactions    string `mapstructure:"interactions"`
		InteractionsDLQ string `mapstructure:"interactions_dlq"`
	} `mapstructure:"topics"`
	ConsumerGroup string `mapstructure:"consumer_group"`
}

// CatalogConfig points at the external item-metadata service.
type CatalogConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	APIKey   string        `mapstructure:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// RerankConfig points at the generative re-ranking service. The client makes
// a single bounded-timeout attempt per call and falls back on any failure.
type RerankConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	BaseURL          string        `mapstructure:"base_url"`
	APIKey           string        `mapstructure:"api_key"`
	Model            string        `mapstructure:"model"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxCandidates    int           `mapstructure:"max_candidates"`
	PromptCandidates int           `mapstructure:"prompt_candidates"`
	HistoryTitles    int           `mapstructure:"history_titles"`
}

type AlgorithmConfig struct {
	ALS     ALSConfig     `mapstructure:"als"`
	Content ContentConfig `mapstructure:"content"`
	Hybrid  HybridConfig  `mapstructure:"hybrid"`

	CandidateCount int  `mapstructure:"candidate_count"`
	TopN           int  `mapstructure:"top_n"`
	Workers        int  `mapstructure:"workers"`
	CountWeighted  bool `mapstructure:"count_weighted"`
}

type ALSConfig struct {
	Factors         int     `mapstructure:"factors"`
	Regularization  float64 `mapstructure:"regularization"`
	Iterations      int     `mapstructure:"iterations"`
	ConfidenceScale float64 `mapstructure:"confidence_scale"`
	Seed            int64   `mapstructure:"seed"`
}

type ContentConfig struct {
	MinDF int     `mapstructure:"min_df"`
	MaxDF float64 `mapstructure:"max_df"`
}

type HybridConfig struct {
	Alpha float64 `mapstructure:"alpha"`
}

type SinkConfig struct {
	Dir      string        `mapstructure:"dir"`
	RedisTTL time.Duration `mapstructure:"redis_ttl"`
}

type AuthConfig struct {
	JWTSecret string          `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration   `mapstructure:"token_ttl"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load() (*Config, error) {
	viper.SetConfigName("app")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional, continue with env vars and defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "development")
	viper.SetDefault("server.cors.allowed_origins", []string{"*"})
	viper.SetDefault("server.cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	viper.SetDefault("server.cors.allowed_headers", []string{"Authorization", "Content-Type"})

	// Database defaults
	viper.SetDefault("database.max_connections", 25)
	viper.SetDefault("database.max_idle_time", "15m")
	viper.SetDefault("database.max_lifetime", "1h")
	viper.SetDefault("database.connect_timeout", "10s")

	// Redis defaults
	viper.SetDefault("redis.url", "redis://localhost:6379/0")
	viper.SetDefault("redis.max_retries", 3)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.timeout", "5s")

	// Kafka defaults
	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.topics.interactions", "user-interactions")
	viper.SetDefault("kafka.topics.interactions_dlq", "user-interactions-dlq")
	viper.SetDefault("kafka.consumer_group", "interaction-writers")

	// Catalog defaults
	viper.SetDefault("catalog.base_url", "https://api.themoviedb.org/3")
	viper.SetDefault("catalog.timeout", "5s")
	viper.SetDefault("catalog.cache_ttl", "1h")

	// Rerank defaults: one attempt, bounded timeout, fail-soft
	viper.SetDefault("rerank.enabled", true)
	viper.SetDefault("rerank.model", "gemini-2.5-flash")
	viper.SetDefault("rerank.timeout", "30s")
	viper.SetDefault("rerank.max_candidates", 50)
	viper.SetDefault("rerank.prompt_candidates", 30)
	viper.SetDefault("rerank.history_titles", 10)

	// Algorithm defaults
	viper.SetDefault("recommendation.als.factors", 50)
	viper.SetDefault("recommendation.als.regularization", 0.1)
	viper.SetDefault("recommendation.als.iterations", 50)
	viper.SetDefault("recommendation.als.confidence_scale", 40.0)
	viper.SetDefault("recommendation.als.seed", 1)
	viper.SetDefault("recommendation.content.min_df", 1)
	viper.SetDefault("recommendation.content.max_df", 1.0)
	viper.SetDefault("recommendation.hybrid.alpha", 0.7)
	viper.SetDefault("recommendation.candidate_count", 50)
	viper.SetDefault("recommendation.top_n", 20)
	viper.SetDefault("recommendation.workers", 4)
	viper.SetDefault("recommendation.count_weighted", false)

	// Sink defaults
	viper.SetDefault("sink.dir", "./data/recs")
	viper.SetDefault("sink.redis_ttl", "24h")

	// Auth defaults
	viper.SetDefault("auth.token_ttl", "24h")
	viper.SetDefault("auth.rate_limit.requests", 120)
	viper.SetDefault("auth.rate_limit.window", "1m")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
}
