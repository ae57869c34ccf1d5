package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the process-wide typed configuration, populated once at
// startup from environment variables (optionally loaded from a .env
// file). Every recognized option and default mirrors the configuration
// surface this pipeline exposes to operators.
type Config struct {
	Store    StoreConfig
	Schedule ScheduleConfig
	Retry    RetryConfig
	Risk     RiskConfig
	Log      LogConfig
	Reddit   RedditConfig
	Redis    RedisConfig
	Archive  ArchiveConfig
	API      APIConfig
}

// StoreConfig describes the relational store connection.
type StoreConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
	PoolSize int
}

// ScheduleConfig describes when the two default cron jobs fire.
type ScheduleConfig struct {
	PriceCrawlHour    int
	PriceCrawlMinute  int
	RedditCrawlHour   int
	RedditCrawlMinute int
}

// RetryConfig governs the Retryer's backoff behavior.
type RetryConfig struct {
	MaxRetries          int
	RetryBackoffSeconds int
}

// RiskConfig governs the risk threshold and sentiment keyword weights.
type RiskConfig struct {
	Threshold        float64
	WeightNewRelease float64
	WeightPriceDrop  float64
	WeightDefault    float64
}

// LogConfig governs ambient logging.
type LogConfig struct {
	Level    string
	FilePath string
}

// RedditConfig names the subreddits scanned by the FeedExtractor and
// the rate-limit cooldown applied on HTTP 429.
type RedditConfig struct {
	Subreddits            []string
	RateLimitCooldownSecs int
}

// RedisConfig is optional: when Host is empty, or Redis does not answer
// at startup, no shared cooldown is attached and the Retryer relies on
// its per-call backoff; only the unreachable case logs a warning.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// ArchiveConfig is optional: when Bucket is empty, run-stats
// archival is skipped entirely.
type ArchiveConfig struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	BaseURL         string
}

// APIConfig governs the minimal operator-facing introspection HTTP
// surface (/healthz, /api/v1/scheduler/*) — not the excluded CRUD
// service.
type APIConfig struct {
	Port string
}

// Load reads configuration from the environment, optionally seeded by
// a .env file in the working directory. Missing .env is not fatal.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		Store: StoreConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			Name:     getEnv("DB_NAME", "gpu_market_etl"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			PoolSize: getEnvInt("DB_POOL_SIZE", 5),
		},
		Schedule: ScheduleConfig{
			PriceCrawlHour:    getEnvInt("PRICE_CRAWL_HOUR", 9),
			PriceCrawlMinute:  getEnvInt("PRICE_CRAWL_MINUTE", 0),
			RedditCrawlHour:   getEnvInt("REDDIT_CRAWL_HOUR", 10),
			RedditCrawlMinute: getEnvInt("REDDIT_CRAWL_MINUTE", 0),
		},
		Retry: RetryConfig{
			MaxRetries:          getEnvInt("MAX_RETRIES", 3),
			RetryBackoffSeconds: getEnvInt("RETRY_BACKOFF_SECONDS", 5),
		},
		Risk: RiskConfig{
			Threshold:        getEnvFloat("RISK_THRESHOLD", 100.0),
			WeightNewRelease: getEnvFloat("SENTIMENT_WEIGHT_NEW_RELEASE", 3.0),
			WeightPriceDrop:  getEnvFloat("SENTIMENT_WEIGHT_PRICE_DROP", 2.0),
			WeightDefault:    getEnvFloat("SENTIMENT_WEIGHT_DEFAULT", 1.0),
		},
		Log: LogConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			FilePath: getEnv("LOG_FILE_PATH", ""),
		},
		Reddit: RedditConfig{
			Subreddits:            parseSlice(getEnv("REDDIT_SUBREDDITS", "nvidia,pcmasterrace")),
			RateLimitCooldownSecs: getEnvInt("REDDIT_RATE_LIMIT_COOLDOWN_SECONDS", 60),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", ""),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Archive: ArchiveConfig{
			Region:          getEnv("AWS_REGION", "ap-northeast-2"),
			Bucket:          getEnv("AWS_S3_ARCHIVE_BUCKET", ""),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			BaseURL:         getEnv("AWS_S3_BASE_URL", ""),
		},
		API: APIConfig{
			Port: getEnv("API_PORT", "8080"),
		},
	}

	return cfg, nil
}

// DSN builds the Postgres connection string GORM expects.
func (c *StoreConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
		log.Printf("Invalid int %s=%s, using default %d", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
		log.Printf("Invalid float %s=%s, using default %f", key, value, defaultValue)
	}
	return defaultValue
}

func parseSlice(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
