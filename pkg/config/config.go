package config

import (
	"os"
	"strconv"
	"time"
)

// Application settings
type Config struct {
	Server  ServerConfig
	Logging LoggingConfig
	Query   QueryConfig
	Cache   CacheConfig
}

// Server settings
type ServerConfig struct {
	Port string
}

// Query service client settings
type QueryConfig struct {
	BaseURL            string
	Token              string
	RequestTimeout     time.Duration
	MaxAttempts        int
	BaseDelay          time.Duration
	MaxDelay           time.Duration
	RateLimitPerSecond int
	DefaultLimit       int
}

// Cache settings. Mode "live" disables caching entirely so every request
// hits the query service.
type CacheConfig struct {
	Mode     string
	DataTTL  time.Duration
	DailyTTL time.Duration
}

// Logging settings
type LoggingConfig struct {
	Level string
}

func (c CacheConfig) Disabled() bool {
	return c.Mode == "live"
}

func Load() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
		},
		Query: QueryConfig{
			BaseURL:            getEnv("QUERY_API_URL", ""),
			Token:              getEnv("QUERY_API_TOKEN", ""),
			RequestTimeout:     getDurationEnv("REQUEST_TIMEOUT", "30s"),
			MaxAttempts:        getIntEnv("MAX_ATTEMPTS", 5),
			BaseDelay:          getDurationEnv("RETRY_BASE_DELAY", "1s"),
			MaxDelay:           getDurationEnv("RETRY_MAX_DELAY", "16s"),
			RateLimitPerSecond: getIntEnv("RATE_LIMIT_PER_SECOND", 100),
			DefaultLimit:       getIntEnv("QUERY_DEFAULT_LIMIT", 1000),
		},
		Cache: CacheConfig{
			Mode:     getEnv("CACHE_MODE", "standard"),
			DataTTL:  getDurationEnv("CACHE_DATA_TTL", "10m"),
			DailyTTL: getDurationEnv("CACHE_DAILY_TTL", "30s"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue string) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
