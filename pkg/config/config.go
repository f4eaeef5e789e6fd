package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the canon service.
// Every environment variable is read here and nowhere else.
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Providers
	Stooq         StooqConfig
	MarketArchive MarketArchiveConfig

	// EOD pipeline policy
	EOD EODConfig

	// Trading calendar
	Calendar CalendarConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	URL string

	// Connection pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// RedisConfig holds Redis configuration. Redis is optional; when disabled,
// provider rate limiting falls back to an in-process limiter.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// StooqConfig holds configuration for the stooq EOD CSV provider.
type StooqConfig struct {
	BaseURL       string
	SymbolSuffix  string // appended to lowercase ticker codes, e.g. ".us"
	RatePerSecond int
}

// MarketArchiveConfig holds configuration for the market-archive HTML provider.
type MarketArchiveConfig struct {
	BaseURL       string
	RatePerSecond int
}

// EODConfig holds the import/rebuild policy knobs.
type EODConfig struct {
	Timezone            string
	Cutoff              string // local wall-clock "HH:MM" after which today is final
	CoverageMinPct      float64
	LookbackTradingDays int
	ProviderPriority    []string
	ChunkSize           int
	RawBatchSize        int
	CanonicalBatchSize  int
	PublishBatchSize    int
	StuckRunMaxAge      time.Duration
	ImportSchedule      string // cron expression for the nightly import job
	SweepSchedule       string // cron expression for the stuck-run sweep
}

// CalendarConfig holds trading calendar configuration.
type CalendarConfig struct {
	Holidays []string // exchange holidays as YYYY-MM-DD
}

// Load reads configuration from environment variables. This function is the
// only os.Getenv call site in the repository.
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port: getEnv("PORT", "8090"),
		Env:  getEnv("ENV", "development"),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Stooq: StooqConfig{
			BaseURL:       getEnv("STOOQ_BASE_URL", "https://stooq.com"),
			SymbolSuffix:  getEnv("STOOQ_SYMBOL_SUFFIX", ".us"),
			RatePerSecond: getEnvAsInt("STOOQ_RATE_PER_SECOND", 2),
		},

		MarketArchive: MarketArchiveConfig{
			BaseURL:       getEnv("MARKETARCHIVE_BASE_URL", "https://eod.marketarchive.io"),
			RatePerSecond: getEnvAsInt("MARKETARCHIVE_RATE_PER_SECOND", 4),
		},

		EOD: EODConfig{
			Timezone:            getEnv("EOD_TIMEZONE", "America/New_York"),
			Cutoff:              getEnv("EOD_CUTOFF", "17:30"),
			CoverageMinPct:      getEnvAsFloat("EOD_COVERAGE_MIN_PCT", 90.0),
			LookbackTradingDays: getEnvAsInt("EOD_LOOKBACK_DAYS", 5),
			ProviderPriority:    getEnvAsList("EOD_PROVIDER_PRIORITY", "stooq,marketarchive"),
			ChunkSize:           getEnvAsInt("EOD_CHUNK_SIZE", 200),
			RawBatchSize:        getEnvAsInt("EOD_RAW_BATCH_SIZE", 500),
			CanonicalBatchSize:  getEnvAsInt("EOD_CANONICAL_BATCH_SIZE", 500),
			PublishBatchSize:    getEnvAsInt("EOD_PUBLISH_BATCH_SIZE", 500),
			StuckRunMaxAge:      getEnvAsDuration("EOD_STUCK_RUN_MAX_AGE", "6h"),
			ImportSchedule:      getEnv("EOD_IMPORT_SCHEDULE", "0 0 18 * * 1-5"),
			SweepSchedule:       getEnv("EOD_SWEEP_SCHEDULE", "0 30 * * * *"),
		},

		Calendar: CalendarConfig{
			Holidays: getEnvAsList("CALENDAR_HOLIDAYS", ""),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set.
func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if _, err := time.LoadLocation(c.EOD.Timezone); err != nil {
		return fmt.Errorf("EOD_TIMEZONE %q is not a valid IANA zone: %w", c.EOD.Timezone, err)
	}

	if _, err := time.Parse("15:04", c.EOD.Cutoff); err != nil {
		return fmt.Errorf("EOD_CUTOFF must be HH:MM: %w", err)
	}

	if len(c.EOD.ProviderPriority) == 0 {
		return fmt.Errorf("EOD_PROVIDER_PRIORITY must list at least one source")
	}

	if c.EOD.CoverageMinPct < 0 || c.EOD.CoverageMinPct > 100 {
		return fmt.Errorf("EOD_COVERAGE_MIN_PCT must be within [0,100]")
	}

	return nil
}

// loadEnvFile tries to load .env from multiple locations.
func loadEnvFile() {
	paths := []string{
		".env",
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}

func getEnvAsList(key string, defaultValue string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}
	if valueStr == "" {
		return nil
	}

	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
