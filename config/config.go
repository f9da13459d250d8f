package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	ServerPort              string
	DatabaseURL             string
	AdminToken              string
	CacheTTLHours           string
	HistoryLimit            string
	RegistrarTimeoutSeconds string
	DiscoveryTimeoutSeconds string
	SyncSchedule            string
	CacheCleanupSchedule    string
	AMQPURL                 string
	HeadlessDiscovery       string
	LogLevel                string
	LogFormat               string
}

// SimplifiedRateLimitConfig holds politeness settings for registrar portals
type SimplifiedRateLimitConfig struct {
	RegistrarDelay time.Duration `json:"registrar_delay"`
	MaxRetries     int           `json:"max_retries"`
}

// DefaultRateLimitConfig returns default rate limiting configuration for politeness
func DefaultRateLimitConfig() *SimplifiedRateLimitConfig {
	return &SimplifiedRateLimitConfig{
		RegistrarDelay: 200 * time.Millisecond, // registrars throttle aggressive clients
		MaxRetries:     1,
	}
}

// DatabaseConfig holds connection pool configuration
type DatabaseConfig struct {
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	PingTimeout     time.Duration `json:"ping_timeout"`
}

// DefaultDatabaseConfig returns production-ready pool defaults
func DefaultDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
		PingTimeout:     5 * time.Second,
	}
}

const (
	defaultCacheTTL         = 24 * time.Hour
	defaultHistoryLimit     = 50
	defaultRegistrarTimeout = 10 * time.Second
	defaultDiscoveryTimeout = 12 * time.Second
)

// GetCacheTTL returns the allotment result cache TTL from environment or default
func (c *Config) GetCacheTTL() time.Duration {
	if c.CacheTTLHours == "" {
		return defaultCacheTTL
	}

	hours, err := strconv.Atoi(c.CacheTTLHours)
	if err != nil || hours <= 0 {
		logrus.Warnf("Invalid CACHE_TTL_HOURS value: %s, using default 24 hours", c.CacheTTLHours)
		return defaultCacheTTL
	}

	return time.Duration(hours) * time.Hour
}

// GetHistoryLimit returns how many history entries are retained
func (c *Config) GetHistoryLimit() int {
	limit, err := strconv.Atoi(c.HistoryLimit)
	if err != nil || limit <= 0 {
		if c.HistoryLimit != "" {
			logrus.Warnf("Invalid HISTORY_LIMIT value: %s, using default %d", c.HistoryLimit, defaultHistoryLimit)
		}
		return defaultHistoryLimit
	}
	return limit
}

// GetRegistrarTimeout bounds a single allotment lookup against a registrar
func (c *Config) GetRegistrarTimeout() time.Duration {
	return parseSeconds("REGISTRAR_TIMEOUT_SECONDS", c.RegistrarTimeoutSeconds, defaultRegistrarTimeout)
}

// GetDiscoveryTimeout bounds a single registrar portal poll
func (c *Config) GetDiscoveryTimeout() time.Duration {
	return parseSeconds("DISCOVERY_TIMEOUT_SECONDS", c.DiscoveryTimeoutSeconds, defaultDiscoveryTimeout)
}

// UseHeadlessDiscovery reports whether JS-rendered portals are polled through a headless browser
func (c *Config) UseHeadlessDiscovery() bool {
	enabled, err := strconv.ParseBool(c.HeadlessDiscovery)
	return err == nil && enabled
}

func parseSeconds(key, raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		logrus.Warnf("Invalid %s value: %s, using default %v", key, raw, fallback)
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		logrus.Warn("Error loading .env file, using system environment variables")
	}

	return &Config{
		ServerPort:              getEnv("SERVER_PORT", "8080"),
		DatabaseURL:             getEnv("DATABASE_URL", ""),
		AdminToken:              getEnv("ADMIN_TOKEN", ""),
		CacheTTLHours:           getEnv("CACHE_TTL_HOURS", "24"),
		HistoryLimit:            getEnv("HISTORY_LIMIT", "50"),
		RegistrarTimeoutSeconds: getEnv("REGISTRAR_TIMEOUT_SECONDS", "10"),
		DiscoveryTimeoutSeconds: getEnv("DISCOVERY_TIMEOUT_SECONDS", "12"),
		SyncSchedule:            getEnv("SYNC_SCHEDULE", "@every 1h"),
		CacheCleanupSchedule:    getEnv("CACHE_CLEANUP_SCHEDULE", "@every 12h"),
		AMQPURL:                 getEnv("AMQP_URL", ""),
		HeadlessDiscovery:       getEnv("HEADLESS_DISCOVERY", "false"),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		LogFormat:               getEnv("LOG_FORMAT", "text"),
	}
}

// ConfigureLogging applies the configured level and formatter to the standard logrus logger
func ConfigureLogging(cfg *Config) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logrus.Warnf("Invalid LOG_LEVEL value: %s, using info", cfg.LogLevel)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if strings.EqualFold(cfg.LogFormat, "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
