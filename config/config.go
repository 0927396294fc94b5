package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Mailchimp MailchimpConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is; otherwise built from components
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings (rate limiting).
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MailchimpConfig holds credentials for the subscriber directory and the
// shared secret used to verify incoming webhook signatures.
type MailchimpConfig struct {
	APIKey        string
	ListID        string
	ServerPrefix  string
	WebhookSecret string
	Timeout       time.Duration
}

// AuthConfig holds the staff API token hash (SHA-256, base64) used by the
// check-in endpoints. The token itself is never stored.
type AuthConfig struct {
	StaffTokenSHA256 string
}

// RateLimitConfig tunes the token bucket guarding the public registration
// endpoint.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
}

// DSN returns the PostgreSQL connection string.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	readTimeout := getEnvInt("READ_TIMEOUT_SEC", 30)
	writeTimeout := getEnvInt("WRITE_TIMEOUT_SEC", 30)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        readTimeout,
			WriteTimeout:       writeTimeout,
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "adnks"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 10),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Mailchimp: MailchimpConfig{
			APIKey:        getEnv("MAILCHIMP_API_KEY", ""),
			ListID:        getEnv("MAILCHIMP_LIST_ID", ""),
			ServerPrefix:  getEnv("MAILCHIMP_SERVER_PREFIX", "us1"),
			WebhookSecret: getEnv("MAILCHIMP_WEBHOOK_SECRET", ""),
			Timeout:       time.Duration(getEnvInt("MAILCHIMP_TIMEOUT_SEC", 30)) * time.Second,
		},
		Auth: AuthConfig{
			StaffTokenSHA256: getEnv("API_TOKEN_SHA256_B64", ""),
		},
		RateLimit: RateLimitConfig{
			Enabled:        getEnvBool("RATE_LIMIT_ENABLED", true),
			Capacity:       getEnvInt("RATE_LIMIT_CAPACITY", 30),
			RefillTokens:   getEnvInt("RATE_LIMIT_REFILL_TOKENS", 1),
			RefillInterval: time.Duration(getEnvInt("RATE_LIMIT_REFILL_INTERVAL_SEC", 2)) * time.Second,
			TTL:            time.Duration(getEnvInt("RATE_LIMIT_TTL_SEC", 600)) * time.Second,
		},
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	switch os.Getenv(key) {
	case "1", "true", "TRUE", "yes", "on":
		return true
	case "0", "false", "FALSE", "no", "off":
		return false
	}
	return fallback
}
