package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"github.com/ZanzyTHEbar/team-pulse/internal/errors"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	defaultJWTSecret = "team-pulse-dev-secret-change-in-production"
)

// Config is the process configuration read from the environment
type Config struct {
	Port     string
	GinMode  string
	LogLevel slog.Level
	Version  string

	DatabaseDriver string
	DataDir        string
	DatabaseURL    string

	JWTSecret      string
	TokenTTL       time.Duration
	ViewerPassword string
	AdminUsername  string
	AdminPassword  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	RateLimitPerMin      int
	LoginRateLimitPerMin int

	CORSOrigins    []string
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

var (
	appConfig *Config
	appOnce   sync.Once
)

// LoadDotEnv reads .env files if present. Variables already set win.
func LoadDotEnv(files ...string) {
	if err := godotenv.Load(files...); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to load .env file", "error", err)
	}
}

// Load returns the process-wide configuration, reading the environment once
func Load() *Config {
	appOnce.Do(func() {
		appConfig = FromEnv()
	})
	return appConfig
}

// FromEnv reads a fresh Config from the current environment
func FromEnv() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		GinMode:  getEnv("GIN_MODE", "debug"),
		LogLevel: parseLevel(os.Getenv("LOG_LEVEL")),
		Version:  getEnv("APP_VERSION", "1.0.0"),

		DatabaseDriver: strings.ToLower(getEnv("DATABASE_DRIVER", DriverSQLite)),
		DataDir:        getEnv("DATA_DIR", "./data"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),

		JWTSecret:      getEnv("JWT_SECRET", defaultJWTSecret),
		TokenTTL:       getDuration("TOKEN_TTL", 24*time.Hour),
		ViewerPassword: os.Getenv("VIEWER_PASSWORD"),
		AdminUsername:  os.Getenv("ADMIN_USERNAME"),
		AdminPassword:  os.Getenv("ADMIN_PASSWORD"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getInt("REDIS_DB", 0),
		CacheTTL:      getDuration("CACHE_TTL", 5*time.Minute),

		RateLimitPerMin:      getInt("RATE_LIMIT_PER_MIN", 100),
		LoginRateLimitPerMin: getInt("LOGIN_RATE_LIMIT_PER_MIN", 10),

		CORSOrigins:    getList("CORS_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}),
		RequestTimeout: getDuration("REQUEST_TIMEOUT", 30*time.Second),
		MaxBodyBytes:   int64(getInt("MAX_BODY_BYTES", 10<<20)),
	}
}

// IsRelease reports whether gin runs in release mode
func (c *Config) IsRelease() bool {
	return c.GinMode == "release"
}

// Validate rejects configurations the server must not start with
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case DriverSQLite:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.NewConfigurationError(fmt.Sprintf("DATABASE_URL is required when DATABASE_DRIVER=%s", DriverPostgres), nil)
		}
	default:
		return errors.NewConfigurationError(fmt.Sprintf("unknown DATABASE_DRIVER %q", c.DatabaseDriver), nil)
	}

	if c.IsRelease() && (c.JWTSecret == defaultJWTSecret || len(c.JWTSecret) < 16) {
		return errors.NewConfigurationError("JWT_SECRET must be set to a strong value in release mode", nil)
	}
	if c.TokenTTL <= 0 {
		return errors.NewConfigurationError("TOKEN_TTL must be positive", nil)
	}
	if c.RateLimitPerMin <= 0 || c.LoginRateLimitPerMin <= 0 {
		return errors.NewConfigurationError("rate limits must be positive", nil)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("Ignoring invalid integer setting", "key", key, "value", raw)
		return defaultValue
	}
	return v
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		slog.Warn("Ignoring invalid duration setting", "key", key, "value", raw)
		return defaultValue
	}
	return v
}

func getList(key string, defaultValue []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func parseLevel(raw string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return slog.LevelInfo
	}
	return level
}
