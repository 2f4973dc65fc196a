package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const defaultJWTSecret = "defensedesk-dev-secret-change-in-production"

type Config struct {
	// Server
	Port        string
	AppEnv      string
	CORSOrigins []string

	// Database
	DBDriver string
	DBDSN    string
	LogSQL   bool

	// Redis (empty address disables the notification queue)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// JWT
	JWTSecret    string
	JWTExpiresIn time.Duration

	// Logging
	LogLevel  string
	LogFormat string

	// Bootstrap admin
	AdminEmail    string
	AdminPassword string

	// Location used to interpret date-only query parameters
	TimeZone *time.Location
}

// IsProduction reports whether the app runs in production
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

var AppConfig *Config

// Load reads .env (if present) and the environment into AppConfig.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debug(".env file not found, using environment variables")
	}

	jwtExpires, err := parseDuration(getEnv("JWT_EXPIRES_IN", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_EXPIRES_IN: %w", err)
	}

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	tz, err := time.LoadLocation(getEnv("TIME_ZONE", "UTC"))
	if err != nil {
		return nil, fmt.Errorf("invalid TIME_ZONE: %w", err)
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		AppEnv:      getEnv("APP_ENV", "development"),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "*")),

		DBDriver: strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		DBDSN:    getEnv("DB_DSN", "defensedesk.db"),
		LogSQL:   strings.ToLower(getEnv("LOG_SQL", "false")) == "true",

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       redisDB,

		JWTSecret:    getEnv("JWT_SECRET", defaultJWTSecret),
		JWTExpiresIn: jwtExpires,

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		AdminEmail:    getEnv("ADMIN_EMAIL", "admin@defensedesk.local"),
		AdminPassword: getEnv("ADMIN_PASSWORD", "changeme"),

		TimeZone: tz,
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	AppConfig = cfg
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration accepts Go durations plus the "7d" / "2w" shorthands.
func parseDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}
	s = strings.TrimSpace(strings.ToLower(s))
	if len(s) < 2 {
		return 0, err
	}
	n, convErr := strconv.Atoi(s[:len(s)-1])
	if convErr != nil {
		return 0, err
	}
	switch s[len(s)-1] {
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(n*7) * 24 * time.Hour, nil
	}
	return 0, err
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func validate(c *Config) error {
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}

	// Only enforce stricter rules in production
	if !c.IsProduction() {
		return nil
	}
	if c.JWTSecret == defaultJWTSecret || len(c.JWTSecret) < 16 {
		return fmt.Errorf("JWT_SECRET must be set to at least 16 characters in production")
	}
	if c.AdminPassword == "changeme" {
		return fmt.Errorf("ADMIN_PASSWORD must be changed in production")
	}
	return nil
}
