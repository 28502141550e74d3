package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

const (
	EnvDev  = "dev"
	EnvProd = "prod"

	defaultStoreSecret  = "dev-session-store-secret"
	defaultCookieSecret = "dev-session-cookie-secret"
)

// Config is read once at startup and passed by value to everything that needs it.
type Config struct {
	Port string

	// Env is "dev" (default) or "prod". In "dev" a local .env file is loaded first.
	Env string

	DBHost    string
	DBPort    string
	DBName    string
	DBUser    string
	DBPass    string
	DBSSLMode string

	// DBMaxOpenConns is the maximum number of open connections to the database (default 25).
	DBMaxOpenConns int
	// DBMaxIdleConns is the maximum number of idle connections (default 5).
	DBMaxIdleConns int

	// MigrateOnStart applies pending migrations before the web server starts.
	MigrateOnStart bool

	// RedisURL selects the redis session backend, e.g. redis://localhost:6379/0.
	// When empty, sessions are kept in process memory (development only).
	RedisURL string

	// SessionStoreSecret encrypts session values at rest in the session backend.
	SessionStoreSecret string
	// SessionCookieSecret signs the session id cookie.
	SessionCookieSecret string
	SessionCookieName   string

	// SessionSweepCron is the cron spec for purging expired in-memory sessions.
	SessionSweepCron string

	BcryptCost int

	// PublicDir holds static assets served for unmatched GET requests.
	PublicDir string

	// LogFormat is "text" (default) or "json" for structured logging.
	LogFormat string
	LogLevel  string
}

func Load() Config {
	if getEnv("ENV", EnvDev) == EnvDev {
		// Missing .env is fine; real environment variables always win.
		_ = godotenv.Load()
	}

	return Config{
		Port: getEnv("PORT", "3000"),
		Env:  getEnv("ENV", EnvDev),

		DBHost:    getEnv("DB_HOST", "localhost"),
		DBPort:    getEnv("DB_PORT", "5432"),
		DBName:    getEnv("DB_NAME", "memberportal"),
		DBUser:    getEnv("DB_USER", "portal"),
		DBPass:    getEnv("DB_PASS", "portal"),
		DBSSLMode: getEnv("DB_SSLMODE", "disable"),

		DBMaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),

		MigrateOnStart: getEnvBool("MIGRATE_ON_START", true),

		RedisURL: getEnv("REDIS_URL", ""),

		SessionStoreSecret:  getEnv("SESSION_STORE_SECRET", defaultStoreSecret),
		SessionCookieSecret: getEnv("SESSION_COOKIE_SECRET", defaultCookieSecret),
		SessionCookieName:   getEnv("SESSION_COOKIE_NAME", "portal_session"),
		SessionSweepCron:    getEnv("SESSION_SWEEP_CRON", "@every 5m"),

		BcryptCost: getEnvInt("BCRYPT_COST", 12),

		PublicDir: getEnv("PUBLIC_DIR", "public"),

		LogFormat: getEnv("LOG_FORMAT", "text"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
	}
}

// IsProd reports whether the process runs with ENV=prod.
func (c Config) IsProd() bool {
	return strings.EqualFold(c.Env, EnvProd)
}

// Validate checks settings that would make the server unsafe or unusable.
// Default secrets are accepted in dev only.
func (c Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("PORT must not be empty"))
	}
	if c.SessionCookieName == "" {
		errs = append(errs, errors.New("SESSION_COOKIE_NAME must not be empty"))
	}
	if c.SessionStoreSecret == "" || c.SessionCookieSecret == "" {
		errs = append(errs, errors.New("SESSION_STORE_SECRET and SESSION_COOKIE_SECRET are required"))
	}
	if _, err := cron.ParseStandard(c.SessionSweepCron); err != nil {
		errs = append(errs, fmt.Errorf("SESSION_SWEEP_CRON %q: %w", c.SessionSweepCron, err))
	}
	if c.IsProd() {
		if c.SessionStoreSecret == defaultStoreSecret || c.SessionCookieSecret == defaultCookieSecret {
			errs = append(errs, errors.New("default session secrets are not allowed when ENV=prod"))
		}
		if c.SessionStoreSecret != "" && c.SessionStoreSecret == c.SessionCookieSecret {
			errs = append(errs, errors.New("SESSION_STORE_SECRET and SESSION_COOKIE_SECRET must differ"))
		}
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required when ENV=prod"))
		}
	}
	return errors.Join(errs...)
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
