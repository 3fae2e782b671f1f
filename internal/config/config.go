package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Config holds everything read from the environment at startup. It is built
// once by Load and never mutated afterwards.
type Config struct {
	Port   string
	AppEnv string

	DatabaseURL   string
	RedisURL      string
	SentryDSN     string
	CloudinaryURL string
	CronSecret    string

	AdminEmail    string
	AdminPassword string

	AccessTokenSecret  string
	RefreshTokenSecret string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	TokenIssuer        string
	TokenAudience      string

	BcryptCost       int
	LoginMaxAttempts int
	LoginLockWindow  time.Duration

	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:   EnvOrDefault("PORT", "8080"),
		AppEnv: EnvOrDefault("APP_ENV", "development"),

		RedisURL:      strings.TrimSpace(os.Getenv("REDIS_URL")),
		SentryDSN:     strings.TrimSpace(os.Getenv("SENTRY_DSN")),
		CloudinaryURL: strings.TrimSpace(os.Getenv("CLOUDINARY_URL")),
		CronSecret:    strings.TrimSpace(os.Getenv("CRON_SECRET")),

		AdminEmail:    strings.TrimSpace(strings.ToLower(os.Getenv("ADMIN_EMAIL"))),
		AdminPassword: strings.TrimSpace(os.Getenv("ADMIN_PASSWORD")),

		AccessTokenTTL:  EnvMinutesOrDefault("ACCESS_TOKEN_TTL_MINUTES", 15),
		RefreshTokenTTL: EnvHoursOrDefault("REFRESH_TOKEN_TTL_HOURS", 168),
		TokenIssuer:     EnvOrDefault("TOKEN_ISSUER", "perks-admin"),
		TokenAudience:   EnvOrDefault("TOKEN_AUDIENCE", "perks-admin-api"),

		BcryptCost:       EnvIntOrDefault("BCRYPT_COST", bcrypt.DefaultCost),
		LoginMaxAttempts: EnvIntOrDefault("LOGIN_MAX_ATTEMPTS", 5),
		LoginLockWindow:  EnvMinutesOrDefault("LOGIN_LOCK_MINUTES", 15),

		DBMaxOpenConns:    EnvIntOrDefault("DB_MAX_OPEN_CONNS", 10),
		DBMaxIdleConns:    EnvIntOrDefault("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxLifetime: EnvMinutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30),
		DBConnMaxIdleTime: EnvMinutesOrDefault("DB_CONN_MAX_IDLE_TIME_MINUTES", 10),
	}

	var err error
	if cfg.DatabaseURL, err = mustEnv("DATABASE_URL"); err != nil {
		return nil, err
	}
	if cfg.AccessTokenSecret, err = mustEnv("ACCESS_TOKEN_SECRET"); err != nil {
		return nil, err
	}
	if cfg.RefreshTokenSecret, err = mustEnv("REFRESH_TOKEN_SECRET"); err != nil {
		return nil, err
	}
	if cfg.AccessTokenSecret == cfg.RefreshTokenSecret {
		return nil, fmt.Errorf("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ")
	}
	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}

	return cfg, nil
}

func mustEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("missing required env: %s", name)
	}
	return value, nil
}

func EnvOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func EnvIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func EnvMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(EnvIntOrDefault(name, fallback)) * time.Minute
}

func EnvHoursOrDefault(name string, fallback int) time.Duration {
	return time.Duration(EnvIntOrDefault(name, fallback)) * time.Hour
}

func EnvSecondsOrDefault(name string, fallback int) time.Duration {
	return time.Duration(EnvIntOrDefault(name, fallback)) * time.Second
}

func EnvDaysOrDefault(name string, fallback int) time.Duration {
	return time.Duration(EnvIntOrDefault(name, fallback)) * 24 * time.Hour
}

func EnvBoolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if value == "" {
		return fallback
	}

	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
