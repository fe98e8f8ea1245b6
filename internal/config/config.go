package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Session  SessionConfig
	TwoFA    TwoFAConfig
	Email    EmailConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port            string
	Env             string
	LogLevel        string
	TrustedProxies  []string
	DefaultLanding  string
	CleanupInterval time.Duration
}

type SessionConfig struct {
	SigningKey string
	CookieName string
	TTL        time.Duration
}

type TwoFAConfig struct {
	Issuer          string
	Digits          int
	Period          int
	VerifyWindow    int // time steps either side accepted at login
	SetupWindow     int // wider tolerance during initial enrollment
	SecretLength    int
	BackupCodeCount int
	AuditRetention  time.Duration
}

type EmailConfig struct {
	AWSRegion     string
	FromAddress   string
	SiteName      string
	MagicLinkBase string // e.g. https://portal.example.com
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	sessionKey := getEnv("SESSION_SIGNING_KEY", "")
	if sessionKey == "" {
		return nil, fmt.Errorf("SESSION_SIGNING_KEY is required")
	}
	if err := validateSessionKey(sessionKey, env); err != nil {
		return nil, err
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "mantrap"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			Env:             env,
			LogLevel:        getEnv("LOG_LEVEL", "info"),
			TrustedProxies:  getEnvAsList("TRUSTED_PROXIES"),
			DefaultLanding:  getEnv("DEFAULT_LANDING", "/panel"),
			CleanupInterval: getEnvAsDuration("CLEANUP_INTERVAL", 1*time.Hour),
		},
		Session: SessionConfig{
			SigningKey: sessionKey,
			CookieName: getEnv("SESSION_COOKIE_NAME", "mantrap_2fa"),
			TTL:        getEnvAsDuration("SESSION_TTL", 12*time.Hour),
		},
		TwoFA: TwoFAConfig{
			Issuer:          getEnv("TOTP_ISSUER", "News Portal"),
			Digits:          getEnvAsInt("TOTP_DIGITS", 6),
			Period:          getEnvAsInt("TOTP_PERIOD", 30),
			VerifyWindow:    getEnvAsInt("TOTP_VERIFY_WINDOW", 1),
			SetupWindow:     getEnvAsInt("TOTP_SETUP_WINDOW", 2),
			SecretLength:    getEnvAsInt("TOTP_SECRET_LENGTH", 20),
			BackupCodeCount: getEnvAsInt("BACKUP_CODE_COUNT", 10),
			AuditRetention:  getEnvAsDuration("AUDIT_RETENTION", 90*24*time.Hour),
		},
		Email: EmailConfig{
			AWSRegion:     getEnv("AWS_REGION", "us-east-1"),
			FromAddress:   getEnv("EMAIL_FROM", "no-reply@localhost"),
			SiteName:      getEnv("SITE_NAME", "News Portal"),
			MagicLinkBase: getEnv("MAGIC_LINK_BASE", "http://localhost:8080"),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	return cfg, nil
}

// validateSessionKey enforces minimum strength for the HS256 session key
func validateSessionKey(key, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(key) < minLength {
		return fmt.Errorf("SESSION_SIGNING_KEY must be at least %d characters in %s environment (got %d)",
			minLength, env, len(key))
	}

	weakKeys := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	keyLower := strings.ToLower(key)
	for _, weak := range weakKeys {
		if keyLower == weak {
			return fmt.Errorf("SESSION_SIGNING_KEY cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}
