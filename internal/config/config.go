package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	pkgauth "github.com/BradenHooton/consoleguard/pkg/auth"
	pkghttp "github.com/BradenHooton/consoleguard/pkg/http"
	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Alerts   AlertConfig
}

type DatabaseConfig struct {
	Enabled           bool
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
	EventRetention    time.Duration
	AutoMigrate       bool
}

type ServerConfig struct {
	Port            string
	Env             string
	LogLevel        string
	AllowedOrigins  []string
	TrustedProxies  []string
	LoginRateLimit  int // requests per minute per client IP on /auth/login
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type AuthConfig struct {
	SessionSecret      string
	MaxLoginAttempts   int
	LockoutDuration    time.Duration
	SessionTimeout     time.Duration
	CookieDomain       string
	BcryptCost         int
	AdminUsername      string
	AdminPassword      string
	FailureDelayBase   time.Duration
	FailureDelayJitter time.Duration
	CleanupInterval    time.Duration
	AttemptIdleTTL     time.Duration
}

type AlertConfig struct {
	Enabled     bool
	AWSRegion   string
	FromAddress string
	Recipients  []string
	ConsoleName string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	sessionSecret := getEnv("SESSION_SECRET", "")
	if sessionSecret == "" {
		return nil, fmt.Errorf("SESSION_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Enabled:           getEnvAsBool("AUDIT_DB_ENABLED", false),
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "consoleguard"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 10)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 2)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
			EventRetention:    getEnvAsDuration("AUDIT_RETENTION", 90*24*time.Hour),
			AutoMigrate:       getEnvAsBool("AUDIT_DB_AUTO_MIGRATE", true),
		},
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			Env:             env,
			LogLevel:        getEnv("LOG_LEVEL", "info"),
			AllowedOrigins:  parseAllowedOrigins(env),
			TrustedProxies:  getEnvAsList("TRUSTED_PROXIES"),
			LoginRateLimit:  getEnvAsInt("LOGIN_RATE_LIMIT_PER_MINUTE", 20),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Auth: AuthConfig{
			SessionSecret:      sessionSecret,
			MaxLoginAttempts:   getEnvAsInt("MAX_LOGIN_ATTEMPTS", 5),
			LockoutDuration:    time.Duration(getEnvAsInt("LOCKOUT_DURATION_MINUTES", 30)) * time.Minute,
			SessionTimeout:     time.Duration(getEnvAsInt("SESSION_TIMEOUT_MINUTES", 480)) * time.Minute,
			CookieDomain:       getEnv("COOKIE_DOMAIN", ""),
			BcryptCost:         getEnvAsInt("BCRYPT_COST", pkgauth.DefaultBcryptCost),
			AdminUsername:      strings.TrimSpace(getEnv("ADMIN_USERNAME", "")),
			AdminPassword:      getEnv("ADMIN_PASSWORD", ""),
			FailureDelayBase:   getEnvAsDuration("LOGIN_FAILURE_DELAY", 250*time.Millisecond),
			FailureDelayJitter: getEnvAsDuration("LOGIN_FAILURE_JITTER", 100*time.Millisecond),
			CleanupInterval:    getEnvAsDuration("CLEANUP_INTERVAL", 5*time.Minute),
			AttemptIdleTTL:     getEnvAsDuration("ATTEMPT_IDLE_TTL", 24*time.Hour),
		},
		Alerts: AlertConfig{
			Enabled:     getEnvAsBool("ALERTS_ENABLED", false),
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("ALERT_FROM_ADDRESS", ""),
			Recipients:  getEnvAsList("ALERT_RECIPIENTS"),
			ConsoleName: getEnv("CONSOLE_NAME", "pipeline console"),
		},
	}

	if err := validateSessionSecret(sessionSecret, env); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Auth.MaxLoginAttempts <= 0 {
		return fmt.Errorf("MAX_LOGIN_ATTEMPTS must be positive")
	}
	if c.Auth.LockoutDuration <= 0 {
		return fmt.Errorf("LOCKOUT_DURATION_MINUTES must be positive")
	}
	if c.Auth.SessionTimeout <= 0 {
		return fmt.Errorf("SESSION_TIMEOUT_MINUTES must be positive")
	}
	if c.Server.LoginRateLimit <= 0 {
		return fmt.Errorf("LOGIN_RATE_LIMIT_PER_MINUTE must be positive")
	}

	if _, invalid := pkghttp.NewIPConfig(c.Server.TrustedProxies); len(invalid) > 0 {
		return fmt.Errorf("TRUSTED_PROXIES contains invalid CIDR ranges: %s", strings.Join(invalid, ", "))
	}

	if c.Database.Enabled && c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required when AUDIT_DB_ENABLED is set")
	}

	// Without a database the bootstrap admin is the only account
	hasAdmin := c.Auth.AdminUsername != "" || c.Auth.AdminPassword != ""
	if !c.Database.Enabled && !hasAdmin {
		return fmt.Errorf("ADMIN_USERNAME and ADMIN_PASSWORD are required when AUDIT_DB_ENABLED is not set")
	}
	if hasAdmin {
		if c.Auth.AdminUsername == "" || c.Auth.AdminPassword == "" {
			return fmt.Errorf("ADMIN_USERNAME and ADMIN_PASSWORD must be set together")
		}
		if err := pkgauth.ValidatePassword(c.Auth.AdminPassword); err != nil {
			return fmt.Errorf("ADMIN_PASSWORD rejected: %w", err)
		}
	}

	if c.Alerts.Enabled && (c.Alerts.FromAddress == "" || len(c.Alerts.Recipients) == 0) {
		return fmt.Errorf("ALERT_FROM_ADDRESS and ALERT_RECIPIENTS are required when ALERTS_ENABLED is set")
	}

	return nil
}

// validateSessionSecret enforces minimum security standards for the cookie signing secret
func validateSessionSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("SESSION_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if strings.Trim(secretLower, "0123456789-_!") == weak {
			return fmt.Errorf("SESSION_SECRET cannot be a common weak value")
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
		if intVal, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return boolVal
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
	raw := getEnv(key, "")
	if raw == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		return getEnvAsList("ALLOWED_ORIGINS")
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:5173", // Vite default
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
	}
}
