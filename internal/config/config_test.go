package config

import (
	"strings"
	"testing"
	"time"
)

const testAdminPassword = "Console!Pass42"

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("SESSION_SECRET", "test-secret-32-characters-long!")
	t.Setenv("ADMIN_USERNAME", "admin")
	t.Setenv("ADMIN_PASSWORD", testAdminPassword)
}

func TestLoad_GuardDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	if cfg.Auth.MaxLoginAttempts != 5 {
		t.Errorf("MaxLoginAttempts: got %d, want 5", cfg.Auth.MaxLoginAttempts)
	}
	if cfg.Auth.LockoutDuration != 30*time.Minute {
		t.Errorf("LockoutDuration: got %v, want 30m", cfg.Auth.LockoutDuration)
	}
	if cfg.Auth.SessionTimeout != 8*time.Hour {
		t.Errorf("SessionTimeout: got %v, want 8h", cfg.Auth.SessionTimeout)
	}
	if cfg.Database.Enabled {
		t.Error("database should be disabled by default")
	}
	if cfg.Auth.CleanupInterval != 5*time.Minute {
		t.Errorf("CleanupInterval: got %v, want 5m", cfg.Auth.CleanupInterval)
	}
}

func TestLoad_GuardOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("MAX_LOGIN_ATTEMPTS", "3")
	t.Setenv("LOCKOUT_DURATION_MINUTES", "10")
	t.Setenv("SESSION_TIMEOUT_MINUTES", "60")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	if cfg.Auth.MaxLoginAttempts != 3 {
		t.Errorf("MaxLoginAttempts: got %d, want 3", cfg.Auth.MaxLoginAttempts)
	}
	if cfg.Auth.LockoutDuration != 10*time.Minute {
		t.Errorf("LockoutDuration: got %v, want 10m", cfg.Auth.LockoutDuration)
	}
	if cfg.Auth.SessionTimeout != time.Hour {
		t.Errorf("SessionTimeout: got %v, want 1h", cfg.Auth.SessionTimeout)
	}
}

func TestLoad_NonNumericGuardValueFallsBack(t *testing.T) {
	setRequired(t)
	t.Setenv("MAX_LOGIN_ATTEMPTS", "five")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}
	if cfg.Auth.MaxLoginAttempts != 5 {
		t.Errorf("MaxLoginAttempts: got %d, want default 5", cfg.Auth.MaxLoginAttempts)
	}
}

func TestLoad_RejectsNonPositiveGuardValues(t *testing.T) {
	for _, key := range []string{"MAX_LOGIN_ATTEMPTS", "LOCKOUT_DURATION_MINUTES", "SESSION_TIMEOUT_MINUTES"} {
		t.Run(key, func(t *testing.T) {
			setRequired(t)
			t.Setenv(key, "0")

			if _, err := Load(); err == nil || !strings.Contains(err.Error(), key) {
				t.Errorf("Load() error = %v, want mention of %s", err, key)
			}
		})
	}
}

func TestLoad_SessionSecretRules(t *testing.T) {
	tests := []struct {
		name    string
		env     string
		secret  string
		wantErr bool
	}{
		{"missing", "development", "", true},
		{"short in development", "development", "short", true},
		{"ok in development", "development", "sixteen-chars-ok", false},
		{"short for production", "production", "sixteen-chars-ok", true},
		{"weak value padded", "development", "changeme12345678", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv("ENV", tt.env)
			t.Setenv("SESSION_SECRET", tt.secret)

			_, err := Load()
			if (err != nil) != tt.wantErr {
				t.Errorf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_AdminRequiredWithoutDatabase(t *testing.T) {
	t.Setenv("SESSION_SECRET", "test-secret-32-characters-long!")

	if _, err := Load(); err == nil {
		t.Fatal("Load() = nil, want error when no account source is configured")
	}

	t.Setenv("AUDIT_DB_ENABLED", "true")
	t.Setenv("DB_PASSWORD", "pg")
	if _, err := Load(); err != nil {
		t.Fatalf("Load() = %v, want nil with database enabled", err)
	}
}

func TestLoad_WeakAdminPasswordRejected(t *testing.T) {
	setRequired(t)
	t.Setenv("ADMIN_PASSWORD", "admin123")

	if _, err := Load(); err == nil {
		t.Fatal("Load() = nil, want weak admin password rejected")
	}
}

func TestLoad_DatabaseRequiresPassword(t *testing.T) {
	setRequired(t)
	t.Setenv("AUDIT_DB_ENABLED", "true")

	if _, err := Load(); err == nil {
		t.Fatal("Load() = nil, want DB_PASSWORD required")
	}
}

func TestLoad_TrustedProxies(t *testing.T) {
	setRequired(t)
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.168.0.0/16")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}
	if len(cfg.Server.TrustedProxies) != 2 || cfg.Server.TrustedProxies[1] != "192.168.0.0/16" {
		t.Errorf("TrustedProxies: got %v", cfg.Server.TrustedProxies)
	}

	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8,not-a-cidr")
	if _, err := Load(); err == nil {
		t.Error("Load() = nil, want invalid CIDR rejected")
	}
}

func TestLoad_AlertsRequireAddresses(t *testing.T) {
	setRequired(t)
	t.Setenv("ALERTS_ENABLED", "true")

	if _, err := Load(); err == nil {
		t.Fatal("Load() = nil, want alert addresses required")
	}

	t.Setenv("ALERT_FROM_ADDRESS", "guard@example.com")
	t.Setenv("ALERT_RECIPIENTS", "ops@example.com, sec@example.com")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}
	if len(cfg.Alerts.Recipients) != 2 {
		t.Errorf("Recipients: got %v", cfg.Alerts.Recipients)
	}
}

func TestServerConfig_Timeouts(t *testing.T) {
	setRequired(t)
	t.Setenv("SERVER_READ_TIMEOUT", "25s")
	t.Setenv("SERVER_WRITE_TIMEOUT", "not-a-duration")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	tests := []struct {
		name     string
		actual   time.Duration
		expected time.Duration
	}{
		{"ReadTimeout (custom)", cfg.Server.ReadTimeout, 25 * time.Second},
		{"WriteTimeout (invalid falls back)", cfg.Server.WriteTimeout, 15 * time.Second},
		{"IdleTimeout (default)", cfg.Server.IdleTimeout, 60 * time.Second},
		{"ShutdownTimeout (default)", cfg.Server.ShutdownTimeout, 30 * time.Second},
	}

	for _, tt := range tests {
		if tt.actual != tt.expected {
			t.Errorf("%s: got %v, want %v", tt.name, tt.actual, tt.expected)
		}
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: 5433, User: "u", Password: "p", Name: "n", SSLMode: "require"}

	want := "host=db port=5433 user=u password=p dbname=n sslmode=require"
	if got := c.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}
