package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "secret")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.HTTPAddress != defaultHTTPAddress {
		t.Fatalf("unexpected http address %q", cfg.HTTPAddress)
	}
	if cfg.DatabaseDriver != DriverSQLite || cfg.DatabasePath != defaultDatabasePath {
		t.Fatalf("unexpected database settings %q %q", cfg.DatabaseDriver, cfg.DatabasePath)
	}
	if cfg.AuthTokenTTL != defaultTokenTTL {
		t.Fatalf("unexpected token ttl %v", cfg.AuthTokenTTL)
	}
	if cfg.RateLimitRequests != defaultRateRequests || cfg.RateLimitWindow != time.Minute {
		t.Fatalf("unexpected rate limit %d/%v", cfg.RateLimitRequests, cfg.RateLimitWindow)
	}
	if !cfg.MetricsEnabled || cfg.TracingExporter != TracingNone {
		t.Fatalf("unexpected observability settings %+v", cfg)
	}
	if cfg.MealPlanRecentDays != 4 {
		t.Fatalf("unexpected recent days %d", cfg.MealPlanRecentDays)
	}
	if len(cfg.CORSAllowedOrigins) != 0 {
		t.Fatalf("expected no allowed origins, got %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("COOKBOOK_AUTH_SIGNING_SECRET", "from-env")
	t.Setenv("COOKBOOK_DATABASE_DRIVER", "Postgres")
	t.Setenv("COOKBOOK_DATABASE_DSN", "postgres://cookbook@localhost/cookbook")
	t.Setenv("COOKBOOK_CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("COOKBOOK_AUTH_TOKEN_TTL", "90m")

	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.AuthSigningSecret != "from-env" {
		t.Fatalf("unexpected secret %q", cfg.AuthSigningSecret)
	}
	if cfg.DatabaseDriver != DriverPostgres {
		t.Fatalf("unexpected driver %q", cfg.DatabaseDriver)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", cfg.CORSAllowedOrigins)
	}
	if cfg.AuthTokenTTL != 90*time.Minute {
		t.Fatalf("unexpected ttl %v", cfg.AuthTokenTTL)
	}
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	testCases := []struct {
		name     string
		settings map[string]interface{}
		message  string
	}{
		{name: "missing secret", settings: map[string]interface{}{}, message: "auth.signing_secret"},
		{name: "unknown driver", settings: map[string]interface{}{"database.driver": "mysql"}, message: "database.driver"},
		{name: "postgres without dsn", settings: map[string]interface{}{"database.driver": "postgres"}, message: "database.dsn"},
		{name: "unknown exporter", settings: map[string]interface{}{"tracing.exporter": "jaeger"}, message: "tracing.exporter"},
		{name: "zero window", settings: map[string]interface{}{"ratelimit.window": "0s"}, message: "ratelimit.window"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			configViper := NewViper()
			if testCase.name != "missing secret" {
				configViper.Set("auth.signing_secret", "secret")
			}
			for key, value := range testCase.settings {
				configViper.Set(key, value)
			}
			_, err := Load(configViper)
			if err == nil || !strings.Contains(err.Error(), testCase.message) {
				t.Fatalf("expected error mentioning %q, got %v", testCase.message, err)
			}
		})
	}
}
