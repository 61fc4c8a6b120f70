package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix             = "COOKBOOK"
	defaultHTTPAddress    = "0.0.0.0:8080"
	defaultDatabaseDriver = DriverSQLite
	defaultDatabasePath   = "cookbook.db"
	defaultLogLevel       = "info"
	defaultAuthIssuer     = "cookbook-api"
	defaultAuthAudience   = "cookbook"
	defaultCookieName     = "cookbook_session"
	defaultTokenTTL       = 12 * time.Hour
	defaultRateRequests   = 120
	defaultRateWindow     = time.Minute
	defaultTracing        = TracingNone
	defaultRecentDays     = 4
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Supported trace exporters.
const (
	TracingNone   = "none"
	TracingStdout = "stdout"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress        string
	DatabaseDriver     string
	DatabasePath       string
	DatabaseDSN        string
	LogLevel           string
	AuthSigningSecret  string
	AuthIssuer         string
	AuthAudience       string
	AuthCookieName     string
	AuthTokenTTL       time.Duration
	CORSAllowedOrigins []string
	RedisURL           string
	RateLimitRequests  int
	RateLimitWindow    time.Duration
	MetricsEnabled     bool
	TracingExporter    string
	MealPlanRecentDays int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.issuer", defaultAuthIssuer)
	configViper.SetDefault("auth.audience", defaultAuthAudience)
	configViper.SetDefault("auth.cookie_name", defaultCookieName)
	configViper.SetDefault("auth.token_ttl", defaultTokenTTL)
	configViper.SetDefault("cors.allowed_origins", []string{})
	configViper.SetDefault("ratelimit.requests", defaultRateRequests)
	configViper.SetDefault("ratelimit.window", defaultRateWindow)
	configViper.SetDefault("metrics.enabled", true)
	configViper.SetDefault("tracing.exporter", defaultTracing)
	configViper.SetDefault("mealplan.recent_days", defaultRecentDays)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:        configViper.GetString("http.address"),
		DatabaseDriver:     strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabasePath:       configViper.GetString("database.path"),
		DatabaseDSN:        configViper.GetString("database.dsn"),
		LogLevel:           configViper.GetString("log.level"),
		AuthSigningSecret:  configViper.GetString("auth.signing_secret"),
		AuthIssuer:         configViper.GetString("auth.issuer"),
		AuthAudience:       configViper.GetString("auth.audience"),
		AuthCookieName:     configViper.GetString("auth.cookie_name"),
		AuthTokenTTL:       configViper.GetDuration("auth.token_ttl"),
		CORSAllowedOrigins: splitList(configViper.GetStringSlice("cors.allowed_origins")),
		RedisURL:           configViper.GetString("redis.url"),
		RateLimitRequests:  configViper.GetInt("ratelimit.requests"),
		RateLimitWindow:    configViper.GetDuration("ratelimit.window"),
		MetricsEnabled:     configViper.GetBool("metrics.enabled"),
		TracingExporter:    strings.ToLower(strings.TrimSpace(configViper.GetString("tracing.exporter"))),
		MealPlanRecentDays: configViper.GetInt("mealplan.recent_days"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// splitList accepts both repeated values and a single comma separated value,
// which is how list settings arrive from the environment.
func splitList(values []string) []string {
	var result []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
	}
	return result
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.AuthSigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	switch c.DatabaseDriver {
	case DriverSQLite:
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("database.path is required")
		}
	case DriverPostgres:
		if strings.TrimSpace(c.DatabaseDSN) == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.DatabaseDriver)
	}
	if c.AuthTokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	if c.RateLimitRequests < 0 {
		return fmt.Errorf("ratelimit.requests must not be negative")
	}
	if c.RateLimitRequests > 0 && c.RateLimitWindow <= 0 {
		return fmt.Errorf("ratelimit.window must be positive")
	}
	if c.TracingExporter != TracingNone && c.TracingExporter != TracingStdout {
		return fmt.Errorf("tracing.exporter must be %q or %q", TracingNone, TracingStdout)
	}
	if c.MealPlanRecentDays <= 0 {
		return fmt.Errorf("mealplan.recent_days must be positive")
	}
	return nil
}
