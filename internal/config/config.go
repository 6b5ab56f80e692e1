package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	RedisURL       string `mapstructure:"REDIS_URL"`
	AMQPURL        string `mapstructure:"AMQP_URL"`
	EventsExchange string `mapstructure:"EVENTS_EXCHANGE"`

	MinioEndpoint  string `mapstructure:"MINIO_ENDPOINT"`
	MinioAccessKey string `mapstructure:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `mapstructure:"MINIO_SECRET_KEY"`
	MinioBucket    string `mapstructure:"MINIO_BUCKET"`
	MinioUseSSL    bool   `mapstructure:"MINIO_USE_SSL"`

	AuthIssuer     string `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string `mapstructure:"AUTH_AUDIENCE"`
	AuthJWKSURL    string `mapstructure:"AUTH_JWKS_URL"`
	AuthSigningKey string `mapstructure:"AUTH_SIGNING_KEY"`

	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`

	SweepInterval    time.Duration `mapstructure:"SWEEP_INTERVAL"`
	SweepConcurrency int           `mapstructure:"SWEEP_CONCURRENCY"`
	SweepBatchSize   int           `mapstructure:"SWEEP_BATCH_SIZE"`

	ResponseWindowDays     int      `mapstructure:"RESPONSE_WINDOW_DAYS"`
	RatificationWindowDays int      `mapstructure:"RATIFICATION_WINDOW_DAYS"`
	DevolutionWindowDays   int      `mapstructure:"DEVOLUTION_WINDOW_DAYS"`
	CaseResponseWindowDays int      `mapstructure:"CASE_RESPONSE_WINDOW_DAYS"`
	DueSoonDays            int      `mapstructure:"DUE_SOON_DAYS"`
	Mediators              []string `mapstructure:"MEDIATORS"`
	Timezone               string   `mapstructure:"TIMEZONE"`
}

var envKeys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "CORS_ORIGINS",
	"REDIS_URL", "AMQP_URL", "EVENTS_EXCHANGE",
	"MINIO_ENDPOINT", "MINIO_ACCESS_KEY", "MINIO_SECRET_KEY", "MINIO_BUCKET", "MINIO_USE_SSL",
	"AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_JWKS_URL", "AUTH_SIGNING_KEY",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"SWEEP_INTERVAL", "SWEEP_CONCURRENCY", "SWEEP_BATCH_SIZE",
	"RESPONSE_WINDOW_DAYS", "RATIFICATION_WINDOW_DAYS", "DEVOLUTION_WINDOW_DAYS",
	"CASE_RESPONSE_WINDOW_DAYS", "DUE_SOON_DAYS", "MEDIATORS", "TIMEZONE",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("EVENTS_EXCHANGE", "glosas.events")
	v.SetDefault("MINIO_BUCKET", "glosas-minutes")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("SWEEP_INTERVAL", "10m")
	v.SetDefault("SWEEP_CONCURRENCY", 8)
	v.SetDefault("SWEEP_BATCH_SIZE", 500)
	v.SetDefault("RESPONSE_WINDOW_DAYS", 5)
	v.SetDefault("RATIFICATION_WINDOW_DAYS", 5)
	v.SetDefault("DEVOLUTION_WINDOW_DAYS", 10)
	v.SetDefault("CASE_RESPONSE_WINDOW_DAYS", 5)
	v.SetDefault("DUE_SOON_DAYS", 2)
	v.SetDefault("TIMEZONE", "America/Bogota")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"), cfg.CORSOrigins)
	cfg.Mediators = splitList(v.GetString("MEDIATORS"), cfg.Mediators)

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: requests without a bearer token are served as admin.")
	}

	return cfg, nil
}

// splitList normalizes comma separated env values.
func splitList(raw string, parsed []string) []string {
	if raw == "" {
		raw = strings.Join(parsed, ",")
	}
	if raw == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Location resolves TIMEZONE, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Validate checks that the configuration is safe to run. Outside development
// either an issuer/JWKS pair or a signing key must be configured.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthIssuer == "" && c.AuthJWKSURL == "" && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_ISSUER, AUTH_JWKS_URL or AUTH_SIGNING_KEY must be set when ENV=%q", c.Env)
	}
	windows := map[string]int{
		"RESPONSE_WINDOW_DAYS":      c.ResponseWindowDays,
		"RATIFICATION_WINDOW_DAYS":  c.RatificationWindowDays,
		"DEVOLUTION_WINDOW_DAYS":    c.DevolutionWindowDays,
		"CASE_RESPONSE_WINDOW_DAYS": c.CaseResponseWindowDays,
	}
	for k, days := range windows {
		if days <= 0 {
			return fmt.Errorf("%s must be positive, got %d", k, days)
		}
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive")
	}
	if c.SweepConcurrency <= 0 {
		return fmt.Errorf("SWEEP_CONCURRENCY must be positive")
	}
	if c.MinioEndpoint != "" && (c.MinioAccessKey == "" || c.MinioSecretKey == "") {
		return fmt.Errorf("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required when MINIO_ENDPOINT is set")
	}
	return nil
}
