package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every runtime setting. Values come from defaults, then an
// optional YAML file named by CONFIG_FILE, then environment variables.
type Config struct {
	Env        string `yaml:"env"`
	ServerAddr string `yaml:"server_addr"`

	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Payments PaymentsConfig `yaml:"payments"`
	Redis    RedisConfig    `yaml:"redis"`
	Outbox   OutboxConfig   `yaml:"outbox"`
	Tracing  TracingConfig  `yaml:"tracing"`

	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
}

type DatabaseConfig struct {
	Driver                 string `yaml:"driver"`
	URL                    string `yaml:"url"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	AutoMigrate            bool   `yaml:"auto_migrate"`
}

func (d DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(d.ConnMaxLifetimeMinutes) * time.Minute
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

type PaymentsConfig struct {
	StripeSecretKey string `yaml:"stripe_secret_key"`
	Currency        string `yaml:"currency"`
	PublicBaseURL   string `yaml:"public_base_url"`
	FineMultiplier  int    `yaml:"fine_multiplier"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	QueueKey string `yaml:"queue_key"`
}

type OutboxConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
	BatchSize       int `yaml:"batch_size"`
	MaxAttempts     int `yaml:"max_attempts"`
}

func (o OutboxConfig) Interval() time.Duration {
	return time.Duration(o.IntervalSeconds) * time.Second
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Endpoint     string  `yaml:"endpoint"`
	ServiceName  string  `yaml:"service_name"`
	SamplerRatio float64 `yaml:"sampler_ratio"`
}

func Defaults() Config {
	return Config{
		Env:        "development",
		ServerAddr: ":8080",
		Database: DatabaseConfig{
			Driver:                 "postgres",
			MaxOpenConns:           20,
			MaxIdleConns:           10,
			ConnMaxLifetimeMinutes: 60,
			AutoMigrate:            true,
		},
		Payments: PaymentsConfig{
			Currency:       "usd",
			PublicBaseURL:  "http://localhost:8080",
			FineMultiplier: 2,
		},
		Redis: RedisConfig{
			QueueKey: "library:notifications",
		},
		Outbox: OutboxConfig{
			IntervalSeconds: 30,
			BatchSize:       100,
			MaxAttempts:     10,
		},
		Tracing: TracingConfig{
			ServiceName:  "library-lending",
			SamplerRatio: 1.0,
		},
	}
}

// Load reads configuration using the process environment.
func Load() (Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom is Load with an injectable environment lookup.
func LoadFrom(getenv func(string) string) (Config, error) {
	cfg := Defaults()
	if path := strings.TrimSpace(getenv("CONFIG_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	e := envReader{get: getenv}
	e.str("APP_ENV", &cfg.Env)
	e.str("SERVER_ADDR", &cfg.ServerAddr)
	e.str("DATABASE_DRIVER", &cfg.Database.Driver)
	e.str("DATABASE_URL", &cfg.Database.URL)
	e.int("DB_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns)
	e.int("DB_MAX_IDLE_CONNS", &cfg.Database.MaxIdleConns)
	e.int("DB_CONN_MAX_LIFETIME_MINUTES", &cfg.Database.ConnMaxLifetimeMinutes)
	e.bool("AUTO_MIGRATE", &cfg.Database.AutoMigrate)
	e.str("JWT_SECRET", &cfg.Auth.JWTSecret)
	e.str("STRIPE_SECRET_KEY", &cfg.Payments.StripeSecretKey)
	e.str("PAYMENT_CURRENCY", &cfg.Payments.Currency)
	e.str("PUBLIC_BASE_URL", &cfg.Payments.PublicBaseURL)
	e.int("FINE_MULTIPLIER", &cfg.Payments.FineMultiplier)
	e.str("REDIS_ADDR", &cfg.Redis.Addr)
	e.str("REDIS_PASSWORD", &cfg.Redis.Password)
	e.int("REDIS_DB", &cfg.Redis.DB)
	e.str("NOTIFY_QUEUE_KEY", &cfg.Redis.QueueKey)
	e.int("OUTBOX_INTERVAL_SECONDS", &cfg.Outbox.IntervalSeconds)
	e.int("OUTBOX_BATCH_SIZE", &cfg.Outbox.BatchSize)
	e.int("OUTBOX_MAX_ATTEMPTS", &cfg.Outbox.MaxAttempts)
	e.bool("OTEL_ENABLED", &cfg.Tracing.Enabled)
	e.str("OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.Tracing.Endpoint)
	e.str("OTEL_SERVICE_NAME", &cfg.Tracing.ServiceName)
	e.float("OTEL_SAMPLER_RATIO", &cfg.Tracing.SamplerRatio)
	if v := strings.TrimSpace(getenv("CORS_ALLOWED_ORIGINS")); v != "" {
		cfg.CORSAllowedOrigins = splitList(v)
	}
	if e.err != nil {
		return Config{}, e.err
	}
	cfg.Payments.PublicBaseURL = strings.TrimRight(cfg.Payments.PublicBaseURL, "/")
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER must be postgres or sqlite, got %q", c.Database.Driver))
	}
	if c.Database.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Payments.StripeSecretKey == "" {
		errs = append(errs, errors.New("STRIPE_SECRET_KEY is required"))
	}
	if c.Payments.FineMultiplier < 1 {
		errs = append(errs, errors.New("FINE_MULTIPLIER must be at least 1"))
	}
	if c.Outbox.IntervalSeconds < 1 {
		errs = append(errs, errors.New("OUTBOX_INTERVAL_SECONDS must be positive"))
	}
	if c.Outbox.MaxAttempts < 1 {
		errs = append(errs, errors.New("OUTBOX_MAX_ATTEMPTS must be positive"))
	}
	if c.Tracing.SamplerRatio < 0 || c.Tracing.SamplerRatio > 1 {
		errs = append(errs, errors.New("OTEL_SAMPLER_RATIO must be within [0, 1]"))
	}
	return errors.Join(errs...)
}

func (c Config) IsProduction() bool {
	switch strings.ToLower(c.Env) {
	case "prod", "production":
		return true
	}
	return false
}

type envReader struct {
	get func(string) string
	err error
}

func (e *envReader) str(name string, dst *string) {
	if v := strings.TrimSpace(e.get(name)); v != "" {
		*dst = v
	}
}

func (e *envReader) int(name string, dst *int) {
	v := strings.TrimSpace(e.get(name))
	if v == "" {
		return
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.fail(name, v)
		return
	}
	*dst = i
}

func (e *envReader) float(name string, dst *float64) {
	v := strings.TrimSpace(e.get(name))
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(name, v)
		return
	}
	*dst = f
}

func (e *envReader) bool(name string, dst *bool) {
	v := strings.ToLower(strings.TrimSpace(e.get(name)))
	switch v {
	case "":
	case "1", "true", "yes", "on":
		*dst = true
	case "0", "false", "no", "off":
		*dst = false
	default:
		e.fail(name, v)
	}
}

func (e *envReader) fail(name, v string) {
	if e.err == nil {
		e.err = fmt.Errorf("invalid value %q for %s", v, name)
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
